// Package migrations embeds the user service schema.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
