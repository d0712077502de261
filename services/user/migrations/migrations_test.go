package migrations

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEveryUpHasDown(t *testing.T) {
	ups, err := fs.Glob(FS, "*.up.sql")
	require.NoError(t, err)
	require.NotEmpty(t, ups)

	for _, up := range ups {
		assert.True(t, strings.HasPrefix(up, "user_"), "%s must carry the service prefix", up)
		down := strings.TrimSuffix(up, ".up.sql") + ".down.sql"
		_, err := fs.Stat(FS, down)
		assert.NoError(t, err, "missing %s", down)
	}
}

func TestProfileForeignKeyIsConditional(t *testing.T) {
	raw, err := fs.ReadFile(FS, "user_0001_create_user_profiles.up.sql")
	require.NoError(t, err)
	sql := string(raw)

	assert.Contains(t, sql, "to_regclass('users')")
	assert.Contains(t, sql, "ON DELETE CASCADE")
}
