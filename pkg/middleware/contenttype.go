package middleware

import (
	"log/slog"
	"mime"
	"net/http"

	apperrors "github.com/utafrali/accounts/pkg/errors"
	"github.com/utafrali/accounts/pkg/httputil"
)

// ContentTypeJSON rejects body-carrying requests that declare a media type
// other than application/json. A missing Content-Type is accepted.
func ContentTypeJSON(l *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if hasBody(r) {
				if ct := r.Header.Get("Content-Type"); ct != "" {
					mt, _, err := mime.ParseMediaType(ct)
					if err != nil || mt != "application/json" {
						httputil.WriteError(w, r, &apperrors.AppError{
							Code:    "UNSUPPORTED_MEDIA_TYPE",
							Message: "Content-Type must be application/json",
							Status:  http.StatusUnsupportedMediaType,
							Err:     apperrors.ErrInvalidInput,
						}, l)
						return
					}
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func hasBody(r *http.Request) bool {
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return true
	}
	return r.ContentLength > 0
}
