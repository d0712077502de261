package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	apperrors "github.com/utafrali/accounts/pkg/errors"
	"github.com/utafrali/accounts/pkg/logger"
	"github.com/utafrali/accounts/pkg/validator"
)

// MaxBodyBytes caps JSON request bodies.
const MaxBodyBytes = 1 << 20

// Response is the JSON envelope shared by both services. Data is always
// present (null when there is nothing to return); the error fields appear only
// on failures.
type Response struct {
	Success   bool                `json:"success"`
	Data      any                 `json:"data"`
	Message   string              `json:"message,omitempty"`
	Error     string              `json:"error,omitempty"`
	Code      string              `json:"code,omitempty"`
	Errors    map[string][]string `json:"errors,omitempty"`
	RequestID string              `json:"requestId,omitempty"`
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Headers are already sent; nothing meaningful can be done if encoding fails.
	_ = json.NewEncoder(w).Encode(v)
}

// WriteSuccess writes a success envelope.
func WriteSuccess(w http.ResponseWriter, status int, message string, data any) {
	WriteJSON(w, status, Response{Success: true, Data: data, Message: message})
}

// WriteError is the single place errors become HTTP responses. AppErrors are
// rendered with their own status and message, bare sentinels are mapped by
// apperrors.HTTPStatus, and anything else is a 500 whose detail is logged but
// never sent to the client. It prefers the request-scoped logger from context
// (set by the RequestLogger middleware) over the fallback logger.
func WriteError(w http.ResponseWriter, r *http.Request, err error, fallback *slog.Logger) {
	l := logger.FromContext(r.Context())
	if l == slog.Default() && fallback != nil {
		l = fallback
	}

	resp := Response{RequestID: logger.CorrelationIDFromContext(r.Context())}
	status := http.StatusInternalServerError

	var appErr *apperrors.AppError
	var valErr *validator.ValidationError
	if errors.As(err, &valErr) {
		appErr = apperrors.Validation(valErr.Fields())
	} else {
		errors.As(err, &appErr)
	}

	if appErr != nil {
		status = appErr.Status
		resp.Code = appErr.Code
		resp.Error = appErr.Message
		resp.Errors = appErr.Fields
	} else {
		status = apperrors.HTTPStatus(err)
		resp.Code, resp.Error = sentinelBody(status)
	}

	if status >= http.StatusInternalServerError {
		l.ErrorContext(r.Context(), "internal error",
			slog.String("error", err.Error()),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
		)
	}

	WriteJSON(w, status, resp)
}

func sentinelBody(status int) (code, message string) {
	switch status {
	case http.StatusNotFound:
		return "NOT_FOUND", "resource not found"
	case http.StatusConflict:
		return "CONFLICT", "resource already exists"
	case http.StatusBadRequest:
		return "INVALID_INPUT", "invalid input"
	case http.StatusUnauthorized:
		return "UNAUTHORIZED", "unauthorized"
	case http.StatusForbidden:
		return "FORBIDDEN", "forbidden"
	case http.StatusServiceUnavailable:
		return "SERVICE_UNAVAILABLE", "service unavailable"
	default:
		return "INTERNAL_ERROR", "an internal error occurred"
	}
}

// DecodeJSON reads a size-capped JSON body into dst and validates it. The
// returned error is always an *apperrors.AppError ready for WriteError.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	err := validator.DecodeAndValidate(r, dst)
	if err == nil {
		return nil
	}

	var valErr *validator.ValidationError
	if errors.As(err, &valErr) {
		return apperrors.Validation(valErr.Fields())
	}
	return apperrors.InvalidInput(fmt.Sprintf("invalid request body: %s", unwrapDecode(err)))
}

func unwrapDecode(err error) string {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return "body too large"
	}
	if inner := errors.Unwrap(err); inner != nil {
		return inner.Error()
	}
	return err.Error()
}
