package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConstructors(t *testing.T) {
	cause := fmt.Errorf("dial tcp: connection refused")

	tests := map[string]struct {
		err      *AppError
		code     string
		message  string
		status   int
		sentinel error
	}{
		"not found":    {NotFound("user profile"), "NOT_FOUND", "user profile not found", http.StatusNotFound, ErrNotFound},
		"conflict":     {Conflict("Email already registered"), "CONFLICT", "Email already registered", http.StatusConflict, ErrConflict},
		"invalid":      {InvalidInput("invalid request body"), "INVALID_INPUT", "invalid request body", http.StatusBadRequest, ErrInvalidInput},
		"unauthorized": {Unauthorized("Invalid email or password"), "UNAUTHORIZED", "Invalid email or password", http.StatusUnauthorized, ErrUnauthorized},
		"forbidden":    {Forbidden("not allowed"), "FORBIDDEN", "not allowed", http.StatusForbidden, ErrForbidden},
		"unavailable": {
			ServiceUnavailable("authentication service unavailable", cause),
			"SERVICE_UNAVAILABLE", "authentication service unavailable", http.StatusServiceUnavailable, ErrServiceUnavail,
		},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.message, tt.err.Message)
			assert.Equal(t, tt.status, tt.err.Status)
			assert.ErrorIs(t, tt.err, tt.sentinel)
			assert.Equal(t, tt.status, HTTPStatus(fmt.Errorf("handler: %w", tt.err)))
		})
	}
}

func TestServiceUnavailable_KeepsCause(t *testing.T) {
	cause := errors.New("circuit breaker is open")
	err := ServiceUnavailable("authentication service unavailable", cause)
	assert.ErrorIs(t, err, cause)
}

func TestValidation_CarriesFields(t *testing.T) {
	fields := map[string][]string{"email": {"must be a valid email address"}}
	err := Validation(fields)

	assert.Equal(t, "VALIDATION_ERROR", err.Code)
	assert.Equal(t, fields, err.Fields)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(err))
}

func TestInternal_HidesCause(t *testing.T) {
	err := Internal(errors.New("pq: relation users does not exist"))

	assert.Equal(t, "an internal error occurred", err.Message)
	assert.Contains(t, err.Error(), "relation users does not exist")
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(err))
}

func TestAppError_Error(t *testing.T) {
	assert.Equal(t, "NOT_FOUND: user not found: resource not found", NotFound("user").Error())
	assert.Equal(t, "FORBIDDEN: nope", (&AppError{Code: "FORBIDDEN", Message: "nope"}).Error())
}

func TestWrap(t *testing.T) {
	err := Wrap(ErrNotFound, "find refresh token")
	assert.EqualError(t, err, "find refresh token: resource not found")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestHTTPStatus_Sentinels(t *testing.T) {
	tests := map[error]int{
		ErrNotFound:       http.StatusNotFound,
		ErrConflict:       http.StatusConflict,
		ErrInvalidInput:   http.StatusBadRequest,
		ErrValidation:     http.StatusBadRequest,
		ErrUnauthorized:   http.StatusUnauthorized,
		ErrForbidden:      http.StatusForbidden,
		ErrServiceUnavail: http.StatusServiceUnavailable,
		ErrInternal:       http.StatusInternalServerError,
		errors.New("x"):   http.StatusInternalServerError,
	}
	for err, status := range tests {
		assert.Equal(t, status, HTTPStatus(Wrap(err, "op")), err.Error())
	}
}
