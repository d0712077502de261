package httpclient

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	apperrors "github.com/utafrali/accounts/pkg/errors"
)

// DownstreamErrorResponse is the failure shape of the shared response
// envelope.
type DownstreamErrorResponse struct {
	Success bool                `json:"success"`
	Error   string              `json:"error"`
	Code    string              `json:"code"`
	Errors  map[string][]string `json:"errors"`
}

// ParseResponseError consumes and closes a non-2xx response and converts it
// into an AppError. Enveloped 4xx errors keep their code and message so they
// can be relayed to the original caller unchanged; 5xx and unrecognised
// bodies become plain errors that surface as 500s.
func ParseResponseError(resp *http.Response, serviceName string) error {
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%s returned status %d (failed to read body: %w)", serviceName, resp.StatusCode, err)
	}

	var downstream DownstreamErrorResponse
	if json.Unmarshal(body, &downstream) == nil && downstream.Error != "" {
		return mapDownstreamError(resp.StatusCode, downstream, serviceName)
	}
	return fmt.Errorf("%s returned status %d: %s", serviceName, resp.StatusCode, body)
}

func mapDownstreamError(status int, d DownstreamErrorResponse, serviceName string) error {
	var sentinel error
	switch status {
	case http.StatusNotFound:
		sentinel = apperrors.ErrNotFound
	case http.StatusBadRequest:
		sentinel = apperrors.ErrInvalidInput
		if len(d.Errors) > 0 {
			sentinel = apperrors.ErrValidation
		}
	case http.StatusConflict:
		sentinel = apperrors.ErrConflict
	case http.StatusUnauthorized:
		sentinel = apperrors.ErrUnauthorized
	case http.StatusForbidden:
		sentinel = apperrors.ErrForbidden
	case http.StatusServiceUnavailable:
		return apperrors.ServiceUnavailable(serviceName+" unavailable", fmt.Errorf("%s: %s", d.Code, d.Error))
	default:
		if status >= 500 {
			return fmt.Errorf("%s server error (%d/%s): %s", serviceName, status, d.Code, d.Error)
		}
	}

	return &apperrors.AppError{
		Code:    d.Code,
		Message: d.Error,
		Fields:  d.Errors,
		Status:  status,
		Err:     sentinel,
	}
}

// IsClientError reports a 4xx status.
func IsClientError(status int) bool {
	return status >= 400 && status < 500
}
