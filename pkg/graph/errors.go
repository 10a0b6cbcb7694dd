package graph

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Sentinel errors for Microsoft Graph API responses.
var (
	// ErrBadRequest indicates the request was malformed.
	ErrBadRequest = errors.New("graph: bad request")

	// ErrUnauthorized indicates the access token is invalid or expired.
	ErrUnauthorized = errors.New("graph: unauthorized")

	// ErrForbidden indicates the caller lacks permission for the requested resource.
	ErrForbidden = errors.New("graph: forbidden")

	// ErrNotFound indicates the requested resource does not exist.
	ErrNotFound = errors.New("graph: not found")

	// ErrGone indicates the resource is no longer available, e.g. an
	// expired delta token.
	ErrGone = errors.New("graph: gone")

	// ErrRateLimited indicates the request was throttled by Microsoft Graph.
	ErrRateLimited = errors.New("graph: rate limited")

	// ErrServerError indicates a server-side error from Microsoft Graph.
	ErrServerError = errors.New("graph: server error")
)

// APIError carries the OData error payload returned by Graph alongside the
// HTTP status. It unwraps to the matching sentinel error.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("graph: %s (%s): %s", http.StatusText(e.StatusCode), e.Code, e.Message)
	}
	return fmt.Sprintf("graph: request failed with status %d", e.StatusCode)
}

func (e *APIError) Unwrap() error {
	return sentinelFor(e.StatusCode)
}

// odataError is the error envelope Graph returns on failures.
type odataError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// newAPIError builds an APIError from a non-2xx response.
func newAPIError(statusCode int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: statusCode}

	var envelope odataError
	if err := json.Unmarshal(body, &envelope); err == nil {
		apiErr.Code = envelope.Error.Code
		apiErr.Message = strings.TrimSpace(envelope.Error.Message)
	}
	return apiErr
}

// sentinelFor converts an HTTP status code to the matching sentinel error.
func sentinelFor(statusCode int) error {
	switch statusCode {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusGone:
		return ErrGone
	case http.StatusTooManyRequests:
		return ErrRateLimited
	default:
		if statusCode >= 500 {
			return ErrServerError
		}
		return nil
	}
}

// IsNotFound reports whether the error maps to a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsUnauthorized reports whether the error maps to an authentication failure.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// IsRateLimited reports whether the error maps to Graph throttling.
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}

// IsRetryable reports whether the error came from a transient status.
func IsRetryable(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && isRetryableStatus(apiErr.StatusCode)
}

// isRetryableStatus reports whether the status is potentially transient.
func isRetryableStatus(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests ||
		statusCode == http.StatusServiceUnavailable ||
		statusCode == http.StatusGatewayTimeout
}
