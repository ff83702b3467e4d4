package iam

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// APIError represents an error body returned by the service.
type APIError struct {
	Status           int    `json:"status"           yaml:"status"`
	Code             int    `json:"code"             yaml:"code"`
	Message          string `json:"message"          yaml:"message"`
	DeveloperMessage string `json:"developerMessage" yaml:"developerMessage"`
	MoreInfo         string `json:"moreInfo"         yaml:"moreInfo"`
	RequestID        string `json:"requestId"        yaml:"requestId"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	message := e.DeveloperMessage
	if message == "" {
		message = e.Message
	}

	if message == "" {
		message = http.StatusText(e.Status)
	}

	return fmt.Sprintf("HTTP %d, code %d: %s", e.Status, e.Code, message)
}

// Common error codes.
const (
	ErrorCodeNotFound        = 404
	ErrorCodeUnauthorized    = 401
	ErrorCodeForbidden       = 403
	ErrorCodeTooManyRequests = 429
)

// Static errors for err113 compliance.
var (
	ErrConfigRequired      = errors.New("config is required")
	ErrBaseURLRequired     = errors.New("base URL is required")
	ErrInvalidBaseURL      = errors.New("invalid base URL")
	ErrAPIKeyRequired      = errors.New("API key id and secret are required")
	ErrNATSConfigRequired  = errors.New("NATS configuration required for NATS cache")
	ErrRedisConfigRequired = errors.New("redis configuration required for redis cache")
	ErrUnsupportedCache    = errors.New("unsupported cache type")
	ErrNoMoreItems         = errors.New("no more items")
	ErrRateLimited         = errors.New("client-side rate limit exceeded")
)

// ParseAPIError decodes an error body. When the body is not a recognizable
// error document the status code alone is used.
func ParseAPIError(status int, data []byte) *APIError {
	apiErr := &APIError{}

	if len(data) > 0 {
		err := json.Unmarshal(data, apiErr)
		if err != nil {
			apiErr = &APIError{Message: string(data)}
		}
	}

	if apiErr.Status == 0 {
		apiErr.Status = status
	}

	return apiErr
}

// IsNotFound checks if the error is a not found error.
func IsNotFound(err error) bool {
	return hasStatus(err, ErrorCodeNotFound)
}

// IsUnauthorized checks if the error is an unauthorized error.
func IsUnauthorized(err error) bool {
	return hasStatus(err, ErrorCodeUnauthorized)
}

// IsForbidden checks if the error is a forbidden error.
func IsForbidden(err error) bool {
	return hasStatus(err, ErrorCodeForbidden)
}

// IsRateLimited checks if the service or the client limiter rejected the call.
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited) || hasStatus(err, ErrorCodeTooManyRequests)
}

func hasStatus(err error, status int) bool {
	apiErr := &APIError{}
	if errors.As(err, &apiErr) {
		return apiErr.Status == status
	}

	return false
}
