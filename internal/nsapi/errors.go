package nsapi

import (
	"errors"
	"fmt"

	"openletter/pkg/platform/sentinel"
)

// ErrorCategory is the normalized failure taxonomy for upstream calls.
type ErrorCategory string

const (
	// ErrorTimeout indicates the upstream took too long to respond
	ErrorTimeout ErrorCategory = "timeout"

	// ErrorBadData indicates the upstream returned a body we could not use
	ErrorBadData ErrorCategory = "bad_data"

	// ErrorOutage indicates a transport failure or a 5xx response
	ErrorOutage ErrorCategory = "outage"

	// ErrorNotFound indicates the nation does not exist upstream
	ErrorNotFound ErrorCategory = "not_found"

	// ErrorRateLimited indicates a 429 response
	ErrorRateLimited ErrorCategory = "rate_limited"

	// ErrorInternal indicates a failure on our side building the request
	ErrorInternal ErrorCategory = "internal"
)

// APIError wraps an upstream failure with its category and the call it
// belongs to.
type APIError struct {
	Category   ErrorCategory
	Op         string
	Nation     string
	Status     int
	Underlying error
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("nsapi %s %q [%s]", e.Op, e.Nation, e.Category)
	if e.Status != 0 {
		msg = fmt.Sprintf("%s status %d", msg, e.Status)
	}
	if e.Underlying != nil {
		return fmt.Sprintf("%s: %v", msg, e.Underlying)
	}
	return msg
}

func (e *APIError) Unwrap() error {
	return e.Underlying
}

// Is makes unknown nations and unusable bodies match sentinel.ErrNotFound.
func (e *APIError) Is(target error) bool {
	if target != sentinel.ErrNotFound {
		return false
	}
	return e.Category == ErrorNotFound || e.Category == ErrorBadData
}

func newAPIError(category ErrorCategory, op, nation string, status int, underlying error) *APIError {
	return &APIError{
		Category:   category,
		Op:         op,
		Nation:     nation,
		Status:     status,
		Underlying: underlying,
	}
}

// GetCategory extracts the category from an error, defaulting to internal.
func GetCategory(err error) ErrorCategory {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.Category
	}
	return ErrorInternal
}
