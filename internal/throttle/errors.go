package throttle

import (
	"errors"
	"fmt"
	"time"
)

// ErrReset is returned to calls still queued when the throttle is reset.
var ErrReset = errors.New("throttle reset")

// RateLimitedError is returned by a call when the upstream asked us to slow
// down. The throttle requeues the call instead of failing it.
type RateLimitedError struct {
	RetryAfter time.Duration
	Err        error
}

func (e *RateLimitedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("rate limited (retry after %s): %v", e.RetryAfter, e.Err)
	}
	return fmt.Sprintf("rate limited (retry after %s)", e.RetryAfter)
}

func (e *RateLimitedError) Unwrap() error {
	return e.Err
}

