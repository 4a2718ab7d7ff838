// Package ratelimit caps how often one client may hit an endpoint. It guards
// the public sign endpoint, whose verification calls spend the shared upstream
// budget, and the admin login against password guessing.
package ratelimit

import (
	"context"
	"time"
)

// Policy is one named limit: at most Limit requests per Window per client.
type Policy struct {
	Name   string
	Limit  int
	Window time.Duration
}

// Result is the outcome of one check.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
	// RetryAfter is in whole seconds and only set when the request is denied.
	RetryAfter int
}

// Store counts requests per key.
type Store interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (*Result, error)
}

// ExceededResponse is the body written with a 429.
type ExceededResponse struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retry_after"`
}

func retryAfterSeconds(d time.Duration) int {
	secs := int((d + time.Second - 1) / time.Second)
	if secs < 1 {
		return 1
	}
	return secs
}
