// Package ratelimit throttles API callers with a sliding window per caller
// and endpoint class. Imports, verifications and introductions all trigger
// outbound fetches, so writes get a tighter budget than reads.
package ratelimit

import "time"

// EndpointClass groups routes that share a budget.
type EndpointClass string

const (
	ClassRead  EndpointClass = "read"
	ClassWrite EndpointClass = "write"
)

// Limit is a budget of Requests per Window.
type Limit struct {
	Requests int
	Window   time.Duration
}

// Result is the outcome of one check.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
	// RetryAfter is in seconds and only set when the request was refused.
	RetryAfter int
}

// ExceededResponse is the 429 body.
type ExceededResponse struct {
	Error      string `json:"error"`
	Message    string `json:"error_description"`
	RetryAfter int    `json:"retry_after"`
}
