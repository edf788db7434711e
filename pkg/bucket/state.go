package bucket

import (
	"github.com/gatewaylabs/ratelimit/pkg/policy"
)

// State is the persisted state of one bucket. It is owned exclusively by
// the actor addressing its key and mutated only under that actor's lock.
type State struct {
	// Tokens is the current allowance. Clamped to Capacity on refill; may go
	// negative for cents buckets (overspend tolerance).
	Tokens float64 `json:"tokens"`
	// LastRefillMs is the wall-clock timestamp of the last refill
	// computation, in milliseconds.
	LastRefillMs int64 `json:"last_refill_ms"`
	// Capacity, WindowSeconds and Unit are the last-seen policy parameters.
	Capacity      float64     `json:"capacity"`
	WindowSeconds int         `json:"window_seconds"`
	Unit          policy.Unit `json:"unit"`
	// PolicyHash detects when the caller's declared policy for this key
	// changed since the state was written.
	PolicyHash uint64 `json:"policy_hash"`
}

// ConsumeRequest carries one admission/deduction call against a bucket.
type ConsumeRequest struct {
	Capacity      float64
	WindowSeconds int
	Unit          policy.Unit
	// Cost is the amount to deduct. Always 1 for request buckets; the
	// actual (or conventionally 0 for pre-checks) cents for cents buckets.
	Cost float64
	// PolicyString is the canonical policy, echoed in the response and
	// hashed for drift detection.
	PolicyString string
	// CheckOnly evaluates admission without deducting tokens.
	CheckOnly bool
}

// ConsumeResponse is the outcome of one consume call.
type ConsumeResponse struct {
	Allowed bool
	// Limit is the bucket capacity in the policy's unit.
	Limit float64
	// Remaining is the floored, non-negative token balance after the call.
	Remaining float64
	// ResetSeconds is the time until the bucket can admit the request's
	// cost again. Zero when the bucket already has capacity.
	ResetSeconds int
	// Policy echoes the request's policy string.
	Policy string
}
