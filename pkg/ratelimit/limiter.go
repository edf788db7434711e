// Package ratelimit is the admission façade used by the gateway.
//
// For every inbound request the gateway asks Check whether the request may
// proceed against its caller-declared policy. The limiter parses the
// policy header, derives the segment identity, addresses the right bucket
// actor and turns its answer into an allow/deny decision plus RateLimit-*
// response headers.
//
// Cost-denominated (u=cents) policies run a two-phase protocol, because a
// request's true cost is known only after the upstream model responds:
//
//  1. Check      → pre-check (check-only, cost 0): any positive balance
//     authorizes attempting the call.
//  2. RecordUsage → post-hoc deduction of the actual cents spent. The
//     balance may go negative; the next pre-check then denies until
//     refill brings it back above zero.
//
// Request-denominated policies deduct preemptively inside Check, since
// their cost is always exactly 1.
//
// Every internal failure resolves locally into allow or deny via the
// failure mode: fail-open (default) preserves availability, fail-closed
// preserves strict enforcement. Nothing raises past this package.
package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gatewaylabs/ratelimit/pkg/bucket"
	"github.com/gatewaylabs/ratelimit/pkg/headers"
	"github.com/gatewaylabs/ratelimit/pkg/observability/logging"
	"github.com/gatewaylabs/ratelimit/pkg/observability/metrics"
	"github.com/gatewaylabs/ratelimit/pkg/policy"
	"github.com/gatewaylabs/ratelimit/pkg/segment"
)

// FailureMode selects what an internal rate-limiter error means for the
// request being checked.
type FailureMode string

const (
	// FailOpen admits requests when the limiter itself errors.
	FailOpen FailureMode = "fail-open"
	// FailClosed denies requests when the limiter itself errors.
	FailClosed FailureMode = "fail-closed"
)

// Config carries the limiter's operational settings.
type Config struct {
	// FailureMode is the default for requests that don't override it.
	// Zero value means FailOpen.
	FailureMode FailureMode
	// DefaultCostCents, when positive, is deducted upfront for u=cents
	// policies without an explicit cost instead of the two-phase
	// check/record protocol.
	DefaultCostCents float64
}

// Limiter orchestrates policy parsing, segment extraction and bucket
// consumption into one admission decision per request.
type Limiter struct {
	buckets *bucket.Buckets
	cfg     Config
}

// New creates a Limiter on top of a bucket registry.
func New(buckets *bucket.Buckets, cfg Config) *Limiter {
	if cfg.FailureMode == "" {
		cfg.FailureMode = FailOpen
	}
	return &Limiter{buckets: buckets, cfg: cfg}
}

// CheckRequest describes one inbound request to admit or reject.
type CheckRequest struct {
	// PolicyHeader is the raw x-ratelimit-policy value. Empty means no
	// rate limiting applies.
	PolicyHeader string
	// OrganizationID isolates buckets between organizations. Resolved by
	// the gateway's auth layer.
	OrganizationID string
	// UserID is the caller-supplied user identifier, required by s=user
	// policies.
	UserID string
	// Properties are the caller-defined request properties, required by
	// s=<property> policies.
	Properties map[string]string
	// CostCents is the explicit request cost for u=cents policies whose
	// price is known upfront. Nil when unknown.
	CostCents *float64
	// FailureMode overrides the limiter's default when non-empty.
	FailureMode FailureMode
}

// CheckResult is the admission decision for one request.
type CheckResult struct {
	Allowed bool
	// StatusCode is http.StatusOK or http.StatusTooManyRequests.
	StatusCode int
	// Headers are the RateLimit-* response headers to attach.
	Headers map[string]string
	// Limit and Remaining mirror the numeric header values for callers
	// that speak a binary protocol instead of HTTP headers.
	Limit     float64
	Remaining float64
	// ResetSeconds is the whole seconds until the deducted cost would be
	// available, zero when nothing is owed.
	ResetSeconds int
	// Policy is the parsed policy, nil when no policy applied.
	Policy *policy.Policy
	// Err carries the internal error behind a fail-open/fail-closed
	// resolution, for logging. The request may still be allowed.
	Err error
}

// Check decides whether the request may proceed.
func (l *Limiter) Check(ctx context.Context, req CheckRequest) CheckResult {
	mode := l.failureMode(req.FailureMode)

	p, err := policy.Parse(req.PolicyHeader)
	if err != nil {
		var verr *policy.ValidationError
		if errors.As(err, &verr) {
			metrics.PolicyParseErrorsTotal.WithLabelValues(verr.Field).Inc()
		}
		logging.Warnf("ratelimit: policy parse error for org %s: %v", req.OrganizationID, err)
		return l.errorResult(mode, nil, err)
	}
	if p == nil {
		// No policy declared: no rate limiting, no headers.
		return CheckResult{Allowed: true, StatusCode: http.StatusOK, Headers: map[string]string{}}
	}

	source := segment.NewMapSource(req.Properties, req.UserID)
	identity, err := segment.Extract(p.Segment, source)
	if err != nil {
		logging.Warnf("ratelimit: segment extraction failed for org %s: %v", req.OrganizationID, err)
		return l.errorResult(mode, p, err)
	}

	cost, checkOnly, err := l.determineCost(p, req.CostCents)
	if err != nil {
		logging.Errorf("ratelimit: cost determination failed for org %s: %v", req.OrganizationID, err)
		return l.errorResult(mode, p, err)
	}

	canonical := policy.BuildPolicyString(p)
	key := segment.BuildKey(req.OrganizationID, identity, p.Unit)

	resp, err := l.buckets.Consume(ctx, key, bucket.ConsumeRequest{
		Capacity:      p.Quota,
		WindowSeconds: p.WindowSeconds,
		Unit:          p.Unit,
		Cost:          cost,
		PolicyString:  canonical,
		CheckOnly:     checkOnly,
	})
	if err != nil {
		logging.Errorf("ratelimit: bucket consume failed for key %s: %v", key, err)
		return l.errorResult(mode, p, err)
	}

	result := CheckResult{
		Allowed:      resp.Allowed,
		Limit:        resp.Limit,
		Remaining:    resp.Remaining,
		ResetSeconds: resp.ResetSeconds,
		Policy:       p,
		Headers: map[string]string{
			headers.RateLimitLimit:     formatAmount(resp.Limit),
			headers.RateLimitRemaining: formatAmount(resp.Remaining),
			headers.RateLimitPolicyOut: canonical,
		},
	}
	if resp.ResetSeconds > 0 {
		result.Headers[headers.RateLimitReset] = strconv.Itoa(resp.ResetSeconds)
	}
	if resp.Allowed {
		result.StatusCode = http.StatusOK
	} else {
		result.StatusCode = http.StatusTooManyRequests
	}
	return result
}

// RecordUsage deducts the actual cost of an already-served request from
// its cents bucket. It is best-effort by design: the request has been
// admitted and answered, so every failure here is logged and swallowed.
func (l *Limiter) RecordUsage(ctx context.Context, req CheckRequest, costCents float64) {
	p, err := policy.Parse(req.PolicyHeader)
	if err != nil || p == nil {
		metrics.RecordUsageTotal.WithLabelValues("skipped").Inc()
		return
	}
	if p.Unit != policy.UnitCents {
		// Request-unit policies deduct preemptively in Check.
		metrics.RecordUsageTotal.WithLabelValues("skipped").Inc()
		return
	}

	source := segment.NewMapSource(req.Properties, req.UserID)
	identity, err := segment.Extract(p.Segment, source)
	if err != nil {
		logging.Warnf("ratelimit: cannot record usage: %v", err)
		metrics.RecordUsageTotal.WithLabelValues("error").Inc()
		return
	}

	canonical := policy.BuildPolicyString(p)
	key := segment.BuildKey(req.OrganizationID, identity, p.Unit)

	resp, err := l.buckets.Consume(ctx, key, bucket.ConsumeRequest{
		Capacity:      p.Quota,
		WindowSeconds: p.WindowSeconds,
		Unit:          p.Unit,
		Cost:          costCents,
		PolicyString:  canonical,
	})
	if err != nil {
		logging.Warnf("ratelimit: failed to record %v cents for key %s: %v", costCents, key, err)
		metrics.RecordUsageTotal.WithLabelValues("error").Inc()
		return
	}
	logging.Debugf("ratelimit: recorded %v cents for key %s (remaining %v)", costCents, key, resp.Remaining)
	metrics.RecordUsageTotal.WithLabelValues("recorded").Inc()
}

func (l *Limiter) failureMode(override FailureMode) FailureMode {
	if override != "" {
		return override
	}
	return l.cfg.FailureMode
}

// determineCost resolves the deduction amount and protocol for a policy.
//
// Request buckets always cost exactly 1. Cents buckets use the explicit
// cost when the gateway priced the request upfront, else the configured
// default, else fall back to the two-phase protocol: a check-only call
// with cost 0 now, and the caller records actual spend later.
func (l *Limiter) determineCost(p *policy.Policy, explicit *float64) (cost float64, checkOnly bool, err error) {
	if p.Unit == policy.UnitRequest {
		return 1, false, nil
	}
	if explicit != nil {
		if *explicit < 0 {
			return 0, false, errors.New("explicit cost must not be negative")
		}
		return *explicit, false, nil
	}
	if l.cfg.DefaultCostCents > 0 {
		return l.cfg.DefaultCostCents, false, nil
	}
	return 0, true, nil
}

// errorResult resolves an internal error into a decision per the failure
// mode. The canonical policy header is still attached when a policy was
// parsed, so callers can see which policy the error occurred under.
func (l *Limiter) errorResult(mode FailureMode, p *policy.Policy, err error) CheckResult {
	allowed := mode != FailClosed
	result := CheckResult{
		Allowed: allowed,
		Policy:  p,
		Headers: map[string]string{},
		Err:     err,
	}
	if p != nil {
		result.Headers[headers.RateLimitPolicyOut] = policy.BuildPolicyString(p)
	}
	if allowed {
		result.StatusCode = http.StatusOK
	} else {
		result.StatusCode = http.StatusTooManyRequests
	}
	return result
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
