// Package policy parses the compact rate-limit policy declared by callers
// in the x-ratelimit-policy header.
//
// Grammar (fields are order-fixed, optional fields carry a literal prefix):
//
//	<quota>;w=<window>[;u=<unit>][;s=<segment>]
//
//	1000;w=3600                 1000 requests per hour, global
//	5000;w=86400;u=cents        5000 cents per day, global
//	100;w=60;s=user             100 requests per minute, per user
//	10000;w=3600;s=organization 10000 requests per hour, per "organization" property
//
// A parsed policy is immutable. No partially-valid policy is ever returned:
// any malformed field yields a *ValidationError naming the field and the
// raw value.
package policy

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Unit is the denomination of a policy's quota.
type Unit string

const (
	// UnitRequest counts admitted requests; cost is always 1 and known upfront.
	UnitRequest Unit = "request"
	// UnitCents counts spend; actual cost is known only after the upstream
	// call completes.
	UnitCents Unit = "cents"
)

// SegmentType selects the dimension a bucket is scoped to.
type SegmentType string

const (
	SegmentGlobal   SegmentType = "global"
	SegmentUser     SegmentType = "user"
	SegmentProperty SegmentType = "property"
)

// Segment is the parsed s= field. Name is set only for SegmentProperty and
// is always lower-cased.
type Segment struct {
	Type SegmentType
	Name string
}

// Policy is a fully validated rate-limit policy.
type Policy struct {
	// Quota is the bucket capacity in Unit. Always > 0. Decimals are legal
	// so cents policies can express fractional-cent quotas.
	Quota float64
	// WindowSeconds is the time to refill the bucket from empty to full.
	// Always within [60, 31536000].
	WindowSeconds int
	Unit          Unit
	Segment       Segment
	// Raw is the trimmed header value the policy was parsed from.
	Raw string
}

// ValidationError identifies the malformed field of a rejected policy.
type ValidationError struct {
	Field   string // "policy", "quota", "window"
	Raw     string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid rate limit policy (%s): %s", e.Field, e.Message)
}

const (
	// MinWindowSeconds is the smallest accepted refill window.
	MinWindowSeconds = 60
	// MaxWindowSeconds is one year, the largest accepted refill window.
	MaxWindowSeconds = 31536000
)

// policyPattern matches the whole policy string. Anything the pattern does
// not admit (negative or scientific-notation quotas, unknown units, extra
// fields, illegal segment characters) is rejected structurally.
var policyPattern = regexp.MustCompile(`^(\d+(?:\.\d+)?);w=(\d+)(?:;u=((?i:request|cents)))?(?:;s=([\w-]+))?$`)

// Parse parses a policy header value.
//
// An empty or whitespace-only value parses to (nil, nil): no rate limiting
// applies. Any other value either yields a complete policy or a
// *ValidationError.
func Parse(raw string) (*Policy, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, nil
	}

	for _, r := range trimmed {
		if r < 0x20 || r == 0x7f {
			return nil, &ValidationError{
				Field:   "policy",
				Raw:     raw,
				Message: "policy contains control characters",
			}
		}
	}

	m := policyPattern.FindStringSubmatch(trimmed)
	if m == nil {
		return nil, &ValidationError{
			Field:   "policy",
			Raw:     raw,
			Message: "expected format <quota>;w=<window>[;u=<unit>][;s=<segment>]",
		}
	}

	quota, err := strconv.ParseFloat(m[1], 64)
	if err != nil || math.IsInf(quota, 0) {
		return nil, &ValidationError{
			Field:   "quota",
			Raw:     raw,
			Message: fmt.Sprintf("quota %q is out of range", m[1]),
		}
	}
	if quota <= 0 {
		return nil, &ValidationError{
			Field:   "quota",
			Raw:     raw,
			Message: "quota must be greater than zero",
		}
	}

	window, err := strconv.Atoi(m[2])
	if err != nil {
		return nil, &ValidationError{
			Field:   "window",
			Raw:     raw,
			Message: fmt.Sprintf("window %q is out of range", m[2]),
		}
	}
	if window < MinWindowSeconds {
		return nil, &ValidationError{
			Field:   "window",
			Raw:     raw,
			Message: fmt.Sprintf("window must be at least %d seconds", MinWindowSeconds),
		}
	}
	if window > MaxWindowSeconds {
		return nil, &ValidationError{
			Field:   "window",
			Raw:     raw,
			Message: "window must not exceed 1 year (31536000 seconds)",
		}
	}

	unit := UnitRequest
	if m[3] != "" {
		unit = Unit(strings.ToLower(m[3]))
	}

	segment := Segment{Type: SegmentGlobal}
	if m[4] != "" {
		if strings.EqualFold(m[4], "user") {
			segment = Segment{Type: SegmentUser}
		} else {
			segment = Segment{Type: SegmentProperty, Name: strings.ToLower(m[4])}
		}
	}

	return &Policy{
		Quota:         quota,
		WindowSeconds: window,
		Unit:          unit,
		Segment:       segment,
		Raw:           trimmed,
	}, nil
}

// BuildPolicyString re-serializes a policy in canonical form, omitting
// default-valued fields (u=request, global segment). The canonical form is
// what goes into the RateLimit-Policy response header.
func BuildPolicyString(p *Policy) string {
	if p == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(formatQuota(p.Quota))
	b.WriteString(";w=")
	b.WriteString(strconv.Itoa(p.WindowSeconds))
	if p.Unit != UnitRequest {
		b.WriteString(";u=")
		b.WriteString(string(p.Unit))
	}
	switch p.Segment.Type {
	case SegmentUser:
		b.WriteString(";s=user")
	case SegmentProperty:
		b.WriteString(";s=")
		b.WriteString(p.Segment.Name)
	}
	return b.String()
}

// IsValid reports whether raw would parse. Empty values are valid: they
// simply mean no rate limiting.
func IsValid(raw string) bool {
	_, err := Parse(raw)
	return err == nil
}

func formatQuota(q float64) string {
	if q == math.Trunc(q) {
		return strconv.FormatFloat(q, 'f', 0, 64)
	}
	return strconv.FormatFloat(q, 'f', -1, 64)
}
