// Package segment derives the identity a bucket is scoped to from request
// attributes, and builds the composite key addressing that bucket's actor.
package segment

import (
	"fmt"
	"strings"

	"github.com/gatewaylabs/ratelimit/pkg/headers"
	"github.com/gatewaylabs/ratelimit/pkg/policy"
)

const (
	// keyPrefix namespaces bucket keys in shared stores.
	keyPrefix = "rl"
	// maxValueLen caps sanitized segment values.
	maxValueLen = 256
	// maxOrgLen caps sanitized organization ids.
	maxOrgLen = 128
)

// Identity is the resolved segment of one request. It is derived fresh per
// request and never persisted.
type Identity struct {
	Type policy.SegmentType
	// Name is the property name for SegmentProperty identities.
	Name string
	// Value is the sanitized user id or property value. Empty for global.
	Value string
}

// PropertySource exposes the request attributes segments are derived from.
// Lookups are case-insensitive. The gateway backs this with its header map.
type PropertySource interface {
	// Property returns the named request property, if present.
	Property(name string) (string, bool)
	// UserID returns the caller-supplied user identifier, if present.
	UserID() (string, bool)
}

// ExtractionError reports a required identity that was absent from the
// request, naming the header the caller should have sent.
type ExtractionError struct {
	Segment policy.SegmentType
	Missing string // the expected header
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("%s segment requires the %s header", e.Segment, e.Missing)
}

// Extract resolves the identity for a policy's segment spec.
//
// Global always succeeds. User and Property identities are hard errors when
// the backing attribute is missing or empty: silently falling back to a
// shared bucket would let callers dodge their declared per-user limits.
func Extract(spec policy.Segment, source PropertySource) (Identity, error) {
	switch spec.Type {
	case policy.SegmentGlobal:
		return Identity{Type: policy.SegmentGlobal}, nil

	case policy.SegmentUser:
		userID, ok := source.UserID()
		if !ok || strings.TrimSpace(userID) == "" {
			return Identity{}, &ExtractionError{
				Segment: policy.SegmentUser,
				Missing: headers.GatewayUserID,
			}
		}
		return Identity{
			Type:  policy.SegmentUser,
			Value: SanitizeValue(userID),
		}, nil

	case policy.SegmentProperty:
		value, ok := source.Property(spec.Name)
		if !ok || strings.TrimSpace(value) == "" {
			return Identity{}, &ExtractionError{
				Segment: policy.SegmentProperty,
				Missing: headers.GatewayPropertyPrefix + spec.Name,
			}
		}
		return Identity{
			Type:  policy.SegmentProperty,
			Name:  spec.Name,
			Value: SanitizeValue(value),
		}, nil

	default:
		return Identity{}, fmt.Errorf("unknown segment type %q", spec.Type)
	}
}

// BuildKey composes the deterministic bucket key for (org, identity, unit).
// Components are colon-joined in fixed order; sanitization guarantees no
// component contains the delimiter, so distinct identities cannot collide.
func BuildKey(orgID string, id Identity, unit policy.Unit) string {
	parts := []string{keyPrefix, SanitizeOrgID(orgID)}
	switch id.Type {
	case policy.SegmentUser:
		parts = append(parts, "user", id.Value)
	case policy.SegmentProperty:
		parts = append(parts, "prop", id.Name, id.Value)
	default:
		parts = append(parts, "global")
	}
	parts = append(parts, string(unit))
	return strings.Join(parts, ":")
}

// SanitizeValue normalizes a raw segment value: colons become underscores
// (they are the key delimiter), control characters are stripped, and the
// result is capped at 256 characters.
func SanitizeValue(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		switch {
		case r == ':':
			b.WriteRune('_')
		case r < 0x20 || r == 0x7f:
			// dropped
		default:
			b.WriteRune(r)
		}
	}
	s := b.String()
	if len(s) > maxValueLen {
		s = s[:maxValueLen]
	}
	return s
}

// SanitizeOrgID reduces an organization id to [A-Za-z0-9_-], replacing
// anything else with an underscore, capped at 128 characters.
func SanitizeOrgID(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	s := b.String()
	if len(s) > maxOrgLen {
		s = s[:maxOrgLen]
	}
	return s
}

// MapSource adapts a plain property map plus optional user id to
// PropertySource. Property lookups are case-insensitive.
type MapSource struct {
	props  map[string]string
	userID string
}

// NewMapSource builds a MapSource. Keys are lower-cased once at
// construction.
func NewMapSource(props map[string]string, userID string) *MapSource {
	normalized := make(map[string]string, len(props))
	for k, v := range props {
		normalized[strings.ToLower(k)] = v
	}
	return &MapSource{props: normalized, userID: userID}
}

func (s *MapSource) Property(name string) (string, bool) {
	v, ok := s.props[strings.ToLower(name)]
	return v, ok
}

func (s *MapSource) UserID() (string, bool) {
	return s.userID, s.userID != ""
}
