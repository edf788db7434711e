// Package headers centralizes the HTTP header names exchanged between the
// gateway and the rate-limiting core. Request headers are matched
// case-insensitively; the canonical lowercase form is kept here.
package headers

// Request headers consumed by the core.
const (
	// RateLimitPolicy declares the caller's rate-limit policy, e.g.
	// "1000;w=3600;u=cents;s=user". Absent header means no rate limiting.
	RateLimitPolicy = "x-ratelimit-policy"

	// RateLimitCostCents carries an explicit request cost in cents for
	// u=cents policies, when the gateway can price the request upfront.
	RateLimitCostCents = "x-ratelimit-cost-cents"

	// GatewayOrgID identifies the organization owning the request. Injected
	// by the auth layer once the API key is resolved.
	GatewayOrgID = "x-gateway-org-id"

	// GatewayUserID identifies the end user on whose behalf the request is
	// made. Injected by the auth layer, required for s=user policies.
	GatewayUserID = "x-gateway-user-id"

	// GatewayPropertyPrefix prefixes caller-defined request properties.
	// "x-gateway-property-tenant: acme" exposes property "tenant" for
	// s=<property> policies.
	GatewayPropertyPrefix = "x-gateway-property-"
)

// Response headers produced by the core (IETF RateLimit header field names).
const (
	RateLimitLimit     = "RateLimit-Limit"
	RateLimitRemaining = "RateLimit-Remaining"
	RateLimitPolicyOut = "RateLimit-Policy"
	RateLimitReset     = "RateLimit-Reset"
)
