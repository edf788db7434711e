// Package bucket implements the per-key token-bucket state machines behind
// the rate limiter.
//
// One logical actor exists per bucket key. All consume calls for a key are
// serialized by that actor's lock, which is the entire correctness
// mechanism: the load → refill → decide → deduct → persist sequence runs as
// an atomic unit, so the arithmetic is race-free without versioning or
// distributed locks. Calls against different keys run fully in parallel.
//
// Refill is lazy. There are no background timers; elapsed time is credited
// on demand at call time, so a cold bucket costs nothing.
package bucket

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/gatewaylabs/ratelimit/pkg/observability/logging"
	"github.com/gatewaylabs/ratelimit/pkg/observability/metrics"
	"github.com/gatewaylabs/ratelimit/pkg/policy"
)

// Buckets is the registry of bucket actors, created lazily per key.
type Buckets struct {
	store  Store
	actors sync.Map // key → *actor
	now    func() time.Time
}

// Option configures a Buckets registry.
type Option func(*Buckets)

// WithClock overrides the time source. Tests use this to drive refill
// arithmetic deterministically.
func WithClock(now func() time.Time) Option {
	return func(b *Buckets) { b.now = now }
}

// New creates a registry backed by the given store.
func New(store Store, opts ...Option) *Buckets {
	b := &Buckets{store: store, now: time.Now}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

type actor struct {
	mu  sync.Mutex
	key string
}

func (b *Buckets) actorFor(key string) *actor {
	if v, ok := b.actors.Load(key); ok {
		return v.(*actor)
	}
	v, loaded := b.actors.LoadOrStore(key, &actor{key: key})
	if !loaded {
		metrics.ActiveBuckets.Inc()
	}
	return v.(*actor)
}

// Consume runs one admission/deduction call against the bucket at key.
//
// Malformed requests fail open: the call reports allowed with a full
// bucket and persists nothing, so they can never corrupt state. A non-nil
// error is returned only for store failures; the caller decides what a
// store failure means (fail-open vs fail-closed).
func (b *Buckets) Consume(ctx context.Context, key string, req ConsumeRequest) (ConsumeResponse, error) {
	if msg := validate(key, req); msg != "" {
		logging.Warnf("bucket: invalid consume request for %q: %s", key, msg)
		metrics.ChecksTotal.WithLabelValues(string(req.Unit), "error").Inc()
		return ConsumeResponse{
			Allowed:   true,
			Limit:     req.Capacity,
			Remaining: math.Max(0, math.Floor(req.Capacity)),
			Policy:    req.PolicyString,
		}, nil
	}

	a := b.actorFor(key)
	a.mu.Lock()
	defer a.mu.Unlock()

	started := time.Now()
	defer func() {
		metrics.ConsumeDuration.Observe(time.Since(started).Seconds())
	}()

	st, err := b.store.Load(ctx, key)
	if err != nil {
		metrics.StoreErrorsTotal.WithLabelValues("load").Inc()
		return ConsumeResponse{}, err
	}

	nowMs := b.now().UnixMilli()
	hash := xxhash.Sum64String(req.PolicyString)

	if st == nil {
		// First call for this key: a fresh bucket starts full.
		st = &State{
			Tokens:        req.Capacity,
			LastRefillMs:  nowMs,
			Capacity:      req.Capacity,
			WindowSeconds: req.WindowSeconds,
			Unit:          req.Unit,
			PolicyHash:    hash,
		}
	} else if st.PolicyHash != hash {
		// The caller's declared policy changed. Carry accumulated allowance
		// up to the new ceiling: tightening must not grant a free refill,
		// loosening must not wipe earned tokens.
		st.Tokens = math.Min(st.Tokens, req.Capacity)
		st.Capacity = req.Capacity
		st.WindowSeconds = req.WindowSeconds
		st.Unit = req.Unit
		st.PolicyHash = hash
	}

	refill(st, nowMs)

	refillRate := st.Capacity / float64(st.WindowSeconds)
	var allowed bool
	switch req.Unit {
	case policy.UnitCents:
		// Cost is unknown until the upstream call finishes, so any positive
		// balance authorizes attempting the call. Non-check calls record
		// actual spend and may push the balance negative; the next check
		// then denies until refill brings it back above zero. This tolerates
		// one request's worth of overspend per window.
		allowed = st.Tokens > 0
		if !req.CheckOnly {
			st.Tokens -= req.Cost
		}
	default:
		allowed = st.Tokens >= req.Cost
		if allowed && !req.CheckOnly {
			st.Tokens = math.Max(0, st.Tokens-req.Cost)
		}
	}

	remaining := math.Max(0, math.Floor(st.Tokens))
	resetSeconds := 0
	if needed := req.Cost - st.Tokens; needed > 0 {
		resetSeconds = int(math.Ceil(needed / refillRate))
	}
	if !allowed && resetSeconds == 0 {
		// A denied zero-cost pre-check on an exactly-empty bucket still
		// needs a positive retry hint.
		resetSeconds = 1
	}

	if err := b.store.Save(ctx, key, st, stateTTL(st)); err != nil {
		metrics.StoreErrorsTotal.WithLabelValues("save").Inc()
		return ConsumeResponse{}, err
	}

	outcome := "allowed"
	if !allowed {
		outcome = "denied"
	}
	metrics.ChecksTotal.WithLabelValues(string(req.Unit), outcome).Inc()

	return ConsumeResponse{
		Allowed:      allowed,
		Limit:        st.Capacity,
		Remaining:    remaining,
		ResetSeconds: resetSeconds,
		Policy:       req.PolicyString,
	}, nil
}

// GetState returns a read-only snapshot of the persisted state for key, or
// nil when none exists. No refill is applied; diagnostics see the state as
// stored.
func (b *Buckets) GetState(ctx context.Context, key string) (*State, error) {
	a := b.actorFor(key)
	a.mu.Lock()
	defer a.mu.Unlock()
	return b.store.Load(ctx, key)
}

// Reset administratively deletes the persisted state for key. The next
// consume call re-initializes a full bucket.
func (b *Buckets) Reset(ctx context.Context, key string) error {
	a := b.actorFor(key)
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := b.store.Delete(ctx, key); err != nil {
		metrics.StoreErrorsTotal.WithLabelValues("delete").Inc()
		return err
	}
	logging.Infof("bucket: reset %q", a.key)
	return nil
}

// refill credits tokens for the time elapsed since the last refill, clamped
// at capacity. Negative elapsed time (clock skew) credits nothing and keeps
// the cursor, so a later correct clock still refills from the old point.
func refill(st *State, nowMs int64) {
	elapsedMs := nowMs - st.LastRefillMs
	if elapsedMs <= 0 {
		return
	}
	elapsedSeconds := float64(elapsedMs) / 1000
	rate := st.Capacity / float64(st.WindowSeconds)
	st.Tokens = math.Min(st.Capacity, st.Tokens+elapsedSeconds*rate)
	st.LastRefillMs = nowMs
}

func validate(key string, req ConsumeRequest) string {
	switch {
	case key == "":
		return "empty bucket key"
	case !(req.Capacity > 0) || math.IsInf(req.Capacity, 0):
		return "capacity must be positive"
	case req.WindowSeconds < policy.MinWindowSeconds:
		return "window below minimum"
	case req.Unit != policy.UnitRequest && req.Unit != policy.UnitCents:
		return "unknown unit"
	case math.IsNaN(req.Cost) || math.IsInf(req.Cost, 0) || req.Cost < 0:
		return "cost must be a non-negative number"
	case req.PolicyString == "":
		return "empty policy string"
	default:
		return ""
	}
}

// stateTTL bounds how long a cold bucket survives in the store: two full
// windows is enough for any refill math that could still matter, since one
// window refills from empty to full.
func stateTTL(st *State) time.Duration {
	return 2 * time.Duration(st.WindowSeconds) * time.Second
}
