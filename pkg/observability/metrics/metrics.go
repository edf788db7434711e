// Package metrics defines the Prometheus instruments exported by the
// rate-limiting core. Instruments are registered with the default registry
// via promauto; cmd/main.go serves them through promhttp.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ChecksTotal counts admission checks by policy unit and outcome
	// (allowed, denied, error).
	ChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ratelimit_checks_total",
		Help: "Admission checks by policy unit and outcome.",
	}, []string{"unit", "outcome"})

	// RecordUsageTotal counts post-hoc usage recordings by outcome
	// (recorded, skipped, error).
	RecordUsageTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ratelimit_record_usage_total",
		Help: "Post-hoc usage recordings by outcome.",
	}, []string{"outcome"})

	// PolicyParseErrorsTotal counts malformed policy headers by field.
	PolicyParseErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ratelimit_policy_parse_errors_total",
		Help: "Malformed rate-limit policy headers by offending field.",
	}, []string{"field"})

	// ConsumeDuration observes the latency of a full bucket consume
	// (load, refill, decide, persist).
	ConsumeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ratelimit_consume_duration_seconds",
		Help:    "Latency of a bucket consume operation.",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14),
	})

	// ActiveBuckets tracks the number of bucket actors resident in memory.
	ActiveBuckets = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ratelimit_buckets_active",
		Help: "Bucket actors currently resident in memory.",
	})

	// StoreErrorsTotal counts bucket store failures by operation
	// (load, save, delete).
	StoreErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ratelimit_store_errors_total",
		Help: "Bucket store failures by operation.",
	}, []string{"op"})
)
