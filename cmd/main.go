package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/gatewaylabs/ratelimit/pkg/apiserver"
	"github.com/gatewaylabs/ratelimit/pkg/bucket"
	"github.com/gatewaylabs/ratelimit/pkg/config"
	"github.com/gatewaylabs/ratelimit/pkg/observability"
	"github.com/gatewaylabs/ratelimit/pkg/ratelimit"
	"github.com/gatewaylabs/ratelimit/pkg/rlsserver"
)

func main() {
	// Parse command-line flags
	var (
		configPath  = flag.String("config", "config/config.yaml", "Path to the configuration file")
		apiPort     = flag.Int("api-port", 0, "Port for the admin HTTP API (overrides config)")
		metricsPort = flag.Int("metrics-port", 0, "Port for Prometheus metrics (overrides config)")
		rlsPort     = flag.Int("rls-port", 0, "Port for the Envoy rate limit gRPC service (overrides config)")
	)
	flag.Parse()

	// Initialize logging (zap) from environment.
	if _, err := observability.InitLoggerFromEnv(); err != nil {
		// Fallback to stderr since logger initialization failed
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			observability.Fatalf("Config file not found: %s", *configPath)
		}
		observability.Fatalf("Failed to load config: %v", err)
	}
	if *apiPort > 0 {
		cfg.API.Port = *apiPort
	}
	if *metricsPort > 0 {
		cfg.Metrics.Port = *metricsPort
	}
	if *rlsPort > 0 {
		cfg.RLS.Port = *rlsPort
	}

	store, err := newStore(cfg)
	if err != nil {
		observability.Fatalf("Failed to initialize %s store: %v", cfg.Store.Backend, err)
	}
	observability.Infof("Bucket store backend: %s", cfg.Store.Backend)

	buckets := bucket.New(store)
	limiter := ratelimit.New(buckets, ratelimit.Config{
		FailureMode:      ratelimit.FailureMode(cfg.FailureMode),
		DefaultCostCents: cfg.DefaultCostCents,
	})

	// Start metrics server
	go func() {
		http.Handle("/metrics", promhttp.Handler())
		metricsAddr := fmt.Sprintf(":%d", cfg.Metrics.Port)
		observability.Infof("Starting metrics server on %s", metricsAddr)
		if err := http.ListenAndServe(metricsAddr, nil); err != nil {
			observability.Errorf("Metrics server error: %v", err)
		}
	}()

	// Start the Envoy rate limit gRPC service if enabled
	if cfg.RLS.Enabled {
		go func() {
			if err := rlsserver.Init(cfg.RLS.Port, limiter); err != nil {
				observability.Errorf("Rate limit gRPC service error: %v", err)
			}
		}()
	}

	observability.Infof("Starting rate limit service (failure mode: %s)", cfg.FailureMode)
	if err := apiserver.Init(cfg.API.Port, limiter, buckets); err != nil {
		observability.Fatalf("API server error: %v", err)
	}
}

// newStore builds the bucket store selected in the config.
func newStore(cfg *config.Config) (bucket.Store, error) {
	switch cfg.Store.Backend {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Store.Redis.Addr,
			Password: cfg.Store.Redis.Password,
			DB:       cfg.Store.Redis.DB,
		})
		return bucket.NewRedisStore(context.Background(), client)
	default:
		return bucket.NewMemoryStore(), nil
	}
}
