// Package config defines the rate limiter's YAML configuration and the
// global loader used by the daemon and servers.
package config

import (
	"fmt"
)

// Config is the top-level service configuration.
type Config struct {
	// FailureMode decides what internal limiter errors mean for a request:
	// "fail-open" admits, "fail-closed" denies. Defaults to fail-open.
	FailureMode string `yaml:"failure_mode,omitempty"`

	// DefaultCostCents, when positive, is deducted upfront for u=cents
	// policies that carry no explicit cost header. Zero keeps the
	// two-phase check/record protocol.
	DefaultCostCents float64 `yaml:"default_cost_cents,omitempty"`

	Store   StoreConfig   `yaml:"store,omitempty"`
	API     APIConfig     `yaml:"api,omitempty"`
	Metrics MetricsConfig `yaml:"metrics,omitempty"`
	RLS     RLSConfig     `yaml:"rls,omitempty"`
}

// StoreConfig selects where bucket state lives.
type StoreConfig struct {
	// Backend is "memory" or "redis". Memory is single-node only.
	Backend string      `yaml:"backend,omitempty"`
	Redis   RedisConfig `yaml:"redis,omitempty"`
}

// RedisConfig carries connection settings for the redis backend.
type RedisConfig struct {
	Addr     string `yaml:"addr,omitempty"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
}

// APIConfig configures the admin HTTP API.
type APIConfig struct {
	Port int `yaml:"port,omitempty"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Port int `yaml:"port,omitempty"`
}

// RLSConfig configures the Envoy rate limit gRPC service.
type RLSConfig struct {
	Enabled bool `yaml:"enabled,omitempty"`
	Port    int  `yaml:"port,omitempty"`
}

const (
	DefaultAPIPort     = 8080
	DefaultMetricsPort = 9190
	DefaultRLSPort     = 8081
)

// applyDefaults fills unset fields after unmarshal.
func (c *Config) applyDefaults() {
	if c.FailureMode == "" {
		c.FailureMode = "fail-open"
	}
	if c.Store.Backend == "" {
		c.Store.Backend = "memory"
	}
	if c.API.Port == 0 {
		c.API.Port = DefaultAPIPort
	}
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.RLS.Port == 0 {
		c.RLS.Port = DefaultRLSPort
	}
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	switch c.FailureMode {
	case "fail-open", "fail-closed":
	default:
		return fmt.Errorf("failure_mode must be \"fail-open\" or \"fail-closed\", got %q", c.FailureMode)
	}

	if c.DefaultCostCents < 0 {
		return fmt.Errorf("default_cost_cents must not be negative, got %v", c.DefaultCostCents)
	}

	switch c.Store.Backend {
	case "memory":
	case "redis":
		if c.Store.Redis.Addr == "" {
			return fmt.Errorf("store.redis.addr is required when store.backend is \"redis\"")
		}
	default:
		return fmt.Errorf("store.backend must be \"memory\" or \"redis\", got %q", c.Store.Backend)
	}

	for name, port := range map[string]int{
		"api.port":     c.API.Port,
		"metrics.port": c.Metrics.Port,
		"rls.port":     c.RLS.Port,
	} {
		if port < 1 || port > 65535 {
			return fmt.Errorf("%s must be in 1..65535, got %d", name, port)
		}
	}
	return nil
}
