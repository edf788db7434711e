package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestParseAppliesDefaults(t *testing.T) {
	cfg, err := Parse(writeConfigFile(t, ""))
	require.NoError(t, err)

	assert.Equal(t, "fail-open", cfg.FailureMode)
	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Equal(t, DefaultAPIPort, cfg.API.Port)
	assert.Equal(t, DefaultMetricsPort, cfg.Metrics.Port)
	assert.Equal(t, DefaultRLSPort, cfg.RLS.Port)
	assert.False(t, cfg.RLS.Enabled, "RLS should be disabled by default")
	assert.Zero(t, cfg.DefaultCostCents)
}

func TestParseFullConfig(t *testing.T) {
	cfg, err := Parse(writeConfigFile(t, `
failure_mode: fail-closed
default_cost_cents: 2.5
store:
  backend: redis
  redis:
    addr: localhost:6379
    password: secret
    db: 3
api:
  port: 9090
metrics:
  port: 9191
rls:
  enabled: true
  port: 7001
`))
	require.NoError(t, err)

	assert.Equal(t, "fail-closed", cfg.FailureMode)
	assert.Equal(t, 2.5, cfg.DefaultCostCents)
	assert.Equal(t, "redis", cfg.Store.Backend)
	assert.Equal(t, "localhost:6379", cfg.Store.Redis.Addr)
	assert.Equal(t, "secret", cfg.Store.Redis.Password)
	assert.Equal(t, 3, cfg.Store.Redis.DB)
	assert.Equal(t, 9090, cfg.API.Port)
	assert.Equal(t, 9191, cfg.Metrics.Port)
	assert.True(t, cfg.RLS.Enabled)
	assert.Equal(t, 7001, cfg.RLS.Port)
}

func TestParseRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"bad failure mode", "failure_mode: explode", "failure_mode"},
		{"negative default cost", "default_cost_cents: -1", "default_cost_cents"},
		{"unknown store backend", "store:\n  backend: dynamodb", "store.backend"},
		{"redis without addr", "store:\n  backend: redis", "store.redis.addr"},
		{"port out of range", "api:\n  port: 70000", "api.port"},
		{"not yaml", "{{{", "parse"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(writeConfigFile(t, tc.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestParseMissingFile(t *testing.T) {
	_, err := Parse(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestReplaceAndGet(t *testing.T) {
	cfg := &Config{FailureMode: "fail-closed"}
	cfg.applyDefaults()
	Replace(cfg)
	assert.Same(t, cfg, Get())
}
