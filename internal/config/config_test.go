package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, 9090, cfg.GRPCPort)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, BackendMemory, cfg.Storage.Backend)
	assert.Equal(t, "app", cfg.Storage.Namespace)
	assert.Equal(t, 5*time.Minute, cfg.Storage.SweepInterval)
	assert.Equal(t, 100, cfg.Events.HistorySize)
	assert.Equal(t, 3, cfg.Orchestrator.MaxPasses)
	assert.True(t, cfg.Orchestrator.CapabilitiesDefault)
	assert.False(t, cfg.NeedsRedis())
	assert.Equal(t, ":8080", cfg.GetHTTPAddr())
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("PAGEKIT_HTTP_PORT", "8181")
	t.Setenv("STORAGE_BACKEND", "redis")
	t.Setenv("STORAGE_DEFAULT_TTL", "1h")
	t.Setenv("CAPABILITIES_DISABLED", "chat,newsletter")
	t.Setenv("EVENTS_JOURNAL", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8181, cfg.HTTPPort)
	assert.Equal(t, BackendRedis, cfg.Storage.Backend)
	assert.Equal(t, time.Hour, cfg.Storage.DefaultTTL)
	assert.Equal(t, []string{"chat", "newsletter"}, cfg.Orchestrator.DisabledCapabilities)
	assert.True(t, cfg.NeedsRedis())
}

func TestLoad_Invalid(t *testing.T) {
	t.Setenv("STORAGE_BACKEND", "cookies")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported storage backend")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg, err := Load()
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"bad http port", func(c *Config) { c.HTTPPort = 0 }, "invalid HTTP port"},
		{"bad grpc port", func(c *Config) { c.GRPCPort = 70000 }, "invalid gRPC port"},
		{"empty namespace", func(c *Config) { c.Storage.Namespace = "" }, "namespace is required"},
		{"negative ttl", func(c *Config) { c.Storage.DefaultTTL = -time.Second }, "must not be negative"},
		{"no sweep", func(c *Config) { c.Storage.SweepInterval = 0 }, "sweep interval"},
		{"no history", func(c *Config) { c.Events.HistorySize = 0 }, "history size"},
		{"no passes", func(c *Config) { c.Orchestrator.MaxPasses = 0 }, "max passes"},
		{"no workers", func(c *Config) { c.Workers.PoolSize = 0 }, "pool size"},
		{"redis without addr", func(c *Config) {
			c.Storage.Backend = BackendRedis
			c.Redis.Addr = ""
		}, "redis address is required"},
		{"log level", func(c *Config) { c.LogLevel = "trace" }, "invalid log level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}
