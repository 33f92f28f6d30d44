package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// Storage backings
const (
	BackendMemory = "memory"
	BackendBadger = "badger"
	BackendRedis  = "redis"
)

// Config holds all configuration for the page runtime
type Config struct {
	// Server configuration
	HTTPPort int    `env:"PAGEKIT_HTTP_PORT" envDefault:"8080"`
	GRPCPort int    `env:"PAGEKIT_GRPC_PORT" envDefault:"9090"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Redis configuration
	Redis RedisConfig

	// Storage configuration
	Storage StorageConfig

	// Event bus configuration
	Events EventsConfig

	// Orchestrator configuration
	Orchestrator OrchestratorConfig

	// Worker configuration
	Workers WorkerConfig

	// Timeouts
	Timeouts TimeoutConfig
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	Password string `env:"REDIS_PASS"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`

	// Connection pool settings
	PoolSize     int           `env:"REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	MaxRetries   int           `env:"REDIS_MAX_RETRIES" envDefault:"3"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT" envDefault:"3s"`
}

// StorageConfig holds the persistent and session storage configuration
type StorageConfig struct {
	Backend    string        `env:"STORAGE_BACKEND" envDefault:"memory"`
	Namespace  string        `env:"STORAGE_NAMESPACE" envDefault:"app"`
	DefaultTTL time.Duration `env:"STORAGE_DEFAULT_TTL" envDefault:"0s"`
	BadgerDir  string        `env:"STORAGE_BADGER_DIR"`
	KeyPrefix  string        `env:"STORAGE_REDIS_KEY_PREFIX" envDefault:"pagekit:kv:"`

	// SweepInterval is how often expired entries are removed
	SweepInterval time.Duration `env:"STORAGE_SWEEP_INTERVAL" envDefault:"5m"`
}

// EventsConfig holds event bus configuration
type EventsConfig struct {
	HistorySize int `env:"EVENTS_HISTORY_SIZE" envDefault:"100"`

	// Journal mirrors bus events into a Redis stream
	Journal       bool   `env:"EVENTS_JOURNAL" envDefault:"false"`
	JournalStream string `env:"EVENTS_JOURNAL_STREAM" envDefault:"pagekit:events"`
	JournalMaxLen int64  `env:"EVENTS_JOURNAL_MAX_LEN" envDefault:"10000"`
}

// OrchestratorConfig holds module lifecycle configuration
type OrchestratorConfig struct {
	MaxPasses int `env:"ORCHESTRATOR_MAX_PASSES" envDefault:"3"`
	MaxErrors int `env:"ORCHESTRATOR_MAX_ERRORS" envDefault:"100"`

	// Capability flags
	EnabledCapabilities  []string `env:"CAPABILITIES_ENABLED" envSeparator:","`
	DisabledCapabilities []string `env:"CAPABILITIES_DISABLED" envSeparator:","`
	CapabilitiesDefault  bool     `env:"CAPABILITIES_DEFAULT" envDefault:"true"`
}

// WorkerConfig holds worker pool configuration
type WorkerConfig struct {
	PoolSize            int           `env:"WORKER_POOL_SIZE" envDefault:"1"`
	QueueSize           int           `env:"WORKER_QUEUE_SIZE" envDefault:"1024"`
	HealthCheckInterval time.Duration `env:"WORKER_HEALTH_CHECK_INTERVAL" envDefault:"30s"`
}

// TimeoutConfig holds various timeout configurations
type TimeoutConfig struct {
	InitTimeout     time.Duration `env:"TIMEOUT_INIT" envDefault:"30s"`
	ShutdownTimeout time.Duration `env:"TIMEOUT_SHUTDOWN" envDefault:"30s"`
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate server ports
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.GRPCPort < 1 || c.GRPCPort > 65535 {
		return fmt.Errorf("invalid gRPC port: %d", c.GRPCPort)
	}

	// Validate storage config
	switch c.Storage.Backend {
	case BackendMemory, BackendBadger:
	case BackendRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis address is required for the redis storage backend")
		}
	default:
		return fmt.Errorf("unsupported storage backend: %s (must be memory, badger, or redis)", c.Storage.Backend)
	}
	if c.Storage.Namespace == "" {
		return fmt.Errorf("storage namespace is required")
	}
	if c.Storage.DefaultTTL < 0 {
		return fmt.Errorf("storage default TTL must not be negative")
	}
	if c.Storage.SweepInterval <= 0 {
		return fmt.Errorf("storage sweep interval must be positive")
	}

	// Validate event config
	if c.Events.HistorySize < 1 {
		return fmt.Errorf("event history size must be at least 1")
	}
	if c.Events.Journal && c.Redis.Addr == "" {
		return fmt.Errorf("redis address is required for the event journal")
	}

	// Validate orchestrator config
	if c.Orchestrator.MaxPasses < 1 {
		return fmt.Errorf("orchestrator max passes must be at least 1")
	}

	// Validate worker config
	if c.Workers.PoolSize < 1 {
		return fmt.Errorf("worker pool size must be at least 1")
	}
	if c.Workers.QueueSize < 1 {
		return fmt.Errorf("worker queue size must be at least 1")
	}

	// Validate log level
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.LogLevel)
	}

	return nil
}

// NeedsRedis reports whether any component connects to Redis
func (c *Config) NeedsRedis() bool {
	return c.Storage.Backend == BackendRedis || c.Events.Journal
}

// GetHTTPAddr returns the HTTP server address
func (c *Config) GetHTTPAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// GetGRPCAddr returns the gRPC server address
func (c *Config) GetGRPCAddr() string {
	return fmt.Sprintf(":%d", c.GRPCPort)
}
