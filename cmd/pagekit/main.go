package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/aescanero/pagekit/internal/application/orchestrator"
	"github.com/aescanero/pagekit/internal/application/workers"
	"github.com/aescanero/pagekit/internal/config"
	"github.com/aescanero/pagekit/pkg/adapters/events/redis"
	"github.com/aescanero/pagekit/pkg/adapters/metrics/prometheus"
	badgerstorage "github.com/aescanero/pagekit/pkg/adapters/storage/badger"
	"github.com/aescanero/pagekit/pkg/adapters/storage/memory"
	redisstorage "github.com/aescanero/pagekit/pkg/adapters/storage/redis"
	"github.com/aescanero/pagekit/pkg/api/grpc"
	"github.com/aescanero/pagekit/pkg/api/http"
	"github.com/aescanero/pagekit/pkg/api/websocket"
	"github.com/aescanero/pagekit/pkg/capability"
	"github.com/aescanero/pagekit/pkg/eventbus"
	"github.com/aescanero/pagekit/pkg/ports"
	"github.com/aescanero/pagekit/pkg/storage"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Version is set by build flags
	Version   = "dev"
	BuildTime = "unknown"
)

// Module priorities; higher initializes first and is destroyed last
const (
	priorityWorkers = 1000
	priorityJournal = 500
	prioritySweeper = 100
	priorityAPI     = 10
)

// moduleEntry is one module the binary registers with the orchestrator
type moduleEntry struct {
	name   string
	module any
	opts   orchestrator.RegisterOptions
}

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger := initLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("starting page runtime",
		zap.String("version", Version),
		zap.String("build_time", BuildTime))

	ctx := context.Background()

	// Metrics
	registry := promclient.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metricsCollector := prometheus.NewCollector(registry)

	// Deferred event dispatch runs on the worker pool
	workerPool := workers.NewPool(
		cfg.Workers.PoolSize,
		cfg.Workers.QueueSize,
		metricsCollector,
		logger,
		cfg.Workers.HealthCheckInterval,
	)

	bus := eventbus.New(logger, eventbus.Options{
		HistorySize: cfg.Events.HistorySize,
		Scheduler:   workerPool,
		Metrics:     metricsCollector,
	})

	// Initialize Redis client
	var redisClient *goredis.Client
	if cfg.NeedsRedis() {
		redisClient = goredis.NewClient(&goredis.Options{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			MaxRetries:   cfg.Redis.MaxRetries,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
	}

	// Storage: a persistent namespace on the configured backing and a
	// session namespace that only lives as long as the process
	backend, closeBackend, err := newStorageBackend(cfg, redisClient, logger)
	if err != nil {
		logger.Fatal("failed to open storage backend", zap.Error(err))
	}

	persistent := storage.New(ctx, backend, storage.Options{
		Namespace:  cfg.Storage.Namespace,
		DefaultTTL: cfg.Storage.DefaultTTL,
		Publisher:  bus,
		Metrics:    metricsCollector,
	}, logger)

	session := storage.New(ctx, memory.NewBackend(), storage.Options{
		Namespace: cfg.Storage.Namespace + "-session",
		Publisher: bus,
		Metrics:   metricsCollector,
	}, logger)

	// Initialize application components
	orchestratorMgr := orchestrator.NewManager(orchestrator.Options{
		MaxPasses: cfg.Orchestrator.MaxPasses,
		MaxErrors: cfg.Orchestrator.MaxErrors,
		Capabilities: capability.NewStatic(
			cfg.Orchestrator.EnabledCapabilities,
			cfg.Orchestrator.DisabledCapabilities,
			cfg.Orchestrator.CapabilitiesDefault,
		),
		Publisher: bus,
		Metrics:   metricsCollector,
	}, logger)

	httpServer := http.NewServer(&http.Config{
		Port:         cfg.HTTPPort,
		Orchestrator: orchestratorMgr,
		Bus:          bus,
		Storages:     []*storage.Storage{persistent, session},
		Health:       workerPool.Health(),
		Gatherer:     registry,
		Logger:       logger,
	})
	httpServer.SetupWebSocket(websocket.NewHandler(bus, logger))

	grpcServer := grpc.NewServer(&grpc.Config{
		Port:         cfg.GRPCPort,
		Orchestrator: orchestratorMgr,
		Bus:          bus,
		Logger:       logger,
	})

	sweeper := workers.NewSweeper(cfg.Storage.SweepInterval, logger, persistent, session)

	modules := []moduleEntry{
		{"workers", workerPool, orchestrator.RegisterOptions{
			Required: true,
			Priority: priorityWorkers,
		}},
		{"sweeper", sweeper, orchestrator.RegisterOptions{
			CapabilityFlag: "storage-sweeper",
			Priority:       prioritySweeper,
		}},
		{"http", httpServer, orchestrator.RegisterOptions{
			Required:     true,
			Priority:     priorityAPI,
			Dependencies: []string{"workers"},
		}},
		{"grpc", grpcServer, orchestrator.RegisterOptions{
			CapabilityFlag: "grpc-health",
			Priority:       priorityAPI,
			Dependencies:   []string{"workers"},
		}},
	}
	if cfg.Events.Journal {
		modules = append(modules, moduleEntry{"journal", redis.NewJournal(redisClient, bus, redis.Options{
			Stream: cfg.Events.JournalStream,
			MaxLen: cfg.Events.JournalMaxLen,
		}, logger), orchestrator.RegisterOptions{
			CapabilityFlag: "event-journal",
			Priority:       priorityJournal,
			Dependencies:   []string{"workers"},
		}})
	}

	for _, m := range modules {
		if err := orchestratorMgr.Register(m.name, m.module, m.opts); err != nil {
			logger.Fatal("failed to register module", zap.String("module", m.name), zap.Error(err))
		}
	}

	initCtx, cancelInit := context.WithTimeout(ctx, cfg.Timeouts.InitTimeout)
	err = orchestratorMgr.InitializeAll(initCtx)
	cancelInit()

	if err == nil {
		logger.Info("page runtime started",
			zap.Int("http_port", cfg.HTTPPort),
			zap.Int("grpc_port", cfg.GRPCPort),
			zap.String("storage_backing", persistent.Backing()),
			zap.Int("modules", len(orchestratorMgr.Modules())))

		// Wait for interrupt signal
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh

		logger.Info("received shutdown signal")
	} else {
		logger.Error("page runtime failed to start", zap.Error(err))
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Timeouts.ShutdownTimeout)
	defer cancel()

	orchestratorMgr.DestroyAll(shutdownCtx)

	if err := closeBackend(); err != nil {
		logger.Error("storage backend close error", zap.Error(err))
	}

	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logger.Error("Redis close error", zap.Error(err))
		}
	}

	logger.Info("page runtime shut down complete")

	if err != nil {
		os.Exit(1)
	}
}

// newStorageBackend opens the configured persistent backing and returns its closer
func newStorageBackend(cfg *config.Config, client *goredis.Client, logger *zap.Logger) (ports.StorageBackend, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Storage.Backend {
	case config.BackendBadger:
		b, err := badgerstorage.Open(cfg.Storage.BadgerDir, logger)
		if err != nil {
			return nil, nil, err
		}
		return b, b.Close, nil
	case config.BackendRedis:
		return redisstorage.NewBackend(client, cfg.Storage.KeyPrefix, logger), noop, nil
	default:
		return memory.NewBackend(), noop, nil
	}
}

// initLogger initializes the logger based on log level
func initLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(zapLevel)
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := config.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}

	return logger
}
