package workers

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultSweepInterval is how often expired storage entries are dropped
const DefaultSweepInterval = 5 * time.Minute

// ExpiringStore is a storage whose expired entries can be dropped in bulk
type ExpiringStore interface {
	Namespace() string
	CleanExpired(ctx context.Context) int
}

// Sweeper periodically removes expired entries from a set of storages.
// It runs as an orchestrator module: Init starts it, Destroy stops it.
type Sweeper struct {
	stores   []ExpiringStore
	interval time.Duration
	logger   *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSweeper creates a sweeper over stores
func NewSweeper(interval time.Duration, logger *zap.Logger, stores ...ExpiringStore) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{
		stores:   stores,
		interval: interval,
		logger:   logger,
	}
}

// Init runs a first sweep and starts the periodic one
func (s *Sweeper) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return nil
	}

	s.Sweep(ctx)

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.run(runCtx, s.done)

	s.logger.Info("storage sweeper started",
		zap.Duration("interval", s.interval),
		zap.Int("stores", len(s.stores)))
	return nil
}

// Destroy stops the periodic sweep and waits for a running one
func (s *Sweeper) Destroy(ctx context.Context) error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Sweeper) run(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep cleans every store once and returns the number of removed entries
func (s *Sweeper) Sweep(ctx context.Context) int {
	total := 0
	for _, store := range s.stores {
		removed := store.CleanExpired(ctx)
		if removed > 0 {
			s.logger.Debug("expired entries removed",
				zap.String("namespace", store.Namespace()),
				zap.Int("removed", removed))
		}
		total += removed
	}
	return total
}
