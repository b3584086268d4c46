package ratelimiter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// counter tracks requests for one key in the current window.
type counter struct {
	count       int
	windowStart time.Time
	window      time.Duration // Used by the sweep to decide staleness
}

// MemoryStore implements Store using process-local in-memory counters.
type MemoryStore struct {
	mu       sync.RWMutex
	counters map[string]*counter

	// Configuration
	cleanupInterval time.Duration
	shutdownTimeout time.Duration
	logger          *slog.Logger

	// State management
	ctx     context.Context
	cancel  context.CancelFunc
	running atomic.Bool
	wg      sync.WaitGroup

	// Observability metrics
	countersCreated atomic.Int64
	countersRemoved atomic.Int64
}

// MemoryStoreStats provides observability metrics for monitoring and debugging.
type MemoryStoreStats struct {
	CountersCreated int64 // Total number of counters created
	CountersRemoved int64 // Total number of lapsed counters removed
	ActiveCounters  int   // Current number of active counters
	IsRunning       bool  // Whether the sweep goroutine is running
}

// MemoryStoreOption configures a MemoryStore.
type MemoryStoreOption func(*MemoryStore)

// WithCleanupInterval sets the sweep interval for removing lapsed counters.
func WithCleanupInterval(interval time.Duration) MemoryStoreOption {
	return func(ms *MemoryStore) {
		ms.cleanupInterval = interval
	}
}

// WithShutdownTimeout sets the graceful shutdown timeout.
func WithShutdownTimeout(timeout time.Duration) MemoryStoreOption {
	return func(ms *MemoryStore) {
		if timeout > 0 {
			ms.shutdownTimeout = timeout
		}
	}
}

// WithLogger sets the logger for internal operations.
func WithLogger(logger *slog.Logger) MemoryStoreOption {
	return func(ms *MemoryStore) {
		if logger != nil {
			ms.logger = logger
		}
	}
}

// NewMemoryStore creates a new in-memory counter store.
// Call Start() to begin the background sweep.
func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	ms := &MemoryStore{
		counters:        make(map[string]*counter),
		cleanupInterval: 5 * time.Minute,
		shutdownTimeout: 30 * time.Second,
		logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, opt := range opts {
		opt(ms)
	}

	return ms
}

// Hit records one request for key within the fixed window. A counter whose
// window has lapsed is reset to count=1 with a fresh window start. A request
// that would exceed cfg.Max is rejected without advancing the counter.
func (ms *MemoryStore) Hit(ctx context.Context, key string, cfg Config) (Result, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := time.Now()
	c, exists := ms.counters[key]

	if !exists {
		c = &counter{count: 1, windowStart: now, window: cfg.Window}
		ms.counters[key] = c
		ms.countersCreated.Add(1)
		return Result{
			Allowed:   true,
			Limit:     cfg.Max,
			Remaining: cfg.Max - 1,
			ResetAt:   now.Add(cfg.Window),
		}, nil
	}

	c.window = cfg.Window

	if now.Sub(c.windowStart) > cfg.Window {
		c.count = 1
		c.windowStart = now
		return Result{
			Allowed:   true,
			Limit:     cfg.Max,
			Remaining: cfg.Max - 1,
			ResetAt:   now.Add(cfg.Window),
		}, nil
	}

	resetAt := c.windowStart.Add(cfg.Window)

	if c.count >= cfg.Max {
		return Result{
			Allowed:   false,
			Limit:     cfg.Max,
			Remaining: 0,
			ResetAt:   resetAt,
		}, nil
	}

	c.count++
	return Result{
		Allowed:   true,
		Limit:     cfg.Max,
		Remaining: max(0, cfg.Max-c.count),
		ResetAt:   resetAt,
	}, nil
}

// Forgive undoes one counted request for key. Missing or empty counters
// are a no-op: the window may have reset while the request was in flight.
func (ms *MemoryStore) Forgive(ctx context.Context, key string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if c, ok := ms.counters[key]; ok && c.count > 0 {
		c.count--
	}
	return nil
}

// Reset removes the counter for key.
func (ms *MemoryStore) Reset(ctx context.Context, key string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	delete(ms.counters, key)
	return nil
}

// Start begins the background sweep goroutine. This is a blocking operation
// that runs until the context is cancelled. Use Run() for errgroup pattern
// or call this in a goroutine.
func (ms *MemoryStore) Start(ctx context.Context) error {
	ms.mu.Lock()
	if ms.cancel != nil {
		ms.mu.Unlock()
		return fmt.Errorf("memory store already started")
	}

	if ms.cleanupInterval <= 0 {
		ms.mu.Unlock()
		return fmt.Errorf("cleanup interval must be > 0, got %v (use WithCleanupInterval to configure)", ms.cleanupInterval)
	}

	ms.ctx, ms.cancel = context.WithCancel(ctx)
	ms.mu.Unlock()

	ms.running.Store(true)
	defer ms.running.Store(false)

	ms.logger.InfoContext(ms.ctx, "rate limit counter sweep started",
		slog.Duration("cleanup_interval", ms.cleanupInterval))

	ticker := time.NewTicker(ms.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ms.ctx.Done():
			ms.logger.InfoContext(context.Background(), "rate limit counter sweep stopping")
			return ms.ctx.Err()
		case <-ticker.C:
			ms.sweepWithWait()
		}
	}
}

// Stop gracefully shuts down the background sweep with a timeout.
// Returns an error if the shutdown timeout is exceeded.
func (ms *MemoryStore) Stop() error {
	ms.mu.Lock()
	if ms.cancel == nil {
		ms.mu.Unlock()
		return fmt.Errorf("memory store not started")
	}

	cancel := ms.cancel
	ms.cancel = nil
	ms.mu.Unlock()

	cancel()

	ctx, ctxCancel := context.WithTimeout(context.Background(), ms.shutdownTimeout)
	defer ctxCancel()

	done := make(chan struct{})
	go func() {
		ms.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		ms.logger.WarnContext(context.Background(), "memory store shutdown timeout exceeded",
			slog.Duration("timeout", ms.shutdownTimeout))
		return fmt.Errorf("shutdown timeout exceeded after %s", ms.shutdownTimeout)
	}
}

// Run provides errgroup compatibility for coordinated lifecycle management.
// Returns a function that starts the sweep, monitors context cancellation,
// and performs graceful shutdown when the context is cancelled.
func (ms *MemoryStore) Run(ctx context.Context) func() error {
	return func() error {
		errCh := make(chan error, 1)
		go func() {
			errCh <- ms.Start(ctx)
		}()

		select {
		case <-ctx.Done():
			_ = ms.Stop() // Ignore stop error in normal shutdown
			<-errCh       // Wait for Start() to exit
			return nil
		case err := <-errCh:
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}
	}
}

// sweepWithWait tracks the sweep with the WaitGroup so Stop can wait for it.
func (ms *MemoryStore) sweepWithWait() {
	ms.mu.RLock()
	if ms.cancel == nil {
		ms.mu.RUnlock()
		return
	}
	ms.wg.Add(1)
	ms.mu.RUnlock()

	defer ms.wg.Done()
	ms.removeLapsed()
}

// removeLapsed deletes counters whose window has fully elapsed,
// bounding memory growth under churning caller identities.
func (ms *MemoryStore) removeLapsed() {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := time.Now()

	removed := 0
	for key, c := range ms.counters {
		if now.Sub(c.windowStart) > c.window {
			delete(ms.counters, key)
			removed++
		}
	}

	if removed > 0 {
		ms.countersRemoved.Add(int64(removed))
	}
}

// Stats returns current memory store statistics for observability and monitoring.
// This method is thread-safe and can be called at any time.
func (ms *MemoryStore) Stats() MemoryStoreStats {
	ms.mu.RLock()
	isRunning := ms.cancel != nil
	active := len(ms.counters)
	ms.mu.RUnlock()

	return MemoryStoreStats{
		CountersCreated: ms.countersCreated.Load(),
		CountersRemoved: ms.countersRemoved.Load(),
		ActiveCounters:  active,
		IsRunning:       isRunning,
	}
}

// Healthcheck validates that the memory store is operational.
// Returns nil if healthy, or an error describing the health issue.
func (ms *MemoryStore) Healthcheck(ctx context.Context) error {
	stats := ms.Stats()

	if ms.cleanupInterval > 0 && !stats.IsRunning {
		return fmt.Errorf("counter sweep is configured but not running")
	}

	return nil
}
