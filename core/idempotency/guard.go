package idempotency

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopguard/shopguard/core/logger"
)

// Request carries everything the Guard needs to judge one incoming request.
type Request struct {
	Key       string
	Endpoint  string
	Body      []byte
	UserID    string
	SessionID string
}

// Outcome is the Guard's verdict for a request that was not rejected.
type Outcome struct {
	// Replay is true when a previously recorded response must be returned
	// verbatim without invoking the handler.
	Replay bool
	// Status, ContentType and Body are the recorded response, set when
	// Replay is true.
	Status      int
	ContentType string
	Body        []byte
}

// Guard coordinates the idempotency ledger for mutating requests and runs
// the background sweep that purges expired records.
type Guard struct {
	store Store

	// Configuration
	retention       time.Duration
	pendingWindow   time.Duration
	cleanupInterval time.Duration
	shutdownTimeout time.Duration
	logger          *slog.Logger

	// Sweep state
	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	running atomic.Bool
	wg      sync.WaitGroup
}

// GuardOption configures a Guard.
type GuardOption func(*Guard)

// WithRetention sets how long resolved records are kept before the sweep
// removes them.
func WithRetention(d time.Duration) GuardOption {
	return func(g *Guard) {
		if d > 0 {
			g.retention = d
		}
	}
}

// WithPendingWindow sets how long an unresolved record is presumed to mark
// an in-flight request. Older pending records are treated as abandoned.
func WithPendingWindow(d time.Duration) GuardOption {
	return func(g *Guard) {
		if d > 0 {
			g.pendingWindow = d
		}
	}
}

// WithCleanupInterval sets the expiry sweep interval.
func WithCleanupInterval(d time.Duration) GuardOption {
	return func(g *Guard) {
		g.cleanupInterval = d
	}
}

// WithShutdownTimeout sets the graceful shutdown timeout for the sweep.
func WithShutdownTimeout(d time.Duration) GuardOption {
	return func(g *Guard) {
		if d > 0 {
			g.shutdownTimeout = d
		}
	}
}

// WithLogger sets the logger for guard operations.
func WithLogger(logger *slog.Logger) GuardOption {
	return func(g *Guard) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// NewGuard creates a Guard over the given ledger store.
// Call Start() to begin the background expiry sweep.
func NewGuard(store Store, opts ...GuardOption) (*Guard, error) {
	if store == nil {
		return nil, fmt.Errorf("idempotency: store is required")
	}

	g := &Guard{
		store:           store,
		retention:       24 * time.Hour,
		pendingWindow:   60 * time.Second,
		cleanupInterval: 15 * time.Minute,
		shutdownTimeout: 30 * time.Second,
		logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, opt := range opts {
		opt(g)
	}

	return g, nil
}

// Check judges one incoming request against the ledger.
//
// It returns a rejection error (ErrInvalidKey, ErrKeyMismatch,
// ErrKeyConflict, ErrInProgress) when the request must not reach the
// handler, an Outcome with Replay set when a recorded response must be
// returned, or a zero Outcome when the handler should run. Infrastructure
// failures are logged and degrade to "proceed": the safety layer must not
// become an outage vector for the operation it protects.
func (g *Guard) Check(ctx context.Context, req Request) (Outcome, error) {
	if req.Key == "" {
		return Outcome{}, nil
	}
	if !ValidKey(req.Key) {
		return Outcome{}, ErrInvalidKey
	}

	hash := RequestHash(req.Endpoint, req.Body)

	rec, err := g.store.Find(ctx, req.Key)
	switch {
	case err == nil:
		if !rec.Expired(time.Now()) {
			return g.judge(ctx, rec, req, hash)
		}
		// Expired records never short-circuit; fall through and claim the key.
	case errors.Is(err, ErrNotFound):
		// First sight of the key.
	default:
		g.logger.ErrorContext(ctx, "idempotency lookup failed, failing open",
			slog.String("key", req.Key), logger.Error(err))
		return Outcome{}, nil
	}

	now := time.Now()
	err = g.store.Create(ctx, &Record{
		Key:         req.Key,
		UserID:      req.UserID,
		SessionID:   req.SessionID,
		Endpoint:    req.Endpoint,
		RequestHash: hash,
		CreatedAt:   now,
		ExpiresAt:   now.Add(g.retention),
	})
	if err == nil {
		return Outcome{}, nil
	}

	if errors.Is(err, ErrDuplicateKey) {
		// Lost the creation race: a concurrent request claimed the key
		// between our lookup and create. Re-read and judge the winner's record.
		rec, err = g.store.Find(ctx, req.Key)
		if err != nil {
			g.logger.ErrorContext(ctx, "idempotency re-read after duplicate create failed, failing open",
				slog.String("key", req.Key), logger.Error(err))
			return Outcome{}, nil
		}
		return g.judge(ctx, rec, req, hash)
	}

	g.logger.ErrorContext(ctx, "idempotency record creation failed, failing open",
		slog.String("key", req.Key), logger.Error(err))
	return Outcome{}, nil
}

// judge applies the existing-record branch table.
func (g *Guard) judge(ctx context.Context, rec *Record, req Request, hash string) (Outcome, error) {
	if !rec.OwnedBy(req.UserID, req.SessionID) {
		return Outcome{}, ErrKeyMismatch
	}
	if rec.RequestHash != hash {
		return Outcome{}, ErrKeyConflict
	}

	if rec.Resolved() {
		// The stored bytes are returned as captured, whatever their shape;
		// replay never interprets the body.
		return Outcome{
			Replay:      true,
			Status:      rec.ResponseStatus,
			ContentType: rec.ResponseContentType,
			Body:        rec.ResponseBody,
		}, nil
	}

	if time.Since(rec.CreatedAt) <= g.pendingWindow {
		return Outcome{}, ErrInProgress
	}

	// Pending beyond the window: the prior attempt presumably crashed.
	// There is no heartbeat, so a still-running slow handler also lands
	// here and will be re-executed concurrently.
	g.logger.WarnContext(ctx, "abandoned pending idempotency record, re-executing",
		slog.String("key", rec.Key),
		slog.Duration("age", time.Since(rec.CreatedAt)))
	return Outcome{}, nil
}

// Resolve stores the handler's response on the record. Failures are
// logged and returned, but the caller must still deliver the response.
func (g *Guard) Resolve(ctx context.Context, key string, status int, contentType string, body []byte) error {
	if key == "" {
		return nil
	}
	if err := g.store.Resolve(ctx, key, status, contentType, body); err != nil {
		g.logger.ErrorContext(ctx, "failed to persist idempotent response",
			slog.String("key", key), slog.Int("status", status), logger.Error(err))
		return err
	}
	return nil
}

// Start begins the background expiry sweep. This is a blocking operation
// that runs until the context is cancelled. Use Run() for errgroup pattern
// or call this in a goroutine.
func (g *Guard) Start(ctx context.Context) error {
	g.mu.Lock()
	if g.cancel != nil {
		g.mu.Unlock()
		return fmt.Errorf("idempotency guard already started")
	}

	if g.cleanupInterval <= 0 {
		g.mu.Unlock()
		return fmt.Errorf("cleanup interval must be > 0, got %v (use WithCleanupInterval to configure)", g.cleanupInterval)
	}

	g.ctx, g.cancel = context.WithCancel(ctx)
	g.mu.Unlock()

	g.running.Store(true)
	defer g.running.Store(false)

	g.logger.InfoContext(g.ctx, "idempotency expiry sweep started",
		slog.Duration("cleanup_interval", g.cleanupInterval),
		slog.Duration("retention", g.retention))

	ticker := time.NewTicker(g.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-g.ctx.Done():
			g.logger.InfoContext(context.Background(), "idempotency expiry sweep stopping")
			return g.ctx.Err()
		case <-ticker.C:
			g.sweepWithWait()
		}
	}
}

// Stop gracefully shuts down the background sweep with a timeout.
func (g *Guard) Stop() error {
	g.mu.Lock()
	if g.cancel == nil {
		g.mu.Unlock()
		return fmt.Errorf("idempotency guard not started")
	}

	cancel := g.cancel
	g.cancel = nil
	g.mu.Unlock()

	cancel()

	ctx, ctxCancel := context.WithTimeout(context.Background(), g.shutdownTimeout)
	defer ctxCancel()

	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		g.logger.WarnContext(context.Background(), "idempotency guard shutdown timeout exceeded",
			slog.Duration("timeout", g.shutdownTimeout))
		return fmt.Errorf("shutdown timeout exceeded after %s", g.shutdownTimeout)
	}
}

// Run provides errgroup compatibility for coordinated lifecycle management.
func (g *Guard) Run(ctx context.Context) func() error {
	return func() error {
		errCh := make(chan error, 1)
		go func() {
			errCh <- g.Start(ctx)
		}()

		select {
		case <-ctx.Done():
			_ = g.Stop() // Ignore stop error in normal shutdown
			<-errCh      // Wait for Start() to exit
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
func (g *Guard) sweepWithWait() {
	g.mu.Lock()
	if g.cancel == nil {
		g.mu.Unlock()
		return
	}
	g.wg.Add(1)
	g.mu.Unlock()

	defer g.wg.Done()
	g.sweep()
}

// sweep purges expired records from the ledger.
func (g *Guard) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	removed, err := g.store.DeleteExpired(ctx, time.Now())
	if err != nil {
		g.logger.ErrorContext(ctx, "idempotency expiry sweep failed", logger.Error(err))
		return
	}
	if removed > 0 {
		g.logger.InfoContext(ctx, "purged expired idempotency records",
			slog.Int64("removed", removed))
	}
}

// Healthcheck validates that the guard's sweep is operational.
func (g *Guard) Healthcheck(ctx context.Context) error {
	if g.cleanupInterval > 0 && !g.running.Load() {
		return fmt.Errorf("expiry sweep is configured but not running")
	}
	return nil
}
