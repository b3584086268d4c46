package ratelimiter

import (
	"context"
	"fmt"
	"math"
	"time"
)

// Config defines the limits for a single limiter instance.
type Config struct {
	// Window is the length of the counting window.
	Window time.Duration
	// Max is the number of requests allowed per window.
	Max int
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	if c.Window <= 0 {
		return fmt.Errorf("%w: window must be > 0, got %v", ErrInvalidConfig, c.Window)
	}
	if c.Max <= 0 {
		return fmt.Errorf("%w: max must be > 0, got %d", ErrInvalidConfig, c.Max)
	}
	return nil
}

// Result describes the outcome of a single limiter check.
type Result struct {
	// Allowed reports whether the request fits in the current window.
	Allowed bool
	// Limit is the configured maximum for the window.
	Limit int
	// Remaining is the number of requests left in the current window.
	Remaining int
	// ResetAt is when the current window ends and the counter resets.
	ResetAt time.Time
}

// RetryAfter returns how long the caller should wait before retrying.
// Returns zero when the request was allowed or the window already ended.
func (r *Result) RetryAfter() time.Duration {
	if r == nil || r.Allowed {
		return 0
	}
	return max(0, time.Until(r.ResetAt))
}

// RetryAfterSeconds returns RetryAfter rounded up to whole seconds,
// suitable for the Retry-After response header.
func (r *Result) RetryAfterSeconds() int {
	return int(math.Ceil(r.RetryAfter().Seconds()))
}

// Store holds window counters keyed by caller identity.
// Implementations must be safe for concurrent use.
type Store interface {
	// Hit records one request for key and reports whether it fits in the
	// current window. A rejected request must not advance the counter.
	Hit(ctx context.Context, key string, cfg Config) (Result, error)
	// Forgive undoes one previously counted request for key, used when
	// successful responses are excluded from the limit.
	Forgive(ctx context.Context, key string) error
	// Reset removes the counter for key.
	Reset(ctx context.Context, key string) error
}

// Limiter binds a Config to a Store.
type Limiter struct {
	store Store
	cfg   Config
}

// New creates a Limiter using the given store and configuration.
func New(store Store, cfg Config) (*Limiter, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store is required", ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Limiter{store: store, cfg: cfg}, nil
}

// Allow records one request for key and reports the window state.
func (l *Limiter) Allow(ctx context.Context, key string) (*Result, error) {
	result, err := l.store.Hit(ctx, key, l.cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return &result, nil
}

// Forgive undoes one previously counted request for key.
func (l *Limiter) Forgive(ctx context.Context, key string) error {
	return l.store.Forgive(ctx, key)
}

// Config returns the limiter's configuration.
func (l *Limiter) Config() Config {
	return l.cfg
}
