package ratelimiter_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopguard/shopguard/pkg/ratelimiter"
)

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     ratelimiter.Config
		wantErr bool
	}{
		{"valid", ratelimiter.Config{Window: time.Minute, Max: 100}, false},
		{"zero window", ratelimiter.Config{Window: 0, Max: 100}, true},
		{"negative window", ratelimiter.Config{Window: -time.Second, Max: 100}, true},
		{"zero max", ratelimiter.Config{Window: time.Minute, Max: 0}, true},
		{"negative max", ratelimiter.Config{Window: time.Minute, Max: -1}, true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ratelimiter.ErrInvalidConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	t.Run("nil store", func(t *testing.T) {
		t.Parallel()

		_, err := ratelimiter.New(nil, ratelimiter.Config{Window: time.Minute, Max: 10})
		assert.ErrorIs(t, err, ratelimiter.ErrInvalidConfig)
	})

	t.Run("invalid config", func(t *testing.T) {
		t.Parallel()

		_, err := ratelimiter.New(ratelimiter.NewMemoryStore(), ratelimiter.Config{})
		assert.ErrorIs(t, err, ratelimiter.ErrInvalidConfig)
	})

	t.Run("valid", func(t *testing.T) {
		t.Parallel()

		cfg := ratelimiter.Config{Window: time.Minute, Max: 10}
		limiter, err := ratelimiter.New(ratelimiter.NewMemoryStore(), cfg)
		require.NoError(t, err)
		assert.Equal(t, cfg, limiter.Config())
	})
}

func TestAllowCountsDownToRejection(t *testing.T) {
	t.Parallel()

	limiter, err := ratelimiter.New(ratelimiter.NewMemoryStore(), ratelimiter.Config{
		Window: time.Minute,
		Max:    3,
	})
	require.NoError(t, err)

	ctx := context.Background()

	for i, wantRemaining := range []int{2, 1, 0} {
		result, err := limiter.Allow(ctx, "caller-1")
		require.NoError(t, err)
		assert.True(t, result.Allowed, "request %d should be allowed", i+1)
		assert.Equal(t, 3, result.Limit)
		assert.Equal(t, wantRemaining, result.Remaining)
		assert.False(t, result.ResetAt.IsZero())
	}

	result, err := limiter.Allow(ctx, "caller-1")
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Equal(t, 0, result.Remaining)

	retryAfter := result.RetryAfterSeconds()
	assert.Greater(t, retryAfter, 55)
	assert.LessOrEqual(t, retryAfter, 60)
}

func TestRejectedRequestDoesNotConsumeQuota(t *testing.T) {
	t.Parallel()

	limiter, err := ratelimiter.New(ratelimiter.NewMemoryStore(), ratelimiter.Config{
		Window: time.Minute,
		Max:    1,
	})
	require.NoError(t, err)

	ctx := context.Background()

	first, err := limiter.Allow(ctx, "caller-1")
	require.NoError(t, err)
	require.True(t, first.Allowed)
	resetAt := first.ResetAt

	// Hammer the limiter: every rejection must leave the window untouched.
	for i := 0; i < 5; i++ {
		result, err := limiter.Allow(ctx, "caller-1")
		require.NoError(t, err)
		assert.False(t, result.Allowed)
		assert.Equal(t, resetAt.Unix(), result.ResetAt.Unix())
	}
}

func TestKeysAreIndependent(t *testing.T) {
	t.Parallel()

	limiter, err := ratelimiter.New(ratelimiter.NewMemoryStore(), ratelimiter.Config{
		Window: time.Minute,
		Max:    1,
	})
	require.NoError(t, err)

	ctx := context.Background()

	first, err := limiter.Allow(ctx, "caller-1")
	require.NoError(t, err)
	assert.True(t, first.Allowed)

	blocked, err := limiter.Allow(ctx, "caller-1")
	require.NoError(t, err)
	assert.False(t, blocked.Allowed)

	other, err := limiter.Allow(ctx, "caller-2")
	require.NoError(t, err)
	assert.True(t, other.Allowed)
}

func TestWindowResetsAfterExpiry(t *testing.T) {
	t.Parallel()

	limiter, err := ratelimiter.New(ratelimiter.NewMemoryStore(), ratelimiter.Config{
		Window: 50 * time.Millisecond,
		Max:    1,
	})
	require.NoError(t, err)

	ctx := context.Background()

	first, err := limiter.Allow(ctx, "caller-1")
	require.NoError(t, err)
	require.True(t, first.Allowed)

	blocked, err := limiter.Allow(ctx, "caller-1")
	require.NoError(t, err)
	require.False(t, blocked.Allowed)

	time.Sleep(60 * time.Millisecond)

	afterReset, err := limiter.Allow(ctx, "caller-1")
	require.NoError(t, err)
	assert.True(t, afterReset.Allowed)
	assert.Equal(t, 0, afterReset.Remaining)
}

func TestForgiveRestoresQuota(t *testing.T) {
	t.Parallel()

	limiter, err := ratelimiter.New(ratelimiter.NewMemoryStore(), ratelimiter.Config{
		Window: time.Minute,
		Max:    1,
	})
	require.NoError(t, err)

	ctx := context.Background()

	first, err := limiter.Allow(ctx, "caller-1")
	require.NoError(t, err)
	require.True(t, first.Allowed)

	require.NoError(t, limiter.Forgive(ctx, "caller-1"))

	second, err := limiter.Allow(ctx, "caller-1")
	require.NoError(t, err)
	assert.True(t, second.Allowed)
}

func TestRetryAfterZeroWhenAllowed(t *testing.T) {
	t.Parallel()

	result := &ratelimiter.Result{Allowed: true, ResetAt: time.Now().Add(time.Minute)}
	assert.Zero(t, result.RetryAfter())
	assert.Zero(t, result.RetryAfterSeconds())
}

func TestRetryAfterRoundsUp(t *testing.T) {
	t.Parallel()

	result := &ratelimiter.Result{Allowed: false, ResetAt: time.Now().Add(1200 * time.Millisecond)}
	assert.Equal(t, 2, result.RetryAfterSeconds())
}

type failingStore struct{}

func (failingStore) Hit(ctx context.Context, key string, cfg ratelimiter.Config) (ratelimiter.Result, error) {
	return ratelimiter.Result{}, errors.New("store down")
}

func (failingStore) Forgive(ctx context.Context, key string) error { return nil }
func (failingStore) Reset(ctx context.Context, key string) error   { return nil }

func TestAllowWrapsStoreErrors(t *testing.T) {
	t.Parallel()

	limiter, err := ratelimiter.New(failingStore{}, ratelimiter.Config{Window: time.Minute, Max: 1})
	require.NoError(t, err)

	_, err = limiter.Allow(context.Background(), "caller-1")
	assert.ErrorIs(t, err, ratelimiter.ErrStoreUnavailable)
}
