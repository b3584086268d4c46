// Package ratelimiter implements per-key request rate limiting with a
// fixed-window counter that resets wholesale when the window elapses.
//
// State lives in an injected Store so tests construct isolated instances
// instead of sharing hidden globals. MemoryStore is the process-local
// implementation: a mutex-guarded counter map with a background sweep
// that garbage-collects counters whose window has fully elapsed.
//
// Basic usage:
//
//	store := ratelimiter.NewMemoryStore()
//	go store.Start(ctx) // background counter GC
//
//	limiter, err := ratelimiter.New(store, ratelimiter.Config{
//		Window: time.Minute,
//		Max:    100,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	result, err := limiter.Allow(ctx, clientIP)
//	if !result.Allowed {
//		// reject with 429, result.RetryAfter() hints when to retry
//	}
//
// Preset configurations for common endpoint classes (authentication,
// order creation, general API, uploads) are provided in presets.go.
//
// The window is a reset-on-expiry counter, not a continuously sliding
// average: a caller can burst up to 2*Max across a window boundary.
// That trade-off keeps Hit O(1) and allocation-free on the hot path.
package ratelimiter
