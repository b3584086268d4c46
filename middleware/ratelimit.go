package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/shopguard/shopguard/core/handler"
	"github.com/shopguard/shopguard/core/logger"
	"github.com/shopguard/shopguard/core/response"
	"github.com/shopguard/shopguard/pkg/clientip"
	"github.com/shopguard/shopguard/pkg/ratelimiter"
)

// rateLimitExceeded is the rejection body for throttled requests.
type rateLimitExceeded struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retryAfter"`
}

// RateLimitConfig configures the rate limiting middleware.
type RateLimitConfig struct {
	// Skip defines a function to skip middleware execution for specific requests
	Skip func(ctx handler.Context) bool
	// Limiter is the rate limiting instance to use
	Limiter *ratelimiter.Limiter
	// KeyExtractor defines how to extract the rate limiting key from requests (default: client IP)
	KeyExtractor func(ctx handler.Context) string
	// ErrorHandler defines how to handle rate limit violations (default: 429 with retry hint)
	ErrorHandler func(ctx handler.Context, result *ratelimiter.Result) handler.Response
	// OmitHeaders suppresses the X-RateLimit-* headers, which are otherwise
	// attached to every response
	OmitHeaders bool
	// SkipSuccessful excludes requests that end in a 2xx response from the
	// count, refunding them after the response is written
	SkipSuccessful bool
	// Logger receives limiter store failures (default: discard)
	Logger *slog.Logger
}

// RateLimit creates a rate limiting middleware with the provided configuration.
// It enforces a per-caller request ceiling within a rolling window, attaches
// quota headers to every response, and rejects excess traffic with 429 and a
// Retry-After hint. Panics if no limiter is provided.
//
// A store failure never blocks the request: the middleware logs and lets the
// request through unthrottled.
func RateLimit[C handler.Context](cfg RateLimitConfig) handler.Middleware[C] {
	if cfg.Limiter == nil {
		panic("ratelimit middleware: limiter is required")
	}

	// Default to the client address as the caller identity.
	if cfg.KeyExtractor == nil {
		cfg.KeyExtractor = func(ctx handler.Context) string {
			if ip, ok := GetClientIP(ctx); ok {
				return ip
			}
			return clientip.GetIP(ctx.Request())
		}
	}

	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = func(ctx handler.Context, result *ratelimiter.Result) handler.Response {
			return response.JSONWithStatus(rateLimitExceeded{
				Error:      "RATE_LIMIT_EXCEEDED",
				Message:    "Too many requests, slow down",
				RetryAfter: result.RetryAfterSeconds(),
			}, http.StatusTooManyRequests)
		}
	}

	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return func(next handler.HandlerFunc[C]) handler.HandlerFunc[C] {
		return func(ctx C) handler.Response {
			if cfg.Skip != nil && cfg.Skip(ctx) {
				return next(ctx)
			}

			key := cfg.KeyExtractor(ctx)
			result, err := cfg.Limiter.Allow(ctx, key)
			if err != nil {
				cfg.Logger.ErrorContext(ctx, "rate limiter unavailable, failing open",
					slog.String("key", key), logger.Error(err))
				return next(ctx)
			}

			if !result.Allowed {
				resp := cfg.ErrorHandler(ctx, result)
				if !cfg.OmitHeaders {
					resp = wrapWithRateLimitHeaders(resp, result)
				}
				return resp
			}

			resp := next(ctx)

			if cfg.SkipSuccessful {
				resp = wrapWithSuccessRefund(resp, cfg.Limiter, key)
			}
			if !cfg.OmitHeaders {
				resp = wrapWithRateLimitHeaders(resp, result)
			}

			return resp
		}
	}
}

// wrapWithRateLimitHeaders adds standard rate limiting headers to the response:
// X-RateLimit-Limit, X-RateLimit-Remaining, X-RateLimit-Reset on every
// request, plus Retry-After (whole seconds, rounded up) when blocked.
func wrapWithRateLimitHeaders(resp handler.Response, result *ratelimiter.Result) handler.Response {
	return func(w http.ResponseWriter, r *http.Request) error {
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		// Clamp remaining count to zero to prevent confusing negative values
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(max(0, result.Remaining)))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

		if !result.Allowed {
			if retryAfter := result.RetryAfterSeconds(); retryAfter > 0 {
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			}
		}

		return resp(w, r)
	}
}

// wrapWithSuccessRefund observes the final response status and refunds the
// counted request when the handler succeeded.
func wrapWithSuccessRefund(resp handler.Response, limiter *ratelimiter.Limiter, key string) handler.Response {
	return func(w http.ResponseWriter, r *http.Request) error {
		sw := &statusObserver{ResponseWriter: w}
		if err := resp(sw, r); err != nil {
			return err
		}
		if sw.status >= 200 && sw.status < 300 {
			_ = limiter.Forgive(r.Context(), key)
		}
		return nil
	}
}

// statusObserver records the status code written to the underlying writer.
type statusObserver struct {
	http.ResponseWriter
	status int
}

func (w *statusObserver) WriteHeader(status int) {
	if w.status == 0 {
		w.status = status
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusObserver) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}
