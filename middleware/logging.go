package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/shopguard/shopguard/core/handler"
	"github.com/shopguard/shopguard/core/logger"
)

// LoggingConfig configures the request/response logging middleware.
type LoggingConfig struct {
	// Skip defines a function to skip middleware execution for specific requests
	Skip func(ctx handler.Context) bool
	// Logger is the slog logger to use (default: slog.Default())
	Logger *slog.Logger
	// LogLevel for request logging (default: slog.LevelInfo)
	LogLevel slog.Level
	// SlowRequestThreshold logs slow requests at warning level (default: 5s)
	SlowRequestThreshold time.Duration
	// Component name for structured logging
	Component string
}

// Logging creates a request/response logging middleware with default configuration.
func Logging[C handler.Context]() handler.Middleware[C] {
	return LoggingWithConfig[C](LoggingConfig{})
}

// LoggingWithConfig creates a request/response logging middleware with custom
// configuration. One line is emitted per request after the response is
// written, carrying method, path, status, client address, request ID and
// latency. Requests slower than the threshold are logged at warning level.
func LoggingWithConfig[C handler.Context](cfg LoggingConfig) handler.Middleware[C] {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.SlowRequestThreshold <= 0 {
		cfg.SlowRequestThreshold = 5 * time.Second
	}
	if cfg.Component == "" {
		cfg.Component = "http"
	}

	return func(next handler.HandlerFunc[C]) handler.HandlerFunc[C] {
		return func(ctx C) handler.Response {
			if cfg.Skip != nil && cfg.Skip(ctx) {
				return next(ctx)
			}

			start := time.Now()
			resp := next(ctx)

			requestID, _ := GetRequestID(ctx)
			clientIP, _ := GetClientIP(ctx)

			return func(w http.ResponseWriter, r *http.Request) error {
				sw := &statusObserver{ResponseWriter: w}
				err := resp(sw, r)
				elapsed := time.Since(start)

				level := cfg.LogLevel
				if elapsed > cfg.SlowRequestThreshold {
					level = slog.LevelWarn
				}

				cfg.Logger.LogAttrs(r.Context(), level, "request completed",
					logger.Component(cfg.Component),
					logger.Method(r.Method),
					logger.Path(r.URL.Path),
					logger.StatusCode(sw.status),
					logger.ClientIP(clientIP),
					logger.RequestID(requestID),
					logger.Latency(elapsed),
					logger.Error(err),
				)

				return err
			}
		}
	}
}
