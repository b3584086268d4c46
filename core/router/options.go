package router

import (
	"log/slog"
	"net/http"

	"github.com/shopguard/shopguard/core/handler"
)

// Option configures a router during construction.
type Option[C handler.Context] func(*mux[C])

// WithErrorHandler sets the error handler for the router.
func WithErrorHandler[C handler.Context](eh handler.ErrorHandler[C]) Option[C] {
	return func(m *mux[C]) {
		if eh != nil {
			m.errorHandler = eh
		}
	}
}

// WithContextFactory sets the factory used to build custom context types.
// Required when C is not *router.Context.
func WithContextFactory[C handler.Context](factory func(http.ResponseWriter, *http.Request, map[string]string) C) Option[C] {
	return func(m *mux[C]) {
		if factory != nil {
			m.newContext = factory
		}
	}
}

// WithLogger sets the logger used for panics that occur after the
// response has been written.
func WithLogger[C handler.Context](logger *slog.Logger) Option[C] {
	return func(m *mux[C]) {
		if logger != nil {
			m.logger = logger
		}
	}
}
