package middleware

import (
	"github.com/shopguard/shopguard/core/handler"
	"github.com/shopguard/shopguard/core/response"
)

// Caller is the authenticated identity of the current request, as
// established by the upstream authentication layer. Both fields empty
// means an anonymous caller.
type Caller struct {
	UserID    string
	SessionID string
}

// callerContextKey is used as a key for storing the caller in request context.
type callerContextKey struct{}

// IdentityConfig configures the caller identity middleware.
type IdentityConfig struct {
	// Skip defines a function to skip middleware execution for specific requests
	Skip func(ctx handler.Context) bool
	// Resolver extracts the caller from the request (session lookup, token
	// claims, etc.). Returning a zero Caller marks the request anonymous.
	Resolver func(ctx handler.Context) (Caller, error)
}

// Identity creates a middleware that resolves the caller identity and
// stores it in the request context for downstream consumers such as the
// idempotency guard's ownership binding.
// Panics if no resolver is provided.
func Identity[C handler.Context](cfg IdentityConfig) handler.Middleware[C] {
	if cfg.Resolver == nil {
		panic("identity middleware: resolver is required")
	}

	return func(next handler.HandlerFunc[C]) handler.HandlerFunc[C] {
		return func(ctx C) handler.Response {
			if cfg.Skip != nil && cfg.Skip(ctx) {
				return next(ctx)
			}

			caller, err := cfg.Resolver(ctx)
			if err != nil {
				return response.Error(response.ErrUnauthorized.WithError(err))
			}

			ctx.SetValue(callerContextKey{}, caller)

			return next(ctx)
		}
	}
}

// GetCaller retrieves the caller identity from the request context.
// Returns the caller and a boolean indicating whether one was resolved.
func GetCaller(ctx handler.Context) (Caller, bool) {
	caller, ok := ctx.Value(callerContextKey{}).(Caller)
	return caller, ok
}
