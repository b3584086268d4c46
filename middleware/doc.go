// Package middleware provides the composable request interceptors that make
// up the safety stack: idempotent-mutation handling, sliding-window rate
// limiting, caller identity, client IP extraction, request IDs, and
// request/response logging.
//
// The intended order in front of a business handler is rate limiter first,
// then idempotency guard, so rejected floods never touch the ledger:
//
//	r := router.New[*router.Context](
//		router.WithErrorHandler[*router.Context](response.JSONErrorHandler[*router.Context]),
//	)
//	r.Use(
//		middleware.RequestID[*router.Context](),
//		middleware.ClientIP[*router.Context](),
//		middleware.Identity[*router.Context](middleware.IdentityConfig{Resolver: resolveSession}),
//		middleware.RateLimit[*router.Context](middleware.RateLimitConfig{Limiter: limiter}),
//		middleware.Idempotency[*router.Context](middleware.IdempotencyConfig{Guard: guard}),
//	)
//
// All middleware follows the same shape: a config struct with optional Skip
// function, a generic constructor over handler.Context, and response
// decoration by wrapping the handler.Response closure.
package middleware
