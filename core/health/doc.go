// Package health provides HTTP handlers for service health monitoring.
//
// Handlers:
//   - Liveness: Process is running (no dependency checks)
//   - Readiness: All dependencies are available
//   - NoContent: Returns 204 for minimal overhead
//
// Usage:
//
//	r.GET("/health/live", health.Liveness[*AppContext])
//	r.GET("/health/ready", health.Readiness[*AppContext](
//		logger,
//		pg.Healthcheck(pool),
//		guard.Healthcheck,
//	))
//	r.GET("/ping", health.NoContent[*AppContext])
//
// Dependency checks must follow func(context.Context) error signature.
package health
