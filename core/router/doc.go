// Package router implements the HTTP mux the safety middleware mounts on.
//
// Routes are registered per method with static or parameterized patterns
// ("/orders/{id}"). Middleware registered with Use runs for every matched
// route; With and Group create scoped middleware stacks. Handler panics
// are recovered and routed to the error handler, and the response writer
// guards against double WriteHeader calls.
//
//	r := router.New[*router.Context](router.WithErrorHandler[*router.Context](response.JSONErrorHandler[*router.Context]))
//	r.Use(middleware.RequestID[*router.Context]())
//	r.Post("/orders", createOrder)
package router
