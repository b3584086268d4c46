// Package handler defines the request-handling contracts shared by the
// router and middleware: a context interface over the incoming request,
// a response renderer function, and the middleware shape that composes
// around handlers.
//
// A Response is a function that writes the final response. Because it is
// a plain closure, middleware can decorate it (set headers, capture the
// status code and body) before the bytes reach the client:
//
//	resp := next(ctx)
//	return func(w http.ResponseWriter, r *http.Request) error {
//		w.Header().Set("X-RateLimit-Limit", "100")
//		return resp(w, r)
//	}
package handler
