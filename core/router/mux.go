package router

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"

	"github.com/shopguard/shopguard/core/handler"
)

// route is a single registered pattern for one HTTP method.
type route[C handler.Context] struct {
	method   string
	pattern  string
	segments []segment
	fn       handler.HandlerFunc[C]
}

// segment is one path element of a pattern. A param segment matches any
// single non-empty path element and binds it under its name.
type segment struct {
	literal string
	param   string
}

// mux is the private implementation of the Router interface.
type mux[C handler.Context] struct {
	routes       []*route[C]
	middlewares  []handler.Middleware[C]
	errorHandler handler.ErrorHandler[C]
	newContext   func(http.ResponseWriter, *http.Request, map[string]string) C
	logger       *slog.Logger
	parent       *mux[C] // for inline groups
	inline       bool
	registered   bool
}

// newMux creates a new router instance.
func newMux[C handler.Context](opts ...Option[C]) *mux[C] {
	m := &mux[C]{
		errorHandler: defaultErrorHandler[C],
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, opt := range opts {
		opt(m)
	}

	if m.newContext == nil {
		m.newContext = func(w http.ResponseWriter, r *http.Request, params map[string]string) C {
			// Only the default *Context type works without a factory.
			var zero C
			if _, ok := any(zero).(*Context); ok {
				return any(newContext(w, r, params)).(C)
			}
			panic(ErrNoContextFactory)
		}
	}

	return m
}

// ServeHTTP implements the http.Handler interface.
func (m *mux[C]) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ww := newResponseWriter(w)

	path := r.URL.Path
	if path == "" {
		path = "/"
	}

	fn, params, methodMatch := m.match(r.Method, path)
	ctx := m.newContext(ww, r, params)

	// Recover from handler panics to keep the server alive.
	defer func() {
		if p := recover(); p != nil {
			panicErr := &panicError{value: p, stack: debug.Stack()}

			if ww.Written() {
				m.logger.Error("panic after response written",
					"value", panicErr.value,
					"stack", string(panicErr.stack),
					"path", r.URL.Path,
					"method", r.Method,
					"status", ww.Status(),
				)
			} else {
				m.errorHandler(ctx, panicErr)
			}
		}
	}()

	if fn == nil {
		if len(methodMatch) > 0 {
			// Set Allow header per RFC 7231 before responding with 405.
			if !ww.Written() {
				ww.Header().Set("Allow", strings.Join(methodMatch, ", "))
			}
			m.errorHandler(ctx, ErrMethodNotAllowed)
		} else {
			m.errorHandler(ctx, ErrNotFound)
		}
		return
	}

	if len(m.middlewares) > 0 {
		fn = chain(m.middlewares, fn)
	}

	response := fn(ctx)
	if response == nil {
		m.errorHandler(ctx, ErrNilResponse)
		return
	}

	if err := response(ww, r); err != nil {
		m.errorHandler(ctx, err)
		return
	}
}

// match finds the handler and params for a method+path pair. When the path
// matches a pattern under other methods only, those methods are returned for
// the Allow header.
func (m *mux[C]) match(method, path string) (handler.HandlerFunc[C], map[string]string, []string) {
	parts := splitPath(path)

	var allowed []string
	for _, rt := range m.routes {
		params, ok := rt.matchSegments(parts)
		if !ok {
			continue
		}
		if rt.method == method {
			return rt.fn, params, nil
		}
		allowed = append(allowed, rt.method)
	}
	return nil, nil, allowed
}

// matchSegments matches path elements against the route's segments,
// binding param values. Static segments win by registration order.
func (rt *route[C]) matchSegments(parts []string) (map[string]string, bool) {
	if len(parts) != len(rt.segments) {
		return nil, false
	}

	var params map[string]string
	for i, seg := range rt.segments {
		if seg.param != "" {
			if parts[i] == "" {
				return nil, false
			}
			if params == nil {
				params = make(map[string]string)
			}
			params[seg.param] = parts[i]
			continue
		}
		if seg.literal != parts[i] {
			return nil, false
		}
	}
	return params, true
}

// splitPath splits a request path into its elements ("/" yields one empty element).
func splitPath(path string) []string {
	return strings.Split(strings.TrimPrefix(path, "/"), "/")
}

// Get registers a handler for GET requests.
func (m *mux[C]) Get(pattern string, h handler.HandlerFunc[C]) {
	m.handle(http.MethodGet, pattern, h)
}

// Post registers a handler for POST requests.
func (m *mux[C]) Post(pattern string, h handler.HandlerFunc[C]) {
	m.handle(http.MethodPost, pattern, h)
}

// Put registers a handler for PUT requests.
func (m *mux[C]) Put(pattern string, h handler.HandlerFunc[C]) {
	m.handle(http.MethodPut, pattern, h)
}

// Delete registers a handler for DELETE requests.
func (m *mux[C]) Delete(pattern string, h handler.HandlerFunc[C]) {
	m.handle(http.MethodDelete, pattern, h)
}

// Patch registers a handler for PATCH requests.
func (m *mux[C]) Patch(pattern string, h handler.HandlerFunc[C]) {
	m.handle(http.MethodPatch, pattern, h)
}

// Head registers a handler for HEAD requests.
func (m *mux[C]) Head(pattern string, h handler.HandlerFunc[C]) {
	m.handle(http.MethodHead, pattern, h)
}

// Options registers a handler for OPTIONS requests.
func (m *mux[C]) Options(pattern string, h handler.HandlerFunc[C]) {
	m.handle(http.MethodOptions, pattern, h)
}

// Method registers a handler for one or more specific HTTP methods.
func (m *mux[C]) Method(pattern string, h handler.HandlerFunc[C], methods ...string) {
	if len(methods) == 0 {
		panic(fmt.Errorf("%w: no methods provided", ErrInvalidMethod))
	}

	seen := make(map[string]bool)
	for _, method := range methods {
		method = strings.ToUpper(method)
		switch method {
		case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete,
			http.MethodPatch, http.MethodHead, http.MethodOptions:
		default:
			panic(fmt.Errorf("%w: %s", ErrInvalidMethod, method))
		}
		if seen[method] {
			continue
		}
		seen[method] = true
		m.handle(method, pattern, h)
	}
}

// Use appends middleware to the router.
func (m *mux[C]) Use(middlewares ...handler.Middleware[C]) {
	if m.registered {
		panic("shopguard: all middlewares must be defined before routes on a mux")
	}
	m.middlewares = append(m.middlewares, middlewares...)
}

// With creates a new inline router with additional middleware.
func (m *mux[C]) With(middlewares ...handler.Middleware[C]) Router[C] {
	return &mux[C]{
		inline:       true,
		parent:       m,
		middlewares:  middlewares,
		errorHandler: m.errorHandler,
		newContext:   m.newContext,
		logger:       m.logger,
	}
}

// Group creates a new inline router for grouping routes.
func (m *mux[C]) Group(fn func(r Router[C])) Router[C] {
	im := m.With()
	if fn != nil {
		fn(im)
	}
	return im
}

// handle registers a handler in the route table.
func (m *mux[C]) handle(method, pattern string, fn handler.HandlerFunc[C]) {
	if len(pattern) == 0 || pattern[0] != '/' {
		panic(fmt.Errorf("%w: '%s'", ErrInvalidPattern, pattern))
	}

	// Inline groups wrap the handler in their scoped middleware chain and
	// register on the root mux.
	if m.inline {
		var scoped []handler.Middleware[C]
		curr := m
		for curr != nil && curr.inline {
			if len(curr.middlewares) > 0 {
				scoped = append(append([]handler.Middleware[C]{}, curr.middlewares...), scoped...)
			}
			curr = curr.parent
		}
		if len(scoped) > 0 {
			fn = chain(scoped, fn)
		}
		curr.handle(method, pattern, fn)
		return
	}

	segments := make([]segment, 0, 4)
	for _, part := range splitPath(pattern) {
		if strings.HasPrefix(part, "{") && strings.HasSuffix(part, "}") {
			name := part[1 : len(part)-1]
			if name == "" {
				panic(fmt.Errorf("%w: '%s'", ErrInvalidPattern, pattern))
			}
			segments = append(segments, segment{param: name})
			continue
		}
		segments = append(segments, segment{literal: part})
	}

	for _, rt := range m.routes {
		if rt.method == method && rt.pattern == pattern {
			panic(fmt.Errorf("%w: %s %s", ErrDuplicateRoute, method, pattern))
		}
	}

	m.registered = true
	m.routes = append(m.routes, &route[C]{
		method:   method,
		pattern:  pattern,
		segments: segments,
		fn:       fn,
	})
}
