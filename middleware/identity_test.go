package middleware_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/shopguard/shopguard/core/handler"
	"github.com/shopguard/shopguard/core/response"
	"github.com/shopguard/shopguard/core/router"
	"github.com/shopguard/shopguard/middleware"
)

func TestIdentityResolvesCaller(t *testing.T) {
	t.Parallel()

	r := router.New[*router.Context]()
	r.Use(middleware.Identity[*router.Context](middleware.IdentityConfig{
		Resolver: func(ctx handler.Context) (middleware.Caller, error) {
			return middleware.Caller{UserID: "user-1", SessionID: "sess-1"}, nil
		},
	}))

	var caller middleware.Caller
	var found bool
	r.Get("/test", func(ctx *router.Context) handler.Response {
		caller, found = middleware.GetCaller(ctx)
		return response.String("ok")
	})

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.True(t, found)
	assert.Equal(t, "user-1", caller.UserID)
	assert.Equal(t, "sess-1", caller.SessionID)
}

func TestIdentityResolverFailureRejects(t *testing.T) {
	t.Parallel()

	r := router.New[*router.Context](
		router.WithErrorHandler[*router.Context](response.JSONErrorHandler[*router.Context]),
	)
	r.Use(middleware.Identity[*router.Context](middleware.IdentityConfig{
		Resolver: func(ctx handler.Context) (middleware.Caller, error) {
			return middleware.Caller{}, errors.New("session expired")
		},
	}))
	r.Get("/test", func(ctx *router.Context) handler.Response {
		return response.String("ok")
	})

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestIdentityPanicsWithoutResolver(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() {
		middleware.Identity[*router.Context](middleware.IdentityConfig{})
	})
}

func TestGetCallerWithoutMiddleware(t *testing.T) {
	t.Parallel()

	r := router.New[*router.Context]()

	var found bool
	r.Get("/test", func(ctx *router.Context) handler.Response {
		_, found = middleware.GetCaller(ctx)
		return response.String("ok")
	})

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.False(t, found)
}
