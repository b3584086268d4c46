package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopguard/shopguard/core/handler"
	"github.com/shopguard/shopguard/core/response"
	"github.com/shopguard/shopguard/core/router"
	"github.com/shopguard/shopguard/middleware"
)

func TestRequestIDGeneratesUUID(t *testing.T) {
	t.Parallel()

	r := router.New[*router.Context]()
	r.Use(middleware.RequestID[*router.Context]())

	var seenID string
	r.Get("/test", func(ctx *router.Context) handler.Response {
		seenID, _ = middleware.GetRequestID(ctx)
		return response.String("ok")
	})

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.NotEmpty(t, seenID)
	_, err := uuid.Parse(seenID)
	assert.NoError(t, err)
	assert.Equal(t, seenID, w.Header().Get("X-Request-ID"))
}

func TestRequestIDUseExisting(t *testing.T) {
	t.Parallel()

	r := router.New[*router.Context]()
	r.Use(middleware.RequestIDWithConfig[*router.Context](middleware.RequestIDConfig{
		UseExisting: true,
	}))
	r.Get("/test", func(ctx *router.Context) handler.Response {
		return response.String("ok")
	})

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("X-Request-ID", "upstream-trace-id")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "upstream-trace-id", w.Header().Get("X-Request-ID"))
}

func TestRequestIDCustomGenerator(t *testing.T) {
	t.Parallel()

	r := router.New[*router.Context]()
	r.Use(middleware.RequestIDWithConfig[*router.Context](middleware.RequestIDConfig{
		Generator:  func() string { return "fixed-id" },
		HeaderName: "X-Trace-ID",
	}))
	r.Get("/test", func(ctx *router.Context) handler.Response {
		return response.String("ok")
	})

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "fixed-id", w.Header().Get("X-Trace-ID"))
}
