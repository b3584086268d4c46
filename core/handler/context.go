package handler

import (
	"context"
	"net/http"
)

// Context is the contract for request contexts in the toolkit.
// It embeds context.Context so handlers can pass it directly to
// store and ledger calls.
type Context interface {
	context.Context
	Request() *http.Request
	ResponseWriter() http.ResponseWriter
	Param(key string) string
	SetValue(key, val any)
}
