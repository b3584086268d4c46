// Package response provides handler.Response constructors and the
// structured HTTP error type used across the toolkit.
//
// Responses are created by the handler and rendered by the router.
// Errors carry a machine-readable code that is serialized under the
// "error" key, so rejection bodies look like:
//
//	{"error": "RATE_LIMIT_EXCEEDED", "message": "Too Many Requests"}
//
// Any error returned through response.Error is converted to an HTTPError
// by the error handler; unknown errors become 500 internal_server_error.
package response
