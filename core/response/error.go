package response

import (
	"net/http"

	"github.com/shopguard/shopguard/core/handler"
)

// Error returns a handler response that propagates the given error to the
// router's error handler. Middleware uses it to reject a request without
// writing anything itself.
func Error(err error) handler.Response {
	return func(w http.ResponseWriter, r *http.Request) error {
		return err
	}
}
