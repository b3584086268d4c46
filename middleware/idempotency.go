package middleware

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/shopguard/shopguard/core/handler"
	"github.com/shopguard/shopguard/core/idempotency"
	"github.com/shopguard/shopguard/core/logger"
	"github.com/shopguard/shopguard/core/response"
)

// Default request headers carrying the idempotency key, checked in order.
var defaultIdempotencyHeaders = []string{"Idempotency-Key", "X-Idempotency-Key"}

// IdempotencyConfig configures the idempotent-mutation middleware.
type IdempotencyConfig struct {
	// Skip defines a function to skip middleware execution for specific requests
	Skip func(ctx handler.Context) bool
	// Guard is the idempotency decision engine over the ledger
	Guard *idempotency.Guard
	// HeaderNames are the request headers checked for the key, in order
	// (default: Idempotency-Key, X-Idempotency-Key)
	HeaderNames []string
	// Logger receives response-persistence failures (default: discard)
	Logger *slog.Logger
}

// Idempotency creates a middleware that makes mutating operations safe to
// retry. Panics if no guard is provided.
//
// Requests with safe methods or without a key pass through unchanged.
// Otherwise the guard decides: reject invalid or conflicting key reuse,
// replay an already recorded response verbatim, or let the handler run and
// persist its response before the client receives it. Persistence failures
// are logged but never block response delivery.
func Idempotency[C handler.Context](cfg IdempotencyConfig) handler.Middleware[C] {
	if cfg.Guard == nil {
		panic("idempotency middleware: guard is required")
	}

	if len(cfg.HeaderNames) == 0 {
		cfg.HeaderNames = defaultIdempotencyHeaders
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return func(next handler.HandlerFunc[C]) handler.HandlerFunc[C] {
		return func(ctx C) handler.Response {
			if cfg.Skip != nil && cfg.Skip(ctx) {
				return next(ctx)
			}

			r := ctx.Request()
			if !mutatingMethod(r.Method) {
				return next(ctx)
			}

			key := extractKey(r, cfg.HeaderNames)
			if key == "" {
				return next(ctx)
			}

			body, err := readBody(r)
			if err != nil {
				return response.Error(response.ErrBadRequest.WithError(err))
			}

			caller, _ := GetCaller(ctx)

			outcome, err := cfg.Guard.Check(ctx, idempotency.Request{
				Key:       key,
				Endpoint:  r.Method + " " + r.URL.Path,
				Body:      body,
				UserID:    caller.UserID,
				SessionID: caller.SessionID,
			})
			if err != nil {
				return response.Error(rejectionError(err))
			}

			if outcome.Replay {
				return replayResponse(outcome)
			}

			resp := next(ctx)

			// Buffer the outgoing response and persist it on the record
			// before a single byte reaches the client.
			return func(w http.ResponseWriter, r *http.Request) error {
				cw := newCaptureWriter()
				if err := resp(cw, r); err != nil {
					return err
				}
				if resolveErr := cfg.Guard.Resolve(r.Context(), key, cw.StatusCode(), cw.ContentType(), cw.Body()); resolveErr != nil {
					cfg.Logger.ErrorContext(r.Context(), "idempotent response not persisted",
						slog.String("key", key), logger.Error(resolveErr))
				}
				return cw.WriteTo(w)
			}
		}
	}
}

// rejectionError maps guard rejections to the wire contract.
func rejectionError(err error) response.HTTPError {
	switch {
	case errors.Is(err, idempotency.ErrInvalidKey):
		return response.ErrBadRequest.
			WithCode("INVALID_IDEMPOTENCY_KEY").
			WithMessage(err.Error())
	case errors.Is(err, idempotency.ErrKeyMismatch):
		return response.ErrForbidden.
			WithCode("IDEMPOTENCY_KEY_MISMATCH").
			WithMessage(err.Error())
	case errors.Is(err, idempotency.ErrKeyConflict):
		return response.ErrUnprocessableEntity.
			WithCode("IDEMPOTENCY_KEY_CONFLICT").
			WithMessage(err.Error())
	case errors.Is(err, idempotency.ErrInProgress):
		return response.ErrConflict.
			WithCode("REQUEST_IN_PROGRESS").
			WithMessage(err.Error())
	default:
		return response.ErrInternalServerError.WithError(err)
	}
}

// replayResponse returns the recorded response verbatim, with the
// content type the original delivery carried.
func replayResponse(outcome idempotency.Outcome) handler.Response {
	if len(outcome.Body) == 0 {
		return response.Status(outcome.Status)
	}
	return response.BytesWithStatus(outcome.Body, outcome.ContentType, outcome.Status)
}

// mutatingMethod reports whether the method has non-safe semantics.
func mutatingMethod(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// extractKey returns the first non-empty key header.
func extractKey(r *http.Request, headers []string) string {
	for _, h := range headers {
		if key := r.Header.Get(h); key != "" {
			return key
		}
	}
	return ""
}

// readBody consumes the request body for hashing and restores it so the
// handler can read it again.
func readBody(r *http.Request) ([]byte, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, nil
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	_ = r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(body))
	return body, nil
}

// captureWriter buffers a response so it can be persisted before delivery.
type captureWriter struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func newCaptureWriter() *captureWriter {
	return &captureWriter{header: make(http.Header)}
}

func (cw *captureWriter) Header() http.Header {
	return cw.header
}

func (cw *captureWriter) WriteHeader(status int) {
	if cw.status == 0 {
		cw.status = status
	}
}

func (cw *captureWriter) Write(b []byte) (int, error) {
	if cw.status == 0 {
		cw.status = http.StatusOK
	}
	return cw.body.Write(b)
}

// StatusCode returns the buffered status, defaulting to 200.
func (cw *captureWriter) StatusCode() int {
	if cw.status == 0 {
		return http.StatusOK
	}
	return cw.status
}

// Body returns the buffered response body.
func (cw *captureWriter) Body() []byte {
	return cw.body.Bytes()
}

// ContentType returns the buffered Content-Type header.
func (cw *captureWriter) ContentType() string {
	return cw.header.Get("Content-Type")
}

// WriteTo replays the buffered response onto the real writer.
func (cw *captureWriter) WriteTo(w http.ResponseWriter) error {
	for k, vs := range cw.header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(cw.StatusCode())
	if cw.body.Len() > 0 {
		if _, err := w.Write(cw.body.Bytes()); err != nil {
			return err
		}
	}
	return nil
}
