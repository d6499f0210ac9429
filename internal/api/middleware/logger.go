package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/agentoven/agentmarket/internal/ledger"
	pkgmw "github.com/agentoven/agentmarket/pkg/middleware"
	"github.com/agentoven/agentmarket/pkg/models"
)

// responseWriter records the status and size of a response.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	bytes      int
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytes += n
	return n, err
}

// Flush keeps the event stream working through the wrapper.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// reverted reports whether the response carries a reverted receipt.
func (rw *responseWriter) reverted() bool {
	return rw.Header().Get(models.ReceiptStatusHeader) == ledger.StatusReverted
}

// route is the matched chi pattern, or the raw path when nothing matched.
func route(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return r.URL.Path
}

// Logger writes one line per request. Requests that ran a ledger call log
// the receipt; reverted calls and 4xx log at Warn, 5xx at Error.
func Logger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := newResponseWriter(w)

		next.ServeHTTP(rw, r)

		var event *zerolog.Event
		switch {
		case rw.statusCode >= 500:
			event = log.Error()
		case rw.statusCode >= 400 || rw.reverted():
			event = log.Warn()
		default:
			event = log.Info()
		}

		if caller, ok := pkgmw.GetCaller(r.Context()); ok {
			event = event.Str("caller", caller.Short())
		}
		msg := "request"
		if id := rw.Header().Get(models.ReceiptIDHeader); id != "" {
			msg = "ledger call"
			event = event.
				Str("receipt", id).
				Str("receipt_status", rw.Header().Get(models.ReceiptStatusHeader))
		}
		if kind := rw.Header().Get(models.ErrorKindHeader); kind != "" {
			event = event.Str("error_kind", kind)
		}
		event.
			Str("request_id", chimw.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("route", route(r)).
			Str("path", r.URL.Path).
			Int("status", rw.statusCode).
			Int("bytes", rw.bytes).
			Dur("duration", time.Since(start)).
			Str("remote", r.RemoteAddr).
			Msg(msg)
	})
}
