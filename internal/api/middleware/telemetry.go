package middleware

import (
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	pkgmw "github.com/agentoven/agentmarket/pkg/middleware"
	"github.com/agentoven/agentmarket/pkg/models"
)

// TraceIDHeader returns the request's trace id to the client.
const TraceIDHeader = "X-Trace-Id"

var tracer = otel.Tracer("agentmarket/api")

// Telemetry opens a server span per request and continues any propagated
// trace. Ledger spans started by handlers nest under it. The span is named
// after the chi route once it is known, and records the receipt of the
// ledger call behind the request.
func Telemetry(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

		attrs := []attribute.KeyValue{
			attribute.String("http.request.method", r.Method),
			attribute.String("url.path", r.URL.Path),
		}
		if caller, ok := pkgmw.GetCaller(r.Context()); ok {
			attrs = append(attrs, attribute.String("agentmarket.caller", caller.Hex()))
		}
		ctx, span := tracer.Start(ctx, r.Method+" "+r.URL.Path,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(attrs...),
		)
		defer span.End()

		if sc := span.SpanContext(); sc.HasTraceID() {
			w.Header().Set(TraceIDHeader, sc.TraceID().String())
		}

		rw := newResponseWriter(w)
		next.ServeHTTP(rw, r.WithContext(ctx))

		rt := route(r)
		span.SetName(r.Method + " " + rt)
		span.SetAttributes(
			attribute.String("http.route", rt),
			attribute.Int("http.response.status_code", rw.statusCode),
		)
		if id := rw.Header().Get(models.ReceiptIDHeader); id != "" {
			span.SetAttributes(
				attribute.String("agentmarket.receipt.id", id),
				attribute.String("agentmarket.receipt.status", rw.Header().Get(models.ReceiptStatusHeader)),
			)
		}
		switch {
		case rw.statusCode >= 500:
			span.SetStatus(codes.Error, http.StatusText(rw.statusCode))
		case rw.reverted():
			span.SetStatus(codes.Error, "reverted: "+rw.Header().Get(models.ErrorKindHeader))
		}
	})
}
