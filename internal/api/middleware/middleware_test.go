package middleware_test

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/agentoven/agentmarket/internal/api/middleware"
	"github.com/agentoven/agentmarket/internal/ledger"
	pkgmw "github.com/agentoven/agentmarket/pkg/middleware"
	"github.com/agentoven/agentmarket/pkg/models"
)

func ok() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func newAuth(t *testing.T, entries ...string) *middleware.APIKeyAuth {
	t.Helper()
	auth, err := middleware.NewAPIKeyAuth(entries)
	if err != nil {
		t.Fatalf("NewAPIKeyAuth: %v", err)
	}
	return auth
}

func TestAPIKeyAuth_Disabled(t *testing.T) {
	auth := newAuth(t)
	if auth.Enabled() {
		t.Error("Expected auth to be disabled without keys")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/escrow", nil)
	w := httptest.NewRecorder()
	auth.Middleware(ok()).ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("Disabled auth: status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestAPIKeyAuth_Keys(t *testing.T) {
	handler := newAuth(t, "key-1", " key-2 ", "").Middleware(ok())

	cases := []struct {
		name   string
		header string
		value  string
		query  string
		want   int
	}{
		{"bearer", "Authorization", "Bearer key-1", "", http.StatusOK},
		{"x-api-key", "X-API-Key", "key-2", "", http.StatusOK},
		{"query", "", "", "?api_key=key-1", http.StatusOK},
		{"wrong", "Authorization", "Bearer nope", "", http.StatusUnauthorized},
		{"missing", "", "", "", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/escrow"+tc.query, nil)
		if tc.header != "" {
			req.Header.Set(tc.header, tc.value)
		}
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		if w.Code != tc.want {
			t.Errorf("%s: status = %d, want %d", tc.name, w.Code, tc.want)
		}
	}
}

func TestAPIKeyAuth_PublicPaths(t *testing.T) {
	handler := newAuth(t, "valid-key").Middleware(ok())

	for _, path := range []string{"/health", "/version"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Errorf("Public path %q: status = %d, want %d", path, w.Code, http.StatusOK)
		}
	}
}

func TestAPIKeyAuth_BoundKeyActsOnlyAsItsAccount(t *testing.T) {
	alice := ledger.AddressFromSeed("alice")
	bob := ledger.AddressFromSeed("bob")
	auth := newAuth(t, "alice-key@"+alice.Hex())

	var got ledger.Address
	handler := middleware.CallerExtractor(auth.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = pkgmw.GetCaller(r.Context())
	})))

	send := func(caller ledger.Address) int {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/escrow", nil)
		req.Header.Set("X-API-Key", "alice-key")
		if !caller.IsZero() {
			req.Header.Set(middleware.CallerHeader, caller.Hex())
		}
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w.Code
	}

	if code := send(ledger.Address{}); code != http.StatusOK || got != alice {
		t.Errorf("implicit caller: status = %d caller = %s, want %d %s", code, got, http.StatusOK, alice)
	}
	if code := send(alice); code != http.StatusOK {
		t.Errorf("own caller: status = %d, want %d", code, http.StatusOK)
	}
	if code := send(bob); code != http.StatusForbidden {
		t.Errorf("other caller: status = %d, want %d", code, http.StatusForbidden)
	}
}

func TestAPIKeyAuth_RejectsMalformedBinding(t *testing.T) {
	if _, err := middleware.NewAPIKeyAuth([]string{"key@0xnothex"}); err == nil {
		t.Error("expected an error for a malformed bound account")
	}
	if _, err := middleware.NewAPIKeyAuth([]string{"@" + ledger.AddressFromSeed("a").Hex()}); err == nil {
		t.Error("expected an error for an empty key")
	}
}

func TestAPIKeyAuth_GrantRevoke(t *testing.T) {
	auth := newAuth(t)
	auth.Grant("runtime-key", ledger.Address{})
	if !auth.Enabled() {
		t.Error("Should be enabled after Grant")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/escrow", nil)
	req.Header.Set("X-API-Key", "runtime-key")
	w := httptest.NewRecorder()
	auth.Middleware(ok()).ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("Runtime key: status = %d, want %d", w.Code, http.StatusOK)
	}

	auth.Revoke("runtime-key")
	if auth.Enabled() {
		t.Error("Should be disabled after revoking the last key")
	}
}

func TestCallerExtractor(t *testing.T) {
	want := ledger.AddressFromSeed("alice")
	var got ledger.Address
	var found bool
	handler := middleware.CallerExtractor(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, found = pkgmw.GetCaller(r.Context())
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/escrow/deposits", nil)
	req.Header.Set(middleware.CallerHeader, want.Hex())
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if !found || got != want {
		t.Fatalf("caller = %s (found %v), want %s", got, found, want)
	}

	found = false
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if found {
		t.Error("anonymous request should carry no caller")
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(middleware.CallerHeader, "0xnothex")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("malformed caller: status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

// revertedRelease answers like a handler whose ledger call reverted.
func revertedRelease(w http.ResponseWriter, r *http.Request) {
	w.Header().Set(models.ReceiptIDHeader, "rcpt-1")
	w.Header().Set(models.ReceiptStatusHeader, ledger.StatusReverted)
	w.Header().Set(models.ErrorKindHeader, "precondition")
	w.WriteHeader(http.StatusUnprocessableEntity)
}

func TestLoggerRecordsReceipt(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = prev })

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Post("/escrow/{jobID}/release", revertedRelease)
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/escrow/j1/release", nil))

	line := buf.String()
	for _, want := range []string{
		`"level":"warn"`,
		`"receipt":"rcpt-1"`,
		`"receipt_status":"reverted"`,
		`"error_kind":"precondition"`,
		`"route":"/escrow/{jobID}/release"`,
		`"message":"ledger call"`,
	} {
		if !strings.Contains(line, want) {
			t.Errorf("log line %s missing %s", line, want)
		}
	}
}

func TestTelemetryNamesSpanByRouteAndMarksReverts(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { tp.Shutdown(context.Background()) })

	r := chi.NewRouter()
	r.Use(middleware.Telemetry)
	r.Post("/escrow/{jobID}/release", revertedRelease)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/escrow/j1/release", nil))

	if w.Header().Get(middleware.TraceIDHeader) == "" {
		t.Error("expected a trace id header")
	}
	spans := sr.Ended()
	if len(spans) != 1 {
		t.Fatalf("spans = %d, want 1", len(spans))
	}
	span := spans[0]
	if span.Name() != "POST /escrow/{jobID}/release" {
		t.Errorf("span name = %q", span.Name())
	}
	if span.Status().Code != codes.Error {
		t.Errorf("span status = %v, want error", span.Status().Code)
	}
	found := false
	for _, kv := range span.Attributes() {
		if kv.Key == attribute.Key("agentmarket.receipt.id") && kv.Value.AsString() == "rcpt-1" {
			found = true
		}
	}
	if !found {
		t.Error("span is missing the receipt id")
	}
}
