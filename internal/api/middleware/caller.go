package middleware

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/agentoven/agentmarket/internal/ledger"
	pkgmw "github.com/agentoven/agentmarket/pkg/middleware"
)

// CallerHeader names the account a request acts as.
const CallerHeader = "X-Caller"

// CallerExtractor parses the X-Caller header (0x-prefixed hex address) into
// the request context. Requests without the header pass through anonymous;
// a malformed header is rejected.
func CallerExtractor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := strings.TrimSpace(r.Header.Get(CallerHeader))
		if h == "" {
			next.ServeHTTP(w, r)
			return
		}
		addr, err := ledger.ParseAddress(h)
		if err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]string{
				"error":   "invalid_caller",
				"message": err.Error(),
			})
			return
		}
		next.ServeHTTP(w, r.WithContext(pkgmw.SetCaller(r.Context(), addr)))
	})
}
