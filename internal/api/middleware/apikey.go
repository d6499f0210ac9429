package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/agentoven/agentmarket/internal/ledger"
	pkgmw "github.com/agentoven/agentmarket/pkg/middleware"
)

// APIKeyAuth gates the market API behind API keys.
//
// A configured entry is either a bare key, which may act as any account, or
// "key@0x<address>", which may only act as that account. A bound key fills
// in X-Caller when the request omits it.
//
// Keys are read from "Authorization: Bearer <key>", "X-API-Key" or the
// api_key query parameter (for the event stream). /health and /version are
// public.
type APIKeyAuth struct {
	mu     sync.RWMutex
	grants map[string]ledger.Address
}

// ParseKeyGrant splits a configured entry into its key and bound account.
// The account is zero for a bare key.
func ParseKeyGrant(entry string) (string, ledger.Address, error) {
	entry = strings.TrimSpace(entry)
	key, account, bound := strings.Cut(entry, "@")
	if key == "" {
		return "", ledger.Address{}, fmt.Errorf("api key %q: empty key", entry)
	}
	if !bound {
		return key, ledger.Address{}, nil
	}
	addr, err := ledger.ParseAddress(account)
	if err != nil {
		return "", ledger.Address{}, fmt.Errorf("api key bound account: %w", err)
	}
	return key, addr, nil
}

// NewAPIKeyAuth builds the middleware from configured entries. Blank
// entries are skipped.
func NewAPIKeyAuth(entries []string) (*APIKeyAuth, error) {
	a := &APIKeyAuth{grants: make(map[string]ledger.Address)}
	for _, e := range entries {
		if strings.TrimSpace(e) == "" {
			continue
		}
		key, account, err := ParseKeyGrant(e)
		if err != nil {
			return nil, err
		}
		a.grants[key] = account
	}
	return a, nil
}

// Enabled reports whether any key is configured. Without keys every
// request passes.
func (a *APIKeyAuth) Enabled() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.grants) > 0
}

// Grant adds key at runtime. A zero account lets the key act as anyone.
func (a *APIKeyAuth) Grant(key string, account ledger.Address) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.grants[key] = account
}

// Revoke removes key.
func (a *APIKeyAuth) Revoke(key string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.grants, key)
}

// lookup compares candidate against every key in constant time.
func (a *APIKeyAuth) lookup(candidate string) (ledger.Address, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	var (
		account ledger.Address
		found   bool
	)
	for key, acct := range a.grants {
		if subtle.ConstantTimeCompare([]byte(candidate), []byte(key)) == 1 {
			account, found = acct, true
		}
	}
	return account, found
}

// Middleware enforces the key and its account binding. It must run after
// CallerExtractor.
func (a *APIKeyAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Enabled() || isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		key := extractAPIKey(r)
		if key == "" {
			deny(w, http.StatusUnauthorized, "unauthorized", "API key required. Set Authorization: Bearer <key> or X-API-Key header.")
			return
		}
		account, ok := a.lookup(key)
		if !ok {
			deny(w, http.StatusUnauthorized, "unauthorized", "Invalid API key.")
			return
		}
		if account.IsZero() {
			next.ServeHTTP(w, r)
			return
		}

		caller, hasCaller := pkgmw.GetCaller(r.Context())
		if !hasCaller {
			next.ServeHTTP(w, r.WithContext(pkgmw.SetCaller(r.Context(), account)))
			return
		}
		if caller != account {
			log.Warn().
				Str("caller", caller.Short()).
				Str("bound", account.Short()).
				Str("path", r.URL.Path).
				Msg("API key used for another account")
			deny(w, http.StatusForbidden, "forbidden", "API key may not act as "+caller.Hex())
			return
		}
		next.ServeHTTP(w, r)
	})
}

func extractAPIKey(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	return r.URL.Query().Get("api_key")
}

func isPublicPath(path string) bool {
	return path == "/health" || path == "/version"
}

func deny(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer realm="agentmarket"`)
	}
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error":   code,
		"message": msg,
	})
}
