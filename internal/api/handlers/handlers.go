// Package handlers implements the HTTP handlers of the market API. Each
// mutating handler runs exactly one ledger call as the request's caller
// and answers with its receipt.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/agentoven/agentmarket/internal/config"
	"github.com/agentoven/agentmarket/internal/escrow"
	"github.com/agentoven/agentmarket/internal/events"
	"github.com/agentoven/agentmarket/internal/identity"
	"github.com/agentoven/agentmarket/internal/ledger"
	"github.com/agentoven/agentmarket/internal/reputation"
	"github.com/agentoven/agentmarket/internal/validation"
	pkgmw "github.com/agentoven/agentmarket/pkg/middleware"
	"github.com/agentoven/agentmarket/pkg/models"
)

// Handlers holds all handler dependencies.
type Handlers struct {
	Ledger       *ledger.Ledger
	Identity     *identity.Registry
	Validation   *validation.Registry
	Reputation   *reputation.Registry
	Escrow       *escrow.Escrow
	Events       *events.Buffer
	FaucetConfig config.FaucetConfig
	Version      string
}

// Programs returns every deployed program.
// GET /api/v1/programs
func (h *Handlers) Programs(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"registries": models.Registries{
			Identity:   h.Identity.Address(),
			Validation: h.Validation.Address(),
			Reputation: h.Reputation.Address(),
			Escrow:     h.Escrow.Address(),
		},
		"deployments": h.Ledger.Deployments(),
	})
}

// Health returns liveness and the ledger clock.
// GET /health
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status": "healthy",
		"time":   h.Ledger.Clock().Now(),
	})
}

// GET /version
func (h *Handlers) GetVersion(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"version": h.Version})
}

// ── Helpers ──────────────────────────────────────────────────

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, models.ErrorResponse{Error: message})
}

// respondCallError answers a failed view or call. rec is the reverted
// receipt, if the call reached the ledger.
func respondCallError(w http.ResponseWriter, err error, rec *ledger.Receipt) {
	kind := ledger.KindOf(err)
	setReceiptHeaders(w, rec)
	w.Header().Set(models.ErrorKindHeader, kind.String())
	respondJSON(w, statusFor(kind), models.ErrorResponse{
		Error:   err.Error(),
		Kind:    kind.String(),
		Receipt: rec,
	})
}

func respondReceipt(w http.ResponseWriter, status int, rec *ledger.Receipt, result any) {
	setReceiptHeaders(w, rec)
	respondJSON(w, status, models.ReceiptResponse{Receipt: rec, Result: result})
}

func setReceiptHeaders(w http.ResponseWriter, rec *ledger.Receipt) {
	if rec == nil {
		return
	}
	w.Header().Set(models.ReceiptIDHeader, rec.ID)
	w.Header().Set(models.ReceiptStatusHeader, rec.Status)
}

func statusFor(kind ledger.Kind) int {
	switch kind {
	case ledger.KindNotFound:
		return http.StatusNotFound
	case ledger.KindDuplicate, ledger.KindTemporal:
		return http.StatusConflict
	case ledger.KindAuthorization:
		return http.StatusForbidden
	case ledger.KindPayment:
		return http.StatusPaymentRequired
	case ledger.KindPrecondition:
		return http.StatusUnprocessableEntity
	case ledger.KindNotCoLocated:
		return http.StatusFailedDependency
	default:
		return http.StatusInternalServerError
	}
}

var errNoCaller = errors.New("X-Caller header required")

// caller returns the request's account or answers 401.
func caller(w http.ResponseWriter, r *http.Request) (ledger.Address, bool) {
	addr, ok := pkgmw.GetCaller(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, errNoCaller.Error())
		return ledger.Address{}, false
	}
	return addr, true
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

func uint64Param(w http.ResponseWriter, r *http.Request, name string) (uint64, bool) {
	v, err := strconv.ParseUint(chi.URLParam(r, name), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid %s", name))
		return 0, false
	}
	return v, true
}

func addressParam(w http.ResponseWriter, r *http.Request, name string) (ledger.Address, bool) {
	addr, err := ledger.ParseAddress(chi.URLParam(r, name))
	if err != nil {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid %s: %v", name, err))
		return ledger.Address{}, false
	}
	return addr, true
}
