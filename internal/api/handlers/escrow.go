package handlers

import (
	"encoding/hex"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/agentoven/agentmarket/internal/escrow"
	"github.com/agentoven/agentmarket/pkg/models"
)

// Deposit locks the attached payment against a job.
// POST /api/v1/escrow
func (h *Handlers) Deposit(w http.ResponseWriter, r *http.Request) {
	from, ok := caller(w, r)
	if !ok {
		return
	}
	var req models.DepositRequest
	if !decode(w, r, &req) {
		return
	}
	payment, err := req.Payment.ToLedger()
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	poa, err := hex.DecodeString(req.PoaHash)
	if err != nil {
		respondError(w, http.StatusBadRequest, "poa_hash must be hex")
		return
	}
	rec, err := h.Escrow.Deposit(r.Context(), from, escrow.DepositParams{
		JobID:    req.JobID,
		Receiver: req.Receiver,
		PoaHash:  poa,
		Deadline: req.Deadline,
	}, payment)
	if err != nil {
		respondCallError(w, err, rec)
		return
	}
	log.Info().Str("job_id", req.JobID).Str("employer", from.Short()).Msg("💰 Escrow deposited")
	respondReceipt(w, http.StatusCreated, rec, nil)
}

// GET /api/v1/escrow
func (h *Handlers) ListEscrows(w http.ResponseWriter, r *http.Request) {
	records, err := h.Escrow.List(r.Context())
	if err != nil {
		respondCallError(w, err, nil)
		return
	}
	if status := r.URL.Query().Get("status"); status != "" {
		filtered := records[:0]
		for _, rec := range records {
			if rec.Status.String() == status {
				filtered = append(filtered, rec)
			}
		}
		records = filtered
	}
	respondJSON(w, http.StatusOK, records)
}

// GET /api/v1/escrow/{jobID}
func (h *Handlers) GetEscrow(w http.ResponseWriter, r *http.Request) {
	rec, err := h.Escrow.Get(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		respondCallError(w, err, nil)
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

// Release pays the receiver once the job is verified. Employer only.
// POST /api/v1/escrow/{jobID}/release
func (h *Handlers) Release(w http.ResponseWriter, r *http.Request) {
	from, ok := caller(w, r)
	if !ok {
		return
	}
	jobID := chi.URLParam(r, "jobID")
	rec, err := h.Escrow.Release(r.Context(), from, jobID)
	if err != nil {
		respondCallError(w, err, rec)
		return
	}
	log.Info().Str("job_id", jobID).Msg("✅ Escrow released")
	respondReceipt(w, http.StatusOK, rec, nil)
}

// Refund returns an overdue deposit to its employer.
// POST /api/v1/escrow/{jobID}/refund
func (h *Handlers) Refund(w http.ResponseWriter, r *http.Request) {
	from, ok := caller(w, r)
	if !ok {
		return
	}
	jobID := chi.URLParam(r, "jobID")
	rec, err := h.Escrow.Refund(r.Context(), from, jobID)
	if err != nil {
		respondCallError(w, err, rec)
		return
	}
	log.Info().Str("job_id", jobID).Msg("↩️ Escrow refunded")
	respondReceipt(w, http.StatusOK, rec, nil)
}

// GET /api/v1/escrow/registries
func (h *Handlers) GetEscrowRegistries(w http.ResponseWriter, r *http.Request) {
	validationAddr, identityAddr, err := h.Escrow.Addresses(r.Context())
	if err != nil {
		respondCallError(w, err, nil)
		return
	}
	respondJSON(w, http.StatusOK, models.Registries{Identity: identityAddr, Validation: validationAddr})
}
