package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/agentoven/agentmarket/internal/ledger"
	"github.com/agentoven/agentmarket/internal/reputation"
	"github.com/agentoven/agentmarket/pkg/models"
)

// RateJob folds the employer's rating for a verified job into the agent's
// score.
// POST /api/v1/reputation/jobs/{jobID}/rating
func (h *Handlers) RateJob(w http.ResponseWriter, r *http.Request) {
	from, ok := caller(w, r)
	if !ok {
		return
	}
	var req models.RatingRequest
	if !decode(w, r, &req) {
		return
	}
	rating, err := models.ParseAmount(req.Rating)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	rec, err := h.Reputation.GiveFeedbackSimple(r.Context(), from, chi.URLParam(r, "jobID"), req.AgentID, rating)
	if err != nil {
		respondCallError(w, err, rec)
		return
	}
	respondReceipt(w, http.StatusOK, rec, nil)
}

// GET /api/v1/reputation/jobs/{jobID}
func (h *Handlers) GetJobFeedback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	jobID := chi.URLParam(r, "jobID")
	given, err := h.Reputation.HasGivenFeedback(ctx, jobID)
	if err != nil {
		respondCallError(w, err, nil)
		return
	}
	response, err := h.Reputation.AgentResponse(ctx, jobID)
	if err != nil {
		respondCallError(w, err, nil)
		return
	}
	respondJSON(w, http.StatusOK, models.JobFeedback{
		JobID:            jobID,
		HasGivenFeedback: given,
		AgentResponse:    response,
	})
}

// AppendResponse attaches the agent's public reply to a rated job.
// POST /api/v1/reputation/jobs/{jobID}/response
func (h *Handlers) AppendResponse(w http.ResponseWriter, r *http.Request) {
	from, ok := caller(w, r)
	if !ok {
		return
	}
	var req models.AppendResponseRequest
	if !decode(w, r, &req) {
		return
	}
	rec, err := h.Reputation.AppendResponse(r.Context(), from, chi.URLParam(r, "jobID"), req.ResponseURI)
	if err != nil {
		respondCallError(w, err, rec)
		return
	}
	respondReceipt(w, http.StatusOK, rec, nil)
}

// GET /api/v1/reputation/agents/{agentID}/score
func (h *Handlers) GetScore(w http.ResponseWriter, r *http.Request) {
	agentID, ok := uint64Param(w, r, "agentID")
	if !ok {
		return
	}
	score, err := h.Reputation.Score(r.Context(), agentID)
	if err != nil {
		respondCallError(w, err, nil)
		return
	}
	respondJSON(w, http.StatusOK, score)
}

// GiveFeedback records a raw feedback signal from the caller.
// POST /api/v1/reputation/agents/{agentID}/feedback
func (h *Handlers) GiveFeedback(w http.ResponseWriter, r *http.Request) {
	from, ok := caller(w, r)
	if !ok {
		return
	}
	agentID, ok := uint64Param(w, r, "agentID")
	if !ok {
		return
	}
	var req models.FeedbackRequest
	if !decode(w, r, &req) {
		return
	}
	index, rec, err := h.Reputation.GiveFeedback(r.Context(), from, reputation.FeedbackParams{
		AgentID:       agentID,
		Value:         req.Value,
		ValueDecimals: req.ValueDecimals,
		Tag1:          req.Tag1,
		Tag2:          req.Tag2,
		Endpoint:      req.Endpoint,
		FeedbackURI:   req.FeedbackURI,
		FeedbackHash:  []byte(req.FeedbackHash),
	})
	if err != nil {
		respondCallError(w, err, rec)
		return
	}
	respondReceipt(w, http.StatusCreated, rec, models.FeedbackResult{FeedbackIndex: index})
}

// GET /api/v1/reputation/agents/{agentID}/clients
func (h *Handlers) ListClients(w http.ResponseWriter, r *http.Request) {
	agentID, ok := uint64Param(w, r, "agentID")
	if !ok {
		return
	}
	clients, err := h.Reputation.Clients(r.Context(), agentID)
	if err != nil {
		respondCallError(w, err, nil)
		return
	}
	respondJSON(w, http.StatusOK, clients)
}

// GET /api/v1/reputation/agents/{agentID}/feedback/{client}
func (h *Handlers) GetLastIndex(w http.ResponseWriter, r *http.Request) {
	agentID, ok := uint64Param(w, r, "agentID")
	if !ok {
		return
	}
	client, ok := addressParam(w, r, "client")
	if !ok {
		return
	}
	last, err := h.Reputation.LastIndex(r.Context(), agentID, client)
	if err != nil {
		respondCallError(w, err, nil)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"agent_id": agentID, "client": client, "last_index": last})
}

// GET /api/v1/reputation/agents/{agentID}/feedback/{client}/{index}
func (h *Handlers) ReadFeedback(w http.ResponseWriter, r *http.Request) {
	agentID, ok := uint64Param(w, r, "agentID")
	if !ok {
		return
	}
	client, ok := addressParam(w, r, "client")
	if !ok {
		return
	}
	index, ok := uint64Param(w, r, "index")
	if !ok {
		return
	}
	fb, err := h.Reputation.ReadFeedback(r.Context(), agentID, client, index)
	if err != nil {
		respondCallError(w, err, nil)
		return
	}
	respondJSON(w, http.StatusOK, fb)
}

// RevokeFeedback withdraws one of the caller's own feedback records.
// DELETE /api/v1/reputation/agents/{agentID}/feedback/{client}/{index}
func (h *Handlers) RevokeFeedback(w http.ResponseWriter, r *http.Request) {
	from, ok := caller(w, r)
	if !ok {
		return
	}
	agentID, ok := uint64Param(w, r, "agentID")
	if !ok {
		return
	}
	client, ok := addressParam(w, r, "client")
	if !ok {
		return
	}
	if client != from {
		respondError(w, http.StatusForbidden, "feedback can only be revoked by its client")
		return
	}
	index, ok := uint64Param(w, r, "index")
	if !ok {
		return
	}
	rec, err := h.Reputation.RevokeFeedback(r.Context(), from, agentID, index)
	if err != nil {
		respondCallError(w, err, rec)
		return
	}
	respondReceipt(w, http.StatusOK, rec, nil)
}

// GET /api/v1/reputation/registries
func (h *Handlers) GetReputationRegistries(w http.ResponseWriter, r *http.Request) {
	validationAddr, identityAddr, err := h.Reputation.Addresses(r.Context())
	if err != nil {
		respondCallError(w, err, nil)
		return
	}
	respondJSON(w, http.StatusOK, models.Registries{Identity: identityAddr, Validation: validationAddr})
}

// PUT /api/v1/reputation/registries/validation
func (h *Handlers) SetReputationValidationRegistry(w http.ResponseWriter, r *http.Request) {
	h.setRegistryAddress(w, r, h.Reputation.SetValidationContractAddress)
}

// PUT /api/v1/reputation/registries/identity
func (h *Handlers) SetReputationIdentityRegistry(w http.ResponseWriter, r *http.Request) {
	h.setRegistryAddress(w, r, h.Reputation.SetIdentityContractAddress)
}

func (h *Handlers) setRegistryAddress(w http.ResponseWriter, r *http.Request, set func(context.Context, ledger.Address, ledger.Address) (*ledger.Receipt, error)) {
	from, ok := caller(w, r)
	if !ok {
		return
	}
	var req models.AddressRequest
	if !decode(w, r, &req) {
		return
	}
	rec, err := set(r.Context(), from, req.Address)
	if err != nil {
		respondCallError(w, err, rec)
		return
	}
	respondReceipt(w, http.StatusOK, rec, nil)
}
