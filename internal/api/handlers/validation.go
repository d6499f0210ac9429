package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/agentoven/agentmarket/internal/validation"
	"github.com/agentoven/agentmarket/pkg/models"
)

// InitJob hires an agent, paying for the service if one is named.
// POST /api/v1/validation/jobs
func (h *Handlers) InitJob(w http.ResponseWriter, r *http.Request) {
	from, ok := caller(w, r)
	if !ok {
		return
	}
	var req models.InitJobRequest
	if !decode(w, r, &req) {
		return
	}
	if req.JobID == "" {
		respondError(w, http.StatusBadRequest, "job_id is required")
		return
	}
	payment, err := req.Payment.ToLedger()
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	rec, err := h.Validation.InitJob(r.Context(), from, validation.InitJobParams{
		JobID:     req.JobID,
		AgentID:   req.AgentID,
		ServiceID: req.ServiceID,
	}, payment)
	if err != nil {
		respondCallError(w, err, rec)
		return
	}
	log.Info().Str("job_id", req.JobID).Uint64("agent_id", req.AgentID).Msg("Job initialized")
	respondReceipt(w, http.StatusCreated, rec, nil)
}

// ListJobs returns every job. With ?expired=true only jobs past the
// retention window are listed.
// GET /api/v1/validation/jobs
func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	var at time.Time
	if r.URL.Query().Get("expired") == "true" {
		at = h.Ledger.Clock().Now()
	}
	jobs, err := h.Validation.ListJobs(r.Context(), at)
	if err != nil {
		respondCallError(w, err, nil)
		return
	}
	respondJSON(w, http.StatusOK, jobs)
}

// GET /api/v1/validation/jobs/{jobID}
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.Validation.Job(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		respondCallError(w, err, nil)
		return
	}
	respondJSON(w, http.StatusOK, job)
}

// GET /api/v1/validation/jobs/{jobID}/verified
func (h *Handlers) IsJobVerified(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	verified, err := h.Validation.IsJobVerified(r.Context(), jobID)
	if err != nil {
		respondCallError(w, err, nil)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"job_id": jobID, "verified": verified})
}

// SubmitProof records proof of work. With a capability in the body the
// capability is checked against the hired agent and returned.
// POST /api/v1/validation/jobs/{jobID}/proof
func (h *Handlers) SubmitProof(w http.ResponseWriter, r *http.Request) {
	from, ok := caller(w, r)
	if !ok {
		return
	}
	var req models.SubmitProofRequest
	if !decode(w, r, &req) {
		return
	}
	jobID := chi.URLParam(r, "jobID")
	if req.Capability == nil {
		rec, err := h.Validation.SubmitProof(r.Context(), from, jobID, []byte(req.Proof))
		if err != nil {
			respondCallError(w, err, rec)
			return
		}
		respondReceipt(w, http.StatusOK, rec, nil)
		return
	}
	capability, rec, err := h.Validation.SubmitProofWithCapability(r.Context(), from, jobID, []byte(req.Proof), req.Capability.ToIdentity(from))
	if err != nil {
		respondCallError(w, err, rec)
		return
	}
	respondReceipt(w, http.StatusOK, rec, capability)
}

// CleanJobs deletes the listed jobs that are past the retention window.
// POST /api/v1/validation/jobs/clean
func (h *Handlers) CleanJobs(w http.ResponseWriter, r *http.Request) {
	from, ok := caller(w, r)
	if !ok {
		return
	}
	var req models.CleanJobsRequest
	if !decode(w, r, &req) {
		return
	}
	deleted, rec, err := h.Validation.CleanOldJobs(r.Context(), from, req.JobIDs)
	if err != nil {
		respondCallError(w, err, rec)
		return
	}
	respondReceipt(w, http.StatusOK, rec, models.CleanJobsResult{Deleted: deleted})
}

// POST /api/v1/validation/requests
func (h *Handlers) RequestValidation(w http.ResponseWriter, r *http.Request) {
	from, ok := caller(w, r)
	if !ok {
		return
	}
	var req models.ValidationRequestRequest
	if !decode(w, r, &req) {
		return
	}
	rec, err := h.Validation.ValidationRequest(r.Context(), from, validation.RequestParams{
		JobID:       req.JobID,
		Validator:   req.Validator,
		RequestURI:  req.RequestURI,
		RequestHash: req.RequestHash,
	})
	if err != nil {
		respondCallError(w, err, rec)
		return
	}
	respondReceipt(w, http.StatusCreated, rec, nil)
}

// GET /api/v1/validation/requests/{requestHash}
func (h *Handlers) GetValidationStatus(w http.ResponseWriter, r *http.Request) {
	req, err := h.Validation.ValidationStatus(r.Context(), chi.URLParam(r, "requestHash"))
	if err != nil {
		respondCallError(w, err, nil)
		return
	}
	respondJSON(w, http.StatusOK, req)
}

// RespondValidation records the validator's score for a request.
// POST /api/v1/validation/requests/{requestHash}/response
func (h *Handlers) RespondValidation(w http.ResponseWriter, r *http.Request) {
	from, ok := caller(w, r)
	if !ok {
		return
	}
	var req models.ValidationResponseRequest
	if !decode(w, r, &req) {
		return
	}
	requestHash := chi.URLParam(r, "requestHash")
	rec, err := h.Validation.ValidationResponse(r.Context(), from, validation.ResponseParams{
		RequestHash:  requestHash,
		Response:     req.Response,
		ResponseURI:  req.ResponseURI,
		ResponseHash: []byte(req.ResponseHash),
		Tag:          req.Tag,
	})
	if err != nil {
		respondCallError(w, err, rec)
		return
	}
	log.Info().Str("request_hash", requestHash).Uint8("response", req.Response).Msg("Validation response recorded")
	respondReceipt(w, http.StatusOK, rec, nil)
}

// GET /api/v1/validation/agents/{agentID}/requests
func (h *Handlers) AgentValidations(w http.ResponseWriter, r *http.Request) {
	agentID, ok := uint64Param(w, r, "agentID")
	if !ok {
		return
	}
	hashes, err := h.Validation.AgentValidations(r.Context(), agentID)
	if err != nil {
		respondCallError(w, err, nil)
		return
	}
	respondJSON(w, http.StatusOK, hashes)
}

// GET /api/v1/validation/identity-registry
func (h *Handlers) GetValidationIdentityRegistry(w http.ResponseWriter, r *http.Request) {
	addr, err := h.Validation.IdentityRegistryAddress(r.Context())
	if err != nil {
		respondCallError(w, err, nil)
		return
	}
	respondJSON(w, http.StatusOK, models.AddressRequest{Address: addr})
}

// Deployer only.
// PUT /api/v1/validation/identity-registry
func (h *Handlers) SetValidationIdentityRegistry(w http.ResponseWriter, r *http.Request) {
	h.setRegistryAddress(w, r, h.Validation.SetIdentityRegistryAddress)
}
