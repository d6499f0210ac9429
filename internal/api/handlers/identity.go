package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/agentoven/agentmarket/internal/identity"
	"github.com/agentoven/agentmarket/pkg/models"
)

// GetIdentity returns the registry address, token class and agent count.
// GET /api/v1/identity
func (h *Handlers) GetIdentity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	out := map[string]any{"address": h.Identity.Address()}
	if info, err := h.Identity.TokenInfo(ctx); err == nil {
		out["token"] = info
	}
	count, err := h.Identity.AgentCount(ctx)
	if err != nil {
		respondCallError(w, err, nil)
		return
	}
	out["agent_count"] = count
	respondJSON(w, http.StatusOK, out)
}

// IssueToken creates the identity token class.
// POST /api/v1/identity/token
func (h *Handlers) IssueToken(w http.ResponseWriter, r *http.Request) {
	from, ok := caller(w, r)
	if !ok {
		return
	}
	var req models.IssueTokenRequest
	if !decode(w, r, &req) {
		return
	}
	id, rec, err := h.Identity.IssueToken(r.Context(), from, req.DisplayName, req.Ticker)
	if err != nil {
		respondCallError(w, err, rec)
		return
	}
	respondReceipt(w, http.StatusCreated, rec, map[string]string{"token_id": string(id)})
}

// RegisterAgent registers the caller's agent and returns its capability.
// POST /api/v1/identity/agents
func (h *Handlers) RegisterAgent(w http.ResponseWriter, r *http.Request) {
	from, ok := caller(w, r)
	if !ok {
		return
	}
	var req models.AgentRequest
	if !decode(w, r, &req) {
		return
	}
	services, err := models.ServiceConfigs(req.Services)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	capability, rec, err := h.Identity.Register(r.Context(), from, identity.RegisterParams{
		Name:      req.Name,
		URI:       req.URI,
		PublicKey: []byte(req.PublicKey),
		Metadata:  models.MetadataEntries(req.Metadata),
		Services:  services,
	})
	if err != nil {
		respondCallError(w, err, rec)
		return
	}
	log.Info().Uint64("agent_id", capability.AgentID).Str("owner", from.Short()).Msg("Agent registered")
	respondReceipt(w, http.StatusCreated, rec, capability)
}

// UpdateAgent rewrites an agent; the body carries the owner's capability.
// PUT /api/v1/identity/agents/{agentID}
func (h *Handlers) UpdateAgent(w http.ResponseWriter, r *http.Request) {
	from, ok := caller(w, r)
	if !ok {
		return
	}
	agentID, ok := uint64Param(w, r, "agentID")
	if !ok {
		return
	}
	var req models.UpdateAgentRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Capability.AgentID != agentID {
		respondError(w, http.StatusBadRequest, "capability does not name this agent")
		return
	}
	services, err := models.ServiceConfigs(req.Services)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	capability, rec, err := h.Identity.Update(r.Context(), from, req.Capability.ToIdentity(from), identity.UpdateParams{
		Name:      req.Name,
		URI:       req.URI,
		PublicKey: []byte(req.PublicKey),
		Metadata:  models.MetadataEntries(req.Metadata),
		Services:  services,
	})
	if err != nil {
		respondCallError(w, err, rec)
		return
	}
	respondReceipt(w, http.StatusOK, rec, capability)
}

// GET /api/v1/identity/agents/{agentID}
func (h *Handlers) GetAgent(w http.ResponseWriter, r *http.Request) {
	agentID, ok := uint64Param(w, r, "agentID")
	if !ok {
		return
	}
	agent, err := h.Identity.Agent(r.Context(), agentID)
	if err != nil {
		respondCallError(w, err, nil)
		return
	}
	respondJSON(w, http.StatusOK, agent)
}

// GET /api/v1/identity/owners/{address}
func (h *Handlers) GetAgentByOwner(w http.ResponseWriter, r *http.Request) {
	owner, ok := addressParam(w, r, "address")
	if !ok {
		return
	}
	id, err := h.Identity.AgentID(r.Context(), owner)
	if err != nil {
		respondCallError(w, err, nil)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"owner": owner, "agent_id": id})
}

// GET /api/v1/identity/agents/{agentID}/metadata
func (h *Handlers) ListMetadata(w http.ResponseWriter, r *http.Request) {
	agentID, ok := uint64Param(w, r, "agentID")
	if !ok {
		return
	}
	entries, err := h.Identity.AllMetadata(r.Context(), agentID)
	if err != nil {
		respondCallError(w, err, nil)
		return
	}
	out := make([]models.Metadata, len(entries))
	for i, e := range entries {
		out[i] = models.Metadata{Key: e.Key, Value: string(e.Value)}
	}
	respondJSON(w, http.StatusOK, out)
}

// GET /api/v1/identity/agents/{agentID}/metadata/{key}
func (h *Handlers) GetMetadata(w http.ResponseWriter, r *http.Request) {
	agentID, ok := uint64Param(w, r, "agentID")
	if !ok {
		return
	}
	key := chi.URLParam(r, "key")
	value, found, err := h.Identity.Metadata(r.Context(), agentID, key)
	if err != nil {
		respondCallError(w, err, nil)
		return
	}
	if !found {
		respondError(w, http.StatusNotFound, "metadata key not set")
		return
	}
	respondJSON(w, http.StatusOK, models.Metadata{Key: key, Value: string(value)})
}

// PUT /api/v1/identity/agents/{agentID}/metadata
func (h *Handlers) SetMetadata(w http.ResponseWriter, r *http.Request) {
	from, ok := caller(w, r)
	if !ok {
		return
	}
	agentID, ok := uint64Param(w, r, "agentID")
	if !ok {
		return
	}
	var req models.MetadataRequest
	if !decode(w, r, &req) {
		return
	}
	rec, err := h.Identity.SetMetadata(r.Context(), from, agentID, models.MetadataEntries(req.Entries))
	if err != nil {
		respondCallError(w, err, rec)
		return
	}
	respondReceipt(w, http.StatusOK, rec, nil)
}

// DELETE /api/v1/identity/agents/{agentID}/metadata
func (h *Handlers) RemoveMetadata(w http.ResponseWriter, r *http.Request) {
	from, ok := caller(w, r)
	if !ok {
		return
	}
	agentID, ok := uint64Param(w, r, "agentID")
	if !ok {
		return
	}
	var req models.RemoveMetadataRequest
	if !decode(w, r, &req) {
		return
	}
	rec, err := h.Identity.RemoveMetadata(r.Context(), from, agentID, req.Keys)
	if err != nil {
		respondCallError(w, err, rec)
		return
	}
	respondReceipt(w, http.StatusOK, rec, nil)
}

// GET /api/v1/identity/agents/{agentID}/services
func (h *Handlers) ListServices(w http.ResponseWriter, r *http.Request) {
	agentID, ok := uint64Param(w, r, "agentID")
	if !ok {
		return
	}
	services, err := h.Identity.Services(r.Context(), agentID)
	if err != nil {
		respondCallError(w, err, nil)
		return
	}
	respondJSON(w, http.StatusOK, services)
}

// GET /api/v1/identity/agents/{agentID}/services/{serviceID}
func (h *Handlers) GetService(w http.ResponseWriter, r *http.Request) {
	agentID, ok := uint64Param(w, r, "agentID")
	if !ok {
		return
	}
	sid, err := strconv.ParseUint(chi.URLParam(r, "serviceID"), 10, 32)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid serviceID")
		return
	}
	svc, found, err := h.Identity.ServiceConfig(r.Context(), agentID, uint32(sid))
	if err != nil {
		respondCallError(w, err, nil)
		return
	}
	if !found {
		respondError(w, http.StatusNotFound, "service not found")
		return
	}
	respondJSON(w, http.StatusOK, svc)
}

// PUT /api/v1/identity/agents/{agentID}/services
func (h *Handlers) SetServices(w http.ResponseWriter, r *http.Request) {
	from, ok := caller(w, r)
	if !ok {
		return
	}
	agentID, ok := uint64Param(w, r, "agentID")
	if !ok {
		return
	}
	var req models.ServicesRequest
	if !decode(w, r, &req) {
		return
	}
	configs, err := models.ServiceConfigs(req.Services)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	rec, err := h.Identity.SetServiceConfigs(r.Context(), from, agentID, configs)
	if err != nil {
		respondCallError(w, err, rec)
		return
	}
	respondReceipt(w, http.StatusOK, rec, nil)
}

// DELETE /api/v1/identity/agents/{agentID}/services
func (h *Handlers) RemoveServices(w http.ResponseWriter, r *http.Request) {
	from, ok := caller(w, r)
	if !ok {
		return
	}
	agentID, ok := uint64Param(w, r, "agentID")
	if !ok {
		return
	}
	var req models.RemoveServicesRequest
	if !decode(w, r, &req) {
		return
	}
	rec, err := h.Identity.RemoveServiceConfigs(r.Context(), from, agentID, req.ServiceIDs)
	if err != nil {
		respondCallError(w, err, rec)
		return
	}
	respondReceipt(w, http.StatusOK, rec, nil)
}
