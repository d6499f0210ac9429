package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog/log"

	"github.com/agentoven/agentmarket/internal/ledger"
	"github.com/agentoven/agentmarket/pkg/models"
)

// GET /api/v1/bank/{address}
func (h *Handlers) ListHoldings(w http.ResponseWriter, r *http.Request) {
	owner, ok := addressParam(w, r, "address")
	if !ok {
		return
	}
	holdings, err := h.Ledger.Holdings(owner)
	if err != nil {
		respondCallError(w, err, nil)
		return
	}
	out := make([]models.Balance, len(holdings))
	for i, hd := range holdings {
		out[i] = models.Balance{Owner: owner, Token: hd.Token, Nonce: hd.Nonce, Amount: hd.Amount.Dec()}
	}
	respondJSON(w, http.StatusOK, out)
}

// GetBalance returns one balance. ?nonce= selects a non-fungible nonce.
// GET /api/v1/bank/{address}/{token}
func (h *Handlers) GetBalance(w http.ResponseWriter, r *http.Request) {
	owner, ok := addressParam(w, r, "address")
	if !ok {
		return
	}
	var nonce uint64
	if v := r.URL.Query().Get("nonce"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid nonce")
			return
		}
		nonce = n
	}
	token := ledger.TokenID(chi.URLParam(r, "token"))
	bal, err := h.Ledger.Balance(owner, token, nonce)
	if err != nil {
		respondCallError(w, err, nil)
		return
	}
	respondJSON(w, http.StatusOK, models.Balance{Owner: owner, Token: token, Nonce: nonce, Amount: bal.Value().Dec()})
}

// Faucet mints test funds when enabled. Only the native token is minted.
// POST /api/v1/bank/faucet
func (h *Handlers) Faucet(w http.ResponseWriter, r *http.Request) {
	if !h.FaucetConfig.Enabled {
		respondError(w, http.StatusForbidden, "faucet is disabled")
		return
	}
	var req models.FaucetRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Address.IsZero() {
		respondError(w, http.StatusBadRequest, "address is required")
		return
	}
	p, err := req.Payment.ToLedger()
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if p.Token != ledger.NativeToken || p.Nonce != 0 {
		respondError(w, http.StatusBadRequest, "faucet only mints the native token")
		return
	}
	if p.Amount.IsZero() || p.Amount.Gt(uint256.NewInt(h.FaucetConfig.Max)) {
		respondError(w, http.StatusBadRequest, "amount must be between 1 and the faucet limit")
		return
	}
	if err := h.Ledger.Mint(r.Context(), req.Address, *p); err != nil {
		respondCallError(w, err, nil)
		return
	}
	log.Info().Str("address", req.Address.Short()).Str("amount", p.String()).Msg("🚰 Faucet mint")
	respondJSON(w, http.StatusCreated, models.Balance{Owner: req.Address, Token: p.Token, Amount: p.Amount.Dec()})
}
