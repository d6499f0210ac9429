// Package models holds the JSON request and response bodies of the market
// API. Amounts travel as decimal strings.
package models

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/agentoven/agentmarket/internal/identity"
	"github.com/agentoven/agentmarket/internal/ledger"
)

// ParseAmount decodes a decimal amount. Empty means zero.
func ParseAmount(s string) (*uint256.Int, error) {
	if s == "" {
		return new(uint256.Int), nil
	}
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return v, nil
}

// ── Value ────────────────────────────────────────────────────

// Payment is a value attached to a call.
type Payment struct {
	Token  ledger.TokenID `json:"token"`
	Nonce  uint64         `json:"nonce"`
	Amount string         `json:"amount"`
}

// ToLedger converts p. A nil payment stays nil.
func (p *Payment) ToLedger() (*ledger.Payment, error) {
	if p == nil {
		return nil, nil
	}
	amt, err := ParseAmount(p.Amount)
	if err != nil {
		return nil, err
	}
	token := p.Token
	if token == "" {
		token = ledger.NativeToken
	}
	return &ledger.Payment{Token: token, Nonce: p.Nonce, Amount: amt}, nil
}

// Balance is one account balance.
type Balance struct {
	Owner  ledger.Address `json:"owner"`
	Token  ledger.TokenID `json:"token"`
	Nonce  uint64         `json:"nonce"`
	Amount string         `json:"amount"`
}

// FaucetRequest mints test funds.
type FaucetRequest struct {
	Address ledger.Address `json:"address"`
	Payment
}

// ── Identity ─────────────────────────────────────────────────

type IssueTokenRequest struct {
	DisplayName string `json:"display_name"`
	Ticker      string `json:"ticker"`
}

type Metadata struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type Service struct {
	ServiceID uint32         `json:"service_id"`
	Price     string         `json:"price"`
	Token     ledger.TokenID `json:"token"`
	Nonce     uint64         `json:"nonce"`
}

// Capability is the identity token presented by an agent owner.
type Capability struct {
	TokenID ledger.TokenID `json:"token_id"`
	AgentID uint64         `json:"agent_id"`
}

func (c Capability) ToIdentity(holder ledger.Address) identity.Capability {
	return identity.Capability{TokenID: c.TokenID, AgentID: c.AgentID, Holder: holder}
}

// AgentRequest registers an agent. On update, nil Metadata or Services
// leave the stored entries untouched.
type AgentRequest struct {
	Name      string     `json:"name"`
	URI       string     `json:"uri"`
	PublicKey string     `json:"public_key"`
	Metadata  []Metadata `json:"metadata,omitempty"`
	Services  []Service  `json:"services,omitempty"`
}

type UpdateAgentRequest struct {
	Capability Capability `json:"capability"`
	AgentRequest
}

type MetadataRequest struct {
	Entries []Metadata `json:"entries"`
}

type RemoveMetadataRequest struct {
	Keys []string `json:"keys"`
}

type ServicesRequest struct {
	Services []Service `json:"services"`
}

type RemoveServicesRequest struct {
	ServiceIDs []uint32 `json:"service_ids"`
}

// MetadataEntries converts the wire form.
func MetadataEntries(in []Metadata) []identity.MetadataEntry {
	if in == nil {
		return nil
	}
	out := make([]identity.MetadataEntry, len(in))
	for i, m := range in {
		out[i] = identity.MetadataEntry{Key: m.Key, Value: []byte(m.Value)}
	}
	return out
}

// ServiceConfigs converts the wire form. An empty token means native.
func ServiceConfigs(in []Service) ([]identity.ServiceConfig, error) {
	if in == nil {
		return nil, nil
	}
	out := make([]identity.ServiceConfig, len(in))
	for i, s := range in {
		price, err := ParseAmount(s.Price)
		if err != nil {
			return nil, fmt.Errorf("service %d: %w", s.ServiceID, err)
		}
		token := s.Token
		if token == "" {
			token = ledger.NativeToken
		}
		out[i] = identity.ServiceConfig{ServiceID: s.ServiceID, Price: price, Token: token, Nonce: s.Nonce}
	}
	return out, nil
}

// ── Validation ───────────────────────────────────────────────

type InitJobRequest struct {
	JobID     string   `json:"job_id"`
	AgentID   uint64   `json:"agent_id"`
	ServiceID *uint32  `json:"service_id,omitempty"`
	Payment   *Payment `json:"payment,omitempty"`
}

// SubmitProofRequest records proof. With a capability the caller must be
// the hired agent's owner.
type SubmitProofRequest struct {
	Proof      string      `json:"proof"`
	Capability *Capability `json:"capability,omitempty"`
}

type ValidationRequestRequest struct {
	JobID       string         `json:"job_id"`
	Validator   ledger.Address `json:"validator_address"`
	RequestURI  string         `json:"request_uri"`
	RequestHash string         `json:"request_hash"`
}

type ValidationResponseRequest struct {
	Response     uint8  `json:"response"`
	ResponseURI  string `json:"response_uri"`
	ResponseHash string `json:"response_hash"`
	Tag          string `json:"tag"`
}

type CleanJobsRequest struct {
	JobIDs []string `json:"job_ids"`
}

type CleanJobsResult struct {
	Deleted []string `json:"deleted"`
}

// AddressRequest repoints a configured registry address.
type AddressRequest struct {
	Address ledger.Address `json:"address"`
}

// ── Reputation ───────────────────────────────────────────────

type RatingRequest struct {
	AgentID uint64 `json:"agent_id"`
	Rating  string `json:"rating"`
}

type FeedbackRequest struct {
	Value         int64  `json:"value"`
	ValueDecimals uint8  `json:"value_decimals"`
	Tag1          string `json:"tag1"`
	Tag2          string `json:"tag2"`
	Endpoint      string `json:"endpoint"`
	FeedbackURI   string `json:"feedback_uri"`
	FeedbackHash  string `json:"feedback_hash"`
}

type FeedbackResult struct {
	FeedbackIndex uint64 `json:"feedback_index"`
}

type AppendResponseRequest struct {
	ResponseURI string `json:"response_uri"`
}

// JobFeedback is the reputation state attached to one job.
type JobFeedback struct {
	JobID            string `json:"job_id"`
	HasGivenFeedback bool   `json:"has_given_feedback"`
	AgentResponse    string `json:"agent_response,omitempty"`
}

// ── Escrow ───────────────────────────────────────────────────

type DepositRequest struct {
	JobID    string         `json:"job_id"`
	Receiver ledger.Address `json:"receiver"`
	PoaHash  string         `json:"poa_hash"`
	Deadline int64          `json:"deadline"`
	Payment  *Payment       `json:"payment"`
}

// ── Envelope ─────────────────────────────────────────────────

// Response headers describing the ledger call behind a request.
const (
	ReceiptIDHeader     = "X-Receipt-Id"
	ReceiptStatusHeader = "X-Receipt-Status"
	ErrorKindHeader     = "X-Error-Kind"
)

// ReceiptResponse wraps the receipt of a committed call and its result.
type ReceiptResponse struct {
	Receipt *ledger.Receipt `json:"receipt"`
	Result  any             `json:"result,omitempty"`
}

// ErrorResponse is returned for every failed request. Receipt is set when
// the call reached the ledger and reverted.
type ErrorResponse struct {
	Error   string          `json:"error"`
	Kind    string          `json:"kind,omitempty"`
	Receipt *ledger.Receipt `json:"receipt,omitempty"`
}

// Registries lists the deployed program addresses.
type Registries struct {
	Identity   ledger.Address `json:"identity"`
	Validation ledger.Address `json:"validation"`
	Reputation ledger.Address `json:"reputation"`
	Escrow     ledger.Address `json:"escrow"`
}
