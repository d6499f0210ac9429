// Package identity is the agent identity registry program.
//
// Each owner address may register one agent. Registration mints a
// soulbound capability naming the registry's token class and the agent id;
// the holder presents it to prove ownership when updating the agent or
// submitting proofs. The registry also keeps per-agent metadata and a
// price list of services that the validation registry reads when a job is
// created.
package identity

import (
	"github.com/holiman/uint256"

	"github.com/agentoven/agentmarket/internal/ledger"
)

// Agent is the public view of a registered agent.
type Agent struct {
	ID        uint64         `json:"agent_id"`
	Owner     ledger.Address `json:"owner"`
	Name      string         `json:"name"`
	URI       string         `json:"uri"`
	PublicKey []byte         `json:"public_key"`
}

// Details is the token data stored per agent.
type Details struct {
	Name      string `json:"name" cbor:"1,keyasint"`
	URI       string `json:"uri" cbor:"2,keyasint"`
	PublicKey []byte `json:"public_key" cbor:"3,keyasint"`
}

// MetadataEntry is one key/value pair attached to an agent.
type MetadataEntry struct {
	Key   string `json:"key"`
	Value []byte `json:"value"`
}

// ServiceConfig is the price of one service an agent sells.
// A zero price means the service is free.
type ServiceConfig struct {
	ServiceID uint32         `json:"service_id" cbor:"1,keyasint"`
	Price     *uint256.Int   `json:"price" cbor:"2,keyasint"`
	Token     ledger.TokenID `json:"token" cbor:"3,keyasint"`
	Nonce     uint64         `json:"nonce" cbor:"4,keyasint"`
}

// PriceOf returns the configured price as a payment.
func (s ServiceConfig) PriceOf() ledger.Payment {
	return ledger.Payment{Token: s.Token, Nonce: s.Nonce, Amount: s.priceValue()}
}

func (s ServiceConfig) priceValue() *uint256.Int {
	if s.Price == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(s.Price)
}

// IsFree reports whether the service has a zero price.
func (s ServiceConfig) IsFree() bool {
	return s.Price == nil || s.Price.IsZero()
}

// Capability is the soulbound identity token held by an agent's owner.
// It is never transferable; it is presented with update and proof calls
// and handed back to the presenter.
type Capability struct {
	TokenID ledger.TokenID `json:"token_id"`
	AgentID uint64         `json:"agent_id"`
	Holder  ledger.Address `json:"holder"`
}

// TokenInfo describes the issued identity token class.
type TokenInfo struct {
	TokenID     ledger.TokenID `json:"token_id" cbor:"1,keyasint"`
	DisplayName string         `json:"display_name" cbor:"2,keyasint"`
	Ticker      string         `json:"ticker" cbor:"3,keyasint"`
}

// RegisterParams are the inputs of Register.
type RegisterParams struct {
	Name      string          `json:"name"`
	URI       string          `json:"uri"`
	PublicKey []byte          `json:"public_key"`
	Metadata  []MetadataEntry `json:"metadata,omitempty"`
	Services  []ServiceConfig `json:"services,omitempty"`
}

// UpdateParams are the inputs of Update. Nil Metadata or Services leave
// the existing entries untouched.
type UpdateParams struct {
	Name      string          `json:"name"`
	URI       string          `json:"uri"`
	PublicKey []byte          `json:"public_key"`
	Metadata  []MetadataEntry `json:"metadata,omitempty"`
	Services  []ServiceConfig `json:"services,omitempty"`
}

// Event payloads.

type AgentRegisteredEvent struct {
	Owner   ledger.Address `json:"owner"`
	AgentID uint64         `json:"agent_id"`
	Name    string         `json:"name"`
	URI     string         `json:"uri"`
}

type AgentEvent struct {
	AgentID uint64 `json:"agent_id"`
}

type TokenIssuedEvent struct {
	TokenID     ledger.TokenID `json:"token_id"`
	DisplayName string         `json:"display_name"`
}
