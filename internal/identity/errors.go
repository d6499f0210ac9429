package identity

import "github.com/agentoven/agentmarket/internal/ledger"

var (
	ErrTokenAlreadyIssued     = ledger.NewError(ledger.KindDuplicate, "Token already issued")
	ErrTokenNotIssued         = ledger.NewError(ledger.KindPrecondition, "Token not issued")
	ErrAgentAlreadyRegistered = ledger.NewError(ledger.KindDuplicate, "Agent already registered for this address")
	ErrInvalidCapability      = ledger.NewError(ledger.KindAuthorization, "Invalid NFT sent")
	ErrNotOwner               = ledger.NewError(ledger.KindAuthorization, "Only the agent owner can call this")
	ErrAgentNotFound          = ledger.NewError(ledger.KindNotFound, "Agent not found")
	ErrInvalidTicker          = ledger.NewError(ledger.KindPrecondition, "Ticker must be 3-10 uppercase alphanumeric characters")
)
