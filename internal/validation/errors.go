package validation

import "github.com/agentoven/agentmarket/internal/ledger"

var (
	ErrJobAlreadyInitialized = ledger.NewError(ledger.KindDuplicate, "Job already initialized")
	ErrJobNotFound           = ledger.NewError(ledger.KindNotFound, "Job not found")
	ErrAgentNotFound         = ledger.NewError(ledger.KindNotFound, "Agent not found")
	ErrServiceNotFound       = ledger.NewError(ledger.KindNotFound, "Service config not found for agent")
	ErrInsufficientPayment   = ledger.NewError(ledger.KindPayment, "Insufficient payment")
	ErrInvalidPayment        = ledger.NewError(ledger.KindPayment, "Invalid payment token")
	ErrUnexpectedPayment     = ledger.NewError(ledger.KindPayment, "Payment requires a service id")
	ErrNotAgentOwner         = ledger.NewError(ledger.KindAuthorization, "Only the agent owner can call this")
	ErrRequestNotFound       = ledger.NewError(ledger.KindNotFound, "Validation request not found")
	ErrRequestExists         = ledger.NewError(ledger.KindDuplicate, "Validation request already exists")
	ErrNotValidator          = ledger.NewError(ledger.KindAuthorization, "Only the designated validator can respond")
	ErrInvalidResponse       = ledger.NewError(ledger.KindPrecondition, "Response must be between 0 and 100")
	ErrInvalidAgentNFT       = ledger.NewError(ledger.KindAuthorization, "Invalid agent NFT: wrong token ID or nonce")
)
