package reputation

import "github.com/agentoven/agentmarket/internal/ledger"

var (
	ErrJobNotFound             = ledger.NewError(ledger.KindNotFound, "Job not found")
	ErrNotEmployer             = ledger.NewError(ledger.KindAuthorization, "Only the employer can provide feedback")
	ErrFeedbackAlreadyProvided = ledger.NewError(ledger.KindDuplicate, "Feedback already provided for this job")
	ErrSelfReview              = ledger.NewError(ledger.KindAuthorization, "Agent owner cannot give feedback to own agent")
	ErrInvalidValueDecimals    = ledger.NewError(ledger.KindPrecondition, "Value decimals must be 0-18")
	ErrFeedbackNotFound        = ledger.NewError(ledger.KindNotFound, "Feedback not found")
	ErrFeedbackAlreadyRevoked  = ledger.NewError(ledger.KindDuplicate, "Feedback already revoked")
	ErrOwnerLookupUnavailable  = ledger.NewError(ledger.KindNotCoLocated, "Identity registry unavailable for self-review check")
	ErrScoreOverflow           = ledger.NewError(ledger.KindPrecondition, "Rating overflows the score")
)
