package reputation

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/agentoven/agentmarket/internal/identity"
	"github.com/agentoven/agentmarket/internal/ledger"
	"github.com/agentoven/agentmarket/internal/validation"
)

var (
	validationAddress = ledger.NewMapper[ledger.Address]("validationContractAddress")
	identityAddress   = ledger.NewMapper[ledger.Address]("identityContractAddress")

	reputationScore  = ledger.NewMapper[*uint256.Int]("reputationScore")
	totalJobs        = ledger.NewMapper[uint64]("totalJobs")
	hasGivenFeedback = ledger.NewMapper[bool]("hasGivenFeedback")
	agentResponse    = ledger.NewMapper[string]("agentResponse")

	feedbackData      = ledger.NewMapper[Feedback]("feedbackData")
	lastFeedbackIndex = ledger.NewMapper[uint64]("lastFeedbackIndex")
	feedbackClients   = ledger.NewMapper[bool]("feedbackClients")
)

func openProgram(c *ledger.CallContext, ref ledger.Mapper[ledger.Address]) (ledger.Reader, error) {
	addr, ok, err := ref.Get(c.Storage())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ledger.ErrUnknownProgram
	}
	return c.Reader().At(addr)
}

// loadJob reads a job from the validation registry. Any failure to reach
// the registry is reported as a missing job with the cause attached.
func loadJob(c *ledger.CallContext, jobID string) (validation.Job, error) {
	r, err := openProgram(c, validationAddress)
	if err != nil {
		return validation.Job{}, fmt.Errorf("%w: %w", ErrJobNotFound, err)
	}
	job, ok, err := validation.ReadJob(r, jobID)
	if err != nil {
		return validation.Job{}, err
	}
	if !ok {
		return validation.Job{}, ErrJobNotFound
	}
	return job, nil
}

// requireNotOwner rejects a caller that owns agentID. If the identity
// registry cannot be read the check fails closed.
func requireNotOwner(c *ledger.CallContext, agentID uint64) error {
	r, err := openProgram(c, identityAddress)
	if err != nil {
		if errors.Is(err, ledger.ErrNotCoLocated) || errors.Is(err, ledger.ErrUnknownProgram) {
			return fmt.Errorf("%w: %w", ErrOwnerLookupUnavailable, err)
		}
		return err
	}
	owned, ok, err := identity.ReadAgentID(r, c.Caller())
	if err != nil {
		return err
	}
	if ok && owned == agentID {
		return ErrSelfReview
	}
	return nil
}

func scoreOf(r ledger.Reader, agentID uint64) (*uint256.Int, error) {
	s, ok, err := reputationScore.Get(r, ledger.U64(agentID))
	if err != nil {
		return nil, err
	}
	if !ok || s == nil {
		return new(uint256.Int), nil
	}
	return s, nil
}

// nextScore is the truncating running average (old*n + rating) / (n+1).
func nextScore(old *uint256.Int, n uint64, rating *uint256.Int) (*uint256.Int, error) {
	weighted, overflow := new(uint256.Int).MulOverflow(old, uint256.NewInt(n))
	if overflow {
		return nil, ErrScoreOverflow
	}
	if _, overflow := weighted.AddOverflow(weighted, rating); overflow {
		return nil, ErrScoreOverflow
	}
	return weighted.Div(weighted, uint256.NewInt(n+1)), nil
}
