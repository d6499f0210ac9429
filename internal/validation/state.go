package validation

import (
	"fmt"

	"github.com/agentoven/agentmarket/internal/identity"
	"github.com/agentoven/agentmarket/internal/ledger"
)

var (
	identityAddress  = ledger.NewMapper[ledger.Address]("identityRegistryAddress")
	jobData          = ledger.NewMapper[Job]("jobData")
	requestData      = ledger.NewMapper[Request]("validationRequestData")
	agentValidations = ledger.NewMapper[bool]("agentValidations")
)

// ReadJob returns a job from the registry's key space. Reputation and
// escrow call it on a reader obtained from StateReader.At.
func ReadJob(r ledger.Reader, jobID string) (Job, bool, error) {
	return jobData.Get(r, ledger.Str(jobID))
}

func loadJob(r ledger.Reader, jobID string) (Job, error) {
	job, ok, err := ReadJob(r, jobID)
	if err != nil {
		return Job{}, err
	}
	if !ok {
		return Job{}, ErrJobNotFound
	}
	return job, nil
}

// identityReader opens the configured identity registry. A registry that
// cannot be read is reported as absent with the reason attached.
func identityReader(c *ledger.CallContext, absent error) (ledger.Reader, error) {
	addr, ok, err := identityAddress.Get(c.Storage())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %w", absent, ledger.ErrUnknownProgram)
	}
	r, err := c.Reader().At(addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", absent, err)
	}
	return r, nil
}

// agentOwner resolves the owner of agentID in the identity registry.
func agentOwner(c *ledger.CallContext, agentID uint64) (ledger.Address, ledger.Reader, error) {
	r, err := identityReader(c, ErrAgentNotFound)
	if err != nil {
		return ledger.Address{}, nil, err
	}
	owner, ok, err := identity.ReadOwner(r, agentID)
	if err != nil {
		return ledger.Address{}, nil, err
	}
	if !ok {
		return ledger.Address{}, nil, ErrAgentNotFound
	}
	return owner, r, nil
}
