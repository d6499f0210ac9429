package reputation

import (
	"context"

	"github.com/holiman/uint256"

	"github.com/agentoven/agentmarket/internal/ledger"
)

// ProgramName is the deployment name of the registry.
const ProgramName = "reputation-registry"

// Registry is a handle on a deployed reputation registry.
type Registry struct {
	l    *ledger.Ledger
	addr ledger.Address
}

// Deploy deploys a reputation registry wired to the given validation and
// identity registries.
func Deploy(ctx context.Context, l *ledger.Ledger, deployer ledger.Address, shard uint32, validationAddr, identityAddr ledger.Address) (*Registry, error) {
	addr, err := l.Deploy(deployer, ProgramName, shard)
	if err != nil {
		return nil, err
	}
	r := &Registry{l: l, addr: addr}
	if _, err := r.exec(ctx, deployer, "init", func(c *ledger.CallContext) error {
		if _, err := validationAddress.SetIfAbsent(c.Storage(), validationAddr); err != nil {
			return err
		}
		_, err := identityAddress.SetIfAbsent(c.Storage(), identityAddr)
		return err
	}); err != nil {
		return nil, err
	}
	return r, nil
}

// Attach returns a handle on an already deployed registry.
func Attach(l *ledger.Ledger, addr ledger.Address) *Registry {
	return &Registry{l: l, addr: addr}
}

func (r *Registry) Address() ledger.Address { return r.addr }

func (r *Registry) exec(ctx context.Context, caller ledger.Address, entry string, fn ledger.Entry) (*ledger.Receipt, error) {
	return r.l.Execute(ctx, ledger.Call{To: r.addr, Caller: caller, Entry: entry}, fn)
}

// SetValidationContractAddress repoints the validation registry. Deployer only.
func (r *Registry) SetValidationContractAddress(ctx context.Context, caller, addr ledger.Address) (*ledger.Receipt, error) {
	return r.exec(ctx, caller, "set_validation_contract_address", func(c *ledger.CallContext) error {
		if err := c.RequireDeployer(); err != nil {
			return err
		}
		return validationAddress.Set(c.Storage(), addr)
	})
}

// SetIdentityContractAddress repoints the identity registry. Deployer only.
func (r *Registry) SetIdentityContractAddress(ctx context.Context, caller, addr ledger.Address) (*ledger.Receipt, error) {
	return r.exec(ctx, caller, "set_identity_contract_address", func(c *ledger.CallContext) error {
		if err := c.RequireDeployer(); err != nil {
			return err
		}
		return identityAddress.Set(c.Storage(), addr)
	})
}

// GiveFeedbackSimple folds one employer rating for jobID into the agent's
// running average. Each job can be rated once, by its employer.
func (r *Registry) GiveFeedbackSimple(ctx context.Context, caller ledger.Address, jobID string, agentID uint64, rating *uint256.Int) (*ledger.Receipt, error) {
	return r.exec(ctx, caller, "giveFeedbackSimple", func(c *ledger.CallContext) error {
		job, err := loadJob(c, jobID)
		if err != nil {
			return err
		}
		if c.Caller() != job.Employer {
			return ErrNotEmployer
		}
		st := c.Storage()
		given, _, err := hasGivenFeedback.Get(st, ledger.Str(jobID))
		if err != nil {
			return err
		}
		if given {
			return ErrFeedbackAlreadyProvided
		}

		old, err := scoreOf(st, agentID)
		if err != nil {
			return err
		}
		n, _, err := totalJobs.Get(st, ledger.U64(agentID))
		if err != nil {
			return err
		}
		if rating == nil {
			rating = new(uint256.Int)
		}
		score, err := nextScore(old, n, rating)
		if err != nil {
			return err
		}

		if err := reputationScore.Set(st, score, ledger.U64(agentID)); err != nil {
			return err
		}
		if err := totalJobs.Set(st, n+1, ledger.U64(agentID)); err != nil {
			return err
		}
		if err := hasGivenFeedback.Set(st, true, ledger.Str(jobID)); err != nil {
			return err
		}
		c.Emit("reputationUpdated", ReputationUpdatedEvent{
			AgentID:   agentID,
			JobID:     jobID,
			Employer:  c.Caller(),
			Score:     score,
			TotalJobs: n + 1,
		})
		return nil
	})
}

// GiveFeedback records a raw feedback signal and returns its index. The
// agent's owner may not review their own agent.
func (r *Registry) GiveFeedback(ctx context.Context, caller ledger.Address, p FeedbackParams) (uint64, *ledger.Receipt, error) {
	var index uint64
	rec, err := r.exec(ctx, caller, "giveFeedback", func(c *ledger.CallContext) error {
		if err := requireNotOwner(c, p.AgentID); err != nil {
			return err
		}
		if p.ValueDecimals > MaxValueDecimals {
			return ErrInvalidValueDecimals
		}

		st := c.Storage()
		client := c.Caller()
		agentKey, clientKey := ledger.U64(p.AgentID), ledger.AddressKey(client)
		last, _, err := lastFeedbackIndex.Get(st, agentKey, clientKey)
		if err != nil {
			return err
		}
		index = last + 1
		if err := lastFeedbackIndex.Set(st, index, agentKey, clientKey); err != nil {
			return err
		}
		if err := feedbackClients.Set(st, true, agentKey, clientKey); err != nil {
			return err
		}
		fb := Feedback{
			Value:         p.Value,
			ValueDecimals: p.ValueDecimals,
			Tag1:          p.Tag1,
			Tag2:          p.Tag2,
		}
		if err := feedbackData.Set(st, fb, agentKey, clientKey, ledger.U64(index)); err != nil {
			return err
		}

		c.Emit("newFeedback", NewFeedbackEvent{
			AgentID:       p.AgentID,
			Client:        client,
			FeedbackIndex: index,
			Value:         p.Value,
			ValueDecimals: p.ValueDecimals,
			Tag1:          p.Tag1,
			Tag2:          p.Tag2,
			Endpoint:      p.Endpoint,
			FeedbackURI:   p.FeedbackURI,
			FeedbackHash:  p.FeedbackHash,
		})
		return nil
	})
	if err != nil {
		return 0, rec, err
	}
	return index, rec, nil
}

// RevokeFeedback flags one of the caller's feedback records as revoked.
func (r *Registry) RevokeFeedback(ctx context.Context, caller ledger.Address, agentID, index uint64) (*ledger.Receipt, error) {
	return r.exec(ctx, caller, "revokeFeedback", func(c *ledger.CallContext) error {
		st := c.Storage()
		keys := [][]byte{ledger.U64(agentID), ledger.AddressKey(c.Caller()), ledger.U64(index)}
		fb, ok, err := feedbackData.Get(st, keys...)
		if err != nil {
			return err
		}
		if !ok {
			return ErrFeedbackNotFound
		}
		if fb.Revoked {
			return ErrFeedbackAlreadyRevoked
		}
		fb.Revoked = true
		if err := feedbackData.Set(st, fb, keys...); err != nil {
			return err
		}
		c.Emit("feedbackRevoked", FeedbackRevokedEvent{AgentID: agentID, Client: c.Caller(), FeedbackIndex: index})
		return nil
	})
}

// AppendResponse attaches a response URI to a job's feedback. Anyone may
// call it; the job must exist in the validation registry.
func (r *Registry) AppendResponse(ctx context.Context, caller ledger.Address, jobID, responseURI string) (*ledger.Receipt, error) {
	return r.exec(ctx, caller, "append_response", func(c *ledger.CallContext) error {
		if _, err := loadJob(c, jobID); err != nil {
			return err
		}
		if err := agentResponse.Set(c.Storage(), responseURI, ledger.Str(jobID)); err != nil {
			return err
		}
		c.Emit("responseAppended", ResponseAppendedEvent{JobID: jobID, Responder: c.Caller(), ResponseURI: responseURI})
		return nil
	})
}
