package reputation

import (
	"context"

	"github.com/agentoven/agentmarket/internal/ledger"
)

func (r *Registry) view(ctx context.Context, fn ledger.Entry) error {
	return r.l.View(ctx, r.addr, fn)
}

// Score returns the simple-mode score and job count of agentID.
func (r *Registry) Score(ctx context.Context, agentID uint64) (Score, error) {
	out := Score{AgentID: agentID}
	err := r.view(ctx, func(c *ledger.CallContext) error {
		st := c.Storage()
		s, err := scoreOf(st, agentID)
		if err != nil {
			return err
		}
		out.Score = s
		out.TotalJobs, _, err = totalJobs.Get(st, ledger.U64(agentID))
		return err
	})
	return out, err
}

// HasGivenFeedback reports whether jobID has already been rated.
func (r *Registry) HasGivenFeedback(ctx context.Context, jobID string) (bool, error) {
	var out bool
	err := r.view(ctx, func(c *ledger.CallContext) error {
		var err error
		out, _, err = hasGivenFeedback.Get(c.Storage(), ledger.Str(jobID))
		return err
	})
	return out, err
}

// AgentResponse returns the response URI appended to jobID, if any.
func (r *Registry) AgentResponse(ctx context.Context, jobID string) (string, error) {
	var out string
	err := r.view(ctx, func(c *ledger.CallContext) error {
		var err error
		out, _, err = agentResponse.Get(c.Storage(), ledger.Str(jobID))
		return err
	})
	return out, err
}

// ReadFeedback returns one feedback record.
func (r *Registry) ReadFeedback(ctx context.Context, agentID uint64, client ledger.Address, index uint64) (Feedback, error) {
	var out Feedback
	err := r.view(ctx, func(c *ledger.CallContext) error {
		fb, ok, err := feedbackData.Get(c.Storage(), ledger.U64(agentID), ledger.AddressKey(client), ledger.U64(index))
		if err != nil {
			return err
		}
		if !ok {
			return ErrFeedbackNotFound
		}
		out = fb
		return nil
	})
	return out, err
}

// LastIndex returns the highest feedback index client has used for agentID.
func (r *Registry) LastIndex(ctx context.Context, agentID uint64, client ledger.Address) (uint64, error) {
	var out uint64
	err := r.view(ctx, func(c *ledger.CallContext) error {
		var err error
		out, _, err = lastFeedbackIndex.Get(c.Storage(), ledger.U64(agentID), ledger.AddressKey(client))
		return err
	})
	return out, err
}

// Clients returns every address that has given feedback to agentID.
func (r *Registry) Clients(ctx context.Context, agentID uint64) ([]ledger.Address, error) {
	out := []ledger.Address{}
	err := r.view(ctx, func(c *ledger.CallContext) error {
		return feedbackClients.Each(c.Storage(), func(rest []byte, _ bool) bool {
			out = append(out, ledger.BytesToAddress(rest))
			return true
		}, ledger.U64(agentID))
	})
	return out, err
}

// Addresses returns the configured validation and identity registries.
func (r *Registry) Addresses(ctx context.Context) (validationAddr, identityAddr ledger.Address, err error) {
	err = r.view(ctx, func(c *ledger.CallContext) error {
		st := c.Storage()
		var err error
		if validationAddr, _, err = validationAddress.Get(st); err != nil {
			return err
		}
		identityAddr, _, err = identityAddress.Get(st)
		return err
	})
	return validationAddr, identityAddr, err
}
