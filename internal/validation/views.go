package validation

import (
	"context"
	"time"

	"github.com/agentoven/agentmarket/internal/ledger"
)

func (r *Registry) view(ctx context.Context, fn ledger.Entry) error {
	return r.l.View(ctx, r.addr, fn)
}

// Job returns a job by id.
func (r *Registry) Job(ctx context.Context, jobID string) (Job, error) {
	var out Job
	err := r.view(ctx, func(c *ledger.CallContext) error {
		var err error
		out, err = loadJob(c.Storage(), jobID)
		return err
	})
	return out, err
}

// IsJobVerified reports whether the job exists and is Verified.
func (r *Registry) IsJobVerified(ctx context.Context, jobID string) (bool, error) {
	var out bool
	err := r.view(ctx, func(c *ledger.CallContext) error {
		job, ok, err := ReadJob(c.Storage(), jobID)
		out = ok && job.Status == StatusVerified
		return err
	})
	return out, err
}

// ValidationStatus returns a validation request by hash.
func (r *Registry) ValidationStatus(ctx context.Context, requestHash string) (Request, error) {
	var out Request
	err := r.view(ctx, func(c *ledger.CallContext) error {
		req, ok, err := requestData.Get(c.Storage(), ledger.Str(requestHash))
		if err != nil {
			return err
		}
		if !ok {
			return ErrRequestNotFound
		}
		out = req
		return nil
	})
	return out, err
}

// AgentValidations returns the request hashes filed for agentID.
func (r *Registry) AgentValidations(ctx context.Context, agentID uint64) ([]string, error) {
	out := []string{}
	err := r.view(ctx, func(c *ledger.CallContext) error {
		return agentValidations.Each(c.Storage(), func(rest []byte, _ bool) bool {
			out = append(out, string(rest))
			return true
		}, ledger.U64(agentID))
	})
	return out, err
}

// ListJobs returns every job ordered by id. If expiredAt is non-zero only
// jobs past the retention window at that instant are returned.
func (r *Registry) ListJobs(ctx context.Context, expiredAt time.Time) ([]Job, error) {
	out := []Job{}
	err := r.view(ctx, func(c *ledger.CallContext) error {
		return jobData.Each(c.Storage(), func(_ []byte, job Job) bool {
			if expiredAt.IsZero() || job.Expired(expiredAt) {
				out = append(out, job)
			}
			return true
		})
	})
	return out, err
}

// IdentityRegistryAddress returns the configured identity registry.
func (r *Registry) IdentityRegistryAddress(ctx context.Context) (ledger.Address, error) {
	var out ledger.Address
	err := r.view(ctx, func(c *ledger.CallContext) error {
		var err error
		out, _, err = identityAddress.Get(c.Storage())
		return err
	})
	return out, err
}
