package validation

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/agentoven/agentmarket/internal/identity"
	"github.com/agentoven/agentmarket/internal/ledger"
)

// ProgramName is the deployment name of the registry.
const ProgramName = "validation-registry"

// Registry is a handle on a deployed validation registry.
type Registry struct {
	l    *ledger.Ledger
	addr ledger.Address
}

// Deploy deploys a validation registry reading agents from identityAddr.
func Deploy(ctx context.Context, l *ledger.Ledger, deployer ledger.Address, shard uint32, identityAddr ledger.Address) (*Registry, error) {
	addr, err := l.Deploy(deployer, ProgramName, shard)
	if err != nil {
		return nil, err
	}
	r := &Registry{l: l, addr: addr}
	// Redeploying over an existing store keeps any address set since.
	if _, err := r.exec(ctx, deployer, "init", nil, func(c *ledger.CallContext) error {
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

func (r *Registry) exec(ctx context.Context, caller ledger.Address, entry string, payment *ledger.Payment, fn ledger.Entry) (*ledger.Receipt, error) {
	return r.l.Execute(ctx, ledger.Call{To: r.addr, Caller: caller, Entry: entry, Payment: payment}, fn)
}

// SetIdentityRegistryAddress repoints the registry. Deployer only.
func (r *Registry) SetIdentityRegistryAddress(ctx context.Context, caller, addr ledger.Address) (*ledger.Receipt, error) {
	return r.exec(ctx, caller, "set_identity_registry_address", nil, func(c *ledger.CallContext) error {
		if err := c.RequireDeployer(); err != nil {
			return err
		}
		return identityAddress.Set(c.Storage(), addr)
	})
}

// InitJob creates a job hiring p.AgentID. When p.ServiceID is set the
// attached payment is checked against the agent's price and the full
// amount is forwarded to the agent owner.
func (r *Registry) InitJob(ctx context.Context, caller ledger.Address, p InitJobParams, payment *ledger.Payment) (*ledger.Receipt, error) {
	return r.exec(ctx, caller, "init_job", payment, InitJobEntry(p))
}

// InitJobEntry is the body of init_job.
func InitJobEntry(p InitJobParams) ledger.Entry {
	return func(c *ledger.CallContext) error {
		st := c.Storage()
		exists, err := jobData.Has(st, ledger.Str(p.JobID))
		if err != nil {
			return err
		}
		if exists {
			return ErrJobAlreadyInitialized
		}

		job := Job{
			JobID:     p.JobID,
			Status:    StatusNew,
			Employer:  c.Caller(),
			AgentID:   p.AgentID,
			CreatedAt: c.Now().UnixMilli(),
		}
		if err := jobData.Set(st, job, ledger.Str(p.JobID)); err != nil {
			return err
		}

		ev := JobInitializedEvent{JobID: p.JobID, AgentID: p.AgentID, Employer: c.Caller(), ServiceID: p.ServiceID}
		pay, paid := c.Payment()
		if p.ServiceID == nil {
			if paid {
				return ErrUnexpectedPayment
			}
			c.Emit("jobInitialized", ev)
			return nil
		}

		owner, idr, err := agentOwner(c, p.AgentID)
		if err != nil {
			return err
		}
		sc, ok, err := identity.ReadServiceConfig(idr, p.AgentID, *p.ServiceID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrServiceNotFound
		}

		if paid {
			price := sc.PriceOf()
			if !pay.SameAsset(price) {
				return ErrInvalidPayment
			}
			if pay.Amount.Lt(price.Amount) {
				return ErrInsufficientPayment
			}
			if err := c.Transfer(owner, pay); err != nil {
				return err
			}
			ev.Paid = pay.String()
		} else if !sc.IsFree() {
			return ErrInsufficientPayment
		}

		c.Emit("jobInitialized", ev)
		return nil
	}
}

// SubmitProof records proof for a job and moves it to Pending. Anyone may
// submit.
func (r *Registry) SubmitProof(ctx context.Context, caller ledger.Address, jobID string, proof []byte) (*ledger.Receipt, error) {
	return r.exec(ctx, caller, "submit_proof", nil, SubmitProofEntry(jobID, proof))
}

// SubmitProofEntry is the body of submit_proof.
func SubmitProofEntry(jobID string, proof []byte) ledger.Entry {
	return func(c *ledger.CallContext) error {
		st := c.Storage()
		job, err := loadJob(st, jobID)
		if err != nil {
			return err
		}
		job.Proof = proof
		job.Status = job.Status.advance(StatusPending)
		if err := jobData.Set(st, job, ledger.Str(jobID)); err != nil {
			return err
		}
		c.Emit("proofSubmitted", ProofSubmittedEvent{JobID: jobID, Caller: c.Caller()})
		return nil
	}
}

// SubmitProofWithCapability records proof after the caller shows the
// identity capability of the hired agent. The capability is handed back.
func (r *Registry) SubmitProofWithCapability(ctx context.Context, caller ledger.Address, jobID string, proof []byte, capability identity.Capability) (identity.Capability, *ledger.Receipt, error) {
	rec, err := r.exec(ctx, caller, "submit_proof_with_nft", nil, func(c *ledger.CallContext) error {
		st := c.Storage()
		job, err := loadJob(st, jobID)
		if err != nil {
			return err
		}
		idr, err := identityReader(c, ErrInvalidAgentNFT)
		if err != nil {
			return err
		}
		tokenID, ok, err := identity.ReadTokenID(idr)
		if err != nil {
			return err
		}
		if !ok || capability.TokenID != tokenID || capability.AgentID != job.AgentID {
			return ErrInvalidAgentNFT
		}
		owner, ok, err := identity.ReadOwner(idr, capability.AgentID)
		if err != nil {
			return err
		}
		if !ok || owner != c.Caller() {
			return ErrNotAgentOwner
		}
		return SubmitProofEntry(jobID, proof)(c)
	})
	if err != nil {
		return identity.Capability{}, rec, err
	}
	capability.Holder = caller
	return capability, rec, nil
}

// ValidationRequest names a validator for a job. Only the owner of the
// hired agent may call it.
func (r *Registry) ValidationRequest(ctx context.Context, caller ledger.Address, p RequestParams) (*ledger.Receipt, error) {
	return r.exec(ctx, caller, "validation_request", nil, func(c *ledger.CallContext) error {
		st := c.Storage()
		job, err := loadJob(st, p.JobID)
		if err != nil {
			return err
		}
		owner, _, err := agentOwner(c, job.AgentID)
		if err != nil {
			return err
		}
		if c.Caller() != owner {
			return ErrNotAgentOwner
		}
		used, err := requestData.Has(st, ledger.Str(p.RequestHash))
		if err != nil {
			return err
		}
		if used {
			return ErrRequestExists
		}

		req := Request{
			RequestHash: p.RequestHash,
			Validator:   p.Validator,
			AgentID:     job.AgentID,
			JobID:       p.JobID,
			CreatedAt:   c.Now().UnixMilli(),
		}
		if err := requestData.Set(st, req, ledger.Str(p.RequestHash)); err != nil {
			return err
		}
		if err := agentValidations.Set(st, true, ledger.U64(job.AgentID), ledger.Str(p.RequestHash)); err != nil {
			return err
		}
		job.Status = job.Status.advance(StatusValidationRequested)
		if err := jobData.Set(st, job, ledger.Str(p.JobID)); err != nil {
			return err
		}

		c.Emit("validationRequest", RequestEvent{
			Validator:   p.Validator,
			AgentID:     job.AgentID,
			JobID:       p.JobID,
			RequestURI:  p.RequestURI,
			RequestHash: p.RequestHash,
		})
		return nil
	})
}

// ValidationResponse records the validator's verdict and marks the job
// Verified. A validator may respond repeatedly; each response overwrites
// the previous one. A job that was cleaned up and initialized again under
// the same id is left untouched.
func (r *Registry) ValidationResponse(ctx context.Context, caller ledger.Address, p ResponseParams) (*ledger.Receipt, error) {
	return r.exec(ctx, caller, "validation_response", nil, func(c *ledger.CallContext) error {
		st := c.Storage()
		req, ok, err := requestData.Get(st, ledger.Str(p.RequestHash))
		if err != nil {
			return err
		}
		if !ok {
			return ErrRequestNotFound
		}
		if c.Caller() != req.Validator {
			return ErrNotValidator
		}
		if p.Response > MaxResponse {
			return ErrInvalidResponse
		}

		req.Response = p.Response
		req.ResponseHash = p.ResponseHash
		req.Tag = p.Tag
		req.LastUpdate = c.Now().Unix()
		if err := requestData.Set(st, req, ledger.Str(p.RequestHash)); err != nil {
			return err
		}

		job, ok, err := ReadJob(st, req.JobID)
		if err != nil {
			return err
		}
		if ok && req.Targets(job) {
			job.Status = job.Status.advance(StatusVerified)
			if err := jobData.Set(st, job, ledger.Str(req.JobID)); err != nil {
				return err
			}
		}

		c.Emit("validationResponse", ResponseEvent{
			Validator:    c.Caller(),
			AgentID:      req.AgentID,
			JobID:        req.JobID,
			RequestHash:  p.RequestHash,
			Response:     p.Response,
			ResponseURI:  p.ResponseURI,
			ResponseHash: p.ResponseHash,
			Tag:          p.Tag,
		})
		return nil
	})
}

// CleanOldJobs deletes the named jobs that are past the retention window.
// Missing and young jobs are skipped. It returns the ids it deleted.
func (r *Registry) CleanOldJobs(ctx context.Context, caller ledger.Address, jobIDs []string) ([]string, *ledger.Receipt, error) {
	var deleted []string
	rec, err := r.exec(ctx, caller, "clean_old_jobs", nil, func(c *ledger.CallContext) error {
		deleted = deleted[:0]
		st := c.Storage()
		now := c.Now()
		for _, id := range jobIDs {
			job, ok, err := ReadJob(st, id)
			if err != nil {
				return err
			}
			if !ok || !job.Expired(now) {
				continue
			}
			jobData.Delete(st, ledger.Str(id))
			deleted = append(deleted, id)
		}
		if len(deleted) > 0 {
			c.Emit("jobsCleaned", JobsCleanedEvent{JobIDs: deleted})
		}
		return nil
	})
	if err == nil && len(deleted) > 0 {
		log.Debug().Int("count", len(deleted)).Msg("Cleaned expired jobs")
	}
	return deleted, rec, err
}
