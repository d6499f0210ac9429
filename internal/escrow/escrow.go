// Package escrow holds an employer's deposit for a job until the
// validation registry reports the job Verified, or refunds it once the
// deadline has passed.
package escrow

import (
	"context"
	"fmt"
	"time"

	"github.com/holiman/uint256"

	"github.com/agentoven/agentmarket/internal/ledger"
	"github.com/agentoven/agentmarket/internal/validation"
)

// ProgramName is the deployment name of the escrow.
const ProgramName = "escrow"

// Status of an escrow record. Active moves to exactly one of the others.
type Status uint8

const (
	StatusActive Status = iota
	StatusReleased
	StatusRefunded
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "Active"
	case StatusReleased:
		return "Released"
	case StatusRefunded:
		return "Refunded"
	default:
		return fmt.Sprintf("Status(%d)", uint8(s))
	}
}

func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Status) UnmarshalText(b []byte) error {
	for st := StatusActive; st <= StatusRefunded; st++ {
		if st.String() == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown escrow status %q", b)
}

// Record is the custody state of one job's deposit.
type Record struct {
	JobID    string         `json:"job_id" cbor:"1,keyasint"`
	Employer ledger.Address `json:"employer" cbor:"2,keyasint"`
	Receiver ledger.Address `json:"receiver" cbor:"3,keyasint"`
	Token    ledger.TokenID `json:"token" cbor:"4,keyasint"`
	Nonce    uint64         `json:"nonce" cbor:"5,keyasint"`
	Amount   *uint256.Int   `json:"amount" cbor:"6,keyasint"`
	PoaHash  []byte         `json:"poa_hash" cbor:"7,keyasint"`
	Deadline int64          `json:"deadline" cbor:"8,keyasint"` // unix seconds
	Status   Status         `json:"status" cbor:"9,keyasint"`
}

// Funds returns the held value as a payment.
func (r Record) Funds() ledger.Payment {
	return ledger.Payment{Token: r.Token, Nonce: r.Nonce, Amount: r.Amount}
}

// DepositParams are the inputs of Deposit.
type DepositParams struct {
	JobID    string         `json:"job_id"`
	Receiver ledger.Address `json:"receiver"`
	PoaHash  []byte         `json:"poa_hash"`
	Deadline int64          `json:"deadline"`
}

// SettledEvent is emitted by deposit, release and refund.
type SettledEvent struct {
	JobID  string         `json:"job_id"`
	Party  ledger.Address `json:"party"`
	Amount string         `json:"amount"`
}

var (
	ErrEscrowExists      = ledger.NewError(ledger.KindDuplicate, "Escrow already exists for this job")
	ErrEscrowNotFound    = ledger.NewError(ledger.KindNotFound, "Escrow not found for this job")
	ErrNotEmployer       = ledger.NewError(ledger.KindAuthorization, "Only the employer can call this")
	ErrJobNotVerified    = ledger.NewError(ledger.KindPrecondition, "Job must be verified before release")
	ErrDeadlineNotPassed = ledger.NewError(ledger.KindTemporal, "Deadline has not passed yet")
	ErrDeadlineInPast    = ledger.NewError(ledger.KindTemporal, "Deadline must be in the future")
	ErrAlreadySettled    = ledger.NewError(ledger.KindPrecondition, "Escrow already settled")
	ErrZeroDeposit       = ledger.NewError(ledger.KindPayment, "Deposit amount must be greater than zero")
)

var (
	validationAddress = ledger.NewMapper[ledger.Address]("validationContractAddress")
	identityAddress   = ledger.NewMapper[ledger.Address]("identityContractAddress")
	escrowData        = ledger.NewMapper[Record]("escrowData")
)

// Escrow is a handle on a deployed escrow program.
type Escrow struct {
	l    *ledger.Ledger
	addr ledger.Address
}

// Deploy deploys an escrow gated by validationAddr.
func Deploy(ctx context.Context, l *ledger.Ledger, deployer ledger.Address, shard uint32, validationAddr, identityAddr ledger.Address) (*Escrow, error) {
	addr, err := l.Deploy(deployer, ProgramName, shard)
	if err != nil {
		return nil, err
	}
	e := &Escrow{l: l, addr: addr}
	if _, err := e.exec(ctx, deployer, "init", nil, func(c *ledger.CallContext) error {
		if _, err := validationAddress.SetIfAbsent(c.Storage(), validationAddr); err != nil {
			return err
		}
		_, err := identityAddress.SetIfAbsent(c.Storage(), identityAddr)
		return err
	}); err != nil {
		return nil, err
	}
	return e, nil
}

// Attach returns a handle on an already deployed escrow.
func Attach(l *ledger.Ledger, addr ledger.Address) *Escrow {
	return &Escrow{l: l, addr: addr}
}

func (e *Escrow) Address() ledger.Address { return e.addr }

func (e *Escrow) exec(ctx context.Context, caller ledger.Address, entry string, payment *ledger.Payment, fn ledger.Entry) (*ledger.Receipt, error) {
	return e.l.Execute(ctx, ledger.Call{To: e.addr, Caller: caller, Entry: entry, Payment: payment}, fn)
}

// Deposit locks the attached payment for p.JobID.
func (e *Escrow) Deposit(ctx context.Context, caller ledger.Address, p DepositParams, payment *ledger.Payment) (*ledger.Receipt, error) {
	return e.exec(ctx, caller, "deposit", payment, DepositEntry(p))
}

// DepositEntry is the body of deposit.
func DepositEntry(p DepositParams) ledger.Entry {
	return func(c *ledger.CallContext) error {
		pay, ok := c.Payment()
		if !ok {
			return ErrZeroDeposit
		}
		if p.Deadline <= c.Now().Unix() {
			return ErrDeadlineInPast
		}
		st := c.Storage()
		exists, err := escrowData.Has(st, ledger.Str(p.JobID))
		if err != nil {
			return err
		}
		if exists {
			return ErrEscrowExists
		}

		rec := Record{
			JobID:    p.JobID,
			Employer: c.Caller(),
			Receiver: p.Receiver,
			Token:    pay.Token,
			Nonce:    pay.Nonce,
			Amount:   pay.Value(),
			PoaHash:  p.PoaHash,
			Deadline: p.Deadline,
			Status:   StatusActive,
		}
		if err := escrowData.Set(st, rec, ledger.Str(p.JobID)); err != nil {
			return err
		}
		c.Emit("escrowDeposited", SettledEvent{JobID: p.JobID, Party: c.Caller(), Amount: pay.String()})
		return nil
	}
}

// Release pays the receiver once the job is Verified. Employer only.
func (e *Escrow) Release(ctx context.Context, caller ledger.Address, jobID string) (*ledger.Receipt, error) {
	return e.exec(ctx, caller, "release", nil, ReleaseEntry(jobID))
}

// ReleaseEntry is the body of release.
func ReleaseEntry(jobID string) ledger.Entry {
	return func(c *ledger.CallContext) error {
		st := c.Storage()
		rec, err := loadActive(st, jobID)
		if err != nil {
			return err
		}
		if c.Caller() != rec.Employer {
			return ErrNotEmployer
		}
		if err := requireVerified(c, jobID); err != nil {
			return err
		}

		rec.Status = StatusReleased
		if err := escrowData.Set(st, rec, ledger.Str(jobID)); err != nil {
			return err
		}
		if err := c.Transfer(rec.Receiver, rec.Funds()); err != nil {
			return err
		}
		c.Emit("escrowReleased", SettledEvent{JobID: jobID, Party: rec.Receiver, Amount: rec.Funds().String()})
		return nil
	}
}

// Refund returns the deposit to the employer after the deadline. Anyone
// may trigger it.
func (e *Escrow) Refund(ctx context.Context, caller ledger.Address, jobID string) (*ledger.Receipt, error) {
	return e.exec(ctx, caller, "refund", nil, RefundEntry(jobID))
}

// RefundEntry is the body of refund.
func RefundEntry(jobID string) ledger.Entry {
	return func(c *ledger.CallContext) error {
		st := c.Storage()
		rec, err := loadActive(st, jobID)
		if err != nil {
			return err
		}
		if c.Now().Unix() <= rec.Deadline {
			return ErrDeadlineNotPassed
		}

		rec.Status = StatusRefunded
		if err := escrowData.Set(st, rec, ledger.Str(jobID)); err != nil {
			return err
		}
		if err := c.Transfer(rec.Employer, rec.Funds()); err != nil {
			return err
		}
		c.Emit("escrowRefunded", SettledEvent{JobID: jobID, Party: rec.Employer, Amount: rec.Funds().String()})
		return nil
	}
}

func loadActive(r ledger.Reader, jobID string) (Record, error) {
	rec, ok, err := escrowData.Get(r, ledger.Str(jobID))
	if err != nil {
		return Record{}, err
	}
	if !ok {
		return Record{}, ErrEscrowNotFound
	}
	if rec.Status != StatusActive {
		return Record{}, ErrAlreadySettled
	}
	return rec, nil
}

// requireVerified reads the job from the validation registry. A job that
// is missing or unreadable counts as not verified.
func requireVerified(c *ledger.CallContext, jobID string) error {
	addr, ok, err := validationAddress.Get(c.Storage())
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %w", ErrJobNotVerified, ledger.ErrUnknownProgram)
	}
	r, err := c.Reader().At(addr)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrJobNotVerified, err)
	}
	job, ok, err := validation.ReadJob(r, jobID)
	if err != nil {
		return err
	}
	if !ok || job.Status != validation.StatusVerified {
		return ErrJobNotVerified
	}
	return nil
}

// Get returns the escrow record of jobID.
func (e *Escrow) Get(ctx context.Context, jobID string) (Record, error) {
	var out Record
	err := e.l.View(ctx, e.addr, func(c *ledger.CallContext) error {
		rec, ok, err := escrowData.Get(c.Storage(), ledger.Str(jobID))
		if err != nil {
			return err
		}
		if !ok {
			return ErrEscrowNotFound
		}
		out = rec
		return nil
	})
	return out, err
}

// Addresses returns the configured validation and identity registries.
func (e *Escrow) Addresses(ctx context.Context) (validationAddr, identityAddr ledger.Address, err error) {
	err = e.l.View(ctx, e.addr, func(c *ledger.CallContext) error {
		var err error
		if validationAddr, _, err = validationAddress.Get(c.Storage()); err != nil {
			return err
		}
		identityAddr, _, err = identityAddress.Get(c.Storage())
		return err
	})
	return validationAddr, identityAddr, err
}

// Overdue reports whether rec can be refunded at now.
func (r Record) Overdue(now time.Time) bool {
	return r.Status == StatusActive && now.Unix() > r.Deadline
}

// List returns every escrow record ordered by job id.
func (e *Escrow) List(ctx context.Context) ([]Record, error) {
	out := []Record{}
	err := e.l.View(ctx, e.addr, func(c *ledger.CallContext) error {
		return escrowData.Each(c.Storage(), func(_ []byte, rec Record) bool {
			out = append(out, rec)
			return true
		})
	})
	return out, err
}
