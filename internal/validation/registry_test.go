package validation_test

import (
	"context"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/agentoven/agentmarket/internal/identity"
	"github.com/agentoven/agentmarket/internal/ledger"
	"github.com/agentoven/agentmarket/internal/store"
	"github.com/agentoven/agentmarket/internal/validation"
)

var (
	deployer  = ledger.AddressFromSeed("deployer")
	agentOwn  = ledger.AddressFromSeed("agent-owner")
	employer  = ledger.AddressFromSeed("employer")
	validator = ledger.AddressFromSeed("validator")
	stranger  = ledger.AddressFromSeed("stranger")
)

const usdc ledger.TokenID = "USDC-c76f1f"

type fixture struct {
	l     *ledger.Ledger
	clock *ledger.ManualClock
	ids   *identity.Registry
	reg   *validation.Registry
	agent identity.Capability
	ctx   context.Context
}

func newFixture(t *testing.T, identityShard uint32) *fixture {
	t.Helper()
	ctx := context.Background()
	st := store.NewMemoryStore("")
	t.Cleanup(func() { st.Close() })
	clock := ledger.NewManualClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	l := ledger.New(st, ledger.WithClock(clock))

	ids, err := identity.Deploy(l, deployer, identityShard)
	require.NoError(t, err)
	_, _, err = ids.IssueToken(ctx, deployer, "AgentIdentity", "AGENT")
	require.NoError(t, err)
	agent, _, err := ids.Register(ctx, agentOwn, identity.RegisterParams{
		Name: "worker",
		Services: []identity.ServiceConfig{
			{ServiceID: 1, Price: uint256.NewInt(100), Token: ledger.NativeToken},
			{ServiceID: 2, Token: ledger.NativeToken},
		},
	})
	require.NoError(t, err)

	reg, err := validation.Deploy(ctx, l, deployer, 0, ids.Address())
	require.NoError(t, err)

	require.NoError(t, l.Mint(ctx, employer, ledger.Native(1_000)))
	require.NoError(t, l.Mint(ctx, employer, ledger.NewPayment(usdc, 0, 1_000)))

	return &fixture{l: l, clock: clock, ids: ids, reg: reg, agent: agent, ctx: ctx}
}

func (f *fixture) balance(t *testing.T, who ledger.Address) uint64 {
	t.Helper()
	p, err := f.l.Balance(who, ledger.NativeToken, 0)
	require.NoError(t, err)
	return p.Amount.Uint64()
}

func sid(v uint32) *uint32 { return &v }

func pay(amount uint64) *ledger.Payment {
	p := ledger.Native(amount)
	return &p
}

func TestInitJobRejectsDuplicate(t *testing.T) {
	f := newFixture(t, 0)
	_, err := f.reg.InitJob(f.ctx, employer, validation.InitJobParams{JobID: "job-1", AgentID: 1}, nil)
	require.NoError(t, err)
	_, err = f.reg.InitJob(f.ctx, stranger, validation.InitJobParams{JobID: "job-1", AgentID: 1}, nil)
	require.ErrorIs(t, err, validation.ErrJobAlreadyInitialized)

	job, err := f.reg.Job(f.ctx, "job-1")
	require.NoError(t, err)
	require.Equal(t, employer, job.Employer)
	require.Equal(t, validation.StatusNew, job.Status)
	require.Equal(t, f.clock.Now().UnixMilli(), job.CreatedAt)
}

func TestInitJobForwardsFullPayment(t *testing.T) {
	f := newFixture(t, 0)
	_, err := f.reg.InitJob(f.ctx, employer, validation.InitJobParams{JobID: "paid", AgentID: 1, ServiceID: sid(1)}, pay(150))
	require.NoError(t, err)

	require.Equal(t, uint64(150), f.balance(t, agentOwn))
	require.Equal(t, uint64(850), f.balance(t, employer))
	require.Equal(t, uint64(0), f.balance(t, f.reg.Address()))
}

func TestInitJobPaymentChecks(t *testing.T) {
	f := newFixture(t, 0)
	cases := []struct {
		name    string
		params  validation.InitJobParams
		payment *ledger.Payment
		want    error
	}{
		{"below price", validation.InitJobParams{JobID: "a", AgentID: 1, ServiceID: sid(1)}, pay(99), validation.ErrInsufficientPayment},
		{"no payment for priced service", validation.InitJobParams{JobID: "b", AgentID: 1, ServiceID: sid(1)}, nil, validation.ErrInsufficientPayment},
		{"wrong token", validation.InitJobParams{JobID: "c", AgentID: 1, ServiceID: sid(1)}, func() *ledger.Payment {
			p := ledger.NewPayment(usdc, 0, 500)
			return &p
		}(), validation.ErrInvalidPayment},
		{"unknown service", validation.InitJobParams{JobID: "d", AgentID: 1, ServiceID: sid(9)}, nil, validation.ErrServiceNotFound},
		{"unknown agent", validation.InitJobParams{JobID: "e", AgentID: 77, ServiceID: sid(1)}, nil, validation.ErrAgentNotFound},
		{"payment without service", validation.InitJobParams{JobID: "f", AgentID: 1}, pay(10), validation.ErrUnexpectedPayment},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.reg.InitJob(f.ctx, employer, tc.params, tc.payment)
			require.ErrorIs(t, err, tc.want)
			_, err = f.reg.Job(f.ctx, tc.params.JobID)
			require.ErrorIs(t, err, validation.ErrJobNotFound)
			require.Equal(t, uint64(1_000), f.balance(t, employer))
		})
	}

	_, err := f.reg.InitJob(f.ctx, employer, validation.InitJobParams{JobID: "free", AgentID: 1, ServiceID: sid(2)}, nil)
	require.NoError(t, err)
}

func TestWorkflowAdvancesToVerified(t *testing.T) {
	f := newFixture(t, 0)
	_, err := f.reg.InitJob(f.ctx, employer, validation.InitJobParams{JobID: "job", AgentID: 1}, nil)
	require.NoError(t, err)

	_, err = f.reg.SubmitProof(f.ctx, stranger, "missing", []byte("p"))
	require.ErrorIs(t, err, validation.ErrJobNotFound)
	_, err = f.reg.SubmitProof(f.ctx, agentOwn, "job", []byte("proof-1"))
	require.NoError(t, err)
	job, err := f.reg.Job(f.ctx, "job")
	require.NoError(t, err)
	require.Equal(t, validation.StatusPending, job.Status)

	req := validation.RequestParams{JobID: "job", Validator: validator, RequestURI: "ipfs://req", RequestHash: "h1"}
	_, err = f.reg.ValidationRequest(f.ctx, stranger, req)
	require.ErrorIs(t, err, validation.ErrNotAgentOwner)
	rec, err := f.reg.ValidationRequest(f.ctx, agentOwn, req)
	require.NoError(t, err)
	require.Equal(t, "validationRequest", rec.Events[0].Name)
	_, err = f.reg.ValidationRequest(f.ctx, agentOwn, req)
	require.ErrorIs(t, err, validation.ErrRequestExists)

	job, err = f.reg.Job(f.ctx, "job")
	require.NoError(t, err)
	require.Equal(t, validation.StatusValidationRequested, job.Status)

	resp := validation.ResponseParams{RequestHash: "h1", Response: 90, ResponseURI: "ipfs://resp", Tag: "quality"}
	_, err = f.reg.ValidationResponse(f.ctx, stranger, resp)
	require.ErrorIs(t, err, validation.ErrNotValidator)
	_, err = f.reg.ValidationResponse(f.ctx, validator, validation.ResponseParams{RequestHash: "nope"})
	require.ErrorIs(t, err, validation.ErrRequestNotFound)
	_, err = f.reg.ValidationResponse(f.ctx, validator, validation.ResponseParams{RequestHash: "h1", Response: 101})
	require.ErrorIs(t, err, validation.ErrInvalidResponse)

	_, err = f.reg.ValidationResponse(f.ctx, validator, resp)
	require.NoError(t, err)
	verified, err := f.reg.IsJobVerified(f.ctx, "job")
	require.NoError(t, err)
	require.True(t, verified)

	// Progressive validation overwrites the previous answer.
	f.clock.Advance(time.Minute)
	resp.Response = 70
	_, err = f.reg.ValidationResponse(f.ctx, validator, resp)
	require.NoError(t, err)
	got, err := f.reg.ValidationStatus(f.ctx, "h1")
	require.NoError(t, err)
	require.Equal(t, uint8(70), got.Response)
	require.Equal(t, f.clock.Now().Unix(), got.LastUpdate)

	// A late proof never moves the job backwards.
	_, err = f.reg.SubmitProof(f.ctx, stranger, "job", []byte("proof-2"))
	require.NoError(t, err)
	job, err = f.reg.Job(f.ctx, "job")
	require.NoError(t, err)
	require.Equal(t, validation.StatusVerified, job.Status)
	require.Equal(t, []byte("proof-2"), job.Proof)

	hashes, err := f.reg.AgentValidations(f.ctx, 1)
	require.NoError(t, err)
	require.Equal(t, []string{"h1"}, hashes)
}

func TestSubmitProofWithCapability(t *testing.T) {
	f := newFixture(t, 0)
	_, err := f.reg.InitJob(f.ctx, employer, validation.InitJobParams{JobID: "job", AgentID: 1}, nil)
	require.NoError(t, err)

	wrong := f.agent
	wrong.AgentID = 2
	_, _, err = f.reg.SubmitProofWithCapability(f.ctx, agentOwn, "job", []byte("p"), wrong)
	require.ErrorIs(t, err, validation.ErrInvalidAgentNFT)

	_, _, err = f.reg.SubmitProofWithCapability(f.ctx, stranger, "job", []byte("p"), f.agent)
	require.ErrorIs(t, err, validation.ErrNotAgentOwner)

	back, _, err := f.reg.SubmitProofWithCapability(f.ctx, agentOwn, "job", []byte("p"), f.agent)
	require.NoError(t, err)
	require.Equal(t, f.agent, back)

	job, err := f.reg.Job(f.ctx, "job")
	require.NoError(t, err)
	require.Equal(t, validation.StatusPending, job.Status)
}

func TestCleanOldJobs(t *testing.T) {
	f := newFixture(t, 0)
	_, err := f.reg.InitJob(f.ctx, employer, validation.InitJobParams{JobID: "old", AgentID: 1}, nil)
	require.NoError(t, err)
	f.clock.Advance(24 * time.Hour)
	_, err = f.reg.InitJob(f.ctx, employer, validation.InitJobParams{JobID: "young", AgentID: 1}, nil)
	require.NoError(t, err)

	deleted, _, err := f.reg.CleanOldJobs(f.ctx, stranger, []string{"old", "young", "missing"})
	require.NoError(t, err)
	require.Empty(t, deleted)

	f.clock.Advance(2*24*time.Hour + time.Millisecond)
	expired, err := f.reg.ListJobs(f.ctx, f.clock.Now())
	require.NoError(t, err)
	require.Len(t, expired, 1)
	require.Equal(t, "old", expired[0].JobID)

	deleted, _, err = f.reg.CleanOldJobs(f.ctx, stranger, []string{"old", "young", "old"})
	require.NoError(t, err)
	require.Equal(t, []string{"old"}, deleted)

	_, err = f.reg.Job(f.ctx, "old")
	require.ErrorIs(t, err, validation.ErrJobNotFound)
	_, err = f.reg.Job(f.ctx, "young")
	require.NoError(t, err)

	// A cleaned id can be reused.
	_, err = f.reg.InitJob(f.ctx, employer, validation.InitJobParams{JobID: "old", AgentID: 1}, nil)
	require.NoError(t, err)
}

func TestStaleRequestDoesNotVerifyReusedJobID(t *testing.T) {
	f := newFixture(t, 0)
	_, err := f.reg.InitJob(f.ctx, employer, validation.InitJobParams{JobID: "j", AgentID: 1}, nil)
	require.NoError(t, err)
	_, err = f.reg.ValidationRequest(f.ctx, agentOwn, validation.RequestParams{JobID: "j", Validator: validator, RequestHash: "h-old"})
	require.NoError(t, err)

	f.clock.Advance(validation.RetentionWindow + time.Second)
	deleted, _, err := f.reg.CleanOldJobs(f.ctx, stranger, []string{"j"})
	require.NoError(t, err)
	require.Equal(t, []string{"j"}, deleted)
	_, err = f.reg.InitJob(f.ctx, employer, validation.InitJobParams{JobID: "j", AgentID: 1}, nil)
	require.NoError(t, err)

	_, err = f.reg.ValidationResponse(f.ctx, validator, validation.ResponseParams{RequestHash: "h-old", Response: 90})
	require.NoError(t, err)
	job, err := f.reg.Job(f.ctx, "j")
	require.NoError(t, err)
	require.Equal(t, validation.StatusNew, job.Status)

	got, err := f.reg.ValidationStatus(f.ctx, "h-old")
	require.NoError(t, err)
	require.Equal(t, uint8(90), got.Response)
}

func TestIdentityOnOtherShardIsReportedDistinctly(t *testing.T) {
	f := newFixture(t, 1)
	_, err := f.reg.InitJob(f.ctx, employer, validation.InitJobParams{JobID: "x", AgentID: 1, ServiceID: sid(2)}, nil)
	require.ErrorIs(t, err, validation.ErrAgentNotFound)
	require.ErrorIs(t, err, ledger.ErrNotCoLocated)
}

func TestSetIdentityRegistryAddressDeployerOnly(t *testing.T) {
	f := newFixture(t, 0)
	other := ledger.AddressFromSeed("other-registry")
	_, err := f.reg.SetIdentityRegistryAddress(f.ctx, stranger, other)
	require.ErrorIs(t, err, ledger.ErrNotDeployer)
	_, err = f.reg.SetIdentityRegistryAddress(f.ctx, deployer, other)
	require.NoError(t, err)
	got, err := f.reg.IdentityRegistryAddress(f.ctx)
	require.NoError(t, err)
	require.Equal(t, other, got)
}
