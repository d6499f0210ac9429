package identity_test

import (
	"context"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/agentoven/agentmarket/internal/identity"
	"github.com/agentoven/agentmarket/internal/ledger"
	"github.com/agentoven/agentmarket/internal/store"
)

var (
	owner = ledger.AddressFromSeed("owner")
	alice = ledger.AddressFromSeed("alice")
	bob   = ledger.AddressFromSeed("bob")
)

func newRegistry(t *testing.T) *identity.Registry {
	t.Helper()
	st := store.NewMemoryStore("")
	t.Cleanup(func() { st.Close() })
	reg, err := identity.Deploy(ledger.New(st), owner, 0)
	require.NoError(t, err)
	return reg
}

func issuedRegistry(t *testing.T) *identity.Registry {
	t.Helper()
	reg := newRegistry(t)
	_, _, err := reg.IssueToken(context.Background(), owner, "AgentIdentity", "AGENT")
	require.NoError(t, err)
	return reg
}

func TestIssueToken(t *testing.T) {
	ctx := context.Background()
	reg := newRegistry(t)

	_, _, err := reg.IssueToken(ctx, alice, "AgentIdentity", "AGENT")
	require.ErrorIs(t, err, ledger.ErrNotDeployer)

	_, _, err = reg.IssueToken(ctx, owner, "AgentIdentity", "agent")
	require.ErrorIs(t, err, identity.ErrInvalidTicker)

	id, rec, err := reg.IssueToken(ctx, owner, "AgentIdentity", "AGENT")
	require.NoError(t, err)
	require.Regexp(t, `^AGENT-[0-9a-f]{6}$`, string(id))
	require.Equal(t, "tokenIssued", rec.Events[0].Name)

	_, _, err = reg.IssueToken(ctx, owner, "Again", "AGAIN")
	require.ErrorIs(t, err, identity.ErrTokenAlreadyIssued)

	info, err := reg.TokenInfo(ctx)
	require.NoError(t, err)
	require.Equal(t, id, info.TokenID)
}

func TestRegisterRequiresIssuedToken(t *testing.T) {
	reg := newRegistry(t)
	_, _, err := reg.Register(context.Background(), alice, identity.RegisterParams{Name: "a"})
	require.ErrorIs(t, err, identity.ErrTokenNotIssued)
}

func TestRegisterAllocatesSequentialIDs(t *testing.T) {
	ctx := context.Background()
	reg := issuedRegistry(t)

	capA, rec, err := reg.Register(ctx, alice, identity.RegisterParams{
		Name:      "alpha",
		URI:       "https://alpha.example/card.json",
		PublicKey: []byte{1, 2, 3},
		Metadata:  []identity.MetadataEntry{{Key: "model", Value: []byte("gpt")}},
		Services: []identity.ServiceConfig{
			{ServiceID: 1, Price: uint256.NewInt(100), Token: ledger.NativeToken},
			{ServiceID: 2, Token: ledger.NativeToken},
		},
	})
	require.NoError(t, err)
	require.Equal(t, uint64(1), capA.AgentID)
	require.Equal(t, alice, capA.Holder)
	require.Equal(t, "agentRegistered", rec.Events[0].Name)

	capB, _, err := reg.Register(ctx, bob, identity.RegisterParams{Name: "beta"})
	require.NoError(t, err)
	require.Equal(t, uint64(2), capB.AgentID)

	_, _, err = reg.Register(ctx, alice, identity.RegisterParams{Name: "again"})
	require.ErrorIs(t, err, identity.ErrAgentAlreadyRegistered)

	agent, err := reg.Agent(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, "alpha", agent.Name)
	require.Equal(t, alice, agent.Owner)

	id, err := reg.AgentID(ctx, bob)
	require.NoError(t, err)
	require.Equal(t, uint64(2), id)

	count, err := reg.AgentCount(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(2), count)

	services, err := reg.Services(ctx, 1)
	require.NoError(t, err)
	require.Len(t, services, 2)
	require.False(t, services[0].IsFree())
	require.True(t, services[1].IsFree())

	v, ok, err := reg.Metadata(ctx, 1, "model")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "gpt", string(v))
}

func TestUpdateChecksCapability(t *testing.T) {
	ctx := context.Background()
	reg := issuedRegistry(t)
	capA, _, err := reg.Register(ctx, alice, identity.RegisterParams{Name: "alpha"})
	require.NoError(t, err)

	forged := capA
	forged.TokenID = "OTHER-abcdef"
	_, _, err = reg.Update(ctx, alice, forged, identity.UpdateParams{Name: "x"})
	require.ErrorIs(t, err, identity.ErrInvalidCapability)

	_, _, err = reg.Update(ctx, bob, capA, identity.UpdateParams{Name: "stolen"})
	require.ErrorIs(t, err, identity.ErrNotOwner)

	out, rec, err := reg.Update(ctx, alice, capA, identity.UpdateParams{
		Name:     "alpha-2",
		URI:      "ipfs://new",
		Metadata: []identity.MetadataEntry{{Key: "k", Value: []byte("v")}},
	})
	require.NoError(t, err)
	require.Equal(t, capA, out)
	require.Equal(t, "agentUpdated", rec.Events[0].Name)

	agent, err := reg.Agent(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, "alpha-2", agent.Name)
	require.Equal(t, "ipfs://new", agent.URI)
}

func TestMetadataAndServicesOwnerOnly(t *testing.T) {
	ctx := context.Background()
	reg := issuedRegistry(t)
	_, _, err := reg.Register(ctx, alice, identity.RegisterParams{Name: "alpha"})
	require.NoError(t, err)

	_, err = reg.SetMetadata(ctx, bob, 1, []identity.MetadataEntry{{Key: "k", Value: []byte("v")}})
	require.ErrorIs(t, err, identity.ErrNotOwner)

	_, err = reg.SetMetadata(ctx, alice, 99, nil)
	require.ErrorIs(t, err, identity.ErrAgentNotFound)

	_, err = reg.SetMetadata(ctx, alice, 1, []identity.MetadataEntry{
		{Key: "b", Value: []byte("2")},
		{Key: "a", Value: []byte("1")},
	})
	require.NoError(t, err)
	_, err = reg.RemoveMetadata(ctx, alice, 1, []string{"b", "missing"})
	require.NoError(t, err)

	all, err := reg.AllMetadata(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, []identity.MetadataEntry{{Key: "a", Value: []byte("1")}}, all)

	rec, err := reg.SetServiceConfigs(ctx, alice, 1, []identity.ServiceConfig{
		{ServiceID: 7, Price: uint256.NewInt(5), Token: ledger.NativeToken},
	})
	require.NoError(t, err)
	require.Equal(t, "serviceConfigsUpdated", rec.Events[0].Name)

	sc, ok, err := reg.ServiceConfig(ctx, 1, 7)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(5), sc.Price.Uint64())

	_, err = reg.RemoveServiceConfigs(ctx, alice, 1, []uint32{7})
	require.NoError(t, err)
	_, ok, err = reg.ServiceConfig(ctx, 1, 7)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestAgentNotFound(t *testing.T) {
	reg := issuedRegistry(t)
	_, err := reg.Agent(context.Background(), 42)
	require.ErrorIs(t, err, identity.ErrAgentNotFound)
	_, err = reg.Owner(context.Background(), 42)
	require.ErrorIs(t, err, identity.ErrAgentNotFound)
}
