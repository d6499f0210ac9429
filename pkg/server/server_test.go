package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agentoven/agentmarket/internal/config"
	"github.com/agentoven/agentmarket/internal/identity"
	"github.com/agentoven/agentmarket/internal/ledger"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load()
	require.NoError(t, err)
	cfg.Keeper.Enabled = false
	return cfg
}

func TestNewWithConfigDeploysPrograms(t *testing.T) {
	ctx := context.Background()
	srv, err := NewWithConfig(ctx, testConfig(t))
	require.NoError(t, err)
	t.Cleanup(func() { srv.ShutdownFunc(ctx) })

	require.Len(t, srv.Ledger.Deployments(), 4)
	require.Nil(t, srv.Keeper)

	info, err := srv.Identity.TokenInfo(ctx)
	require.NoError(t, err)
	require.Equal(t, "AGENT", info.Ticker)

	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/programs", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRestartOverLevelDBKeepsState(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.Store.Backend = "leveldb"
	cfg.Store.DataDir = t.TempDir()

	srv, err := NewWithConfig(ctx, cfg)
	require.NoError(t, err)
	owner := ledger.AddressFromSeed("owner")
	capability, _, err := srv.Identity.Register(ctx, owner, identity.RegisterParams{Name: "A"})
	require.NoError(t, err)
	first := srv.Identity.Address()
	require.NoError(t, srv.ShutdownFunc(ctx))

	srv, err = NewWithConfig(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { srv.ShutdownFunc(ctx) })
	require.Equal(t, first, srv.Identity.Address())

	agent, err := srv.Identity.Agent(ctx, capability.AgentID)
	require.NoError(t, err)
	require.Equal(t, owner, agent.Owner)
}

func TestKeeperWiredWithArchiver(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.Keeper.Enabled = true
	cfg.Keeper.ArchiveDir = t.TempDir()
	srv, err := NewWithConfig(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { srv.ShutdownFunc(ctx) })
	require.NotNil(t, srv.Keeper)

	stats := srv.Keeper.RunCycle(ctx)
	require.Empty(t, stats.Errors)
}

func TestRestartKeepsRepointedRegistries(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.Store.Backend = "leveldb"
	cfg.Store.DataDir = t.TempDir()
	deployer := ledger.AddressFromSeed(cfg.Market.DeployerSeed)
	other := ledger.AddressFromSeed("other-registry")

	srv, err := NewWithConfig(ctx, cfg)
	require.NoError(t, err)
	_, err = srv.Validation.SetIdentityRegistryAddress(ctx, deployer, other)
	require.NoError(t, err)
	_, err = srv.Reputation.SetValidationContractAddress(ctx, deployer, other)
	require.NoError(t, err)
	require.NoError(t, srv.ShutdownFunc(ctx))

	srv, err = NewWithConfig(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { srv.ShutdownFunc(ctx) })

	got, err := srv.Validation.IdentityRegistryAddress(ctx)
	require.NoError(t, err)
	require.Equal(t, other, got)

	valAddr, idAddr, err := srv.Reputation.Addresses(ctx)
	require.NoError(t, err)
	require.Equal(t, other, valAddr)
	require.Equal(t, srv.Identity.Address(), idAddr)
}
