package identity

import (
	"context"
	"encoding/hex"
	"fmt"
	"regexp"

	"github.com/rs/zerolog/log"

	"github.com/agentoven/agentmarket/internal/ledger"
)

// ProgramName is the deployment name of the registry.
const ProgramName = "identity-registry"

var tickerRE = regexp.MustCompile(`^[A-Z0-9]{3,10}$`)

// Registry is a handle on a deployed identity registry.
type Registry struct {
	l    *ledger.Ledger
	addr ledger.Address
}

// Deploy deploys a new identity registry owned by deployer.
func Deploy(l *ledger.Ledger, deployer ledger.Address, shard uint32) (*Registry, error) {
	addr, err := l.Deploy(deployer, ProgramName, shard)
	if err != nil {
		return nil, err
	}
	return &Registry{l: l, addr: addr}, nil
}

// Attach returns a handle on an already deployed registry.
func Attach(l *ledger.Ledger, addr ledger.Address) *Registry {
	return &Registry{l: l, addr: addr}
}

func (r *Registry) Address() ledger.Address { return r.addr }

func (r *Registry) exec(ctx context.Context, caller ledger.Address, entry string, fn ledger.Entry) (*ledger.Receipt, error) {
	return r.l.Execute(ctx, ledger.Call{To: r.addr, Caller: caller, Entry: entry}, fn)
}

// ── Entry points ────────────────────────────────────────────

// IssueToken creates the identity token class. Deployer only, once.
func (r *Registry) IssueToken(ctx context.Context, caller ledger.Address, displayName, ticker string) (ledger.TokenID, *ledger.Receipt, error) {
	var id ledger.TokenID
	rec, err := r.exec(ctx, caller, "issue_token", func(c *ledger.CallContext) error {
		var err error
		id, err = issueToken(c, displayName, ticker)
		return err
	})
	return id, rec, err
}

func issueToken(c *ledger.CallContext, displayName, ticker string) (ledger.TokenID, error) {
	if err := c.RequireDeployer(); err != nil {
		return "", err
	}
	st := c.Storage()
	issued, err := tokenInfo.Has(st)
	if err != nil {
		return "", err
	}
	if issued {
		return "", ErrTokenAlreadyIssued
	}
	if !tickerRE.MatchString(ticker) {
		return "", ErrInvalidTicker
	}
	self := c.Self()
	suffix := hex.EncodeToString(ledger.Keccak256(self[:], []byte(ticker)))[:6]
	id := ledger.TokenID(ticker + "-" + suffix)
	if err := tokenInfo.Set(st, TokenInfo{TokenID: id, DisplayName: displayName, Ticker: ticker}); err != nil {
		return "", err
	}
	c.Emit("tokenIssued", TokenIssuedEvent{TokenID: id, DisplayName: displayName})
	log.Info().Str("token", string(id)).Msg("🪪 Identity token issued")
	return id, nil
}

// Register creates an agent owned by caller and returns its capability.
func (r *Registry) Register(ctx context.Context, caller ledger.Address, p RegisterParams) (Capability, *ledger.Receipt, error) {
	var capability Capability
	rec, err := r.exec(ctx, caller, "register_agent", func(c *ledger.CallContext) error {
		var err error
		capability, err = register(c, p)
		return err
	})
	return capability, rec, err
}

func register(c *ledger.CallContext, p RegisterParams) (Capability, error) {
	st := c.Storage()
	info, err := requireIssued(st)
	if err != nil {
		return Capability{}, err
	}
	caller := c.Caller()
	exists, err := ownerAgents.Has(st, ledger.AddressKey(caller))
	if err != nil {
		return Capability{}, err
	}
	if exists {
		return Capability{}, ErrAgentAlreadyRegistered
	}

	last, _, err := lastAgentID.Get(st)
	if err != nil {
		return Capability{}, err
	}
	id := last + 1
	if err := lastAgentID.Set(st, id); err != nil {
		return Capability{}, err
	}
	if err := agentOwners.Set(st, caller, ledger.U64(id)); err != nil {
		return Capability{}, err
	}
	if err := ownerAgents.Set(st, id, ledger.AddressKey(caller)); err != nil {
		return Capability{}, err
	}
	details := Details{Name: p.Name, URI: p.URI, PublicKey: p.PublicKey}
	if err := agentDetails.Set(st, details, ledger.U64(id)); err != nil {
		return Capability{}, err
	}
	if err := syncMetadata(st, id, p.Metadata); err != nil {
		return Capability{}, err
	}
	if err := syncServices(st, id, p.Services); err != nil {
		return Capability{}, err
	}

	c.Emit("agentRegistered", AgentRegisteredEvent{Owner: caller, AgentID: id, Name: p.Name, URI: p.URI})
	return Capability{TokenID: info.TokenID, AgentID: id, Holder: caller}, nil
}

// Update rewrites the agent named by capability. The caller must own it.
func (r *Registry) Update(ctx context.Context, caller ledger.Address, capability Capability, p UpdateParams) (Capability, *ledger.Receipt, error) {
	var out Capability
	rec, err := r.exec(ctx, caller, "update_agent", func(c *ledger.CallContext) error {
		var err error
		out, err = update(c, capability, p)
		return err
	})
	return out, rec, err
}

func update(c *ledger.CallContext, capability Capability, p UpdateParams) (Capability, error) {
	st := c.Storage()
	info, err := requireIssued(st)
	if err != nil {
		return Capability{}, err
	}
	if capability.TokenID != info.TokenID {
		return Capability{}, ErrInvalidCapability
	}
	if err := requireOwner(st, capability.AgentID, c.Caller()); err != nil {
		return Capability{}, err
	}

	id := capability.AgentID
	details := Details{Name: p.Name, URI: p.URI, PublicKey: p.PublicKey}
	if err := agentDetails.Set(st, details, ledger.U64(id)); err != nil {
		return Capability{}, err
	}
	if p.Metadata != nil {
		if err := syncMetadata(st, id, p.Metadata); err != nil {
			return Capability{}, err
		}
	}
	if p.Services != nil {
		if err := syncServices(st, id, p.Services); err != nil {
			return Capability{}, err
		}
	}

	c.Emit("agentUpdated", AgentEvent{AgentID: id})
	return Capability{TokenID: info.TokenID, AgentID: id, Holder: c.Caller()}, nil
}

// SetMetadata inserts or overwrites metadata entries of agentID.
func (r *Registry) SetMetadata(ctx context.Context, caller ledger.Address, agentID uint64, entries []MetadataEntry) (*ledger.Receipt, error) {
	return r.exec(ctx, caller, "set_metadata", func(c *ledger.CallContext) error {
		return ownerEdit(c, agentID, "metadataUpdated", func(w ledger.Writer) error {
			return syncMetadata(w, agentID, entries)
		})
	})
}

// RemoveMetadata deletes metadata entries of agentID by key.
func (r *Registry) RemoveMetadata(ctx context.Context, caller ledger.Address, agentID uint64, keys []string) (*ledger.Receipt, error) {
	return r.exec(ctx, caller, "remove_metadata", func(c *ledger.CallContext) error {
		return ownerEdit(c, agentID, "metadataUpdated", func(w ledger.Writer) error {
			for _, k := range keys {
				agentMetadata.Delete(w, ledger.U64(agentID), ledger.Str(k))
			}
			return nil
		})
	})
}

// SetServiceConfigs inserts or overwrites service prices of agentID.
func (r *Registry) SetServiceConfigs(ctx context.Context, caller ledger.Address, agentID uint64, configs []ServiceConfig) (*ledger.Receipt, error) {
	return r.exec(ctx, caller, "set_service_configs", func(c *ledger.CallContext) error {
		return ownerEdit(c, agentID, "serviceConfigsUpdated", func(w ledger.Writer) error {
			return syncServices(w, agentID, configs)
		})
	})
}

// RemoveServiceConfigs deletes service prices of agentID.
func (r *Registry) RemoveServiceConfigs(ctx context.Context, caller ledger.Address, agentID uint64, serviceIDs []uint32) (*ledger.Receipt, error) {
	return r.exec(ctx, caller, "remove_service_configs", func(c *ledger.CallContext) error {
		return ownerEdit(c, agentID, "serviceConfigsUpdated", func(w ledger.Writer) error {
			for _, sid := range serviceIDs {
				serviceConfigs.Delete(w, ledger.U64(agentID), ledger.U32(sid))
			}
			return nil
		})
	})
}

func ownerEdit(c *ledger.CallContext, agentID uint64, event string, apply func(ledger.Writer) error) error {
	st := c.Storage()
	if _, err := requireIssued(st); err != nil {
		return err
	}
	if err := requireOwner(st, agentID, c.Caller()); err != nil {
		return err
	}
	if err := apply(st); err != nil {
		return fmt.Errorf("%s: %w", event, err)
	}
	c.Emit(event, AgentEvent{AgentID: agentID})
	return nil
}
