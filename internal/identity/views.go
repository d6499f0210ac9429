package identity

import (
	"context"

	"github.com/agentoven/agentmarket/internal/ledger"
)

func (r *Registry) view(ctx context.Context, fn ledger.Entry) error {
	return r.l.View(ctx, r.addr, fn)
}

// Agent returns the agent with the given id.
func (r *Registry) Agent(ctx context.Context, agentID uint64) (Agent, error) {
	var out Agent
	err := r.view(ctx, func(c *ledger.CallContext) error {
		st := c.Storage()
		owner, ok, err := ReadOwner(st, agentID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrAgentNotFound
		}
		d, _, err := agentDetails.Get(st, ledger.U64(agentID))
		if err != nil {
			return err
		}
		out = Agent{ID: agentID, Owner: owner, Name: d.Name, URI: d.URI, PublicKey: d.PublicKey}
		return nil
	})
	return out, err
}

// Owner returns the owner address of agentID.
func (r *Registry) Owner(ctx context.Context, agentID uint64) (ledger.Address, error) {
	var out ledger.Address
	err := r.view(ctx, func(c *ledger.CallContext) error {
		owner, ok, err := ReadOwner(c.Storage(), agentID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrAgentNotFound
		}
		out = owner
		return nil
	})
	return out, err
}

// AgentID returns the id of the agent owned by owner.
func (r *Registry) AgentID(ctx context.Context, owner ledger.Address) (uint64, error) {
	var out uint64
	err := r.view(ctx, func(c *ledger.CallContext) error {
		id, ok, err := ReadAgentID(c.Storage(), owner)
		if err != nil {
			return err
		}
		if !ok {
			return ErrAgentNotFound
		}
		out = id
		return nil
	})
	return out, err
}

// Metadata returns one metadata value, and whether it is set.
func (r *Registry) Metadata(ctx context.Context, agentID uint64, key string) ([]byte, bool, error) {
	var (
		out   []byte
		found bool
	)
	err := r.view(ctx, func(c *ledger.CallContext) error {
		var err error
		out, found, err = agentMetadata.Get(c.Storage(), ledger.U64(agentID), ledger.Str(key))
		return err
	})
	return out, found, err
}

// AllMetadata returns every metadata entry of agentID ordered by key.
func (r *Registry) AllMetadata(ctx context.Context, agentID uint64) ([]MetadataEntry, error) {
	out := []MetadataEntry{}
	err := r.view(ctx, func(c *ledger.CallContext) error {
		return agentMetadata.Each(c.Storage(), func(rest []byte, v []byte) bool {
			out = append(out, MetadataEntry{Key: string(rest), Value: v})
			return true
		}, ledger.U64(agentID))
	})
	return out, err
}

// ServiceConfig returns the price of one service, and whether it exists.
func (r *Registry) ServiceConfig(ctx context.Context, agentID uint64, serviceID uint32) (ServiceConfig, bool, error) {
	var (
		out   ServiceConfig
		found bool
	)
	err := r.view(ctx, func(c *ledger.CallContext) error {
		var err error
		out, found, err = ReadServiceConfig(c.Storage(), agentID, serviceID)
		return err
	})
	return out, found, err
}

// Services returns every service price of agentID ordered by service id.
func (r *Registry) Services(ctx context.Context, agentID uint64) ([]ServiceConfig, error) {
	out := []ServiceConfig{}
	err := r.view(ctx, func(c *ledger.CallContext) error {
		return serviceConfigs.Each(c.Storage(), func(_ []byte, v ServiceConfig) bool {
			out = append(out, v)
			return true
		}, ledger.U64(agentID))
	})
	return out, err
}

// TokenInfo returns the issued token class.
func (r *Registry) TokenInfo(ctx context.Context) (TokenInfo, error) {
	var out TokenInfo
	err := r.view(ctx, func(c *ledger.CallContext) error {
		var err error
		out, err = requireIssued(c.Storage())
		return err
	})
	return out, err
}

// AgentCount returns the number of agents ever registered.
func (r *Registry) AgentCount(ctx context.Context) (uint64, error) {
	var out uint64
	err := r.view(ctx, func(c *ledger.CallContext) error {
		var err error
		out, _, err = lastAgentID.Get(c.Storage())
		return err
	})
	return out, err
}
