package identity

import (
	"github.com/agentoven/agentmarket/internal/ledger"
)

// Storage layout. These names are part of the cross-program contract:
// other programs read them through ReadOwner and friends.
var (
	tokenInfo      = ledger.NewMapper[TokenInfo]("agentTokenId")
	lastAgentID    = ledger.NewMapper[uint64]("agentCount")
	agentOwners    = ledger.NewMapper[ledger.Address]("agents")
	ownerAgents    = ledger.NewMapper[uint64]("agentsByOwner")
	agentDetails   = ledger.NewMapper[Details]("agentDetails")
	agentMetadata  = ledger.NewMapper[[]byte]("agentMetadatas")
	serviceConfigs = ledger.NewMapper[ServiceConfig]("agentServiceConfigs")
)

// ReadTokenID returns the identity token class, if issued.
func ReadTokenID(r ledger.Reader) (ledger.TokenID, bool, error) {
	info, ok, err := tokenInfo.Get(r)
	return info.TokenID, ok, err
}

// ReadOwner returns the owner of agentID.
func ReadOwner(r ledger.Reader, agentID uint64) (ledger.Address, bool, error) {
	return agentOwners.Get(r, ledger.U64(agentID))
}

// ReadAgentID returns the agent owned by owner.
func ReadAgentID(r ledger.Reader, owner ledger.Address) (uint64, bool, error) {
	return ownerAgents.Get(r, ledger.AddressKey(owner))
}

// ReadServiceConfig returns the price of one service of agentID.
func ReadServiceConfig(r ledger.Reader, agentID uint64, serviceID uint32) (ServiceConfig, bool, error) {
	return serviceConfigs.Get(r, ledger.U64(agentID), ledger.U32(serviceID))
}

func requireIssued(r ledger.Reader) (TokenInfo, error) {
	info, ok, err := tokenInfo.Get(r)
	if err != nil {
		return TokenInfo{}, err
	}
	if !ok {
		return TokenInfo{}, ErrTokenNotIssued
	}
	return info, nil
}

// requireOwner fails unless caller is the mapped owner of agentID.
func requireOwner(r ledger.Reader, agentID uint64, caller ledger.Address) error {
	owner, ok, err := ReadOwner(r, agentID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrAgentNotFound
	}
	if owner != caller {
		return ErrNotOwner
	}
	return nil
}

func syncMetadata(w ledger.Writer, agentID uint64, entries []MetadataEntry) error {
	for _, e := range entries {
		if err := agentMetadata.Set(w, e.Value, ledger.U64(agentID), ledger.Str(e.Key)); err != nil {
			return err
		}
	}
	return nil
}

func syncServices(w ledger.Writer, agentID uint64, configs []ServiceConfig) error {
	for _, sc := range configs {
		sc.Price = sc.priceValue()
		if err := serviceConfigs.Set(w, sc, ledger.U64(agentID), ledger.U32(sc.ServiceID)); err != nil {
			return err
		}
	}
	return nil
}
