package persistence

import (
	"crypto/ecdsa"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/lietuva-vote/electiond/internal/protocol"
)

// VoterSnapshot is the persisted form of one protocol.VoterRecord.
type VoterSnapshot struct {
	Wallet         common.Address `json:"wallet"`
	IdentityHash   [32]byte       `json:"identity_hash"`
	ConstituencyID uint64         `json:"constituency_id"`
	Active         bool           `json:"active"`
	RegisteredAt   time.Time      `json:"registered_at"`
}

// RegistrySnapshot is the full persisted state of a VoterRegistry.
type RegistrySnapshot struct {
	Owner  common.Address  `json:"owner"`
	Admins []common.Address `json:"admins"`
	Voters []VoterSnapshot `json:"voters"`
}

// SaveRegistry writes registry's full state to "registry_snapshot" under
// store.
func SaveRegistry(store *Store, registry *protocol.VoterRegistry) error {
	snap := RegistrySnapshot{
		Owner:  registry.Access().Owner(),
		Admins: registry.Access().Admins(),
	}
	count := registry.GetVoterCount()
	for i := 0; i < count; i++ {
		wallet, err := registry.GetVoterAtIndex(i)
		if err != nil {
			continue
		}
		record, err := registry.GetVoterInfo(wallet)
		if err != nil {
			continue
		}
		snap.Voters = append(snap.Voters, VoterSnapshot{
			Wallet:         record.Wallet,
			IdentityHash:   record.IdentityHash,
			ConstituencyID: record.ConstituencyID,
			Active:         record.Active,
			RegisteredAt:   record.RegisteredAt,
		})
	}
	return store.Save("registry_snapshot", snap)
}

// RestoreRegistry replays a RegistrySnapshot onto a freshly constructed
// VoterRegistry owned by the same owner, re-registering every voter and
// re-applying any deactivation. It is meant for process-restart recovery,
// not for merging into a registry that already has state. ownerKey signs
// each replayed call exactly as a live admin request would: restoring
// state is not exempt from the unforgeable-identity requirement every
// other caller of RegisterVoter/DeactivateVoter is held to.
func RestoreRegistry(store *Store, ownerKey *ecdsa.PrivateKey, clock protocol.Clock) (*protocol.VoterRegistry, error) {
	var snap RegistrySnapshot
	if err := store.Load("registry_snapshot", &snap); err != nil {
		return nil, err
	}
	owner := protocol.AddressFromPrivateKey(ownerKey)
	registry := protocol.NewVoterRegistry(owner, clock)
	for _, admin := range snap.Admins {
		if admin != owner {
			registry.Access().AddAdmin(owner, admin)
		}
	}
	for _, v := range snap.Voters {
		registerSig, err := protocol.SignPayload(protocol.RegisterVoterPayload(v.Wallet, v.IdentityHash, v.ConstituencyID), ownerKey)
		if err != nil {
			continue
		}
		if err := registry.RegisterVoter(owner, v.Wallet, v.IdentityHash, v.ConstituencyID, registerSig); err != nil {
			continue
		}
		if !v.Active {
			reason := "restored as inactive"
			deactivateSig, err := protocol.SignPayload(protocol.DeactivateVoterPayload(v.Wallet, reason), ownerKey)
			if err != nil {
				continue
			}
			registry.DeactivateVoter(owner, v.Wallet, reason, deactivateSig)
		}
	}
	return registry, nil
}

// ElectionSnapshot is the persisted form of one protocol.ElectionRecord.
type ElectionSnapshot struct {
	ID           uint64         `json:"id"`
	Name         string         `json:"name"`
	Description  string         `json:"description"`
	BallotRef    string         `json:"ballot_ref"`
	CreatedAt    time.Time      `json:"created_at"`
	CreatedBy    common.Address `json:"created_by"`
	ElectionType int            `json:"election_type"`
}

// FactorySnapshot is the persisted election directory of a Factory.
// Ballots themselves are not embedded: their commit/reveal state is not
// persisted, and nothing in this package reconstructs a Ballot from its
// events.
type FactorySnapshot struct {
	Owner     common.Address     `json:"owner"`
	Elections []ElectionSnapshot `json:"elections"`
}

// SaveFactory writes factory's election directory to "factory_snapshot"
// under store.
func SaveFactory(store *Store, factory *protocol.Factory) error {
	snap := FactorySnapshot{Owner: factory.Access().Owner()}
	for _, e := range factory.GetAllElections() {
		snap.Elections = append(snap.Elections, ElectionSnapshot{
			ID:           e.ID,
			Name:         e.Name,
			Description:  e.Description,
			BallotRef:    e.BallotRef,
			CreatedAt:    e.CreatedAt,
			CreatedBy:    e.CreatedBy,
			ElectionType: int(e.ElectionType),
		})
	}
	return store.Save("factory_snapshot", snap)
}
