package protocol

import (
	"crypto/ecdsa"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

func newTestKey(t *testing.T) (*ecdsa.PrivateKey, common.Address) {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("failed to generate test key: %v", err)
	}
	return key, AddressFromPrivateKey(key)
}

func newTestAddress(t *testing.T, seed byte) common.Address {
	t.Helper()
	var addr common.Address
	addr[19] = seed
	return addr
}

// sign produces the signature RequireCallerSignature expects over payload,
// as if key's owner were a live caller.
func sign(t *testing.T, key *ecdsa.PrivateKey, payload []byte) []byte {
	t.Helper()
	sig, err := SignPayload(payload, key)
	if err != nil {
		t.Fatalf("failed to sign payload: %v", err)
	}
	return sig
}

func registerTestVoter(t *testing.T, registry *VoterRegistry, adminKey *ecdsa.PrivateKey, admin, wallet common.Address, identity [32]byte, constituencyID uint64) *Error {
	t.Helper()
	return registry.RegisterVoter(admin, wallet, identity, constituencyID, sign(t, adminKey, RegisterVoterPayload(wallet, identity, constituencyID)))
}

func deactivateTestVoter(t *testing.T, registry *VoterRegistry, adminKey *ecdsa.PrivateKey, admin, wallet common.Address, reason string) *Error {
	t.Helper()
	return registry.DeactivateVoter(admin, wallet, reason, sign(t, adminKey, DeactivateVoterPayload(wallet, reason)))
}

func commitTestVote(t *testing.T, ballot *Ballot, voterKey *ecdsa.PrivateKey, voter common.Address, commitHash [32]byte) *Error {
	t.Helper()
	return ballot.CommitVote(voter, commitHash, sign(t, voterKey, CommitVotePayload(commitHash)))
}

func revealTestVote(t *testing.T, ballot *Ballot, voterKey *ecdsa.PrivateKey, voter common.Address, candidateID uint64, secret Secret) *Error {
	t.Helper()
	return ballot.RevealVote(voter, candidateID, secret, sign(t, voterKey, RevealVotePayload(candidateID, secret)))
}

func createTestElection(t *testing.T, factory *Factory, callerKey *ecdsa.PrivateKey, caller common.Address, name, description string, commitDeadline, revealDeadline time.Time, candidateNames, candidateParties []string, constituencyID uint64, electionType ElectionType) (uint64, string, *Error) {
	t.Helper()
	payload := CreateElectionPayload(name, commitDeadline, revealDeadline, constituencyID)
	return factory.CreateElection(caller, name, description, commitDeadline, revealDeadline, candidateNames, candidateParties, constituencyID, electionType, sign(t, callerKey, payload))
}

func mustSecret(b byte) Secret {
	var s Secret
	s[31] = b
	return s
}

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
