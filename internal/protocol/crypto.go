// Package protocol implements the commit-reveal election core: the Voter
// Registry, Ballot state machine, Election Factory, and Verifier.
package protocol

import (
	"crypto/ecdsa"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/sha3"
)

// WordSize is the fixed width, in bytes, of every big-endian integer
// encoded into a hash preimage under the hashing contract.
const WordSize = 32

// Secret is the 32-byte value a voter keeps off-system between commit and
// reveal.
type Secret [32]byte

// keccak256 hashes the concatenation of data with Keccak-256 (NOT the NIST
// SHA3-256 variant).
func keccak256(data ...[]byte) []byte {
	d := sha3.NewLegacyKeccak256()
	for _, b := range data {
		d.Write(b)
	}
	return d.Sum(nil)
}

// bigEndianWord encodes v as a fixed WordSize-byte big-endian unsigned
// integer, matching the teacher's preference for big.Int over hand-rolled
// byte packing.
func bigEndianWord(v uint64) []byte {
	buf := make([]byte, WordSize)
	big.NewInt(0).SetUint64(v).FillBytes(buf)
	return buf
}

// ComputeCommitHash is the pure off-system/on-system hashing helper from the
// hashing contract: keccak256(bigEndianWord(candidateId) || secret).
func ComputeCommitHash(candidateID uint64, secret Secret) [32]byte {
	h := keccak256(bigEndianWord(candidateID), secret[:])
	var out [32]byte
	copy(out[:], h)
	return out
}

// ComputeReceiptHash implements the receipt-hash half of the hashing
// contract: keccak256(voter || commitHash || bigEndianWord(timestamp) ||
// bigEndianWord(electionID)).
func ComputeReceiptHash(voter common.Address, commitHash [32]byte, timestamp int64, electionID uint64) [32]byte {
	h := keccak256(voter.Bytes(), commitHash[:], bigEndianWord(uint64(timestamp)), bigEndianWord(electionID))
	var out [32]byte
	copy(out[:], h)
	return out
}

// IdentityHash computes the opaque 32-byte digest stored for a voter's
// off-system identification. The digest is never reversed by this package.
func IdentityHash(rawIdentity []byte) [32]byte {
	h := keccak256(rawIdentity)
	var out [32]byte
	copy(out[:], h)
	return out
}

// VerifyCallerSignature checks that sig over the keccak256 of payload was
// produced by the private key behind caller, the same unforgeable-identity
// scheme the teacher's CryptoService uses for vote authentication.
func VerifyCallerSignature(caller common.Address, payload, sig []byte) bool {
	hash := keccak256(payload)
	pub, err := crypto.SigToPub(hash, sig)
	if err != nil {
		return false
	}
	return crypto.PubkeyToAddress(*pub) == caller
}

// SignPayload signs the keccak256 of payload with the given private key,
// producing the signature VerifyCallerSignature expects.
func SignPayload(payload []byte, key *ecdsa.PrivateKey) ([]byte, error) {
	hash := keccak256(payload)
	return crypto.Sign(hash, key)
}

// AddressFromPrivateKey derives the caller address for a private key, used
// by tests and the CLI to mint voter/admin identities.
func AddressFromPrivateKey(key *ecdsa.PrivateKey) common.Address {
	return crypto.PubkeyToAddress(key.PublicKey)
}

// concatBytes joins every part into a single preimage, the shared plumbing
// behind every *Payload helper below.
func concatBytes(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// RequireCallerSignature is the unforgeable-identity gate every caller-
// identified operation runs before touching its own preconditions: sig must
// be a valid signature by caller's key over payload, the same
// VerifyCallerSignature contract the teacher's CryptoService uses for vote
// authentication.
func RequireCallerSignature(caller common.Address, sig []byte, payload []byte) *Error {
	if !VerifyCallerSignature(caller, payload, sig) {
		return ErrInvalidSignature
	}
	return nil
}

// The *Payload functions below are the canonical preimages each signed
// operation's caller must sign. Clients (the CLI, the HTTP layer, tests)
// build the identical bytes to produce a signature the operation's
// RequireCallerSignature call will accept.

// RegisterVoterPayload is what an admin signs to authorize RegisterVoter.
func RegisterVoterPayload(wallet common.Address, identityHash [32]byte, constituencyID uint64) []byte {
	return concatBytes(wallet.Bytes(), identityHash[:], bigEndianWord(constituencyID))
}

// DeactivateVoterPayload is what an admin signs to authorize DeactivateVoter.
func DeactivateVoterPayload(wallet common.Address, reason string) []byte {
	return concatBytes(wallet.Bytes(), []byte(reason))
}

// ReactivateVoterPayload is what an admin signs to authorize ReactivateVoter.
func ReactivateVoterPayload(wallet common.Address) []byte {
	return concatBytes(wallet.Bytes())
}

// CommitVotePayload is what a voter signs to authorize CommitVote.
func CommitVotePayload(commitHash [32]byte) []byte {
	return concatBytes(commitHash[:])
}

// RevealVotePayload is what a voter signs to authorize RevealVote.
func RevealVotePayload(candidateID uint64, secret Secret) []byte {
	return concatBytes(bigEndianWord(candidateID), secret[:])
}

// CreateElectionPayload is what an admin signs to authorize CreateElection.
func CreateElectionPayload(name string, commitDeadline, revealDeadline time.Time, constituencyID uint64) []byte {
	return concatBytes(
		[]byte(name),
		bigEndianWord(uint64(commitDeadline.Unix())),
		bigEndianWord(uint64(revealDeadline.Unix())),
		bigEndianWord(constituencyID),
	)
}

// CancelElectionPayload is what an admin signs to authorize CancelElection.
func CancelElectionPayload(electionID uint64, reason string) []byte {
	return concatBytes(bigEndianWord(electionID), []byte(reason))
}

// ExtendCommitDeadlinePayload is what an admin signs to authorize
// ExtendCommitDeadline.
func ExtendCommitDeadlinePayload(electionID uint64, newDeadline time.Time) []byte {
	return concatBytes(bigEndianWord(electionID), bigEndianWord(uint64(newDeadline.Unix())))
}

// ExtendRevealDeadlinePayload is what an admin signs to authorize
// ExtendRevealDeadline.
func ExtendRevealDeadlinePayload(electionID uint64, newDeadline time.Time) []byte {
	return concatBytes(bigEndianWord(electionID), bigEndianWord(uint64(newDeadline.Unix())))
}
