package protocol

import (
	"crypto/subtle"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// VoterRecord is the per-wallet record the Registry owns. Every identity
// hash maps to at most one wallet forever, even across deactivation:
// deactivating a voter never releases identityHash.
type VoterRecord struct {
	Wallet         common.Address
	IdentityHash   [32]byte
	ConstituencyID uint64
	Registered     bool
	Active         bool
	RegisteredAt   time.Time
}

// VoterRegistry is the authoritative eligibility source of truth for every
// ballot: identity-hash uniqueness, constituency binding, and activation
// state.
type VoterRegistry struct {
	mu sync.RWMutex

	access *AccessController
	clock  Clock
	logger zerolog.Logger

	voters           map[common.Address]*VoterRecord
	consumedIdentity map[[32]byte]bool
	order            []common.Address

	eventLog
	AuditLog
}

// NewVoterRegistry constructs a Registry owned and initially administered
// by owner.
func NewVoterRegistry(owner common.Address, clock Clock) *VoterRegistry {
	if clock == nil {
		clock = SystemClock{}
	}
	return &VoterRegistry{
		access:           NewAccessController(owner),
		clock:            clock,
		logger:           log.With().Str("component", "registry").Logger(),
		voters:           make(map[common.Address]*VoterRecord),
		consumedIdentity: make(map[[32]byte]bool),
	}
}

// RegisterVoter is admin-only and requires a signature over
// RegisterVoterPayload from caller's own key, the unforgeable-identity
// scheme spec.md calls for. It fails with AlreadyRegistered if wallet
// already exists, IdentityReused if the identity hash was ever consumed,
// InvalidConstituency if constituencyID is zero, and ZeroAddress if wallet
// is the zero address.
func (r *VoterRegistry) RegisterVoter(caller, wallet common.Address, identityHash [32]byte, constituencyID uint64, sig []byte) *Error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := RequireCallerSignature(caller, sig, RegisterVoterPayload(wallet, identityHash, constituencyID)); err != nil {
		r.logOp("registerVoter", caller, err)
		return err
	}
	if err := r.access.RequireAdmin(caller); err != nil {
		r.logOp("registerVoter", caller, err)
		return err
	}
	if wallet == (common.Address{}) {
		r.logOp("registerVoter", caller, ErrZeroAddress)
		return ErrZeroAddress
	}
	if _, exists := r.voters[wallet]; exists {
		r.logOp("registerVoter", caller, ErrAlreadyRegistered)
		return ErrAlreadyRegistered
	}
	if constituencyID == 0 {
		r.logOp("registerVoter", caller, ErrInvalidConstituency)
		return ErrInvalidConstituency
	}
	if r.consumedIdentity[identityHash] {
		r.logOp("registerVoter", caller, ErrIdentityReused)
		return ErrIdentityReused
	}

	now := r.clock.Now()
	record := &VoterRecord{
		Wallet:         wallet,
		IdentityHash:   identityHash,
		ConstituencyID: constituencyID,
		Registered:     true,
		Active:         true,
		RegisteredAt:   now,
	}
	r.voters[wallet] = record
	r.consumedIdentity[identityHash] = true
	r.order = append(r.order, wallet)

	r.emit(VoterRegistered{
		baseEvent:      baseEvent{timestamp: now},
		Wallet:         wallet,
		ConstituencyID: constituencyID,
	})
	r.record(r.clock, "voter_registered", caller, wallet.Hex(), "")
	r.logOp("registerVoter", caller, nil)
	return nil
}

// DeactivateVoter is admin-only and requires a signature over
// DeactivateVoterPayload from caller's own key. It toggles Active to false
// without releasing IdentityHash.
func (r *VoterRegistry) DeactivateVoter(caller, wallet common.Address, reason string, sig []byte) *Error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := RequireCallerSignature(caller, sig, DeactivateVoterPayload(wallet, reason)); err != nil {
		return err
	}
	if err := r.access.RequireAdmin(caller); err != nil {
		return err
	}
	record, ok := r.voters[wallet]
	if !ok {
		return ErrNotRegistered
	}
	record.Active = false

	r.emit(VoterDeactivated{baseEvent: baseEvent{timestamp: r.clock.Now()}, Wallet: wallet, Reason: reason})
	r.record(r.clock, "voter_deactivated", caller, wallet.Hex(), reason)
	return nil
}

// ReactivateVoter is admin-only and requires a signature over
// ReactivateVoterPayload from caller's own key. It toggles Active back to
// true.
func (r *VoterRegistry) ReactivateVoter(caller, wallet common.Address, sig []byte) *Error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := RequireCallerSignature(caller, sig, ReactivateVoterPayload(wallet)); err != nil {
		return err
	}
	if err := r.access.RequireAdmin(caller); err != nil {
		return err
	}
	record, ok := r.voters[wallet]
	if !ok {
		return ErrNotRegistered
	}
	record.Active = true

	r.emit(VoterReactivated{baseEvent: baseEvent{timestamp: r.clock.Now()}, Wallet: wallet})
	r.record(r.clock, "voter_reactivated", caller, wallet.Hex(), "")
	return nil
}

// IsEligible reports registered && active for wallet.
func (r *VoterRegistry) IsEligible(wallet common.Address) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	record, ok := r.voters[wallet]
	return ok && record.Registered && record.Active
}

// GetVoterConstituency returns wallet's constituency id, or 0 if unknown.
func (r *VoterRegistry) GetVoterConstituency(wallet common.Address) uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	record, ok := r.voters[wallet]
	if !ok {
		return 0
	}
	return record.ConstituencyID
}

// VerifyIdentity performs a constant-time comparison between wallet's
// stored identity hash and candidateHash, so timing cannot leak whether a
// prefix matched. Stdlib crypto/subtle is the correct tool here: no
// ecosystem library in the example pack does constant-time compare better
// than it does.
func (r *VoterRegistry) VerifyIdentity(wallet common.Address, candidateHash [32]byte) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	record, ok := r.voters[wallet]
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare(record.IdentityHash[:], candidateHash[:]) == 1
}

// GetVoterInfo returns a copy of the voter record for wallet.
func (r *VoterRegistry) GetVoterInfo(wallet common.Address) (VoterRecord, *Error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	record, ok := r.voters[wallet]
	if !ok {
		return VoterRecord{}, ErrNotRegistered
	}
	return *record, nil
}

// GetVoterCount returns the total number of ever-registered voters.
func (r *VoterRegistry) GetVoterCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// GetVoterAtIndex supports enumeration in registration order.
func (r *VoterRegistry) GetVoterAtIndex(i int) (common.Address, *Error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if i < 0 || i >= len(r.order) {
		return common.Address{}, newErr(KindNotRegistered, "index out of range")
	}
	return r.order[i], nil
}

// Access exposes the registry's AccessController so a deployer can grant
// additional admins.
func (r *VoterRegistry) Access() *AccessController { return r.access }

func (r *VoterRegistry) logOp(op string, caller common.Address, err *Error) {
	ev := r.logger.Info().Str("op", op).Str("caller", caller.Hex())
	if err != nil {
		ev.Str("result", string(err.Kind)).Msg("registry operation failed")
		return
	}
	ev.Str("result", "ok").Msg("registry operation")
}
