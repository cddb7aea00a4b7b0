package protocol

import (
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// BallotPhase is the pure temporal state of a Ballot, determined solely by
// the current clock and the two deadlines.
type BallotPhase int

const (
	PhaseCommit BallotPhase = iota
	PhaseReveal
	PhaseTally
)

func (p BallotPhase) String() string {
	switch p {
	case PhaseCommit:
		return "COMMIT"
	case PhaseReveal:
		return "REVEAL"
	case PhaseTally:
		return "TALLY"
	default:
		return "UNKNOWN"
	}
}

// Candidate is a 1-indexed, dense election candidate with a monotonically
// non-decreasing vote counter.
type Candidate struct {
	ID        uint64
	Name      string
	Party     string
	VoteCount uint64
}

// CommitPhase is the tag of the per-voter VoteCommit union: None,
// Committed, or Revealed, with no backward transitions.
type CommitPhase int

const (
	StateNone CommitPhase = iota
	StateCommitted
	StateRevealed
)

// VoteCommit is the closest idiomatic Go approximation of the tagged union
// spec.md's design notes call for: a Phase tag plus payload fields that are
// only meaningful in the corresponding phase. Production code must always
// branch on Phase before reading a payload field; the Must* accessors exist
// for tests and panic otherwise.
type VoteCommit struct {
	Phase               CommitPhase
	CommitHash          [32]byte
	ReceiptHash         [32]byte
	CommitTimestamp     time.Time
	RevealedCandidateID uint64
}

// MustRevealedCandidateID returns RevealedCandidateID, panicking if the
// commit is not in the Revealed phase. Intended for test assertions only.
func (c VoteCommit) MustRevealedCandidateID() uint64 {
	if c.Phase != StateRevealed {
		panic(fmt.Sprintf("MustRevealedCandidateID called on phase %d", c.Phase))
	}
	return c.RevealedCandidateID
}

// Ballot runs one election's commit-reveal protocol end to end: commits,
// reveals, tally, and admin overrides.
type Ballot struct {
	mu sync.RWMutex

	electionID     uint64
	name           string
	registry       *VoterRegistry
	constituencyID uint64
	commitDeadline time.Time
	revealDeadline time.Time

	candidates  []Candidate
	commits     map[common.Address]*VoteCommit
	commitOrder []common.Address

	totalCommits uint64
	totalReveals uint64
	isCancelled  bool
	isFinalized  bool

	clock  Clock
	access *AccessController
	logger zerolog.Logger

	eventLog
	AuditLog
}

// CandidateInput is the minimal (name, party) pair the Factory turns into
// dense 1-indexed Candidate records at Ballot construction.
type CandidateInput struct {
	Name  string
	Party string
}

// NewBallot constructs a Ballot. Callers (normally the Factory) are
// responsible for validating name/deadlines/candidate cardinality before
// calling this; NewBallot trusts its inputs.
func NewBallot(electionID uint64, name string, registry *VoterRegistry, admin common.Address, constituencyID uint64, commitDeadline, revealDeadline time.Time, candidates []CandidateInput, clock Clock) *Ballot {
	if clock == nil {
		clock = SystemClock{}
	}
	cs := make([]Candidate, len(candidates))
	for i, c := range candidates {
		cs[i] = Candidate{ID: uint64(i + 1), Name: c.Name, Party: c.Party}
	}
	return &Ballot{
		electionID:     electionID,
		name:           name,
		registry:       registry,
		constituencyID: constituencyID,
		commitDeadline: commitDeadline,
		revealDeadline: revealDeadline,
		candidates:     cs,
		commits:        make(map[common.Address]*VoteCommit),
		clock:          clock,
		access:         NewAccessController(admin),
		logger:         log.With().Str("component", "ballot").Uint64("electionId", electionID).Logger(),
	}
}

// CurrentPhase is a pure function of now and the two deadlines.
func (b *Ballot) CurrentPhase(now time.Time) BallotPhase {
	switch {
	case !now.After(b.commitDeadline):
		return PhaseCommit
	case !now.After(b.revealDeadline):
		return PhaseReveal
	default:
		return PhaseTally
	}
}

// CommitVote records voter's hiding, binding commitment. caller must
// supply a signature over CommitVotePayload(commitHash) from its own key.
// Preconditions: phase==COMMIT, not cancelled, commitHash non-zero, no
// prior commit, registry eligibility, and constituency match when the
// ballot restricts one.
func (b *Ballot) CommitVote(caller common.Address, commitHash [32]byte, sig []byte) *Error {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.clock.Now()

	if err := RequireCallerSignature(caller, sig, CommitVotePayload(commitHash)); err != nil {
		b.logOp("commitVote", caller, err)
		return err
	}
	if err := b.checkCommitPreconditions(caller, commitHash, now); err != nil {
		b.logOp("commitVote", caller, err)
		return err
	}

	receiptHash := ComputeReceiptHash(caller, commitHash, now.Unix(), b.electionID)
	b.commits[caller] = &VoteCommit{
		Phase:           StateCommitted,
		CommitHash:      commitHash,
		ReceiptHash:     receiptHash,
		CommitTimestamp: now,
	}
	b.commitOrder = append(b.commitOrder, caller)
	b.totalCommits++

	b.emit(VoteCommitted{baseEvent: baseEvent{timestamp: now}, Voter: caller, ReceiptHash: receiptHash})
	b.logOp("commitVote", caller, nil)
	return nil
}

func (b *Ballot) checkCommitPreconditions(caller common.Address, commitHash [32]byte, now time.Time) *Error {
	if b.isCancelled {
		return ErrElectionCancelled
	}
	if b.CurrentPhase(now) != PhaseCommit {
		return ErrWrongPhase
	}
	if commitHash == ([32]byte{}) {
		return ErrEmptyHash
	}
	if existing, ok := b.commits[caller]; ok && existing.Phase != StateNone {
		return ErrAlreadyCommitted
	}
	if !b.registry.IsEligible(caller) {
		return ErrNotEligible
	}
	if b.constituencyID > 0 && b.registry.GetVoterConstituency(caller) != b.constituencyID {
		return ErrWrongConstituency
	}
	return nil
}

// RevealVote discloses (candidateID, secret), binding it to the previously
// stored commitment, incrementing the candidate counter exactly once.
// caller must supply a signature over RevealVotePayload(candidateID,
// secret) from its own key. Eligibility is deliberately NOT re-checked
// here: the source only enforces it at commit time, so a voter deactivated
// between commit and reveal may still reveal.
func (b *Ballot) RevealVote(caller common.Address, candidateID uint64, secret Secret, sig []byte) *Error {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.clock.Now()

	if err := RequireCallerSignature(caller, sig, RevealVotePayload(candidateID, secret)); err != nil {
		b.logOp("revealVote", caller, err)
		return err
	}
	commit, err := b.checkRevealPreconditions(caller, candidateID, secret, now)
	if err != nil {
		b.logOp("revealVote", caller, err)
		return err
	}

	commit.Phase = StateRevealed
	commit.RevealedCandidateID = candidateID
	b.candidates[candidateID-1].VoteCount++
	b.totalReveals++

	b.emit(VoteRevealed{baseEvent: baseEvent{timestamp: now}, Voter: caller})
	b.logOp("revealVote", caller, nil)
	return nil
}

func (b *Ballot) checkRevealPreconditions(caller common.Address, candidateID uint64, secret Secret, now time.Time) (*VoteCommit, *Error) {
	if b.isCancelled {
		return nil, ErrElectionCancelled
	}
	if b.CurrentPhase(now) != PhaseReveal {
		return nil, ErrWrongPhase
	}
	commit, ok := b.commits[caller]
	if !ok || commit.Phase == StateNone {
		return nil, ErrNoCommit
	}
	if commit.Phase == StateRevealed {
		return nil, ErrAlreadyRevealed
	}
	if candidateID < 1 || candidateID > uint64(len(b.candidates)) {
		return nil, ErrInvalidCandidate
	}
	if ComputeCommitHash(candidateID, secret) != commit.CommitHash {
		return nil, ErrHashMismatch
	}
	return commit, nil
}

// Finalize declares the tally final. Callable by anyone once the reveal
// window has closed, provided the ballot was never cancelled.
func (b *Ballot) Finalize(caller common.Address) *Error {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.clock.Now()
	// REDESIGN: ¬isCancelled is checked as its own explicit branch, not
	// merely implied by the phase function, per the finalization-after-
	// cancellation design note.
	if b.isCancelled {
		return ErrElectionCancelled
	}
	if b.isFinalized {
		return ErrAlreadyFinalized
	}
	if !now.After(b.revealDeadline) {
		return ErrRevealNotEnded
	}

	b.isFinalized = true
	b.emit(ElectionFinalized{baseEvent: baseEvent{timestamp: now}, TotalReveals: b.totalReveals})
	b.logOp("finalize", caller, nil)
	return nil
}

// CancelElection is admin-only, requires a signature over
// CancelElectionPayload from caller's own key, and is blocked if already
// cancelled. It is a ballot-global terminal gate; counters and existing
// commits are never rolled back.
func (b *Ballot) CancelElection(caller common.Address, reason string, sig []byte) *Error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := RequireCallerSignature(caller, sig, CancelElectionPayload(b.electionID, reason)); err != nil {
		return err
	}
	if err := b.access.RequireAdmin(caller); err != nil {
		return err
	}
	if b.isCancelled {
		return ErrElectionCancelled
	}

	b.isCancelled = true
	now := b.clock.Now()
	b.emit(ElectionCancelled{baseEvent: baseEvent{timestamp: now}, Reason: reason})
	b.record(b.clock, "election_cancelled", caller, fmt.Sprintf("%d", b.electionID), reason)
	b.logOp("cancelElection", caller, nil)
	return nil
}

// ExtendCommitDeadline is admin-only and requires a signature over
// ExtendCommitDeadlinePayload from caller's own key. The new deadline must
// move forward and remain strictly less than the reveal deadline. If the
// ballot is currently in REVEAL, a sufficiently late new deadline re-opens
// COMMIT as a pure consequence of the phase function — this is accepted
// behavior, not a bug.
func (b *Ballot) ExtendCommitDeadline(caller common.Address, newDeadline time.Time, sig []byte) *Error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := RequireCallerSignature(caller, sig, ExtendCommitDeadlinePayload(b.electionID, newDeadline)); err != nil {
		return err
	}
	if err := b.access.RequireAdmin(caller); err != nil {
		return err
	}
	if !newDeadline.After(b.commitDeadline) {
		return ErrCanOnlyExtend
	}
	if !newDeadline.Before(b.revealDeadline) {
		return ErrDeadlineOrdering
	}
	b.commitDeadline = newDeadline
	b.record(b.clock, "commit_deadline_extended", caller, fmt.Sprintf("%d", b.electionID), newDeadline.String())
	return nil
}

// ExtendRevealDeadline is admin-only and requires a signature over
// ExtendRevealDeadlinePayload from caller's own key. The new deadline must
// move forward and remain strictly greater than the commit deadline.
func (b *Ballot) ExtendRevealDeadline(caller common.Address, newDeadline time.Time, sig []byte) *Error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := RequireCallerSignature(caller, sig, ExtendRevealDeadlinePayload(b.electionID, newDeadline)); err != nil {
		return err
	}
	if err := b.access.RequireAdmin(caller); err != nil {
		return err
	}
	if !newDeadline.After(b.revealDeadline) {
		return ErrCanOnlyExtend
	}
	if !newDeadline.After(b.commitDeadline) {
		return ErrDeadlineOrdering
	}
	b.revealDeadline = newDeadline
	b.record(b.clock, "reveal_deadline_extended", caller, fmt.Sprintf("%d", b.electionID), newDeadline.String())
	return nil
}

// --- Views ---

// GetCandidate returns a copy of the 1-indexed candidate record.
func (b *Ballot) GetCandidate(id uint64) (Candidate, *Error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if id < 1 || id > uint64(len(b.candidates)) {
		return Candidate{}, ErrInvalidCandidate
	}
	return b.candidates[id-1], nil
}

// GetAllCandidates returns a copy of every candidate record in order.
func (b *Ballot) GetAllCandidates() []Candidate {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Candidate, len(b.candidates))
	copy(out, b.candidates)
	return out
}

// Results is the read-only tally snapshot GetResults returns.
type Results struct {
	Candidates   []Candidate
	TotalCommits uint64
	TotalReveals uint64
	Finalized    bool
}

// GetResults fails with ResultsNotReady unless the reveal window has
// closed or the ballot is already finalized.
func (b *Ballot) GetResults() (Results, *Error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	now := b.clock.Now()
	if !now.After(b.revealDeadline) && !b.isFinalized {
		return Results{}, ErrResultsNotReady
	}
	out := make([]Candidate, len(b.candidates))
	copy(out, b.candidates)
	return Results{Candidates: out, TotalCommits: b.totalCommits, TotalReveals: b.totalReveals, Finalized: b.isFinalized}, nil
}

// GetVoterCommitStatus returns a copy of voter's VoteCommit.
func (b *Ballot) GetVoterCommitStatus(voter common.Address) VoteCommit {
	b.mu.RLock()
	defer b.mu.RUnlock()
	commit, ok := b.commits[voter]
	if !ok {
		return VoteCommit{Phase: StateNone}
	}
	return *commit
}

// VerifyReceipt reports whether receiptHash matches the stored receipt for
// voter. Returns false on a zero hash, even if the voter has no commit.
func (b *Ballot) VerifyReceipt(voter common.Address, receiptHash [32]byte) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if receiptHash == ([32]byte{}) {
		return false
	}
	commit, ok := b.commits[voter]
	if !ok {
		return false
	}
	return commit.ReceiptHash == receiptHash
}

// ElectionInfo is the read-only summary GetElectionInfo returns.
type ElectionInfo struct {
	ElectionID     uint64
	Name           string
	ConstituencyID uint64
	CommitDeadline time.Time
	RevealDeadline time.Time
	IsCancelled    bool
	IsFinalized    bool
	Admin          common.Address
}

// GetElectionInfo returns the ballot's static and flag fields.
func (b *Ballot) GetElectionInfo() ElectionInfo {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return ElectionInfo{
		ElectionID:     b.electionID,
		Name:           b.name,
		ConstituencyID: b.constituencyID,
		CommitDeadline: b.commitDeadline,
		RevealDeadline: b.revealDeadline,
		IsCancelled:    b.isCancelled,
		IsFinalized:    b.isFinalized,
		Admin:          b.access.Owner(),
	}
}

// GetTotalCommitters returns the number of distinct addresses that have
// committed.
func (b *Ballot) GetTotalCommitters() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.totalCommits
}

// ComputeCommitHash is the pure helper off-system callers use to compute
// the same hash the ballot will check at reveal time.
func (b *Ballot) ComputeCommitHash(candidateID uint64, secret Secret) [32]byte {
	return ComputeCommitHash(candidateID, secret)
}

// Access exposes the ballot's AccessController so the Factory can grant
// additional admins at creation time.
func (b *Ballot) Access() *AccessController { return b.access }

// IsCancelled and IsFinalized are narrow read-only accessors the Verifier
// uses without pulling in the whole ElectionInfo snapshot.
func (b *Ballot) IsCancelled() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.isCancelled
}

func (b *Ballot) IsFinalized() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.isFinalized
}

func (b *Ballot) logOp(op string, caller common.Address, err *Error) {
	ev := b.logger.Info().Str("op", op).Str("caller", caller.Hex())
	if err != nil {
		ev.Str("result", string(err.Kind)).Msg("ballot operation failed")
		return
	}
	ev.Str("result", "ok").Msg("ballot operation")
}
