package protocol

import (
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// MaxCandidates is the implementation-defined cap spec.md leaves open,
// recommending 50 or fewer.
const MaxCandidates = 50

// ElectionType is an advisory tag that does not alter protocol behavior;
// it exists only for off-system categorization.
type ElectionType int

const (
	ElectionGeneral ElectionType = iota
	ElectionConstituency
)

func (t ElectionType) String() string {
	if t == ElectionConstituency {
		return "CONSTITUENCY"
	}
	return "GENERAL"
}

// ElectionRecord is one append-only entry in the Factory's directory.
type ElectionRecord struct {
	ID           uint64
	Name         string
	Description  string
	BallotRef    string
	CreatedAt    time.Time
	CreatedBy    common.Address
	ElectionType ElectionType
}

// Factory is admin-gated creation of Ballots plus an append-only directory
// of elections. It retains no administrative power over a Ballot once
// created.
type Factory struct {
	mu sync.RWMutex

	access   *AccessController
	registry *VoterRegistry
	clock    Clock
	logger   zerolog.Logger

	elections []ElectionRecord
	ballots   []*Ballot
	byRef     map[string]*Ballot
	nextID    uint64

	eventLog
	AuditLog
}

// NewFactory constructs a Factory owned by owner, creating Ballots against
// registry for eligibility checks.
func NewFactory(owner common.Address, registry *VoterRegistry, clock Clock) *Factory {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Factory{
		access:   NewAccessController(owner),
		registry: registry,
		clock:    clock,
		logger:   log.With().Str("component", "factory").Logger(),
		byRef:    make(map[string]*Ballot),
		nextID:   1,
	}
}

// CreateElection allocates the next election id, instantiates a Ballot
// with admin=caller, appends a directory entry, and emits
// ElectionCreated. Admin-only and requires a signature over
// CreateElectionPayload from caller's own key.
func (f *Factory) CreateElection(caller common.Address, name, description string, commitDeadline, revealDeadline time.Time, candidateNames, candidateParties []string, constituencyID uint64, electionType ElectionType, sig []byte) (uint64, string, *Error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := f.clock.Now()

	if err := RequireCallerSignature(caller, sig, CreateElectionPayload(name, commitDeadline, revealDeadline, constituencyID)); err != nil {
		return 0, "", err
	}
	if err := f.access.RequireAdmin(caller); err != nil {
		return 0, "", err
	}
	if name == "" {
		return 0, "", ErrEmptyName
	}
	if !commitDeadline.After(now) {
		return 0, "", newErr(KindDeadlineOrdering, "commitDeadline must be strictly future")
	}
	if !revealDeadline.After(commitDeadline) {
		return 0, "", newErr(KindDeadlineOrdering, "revealDeadline must be strictly after commitDeadline")
	}
	if len(candidateNames) == 0 {
		return 0, "", newErr(KindCandidateCountMismatch, "at least one candidate required")
	}
	if len(candidateNames) > MaxCandidates {
		return 0, "", newErrf(KindCandidateCountMismatch, "at most %d candidates allowed", MaxCandidates)
	}
	if len(candidateNames) != len(candidateParties) {
		return 0, "", newErr(KindCandidateCountMismatch, "candidateNames and candidateParties must be equal length")
	}

	candidates := make([]CandidateInput, len(candidateNames))
	for i := range candidateNames {
		candidates[i] = CandidateInput{Name: candidateNames[i], Party: candidateParties[i]}
	}

	electionID := f.nextID
	f.nextID++

	ballot := NewBallot(electionID, name, f.registry, caller, constituencyID, commitDeadline, revealDeadline, candidates, f.clock)
	ballotRef := uuid.New().String()

	f.ballots = append(f.ballots, ballot)
	f.byRef[ballotRef] = ballot
	f.elections = append(f.elections, ElectionRecord{
		ID:           electionID,
		Name:         name,
		Description:  description,
		BallotRef:    ballotRef,
		CreatedAt:    now,
		CreatedBy:    caller,
		ElectionType: electionType,
	})

	f.emit(ElectionCreated{
		baseEvent:      baseEvent{timestamp: now},
		ElectionID:     electionID,
		ElectionName:   name,
		BallotRef:      ballotRef,
		CommitDeadline: commitDeadline,
		RevealDeadline: revealDeadline,
		CreatedBy:      caller,
	})
	f.record(f.clock, "election_created", caller, fmt.Sprintf("%d", electionID), ballotRef)
	f.logOp("createElection", caller, nil)

	return electionID, ballotRef, nil
}

// GetElectionCount returns the number of elections ever created.
func (f *Factory) GetElectionCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.elections)
}

// GetElection returns a copy of the directory entry at index.
func (f *Factory) GetElection(index int) (ElectionRecord, *Error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if index < 0 || index >= len(f.elections) {
		return ElectionRecord{}, ErrBallotNotFound
	}
	return f.elections[index], nil
}

// GetElectionByBallot resolves a Ballot by its issued ballotRef.
func (f *Factory) GetElectionByBallot(ballotRef string) (*Ballot, *Error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	ballot, ok := f.byRef[ballotRef]
	if !ok {
		return nil, ErrBallotNotFound
	}
	return ballot, nil
}

// GetAllElections returns a copy of the full election directory.
func (f *Factory) GetAllElections() []ElectionRecord {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]ElectionRecord, len(f.elections))
	copy(out, f.elections)
	return out
}

// Access exposes the factory's AccessController so a deployer can grant
// additional admins.
func (f *Factory) Access() *AccessController { return f.access }

func (f *Factory) logOp(op string, caller common.Address, err *Error) {
	ev := f.logger.Info().Str("op", op).Str("caller", caller.Hex())
	if err != nil {
		ev.Str("result", string(err.Kind)).Msg("factory operation failed")
		return
	}
	ev.Str("result", "ok").Msg("factory operation")
}
