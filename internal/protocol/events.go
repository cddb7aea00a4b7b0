package protocol

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Event is the common interface of every stable event name in the event
// stream. Events are append-only and the only supported mechanism for
// external observers to reconstruct history.
type Event interface {
	Name() string
	At() time.Time
}

type baseEvent struct {
	timestamp time.Time
}

func (b baseEvent) At() time.Time { return b.timestamp }

type VoterRegistered struct {
	baseEvent
	Wallet         common.Address
	ConstituencyID uint64
}

func (VoterRegistered) Name() string { return "VoterRegistered" }

type VoterDeactivated struct {
	baseEvent
	Wallet common.Address
	Reason string
}

func (VoterDeactivated) Name() string { return "VoterDeactivated" }

type VoterReactivated struct {
	baseEvent
	Wallet common.Address
}

func (VoterReactivated) Name() string { return "VoterReactivated" }

type ElectionCreated struct {
	baseEvent
	ElectionID     uint64
	ElectionName   string
	BallotRef      string
	CommitDeadline time.Time
	RevealDeadline time.Time
	CreatedBy      common.Address
}

func (ElectionCreated) Name() string { return "ElectionCreated" }

type VoteCommitted struct {
	baseEvent
	Voter       common.Address
	ReceiptHash [32]byte
}

func (VoteCommitted) Name() string { return "VoteCommitted" }

type VoteRevealed struct {
	baseEvent
	Voter common.Address
}

func (VoteRevealed) Name() string { return "VoteRevealed" }

type ElectionFinalized struct {
	baseEvent
	TotalReveals uint64
}

func (ElectionFinalized) Name() string { return "ElectionFinalized" }

type ElectionCancelled struct {
	baseEvent
	Reason string
}

func (ElectionCancelled) Name() string { return "ElectionCancelled" }

type VerificationPerformed struct {
	baseEvent
	Verifier     common.Address
	Ballot       string
	Voter        common.Address
	ReceiptValid bool
}

func (VerificationPerformed) Name() string { return "VerificationPerformed" }

// eventLog is an append-only, mutex-free (caller already holds the
// aggregate's lock) event buffer embedded by every aggregate.
type eventLog struct {
	events []Event
}

func (l *eventLog) emit(e Event) {
	l.events = append(l.events, e)
}

// Events returns a copy of every event emitted by this aggregate, in
// emission order.
func (l *eventLog) Events() []Event {
	out := make([]Event, len(l.events))
	copy(out, l.events)
	return out
}
