package protocol

import (
	"errors"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"
)

// ErrQueueFull is returned when a BallotQueue's buffered channel is full.
// It is infrastructure-level, not a member of the protocol's closed error
// taxonomy in errors.go, since no ballot precondition failed — the ballot
// was simply never asked to do anything.
var ErrQueueFull = errors.New("ballot queue is full")

// BallotQueue serializes commits, reveals, and finalization onto a Ballot
// through one worker goroutine per operation, the single-writer-actor
// alternative to a bare mutex that spec.md's concurrency model permits.
// Ballot's own RWMutex still makes every call individually safe;
// BallotQueue additionally guarantees a fixed arrival order for callers who
// submit concurrently, the same role the teacher's QueueProcessor plays for
// registrations and votes.
type BallotQueue struct {
	ballot  *Ballot
	metrics *MetricsCollector

	commitCh   chan commitRequest
	revealCh   chan revealRequest
	finalizeCh chan finalizeRequest

	wg         sync.WaitGroup
	shutdownCh chan struct{}
}

type commitRequest struct {
	caller     common.Address
	commitHash [32]byte
	sig        []byte
	resultCh   chan<- QueueResult
}

type revealRequest struct {
	caller      common.Address
	candidateID uint64
	secret      Secret
	sig         []byte
	resultCh    chan<- QueueResult
}

type finalizeRequest struct {
	caller   common.Address
	resultCh chan<- QueueResult
}

// QueueResult is the outcome of a queued commit, reveal, or finalize. Err
// is a plain error so it can carry either a *Error from the ballot itself
// or ErrQueueFull from the queue's own capacity check.
type QueueResult struct {
	Err error
}

// wrapErr lifts a possibly-nil *Error into the error interface without
// tripping the nil-interface trap: a nil *Error stored directly in an
// error-typed field is a non-nil interface.
func wrapErr(e *Error) error {
	if e == nil {
		return nil
	}
	return e
}

// NewBallotQueue creates a queue of depth queueSize over ballot and starts
// its three workers.
func NewBallotQueue(ballot *Ballot, queueSize int) *BallotQueue {
	q := &BallotQueue{
		ballot:     ballot,
		metrics:    NewMetricsCollector(),
		commitCh:   make(chan commitRequest, queueSize),
		revealCh:   make(chan revealRequest, queueSize),
		finalizeCh: make(chan finalizeRequest, queueSize),
		shutdownCh: make(chan struct{}),
	}
	q.wg.Add(3)
	go q.commitWorker()
	go q.revealWorker()
	go q.finalizeWorker()
	return q
}

// Stop drains in-flight work and shuts all workers down.
func (q *BallotQueue) Stop() {
	close(q.shutdownCh)
	q.wg.Wait()
}

// SubmitCommit enqueues a commit, returning a channel the caller can
// receive the result from. If the queue is full the request is rejected
// immediately rather than blocking the caller.
func (q *BallotQueue) SubmitCommit(caller common.Address, commitHash [32]byte, sig []byte) <-chan QueueResult {
	resultCh := make(chan QueueResult, 1)
	select {
	case q.commitCh <- commitRequest{caller: caller, commitHash: commitHash, sig: sig, resultCh: resultCh}:
	default:
		resultCh <- QueueResult{Err: ErrQueueFull}
		close(resultCh)
	}
	return resultCh
}

// SubmitReveal enqueues a reveal, returning a channel the caller can
// receive the result from.
func (q *BallotQueue) SubmitReveal(caller common.Address, candidateID uint64, secret Secret, sig []byte) <-chan QueueResult {
	resultCh := make(chan QueueResult, 1)
	select {
	case q.revealCh <- revealRequest{caller: caller, candidateID: candidateID, secret: secret, sig: sig, resultCh: resultCh}:
	default:
		resultCh <- QueueResult{Err: ErrQueueFull}
		close(resultCh)
	}
	return resultCh
}

// SubmitFinalize enqueues a finalize call, returning a channel the caller
// can receive the result from. Finalize carries no caller-identified
// precondition of its own (anyone may finalize once the reveal window has
// closed), so unlike SubmitCommit/SubmitReveal it takes no signature.
func (q *BallotQueue) SubmitFinalize(caller common.Address) <-chan QueueResult {
	resultCh := make(chan QueueResult, 1)
	select {
	case q.finalizeCh <- finalizeRequest{caller: caller, resultCh: resultCh}:
	default:
		resultCh <- QueueResult{Err: ErrQueueFull}
		close(resultCh)
	}
	return resultCh
}

func (q *BallotQueue) commitWorker() {
	defer q.wg.Done()
	for {
		select {
		case <-q.shutdownCh:
			return
		case req := <-q.commitCh:
			start := time.Now()
			err := q.ballot.CommitVote(req.caller, req.commitHash, req.sig)
			q.metrics.RecordCommit(time.Since(start))
			if err != nil {
				log.Info().Str("op", "queuedCommit").Str("caller", req.caller.Hex()).Str("result", string(err.Kind)).Msg("ballot queue")
			}
			req.resultCh <- QueueResult{Err: wrapErr(err)}
			close(req.resultCh)
		}
	}
}

func (q *BallotQueue) revealWorker() {
	defer q.wg.Done()
	for {
		select {
		case <-q.shutdownCh:
			return
		case req := <-q.revealCh:
			start := time.Now()
			err := q.ballot.RevealVote(req.caller, req.candidateID, req.secret, req.sig)
			q.metrics.RecordReveal(time.Since(start))
			if err != nil {
				log.Info().Str("op", "queuedReveal").Str("caller", req.caller.Hex()).Str("result", string(err.Kind)).Msg("ballot queue")
			}
			req.resultCh <- QueueResult{Err: wrapErr(err)}
			close(req.resultCh)
		}
	}
}

func (q *BallotQueue) finalizeWorker() {
	defer q.wg.Done()
	for {
		select {
		case <-q.shutdownCh:
			return
		case req := <-q.finalizeCh:
			start := time.Now()
			q.metrics.RecordFinalizeStart(start)
			err := q.ballot.Finalize(req.caller)
			q.metrics.RecordFinalizeEnd(time.Now())
			if err != nil {
				log.Info().Str("op", "queuedFinalize").Str("caller", req.caller.Hex()).Str("result", string(err.Kind)).Msg("ballot queue")
			}
			req.resultCh <- QueueResult{Err: wrapErr(err)}
			close(req.resultCh)
		}
	}
}

// Metrics exposes the queue's MetricsCollector for read-only inspection.
func (q *BallotQueue) Metrics() *MetricsCollector { return q.metrics }
