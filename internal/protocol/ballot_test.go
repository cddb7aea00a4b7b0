package protocol

import (
	"crypto/ecdsa"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func newTestBallot(t *testing.T, constituencyID uint64) (*Ballot, *VoterRegistry, *FixedClock, *ecdsa.PrivateKey, common.Address) {
	t.Helper()
	ownerKey, owner := newTestKey(t)
	clock := NewFixedClock(epoch)
	registry := NewVoterRegistry(owner, clock)

	commitDeadline := epoch.Add(1 * time.Hour)
	revealDeadline := epoch.Add(2 * time.Hour)
	ballot := NewBallot(1, "E", registry, owner, constituencyID, commitDeadline, revealDeadline, []CandidateInput{
		{Name: "Alice", Party: "A"},
		{Name: "Bob", Party: "B"},
		{Name: "Carol", Party: "C"},
	}, clock)
	return ballot, registry, clock, ownerKey, owner
}

// Scenario A — happy path, two voters.
func Test_ScenarioA_HappyPathTwoVoters(t *testing.T) {
	ballot, registry, clock, ownerKey, owner := newTestBallot(t, 0)
	v1Key, v1 := newTestKey(t)
	v2Key, v2 := newTestKey(t)
	require.Nil(t, registerTestVoter(t, registry, ownerKey, owner, v1, IdentityHash([]byte("V1")), 1))
	require.Nil(t, registerTestVoter(t, registry, ownerKey, owner, v2, IdentityHash([]byte("V2")), 1))

	s1, s2 := mustSecret(11), mustSecret(22)
	require.Nil(t, commitTestVote(t, ballot, v1Key, v1, ComputeCommitHash(1, s1)))
	require.Nil(t, commitTestVote(t, ballot, v2Key, v2, ComputeCommitHash(2, s2)))

	clock.Advance(1*time.Hour + time.Second)
	require.Nil(t, revealTestVote(t, ballot, v1Key, v1, 1, s1))
	require.Nil(t, revealTestVote(t, ballot, v2Key, v2, 2, s2))

	clock.Advance(1*time.Hour + time.Second)
	require.Nil(t, ballot.Finalize(v1))

	results, err := ballot.GetResults()
	require.Nil(t, err)
	require.Equal(t, uint64(1), results.Candidates[0].VoteCount)
	require.Equal(t, uint64(1), results.Candidates[1].VoteCount)
	require.Equal(t, uint64(0), results.Candidates[2].VoteCount)
	require.Equal(t, uint64(2), results.TotalCommits)
	require.Equal(t, uint64(2), results.TotalReveals)

	v := NewVerifier(owner)
	report := v.VerifyElectionIntegrity(ballot)
	require.True(t, report.Integrous)
}

// Scenario B — wrong secret on reveal.
func Test_ScenarioB_WrongSecretOnReveal(t *testing.T) {
	ballot, registry, clock, ownerKey, owner := newTestBallot(t, 0)
	v1Key, v1 := newTestKey(t)
	require.Nil(t, registerTestVoter(t, registry, ownerKey, owner, v1, IdentityHash([]byte("V1")), 1))

	s1 := mustSecret(11)
	require.Nil(t, commitTestVote(t, ballot, v1Key, v1, ComputeCommitHash(1, s1)))

	clock.Advance(1*time.Hour + time.Second)
	err := revealTestVote(t, ballot, v1Key, v1, 1, mustSecret(99))
	require.NotNil(t, err)
	require.Equal(t, KindHashMismatch, err.Kind)

	candidates := ballot.GetAllCandidates()
	require.Equal(t, uint64(0), candidates[0].VoteCount)

	// V1 may retry with the correct secret in the same phase.
	require.Nil(t, revealTestVote(t, ballot, v1Key, v1, 1, s1))
}

// Scenario C — constituency restriction.
func Test_ScenarioC_ConstituencyRestriction(t *testing.T) {
	ballot, registry, _, ownerKey, owner := newTestBallot(t, 1)
	v1Key, v1 := newTestKey(t)
	v3Key, v3 := newTestKey(t)
	require.Nil(t, registerTestVoter(t, registry, ownerKey, owner, v1, IdentityHash([]byte("V1")), 1))
	require.Nil(t, registerTestVoter(t, registry, ownerKey, owner, v3, IdentityHash([]byte("V3")), 2))

	require.Nil(t, commitTestVote(t, ballot, v1Key, v1, ComputeCommitHash(1, mustSecret(1))))

	err := commitTestVote(t, ballot, v3Key, v3, ComputeCommitHash(1, mustSecret(2)))
	require.NotNil(t, err)
	require.Equal(t, KindWrongConstituency, err.Kind)
}

// Scenario D — double commit and double reveal.
func Test_ScenarioD_DoubleCommitAndDoubleReveal(t *testing.T) {
	ballot, registry, clock, ownerKey, owner := newTestBallot(t, 0)
	v1Key, v1 := newTestKey(t)
	require.Nil(t, registerTestVoter(t, registry, ownerKey, owner, v1, IdentityHash([]byte("V1")), 1))

	s1 := mustSecret(11)
	require.Nil(t, commitTestVote(t, ballot, v1Key, v1, ComputeCommitHash(1, s1)))
	err := commitTestVote(t, ballot, v1Key, v1, ComputeCommitHash(1, s1))
	require.NotNil(t, err)
	require.Equal(t, KindAlreadyCommitted, err.Kind)

	clock.Advance(1*time.Hour + time.Second)
	require.Nil(t, revealTestVote(t, ballot, v1Key, v1, 1, s1))
	err = revealTestVote(t, ballot, v1Key, v1, 1, s1)
	require.NotNil(t, err)
	require.Equal(t, KindAlreadyRevealed, err.Kind)
}

// Scenario E — cancellation mid-commit.
func Test_ScenarioE_CancellationMidCommit(t *testing.T) {
	ballot, registry, clock, ownerKey, owner := newTestBallot(t, 0)
	v1Key, v1 := newTestKey(t)
	v2Key, v2 := newTestKey(t)
	require.Nil(t, registerTestVoter(t, registry, ownerKey, owner, v1, IdentityHash([]byte("V1")), 1))
	require.Nil(t, registerTestVoter(t, registry, ownerKey, owner, v2, IdentityHash([]byte("V2")), 1))

	require.Nil(t, commitTestVote(t, ballot, v1Key, v1, ComputeCommitHash(1, mustSecret(1))))
	require.Nil(t, ballot.CancelElection(owner, "audit failure", sign(t, ownerKey, CancelElectionPayload(ballot.electionID, "audit failure"))))

	err := commitTestVote(t, ballot, v2Key, v2, ComputeCommitHash(1, mustSecret(2)))
	require.NotNil(t, err)
	require.Equal(t, KindElectionCancelled, err.Kind)

	clock.Advance(1*time.Hour + time.Second)
	err = revealTestVote(t, ballot, v1Key, v1, 1, mustSecret(1))
	require.NotNil(t, err)
	require.Equal(t, KindElectionCancelled, err.Kind)

	clock.Advance(1*time.Hour + time.Second)
	err = ballot.Finalize(owner)
	require.NotNil(t, err)
	require.Equal(t, KindElectionCancelled, err.Kind)

	candidates := ballot.GetAllCandidates()
	require.Equal(t, uint64(0), candidates[0].VoteCount)
	require.Equal(t, uint64(1), ballot.GetTotalCommitters())
}

// Scenario F — receipt verification.
func Test_ScenarioF_ReceiptVerification(t *testing.T) {
	ballot, registry, _, ownerKey, owner := newTestBallot(t, 0)
	v1Key, v1 := newTestKey(t)
	_, v2 := newTestKey(t)
	require.Nil(t, registerTestVoter(t, registry, ownerKey, owner, v1, IdentityHash([]byte("V1")), 1))
	require.Nil(t, registerTestVoter(t, registry, ownerKey, owner, v2, IdentityHash([]byte("V2")), 1))

	require.Nil(t, commitTestVote(t, ballot, v1Key, v1, ComputeCommitHash(1, mustSecret(1))))
	receipt := ballot.GetVoterCommitStatus(v1).ReceiptHash

	require.True(t, ballot.VerifyReceipt(v1, receipt))

	corrupted := receipt
	corrupted[0] ^= 1
	require.False(t, ballot.VerifyReceipt(v1, corrupted))

	require.False(t, ballot.VerifyReceipt(v2, receipt))
	require.False(t, ballot.VerifyReceipt(v1, [32]byte{}))
}

func Test_Boundary_CommitVote_AtAndPastCommitDeadline(t *testing.T) {
	ballot, registry, clock, ownerKey, owner := newTestBallot(t, 0)
	v1Key, v1 := newTestKey(t)
	require.Nil(t, registerTestVoter(t, registry, ownerKey, owner, v1, IdentityHash([]byte("V1")), 1))

	clock.Set(epoch.Add(1 * time.Hour))
	require.Nil(t, commitTestVote(t, ballot, v1Key, v1, ComputeCommitHash(1, mustSecret(1))))

	v2Key, v2 := newTestKey(t)
	require.Nil(t, registerTestVoter(t, registry, ownerKey, owner, v2, IdentityHash([]byte("V2")), 1))
	clock.Set(epoch.Add(1*time.Hour + time.Second))
	err := commitTestVote(t, ballot, v2Key, v2, ComputeCommitHash(1, mustSecret(2)))
	require.NotNil(t, err)
	require.Equal(t, KindWrongPhase, err.Kind)
}

func Test_Boundary_RevealVote_AtAndPastRevealDeadline(t *testing.T) {
	ballot, registry, clock, ownerKey, owner := newTestBallot(t, 0)
	v1Key, v1 := newTestKey(t)
	require.Nil(t, registerTestVoter(t, registry, ownerKey, owner, v1, IdentityHash([]byte("V1")), 1))
	require.Nil(t, commitTestVote(t, ballot, v1Key, v1, ComputeCommitHash(1, mustSecret(1))))

	clock.Set(epoch.Add(2 * time.Hour))
	require.Nil(t, revealTestVote(t, ballot, v1Key, v1, 1, mustSecret(1)))

	v2Key, v2 := newTestKey(t)
	require.Nil(t, registerTestVoter(t, registry, ownerKey, owner, v2, IdentityHash([]byte("V2")), 1))
	require.Nil(t, func() *Error {
		clock.Set(epoch)
		return commitTestVote(t, ballot, v2Key, v2, ComputeCommitHash(1, mustSecret(2)))
	}())

	clock.Set(epoch.Add(2*time.Hour + time.Second))
	err := revealTestVote(t, ballot, v2Key, v2, 1, mustSecret(2))
	require.NotNil(t, err)
	require.Equal(t, KindWrongPhase, err.Kind)
}

func Test_Boundary_Finalize_AtAndPastRevealDeadline(t *testing.T) {
	ballot, _, clock, _, owner := newTestBallot(t, 0)

	clock.Set(epoch.Add(2 * time.Hour))
	err := ballot.Finalize(owner)
	require.NotNil(t, err)
	require.Equal(t, KindRevealNotEnded, err.Kind)

	clock.Set(epoch.Add(2*time.Hour + time.Second))
	require.Nil(t, ballot.Finalize(owner))
}

func Test_Finalize_Twice_FailsAlreadyFinalized(t *testing.T) {
	ballot, _, clock, _, owner := newTestBallot(t, 0)
	clock.Set(epoch.Add(2*time.Hour + time.Second))
	require.Nil(t, ballot.Finalize(owner))

	err := ballot.Finalize(owner)
	require.NotNil(t, err)
	require.Equal(t, KindAlreadyFinalized, err.Kind)
}

func Test_ExtendCommitDeadline_ReopensCommitFromReveal(t *testing.T) {
	ballot, registry, clock, ownerKey, owner := newTestBallot(t, 0)
	v1Key, v1 := newTestKey(t)
	require.Nil(t, registerTestVoter(t, registry, ownerKey, owner, v1, IdentityHash([]byte("V1")), 1))

	clock.Set(epoch.Add(1*time.Hour + time.Minute))
	require.Equal(t, PhaseReveal, ballot.CurrentPhase(clock.Now()))

	newCommitDeadline := epoch.Add(1*time.Hour + 30*time.Minute)
	require.Nil(t, ballot.ExtendCommitDeadline(owner, newCommitDeadline, sign(t, ownerKey, ExtendCommitDeadlinePayload(ballot.electionID, newCommitDeadline))))
	require.Equal(t, PhaseCommit, ballot.CurrentPhase(clock.Now()))

	require.Nil(t, commitTestVote(t, ballot, v1Key, v1, ComputeCommitHash(1, mustSecret(1))))
}

func Test_ExtendCommitDeadline_RejectsNonForwardMove(t *testing.T) {
	ballot, _, _, ownerKey, owner := newTestBallot(t, 0)
	err := ballot.ExtendCommitDeadline(owner, epoch, sign(t, ownerKey, ExtendCommitDeadlinePayload(ballot.electionID, epoch)))
	require.NotNil(t, err)
	require.Equal(t, KindCanOnlyExtend, err.Kind)
}

func Test_ExtendCommitDeadline_RejectsCrossingRevealDeadline(t *testing.T) {
	ballot, _, _, ownerKey, owner := newTestBallot(t, 0)
	newDeadline := epoch.Add(3 * time.Hour)
	err := ballot.ExtendCommitDeadline(owner, newDeadline, sign(t, ownerKey, ExtendCommitDeadlinePayload(ballot.electionID, newDeadline)))
	require.NotNil(t, err)
	require.Equal(t, KindDeadlineOrdering, err.Kind)
}

func Test_CancelElection_BlockedIfAlreadyCancelled(t *testing.T) {
	ballot, _, _, ownerKey, owner := newTestBallot(t, 0)
	require.Nil(t, ballot.CancelElection(owner, "first", sign(t, ownerKey, CancelElectionPayload(ballot.electionID, "first"))))
	err := ballot.CancelElection(owner, "second", sign(t, ownerKey, CancelElectionPayload(ballot.electionID, "second")))
	require.NotNil(t, err)
	require.Equal(t, KindElectionCancelled, err.Kind)
}

func Test_RevealVote_InvalidCandidateID(t *testing.T) {
	ballot, registry, clock, ownerKey, owner := newTestBallot(t, 0)
	v1Key, v1 := newTestKey(t)
	require.Nil(t, registerTestVoter(t, registry, ownerKey, owner, v1, IdentityHash([]byte("V1")), 1))
	require.Nil(t, commitTestVote(t, ballot, v1Key, v1, ComputeCommitHash(99, mustSecret(1))))

	clock.Advance(1*time.Hour + time.Second)
	err := revealTestVote(t, ballot, v1Key, v1, 99, mustSecret(1))
	require.NotNil(t, err)
	require.Equal(t, KindInvalidCandidate, err.Kind)
}

func Test_GetResults_FailsBeforeRevealDeadlineUnlessFinalized(t *testing.T) {
	ballot, _, _, _, _ := newTestBallot(t, 0)
	_, err := ballot.GetResults()
	require.NotNil(t, err)
	require.Equal(t, KindResultsNotReady, err.Kind)
}

func Test_EligibilityCheckedOnlyAtCommit_NotReveal(t *testing.T) {
	ballot, registry, clock, ownerKey, owner := newTestBallot(t, 0)
	v1Key, v1 := newTestKey(t)
	require.Nil(t, registerTestVoter(t, registry, ownerKey, owner, v1, IdentityHash([]byte("V1")), 1))
	require.Nil(t, commitTestVote(t, ballot, v1Key, v1, ComputeCommitHash(1, mustSecret(1))))

	require.Nil(t, deactivateTestVoter(t, registry, ownerKey, owner, v1, "deactivated mid-ballot"))
	require.False(t, registry.IsEligible(v1))

	clock.Advance(1*time.Hour + time.Second)
	require.Nil(t, revealTestVote(t, ballot, v1Key, v1, 1, mustSecret(1)))
}
