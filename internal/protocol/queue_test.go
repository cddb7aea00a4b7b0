package protocol

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func Test_BallotQueue_SerializesCommits(t *testing.T) {
	ballot, registry, _, ownerKey, owner := newTestBallot(t, 0)
	v1Key, v1 := newTestKey(t)
	v2Key, v2 := newTestKey(t)
	require.Nil(t, registerTestVoter(t, registry, ownerKey, owner, v1, IdentityHash([]byte("V1")), 1))
	require.Nil(t, registerTestVoter(t, registry, ownerKey, owner, v2, IdentityHash([]byte("V2")), 1))

	q := NewBallotQueue(ballot, 8)
	defer q.Stop()

	hash1, hash2 := ComputeCommitHash(1, mustSecret(1)), ComputeCommitHash(2, mustSecret(2))
	r1 := q.SubmitCommit(v1, hash1, sign(t, v1Key, CommitVotePayload(hash1)))
	r2 := q.SubmitCommit(v2, hash2, sign(t, v2Key, CommitVotePayload(hash2)))

	res1 := <-r1
	res2 := <-r2
	require.Nil(t, res1.Err)
	require.Nil(t, res2.Err)
	require.Equal(t, uint64(2), ballot.GetTotalCommitters())

	snap := q.Metrics().Snapshot()
	require.Equal(t, 2, snap.Commit.Count)
}

func Test_BallotQueue_SubmitRevealRoutesThroughBallot(t *testing.T) {
	ballot, registry, clock, ownerKey, owner := newTestBallot(t, 0)
	v1Key, v1 := newTestKey(t)
	require.Nil(t, registerTestVoter(t, registry, ownerKey, owner, v1, IdentityHash([]byte("V1")), 1))
	require.Nil(t, commitTestVote(t, ballot, v1Key, v1, ComputeCommitHash(1, mustSecret(1))))
	clock.Advance(1*time.Hour + time.Second)

	q := NewBallotQueue(ballot, 4)
	defer q.Stop()

	res := <-q.SubmitReveal(v1, 1, mustSecret(1), sign(t, v1Key, RevealVotePayload(1, mustSecret(1))))
	require.Nil(t, res.Err)

	candidates := ballot.GetAllCandidates()
	require.Equal(t, uint64(1), candidates[0].VoteCount)
}

func Test_BallotQueue_SubmitFinalizeRoutesThroughBallotAndRecordsMetrics(t *testing.T) {
	ballot, _, clock, _, owner := newTestBallot(t, 0)
	clock.Set(epoch.Add(2*time.Hour + time.Second))

	q := NewBallotQueue(ballot, 4)
	defer q.Stop()

	res := <-q.SubmitFinalize(owner)
	require.Nil(t, res.Err)
	require.True(t, ballot.IsFinalized())

	snap := q.Metrics().Snapshot()
	require.Equal(t, 1, snap.Finalize.Count)
}
