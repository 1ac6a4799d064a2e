package control

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenInMemory(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCreateSession_RejectsSecondNonTerminalSession(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.CreateSession(ctx, ParallelSession{ID: "s1", ProjectPath: "/proj", RepoID: "repo-a"}))

	err := s.CreateSession(ctx, ParallelSession{ID: "s2", ProjectPath: "/proj", RepoID: "repo-a"})
	assert.Error(t, err)
}

func TestCreateSession_AllowsNewSessionAfterTerminal(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.CreateSession(ctx, ParallelSession{ID: "s1", ProjectPath: "/proj", RepoID: "repo-a"}))
	require.NoError(t, s.TransitionSession(ctx, "s1", SessionCompleted))

	err := s.CreateSession(ctx, ParallelSession{ID: "s2", ProjectPath: "/proj", RepoID: "repo-a"})
	assert.NoError(t, err)
}

func TestCreateWorkstream_ClaimsInitialLease(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.CreateSession(ctx, ParallelSession{ID: "s1", ProjectPath: "/proj", RepoID: "repo-a"}))
	require.NoError(t, s.CreateWorkstream(ctx, Workstream{ID: "w1", SessionID: "s1", Branch: "ws/1", ClonePath: "/tmp/w1"}, "runner-a"))

	w, err := s.GetWorkstream(ctx, "w1")
	require.NoError(t, err)
	assert.Equal(t, 1, w.ClaimGeneration)
	assert.Equal(t, "runner-a", w.RunnerID)
	assert.True(t, w.LeaseExpiresAt.After(time.Now()))
}

// TestLeaseFence_NoOpsOnStaleTriple exercises the property that any
// workstream mutation performed with a stale (status, claim_generation)
// triple is a no-op, observable as zero rows changed.
func TestLeaseFence_NoOpsOnStaleTriple(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.CreateSession(ctx, ParallelSession{ID: "s1", ProjectPath: "/proj", RepoID: "repo-a"}))
	require.NoError(t, s.CreateWorkstream(ctx, Workstream{ID: "w1", SessionID: "s1", Branch: "ws/1", ClonePath: "/tmp/w1"}, "runner-a"))

	staleFence := LeaseFence{WorkstreamID: "w1", Status: WorkstreamRunning, ClaimGeneration: 1}

	// Another runner claims the (expired) lease, bumping the generation to 2.
	require.NoError(t, s.HeartbeatLease(ctx, staleFence, "runner-a", -1*time.Second))
	err := s.ClaimExpiredLease(ctx, staleFence, "runner-b", 120*time.Second)
	require.NoError(t, err)

	w, err := s.GetWorkstream(ctx, "w1")
	require.NoError(t, err)
	assert.Equal(t, 2, w.ClaimGeneration)
	assert.Equal(t, "runner-b", w.RunnerID)

	// runner-a retries a mutation against the now-stale generation 1 triple.
	err = s.TransitionWorkstream(ctx, staleFence, WorkstreamCompleted)
	assert.ErrorIs(t, err, ErrLeaseFenceLost)

	// The row must be untouched by the stale mutation.
	w, err = s.GetWorkstream(ctx, "w1")
	require.NoError(t, err)
	assert.Equal(t, WorkstreamRunning, w.Status)
	assert.Equal(t, 2, w.ClaimGeneration)

	// The current holder's fence still works.
	currentFence := LeaseFence{WorkstreamID: "w1", Status: WorkstreamRunning, ClaimGeneration: 2}
	require.NoError(t, s.TransitionWorkstream(ctx, currentFence, WorkstreamCompleted))
}

func TestAcquireMergeLock_RefusesWhileHeldByOtherRunner(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.CreateSession(ctx, ParallelSession{ID: "s1", ProjectPath: "/proj", RepoID: "repo-a"}))

	epoch, err := s.AcquireMergeLock(ctx, "s1", "runner-a")
	require.NoError(t, err)
	assert.Equal(t, 1, epoch)

	_, err = s.AcquireMergeLock(ctx, "s1", "runner-b")
	assert.Error(t, err)
}

func TestAcquireMergeLock_RefreshesOwnLock(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.CreateSession(ctx, ParallelSession{ID: "s1", ProjectPath: "/proj", RepoID: "repo-a"}))

	epoch1, err := s.AcquireMergeLock(ctx, "s1", "runner-a")
	require.NoError(t, err)
	epoch2, err := s.AcquireMergeLock(ctx, "s1", "runner-a")
	require.NoError(t, err)
	assert.Equal(t, epoch1, epoch2, "re-acquiring your own lock refreshes, it does not bump the epoch")
}

func TestAcquireMergeLock_BumpsEpochAfterExpiry(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.CreateSession(ctx, ParallelSession{ID: "s1", ProjectPath: "/proj", RepoID: "repo-a"}))

	_, err := s.AcquireMergeLock(ctx, "s1", "runner-a")
	require.NoError(t, err)

	_, err = s.db.ExecContext(ctx, `UPDATE merge_locks SET expires_at = ? WHERE session_id = ?`,
		time.Now().Add(-time.Minute).UTC().Format(time.RFC3339Nano), "s1")
	require.NoError(t, err)

	epoch, err := s.AcquireMergeLock(ctx, "s1", "runner-b")
	require.NoError(t, err)
	assert.Equal(t, 2, epoch)
}

func TestHasActiveRunner(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.RegisterRunner(ctx, Runner{ID: "r1", PID: 123, ProjectPath: "/proj"}))

	active, err := s.HasActiveRunner(ctx, "/proj")
	require.NoError(t, err)
	assert.True(t, active)

	require.NoError(t, s.StopRunner(ctx, "r1"))
	active, err = s.HasActiveRunner(ctx, "/proj")
	require.NoError(t, err)
	assert.False(t, active)
}

func TestMergeProgress_UpsertAndResume(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.UpsertMergeProgress(ctx, MergeProgress{
		SessionID: "s1", WorkstreamID: "w1", Position: 0, SourceCommit: "abc", Status: MergeCommitApplied, AppliedCommit: "def",
	}))
	require.NoError(t, s.UpsertMergeProgress(ctx, MergeProgress{
		SessionID: "s1", WorkstreamID: "w1", Position: 1, SourceCommit: "ghi", Status: MergeCommitConflict, ConflictTask: "t1",
	}))

	progress, err := s.ListMergeProgress(ctx, "s1", "w1")
	require.NoError(t, err)
	require.Len(t, progress, 2)
	assert.Equal(t, MergeCommitApplied, progress[0].Status)
	assert.Equal(t, MergeCommitConflict, progress[1].Status)

	// Resuming re-upserts the same position idempotently.
	require.NoError(t, s.UpsertMergeProgress(ctx, MergeProgress{
		SessionID: "s1", WorkstreamID: "w1", Position: 1, SourceCommit: "ghi", Status: MergeCommitApplied, AppliedCommit: "jkl",
	}))
	p, err := s.GetMergeProgress(ctx, "s1", "w1", 1)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, MergeCommitApplied, p.Status)
	assert.Equal(t, "jkl", p.AppliedCommit)
}
