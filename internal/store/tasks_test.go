package store

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateTask_WritesInitialAuditEntry(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.CreateTask(ctx, Task{ID: "t1", Title: "do thing"}, "tester"))

	entries, err := s.ListAuditEntries(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, TaskStatus(""), entries[0].PriorStatus)
	assert.Equal(t, StatusPending, entries[0].NewStatus)
}

func TestTransitionTask_RejectionCountOnlyIncreasesOnReject(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.CreateTask(ctx, Task{ID: "t1", Title: "do thing"}, "tester"))

	require.NoError(t, s.TransitionTask(ctx, "t1", StatusInProgress, TransitionOptions{Actor: "coder"}))
	require.NoError(t, s.TransitionTask(ctx, "t1", StatusReview, TransitionOptions{Actor: "coder"}))
	require.NoError(t, s.TransitionTask(ctx, "t1", StatusInProgress, TransitionOptions{
		Actor: "reviewer", IncrementRejection: true, Notes: "needs work",
	}))

	task, err := s.GetTask(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, 1, task.RejectionCount)

	require.NoError(t, s.TransitionTask(ctx, "t1", StatusReview, TransitionOptions{Actor: "coder"}))
	require.NoError(t, s.TransitionTask(ctx, "t1", StatusCompleted, TransitionOptions{Actor: "reviewer"}))

	task, err = s.GetTask(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, 1, task.RejectionCount, "approval must not touch the rejection counter")

	ok, err := s.RejectionCountMatchesAudit(ctx, "t1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestTransitionTask_RejectionCountNeverDecreases(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.CreateTask(ctx, Task{ID: "t1", Title: "do thing"}, "tester"))
	require.NoError(t, s.TransitionTask(ctx, "t1", StatusInProgress, TransitionOptions{Actor: "coder"}))

	var last int
	for i := 0; i < 5; i++ {
		require.NoError(t, s.TransitionTask(ctx, "t1", StatusReview, TransitionOptions{Actor: "coder"}))
		require.NoError(t, s.TransitionTask(ctx, "t1", StatusInProgress, TransitionOptions{
			Actor: "reviewer", IncrementRejection: true,
		}))
		task, err := s.GetTask(ctx, "t1")
		require.NoError(t, err)
		assert.GreaterOrEqual(t, task.RejectionCount, last)
		last = task.RejectionCount
	}
	assert.Equal(t, 5, last)
}

// TestRejectionEscalationTo15_EndsInExactlyOneSystemDispute exercises the
// full rejection ladder up to the termination bound: fifteen consecutive
// reviewer rejections must drive a task to disputed status with exactly
// one open system dispute recorded, never more than one.
func TestRejectionEscalationTo15_EndsInExactlyOneSystemDispute(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.CreateTask(ctx, Task{ID: "t1", Title: "do thing"}, "tester"))
	require.NoError(t, s.TransitionTask(ctx, "t1", StatusInProgress, TransitionOptions{Actor: "coder"}))

	const terminationBound = 15
	for i := 1; i <= terminationBound; i++ {
		require.NoError(t, s.TransitionTask(ctx, "t1", StatusReview, TransitionOptions{Actor: "coder"}))
		require.NoError(t, s.TransitionTask(ctx, "t1", StatusInProgress, TransitionOptions{
			Actor: "reviewer", IncrementRejection: true,
		}))
	}

	task, err := s.GetTask(ctx, "t1")
	require.NoError(t, err)
	require.Equal(t, terminationBound, task.RejectionCount)

	require.NoError(t, s.CreateDispute(ctx, Dispute{
		ID: uuid.NewString(), TaskID: "t1", Type: DisputeSystem, Creator: "orchestrator",
		ReasonCode: "rejection_limit_exceeded",
	}))
	require.NoError(t, s.TransitionTask(ctx, "t1", StatusDisputed, TransitionOptions{Actor: "orchestrator"}))

	// A second system dispute while the first is still open must be rejected.
	err = s.CreateDispute(ctx, Dispute{
		ID: uuid.NewString(), TaskID: "t1", Type: DisputeSystem, Creator: "orchestrator",
	})
	assert.Error(t, err)

	open, err := s.CountOpenDisputes(ctx, "t1", DisputeSystem)
	require.NoError(t, err)
	assert.Equal(t, 1, open)

	task, err = s.GetTask(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, StatusDisputed, task.Status)
}

func TestDeleteTask_CascadesAuditAndDisputes(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.CreateTask(ctx, Task{ID: "t1", Title: "do thing"}, "tester"))
	require.NoError(t, s.CreateDispute(ctx, Dispute{ID: uuid.NewString(), TaskID: "t1", Type: DisputeMinor, Creator: "coder"}))
	require.NoError(t, s.CreateInvocation(ctx, TaskInvocation{ID: uuid.NewString(), TaskID: "t1", Role: "coder", Status: InvocationCompleted}))

	require.NoError(t, s.DeleteTask(ctx, "t1"))

	_, err := s.GetTask(ctx, "t1")
	assert.Error(t, err)

	entries, err := s.ListAuditEntries(ctx, "t1")
	require.NoError(t, err)
	assert.Empty(t, entries)

	disputes, err := s.ListDisputes(ctx, "t1", "")
	require.NoError(t, err)
	assert.Empty(t, disputes)
}

func TestDeleteTask_NotFound(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	err := s.DeleteTask(ctx, "missing")
	assert.Error(t, err)
}
