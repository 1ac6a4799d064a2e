package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextTask_ReviewBeatsInProgressBeatsPending(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.CreateTask(ctx, Task{ID: "pending1", Title: "p"}, "tester"))
	require.NoError(t, s.CreateTask(ctx, Task{ID: "inprog1", Title: "i"}, "tester"))
	require.NoError(t, s.TransitionTask(ctx, "inprog1", StatusInProgress, TransitionOptions{Actor: "coder"}))
	require.NoError(t, s.CreateTask(ctx, Task{ID: "review1", Title: "r"}, "tester"))
	require.NoError(t, s.TransitionTask(ctx, "review1", StatusInProgress, TransitionOptions{Actor: "coder"}))
	require.NoError(t, s.TransitionTask(ctx, "review1", StatusReview, TransitionOptions{Actor: "coder"}))

	next, err := s.NextTask(ctx, "")
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, "review1", next.ID)
}

func TestNextTask_OrdersBySectionPositionThenCreation(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.CreateSection(ctx, Section{ID: "sec-late", Name: "late", Position: 2}))
	require.NoError(t, s.CreateSection(ctx, Section{ID: "sec-early", Name: "early", Position: 1}))

	require.NoError(t, s.CreateTask(ctx, Task{ID: "t-late", Title: "t", SectionID: "sec-late"}, "tester"))
	require.NoError(t, s.CreateTask(ctx, Task{ID: "t-early", Title: "t", SectionID: "sec-early"}, "tester"))

	next, err := s.NextTask(ctx, "")
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, "t-early", next.ID, "earlier section position must be selected first")
}

func TestNextTask_UnsectionedSortsLast(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.CreateSection(ctx, Section{ID: "sec", Name: "sec", Position: 5}))
	require.NoError(t, s.CreateTask(ctx, Task{ID: "unsectioned", Title: "t"}, "tester"))
	require.NoError(t, s.CreateTask(ctx, Task{ID: "sectioned", Title: "t", SectionID: "sec"}, "tester"))

	next, err := s.NextTask(ctx, "")
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, "sectioned", next.ID)
}

func TestNextTask_SkipsIneligibleSection(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.CreateSection(ctx, Section{ID: "blocked", Name: "blocked", Position: 0}))
	require.NoError(t, s.CreateSection(ctx, Section{ID: "blocker", Name: "blocker", Position: 1}))
	require.NoError(t, s.AddSectionDependency(ctx, "blocked", "blocker"))

	require.NoError(t, s.CreateTask(ctx, Task{ID: "blocker-task", Title: "t", SectionID: "blocker"}, "tester"))
	require.NoError(t, s.CreateTask(ctx, Task{ID: "blocked-task", Title: "t", SectionID: "blocked"}, "tester"))

	next, err := s.NextTask(ctx, "")
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, "blocker-task", next.ID, "blocked section's task must not be eligible yet")

	require.NoError(t, s.TransitionTask(ctx, "blocker-task", StatusCompleted, TransitionOptions{Actor: "reviewer"}))

	next, err = s.NextTask(ctx, "")
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, "blocked-task", next.ID)
}

func TestNextTask_IdleWhenNothingEligible(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	next, err := s.NextTask(ctx, "")
	require.NoError(t, err)
	assert.Nil(t, next)
}

func TestNextTask_RespectsSectionFilter(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.CreateSection(ctx, Section{ID: "sec-a", Name: "a", Position: 0}))
	require.NoError(t, s.CreateSection(ctx, Section{ID: "sec-b", Name: "b", Position: 1}))
	require.NoError(t, s.CreateTask(ctx, Task{ID: "ta", Title: "t", SectionID: "sec-a"}, "tester"))
	require.NoError(t, s.CreateTask(ctx, Task{ID: "tb", Title: "t", SectionID: "sec-b"}, "tester"))

	next, err := s.NextTask(ctx, "sec-b")
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, "tb", next.ID)
}
