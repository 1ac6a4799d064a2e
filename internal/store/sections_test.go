package store

import (
	"context"
	"testing"

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

func TestAddSectionDependency_RejectsDirectCycle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.CreateSection(ctx, Section{ID: "a", Name: "A", Position: 0}))
	require.NoError(t, s.CreateSection(ctx, Section{ID: "b", Name: "B", Position: 1}))

	require.NoError(t, s.AddSectionDependency(ctx, "a", "b"))
	err := s.AddSectionDependency(ctx, "b", "a")
	assert.Error(t, err)
}

func TestAddSectionDependency_RejectsTransitiveCycle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.CreateSection(ctx, Section{ID: id, Name: id, Position: 0}))
	}
	require.NoError(t, s.AddSectionDependency(ctx, "a", "b"))
	require.NoError(t, s.AddSectionDependency(ctx, "b", "c"))

	err := s.AddSectionDependency(ctx, "c", "a")
	assert.Error(t, err, "c -> a would close a -> b -> c -> a cycle")
}

func TestAddSectionDependency_RejectsSelfDependency(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.CreateSection(ctx, Section{ID: "a", Name: "A", Position: 0}))

	err := s.AddSectionDependency(ctx, "a", "a")
	assert.Error(t, err)
}

func TestAddSectionDependency_AllowsDiamond(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	for _, id := range []string{"a", "b", "c", "d"} {
		require.NoError(t, s.CreateSection(ctx, Section{ID: id, Name: id, Position: 0}))
	}
	require.NoError(t, s.AddSectionDependency(ctx, "a", "b"))
	require.NoError(t, s.AddSectionDependency(ctx, "a", "c"))
	require.NoError(t, s.AddSectionDependency(ctx, "b", "d"))
	require.NoError(t, s.AddSectionDependency(ctx, "c", "d"))
}

func TestSectionDependenciesMet(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.CreateSection(ctx, Section{ID: "a", Name: "A", Position: 0}))
	require.NoError(t, s.CreateSection(ctx, Section{ID: "b", Name: "B", Position: 1}))
	require.NoError(t, s.AddSectionDependency(ctx, "b", "a"))

	require.NoError(t, s.CreateTask(ctx, Task{ID: "t1", Title: "t1", SectionID: "a"}, "tester"))

	met, err := s.SectionDependenciesMet(ctx, "b")
	require.NoError(t, err)
	assert.False(t, met, "section a still has an incomplete task")

	require.NoError(t, s.TransitionTask(ctx, "t1", StatusCompleted, TransitionOptions{Actor: "tester"}))

	met, err = s.SectionDependenciesMet(ctx, "b")
	require.NoError(t, err)
	assert.True(t, met)
}

func TestResolveSectionPrefix_AmbiguousFailsWithDiagnostic(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.CreateSection(ctx, Section{ID: "abc123", Name: "one", Position: 0}))
	require.NoError(t, s.CreateSection(ctx, Section{ID: "abc456", Name: "two", Position: 1}))

	_, err := s.ResolveSectionPrefix(ctx, "abc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "abc123")
	assert.Contains(t, err.Error(), "abc456")
}

func TestResolveSectionPrefix_Unambiguous(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.CreateSection(ctx, Section{ID: "abc123", Name: "one", Position: 0}))

	sec, err := s.ResolveSectionPrefix(ctx, "abc1")
	require.NoError(t, err)
	assert.Equal(t, "abc123", sec.ID)
}
