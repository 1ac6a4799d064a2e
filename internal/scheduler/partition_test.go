package scheduler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	steroidserrors "github.com/steroids-run/steroids/internal/errors"
	"github.com/steroids-run/steroids/internal/store"
)

func newSectionStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.OpenInMemory(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func mustCreateSection(t *testing.T, st *store.Store, id string, pos int) {
	t.Helper()
	require.NoError(t, st.CreateSection(context.Background(), store.Section{ID: id, Name: id, Position: pos}))
}

func mustCreateTask(t *testing.T, st *store.Store, id, sectionID string, status store.TaskStatus) {
	t.Helper()
	require.NoError(t, st.CreateTask(context.Background(), store.Task{
		ID: id, Title: id, SectionID: sectionID, Status: status,
	}, "system"))
}

func TestPlanWorkstreams_PerSection_SkipsSectionsWithUnmetDeps(t *testing.T) {
	ctx := context.Background()
	st := newSectionStore(t)
	mustCreateSection(t, st, "a", 0)
	mustCreateSection(t, st, "b", 1)
	mustCreateTask(t, st, "t1", "a", store.StatusPending)
	mustCreateTask(t, st, "t2", "b", store.StatusPending)
	require.NoError(t, st.AddSectionDependency(ctx, "b", "a"))

	plans, err := PlanWorkstreams(ctx, st, PerSection)
	require.NoError(t, err)
	require.Len(t, plans, 1)
	assert.Equal(t, []string{"a"}, plans[0].SectionIDs)
}

func TestPlanWorkstreams_PerSection_NoPendingWorkReturnsEmpty(t *testing.T) {
	ctx := context.Background()
	st := newSectionStore(t)
	mustCreateSection(t, st, "a", 0)
	mustCreateTask(t, st, "t1", "a", store.StatusCompleted)

	plans, err := PlanWorkstreams(ctx, st, PerSection)
	require.NoError(t, err)
	assert.Empty(t, plans)
}

func TestPlanWorkstreams_Partitioned_GroupsConnectedSections(t *testing.T) {
	ctx := context.Background()
	st := newSectionStore(t)
	mustCreateSection(t, st, "a", 0)
	mustCreateSection(t, st, "b", 1)
	mustCreateSection(t, st, "c", 2)
	mustCreateTask(t, st, "t1", "a", store.StatusPending)
	mustCreateTask(t, st, "t2", "b", store.StatusPending)
	mustCreateTask(t, st, "t3", "c", store.StatusPending)
	require.NoError(t, st.AddSectionDependency(ctx, "b", "a"))

	plans, err := PlanWorkstreams(ctx, st, Partitioned)
	require.NoError(t, err)
	require.Len(t, plans, 2)
	assert.ElementsMatch(t, []string{"a", "b"}, plans[0].SectionIDs)
	assert.Equal(t, []string{"c"}, plans[1].SectionIDs)
}

func TestPlanWorkstreams_Partitioned_CycleRaisesFault(t *testing.T) {
	ctx := context.Background()
	st := newSectionStore(t)
	mustCreateSection(t, st, "a", 0)
	mustCreateSection(t, st, "b", 1)
	mustCreateTask(t, st, "t1", "a", store.StatusPending)
	mustCreateTask(t, st, "t2", "b", store.StatusPending)
	// AddSectionDependency itself refuses to create a cycle, so build one
	// directly to exercise the scheduler's own cycle detection.
	directCycleStore := &cyclicSectionStore{sectionStore: st, edges: map[string][]string{
		"a": {"b"},
		"b": {"a"},
	}}

	_, err := PlanWorkstreams(ctx, directCycleStore, Partitioned)
	require.Error(t, err)
	var fault *steroidserrors.FaultError
	require.ErrorAs(t, err, &fault)
	assert.Equal(t, steroidserrors.FaultCyclicDependency, fault.Code)
}

// cyclicSectionStore overrides SectionDependencyEdges to inject a cycle
// that the store layer itself would refuse to persist, so the scheduler's
// own partitioning-time cycle check can be exercised directly.
type cyclicSectionStore struct {
	sectionStore
	edges map[string][]string
}

func (c *cyclicSectionStore) SectionDependencyEdges(context.Context) (map[string][]string, error) {
	return c.edges, nil
}
