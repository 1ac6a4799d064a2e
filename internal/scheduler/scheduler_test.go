package scheduler

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steroids-run/steroids/internal/control"
	"github.com/steroids-run/steroids/internal/gitutil"
	"github.com/steroids-run/steroids/internal/store"
)

// skipOnSpawnError skips a test when fork/exec is blocked by the
// sandboxed/containerized environment it runs in, matching the pattern
// the process spawner's own tests use.
func skipOnSpawnError(t *testing.T, err error) {
	t.Helper()
	if err != nil && strings.Contains(err.Error(), "operation not permitted") {
		t.Skipf("spawn not permitted in this environment: %v", err)
	}
}

func newControlStore(t *testing.T) *control.Store {
	t.Helper()
	s, err := control.OpenInMemory(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestScheduler_Run_RefusesSharedMutableDeps(t *testing.T) {
	sch := NewScheduler(newControlStore(t), gitutil.NewScripted())
	st := newSectionStore(t)

	_, err := sch.Run(context.Background(), st, Config{AllowSharedMutableDeps: true})
	assert.ErrorIs(t, err, ErrSharedMutableDeps)
}

func TestScheduler_Run_LaunchesClippedPlansAndClaimsLease(t *testing.T) {
	ctx := context.Background()
	st := newSectionStore(t)
	mustCreateSection(t, st, "a", 0)
	mustCreateSection(t, st, "b", 1)
	mustCreateTask(t, st, "t1", "a", store.StatusPending)
	mustCreateTask(t, st, "t2", "b", store.StatusPending)

	ctrl := newControlStore(t)
	require.NoError(t, ctrl.CreateSession(ctx, control.ParallelSession{ID: "sess-1", ProjectPath: "/home/me/proj", RepoID: "repo-1", Status: control.SessionRunning}))

	runner := gitutil.NewScripted(
		gitutil.Step{Result: gitutil.Result{}}, // clone for workstream 1
		gitutil.Step{Result: gitutil.Result{}}, // checkout -b for workstream 1
		gitutil.Step{Result: gitutil.Result{}}, // clone for workstream 2
		gitutil.Step{Result: gitutil.Result{}}, // checkout -b for workstream 2
	)

	sch := NewScheduler(ctrl, runner)

	cfg := Config{
		MaxClones:     1,
		ProjectPath:   "/home/me/proj",
		WorkspaceRoot: t.TempDir(),
		RunnerID:      "runner-1",
		SessionID:     "sess-1",
		Binary:        "true",
		DaemonLogDir:  t.TempDir(),
	}

	if os.Getenv("SKIP_SPAWN_TESTS") != "" {
		t.Skip("Skipping spawn tests (SKIP_SPAWN_TESTS is set)")
	}
	launched, err := sch.Run(ctx, st, cfg)
	skipOnSpawnError(t, err)
	require.NoError(t, err)
	require.Len(t, launched, 1, "max clones of 1 should clip to a single workstream")

	w := launched[0].Workstream
	assert.Equal(t, "runner-1", w.RunnerID)
	assert.Equal(t, 1, w.ClaimGeneration)
	assert.Equal(t, control.WorkstreamRunning, w.Status)
	assert.NotZero(t, launched[0].PID)
}
