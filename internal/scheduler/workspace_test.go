package scheduler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steroids-run/steroids/internal/gitutil"
)

func TestClonePath_IsStableAndNestedUnderProjectHash(t *testing.T) {
	a := ClonePath("/workspaces", "/home/me/proj", "ws-1")
	b := ClonePath("/workspaces", "/home/me/proj", "ws-1")
	assert.Equal(t, a, b)

	other := ClonePath("/workspaces", "/home/me/other-proj", "ws-1")
	assert.NotEqual(t, a, other)
}

func TestWorkstreamBranch_PrefixesWithSteroids(t *testing.T) {
	assert.Equal(t, "steroids/ws-1", WorkstreamBranch("ws-1"))
}

func TestCreateWorkspaceClone_ClonesAndChecksOutBranch(t *testing.T) {
	dest := ClonePath("/workspaces", "/home/me/proj", "ws-1")
	runner := gitutil.NewScripted(
		gitutil.Step{Args: []string{"clone", "/home/me/proj", dest}, Result: gitutil.Result{}},
		gitutil.Step{Args: []string{"checkout", "-b", "steroids/ws-1"}, Result: gitutil.Result{}},
	)

	client, clonePath, err := CreateWorkspaceClone(context.Background(), runner, "/home/me/proj", "/workspaces", "ws-1")
	require.NoError(t, err)
	assert.Equal(t, dest, clonePath)
	assert.Equal(t, dest, client.Dir)
}

func TestCreateWorkspaceClone_PropagatesCloneFailure(t *testing.T) {
	runner := gitutil.NewScripted(
		gitutil.Step{Result: gitutil.Result{ExitCode: 1, Stderr: "fatal: repository not found"}},
	)
	_, _, err := CreateWorkspaceClone(context.Background(), runner, "/home/me/proj", "/workspaces", "ws-1")
	require.Error(t, err)
}

func TestRunHydrationCommand_NoopWhenEmpty(t *testing.T) {
	require.NoError(t, RunHydrationCommand(context.Background(), "/tmp", nil))
}

func TestRunHydrationCommand_RunsAndSurfacesFailure(t *testing.T) {
	err := RunHydrationCommand(context.Background(), t.TempDir(), []string{"sh", "-c", "exit 7"})
	require.Error(t, err)
}
