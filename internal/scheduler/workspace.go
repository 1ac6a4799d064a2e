package scheduler

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os/exec"
	"path/filepath"

	"github.com/steroids-run/steroids/internal/gitutil"
)

// hashProjectPath derives the stable per-project directory name workstream
// clones nest under, so repeated sessions against the same project reuse
// one parent directory instead of scattering across the workspace root.
func hashProjectPath(projectPath string) string {
	sum := sha256.Sum256([]byte(projectPath))
	return hex.EncodeToString(sum[:])[:16]
}

// WorkstreamBranch is the branch name a workstream's clone is checked out
// onto.
func WorkstreamBranch(workstreamID string) string {
	return "steroids/" + workstreamID
}

// ClonePath computes the workspace directory a workstream's clone lives
// in: <workspaceRoot>/<hash(projectPath)>/<workstreamID>/.
func ClonePath(workspaceRoot, projectPath, workstreamID string) string {
	return filepath.Join(workspaceRoot, hashProjectPath(projectPath), workstreamID)
}

// gitRunner is the subset of gitutil.Runner the workspace step needs,
// already satisfied by gitutil.NewExecRunner and gitutil.NewScripted.
type gitRunner = gitutil.Runner

// CreateWorkspaceClone clones projectPath into its computed workstream
// directory and checks out a fresh branch for the workstream, returning a
// *gitutil.Client rooted at the new clone.
func CreateWorkspaceClone(ctx context.Context, runner gitRunner, projectPath, workspaceRoot, workstreamID string) (*gitutil.Client, string, error) {
	dest := ClonePath(workspaceRoot, projectPath, workstreamID)

	// Clone runs with the destination's *parent* as the working directory,
	// since the destination doesn't exist yet.
	cloner := gitutil.New(runner, filepath.Dir(dest))
	res, err := cloner.Clone(ctx, projectPath, dest)
	if err != nil {
		return nil, "", fmt.Errorf("create workspace clone: %w", err)
	}
	if !res.Ok() {
		return nil, "", fmt.Errorf("create workspace clone: git clone failed: %s", res.Combined())
	}

	clone := gitutil.New(runner, dest)
	branch := WorkstreamBranch(workstreamID)
	if res, err := clone.Checkout(ctx, "-b", branch); err != nil {
		return nil, "", fmt.Errorf("create workspace clone: checkout -b %s: %w", branch, err)
	} else if !res.Ok() {
		return nil, "", fmt.Errorf("create workspace clone: checkout -b %s failed: %s", branch, res.Combined())
	}

	return clone, dest, nil
}

// RunHydrationCommand runs an optional post-checkout setup command (e.g. a
// dependency install) inside the workspace clone. A nil/empty command is a
// no-op.
func RunHydrationCommand(ctx context.Context, clonePath string, command []string) error {
	if len(command) == 0 {
		return nil
	}
	cmd := exec.CommandContext(ctx, command[0], command[1:]...)
	cmd.Dir = clonePath
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("hydration command %q: %w: %s", command, err, out.String())
	}
	return nil
}
