package merge

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/steroids-run/steroids/internal/gitutil"
)

// cleanup deletes remote workstream branches (best effort, always) and,
// when opts.Cleanup is set, removes every workstream clone and the
// integration workspace from disk.
func (e *Engine) cleanup(ctx context.Context, git *gitutil.Client, opts Options, integrationDir string) {
	for _, ws := range opts.Workstreams {
		if res, err := git.PushDelete(ctx, opts.remote(), ws.Branch); err != nil || !res.Ok() {
			e.Logger.Warn("failed to delete remote workstream branch",
				"workstream_id", ws.ID, "branch", ws.Branch, "err", err)
		}
	}
	if _, err := git.RemotePrune(ctx, opts.remote()); err != nil {
		e.Logger.Warn("failed to prune remote-tracking branches", "err", err)
	}

	if !opts.Cleanup {
		return
	}

	for _, ws := range opts.Workstreams {
		if ws.ClonePath == "" {
			continue
		}
		if err := e.removeWorkspaceDir(ws.ClonePath); err != nil {
			e.Logger.Warn("failed to remove workstream clone", "workstream_id", ws.ID, "path", ws.ClonePath, "err", err)
		}
	}
	if err := e.removeWorkspaceDir(integrationDir); err != nil {
		e.Logger.Warn("failed to remove integration workspace", "path", integrationDir, "err", err)
	}
}

// removeWorkspaceDir deletes path, refusing unless it is rooted under
// e.WorkspaceRoot. A bug upstream computing a clone path must never be
// able to turn a cleanup pass into rm -rf of something unrelated.
func (e *Engine) removeWorkspaceDir(path string) error {
	root, err := filepath.Abs(e.WorkspaceRoot)
	if err != nil {
		return fmt.Errorf("resolve workspace root: %w", err)
	}
	target, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve cleanup target: %w", err)
	}
	rel, err := filepath.Rel(root, target)
	if err != nil || rel == "." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || rel == ".." {
		return fmt.Errorf("refusing to remove %s: not under workspace root %s", target, root)
	}
	return os.RemoveAll(target)
}
