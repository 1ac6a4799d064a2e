package merge

import (
	"context"
	"fmt"

	"github.com/steroids-run/steroids/internal/control"
	"github.com/steroids-run/steroids/internal/gitutil"
)

// cherryPickLoop walks every sealed workstream's commit list in order,
// applying each commit to git (the integration workspace) and consulting/
// updating the merge progress table as it goes. It returns the count of
// commits applied this call and, if a workstream's conflict attempts were
// exhausted, the session status the caller should transition to
// (control.SessionBlockedConflict) instead of continuing.
func (e *Engine) cherryPickLoop(ctx context.Context, git *gitutil.Client, opts Options, epoch int, sealed []sealedWorkstream) (int, string, error) {
	applied := 0
	for _, sw := range sealed {
		for i, sha := range sw.CommitSHAs {
			position := i + 1
			ok, blocked, err := e.applyOneCommit(ctx, git, opts, epoch, sw.Workstream, position, sha)
			if err != nil {
				return applied, "", err
			}
			if blocked != "" {
				return applied, blocked, nil
			}
			if ok {
				applied++
			}

			if err := e.Control.HeartbeatMergeLock(ctx, opts.SessionID, opts.RunnerID, epoch); err != nil {
				return applied, "", fmt.Errorf("heartbeat merge lock: %w", err)
			}
		}
	}
	return applied, "", nil
}

// applyOneCommit resolves the prior progress (if any) for one
// (workstream, position) pair and either honors it, retries it, or
// attempts the cherry-pick fresh.
func (e *Engine) applyOneCommit(ctx context.Context, git *gitutil.Client, opts Options, epoch int, ws control.Workstream, position int, sha string) (applied bool, blocked string, err error) {
	prior, err := e.Control.GetMergeProgress(ctx, opts.SessionID, ws.ID, position)
	if err != nil {
		return false, "", fmt.Errorf("get merge progress: %w", err)
	}

	if prior != nil {
		switch prior.Status {
		case control.MergeCommitSkipped:
			return false, "", nil
		case control.MergeCommitApplied:
			integrated, err := e.isCommitIntegrated(ctx, git, prior.AppliedCommit)
			if err != nil {
				return false, "", err
			}
			if integrated {
				return false, "", nil // already done
			}
			// rollback detected: fall through and retry fresh
		case control.MergeCommitConflict:
			status, err := git.StatusPorcelain(ctx)
			if err != nil {
				return false, "", fmt.Errorf("status porcelain: %w", err)
			}
			if gitutil.CherryPickInProgress(status) {
				return e.resumeConflict(ctx, git, opts, ws, position, sha)
			}
			// conflict left no in-progress pick (process died before
			// resolution was staged): clear and retry fresh.
		}
	}

	res, err := git.CherryPick(ctx, sha)
	if err != nil {
		return false, "", fmt.Errorf("cherry-pick %s: %w", sha, err)
	}
	if res.Ok() {
		head, err := git.RevParse(ctx, "HEAD")
		if err != nil {
			return false, "", fmt.Errorf("rev-parse HEAD after cherry-pick: %w", err)
		}
		newSHA := firstLine(head.Stdout)
		if err := e.Control.UpsertMergeProgress(ctx, control.MergeProgress{
			SessionID: opts.SessionID, WorkstreamID: ws.ID, Position: position,
			SourceCommit: sha, Status: control.MergeCommitApplied, AppliedCommit: newSHA,
		}); err != nil {
			return false, "", fmt.Errorf("record applied commit: %w", err)
		}
		e.recordCherryPick(ctx, false)
		return true, "", nil
	}

	if !gitutil.HasConflictMarkers(res) {
		return false, "", fmt.Errorf("cherry-pick %s failed without conflict markers: %s", sha, res.Combined())
	}

	if err := e.Control.UpsertMergeProgress(ctx, control.MergeProgress{
		SessionID: opts.SessionID, WorkstreamID: ws.ID, Position: position,
		SourceCommit: sha, Status: control.MergeCommitConflict,
	}); err != nil {
		return false, "", fmt.Errorf("record conflict: %w", err)
	}
	ok, blocked, err := e.resolveConflict(ctx, git, opts, ws, position, sha)
	if ok {
		e.recordCherryPick(ctx, true)
	}
	return ok, blocked, err
}

// isCommitIntegrated reports whether appliedSHA is still an ancestor of
// HEAD: merge-base(appliedSHA, HEAD) == appliedSHA iff it is.
func (e *Engine) isCommitIntegrated(ctx context.Context, git *gitutil.Client, appliedSHA string) (bool, error) {
	if appliedSHA == "" {
		return false, nil
	}
	res, err := git.MergeBase(ctx, appliedSHA, "HEAD")
	if err != nil {
		return false, fmt.Errorf("merge-base ancestor check: %w", err)
	}
	if !res.Ok() {
		return false, nil
	}
	return firstLine(res.Stdout) == appliedSHA, nil
}
