package merge

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/steroids-run/steroids/internal/control"
	"github.com/steroids-run/steroids/internal/gitutil"
	"github.com/steroids-run/steroids/internal/provider"
)

var (
	approvePattern = regexp.MustCompile(`(?i)\bAPPROVE\b`)
	rejectPattern  = regexp.MustCompile(`(?i)\bREJECT\b`)
)

// parseReviewDecision classifies a conflict reviewer's free-text response.
// REJECT, if present anywhere, always wins over APPROVE — a reviewer that
// hedges ("mostly fine but REJECT until tests are added") must not be read
// as an approval. Ambiguous output (neither token present) defaults to
// reject, since an unresolved conflict left unapplied is recoverable but a
// bad cherry-pick landed on mainline is not.
func parseReviewDecision(text string) bool {
	if rejectPattern.MatchString(text) {
		return false
	}
	return approvePattern.MatchString(text)
}

// resumeConflict re-enters the conflict sub-loop for a cherry-pick a prior,
// crashed run left in progress. The index is already conflicted, so this
// is exactly resolveConflict's loop starting from a fresh iteration.
func (e *Engine) resumeConflict(ctx context.Context, git *gitutil.Client, opts Options, ws control.Workstream, position int, sha string) (bool, string, error) {
	return e.resolveConflict(ctx, git, opts, ws, position, sha)
}

// resolveConflict runs the conflict resolution sub-loop against an
// in-progress cherry-pick for (ws, position, sha): gather conflicted
// files, have the coder provider edit and stage a resolution, have the
// reviewer provider judge it, and either continue the pick or try again.
func (e *Engine) resolveConflict(ctx context.Context, git *gitutil.Client, opts Options, ws control.Workstream, position int, sha string) (bool, string, error) {
	fence := control.LeaseFence{WorkstreamID: ws.ID, Status: ws.Status, ClaimGeneration: ws.ClaimGeneration}

	for attempt := 1; attempt <= opts.conflictAttemptLimit(); attempt++ {
		e.recordConflict(ctx, ws.ID)

		approved, feedback, err := e.conflictIteration(ctx, git, ws, sha)
		if err != nil {
			return false, "", err
		}

		if approved {
			res, err := git.CherryPickContinue(ctx)
			if err != nil {
				return false, "", fmt.Errorf("cherry-pick --continue: %w", err)
			}
			if !res.Ok() {
				return false, "", fmt.Errorf("cherry-pick --continue failed: %s", res.Combined())
			}
			head, err := git.RevParse(ctx, "HEAD")
			if err != nil {
				return false, "", fmt.Errorf("rev-parse HEAD after continue: %w", err)
			}
			newSHA := firstLine(head.Stdout)
			if err := e.Control.UpsertMergeProgress(ctx, control.MergeProgress{
				SessionID: opts.SessionID, WorkstreamID: ws.ID, Position: position,
				SourceCommit: sha, Status: control.MergeCommitApplied, AppliedCommit: newSHA,
			}); err != nil {
				return false, "", fmt.Errorf("record applied commit after conflict: %w", err)
			}
			return true, "", nil
		}

		e.recordRejection(ctx, ws.ID)
		if err := e.Control.IncrementConflictAttempts(ctx, fence); err != nil {
			return false, "", fmt.Errorf("increment conflict attempts: %w", err)
		}
		if err := e.Control.UpsertMergeProgress(ctx, control.MergeProgress{
			SessionID: opts.SessionID, WorkstreamID: ws.ID, Position: position,
			SourceCommit: sha, Status: control.MergeCommitConflict, ConflictTask: feedback,
		}); err != nil {
			return false, "", fmt.Errorf("record conflict feedback: %w", err)
		}
	}

	return false, string(control.SessionBlockedConflict), nil
}

// conflictIteration runs one coder-edit / reviewer-judge round against the
// currently conflicted cherry-pick and reports whether the reviewer
// approved the staged resolution.
func (e *Engine) conflictIteration(ctx context.Context, git *gitutil.Client, ws control.Workstream, sha string) (approved bool, feedback string, err error) {
	unmerged, err := git.DiffUnmerged(ctx)
	if err != nil {
		return false, "", fmt.Errorf("diff unmerged: %w", err)
	}
	conflictedFiles := nonEmptyLines(unmerged.Stdout)

	patch, err := git.Show(ctx, sha)
	if err != nil {
		return false, "", fmt.Errorf("show %s: %w", sha, err)
	}

	coder, err := e.Providers.MustGet(e.CoderProviderName)
	if err != nil {
		return false, "", err
	}
	coderPrompt := buildConflictCoderPrompt(ws, sha, conflictedFiles, patch.Stdout)
	if _, err := coder.Invoke(ctx, coderPrompt, provider.InvokeOptions{Role: provider.RoleCoder, WorkingDir: git.Dir}); err != nil {
		return false, "", fmt.Errorf("invoke coder on conflict: %w", err)
	}

	stillUnmerged, err := git.DiffUnmerged(ctx)
	if err != nil {
		return false, "", fmt.Errorf("diff unmerged after conflict edit: %w", err)
	}
	if remaining := nonEmptyLines(stillUnmerged.Stdout); len(remaining) > 0 {
		return false, fmt.Sprintf("unmerged paths remain: %s", strings.Join(remaining, ", ")), nil
	}

	staged, err := git.DiffCached(ctx)
	if err != nil {
		return false, "", fmt.Errorf("diff cached after conflict edit: %w", err)
	}
	stagedFiles, err := git.DiffCachedNameOnly(ctx)
	if err != nil {
		return false, "", fmt.Errorf("diff cached name-only after conflict edit: %w", err)
	}

	reviewer, err := e.Providers.MustGet(e.ReviewerProviderName)
	if err != nil {
		return false, "", err
	}
	reviewerPrompt := buildConflictReviewerPrompt(ws, sha, nonEmptyLines(stagedFiles.Stdout), staged.Stdout)
	result, err := reviewer.Invoke(ctx, reviewerPrompt, provider.InvokeOptions{Role: provider.RoleReviewer, WorkingDir: git.Dir})
	if err != nil {
		return false, "", fmt.Errorf("invoke reviewer on conflict: %w", err)
	}

	return parseReviewDecision(result.Stdout), result.Stdout, nil
}

func buildConflictCoderPrompt(ws control.Workstream, sha string, conflictedFiles []string, patch string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Workstream %s (branch %s) is cherry-picking commit %s and hit a conflict.\n\n", ws.ID, ws.Branch, shortSHA(sha))
	b.WriteString("Conflicted files:\n")
	for _, f := range conflictedFiles {
		b.WriteString("- " + f + "\n")
	}
	b.WriteString("\nOriginal commit patch:\n")
	b.WriteString(patch)
	b.WriteString("\n\nResolve every conflict marker in the files above so the original commit's intent is preserved on top of the current tree. Stage your resolution with `git add`. Do not commit.\n")
	return b.String()
}

func buildConflictReviewerPrompt(ws control.Workstream, sha string, stagedFiles []string, stagedDiff string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Review this conflict resolution for workstream %s, commit %s.\n\n", ws.ID, shortSHA(sha))
	b.WriteString("Staged files:\n")
	for _, f := range stagedFiles {
		b.WriteString("- " + f + "\n")
	}
	b.WriteString("\nStaged diff:\n")
	b.WriteString(stagedDiff)
	b.WriteString("\n\nRespond with APPROVE if the resolution correctly preserves the original commit's intent with no leftover conflict markers, or REJECT with your reasoning otherwise.\n")
	return b.String()
}

func shortSHA(sha string) string {
	if len(sha) > 8 {
		return sha[:8]
	}
	return sha
}
