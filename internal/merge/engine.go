package merge

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	steroidserrors "github.com/steroids-run/steroids/internal/errors"
	"github.com/steroids-run/steroids/internal/control"
	"github.com/steroids-run/steroids/internal/decision"
	"github.com/steroids-run/steroids/internal/gitutil"
	"github.com/steroids-run/steroids/internal/provider"
	"github.com/steroids-run/steroids/internal/telemetry"
)

// Engine drives one merge run: lock acquisition, integration workspace
// setup, the cherry-pick loop with its conflict sub-loop, the validation
// gate, the push, and cleanup.
type Engine struct {
	Control   *control.Store
	Providers *provider.Registry
	Extractor *decision.Extractor

	CoderProviderName    string
	ReviewerProviderName string

	GitRunner     gitutil.Runner
	WorkspaceRoot string

	Logger *slog.Logger

	// Metrics records cherry-pick/conflict/validation counters. Nil is
	// valid and simply disables recording, so tests and callers that
	// haven't wired telemetry don't need to construct a Provider.
	Metrics *telemetry.Metrics
}

// NewEngine builds an Engine with its extractor and logger defaults filled
// in.
func NewEngine(ctrl *control.Store, providers *provider.Registry, git gitutil.Runner, workspaceRoot string) *Engine {
	return &Engine{
		Control:       ctrl,
		Providers:     providers,
		Extractor:     decision.NewExtractor(0, 0),
		GitRunner:     git,
		WorkspaceRoot: workspaceRoot,
		Logger:        slog.Default(),
	}
}

// Run executes one merge pass for opts.SessionID. Faults that leave the
// session in a blocked, resumable state (blocked_conflict,
// blocked_validation) are reported via Result, not as a Go error; a
// non-nil error means the run could not even get that far, or hit a
// condition (fenced-out lock, non-fast-forward mainline, push rejection)
// that needs operator attention before any retry can help.
func (e *Engine) Run(ctx context.Context, opts Options) (Result, error) {
	epoch, err := e.Control.AcquireMergeLock(ctx, opts.SessionID, opts.RunnerID)
	if err != nil {
		return Result{}, fmt.Errorf("acquire merge lock: %w", err)
	}

	if err := e.Control.TransitionSession(ctx, opts.SessionID, control.SessionMerging); err != nil {
		return Result{}, fmt.Errorf("transition session to merging: %w", err)
	}

	integrationDir := filepath.Join(e.WorkspaceRoot, "integration", opts.SessionID)
	git, resuming, err := e.setupIntegrationWorkspace(ctx, opts, integrationDir)
	if err != nil {
		return Result{}, err
	}

	if err := e.fetchWorkstreamBranches(ctx, git, opts); err != nil {
		return Result{}, err
	}

	sealed, err := e.sealWorkstreams(ctx, git, opts)
	if err != nil {
		return Result{}, err
	}

	if !resuming {
		if res, err := git.PullFastForward(ctx); err != nil {
			return Result{}, fmt.Errorf("pull mainline: %w", err)
		} else if gitutil.IsGitFailure(res) {
			return Result{}, steroidserrors.NewFault(steroidserrors.FaultNonFastForward,
				"mainline diverged from remote: "+res.Combined())
		}
	}

	applied, blocked, err := e.cherryPickLoop(ctx, git, opts, epoch, sealed)
	if err != nil {
		return Result{}, err
	}
	if blocked != "" {
		if err := e.Control.TransitionSession(ctx, opts.SessionID, control.SessionStatus(blocked)); err != nil {
			return Result{}, fmt.Errorf("transition session to %s: %w", blocked, err)
		}
		return Result{SessionStatus: control.SessionStatus(blocked), CommitsApplied: applied, IntegrationDir: integrationDir}, nil
	}

	if len(opts.ValidationCommand) > 0 {
		ok, err := e.runValidationGate(ctx, opts, integrationDir)
		if err != nil {
			return Result{}, err
		}
		if !ok {
			if err := e.Control.TransitionSession(ctx, opts.SessionID, control.SessionBlockedValidation); err != nil {
				return Result{}, fmt.Errorf("transition session to blocked_validation: %w", err)
			}
			return Result{SessionStatus: control.SessionBlockedValidation, CommitsApplied: applied, IntegrationDir: integrationDir}, nil
		}
	}

	if res, err := git.Push(ctx, opts.remote(), opts.mainBranch()); err != nil {
		return Result{}, fmt.Errorf("push mainline: %w", err)
	} else if gitutil.IsGitFailure(res) {
		return Result{}, steroidserrors.NewFault(steroidserrors.FaultPushFailed, "push to mainline failed: "+res.Combined())
	}

	e.cleanup(ctx, git, opts, integrationDir)

	finalStatus := control.SessionRunning
	if opts.CompleteSession {
		finalStatus = control.SessionCompleted
		if err := e.resolveValidationEscalations(ctx, opts.SessionID); err != nil {
			e.Logger.Warn("failed to resolve validation escalations", slog.String("session_id", opts.SessionID), slog.Any("err", err))
		}
	}
	if err := e.Control.TransitionSession(ctx, opts.SessionID, finalStatus); err != nil {
		return Result{}, fmt.Errorf("transition session to %s: %w", finalStatus, err)
	}

	return Result{
		SessionStatus:  finalStatus,
		WorkstreamsRun: len(opts.Workstreams),
		CommitsApplied: applied,
		IntegrationDir: integrationDir,
	}, nil
}

// setupIntegrationWorkspace clones the project at mainline HEAD into
// integrationDir and checks out the integration branch, unless a prior run
// already left one in place — detected by a dirty working tree with a
// cherry-pick in progress, which means this call is resuming.
func (e *Engine) setupIntegrationWorkspace(ctx context.Context, opts Options, integrationDir string) (*gitutil.Client, bool, error) {
	git := gitutil.New(e.GitRunner, integrationDir)

	status, err := git.StatusPorcelain(ctx)
	alreadyCloned := err == nil && status.ExitCode == 0

	if !alreadyCloned {
		cloner := gitutil.New(e.GitRunner, filepath.Dir(integrationDir))
		if res, err := cloner.Clone(ctx, opts.ProjectPath, integrationDir); err != nil {
			return nil, false, fmt.Errorf("clone integration workspace: %w", err)
		} else if !res.Ok() {
			return nil, false, fmt.Errorf("clone integration workspace: %s", res.Combined())
		}
		if res, err := git.Checkout(ctx, "-b", opts.integrationBranch()); err != nil {
			return nil, false, fmt.Errorf("checkout integration branch: %w", err)
		} else if !res.Ok() {
			return nil, false, fmt.Errorf("checkout integration branch: %s", res.Combined())
		}
		return git, false, nil
	}

	dirty := gitutil.IsDirty(status)
	inProgress := gitutil.CherryPickInProgress(status)
	if dirty && !inProgress {
		return nil, false, steroidserrors.NewFault(steroidserrors.FaultDirtyWorktree,
			"integration workspace has uncommitted changes and no cherry-pick in progress")
	}
	return git, dirty && inProgress, nil
}

// fetchWorkstreamBranches fetches every workstream's branch from the
// remote. A missing remote ref is non-fatal: the workstream is treated as
// contributing no commits rather than aborting the whole run.
func (e *Engine) fetchWorkstreamBranches(ctx context.Context, git *gitutil.Client, opts Options) error {
	for _, ws := range opts.Workstreams {
		if res, err := git.FetchPrune(ctx, opts.remote(), ws.Branch); err != nil {
			return fmt.Errorf("fetch workstream branch: %w", err)
		} else if !res.Ok() {
			e.Logger.Info("workstream branch fetch failed, treating as no-op branch",
				slog.String("workstream_id", ws.ID), slog.String("branch", ws.Branch), slog.String("detail", res.Combined()))
		}
	}
	return nil
}

// sealedWorkstream pairs a workstream with the commit list it resolved to.
type sealedWorkstream struct {
	Workstream control.Workstream
	CommitSHAs []string // oldest-first
}

// sealWorkstreams computes and persists each workstream's sealed head/base
// and commit list, gated by its lease fence.
func (e *Engine) sealWorkstreams(ctx context.Context, git *gitutil.Client, opts Options) ([]sealedWorkstream, error) {
	var out []sealedWorkstream
	for i, ws := range opts.Workstreams {
		remoteBranch := opts.remote() + "/" + ws.Branch
		remoteMain := opts.remote() + "/" + opts.mainBranch()

		headRes, err := git.RevParse(ctx, remoteBranch)
		if err != nil || !headRes.Ok() {
			return nil, steroidserrors.NewFault(steroidserrors.FaultRemoteBranchMissing,
				fmt.Sprintf("could not resolve %s", remoteBranch))
		}
		head := firstLine(headRes.Stdout)

		baseRes, err := git.MergeBase(ctx, remoteMain, remoteBranch)
		if err != nil || !baseRes.Ok() {
			return nil, steroidserrors.NewFault(steroidserrors.FaultRemoteBranchMissing,
				fmt.Sprintf("could not resolve merge-base for %s", remoteBranch))
		}
		base := firstLine(baseRes.Stdout)

		logRes, err := git.LogRange(ctx, base, head)
		if err != nil {
			return nil, fmt.Errorf("seal workstream %s: log range: %w", ws.ID, err)
		}
		commits := nonEmptyLines(logRes.Stdout)

		fence := control.LeaseFence{WorkstreamID: ws.ID, Status: ws.Status, ClaimGeneration: ws.ClaimGeneration}
		if err := e.Control.SealWorkstream(ctx, fence, base, head, commits, i+1); err != nil {
			return nil, fmt.Errorf("seal workstream %s: %w", ws.ID, err)
		}

		out = append(out, sealedWorkstream{Workstream: ws, CommitSHAs: commits})
	}
	return out, nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return strings.TrimSpace(s)
}

func nonEmptyLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if strings.TrimSpace(line) != "" {
			out = append(out, strings.TrimSpace(line))
		}
	}
	return out
}

func (e *Engine) recordCherryPick(ctx context.Context, hadConflict bool) {
	if e.Metrics != nil {
		e.Metrics.RecordCherryPick(ctx, hadConflict)
	}
}

func (e *Engine) recordConflict(ctx context.Context, workstreamID string) {
	if e.Metrics != nil {
		e.Metrics.RecordConflict(ctx, workstreamID)
	}
}

func (e *Engine) recordRejection(ctx context.Context, workstreamID string) {
	if e.Metrics != nil {
		e.Metrics.RecordRejection(ctx, workstreamID)
	}
}

func (e *Engine) recordValidationFailure(ctx context.Context, truncated bool) {
	if e.Metrics != nil {
		e.Metrics.RecordValidationFailure(ctx, truncated)
	}
}
