package orchestrator

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/steroids-run/steroids/internal/decision"
	"github.com/steroids-run/steroids/internal/gitutil"
	"github.com/steroids-run/steroids/internal/provider"
	"github.com/steroids-run/steroids/internal/store"
)

// defaultRecentCommitCount bounds how far back GatherGitState looks.
const defaultRecentCommitCount = 20

// Engine drives one task through the coder/reviewer/coordinator lifecycle
// against a concrete store, provider registry, and git workspace.
type Engine struct {
	Store     *store.Store
	Providers *provider.Registry
	Extractor *decision.Extractor

	CoderProviderName       string
	ReviewerProviderName    string
	CoordinatorProviderName string

	RecentCommitCount int
}

// NewEngine builds an Engine with its extractor and commit-window defaults
// filled in.
func NewEngine(st *store.Store, providers *provider.Registry) *Engine {
	return &Engine{
		Store:             st,
		Providers:         providers,
		Extractor:         decision.NewExtractor(0, 0),
		RecentCommitCount: defaultRecentCommitCount,
	}
}

func (e *Engine) recentCommitCount() int {
	if e.RecentCommitCount <= 0 {
		return defaultRecentCommitCount
	}
	return e.RecentCommitCount
}

// RunCoderPhase invokes the coder provider for task and classifies the
// result. git must be rooted at the task's working checkout.
func (e *Engine) RunCoderPhase(ctx context.Context, git *gitutil.Client, task store.Task, guidance, agentsMD, specBody string) (CoderDecision, provider.InvokeResult, error) {
	history, err := e.Store.DeriveRejectionHistory(ctx, task.ID)
	if err != nil {
		return CoderDecision{}, provider.InvokeResult{}, fmt.Errorf("run coder phase: %w", err)
	}

	baseline, err := git.RevParse(ctx, "HEAD")
	if err != nil {
		return CoderDecision{}, provider.InvokeResult{}, fmt.Errorf("run coder phase: rev-parse HEAD: %w", err)
	}
	baselineHead := firstLine(baseline.Stdout)

	prompt := BuildCoderPrompt(CoderPromptInput{
		Task:                task,
		PriorStatus:         task.Status,
		RejectionHistory:    history,
		CoordinatorGuidance: guidance,
		AgentsMD:            agentsMD,
		SpecBody:            specBody,
	})

	p, err := e.Providers.MustGet(e.CoderProviderName)
	if err != nil {
		return CoderDecision{}, provider.InvokeResult{}, fmt.Errorf("run coder phase: %w", err)
	}

	result, err := p.Invoke(ctx, prompt, provider.InvokeOptions{Role: provider.RoleCoder, WorkingDir: git.Dir})
	if err != nil {
		return CoderDecision{}, result, fmt.Errorf("run coder phase: invoke: %w", err)
	}

	state, err := GatherGitState(ctx, git, e.recentCommitCount())
	if err != nil {
		return CoderDecision{}, result, fmt.Errorf("run coder phase: %w", err)
	}

	return ClassifyCoderOutput(result, state, baselineHead), result, nil
}

// RunReviewerPhase invokes the reviewer provider against the commit under
// review and classifies its response.
func (e *Engine) RunReviewerPhase(ctx context.Context, git *gitutil.Client, task store.Task, guidance, specBody, commitSHA string) (ReviewerDecision, provider.InvokeResult, error) {
	diffResult, err := git.Show(ctx, commitSHA)
	if err != nil {
		return ReviewerDecision{}, provider.InvokeResult{}, fmt.Errorf("run reviewer phase: show %s: %w", commitSHA, err)
	}

	prompt := BuildReviewerPrompt(ReviewerPromptInput{
		Task:                task,
		SpecBody:            specBody,
		CoordinatorGuidance: guidance,
		CommitSHA:           commitSHA,
		CommitDiff:          diffResult.Stdout,
	})

	p, err := e.Providers.MustGet(e.ReviewerProviderName)
	if err != nil {
		return ReviewerDecision{}, provider.InvokeResult{}, fmt.Errorf("run reviewer phase: %w", err)
	}

	result, err := p.Invoke(ctx, prompt, provider.InvokeOptions{Role: provider.RoleReviewer, WorkingDir: git.Dir})
	if err != nil {
		return ReviewerDecision{}, result, fmt.Errorf("run reviewer phase: invoke: %w", err)
	}

	return ClassifyReviewerOutput(result.Stdout, task.RejectionCount), result, nil
}

// RunCoordinatorPass invokes the coordinator provider with the full
// rejection history and extracts its guidance action.
func (e *Engine) RunCoordinatorPass(ctx context.Context, git *gitutil.Client, task store.Task) (CoordinatorDecision, error) {
	history, err := e.Store.DeriveRejectionHistory(ctx, task.ID)
	if err != nil {
		return CoordinatorDecision{}, fmt.Errorf("run coordinator pass: %w", err)
	}

	prompt := BuildCoderPrompt(CoderPromptInput{Task: task, PriorStatus: task.Status, RejectionHistory: history})

	p, err := e.Providers.MustGet(e.CoordinatorProviderName)
	if err != nil {
		return CoordinatorDecision{}, fmt.Errorf("run coordinator pass: %w", err)
	}

	result, err := p.Invoke(ctx, prompt, provider.InvokeOptions{Role: provider.RoleOrchestrator, WorkingDir: git.Dir})
	if err != nil {
		return CoordinatorDecision{}, fmt.Errorf("run coordinator pass: invoke: %w", err)
	}

	return extractCoordinatorDecision(ctx, e.Extractor, result.Stdout), nil
}

func extractCoordinatorDecision(ctx context.Context, extractor *decision.Extractor, text string) CoordinatorDecision {
	if blob, ok := decision.FindEmbeddedJSON(text); ok {
		if action, ok := extractor.StringField(ctx, ".action", blob); ok {
			guidance, _ := extractor.StringField(ctx, ".guidance", blob)
			reasoning, _ := extractor.StringField(ctx, ".reasoning", blob)
			return CoordinatorDecision{Action: CoordinatorAction(action), Guidance: guidance, Reasoning: reasoning}
		}
	}
	return CoordinatorDecision{Action: CoordinatorGuideCoder, Guidance: text}
}

// ApplyCoderDecision transitions task per d, returning the pause alert to
// surface when the invocation's error kind was credit exhaustion.
func (e *Engine) ApplyCoderDecision(ctx context.Context, task store.Task, d CoderDecision, invocationKind provider.ErrorKind) (*PauseAlert, error) {
	if invocationKind == provider.ErrorCreditExhaustion {
		return &PauseAlert{
			Reason:   PauseReasonCreditExhaustion,
			Provider: e.CoderProviderName,
			Role:     provider.RoleCoder,
			Message:  d.Reasoning,
		}, nil
	}

	switch d.Action {
	case CoderSubmit, CoderStageCommitSubmit:
		return nil, e.Store.TransitionTask(ctx, task.ID, d.NextStatus, store.TransitionOptions{
			Actor: "coder", Notes: d.Reasoning,
		})
	case CoderRetry:
		return nil, nil // stays in_progress, orchestrator loop re-invokes
	case CoderError:
		if d.ErrorKind == CoderErrorTimeout || d.ErrorKind == CoderErrorInvalidState {
			return nil, nil // stays in_progress for a retry on the next loop tick
		}
		return nil, nil
	default:
		return nil, fmt.Errorf("apply coder decision: unhandled action %q", d.Action)
	}
}

// ApplyReviewerDecision transitions task per d, enforcing the 15-rejection
// termination bound on a rejection. It does not run the coordinator pass at
// the trigger counts; the run loop checks CoordinatorTriggered for that.
func (e *Engine) ApplyReviewerDecision(ctx context.Context, task store.Task, d ReviewerDecision, commitSHA string) error {
	switch d.Action {
	case ReviewerApprove:
		return e.Store.TransitionTask(ctx, task.ID, store.StatusCompleted, store.TransitionOptions{
			Actor: "reviewer", Notes: d.Reasoning, CommitID: commitSHA,
		})
	case ReviewerSkip:
		return e.Store.TransitionTask(ctx, task.ID, store.StatusSkipped, store.TransitionOptions{
			Actor: "reviewer", Notes: d.Reasoning,
		})
	case ReviewerDispute:
		if err := e.Store.CreateDispute(ctx, store.Dispute{
			ID: uuid.NewString(), TaskID: task.ID, Type: store.DisputeReviewer,
			ReasonCode: "reviewer_dispute", ReviewerPosition: d.Reasoning, Creator: "reviewer",
		}); err != nil {
			return fmt.Errorf("apply reviewer decision: create dispute: %w", err)
		}
		return e.Store.TransitionTask(ctx, task.ID, store.StatusDisputed, store.TransitionOptions{
			Actor: "reviewer", Notes: d.Reasoning,
		})
	case ReviewerAmbiguous:
		return nil // stays in review, reviewer re-invoked next tick
	case ReviewerReject:
		return e.applyRejection(ctx, task, d)
	default:
		return fmt.Errorf("apply reviewer decision: unhandled action %q", d.Action)
	}
}

func (e *Engine) applyRejection(ctx context.Context, task store.Task, d ReviewerDecision) error {
	nextCount := task.RejectionCount + 1
	notes := d.Reasoning
	if len(d.FeedbackItems) > 0 {
		notes = fmt.Sprintf("%s\n\n%s", notes, joinFeedback(d.FeedbackItems))
	}

	if TerminationTriggered(nextCount) {
		if err := e.Store.TransitionTask(ctx, task.ID, store.StatusFailed, store.TransitionOptions{
			Actor: "reviewer", Notes: notes, IncrementRejection: true,
		}); err != nil {
			return fmt.Errorf("apply rejection: %w", err)
		}
		return e.Store.CreateDispute(ctx, store.Dispute{
			ID: uuid.NewString(), TaskID: task.ID, Type: store.DisputeSystem,
			ReasonCode: "rejection_limit_exceeded", Creator: "system",
		})
	}

	return e.Store.TransitionTask(ctx, task.ID, store.StatusInProgress, store.TransitionOptions{
		Actor: "reviewer", Notes: notes, IncrementRejection: true,
	})
}

func joinFeedback(items []string) string {
	out := "Unresolved items:\n"
	for _, item := range items {
		out += "- " + item + "\n"
	}
	return out
}
