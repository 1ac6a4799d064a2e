package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steroids-run/steroids/internal/gitutil"
	"github.com/steroids-run/steroids/internal/provider"
	"github.com/steroids-run/steroids/internal/store"
)

// fakeProvider is a scripted provider.Provider test double.
type fakeProvider struct {
	name   string
	result provider.InvokeResult
	err    error
}

func (f *fakeProvider) Name() string { return f.name }
func (f *fakeProvider) Invoke(ctx context.Context, prompt string, opts provider.InvokeOptions) (provider.InvokeResult, error) {
	return f.result, f.err
}
func (f *fakeProvider) Resume(ctx context.Context, sessionID, prompt string, opts provider.InvokeOptions) (provider.InvokeResult, error) {
	return f.result, f.err
}
func (f *fakeProvider) ListModels() []provider.ModelInfo     { return nil }
func (f *fakeProvider) GetDefaultModel(provider.Role) string { return "" }
func (f *fakeProvider) ClassifyError(exitCode int, stderr string) provider.ErrorKind {
	return provider.ClassifyExitCode(exitCode, stderr)
}
func (f *fakeProvider) ClassifyResult(result provider.InvokeResult) provider.ErrorKind {
	return provider.ClassifyInvokeResult(result)
}
func (f *fakeProvider) IsAvailable() bool { return true }

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.OpenInMemory(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestEngine_RunCoderPhase_CleanSubmitTransitionsOnApply(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	require.NoError(t, st.CreateTask(ctx, store.Task{ID: "t1", Title: "do the thing", Status: store.StatusInProgress}, "system"))

	registry := provider.NewRegistry()
	registry.Register(&fakeProvider{name: "coder", result: provider.InvokeResult{Success: true, ExitCode: 0}})

	git := gitutil.New(gitutil.NewScripted(
		gitutil.Step{Args: []string{"rev-parse", "HEAD"}, Result: gitutil.Result{Stdout: "abc123\n"}},
		gitutil.Step{Args: []string{"log", "-20", "--format=%H%x1f%s"}, Result: gitutil.Result{Stdout: "def456\x1fdid the thing\nabc123\x1finitial\n"}},
		gitutil.Step{Args: []string{"status", "--porcelain"}, Result: gitutil.Result{Stdout: ""}},
		gitutil.Step{Args: []string{"diff", "--cached", "--name-only"}, Result: gitutil.Result{Stdout: ""}},
		gitutil.Step{Args: []string{"diff", "--name-only"}, Result: gitutil.Result{Stdout: ""}},
	), "/work/t1")

	engine := NewEngine(st, registry)
	engine.CoderProviderName = "coder"

	task, err := st.GetTask(ctx, "t1")
	require.NoError(t, err)

	d, _, err := engine.RunCoderPhase(ctx, git, task, "", "", "")
	require.NoError(t, err)
	assert.Equal(t, CoderSubmit, d.Action)

	alert, err := engine.ApplyCoderDecision(ctx, task, d, "")
	require.NoError(t, err)
	assert.Nil(t, alert)

	updated, err := st.GetTask(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, store.StatusReview, updated.Status)
}

func TestEngine_ApplyCoderDecision_CreditExhaustionRaisesPauseAlert(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	require.NoError(t, st.CreateTask(ctx, store.Task{ID: "t1", Title: "x", Status: store.StatusInProgress}, "system"))
	task, err := st.GetTask(ctx, "t1")
	require.NoError(t, err)

	engine := NewEngine(st, provider.NewRegistry())
	engine.CoderProviderName = "coder"

	alert, err := engine.ApplyCoderDecision(ctx, task, CoderDecision{Action: CoderError, ErrorKind: CoderErrorInvalidState}, provider.ErrorCreditExhaustion)
	require.NoError(t, err)
	require.NotNil(t, alert)
	assert.Equal(t, PauseReasonCreditExhaustion, alert.Reason)

	unchanged, err := st.GetTask(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, store.StatusInProgress, unchanged.Status)
}

func TestEngine_ApplyReviewerDecision_RejectIncrementsAndReturnsToInProgress(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	require.NoError(t, st.CreateTask(ctx, store.Task{ID: "t1", Title: "x", Status: store.StatusReview}, "system"))
	task, err := st.GetTask(ctx, "t1")
	require.NoError(t, err)

	engine := NewEngine(st, provider.NewRegistry())
	err = engine.ApplyReviewerDecision(ctx, task, ReviewerDecision{Action: ReviewerReject, Reasoning: "needs more tests"}, "abc123")
	require.NoError(t, err)

	updated, err := st.GetTask(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, store.StatusInProgress, updated.Status)
	assert.Equal(t, 1, updated.RejectionCount)
}

func TestEngine_ApplyReviewerDecision_TerminatesAt15AndOpensSystemDispute(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	require.NoError(t, st.CreateTask(ctx, store.Task{ID: "t1", Title: "x", Status: store.StatusReview}, "system"))

	engine := NewEngine(st, provider.NewRegistry())
	for i := 0; i < 15; i++ {
		task, err := st.GetTask(ctx, "t1")
		require.NoError(t, err)
		require.NoError(t, engine.ApplyReviewerDecision(ctx, task, ReviewerDecision{Action: ReviewerReject, Reasoning: "nope"}, ""))

		updated, err := st.GetTask(ctx, "t1")
		require.NoError(t, err)
		if updated.Status == store.StatusInProgress {
			require.NoError(t, st.TransitionTask(ctx, "t1", store.StatusReview, store.TransitionOptions{Actor: "coder"}))
		}
	}

	final, err := st.GetTask(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, store.StatusFailed, final.Status)
	assert.Equal(t, 15, final.RejectionCount)

	count, err := st.CountOpenDisputes(ctx, "t1", store.DisputeSystem)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestEngine_ApplyReviewerDecision_ApproveCompletesTask(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	require.NoError(t, st.CreateTask(ctx, store.Task{ID: "t1", Title: "x", Status: store.StatusReview}, "system"))
	task, err := st.GetTask(ctx, "t1")
	require.NoError(t, err)

	engine := NewEngine(st, provider.NewRegistry())
	require.NoError(t, engine.ApplyReviewerDecision(ctx, task, ReviewerDecision{Action: ReviewerApprove}, "abc123"))

	updated, err := st.GetTask(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, store.StatusCompleted, updated.Status)
}
