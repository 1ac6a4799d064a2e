package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/steroids-run/steroids/internal/provider"
	"github.com/steroids-run/steroids/internal/store"
)

func TestClassifyCoderOutput_CleanCommitSubmits(t *testing.T) {
	state := GitState{RecentCommits: []Commit{{SHA: "c2"}, {SHA: "c1"}}}
	d := ClassifyCoderOutput(provider.InvokeResult{Success: true, ExitCode: 0}, state, "c1")
	assert.Equal(t, CoderSubmit, d.Action)
	assert.Equal(t, store.StatusReview, d.NextStatus)
	assert.InDelta(t, 0.90, d.Confidence, 0.001)
}

func TestClassifyCoderOutput_NewCommitWithDirtyTreeStagesAndSubmits(t *testing.T) {
	state := GitState{RecentCommits: []Commit{{SHA: "c2"}, {SHA: "c1"}}, UnstagedPaths: []string{"foo.go"}}
	d := ClassifyCoderOutput(provider.InvokeResult{Success: true, ExitCode: 0}, state, "c1")
	assert.Equal(t, CoderStageCommitSubmit, d.Action)
}

func TestClassifyCoderOutput_NoChangesAtAllErrors(t *testing.T) {
	state := GitState{RecentCommits: []Commit{{SHA: "c1"}}}
	d := ClassifyCoderOutput(provider.InvokeResult{Success: true, ExitCode: 0, Stdout: "did some thinking"}, state, "c1")
	assert.Equal(t, CoderError, d.Action)
	assert.Equal(t, CoderErrorNoChanges, d.ErrorKind)
}

func TestClassifyCoderOutput_AlreadyExistsSubmitsWithoutCommit(t *testing.T) {
	state := GitState{RecentCommits: []Commit{{SHA: "c1"}}}
	d := ClassifyCoderOutput(provider.InvokeResult{Success: true, ExitCode: 0, Stdout: "this feature already exists"}, state, "c1")
	assert.Equal(t, CoderSubmit, d.Action)
}

func TestClassifyCoderOutput_TimeoutOverridesEverything(t *testing.T) {
	d := ClassifyCoderOutput(provider.InvokeResult{TimedOut: true}, GitState{}, "")
	assert.Equal(t, CoderError, d.Action)
	assert.Equal(t, CoderErrorTimeout, d.ErrorKind)
	assert.InDelta(t, 0.98, d.Confidence, 0.001)
}

func TestClassifyCoderOutput_TransientErrorRetries(t *testing.T) {
	d := ClassifyCoderOutput(provider.InvokeResult{ExitCode: 1, Stderr: "rate limit exceeded, try again later"}, GitState{}, "")
	assert.Equal(t, CoderRetry, d.Action)
}

func TestClassifyCoderOutput_NonRetryableErrorsOut(t *testing.T) {
	d := ClassifyCoderOutput(provider.InvokeResult{ExitCode: 1, Stderr: "401 unauthorized: invalid API key"}, GitState{}, "")
	assert.Equal(t, CoderError, d.Action)
	assert.Equal(t, CoderErrorInvalidState, d.ErrorKind)
}
