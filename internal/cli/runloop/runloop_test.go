// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package runloop

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steroids-run/steroids/internal/gitutil"
	"github.com/steroids-run/steroids/internal/orchestrator"
	"github.com/steroids-run/steroids/internal/provider"
	"github.com/steroids-run/steroids/internal/store"
)

type fakeProvider struct {
	name   string
	result provider.InvokeResult
}

func (f *fakeProvider) Name() string { return f.name }
func (f *fakeProvider) Invoke(ctx context.Context, prompt string, opts provider.InvokeOptions) (provider.InvokeResult, error) {
	return f.result, nil
}
func (f *fakeProvider) Resume(ctx context.Context, sessionID, prompt string, opts provider.InvokeOptions) (provider.InvokeResult, error) {
	return f.result, nil
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

func TestTick_NoEligibleTaskReportsUnhandled(t *testing.T) {
	ctx := context.Background()
	st, err := store.OpenInMemory(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	eng := orchestrator.NewEngine(st, provider.NewRegistry())
	git := gitutil.New(gitutil.NewScripted(), "/work")

	result, err := Tick(ctx, eng, git, slog.Default(), Options{})
	require.NoError(t, err)
	assert.False(t, result.Handled)
}

func TestTick_ClaimsPendingTaskAndRunsCoderPhase(t *testing.T) {
	ctx := context.Background()
	st, err := store.OpenInMemory(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.CreateTask(ctx, store.Task{ID: "t1", Title: "do it", Status: store.StatusPending}, "system"))

	registry := provider.NewRegistry()
	registry.Register(&fakeProvider{name: "coder", result: provider.InvokeResult{Success: true, ExitCode: 0}})

	eng := orchestrator.NewEngine(st, registry)
	eng.CoderProviderName = "coder"

	git := gitutil.New(gitutil.NewScripted(
		gitutil.Step{Args: []string{"rev-parse", "HEAD"}, Result: gitutil.Result{Stdout: "abc123\n"}},
		gitutil.Step{Args: []string{"log", "-20", "--format=%H%x1f%s"}, Result: gitutil.Result{Stdout: "def456\x1fdid it\nabc123\x1finitial\n"}},
		gitutil.Step{Args: []string{"status", "--porcelain"}, Result: gitutil.Result{Stdout: ""}},
		gitutil.Step{Args: []string{"diff", "--cached", "--name-only"}, Result: gitutil.Result{Stdout: ""}},
		gitutil.Step{Args: []string{"diff", "--name-only"}, Result: gitutil.Result{Stdout: ""}},
	), "/work")

	result, err := Tick(ctx, eng, git, slog.Default(), Options{})
	require.NoError(t, err)
	assert.True(t, result.Handled)
	assert.Equal(t, "t1", result.TaskID)

	task, err := st.GetTask(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, store.StatusReview, task.Status)
}

func TestTick_TerminalTaskIsNotHandled(t *testing.T) {
	ctx := context.Background()
	st, err := store.OpenInMemory(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.CreateTask(ctx, store.Task{ID: "t1", Title: "x", Status: store.StatusCompleted}, "system"))

	eng := orchestrator.NewEngine(st, provider.NewRegistry())
	git := gitutil.New(gitutil.NewScripted(), "/work")

	// Completed is terminal, so NextTask never returns it; this exercises
	// the unhandled path, not the error path, confirming terminal tasks
	// are simply skipped rather than mis-scheduled.
	result, err := Tick(ctx, eng, git, slog.Default(), Options{})
	require.NoError(t, err)
	assert.False(t, result.Handled)
}
