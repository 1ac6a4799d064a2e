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

// Package runloop drives the claim-coder-review cycle one task at a time.
// It is the shared core behind both "loop" (foreground, single checkout)
// and the non-parallel path of "runners start": both just call Tick in a
// for loop until it reports no eligible work.
package runloop

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/steroids-run/steroids/internal/gitutil"
	steroidslog "github.com/steroids-run/steroids/internal/log"
	"github.com/steroids-run/steroids/internal/orchestrator"
	"github.com/steroids-run/steroids/internal/provider"
	"github.com/steroids-run/steroids/internal/store"
)

// Options configures one pass of the loop.
type Options struct {
	// SectionFilter restricts claims to one section id; empty means any
	// section.
	SectionFilter string
	AgentsMD      string
	SpecBody      string
}

// TickResult summarizes what happened to the claimed task, if any.
type TickResult struct {
	TaskID  string
	Action  string
	Handled bool
}

// Tick claims the next eligible task, if any, and drives it one phase
// forward: a pending task is claimed and run through the coder phase, an
// in_progress task is re-run through the coder phase (retry), a task in
// review is run through the reviewer phase. Returns Handled=false when
// there was no eligible task to claim.
func Tick(ctx context.Context, eng *orchestrator.Engine, git *gitutil.Client, logger *slog.Logger, opts Options) (TickResult, error) {
	task, err := eng.Store.NextTask(ctx, opts.SectionFilter)
	if err != nil {
		return TickResult{}, fmt.Errorf("run loop tick: next task: %w", err)
	}
	if task == nil {
		return TickResult{}, nil
	}

	taskLogger := steroidslog.WithTask(logger, task.ID)

	guidance := ""
	if orchestrator.CoordinatorTriggered(task.RejectionCount) {
		cd, err := eng.RunCoordinatorPass(ctx, git, *task)
		if err != nil {
			return TickResult{}, fmt.Errorf("run loop tick: coordinator pass: %w", err)
		}
		guidance = cd.Guidance
		taskLogger.Info("coordinator guidance issued", slog.String("action", string(cd.Action)))
	}

	switch task.Status {
	case store.StatusPending, store.StatusInProgress:
		return tickCoder(ctx, eng, git, taskLogger, *task, guidance, opts)
	case store.StatusReview:
		return tickReviewer(ctx, eng, git, taskLogger, *task, guidance, opts)
	default:
		return TickResult{}, fmt.Errorf("run loop tick: task %s in unschedulable status %q", task.ID, task.Status)
	}
}

func tickCoder(ctx context.Context, eng *orchestrator.Engine, git *gitutil.Client, logger *slog.Logger, task store.Task, guidance string, opts Options) (TickResult, error) {
	if task.Status == store.StatusPending {
		if err := eng.Store.TransitionTask(ctx, task.ID, store.StatusInProgress, store.TransitionOptions{
			Actor: "runner", Notes: "claimed",
		}); err != nil {
			return TickResult{}, fmt.Errorf("run loop tick: claim task: %w", err)
		}
	}

	decision, result, err := eng.RunCoderPhase(ctx, git, task, guidance, opts.AgentsMD, opts.SpecBody)
	if err != nil {
		return TickResult{}, fmt.Errorf("run loop tick: coder phase: %w", err)
	}

	kind := provider.ClassifyInvokeResult(result)
	alert, err := eng.ApplyCoderDecision(ctx, task, decision, kind)
	if err != nil {
		return TickResult{}, fmt.Errorf("run loop tick: apply coder decision: %w", err)
	}
	if alert != nil {
		logger.Warn("pause alert raised", slog.String("reason", string(alert.Reason)), slog.String("provider", alert.Provider))
	}

	logger.Info("coder phase complete", slog.String("action", string(decision.Action)), slog.Float64("confidence", decision.Confidence))
	return TickResult{TaskID: task.ID, Action: string(decision.Action), Handled: true}, nil
}

func tickReviewer(ctx context.Context, eng *orchestrator.Engine, git *gitutil.Client, logger *slog.Logger, task store.Task, guidance string, opts Options) (TickResult, error) {
	head, err := git.RevParse(ctx, "HEAD")
	if err != nil {
		return TickResult{}, fmt.Errorf("run loop tick: rev-parse HEAD: %w", err)
	}
	commitSHA := firstLine(head.Stdout)

	decision, _, err := eng.RunReviewerPhase(ctx, git, task, guidance, opts.SpecBody, commitSHA)
	if err != nil {
		return TickResult{}, fmt.Errorf("run loop tick: reviewer phase: %w", err)
	}

	if err := eng.ApplyReviewerDecision(ctx, task, decision, commitSHA); err != nil {
		return TickResult{}, fmt.Errorf("run loop tick: apply reviewer decision: %w", err)
	}

	logger.Info("reviewer phase complete", slog.String("action", string(decision.Action)), slog.Float64("confidence", decision.Confidence))
	return TickResult{TaskID: task.ID, Action: string(decision.Action), Handled: true}, nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}
