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

// Package runners implements "runners start": the entry point for a
// runner process, either a single-checkout worker driving the task
// backlog directly, or (with --parallel) the launcher that partitions the
// backlog into workstreams and spawns one detached worker per workstream.
package runners

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/steroids-run/steroids/internal/cli/agentset"
	"github.com/steroids-run/steroids/internal/cli/paths"
	"github.com/steroids-run/steroids/internal/cli/runloop"
	"github.com/steroids-run/steroids/internal/cli/shared"
	"github.com/steroids-run/steroids/internal/config"
	"github.com/steroids-run/steroids/internal/control"
	"github.com/steroids-run/steroids/internal/gitutil"
	"github.com/steroids-run/steroids/internal/lifecycle"
	steroidslog "github.com/steroids-run/steroids/internal/log"
	"github.com/steroids-run/steroids/internal/orchestrator"
	"github.com/steroids-run/steroids/internal/scheduler"
	"github.com/steroids-run/steroids/internal/store"
)

// NewCommand creates the "runners" command group.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runners",
		Short: "Start and manage runner processes",
	}
	cmd.AddCommand(newStartCommand())
	return cmd
}

func newStartCommand() *cobra.Command {
	var project string
	var detach bool
	var parallel bool
	var sectionIDs string
	var branch string
	var parallelSessionID string
	var workstreamID string
	var leaseToken string

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a runner against a project checkout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := paths.ResolveProject(project)
			if err != nil {
				return shared.NewExitError(shared.ExitGeneral, "resolve project", err)
			}

			if detach {
				return startDetached(dir, sectionIDs, branch, parallelSessionID, parallel)
			}
			if parallel {
				return startParallel(cmd.Context(), dir)
			}
			return startForeground(cmd.Context(), dir, sectionIDs, branch, parallelSessionID, workstreamID, leaseToken)
		},
	}
	cmd.Flags().StringVarP(&project, "project", "p", "", "Project directory (default: current directory)")
	cmd.Flags().BoolVar(&detach, "detach", false, "Spawn the runner as a detached background process")
	cmd.Flags().BoolVar(&parallel, "parallel", false, "Partition the backlog into workstreams and launch one runner per workstream")
	cmd.Flags().StringVar(&sectionIDs, "section-ids", "", "Comma-separated section ids this runner is restricted to (set by the scheduler for a workstream runner)")
	cmd.Flags().StringVar(&branch, "branch", "", "Workstream branch this runner is checked out on")
	cmd.Flags().StringVar(&parallelSessionID, "parallel-session-id", "", "Parallel session this runner's workstream belongs to")
	cmd.Flags().StringVar(&workstreamID, "workstream-id", "", "Workstream this runner was launched for (set by the scheduler)")
	cmd.Flags().StringVar(&leaseToken, "lease-token", "", "Signed lease token proving this runner's claim over --workstream-id (set by the scheduler)")
	return cmd
}

func startDetached(project, sectionIDs, branch, parallelSessionID string, parallel bool) error {
	logDir, err := paths.ProjectLogDir(project)
	if err != nil {
		return shared.NewExitError(shared.ExitGeneral, "resolve log directory", err)
	}

	args := []string{"runners", "start", "--project", project}
	if parallel {
		args = append(args, "--parallel")
	}
	if sectionIDs != "" {
		args = append(args, "--section-ids", sectionIDs)
	}
	if branch != "" {
		args = append(args, "--branch", branch)
	}
	if parallelSessionID != "" {
		args = append(args, "--parallel-session-id", parallelSessionID)
	}

	self, err := os.Executable()
	if err != nil {
		return shared.NewExitError(shared.ExitGeneral, "resolve own executable", err)
	}

	spawner := lifecycle.NewSpawner()
	pid, err := spawner.SpawnDetached(self, args, fmt.Sprintf("%s/runner.log", logDir))
	if err != nil {
		return shared.NewExitError(shared.ExitGeneral, "spawn detached runner", err)
	}

	if shared.GetJSON() {
		return shared.EmitJSONResult(map[string]any{"pid": pid, "project": project})
	}
	fmt.Printf("runner started, pid=%d\n", pid)
	return nil
}

// startParallel partitions the project's pending sections into
// workstreams and launches one detached runner per workstream.
func startParallel(ctx context.Context, project string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	dbPath, err := paths.ProjectDBPath(project)
	if err != nil {
		return shared.NewExitError(shared.ExitGeneral, "resolve task store path", err)
	}
	st, err := store.Open(ctx, dbPath)
	if err != nil {
		return shared.NewExitError(shared.ExitConfigOrUninit, "open task store", err)
	}
	defer st.Close()

	globalDBPath, err := paths.GlobalDBPath()
	if err != nil {
		return shared.NewExitError(shared.ExitGeneral, "resolve control plane path", err)
	}
	ctrl, err := control.Open(ctx, globalDBPath)
	if err != nil {
		return shared.NewExitError(shared.ExitConfigOrUninit, "open control plane", err)
	}
	defer ctrl.Close()

	workspaceRoot, err := workspaceRootDir()
	if err != nil {
		return shared.NewExitError(shared.ExitGeneral, "resolve workspace root", err)
	}
	logDir, err := paths.ProjectLogDir(project)
	if err != nil {
		return shared.NewExitError(shared.ExitGeneral, "resolve log directory", err)
	}
	self, err := os.Executable()
	if err != nil {
		return shared.NewExitError(shared.ExitGeneral, "resolve own executable", err)
	}

	sessionID := uuid.NewString()
	if err := ctrl.CreateSession(ctx, control.ParallelSession{
		ID: sessionID, ProjectPath: project, RepoID: project,
	}); err != nil {
		return shared.NewExitError(shared.ExitGeneral, "create parallel session", err)
	}

	cfg := config.Default()

	sched := scheduler.NewScheduler(ctrl, gitutil.NewExecRunner())
	launched, err := sched.Run(ctx, st, scheduler.Config{
		Strategy:      scheduler.Partitioned,
		MaxClones:     cfg.MaxClones,
		ProjectPath:   project,
		WorkspaceRoot: workspaceRoot,
		RunnerID:      "launcher-" + sessionID[:8],
		SessionID:     sessionID,
		Binary:        self,
		DaemonLogDir:  logDir,
	})
	if err != nil {
		return shared.NewExitError(shared.ExitGeneral, "launch workstreams", err)
	}

	if shared.GetJSON() {
		return shared.EmitJSONResult(map[string]any{"session_id": sessionID, "workstreams": launched})
	}
	fmt.Printf("session %s: launched %d workstream(s)\n", sessionID, len(launched))
	for _, l := range launched {
		fmt.Printf("  workstream %s branch=%s pid=%d clone=%s\n", l.Workstream.ID, l.Workstream.Branch, l.PID, l.ClonePath)
	}
	return nil
}

// startForeground runs the claim-coder-review cycle against project
// in-process until no eligible task remains, heartbeating a runner row in
// the control plane throughout. When sectionIDs names more than one
// section (a partitioned workstream spanning several interdependent
// sections) each tick tries them in order and stops only once none of
// them have eligible work.
func startForeground(ctx context.Context, project, sectionIDs, branch, parallelSessionID, workstreamID, leaseToken string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	dbPath, err := paths.ProjectDBPath(project)
	if err != nil {
		return shared.NewExitError(shared.ExitGeneral, "resolve task store path", err)
	}
	st, err := store.Open(ctx, dbPath)
	if err != nil {
		return shared.NewExitError(shared.ExitConfigOrUninit, "open task store", err)
	}
	defer st.Close()

	globalDBPath, err := paths.GlobalDBPath()
	if err != nil {
		return shared.NewExitError(shared.ExitGeneral, "resolve control plane path", err)
	}
	ctrl, err := control.Open(ctx, globalDBPath)
	if err != nil {
		return shared.NewExitError(shared.ExitConfigOrUninit, "open control plane", err)
	}
	defer ctrl.Close()

	if leaseToken != "" {
		if err := verifyWorkstreamLease(ctrl, workstreamID, leaseToken); err != nil {
			return shared.NewExitError(shared.ExitResourceLocked, "lease token rejected", err)
		}
	}

	runnerID := "runner-" + uuid.NewString()[:8]
	if err := ctrl.RegisterRunner(ctx, control.Runner{
		ID: runnerID, PID: os.Getpid(), ProjectPath: project, Status: control.RunnerRunning,
	}); err != nil {
		return shared.NewExitError(shared.ExitGeneral, "register runner", err)
	}

	logger := steroidslog.WithRunner(steroidslog.New(steroidslog.FromEnv()), runnerID)
	if parallelSessionID != "" {
		logger = steroidslog.WithSession(logger, parallelSessionID)
	}

	heartbeat := control.NewHeartbeatLoop(ctrl, runnerID, 0, logger)
	heartbeat.Start(ctx)
	defer heartbeat.Stop(context.Background())

	registry := agentset.NewRegistry()
	eng := orchestrator.NewEngine(st, registry)
	eng.CoderProviderName = agentset.DefaultProviderName
	eng.ReviewerProviderName = agentset.DefaultProviderName
	eng.CoordinatorProviderName = agentset.DefaultProviderName

	git := gitutil.New(gitutil.NewExecRunner(), project)
	if branch != "" {
		if _, err := git.Checkout(ctx, branch); err != nil {
			return shared.NewExitError(shared.ExitGeneral, "checkout workstream branch", err)
		}
	}

	sections := splitSectionIDs(sectionIDs)
	ticks := 0
	for {
		handled, taskID, action, err := tickAcrossSections(ctx, eng, git, logger, heartbeat, sections)
		if err != nil {
			return shared.NewExitError(shared.ExitGeneral, "run loop tick", err)
		}
		if !handled {
			break
		}
		ticks++
		logger.Info("tick complete", slog.String("task_id", taskID), slog.String("action", action))
	}

	if shared.GetJSON() {
		return shared.EmitJSONResult(map[string]any{"runner_id": runnerID, "ticks": ticks})
	}
	fmt.Printf("runner %s: %d tick(s), no eligible work remaining\n", runnerID, ticks)
	return nil
}

// verifyWorkstreamLease rejects a lease token with a bad signature, an
// expired lifetime, or a workstream id other than workstreamID, before this
// process touches the task store. It does not read the workstream row, so a
// token whose claim_generation has since moved on still passes; the fenced
// store writes are what catch that case.
func verifyWorkstreamLease(ctrl *control.Store, workstreamID, leaseToken string) error {
	claims, err := ctrl.VerifyLeaseToken(leaseToken)
	if err != nil {
		return err
	}
	if claims.WorkstreamID != workstreamID {
		return fmt.Errorf("lease token is for workstream %s, not %s", claims.WorkstreamID, workstreamID)
	}
	return nil
}

func tickAcrossSections(ctx context.Context, eng *orchestrator.Engine, git *gitutil.Client, logger *slog.Logger, heartbeat *control.HeartbeatLoop, sections []string) (bool, string, string, error) {
	if len(sections) == 0 {
		result, err := runloop.Tick(ctx, eng, git, logger, runloop.Options{})
		if err != nil || !result.Handled {
			return false, "", "", err
		}
		heartbeat.SetCurrentTask(result.TaskID)
		return true, result.TaskID, result.Action, nil
	}

	for _, sectionID := range sections {
		result, err := runloop.Tick(ctx, eng, git, logger, runloop.Options{SectionFilter: sectionID})
		if err != nil {
			return false, "", "", err
		}
		if result.Handled {
			heartbeat.SetCurrentTask(result.TaskID)
			return true, result.TaskID, result.Action, nil
		}
	}
	return false, "", "", nil
}

func splitSectionIDs(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func workspaceRootDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return home + "/.steroids/workspace", nil
}
