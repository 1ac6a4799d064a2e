package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/steroids-run/steroids/internal/control"
	"github.com/steroids-run/steroids/internal/lifecycle"
)

// Launched describes one workstream this scheduling pass created, row and
// all, ready for its spawned child process to pick up.
type Launched struct {
	Workstream control.Workstream
	ClonePath  string
	PID        int
}

// Scheduler wires a project's task store, the host-wide control plane, a
// git runner, and a process spawner together to plan and launch
// workstreams for one session.
type Scheduler struct {
	Control *control.Store
	Git     gitRunner
	Spawner *lifecycle.Spawner
	Logger  *slog.Logger
}

// NewScheduler builds a Scheduler with a default spawner and slog.Default()
// as its logger.
func NewScheduler(ctrl *control.Store, git gitRunner) *Scheduler {
	return &Scheduler{
		Control: ctrl,
		Git:     git,
		Spawner: lifecycle.NewSpawner(),
		Logger:  slog.Default(),
	}
}

// Run plans workstreams from st per cfg.Strategy, clips the plan to
// cfg.maxClones preserving section order, and launches each survivor:
// workspace clone, optional hydration, control-plane row plus lease claim,
// detached child process. It returns one Launched entry per successfully
// started workstream; a failure partway through stops the pass and returns
// everything launched so far alongside the error, since already-launched
// workstreams are independent and should keep running.
func (sch *Scheduler) Run(ctx context.Context, st sectionStore, cfg Config) ([]Launched, error) {
	if cfg.AllowSharedMutableDeps {
		return nil, ErrSharedMutableDeps
	}

	plans, err := PlanWorkstreams(ctx, st, cfg.Strategy)
	if err != nil {
		return nil, err
	}
	if len(plans) > cfg.maxClones() {
		plans = plans[:cfg.maxClones()]
	}

	var launched []Launched
	for _, plan := range plans {
		l, err := sch.launch(ctx, plan, cfg)
		if err != nil {
			return launched, fmt.Errorf("launch workstream for sections %v: %w", plan.SectionIDs, err)
		}
		launched = append(launched, l)
	}
	return launched, nil
}

func (sch *Scheduler) launch(ctx context.Context, plan WorkstreamPlan, cfg Config) (Launched, error) {
	id := plan.ID
	if id == "" {
		id = uuid.NewString()
	}
	branch := WorkstreamBranch(id)

	_, clonePath, err := CreateWorkspaceClone(ctx, sch.Git, cfg.ProjectPath, cfg.WorkspaceRoot, id)
	if err != nil {
		return Launched{}, err
	}

	if err := RunHydrationCommand(ctx, clonePath, cfg.HydrateCommand); err != nil {
		return Launched{}, err
	}

	w := control.Workstream{
		ID:         id,
		SessionID:  cfg.SessionID,
		Branch:     branch,
		SectionIDs: plan.SectionIDs,
		ClonePath:  clonePath,
		Status:     control.WorkstreamRunning,
	}
	if err := sch.Control.CreateWorkstream(ctx, w, cfg.RunnerID); err != nil {
		return Launched{}, fmt.Errorf("create workstream row: %w", err)
	}
	created, err := sch.Control.GetWorkstream(ctx, id)
	if err != nil {
		return Launched{}, fmt.Errorf("reload workstream row: %w", err)
	}

	logPath := ""
	if cfg.DaemonLogDir != "" {
		logPath = filepath.Join(cfg.DaemonLogDir, id+".log")
	}

	token, err := sch.Control.IssueLeaseToken(control.LeaseFence{
		WorkstreamID: id, Status: created.Status, ClaimGeneration: created.ClaimGeneration,
	}, cfg.RunnerID, DefaultLeaseDuration)
	if err != nil {
		return Launched{}, fmt.Errorf("issue lease token: %w", err)
	}

	args := []string{
		"runners", "start",
		"--project", clonePath,
		"--branch", branch,
		"--parallel-session-id", cfg.SessionID,
		"--section-ids", strings.Join(plan.SectionIDs, ","),
		"--workstream-id", id,
		"--lease-token", token,
	}
	pid, err := sch.Spawner.SpawnDetached(cfg.Binary, args, logPath)
	if err != nil {
		return Launched{}, fmt.Errorf("spawn workstream process: %w", err)
	}

	sch.Logger.Info("workstream launched",
		slog.String("workstream_id", id), slog.String("branch", branch),
		slog.String("clone_path", clonePath), slog.Int("pid", pid))

	return Launched{Workstream: created, ClonePath: clonePath, PID: pid}, nil
}
