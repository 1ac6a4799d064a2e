// Package wakeup is the cross-project liveness scanner: on demand (a
// manual trigger or a scheduled cron-style invocation) it walks every
// registered project, decides whether it needs a runner started, and
// spawns one detached if so. It also purges global runner rows whose
// heartbeat has gone stale before each scan, and can watch the project
// registry file for edits so a newly-registered project is picked up
// without waiting for the next scheduled scan.
package wakeup

import (
	"log/slog"

	"github.com/steroids-run/steroids/internal/control"
	"github.com/steroids-run/steroids/internal/lifecycle"
	"github.com/steroids-run/steroids/internal/telemetry"
)

// Outcome is why a project was or wasn't started this scan.
type Outcome string

const (
	OutcomeStarted          Outcome = "started"
	OutcomeWouldStart       Outcome = "would_start"
	OutcomeSkippedNotFound  Outcome = "skipped_not_found"
	OutcomeSkippedActive    Outcome = "skipped_active_runner"
	OutcomeSkippedNoWork    Outcome = "skipped_no_eligible_work"
)

// ProjectResult records the outcome for a single project.
type ProjectResult struct {
	ProjectPath string
	Outcome     Outcome
	PID         int
}

// Result summarizes one full scan.
type Result struct {
	Projects           []ProjectResult
	PurgedStaleRunners int64
}

// Options parameterizes a scan.
type Options struct {
	// ProjectsFile is the path to the project registry (a JSON array of
	// project paths). Defaults to ~/.steroids/projects.json.
	ProjectsFile string

	// Binary is the executable spawned for a project needing a runner.
	// Invoked as "<Binary> runners start --project <path>".
	Binary string

	// DaemonLogDir is where each spawned runner's combined stdout/stderr
	// log file is written.
	DaemonLogDir string

	// DryRun records would_start instead of actually spawning.
	DryRun bool
}

// Controller runs scans against the global control plane.
type Controller struct {
	Control *control.Store
	Spawner *lifecycle.Spawner
	Logger  *slog.Logger

	// Metrics records runner-spawn counters. Nil disables recording.
	Metrics *telemetry.Metrics
}

// NewController builds a Controller with its spawner and logger defaults
// filled in.
func NewController(ctrl *control.Store) *Controller {
	return &Controller{
		Control: ctrl,
		Spawner: lifecycle.NewSpawner(),
		Logger:  slog.Default(),
	}
}
