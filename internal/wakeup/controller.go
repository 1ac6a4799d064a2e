package wakeup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/steroids-run/steroids/internal/store"
)

// Scan walks every registered project and starts a runner for any that
// are initialized and eligible: directory and task store present, no
// active runner, and at least one task not yet completed/skipped/failed. Stale global
// runner rows are purged first.
func (c *Controller) Scan(ctx context.Context, opts Options) (Result, error) {
	projectsFile := opts.ProjectsFile
	if projectsFile == "" {
		var err error
		projectsFile, err = DefaultProjectsFile()
		if err != nil {
			return Result{}, err
		}
	}

	purged, err := c.Control.PurgeStaleRunners(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("purge stale runners: %w", err)
	}

	projects, err := LoadProjects(projectsFile)
	if err != nil {
		return Result{}, err
	}

	result := Result{PurgedStaleRunners: purged}
	for _, project := range projects {
		pr, err := c.scanProject(ctx, project, opts)
		if err != nil {
			return result, fmt.Errorf("scan project %s: %w", project, err)
		}
		result.Projects = append(result.Projects, pr)
	}
	return result, nil
}

func (c *Controller) scanProject(ctx context.Context, project string, opts Options) (ProjectResult, error) {
	if info, err := os.Stat(project); err != nil || !info.IsDir() {
		return ProjectResult{ProjectPath: project, Outcome: OutcomeSkippedNotFound}, nil
	}

	dbPath := filepath.Join(project, ".steroids", "steroids.db")
	if _, err := os.Stat(dbPath); err != nil {
		return ProjectResult{ProjectPath: project, Outcome: OutcomeSkippedNotFound}, nil
	}

	active, err := c.Control.HasActiveRunner(ctx, project)
	if err != nil {
		return ProjectResult{}, fmt.Errorf("check active runner: %w", err)
	}
	if active {
		return ProjectResult{ProjectPath: project, Outcome: OutcomeSkippedActive}, nil
	}

	eligible, err := c.countEligibleTasks(ctx, dbPath)
	if err != nil {
		return ProjectResult{}, fmt.Errorf("count eligible tasks: %w", err)
	}
	if eligible == 0 {
		return ProjectResult{ProjectPath: project, Outcome: OutcomeSkippedNoWork}, nil
	}

	if opts.DryRun {
		return ProjectResult{ProjectPath: project, Outcome: OutcomeWouldStart}, nil
	}

	pid, err := c.startRunner(ctx, project, opts)
	if err != nil {
		return ProjectResult{}, fmt.Errorf("start runner: %w", err)
	}
	return ProjectResult{ProjectPath: project, Outcome: OutcomeStarted, PID: pid}, nil
}

// countEligibleTasks opens the project's task store and counts tasks not
// in a status the spec treats as "done with no further runner needed":
// completed, skipped, or failed. Everything else (pending, in_progress,
// review, disputed, partial) still wants a runner.
func (c *Controller) countEligibleTasks(ctx context.Context, dbPath string) (int, error) {
	st, err := store.Open(ctx, dbPath)
	if err != nil {
		return 0, fmt.Errorf("open task store %s: %w", dbPath, err)
	}
	defer st.Close()

	tasks, err := st.ListTasks(ctx, "")
	if err != nil {
		return 0, fmt.Errorf("list tasks: %w", err)
	}

	count := 0
	for _, t := range tasks {
		switch t.Status {
		case store.StatusCompleted, store.StatusSkipped, store.StatusFailed:
			continue
		default:
			count++
		}
	}
	return count, nil
}

func (c *Controller) startRunner(ctx context.Context, project string, opts Options) (int, error) {
	logPath := filepath.Join(opts.DaemonLogDir, "daemon-"+uuid.NewString()+".log")
	args := []string{"runners", "start", "--project", project}
	pid, err := c.Spawner.SpawnDetached(opts.Binary, args, logPath)
	if err != nil {
		return 0, err
	}
	if c.Metrics != nil {
		c.Metrics.RecordRunnerSpawned(ctx, project)
	}
	return pid, nil
}
