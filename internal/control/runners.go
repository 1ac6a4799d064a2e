package control

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	steroidserrors "github.com/steroids-run/steroids/internal/errors"
)

// RegisterRunner inserts a new runner row.
func (s *Store) RegisterRunner(ctx context.Context, r Runner) error {
	now := nowRFC3339()
	if r.Status == "" {
		r.Status = RunnerRunning
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runners (id, pid, project_path, status, current_task, started_at, heartbeat_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.PID, r.ProjectPath, string(r.Status), r.CurrentTask, now, now)
	if err != nil {
		return fmt.Errorf("register runner: %w", err)
	}
	return nil
}

// Heartbeat refreshes a runner's heartbeat timestamp and optionally its
// current task and status.
func (s *Store) Heartbeat(ctx context.Context, runnerID string, status RunnerStatus, currentTask string) error {
	now := nowRFC3339()
	res, err := s.db.ExecContext(ctx,
		`UPDATE runners SET heartbeat_at = ?, status = ?, current_task = ? WHERE id = ?`,
		now, string(status), currentTask, runnerID)
	if err != nil {
		return fmt.Errorf("heartbeat: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &steroidserrors.NotFoundError{Resource: "runner", ID: runnerID}
	}
	return nil
}

// StopRunner marks a runner stopped.
func (s *Store) StopRunner(ctx context.Context, runnerID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runners SET status = ?, heartbeat_at = ? WHERE id = ?`,
		string(RunnerStopped), nowRFC3339(), runnerID)
	if err != nil {
		return fmt.Errorf("stop runner: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &steroidserrors.NotFoundError{Resource: "runner", ID: runnerID}
	}
	return nil
}

// GetRunner fetches a runner by id.
func (s *Store) GetRunner(ctx context.Context, id string) (Runner, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, pid, project_path, status, COALESCE(current_task, ''), started_at, heartbeat_at
		 FROM runners WHERE id = ?`, id)
	return scanRunner(row)
}

func scanRunner(row *sql.Row) (Runner, error) {
	var r Runner
	var status, started, heartbeat string
	if err := row.Scan(&r.ID, &r.PID, &r.ProjectPath, &status, &r.CurrentTask, &started, &heartbeat); err != nil {
		if err == sql.ErrNoRows {
			return Runner{}, &steroidserrors.NotFoundError{Resource: "runner", ID: ""}
		}
		return Runner{}, fmt.Errorf("get runner: %w", err)
	}
	r.Status = RunnerStatus(status)
	r.StartedAt = parseTime(started)
	r.Heartbeat = parseTime(heartbeat)
	return r, nil
}

// ListRunnersForProject returns every runner row recorded for a project
// path, most recently heartbeated first.
func (s *Store) ListRunnersForProject(ctx context.Context, projectPath string) ([]Runner, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, pid, project_path, status, COALESCE(current_task, ''), started_at, heartbeat_at
		 FROM runners WHERE project_path = ? ORDER BY heartbeat_at DESC`, projectPath)
	if err != nil {
		return nil, fmt.Errorf("list runners: %w", err)
	}
	defer rows.Close()

	var out []Runner
	for rows.Next() {
		var r Runner
		var status, started, heartbeat string
		if err := rows.Scan(&r.ID, &r.PID, &r.ProjectPath, &status, &r.CurrentTask, &started, &heartbeat); err != nil {
			return nil, fmt.Errorf("scan runner: %w", err)
		}
		r.Status = RunnerStatus(status)
		r.StartedAt = parseTime(started)
		r.Heartbeat = parseTime(heartbeat)
		out = append(out, r)
	}
	return out, rows.Err()
}

// HasActiveRunner reports whether any runner for projectPath is currently
// active (see Runner.Active).
func (s *Store) HasActiveRunner(ctx context.Context, projectPath string) (bool, error) {
	runners, err := s.ListRunnersForProject(ctx, projectPath)
	if err != nil {
		return false, err
	}
	now := time.Now()
	for _, r := range runners {
		if r.Active(now) {
			return true, nil
		}
	}
	return false, nil
}

// PurgeStaleRunners marks as stopped every runner whose heartbeat predates
// the active window, returning the number of rows touched.
func (s *Store) PurgeStaleRunners(ctx context.Context) (int64, error) {
	cutoff := time.Now().Add(-activeHeartbeatWindow).UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx,
		`UPDATE runners SET status = ? WHERE status != ? AND heartbeat_at < ?`,
		string(RunnerStopped), string(RunnerStopped), cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge stale runners: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
