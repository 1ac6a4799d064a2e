package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// CreateInvocation records the start of a provider invocation.
func (s *Store) CreateInvocation(ctx context.Context, inv TaskInvocation) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO task_invocations (id, task_id, role, started_at, completed_at, status, response, error, success, timed_out)
		 VALUES (?, ?, ?, ?, NULL, ?, '', '', 0, 0)`,
		inv.ID, inv.TaskID, inv.Role, inv.StartedAt.UTC().Format(time.RFC3339Nano), string(inv.Status))
	if err != nil {
		return fmt.Errorf("create invocation: %w", err)
	}
	return nil
}

// CompleteInvocation finalizes an invocation row with its terminal outcome.
func (s *Store) CompleteInvocation(ctx context.Context, id string, status InvocationStatus, response, errText string, success, timedOut bool) error {
	now := nowRFC3339()
	res, err := s.db.ExecContext(ctx,
		`UPDATE task_invocations SET completed_at = ?, status = ?, response = ?, error = ?, success = ?, timed_out = ?
		 WHERE id = ?`,
		now, string(status), response, errText, boolToInt(success), boolToInt(timedOut), id)
	if err != nil {
		return fmt.Errorf("complete invocation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("complete invocation: no such invocation %s", id)
	}
	return nil
}

// ListInvocations returns every invocation recorded for a task, oldest first.
func (s *Store) ListInvocations(ctx context.Context, taskID string) ([]TaskInvocation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, task_id, role, started_at, completed_at, status, COALESCE(response,''), COALESCE(error,''), success, timed_out
		 FROM task_invocations WHERE task_id = ? ORDER BY started_at`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list invocations: %w", err)
	}
	defer rows.Close()

	var out []TaskInvocation
	for rows.Next() {
		var inv TaskInvocation
		var started string
		var completed sql.NullString
		var status string
		var success, timedOut int
		if err := rows.Scan(&inv.ID, &inv.TaskID, &inv.Role, &started, &completed, &status, &inv.Response, &inv.ErrorText, &success, &timedOut); err != nil {
			return nil, fmt.Errorf("scan invocation: %w", err)
		}
		inv.StartedAt = parseTime(started)
		if completed.Valid {
			t := parseTime(completed.String)
			inv.CompletedAt = &t
		}
		inv.Status = InvocationStatus(status)
		inv.Success = success != 0
		inv.TimedOut = timedOut != 0
		out = append(out, inv)
	}
	return out, rows.Err()
}
