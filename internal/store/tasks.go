package store

import (
	"context"
	"database/sql"
	"fmt"

	steroidserrors "github.com/steroids-run/steroids/internal/errors"
)

// CreateTask inserts a new task along with its initial audit entry, both in
// a single transaction so a crash between the two never leaves a task
// without history.
func (s *Store) CreateTask(ctx context.Context, t Task, actor string) error {
	if t.Status == "" {
		t.Status = StatusPending
	}
	now := nowRFC3339()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("create task: begin tx: %w", err)
	}
	defer tx.Rollback()

	var sectionID interface{}
	if t.SectionID != "" {
		sectionID = t.SectionID
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO tasks (id, title, status, section_id, spec_path, rejection_count, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, 0, ?, ?)`,
		t.ID, t.Title, string(t.Status), sectionID, t.SpecPath, now, now)
	if err != nil {
		return fmt.Errorf("create task: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO audit_entries (task_id, prior_status, new_status, actor, notes, commit_id, created_at)
		 VALUES (?, '', ?, ?, 'created', '', ?)`,
		t.ID, string(t.Status), actor, now)
	if err != nil {
		return fmt.Errorf("create task: initial audit: %w", err)
	}

	return tx.Commit()
}

// GetTask fetches a task by exact id.
func (s *Store) GetTask(ctx context.Context, id string) (Task, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, status, COALESCE(section_id, ''), COALESCE(spec_path, ''), rejection_count, created_at, updated_at
		 FROM tasks WHERE id = ?`, id)
	return scanTask(row)
}

func scanTask(row *sql.Row) (Task, error) {
	var t Task
	var status, created, updated string
	if err := row.Scan(&t.ID, &t.Title, &status, &t.SectionID, &t.SpecPath, &t.RejectionCount, &created, &updated); err != nil {
		if err == sql.ErrNoRows {
			return Task{}, &steroidserrors.NotFoundError{Resource: "task", ID: ""}
		}
		return Task{}, fmt.Errorf("get task: %w", err)
	}
	t.Status = TaskStatus(status)
	t.CreatedAt = parseTime(created)
	t.UpdatedAt = parseTime(updated)
	return t, nil
}

// ListTasks returns every task, optionally filtered by section id.
func (s *Store) ListTasks(ctx context.Context, sectionID string) ([]Task, error) {
	var rows *sql.Rows
	var err error
	if sectionID != "" {
		rows, err = s.db.QueryContext(ctx,
			`SELECT id, title, status, COALESCE(section_id, ''), COALESCE(spec_path, ''), rejection_count, created_at, updated_at
			 FROM tasks WHERE section_id = ? ORDER BY created_at`, sectionID)
	} else {
		rows, err = s.db.QueryContext(ctx,
			`SELECT id, title, status, COALESCE(section_id, ''), COALESCE(spec_path, ''), rejection_count, created_at, updated_at
			 FROM tasks ORDER BY created_at`)
	}
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var out []Task
	for rows.Next() {
		var t Task
		var status, created, updated string
		if err := rows.Scan(&t.ID, &t.Title, &status, &t.SectionID, &t.SpecPath, &t.RejectionCount, &created, &updated); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		t.Status = TaskStatus(status)
		t.CreatedAt = parseTime(created)
		t.UpdatedAt = parseTime(updated)
		out = append(out, t)
	}
	return out, rows.Err()
}

// TransitionOptions carries the details of a status transition beyond the
// bare prior/new status pair.
type TransitionOptions struct {
	Actor    string
	Notes    string
	CommitID string
	// IncrementRejection, when true, atomically bumps the task's rejection
	// counter as part of this same transition (used for review->in_progress).
	IncrementRejection bool
}

// TransitionTask moves a task to a new status, appending an audit entry in
// the same transaction and, when requested, atomically incrementing the
// rejection counter. The counter only ever increases, and only when
// opts.IncrementRejection is set; the prior status is not checked.
func (s *Store) TransitionTask(ctx context.Context, taskID string, newStatus TaskStatus, opts TransitionOptions) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("transition task: begin tx: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `SELECT status FROM tasks WHERE id = ?`, taskID)
	var priorStatus string
	if err := row.Scan(&priorStatus); err != nil {
		if err == sql.ErrNoRows {
			return &steroidserrors.NotFoundError{Resource: "task", ID: taskID}
		}
		return fmt.Errorf("transition task: %w", err)
	}

	now := nowRFC3339()
	if opts.IncrementRejection {
		_, err = tx.ExecContext(ctx,
			`UPDATE tasks SET status = ?, rejection_count = rejection_count + 1, updated_at = ? WHERE id = ?`,
			string(newStatus), now, taskID)
	} else {
		_, err = tx.ExecContext(ctx,
			`UPDATE tasks SET status = ?, updated_at = ? WHERE id = ?`,
			string(newStatus), now, taskID)
	}
	if err != nil {
		return fmt.Errorf("transition task: update: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO audit_entries (task_id, prior_status, new_status, actor, notes, commit_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		taskID, priorStatus, string(newStatus), opts.Actor, opts.Notes, opts.CommitID, now)
	if err != nil {
		return fmt.Errorf("transition task: audit: %w", err)
	}

	return tx.Commit()
}

// DeleteTask removes a task and its invocation/dispute/audit history in a
// single transaction.
func (s *Store) DeleteTask(ctx context.Context, taskID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("delete task: begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"task_invocations", "disputes", "audit_entries"} {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE task_id = ?`, table), taskID); err != nil {
			return fmt.Errorf("delete task: %s: %w", table, err)
		}
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, taskID)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &steroidserrors.NotFoundError{Resource: "task", ID: taskID}
	}
	return tx.Commit()
}
