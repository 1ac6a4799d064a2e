package control

import (
	"context"
	"database/sql"
	"fmt"

	steroidserrors "github.com/steroids-run/steroids/internal/errors"
)

// CreateSession inserts a new parallel session, enforcing the at-most-one-
// non-terminal-session-per-repo invariant at insert time by checking inside
// the same transaction that creates the row.
func (s *Store) CreateSession(ctx context.Context, sess ParallelSession) error {
	if sess.Status == "" {
		sess.Status = SessionRunning
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("create session: begin tx: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `SELECT status FROM parallel_sessions WHERE repo_id = ?`, sess.RepoID)
	if err != nil {
		return fmt.Errorf("create session: check existing: %w", err)
	}
	var existing []string
	for rows.Next() {
		var st string
		if err := rows.Scan(&st); err != nil {
			rows.Close()
			return fmt.Errorf("create session: scan existing: %w", err)
		}
		existing = append(existing, st)
	}
	rows.Close()
	for _, st := range existing {
		if !SessionStatus(st).Terminal() {
			return &steroidserrors.ValidationError{
				Field:   "repo_id",
				Message: fmt.Sprintf("repo %s already has a non-terminal session (status %s)", sess.RepoID, st),
			}
		}
	}

	now := nowRFC3339()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO parallel_sessions (id, project_path, repo_id, status, created_at, completed_at)
		 VALUES (?, ?, ?, ?, ?, NULL)`,
		sess.ID, sess.ProjectPath, sess.RepoID, string(sess.Status), now)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return tx.Commit()
}

// GetSession fetches a session by id.
func (s *Store) GetSession(ctx context.Context, id string) (ParallelSession, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, project_path, repo_id, status, created_at, completed_at FROM parallel_sessions WHERE id = ?`, id)
	return scanSession(row)
}

func scanSession(row *sql.Row) (ParallelSession, error) {
	var sess ParallelSession
	var status, created string
	var completed sql.NullString
	if err := row.Scan(&sess.ID, &sess.ProjectPath, &sess.RepoID, &status, &created, &completed); err != nil {
		if err == sql.ErrNoRows {
			return ParallelSession{}, &steroidserrors.NotFoundError{Resource: "session", ID: ""}
		}
		return ParallelSession{}, fmt.Errorf("get session: %w", err)
	}
	sess.Status = SessionStatus(status)
	sess.CreatedAt = parseTime(created)
	sess.CompletedAt = parseOptionalTime(completed)
	return sess, nil
}

// TransitionSession moves a session to a new status, stamping completed_at
// when the new status is terminal.
func (s *Store) TransitionSession(ctx context.Context, id string, newStatus SessionStatus) error {
	var completedAt interface{}
	if newStatus.Terminal() {
		completedAt = nowRFC3339()
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE parallel_sessions SET status = ?, completed_at = COALESCE(?, completed_at) WHERE id = ?`,
		string(newStatus), completedAt, id)
	if err != nil {
		return fmt.Errorf("transition session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &steroidserrors.NotFoundError{Resource: "session", ID: id}
	}
	return nil
}

// ActiveSessionForRepo returns the non-terminal session for repoID, if any.
func (s *Store) ActiveSessionForRepo(ctx context.Context, repoID string) (*ParallelSession, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, project_path, repo_id, status, created_at, completed_at FROM parallel_sessions WHERE repo_id = ?`, repoID)
	if err != nil {
		return nil, fmt.Errorf("active session for repo: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var sess ParallelSession
		var status, created string
		var completed sql.NullString
		if err := rows.Scan(&sess.ID, &sess.ProjectPath, &sess.RepoID, &status, &created, &completed); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sess.Status = SessionStatus(status)
		sess.CreatedAt = parseTime(created)
		sess.CompletedAt = parseOptionalTime(completed)
		if !sess.Status.Terminal() {
			return &sess, nil
		}
	}
	return nil, rows.Err()
}
