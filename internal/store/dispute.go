package store

import (
	"context"
	"database/sql"
	"fmt"

	steroidserrors "github.com/steroids-run/steroids/internal/errors"
)

// CreateDispute inserts a dispute. A task may have at most one open
// non-minor dispute at a time; a second one is rejected.
func (s *Store) CreateDispute(ctx context.Context, d Dispute) error {
	if d.Type != DisputeMinor {
		var count int
		err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM disputes WHERE task_id = ? AND status = ? AND type != ?`,
			d.TaskID, DisputeOpen, DisputeMinor).Scan(&count)
		if err != nil {
			return fmt.Errorf("create dispute: check existing: %w", err)
		}
		if count > 0 {
			return &steroidserrors.ValidationError{
				Field:   "dispute",
				Message: fmt.Sprintf("task %s already has an open non-minor dispute", d.TaskID),
			}
		}
	}

	if d.Status == "" {
		d.Status = DisputeOpen
	}
	now := nowRFC3339()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO disputes (id, task_id, type, status, reason_code, coder_position, reviewer_position,
			resolution_decision, resolution_notes, creator, resolver, created_at, resolved_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)`,
		d.ID, d.TaskID, string(d.Type), string(d.Status), d.ReasonCode, d.CoderPosition, d.ReviewerPosition,
		d.ResolutionDecision, d.ResolutionNotes, d.Creator, d.Resolver, now)
	if err != nil {
		return fmt.Errorf("create dispute: %w", err)
	}
	return nil
}

// ResolveDispute marks a dispute resolved with a decision and notes.
func (s *Store) ResolveDispute(ctx context.Context, id, decision, notes, resolver string) error {
	now := nowRFC3339()
	res, err := s.db.ExecContext(ctx,
		`UPDATE disputes SET status = ?, resolution_decision = ?, resolution_notes = ?, resolver = ?, resolved_at = ?
		 WHERE id = ?`, DisputeResolved, decision, notes, resolver, now, id)
	if err != nil {
		return fmt.Errorf("resolve dispute: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &steroidserrors.NotFoundError{Resource: "dispute", ID: id}
	}
	return nil
}

// ListDisputes returns disputes for a task, optionally filtered by status.
func (s *Store) ListDisputes(ctx context.Context, taskID string, status DisputeStatus) ([]Dispute, error) {
	var rows *sql.Rows
	var err error
	if status != "" {
		rows, err = s.db.QueryContext(ctx,
			`SELECT id, task_id, type, status, COALESCE(reason_code,''), COALESCE(coder_position,''),
				COALESCE(reviewer_position,''), COALESCE(resolution_decision,''), COALESCE(resolution_notes,''),
				COALESCE(creator,''), COALESCE(resolver,''), created_at, resolved_at
			 FROM disputes WHERE task_id = ? AND status = ? ORDER BY created_at`, taskID, status)
	} else {
		rows, err = s.db.QueryContext(ctx,
			`SELECT id, task_id, type, status, COALESCE(reason_code,''), COALESCE(coder_position,''),
				COALESCE(reviewer_position,''), COALESCE(resolution_decision,''), COALESCE(resolution_notes,''),
				COALESCE(creator,''), COALESCE(resolver,''), created_at, resolved_at
			 FROM disputes WHERE task_id = ? ORDER BY created_at`, taskID)
	}
	if err != nil {
		return nil, fmt.Errorf("list disputes: %w", err)
	}
	defer rows.Close()

	var out []Dispute
	for rows.Next() {
		var d Dispute
		var typ, stat, created string
		var resolved sql.NullString
		if err := rows.Scan(&d.ID, &d.TaskID, &typ, &stat, &d.ReasonCode, &d.CoderPosition,
			&d.ReviewerPosition, &d.ResolutionDecision, &d.ResolutionNotes, &d.Creator, &d.Resolver,
			&created, &resolved); err != nil {
			return nil, fmt.Errorf("scan dispute: %w", err)
		}
		d.Type = DisputeType(typ)
		d.Status = DisputeStatus(stat)
		d.CreatedAt = parseTime(created)
		if resolved.Valid {
			t := parseTime(resolved.String)
			d.ResolvedAt = &t
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// CountOpenDisputes counts open disputes of a given type for a task.
func (s *Store) CountOpenDisputes(ctx context.Context, taskID string, typ DisputeType) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM disputes WHERE task_id = ? AND status = ? AND type = ?`,
		taskID, DisputeOpen, typ).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count open disputes: %w", err)
	}
	return count, nil
}
