package store

import (
	"context"
	"fmt"
)

// ListAuditEntries returns the full, insertion-ordered audit trail for a
// task.
func (s *Store) ListAuditEntries(ctx context.Context, taskID string) ([]AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, task_id, prior_status, new_status, actor, COALESCE(notes, ''), COALESCE(commit_id, ''), created_at
		 FROM audit_entries WHERE task_id = ? ORDER BY id`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	var out []AuditEntry
	for rows.Next() {
		var e AuditEntry
		var prior, next, created string
		if err := rows.Scan(&e.ID, &e.TaskID, &prior, &next, &e.Actor, &e.Notes, &e.CommitID, &created); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.PriorStatus = TaskStatus(prior)
		e.NewStatus = TaskStatus(next)
		e.CreatedAt = parseTime(created)
		out = append(out, e)
	}
	return out, rows.Err()
}

// DeriveRejectionHistory projects the audit trail into the ordered list of
// review -> in_progress transitions, 1-based ordinal.
func (s *Store) DeriveRejectionHistory(ctx context.Context, taskID string) ([]RejectionEntry, error) {
	entries, err := s.ListAuditEntries(ctx, taskID)
	if err != nil {
		return nil, err
	}
	var out []RejectionEntry
	ordinal := 0
	for _, e := range entries {
		if e.PriorStatus == StatusReview && e.NewStatus == StatusInProgress {
			ordinal++
			out = append(out, RejectionEntry{
				Ordinal:   ordinal,
				CommitID:  e.CommitID,
				Notes:     e.Notes,
				Actor:     e.Actor,
				CreatedAt: e.CreatedAt,
			})
		}
	}
	return out, nil
}

// RejectionCountMatchesAudit verifies that a task's stored rejection_count
// equals the number of review -> in_progress transitions in its audit
// trail.
func (s *Store) RejectionCountMatchesAudit(ctx context.Context, taskID string) (bool, error) {
	task, err := s.GetTask(ctx, taskID)
	if err != nil {
		return false, err
	}
	history, err := s.DeriveRejectionHistory(ctx, taskID)
	if err != nil {
		return false, err
	}
	return task.RejectionCount == len(history), nil
}
