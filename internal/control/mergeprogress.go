package control

import (
	"context"
	"database/sql"
	"fmt"
)

// UpsertMergeProgress records (or overwrites) the checkpoint for one
// cherry-pick step, fenced implicitly by the merge lock epoch the caller
// must already hold (checked by the merge engine, not this store).
func (s *Store) UpsertMergeProgress(ctx context.Context, p MergeProgress) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO merge_progress (session_id, workstream_id, position, source_commit, status, applied_commit, conflict_task)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(session_id, workstream_id, position) DO UPDATE SET
			status=excluded.status, applied_commit=excluded.applied_commit, conflict_task=excluded.conflict_task`,
		p.SessionID, p.WorkstreamID, p.Position, p.SourceCommit, string(p.Status), p.AppliedCommit, p.ConflictTask)
	if err != nil {
		return fmt.Errorf("upsert merge progress: %w", err)
	}
	return nil
}

// ListMergeProgress returns every checkpoint recorded for a workstream,
// ordered by position, so a resumed merge can skip already-applied commits.
func (s *Store) ListMergeProgress(ctx context.Context, sessionID, workstreamID string) ([]MergeProgress, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, workstream_id, position, source_commit, status, COALESCE(applied_commit,''), COALESCE(conflict_task,'')
		 FROM merge_progress WHERE session_id = ? AND workstream_id = ? ORDER BY position`, sessionID, workstreamID)
	if err != nil {
		return nil, fmt.Errorf("list merge progress: %w", err)
	}
	defer rows.Close()

	var out []MergeProgress
	for rows.Next() {
		var p MergeProgress
		var status string
		if err := rows.Scan(&p.SessionID, &p.WorkstreamID, &p.Position, &p.SourceCommit, &status, &p.AppliedCommit, &p.ConflictTask); err != nil {
			return nil, fmt.Errorf("scan merge progress: %w", err)
		}
		p.Status = MergeCommitStatus(status)
		out = append(out, p)
	}
	return out, rows.Err()
}

// GetMergeProgress fetches a single checkpoint, if recorded.
func (s *Store) GetMergeProgress(ctx context.Context, sessionID, workstreamID string, position int) (*MergeProgress, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT session_id, workstream_id, position, source_commit, status, COALESCE(applied_commit,''), COALESCE(conflict_task,'')
		 FROM merge_progress WHERE session_id = ? AND workstream_id = ? AND position = ?`, sessionID, workstreamID, position)
	var p MergeProgress
	var status string
	if err := row.Scan(&p.SessionID, &p.WorkstreamID, &p.Position, &p.SourceCommit, &status, &p.AppliedCommit, &p.ConflictTask); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get merge progress: %w", err)
	}
	p.Status = MergeCommitStatus(status)
	return &p, nil
}
