package control

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	steroidserrors "github.com/steroids-run/steroids/internal/errors"
)

const initialLeaseDuration = 120 * time.Second

// CreateWorkstream inserts a workstream row and immediately claims its
// initial lease: claim_generation goes from 0 to 1 with an expiry
// initialLeaseDuration in the future.
func (s *Store) CreateWorkstream(ctx context.Context, w Workstream, runnerID string) error {
	if w.Status == "" {
		w.Status = WorkstreamRunning
	}
	expires := time.Now().Add(initialLeaseDuration).UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO workstreams (id, session_id, branch, section_ids, clone_path, status, runner_id,
			claim_generation, lease_expires_at, sealed_base_sha, sealed_head_sha, sealed_commit_ids,
			completion_order, conflict_attempts, recovery_attempts, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, 1, ?, '', '', '', NULL, 0, 0, NULL)`,
		w.ID, w.SessionID, w.Branch, strings.Join(w.SectionIDs, ","), w.ClonePath, string(w.Status),
		runnerID, expires)
	if err != nil {
		return fmt.Errorf("create workstream: %w", err)
	}
	return nil
}

// GetWorkstream fetches a workstream by id.
func (s *Store) GetWorkstream(ctx context.Context, id string) (Workstream, error) {
	row := s.db.QueryRowContext(ctx, workstreamSelect+` WHERE id = ?`, id)
	return scanWorkstream(row)
}

const workstreamSelect = `SELECT id, session_id, branch, section_ids, clone_path, status, COALESCE(runner_id, ''),
	claim_generation, COALESCE(lease_expires_at, ''), COALESCE(sealed_base_sha, ''), COALESCE(sealed_head_sha, ''),
	COALESCE(sealed_commit_ids, ''), completion_order, conflict_attempts, recovery_attempts, completed_at
	FROM workstreams`

func scanWorkstream(row *sql.Row) (Workstream, error) {
	var w Workstream
	var status, leaseExpires, sealedCommits, sectionIDs string
	var completionOrder sql.NullInt64
	var completedAt sql.NullString
	if err := row.Scan(&w.ID, &w.SessionID, &w.Branch, &sectionIDs, &w.ClonePath, &status, &w.RunnerID,
		&w.ClaimGeneration, &leaseExpires, &w.SealedBaseSHA, &w.SealedHeadSHA, &sealedCommits,
		&completionOrder, &w.ConflictAttempts, &w.RecoveryAttempts, &completedAt); err != nil {
		if err == sql.ErrNoRows {
			return Workstream{}, &steroidserrors.NotFoundError{Resource: "workstream", ID: ""}
		}
		return Workstream{}, fmt.Errorf("get workstream: %w", err)
	}
	w.Status = WorkstreamStatus(status)
	if sectionIDs != "" {
		w.SectionIDs = strings.Split(sectionIDs, ",")
	}
	if sealedCommits != "" {
		w.SealedCommitIDs = strings.Split(sealedCommits, ",")
	}
	if leaseExpires != "" {
		w.LeaseExpiresAt = parseTime(leaseExpires)
	}
	if completionOrder.Valid {
		w.CompletionOrder = int(completionOrder.Int64)
	}
	w.CompletedAt = parseOptionalTime(completedAt)
	return w, nil
}

// ListWorkstreams returns every workstream for a session.
func (s *Store) ListWorkstreams(ctx context.Context, sessionID string) ([]Workstream, error) {
	rows, err := s.db.QueryContext(ctx, workstreamSelect+` WHERE session_id = ? ORDER BY rowid`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list workstreams: %w", err)
	}
	defer rows.Close()

	var out []Workstream
	for rows.Next() {
		var w Workstream
		var status, leaseExpires, sealedCommits, sectionIDs string
		var completionOrder sql.NullInt64
		var completedAt sql.NullString
		if err := rows.Scan(&w.ID, &w.SessionID, &w.Branch, &sectionIDs, &w.ClonePath, &status, &w.RunnerID,
			&w.ClaimGeneration, &leaseExpires, &w.SealedBaseSHA, &w.SealedHeadSHA, &sealedCommits,
			&completionOrder, &w.ConflictAttempts, &w.RecoveryAttempts, &completedAt); err != nil {
			return nil, fmt.Errorf("scan workstream: %w", err)
		}
		w.Status = WorkstreamStatus(status)
		if sectionIDs != "" {
			w.SectionIDs = strings.Split(sectionIDs, ",")
		}
		if sealedCommits != "" {
			w.SealedCommitIDs = strings.Split(sealedCommits, ",")
		}
		if leaseExpires != "" {
			w.LeaseExpiresAt = parseTime(leaseExpires)
		}
		if completionOrder.Valid {
			w.CompletionOrder = int(completionOrder.Int64)
		}
		w.CompletedAt = parseOptionalTime(completedAt)
		out = append(out, w)
	}
	return out, rows.Err()
}

// LeaseFence pins the three columns every workstream mutation must agree
// on before it is allowed to proceed.
type LeaseFence struct {
	WorkstreamID    string
	Status          WorkstreamStatus
	ClaimGeneration int
}

// ErrLeaseFenceLost is returned when a fenced update affects zero rows: the
// caller no longer holds the lease it thought it held.
var ErrLeaseFenceLost = fmt.Errorf("lease fence lost: mutation observed zero rows changed")

// HeartbeatLease refreshes a held lease's expiry, fenced on the lease
// holder's current (status, claim_generation). A stale fence is a no-op
// that returns ErrLeaseFenceLost rather than mutating an unrelated lease.
func (s *Store) HeartbeatLease(ctx context.Context, f LeaseFence, runnerID string, extend time.Duration) error {
	expires := time.Now().Add(extend).UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx,
		`UPDATE workstreams SET lease_expires_at = ? WHERE id = ? AND status = ? AND claim_generation = ? AND runner_id = ?`,
		expires, f.WorkstreamID, string(f.Status), f.ClaimGeneration, runnerID)
	if err != nil {
		return fmt.Errorf("heartbeat lease: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrLeaseFenceLost
	}
	return nil
}

// ClaimExpiredLease transfers ownership of a workstream whose lease has
// expired to a new runner, bumping claim_generation. Fails with
// ErrLeaseFenceLost if the lease is not actually expired or has already
// moved to a different generation (another runner won the race).
func (s *Store) ClaimExpiredLease(ctx context.Context, f LeaseFence, newRunnerID string, leaseDuration time.Duration) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	expires := time.Now().Add(leaseDuration).UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx,
		`UPDATE workstreams SET runner_id = ?, claim_generation = claim_generation + 1, lease_expires_at = ?
		 WHERE id = ? AND status = ? AND claim_generation = ? AND lease_expires_at < ?`,
		newRunnerID, expires, f.WorkstreamID, string(f.Status), f.ClaimGeneration, now)
	if err != nil {
		return fmt.Errorf("claim expired lease: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrLeaseFenceLost
	}
	return nil
}

// SealWorkstream persists the sealed base/head SHAs and commit list for a
// workstream in one fenced update, along with completed_at and
// completion_order.
func (s *Store) SealWorkstream(ctx context.Context, f LeaseFence, baseSHA, headSHA string, commitIDs []string, completionOrder int) error {
	now := nowRFC3339()
	res, err := s.db.ExecContext(ctx,
		`UPDATE workstreams SET sealed_base_sha = ?, sealed_head_sha = ?, sealed_commit_ids = ?,
			completed_at = ?, completion_order = ?
		 WHERE id = ? AND status = ? AND claim_generation = ?`,
		baseSHA, headSHA, strings.Join(commitIDs, ","), now, completionOrder,
		f.WorkstreamID, string(f.Status), f.ClaimGeneration)
	if err != nil {
		return fmt.Errorf("seal workstream: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrLeaseFenceLost
	}
	return nil
}

// TransitionWorkstream moves a workstream to a new status under the fence.
func (s *Store) TransitionWorkstream(ctx context.Context, f LeaseFence, newStatus WorkstreamStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE workstreams SET status = ? WHERE id = ? AND status = ? AND claim_generation = ?`,
		string(newStatus), f.WorkstreamID, string(f.Status), f.ClaimGeneration)
	if err != nil {
		return fmt.Errorf("transition workstream: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrLeaseFenceLost
	}
	return nil
}

// IncrementConflictAttempts bumps a workstream's conflict-attempt counter
// under the fence.
func (s *Store) IncrementConflictAttempts(ctx context.Context, f LeaseFence) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE workstreams SET conflict_attempts = conflict_attempts + 1
		 WHERE id = ? AND status = ? AND claim_generation = ?`,
		f.WorkstreamID, string(f.Status), f.ClaimGeneration)
	if err != nil {
		return fmt.Errorf("increment conflict attempts: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrLeaseFenceLost
	}
	return nil
}
