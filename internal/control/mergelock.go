package control

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	steroidserrors "github.com/steroids-run/steroids/internal/errors"
)

const mergeLockDuration = 120 * time.Minute

// AcquireMergeLock inserts a merge-lock row for a session with a monotonic
// lock_epoch. If a non-expired lock already exists under a different
// runner, the acquisition is refused. If it belongs to runnerID, it is
// refreshed (heartbeat_at and expires_at bumped) rather than re-inserted.
// Returns the epoch the caller must pass as a fence to every subsequent
// merge-state mutation for this session.
func (s *Store) AcquireMergeLock(ctx context.Context, sessionID, runnerID string) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("acquire merge lock: begin tx: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		`SELECT runner_id, lock_epoch, expires_at FROM merge_locks WHERE session_id = ?`, sessionID)
	var existingRunner, expiresAt string
	var epoch int
	err = row.Scan(&existingRunner, &epoch, &expiresAt)
	now := time.Now()

	switch {
	case err == sql.ErrNoRows:
		epoch = 1
		if err := insertMergeLock(ctx, tx, sessionID, runnerID, epoch, now); err != nil {
			return 0, err
		}
	case err != nil:
		return 0, fmt.Errorf("acquire merge lock: %w", err)
	case existingRunner == runnerID:
		if err := refreshMergeLock(ctx, tx, sessionID, runnerID, epoch, now); err != nil {
			return 0, err
		}
	case parseTime(expiresAt).Before(now):
		epoch++
		if err := insertMergeLock(ctx, tx, sessionID, runnerID, epoch, now); err != nil {
			return 0, err
		}
	default:
		return 0, &steroidserrors.ValidationError{
			Field:   "merge_lock",
			Message: fmt.Sprintf("could not acquire merge lock for session %s: held by runner %s until %s", sessionID, existingRunner, expiresAt),
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("acquire merge lock: commit: %w", err)
	}
	return epoch, nil
}

func insertMergeLock(ctx context.Context, tx *sql.Tx, sessionID, runnerID string, epoch int, now time.Time) error {
	nowStr := now.UTC().Format(time.RFC3339Nano)
	expiresStr := now.Add(mergeLockDuration).UTC().Format(time.RFC3339Nano)
	_, err := tx.ExecContext(ctx,
		`INSERT INTO merge_locks (session_id, runner_id, lock_epoch, acquired_at, expires_at, heartbeat_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET runner_id=excluded.runner_id, lock_epoch=excluded.lock_epoch,
			acquired_at=excluded.acquired_at, expires_at=excluded.expires_at, heartbeat_at=excluded.heartbeat_at`,
		sessionID, runnerID, epoch, nowStr, expiresStr, nowStr)
	if err != nil {
		return fmt.Errorf("insert merge lock: %w", err)
	}
	return nil
}

func refreshMergeLock(ctx context.Context, tx *sql.Tx, sessionID, runnerID string, epoch int, now time.Time) error {
	expiresStr := now.Add(mergeLockDuration).UTC().Format(time.RFC3339Nano)
	nowStr := now.UTC().Format(time.RFC3339Nano)
	_, err := tx.ExecContext(ctx,
		`UPDATE merge_locks SET expires_at = ?, heartbeat_at = ? WHERE session_id = ? AND runner_id = ? AND lock_epoch = ?`,
		expiresStr, nowStr, sessionID, runnerID, epoch)
	if err != nil {
		return fmt.Errorf("refresh merge lock: %w", err)
	}
	return nil
}

// HeartbeatMergeLock refreshes a held merge lock's expiry, fenced on the
// epoch the caller believes it holds. A stale epoch makes this a no-op
// that raises ErrLeaseFenceLost.
func (s *Store) HeartbeatMergeLock(ctx context.Context, sessionID, runnerID string, epoch int) error {
	now := time.Now()
	res, err := s.db.ExecContext(ctx,
		`UPDATE merge_locks SET expires_at = ?, heartbeat_at = ?
		 WHERE session_id = ? AND runner_id = ? AND lock_epoch = ?`,
		now.Add(mergeLockDuration).UTC().Format(time.RFC3339Nano), now.UTC().Format(time.RFC3339Nano),
		sessionID, runnerID, epoch)
	if err != nil {
		return fmt.Errorf("heartbeat merge lock: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrLeaseFenceLost
	}
	return nil
}

// ReleaseMergeLock drops the merge-lock row, fenced on epoch.
func (s *Store) ReleaseMergeLock(ctx context.Context, sessionID, runnerID string, epoch int) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM merge_locks WHERE session_id = ? AND runner_id = ? AND lock_epoch = ?`,
		sessionID, runnerID, epoch)
	if err != nil {
		return fmt.Errorf("release merge lock: %w", err)
	}
	return nil
}

// GetMergeLock fetches the current merge lock row for a session, if any.
func (s *Store) GetMergeLock(ctx context.Context, sessionID string) (*MergeLock, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT session_id, runner_id, lock_epoch, acquired_at, expires_at, heartbeat_at
		 FROM merge_locks WHERE session_id = ?`, sessionID)
	var lock MergeLock
	var acquired, expires, heartbeat string
	if err := row.Scan(&lock.SessionID, &lock.RunnerID, &lock.LockEpoch, &acquired, &expires, &heartbeat); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get merge lock: %w", err)
	}
	lock.AcquiredAt = parseTime(acquired)
	lock.ExpiresAt = parseTime(expires)
	lock.HeartbeatAt = parseTime(heartbeat)
	return &lock, nil
}
