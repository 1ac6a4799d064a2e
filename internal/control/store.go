package control

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Store is the sqlite-backed global control plane shared by every runner
// process on a host.
type Store struct {
	db       *sql.DB
	leaseKey []byte
}

// Open opens (creating if needed) the global control-plane database at
// path, typically "~/.steroids/steroids.db".
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open control plane: %w", err)
	}
	db.SetMaxOpenConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping control plane: %w", err)
	}

	s := &Store{db: db}
	if err := s.configurePragmas(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.ensureLeaseKey(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// OpenInMemory opens an in-memory control plane, used by tests.
func OpenInMemory(ctx context.Context) (*Store, error) {
	return Open(ctx, ":memory:")
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) configurePragmas(ctx context.Context) error {
	pragmas := []string{
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
	}
	for _, p := range pragmas {
		if _, err := s.db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("pragma %q: %w", p, err)
		}
	}
	return nil
}

func (s *Store) migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS runners (
			id TEXT PRIMARY KEY,
			pid INTEGER NOT NULL,
			project_path TEXT NOT NULL,
			status TEXT NOT NULL,
			current_task TEXT,
			started_at TEXT NOT NULL,
			heartbeat_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runners_project ON runners(project_path)`,
		`CREATE TABLE IF NOT EXISTS parallel_sessions (
			id TEXT PRIMARY KEY,
			project_path TEXT NOT NULL,
			repo_id TEXT NOT NULL,
			status TEXT NOT NULL,
			created_at TEXT NOT NULL,
			completed_at TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_repo ON parallel_sessions(repo_id)`,
		`CREATE TABLE IF NOT EXISTS workstreams (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			branch TEXT NOT NULL,
			section_ids TEXT NOT NULL,
			clone_path TEXT NOT NULL,
			status TEXT NOT NULL,
			runner_id TEXT,
			claim_generation INTEGER NOT NULL DEFAULT 0,
			lease_expires_at TEXT,
			sealed_base_sha TEXT,
			sealed_head_sha TEXT,
			sealed_commit_ids TEXT,
			completion_order INTEGER,
			conflict_attempts INTEGER NOT NULL DEFAULT 0,
			recovery_attempts INTEGER NOT NULL DEFAULT 0,
			completed_at TEXT,
			FOREIGN KEY (session_id) REFERENCES parallel_sessions(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_workstreams_session ON workstreams(session_id)`,
		`CREATE TABLE IF NOT EXISTS merge_locks (
			session_id TEXT PRIMARY KEY,
			runner_id TEXT NOT NULL,
			lock_epoch INTEGER NOT NULL,
			acquired_at TEXT NOT NULL,
			expires_at TEXT NOT NULL,
			heartbeat_at TEXT NOT NULL,
			FOREIGN KEY (session_id) REFERENCES parallel_sessions(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS merge_progress (
			session_id TEXT NOT NULL,
			workstream_id TEXT NOT NULL,
			position INTEGER NOT NULL,
			source_commit TEXT NOT NULL,
			status TEXT NOT NULL,
			applied_commit TEXT,
			conflict_task TEXT,
			PRIMARY KEY (session_id, workstream_id, position)
		)`,
		`CREATE TABLE IF NOT EXISTS validation_escalations (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			project_path TEXT NOT NULL,
			workspace_path TEXT NOT NULL,
			validation_cmd TEXT NOT NULL,
			error_message TEXT NOT NULL,
			output_snippet TEXT,
			status TEXT NOT NULL,
			created_at TEXT NOT NULL,
			acknowledged_at TEXT
		)`,
	}
	for _, m := range migrations {
		if _, err := s.db.ExecContext(ctx, m); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

func nowRFC3339() string { return time.Now().UTC().Format(time.RFC3339Nano) }

func parseTime(sv string) time.Time {
	if sv == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, sv)
	if err != nil {
		return time.Time{}
	}
	return t
}

func parseOptionalTime(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t := parseTime(ns.String)
	return &t
}
