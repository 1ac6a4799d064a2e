package control

import (
	"context"
	"database/sql"
	"fmt"
)

// CreateValidationEscalation persists a failed validation gate for human
// review; the merge engine preserves the offending workspace on disk and
// records its path here rather than cleaning it up.
func (s *Store) CreateValidationEscalation(ctx context.Context, e ValidationEscalation) error {
	if e.Status == "" {
		e.Status = "open"
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO validation_escalations (id, session_id, project_path, workspace_path, validation_cmd,
			error_message, output_snippet, status, created_at, acknowledged_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)`,
		e.ID, e.SessionID, e.ProjectPath, e.WorkspacePath, e.ValidationCmd, e.ErrorMessage, e.OutputSnippet,
		e.Status, nowRFC3339())
	if err != nil {
		return fmt.Errorf("create validation escalation: %w", err)
	}
	return nil
}

// AcknowledgeValidationEscalation marks an escalation acknowledged by a
// human operator.
func (s *Store) AcknowledgeValidationEscalation(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE validation_escalations SET status = 'acknowledged', acknowledged_at = ? WHERE id = ?`,
		nowRFC3339(), id)
	if err != nil {
		return fmt.Errorf("acknowledge validation escalation: %w", err)
	}
	return nil
}

// ListOpenValidationEscalations returns every escalation still awaiting
// acknowledgement.
func (s *Store) ListOpenValidationEscalations(ctx context.Context) ([]ValidationEscalation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, project_path, workspace_path, validation_cmd, error_message,
			COALESCE(output_snippet, ''), status, created_at, acknowledged_at
		 FROM validation_escalations WHERE status = 'open' ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list validation escalations: %w", err)
	}
	defer rows.Close()

	var out []ValidationEscalation
	for rows.Next() {
		var e ValidationEscalation
		var created string
		var acknowledged sql.NullString
		if err := rows.Scan(&e.ID, &e.SessionID, &e.ProjectPath, &e.WorkspacePath, &e.ValidationCmd,
			&e.ErrorMessage, &e.OutputSnippet, &e.Status, &created, &acknowledged); err != nil {
			return nil, fmt.Errorf("scan validation escalation: %w", err)
		}
		e.CreatedAt = parseTime(created)
		e.AcknowledgedAt = parseOptionalTime(acknowledged)
		out = append(out, e)
	}
	return out, rows.Err()
}
