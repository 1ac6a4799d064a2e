package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	steroidserrors "github.com/steroids-run/steroids/internal/errors"
)

// CreateSection inserts a new section.
func (s *Store) CreateSection(ctx context.Context, sec Section) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sections (id, name, position, priority, skipped) VALUES (?, ?, ?, ?, ?)`,
		sec.ID, sec.Name, sec.Position, priorityOrDefault(sec.Priority), boolToInt(sec.Skipped))
	if err != nil {
		return fmt.Errorf("create section: %w", err)
	}
	return nil
}

func priorityOrDefault(p int) int {
	if p == 0 {
		return 50
	}
	return p
}

// GetSection fetches a section by exact id.
func (s *Store) GetSection(ctx context.Context, id string) (Section, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, position, priority, skipped FROM sections WHERE id = ?`, id)
	var sec Section
	var skipped int
	if err := row.Scan(&sec.ID, &sec.Name, &sec.Position, &sec.Priority, &skipped); err != nil {
		if err == sql.ErrNoRows {
			return Section{}, &steroidserrors.NotFoundError{Resource: "section", ID: id}
		}
		return Section{}, fmt.Errorf("get section: %w", err)
	}
	sec.Skipped = skipped != 0
	return sec, nil
}

// ResolveSectionPrefix resolves an unambiguous id prefix to a full section.
// An ambiguous prefix fails with a diagnostic listing every match.
func (s *Store) ResolveSectionPrefix(ctx context.Context, prefix string) (Section, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, position, priority, skipped FROM sections WHERE id LIKE ? || '%' ORDER BY id`, prefix)
	if err != nil {
		return Section{}, fmt.Errorf("resolve section prefix: %w", err)
	}
	defer rows.Close()

	var matches []Section
	for rows.Next() {
		var sec Section
		var skipped int
		if err := rows.Scan(&sec.ID, &sec.Name, &sec.Position, &sec.Priority, &skipped); err != nil {
			return Section{}, fmt.Errorf("scan section: %w", err)
		}
		sec.Skipped = skipped != 0
		matches = append(matches, sec)
	}

	switch len(matches) {
	case 0:
		return Section{}, &steroidserrors.NotFoundError{Resource: "section", ID: prefix}
	case 1:
		return matches[0], nil
	default:
		ids := make([]string, len(matches))
		for i, m := range matches {
			ids[i] = m.ID
		}
		return Section{}, &steroidserrors.ValidationError{
			Field:   "section",
			Message: fmt.Sprintf("ambiguous section prefix %q matches: %s", prefix, strings.Join(ids, ", ")),
		}
	}
}

// ListSections returns every section ordered by position.
func (s *Store) ListSections(ctx context.Context) ([]Section, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, position, priority, skipped FROM sections ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("list sections: %w", err)
	}
	defer rows.Close()

	var out []Section
	for rows.Next() {
		var sec Section
		var skipped int
		if err := rows.Scan(&sec.ID, &sec.Name, &sec.Position, &sec.Priority, &skipped); err != nil {
			return nil, fmt.Errorf("scan section: %w", err)
		}
		sec.Skipped = skipped != 0
		out = append(out, sec)
	}
	return out, rows.Err()
}

// sectionDependencyEdges returns the full dependency graph as adjacency
// lists keyed by section id: edges[A] = sections A depends on.
func (s *Store) sectionDependencyEdges(ctx context.Context) (map[string][]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT section_id, depends_on FROM section_deps`)
	if err != nil {
		return nil, fmt.Errorf("load section deps: %w", err)
	}
	defer rows.Close()

	edges := make(map[string][]string)
	for rows.Next() {
		var from, to string
		if err := rows.Scan(&from, &to); err != nil {
			return nil, fmt.Errorf("scan section dep: %w", err)
		}
		edges[from] = append(edges[from], to)
	}
	return edges, rows.Err()
}

// SectionDependencyEdges exposes the full "depends on" adjacency list,
// keyed by section id, for callers that partition sections into
// independently-schedulable groups (the workstream scheduler).
func (s *Store) SectionDependencyEdges(ctx context.Context) (map[string][]string, error) {
	return s.sectionDependencyEdges(ctx)
}

// AddSectionDependency inserts a directed "section depends on" edge,
// rejecting any insertion that would create a cycle. Cycle detection is a
// DFS from dependsOn, looking for sectionID, over an adjacency list keyed by
// section id.
func (s *Store) AddSectionDependency(ctx context.Context, sectionID, dependsOn string) error {
	if sectionID == dependsOn {
		return &steroidserrors.ValidationError{Field: "depends_on", Message: "a section cannot depend on itself"}
	}

	edges, err := s.sectionDependencyEdges(ctx)
	if err != nil {
		return err
	}
	// Tentatively add the edge and check for a cycle reachable from dependsOn
	// back to sectionID (i.e. does dependsOn already (transitively) depend on
	// sectionID — adding sectionID->dependsOn would then close a cycle).
	edges[sectionID] = append(edges[sectionID], dependsOn)
	if pathExists(edges, dependsOn, sectionID) {
		return &steroidserrors.ValidationError{
			Field:   "depends_on",
			Message: fmt.Sprintf("adding dependency %s -> %s would create a cycle", sectionID, dependsOn),
		}
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO section_deps (section_id, depends_on) VALUES (?, ?)`, sectionID, dependsOn)
	if err != nil {
		return fmt.Errorf("add section dependency: %w", err)
	}
	return nil
}

// pathExists runs a DFS from `from` looking for `to`.
func pathExists(edges map[string][]string, from, to string) bool {
	if from == to {
		return true
	}
	visited := make(map[string]bool)
	var stack []string
	stack = append(stack, from)
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[n] {
			continue
		}
		visited[n] = true
		for _, next := range edges[n] {
			if next == to {
				return true
			}
			if !visited[next] {
				stack = append(stack, next)
			}
		}
	}
	return false
}

// SectionDependenciesMet reports whether every section that `sectionID`
// depends on has zero tasks whose status is not completed.
func (s *Store) SectionDependenciesMet(ctx context.Context, sectionID string) (bool, error) {
	if sectionID == "" {
		return true, nil
	}
	edges, err := s.sectionDependencyEdges(ctx)
	if err != nil {
		return false, err
	}
	deps := edges[sectionID]
	if len(deps) == 0 {
		return true, nil
	}

	sort.Strings(deps)
	placeholders := make([]string, len(deps))
	args := make([]interface{}, 0, len(deps)+1)
	for i, d := range deps {
		placeholders[i] = "?"
		args = append(args, d)
	}
	args = append(args, StatusCompleted)

	query := fmt.Sprintf(
		`SELECT COUNT(*) FROM tasks WHERE section_id IN (%s) AND status != ?`,
		strings.Join(placeholders, ","))
	var count int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return false, fmt.Errorf("check section dependencies met: %w", err)
	}
	return count == 0, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
