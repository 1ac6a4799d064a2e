package store

import (
	"context"
	"fmt"
	"math"
	"sort"
)

// tierOrder ranks statuses by claim precedence: review work drains before
// new in-progress work, which drains before untouched pending work.
var tierOrder = map[TaskStatus]int{
	StatusReview:     0,
	StatusInProgress: 1,
	StatusPending:    2,
}

type candidateTask struct {
	task     Task
	position int // section position, math.MaxInt32 if unsectioned
}

// NextTask returns the single highest-precedence eligible task, optionally
// restricted to sectionFilter (exact section id). Returns (nil, nil) when no
// task is eligible to run right now.
func (s *Store) NextTask(ctx context.Context, sectionFilter string) (*Task, error) {
	query := `SELECT t.id, t.title, t.status, COALESCE(t.section_id, ''), COALESCE(t.spec_path, ''),
	                 t.rejection_count, t.created_at, t.updated_at, COALESCE(sec.position, -1)
	          FROM tasks t LEFT JOIN sections sec ON sec.id = t.section_id
	          WHERE t.status IN (?, ?, ?)`
	args := []interface{}{string(StatusReview), string(StatusInProgress), string(StatusPending)}
	if sectionFilter != "" {
		query += ` AND t.section_id = ?`
		args = append(args, sectionFilter)
	}
	query += ` ORDER BY t.created_at`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("next task: query: %w", err)
	}
	defer rows.Close()

	var candidates []candidateTask
	for rows.Next() {
		var t Task
		var status, created, updated string
		var pos int
		if err := rows.Scan(&t.ID, &t.Title, &status, &t.SectionID, &t.SpecPath, &t.RejectionCount, &created, &updated, &pos); err != nil {
			return nil, fmt.Errorf("next task: scan: %w", err)
		}
		t.Status = TaskStatus(status)
		t.CreatedAt = parseTime(created)
		t.UpdatedAt = parseTime(updated)
		position := math.MaxInt32
		if pos >= 0 {
			position = pos
		}
		candidates = append(candidates, candidateTask{task: t, position: position})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	depsMetCache := make(map[string]bool)
	eligible := make([]candidateTask, 0, len(candidates))
	for _, c := range candidates {
		if c.task.SectionID == "" {
			eligible = append(eligible, c)
			continue
		}
		met, ok := depsMetCache[c.task.SectionID]
		if !ok {
			var err error
			met, err = s.SectionDependenciesMet(ctx, c.task.SectionID)
			if err != nil {
				return nil, err
			}
			depsMetCache[c.task.SectionID] = met
		}
		if met {
			eligible = append(eligible, c)
		}
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		ti, tj := tierOrder[eligible[i].task.Status], tierOrder[eligible[j].task.Status]
		if ti != tj {
			return ti < tj
		}
		if eligible[i].position != eligible[j].position {
			return eligible[i].position < eligible[j].position
		}
		return eligible[i].task.CreatedAt.Before(eligible[j].task.CreatedAt)
	})

	if len(eligible) == 0 {
		return nil, nil
	}
	result := eligible[0].task
	return &result, nil
}
