package scheduler

import (
	"context"
	"fmt"
	"sort"

	steroidserrors "github.com/steroids-run/steroids/internal/errors"
	"github.com/steroids-run/steroids/internal/store"
)

// sectionStore is the subset of *store.Store partitioning needs, narrowed
// so tests can substitute an in-memory store without pulling in the whole
// package surface.
type sectionStore interface {
	ListSections(ctx context.Context) ([]store.Section, error)
	ListTasks(ctx context.Context, sectionID string) ([]store.Task, error)
	SectionDependencyEdges(ctx context.Context) (map[string][]string, error)
	SectionDependenciesMet(ctx context.Context, sectionID string) (bool, error)
}

// PlanWorkstreams loads sections with pending work and groups them into
// workstream plans per strategy, in section position order.
func PlanWorkstreams(ctx context.Context, st sectionStore, strategy Strategy) ([]WorkstreamPlan, error) {
	sections, err := st.ListSections(ctx)
	if err != nil {
		return nil, fmt.Errorf("plan workstreams: %w", err)
	}

	pending, err := pendingSections(ctx, st, sections)
	if err != nil {
		return nil, err
	}
	if len(pending) == 0 {
		return nil, nil
	}

	switch strategy {
	case Partitioned:
		return planPartitioned(ctx, st, pending)
	default:
		return planPerSection(ctx, st, pending)
	}
}

// pendingSections filters sections down to those with at least one
// schedulable (non-terminal) task, preserving position order.
func pendingSections(ctx context.Context, st sectionStore, sections []store.Section) ([]store.Section, error) {
	var out []store.Section
	for _, sec := range sections {
		if sec.Skipped {
			continue
		}
		tasks, err := st.ListTasks(ctx, sec.ID)
		if err != nil {
			return nil, fmt.Errorf("pending sections: %w", err)
		}
		for _, t := range tasks {
			if !t.Status.Terminal() {
				out = append(out, sec)
				break
			}
		}
	}
	return out, nil
}

// planPerSection gives every section whose dependencies are already met
// its own workstream; sections still blocked on a dependency are left out
// of this plan entirely (they wait for a future scheduling pass once their
// dependency's workstream completes).
func planPerSection(ctx context.Context, st sectionStore, pending []store.Section) ([]WorkstreamPlan, error) {
	var plans []WorkstreamPlan
	for _, sec := range pending {
		met, err := st.SectionDependenciesMet(ctx, sec.ID)
		if err != nil {
			return nil, fmt.Errorf("plan per section: %w", err)
		}
		if !met {
			continue
		}
		plans = append(plans, WorkstreamPlan{SectionIDs: []string{sec.ID}})
	}
	return plans, nil
}

// planPartitioned groups pending sections into weakly-connected components
// of the dependency graph among pending sections (edges considered
// undirected for grouping purposes; edges to non-pending sections are
// ignored), raising FaultCyclicDependency if the directed graph restricted
// to pending sections contains a cycle.
func planPartitioned(ctx context.Context, st sectionStore, pending []store.Section) ([]WorkstreamPlan, error) {
	edges, err := st.SectionDependencyEdges(ctx)
	if err != nil {
		return nil, fmt.Errorf("plan partitioned: %w", err)
	}

	pendingIDs := make(map[string]bool, len(pending))
	for _, sec := range pending {
		pendingIDs[sec.ID] = true
	}

	if cyc := findCycle(edges, pendingIDs); cyc != "" {
		return nil, steroidserrors.NewFault(steroidserrors.FaultCyclicDependency,
			fmt.Sprintf("dependency cycle detected while partitioning sections, starting at %q", cyc))
	}

	uf := newUnionFind()
	for _, sec := range pending {
		uf.add(sec.ID)
	}
	for from, tos := range edges {
		if !pendingIDs[from] {
			continue
		}
		for _, to := range tos {
			if pendingIDs[to] {
				uf.union(from, to)
			}
		}
	}

	groups := make(map[string][]string)
	for _, sec := range pending {
		root := uf.find(sec.ID)
		groups[root] = append(groups[root], sec.ID)
	}

	// Stable output order: by the position of each group's
	// lowest-position member, matching section declaration order.
	positionOf := make(map[string]int, len(pending))
	for i, sec := range pending {
		positionOf[sec.ID] = i
	}

	roots := make([]string, 0, len(groups))
	for root := range groups {
		roots = append(roots, root)
	}
	sort.Slice(roots, func(i, j int) bool {
		return minPosition(groups[roots[i]], positionOf) < minPosition(groups[roots[j]], positionOf)
	})

	plans := make([]WorkstreamPlan, 0, len(roots))
	for _, root := range roots {
		ids := groups[root]
		sort.Slice(ids, func(i, j int) bool { return positionOf[ids[i]] < positionOf[ids[j]] })
		plans = append(plans, WorkstreamPlan{SectionIDs: ids})
	}
	return plans, nil
}

func minPosition(ids []string, positionOf map[string]int) int {
	min := -1
	for _, id := range ids {
		p := positionOf[id]
		if min == -1 || p < min {
			min = p
		}
	}
	return min
}

// findCycle runs a DFS from every pending section looking for a back edge
// within the subgraph restricted to pending sections, returning the
// section id it started from when one is found.
func findCycle(edges map[string][]string, pendingIDs map[string]bool) string {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(pendingIDs))

	var visit func(id string) bool
	visit = func(id string) bool {
		color[id] = gray
		for _, next := range edges[id] {
			if !pendingIDs[next] {
				continue
			}
			switch color[next] {
			case gray:
				return true
			case white:
				if visit(next) {
					return true
				}
			}
		}
		color[id] = black
		return false
	}

	ids := make([]string, 0, len(pendingIDs))
	for id := range pendingIDs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if color[id] == white {
			if visit(id) {
				return id
			}
		}
	}
	return ""
}

// unionFind is a minimal disjoint-set structure used to group sections
// into weakly-connected components.
type unionFind struct {
	parent map[string]string
}

func newUnionFind() *unionFind {
	return &unionFind{parent: make(map[string]string)}
}

func (u *unionFind) add(id string) {
	if _, ok := u.parent[id]; !ok {
		u.parent[id] = id
	}
}

func (u *unionFind) find(id string) string {
	root := id
	for u.parent[root] != root {
		root = u.parent[root]
	}
	for u.parent[id] != root {
		u.parent[id], id = root, u.parent[id]
	}
	return root
}

func (u *unionFind) union(a, b string) {
	ra, rb := u.find(a), u.find(b)
	if ra != rb {
		u.parent[ra] = rb
	}
}
