package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/steroids-run/steroids/internal/gitutil"
)

// Commit is one entry in a recent-commits listing.
type Commit struct {
	SHA     string
	Subject string
}

// GitState is the working-tree snapshot the coder-phase classifier reasons
// over: did a commit land, is anything still uncommitted.
type GitState struct {
	RecentCommits  []Commit
	PorcelainDirty bool
	StagedPaths    []string
	UnstagedPaths  []string
}

// NewCommits returns the entries of RecentCommits that come before the one
// whose SHA is baselineHead, in RecentCommits order (newest first). It
// returns all of RecentCommits when baselineHead is empty or not among them.
func (g GitState) NewCommits(baselineHead string) []Commit {
	if baselineHead == "" {
		return g.RecentCommits
	}
	var out []Commit
	for _, c := range g.RecentCommits {
		if c.SHA == baselineHead {
			break
		}
		out = append(out, c)
	}
	return out
}

// HasUncommittedChanges reports whether the working tree has staged or
// unstaged modifications.
func (g GitState) HasUncommittedChanges() bool {
	return len(g.StagedPaths) > 0 || len(g.UnstagedPaths) > 0
}

// GatherGitState collects the commit/status/diff picture the coder-phase
// classifier needs, via the shared git subprocess client.
func GatherGitState(ctx context.Context, git *gitutil.Client, recentCommitCount int) (GitState, error) {
	var state GitState

	logResult, err := git.LogRecent(ctx, recentCommitCount)
	if err != nil {
		return state, fmt.Errorf("gather git state: log: %w", err)
	}
	state.RecentCommits = parseLogRecent(logResult.Stdout)

	statusResult, err := git.StatusPorcelain(ctx)
	if err != nil {
		return state, fmt.Errorf("gather git state: status: %w", err)
	}
	state.PorcelainDirty = gitutil.IsDirty(statusResult)

	stagedResult, err := git.DiffCachedNameOnly(ctx)
	if err != nil {
		return state, fmt.Errorf("gather git state: diff --cached: %w", err)
	}
	state.StagedPaths = nonEmptyLines(stagedResult.Stdout)

	unstagedResult, err := git.DiffUnstagedNameOnly(ctx)
	if err != nil {
		return state, fmt.Errorf("gather git state: diff: %w", err)
	}
	state.UnstagedPaths = nonEmptyLines(unstagedResult.Stdout)

	return state, nil
}

func parseLogRecent(stdout string) []Commit {
	var commits []Commit
	for _, line := range nonEmptyLines(stdout) {
		sha, subject, found := strings.Cut(line, "\x1f")
		if !found {
			continue
		}
		commits = append(commits, Commit{SHA: sha, Subject: subject})
	}
	return commits
}

func nonEmptyLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}
