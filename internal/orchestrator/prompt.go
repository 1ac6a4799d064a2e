package orchestrator

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/steroids-run/steroids/internal/store"
)

const (
	agentsFileMaxChars = 5000
	specFileMaxChars   = 10000
)

// fileScopePattern extracts path-like tokens from task titles and spec
// bodies, used as a coarse hint to the coder about which part of the tree
// the task likely touches.
var fileScopePattern = regexp.MustCompile(`(?:src|lib|test|tests|scripts|config|internal|cmd|pkg)/[\w./-]+\.\w+`)

// truncate cuts s to max characters, appending a marker so the prompt makes
// the cut visible rather than silently dropping content.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "\n...[truncated]"
}

// deriveFileScopeHints extracts every distinct path-like token referenced
// in title and spec text.
func deriveFileScopeHints(title, spec string) []string {
	seen := make(map[string]bool)
	var hints []string
	for _, m := range fileScopePattern.FindAllString(title+"\n"+spec, -1) {
		if !seen[m] {
			seen[m] = true
			hints = append(hints, m)
		}
	}
	return hints
}

// CoderPromptInput carries everything BuildCoderPrompt needs.
type CoderPromptInput struct {
	Task                store.Task
	PriorStatus         store.TaskStatus
	RejectionHistory    []store.RejectionEntry
	CoordinatorGuidance string
	AgentsMD            string
	SpecBody            string
}

// BuildCoderPrompt assembles the coder-phase prompt.
func BuildCoderPrompt(in CoderPromptInput) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Task: %s\n\nID: %s\nPrior status: %s\nRejection count: %d\n\n",
		in.Task.Title, in.Task.ID, in.PriorStatus, in.Task.RejectionCount)

	writeRejectionHistory(&b, in.RejectionHistory)

	if in.CoordinatorGuidance != "" {
		fmt.Fprintf(&b, "## Coordinator guidance\n\n%s\n\n", in.CoordinatorGuidance)
	}

	if in.AgentsMD != "" {
		fmt.Fprintf(&b, "## Project conventions (AGENTS.md)\n\n%s\n\n", truncate(in.AgentsMD, agentsFileMaxChars))
	}

	if in.SpecBody != "" {
		fmt.Fprintf(&b, "## Task specification\n\n%s\n\n", truncate(in.SpecBody, specFileMaxChars))
	}

	if hints := deriveFileScopeHints(in.Task.Title, in.SpecBody); len(hints) > 0 {
		fmt.Fprintf(&b, "## Likely file scope\n\n%s\n\n", strings.Join(hints, ", "))
	}

	return b.String()
}

// writeRejectionHistory writes a titles-only summary plus the last three
// full entries, and a pattern-detected warning when the same feedback
// title recurs three or more times (a sign the coder is not addressing
// the actual complaint and dispute is the better next step).
func writeRejectionHistory(b *strings.Builder, history []store.RejectionEntry) {
	if len(history) == 0 {
		return
	}

	b.WriteString("## Rejection history\n\n")
	titleCounts := make(map[string]int)
	for _, e := range history {
		title := firstLine(e.Notes)
		titleCounts[title]++
		fmt.Fprintf(b, "%d. %s\n", e.Ordinal, title)
	}
	b.WriteString("\n")

	lastThree := history
	if len(lastThree) > 3 {
		lastThree = lastThree[len(lastThree)-3:]
	}
	b.WriteString("### Most recent rejections in full\n\n")
	for _, e := range lastThree {
		fmt.Fprintf(b, "- Rejection #%d (%s): %s\n", e.Ordinal, e.Actor, e.Notes)
	}
	b.WriteString("\n")

	for title, count := range titleCounts {
		if count >= 3 {
			fmt.Fprintf(b, "### Pattern detected\n\n\"%s\" has recurred %d times. Consider raising a dispute instead of resubmitting the same fix.\n\n", title, count)
			break
		}
	}
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}

// ReviewerPromptInput carries everything BuildReviewerPrompt needs.
type ReviewerPromptInput struct {
	Task                store.Task
	SpecBody            string
	CoordinatorGuidance string
	CommitSHA           string
	CommitDiff          string
}

// BuildReviewerPrompt assembles the reviewer-phase prompt.
func BuildReviewerPrompt(in ReviewerPromptInput) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Review task: %s\n\nID: %s\nCommit under review: %s\n\n",
		in.Task.Title, in.Task.ID, in.CommitSHA)

	if in.CoordinatorGuidance != "" {
		fmt.Fprintf(&b, "## Coordinator guidance\n\n%s\n\n", in.CoordinatorGuidance)
	}

	if in.SpecBody != "" {
		fmt.Fprintf(&b, "## Task specification\n\n%s\n\n", truncate(in.SpecBody, specFileMaxChars))
	}

	fmt.Fprintf(&b, "## Diff under review\n\n```diff\n%s\n```\n", in.CommitDiff)

	return b.String()
}
