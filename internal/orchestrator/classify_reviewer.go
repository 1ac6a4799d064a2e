package orchestrator

import (
	"regexp"
	"strings"
)

var (
	explicitCommandPattern = regexp.MustCompile(`(?i)steroids\s+tasks\s+(approve|reject|skip|dispute)\b`)
	approveTokenPattern    = regexp.MustCompile(`(?i)\b(APPROVED|LGTM|looks good)\b`)
	rejectTokenPattern     = regexp.MustCompile(`(?i)\b(REJECTED|needs changes|must fix)\b`)
	uncheckedBoxPattern    = regexp.MustCompile(`(?m)^\s*-\s*\[\s\]\s*(.+)$`)
)

// ClassifyReviewerOutput maps a reviewer invocation's raw text into a
// structured decision, trying the highest-confidence signal first and
// falling back toward ambiguous.
func ClassifyReviewerOutput(text string, taskRejectionCount int) ReviewerDecision {
	if m := explicitCommandPattern.FindStringSubmatch(text); m != nil {
		decision := ReviewerDecision{
			Action:     reviewerActionFromCommand(strings.ToLower(m[1])),
			Confidence: 0.95,
			Reasoning:  "explicit steroids tasks command found",
		}
		return finalizeReviewerDecision(decision, text, taskRejectionCount, false)
	}

	approve := approveTokenPattern.MatchString(text)
	reject := rejectTokenPattern.MatchString(text)
	boxes := uncheckedBoxPattern.FindAllStringSubmatch(text, -1)

	switch {
	case approve && !reject:
		decision := ReviewerDecision{Action: ReviewerApprove, Confidence: 0.85, Reasoning: "approval token found"}
		return finalizeReviewerDecision(decision, text, taskRejectionCount, false)
	case reject && !approve:
		decision := ReviewerDecision{
			Action:        ReviewerReject,
			Confidence:    0.85,
			Reasoning:     "rejection token found",
			FeedbackItems: uncheckedItems(boxes),
		}
		return finalizeReviewerDecision(decision, text, taskRejectionCount, false)
	case len(boxes) > 0:
		decision := ReviewerDecision{
			Action:        ReviewerReject,
			Confidence:    0.88,
			Reasoning:     "unchecked checklist items present",
			FeedbackItems: uncheckedItems(boxes),
		}
		return finalizeReviewerDecision(decision, text, taskRejectionCount, false)
	default:
		decision := ReviewerDecision{
			Action:     ReviewerAmbiguous,
			Confidence: 0.45,
			Reasoning:  "no explicit command, token, or checklist signal found",
		}
		return finalizeReviewerDecision(decision, text, taskRejectionCount, approve && reject)
	}
}

func reviewerActionFromCommand(verb string) ReviewerAction {
	switch verb {
	case "approve":
		return ReviewerApprove
	case "reject":
		return ReviewerReject
	case "skip":
		return ReviewerSkip
	case "dispute":
		return ReviewerDispute
	default:
		return ReviewerAmbiguous
	}
}

func uncheckedItems(boxes [][]string) []string {
	items := make([]string, 0, len(boxes))
	for _, m := range boxes {
		items = append(items, strings.TrimSpace(m[1]))
	}
	return items
}

// finalizeReviewerDecision applies the shared confidence adjustments:
// +0.05 when signals agree, -0.10 when they conflict, +0.05 when approving
// a task with a high rejection count.
func finalizeReviewerDecision(d ReviewerDecision, text string, rejectionCount int, conflicting bool) ReviewerDecision {
	approve := approveTokenPattern.MatchString(text)
	reject := rejectTokenPattern.MatchString(text)

	switch {
	case conflicting:
		d.Confidence -= 0.10
	case (approve && d.Action == ReviewerApprove) || (reject && d.Action == ReviewerReject):
		d.Confidence += 0.05
	}

	if d.Action == ReviewerApprove && rejectionCount >= 5 {
		d.Confidence += 0.05
	}

	d.Confidence = clampConfidence(d.Confidence)
	return d
}
