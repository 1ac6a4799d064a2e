package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyReviewerOutput_ExplicitCommandWins(t *testing.T) {
	d := ClassifyReviewerOutput("Looks mostly fine but I'll run: steroids tasks reject --reason scope", 0)
	assert.Equal(t, ReviewerReject, d.Action)
	assert.InDelta(t, 0.95, d.Confidence, 0.001)
}

func TestClassifyReviewerOutput_ApprovalToken(t *testing.T) {
	d := ClassifyReviewerOutput("This implementation LGTM, nice work.", 0)
	assert.Equal(t, ReviewerApprove, d.Action)
	assert.GreaterOrEqual(t, d.Confidence, 0.85)
}

func TestClassifyReviewerOutput_HighRejectionCountBoostsApproveConfidence(t *testing.T) {
	low := ClassifyReviewerOutput("APPROVED, ship it.", 0)
	high := ClassifyReviewerOutput("APPROVED, ship it.", 6)
	assert.Greater(t, high.Confidence, low.Confidence)
}

func TestClassifyReviewerOutput_UncheckedBoxesRejectWithFeedback(t *testing.T) {
	text := "Almost there:\n- [x] tests pass\n- [ ] handle the empty-input case\n- [ ] update docs\n"
	d := ClassifyReviewerOutput(text, 0)
	assert.Equal(t, ReviewerReject, d.Action)
	assert.ElementsMatch(t, []string{"handle the empty-input case", "update docs"}, d.FeedbackItems)
}

func TestClassifyReviewerOutput_ConflictingTokensLowerConfidence(t *testing.T) {
	d := ClassifyReviewerOutput("Normally this would be REJECTED but actually looks good now, APPROVED.", 0)
	assert.Less(t, d.Confidence, 0.85)
}

func TestClassifyReviewerOutput_NoSignalIsAmbiguous(t *testing.T) {
	d := ClassifyReviewerOutput("I reviewed the change and have some thoughts.", 0)
	assert.Equal(t, ReviewerAmbiguous, d.Action)
	assert.InDelta(t, 0.45, d.Confidence, 0.001)
}
