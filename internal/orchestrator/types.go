// Package orchestrator drives one task through the coder/reviewer/
// coordinator lifecycle: prompt assembly, provider invocation, decision
// classification, rejection escalation, and credit-exhaustion pause alerts.
// It knows nothing about which workstream or merge a task belongs to; that
// is the scheduler's and merge engine's job.
package orchestrator

import (
	"time"

	"github.com/steroids-run/steroids/internal/provider"
	"github.com/steroids-run/steroids/internal/store"
)

// CoderAction is what the orchestrator decided to do after a coder
// invocation.
type CoderAction string

const (
	CoderSubmit            CoderAction = "submit"
	CoderStageCommitSubmit CoderAction = "stage_commit_submit"
	CoderRetry             CoderAction = "retry"
	CoderError             CoderAction = "error"
)

// CoderErrorKind further classifies a CoderError action.
type CoderErrorKind string

const (
	CoderErrorNoChanges    CoderErrorKind = "no_changes"
	CoderErrorTimeout      CoderErrorKind = "timeout"
	CoderErrorInvalidState CoderErrorKind = "invalid_state"
)

// CoderDecision is the structured outcome of the coder phase.
type CoderDecision struct {
	Action     CoderAction
	NextStatus store.TaskStatus
	Confidence float64
	Reasoning  string
	ErrorKind  CoderErrorKind // set only when Action == CoderError
}

// ReviewerAction is what the orchestrator decided after a reviewer
// invocation.
type ReviewerAction string

const (
	ReviewerApprove   ReviewerAction = "approve"
	ReviewerReject    ReviewerAction = "reject"
	ReviewerSkip      ReviewerAction = "skip"
	ReviewerDispute   ReviewerAction = "dispute"
	ReviewerAmbiguous ReviewerAction = "ambiguous"
)

// ReviewerDecision is the structured outcome of the reviewer phase.
type ReviewerDecision struct {
	Action        ReviewerAction
	Confidence    float64
	FeedbackItems []string // unchecked-checkbox items or explicit feedback
	Reasoning     string
}

// CoordinatorAction is the guidance a coordinator pass can hand back.
type CoordinatorAction string

const (
	CoordinatorGuideCoder       CoordinatorAction = "guide_coder"
	CoordinatorOverrideReviewer CoordinatorAction = "override_reviewer"
	CoordinatorNarrowScope      CoordinatorAction = "narrow_scope"
)

// CoordinatorDecision is the outcome of a coordinator pass, triggered at
// rejection counts 2, 5, and 9.
type CoordinatorDecision struct {
	Action    CoordinatorAction
	Guidance  string
	Reasoning string
}

// PauseReason identifies why a pause alert was raised. Only credit
// exhaustion raises one today; the type leaves room for others.
type PauseReason string

const PauseReasonCreditExhaustion PauseReason = "credit_exhaustion"

// PauseAlert is emitted to the host loop when an invocation hits a
// condition the orchestrator cannot resolve on its own.
type PauseAlert struct {
	Reason   PauseReason
	Provider string
	Model    string
	Role     provider.Role
	Message  string
	RaisedAt time.Time
}

// PauseResolution is how the host loop disposed of a PauseAlert.
type PauseResolution string

const (
	PauseResolutionConfigChanged PauseResolution = "config_changed"
	PauseResolutionStopped       PauseResolution = "stopped"
	PauseResolutionImmediateFail PauseResolution = "immediate_fail"
)

// rejection escalation thresholds, in ascending order.
var coordinatorTriggerCounts = map[int]bool{2: true, 5: true, 9: true}

// terminationRejectionCount is the rejection count at which a task is
// auto-failed and a system dispute is raised.
const terminationRejectionCount = 15

// clampConfidence restricts a confidence score to [0, 1].
func clampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
