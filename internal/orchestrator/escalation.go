package orchestrator

// CoordinatorTriggered reports whether a rejection count lands on one of
// the coordinator-pass thresholds.
func CoordinatorTriggered(rejectionCount int) bool {
	return coordinatorTriggerCounts[rejectionCount]
}

// TerminationTriggered reports whether a rejection count has reached the
// point where the task auto-fails and a system dispute is raised.
func TerminationTriggered(rejectionCount int) bool {
	return rejectionCount >= terminationRejectionCount
}

// ResolvePauseAlert decides what the host loop does in response to a
// PauseAlert. onceMode tasks always resolve as immediate_fail, regardless
// of what the caller-supplied resolution would otherwise be, since a
// single-shot run has no opportunity for the user to reconfigure and retry.
func ResolvePauseAlert(onceMode bool, requested PauseResolution) PauseResolution {
	if onceMode {
		return PauseResolutionImmediateFail
	}
	if requested == "" {
		return PauseResolutionStopped
	}
	return requested
}
