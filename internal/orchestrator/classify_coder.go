package orchestrator

import (
	"strings"

	"github.com/steroids-run/steroids/internal/provider"
	"github.com/steroids-run/steroids/internal/store"
)

var alreadyExistsPhrases = []string{
	"already exists",
	"already implemented",
	"already satisfied",
	"nothing to do",
}

// ClassifyCoderOutput maps an invocation outcome plus the resulting git
// state into a structured coder decision. baselineHead is the HEAD commit
// sha observed before the invocation ran, used to detect whether any new
// commit landed.
func ClassifyCoderOutput(result provider.InvokeResult, state GitState, baselineHead string) CoderDecision {
	if result.TimedOut {
		return CoderDecision{
			Action:     CoderError,
			NextStatus: store.StatusInProgress,
			Confidence: 0.98,
			ErrorKind:  CoderErrorTimeout,
			Reasoning:  "invocation exceeded its timeout",
		}
	}

	newCommits := state.NewCommits(baselineHead)

	if result.ExitCode == 0 {
		switch {
		case len(newCommits) > 0 && !state.HasUncommittedChanges():
			return CoderDecision{
				Action:     CoderSubmit,
				NextStatus: store.StatusReview,
				Confidence: 0.90,
				Reasoning:  "exit 0 with a new commit and a clean working tree",
			}
		case len(newCommits) > 0 && state.HasUncommittedChanges():
			return CoderDecision{
				Action:     CoderStageCommitSubmit,
				NextStatus: store.StatusReview,
				Confidence: 0.82,
				Reasoning:  "exit 0 with a new commit but leftover uncommitted changes; auto-committing before submit",
			}
		case len(newCommits) == 0 && !state.HasUncommittedChanges() && containsAny(result.Stdout, alreadyExistsPhrases):
			return CoderDecision{
				Action:     CoderSubmit,
				NextStatus: store.StatusReview,
				Confidence: 0.85,
				Reasoning:  "coder reported the work is already done and the tree is clean",
			}
		case len(newCommits) == 0 && !state.HasUncommittedChanges():
			return CoderDecision{
				Action:     CoderError,
				NextStatus: store.StatusInProgress,
				Confidence: 0.90,
				ErrorKind:  CoderErrorNoChanges,
				Reasoning:  "exit 0 but no commit and no file changes",
			}
		default:
			return CoderDecision{
				Action:     CoderStageCommitSubmit,
				NextStatus: store.StatusReview,
				Confidence: 0.70,
				Reasoning:  "exit 0 with uncommitted changes and no prior commit; staging and submitting",
			}
		}
	}

	kind := provider.ClassifyInvokeResult(result)
	if kind.Retryable() {
		return CoderDecision{
			Action:     CoderRetry,
			NextStatus: store.StatusInProgress,
			Confidence: 0.75,
			Reasoning:  "transient provider error: " + string(kind),
		}
	}

	return CoderDecision{
		Action:     CoderError,
		NextStatus: store.StatusInProgress,
		Confidence: 0.80,
		ErrorKind:  CoderErrorInvalidState,
		Reasoning:  "non-zero exit with a non-retryable error kind: " + string(kind),
	}
}

func containsAny(haystack string, needles []string) bool {
	lower := strings.ToLower(haystack)
	for _, n := range needles {
		if strings.Contains(lower, n) {
			return true
		}
	}
	return false
}
