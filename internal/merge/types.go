// Package merge integrates workstream branches into mainline by
// cherry-picking each workstream's sealed commit list in completion order.
// Cherry-pick over a three-way merge keeps mainline history linear and
// easy to audit, at the cost of a conflict-resolution sub-loop this
// package owns end to end.
//
// The whole procedure is resumable: every step records its progress in
// the control-plane merge-lock and merge-progress tables, fenced by a
// monotonic lock epoch, so a crashed run can be re-invoked against the
// same session id and pick up exactly where it left off.
package merge

import (
	"time"

	"github.com/steroids-run/steroids/internal/control"
)

const (
	// DefaultRemote is the git remote workstream branches are fetched from
	// and mainline is pushed to.
	DefaultRemote = "origin"
	// DefaultMainBranch is the branch merged workstreams integrate into.
	DefaultMainBranch = "main"
	// DefaultLockTimeout bounds how long a merge lock is held before it is
	// considered abandoned and claimable by another runner.
	DefaultLockTimeout = 120 * time.Minute
	// DefaultHeartbeatInterval is the default for Options.HeartbeatInterval.
	// The engine refreshes the lock once after each commit it processes,
	// not on a timer.
	DefaultHeartbeatInterval = 30 * time.Second
	// DefaultConflictAttemptLimit bounds how many conflict sub-loop
	// iterations a single commit gets before the session is marked
	// blocked_conflict.
	DefaultConflictAttemptLimit = 3
	// ValidationOutputCap is the hard ceiling on captured validation
	// command output; bytes past it are discarded rather than let an
	// unbounded subprocess fill memory, and the command, left to run to
	// completion, is then judged failed as a buffer overflow.
	ValidationOutputCap = 20 * 1024 * 1024
	// ValidationSnippetLimit is how much of the validation output survives
	// into the persisted escalation row.
	ValidationSnippetLimit = 8000
)

// Options parameterizes one merge run.
type Options struct {
	SessionID string
	RunnerID  string

	// Workstreams is the ordered (completion order) list of workstreams to
	// merge.
	Workstreams []control.Workstream

	ProjectPath string // source repo the integration clone is made from

	Remote            string
	MainBranch        string
	LockTimeout       time.Duration
	HeartbeatInterval time.Duration
	IntegrationBranch string

	// ValidationCommand, if non-empty, is run in the integration workspace
	// before pushing.
	ValidationCommand []string

	// Cleanup, when true, removes every workstream's and the integration
	// workspace's clone directory on successful completion.
	Cleanup bool

	// CompleteSession controls the terminal session status: true marks the
	// session completed (the normal case); false resets it to running,
	// used when this call merged only one workstream out of several still
	// in flight.
	CompleteSession bool

	ConflictAttemptLimit int
}

func (o Options) remote() string {
	if o.Remote == "" {
		return DefaultRemote
	}
	return o.Remote
}

func (o Options) mainBranch() string {
	if o.MainBranch == "" {
		return DefaultMainBranch
	}
	return o.MainBranch
}

func (o Options) integrationBranch() string {
	if o.IntegrationBranch != "" {
		return o.IntegrationBranch
	}
	prefix := o.SessionID
	if len(prefix) > 8 {
		prefix = prefix[:8]
	}
	return "steroids/integration-" + prefix
}

func (o Options) conflictAttemptLimit() int {
	if o.ConflictAttemptLimit <= 0 {
		return DefaultConflictAttemptLimit
	}
	return o.ConflictAttemptLimit
}

func (o Options) heartbeatInterval() time.Duration {
	if o.HeartbeatInterval <= 0 {
		return DefaultHeartbeatInterval
	}
	return o.HeartbeatInterval
}

// Result summarizes one completed (or blocked) merge run.
type Result struct {
	SessionStatus  control.SessionStatus
	WorkstreamsRun int
	CommitsApplied int
	IntegrationDir string
}
