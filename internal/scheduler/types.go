// Package scheduler turns the set of sections with pending work into an
// ordered list of workstreams, clips that list to a maximum clone count,
// and launches each survivor as its own workspace clone and detached
// runner process.
//
// It is the producer side of the lease/claim machinery in
// internal/control: every workstream it launches is already row-inserted
// and lease-claimed by the time the child process starts, so the child
// never has to race anyone for its own identity.
package scheduler

import (
	"time"

	steroidserrors "github.com/steroids-run/steroids/internal/errors"
)

// Strategy selects how sections are grouped into workstreams.
type Strategy string

const (
	// PerSection gives each section whose dependencies are already met its
	// own workstream. Sections still waiting on a dependency sit out this
	// session.
	PerSection Strategy = "per_section"

	// Partitioned groups sections into weakly-connected components of the
	// dependency graph, so a chain of interdependent sections shares one
	// workstream instead of serializing across several.
	Partitioned Strategy = "partitioned"
)

// DefaultMaxClones is the default ceiling on concurrently launched
// workstreams when the caller does not override it.
const DefaultMaxClones = 3

// DefaultLeaseDuration is how far out a freshly claimed workstream lease's
// expiry is set.
const DefaultLeaseDuration = 120 * time.Second

// Config parameterizes one scheduling pass.
type Config struct {
	Strategy Strategy
	// MaxClones bounds how many workstreams are launched concurrently.
	// Zero means DefaultMaxClones.
	MaxClones int

	// ProjectPath is the canonical path of the project git checkout being
	// cloned from.
	ProjectPath string
	// WorkspaceRoot is the directory under which per-workstream clones are
	// created: <WorkspaceRoot>/<hash(ProjectPath)>/<workstream-id>/.
	WorkspaceRoot string

	// AllowSharedMutableDeps asks for a hydration command to be allowed to
	// target a dependency directory shared across workstream clones.
	// Shared mutable dependency directories are forbidden; the scheduler
	// refuses to launch any workstream when this is set.
	AllowSharedMutableDeps bool

	// HydrateCommand, if non-empty, is run inside each workspace clone
	// after checkout (e.g. a dependency install step).
	HydrateCommand []string

	// RunnerID identifies the process performing this scheduling pass; it
	// becomes the initial lease holder of every workstream it creates.
	RunnerID string
	// SessionID is the parallel session every launched workstream belongs
	// to.
	SessionID string
	// Binary and DaemonLogDir describe how to spawn each workstream's
	// detached child process.
	Binary       string
	DaemonLogDir string
}

func (c Config) maxClones() int {
	if c.MaxClones <= 0 {
		return DefaultMaxClones
	}
	return c.MaxClones
}

// WorkstreamPlan is a dependency-closed group of sections destined to
// become one workstream, before any workspace or control-plane state has
// been created for it.
type WorkstreamPlan struct {
	ID         string
	SectionIDs []string // ordered
	Branch     string
}

// ErrSharedMutableDeps is returned when Config.AllowSharedMutableDeps is
// set; the scheduler refuses to launch rather than risk two workstreams
// writing the same dependency directory concurrently.
var ErrSharedMutableDeps = steroidserrors.NewFault(
	steroidserrors.FaultSafetyViolation,
	"shared mutable dependency directories are forbidden; refusing to launch workstreams",
)
