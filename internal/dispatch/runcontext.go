package dispatch

import "github.com/githerald/githerald/internal/assemble"

// RunContext is the explicit per-run state threaded through the pipeline:
// the revisions already reported during this run and the shrinking budget
// for batched diffs. It replaces what would otherwise be package globals,
// so a run is reentrant and testable.
type RunContext struct {
	reported map[string]struct{}

	// Budget bounds the combined diffs of a changeset digest. Standalone
	// messages get a fresh budget each instead.
	Budget *assemble.ByteBudget

	// Forced bypasses the already-reported skip (manual replay).
	Forced bool
}

// NewRunContext creates the state for one run.
func NewRunContext(maxDiffBytes int, forced bool) *RunContext {
	return &RunContext{
		reported: make(map[string]struct{}),
		Budget:   &assemble.ByteBudget{Remaining: maxDiffBytes},
		Forced:   forced,
	}
}

// MarkReported records a revision as handled within this run.
func (rc *RunContext) MarkReported(id string) {
	rc.reported[id] = struct{}{}
}

// Reported reports whether the revision was already handled this run.
func (rc *RunContext) Reported(id string) bool {
	_, ok := rc.reported[id]
	return ok
}
