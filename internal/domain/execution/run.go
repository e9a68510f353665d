package execution

import (
	"fmt"
	"time"
)

// Run is the mutable lifecycle record of one Submission.
type Run struct {
	ID         string
	Submission Submission
	State      RunState
	CreatedAt  time.Time
	StartedAt  time.Time
	EndedAt    time.Time
	Result     *Result
}

// Advance moves the run to next. Terminal states are final and a run never
// returns to queued.
func (r *Run) Advance(next RunState, at time.Time) error {
	if r.State.Terminal() {
		return fmt.Errorf("run %s: transition %s -> %s from terminal state", r.ID, r.State, next)
	}
	if next == StateQueued && r.State != "" {
		return fmt.Errorf("run %s: transition %s -> %s not allowed", r.ID, r.State, next)
	}
	if next == StateRunning && r.State != StateQueued {
		return fmt.Errorf("run %s: transition %s -> %s not allowed", r.ID, r.State, next)
	}

	r.State = next
	switch {
	case next == StateQueued:
		r.CreatedAt = at
	case next == StateRunning:
		r.StartedAt = at
	case next.Terminal():
		r.EndedAt = at
	}
	return nil
}

// Snapshot returns a copy of the run that shares no mutable state.
func (r *Run) Snapshot() Run {
	out := *r
	out.Result = r.Result.Clone()
	return out
}
