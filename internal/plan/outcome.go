// Package plan runs the reconciliation tool's two-phase dry run (init, then
// plan) and turns its text output into counts.
package plan

import "time"

// Status is the result classification of a successful plan.
type Status string

const (
	StatusClean          Status = "clean"
	StatusChangesPending Status = "changes-pending"
	StatusError          Status = "error"
)

// Timing records how long each phase took. InitSkipped is set when a prior
// init in the same snapshot was reused.
type Timing struct {
	Init        time.Duration
	Plan        time.Duration
	InitSkipped bool
}

// Outcome is built once per run and not mutated afterwards.
type Outcome struct {
	Status             Status
	ResourcesRefreshed int
	PendingAdd         int
	PendingChange      int
	PendingDestroy     int
	PendingTotal       int
	// SummaryFound is false when no summary sentence matched; counts are then
	// zero by default rather than parsed.
	SummaryFound bool
	Timing       Timing
}

// Drifted reports whether the plan found pending changes.
func (o Outcome) Drifted() bool {
	return o.Status == StatusChangesPending
}
