// Package engine derives dependency, schedule, and rollup projections from point-in-time
// snapshots of tracker records. Every function is pure: no I/O, no shared state.
package engine

import (
	"fmt"
	"time"

	"github.com/hylla/tempo/internal/domain"
)

// Status is the schedule-based evaluation result for one precedence edge.
type Status string

// Status values.
const (
	StatusSatisfied Status = "satisfied"
	StatusViolated  Status = "violated"
	// StatusUnknown means a required bound is missing; it is never reported as violated.
	StatusUnknown Status = "unknown"
)

// Window is an item's schedule envelope. Nil bounds mean the item has no blocks.
type Window struct {
	Start *time.Time
	End   *time.Time
}

// Known reports whether both bounds are present.
func (w Window) Known() bool {
	return w.Start != nil && w.End != nil
}

// Overlaps reports whether the window intersects [from, to).
func (w Window) Overlaps(from, to time.Time) bool {
	if !w.Known() {
		return false
	}
	return w.Start.Before(to) && w.End.After(from)
}

// DeriveEnd returns start plus durationMinutes, exact to the minute.
func DeriveEnd(start time.Time, durationMinutes int) time.Time {
	return start.Add(time.Duration(durationMinutes) * time.Minute)
}

// Evaluate checks one precedence constraint between a predecessor and successor window.
//
//	FS: successor.start >= predecessor.end   + lag
//	SS: successor.start >= predecessor.start + lag
//	FF: successor.end   >= predecessor.end   + lag
//	SF: successor.end   >= predecessor.start + lag
func Evaluate(pred, succ Window, depType domain.DependencyType, lagMinutes int) Status {
	var predBound, succBound *time.Time
	switch depType {
	case domain.DependencyFinishToStart:
		predBound, succBound = pred.End, succ.Start
	case domain.DependencyStartToStart:
		predBound, succBound = pred.Start, succ.Start
	case domain.DependencyFinishToFinish:
		predBound, succBound = pred.End, succ.End
	case domain.DependencyStartToFinish:
		predBound, succBound = pred.Start, succ.End
	default:
		return StatusUnknown
	}
	if predBound == nil || succBound == nil {
		return StatusUnknown
	}
	earliest := DeriveEnd(*predBound, lagMinutes)
	if succBound.Before(earliest) {
		return StatusViolated
	}
	return StatusSatisfied
}

// Reason renders the edge label shown next to a status, e.g. "FS +30m".
func Reason(depType domain.DependencyType, lagMinutes int) string {
	sign := "+"
	if lagMinutes < 0 {
		sign = "-"
		lagMinutes = -lagMinutes
	}
	return fmt.Sprintf("%s %s%dm", depType, sign, lagMinutes)
}
