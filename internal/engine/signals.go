package engine

import (
	"math"
	"time"

	"github.com/hylla/tempo/internal/domain"
)

// SlackMinutes returns due minus end in whole minutes, rounded down so any due date
// before the end is negative. Nil when either instant is missing.
func SlackMinutes(due, end *time.Time) *int {
	if due == nil || end == nil {
		return nil
	}
	slack := int(math.Floor(due.Sub(*end).Minutes()))
	return &slack
}

// IsOverdue reports whether an open, unarchived item is past its due date.
func IsOverdue(item domain.WorkItem, now time.Time) bool {
	if item.DueAt == nil || item.ArchivedAt != nil || item.IsClosed() {
		return false
	}
	return item.DueAt.Before(now)
}
