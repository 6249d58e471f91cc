package domain

import "time"

// ChangeOperation describes a persisted activity operation.
type ChangeOperation string

// ChangeOperation values used by the local activity ledger.
const (
	ChangeOperationCreate          ChangeOperation = "create"
	ChangeOperationUpdate          ChangeOperation = "update"
	ChangeOperationReparent        ChangeOperation = "reparent"
	ChangeOperationArchive         ChangeOperation = "archive"
	ChangeOperationDelete          ChangeOperation = "delete"
	ChangeOperationDependencyAdd   ChangeOperation = "dependency_add"
	ChangeOperationDependencyDrop  ChangeOperation = "dependency_remove"
	ChangeOperationSchedule        ChangeOperation = "schedule"
	ChangeOperationUnschedule      ChangeOperation = "unschedule"
	ChangeOperationTimeLogged      ChangeOperation = "time_logged"
	ChangeOperationBlockerRaised   ChangeOperation = "blocker_raised"
	ChangeOperationBlockerResolved ChangeOperation = "blocker_resolved"
)

// ChangeEvent represents a single activity-log entry for a project work item.
type ChangeEvent struct {
	ID         int64
	ProjectID  string
	WorkItemID string
	Operation  ChangeOperation
	ActorID    string
	Metadata   map[string]string
	OccurredAt time.Time
}
