// Package common provides transport-agnostic server contracts used by HTTP and MCP adapters.
package common

import (
	"context"
	"errors"
	"time"

	"github.com/hylla/tempo/internal/domain"
	"github.com/hylla/tempo/internal/engine"
)

// ErrInvalidRequest reports malformed transport input or a rejected validation rule.
var ErrInvalidRequest = errors.New("invalid request")

// ErrNotFound reports missing transport-visible resources.
var ErrNotFound = errors.New("not found")

// ErrDependencyCycle reports an edge rejected because it would close a cycle.
var ErrDependencyCycle = errors.New("dependency cycle")

// ErrDuplicateDependency reports an edge that already exists.
var ErrDuplicateDependency = errors.New("duplicate dependency")

// Error codes shared by every transport.
const (
	CodeInvalidRequest      = "invalid_request"
	CodeNotFound            = "not_found"
	CodeDependencyCycle     = "dependency_cycle"
	CodeDuplicateDependency = "duplicate_dependency"
	CodeInternal            = "internal_error"
)

// ErrorCode returns the wire code for one adapter error.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrDependencyCycle):
		return CodeDependencyCycle
	case errors.Is(err, ErrDuplicateDependency):
		return CodeDuplicateDependency
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrInvalidRequest):
		return CodeInvalidRequest
	default:
		return CodeInternal
	}
}

// ScopeRequest selects one project or one assignee's items.
type ScopeRequest struct {
	ProjectID       string `json:"project_id,omitempty" validate:"required_without=AssigneeID,excluded_with=AssigneeID"`
	AssigneeID      string `json:"assignee_id,omitempty" validate:"required_without=ProjectID"`
	IncludeArchived bool   `json:"include_archived,omitempty"`
}

// AddDependencyRequest records "item_id depends on depends_on_id".
type AddDependencyRequest struct {
	ItemID      string `json:"item_id" validate:"required"`
	DependsOnID string `json:"depends_on_id" validate:"required"`
	Type        string `json:"type,omitempty" validate:"omitempty,max=2"`
	LagMinutes  int    `json:"lag_minutes,omitempty" validate:"gte=-525600,lte=525600"`
	Actor       string `json:"actor,omitempty" validate:"omitempty,max=128"`
}

// RemoveDependencyRequest deletes one edge.
type RemoveDependencyRequest struct {
	ID    string `json:"id" validate:"required"`
	Actor string `json:"actor,omitempty" validate:"omitempty,max=128"`
}

// ExecutionWindowRequest selects scoped items scheduled within [from, to).
type ExecutionWindowRequest struct {
	ScopeRequest
	From *time.Time `json:"from,omitempty"`
	To   *time.Time `json:"to,omitempty"`
}

// BatchOp is one independent operation within a batch.
type BatchOp struct {
	Op              string     `json:"op"`
	ItemID          string     `json:"item_id,omitempty"`
	DependsOnID     string     `json:"depends_on_id,omitempty"`
	DependencyID    string     `json:"dependency_id,omitempty"`
	Type            string     `json:"type,omitempty"`
	LagMinutes      int        `json:"lag_minutes,omitempty"`
	StartAt         *time.Time `json:"start_at,omitempty"`
	DurationMinutes int        `json:"duration_minutes,omitempty"`
	Status          string     `json:"status,omitempty"`
}

// BatchRequest carries ordered batch operations. Ops are validated one by one so a
// malformed op fails alone.
type BatchRequest struct {
	Ops   []BatchOp `json:"ops" validate:"required,min=1,max=500"`
	Actor string    `json:"actor,omitempty" validate:"omitempty,max=128"`
}

// Dependency is the wire form of one precedence edge.
type Dependency struct {
	ID          string                `json:"id"`
	ProjectID   string                `json:"project_id"`
	ItemID      string                `json:"item_id"`
	DependsOnID string                `json:"depends_on_id"`
	Type        domain.DependencyType `json:"type"`
	LagMinutes  int                   `json:"lag_minutes"`
	CreatedAt   time.Time             `json:"created_at"`
}

// ExecutionWindow is the execution-window view with its resolved bounds.
type ExecutionWindow struct {
	From  time.Time         `json:"from"`
	To    time.Time         `json:"to"`
	Items []engine.ItemView `json:"items"`
}

// ScheduledBlock is the wire form of one time block.
type ScheduledBlock struct {
	ID              string    `json:"id"`
	ItemID          string    `json:"item_id"`
	StartAt         time.Time `json:"start_at"`
	EndAt           time.Time `json:"end_at"`
	DurationMinutes int       `json:"duration_minutes"`
}

// TimeEntry is the wire form of one effort record.
type TimeEntry struct {
	ID        string    `json:"id"`
	ItemID    string    `json:"item_id"`
	UserID    string    `json:"user_id"`
	StartedAt time.Time `json:"started_at"`
	Minutes   int       `json:"minutes"`
	Note      string    `json:"note,omitempty"`
}

// Blocker is the wire form of one explicit blocker.
type Blocker struct {
	ID         string     `json:"id"`
	ItemID     string     `json:"item_id"`
	Reason     string     `json:"reason"`
	CreatedAt  time.Time  `json:"created_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

// ItemDetails is one analyzed item with its raw schedule, effort, and blocker records.
type ItemDetails struct {
	Item        engine.ItemView   `json:"item"`
	Children    []engine.ItemView `json:"children"`
	Blocks      []ScheduledBlock  `json:"blocks"`
	TimeEntries []TimeEntry       `json:"time_entries"`
	Blockers    []Blocker         `json:"blockers"`
}

// BatchError is the wire form of one failed batch operation.
type BatchError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// BatchResult reports one batch operation outcome.
type BatchResult struct {
	Index int         `json:"index"`
	Op    string      `json:"op"`
	ID    string      `json:"id,omitempty"`
	OK    bool        `json:"ok"`
	Error *BatchError `json:"error,omitempty"`
}

// ChangeEvent is the wire form of one committed mutation.
type ChangeEvent struct {
	ProjectID  string            `json:"project_id"`
	ItemID     string            `json:"item_id"`
	Operation  string            `json:"operation"`
	ActorID    string            `json:"actor_id"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// DependencyService captures cycle-guarded edge mutations.
type DependencyService interface {
	AddDependency(context.Context, AddDependencyRequest) (Dependency, error)
	RemoveDependency(context.Context, RemoveDependencyRequest) error
}

// ViewService captures projection and diagnostic reads.
type ViewService interface {
	ListView(context.Context, ScopeRequest) ([]engine.ItemView, error)
	ExecutionWindow(context.Context, ExecutionWindowRequest) (ExecutionWindow, error)
	BlockedView(context.Context, ScopeRequest) ([]engine.ItemView, error)
	ItemDetails(context.Context, string) (ItemDetails, error)
	IntegrityReport(context.Context, ScopeRequest) (engine.Report, error)
}

// BatchService applies independent operation batches.
type BatchService interface {
	ApplyBatch(context.Context, BatchRequest) ([]BatchResult, error)
}

// EventSource streams committed change events for one project ("" means all).
type EventSource interface {
	Subscribe(context.Context, string) <-chan ChangeEvent
}

// Service is the full app-facing surface served by HTTP and MCP.
type Service interface {
	DependencyService
	ViewService
	BatchService
}
