package app

import (
	"context"

	"github.com/hylla/tempo/internal/domain"
)

// DependencyCheck validates a proposed edge against the project's current edges.
type DependencyCheck func(existing []domain.Dependency) error

// Repository represents repository data used by this package.
type Repository interface {
	CreateProject(context.Context, domain.Project) error
	UpdateProject(context.Context, domain.Project) error
	GetProject(context.Context, string) (domain.Project, error)
	ListProjects(context.Context, bool) ([]domain.Project, error)
	UpsertProjectMember(context.Context, domain.ProjectMember) error
	ListProjectMembers(context.Context, string) ([]domain.ProjectMember, error)

	CreateWorkItem(context.Context, domain.WorkItem) error
	UpdateWorkItem(context.Context, domain.WorkItem) error
	GetWorkItem(context.Context, string) (domain.WorkItem, error)
	ListWorkItems(context.Context, string, bool) ([]domain.WorkItem, error)
	ListWorkItemsByAssignee(context.Context, string, bool) ([]domain.WorkItem, error)
	DeleteWorkItem(context.Context, string) error

	// CreateDependencyChecked runs check against the project's edges and inserts the
	// edge in the same transaction. A check error aborts the insert.
	CreateDependencyChecked(context.Context, domain.Dependency, DependencyCheck) error
	GetDependency(context.Context, string) (domain.Dependency, error)
	DeleteDependency(context.Context, string) error
	ListDependencies(context.Context, string) ([]domain.Dependency, error)

	CreateScheduledBlock(context.Context, domain.ScheduledBlock) error
	UpdateScheduledBlock(context.Context, domain.ScheduledBlock) error
	GetScheduledBlock(context.Context, string) (domain.ScheduledBlock, error)
	DeleteScheduledBlock(context.Context, string) error
	ListScheduledBlocks(context.Context, string) ([]domain.ScheduledBlock, error)

	CreateTimeEntry(context.Context, domain.TimeEntry) error
	ListTimeEntries(context.Context, string) ([]domain.TimeEntry, error)

	CreateBlocker(context.Context, domain.Blocker) error
	UpdateBlocker(context.Context, domain.Blocker) error
	GetBlocker(context.Context, string) (domain.Blocker, error)
	ListBlockers(context.Context, string) ([]domain.Blocker, error)

	ListProjectChangeEvents(context.Context, string, int) ([]domain.ChangeEvent, error)
}

// Logger is the structured logging surface the service writes to.
type Logger interface {
	Debug(msg any, keyvals ...any)
	Info(msg any, keyvals ...any)
	Warn(msg any, keyvals ...any)
}

// ChangePublisher receives change events after a mutation commits.
type ChangePublisher interface {
	Publish(domain.ChangeEvent)
}

type nopLogger struct{}

func (nopLogger) Debug(any, ...any) {}
func (nopLogger) Info(any, ...any)  {}
func (nopLogger) Warn(any, ...any)  {}

type nopPublisher struct{}

func (nopPublisher) Publish(domain.ChangeEvent) {}
