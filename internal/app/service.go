package app

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/hylla/tempo/internal/domain"
	"github.com/hylla/tempo/internal/engine"
)

// DeleteMode represents a selectable mode.
type DeleteMode string

// DeleteModeArchive and related constants define package defaults.
const (
	DeleteModeArchive DeleteMode = "archive"
	DeleteModeHard    DeleteMode = "hard"
)

// DefaultExecutionWindow is the window length used when a query omits its end.
const DefaultExecutionWindow = 7 * 24 * time.Hour

// ServiceConfig holds configuration for service.
type ServiceConfig struct {
	DefaultDeleteMode     DeleteMode
	DefaultDependencyType domain.DependencyType
	ExecutionWindow       time.Duration
	Logger                Logger
	Publisher             ChangePublisher
}

// IDGenerator returns unique identifiers for new entities.
type IDGenerator func() string

// Clock returns the current time.
type Clock func() time.Time

// Service represents service data used by this package.
type Service struct {
	repo              Repository
	idGen             IDGenerator
	clock             Clock
	defaultDeleteMode DeleteMode
	defaultDepType    domain.DependencyType
	window            time.Duration
	logger            Logger
	publisher         ChangePublisher
}

// NewService constructs a new value for this package.
func NewService(repo Repository, idGen IDGenerator, clock Clock, cfg ServiceConfig) *Service {
	if idGen == nil {
		idGen = func() string { return "" }
	}
	if clock == nil {
		clock = time.Now
	}
	if cfg.DefaultDeleteMode == "" {
		cfg.DefaultDeleteMode = DeleteModeArchive
	}
	if cfg.DefaultDependencyType == "" {
		cfg.DefaultDependencyType = domain.DependencyFinishToStart
	}
	if cfg.ExecutionWindow <= 0 {
		cfg.ExecutionWindow = DefaultExecutionWindow
	}
	if cfg.Logger == nil {
		cfg.Logger = nopLogger{}
	}
	if cfg.Publisher == nil {
		cfg.Publisher = nopPublisher{}
	}

	return &Service{
		repo:              repo,
		idGen:             idGen,
		clock:             clock,
		defaultDeleteMode: cfg.DefaultDeleteMode,
		defaultDepType:    cfg.DefaultDependencyType,
		window:            cfg.ExecutionWindow,
		logger:            cfg.Logger,
		publisher:         cfg.Publisher,
	}
}

// CreateProject creates project.
func (s *Service) CreateProject(ctx context.Context, name, description string) (domain.Project, error) {
	project, err := domain.NewProject(s.idGen(), name, description, s.clock())
	if err != nil {
		return domain.Project{}, err
	}
	if err := s.repo.CreateProject(ctx, project); err != nil {
		return domain.Project{}, err
	}
	s.logger.Info("project created", "project_id", project.ID, "slug", project.Slug)
	return project, nil
}

// ListProjects lists projects.
func (s *Service) ListProjects(ctx context.Context, includeArchived bool) ([]domain.Project, error) {
	return s.repo.ListProjects(ctx, includeArchived)
}

// AddProjectMember adds or updates one project membership.
func (s *Service) AddProjectMember(ctx context.Context, projectID, userID string, role domain.MemberRole) (domain.ProjectMember, error) {
	member, err := domain.NewProjectMember(projectID, userID, role, s.clock())
	if err != nil {
		return domain.ProjectMember{}, err
	}
	if _, err := s.repo.GetProject(ctx, member.ProjectID); err != nil {
		return domain.ProjectMember{}, err
	}
	if err := s.repo.UpsertProjectMember(ctx, member); err != nil {
		return domain.ProjectMember{}, err
	}
	return member, nil
}

// ListProjectMembers lists one project's members.
func (s *Service) ListProjectMembers(ctx context.Context, projectID string) ([]domain.ProjectMember, error) {
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return nil, domain.ErrInvalidID
	}
	return s.repo.ListProjectMembers(ctx, projectID)
}

// CreateItemInput holds input values for create item operations.
type CreateItemInput struct {
	ProjectID       string
	ParentID        string
	Type            domain.ItemType
	Status          domain.ItemStatus
	Title           string
	AssigneeID      string
	DueAt           *time.Time
	EstimateMinutes int
	EstimateMode    domain.EstimateMode
}

// CreateItem creates a work item.
func (s *Service) CreateItem(ctx context.Context, in CreateItemInput) (domain.WorkItem, error) {
	if _, err := s.repo.GetProject(ctx, strings.TrimSpace(in.ProjectID)); err != nil {
		return domain.WorkItem{}, err
	}
	item, err := domain.NewWorkItem(domain.WorkItemInput{
		ID:              s.idGen(),
		ProjectID:       in.ProjectID,
		ParentID:        in.ParentID,
		Type:            in.Type,
		Status:          in.Status,
		Title:           in.Title,
		AssigneeID:      in.AssigneeID,
		DueAt:           in.DueAt,
		EstimateMinutes: in.EstimateMinutes,
		EstimateMode:    in.EstimateMode,
	}, s.clock())
	if err != nil {
		return domain.WorkItem{}, err
	}
	if item.ParentID != "" {
		parent, err := s.repo.GetWorkItem(ctx, item.ParentID)
		if err != nil {
			return domain.WorkItem{}, err
		}
		if parent.ProjectID != item.ProjectID {
			return domain.WorkItem{}, domain.ErrInvalidParentID
		}
	}
	if err := s.repo.CreateWorkItem(ctx, item); err != nil {
		return domain.WorkItem{}, err
	}
	s.publish(ctx, item.ProjectID, item.ID, domain.ChangeOperationCreate, map[string]string{"title": item.Title})
	return item, nil
}

// UpdateItemInput holds input values for update item operations.
type UpdateItemInput struct {
	ItemID          string
	Title           string
	AssigneeID      string
	DueAt           *time.Time
	EstimateMinutes int
	EstimateMode    domain.EstimateMode
}

// UpdateItem replaces an item's editable fields.
func (s *Service) UpdateItem(ctx context.Context, in UpdateItemInput) (domain.WorkItem, error) {
	item, err := s.repo.GetWorkItem(ctx, in.ItemID)
	if err != nil {
		return domain.WorkItem{}, err
	}
	if err := item.UpdateDetails(in.Title, in.AssigneeID, in.DueAt, in.EstimateMinutes, in.EstimateMode, s.clock()); err != nil {
		return domain.WorkItem{}, err
	}
	if err := s.repo.UpdateWorkItem(ctx, item); err != nil {
		return domain.WorkItem{}, err
	}
	s.publish(ctx, item.ProjectID, item.ID, domain.ChangeOperationUpdate, nil)
	return item, nil
}

// SetItemStatus moves an item to a new workflow status.
func (s *Service) SetItemStatus(ctx context.Context, itemID string, status domain.ItemStatus) (domain.WorkItem, error) {
	item, err := s.repo.GetWorkItem(ctx, itemID)
	if err != nil {
		return domain.WorkItem{}, err
	}
	from := item.Status
	if err := item.SetStatus(status, s.clock()); err != nil {
		return domain.WorkItem{}, err
	}
	if err := s.repo.UpdateWorkItem(ctx, item); err != nil {
		return domain.WorkItem{}, err
	}
	s.publish(ctx, item.ProjectID, item.ID, domain.ChangeOperationUpdate, map[string]string{
		"from_status": string(from),
		"to_status":   string(item.Status),
	})
	return item, nil
}

// ReparentItem moves an item under a new parent within its project. A parent that is
// the item itself or one of its descendants is rejected.
func (s *Service) ReparentItem(ctx context.Context, itemID, parentID string) (domain.WorkItem, error) {
	item, err := s.repo.GetWorkItem(ctx, itemID)
	if err != nil {
		return domain.WorkItem{}, err
	}
	parentID = strings.TrimSpace(parentID)
	if parentID == item.ID {
		return domain.WorkItem{}, domain.ErrParentCycle
	}
	if parentID != "" {
		parent, err := s.repo.GetWorkItem(ctx, parentID)
		if err != nil {
			return domain.WorkItem{}, err
		}
		if parent.ProjectID != item.ProjectID {
			return domain.WorkItem{}, domain.ErrInvalidParentID
		}
		items, err := s.repo.ListWorkItems(ctx, item.ProjectID, true)
		if err != nil {
			return domain.WorkItem{}, err
		}
		if isAncestorOrSelf(items, item.ID, parent.ID) {
			return domain.WorkItem{}, domain.ErrParentCycle
		}
	}
	from := item.ParentID
	if err := item.Reparent(parentID, s.clock()); err != nil {
		return domain.WorkItem{}, err
	}
	if err := s.repo.UpdateWorkItem(ctx, item); err != nil {
		return domain.WorkItem{}, err
	}
	s.publish(ctx, item.ProjectID, item.ID, domain.ChangeOperationReparent, map[string]string{
		"from_parent_id": from,
		"to_parent_id":   item.ParentID,
	})
	return item, nil
}

// isAncestorOrSelf reports whether ancestorID appears on the parent chain of startID,
// startID included. An already malformed chain stops at the first repeat.
func isAncestorOrSelf(items []domain.WorkItem, ancestorID, startID string) bool {
	parents := make(map[string]string, len(items))
	for _, item := range items {
		parents[item.ID] = item.ParentID
	}
	seen := map[string]struct{}{}
	for current := startID; current != ""; current = parents[current] {
		if current == ancestorID {
			return true
		}
		if _, ok := seen[current]; ok {
			return false
		}
		seen[current] = struct{}{}
	}
	return false
}

// DeleteItem archives or hard-deletes an item. Hard deletes remove the item's edges,
// blocks, time entries, and blockers with it.
func (s *Service) DeleteItem(ctx context.Context, itemID string, mode DeleteMode) error {
	if mode == "" {
		mode = s.defaultDeleteMode
	}

	switch mode {
	case DeleteModeArchive:
		item, err := s.repo.GetWorkItem(ctx, itemID)
		if err != nil {
			return err
		}
		item.Archive(s.clock())
		if err := s.repo.UpdateWorkItem(ctx, item); err != nil {
			return err
		}
		s.publish(ctx, item.ProjectID, item.ID, domain.ChangeOperationArchive, nil)
		return nil
	case DeleteModeHard:
		item, err := s.repo.GetWorkItem(ctx, itemID)
		if err != nil {
			return err
		}
		if err := s.repo.DeleteWorkItem(ctx, item.ID); err != nil {
			return err
		}
		s.publish(ctx, item.ProjectID, item.ID, domain.ChangeOperationDelete, map[string]string{"title": item.Title})
		return nil
	default:
		return ErrInvalidDeleteMode
	}
}

// AddDependencyInput holds input values for add dependency operations.
type AddDependencyInput struct {
	ItemID      string
	DependsOnID string
	Type        string
	LagMinutes  int
}

// AddDependency records "ItemID depends on DependsOnID". The cycle check and the insert
// share one storage transaction; a rejected edge is never persisted.
func (s *Service) AddDependency(ctx context.Context, in AddDependencyInput) (domain.Dependency, error) {
	in.ItemID = strings.TrimSpace(in.ItemID)
	in.DependsOnID = strings.TrimSpace(in.DependsOnID)
	if in.ItemID == "" || in.DependsOnID == "" {
		return domain.Dependency{}, domain.ErrInvalidID
	}
	if in.ItemID == in.DependsOnID {
		return domain.Dependency{}, domain.ErrSelfDependency
	}
	depType := domain.DependencyType(strings.TrimSpace(in.Type))
	if depType == "" {
		depType = s.defaultDepType
	}

	successor, err := s.repo.GetWorkItem(ctx, in.ItemID)
	if err != nil {
		return domain.Dependency{}, fmt.Errorf("item %q: %w", in.ItemID, err)
	}
	predecessor, err := s.repo.GetWorkItem(ctx, in.DependsOnID)
	if err != nil {
		return domain.Dependency{}, fmt.Errorf("depends_on %q: %w", in.DependsOnID, err)
	}
	if successor.ProjectID != predecessor.ProjectID {
		return domain.Dependency{}, domain.ErrCrossProjectDependency
	}

	dep, err := domain.NewDependency(domain.DependencyInput{
		ID:          s.idGen(),
		ProjectID:   successor.ProjectID,
		ItemID:      successor.ID,
		DependsOnID: predecessor.ID,
		Type:        depType,
		LagMinutes:  in.LagMinutes,
	}, s.clock())
	if err != nil {
		return domain.Dependency{}, err
	}

	err = s.repo.CreateDependencyChecked(ctx, dep, func(existing []domain.Dependency) error {
		return engine.GuardDependency(existing, dep)
	})
	if err != nil {
		if errors.Is(err, domain.ErrDependencyCycle) {
			s.logger.Warn("dependency rejected", "item_id", dep.ItemID, "depends_on_id", dep.DependsOnID, "err", err)
		}
		return domain.Dependency{}, err
	}
	s.publish(ctx, dep.ProjectID, dep.ItemID, domain.ChangeOperationDependencyAdd, dep.ChangeMetadata())
	return dep, nil
}

// RemoveDependency deletes one edge.
func (s *Service) RemoveDependency(ctx context.Context, dependencyID string) error {
	dep, err := s.repo.GetDependency(ctx, strings.TrimSpace(dependencyID))
	if err != nil {
		return err
	}
	if err := s.repo.DeleteDependency(ctx, dep.ID); err != nil {
		return err
	}
	s.publish(ctx, dep.ProjectID, dep.ItemID, domain.ChangeOperationDependencyDrop, dep.ChangeMetadata())
	return nil
}

// ScheduleBlockInput holds input values for schedule block operations.
type ScheduleBlockInput struct {
	ItemID          string
	StartAt         time.Time
	DurationMinutes int
}

// ScheduleBlock places a new time block on an item.
func (s *Service) ScheduleBlock(ctx context.Context, in ScheduleBlockInput) (domain.ScheduledBlock, error) {
	item, err := s.repo.GetWorkItem(ctx, strings.TrimSpace(in.ItemID))
	if err != nil {
		return domain.ScheduledBlock{}, err
	}
	block, err := domain.NewScheduledBlock(domain.ScheduledBlockInput{
		ID:              s.idGen(),
		ProjectID:       item.ProjectID,
		ItemID:          item.ID,
		StartAt:         in.StartAt,
		DurationMinutes: in.DurationMinutes,
	}, s.clock())
	if err != nil {
		return domain.ScheduledBlock{}, err
	}
	if err := s.repo.CreateScheduledBlock(ctx, block); err != nil {
		return domain.ScheduledBlock{}, err
	}
	s.publish(ctx, block.ProjectID, block.ItemID, domain.ChangeOperationSchedule, block.ChangeMetadata())
	return block, nil
}

// UpdateBlock moves or resizes a block.
func (s *Service) UpdateBlock(ctx context.Context, blockID string, startAt time.Time, durationMinutes int) (domain.ScheduledBlock, error) {
	block, err := s.repo.GetScheduledBlock(ctx, strings.TrimSpace(blockID))
	if err != nil {
		return domain.ScheduledBlock{}, err
	}
	if err := block.Move(startAt, durationMinutes, s.clock()); err != nil {
		return domain.ScheduledBlock{}, err
	}
	if err := s.repo.UpdateScheduledBlock(ctx, block); err != nil {
		return domain.ScheduledBlock{}, err
	}
	s.publish(ctx, block.ProjectID, block.ItemID, domain.ChangeOperationSchedule, block.ChangeMetadata())
	return block, nil
}

// DeleteBlock removes a block.
func (s *Service) DeleteBlock(ctx context.Context, blockID string) error {
	block, err := s.repo.GetScheduledBlock(ctx, strings.TrimSpace(blockID))
	if err != nil {
		return err
	}
	if err := s.repo.DeleteScheduledBlock(ctx, block.ID); err != nil {
		return err
	}
	s.publish(ctx, block.ProjectID, block.ItemID, domain.ChangeOperationUnschedule, block.ChangeMetadata())
	return nil
}

// LogTimeInput holds input values for log time operations.
type LogTimeInput struct {
	ItemID    string
	UserID    string
	StartedAt time.Time
	Minutes   int
	Note      string
}

// LogTime records actual effort against an item.
func (s *Service) LogTime(ctx context.Context, in LogTimeInput) (domain.TimeEntry, error) {
	item, err := s.repo.GetWorkItem(ctx, strings.TrimSpace(in.ItemID))
	if err != nil {
		return domain.TimeEntry{}, err
	}
	userID := strings.TrimSpace(in.UserID)
	if userID == "" {
		userID = ActorID(ctx)
	}
	entry, err := domain.NewTimeEntry(domain.TimeEntryInput{
		ID:        s.idGen(),
		ProjectID: item.ProjectID,
		ItemID:    item.ID,
		UserID:    userID,
		StartedAt: in.StartedAt,
		Minutes:   in.Minutes,
		Note:      in.Note,
	}, s.clock())
	if err != nil {
		return domain.TimeEntry{}, err
	}
	if err := s.repo.CreateTimeEntry(ctx, entry); err != nil {
		return domain.TimeEntry{}, err
	}
	s.publish(ctx, entry.ProjectID, entry.ItemID, domain.ChangeOperationTimeLogged, entry.ChangeMetadata())
	return entry, nil
}

// RaiseBlocker flags an item as explicitly blocked.
func (s *Service) RaiseBlocker(ctx context.Context, itemID, reason string) (domain.Blocker, error) {
	item, err := s.repo.GetWorkItem(ctx, strings.TrimSpace(itemID))
	if err != nil {
		return domain.Blocker{}, err
	}
	blocker, err := domain.NewBlocker(s.idGen(), item.ProjectID, item.ID, reason, s.clock())
	if err != nil {
		return domain.Blocker{}, err
	}
	if err := s.repo.CreateBlocker(ctx, blocker); err != nil {
		return domain.Blocker{}, err
	}
	s.publish(ctx, blocker.ProjectID, blocker.ItemID, domain.ChangeOperationBlockerRaised, blocker.ChangeMetadata())
	return blocker, nil
}

// ResolveBlocker clears an open blocker.
func (s *Service) ResolveBlocker(ctx context.Context, blockerID string) (domain.Blocker, error) {
	blocker, err := s.repo.GetBlocker(ctx, strings.TrimSpace(blockerID))
	if err != nil {
		return domain.Blocker{}, err
	}
	if err := blocker.Resolve(s.clock()); err != nil {
		return domain.Blocker{}, err
	}
	if err := s.repo.UpdateBlocker(ctx, blocker); err != nil {
		return domain.Blocker{}, err
	}
	s.publish(ctx, blocker.ProjectID, blocker.ItemID, domain.ChangeOperationBlockerResolved, blocker.ChangeMetadata())
	return blocker, nil
}

// ListProjectChangeEvents lists recent change events for a project.
func (s *Service) ListProjectChangeEvents(ctx context.Context, projectID string, limit int) ([]domain.ChangeEvent, error) {
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return nil, domain.ErrInvalidID
	}
	return s.repo.ListProjectChangeEvents(ctx, projectID, limit)
}

// publish fans a committed mutation out to live subscribers.
func (s *Service) publish(ctx context.Context, projectID, itemID string, op domain.ChangeOperation, metadata map[string]string) {
	if metadata == nil {
		metadata = map[string]string{}
	}
	s.publisher.Publish(domain.ChangeEvent{
		ProjectID:  projectID,
		WorkItemID: itemID,
		Operation:  op,
		ActorID:    ActorID(ctx),
		Metadata:   metadata,
		OccurredAt: s.clock().UTC(),
	})
	s.logger.Debug("change published", "project_id", projectID, "item_id", itemID, "op", op)
}

// sortItems orders items by project then id.
func sortItems(items []domain.WorkItem) {
	slices.SortFunc(items, func(a, b domain.WorkItem) int {
		if c := strings.Compare(a.ProjectID, b.ProjectID); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}
