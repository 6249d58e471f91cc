package domain

import (
	"slices"
	"strings"
	"time"
)

// ItemType identifies the level of a work item in the containment tree.
type ItemType string

// ItemType values.
const (
	ItemTypeProject   ItemType = "project"
	ItemTypeMilestone ItemType = "milestone"
	ItemTypeTask      ItemType = "task"
	ItemTypeSubtask   ItemType = "subtask"
)

var validItemTypes = []ItemType{ItemTypeProject, ItemTypeMilestone, ItemTypeTask, ItemTypeSubtask}

// ItemStatus represents canonical workflow status values.
type ItemStatus string

// ItemStatus values.
const (
	StatusBacklog    ItemStatus = "backlog"
	StatusReady      ItemStatus = "ready"
	StatusInProgress ItemStatus = "in_progress"
	StatusBlocked    ItemStatus = "blocked"
	StatusReview     ItemStatus = "review"
	StatusDone       ItemStatus = "done"
	StatusCanceled   ItemStatus = "canceled"
)

var validItemStatuses = []ItemStatus{
	StatusBacklog,
	StatusReady,
	StatusInProgress,
	StatusBlocked,
	StatusReview,
	StatusDone,
	StatusCanceled,
}

// EstimateMode controls whether an item's own estimate participates in rollups.
type EstimateMode string

// EstimateMode values.
const (
	EstimateManual EstimateMode = "manual"
	// EstimateRollup ignores the item's own estimate in favour of its descendants'.
	EstimateRollup EstimateMode = "rollup"
)

// WorkItem is one node of both the containment tree (ParentID) and the precedence graph.
type WorkItem struct {
	ID              string
	ProjectID       string
	ParentID        string
	Type            ItemType
	Status          ItemStatus
	Title           string
	AssigneeID      string
	DueAt           *time.Time
	EstimateMinutes int
	EstimateMode    EstimateMode
	CreatedAt       time.Time
	UpdatedAt       time.Time
	CompletedAt     *time.Time
	ArchivedAt      *time.Time
}

// WorkItemInput holds values for NewWorkItem.
type WorkItemInput struct {
	ID              string
	ProjectID       string
	ParentID        string
	Type            ItemType
	Status          ItemStatus
	Title           string
	AssigneeID      string
	DueAt           *time.Time
	EstimateMinutes int
	EstimateMode    EstimateMode
}

// NewWorkItem validates and normalizes a new work item.
func NewWorkItem(in WorkItemInput, now time.Time) (WorkItem, error) {
	in.ID = strings.TrimSpace(in.ID)
	in.ProjectID = strings.TrimSpace(in.ProjectID)
	in.ParentID = strings.TrimSpace(in.ParentID)
	in.Title = strings.TrimSpace(in.Title)
	in.AssigneeID = strings.TrimSpace(in.AssigneeID)

	if in.ID == "" || in.ProjectID == "" {
		return WorkItem{}, ErrInvalidID
	}
	if in.ParentID == in.ID {
		return WorkItem{}, ErrInvalidParentID
	}
	if in.Title == "" {
		return WorkItem{}, ErrInvalidTitle
	}
	if in.EstimateMinutes < 0 {
		return WorkItem{}, ErrInvalidEstimate
	}

	itemType, err := NormalizeItemType(in.Type)
	if err != nil {
		return WorkItem{}, err
	}
	status := StatusBacklog
	if strings.TrimSpace(string(in.Status)) != "" {
		status, err = NormalizeItemStatus(in.Status)
		if err != nil {
			return WorkItem{}, err
		}
	}
	mode, err := NormalizeEstimateMode(in.EstimateMode)
	if err != nil {
		return WorkItem{}, err
	}

	item := WorkItem{
		ID:              in.ID,
		ProjectID:       in.ProjectID,
		ParentID:        in.ParentID,
		Type:            itemType,
		Status:          status,
		Title:           in.Title,
		AssigneeID:      in.AssigneeID,
		DueAt:           normalizeDueAt(in.DueAt),
		EstimateMinutes: in.EstimateMinutes,
		EstimateMode:    mode,
		CreatedAt:       now.UTC(),
		UpdatedAt:       now.UTC(),
	}
	if status == StatusDone {
		ts := now.UTC()
		item.CompletedAt = &ts
	}
	return item, nil
}

// UpdateDetails replaces editable scalar fields.
func (i *WorkItem) UpdateDetails(title, assigneeID string, dueAt *time.Time, estimateMinutes int, mode EstimateMode, now time.Time) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return ErrInvalidTitle
	}
	if estimateMinutes < 0 {
		return ErrInvalidEstimate
	}
	mode, err := NormalizeEstimateMode(mode)
	if err != nil {
		return err
	}
	i.Title = title
	i.AssigneeID = strings.TrimSpace(assigneeID)
	i.DueAt = normalizeDueAt(dueAt)
	i.EstimateMinutes = estimateMinutes
	i.EstimateMode = mode
	i.UpdatedAt = now.UTC()
	return nil
}

// SetStatus moves the item to a new status and keeps CompletedAt in sync.
func (i *WorkItem) SetStatus(status ItemStatus, now time.Time) error {
	status, err := NormalizeItemStatus(status)
	if err != nil {
		return err
	}
	ts := now.UTC()
	switch {
	case status == StatusDone && i.Status != StatusDone:
		i.CompletedAt = &ts
	case status != StatusDone:
		i.CompletedAt = nil
	}
	i.Status = status
	i.UpdatedAt = ts
	return nil
}

// Reparent moves the item under a new parent; "" makes it a root.
func (i *WorkItem) Reparent(parentID string, now time.Time) error {
	parentID = strings.TrimSpace(parentID)
	if parentID == i.ID {
		return ErrInvalidParentID
	}
	i.ParentID = parentID
	i.UpdatedAt = now.UTC()
	return nil
}

func (i *WorkItem) Archive(now time.Time) {
	ts := now.UTC()
	i.ArchivedAt = &ts
	i.UpdatedAt = ts
}

func (i *WorkItem) Restore(now time.Time) {
	i.ArchivedAt = nil
	i.UpdatedAt = now.UTC()
}

// IsClosed reports whether the item no longer accepts work.
func (i WorkItem) IsClosed() bool {
	return i.Status == StatusDone || i.Status == StatusCanceled
}

// NormalizeItemType canonicalizes an item type, defaulting to task.
func NormalizeItemType(t ItemType) (ItemType, error) {
	t = ItemType(strings.TrimSpace(strings.ToLower(string(t))))
	if t == "" {
		return ItemTypeTask, nil
	}
	if !slices.Contains(validItemTypes, t) {
		return "", ErrInvalidItemType
	}
	return t, nil
}

// NormalizeItemStatus canonicalizes status aliases.
func NormalizeItemStatus(s ItemStatus) (ItemStatus, error) {
	raw := strings.TrimSpace(strings.ToLower(string(s)))
	raw = strings.ReplaceAll(raw, "-", "_")
	switch raw {
	case "todo", "to_do":
		raw = string(StatusBacklog)
	case "doing", "progress", "started":
		raw = string(StatusInProgress)
	case "complete", "completed":
		raw = string(StatusDone)
	case "cancelled":
		raw = string(StatusCanceled)
	}
	status := ItemStatus(raw)
	if !slices.Contains(validItemStatuses, status) {
		return "", ErrInvalidStatus
	}
	return status, nil
}

// NormalizeEstimateMode canonicalizes an estimate mode, defaulting to manual.
func NormalizeEstimateMode(m EstimateMode) (EstimateMode, error) {
	switch EstimateMode(strings.TrimSpace(strings.ToLower(string(m)))) {
	case "", EstimateManual:
		return EstimateManual, nil
	case EstimateRollup:
		return EstimateRollup, nil
	default:
		return "", ErrInvalidEstimateMode
	}
}

func normalizeDueAt(dueAt *time.Time) *time.Time {
	if dueAt == nil {
		return nil
	}
	ts := dueAt.UTC().Truncate(time.Second)
	return &ts
}
