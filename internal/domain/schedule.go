package domain

import (
	"strconv"
	"strings"
	"time"
)

// ScheduledBlock is one concrete time placement for a work item.
type ScheduledBlock struct {
	ID              string
	ProjectID       string
	ItemID          string
	StartAt         time.Time
	DurationMinutes int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// EndAt returns StartAt plus the block duration in exact minutes.
func (b ScheduledBlock) EndAt() time.Time {
	return b.StartAt.Add(time.Duration(b.DurationMinutes) * time.Minute)
}

// ChangeMetadata is the change-event metadata recorded when the block is placed, moved, or removed.
func (b ScheduledBlock) ChangeMetadata() map[string]string {
	return map[string]string{
		"block_id":         b.ID,
		"start_at":         b.StartAt.UTC().Format(time.RFC3339Nano),
		"duration_minutes": strconv.Itoa(b.DurationMinutes),
	}
}

// ScheduledBlockInput holds values for NewScheduledBlock.
type ScheduledBlockInput struct {
	ID              string
	ProjectID       string
	ItemID          string
	StartAt         time.Time
	DurationMinutes int
}

// NewScheduledBlock validates a new block.
func NewScheduledBlock(in ScheduledBlockInput, now time.Time) (ScheduledBlock, error) {
	in.ID = strings.TrimSpace(in.ID)
	in.ProjectID = strings.TrimSpace(in.ProjectID)
	in.ItemID = strings.TrimSpace(in.ItemID)
	if in.ID == "" || in.ProjectID == "" || in.ItemID == "" {
		return ScheduledBlock{}, ErrInvalidID
	}
	if in.StartAt.IsZero() {
		return ScheduledBlock{}, ErrInvalidStartTime
	}
	if in.DurationMinutes <= 0 {
		return ScheduledBlock{}, ErrInvalidDuration
	}
	return ScheduledBlock{
		ID:              in.ID,
		ProjectID:       in.ProjectID,
		ItemID:          in.ItemID,
		StartAt:         in.StartAt.UTC(),
		DurationMinutes: in.DurationMinutes,
		CreatedAt:       now.UTC(),
		UpdatedAt:       now.UTC(),
	}, nil
}

// Move changes the placement of a block.
func (b *ScheduledBlock) Move(startAt time.Time, durationMinutes int, now time.Time) error {
	if startAt.IsZero() {
		return ErrInvalidStartTime
	}
	if durationMinutes <= 0 {
		return ErrInvalidDuration
	}
	b.StartAt = startAt.UTC()
	b.DurationMinutes = durationMinutes
	b.UpdatedAt = now.UTC()
	return nil
}

// TimeEntry records actual effort spent on an item.
type TimeEntry struct {
	ID        string
	ProjectID string
	ItemID    string
	UserID    string
	StartedAt time.Time
	Minutes   int
	Note      string
	CreatedAt time.Time
}

// ChangeMetadata is the change-event metadata recorded when the entry is logged.
func (e TimeEntry) ChangeMetadata() map[string]string {
	return map[string]string{
		"entry_id": e.ID,
		"user_id":  e.UserID,
		"minutes":  strconv.Itoa(e.Minutes),
	}
}

// TimeEntryInput holds values for NewTimeEntry.
type TimeEntryInput struct {
	ID        string
	ProjectID string
	ItemID    string
	UserID    string
	StartedAt time.Time
	Minutes   int
	Note      string
}

// NewTimeEntry validates a new time entry; a zero StartedAt defaults to now.
func NewTimeEntry(in TimeEntryInput, now time.Time) (TimeEntry, error) {
	in.ID = strings.TrimSpace(in.ID)
	in.ProjectID = strings.TrimSpace(in.ProjectID)
	in.ItemID = strings.TrimSpace(in.ItemID)
	if in.ID == "" || in.ProjectID == "" || in.ItemID == "" {
		return TimeEntry{}, ErrInvalidID
	}
	if in.Minutes <= 0 {
		return TimeEntry{}, ErrInvalidMinutes
	}
	startedAt := in.StartedAt
	if startedAt.IsZero() {
		startedAt = now
	}
	return TimeEntry{
		ID:        in.ID,
		ProjectID: in.ProjectID,
		ItemID:    in.ItemID,
		UserID:    strings.TrimSpace(in.UserID),
		StartedAt: startedAt.UTC(),
		Minutes:   in.Minutes,
		Note:      strings.TrimSpace(in.Note),
		CreatedAt: now.UTC(),
	}, nil
}

// Blocker is an explicit blocked flag raised against an item.
type Blocker struct {
	ID         string
	ProjectID  string
	ItemID     string
	Reason     string
	CreatedAt  time.Time
	ResolvedAt *time.Time
}

// NewBlocker validates a new open blocker.
func NewBlocker(id, projectID, itemID, reason string, now time.Time) (Blocker, error) {
	id = strings.TrimSpace(id)
	projectID = strings.TrimSpace(projectID)
	itemID = strings.TrimSpace(itemID)
	reason = strings.TrimSpace(reason)
	if id == "" || projectID == "" || itemID == "" {
		return Blocker{}, ErrInvalidID
	}
	if reason == "" {
		return Blocker{}, ErrInvalidReason
	}
	return Blocker{
		ID:        id,
		ProjectID: projectID,
		ItemID:    itemID,
		Reason:    reason,
		CreatedAt: now.UTC(),
	}, nil
}

// ChangeMetadata is the change-event metadata recorded when the blocker is raised or resolved.
func (b Blocker) ChangeMetadata() map[string]string {
	return map[string]string{
		"blocker_id": b.ID,
		"reason":     b.Reason,
	}
}

// IsOpen reports whether the blocker still applies.
func (b Blocker) IsOpen() bool {
	return b.ResolvedAt == nil
}

// Resolve closes the blocker.
func (b *Blocker) Resolve(now time.Time) error {
	if b.ResolvedAt != nil {
		return ErrBlockerResolved
	}
	ts := now.UTC()
	b.ResolvedAt = &ts
	return nil
}
