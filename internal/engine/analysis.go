package engine

import (
	"slices"
	"strings"
	"time"

	"github.com/hylla/tempo/internal/domain"
)

// Snapshot is the point-in-time record set one query analyzes.
type Snapshot struct {
	Items        []domain.WorkItem
	Dependencies []domain.Dependency
	Blocks       []domain.ScheduledBlock
	TimeEntries  []domain.TimeEntry
	Blockers     []domain.Blocker
}

// Options tunes one Analyze call.
type Options struct {
	// Now is the instant overdue flags are evaluated against.
	Now time.Time
	// ScopeItemIDs restricts the returned views and the rollup tree. Items outside the
	// scope still resolve as dependency counterparts. Empty means every item.
	ScopeItemIDs []string
}

// ItemView is a work item annotated with every derived signal read views expose.
type ItemView struct {
	ID              string              `json:"id"`
	ProjectID       string              `json:"project_id"`
	ParentID        string              `json:"parent_id,omitempty"`
	Type            domain.ItemType     `json:"type"`
	Status          domain.ItemStatus   `json:"status"`
	Title           string              `json:"title"`
	AssigneeID      string              `json:"assignee_id,omitempty"`
	DueAt           *time.Time          `json:"due_at"`
	EstimateMinutes int                 `json:"estimate_minutes"`
	EstimateMode    domain.EstimateMode `json:"estimate_mode"`
	CompletedAt     *time.Time          `json:"completed_at"`
	ArchivedAt      *time.Time          `json:"archived_at"`

	ScheduleStartAt  *time.Time `json:"schedule_start_at"`
	ScheduleEndAt    *time.Time `json:"schedule_end_at"`
	ScheduledMinutes int        `json:"scheduled_minutes"`
	BlockCount       int        `json:"block_count"`
	SlackMinutes     *int       `json:"slack_minutes"`
	ActualMinutes    int        `json:"actual_minutes"`
	OpenBlockers     int        `json:"open_blockers"`

	BlockedBy         []LinkedItem `json:"blocked_by"`
	Blocking          []LinkedItem `json:"blocking"`
	UnmetDependency   bool         `json:"unmet_dependency"`
	ScheduleViolation bool         `json:"schedule_violation"`
	Blocked           bool         `json:"blocked"`
	Overdue           bool         `json:"overdue"`

	RollupStartAt          *time.Time `json:"rollup_start_at"`
	RollupEndAt            *time.Time `json:"rollup_end_at"`
	RollupEstimateMinutes  int        `json:"rollup_estimate_minutes"`
	RollupActualMinutes    int        `json:"rollup_actual_minutes"`
	RollupRemainingMinutes int        `json:"rollup_remaining_minutes"`
	RollupBlockedCount     int        `json:"rollup_blocked_count"`
	RollupOverdueCount     int        `json:"rollup_overdue_count"`
}

// NeedsAttention reports whether the item belongs in the blocked view: explicitly
// blocked, waiting on an unfinished predecessor, or scheduled against a violated edge.
func (v ItemView) NeedsAttention() bool {
	return v.Blocked || v.ScheduleViolation
}

// Analysis is the composed result of one Analyze call.
type Analysis struct {
	views     []ItemView
	index     map[string]int
	projector *Projector
}

// Analyze runs summarizer, projector, and rollup once over a snapshot. Every read view
// goes through it so one edge reports the same status everywhere.
func Analyze(snap Snapshot, opts Options) *Analysis {
	summaries := SummarizeByItem(snap.Blocks)
	projector := NewProjector(snap.Items, snap.Dependencies, summaries)

	actual := map[string]int{}
	for _, entry := range snap.TimeEntries {
		actual[entry.ItemID] += entry.Minutes
	}
	openBlockers := map[string]int{}
	for _, blocker := range snap.Blockers {
		if blocker.IsOpen() {
			openBlockers[blocker.ItemID]++
		}
	}

	scope := scopedItems(snap.Items, opts.ScopeItemIDs)
	leaves := make(map[string]Leaf, len(scope))
	views := make([]ItemView, 0, len(scope))
	for _, item := range scope {
		summary := summaries[item.ID]
		links := projector.Links(item.ID)
		unmet := projector.HasUnmetDependency(item.ID)
		view := ItemView{
			ID:              item.ID,
			ProjectID:       item.ProjectID,
			ParentID:        item.ParentID,
			Type:            item.Type,
			Status:          item.Status,
			Title:           item.Title,
			AssigneeID:      item.AssigneeID,
			DueAt:           item.DueAt,
			EstimateMinutes: item.EstimateMinutes,
			EstimateMode:    item.EstimateMode,
			CompletedAt:     item.CompletedAt,
			ArchivedAt:      item.ArchivedAt,

			ScheduleStartAt:  summary.Start,
			ScheduleEndAt:    summary.End,
			ScheduledMinutes: summary.TotalMinutes,
			BlockCount:       summary.Count,
			SlackMinutes:     SlackMinutes(item.DueAt, summary.End),
			ActualMinutes:    actual[item.ID],
			OpenBlockers:     openBlockers[item.ID],

			BlockedBy:         links.BlockedBy,
			Blocking:          links.Blocking,
			UnmetDependency:   unmet,
			ScheduleViolation: projector.HasScheduleViolation(item.ID),
			Blocked:           item.Status == domain.StatusBlocked || openBlockers[item.ID] > 0 || unmet,
			Overdue:           IsOverdue(item, opts.Now),
		}
		leaves[item.ID] = LeafFor(item, summary, view.ActualMinutes, view.Blocked, view.Overdue)
		views = append(views, view)
	}

	rollups := Rollup(scope, leaves)
	index := make(map[string]int, len(views))
	for i := range views {
		agg := rollups[views[i].ID]
		views[i].RollupStartAt = agg.Start
		views[i].RollupEndAt = agg.End
		views[i].RollupEstimateMinutes = agg.EstimateTotal
		views[i].RollupActualMinutes = agg.ActualTotal
		views[i].RollupRemainingMinutes = agg.RemainingMinutes()
		views[i].RollupBlockedCount = agg.BlockedCount
		views[i].RollupOverdueCount = agg.OverdueCount
		index[views[i].ID] = i
	}
	return &Analysis{views: views, index: index, projector: projector}
}

// Items returns every scoped view ordered by project then id.
func (a *Analysis) Items() []ItemView {
	return slices.Clone(a.views)
}

// Item returns one scoped view.
func (a *Analysis) Item(id string) (ItemView, bool) {
	idx, ok := a.index[id]
	if !ok {
		return ItemView{}, false
	}
	return a.views[idx], true
}

// Attention returns the views that belong in the blocked view.
func (a *Analysis) Attention() []ItemView {
	out := make([]ItemView, 0)
	for _, view := range a.views {
		if view.NeedsAttention() {
			out = append(out, view)
		}
	}
	return out
}

// Within returns the views whose own schedule window overlaps [from, to), ordered by
// schedule start.
func (a *Analysis) Within(from, to time.Time) []ItemView {
	out := make([]ItemView, 0)
	for _, view := range a.views {
		window := Window{Start: view.ScheduleStartAt, End: view.ScheduleEndAt}
		if window.Overlaps(from, to) {
			out = append(out, view)
		}
	}
	slices.SortStableFunc(out, func(x, y ItemView) int {
		return x.ScheduleStartAt.Compare(*y.ScheduleStartAt)
	})
	return out
}

// Edges returns the projection of every edge in the snapshot.
func (a *Analysis) Edges() []EdgeProjection {
	return a.projector.Edges()
}

func scopedItems(items []domain.WorkItem, scopeIDs []string) []domain.WorkItem {
	out := make([]domain.WorkItem, 0, len(items))
	if len(scopeIDs) == 0 {
		out = append(out, items...)
	} else {
		wanted := make(map[string]struct{}, len(scopeIDs))
		for _, id := range scopeIDs {
			wanted[id] = struct{}{}
		}
		for _, item := range items {
			if _, ok := wanted[item.ID]; ok {
				out = append(out, item)
			}
		}
	}
	slices.SortFunc(out, func(a, b domain.WorkItem) int {
		if c := strings.Compare(a.ProjectID, b.ProjectID); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}
