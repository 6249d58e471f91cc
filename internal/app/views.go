package app

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/hylla/tempo/internal/domain"
	"github.com/hylla/tempo/internal/engine"
)

// Scope selects the records one read view covers: a project or one assignee's items.
type Scope struct {
	ProjectID       string
	AssigneeID      string
	IncludeArchived bool
}

// normalize trims the scope and enforces exactly one selector.
func (sc Scope) normalize() (Scope, error) {
	sc.ProjectID = strings.TrimSpace(sc.ProjectID)
	sc.AssigneeID = strings.TrimSpace(sc.AssigneeID)
	if (sc.ProjectID == "") == (sc.AssigneeID == "") {
		return Scope{}, ErrInvalidScope
	}
	return sc, nil
}

// projectRecords holds everything one project stores that the engine reads.
type projectRecords struct {
	items    []domain.WorkItem
	deps     []domain.Dependency
	blocks   []domain.ScheduledBlock
	entries  []domain.TimeEntry
	blockers []domain.Blocker
	members  []domain.ProjectMember
}

// loadProject reads one project's records. Archived items are always loaded so they
// still resolve as dependency counterparts.
func (s *Service) loadProject(ctx context.Context, projectID string) (projectRecords, error) {
	var (
		out projectRecords
		err error
	)
	if out.items, err = s.repo.ListWorkItems(ctx, projectID, true); err != nil {
		return projectRecords{}, err
	}
	if out.deps, err = s.repo.ListDependencies(ctx, projectID); err != nil {
		return projectRecords{}, err
	}
	if out.blocks, err = s.repo.ListScheduledBlocks(ctx, projectID); err != nil {
		return projectRecords{}, err
	}
	if out.entries, err = s.repo.ListTimeEntries(ctx, projectID); err != nil {
		return projectRecords{}, err
	}
	if out.blockers, err = s.repo.ListBlockers(ctx, projectID); err != nil {
		return projectRecords{}, err
	}
	if out.members, err = s.repo.ListProjectMembers(ctx, projectID); err != nil {
		return projectRecords{}, err
	}
	return out, nil
}

// scopeProjects resolves the projects a scope touches and the item ids it returns.
func (s *Service) scopeProjects(ctx context.Context, sc Scope) ([]string, []string, error) {
	if sc.ProjectID != "" {
		if _, err := s.repo.GetProject(ctx, sc.ProjectID); err != nil {
			return nil, nil, err
		}
		items, err := s.repo.ListWorkItems(ctx, sc.ProjectID, sc.IncludeArchived)
		if err != nil {
			return nil, nil, err
		}
		return []string{sc.ProjectID}, itemIDs(items), nil
	}
	items, err := s.repo.ListWorkItemsByAssignee(ctx, sc.AssigneeID, sc.IncludeArchived)
	if err != nil {
		return nil, nil, err
	}
	projectIDs := make([]string, 0)
	for _, item := range items {
		projectIDs = append(projectIDs, item.ProjectID)
	}
	slices.Sort(projectIDs)
	return slices.Compact(projectIDs), itemIDs(items), nil
}

// analyze loads a scope and runs the engine once over it.
func (s *Service) analyze(ctx context.Context, sc Scope) (*engine.Analysis, error) {
	sc, err := sc.normalize()
	if err != nil {
		return nil, err
	}
	projectIDs, scopeIDs, err := s.scopeProjects(ctx, sc)
	if err != nil {
		return nil, err
	}
	loaded := make([]projectRecords, 0, len(projectIDs))
	for _, projectID := range projectIDs {
		records, err := s.loadProject(ctx, projectID)
		if err != nil {
			return nil, err
		}
		loaded = append(loaded, records)
	}
	snap := snapshotOf(loaded...)
	// An empty scope must not fall back to "every item".
	if len(scopeIDs) == 0 {
		scopeIDs = []string{}
		snap.Items = nil
	}
	return engine.Analyze(snap, engine.Options{Now: s.clock().UTC(), ScopeItemIDs: scopeIDs}), nil
}

// snapshotOf merges loaded project records into one engine input.
func snapshotOf(loaded ...projectRecords) engine.Snapshot {
	var snap engine.Snapshot
	for _, records := range loaded {
		snap.Items = append(snap.Items, records.items...)
		snap.Dependencies = append(snap.Dependencies, records.deps...)
		snap.Blocks = append(snap.Blocks, records.blocks...)
		snap.TimeEntries = append(snap.TimeEntries, records.entries...)
		snap.Blockers = append(snap.Blockers, records.blockers...)
	}
	return snap
}

// ListView returns every scoped item with its derived schedule, dependency, and rollup signals.
func (s *Service) ListView(ctx context.Context, sc Scope) ([]engine.ItemView, error) {
	analysis, err := s.analyze(ctx, sc)
	if err != nil {
		return nil, err
	}
	return analysis.Items(), nil
}

// ExecutionWindowResult is the execution-window view with its resolved bounds.
type ExecutionWindowResult struct {
	From  time.Time
	To    time.Time
	Items []engine.ItemView
}

// ExecutionWindow returns scoped items whose schedule window overlaps [from, to). A zero
// from means now; a zero to means from plus the configured window length.
func (s *Service) ExecutionWindow(ctx context.Context, sc Scope, from, to time.Time) (ExecutionWindowResult, error) {
	if from.IsZero() {
		from = s.clock()
	}
	if to.IsZero() {
		to = from.Add(s.window)
	}
	from, to = from.UTC(), to.UTC()
	if !from.Before(to) {
		return ExecutionWindowResult{}, domain.ErrInvalidWindow
	}
	analysis, err := s.analyze(ctx, sc)
	if err != nil {
		return ExecutionWindowResult{}, err
	}
	return ExecutionWindowResult{From: from, To: to, Items: analysis.Within(from, to)}, nil
}

// BlockedView returns scoped items that are explicitly blocked, waiting on an unfinished
// predecessor, or scheduled against a violated edge.
func (s *Service) BlockedView(ctx context.Context, sc Scope) ([]engine.ItemView, error) {
	analysis, err := s.analyze(ctx, sc)
	if err != nil {
		return nil, err
	}
	return analysis.Attention(), nil
}

// ItemDetails is one item's view plus its raw schedule, effort, and blocker records.
type ItemDetails struct {
	Item        engine.ItemView
	Children    []engine.ItemView
	Blocks      []domain.ScheduledBlock
	TimeEntries []domain.TimeEntry
	Blockers    []domain.Blocker
}

// ItemDetails returns one item analyzed within its project. The view and the raw
// records come from the same project read.
func (s *Service) ItemDetails(ctx context.Context, itemID string) (ItemDetails, error) {
	item, err := s.repo.GetWorkItem(ctx, strings.TrimSpace(itemID))
	if err != nil {
		return ItemDetails{}, err
	}
	records, err := s.loadProject(ctx, item.ProjectID)
	if err != nil {
		return ItemDetails{}, err
	}
	analysis := engine.Analyze(snapshotOf(records), engine.Options{
		Now:          s.clock().UTC(),
		ScopeItemIDs: itemIDs(slices.Clone(records.items)),
	})
	view, ok := analysis.Item(item.ID)
	if !ok {
		return ItemDetails{}, ErrNotFound
	}

	out := ItemDetails{
		Item:        view,
		Children:    []engine.ItemView{},
		Blocks:      []domain.ScheduledBlock{},
		TimeEntries: []domain.TimeEntry{},
		Blockers:    []domain.Blocker{},
	}
	for _, candidate := range analysis.Items() {
		if candidate.ParentID == item.ID {
			out.Children = append(out.Children, candidate)
		}
	}
	for _, block := range records.blocks {
		if block.ItemID == item.ID {
			out.Blocks = append(out.Blocks, block)
		}
	}
	slices.SortFunc(out.Blocks, func(a, b domain.ScheduledBlock) int {
		if c := a.StartAt.Compare(b.StartAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	for _, entry := range records.entries {
		if entry.ItemID == item.ID {
			out.TimeEntries = append(out.TimeEntries, entry)
		}
	}
	slices.SortFunc(out.TimeEntries, func(a, b domain.TimeEntry) int {
		if c := a.StartedAt.Compare(b.StartedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	for _, blocker := range records.blockers {
		if blocker.ItemID == item.ID {
			out.Blockers = append(out.Blockers, blocker)
		}
	}
	slices.SortFunc(out.Blockers, func(a, b domain.Blocker) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out, nil
}

// IntegrityReport inspects every project the scope touches for structural defects.
func (s *Service) IntegrityReport(ctx context.Context, sc Scope) (engine.Report, error) {
	sc, err := sc.normalize()
	if err != nil {
		return engine.Report{}, err
	}
	projectIDs, _, err := s.scopeProjects(ctx, sc)
	if err != nil {
		return engine.Report{}, err
	}
	var in engine.ReportInput
	for _, projectID := range projectIDs {
		records, err := s.loadProject(ctx, projectID)
		if err != nil {
			return engine.Report{}, err
		}
		in.Items = append(in.Items, records.items...)
		in.Dependencies = append(in.Dependencies, records.deps...)
		in.Blocks = append(in.Blocks, records.blocks...)
		in.Members = append(in.Members, records.members...)
	}
	report := engine.BuildReport(in)
	if !report.Clean() {
		s.logger.Warn("integrity defects found",
			"projects", len(projectIDs),
			"cycles", report.Counts.Cycles,
			"orphaned_edges", report.Counts.OrphanedEdges,
			"orphaned_blocks", report.Counts.OrphanedBlocks,
		)
	}
	return report, nil
}

func itemIDs(items []domain.WorkItem) []string {
	sortItems(items)
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item.ID)
	}
	return out
}
