package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hylla/tempo/internal/domain"
	"github.com/hylla/tempo/internal/engine"
)

// SnapshotVersion defines a package constant value.
const SnapshotVersion = "tempo.snapshot.v1"

// SnapshotFormat selects the snapshot wire encoding.
type SnapshotFormat string

// SnapshotFormat values.
const (
	SnapshotJSON SnapshotFormat = "json"
	SnapshotYAML SnapshotFormat = "yaml"
)

// Snapshot represents snapshot data used by this package.
type Snapshot struct {
	Version      string                   `json:"version" yaml:"version"`
	ExportedAt   time.Time                `json:"exported_at" yaml:"exported_at"`
	Projects     []SnapshotProject        `json:"projects" yaml:"projects"`
	Members      []SnapshotMember         `json:"members" yaml:"members"`
	Items        []SnapshotItem           `json:"items" yaml:"items"`
	Dependencies []SnapshotDependency     `json:"dependencies" yaml:"dependencies"`
	Blocks       []SnapshotScheduledBlock `json:"blocks" yaml:"blocks"`
	TimeEntries  []SnapshotTimeEntry      `json:"time_entries" yaml:"time_entries"`
	Blockers     []SnapshotBlocker        `json:"blockers" yaml:"blockers"`
}

// SnapshotProject represents snapshot project data used by this package.
type SnapshotProject struct {
	ID          string     `json:"id" yaml:"id"`
	Slug        string     `json:"slug" yaml:"slug"`
	Name        string     `json:"name" yaml:"name"`
	Description string     `json:"description" yaml:"description"`
	CreatedAt   time.Time  `json:"created_at" yaml:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" yaml:"updated_at"`
	ArchivedAt  *time.Time `json:"archived_at,omitempty" yaml:"archived_at,omitempty"`
}

// SnapshotMember represents one project membership row.
type SnapshotMember struct {
	ProjectID string            `json:"project_id" yaml:"project_id"`
	UserID    string            `json:"user_id" yaml:"user_id"`
	Role      domain.MemberRole `json:"role" yaml:"role"`
	CreatedAt time.Time         `json:"created_at" yaml:"created_at"`
}

// SnapshotItem represents one work item row.
type SnapshotItem struct {
	ID              string              `json:"id" yaml:"id"`
	ProjectID       string              `json:"project_id" yaml:"project_id"`
	ParentID        string              `json:"parent_id,omitempty" yaml:"parent_id,omitempty"`
	Type            domain.ItemType     `json:"type" yaml:"type"`
	Status          domain.ItemStatus   `json:"status" yaml:"status"`
	Title           string              `json:"title" yaml:"title"`
	AssigneeID      string              `json:"assignee_id,omitempty" yaml:"assignee_id,omitempty"`
	DueAt           *time.Time          `json:"due_at,omitempty" yaml:"due_at,omitempty"`
	EstimateMinutes int                 `json:"estimate_minutes" yaml:"estimate_minutes"`
	EstimateMode    domain.EstimateMode `json:"estimate_mode" yaml:"estimate_mode"`
	CreatedAt       time.Time           `json:"created_at" yaml:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at" yaml:"updated_at"`
	CompletedAt     *time.Time          `json:"completed_at,omitempty" yaml:"completed_at,omitempty"`
	ArchivedAt      *time.Time          `json:"archived_at,omitempty" yaml:"archived_at,omitempty"`
}

// SnapshotDependency represents one precedence edge row.
type SnapshotDependency struct {
	ID          string                `json:"id" yaml:"id"`
	ProjectID   string                `json:"project_id" yaml:"project_id"`
	ItemID      string                `json:"item_id" yaml:"item_id"`
	DependsOnID string                `json:"depends_on_id" yaml:"depends_on_id"`
	Type        domain.DependencyType `json:"type" yaml:"type"`
	LagMinutes  int                   `json:"lag_minutes" yaml:"lag_minutes"`
	CreatedAt   time.Time             `json:"created_at" yaml:"created_at"`
}

// SnapshotScheduledBlock represents one scheduled block row.
type SnapshotScheduledBlock struct {
	ID              string    `json:"id" yaml:"id"`
	ProjectID       string    `json:"project_id" yaml:"project_id"`
	ItemID          string    `json:"item_id" yaml:"item_id"`
	StartAt         time.Time `json:"start_at" yaml:"start_at"`
	DurationMinutes int       `json:"duration_minutes" yaml:"duration_minutes"`
	CreatedAt       time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" yaml:"updated_at"`
}

// SnapshotTimeEntry represents one time entry row.
type SnapshotTimeEntry struct {
	ID        string    `json:"id" yaml:"id"`
	ProjectID string    `json:"project_id" yaml:"project_id"`
	ItemID    string    `json:"item_id" yaml:"item_id"`
	UserID    string    `json:"user_id" yaml:"user_id"`
	StartedAt time.Time `json:"started_at" yaml:"started_at"`
	Minutes   int       `json:"minutes" yaml:"minutes"`
	Note      string    `json:"note,omitempty" yaml:"note,omitempty"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

// SnapshotBlocker represents one blocker row.
type SnapshotBlocker struct {
	ID         string     `json:"id" yaml:"id"`
	ProjectID  string     `json:"project_id" yaml:"project_id"`
	ItemID     string     `json:"item_id" yaml:"item_id"`
	Reason     string     `json:"reason" yaml:"reason"`
	CreatedAt  time.Time  `json:"created_at" yaml:"created_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty" yaml:"resolved_at,omitempty"`
}

// ExportSnapshot handles export snapshot.
func (s *Service) ExportSnapshot(ctx context.Context, includeArchived bool) (Snapshot, error) {
	projects, err := s.repo.ListProjects(ctx, includeArchived)
	if err != nil {
		return Snapshot{}, err
	}

	snap := Snapshot{
		Version:      SnapshotVersion,
		ExportedAt:   s.clock().UTC(),
		Projects:     make([]SnapshotProject, 0, len(projects)),
		Members:      make([]SnapshotMember, 0),
		Items:        make([]SnapshotItem, 0),
		Dependencies: make([]SnapshotDependency, 0),
		Blocks:       make([]SnapshotScheduledBlock, 0),
		TimeEntries:  make([]SnapshotTimeEntry, 0),
		Blockers:     make([]SnapshotBlocker, 0),
	}
	for _, project := range projects {
		snap.Projects = append(snap.Projects, snapshotProjectFromDomain(project))

		records, loadErr := s.loadProject(ctx, project.ID)
		if loadErr != nil {
			return Snapshot{}, loadErr
		}
		kept := map[string]struct{}{}
		for _, item := range records.items {
			if !includeArchived && item.ArchivedAt != nil {
				continue
			}
			kept[item.ID] = struct{}{}
			snap.Items = append(snap.Items, snapshotItemFromDomain(item))
		}
		for _, member := range records.members {
			snap.Members = append(snap.Members, snapshotMemberFromDomain(member))
		}
		for _, dep := range records.deps {
			if !keeps(kept, dep.ItemID) || !keeps(kept, dep.DependsOnID) {
				continue
			}
			snap.Dependencies = append(snap.Dependencies, snapshotDependencyFromDomain(dep))
		}
		for _, block := range records.blocks {
			if keeps(kept, block.ItemID) {
				snap.Blocks = append(snap.Blocks, snapshotBlockFromDomain(block))
			}
		}
		for _, entry := range records.entries {
			if keeps(kept, entry.ItemID) {
				snap.TimeEntries = append(snap.TimeEntries, snapshotTimeEntryFromDomain(entry))
			}
		}
		for _, blocker := range records.blockers {
			if keeps(kept, blocker.ItemID) {
				snap.Blockers = append(snap.Blockers, snapshotBlockerFromDomain(blocker))
			}
		}
	}

	snap.sort()
	return snap, nil
}

func keeps(kept map[string]struct{}, id string) bool {
	_, ok := kept[id]
	return ok
}

// ImportSnapshot upserts every record in the snapshot. Dependencies go through the same
// cycle guard as AddDependency.
func (s *Service) ImportSnapshot(ctx context.Context, snap Snapshot) error {
	if err := snap.Validate(); err != nil {
		return err
	}
	snap.sort()

	for _, project := range snap.Projects {
		if err := s.upsertProject(ctx, project.toDomain()); err != nil {
			return err
		}
	}
	for _, member := range snap.Members {
		if err := s.repo.UpsertProjectMember(ctx, member.toDomain()); err != nil {
			return err
		}
	}
	for _, item := range snap.Items {
		if err := s.upsertItem(ctx, item.toDomain()); err != nil {
			return err
		}
	}
	for _, dep := range snap.Dependencies {
		dd := dep.toDomain()
		if _, err := s.repo.GetDependency(ctx, dd.ID); err == nil {
			continue
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}
		err := s.repo.CreateDependencyChecked(ctx, dd, func(existing []domain.Dependency) error {
			return engine.GuardDependency(existing, dd)
		})
		if err != nil {
			return fmt.Errorf("import dependency %q: %w", dd.ID, err)
		}
	}
	for _, block := range snap.Blocks {
		db := block.toDomain()
		if _, err := s.repo.GetScheduledBlock(ctx, db.ID); err == nil {
			if err := s.repo.UpdateScheduledBlock(ctx, db); err != nil {
				return err
			}
			continue
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}
		if err := s.repo.CreateScheduledBlock(ctx, db); err != nil {
			return err
		}
	}
	if err := s.importSnapshotTimeEntries(ctx, snap.TimeEntries); err != nil {
		return err
	}
	for _, blocker := range snap.Blockers {
		db := blocker.toDomain()
		if _, err := s.repo.GetBlocker(ctx, db.ID); err == nil {
			if err := s.repo.UpdateBlocker(ctx, db); err != nil {
				return err
			}
			continue
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}
		if err := s.repo.CreateBlocker(ctx, db); err != nil {
			return err
		}
	}
	s.logger.Info("snapshot imported",
		"projects", len(snap.Projects),
		"items", len(snap.Items),
		"dependencies", len(snap.Dependencies),
	)
	return nil
}

// Validate validates the requested operation.
func (s *Snapshot) Validate() error {
	if s.Version != "" && s.Version != SnapshotVersion {
		return fmt.Errorf("unsupported snapshot version: %q", s.Version)
	}

	projectIDs := map[string]struct{}{}
	for i, p := range s.Projects {
		if strings.TrimSpace(p.ID) == "" {
			return fmt.Errorf("projects[%d].id is required", i)
		}
		if strings.TrimSpace(p.Name) == "" {
			return fmt.Errorf("projects[%d].name is required", i)
		}
		if p.CreatedAt.IsZero() || p.UpdatedAt.IsZero() {
			return fmt.Errorf("projects[%d] timestamps are required", i)
		}
		if _, exists := projectIDs[p.ID]; exists {
			return fmt.Errorf("duplicate project id: %q", p.ID)
		}
		projectIDs[p.ID] = struct{}{}
	}

	for i, m := range s.Members {
		if _, ok := projectIDs[m.ProjectID]; !ok {
			return fmt.Errorf("members[%d] references unknown project_id %q", i, m.ProjectID)
		}
		if _, err := domain.NewProjectMember(m.ProjectID, m.UserID, m.Role, m.CreatedAt); err != nil {
			return fmt.Errorf("members[%d]: %w", i, err)
		}
	}

	itemProjects := map[string]string{}
	for i, item := range s.Items {
		if strings.TrimSpace(item.ID) == "" {
			return fmt.Errorf("items[%d].id is required", i)
		}
		if strings.TrimSpace(item.Title) == "" {
			return fmt.Errorf("items[%d].title is required", i)
		}
		if item.EstimateMinutes < 0 {
			return fmt.Errorf("items[%d].estimate_minutes must be >= 0", i)
		}
		if _, err := domain.NormalizeItemType(item.Type); err != nil {
			return fmt.Errorf("items[%d].type: %w", i, err)
		}
		if _, err := snapshotStatus(item.Status); err != nil {
			return fmt.Errorf("items[%d].status: %w", i, err)
		}
		if _, err := domain.NormalizeEstimateMode(item.EstimateMode); err != nil {
			return fmt.Errorf("items[%d].estimate_mode: %w", i, err)
		}
		if item.CreatedAt.IsZero() || item.UpdatedAt.IsZero() {
			return fmt.Errorf("items[%d] timestamps are required", i)
		}
		if _, ok := projectIDs[item.ProjectID]; !ok {
			return fmt.Errorf("items[%d] references unknown project_id %q", i, item.ProjectID)
		}
		if _, exists := itemProjects[item.ID]; exists {
			return fmt.Errorf("duplicate item id: %q", item.ID)
		}
		itemProjects[item.ID] = item.ProjectID
	}
	for i, item := range s.Items {
		if strings.TrimSpace(item.ParentID) == "" {
			continue
		}
		if item.ParentID == item.ID {
			return fmt.Errorf("items[%d].parent_id cannot reference itself", i)
		}
		if projectID, exists := itemProjects[item.ParentID]; !exists || projectID != item.ProjectID {
			return fmt.Errorf("items[%d] references unknown parent_id %q", i, item.ParentID)
		}
	}

	for i, d := range s.Dependencies {
		if strings.TrimSpace(d.ID) == "" {
			return fmt.Errorf("dependencies[%d].id is required", i)
		}
		if d.ItemID == d.DependsOnID {
			return fmt.Errorf("dependencies[%d]: %w", i, domain.ErrSelfDependency)
		}
		if _, err := domain.ParseDependencyType(string(d.Type)); err != nil {
			return fmt.Errorf("dependencies[%d]: %w", i, err)
		}
		succProject, ok := itemProjects[d.ItemID]
		if !ok {
			return fmt.Errorf("dependencies[%d] references unknown item_id %q", i, d.ItemID)
		}
		predProject, ok := itemProjects[d.DependsOnID]
		if !ok {
			return fmt.Errorf("dependencies[%d] references unknown depends_on_id %q", i, d.DependsOnID)
		}
		if succProject != predProject || succProject != d.ProjectID {
			return fmt.Errorf("dependencies[%d]: %w", i, domain.ErrCrossProjectDependency)
		}
	}

	for i, b := range s.Blocks {
		if _, ok := itemProjects[b.ItemID]; !ok {
			return fmt.Errorf("blocks[%d] references unknown item_id %q", i, b.ItemID)
		}
		if b.DurationMinutes <= 0 {
			return fmt.Errorf("blocks[%d]: %w", i, domain.ErrInvalidDuration)
		}
	}
	for i, e := range s.TimeEntries {
		if _, ok := itemProjects[e.ItemID]; !ok {
			return fmt.Errorf("time_entries[%d] references unknown item_id %q", i, e.ItemID)
		}
		if e.Minutes <= 0 {
			return fmt.Errorf("time_entries[%d]: %w", i, domain.ErrInvalidMinutes)
		}
	}
	for i, b := range s.Blockers {
		if _, ok := itemProjects[b.ItemID]; !ok {
			return fmt.Errorf("blockers[%d] references unknown item_id %q", i, b.ItemID)
		}
	}
	return nil
}

// EncodeSnapshot writes snap in the requested format.
func EncodeSnapshot(w io.Writer, snap Snapshot, format SnapshotFormat) error {
	switch format {
	case SnapshotYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(snap); err != nil {
			return fmt.Errorf("encode snapshot yaml: %w", err)
		}
		return enc.Close()
	case SnapshotJSON, "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(snap); err != nil {
			return fmt.Errorf("encode snapshot json: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("unsupported snapshot format %q", format)
	}
}

// DecodeSnapshot reads a snapshot in the requested format.
func DecodeSnapshot(r io.Reader, format SnapshotFormat) (Snapshot, error) {
	var snap Snapshot
	switch format {
	case SnapshotYAML:
		if err := yaml.NewDecoder(r).Decode(&snap); err != nil {
			return Snapshot{}, fmt.Errorf("decode snapshot yaml: %w", err)
		}
	case SnapshotJSON, "":
		if err := json.NewDecoder(r).Decode(&snap); err != nil {
			return Snapshot{}, fmt.Errorf("decode snapshot json: %w", err)
		}
	default:
		return Snapshot{}, fmt.Errorf("unsupported snapshot format %q", format)
	}
	return snap, nil
}

// SnapshotFormatForPath picks a format from a file extension, defaulting to JSON.
func SnapshotFormatForPath(path string) SnapshotFormat {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return SnapshotYAML
	default:
		return SnapshotJSON
	}
}

// upsertProject handles upsert project.
func (s *Service) upsertProject(ctx context.Context, p domain.Project) error {
	if _, err := s.repo.GetProject(ctx, p.ID); err == nil {
		return s.repo.UpdateProject(ctx, p)
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}
	return s.repo.CreateProject(ctx, p)
}

// upsertItem creates or replaces one work item.
func (s *Service) upsertItem(ctx context.Context, item domain.WorkItem) error {
	if _, err := s.repo.GetWorkItem(ctx, item.ID); err == nil {
		return s.repo.UpdateWorkItem(ctx, item)
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}
	return s.repo.CreateWorkItem(ctx, item)
}

// importSnapshotTimeEntries inserts entries not already recorded. Entries are append-only.
func (s *Service) importSnapshotTimeEntries(ctx context.Context, entries []SnapshotTimeEntry) error {
	existing := map[string]map[string]struct{}{}
	for _, entry := range entries {
		de := entry.toDomain()
		ids, ok := existing[de.ProjectID]
		if !ok {
			current, err := s.repo.ListTimeEntries(ctx, de.ProjectID)
			if err != nil {
				return err
			}
			ids = make(map[string]struct{}, len(current))
			for _, c := range current {
				ids[c.ID] = struct{}{}
			}
			existing[de.ProjectID] = ids
		}
		if _, dup := ids[de.ID]; dup {
			continue
		}
		if err := s.repo.CreateTimeEntry(ctx, de); err != nil {
			return err
		}
		ids[de.ID] = struct{}{}
	}
	return nil
}

// sort handles sort.
func (s *Snapshot) sort() {
	sort.Slice(s.Projects, func(i, j int) bool {
		return s.Projects[i].ID < s.Projects[j].ID
	})
	sort.Slice(s.Members, func(i, j int) bool {
		a, b := s.Members[i], s.Members[j]
		if a.ProjectID == b.ProjectID {
			return a.UserID < b.UserID
		}
		return a.ProjectID < b.ProjectID
	})
	// Parents sort ahead of their children so imports never reference a missing parent.
	depth := map[string]int{}
	parents := map[string]string{}
	for _, item := range s.Items {
		parents[item.ID] = item.ParentID
	}
	for _, item := range s.Items {
		n := 0
		seen := map[string]struct{}{}
		for current := item.ParentID; current != ""; current = parents[current] {
			if _, loop := seen[current]; loop {
				break
			}
			seen[current] = struct{}{}
			n++
		}
		depth[item.ID] = n
	}
	sort.Slice(s.Items, func(i, j int) bool {
		a, b := s.Items[i], s.Items[j]
		if a.ProjectID != b.ProjectID {
			return a.ProjectID < b.ProjectID
		}
		if depth[a.ID] != depth[b.ID] {
			return depth[a.ID] < depth[b.ID]
		}
		return a.ID < b.ID
	})
	sort.Slice(s.Dependencies, func(i, j int) bool {
		return s.Dependencies[i].ID < s.Dependencies[j].ID
	})
	sort.Slice(s.Blocks, func(i, j int) bool {
		return s.Blocks[i].ID < s.Blocks[j].ID
	})
	sort.Slice(s.TimeEntries, func(i, j int) bool {
		return s.TimeEntries[i].ID < s.TimeEntries[j].ID
	})
	sort.Slice(s.Blockers, func(i, j int) bool {
		return s.Blockers[i].ID < s.Blockers[j].ID
	})
}

// snapshotProjectFromDomain handles snapshot project from domain.
func snapshotProjectFromDomain(p domain.Project) SnapshotProject {
	return SnapshotProject{
		ID:          p.ID,
		Slug:        p.Slug,
		Name:        p.Name,
		Description: p.Description,
		CreatedAt:   p.CreatedAt.UTC(),
		UpdatedAt:   p.UpdatedAt.UTC(),
		ArchivedAt:  copyTimePtr(p.ArchivedAt),
	}
}

func snapshotMemberFromDomain(m domain.ProjectMember) SnapshotMember {
	return SnapshotMember{ProjectID: m.ProjectID, UserID: m.UserID, Role: m.Role, CreatedAt: m.CreatedAt.UTC()}
}

func snapshotItemFromDomain(i domain.WorkItem) SnapshotItem {
	return SnapshotItem{
		ID:              i.ID,
		ProjectID:       i.ProjectID,
		ParentID:        i.ParentID,
		Type:            i.Type,
		Status:          i.Status,
		Title:           i.Title,
		AssigneeID:      i.AssigneeID,
		DueAt:           copyTimePtr(i.DueAt),
		EstimateMinutes: i.EstimateMinutes,
		EstimateMode:    i.EstimateMode,
		CreatedAt:       i.CreatedAt.UTC(),
		UpdatedAt:       i.UpdatedAt.UTC(),
		CompletedAt:     copyTimePtr(i.CompletedAt),
		ArchivedAt:      copyTimePtr(i.ArchivedAt),
	}
}

func snapshotDependencyFromDomain(d domain.Dependency) SnapshotDependency {
	return SnapshotDependency{
		ID:          d.ID,
		ProjectID:   d.ProjectID,
		ItemID:      d.ItemID,
		DependsOnID: d.DependsOnID,
		Type:        d.Type,
		LagMinutes:  d.LagMinutes,
		CreatedAt:   d.CreatedAt.UTC(),
	}
}

func snapshotBlockFromDomain(b domain.ScheduledBlock) SnapshotScheduledBlock {
	return SnapshotScheduledBlock{
		ID:              b.ID,
		ProjectID:       b.ProjectID,
		ItemID:          b.ItemID,
		StartAt:         b.StartAt.UTC(),
		DurationMinutes: b.DurationMinutes,
		CreatedAt:       b.CreatedAt.UTC(),
		UpdatedAt:       b.UpdatedAt.UTC(),
	}
}

func snapshotTimeEntryFromDomain(e domain.TimeEntry) SnapshotTimeEntry {
	return SnapshotTimeEntry{
		ID:        e.ID,
		ProjectID: e.ProjectID,
		ItemID:    e.ItemID,
		UserID:    e.UserID,
		StartedAt: e.StartedAt.UTC(),
		Minutes:   e.Minutes,
		Note:      e.Note,
		CreatedAt: e.CreatedAt.UTC(),
	}
}

func snapshotBlockerFromDomain(b domain.Blocker) SnapshotBlocker {
	return SnapshotBlocker{
		ID:         b.ID,
		ProjectID:  b.ProjectID,
		ItemID:     b.ItemID,
		Reason:     b.Reason,
		CreatedAt:  b.CreatedAt.UTC(),
		ResolvedAt: copyTimePtr(b.ResolvedAt),
	}
}

func (p SnapshotProject) toDomain() domain.Project {
	slug := strings.TrimSpace(p.Slug)
	if slug == "" {
		slug = fallbackSlug(p.Name)
	}
	return domain.Project{
		ID:          strings.TrimSpace(p.ID),
		Slug:        slug,
		Name:        strings.TrimSpace(p.Name),
		Description: strings.TrimSpace(p.Description),
		CreatedAt:   p.CreatedAt.UTC(),
		UpdatedAt:   p.UpdatedAt.UTC(),
		ArchivedAt:  copyTimePtr(p.ArchivedAt),
	}
}

func (m SnapshotMember) toDomain() domain.ProjectMember {
	member, _ := domain.NewProjectMember(m.ProjectID, m.UserID, m.Role, m.CreatedAt)
	return member
}

func (i SnapshotItem) toDomain() domain.WorkItem {
	itemType, _ := domain.NormalizeItemType(i.Type)
	status, _ := snapshotStatus(i.Status)
	mode, _ := domain.NormalizeEstimateMode(i.EstimateMode)
	return domain.WorkItem{
		ID:              strings.TrimSpace(i.ID),
		ProjectID:       strings.TrimSpace(i.ProjectID),
		ParentID:        strings.TrimSpace(i.ParentID),
		Type:            itemType,
		Status:          status,
		Title:           strings.TrimSpace(i.Title),
		AssigneeID:      strings.TrimSpace(i.AssigneeID),
		DueAt:           copyTimePtr(i.DueAt),
		EstimateMinutes: i.EstimateMinutes,
		EstimateMode:    mode,
		CreatedAt:       i.CreatedAt.UTC(),
		UpdatedAt:       i.UpdatedAt.UTC(),
		CompletedAt:     copyTimePtr(i.CompletedAt),
		ArchivedAt:      copyTimePtr(i.ArchivedAt),
	}
}

func (d SnapshotDependency) toDomain() domain.Dependency {
	depType, _ := domain.ParseDependencyType(string(d.Type))
	return domain.Dependency{
		ID:          strings.TrimSpace(d.ID),
		ProjectID:   strings.TrimSpace(d.ProjectID),
		ItemID:      strings.TrimSpace(d.ItemID),
		DependsOnID: strings.TrimSpace(d.DependsOnID),
		Type:        depType,
		LagMinutes:  d.LagMinutes,
		CreatedAt:   d.CreatedAt.UTC(),
	}
}

func (b SnapshotScheduledBlock) toDomain() domain.ScheduledBlock {
	return domain.ScheduledBlock{
		ID:              strings.TrimSpace(b.ID),
		ProjectID:       strings.TrimSpace(b.ProjectID),
		ItemID:          strings.TrimSpace(b.ItemID),
		StartAt:         b.StartAt.UTC(),
		DurationMinutes: b.DurationMinutes,
		CreatedAt:       b.CreatedAt.UTC(),
		UpdatedAt:       b.UpdatedAt.UTC(),
	}
}

func (e SnapshotTimeEntry) toDomain() domain.TimeEntry {
	return domain.TimeEntry{
		ID:        strings.TrimSpace(e.ID),
		ProjectID: strings.TrimSpace(e.ProjectID),
		ItemID:    strings.TrimSpace(e.ItemID),
		UserID:    strings.TrimSpace(e.UserID),
		StartedAt: e.StartedAt.UTC(),
		Minutes:   e.Minutes,
		Note:      strings.TrimSpace(e.Note),
		CreatedAt: e.CreatedAt.UTC(),
	}
}

func (b SnapshotBlocker) toDomain() domain.Blocker {
	return domain.Blocker{
		ID:         strings.TrimSpace(b.ID),
		ProjectID:  strings.TrimSpace(b.ProjectID),
		ItemID:     strings.TrimSpace(b.ItemID),
		Reason:     strings.TrimSpace(b.Reason),
		CreatedAt:  b.CreatedAt.UTC(),
		ResolvedAt: copyTimePtr(b.ResolvedAt),
	}
}

// snapshotStatus treats a missing status as backlog.
func snapshotStatus(status domain.ItemStatus) (domain.ItemStatus, error) {
	if strings.TrimSpace(string(status)) == "" {
		return domain.StatusBacklog, nil
	}
	return domain.NormalizeItemStatus(status)
}

// fallbackSlug provides fallback slug.
func fallbackSlug(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.ReplaceAll(name, " ", "-")
	for strings.Contains(name, "--") {
		name = strings.ReplaceAll(name, "--", "-")
	}
	return strings.Trim(name, "-")
}

// copyTimePtr copies time ptr.
func copyTimePtr(in *time.Time) *time.Time {
	if in == nil {
		return nil
	}
	t := in.UTC().Truncate(time.Second)
	return &t
}
