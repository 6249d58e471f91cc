package domain

import (
	"errors"
	"testing"
	"time"
)

func TestNewProjectAndSlug(t *testing.T) {
	now := time.Date(2026, 2, 21, 12, 0, 0, 0, time.UTC)
	p, err := NewProject("p1", "  My Big Project!  ", " desc ", now)
	if err != nil {
		t.Fatalf("NewProject() error = %v", err)
	}
	if p.Slug != "my-big-project" {
		t.Fatalf("unexpected slug %q", p.Slug)
	}
	if p.Name != "My Big Project!" {
		t.Fatalf("unexpected name %q", p.Name)
	}
}

func TestNewProjectValidation(t *testing.T) {
	now := time.Now()
	if _, err := NewProject("", "ok", "", now); err != ErrInvalidID {
		t.Fatalf("expected ErrInvalidID, got %v", err)
	}
	if _, err := NewProject("id", "   ", "", now); err != ErrInvalidName {
		t.Fatalf("expected ErrInvalidName, got %v", err)
	}
}

func TestNewProjectMemberDefaultsRole(t *testing.T) {
	now := time.Now()
	m, err := NewProjectMember("p1", " alice ", "", now)
	if err != nil {
		t.Fatalf("NewProjectMember() error = %v", err)
	}
	if m.UserID != "alice" || m.Role != MemberRoleMember {
		t.Fatalf("unexpected member %#v", m)
	}
	if _, err := NewProjectMember("p1", "bob", "admin", now); err != ErrInvalidRole {
		t.Fatalf("expected ErrInvalidRole, got %v", err)
	}
	if _, err := NewProjectMember("p1", " ", "", now); err != ErrInvalidUserID {
		t.Fatalf("expected ErrInvalidUserID, got %v", err)
	}
}

func TestNewWorkItemDefaults(t *testing.T) {
	now := time.Date(2026, 2, 21, 12, 0, 0, 0, time.UTC)
	due := now.Add(90 * time.Minute).Add(500 * time.Millisecond)
	item, err := NewWorkItem(WorkItemInput{
		ID:        "i1",
		ProjectID: "p1",
		Title:     "  Ship feature ",
		DueAt:     &due,
	}, now)
	if err != nil {
		t.Fatalf("NewWorkItem() error = %v", err)
	}
	if item.Type != ItemTypeTask {
		t.Fatalf("expected default type task, got %q", item.Type)
	}
	if item.Status != StatusBacklog {
		t.Fatalf("expected default status backlog, got %q", item.Status)
	}
	if item.EstimateMode != EstimateManual {
		t.Fatalf("expected manual estimate mode, got %q", item.EstimateMode)
	}
	if item.Title != "Ship feature" {
		t.Fatalf("unexpected title %q", item.Title)
	}
	if item.DueAt == nil || item.DueAt.Nanosecond() != 0 {
		t.Fatalf("expected due_at truncated to seconds, got %v", item.DueAt)
	}
}

func TestNewWorkItemValidation(t *testing.T) {
	now := time.Now()
	cases := []struct {
		name string
		in   WorkItemInput
		want error
	}{
		{name: "missing id", in: WorkItemInput{ProjectID: "p1", Title: "x"}, want: ErrInvalidID},
		{name: "missing title", in: WorkItemInput{ID: "i1", ProjectID: "p1"}, want: ErrInvalidTitle},
		{name: "self parent", in: WorkItemInput{ID: "i1", ProjectID: "p1", ParentID: "i1", Title: "x"}, want: ErrInvalidParentID},
		{name: "negative estimate", in: WorkItemInput{ID: "i1", ProjectID: "p1", Title: "x", EstimateMinutes: -1}, want: ErrInvalidEstimate},
		{name: "bad type", in: WorkItemInput{ID: "i1", ProjectID: "p1", Title: "x", Type: "epic"}, want: ErrInvalidItemType},
		{name: "bad status", in: WorkItemInput{ID: "i1", ProjectID: "p1", Title: "x", Status: "paused"}, want: ErrInvalidStatus},
		{name: "bad mode", in: WorkItemInput{ID: "i1", ProjectID: "p1", Title: "x", EstimateMode: "auto"}, want: ErrInvalidEstimateMode},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewWorkItem(tc.in, now); err != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestWorkItemSetStatusTracksCompletion(t *testing.T) {
	now := time.Date(2026, 2, 21, 12, 0, 0, 0, time.UTC)
	item, err := NewWorkItem(WorkItemInput{ID: "i1", ProjectID: "p1", Title: "x"}, now)
	if err != nil {
		t.Fatalf("NewWorkItem() error = %v", err)
	}
	if err := item.SetStatus("completed", now.Add(time.Hour)); err != nil {
		t.Fatalf("SetStatus() error = %v", err)
	}
	if item.Status != StatusDone || item.CompletedAt == nil {
		t.Fatalf("expected done with completed_at, got %#v", item)
	}
	if err := item.SetStatus("in-progress", now.Add(2*time.Hour)); err != nil {
		t.Fatalf("SetStatus() error = %v", err)
	}
	if item.Status != StatusInProgress || item.CompletedAt != nil {
		t.Fatalf("expected in_progress without completed_at, got %#v", item)
	}
	if err := item.SetStatus("nope", now); err != ErrInvalidStatus {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
}

func TestNewDependencyValidation(t *testing.T) {
	now := time.Now()
	dep, err := NewDependency(DependencyInput{ID: "d1", ProjectID: "p1", ItemID: "b", DependsOnID: "a", Type: "ss", LagMinutes: -15}, now)
	if err != nil {
		t.Fatalf("NewDependency() error = %v", err)
	}
	if dep.Type != DependencyStartToStart || dep.LagMinutes != -15 {
		t.Fatalf("unexpected dependency %#v", dep)
	}

	dep, err = NewDependency(DependencyInput{ID: "d2", ProjectID: "p1", ItemID: "b", DependsOnID: "a"}, now)
	if err != nil {
		t.Fatalf("NewDependency() error = %v", err)
	}
	if dep.Type != DependencyFinishToStart {
		t.Fatalf("expected default FS, got %q", dep.Type)
	}

	if _, err := NewDependency(DependencyInput{ID: "d3", ProjectID: "p1", ItemID: "a", DependsOnID: "a"}, now); err != ErrSelfDependency {
		t.Fatalf("expected ErrSelfDependency, got %v", err)
	}
	if _, err := NewDependency(DependencyInput{ID: "d4", ProjectID: "p1", ItemID: "a", DependsOnID: "b", Type: "XX"}, now); !errors.Is(err, ErrInvalidDependencyType) {
		t.Fatalf("expected ErrInvalidDependencyType, got %v", err)
	}
	if _, err := NewDependency(DependencyInput{ID: "d5", ProjectID: "p1", DependsOnID: "b"}, now); err != ErrInvalidID {
		t.Fatalf("expected ErrInvalidID, got %v", err)
	}
}

func TestScheduledBlockValidationAndEnd(t *testing.T) {
	now := time.Date(2026, 2, 21, 12, 0, 0, 0, time.UTC)
	block, err := NewScheduledBlock(ScheduledBlockInput{ID: "b1", ProjectID: "p1", ItemID: "i1", StartAt: now, DurationMinutes: 45}, now)
	if err != nil {
		t.Fatalf("NewScheduledBlock() error = %v", err)
	}
	if got := block.EndAt(); !got.Equal(now.Add(45 * time.Minute)) {
		t.Fatalf("unexpected end %v", got)
	}
	if _, err := NewScheduledBlock(ScheduledBlockInput{ID: "b2", ProjectID: "p1", ItemID: "i1", StartAt: now}, now); err != ErrInvalidDuration {
		t.Fatalf("expected ErrInvalidDuration, got %v", err)
	}
	if _, err := NewScheduledBlock(ScheduledBlockInput{ID: "b3", ProjectID: "p1", ItemID: "i1", DurationMinutes: 5}, now); err != ErrInvalidStartTime {
		t.Fatalf("expected ErrInvalidStartTime, got %v", err)
	}
	if err := block.Move(now.Add(time.Hour), 0, now); err != ErrInvalidDuration {
		t.Fatalf("expected ErrInvalidDuration on move, got %v", err)
	}
}

func TestTimeEntryAndBlocker(t *testing.T) {
	now := time.Date(2026, 2, 21, 12, 0, 0, 0, time.UTC)
	entry, err := NewTimeEntry(TimeEntryInput{ID: "t1", ProjectID: "p1", ItemID: "i1", Minutes: 25}, now)
	if err != nil {
		t.Fatalf("NewTimeEntry() error = %v", err)
	}
	if !entry.StartedAt.Equal(now) {
		t.Fatalf("expected started_at defaulted to now, got %v", entry.StartedAt)
	}
	if _, err := NewTimeEntry(TimeEntryInput{ID: "t2", ProjectID: "p1", ItemID: "i1"}, now); err != ErrInvalidMinutes {
		t.Fatalf("expected ErrInvalidMinutes, got %v", err)
	}

	blocker, err := NewBlocker("bl1", "p1", "i1", " waiting on vendor ", now)
	if err != nil {
		t.Fatalf("NewBlocker() error = %v", err)
	}
	if !blocker.IsOpen() || blocker.Reason != "waiting on vendor" {
		t.Fatalf("unexpected blocker %#v", blocker)
	}
	if err := blocker.Resolve(now.Add(time.Hour)); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if blocker.IsOpen() {
		t.Fatal("expected blocker resolved")
	}
	if err := blocker.Resolve(now.Add(2 * time.Hour)); err != ErrBlockerResolved {
		t.Fatalf("expected ErrBlockerResolved, got %v", err)
	}
}

func TestChangeMetadata(t *testing.T) {
	start := time.Date(2026, 3, 2, 9, 0, 30, 0, time.UTC)
	dep := Dependency{ID: "d1", ItemID: "b", DependsOnID: "a", Type: DependencyStartToStart, LagMinutes: -15}
	if got := dep.ChangeMetadata(); got["dependency_id"] != "d1" || got["depends_on_id"] != "a" || got["type"] != "SS" || got["lag_minutes"] != "-15" {
		t.Fatalf("unexpected dependency metadata %#v", got)
	}
	block := ScheduledBlock{ID: "blk1", StartAt: start, DurationMinutes: 45}
	if got := block.ChangeMetadata(); got["block_id"] != "blk1" || got["start_at"] != "2026-03-02T09:00:30Z" || got["duration_minutes"] != "45" {
		t.Fatalf("unexpected block metadata %#v", got)
	}
	entry := TimeEntry{ID: "e1", UserID: "dana", Minutes: 20}
	if got := entry.ChangeMetadata(); got["entry_id"] != "e1" || got["user_id"] != "dana" || got["minutes"] != "20" {
		t.Fatalf("unexpected time entry metadata %#v", got)
	}
	blocker := Blocker{ID: "bl1", Reason: "vendor"}
	if got := blocker.ChangeMetadata(); got["blocker_id"] != "bl1" || got["reason"] != "vendor" {
		t.Fatalf("unexpected blocker metadata %#v", got)
	}
}
