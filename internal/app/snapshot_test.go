package app

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/hylla/tempo/internal/domain"
)

// seedSnapshotData builds a two-project fixture with one archived item.
func seedSnapshotData(t *testing.T) (*Service, *fakeRepo) {
	t.Helper()
	svc, repo, _ := newTestService(t)
	seedProject(t, repo, "p1", "a", "b")
	seedProject(t, repo, "p2", "x")
	ctx := context.Background()

	if _, err := svc.AddProjectMember(ctx, "p1", "dana", domain.MemberRoleOwner); err != nil {
		t.Fatalf("AddProjectMember() error = %v", err)
	}
	if _, err := svc.AddDependency(ctx, AddDependencyInput{ItemID: "b", DependsOnID: "a", Type: "FF", LagMinutes: 10}); err != nil {
		t.Fatalf("AddDependency() error = %v", err)
	}
	if _, err := svc.ScheduleBlock(ctx, ScheduleBlockInput{ItemID: "a", StartAt: testNow, DurationMinutes: 60}); err != nil {
		t.Fatalf("ScheduleBlock() error = %v", err)
	}
	if _, err := svc.LogTime(ctx, LogTimeInput{ItemID: "a", Minutes: 20, Note: "kickoff"}); err != nil {
		t.Fatalf("LogTime() error = %v", err)
	}
	if _, err := svc.RaiseBlocker(ctx, "x", "vendor"); err != nil {
		t.Fatalf("RaiseBlocker() error = %v", err)
	}
	if err := svc.DeleteItem(ctx, "x", DeleteModeArchive); err != nil {
		t.Fatalf("DeleteItem() error = %v", err)
	}
	return svc, repo
}

func TestExportSnapshotIncludesExpectedData(t *testing.T) {
	svc, _ := seedSnapshotData(t)

	active, err := svc.ExportSnapshot(context.Background(), false)
	if err != nil {
		t.Fatalf("ExportSnapshot(active) error = %v", err)
	}
	if active.Version != SnapshotVersion {
		t.Fatalf("unexpected version %q", active.Version)
	}
	if len(active.Projects) != 2 || len(active.Items) != 2 {
		t.Fatalf("unexpected active sizes p=%d i=%d", len(active.Projects), len(active.Items))
	}
	if len(active.Blockers) != 0 {
		t.Fatalf("archived item blockers must be excluded, got %#v", active.Blockers)
	}
	if len(active.Dependencies) != 1 || active.Dependencies[0].Type != domain.DependencyFinishToFinish {
		t.Fatalf("unexpected dependencies %#v", active.Dependencies)
	}
	if len(active.Members) != 1 || active.Members[0].Role != domain.MemberRoleOwner {
		t.Fatalf("unexpected members %#v", active.Members)
	}

	all, err := svc.ExportSnapshot(context.Background(), true)
	if err != nil {
		t.Fatalf("ExportSnapshot(all) error = %v", err)
	}
	if len(all.Items) != 3 || len(all.Blockers) != 1 || len(all.TimeEntries) != 1 || len(all.Blocks) != 1 {
		t.Fatalf("unexpected full sizes i=%d b=%d e=%d s=%d", len(all.Items), len(all.Blockers), len(all.TimeEntries), len(all.Blocks))
	}
}

func TestImportSnapshotRoundTripsIntoEmptyRepo(t *testing.T) {
	src, _ := seedSnapshotData(t)
	snap, err := src.ExportSnapshot(context.Background(), true)
	if err != nil {
		t.Fatalf("ExportSnapshot() error = %v", err)
	}

	dst, repo, _ := newTestService(t)
	if err := dst.ImportSnapshot(context.Background(), snap); err != nil {
		t.Fatalf("ImportSnapshot() error = %v", err)
	}
	if len(repo.projects) != 2 || len(repo.items) != 3 || len(repo.deps) != 1 {
		t.Fatalf("unexpected imported sizes p=%d i=%d d=%d", len(repo.projects), len(repo.items), len(repo.deps))
	}
	if repo.items["x"].ArchivedAt == nil {
		t.Fatal("expected archived_at to survive import")
	}

	// A second import is idempotent.
	if err := dst.ImportSnapshot(context.Background(), snap); err != nil {
		t.Fatalf("ImportSnapshot(again) error = %v", err)
	}
	if len(repo.entries) != 1 || len(repo.deps) != 1 || len(repo.blockers) != 1 {
		t.Fatalf("re-import duplicated rows e=%d d=%d b=%d", len(repo.entries), len(repo.deps), len(repo.blockers))
	}
}

func TestImportSnapshotUpdatesExisting(t *testing.T) {
	svc, repo, _ := newTestService(t)
	seedProject(t, repo, "p1", "a")

	snap := Snapshot{
		Version: SnapshotVersion,
		Projects: []SnapshotProject{{
			ID: "p1", Name: "Renamed", CreatedAt: testNow, UpdatedAt: testNow,
		}},
		Items: []SnapshotItem{{
			ID: "a", ProjectID: "p1", Title: "Updated", Status: domain.StatusReview,
			EstimateMinutes: 45, CreatedAt: testNow, UpdatedAt: testNow,
		}},
	}
	if err := svc.ImportSnapshot(context.Background(), snap); err != nil {
		t.Fatalf("ImportSnapshot() error = %v", err)
	}
	if got := repo.projects["p1"]; got.Name != "Renamed" || got.Slug != "renamed" {
		t.Fatalf("unexpected project %#v", got)
	}
	if got := repo.items["a"]; got.Title != "Updated" || got.Status != domain.StatusReview || got.Type != domain.ItemTypeTask {
		t.Fatalf("unexpected item %#v", got)
	}
}

func TestImportSnapshotRejectsCycle(t *testing.T) {
	svc, repo, _ := newTestService(t)
	snap := Snapshot{
		Version:  SnapshotVersion,
		Projects: []SnapshotProject{{ID: "p1", Name: "P", CreatedAt: testNow, UpdatedAt: testNow}},
		Items: []SnapshotItem{
			{ID: "a", ProjectID: "p1", Title: "A", CreatedAt: testNow, UpdatedAt: testNow},
			{ID: "b", ProjectID: "p1", Title: "B", CreatedAt: testNow, UpdatedAt: testNow},
		},
		Dependencies: []SnapshotDependency{
			{ID: "d1", ProjectID: "p1", ItemID: "b", DependsOnID: "a", Type: "FS"},
			{ID: "d2", ProjectID: "p1", ItemID: "a", DependsOnID: "b", Type: "FS"},
		},
	}
	err := svc.ImportSnapshot(context.Background(), snap)
	if !errors.Is(err, domain.ErrDependencyCycle) {
		t.Fatalf("ImportSnapshot() error = %v, want ErrDependencyCycle", err)
	}
	if len(repo.deps) != 1 {
		t.Fatalf("expected only the first edge to land, got %d", len(repo.deps))
	}
}

func TestSnapshotValidate(t *testing.T) {
	base := func() Snapshot {
		return Snapshot{
			Version:  SnapshotVersion,
			Projects: []SnapshotProject{{ID: "p1", Name: "P", CreatedAt: testNow, UpdatedAt: testNow}},
			Items: []SnapshotItem{
				{ID: "a", ProjectID: "p1", Title: "A", CreatedAt: testNow, UpdatedAt: testNow},
				{ID: "b", ProjectID: "p1", Title: "B", CreatedAt: testNow, UpdatedAt: testNow},
			},
		}
	}
	tests := []struct {
		name   string
		mutate func(*Snapshot)
		want   string
	}{
		{name: "version", mutate: func(s *Snapshot) { s.Version = "other" }, want: "unsupported snapshot version"},
		{name: "duplicate project", mutate: func(s *Snapshot) { s.Projects = append(s.Projects, s.Projects[0]) }, want: "duplicate project id"},
		{name: "unknown project", mutate: func(s *Snapshot) { s.Items[0].ProjectID = "zz" }, want: "unknown project_id"},
		{name: "self parent", mutate: func(s *Snapshot) { s.Items[0].ParentID = "a" }, want: "cannot reference itself"},
		{name: "bad status", mutate: func(s *Snapshot) { s.Items[0].Status = "nope" }, want: "items[0].status"},
		{name: "self edge", mutate: func(s *Snapshot) {
			s.Dependencies = []SnapshotDependency{{ID: "d", ProjectID: "p1", ItemID: "a", DependsOnID: "a"}}
		}, want: domain.ErrSelfDependency.Error()},
		{name: "dangling edge", mutate: func(s *Snapshot) {
			s.Dependencies = []SnapshotDependency{{ID: "d", ProjectID: "p1", ItemID: "a", DependsOnID: "zz"}}
		}, want: "unknown depends_on_id"},
		{name: "zero block", mutate: func(s *Snapshot) {
			s.Blocks = []SnapshotScheduledBlock{{ID: "s", ProjectID: "p1", ItemID: "a", StartAt: testNow}}
		}, want: domain.ErrInvalidDuration.Error()},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			snap := base()
			tc.mutate(&snap)
			err := snap.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("Validate() error = %v, want containing %q", err, tc.want)
			}
		})
	}
	ok := base()
	if err := ok.Validate(); err != nil {
		t.Fatalf("Validate(base) error = %v", err)
	}
}

func TestSnapshotCodecs(t *testing.T) {
	svc, _ := seedSnapshotData(t)
	snap, err := svc.ExportSnapshot(context.Background(), true)
	if err != nil {
		t.Fatalf("ExportSnapshot() error = %v", err)
	}

	for _, format := range []SnapshotFormat{SnapshotJSON, SnapshotYAML} {
		t.Run(string(format), func(t *testing.T) {
			var buf bytes.Buffer
			if err := EncodeSnapshot(&buf, snap, format); err != nil {
				t.Fatalf("EncodeSnapshot() error = %v", err)
			}
			if !strings.Contains(buf.String(), "tempo.snapshot.v1") {
				t.Fatalf("encoded output missing version:\n%s", buf.String())
			}
			decoded, err := DecodeSnapshot(&buf, format)
			if err != nil {
				t.Fatalf("DecodeSnapshot() error = %v", err)
			}
			if len(decoded.Items) != len(snap.Items) || len(decoded.Dependencies) != len(snap.Dependencies) {
				t.Fatalf("decoded sizes differ: %#v", decoded)
			}
			if !decoded.ExportedAt.Equal(snap.ExportedAt) {
				t.Fatalf("ExportedAt = %s, want %s", decoded.ExportedAt, snap.ExportedAt)
			}
			if err := decoded.Validate(); err != nil {
				t.Fatalf("Validate(decoded) error = %v", err)
			}
		})
	}

	if err := EncodeSnapshot(&bytes.Buffer{}, snap, "xml"); err == nil {
		t.Fatal("EncodeSnapshot(xml) expected error")
	}
}

func TestSnapshotFormatForPath(t *testing.T) {
	cases := map[string]SnapshotFormat{
		"out.json":      SnapshotJSON,
		"out.YAML":      SnapshotYAML,
		"dir/out.yml":   SnapshotYAML,
		"no-extension":  SnapshotJSON,
		"archive.tar.x": SnapshotJSON,
	}
	for path, want := range cases {
		if got := SnapshotFormatForPath(path); got != want {
			t.Fatalf("SnapshotFormatForPath(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestSnapshotSortPlacesParentsFirst(t *testing.T) {
	snap := Snapshot{Items: []SnapshotItem{
		{ID: "a", ProjectID: "p1", ParentID: "c"},
		{ID: "b", ProjectID: "p1"},
		{ID: "c", ProjectID: "p1", ParentID: "b"},
	}}
	snap.sort()
	got := []string{snap.Items[0].ID, snap.Items[1].ID, snap.Items[2].ID}
	want := []string{"b", "c", "a"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sorted ids = %v, want %v", got, want)
		}
	}
}
