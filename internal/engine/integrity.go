package engine

import (
	"slices"
	"strings"

	"github.com/hylla/tempo/internal/domain"
)

// ReportInput is the record set inspected by BuildReport.
type ReportInput struct {
	Items        []domain.WorkItem
	Dependencies []domain.Dependency
	Blocks       []domain.ScheduledBlock
	Members      []domain.ProjectMember
}

// BlockIssue identifies a defective scheduled block.
type BlockIssue struct {
	BlockID         string `json:"block_id"`
	ItemID          string `json:"item_id"`
	DurationMinutes int    `json:"duration_minutes"`
}

// EdgeIssue identifies a defective dependency edge.
type EdgeIssue struct {
	DependencyID string   `json:"dependency_id"`
	ItemID       string   `json:"item_id"`
	DependsOnID  string   `json:"depends_on_id"`
	MissingIDs   []string `json:"missing_ids,omitempty"`
}

// AssigneeIssue identifies an item assigned to someone outside its project.
type AssigneeIssue struct {
	ItemID     string `json:"item_id"`
	ProjectID  string `json:"project_id"`
	AssigneeID string `json:"assignee_id"`
}

// ReportCounts summarizes Report list lengths.
type ReportCounts struct {
	InvalidBlocks      int `json:"invalid_blocks"`
	OrphanedBlocks     int `json:"orphaned_blocks"`
	OrphanedEdges      int `json:"orphaned_edges"`
	CrossProjectEdges  int `json:"cross_project_edges"`
	Cycles             int `json:"cycles"`
	NonMemberAssignees int `json:"non_member_assignees"`
}

// Report lists structural defects. It is diagnostic only and never blocks writes.
type Report struct {
	InvalidBlocks      []BlockIssue    `json:"invalid_blocks"`
	OrphanedBlocks     []BlockIssue    `json:"orphaned_blocks"`
	OrphanedEdges      []EdgeIssue     `json:"orphaned_edges"`
	CrossProjectEdges  []EdgeIssue     `json:"cross_project_edges"`
	Cycles             [][]string      `json:"cycles"`
	NonMemberAssignees []AssigneeIssue `json:"non_member_assignees"`
	Counts             ReportCounts    `json:"counts"`
}

// Clean reports whether no defect was found.
func (r Report) Clean() bool {
	return r.Counts == ReportCounts{}
}

// BuildReport inspects a record set for structural defects.
func BuildReport(in ReportInput) Report {
	items := make(map[string]domain.WorkItem, len(in.Items))
	for _, item := range in.Items {
		items[item.ID] = item
	}
	out := Report{
		InvalidBlocks:      []BlockIssue{},
		OrphanedBlocks:     []BlockIssue{},
		OrphanedEdges:      []EdgeIssue{},
		CrossProjectEdges:  []EdgeIssue{},
		Cycles:             [][]string{},
		NonMemberAssignees: []AssigneeIssue{},
	}

	for _, block := range in.Blocks {
		issue := BlockIssue{BlockID: block.ID, ItemID: block.ItemID, DurationMinutes: block.DurationMinutes}
		if block.DurationMinutes <= 0 {
			out.InvalidBlocks = append(out.InvalidBlocks, issue)
		}
		if _, ok := items[block.ItemID]; !ok {
			out.OrphanedBlocks = append(out.OrphanedBlocks, issue)
		}
	}

	byProject := map[string][]domain.Dependency{}
	for _, edge := range in.Dependencies {
		issue := EdgeIssue{DependencyID: edge.ID, ItemID: edge.ItemID, DependsOnID: edge.DependsOnID}
		successor, hasSuccessor := items[edge.ItemID]
		predecessor, hasPredecessor := items[edge.DependsOnID]
		if !hasSuccessor {
			issue.MissingIDs = append(issue.MissingIDs, edge.ItemID)
		}
		if !hasPredecessor {
			issue.MissingIDs = append(issue.MissingIDs, edge.DependsOnID)
		}
		if len(issue.MissingIDs) > 0 {
			out.OrphanedEdges = append(out.OrphanedEdges, issue)
		} else if successor.ProjectID != predecessor.ProjectID {
			out.CrossProjectEdges = append(out.CrossProjectEdges, issue)
		}
		byProject[edge.ProjectID] = append(byProject[edge.ProjectID], edge)
	}
	for _, edges := range byProject {
		out.Cycles = append(out.Cycles, BuildGraph(edges).FindAllCycles()...)
	}

	members := map[string]struct{}{}
	for _, member := range in.Members {
		members[member.ProjectID+"\x00"+member.UserID] = struct{}{}
	}
	for _, item := range in.Items {
		if item.AssigneeID == "" {
			continue
		}
		if _, ok := members[item.ProjectID+"\x00"+item.AssigneeID]; ok {
			continue
		}
		out.NonMemberAssignees = append(out.NonMemberAssignees, AssigneeIssue{
			ItemID:     item.ID,
			ProjectID:  item.ProjectID,
			AssigneeID: item.AssigneeID,
		})
	}

	sortBlockIssues(out.InvalidBlocks)
	sortBlockIssues(out.OrphanedBlocks)
	sortEdgeIssues(out.OrphanedEdges)
	sortEdgeIssues(out.CrossProjectEdges)
	slices.SortFunc(out.Cycles, func(a, b []string) int {
		return slices.Compare(a, b)
	})
	slices.SortFunc(out.NonMemberAssignees, func(a, b AssigneeIssue) int {
		return strings.Compare(a.ItemID, b.ItemID)
	})

	out.Counts = ReportCounts{
		InvalidBlocks:      len(out.InvalidBlocks),
		OrphanedBlocks:     len(out.OrphanedBlocks),
		OrphanedEdges:      len(out.OrphanedEdges),
		CrossProjectEdges:  len(out.CrossProjectEdges),
		Cycles:             len(out.Cycles),
		NonMemberAssignees: len(out.NonMemberAssignees),
	}
	return out
}

func sortBlockIssues(issues []BlockIssue) {
	slices.SortFunc(issues, func(a, b BlockIssue) int {
		return strings.Compare(a.BlockID, b.BlockID)
	})
}

func sortEdgeIssues(issues []EdgeIssue) {
	slices.SortFunc(issues, func(a, b EdgeIssue) int {
		return strings.Compare(a.DependencyID, b.DependencyID)
	})
}
