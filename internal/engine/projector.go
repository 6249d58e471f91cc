package engine

import (
	"slices"
	"strings"

	"github.com/hylla/tempo/internal/domain"
)

// EdgeProjection is the derived state of one precedence edge for the current snapshot.
//
// Status is schedule-based: violated only when both windows are known and the timing
// rule fails. Unmet is status-based: the predecessor is missing or not done, regardless
// of scheduling. The two signals are independent and may disagree.
type EdgeProjection struct {
	DependencyID      string                `json:"dependency_id"`
	ItemID            string                `json:"item_id"`
	DependsOnID       string                `json:"depends_on_id"`
	Type              domain.DependencyType `json:"type"`
	LagMinutes        int                   `json:"lag_minutes"`
	Status            Status                `json:"status"`
	Reason            string                `json:"reason"`
	PredecessorStatus domain.ItemStatus     `json:"predecessor_status,omitempty"`
	Unmet             bool                  `json:"unmet"`
}

// LinkedItem is one edge seen from a single endpoint, annotated with the counterpart.
type LinkedItem struct {
	DependencyID string                `json:"dependency_id"`
	ItemID       string                `json:"item_id"`
	Title        string                `json:"title"`
	ItemStatus   domain.ItemStatus     `json:"item_status"`
	Type         domain.DependencyType `json:"type"`
	LagMinutes   int                   `json:"lag_minutes"`
	Status       Status                `json:"status"`
	Reason       string                `json:"reason"`
	Unmet        bool                  `json:"unmet"`
}

// ItemLinks groups an item's incoming and outgoing precedence edges.
type ItemLinks struct {
	// BlockedBy lists edges where the item is the successor.
	BlockedBy []LinkedItem `json:"blocked_by"`
	// Blocking lists edges where the item is the predecessor.
	Blocking []LinkedItem `json:"blocking"`
}

// Projector evaluates edges against per-item schedule summaries.
type Projector struct {
	items       map[string]domain.WorkItem
	summaries   map[string]Summary
	edges       []domain.Dependency
	bySuccessor map[string][]int
	byPredecsr  map[string][]int
}

// NewProjector indexes a snapshot. Edges are evaluated in (item, depends_on, id) order.
func NewProjector(items []domain.WorkItem, edges []domain.Dependency, summaries map[string]Summary) *Projector {
	p := &Projector{
		items:       make(map[string]domain.WorkItem, len(items)),
		summaries:   summaries,
		edges:       slices.Clone(edges),
		bySuccessor: map[string][]int{},
		byPredecsr:  map[string][]int{},
	}
	if p.summaries == nil {
		p.summaries = map[string]Summary{}
	}
	for _, item := range items {
		p.items[item.ID] = item
	}
	slices.SortFunc(p.edges, compareEdges)
	for idx, edge := range p.edges {
		p.bySuccessor[edge.ItemID] = append(p.bySuccessor[edge.ItemID], idx)
		p.byPredecsr[edge.DependsOnID] = append(p.byPredecsr[edge.DependsOnID], idx)
	}
	return p
}

// Project evaluates one edge.
func (p *Projector) Project(edge domain.Dependency) EdgeProjection {
	pred := p.summaries[edge.DependsOnID].Window()
	succ := p.summaries[edge.ItemID].Window()
	out := EdgeProjection{
		DependencyID: edge.ID,
		ItemID:       edge.ItemID,
		DependsOnID:  edge.DependsOnID,
		Type:         edge.Type,
		LagMinutes:   edge.LagMinutes,
		Status:       Evaluate(pred, succ, edge.Type, edge.LagMinutes),
		Reason:       Reason(edge.Type, edge.LagMinutes),
		Unmet:        true,
	}
	// A missing predecessor counts as unmet.
	if predecessor, ok := p.items[edge.DependsOnID]; ok {
		out.PredecessorStatus = predecessor.Status
		out.Unmet = predecessor.Status != domain.StatusDone
	}
	return out
}

// Edges projects every edge in deterministic order.
func (p *Projector) Edges() []EdgeProjection {
	out := make([]EdgeProjection, 0, len(p.edges))
	for _, edge := range p.edges {
		out = append(out, p.Project(edge))
	}
	return out
}

// Links returns the blocked_by and blocking projections for one item.
func (p *Projector) Links(itemID string) ItemLinks {
	out := ItemLinks{
		BlockedBy: make([]LinkedItem, 0, len(p.bySuccessor[itemID])),
		Blocking:  make([]LinkedItem, 0, len(p.byPredecsr[itemID])),
	}
	for _, idx := range p.bySuccessor[itemID] {
		edge := p.edges[idx]
		out.BlockedBy = append(out.BlockedBy, p.linked(edge, edge.DependsOnID))
	}
	for _, idx := range p.byPredecsr[itemID] {
		edge := p.edges[idx]
		out.Blocking = append(out.Blocking, p.linked(edge, edge.ItemID))
	}
	return out
}

// HasUnmetDependency reports whether any predecessor of itemID is not done.
func (p *Projector) HasUnmetDependency(itemID string) bool {
	for _, idx := range p.bySuccessor[itemID] {
		if p.Project(p.edges[idx]).Unmet {
			return true
		}
	}
	return false
}

// HasScheduleViolation reports whether any incoming edge of itemID is violated.
func (p *Projector) HasScheduleViolation(itemID string) bool {
	for _, idx := range p.bySuccessor[itemID] {
		if p.Project(p.edges[idx]).Status == StatusViolated {
			return true
		}
	}
	return false
}

func (p *Projector) linked(edge domain.Dependency, counterpartID string) LinkedItem {
	projection := p.Project(edge)
	counterpart := p.items[counterpartID]
	return LinkedItem{
		DependencyID: edge.ID,
		ItemID:       counterpartID,
		Title:        counterpart.Title,
		ItemStatus:   counterpart.Status,
		Type:         edge.Type,
		LagMinutes:   edge.LagMinutes,
		Status:       projection.Status,
		Reason:       projection.Reason,
		Unmet:        projection.Unmet,
	}
}

func compareEdges(a, b domain.Dependency) int {
	if c := strings.Compare(a.ItemID, b.ItemID); c != 0 {
		return c
	}
	if c := strings.Compare(a.DependsOnID, b.DependsOnID); c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}
