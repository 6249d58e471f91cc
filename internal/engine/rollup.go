package engine

import (
	"slices"
	"time"

	"github.com/hylla/tempo/internal/domain"
)

// Leaf carries one item's own metrics before aggregation.
type Leaf struct {
	Window          Window
	EstimateMinutes int
	ActualMinutes   int
	Blocked         bool
	Overdue         bool
}

// LeafFor builds an item's leaf metrics. Items in rollup estimate mode contribute no
// estimate of their own.
func LeafFor(item domain.WorkItem, summary Summary, actualMinutes int, blocked, overdue bool) Leaf {
	estimate := item.EstimateMinutes
	if item.EstimateMode == domain.EstimateRollup {
		estimate = 0
	}
	return Leaf{
		Window:          summary.Window(),
		EstimateMinutes: estimate,
		ActualMinutes:   actualMinutes,
		Blocked:         blocked,
		Overdue:         overdue,
	}
}

// Aggregate is an item's metrics folded with all of its descendants.
type Aggregate struct {
	Start         *time.Time
	End           *time.Time
	EstimateTotal int
	ActualTotal   int
	BlockedCount  int
	OverdueCount  int
}

// RemainingMinutes returns max(0, EstimateTotal - ActualTotal).
func (a Aggregate) RemainingMinutes() int {
	return max(0, a.EstimateTotal-a.ActualTotal)
}

func (a Aggregate) merge(b Aggregate) Aggregate {
	a.Start = earlier(a.Start, b.Start)
	a.End = later(a.End, b.End)
	a.EstimateTotal += b.EstimateTotal
	a.ActualTotal += b.ActualTotal
	a.BlockedCount += b.BlockedCount
	a.OverdueCount += b.OverdueCount
	return a
}

func fromLeaf(leaf Leaf) Aggregate {
	out := Aggregate{
		Start:         leaf.Window.Start,
		End:           leaf.Window.End,
		EstimateTotal: leaf.EstimateMinutes,
		ActualTotal:   leaf.ActualMinutes,
	}
	if leaf.Blocked {
		out.BlockedCount = 1
	}
	if leaf.Overdue {
		out.OverdueCount = 1
	}
	return out
}

// Rollup aggregates leaves bottom-up through the parent/child tree of items.
//
// Items whose parent is not in the set are treated as roots. The walk is memoized,
// and an in-progress guard cuts recursion on a malformed cyclic tree: the back edge
// contributes nothing. Items missing from leaves contribute zero metrics.
func Rollup(items []domain.WorkItem, leaves map[string]Leaf) map[string]Aggregate {
	inScope := make(map[string]struct{}, len(items))
	for _, item := range items {
		inScope[item.ID] = struct{}{}
	}
	children := map[string][]string{}
	for _, item := range items {
		if item.ParentID == "" {
			continue
		}
		if _, ok := inScope[item.ParentID]; !ok {
			continue
		}
		children[item.ParentID] = append(children[item.ParentID], item.ID)
	}
	for id := range children {
		slices.Sort(children[id])
	}

	memo := make(map[string]Aggregate, len(items))
	inProgress := map[string]struct{}{}
	var walk func(id string) Aggregate
	walk = func(id string) Aggregate {
		if agg, ok := memo[id]; ok {
			return agg
		}
		if _, active := inProgress[id]; active {
			return Aggregate{}
		}
		inProgress[id] = struct{}{}
		agg := fromLeaf(leaves[id])
		for _, child := range children[id] {
			agg = agg.merge(walk(child))
		}
		delete(inProgress, id)
		memo[id] = agg
		return agg
	}

	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID)
	}
	slices.Sort(ids)
	for _, id := range ids {
		walk(id)
	}
	return memo
}

func earlier(a, b *time.Time) *time.Time {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	case b.Before(*a):
		return b
	default:
		return a
	}
}

func later(a, b *time.Time) *time.Time {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	case b.After(*a):
		return b
	default:
		return a
	}
}
