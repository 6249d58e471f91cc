package engine

import (
	"slices"
	"strings"

	"github.com/hylla/tempo/internal/domain"
)

// Graph is an adjacency view of one project's precedence edges: item_id -> depends_on ids.
// It is rebuilt from storage on every check and never cached.
type Graph map[string][]string

// BuildGraph indexes edges by successor. Neighbour lists are sorted and deduplicated.
func BuildGraph(edges []domain.Dependency) Graph {
	g := make(Graph, len(edges))
	for _, edge := range edges {
		g[edge.ItemID] = append(g[edge.ItemID], edge.DependsOnID)
	}
	for id, next := range g {
		slices.Sort(next)
		g[id] = slices.Compact(next)
	}
	return g
}

// WouldCreateCycle reports whether adding "itemID depends on dependsOnID" closes a loop,
// i.e. whether dependsOnID already transitively depends on itemID.
func (g Graph) WouldCreateCycle(itemID, dependsOnID string) bool {
	if itemID == dependsOnID {
		return true
	}
	next := g.with(itemID, dependsOnID)

	visited := map[string]struct{}{}
	stack := []string{dependsOnID}
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if node == itemID {
			return true
		}
		if _, seen := visited[node]; seen {
			continue
		}
		visited[node] = struct{}{}
		for _, neighbor := range next[node] {
			if _, seen := visited[neighbor]; !seen {
				stack = append(stack, neighbor)
			}
		}
	}
	return false
}

// with returns a transient copy of g that includes one extra edge.
func (g Graph) with(itemID, dependsOnID string) Graph {
	out := make(Graph, len(g)+1)
	for id, next := range g {
		out[id] = next
	}
	out[itemID] = append(slices.Clone(g[itemID]), dependsOnID)
	return out
}

// FindAllCycles enumerates the cycles present in g. Each cycle is rotated to start at its
// smallest id, duplicates found from different entry points are dropped, and the result
// is sorted so repeated calls produce identical output.
func (g Graph) FindAllCycles() [][]string {
	nodes := make([]string, 0, len(g))
	for id := range g {
		nodes = append(nodes, id)
	}
	slices.Sort(nodes)

	type frame struct {
		node string
		next int
	}
	visited := map[string]bool{}
	onPath := map[string]int{}
	var found [][]string

	for _, root := range nodes {
		if visited[root] {
			continue
		}
		path := []string{root}
		stack := []frame{{node: root}}
		visited[root] = true
		onPath[root] = 0

		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			neighbors := g[top.node]
			if top.next >= len(neighbors) {
				delete(onPath, top.node)
				stack = stack[:len(stack)-1]
				path = path[:len(path)-1]
				continue
			}
			neighbor := neighbors[top.next]
			top.next++

			if idx, active := onPath[neighbor]; active {
				found = append(found, slices.Clone(path[idx:]))
				continue
			}
			if visited[neighbor] {
				continue
			}
			visited[neighbor] = true
			onPath[neighbor] = len(path)
			path = append(path, neighbor)
			stack = append(stack, frame{node: neighbor})
		}
	}

	seen := map[string]struct{}{}
	out := make([][]string, 0, len(found))
	for _, cycle := range found {
		cycle = normalizeCycle(cycle)
		key := strings.Join(cycle, "\x00")
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, cycle)
	}
	slices.SortFunc(out, func(a, b []string) int {
		return slices.Compare(a, b)
	})
	return out
}

// normalizeCycle rotates a cycle to start with its lexicographically smallest id.
func normalizeCycle(cycle []string) []string {
	if len(cycle) == 0 {
		return cycle
	}
	minIdx := 0
	for i, id := range cycle {
		if id < cycle[minIdx] {
			minIdx = i
		}
	}
	out := make([]string, len(cycle))
	for i := range cycle {
		out[i] = cycle[(minIdx+i)%len(cycle)]
	}
	return out
}

// GuardDependency validates a proposed edge against the project's existing edges.
// Callers must run it inside the same storage transaction as the insert.
func GuardDependency(existing []domain.Dependency, proposed domain.Dependency) error {
	if proposed.ItemID == proposed.DependsOnID {
		return domain.ErrSelfDependency
	}
	for _, edge := range existing {
		if edge.ItemID == proposed.ItemID && edge.DependsOnID == proposed.DependsOnID {
			return domain.ErrDuplicateDependency
		}
	}
	if BuildGraph(existing).WouldCreateCycle(proposed.ItemID, proposed.DependsOnID) {
		return domain.ErrDependencyCycle
	}
	return nil
}
