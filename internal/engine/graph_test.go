package engine

import (
	"fmt"
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/hylla/tempo/internal/domain"
)

// edge builds "successor depends on predecessor", i.e. predecessor -> successor.
func edge(id, predecessor, successor string) domain.Dependency {
	return domain.Dependency{
		ID:          id,
		ProjectID:   "p1",
		ItemID:      successor,
		DependsOnID: predecessor,
		Type:        domain.DependencyFinishToStart,
	}
}

func diamond() []domain.Dependency {
	return []domain.Dependency{
		edge("e1", "A", "B"),
		edge("e2", "A", "C"),
		edge("e3", "B", "D"),
		edge("e4", "C", "D"),
	}
}

func TestWouldCreateCycleSelfLoop(t *testing.T) {
	graphs := []Graph{nil, BuildGraph(nil), BuildGraph(diamond())}
	for _, g := range graphs {
		for _, id := range []string{"A", "D", "unknown"} {
			if !g.WouldCreateCycle(id, id) {
				t.Fatalf("expected self edge %q rejected", id)
			}
		}
	}
}

func TestWouldCreateCycleReverseEdge(t *testing.T) {
	g := BuildGraph([]domain.Dependency{edge("e1", "A", "B"), edge("e2", "B", "C")})
	// B -> A: item A depends on B.
	if !g.WouldCreateCycle("A", "B") {
		t.Fatal("expected direct reverse edge rejected")
	}
	// C -> A closes A -> B -> C.
	if !g.WouldCreateCycle("A", "C") {
		t.Fatal("expected transitive reverse edge rejected")
	}
	if g.WouldCreateCycle("C", "A") {
		t.Fatal("expected redundant forward edge allowed")
	}
}

func TestDiamondScenario(t *testing.T) {
	existing := diamond()

	// D -> A: A would depend on D, but D already depends on A.
	err := GuardDependency(existing, edge("x1", "D", "A"))
	if err != domain.ErrDependencyCycle {
		t.Fatalf("expected D->A rejected as cycle, got %v", err)
	}
	// D -> B: B would depend on D, and D already depends on B.
	err = GuardDependency(existing, edge("x2", "D", "B"))
	if err != domain.ErrDependencyCycle {
		t.Fatalf("expected D->B rejected as cycle, got %v", err)
	}
	// A -> D is redundant but acyclic.
	if err := GuardDependency(existing, edge("x3", "A", "D")); err != nil {
		t.Fatalf("expected A->D allowed, got %v", err)
	}
	// B -> C crosses the diamond without closing a loop.
	if err := GuardDependency(existing, edge("x4", "B", "C")); err != nil {
		t.Fatalf("expected B->C allowed, got %v", err)
	}
}

func TestGuardDependencyErrors(t *testing.T) {
	existing := diamond()
	if err := GuardDependency(existing, edge("x", "B", "B")); err != domain.ErrSelfDependency {
		t.Fatalf("expected ErrSelfDependency, got %v", err)
	}
	if err := GuardDependency(existing, edge("x", "A", "B")); err != domain.ErrDuplicateDependency {
		t.Fatalf("expected ErrDuplicateDependency, got %v", err)
	}
}

func TestGuardedInsertsNeverProduceCycles(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	nodes := make([]string, 12)
	for i := range nodes {
		nodes[i] = fmt.Sprintf("n%02d", i)
	}
	var edges []domain.Dependency
	rejected := 0
	for i := range 400 {
		pred := nodes[rng.IntN(len(nodes))]
		succ := nodes[rng.IntN(len(nodes))]
		proposed := edge(fmt.Sprintf("e%03d", i), pred, succ)
		if err := GuardDependency(edges, proposed); err != nil {
			rejected++
			continue
		}
		edges = append(edges, proposed)
	}
	if rejected == 0 || len(edges) == 0 {
		t.Fatalf("expected a mix of accepted and rejected inserts, got %d accepted %d rejected", len(edges), rejected)
	}
	if cycles := BuildGraph(edges).FindAllCycles(); len(cycles) != 0 {
		t.Fatalf("expected acyclic graph, found %v", cycles)
	}
}

func TestFindAllCyclesNormalizesAndDedupes(t *testing.T) {
	edges := []domain.Dependency{
		edge("e1", "B", "A"),
		edge("e2", "C", "B"),
		edge("e3", "A", "C"),
		edge("e4", "Y", "X"),
		edge("e5", "X", "Y"),
		edge("e6", "A", "Z"),
	}
	first := BuildGraph(edges).FindAllCycles()
	want := [][]string{{"A", "B", "C"}, {"X", "Y"}}
	if len(first) != len(want) {
		t.Fatalf("FindAllCycles() = %v, want %v", first, want)
	}
	for i := range want {
		if !slices.Equal(first[i], want[i]) {
			t.Fatalf("FindAllCycles()[%d] = %v, want %v", i, first[i], want[i])
		}
	}
	second := BuildGraph(edges).FindAllCycles()
	for i := range first {
		if !slices.Equal(first[i], second[i]) {
			t.Fatalf("expected deterministic output, got %v then %v", first, second)
		}
	}
}

func TestBuildGraphDeduplicatesNeighbours(t *testing.T) {
	g := BuildGraph([]domain.Dependency{edge("e1", "B", "A"), edge("e2", "B", "A"), edge("e3", "C", "A")})
	if got := g["A"]; !slices.Equal(got, []string{"B", "C"}) {
		t.Fatalf("unexpected neighbours %v", got)
	}
}
