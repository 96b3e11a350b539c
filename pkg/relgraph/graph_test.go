package relgraph

import (
	"fmt"
	"testing"
	"time"

	"github.com/atlaskb/backend/pkg/common"
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestGraph(params Params) *Graph {
	g := New(params)
	g.now = func() time.Time { return testNow }
	return g
}

func TestCooccurrenceCommutative(t *testing.T) {
	forward := newTestGraph(Params{})
	backward := newTestGraph(Params{})

	for i := 0; i < 4; i++ {
		docID := fmt.Sprintf("doc-%d", i)
		forward.RecordCooccurrence("a", "b", docID, testNow)
		backward.RecordCooccurrence("b", "a", docID, testNow)
	}

	fs, fok := forward.PathStrength("a", "b")
	bs, bok := backward.PathStrength("b", "a")
	if !fok || !bok {
		t.Fatal("expected direct edge in both graphs")
	}
	if fs != bs {
		t.Errorf("strength(a,b) = %v, strength(b,a) = %v", fs, bs)
	}
}

func TestCooccurrenceMonotoneSublinear(t *testing.T) {
	g := newTestGraph(Params{})

	var strengths []float64
	for i := 0; i < 50; i++ {
		g.RecordCooccurrence("a", "b", fmt.Sprintf("doc-%d", i), testNow)
		s, ok := g.PathStrength("a", "b")
		if !ok {
			t.Fatal("edge missing after record")
		}
		strengths = append(strengths, s)
	}

	for i := 1; i < len(strengths); i++ {
		if strengths[i] < strengths[i-1] {
			t.Fatalf("strength decreased on re-observation: %v -> %v at evidence %d", strengths[i-1], strengths[i], i+1)
		}
	}

	secondGain := strengths[1] - strengths[0]
	fiftiethGain := strengths[49] - strengths[48]
	if fiftiethGain >= secondGain {
		t.Errorf("no diminishing returns: 2nd document added %v, 50th added %v", secondGain, fiftiethGain)
	}
	if strengths[49] >= 1 {
		t.Errorf("strength escaped its cap: %v", strengths[49])
	}
}

func TestCooccurrenceIdempotentPerDocument(t *testing.T) {
	g := newTestGraph(Params{})

	g.RecordCooccurrence("a", "b", "doc-1", testNow)
	first, ok := g.PathStrength("a", "b")
	if !ok {
		t.Fatal("edge missing after record")
	}

	// Reprocessing the same document must not inflate the edge.
	g.RecordCooccurrence("a", "b", "doc-1", testNow)
	g.RecordCooccurrence("b", "a", "doc-1", testNow)

	edge, ok := g.GetRelationship("a", "b")
	if !ok {
		t.Fatal("edge missing")
	}
	if edge.EvidenceCount != 1 {
		t.Errorf("evidence count = %d after replaying one document, want 1", edge.EvidenceCount)
	}
	if edge.Strength != first {
		t.Errorf("strength changed on replay: %v -> %v", first, edge.Strength)
	}

	g.RecordCooccurrence("a", "b", "doc-2", testNow)
	edge, _ = g.GetRelationship("a", "b")
	if edge.EvidenceCount != 2 {
		t.Errorf("evidence count = %d after a second document, want 2", edge.EvidenceCount)
	}
	if edge.Strength <= first {
		t.Errorf("second document did not strengthen the edge: %v -> %v", first, edge.Strength)
	}
}

func TestCooccurrenceRequiresDistinctEntitiesAndDocument(t *testing.T) {
	g := newTestGraph(Params{})

	g.RecordCooccurrence("a", "a", "doc-1", testNow)
	g.RecordCooccurrence("a", "b", "", testNow)
	g.RecordCooccurrence("", "b", "doc-1", testNow)

	if len(g.Edges()) != 0 {
		t.Errorf("edges created from invalid input: %v", g.Edges())
	}
}

func TestExplicitRelationConvergesToCeiling(t *testing.T) {
	g := newTestGraph(Params{ExplicitCeiling: 0.9})

	var last float64
	for i := 0; i < 20; i++ {
		g.RecordExplicitRelation("a", "b", common.RelationIntegratesWith, 0.8)
		edge, ok := g.GetRelationship("a", "b")
		if !ok {
			t.Fatal("edge missing")
		}
		if edge.Strength < last {
			t.Fatalf("strength decreased: %v -> %v", last, edge.Strength)
		}
		if edge.Strength > 0.9 {
			t.Fatalf("strength %v above ceiling", edge.Strength)
		}
		last = edge.Strength
	}
	if last < 0.85 {
		t.Errorf("strength %v did not approach ceiling after repeated evidence", last)
	}
}

func TestExplicitRelationRejectsUnknownType(t *testing.T) {
	g := newTestGraph(Params{})
	g.RecordExplicitRelation("a", "b", common.RelationType("sponsors"), 0.9)
	if _, ok := g.GetRelationship("a", "b"); ok {
		t.Error("edge created for unknown relation type")
	}
}

func TestDecayAtReadTime(t *testing.T) {
	g := newTestGraph(Params{HalfLifeDays: 30})

	g.RecordCooccurrence("a", "b", "doc-old", testNow.AddDate(0, 0, -30))
	aged, ok := g.PathStrength("a", "b")
	if !ok {
		t.Fatal("edge missing")
	}

	fresh := newTestGraph(Params{HalfLifeDays: 30})
	fresh.RecordCooccurrence("a", "b", "doc-new", testNow)
	current, _ := fresh.PathStrength("a", "b")

	if aged >= current {
		t.Errorf("30-day-old edge %v not weaker than fresh edge %v", aged, current)
	}
	half := current / 2
	if aged < half*0.99 || aged > half*1.01 {
		t.Errorf("one half-life of decay gave %v, want about %v", aged, half)
	}
}

func TestNeighborsRankedWithThreshold(t *testing.T) {
	g := newTestGraph(Params{})

	for i := 0; i < 10; i++ {
		g.RecordCooccurrence("hub", "strong", fmt.Sprintf("doc-s%d", i), testNow)
	}
	g.RecordCooccurrence("hub", "weak", "doc-w", testNow)
	for i := 0; i < 3; i++ {
		g.RecordCooccurrence("hub", "middle", fmt.Sprintf("doc-m%d", i), testNow)
	}

	neighbors := g.Neighbors("hub", 0)
	if len(neighbors) != 3 {
		t.Fatalf("got %d neighbors, want 3", len(neighbors))
	}
	want := []string{"strong", "middle", "weak"}
	for i, id := range want {
		if neighbors[i].EntityID != id {
			t.Errorf("neighbor %d = %q, want %q", i, neighbors[i].EntityID, id)
		}
	}

	weakStrength := neighbors[2].Strength
	filtered := g.Neighbors("hub", weakStrength+0.001)
	if len(filtered) != 2 {
		t.Errorf("minStrength filter kept %d neighbors, want 2", len(filtered))
	}
}

func TestPathStrengthTwoHop(t *testing.T) {
	g := newTestGraph(Params{})

	for i := 0; i < 5; i++ {
		docID := fmt.Sprintf("doc-%d", i)
		g.RecordCooccurrence("a", "mid", docID, testNow)
		g.RecordCooccurrence("mid", "c", docID, testNow)
	}

	direct, ok := g.PathStrength("a", "mid")
	if !ok {
		t.Fatal("direct edge missing")
	}
	twoHop, ok := g.PathStrength("a", "c")
	if !ok {
		t.Fatal("two-hop path not found")
	}
	if twoHop >= direct {
		t.Errorf("two-hop strength %v not below direct strength %v", twoHop, direct)
	}

	// Three hops away is out of range.
	g.RecordCooccurrence("c", "far", "doc-far", testNow)
	if _, ok := g.PathStrength("a", "far"); ok {
		t.Error("path beyond two hops should be unrelated")
	}
}

func TestPathStrengthCooccurrenceScenario(t *testing.T) {
	g := newTestGraph(Params{})

	for i := 0; i < 5; i++ {
		g.RecordCooccurrence("claude-code", "mcp", fmt.Sprintf("doc-%d", i), testNow.AddDate(0, 0, -i))
	}
	g.RecordCooccurrence("unrelated", "other", "doc-u", testNow)

	s, ok := g.PathStrength("claude-code", "mcp")
	if !ok || s <= 0 {
		t.Fatalf("co-occurring pair path strength = %v, %v; want positive", s, ok)
	}
	if _, ok := g.PathStrength("claude-code", "unrelated"); ok {
		t.Error("never-co-occurring pair should have no path")
	}
}

func TestReassignEntityCombinesEdges(t *testing.T) {
	g := newTestGraph(Params{})

	for i := 0; i < 3; i++ {
		g.RecordCooccurrence("old", "peer", fmt.Sprintf("doc-o%d", i), testNow)
	}
	for i := 0; i < 2; i++ {
		g.RecordCooccurrence("new", "peer", fmt.Sprintf("doc-n%d", i), testNow)
	}
	g.RecordCooccurrence("old", "new", "doc-pair", testNow)

	g.ReassignEntity("old", "new")

	edge, ok := g.GetRelationship("new", "peer")
	if !ok {
		t.Fatal("combined edge missing")
	}
	if edge.EvidenceCount != 5 {
		t.Errorf("combined evidence = %d, want 3 + 2 = 5", edge.EvidenceCount)
	}
	if _, ok := g.GetRelationship("old", "peer"); ok {
		t.Error("old entity still has edges after reassignment")
	}
	if _, ok := g.GetRelationship("old", "new"); ok {
		t.Error("self-edge survived reassignment")
	}
	if len(g.Neighbors("old", 0)) != 0 {
		t.Error("old entity still has neighbors")
	}
}

func TestReassignEntityUnionsSharedDocuments(t *testing.T) {
	g := newTestGraph(Params{})

	// Both halves of a later merge saw the same document mentioning
	// the peer, plus one document only the old entity saw.
	g.RecordCooccurrence("old", "peer", "doc-shared", testNow)
	g.RecordCooccurrence("new", "peer", "doc-shared", testNow)
	g.RecordCooccurrence("old", "peer", "doc-extra", testNow)

	g.ReassignEntity("old", "new")

	edge, ok := g.GetRelationship("new", "peer")
	if !ok {
		t.Fatal("combined edge missing")
	}
	if edge.EvidenceCount != 2 {
		t.Errorf("combined evidence = %d, want 2 distinct documents", edge.EvidenceCount)
	}
}

func TestEdgesSnapshotOrdering(t *testing.T) {
	g := newTestGraph(Params{})

	pairs := [][2]string{{"a", "b"}, {"a", "c"}, {"b", "c"}}
	for i, p := range pairs {
		for j := 0; j <= i; j++ {
			g.RecordCooccurrence(p[0], p[1], fmt.Sprintf("doc-%d-%d", i, j), testNow)
		}
	}

	edges := g.Edges()
	if len(edges) != 3 {
		t.Fatalf("got %d edges, want 3", len(edges))
	}
	for i := 1; i < len(edges); i++ {
		if edges[i].Strength > edges[i-1].Strength {
			t.Errorf("edges not sorted by strength at %d", i)
		}
	}
	for _, edge := range edges {
		if edge.A > edge.B {
			t.Errorf("edge %v not in canonical order", fmt.Sprintf("%s-%s", edge.A, edge.B))
		}
	}
}
