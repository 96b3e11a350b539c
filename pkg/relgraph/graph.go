// Package relgraph holds the weighted, typed, undirected relationship graph
// over entities. Strength is written eagerly and decayed lazily at read time
// from each edge's LastUpdated, so no background recomputation runs.
package relgraph

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/atlaskb/backend/pkg/common"
	"github.com/atlaskb/backend/pkg/logger"
)

const (
	defaultHalfLifeDays    = 180.0
	defaultSaturationScale = 5.0
	defaultExplicitCeiling = 1.0
)

type Params struct {
	// HalfLifeDays is the strength half-life for edges without new
	// evidence. Zero selects the default.
	HalfLifeDays float64
	// SaturationScale controls how fast co-occurrence strength saturates:
	// strength is evidence/(evidence+scale), so larger scales reward more
	// documents before flattening out.
	SaturationScale float64
	// ExplicitCeiling bounds the strength of explicit relation edges.
	ExplicitCeiling float64
}

type edgeKey struct {
	a, b string
	typ  common.RelationType
}

// Neighbor is one ranked adjacency for an entity, with decay already applied.
type Neighbor struct {
	EntityID      string              `json:"entity_id"`
	Type          common.RelationType `json:"type"`
	Strength      float64             `json:"strength"`
	EvidenceCount int                 `json:"evidence_count"`
}

// Graph is the in-memory relationship graph. All writes take the write lock
// so concurrent batches get per-edge exclusivity for free; reads are
// lock-shared and never mutate stored strength.
type Graph struct {
	mu sync.RWMutex

	halfLifeDays    float64
	saturationScale float64
	explicitCeiling float64
	now             func() time.Time

	edges map[edgeKey]*common.Edge
	adj   map[string]map[edgeKey]struct{}
	docs  map[edgeKey]map[string]struct{} // co-occurrence edge -> supporting document ids
}

func New(params Params) *Graph {
	g := &Graph{
		halfLifeDays:    params.HalfLifeDays,
		saturationScale: params.SaturationScale,
		explicitCeiling: params.ExplicitCeiling,
		now:             time.Now,
		edges:           make(map[edgeKey]*common.Edge),
		adj:             make(map[string]map[edgeKey]struct{}),
		docs:            make(map[edgeKey]map[string]struct{}),
	}
	if g.halfLifeDays <= 0 {
		g.halfLifeDays = defaultHalfLifeDays
	}
	if g.saturationScale <= 0 {
		g.saturationScale = defaultSaturationScale
	}
	if g.explicitCeiling <= 0 {
		g.explicitCeiling = defaultExplicitCeiling
	}
	return g
}

// RecordCooccurrence adds one document's worth of evidence to the
// mentioned_with edge between two entities. Evidence counts supporting
// documents, so recording the same document twice is a no-op and a reprocessed
// batch cannot inflate an edge. Strength saturates with evidence count so
// generic terms cannot dominate the graph.
func (g *Graph) RecordCooccurrence(entityA, entityB, documentID string, documentDate time.Time) {
	if entityA == entityB || entityA == "" || entityB == "" || documentID == "" {
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	a, b := common.OrderPair(entityA, entityB)
	key := edgeKey{a: a, b: b, typ: common.RelationMentionedWith}
	set, ok := g.docs[key]
	if !ok {
		set = make(map[string]struct{})
		g.docs[key] = set
	}
	if _, seen := set[documentID]; seen {
		return
	}
	set[documentID] = struct{}{}

	edge := g.edgeLocked(entityA, entityB, common.RelationMentionedWith)
	edge.EvidenceCount = len(set)
	edge.Strength = g.saturate(edge.EvidenceCount)
	edge.LastUpdated = g.touchTime(edge.LastUpdated, documentDate)
}

// RecordExplicitRelation strengthens a typed edge found by extraction.
// evidenceStrength in [0, 1] moves the stored strength toward the ceiling, so
// repeated strong evidence converges instead of growing without bound.
func (g *Graph) RecordExplicitRelation(entityA, entityB string, relType common.RelationType, evidenceStrength float64) {
	if entityA == entityB || entityA == "" || entityB == "" {
		return
	}
	if !common.ValidRelationType(relType) {
		logger.Warn("[Graph] Dropping relation with unknown type", "type", relType)
		return
	}
	evidenceStrength = clamp01(evidenceStrength)

	g.mu.Lock()
	defer g.mu.Unlock()

	edge := g.edgeLocked(entityA, entityB, relType)
	edge.EvidenceCount++
	edge.Strength += (g.explicitCeiling - edge.Strength) * evidenceStrength
	edge.LastUpdated = g.now()
}

// Neighbors returns the entities adjacent to entityID with decayed strength
// of at least minStrength, strongest first. Ties rank by neighbor id.
func (g *Graph) Neighbors(entityID string, minStrength float64) []Neighbor {
	g.mu.RLock()
	defer g.mu.RUnlock()

	now := g.now()
	var out []Neighbor
	for key := range g.adj[entityID] {
		edge := g.edges[key]
		strength := g.decayed(edge, now)
		if strength < minStrength {
			continue
		}
		other := key.a
		if other == entityID {
			other = key.b
		}
		out = append(out, Neighbor{
			EntityID:      other,
			Type:          edge.Type,
			Strength:      strength,
			EvidenceCount: edge.EvidenceCount,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Strength != out[j].Strength {
			return out[i].Strength > out[j].Strength
		}
		return out[i].EntityID < out[j].EntityID
	})
	return out
}

// PathStrength reports how related two entities are: the best direct edge
// strength, or the best two-hop multiplicative strength when no direct edge
// exists. Beyond two hops the entities count as unrelated.
func (g *Graph) PathStrength(entityA, entityB string) (float64, bool) {
	if entityA == "" || entityB == "" || entityA == entityB {
		return 0, false
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	now := g.now()
	if s, ok := g.directLocked(entityA, entityB, now); ok {
		return s, true
	}

	best := 0.0
	found := false
	for key := range g.adj[entityA] {
		mid := key.a
		if mid == entityA {
			mid = key.b
		}
		first := g.decayed(g.edges[key], now)
		if first <= 0 {
			continue
		}
		second, ok := g.directLocked(mid, entityB, now)
		if !ok {
			continue
		}
		if s := first * second; s > best {
			best = s
			found = true
		}
	}
	return best, found
}

// GetRelationship returns the strongest decayed edge between two entities
// across relation types.
func (g *Graph) GetRelationship(entityA, entityB string) (*common.Edge, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	now := g.now()
	a, b := common.OrderPair(entityA, entityB)
	var best *common.Edge
	bestStrength := 0.0
	for key := range g.adj[a] {
		if key.a != a || key.b != b {
			continue
		}
		edge := g.edges[key]
		if s := g.decayed(edge, now); best == nil || s > bestStrength {
			view := *edge
			view.Strength = s
			best = &view
			bestStrength = s
		}
	}
	if best == nil {
		return nil, false
	}
	return best, true
}

// ReassignEntity moves every edge touching oldID onto newID, combining with
// any edge already present on the same pair and relation type. Used when the
// registry merges two entities.
func (g *Graph) ReassignEntity(oldID, newID string) {
	if oldID == newID || oldID == "" || newID == "" {
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	for key := range g.adj[oldID] {
		edge := g.edges[key]
		sourceDocs := g.docs[key]
		other := key.a
		if other == oldID {
			other = key.b
		}
		g.removeEdgeLocked(key)
		if other == newID {
			continue
		}

		target := g.edgeLocked(newID, other, edge.Type)
		if edge.Type == common.RelationMentionedWith {
			// Union the supporting documents so a document that backed
			// both entities counts once on the survivor.
			ta, tb := common.OrderPair(newID, other)
			targetKey := edgeKey{a: ta, b: tb, typ: edge.Type}
			targetDocs, ok := g.docs[targetKey]
			if !ok {
				targetDocs = make(map[string]struct{})
				g.docs[targetKey] = targetDocs
			}
			for docID := range sourceDocs {
				targetDocs[docID] = struct{}{}
			}
			target.EvidenceCount = len(targetDocs)
			target.Strength = g.saturate(target.EvidenceCount)
		} else {
			target.EvidenceCount += edge.EvidenceCount
			if edge.Strength > target.Strength {
				target.Strength = edge.Strength
			}
		}
		if edge.LastUpdated.After(target.LastUpdated) {
			target.LastUpdated = edge.LastUpdated
		}
	}
	delete(g.adj, oldID)
}

// Edges returns a decayed snapshot of every edge, strongest first.
func (g *Graph) Edges() []common.Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()

	now := g.now()
	out := make([]common.Edge, 0, len(g.edges))
	for _, edge := range g.edges {
		view := *edge
		view.Strength = g.decayed(edge, now)
		out = append(out, view)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Strength != out[j].Strength {
			return out[i].Strength > out[j].Strength
		}
		if out[i].A != out[j].A {
			return out[i].A < out[j].A
		}
		return out[i].B < out[j].B
	})
	return out
}

func (g *Graph) directLocked(entityA, entityB string, now time.Time) (float64, bool) {
	a, b := common.OrderPair(entityA, entityB)
	best := 0.0
	found := false
	for key := range g.adj[a] {
		if key.a != a || key.b != b {
			continue
		}
		if s := g.decayed(g.edges[key], now); !found || s > best {
			best = s
			found = true
		}
	}
	return best, found
}

func (g *Graph) edgeLocked(entityA, entityB string, relType common.RelationType) *common.Edge {
	a, b := common.OrderPair(entityA, entityB)
	key := edgeKey{a: a, b: b, typ: relType}
	edge, ok := g.edges[key]
	if !ok {
		edge = &common.Edge{A: a, B: b, Type: relType}
		g.edges[key] = edge
		g.addAdjLocked(a, key)
		g.addAdjLocked(b, key)
	}
	return edge
}

func (g *Graph) addAdjLocked(entityID string, key edgeKey) {
	set, ok := g.adj[entityID]
	if !ok {
		set = make(map[edgeKey]struct{})
		g.adj[entityID] = set
	}
	set[key] = struct{}{}
}

func (g *Graph) removeEdgeLocked(key edgeKey) {
	delete(g.edges, key)
	delete(g.docs, key)
	for _, id := range []string{key.a, key.b} {
		if set, ok := g.adj[id]; ok {
			delete(set, key)
			if len(set) == 0 {
				delete(g.adj, id)
			}
		}
	}
}

// saturate maps evidence count to a strength in [0, 1) with diminishing
// returns: n/(n+scale).
func (g *Graph) saturate(evidenceCount int) float64 {
	n := float64(evidenceCount)
	return n / (n + g.saturationScale)
}

// decayed applies exponential freshness decay to the stored strength without
// mutating it.
func (g *Graph) decayed(edge *common.Edge, now time.Time) float64 {
	if edge.LastUpdated.IsZero() {
		return edge.Strength
	}
	ageDays := now.Sub(edge.LastUpdated).Hours() / 24
	if ageDays <= 0 {
		return edge.Strength
	}
	return edge.Strength * math.Exp(-math.Ln2*ageDays/g.halfLifeDays)
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

// touchTime keeps the freshest of the current edge timestamp, the document
// date, and now. Old documents never push an edge's freshness backwards.
func (g *Graph) touchTime(current, documentDate time.Time) time.Time {
	best := current
	if documentDate.After(best) {
		best = documentDate
	}
	if now := g.now(); now.After(best) && documentDate.IsZero() {
		best = now
	}
	return best
}
