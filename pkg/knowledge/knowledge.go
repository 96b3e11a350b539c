// Package knowledge wires the extraction pipeline, entity registry,
// relationship graph, embedding index, and hybrid search into the query
// surface upstream callers consume.
package knowledge

import (
	"context"
	"fmt"

	"github.com/atlaskb/backend/pkg/ai"
	"github.com/atlaskb/backend/pkg/common"
	"github.com/atlaskb/backend/pkg/extract"
	"github.com/atlaskb/backend/pkg/index"
	"github.com/atlaskb/backend/pkg/registry"
	"github.com/atlaskb/backend/pkg/relgraph"
	"github.com/atlaskb/backend/pkg/search"
	"github.com/atlaskb/backend/pkg/store"
)

// Params collects the policy knobs of all subsystems so deployments can tune
// them from configuration in one place.
type Params struct {
	FuzzyThreshold         float64
	MinNewEntityConfidence float64
	GraphHalfLifeDays      float64
	GraphSaturationScale   float64
	GraphExplicitCeiling   float64
	VectorWeight           float64
	KeywordWeight          float64
	GraphWeight            float64
	SynthesisSources       int
	ExtractConcurrency     int
	EmbedConcurrency       int
}

// Service owns the knowledge core. All mutable state lives in the registry,
// graph, and index, each of which guards its own invariants; the service
// itself is safe for concurrent use.
type Service struct {
	model ai.TextModelClient
	store store.DocumentStore

	registry    *registry.Registry
	graph       *relgraph.Graph
	index       *index.Index
	extractor   *extract.Extractor
	embedder    *index.Embedder
	engine      *search.Engine
	synthesizer *search.Synthesizer

	extractConcurrency int
}

// New builds the full knowledge core on a document store and a text model.
// The model may be nil for a pattern-and-keyword-only deployment.
func New(model ai.TextModelClient, docStore store.DocumentStore, params Params) *Service {
	reg := registry.New(registry.Params{FuzzyThreshold: params.FuzzyThreshold})
	graph := relgraph.New(relgraph.Params{
		HalfLifeDays:    params.GraphHalfLifeDays,
		SaturationScale: params.GraphSaturationScale,
		ExplicitCeiling: params.GraphExplicitCeiling,
	})

	version := "none"
	if model != nil {
		version = model.EmbeddingVersion()
	}
	idx := index.New(version)

	concurrency := params.ExtractConcurrency
	if concurrency <= 0 {
		concurrency = defaultExtractConcurrency
	}

	s := &Service{
		model:              model,
		store:              docStore,
		registry:           reg,
		graph:              graph,
		index:              idx,
		extractConcurrency: concurrency,
	}
	s.extractor = extract.New(model, reg, extract.Params{MinNewEntityConfidence: params.MinNewEntityConfidence})
	if model != nil {
		s.embedder = index.NewEmbedder(docStore, model, idx, params.EmbedConcurrency)
	}
	s.engine = search.NewEngine(model, idx, reg, graph, docStore, search.Params{
		VectorWeight:  params.VectorWeight,
		KeywordWeight: params.KeywordWeight,
		GraphWeight:   params.GraphWeight,
	})
	s.synthesizer = search.NewSynthesizer(model, docStore, params.SynthesisSources)
	return s
}

// Search returns the hybrid ranking for a query. The flag reports degraded
// keyword-only mode.
func (s *Service) Search(ctx context.Context, queryText string, k int, filter search.Filter) ([]common.SearchResult, bool, error) {
	return s.engine.Search(ctx, queryText, k, filter)
}

// Answer runs search and synthesizes a cited answer from the top results.
// The answer text is optional enrichment; ranked results are always present
// and the degraded flag covers both the search and synthesis paths.
func (s *Service) Answer(ctx context.Context, queryText string, k int, filter search.Filter) (*common.Answer, error) {
	results, searchDegraded, err := s.engine.Search(ctx, queryText, k, filter)
	if err != nil {
		return nil, err
	}

	var answer *common.Answer
	if searchDegraded {
		// No vectors means no trustworthy grounding for prose; return
		// the keyword ranking as-is.
		answer = &common.Answer{RankedResults: results, CitedDocumentIDs: []string{}}
	} else {
		answer = s.synthesizer.Synthesize(ctx, queryText, results)
	}
	answer.Degraded = answer.Degraded || searchDegraded
	return answer, nil
}

// EntityDetails is an entity with its graph neighborhood, resolved to names.
type EntityDetails struct {
	Entity    common.Entity    `json:"entity"`
	Neighbors []NamedNeighbor  `json:"neighbors"`
	Mentions  []common.Mention `json:"mentions"`
}

type NamedNeighbor struct {
	relgraph.Neighbor
	Name string `json:"name"`
}

// GetEntity returns an entity by id or name, with its ranked neighbors.
func (s *Service) GetEntity(idOrName string) (*EntityDetails, error) {
	entity, err := s.registry.GetEntity(idOrName)
	if err != nil {
		entity, err = s.registry.Resolve(idOrName)
		if err != nil {
			return nil, err
		}
	}

	mentions, err := s.registry.Mentions(entity.ID)
	if err != nil {
		return nil, err
	}

	details := &EntityDetails{Entity: *entity, Mentions: mentions}
	for _, neighbor := range s.graph.Neighbors(entity.ID, 0) {
		named := NamedNeighbor{Neighbor: neighbor}
		if other, err := s.registry.GetEntity(neighbor.EntityID); err == nil {
			named.Name = other.Name
		}
		details.Neighbors = append(details.Neighbors, named)
	}
	return details, nil
}

// GetRelationship reports how strongly two entities relate: the strongest
// direct edge when one exists, otherwise the bounded path strength. Entities
// may be given by id or name.
func (s *Service) GetRelationship(entityA, entityB string) (float64, bool, error) {
	a, err := s.resolveID(entityA)
	if err != nil {
		return 0, false, err
	}
	b, err := s.resolveID(entityB)
	if err != nil {
		return 0, false, err
	}

	strength, ok := s.graph.PathStrength(a, b)
	return strength, ok, nil
}

// MergeEntities folds one entity into another and rewires its graph edges.
func (s *Service) MergeEntities(sourceIDOrName, targetIDOrName string) (*common.Entity, error) {
	sourceID, err := s.resolveID(sourceIDOrName)
	if err != nil {
		return nil, err
	}
	targetID, err := s.resolveID(targetIDOrName)
	if err != nil {
		return nil, err
	}

	merged, err := s.registry.Merge(sourceID, targetID)
	if err != nil {
		return nil, err
	}
	s.graph.ReassignEntity(sourceID, merged.ID)
	return merged, nil
}

// ListEntities returns the live entities ranked by mention count.
func (s *Service) ListEntities() []common.Entity {
	return s.registry.ListEntities()
}

// RelatedSearches suggests follow-up queries from the graph.
func (s *Service) RelatedSearches(queryText string, limit int) []string {
	return s.engine.RelatedSearches(queryText, limit)
}

// EmbedAll back-fills embeddings for documents missing one under the current
// model version.
func (s *Service) EmbedAll(ctx context.Context) (index.Stats, error) {
	if s.embedder == nil {
		return index.Stats{}, fmt.Errorf("embedding: %w", common.ErrUpstreamUnavailable)
	}
	return s.embedder.Run(ctx)
}

// LoadIndex fills the in-memory index from already-embedded documents.
func (s *Service) LoadIndex(ctx context.Context) (int, error) {
	if s.embedder == nil {
		return 0, nil
	}
	return s.embedder.Load(ctx)
}

// EmbeddingStats reports index coverage for the current model version.
func (s *Service) EmbeddingStats(ctx context.Context) (index.Stats, error) {
	docs, err := s.store.ListDocuments(ctx, store.ListFilter{})
	if err != nil {
		return index.Stats{}, fmt.Errorf("failed to list documents: %w", err)
	}
	return index.Stats{
		Total:        len(docs),
		Embedded:     s.index.Size(),
		ModelVersion: s.index.ModelVersion(),
	}, nil
}

func (s *Service) resolveID(idOrName string) (string, error) {
	if entity, err := s.registry.GetEntity(idOrName); err == nil {
		return entity.ID, nil
	}
	entity, err := s.registry.Resolve(idOrName)
	if err != nil {
		return "", err
	}
	return entity.ID, nil
}
