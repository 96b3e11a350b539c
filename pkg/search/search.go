// Package search fuses vector similarity, keyword overlap, and graph
// proximity into one ranked result list, and synthesizes cited answers from
// the top results.
package search

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/atlaskb/backend/pkg/ai"
	"github.com/atlaskb/backend/pkg/common"
	"github.com/atlaskb/backend/pkg/index"
	"github.com/atlaskb/backend/pkg/logger"
	"github.com/atlaskb/backend/pkg/registry"
	"github.com/atlaskb/backend/pkg/relgraph"
	"github.com/atlaskb/backend/pkg/store"
)

const (
	defaultVectorWeight  = 0.6
	defaultKeywordWeight = 0.25
	defaultGraphWeight   = 0.15

	maxQueryEntityTokens = 3
)

// Params holds the score-fusion policy knobs. Vector similarity dominates by
// default; keyword and graph scores break ties and add recall.
type Params struct {
	VectorWeight  float64
	KeywordWeight float64
	GraphWeight   float64
}

// Filter narrows a search to a metadata slice of the corpus.
type Filter struct {
	DateFrom time.Time
	DateTo   time.Time
	Category string
}

// Engine is the hybrid search engine. It is read-only at query time and safe
// for concurrent queries.
type Engine struct {
	model    ai.TextModelClient
	index    *index.Index
	registry *registry.Registry
	graph    *relgraph.Graph
	store    store.DocumentStore

	vectorWeight  float64
	keywordWeight float64
	graphWeight   float64
}

func NewEngine(
	model ai.TextModelClient,
	idx *index.Index,
	reg *registry.Registry,
	graph *relgraph.Graph,
	docStore store.DocumentStore,
	params Params,
) *Engine {
	e := &Engine{
		model:         model,
		index:         idx,
		registry:      reg,
		graph:         graph,
		store:         docStore,
		vectorWeight:  params.VectorWeight,
		keywordWeight: params.KeywordWeight,
		graphWeight:   params.GraphWeight,
	}
	if e.vectorWeight <= 0 {
		e.vectorWeight = defaultVectorWeight
	}
	if e.keywordWeight <= 0 {
		e.keywordWeight = defaultKeywordWeight
	}
	if e.graphWeight <= 0 {
		e.graphWeight = defaultGraphWeight
	}
	return e
}

// Search runs the hybrid ranking for a query and returns at most k results.
// The returned flag reports degraded mode: when the embedding side is
// unavailable the ranking falls back to keyword-only scoring instead of
// failing the request. For a fixed corpus and graph state, identical queries
// return identical ordered results; ties rank by document id.
func (e *Engine) Search(ctx context.Context, queryText string, k int, filter Filter) ([]common.SearchResult, bool, error) {
	if k <= 0 || strings.TrimSpace(queryText) == "" {
		return nil, false, nil
	}

	docs, err := e.store.ListDocuments(ctx, store.ListFilter{
		DateFrom: filter.DateFrom,
		DateTo:   filter.DateTo,
		Category: filter.Category,
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to list documents: %w", err)
	}
	if len(docs) == 0 {
		return nil, false, nil
	}

	vectorScores, degraded := e.vectorScores(ctx, queryText, len(docs), filter)

	queryTokens := tokenize(queryText)
	queryEntities := e.detectQueryEntities(queryText)

	results := make([]common.SearchResult, 0, len(docs))
	for _, doc := range docs {
		result := common.SearchResult{DocumentID: doc.ID}
		result.KeywordScore, result.MatchedTerms = keywordOverlap(queryTokens, doc.Text)

		if !degraded {
			result.VectorScore = vectorScores[doc.ID]
			result.GraphScore, result.RelatedEntities = e.graphBoost(queryEntities, doc.ID)
			result.Score = e.vectorWeight*result.VectorScore +
				e.keywordWeight*result.KeywordScore +
				e.graphWeight*result.GraphScore
		} else {
			result.Score = result.KeywordScore
		}

		if result.Score > 0 {
			results = append(results, result)
		}
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].DocumentID < results[j].DocumentID
	})
	if len(results) > k {
		results = results[:k]
	}
	return results, degraded, nil
}

// vectorScores embeds the query and scores every candidate. Any failure on
// the embedding path switches the whole request to degraded keyword-only
// mode.
func (e *Engine) vectorScores(ctx context.Context, queryText string, limit int, filter Filter) (map[string]float64, bool) {
	if e.model == nil || e.index == nil || e.index.Size() == 0 {
		return nil, true
	}

	queryVector, err := e.model.GenerateEmbedding(ctx, []byte(queryText))
	if err != nil {
		logger.Warn("[Search] Query embedding failed, degrading to keyword-only",
			"error", fmt.Errorf("%w: %v", common.ErrUpstreamUnavailable, err))
		return nil, true
	}

	hits, err := e.index.Nearest(queryVector, e.model.EmbeddingVersion(), limit, index.Filter{
		DateFrom: filter.DateFrom,
		DateTo:   filter.DateTo,
		Category: filter.Category,
	})
	if err != nil {
		if errors.Is(err, common.ErrVersionMismatch) {
			logger.Warn("[Search] Index generation mismatch, degrading to keyword-only", "error", err)
		}
		return nil, true
	}

	scores := make(map[string]float64, len(hits))
	for _, hit := range hits {
		// Cosine lands in [-1, 1]; shift into [0, 1] so fusion weights
		// stay comparable across signals.
		scores[hit.DocumentID] = (hit.Similarity + 1) / 2
	}
	return scores, false
}

// detectQueryEntities resolves n-grams of the query against the registry and
// returns the matched entity ids.
func (e *Engine) detectQueryEntities(queryText string) []string {
	if e.registry == nil {
		return nil
	}

	words := strings.Fields(queryText)
	seen := make(map[string]bool)
	var out []string
	for n := maxQueryEntityTokens; n >= 1; n-- {
		for i := 0; i+n <= len(words); i++ {
			candidate := strings.Join(words[i:i+n], " ")
			entity, err := e.registry.Resolve(candidate)
			if err != nil {
				continue
			}
			if !seen[entity.ID] {
				seen[entity.ID] = true
				out = append(out, entity.ID)
			}
		}
	}
	sort.Strings(out)
	return out
}

// graphBoost scores a document by how close its mentioned entities sit to
// the query's entities in the relationship graph. A shared entity counts as
// distance zero with full weight.
func (e *Engine) graphBoost(queryEntities []string, documentID string) (float64, []string) {
	if len(queryEntities) == 0 || e.registry == nil || e.graph == nil {
		return 0, nil
	}

	docEntities := e.registry.EntitiesInDocument(documentID)
	if len(docEntities) == 0 {
		return 0, nil
	}

	best := 0.0
	relatedSet := make(map[string]bool)
	for _, queryID := range queryEntities {
		for _, docID := range docEntities {
			var strength float64
			if queryID == docID {
				strength = 1
			} else if s, ok := e.graph.PathStrength(queryID, docID); ok {
				strength = s
			} else {
				continue
			}
			if strength > best {
				best = strength
			}
			if entity, err := e.registry.GetEntity(docID); err == nil {
				relatedSet[entity.Name] = true
			}
		}
	}
	if len(relatedSet) == 0 {
		return 0, nil
	}

	related := make([]string, 0, len(relatedSet))
	for name := range relatedSet {
		related = append(related, name)
	}
	sort.Strings(related)
	return best, related
}

// RelatedSearches suggests follow-up queries from the graph neighborhoods of
// the entities detected in the query.
func (e *Engine) RelatedSearches(queryText string, limit int) []string {
	if e.registry == nil || e.graph == nil || limit <= 0 {
		return nil
	}

	var out []string
	seen := make(map[string]bool)
	for _, entityID := range e.detectQueryEntities(queryText) {
		for _, neighbor := range e.graph.Neighbors(entityID, 0) {
			entity, err := e.registry.GetEntity(neighbor.EntityID)
			if err != nil || seen[entity.Name] {
				continue
			}
			seen[entity.Name] = true
			out = append(out, entity.Name)
			if len(out) >= limit {
				return out
			}
		}
	}
	return out
}
