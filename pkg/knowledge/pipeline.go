package knowledge

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/atlaskb/backend/pkg/common"
	"github.com/atlaskb/backend/pkg/logger"
	"github.com/atlaskb/backend/pkg/registry"
	"github.com/atlaskb/backend/pkg/store"
)

const defaultExtractConcurrency = 4

// PipelineStats summarizes one extraction batch run.
type PipelineStats struct {
	Total     int `json:"total"`
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
	Degraded  int `json:"degraded"`
}

// ExtractAll runs entity extraction over every document not yet processed,
// feeding the registry and the relationship graph. Documents are independent
// and run in parallel; registry and graph writes serialize internally, so
// two concurrent documents naming the same entity cannot create duplicates.
// The batch is resumable within a process: processed documents are marked in
// the registry and skipped on re-runs. The marker lives with the derived
// state, so a fresh process re-runs extraction and rebuilds the graph.
func (s *Service) ExtractAll(ctx context.Context) (PipelineStats, error) {
	stats := PipelineStats{}

	docs, err := s.store.ListDocuments(ctx, store.ListFilter{})
	if err != nil {
		return stats, fmt.Errorf("failed to list documents for extraction: %w", err)
	}
	pending := make([]common.Document, 0, len(docs))
	for _, doc := range docs {
		if !s.registry.DocumentExtracted(doc.ID) {
			pending = append(pending, doc)
		}
	}
	stats.Total = len(pending)
	if len(pending) == 0 {
		return stats, nil
	}
	logger.Info("[Pipeline] Starting extraction batch", "documents", len(pending))

	var processed, failed, degraded atomic.Int64
	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(s.extractConcurrency)

	for _, doc := range pending {
		group.Go(func() error {
			wasDegraded, err := s.extractOne(gctx, doc.ID)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				logger.Warn("[Pipeline] Document failed", "document", doc.ID, "error", err)
				failed.Add(1)
				return nil
			}
			if wasDegraded {
				degraded.Add(1)
			}
			processed.Add(1)
			return nil
		})
	}
	err = group.Wait()

	stats.Processed = int(processed.Load())
	stats.Failed = int(failed.Load())
	stats.Degraded = int(degraded.Load())
	logger.Info("[Pipeline] Extraction batch finished",
		"processed", stats.Processed, "failed", stats.Failed, "degraded", stats.Degraded)
	return stats, err
}

func (s *Service) extractOne(ctx context.Context, documentID string) (bool, error) {
	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return false, fmt.Errorf("failed to load document: %w", err)
	}

	result, err := s.extractor.Extract(ctx, *doc)
	if err != nil {
		return false, err
	}

	entityIDs := make([]string, 0, len(result.Candidates))
	seen := make(map[string]struct{}, len(result.Candidates))
	byName := make(map[string]string, len(result.Candidates))
	for _, candidate := range result.Candidates {
		entity, err := s.registry.Upsert(candidate.Name, candidate.Type, registry.Evidence{
			DocumentID: doc.ID,
			Confidence: candidate.Confidence,
			Sentiment:  candidate.Sentiment,
			Date:       doc.Date,
		})
		if err != nil {
			logger.Warn("[Pipeline] Candidate rejected", "document", doc.ID, "name", candidate.Name, "error", err)
			continue
		}
		for _, alias := range candidate.Aliases {
			if err := s.registry.AddAlias(entity.ID, alias); err != nil {
				logger.Debug("[Pipeline] Alias rejected", "entity", entity.Name, "alias", alias, "error", err)
			}
		}
		// Two candidates can resolve to the same entity, for example an
		// acronym and its expansion.
		if _, dup := seen[entity.ID]; !dup {
			seen[entity.ID] = struct{}{}
			entityIDs = append(entityIDs, entity.ID)
		}
		byName[registry.NormalizeName(candidate.Name)] = entity.ID
		byName[registry.NormalizeName(entity.Name)] = entity.ID
	}

	// Every pair of entities in one document co-occurs once.
	for i := 0; i < len(entityIDs); i++ {
		for j := i + 1; j < len(entityIDs); j++ {
			s.graph.RecordCooccurrence(entityIDs[i], entityIDs[j], doc.ID, doc.Date)
		}
	}

	for _, relation := range result.Relations {
		a, okA := byName[registry.NormalizeName(relation.A)]
		b, okB := byName[registry.NormalizeName(relation.B)]
		if !okA || !okB {
			continue
		}
		s.graph.RecordExplicitRelation(a, b, relation.Type, relation.Strength)
	}

	s.registry.MarkDocumentExtracted(doc.ID)
	return result.Degraded, nil
}
