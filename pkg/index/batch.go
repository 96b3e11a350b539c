package index

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/atlaskb/backend/internal/util"
	"github.com/atlaskb/backend/pkg/ai"
	"github.com/atlaskb/backend/pkg/logger"
	"github.com/atlaskb/backend/pkg/store"
)

const (
	defaultEmbedConcurrency = 4
	maxEmbedInputTokens     = 8000
	embedAttempts           = 3
)

// Stats summarizes one embedding batch run and the resulting coverage.
type Stats struct {
	Total        int    `json:"total"`
	Embedded     int    `json:"embedded"`
	Failed       int    `json:"failed"`
	ModelVersion string `json:"model_version"`
}

// Embedder back-fills embedding vectors for documents that lack one under the
// current model version. Runs are idempotent and resumable: a document
// already carrying a current vector is never reprocessed, so a partial
// failure only needs a re-run.
type Embedder struct {
	store       store.DocumentStore
	model       ai.TextModelClient
	index       *Index
	concurrency int
}

func NewEmbedder(docStore store.DocumentStore, model ai.TextModelClient, idx *Index, concurrency int) *Embedder {
	if concurrency <= 0 {
		concurrency = defaultEmbedConcurrency
	}
	return &Embedder{
		store:       docStore,
		model:       model,
		index:       idx,
		concurrency: concurrency,
	}
}

// Run embeds every document missing a vector for the current model version,
// persisting each vector next to its document before indexing it. A single
// document failure is counted and skipped, not fatal.
func (e *Embedder) Run(ctx context.Context) (Stats, error) {
	version := e.model.EmbeddingVersion()
	stats := Stats{ModelVersion: version}

	pending, err := e.store.ListDocuments(ctx, store.ListFilter{MissingEmbeddingFor: version})
	if err != nil {
		return stats, fmt.Errorf("failed to list documents for embedding: %w", err)
	}
	stats.Total = len(pending)
	if len(pending) == 0 {
		return stats, nil
	}
	logger.Info("[Embed] Starting batch", "documents", len(pending), "version", version)

	var embedded, failed atomic.Int64
	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(e.concurrency)

	for _, doc := range pending {
		group.Go(func() error {
			if err := e.embedOne(gctx, doc.ID, doc.Text, version); err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				logger.Warn("[Embed] Document failed", "document", doc.ID, "error", err)
				failed.Add(1)
				return nil
			}
			embedded.Add(1)
			return nil
		})
	}
	err = group.Wait()

	stats.Embedded = int(embedded.Load())
	stats.Failed = int(failed.Load())
	logger.Info("[Embed] Batch finished", "embedded", stats.Embedded, "failed", stats.Failed)
	return stats, err
}

func (e *Embedder) embedOne(ctx context.Context, id, text, version string) error {
	if truncated, err := util.TruncateTokens(text, "cl100k_base", maxEmbedInputTokens); err == nil {
		text = truncated
	}

	vector, err := util.RetryWithContext(ctx, embedAttempts, func(ctx context.Context) ([]float32, error) {
		return e.model.GenerateEmbedding(ctx, []byte(text))
	})
	if err != nil {
		return fmt.Errorf("failed to generate embedding: %w", err)
	}

	if err := e.store.UpsertDocumentFields(ctx, id, store.DocumentFields{
		Embedding:        vector,
		EmbeddingVersion: version,
	}); err != nil {
		return fmt.Errorf("failed to persist embedding: %w", err)
	}

	doc, err := e.store.GetDocument(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to reload document: %w", err)
	}
	return e.index.Upsert(*doc)
}

// Load fills the index from documents already embedded under the current
// model version, typically at startup.
func (e *Embedder) Load(ctx context.Context) (int, error) {
	docs, err := e.store.ListDocuments(ctx, store.ListFilter{})
	if err != nil {
		return 0, fmt.Errorf("failed to list documents: %w", err)
	}

	loaded := 0
	for _, doc := range docs {
		if doc.Embedding == nil || doc.EmbeddingVersion != e.index.ModelVersion() {
			continue
		}
		if err := e.index.Upsert(doc); err != nil {
			return loaded, err
		}
		loaded++
	}
	logger.Info("[Embed] Index loaded", "vectors", loaded, "version", e.index.ModelVersion())
	return loaded, nil
}
