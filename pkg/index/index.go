// Package index holds the in-memory embedding index: one dense vector per
// document, exact cosine nearest-neighbor search, pinned to a single
// embedding model version per index generation.
package index

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/atlaskb/backend/pkg/common"
)

// Filter scopes a nearest-neighbor query by document metadata. The filter is
// applied before scoring.
type Filter struct {
	DateFrom time.Time
	DateTo   time.Time
	Category string
}

// Scored is one nearest-neighbor hit.
type Scored struct {
	DocumentID string
	Similarity float64
}

type meta struct {
	date       time.Time
	categories []string
}

// Index is a brute-force cosine index. Writes may run concurrently with
// reads; a reader sees either the old or the new vector for a document,
// never a torn one. Search stays exact because the corpus is small; the
// interface would admit an approximate structure behind it later.
type Index struct {
	mu sync.RWMutex

	modelVersion string
	dim          int
	vectors      map[string][]float32
	metadata     map[string]meta
}

// New creates an index generation for one embedding model version.
func New(modelVersion string) *Index {
	return &Index{
		modelVersion: modelVersion,
		vectors:      make(map[string][]float32),
		metadata:     make(map[string]meta),
	}
}

// ModelVersion returns the version tag this generation accepts.
func (idx *Index) ModelVersion() string {
	return idx.modelVersion
}

// Upsert stores a document's vector. Vectors from a different model version
// are rejected with ErrVersionMismatch rather than silently mixed, since
// cross-version similarities are meaningless.
func (idx *Index) Upsert(doc common.Document) error {
	if doc.Embedding == nil {
		return fmt.Errorf("upsert %q: nil embedding", doc.ID)
	}
	if doc.EmbeddingVersion != idx.modelVersion {
		return fmt.Errorf("upsert %q: vector version %q, index version %q: %w",
			doc.ID, doc.EmbeddingVersion, idx.modelVersion, common.ErrVersionMismatch)
	}

	vector := append([]float32(nil), doc.Embedding...)

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.dim == 0 {
		idx.dim = len(vector)
	} else if len(vector) != idx.dim {
		return fmt.Errorf("upsert %q: dimension %d, index dimension %d: %w",
			doc.ID, len(vector), idx.dim, common.ErrVersionMismatch)
	}

	idx.vectors[doc.ID] = vector
	idx.metadata[doc.ID] = meta{date: doc.Date, categories: append([]string(nil), doc.Categories...)}
	return nil
}

// Nearest returns up to k documents by descending cosine similarity against
// the query vector, ties broken by document id. queryVersion must match the
// index generation.
func (idx *Index) Nearest(queryVector []float32, queryVersion string, k int, filter Filter) ([]Scored, error) {
	if queryVersion != idx.modelVersion {
		return nil, fmt.Errorf("nearest: query version %q, index version %q: %w",
			queryVersion, idx.modelVersion, common.ErrVersionMismatch)
	}
	if k <= 0 {
		return nil, nil
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if idx.dim != 0 && len(queryVector) != idx.dim {
		return nil, fmt.Errorf("nearest: query dimension %d, index dimension %d: %w",
			len(queryVector), idx.dim, common.ErrVersionMismatch)
	}

	out := make([]Scored, 0, len(idx.vectors))
	for id, vector := range idx.vectors {
		if !idx.matchesLocked(id, filter) {
			continue
		}
		out = append(out, Scored{DocumentID: id, Similarity: cosine(queryVector, vector)})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Similarity != out[j].Similarity {
			return out[i].Similarity > out[j].Similarity
		}
		return out[i].DocumentID < out[j].DocumentID
	})
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

// Has reports whether a document currently has a vector in this generation.
func (idx *Index) Has(documentID string) bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	_, ok := idx.vectors[documentID]
	return ok
}

// Size returns the number of indexed documents.
func (idx *Index) Size() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.vectors)
}

func (idx *Index) matchesLocked(id string, filter Filter) bool {
	m := idx.metadata[id]
	if !filter.DateFrom.IsZero() && m.date.Before(filter.DateFrom) {
		return false
	}
	if !filter.DateTo.IsZero() && m.date.After(filter.DateTo) {
		return false
	}
	if filter.Category != "" {
		found := false
		for _, c := range m.categories {
			if c == filter.Category {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
