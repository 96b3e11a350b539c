package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/atlaskb/backend/pkg/common"
	"github.com/atlaskb/backend/pkg/store"
)

// DocumentStore is an in-memory store.DocumentStore. It backs tests and
// small corpora; a RWMutex keeps batch writers and search readers apart, and
// documents are copied on the way in and out so a reader never observes a
// torn update.
type DocumentStore struct {
	mu   sync.RWMutex
	docs map[string]common.Document
}

// New creates an empty in-memory document store.
func New() *DocumentStore {
	return &DocumentStore{
		docs: make(map[string]common.Document),
	}
}

// PutDocument stores a document. An existing document with the same id is
// replaced wholesale; ingest dedup is the parser's job, not the store's.
func (s *DocumentStore) PutDocument(ctx context.Context, doc common.Document) error {
	if doc.ID == "" {
		return fmt.Errorf("put document: empty id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[doc.ID] = copyDocument(doc)
	return nil
}

// GetDocument returns the document with the given id.
func (s *DocumentStore) GetDocument(ctx context.Context, id string) (*common.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[id]
	if !ok {
		return nil, fmt.Errorf("get document %q: %w", id, common.ErrNotFound)
	}
	out := copyDocument(doc)
	return &out, nil
}

// ListDocuments returns all documents matching the filter, ordered by id for
// reproducible batches.
func (s *DocumentStore) ListDocuments(ctx context.Context, filter store.ListFilter) ([]common.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]common.Document, 0, len(s.docs))
	for _, doc := range s.docs {
		if !matches(doc, filter) {
			continue
		}
		out = append(out, copyDocument(doc))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// UpsertDocumentFields back-fills derived fields on an existing document.
func (s *DocumentStore) UpsertDocumentFields(ctx context.Context, id string, fields store.DocumentFields) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[id]
	if !ok {
		return fmt.Errorf("upsert document fields %q: %w", id, common.ErrNotFound)
	}

	if fields.Embedding != nil {
		doc.Embedding = append([]float32(nil), fields.Embedding...)
		doc.EmbeddingVersion = fields.EmbeddingVersion
	}
	if fields.Categories != nil {
		doc.Categories = append([]string(nil), fields.Categories...)
	}

	s.docs[id] = doc
	return nil
}

func matches(doc common.Document, filter store.ListFilter) bool {
	if !filter.DateFrom.IsZero() && doc.Date.Before(filter.DateFrom) {
		return false
	}
	if !filter.DateTo.IsZero() && doc.Date.After(filter.DateTo) {
		return false
	}
	if filter.Category != "" {
		found := false
		for _, c := range doc.Categories {
			if c == filter.Category {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if filter.MissingEmbeddingFor != "" {
		if doc.Embedding != nil && doc.EmbeddingVersion == filter.MissingEmbeddingFor {
			return false
		}
	}
	return true
}

func copyDocument(doc common.Document) common.Document {
	out := doc
	out.Categories = append([]string(nil), doc.Categories...)
	out.Embedding = append([]float32(nil), doc.Embedding...)
	return out
}
