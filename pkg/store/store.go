package store

import (
	"context"
	"time"

	"github.com/atlaskb/backend/pkg/common"
)

// ListFilter narrows ListDocuments. Zero values mean "no constraint".
type ListFilter struct {
	DateFrom time.Time
	DateTo   time.Time
	Category string

	// MissingEmbeddingFor selects only documents that have no embedding for
	// the given model version. This is what makes embedding batches
	// resumable: a rerun processes exactly the leftovers.
	MissingEmbeddingFor string
}

// DocumentFields carries the back-fillable document fields for
// UpsertDocumentFields. Nil fields are left untouched.
type DocumentFields struct {
	Embedding        []float32
	EmbeddingVersion string
	Categories       []string
}

// DocumentStore is the persistence collaborator for raw documents. The core
// only reads documents, lists them by filter, and back-fills derived fields;
// everything else about storage is the store's concern. Implementations must
// provide read-after-write consistency for a single document.
type DocumentStore interface {
	PutDocument(ctx context.Context, doc common.Document) error
	GetDocument(ctx context.Context, id string) (*common.Document, error)
	ListDocuments(ctx context.Context, filter ListFilter) ([]common.Document, error)
	UpsertDocumentFields(ctx context.Context, id string, fields DocumentFields) error
}
