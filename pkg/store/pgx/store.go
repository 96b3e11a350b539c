package pgx

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/atlaskb/backend/pkg/common"
	"github.com/atlaskb/backend/pkg/store"
)

// DocumentStore is the Postgres implementation of store.DocumentStore.
// Embedding vectors live in a pgvector column next to the document row, so
// a vector write and its version tag commit atomically.
type DocumentStore struct {
	pool *pgxpool.Pool
}

// New creates a Postgres document store on an existing pool. The pool must
// have pgvector types registered; see NewPool.
func New(pool *pgxpool.Pool) *DocumentStore {
	return &DocumentStore{pool: pool}
}

// NewPool connects to databaseURL with pgvector types registered on every
// connection.
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database url: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}
	return pgxpool.NewWithConfig(ctx, cfg)
}

// PutDocument stores a document, replacing any existing row with the same id.
func (s *DocumentStore) PutDocument(ctx context.Context, doc common.Document) error {
	if doc.ID == "" {
		return fmt.Errorf("put document: empty id")
	}

	var embedding any
	if doc.Embedding != nil {
		embedding = pgvector.NewVector(doc.Embedding)
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO documents (id, text, date, sender, categories, embedding, embedding_version)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			text = EXCLUDED.text,
			date = EXCLUDED.date,
			sender = EXCLUDED.sender,
			categories = EXCLUDED.categories,
			embedding = EXCLUDED.embedding,
			embedding_version = EXCLUDED.embedding_version`,
		doc.ID, doc.Text, doc.Date, doc.Sender, doc.Categories, embedding, doc.EmbeddingVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to put document %q: %w", doc.ID, err)
	}
	return nil
}

// GetDocument returns the document with the given id.
func (s *DocumentStore) GetDocument(ctx context.Context, id string) (*common.Document, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, text, date, sender, categories, embedding, embedding_version
		FROM documents WHERE id = $1`, id)

	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get document %q: %w", id, common.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get document %q: %w", id, err)
	}
	return doc, nil
}

// ListDocuments returns all documents matching the filter, ordered by id for
// reproducible batches.
func (s *DocumentStore) ListDocuments(ctx context.Context, filter store.ListFilter) ([]common.Document, error) {
	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if !filter.DateFrom.IsZero() {
		conds = append(conds, "date >= "+arg(filter.DateFrom))
	}
	if !filter.DateTo.IsZero() {
		conds = append(conds, "date <= "+arg(filter.DateTo))
	}
	if filter.Category != "" {
		conds = append(conds, arg(filter.Category)+" = ANY(categories)")
	}
	if filter.MissingEmbeddingFor != "" {
		conds = append(conds, "(embedding IS NULL OR embedding_version <> "+arg(filter.MissingEmbeddingFor)+")")
	}

	query := "SELECT id, text, date, sender, categories, embedding, embedding_version FROM documents"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY id"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var out []common.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		out = append(out, *doc)
	}
	return out, rows.Err()
}

// UpsertDocumentFields back-fills derived fields on an existing document.
func (s *DocumentStore) UpsertDocumentFields(ctx context.Context, id string, fields store.DocumentFields) error {
	var (
		sets []string
		args []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if fields.Embedding != nil {
		sets = append(sets, "embedding = "+arg(pgvector.NewVector(fields.Embedding)))
		sets = append(sets, "embedding_version = "+arg(fields.EmbeddingVersion))
	}
	if fields.Categories != nil {
		sets = append(sets, "categories = "+arg(fields.Categories))
	}
	if len(sets) == 0 {
		return nil
	}

	query := "UPDATE documents SET " + strings.Join(sets, ", ") + " WHERE id = " + arg(id)
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to upsert document fields %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("upsert document fields %q: %w", id, common.ErrNotFound)
	}
	return nil
}

func scanDocument(row pgx.Row) (*common.Document, error) {
	var (
		doc       common.Document
		embedding *pgvector.Vector
		version   *string
	)
	err := row.Scan(&doc.ID, &doc.Text, &doc.Date, &doc.Sender, &doc.Categories, &embedding, &version)
	if err != nil {
		return nil, err
	}
	if embedding != nil {
		doc.Embedding = embedding.Slice()
	}
	if version != nil {
		doc.EmbeddingVersion = *version
	}
	return &doc, nil
}
