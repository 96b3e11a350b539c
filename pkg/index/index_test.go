package index

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/atlaskb/backend/pkg/ai"
	"github.com/atlaskb/backend/pkg/common"
	"github.com/atlaskb/backend/pkg/store"
	"github.com/atlaskb/backend/pkg/store/memory"
)

func doc(id string, vector []float32, version string) common.Document {
	return common.Document{
		ID:               id,
		Text:             "text for " + id,
		Date:             time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		Embedding:        vector,
		EmbeddingVersion: version,
	}
}

func TestNearestRankedAndBounded(t *testing.T) {
	idx := New("v1")
	vectors := map[string][]float32{
		"doc-close":   {1, 0, 0},
		"doc-mid":     {1, 1, 0},
		"doc-far":     {0, 1, 0},
		"doc-oppose":  {-1, 0, 0},
	}
	for id, v := range vectors {
		if err := idx.Upsert(doc(id, v, "v1")); err != nil {
			t.Fatalf("upsert %s: %v", id, err)
		}
	}

	hits, err := idx.Nearest([]float32{1, 0, 0}, "v1", 3, Filter{})
	if err != nil {
		t.Fatalf("nearest: %v", err)
	}
	if len(hits) != 3 {
		t.Fatalf("got %d hits, want 3", len(hits))
	}
	want := []string{"doc-close", "doc-mid", "doc-far"}
	for i, id := range want {
		if hits[i].DocumentID != id {
			t.Errorf("hit %d = %s, want %s", i, hits[i].DocumentID, id)
		}
	}
	for i := 1; i < len(hits); i++ {
		if hits[i].Similarity > hits[i-1].Similarity {
			t.Errorf("hits not sorted by descending similarity at %d", i)
		}
	}
}

func TestNearestTieBreaksByDocumentID(t *testing.T) {
	idx := New("v1")
	for _, id := range []string{"doc-b", "doc-a", "doc-c"} {
		if err := idx.Upsert(doc(id, []float32{1, 0}, "v1")); err != nil {
			t.Fatal(err)
		}
	}

	hits, err := idx.Nearest([]float32{1, 0}, "v1", 10, Filter{})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"doc-a", "doc-b", "doc-c"}
	for i, id := range want {
		if hits[i].DocumentID != id {
			t.Errorf("tie order %d = %s, want %s", i, hits[i].DocumentID, id)
		}
	}
}

func TestVersionMismatch(t *testing.T) {
	idx := New("v1")
	if err := idx.Upsert(doc("doc-1", []float32{1, 0}, "v2")); !errors.Is(err, common.ErrVersionMismatch) {
		t.Errorf("upsert with wrong version: got %v, want ErrVersionMismatch", err)
	}
	if err := idx.Upsert(doc("doc-1", []float32{1, 0}, "v1")); err != nil {
		t.Fatal(err)
	}
	if _, err := idx.Nearest([]float32{1, 0}, "v2", 5, Filter{}); !errors.Is(err, common.ErrVersionMismatch) {
		t.Errorf("nearest with wrong version: got %v, want ErrVersionMismatch", err)
	}
	if err := idx.Upsert(doc("doc-2", []float32{1, 0, 0}, "v1")); !errors.Is(err, common.ErrVersionMismatch) {
		t.Errorf("upsert with wrong dimension: got %v, want ErrVersionMismatch", err)
	}
}

func TestNearestMetadataFilter(t *testing.T) {
	idx := New("v1")

	early := doc("doc-early", []float32{1, 0}, "v1")
	early.Date = time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	early.Categories = []string{"news"}
	late := doc("doc-late", []float32{1, 0}, "v1")
	late.Date = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	late.Categories = []string{"tools"}
	for _, d := range []common.Document{early, late} {
		if err := idx.Upsert(d); err != nil {
			t.Fatal(err)
		}
	}

	hits, err := idx.Nearest([]float32{1, 0}, "v1", 10, Filter{DateFrom: time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)})
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0].DocumentID != "doc-late" {
		t.Errorf("date filter hits = %v", hits)
	}

	hits, err = idx.Nearest([]float32{1, 0}, "v1", 10, Filter{Category: "news"})
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0].DocumentID != "doc-early" {
		t.Errorf("category filter hits = %v", hits)
	}
}

// countingModel embeds deterministically and counts calls; optionally fails
// for one document id, or transiently for the first n calls.
type countingModel struct {
	calls     int
	failID    string
	transient int
}

func (m *countingModel) GenerateCompletion(ctx context.Context, prompt string, opts ...ai.GenerateOption) (string, error) {
	return "", nil
}

func (m *countingModel) GenerateCompletionWithFormat(ctx context.Context, name, description, prompt string, out any, opts ...ai.GenerateOption) error {
	return nil
}

func (m *countingModel) GenerateEmbedding(ctx context.Context, input []byte) ([]float32, error) {
	m.calls++
	if m.failID != "" && string(input) == "text for "+m.failID {
		return nil, errors.New("embedding backend down")
	}
	if m.transient > 0 {
		m.transient--
		return nil, errors.New("temporary embedding error")
	}
	return []float32{float32(len(input)), 1}, nil
}

func (m *countingModel) GenerateEmbeddings(ctx context.Context, inputs [][]byte) ([][]float32, error) {
	out := make([][]float32, len(inputs))
	for i, in := range inputs {
		v, err := m.GenerateEmbedding(ctx, in)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (m *countingModel) EmbeddingVersion() string    { return "v1" }
func (m *countingModel) ResetMetrics()               {}
func (m *countingModel) GetMetrics() ai.ModelMetrics { return ai.ModelMetrics{} }

func TestBatchEmbeddingResumable(t *testing.T) {
	ctx := context.Background()
	docs := memory.New()
	for _, id := range []string{"doc-1", "doc-22", "doc-333"} {
		if err := docs.PutDocument(ctx, common.Document{ID: id, Text: "text for " + id}); err != nil {
			t.Fatal(err)
		}
	}

	model := &countingModel{failID: "doc-333"}
	idx := New("v1")
	embedder := NewEmbedder(docs, model, idx, 1)

	stats, err := embedder.Run(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if stats.Total != 3 || stats.Embedded != 2 || stats.Failed != 1 {
		t.Fatalf("stats = %+v, want total 3, embedded 2, failed 1", stats)
	}
	if idx.Size() != 2 {
		t.Fatalf("index size = %d, want 2", idx.Size())
	}

	// Re-run after the backend recovers: only the failed document is
	// reprocessed.
	model.failID = ""
	calls := model.calls
	stats, err = embedder.Run(ctx)
	if err != nil {
		t.Fatalf("re-run: %v", err)
	}
	if stats.Total != 1 || stats.Embedded != 1 {
		t.Fatalf("re-run stats = %+v, want exactly the one missing document", stats)
	}
	if model.calls != calls+1 {
		t.Errorf("re-run made %d embedding calls, want 1", model.calls-calls)
	}

	// A third run is a no-op.
	stats, err = embedder.Run(ctx)
	if err != nil {
		t.Fatalf("third run: %v", err)
	}
	if stats.Total != 0 {
		t.Errorf("third run found %d pending documents, want 0", stats.Total)
	}

	// Persisted vectors survive a fresh index generation.
	fresh := New("v1")
	loaded, err := NewEmbedder(docs, model, fresh, 1).Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded != 3 || fresh.Size() != 3 {
		t.Errorf("loaded %d vectors into fresh index of size %d, want 3", loaded, fresh.Size())
	}
}

func TestEmbeddingTransientFailureRetried(t *testing.T) {
	ctx := context.Background()
	docs := memory.New()
	if err := docs.PutDocument(ctx, common.Document{ID: "doc-1", Text: "text for doc-1"}); err != nil {
		t.Fatal(err)
	}

	model := &countingModel{transient: 2}
	embedder := NewEmbedder(docs, model, New("v1"), 1)

	stats, err := embedder.Run(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if stats.Embedded != 1 || stats.Failed != 0 {
		t.Fatalf("stats = %+v, want the document embedded despite transient failures", stats)
	}
	if model.calls != 3 {
		t.Errorf("model called %d times, want 3", model.calls)
	}
}

var _ store.DocumentStore = (*memory.DocumentStore)(nil)
