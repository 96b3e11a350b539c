package registry

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/atlaskb/backend/pkg/common"
)

func mustUpsert(t *testing.T, r *Registry, name string, typ common.EntityType, docID string) *common.Entity {
	t.Helper()
	entity, err := r.Upsert(name, typ, Evidence{
		DocumentID: docID,
		Confidence: 0.9,
		Date:       time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("upsert %q: %v", name, err)
	}
	return entity
}

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Claude Code", "claude code"},
		{"Claude-Code", "claude code"},
		{"  CLAUDE   code ", "claude code"},
		{"M.C.P.", "m c p"},
		{"", ""},
		{"---", ""},
	}
	for _, tt := range tests {
		if got := NormalizeName(tt.in); got != tt.want {
			t.Errorf("NormalizeName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestResolveOrder(t *testing.T) {
	r := New(Params{})
	claude := mustUpsert(t, r, "Claude Code", common.EntityTypeTool, "doc-1")
	if err := r.AddAlias(claude.ID, "claude-code cli"); err != nil {
		t.Fatalf("add alias: %v", err)
	}

	tests := []struct {
		name      string
		candidate string
		wantID    string
	}{
		{"exact canonical", "Claude Code", claude.ID},
		{"case insensitive canonical", "CLAUDE CODE", claude.ID},
		{"exact alias", "Claude-Code CLI", claude.ID},
		{"fuzzy", "Claude Codes", claude.ID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Resolve(tt.candidate)
			if err != nil {
				t.Fatalf("resolve %q: %v", tt.candidate, err)
			}
			if got.ID != tt.wantID {
				t.Errorf("resolve %q = %q, want %q", tt.candidate, got.ID, tt.wantID)
			}
		})
	}

	if _, err := r.Resolve("kubernetes"); !errors.Is(err, common.ErrNotFound) {
		t.Errorf("resolve unknown name: got %v, want ErrNotFound", err)
	}
}

func TestResolveTiePrefersLongerName(t *testing.T) {
	r := New(Params{FuzzyThreshold: 0.5})
	mustUpsert(t, r, "Claude", common.EntityTypeTool, "doc-1")
	long := mustUpsert(t, r, "Claude Code", common.EntityTypeTool, "doc-2")

	got, err := r.Resolve("Claude Cod")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got.ID != long.ID {
		t.Errorf("resolve tie picked %q, want longer canonical %q", got.Name, long.Name)
	}
}

func TestResolveAmbiguous(t *testing.T) {
	r := New(Params{FuzzyThreshold: 0.5})
	mustUpsert(t, r, "Vertex", common.EntityTypeTool, "doc-1")
	mustUpsert(t, r, "Vortex", common.EntityTypeTool, "doc-2")

	_, err := r.Resolve("Virtex")
	if !errors.Is(err, common.ErrAmbiguousResolution) {
		t.Fatalf("resolve: got %v, want ErrAmbiguousResolution", err)
	}
}

func TestUpsertCollapsesMentionsPerDocument(t *testing.T) {
	r := New(Params{})
	first := mustUpsert(t, r, "MCP", common.EntityTypeConcept, "doc-1")
	if first.MentionCount != 1 {
		t.Fatalf("mention count after first upsert = %d, want 1", first.MentionCount)
	}

	again, err := r.Upsert("MCP", common.EntityTypeConcept, Evidence{DocumentID: "doc-1", Confidence: 0.95})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if again.MentionCount != 1 {
		t.Errorf("same-document upsert incremented count to %d", again.MentionCount)
	}

	mentions, err := r.Mentions(first.ID)
	if err != nil {
		t.Fatalf("mentions: %v", err)
	}
	if len(mentions) != 1 || mentions[0].Confidence != 0.95 {
		t.Errorf("mentions = %+v, want one record with strongest confidence", mentions)
	}

	other := mustUpsert(t, r, "MCP", common.EntityTypeConcept, "doc-2")
	if other.MentionCount != 2 {
		t.Errorf("mention count after second document = %d, want 2", other.MentionCount)
	}
}

func TestUpsertSeenDates(t *testing.T) {
	r := New(Params{})
	early := time.Date(2023, 1, 5, 0, 0, 0, 0, time.UTC)
	late := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	if _, err := r.Upsert("Anthropic", common.EntityTypeCompany, Evidence{DocumentID: "a", Date: late}); err != nil {
		t.Fatal(err)
	}
	entity, err := r.Upsert("Anthropic", common.EntityTypeCompany, Evidence{DocumentID: "b", Date: early})
	if err != nil {
		t.Fatal(err)
	}

	if !entity.FirstSeen.Equal(early) {
		t.Errorf("firstSeen = %v, want %v", entity.FirstSeen, early)
	}
	if !entity.LastSeen.Equal(late) {
		t.Errorf("lastSeen = %v, want %v", entity.LastSeen, late)
	}
}

func TestAliasDisjointAcrossEntities(t *testing.T) {
	r := New(Params{})
	a := mustUpsert(t, r, "Cursor", common.EntityTypeTool, "doc-1")
	b := mustUpsert(t, r, "Copilot", common.EntityTypeTool, "doc-2")

	if err := r.AddAlias(a.ID, "the editor"); err != nil {
		t.Fatalf("add alias: %v", err)
	}
	if err := r.AddAlias(b.ID, "The Editor"); err == nil {
		t.Error("alias claimed by two entities, want error")
	}
	if err := r.AddAlias(b.ID, "cursor"); err == nil {
		t.Error("alias colliding with canonical name, want error")
	}
}

func TestNoDuplicateEntitiesAcrossInsertionOrders(t *testing.T) {
	names := []string{"Claude Code", "claude code", "CLAUDE CODE", "Claude-Code", "claude   code"}

	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 20; trial++ {
		r := New(Params{})
		shuffled := append([]string(nil), names...)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

		for i, name := range shuffled {
			if _, err := r.Upsert(name, common.EntityTypeTool, Evidence{DocumentID: "doc"}); err != nil {
				t.Fatalf("trial %d upsert %d %q: %v", trial, i, name, err)
			}
		}
		if got := len(r.ListEntities()); got != 1 {
			t.Fatalf("trial %d: %d entities for one canonical name, order %v", trial, got, shuffled)
		}
	}
}

func TestMerge(t *testing.T) {
	r := New(Params{})
	target := mustUpsert(t, r, "Claude Code", common.EntityTypeTool, "doc-1")
	mustUpsert(t, r, "Claude Code", common.EntityTypeTool, "doc-2")

	source := mustUpsert(t, r, "ClaudeCodeCLI", common.EntityTypeTool, "doc-3")
	mustUpsert(t, r, "ClaudeCodeCLI", common.EntityTypeTool, "doc-4")
	mustUpsert(t, r, "ClaudeCodeCLI", common.EntityTypeTool, "doc-5")

	merged, err := r.Merge(source.ID, target.ID)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if merged.MentionCount != 5 {
		t.Errorf("merged mention count = %d, want 2 + 3 = 5", merged.MentionCount)
	}

	resolved, err := r.Resolve("ClaudeCodeCLI")
	if err != nil {
		t.Fatalf("resolve retired name: %v", err)
	}
	if resolved.ID != target.ID {
		t.Errorf("retired name resolves to %q, want surviving %q", resolved.ID, target.ID)
	}

	byOldID, err := r.GetEntity(source.ID)
	if err != nil {
		t.Fatalf("get by retired id: %v", err)
	}
	if byOldID.ID != target.ID {
		t.Errorf("retired id resolves to %q, want %q", byOldID.ID, target.ID)
	}
}

func TestMergeIdempotent(t *testing.T) {
	r := New(Params{})
	target := mustUpsert(t, r, "RAG", common.EntityTypeConcept, "doc-1")
	source := mustUpsert(t, r, "Retrieval Augmented Generation", common.EntityTypeConcept, "doc-2")

	first, err := r.Merge(source.ID, target.ID)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	second, err := r.Merge(source.ID, target.ID)
	if err != nil {
		t.Fatalf("repeated merge: %v", err)
	}
	if second.MentionCount != first.MentionCount {
		t.Errorf("repeated merge changed mention count: %d -> %d", first.MentionCount, second.MentionCount)
	}
	if got := len(r.ListEntities()); got != 1 {
		t.Errorf("entities after repeated merge = %d, want 1", got)
	}
}

func TestMergeSharedDocumentDoesNotDoubleCount(t *testing.T) {
	r := New(Params{})
	target := mustUpsert(t, r, "Ollama", common.EntityTypeTool, "doc-1")
	source := mustUpsert(t, r, "OllamaRuntime", common.EntityTypeTool, "doc-1")

	merged, err := r.Merge(source.ID, target.ID)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if merged.MentionCount != 1 {
		t.Errorf("shared document counted twice: mention count = %d, want 1", merged.MentionCount)
	}
}
