package extract

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"github.com/atlaskb/backend/pkg/ai"
	"github.com/atlaskb/backend/pkg/common"
	"github.com/atlaskb/backend/pkg/registry"
)

// stubModel returns a canned extraction, or fails every call when err is set.
// transient makes the first n completion calls fail before recovering.
type stubModel struct {
	extraction modelExtraction
	err        error
	transient  int
	calls      int
}

func (s *stubModel) GenerateCompletion(ctx context.Context, prompt string, opts ...ai.GenerateOption) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return "", nil
}

func (s *stubModel) GenerateCompletionWithFormat(ctx context.Context, name, description, prompt string, out any, opts ...ai.GenerateOption) error {
	s.calls++
	if s.err != nil {
		return s.err
	}
	if s.transient > 0 {
		s.transient--
		return errors.New("temporary upstream error")
	}
	raw, err := json.Marshal(s.extraction)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func (s *stubModel) GenerateEmbedding(ctx context.Context, input []byte) ([]float32, error) {
	return nil, s.err
}

func (s *stubModel) GenerateEmbeddings(ctx context.Context, inputs [][]byte) ([][]float32, error) {
	return nil, s.err
}

func (s *stubModel) EmbeddingVersion() string    { return "stub-v1" }
func (s *stubModel) ResetMetrics()               {}
func (s *stubModel) GetMetrics() ai.ModelMetrics { return ai.ModelMetrics{} }

func candidateNames(candidates []Candidate) []string {
	names := make([]string, 0, len(candidates))
	for _, c := range candidates {
		names = append(names, c.Name)
	}
	return names
}

func TestPatternExtractionDeterministic(t *testing.T) {
	e := New(nil, nil, Params{})
	doc := common.Document{
		ID:   "doc-1",
		Text: "Trying out Claude Code with MCP servers. Anthropic shipped an impressive update.",
	}

	first, err := e.Extract(context.Background(), doc)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	second, err := e.Extract(context.Background(), doc)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if !reflect.DeepEqual(first.Candidates, second.Candidates) {
		t.Errorf("identical text gave different candidates:\n%v\n%v", first.Candidates, second.Candidates)
	}

	names := candidateNames(first.Candidates)
	want := []string{"Claude Code", "Anthropic", "MCP"}
	for _, name := range want {
		found := false
		for _, got := range names {
			if got == name {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("pattern pass missed %q, got %v", name, names)
		}
	}
}

func TestLongestMatchShadowsShorter(t *testing.T) {
	e := New(nil, nil, Params{})
	res, err := e.Extract(context.Background(), common.Document{ID: "d", Text: "I switched to Claude Code last week."})
	if err != nil {
		t.Fatalf("extract: %v", err)
	}

	names := candidateNames(res.Candidates)
	for _, name := range names {
		if name == "Claude" {
			t.Errorf("bare Claude matched inside Claude Code: %v", names)
		}
	}

	// A bare mention still matches on its own.
	res, err = e.Extract(context.Background(), common.Document{ID: "d2", Text: "Claude handled the question well."})
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if got := candidateNames(res.Candidates); len(got) != 1 || got[0] != "Claude" {
		t.Errorf("bare mention candidates = %v, want [Claude]", got)
	}
}

func TestModelFailureDegradesToPatternOnly(t *testing.T) {
	model := &stubModel{err: errors.New("upstream timeout")}
	e := New(model, nil, Params{})

	res, err := e.Extract(context.Background(), common.Document{ID: "d", Text: "Cursor vs Windsurf comparison."})
	if err != nil {
		t.Fatalf("extract must not fail on model error: %v", err)
	}
	if !res.Degraded {
		t.Error("result not flagged degraded")
	}
	names := candidateNames(res.Candidates)
	if len(names) != 2 {
		t.Errorf("pattern output lost: %v", names)
	}
}

func TestModelTransientFailureRetried(t *testing.T) {
	model := &stubModel{
		transient: 2,
		extraction: modelExtraction{
			Entities: []modelEntity{{Name: "Haystack", Type: "tool", Confidence: 0.9}},
		},
	}
	e := New(model, nil, Params{})

	res, err := e.Extract(context.Background(), common.Document{ID: "d", Text: "Evaluating Haystack for retrieval."})
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if res.Degraded {
		t.Error("result flagged degraded despite a successful retry")
	}
	if model.calls != 3 {
		t.Errorf("model called %d times, want 3", model.calls)
	}
	names := candidateNames(res.Candidates)
	found := false
	for _, name := range names {
		if name == "Haystack" {
			found = true
		}
	}
	if !found {
		t.Errorf("model candidate lost after retry: %v", names)
	}
}

func TestPatternCandidatesCarryAliases(t *testing.T) {
	e := New(nil, nil, Params{})
	res, err := e.Extract(context.Background(), common.Document{ID: "d", Text: "The MCP spec keeps evolving."})
	if err != nil {
		t.Fatalf("extract: %v", err)
	}

	for _, c := range res.Candidates {
		if c.Name != "MCP" {
			continue
		}
		for _, alias := range c.Aliases {
			if alias == "Model Context Protocol" {
				return
			}
		}
		t.Fatalf("MCP candidate aliases = %v, want Model Context Protocol", c.Aliases)
	}
	t.Fatal("MCP candidate missing")
}

func TestMergePolicy(t *testing.T) {
	reg := registry.New(registry.Params{})
	if _, err := reg.Upsert("LangChain", common.EntityTypeTool, registry.Evidence{DocumentID: "seed"}); err != nil {
		t.Fatal(err)
	}

	model := &stubModel{extraction: modelExtraction{
		Entities: []modelEntity{
			{Name: "langchain", Type: "tool", Confidence: 0.4},   // resolves, kept despite low confidence
			{Name: "Haystack", Type: "tool", Confidence: 0.9},    // new, above threshold
			{Name: "SomeScript", Type: "tool", Confidence: 0.3},  // new, below threshold
			{Name: "Anthropic", Type: "company", Confidence: 0.99}, // duplicate of pattern match
		},
	}}
	e := New(model, reg, Params{})

	res, err := e.Extract(context.Background(), common.Document{ID: "d", Text: "Anthropic news today."})
	if err != nil {
		t.Fatalf("extract: %v", err)
	}

	names := candidateNames(res.Candidates)
	wantPresent := map[string]bool{"Anthropic": false, "LangChain": false, "Haystack": false}
	for _, name := range names {
		if name == "SomeScript" {
			t.Error("low-confidence new candidate survived")
		}
		if _, ok := wantPresent[name]; ok {
			wantPresent[name] = true
		}
	}
	for name, present := range wantPresent {
		if !present {
			t.Errorf("expected candidate %q missing from %v", name, names)
		}
	}

	// The duplicate collapsed and kept the strongest confidence.
	count := 0
	for _, c := range res.Candidates {
		if c.Name == "Anthropic" {
			count++
			if c.Confidence != 0.99 {
				t.Errorf("Anthropic confidence = %v, want strongest 0.99", c.Confidence)
			}
		}
	}
	if count != 1 {
		t.Errorf("Anthropic appears %d times, want 1", count)
	}
}

func TestModelRelationsFiltered(t *testing.T) {
	model := &stubModel{extraction: modelExtraction{
		Relations: []modelRelation{
			{Source: "Claude Code", Target: "MCP", Type: "integrates_with", Strength: 0.8},
			{Source: "Claude Code", Target: "Claude Code", Type: "integrates_with", Strength: 0.8},
			{Source: "Cursor", Target: "Copilot", Type: "sponsors", Strength: 0.5},
			{Source: "", Target: "MCP", Type: "mentioned_with", Strength: 0.5},
		},
	}}
	e := New(model, nil, Params{})

	res, err := e.Extract(context.Background(), common.Document{ID: "d", Text: "some text"})
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(res.Relations) != 1 {
		t.Fatalf("relations = %+v, want only the valid one", res.Relations)
	}
	if res.Relations[0].Type != common.RelationIntegratesWith {
		t.Errorf("relation type = %v", res.Relations[0].Type)
	}
}

func TestSentimentScore(t *testing.T) {
	tests := []struct {
		text string
		sign int
	}{
		{"this tool is amazing and reliable", 1},
		{"buggy and slow, a terrible experience", -1},
		{"the meeting is on tuesday", 0},
	}
	for _, tt := range tests {
		got := SentimentScore(tt.text)
		switch {
		case tt.sign > 0 && got <= 0:
			t.Errorf("SentimentScore(%q) = %v, want positive", tt.text, got)
		case tt.sign < 0 && got >= 0:
			t.Errorf("SentimentScore(%q) = %v, want negative", tt.text, got)
		case tt.sign == 0 && got != 0:
			t.Errorf("SentimentScore(%q) = %v, want 0", tt.text, got)
		}
	}
}
