package search

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/atlaskb/backend/pkg/ai"
	"github.com/atlaskb/backend/pkg/common"
	"github.com/atlaskb/backend/pkg/logger"
	"github.com/atlaskb/backend/pkg/store"
)

const (
	defaultSynthesisSources = 5
	snippetMaxRunes         = 600
	synthesisMaxTokens      = 700
)

var citationPattern = regexp.MustCompile(`\[Source (\d+)\]`)

// Synthesizer turns ranked search results into a cited natural-language
// answer. The prose is optional enrichment: when the model is unavailable or
// returns an unusable response, callers get the ranked results back with the
// degraded flag set and no answer text.
type Synthesizer struct {
	model   ai.TextModelClient
	store   store.DocumentStore
	sources int
}

func NewSynthesizer(model ai.TextModelClient, docStore store.DocumentStore, sources int) *Synthesizer {
	if sources <= 0 {
		sources = defaultSynthesisSources
	}
	return &Synthesizer{model: model, store: docStore, sources: sources}
}

// Synthesize answers the query strictly from the top ranked results. The
// returned Answer always carries the ranked results; AnswerText and the
// cited document ids are filled only when synthesis succeeds.
func (s *Synthesizer) Synthesize(ctx context.Context, queryText string, results []common.SearchResult) *common.Answer {
	answer := &common.Answer{RankedResults: results, CitedDocumentIDs: []string{}}
	if len(results) == 0 {
		return answer
	}
	if s.model == nil {
		answer.Degraded = true
		return answer
	}

	top := results
	if len(top) > s.sources {
		top = top[:s.sources]
	}

	var snippets strings.Builder
	sourceDocs := make([]string, 0, len(top))
	for _, result := range top {
		doc, err := s.store.GetDocument(ctx, result.DocumentID)
		if err != nil {
			logger.Warn("[Synthesize] Skipping unreadable source", "document", result.DocumentID, "error", err)
			continue
		}
		fmt.Fprintf(&snippets, "[Source %d] %s\n\n", len(sourceDocs)+1, snippet(doc.Text))
		sourceDocs = append(sourceDocs, doc.ID)
	}
	if len(sourceDocs) == 0 {
		answer.Degraded = true
		return answer
	}

	prompt := fmt.Sprintf(ai.SynthesisPrompt, queryText, strings.TrimSpace(snippets.String()))
	text, err := s.model.GenerateCompletion(ctx, prompt, ai.WithMaxTokens(synthesisMaxTokens))
	if err != nil || strings.TrimSpace(text) == "" {
		if err != nil {
			logger.Warn("[Synthesize] Completion failed, returning ranked results only",
				"error", fmt.Errorf("%w: %v", common.ErrUpstreamUnavailable, err))
		}
		answer.Degraded = true
		return answer
	}

	answer.AnswerText = strings.TrimSpace(text)
	answer.CitedDocumentIDs = citedDocuments(answer.AnswerText, sourceDocs)
	return answer
}

// citedDocuments maps [Source N] references in the answer back to document
// ids, in citation order without duplicates.
func citedDocuments(answerText string, sourceDocs []string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, match := range citationPattern.FindAllStringSubmatch(answerText, -1) {
		n, err := strconv.Atoi(match[1])
		if err != nil || n < 1 || n > len(sourceDocs) {
			continue
		}
		id := sourceDocs[n-1]
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	if out == nil {
		return []string{}
	}
	return out
}

func snippet(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= snippetMaxRunes {
		return text
	}
	return string(runes[:snippetMaxRunes]) + "..."
}
