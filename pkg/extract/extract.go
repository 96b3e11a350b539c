// Package extract turns raw document text into typed entity candidates and
// explicit relationships. A deterministic pattern pass over the curated
// dictionary always runs; a text model pass adds recall when available and
// degrades away cleanly when it is not.
package extract

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/atlaskb/backend/internal/util"
	"github.com/atlaskb/backend/pkg/ai"
	"github.com/atlaskb/backend/pkg/common"
	"github.com/atlaskb/backend/pkg/logger"
	"github.com/atlaskb/backend/pkg/registry"
)

const (
	defaultMinNewEntityConfidence = 0.75
	patternConfidence             = 0.95
	maxModelInputTokens           = 2000
	modelAttempts                 = 3
)

// Candidate is one extracted entity mention before registry resolution.
type Candidate struct {
	Name       string
	Type       common.EntityType
	Confidence float64
	Sentiment  float64
	Method     string // "pattern" or "model"

	// Aliases are alternative names the dictionary knows for this
	// candidate, registered alongside the canonical name.
	Aliases []string
}

// Relation is an explicit relationship the model found stated in the text.
type Relation struct {
	A        string
	B        string
	Type     common.RelationType
	Strength float64
}

// Result is one document's extraction output. Degraded is set when the model
// pass failed and only pattern candidates are present.
type Result struct {
	Candidates []Candidate
	Relations  []Relation
	Degraded   bool
}

type Params struct {
	// MinNewEntityConfidence is the confidence a model candidate needs to
	// create a brand-new entity. Candidates resolving to an existing
	// entity are kept regardless. Zero selects the default.
	MinNewEntityConfidence float64
}

// Extractor merges pattern and model extraction for single documents. The
// model client may be nil, which pins the extractor to pattern-only output.
type Extractor struct {
	model    ai.TextModelClient
	registry *registry.Registry

	minNewEntityConfidence float64
}

func New(model ai.TextModelClient, reg *registry.Registry, params Params) *Extractor {
	threshold := params.MinNewEntityConfidence
	if threshold <= 0 {
		threshold = defaultMinNewEntityConfidence
	}
	return &Extractor{
		model:                  model,
		registry:               reg,
		minNewEntityConfidence: threshold,
	}
}

type modelEntity struct {
	Name       string  `json:"name" jsonschema_description:"The entity's most specific complete name as written in the text"`
	Type       string  `json:"type" jsonschema:"enum=tool,enum=company,enum=concept,enum=person"`
	Confidence float64 `json:"confidence" jsonschema_description:"Between 0 and 1"`
	Sentiment  float64 `json:"sentiment" jsonschema_description:"Between -1 and 1"`
}

type modelRelation struct {
	Source   string  `json:"source"`
	Target   string  `json:"target"`
	Type     string  `json:"type" jsonschema:"enum=mentioned_with,enum=integrates_with,enum=competes_with,enum=built_by"`
	Strength float64 `json:"strength" jsonschema_description:"Between 0 and 1"`
}

type modelExtraction struct {
	Entities  []modelEntity   `json:"entities"`
	Relations []modelRelation `json:"relations"`
}

// Extract runs both extraction strategies on one document and merges their
// candidates. Identical text always yields identical pattern output; a model
// failure never blocks the document, it only flags the result degraded.
func (e *Extractor) Extract(ctx context.Context, doc common.Document) (*Result, error) {
	if doc.Text == "" {
		return &Result{}, nil
	}

	result := &Result{Candidates: e.extractPattern(doc.Text)}

	if e.model == nil {
		return result, nil
	}

	modelResult, err := e.extractModel(ctx, doc.Text)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		logger.Warn("[Extract] Model pass failed, keeping pattern output", "document", doc.ID, "error", err)
		result.Degraded = true
		return result, nil
	}

	result.Candidates = e.mergeCandidates(result.Candidates, modelResult.Entities)
	result.Relations = keepValidRelations(modelResult.Relations)
	return result, nil
}

// extractPattern matches the curated dictionary against lowercased text.
// Overlapping matches keep only the longest entry at each position.
func (e *Extractor) extractPattern(text string) []Candidate {
	lower := strings.ToLower(text)
	sentiment := SentimentScore(lower)

	type span struct {
		entry      *DictionaryEntry
		start, end int
	}
	var spans []span
	for i := range Dictionary {
		entry := &Dictionary[i]
		for _, pattern := range entry.patterns {
			for _, loc := range pattern.FindAllStringIndex(lower, -1) {
				spans = append(spans, span{entry: entry, start: loc[0], end: loc[1]})
			}
		}
	}

	// Longest span first so shorter overlapping matches are shadowed.
	sort.Slice(spans, func(i, j int) bool {
		if li, lj := spans[i].end-spans[i].start, spans[j].end-spans[j].start; li != lj {
			return li > lj
		}
		if spans[i].start != spans[j].start {
			return spans[i].start < spans[j].start
		}
		return spans[i].entry.Name < spans[j].entry.Name
	})

	taken := make([]span, 0, len(spans))
	matched := make(map[string]bool)
	for _, s := range spans {
		overlaps := false
		for _, t := range taken {
			if s.start < t.end && t.start < s.end {
				overlaps = true
				break
			}
		}
		if overlaps {
			continue
		}
		taken = append(taken, s)
		matched[s.entry.Name] = true
	}

	var out []Candidate
	for i := range Dictionary {
		if matched[Dictionary[i].Name] {
			out = append(out, Candidate{
				Name:       Dictionary[i].Name,
				Type:       Dictionary[i].Type,
				Confidence: patternConfidence,
				Sentiment:  sentiment,
				Method:     "pattern",
				Aliases:    Dictionary[i].Aliases,
			})
		}
	}
	return out
}

func (e *Extractor) extractModel(ctx context.Context, text string) (*modelExtraction, error) {
	if truncated, err := util.TruncateTokens(text, "cl100k_base", maxModelInputTokens); err == nil {
		text = truncated
	}

	prompt := fmt.Sprintf("%s\n\nEmail text:\n%s", relationVocabulary(), text)

	var out modelExtraction
	err := util.RetryErrWithContext(ctx, modelAttempts, func(ctx context.Context) error {
		return e.model.GenerateCompletionWithFormat(
			ctx,
			"entity_extraction",
			"Entities and explicit relationships found in one email",
			prompt,
			&out,
			ai.WithTemperature(0),
		)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrUpstreamUnavailable, err)
	}
	return &out, nil
}

func relationVocabulary() string {
	return fmt.Sprintf(ai.ExtractPrompt, strings.Join([]string{
		string(common.RelationMentionedWith),
		string(common.RelationIntegratesWith),
		string(common.RelationCompetesWith),
		string(common.RelationBuiltBy),
	}, ", "))
}

// mergeCandidates applies the merge policy: pattern candidates are always
// kept; a model candidate survives only if it resolves to an existing entity
// or clears the new-entity confidence threshold. Duplicates collapse to the
// strongest confidence.
func (e *Extractor) mergeCandidates(pattern []Candidate, model []modelEntity) []Candidate {
	byKey := make(map[string]int, len(pattern))
	out := append([]Candidate(nil), pattern...)
	for i := range out {
		byKey[registry.NormalizeName(out[i].Name)] = i
	}

	for _, me := range model {
		name := strings.TrimSpace(me.Name)
		typ := common.EntityType(me.Type)
		if name == "" || !common.ValidEntityType(typ) {
			continue
		}

		candidate := Candidate{
			Name:       name,
			Type:       typ,
			Confidence: clamp(me.Confidence, 0, 1),
			Sentiment:  clamp(me.Sentiment, -1, 1),
			Method:     "model",
		}

		if e.registry != nil {
			resolved, err := e.registry.Resolve(name)
			switch {
			case err == nil:
				candidate.Name = resolved.Name
				candidate.Type = resolved.Type
			case errors.Is(err, common.ErrAmbiguousResolution):
				logger.Debug("[Extract] Dropping ambiguous model candidate", "name", name)
				continue
			case candidate.Confidence < e.minNewEntityConfidence:
				continue
			}
		} else if candidate.Confidence < e.minNewEntityConfidence {
			continue
		}

		key := registry.NormalizeName(candidate.Name)
		if idx, ok := byKey[key]; ok {
			if candidate.Confidence > out[idx].Confidence {
				out[idx].Confidence = candidate.Confidence
				out[idx].Sentiment = candidate.Sentiment
			}
			continue
		}
		byKey[key] = len(out)
		out = append(out, candidate)
	}
	return out
}

func keepValidRelations(relations []modelRelation) []Relation {
	var out []Relation
	for _, r := range relations {
		typ := common.RelationType(r.Type)
		if r.Source == "" || r.Target == "" || r.Source == r.Target || !common.ValidRelationType(typ) {
			continue
		}
		out = append(out, Relation{
			A:        strings.TrimSpace(r.Source),
			B:        strings.TrimSpace(r.Target),
			Type:     typ,
			Strength: clamp(r.Strength, 0, 1),
		})
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	switch {
	case v < lo:
		return lo
	case v > hi:
		return hi
	}
	return v
}
