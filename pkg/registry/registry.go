// Package registry maintains the canonical entity catalog. All mutation goes
// through Upsert and Merge under a single lock so concurrent extraction
// batches cannot race to create duplicate entities.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/atlaskb/backend/pkg/common"
	"github.com/atlaskb/backend/pkg/logger"
)

const defaultFuzzyThreshold = 0.84

// Evidence is one document's support for an entity mention.
type Evidence struct {
	DocumentID string
	Confidence float64
	Sentiment  float64
	Date       time.Time
}

type Params struct {
	// FuzzyThreshold is the minimum normalized similarity for a fuzzy
	// name match. Zero selects the default.
	FuzzyThreshold float64
}

// Registry is the canonical entity store. Canonical names and aliases are
// unique across all entities; merged entity ids keep resolving to the
// surviving entity.
type Registry struct {
	mu sync.Mutex

	fuzzyThreshold float64

	entities   map[string]*common.Entity
	byName     map[string]string                    // normalized canonical name -> entity id
	byAlias    map[string]string                    // normalized alias -> entity id
	mentions   map[string]map[string]common.Mention // entity id -> document id -> mention
	byDocument map[string]map[string]struct{}       // document id -> entity ids
	merged     map[string]string                    // retired entity id -> surviving entity id
	extracted  map[string]struct{}                  // document ids already run through extraction
}

func New(params Params) *Registry {
	threshold := params.FuzzyThreshold
	if threshold <= 0 {
		threshold = defaultFuzzyThreshold
	}
	return &Registry{
		fuzzyThreshold: threshold,
		entities:       make(map[string]*common.Entity),
		byName:         make(map[string]string),
		byAlias:        make(map[string]string),
		mentions:       make(map[string]map[string]common.Mention),
		byDocument:     make(map[string]map[string]struct{}),
		merged:         make(map[string]string),
		extracted:      make(map[string]struct{}),
	}
}

// Resolve maps a candidate name to its canonical entity. Resolution order is
// exact canonical match, exact alias match, then fuzzy match above the
// configured threshold. A fuzzy tie that cannot be broken by canonical name
// length returns ErrAmbiguousResolution.
func (r *Registry) Resolve(candidateName string) (*common.Entity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resolveLocked(candidateName)
}

func (r *Registry) resolveLocked(candidateName string) (*common.Entity, error) {
	key := NormalizeName(candidateName)
	if key == "" {
		return nil, fmt.Errorf("resolve %q: %w", candidateName, common.ErrNotFound)
	}

	if id, ok := r.byName[key]; ok {
		return copyEntity(r.entities[id]), nil
	}
	if id, ok := r.byAlias[key]; ok {
		return copyEntity(r.entities[id]), nil
	}

	type candidate struct {
		id    string
		score float64
	}
	var candidates []candidate
	for id, entity := range r.entities {
		score := Similarity(key, NormalizeName(entity.Name))
		for _, alias := range entity.Aliases {
			if s := Similarity(key, NormalizeName(alias)); s > score {
				score = s
			}
		}
		if score >= r.fuzzyThreshold {
			candidates = append(candidates, candidate{id: id, score: score})
		}
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("resolve %q: %w", candidateName, common.ErrNotFound)
	}

	// Prefer the longer canonical name on a score tie so short fragments
	// attach to the established entity instead of splitting it.
	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.score != b.score {
			return a.score > b.score
		}
		nameA, nameB := r.entities[a.id].Name, r.entities[b.id].Name
		if len(nameA) != len(nameB) {
			return len(nameA) > len(nameB)
		}
		return nameA < nameB
	})

	if len(candidates) > 1 {
		best, next := candidates[0], candidates[1]
		if best.score == next.score && len(r.entities[best.id].Name) == len(r.entities[next.id].Name) {
			return nil, fmt.Errorf("resolve %q matches %q and %q: %w",
				candidateName, r.entities[best.id].Name, r.entities[next.id].Name, common.ErrAmbiguousResolution)
		}
	}

	return copyEntity(r.entities[candidates[0].id]), nil
}

// Upsert resolves candidateName to an existing entity or creates a new one,
// then records the evidence. Mention counters, firstSeen and lastSeen update
// in the same critical section. Repeated evidence from the same document
// collapses to a single mention keeping the strongest confidence.
func (r *Registry) Upsert(candidateName string, entityType common.EntityType, ev Evidence) (*common.Entity, error) {
	if !common.ValidEntityType(entityType) {
		return nil, fmt.Errorf("upsert %q: invalid entity type %q", candidateName, entityType)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var entity *common.Entity
	resolved, err := r.resolveLocked(candidateName)
	switch {
	case err == nil:
		entity = r.entities[resolved.ID]
	case errors.Is(err, common.ErrNotFound):
		id, err := gonanoid.New()
		if err != nil {
			return nil, fmt.Errorf("failed to generate entity id: %w", err)
		}
		entity = &common.Entity{
			ID:        id,
			Name:      candidateName,
			Type:      entityType,
			FirstSeen: ev.Date,
			LastSeen:  ev.Date,
		}
		r.entities[id] = entity
		r.byName[NormalizeName(candidateName)] = id
		logger.Debug("[Registry] Created entity", "id", id, "name", candidateName, "type", entityType)
	default:
		return nil, err
	}

	// Resolved through an alias or fuzzy match under a different surface
	// form: remember it as an alias so the next lookup is exact.
	key := NormalizeName(candidateName)
	if r.byName[key] != entity.ID && r.byAlias[key] != entity.ID {
		if err := r.addAliasLocked(entity, candidateName); err != nil {
			return nil, err
		}
	}

	docMentions, ok := r.mentions[entity.ID]
	if !ok {
		docMentions = make(map[string]common.Mention)
		r.mentions[entity.ID] = docMentions
	}
	if existing, ok := docMentions[ev.DocumentID]; ok {
		if ev.Confidence > existing.Confidence {
			existing.Confidence = ev.Confidence
			existing.Sentiment = ev.Sentiment
			docMentions[ev.DocumentID] = existing
		}
	} else {
		docMentions[ev.DocumentID] = common.Mention{
			DocumentID: ev.DocumentID,
			EntityID:   entity.ID,
			Confidence: ev.Confidence,
			Sentiment:  ev.Sentiment,
		}
		entity.MentionCount++
		r.indexDocumentLocked(ev.DocumentID, entity.ID)
	}

	if !ev.Date.IsZero() {
		if entity.FirstSeen.IsZero() || ev.Date.Before(entity.FirstSeen) {
			entity.FirstSeen = ev.Date
		}
		if ev.Date.After(entity.LastSeen) {
			entity.LastSeen = ev.Date
		}
	}

	return copyEntity(entity), nil
}

// AddAlias registers an additional surface form for an existing entity.
// Aliases stay pairwise disjoint across entities.
func (r *Registry) AddAlias(entityID, alias string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entity, ok := r.entities[r.chaseLocked(entityID)]
	if !ok {
		return fmt.Errorf("add alias to %q: %w", entityID, common.ErrNotFound)
	}
	return r.addAliasLocked(entity, alias)
}

func (r *Registry) addAliasLocked(entity *common.Entity, alias string) error {
	key := NormalizeName(alias)
	if key == "" || key == NormalizeName(entity.Name) {
		return nil
	}
	if ownerID, ok := r.byAlias[key]; ok {
		if ownerID == entity.ID {
			return nil
		}
		return fmt.Errorf("alias %q already belongs to entity %q", alias, ownerID)
	}
	if ownerID, ok := r.byName[key]; ok && ownerID != entity.ID {
		return fmt.Errorf("alias %q collides with canonical name of entity %q", alias, ownerID)
	}

	entity.Aliases = append(entity.Aliases, alias)
	r.byAlias[key] = entity.ID
	return nil
}

// Merge folds the source entity into the target: mentions and aliases move
// over, counters and seen dates combine, and the source id keeps resolving to
// the target. Merging an already-merged id is a no-op.
func (r *Registry) Merge(sourceID, targetID string) (*common.Entity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sourceID = r.chaseLocked(sourceID)
	targetID = r.chaseLocked(targetID)
	if sourceID == targetID {
		target, ok := r.entities[targetID]
		if !ok {
			return nil, fmt.Errorf("merge target %q: %w", targetID, common.ErrNotFound)
		}
		return copyEntity(target), nil
	}

	source, ok := r.entities[sourceID]
	if !ok {
		return nil, fmt.Errorf("merge source %q: %w", sourceID, common.ErrNotFound)
	}
	target, ok := r.entities[targetID]
	if !ok {
		return nil, fmt.Errorf("merge target %q: %w", targetID, common.ErrNotFound)
	}

	targetMentions, ok := r.mentions[targetID]
	if !ok {
		targetMentions = make(map[string]common.Mention)
		r.mentions[targetID] = targetMentions
	}
	for docID, mention := range r.mentions[sourceID] {
		mention.EntityID = targetID
		if existing, dup := targetMentions[docID]; dup {
			if mention.Confidence > existing.Confidence {
				targetMentions[docID] = mention
			}
		} else {
			targetMentions[docID] = mention
			target.MentionCount++
		}
		if set, ok := r.byDocument[docID]; ok {
			delete(set, sourceID)
		}
		r.indexDocumentLocked(docID, targetID)
	}
	delete(r.mentions, sourceID)

	// The source's canonical name and aliases keep resolving, now to the
	// target.
	sourceKey := NormalizeName(source.Name)
	delete(r.byName, sourceKey)
	if _, taken := r.byAlias[sourceKey]; !taken && sourceKey != NormalizeName(target.Name) {
		target.Aliases = append(target.Aliases, source.Name)
		r.byAlias[sourceKey] = targetID
	}
	for _, alias := range source.Aliases {
		key := NormalizeName(alias)
		if r.byAlias[key] == sourceID {
			r.byAlias[key] = targetID
			target.Aliases = append(target.Aliases, alias)
		}
	}

	if !source.FirstSeen.IsZero() && (target.FirstSeen.IsZero() || source.FirstSeen.Before(target.FirstSeen)) {
		target.FirstSeen = source.FirstSeen
	}
	if source.LastSeen.After(target.LastSeen) {
		target.LastSeen = source.LastSeen
	}

	delete(r.entities, sourceID)
	r.merged[sourceID] = targetID
	logger.Info("[Registry] Merged entity", "source", source.Name, "target", target.Name, "mentions", target.MentionCount)

	return copyEntity(target), nil
}

// GetEntity returns the entity for id, following merge redirects.
func (r *Registry) GetEntity(id string) (*common.Entity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entity, ok := r.entities[r.chaseLocked(id)]
	if !ok {
		return nil, fmt.Errorf("entity %q: %w", id, common.ErrNotFound)
	}
	return copyEntity(entity), nil
}

// CanonicalID follows merge redirects without loading the entity.
func (r *Registry) CanonicalID(id string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.chaseLocked(id)
}

// ListEntities returns all live entities ordered by descending mention count,
// name as tie-break.
func (r *Registry) ListEntities() []common.Entity {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]common.Entity, 0, len(r.entities))
	for _, entity := range r.entities {
		out = append(out, *copyEntity(entity))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].MentionCount != out[j].MentionCount {
			return out[i].MentionCount > out[j].MentionCount
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Mentions returns the collapsed mention records for an entity.
func (r *Registry) Mentions(entityID string) ([]common.Mention, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.chaseLocked(entityID)
	if _, ok := r.entities[id]; !ok {
		return nil, fmt.Errorf("entity %q: %w", entityID, common.ErrNotFound)
	}
	out := make([]common.Mention, 0, len(r.mentions[id]))
	for _, mention := range r.mentions[id] {
		out = append(out, mention)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DocumentID < out[j].DocumentID })
	return out, nil
}

// EntitiesInDocument returns the ids of every entity mentioned by a
// document, sorted for stable output.
func (r *Registry) EntitiesInDocument(documentID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, 0, len(r.byDocument[documentID]))
	for id := range r.byDocument[documentID] {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// MarkDocumentExtracted records that a document has been run through
// extraction. The marker lives with the registry so it disappears together
// with the entity state it describes.
func (r *Registry) MarkDocumentExtracted(documentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.extracted[documentID] = struct{}{}
}

// DocumentExtracted reports whether a document has already been extracted.
func (r *Registry) DocumentExtracted(documentID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.extracted[documentID]
	return ok
}

func (r *Registry) indexDocumentLocked(documentID, entityID string) {
	set, ok := r.byDocument[documentID]
	if !ok {
		set = make(map[string]struct{})
		r.byDocument[documentID] = set
	}
	set[entityID] = struct{}{}
}

func (r *Registry) chaseLocked(id string) string {
	for {
		next, ok := r.merged[id]
		if !ok {
			return id
		}
		id = next
	}
}

func copyEntity(e *common.Entity) *common.Entity {
	out := *e
	out.Aliases = append([]string(nil), e.Aliases...)
	return &out
}
