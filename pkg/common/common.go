package common

import "time"

// EntityType classifies what kind of real-world thing an entity is.
type EntityType string

const (
	EntityTypeTool    EntityType = "tool"
	EntityTypeCompany EntityType = "company"
	EntityTypeConcept EntityType = "concept"
	EntityTypePerson  EntityType = "person"
)

// ValidEntityType reports whether t is one of the known entity types.
func ValidEntityType(t EntityType) bool {
	switch t {
	case EntityTypeTool, EntityTypeCompany, EntityTypeConcept, EntityTypePerson:
		return true
	}
	return false
}

// RelationType names the kind of association an edge carries.
type RelationType string

const (
	RelationMentionedWith  RelationType = "mentioned_with"
	RelationIntegratesWith RelationType = "integrates_with"
	RelationCompetesWith   RelationType = "competes_with"
	RelationBuiltBy        RelationType = "built_by"
)

// ValidRelationType reports whether t belongs to the fixed edge vocabulary.
func ValidRelationType(t RelationType) bool {
	switch t {
	case RelationMentionedWith, RelationIntegratesWith, RelationCompetesWith, RelationBuiltBy:
		return true
	}
	return false
}

// Document is one ingested email. ID and Text are immutable after ingest;
// Categories may be back-filled, and the embedding is set once per model
// version by the batch embedder.
type Document struct {
	ID         string    `json:"id"`
	Text       string    `json:"text"`
	Date       time.Time `json:"date"`
	Sender     string    `json:"sender,omitempty"`
	Categories []string  `json:"categories,omitempty"`

	Embedding        []float32 `json:"-"`
	EmbeddingVersion string    `json:"embedding_version,omitempty"`
}

// Entity is a canonical node in the knowledge graph: a tool, company,
// concept, or person referenced across documents. Entities are never
// deleted, only merged into a surviving entity.
type Entity struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Type         EntityType `json:"type"`
	Aliases      []string   `json:"aliases,omitempty"`
	MentionCount int        `json:"mention_count"`
	FirstSeen    time.Time  `json:"first_seen"`
	LastSeen     time.Time  `json:"last_seen"`
}

// Mention records that one document references one entity. A document holds
// at most one mention per entity; repeated textual occurrences collapse to
// the strongest confidence.
type Mention struct {
	DocumentID string  `json:"document_id"`
	EntityID   string  `json:"entity_id"`
	Confidence float64 `json:"confidence"`
	Sentiment  float64 `json:"sentiment"`
}

// Edge is an undirected weighted relationship between two entities. A is
// always the lexically smaller entity id so each pair has a single edge per
// relation type. Strength is the stored value; readers apply freshness decay
// based on LastUpdated.
type Edge struct {
	A             string       `json:"a"`
	B             string       `json:"b"`
	Type          RelationType `json:"type"`
	Strength      float64      `json:"strength"`
	EvidenceCount int          `json:"evidence_count"`
	LastUpdated   time.Time    `json:"last_updated"`
}

// OrderPair returns the two entity ids in the canonical edge order.
func OrderPair(a, b string) (string, string) {
	if b < a {
		return b, a
	}
	return a, b
}

// SearchResult is one ranked document returned by hybrid search.
type SearchResult struct {
	DocumentID      string   `json:"document_id"`
	Score           float64  `json:"score"`
	VectorScore     float64  `json:"vector_score"`
	KeywordScore    float64  `json:"keyword_score"`
	GraphScore      float64  `json:"graph_score"`
	MatchedTerms    []string `json:"matched_terms,omitempty"`
	RelatedEntities []string `json:"related_entities,omitempty"`
}

// Answer is the synthesized response for a query. AnswerText is optional
// enrichment: when the text model is unavailable the ranked results stand
// alone and Degraded is set.
type Answer struct {
	AnswerText       string         `json:"answer_text,omitempty"`
	CitedDocumentIDs []string       `json:"cited_document_ids"`
	RankedResults    []SearchResult `json:"ranked_results"`
	Degraded         bool           `json:"degraded"`
}
