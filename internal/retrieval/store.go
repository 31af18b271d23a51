package retrieval

import (
	"context"
)

// Passage is a retrieved chunk of source-document text with provenance.
// Passages are owned by the run that retrieved them and are never persisted
// by this package.
type Passage struct {
	// SourceID identifies the originating document or chunk.
	// Used for deduplication across retrieval rounds.
	SourceID string `json:"source"`

	// Content is the passage text.
	Content string `json:"content"`

	// Score is the backend's relevance score, if it reports one.
	// nil means the backend returned ranked but unscored results.
	Score *float64 `json:"score,omitempty"`

	// Store is the name of the vector store the passage came from.
	Store string `json:"origin_store,omitempty"`
}

// Scored reports whether the passage carries a relevance score.
func (p Passage) Scored() bool {
	return p.Score != nil
}

// ScoreValue returns the score, or 0 for unscored passages.
func (p Passage) ScoreValue() float64 {
	if p.Score == nil {
		return 0
	}
	return *p.Score
}

// Store is a single named vector-store backend.
//
// Implementations must be safe for concurrent use: Multi issues Search
// calls from multiple goroutines.
type Store interface {
	// Name returns the store's unique configured name.
	Name() string

	// Description returns a human-readable summary of the store's content,
	// surfaced by the status endpoint.
	Description() string

	// K returns the maximum number of passages one Search may return.
	K() int

	// Search returns up to K passages ranked by relevance for the query.
	// Implementations honor ctx cancellation and deadlines.
	Search(ctx context.Context, query string) ([]Passage, error)
}
