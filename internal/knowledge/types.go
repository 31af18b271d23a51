package knowledge

import "time"

// Document is a unit of indexed knowledge. Content is embedded automatically
// when the document is added; Metadata is stored as JSONB and returned with
// search results.
type Document struct {
	ID        string
	Content   string
	Metadata  map[string]string
	Namespace string
	CreatedAt time.Time
}

// Result is a single hybrid search hit. Score is the weighted blend of dense
// similarity and lexical rank, higher is better.
type Result struct {
	Document Document
	Score    float64
}
