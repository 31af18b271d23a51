package retrieval

import (
	"context"
	"fmt"

	"github.com/firebase/genkit/go/ai"
)

// genkitStore adapts a Genkit ai.Retriever to the Store contract.
type genkitStore struct {
	retriever   ai.Retriever
	name        string
	description string
	k           int
}

// FromRetriever wraps a Genkit ai.Retriever (e.g. the PostgreSQL plugin's)
// as a named Store. k bounds the number of passages per search.
func FromRetriever(retriever ai.Retriever, name, description string, k int) Store {
	return &genkitStore{
		retriever:   retriever,
		name:        name,
		description: description,
		k:           k,
	}
}

func (s *genkitStore) Name() string        { return s.name }
func (s *genkitStore) Description() string { return s.description }
func (s *genkitStore) K() int              { return s.k }

func (s *genkitStore) Search(ctx context.Context, query string) ([]Passage, error) {
	resp, err := s.retriever.Retrieve(ctx, &ai.RetrieverRequest{
		Query:   ai.DocumentFromText(query, nil),
		Options: map[string]any{"k": s.k},
	})
	if err != nil {
		return nil, fmt.Errorf("retrieve from %q: %w", s.name, err)
	}

	passages := make([]Passage, 0, len(resp.Documents))
	for i, doc := range resp.Documents {
		passages = append(passages, Passage{
			SourceID: documentID(doc, s.name, i),
			Content:  documentText(doc),
			Score:    documentScore(doc),
			Store:    s.name,
		})
	}
	return passages, nil
}

// documentID extracts a stable identifier from document metadata,
// falling back to a positional ID when the backend reports none.
func documentID(doc *ai.Document, store string, index int) string {
	if doc.Metadata != nil {
		for _, key := range []string{"id", "source"} {
			if v, ok := doc.Metadata[key].(string); ok && v != "" {
				return v
			}
		}
	}
	return fmt.Sprintf("%s#%d", store, index)
}

// documentText concatenates the document's text parts.
func documentText(doc *ai.Document) string {
	var text string
	for _, part := range doc.Content {
		if part.IsText() {
			text += part.Text
		}
	}
	return text
}

// documentScore extracts a similarity score from metadata, if present.
// Backends report either "similarity" (higher is better) or "distance"
// (lower is better); distance is converted so larger always means more
// relevant.
func documentScore(doc *ai.Document) *float64 {
	if doc.Metadata == nil {
		return nil
	}
	if v, ok := numeric(doc.Metadata["similarity"]); ok {
		return &v
	}
	if v, ok := numeric(doc.Metadata["distance"]); ok {
		score := 1 - v
		return &score
	}
	return nil
}

func numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}
