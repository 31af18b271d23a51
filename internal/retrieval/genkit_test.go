package retrieval

import (
	"testing"

	"github.com/firebase/genkit/go/ai"
)

func TestDocumentID(t *testing.T) {
	tests := []struct {
		name string
		doc  *ai.Document
		want string
	}{
		{
			name: "id from metadata",
			doc:  ai.DocumentFromText("x", map[string]any{"id": "doc-7"}),
			want: "doc-7",
		},
		{
			name: "source fallback",
			doc:  ai.DocumentFromText("x", map[string]any{"source": "notes.md"}),
			want: "notes.md",
		},
		{
			name: "id wins over source",
			doc:  ai.DocumentFromText("x", map[string]any{"id": "doc-1", "source": "notes.md"}),
			want: "doc-1",
		},
		{
			name: "positional fallback without metadata",
			doc:  ai.DocumentFromText("x", nil),
			want: "docs#3",
		},
		{
			name: "positional fallback for empty id",
			doc:  ai.DocumentFromText("x", map[string]any{"id": ""}),
			want: "docs#3",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := documentID(tt.doc, "docs", 3); got != tt.want {
				t.Errorf("documentID() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDocumentScore(t *testing.T) {
	tests := []struct {
		name string
		meta map[string]any
		want *float64
	}{
		{
			name: "similarity passes through",
			meta: map[string]any{"similarity": 0.83},
			want: ptr(0.83),
		},
		{
			name: "distance is inverted",
			meta: map[string]any{"distance": 0.2},
			want: ptr(0.8),
		},
		{
			name: "integer similarity",
			meta: map[string]any{"similarity": 1},
			want: ptr(1.0),
		},
		{
			name: "no metadata",
			meta: nil,
			want: nil,
		},
		{
			name: "non-numeric similarity",
			meta: map[string]any{"similarity": "high"},
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := documentScore(ai.DocumentFromText("x", tt.meta))
			switch {
			case tt.want == nil && got != nil:
				t.Errorf("documentScore() = %v, want nil", *got)
			case tt.want != nil && got == nil:
				t.Errorf("documentScore() = nil, want %v", *tt.want)
			case tt.want != nil && abs(*got-*tt.want) > 1e-9:
				t.Errorf("documentScore() = %v, want %v", *got, *tt.want)
			}
		})
	}
}

func TestDocumentText(t *testing.T) {
	doc := &ai.Document{Content: []*ai.Part{
		ai.NewTextPart("hello "),
		ai.NewTextPart("world"),
	}}
	if got := documentText(doc); got != "hello world" {
		t.Errorf("documentText() = %q", got)
	}
}

func ptr(f float64) *float64 { return &f }

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
