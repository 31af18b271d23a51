package testutil

import (
	"context"
	"math"
	"testing"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
)

func TestMockLLMPatternMatching(t *testing.T) {
	ctx := context.Background()
	g := genkit.Init(ctx)

	mock := NewMockLLM("fallback answer")
	mock.AddResponse("capital of france", "Paris")
	mock.AddResponse("capital", "a capital city")
	model := mock.RegisterModel(g)

	tests := []struct {
		name   string
		prompt string
		want   string
	}{
		{"first match wins", "What is the capital of France?", "Paris"},
		{"later pattern", "Name any capital", "a capital city"},
		{"fallback", "Something unrelated", "fallback answer"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := genkit.Generate(ctx, g,
				ai.WithModel(model),
				ai.WithPrompt(tt.prompt))
			if err != nil {
				t.Fatalf("Generate: %v", err)
			}
			if got := resp.Text(); got != tt.want {
				t.Errorf("response = %q, want %q", got, tt.want)
			}
		})
	}

	calls := mock.Calls()
	if len(calls) != 3 {
		t.Fatalf("recorded %d calls, want 3", len(calls))
	}

	mock.Reset()
	if len(mock.Calls()) != 0 {
		t.Error("Reset did not clear calls")
	}
}

func TestMockEmbedderDeterminism(t *testing.T) {
	ctx := context.Background()
	g := genkit.Init(ctx)

	mock := NewMockEmbedder(8)
	embedder := mock.RegisterEmbedder(g)

	embed := func(text string) []float32 {
		t.Helper()
		resp, err := embedder.Embed(ctx, &ai.EmbedRequest{
			Input: []*ai.Document{ai.DocumentFromText(text, nil)},
		})
		if err != nil {
			t.Fatalf("Embed: %v", err)
		}
		if len(resp.Embeddings) != 1 {
			t.Fatalf("got %d embeddings, want 1", len(resp.Embeddings))
		}
		return resp.Embeddings[0].Embedding
	}

	a := embed("hello world")
	b := embed("hello world")
	c := embed("different text")

	if len(a) != 8 {
		t.Fatalf("dimension = %d, want 8", len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatal("same content produced different vectors")
		}
	}

	same := true
	for i := range a {
		if a[i] != c[i] {
			same = false
			break
		}
	}
	if same {
		t.Error("different content produced identical vectors")
	}

	// Hash-derived vectors are unit length.
	var norm float64
	for _, v := range a {
		norm += float64(v) * float64(v)
	}
	if math.Abs(math.Sqrt(norm)-1) > 1e-5 {
		t.Errorf("vector norm = %v, want 1", math.Sqrt(norm))
	}
}

func TestMockEmbedderExplicitVector(t *testing.T) {
	ctx := context.Background()
	g := genkit.Init(ctx)

	mock := NewMockEmbedder(3)
	mock.SetVector("pinned", []float32{1, 0, 0})
	embedder := mock.RegisterEmbedder(g)

	resp, err := embedder.Embed(ctx, &ai.EmbedRequest{
		Input: []*ai.Document{ai.DocumentFromText("pinned", nil)},
	})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	got := resp.Embeddings[0].Embedding
	want := []float32{1, 0, 0}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("embedding = %v, want %v", got, want)
		}
	}
}
