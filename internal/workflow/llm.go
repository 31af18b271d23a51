package workflow

import (
	"context"

	"github.com/hlinh96it/agentic-rag/internal/retrieval"
)

// Decision is the closed outcome set of the DECIDE step. Only retrieval is
// ever offered as a capability, so this is an enum rather than open-ended
// tool dispatch.
type Decision int

const (
	// DecisionRetrieve means the question needs document retrieval.
	DecisionRetrieve Decision = iota

	// DecisionAnswer means the question can be answered directly
	// (greetings, general knowledge, arithmetic).
	DecisionAnswer
)

func (d Decision) String() string {
	if d == DecisionAnswer {
		return "direct_answer"
	}
	return "need_retrieval"
}

// LLM is the language-model client the engine consumes. Implementations
// must be stateless and safe for concurrent use; per-call retry beyond the
// engine's single retry is the client's own concern.
type LLM interface {
	// Decide judges whether the query needs retrieval at all.
	Decide(ctx context.Context, query string, history []Turn) (Decision, error)

	// Grade judges whether one retrieved passage is relevant to the query.
	// The contract is a strict boolean: implementations map ambiguous model
	// output to false.
	Grade(ctx context.Context, query string, passage retrieval.Passage) (bool, error)

	// Rewrite reformulates the query to improve retrieval, resolving
	// pronouns and ellipsis from history. May return "" on collapse; the
	// engine falls back to the original query.
	Rewrite(ctx context.Context, originalQuery, currentQuery string, history []Turn) (string, error)

	// Generate produces the final answer. With empty passages it answers
	// best-effort from general knowledge rather than refusing.
	Generate(ctx context.Context, query string, history []Turn, passages []retrieval.Passage) (string, error)
}

// Searcher is the retrieval fan-out the engine consumes.
// *retrieval.Multi satisfies it.
type Searcher interface {
	Search(ctx context.Context, query string) ([]retrieval.Passage, []retrieval.Report, error)
}

// retryOnce runs fn, and on failure retries exactly once with identical
// input. Canceled contexts are not retried.
func retryOnce[T any](ctx context.Context, fn func(context.Context) (T, error)) (T, error) {
	v, err := fn(ctx)
	if err == nil || ctx.Err() != nil {
		return v, err
	}
	return fn(ctx)
}
