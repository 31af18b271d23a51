package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hlinh96it/agentic-rag/internal/retrieval"
)

// fakeLLM scripts the four model calls per-method.
type fakeLLM struct {
	mu sync.Mutex

	decideFn   func(query string) (Decision, error)
	gradeFn    func(query string, p retrieval.Passage) (bool, error)
	rewriteFn  func(original, current string) (string, error)
	generateFn func(query string, passages []retrieval.Passage) (string, error)

	decideCalls   int
	gradeCalls    int
	rewriteCalls  int
	generateCalls int

	lastGenerated []retrieval.Passage
}

func (f *fakeLLM) Decide(_ context.Context, query string, _ []Turn) (Decision, error) {
	f.mu.Lock()
	f.decideCalls++
	f.mu.Unlock()
	if f.decideFn == nil {
		return DecisionRetrieve, nil
	}
	return f.decideFn(query)
}

func (f *fakeLLM) Grade(_ context.Context, query string, p retrieval.Passage) (bool, error) {
	f.mu.Lock()
	f.gradeCalls++
	f.mu.Unlock()
	if f.gradeFn == nil {
		return true, nil
	}
	return f.gradeFn(query, p)
}

func (f *fakeLLM) Rewrite(_ context.Context, original, current string, _ []Turn) (string, error) {
	f.mu.Lock()
	f.rewriteCalls++
	f.mu.Unlock()
	if f.rewriteFn == nil {
		return current, nil
	}
	return f.rewriteFn(original, current)
}

func (f *fakeLLM) Generate(_ context.Context, query string, _ []Turn, passages []retrieval.Passage) (string, error) {
	f.mu.Lock()
	f.generateCalls++
	f.lastGenerated = passages
	f.mu.Unlock()
	if f.generateFn == nil {
		return "generated answer", nil
	}
	return f.generateFn(query, passages)
}

// fakeSearcher returns one scripted round per Search call, recording the
// query for each.
type fakeSearcher struct {
	mu      sync.Mutex
	rounds  [][]retrieval.Passage
	err     error
	queries []string
}

func (f *fakeSearcher) Search(_ context.Context, query string) ([]retrieval.Passage, []retrieval.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query)

	if f.err != nil {
		return nil, []retrieval.Report{{Store: "docs", Err: f.err}}, f.err
	}

	round := len(f.queries) - 1
	var passages []retrieval.Passage
	if round < len(f.rounds) {
		passages = f.rounds[round]
	}
	return passages, []retrieval.Report{{Store: "docs", Count: len(passages)}}, nil
}

func passage(id string) retrieval.Passage {
	return retrieval.Passage{SourceID: id, Content: "content of " + id, Store: "docs"}
}

func newTestEngine(t *testing.T, llm LLM, searcher Searcher, maxSearches, maxRewrites int) *Engine {
	t.Helper()
	e, err := New(Config{
		LLM:         llm,
		Searcher:    searcher,
		MaxSearches: maxSearches,
		MaxRewrites: maxRewrites,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return e
}

func stepNames(steps []Step) []string {
	names := make([]string, len(steps))
	for i, s := range steps {
		names[i] = s.Name + ":" + s.Status
	}
	return names
}

func TestNewValidation(t *testing.T) {
	llm := &fakeLLM{}
	searcher := &fakeSearcher{}

	tests := []struct {
		name    string
		cfg     Config
		wantErr error
	}{
		{
			name:    "missing llm",
			cfg:     Config{Searcher: searcher, MaxSearches: 3},
			wantErr: ErrNilLLM,
		},
		{
			name:    "missing searcher",
			cfg:     Config{LLM: llm, MaxSearches: 3},
			wantErr: ErrNilSearcher,
		},
		{
			name:    "zero max searches",
			cfg:     Config{LLM: llm, Searcher: searcher, MaxSearches: 0},
			wantErr: ErrInvalidMaxSearches,
		},
		{
			name:    "negative max rewrites",
			cfg:     Config{LLM: llm, Searcher: searcher, MaxSearches: 3, MaxRewrites: -1},
			wantErr: ErrInvalidMaxRewrites,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.cfg); !errors.Is(err, tt.wantErr) {
				t.Errorf("New() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestRunEmptyQuestion(t *testing.T) {
	e := newTestEngine(t, &fakeLLM{}, &fakeSearcher{}, 3, 1)

	for _, q := range []string{"", "   ", "\n\t"} {
		if _, err := e.Run(context.Background(), Request{Question: q}); !errors.Is(err, ErrEmptyQuestion) {
			t.Errorf("Run(%q) error = %v, want ErrEmptyQuestion", q, err)
		}
	}
}

func TestRunDirectAnswer(t *testing.T) {
	llm := &fakeLLM{
		decideFn: func(string) (Decision, error) { return DecisionAnswer, nil },
		generateFn: func(_ string, passages []retrieval.Passage) (string, error) {
			if len(passages) != 0 {
				t.Errorf("direct answer received %d passages, want 0", len(passages))
			}
			return "hello!", nil
		},
	}
	searcher := &fakeSearcher{}
	e := newTestEngine(t, llm, searcher, 3, 1)

	result, err := e.Run(context.Background(), Request{Question: "hi"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if result.Answer != "hello!" {
		t.Errorf("answer = %q", result.Answer)
	}
	if result.SearchCount != 0 || result.RewriteCount != 0 {
		t.Errorf("counters = %d/%d, want 0/0", result.SearchCount, result.RewriteCount)
	}
	if len(result.RetrievedDocuments) != 0 {
		t.Errorf("retrieved documents = %d, want 0", len(result.RetrievedDocuments))
	}
	if len(searcher.queries) != 0 {
		t.Errorf("searcher called %d times, want 0", len(searcher.queries))
	}

	want := []string{
		StepAnalyze + ":" + StatusCompleted,
		StepAnswer + ":" + StatusInProgress,
		StepAnswer + ":" + StatusCompleted,
	}
	got := stepNames(result.ProcessingSteps)
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("steps = %v, want %v", got, want)
	}
}

func TestRunRetrievalHappyPath(t *testing.T) {
	llm := &fakeLLM{
		generateFn: func(_ string, passages []retrieval.Passage) (string, error) {
			return fmt.Sprintf("answer from %d passages", len(passages)), nil
		},
	}
	searcher := &fakeSearcher{rounds: [][]retrieval.Passage{
		{passage("d1"), passage("d2")},
	}}
	e := newTestEngine(t, llm, searcher, 3, 1)

	result, err := e.Run(context.Background(), Request{Question: "what is in the docs?"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if result.Answer != "answer from 2 passages" {
		t.Errorf("answer = %q", result.Answer)
	}
	if result.SearchCount != 1 {
		t.Errorf("search count = %d, want 1", result.SearchCount)
	}
	if len(result.RetrievedDocuments) != 2 {
		t.Errorf("retrieved documents = %d, want 2", len(result.RetrievedDocuments))
	}
	if llm.gradeCalls != 2 {
		t.Errorf("grade calls = %d, want 2", llm.gradeCalls)
	}

	want := []string{
		StepAnalyze + ":" + StatusCompleted,
		StepSearch + ":" + StatusInProgress,
		StepSearch + ":" + StatusCompleted,
		StepGrade + ":" + StatusInProgress,
		StepGrade + ":" + StatusCompleted,
		StepAnswer + ":" + StatusInProgress,
		StepAnswer + ":" + StatusCompleted,
	}
	got := stepNames(result.ProcessingSteps)
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("steps = %v, want %v", got, want)
	}
}

func TestRunRewriteLoop(t *testing.T) {
	llm := &fakeLLM{
		gradeFn: func(_ string, p retrieval.Passage) (bool, error) {
			// First round's passage is irrelevant; the rewritten query's hit
			// is relevant.
			return p.SourceID == "good", nil
		},
		rewriteFn: func(original, current string) (string, error) {
			return "rewritten: " + original, nil
		},
	}
	searcher := &fakeSearcher{rounds: [][]retrieval.Passage{
		{passage("bad")},
		{passage("good")},
	}}
	e := newTestEngine(t, llm, searcher, 3, 1)

	result, err := e.Run(context.Background(), Request{Question: "vague question"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if result.SearchCount != 2 {
		t.Errorf("search count = %d, want 2", result.SearchCount)
	}
	if result.RewriteCount != 1 {
		t.Errorf("rewrite count = %d, want 1", result.RewriteCount)
	}
	if len(result.RetrievedDocuments) != 1 || result.RetrievedDocuments[0].SourceID != "good" {
		t.Errorf("retrieved documents = %+v", result.RetrievedDocuments)
	}

	// The second search runs with the rewritten query; the rewrite sees the
	// immutable original.
	if len(searcher.queries) != 2 || searcher.queries[1] != "rewritten: vague question" {
		t.Errorf("searcher queries = %v", searcher.queries)
	}

	// Rewrite loops back through DECIDE before searching again.
	analyzes := 0
	for _, s := range result.ProcessingSteps {
		if s.Name == StepAnalyze {
			analyzes++
		}
	}
	if analyzes != 2 {
		t.Errorf("analyze steps = %d, want 2 (rewrite re-enters decide)", analyzes)
	}
}

func TestRunBudgetExhaustedAnswersAnyway(t *testing.T) {
	llm := &fakeLLM{
		gradeFn: func(string, retrieval.Passage) (bool, error) { return false, nil },
		generateFn: func(_ string, passages []retrieval.Passage) (string, error) {
			if len(passages) != 0 {
				t.Errorf("generate received %d passages, want 0", len(passages))
			}
			return "best-effort answer", nil
		},
	}
	searcher := &fakeSearcher{rounds: [][]retrieval.Passage{
		{passage("r1")}, {passage("r2")}, {passage("r3")},
	}}
	e := newTestEngine(t, llm, searcher, 2, 5)

	result, err := e.Run(context.Background(), Request{Question: "unanswerable"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if result.Answer != "best-effort answer" {
		t.Errorf("answer = %q", result.Answer)
	}
	if result.SearchCount != 2 {
		t.Errorf("search count = %d, want max of 2", result.SearchCount)
	}
	if result.RewriteCount != 1 {
		t.Errorf("rewrite count = %d, want 1", result.RewriteCount)
	}
	if len(result.RetrievedDocuments) != 0 {
		t.Errorf("retrieved documents = %d, want 0", len(result.RetrievedDocuments))
	}
}

func TestRunRewriteBudgetZero(t *testing.T) {
	llm := &fakeLLM{
		gradeFn: func(string, retrieval.Passage) (bool, error) { return false, nil },
	}
	searcher := &fakeSearcher{rounds: [][]retrieval.Passage{{passage("r1")}}}
	e := newTestEngine(t, llm, searcher, 3, 0)

	result, err := e.Run(context.Background(), Request{Question: "q"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if llm.rewriteCalls != 0 {
		t.Errorf("rewrite calls = %d, want 0", llm.rewriteCalls)
	}
	if result.SearchCount != 1 {
		t.Errorf("search count = %d, want 1", result.SearchCount)
	}
}

func TestRunDeduplicatesRelevantPassages(t *testing.T) {
	// Two stores returning the same document yields one accumulated copy.
	llm := &fakeLLM{}
	searcher := &fakeSearcher{rounds: [][]retrieval.Passage{
		{passage("shared"), passage("shared"), passage("fresh")},
	}}
	e := newTestEngine(t, llm, searcher, 3, 1)

	result, err := e.Run(context.Background(), Request{Question: "q"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(result.RetrievedDocuments) != 2 {
		t.Fatalf("retrieved documents = %d, want 2 after dedup", len(result.RetrievedDocuments))
	}
	if result.RetrievedDocuments[0].SourceID != "shared" || result.RetrievedDocuments[1].SourceID != "fresh" {
		t.Errorf("documents = %+v, want accumulation order preserved", result.RetrievedDocuments)
	}
}

func TestRunRetrievalTotalFailure(t *testing.T) {
	llm := &fakeLLM{
		generateFn: func(_ string, passages []retrieval.Passage) (string, error) {
			if len(passages) != 0 {
				t.Errorf("generate received %d passages after total failure", len(passages))
			}
			return "degraded answer", nil
		},
	}
	searcher := &fakeSearcher{err: retrieval.ErrAllStoresFailed}
	e := newTestEngine(t, llm, searcher, 3, 1)

	result, err := e.Run(context.Background(), Request{Question: "q"})
	if err != nil {
		t.Fatalf("Run() error = %v, total store failure must degrade, not abort", err)
	}
	if result.Answer != "degraded answer" {
		t.Errorf("answer = %q", result.Answer)
	}

	var sawFailedSearch bool
	for _, s := range result.ProcessingSteps {
		if s.Name == StepSearch && s.Status == StatusFailed {
			sawFailedSearch = true
		}
	}
	if !sawFailedSearch {
		t.Error("trace missing failed search step")
	}
	if llm.gradeCalls != 0 {
		t.Errorf("grade calls = %d, want 0 after total retrieval failure", llm.gradeCalls)
	}
}

func TestRunDecideFailureDefaultsToRetrieve(t *testing.T) {
	llm := &fakeLLM{
		decideFn: func(string) (Decision, error) {
			return DecisionRetrieve, errors.New("model unavailable")
		},
	}
	searcher := &fakeSearcher{rounds: [][]retrieval.Passage{{passage("d1")}}}
	e := newTestEngine(t, llm, searcher, 3, 1)

	result, err := e.Run(context.Background(), Request{Question: "q"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	// One decide plus one retry, both failing.
	if llm.decideCalls != 2 {
		t.Errorf("decide calls = %d, want 2 (one retry)", llm.decideCalls)
	}
	if result.SearchCount != 1 {
		t.Errorf("search count = %d, want 1 (failure defaults to retrieval)", result.SearchCount)
	}
	if result.ProcessingSteps[0].Status != StatusFailed {
		t.Errorf("first step status = %q, want failed", result.ProcessingSteps[0].Status)
	}
}

func TestRunGradeFailureTreatedNotRelevant(t *testing.T) {
	llm := &fakeLLM{
		gradeFn: func(_ string, p retrieval.Passage) (bool, error) {
			if p.SourceID == "broken" {
				return false, errors.New("grading timeout")
			}
			return true, nil
		},
	}
	searcher := &fakeSearcher{rounds: [][]retrieval.Passage{
		{passage("broken"), passage("ok")},
	}}
	e := newTestEngine(t, llm, searcher, 3, 1)

	result, err := e.Run(context.Background(), Request{Question: "q"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(result.RetrievedDocuments) != 1 || result.RetrievedDocuments[0].SourceID != "ok" {
		t.Errorf("retrieved documents = %+v, want only the gradable passage", result.RetrievedDocuments)
	}
}

func TestRunRewriteFailureAnswersWithContext(t *testing.T) {
	llm := &fakeLLM{
		gradeFn:   func(string, retrieval.Passage) (bool, error) { return false, nil },
		rewriteFn: func(string, string) (string, error) { return "", errors.New("rewrite broken") },
	}
	searcher := &fakeSearcher{rounds: [][]retrieval.Passage{{passage("r1")}}}
	e := newTestEngine(t, llm, searcher, 3, 1)

	result, err := e.Run(context.Background(), Request{Question: "q"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.SearchCount != 1 {
		t.Errorf("search count = %d, want 1 (failed rewrite goes straight to answer)", result.SearchCount)
	}
	if result.RewriteCount != 0 {
		t.Errorf("rewrite count = %d, want 0 for a failed rewrite", result.RewriteCount)
	}
}

func TestRunEmptyRewriteFallsBackToOriginal(t *testing.T) {
	llm := &fakeLLM{
		gradeFn: func(_ string, p retrieval.Passage) (bool, error) {
			return p.SourceID == "second", nil
		},
		rewriteFn: func(string, string) (string, error) { return "   ", nil },
	}
	searcher := &fakeSearcher{rounds: [][]retrieval.Passage{
		{passage("first")},
		{passage("second")},
	}}
	e := newTestEngine(t, llm, searcher, 3, 1)

	_, err := e.Run(context.Background(), Request{Question: "original question"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(searcher.queries) != 2 || searcher.queries[1] != "original question" {
		t.Errorf("queries = %v, want empty rewrite to fall back to the original", searcher.queries)
	}
}

func TestRunAnswerFailure(t *testing.T) {
	llm := &fakeLLM{
		decideFn:   func(string) (Decision, error) { return DecisionAnswer, nil },
		generateFn: func(string, []retrieval.Passage) (string, error) { return "", errors.New("model down") },
	}
	e := newTestEngine(t, llm, &fakeSearcher{}, 3, 1)

	_, err := e.Run(context.Background(), Request{Question: "q"})
	if !errors.Is(err, ErrAnswerFailed) {
		t.Fatalf("Run() error = %v, want ErrAnswerFailed", err)
	}
	if llm.generateCalls != 2 {
		t.Errorf("generate calls = %d, want 2 (one retry)", llm.generateCalls)
	}
}

func TestRunEmptyAnswerIsFailure(t *testing.T) {
	llm := &fakeLLM{
		decideFn:   func(string) (Decision, error) { return DecisionAnswer, nil },
		generateFn: func(string, []retrieval.Passage) (string, error) { return "  \n ", nil },
	}
	e := newTestEngine(t, llm, &fakeSearcher{}, 3, 1)

	if _, err := e.Run(context.Background(), Request{Question: "q"}); !errors.Is(err, ErrAnswerFailed) {
		t.Fatalf("Run() error = %v, want ErrAnswerFailed for blank answer", err)
	}
}

func TestRunAnswerRetrySucceeds(t *testing.T) {
	attempts := 0
	llm := &fakeLLM{
		decideFn: func(string) (Decision, error) { return DecisionAnswer, nil },
		generateFn: func(string, []retrieval.Passage) (string, error) {
			attempts++
			if attempts == 1 {
				return "", errors.New("transient")
			}
			return "recovered", nil
		},
	}
	e := newTestEngine(t, llm, &fakeSearcher{}, 3, 1)

	result, err := e.Run(context.Background(), Request{Question: "q"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Answer != "recovered" {
		t.Errorf("answer = %q", result.Answer)
	}
}

func TestRunCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := newTestEngine(t, &fakeLLM{}, &fakeSearcher{}, 3, 1)
	if _, err := e.Run(ctx, Request{Question: "q"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
}

func TestRunTraceTimestampsStrictlyIncreasing(t *testing.T) {
	// A frozen clock is the worst case: every stamp must still advance.
	frozen := time.Unix(1756500000, 0)
	e, err := New(Config{
		LLM:         &fakeLLM{},
		Searcher:    &fakeSearcher{rounds: [][]retrieval.Passage{{passage("d1")}}},
		MaxSearches: 3,
		MaxRewrites: 1,
		Clock:       func() time.Time { return frozen },
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	result, err := e.Run(context.Background(), Request{Question: "q"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(result.ProcessingSteps) < 2 {
		t.Fatalf("trace too short: %d steps", len(result.ProcessingSteps))
	}
	for i := 1; i < len(result.ProcessingSteps); i++ {
		prev, cur := result.ProcessingSteps[i-1], result.ProcessingSteps[i]
		if cur.Timestamp <= prev.Timestamp {
			t.Errorf("timestamp[%d] = %v not after timestamp[%d] = %v",
				i, cur.Timestamp, i-1, prev.Timestamp)
		}
	}
}

func TestRunConcurrent(t *testing.T) {
	llm := &fakeLLM{
		generateFn: func(query string, _ []retrieval.Passage) (string, error) {
			return "answer to " + query, nil
		},
	}
	searcher := &fakeSearcher{rounds: [][]retrieval.Passage{
		{passage("d1")}, {passage("d2")}, {passage("d3")}, {passage("d4")},
	}}
	e := newTestEngine(t, llm, searcher, 3, 1)

	var wg sync.WaitGroup
	for i := range 4 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			q := fmt.Sprintf("question %d", i)
			result, err := e.Run(context.Background(), Request{Question: q})
			if err != nil {
				t.Errorf("Run(%q) error = %v", q, err)
				return
			}
			if !strings.HasSuffix(result.Answer, q) {
				t.Errorf("answer %q does not match question %q", result.Answer, q)
			}
		}(i)
	}
	wg.Wait()
}

func TestDecisionString(t *testing.T) {
	if DecisionAnswer.String() != "direct_answer" {
		t.Errorf("DecisionAnswer.String() = %q", DecisionAnswer.String())
	}
	if DecisionRetrieve.String() != "need_retrieval" {
		t.Errorf("DecisionRetrieve.String() = %q", DecisionRetrieve.String())
	}
}
