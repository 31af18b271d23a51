package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hlinh96it/agentic-rag/internal/log"
	"github.com/hlinh96it/agentic-rag/internal/retrieval"
)

// Sentinel errors crossing the engine boundary.
// All other failures degrade inside the run and surface only in the trace.
var (
	// ErrAnswerFailed indicates answer generation failed after retry.
	// Fatal: the answer text is the entire deliverable.
	ErrAnswerFailed = errors.New("answer generation failed")

	// ErrEmptyQuestion indicates the request carried no question text.
	ErrEmptyQuestion = errors.New("empty question")

	// Construction-time configuration errors.
	ErrNilLLM             = errors.New("llm client is required")
	ErrNilSearcher        = errors.New("searcher is required")
	ErrInvalidMaxSearches = errors.New("max searches must be at least 1")
	ErrInvalidMaxRewrites = errors.New("max rewrites must not be negative")
)

// DefaultGradeConcurrency bounds the passage-grading fan-out.
const DefaultGradeConcurrency = 4

// Config contains all required parameters for the Engine.
type Config struct {
	LLM      LLM
	Searcher Searcher

	// MaxSearches bounds RETRIEVE rounds per run. Must be >= 1.
	MaxSearches int

	// MaxRewrites bounds REWRITE rounds per run. Must be >= 0.
	MaxRewrites int

	// GradeConcurrency bounds concurrent Grade calls.
	// 0 = DefaultGradeConcurrency.
	GradeConcurrency int

	Logger log.Logger // nil = discard

	// Clock overrides the trace timestamp source. Tests only.
	Clock func() time.Time
}

func (cfg Config) validate() error {
	if cfg.LLM == nil {
		return ErrNilLLM
	}
	if cfg.Searcher == nil {
		return ErrNilSearcher
	}
	if cfg.MaxSearches < 1 {
		return ErrInvalidMaxSearches
	}
	if cfg.MaxRewrites < 0 {
		return ErrInvalidMaxRewrites
	}
	return nil
}

// Engine drives the decide/retrieve/grade/rewrite/answer loop.
//
// All configuration is captured immutably at construction; each Run owns
// its state exclusively, so one Engine serves concurrent runs without
// synchronization.
type Engine struct {
	llm         LLM
	searcher    Searcher
	maxSearches int
	maxRewrites int
	gradeConc   int
	logger      log.Logger
	clock       func() time.Time
}

// New creates an Engine, rejecting invalid configuration up front so runs
// never fail on configuration.
func New(cfg Config) (*Engine, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	gradeConc := cfg.GradeConcurrency
	if gradeConc <= 0 {
		gradeConc = DefaultGradeConcurrency
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	return &Engine{
		llm:         cfg.LLM,
		searcher:    cfg.Searcher,
		maxSearches: cfg.MaxSearches,
		maxRewrites: cfg.MaxRewrites,
		gradeConc:   gradeConc,
		logger:      logger,
		clock:       clock,
	}, nil
}

// MaxSearches returns the configured search bound.
func (e *Engine) MaxSearches() int { return e.maxSearches }

// MaxRewrites returns the configured rewrite bound.
func (e *Engine) MaxRewrites() int { return e.maxRewrites }

// Run executes one workflow invocation and returns the assembled result.
//
// Recoverable dependency failures degrade per step and are visible only in
// the result's trace; the error return is reserved for canceled contexts,
// empty input, and ErrAnswerFailed.
func (e *Engine) Run(ctx context.Context, req Request) (*Result, error) {
	if strings.TrimSpace(req.Question) == "" {
		return nil, ErrEmptyQuestion
	}

	runID := uuid.New()
	logger := e.logger.With("run_id", runID.String())
	logger.Info("run started",
		"question_length", len(req.Question),
		"history_turns", len(req.History),
	)

	rs := newRunState(req, e.clock)

	current := stateDecide
	for current != stateEnd {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("run canceled in state %s: %w", current, err)
		}

		var next state
		switch current {
		case stateDecide:
			next = e.decide(ctx, rs, logger)
		case stateRetrieve:
			next = e.retrieve(ctx, rs, logger)
		case stateGrade:
			next = e.grade(ctx, rs, logger)
		case stateRewrite:
			next = e.rewrite(ctx, rs, logger)
		case stateAnswer:
			if err := e.answer(ctx, rs, logger); err != nil {
				return nil, err
			}
			next = stateEnd
		default:
			return nil, fmt.Errorf("invalid state %d", current)
		}

		logger.Debug("transition", "from", current, "to", next)
		current = next
	}

	result := rs.result()
	logger.Info("run completed",
		"search_count", result.SearchCount,
		"rewrite_count", result.RewriteCount,
		"documents", len(result.RetrievedDocuments),
		"steps", len(result.ProcessingSteps),
	)
	return result, nil
}

// decide asks the model whether retrieval is needed at all.
// Degradation: an unknown outcome is treated as needing retrieval, which is
// safer than silently skipping it.
func (e *Engine) decide(ctx context.Context, rs *runState, logger log.Logger) state {
	decision, err := retryOnce(ctx, func(ctx context.Context) (Decision, error) {
		return e.llm.Decide(ctx, rs.currentQuery, rs.history)
	})
	if err != nil {
		logger.Warn("decision failed, defaulting to retrieval", "error", err)
		rs.record(StepAnalyze, StatusFailed, "analysis failed; defaulting to document search")
		decision = DecisionRetrieve
	} else {
		rs.record(StepAnalyze, StatusCompleted, "determined search strategy: "+decision.String())
	}

	if decision == DecisionAnswer {
		return stateAnswer
	}

	// The loop structure already keeps searchCount below the bound when a
	// rewrite re-enters DECIDE; this guard covers the invariant regardless.
	if rs.searchCount >= e.maxSearches {
		rs.record(StepAnalyze, StatusCompleted,
			fmt.Sprintf("maximum search attempts (%d) reached", e.maxSearches))
		return stateAnswer
	}
	return stateRetrieve
}

// retrieve fans the current query out across all stores.
// A total store failure degrades straight to ANSWER with empty context.
func (e *Engine) retrieve(ctx context.Context, rs *runState, logger log.Logger) state {
	rs.record(StepSearch, StatusInProgress,
		fmt.Sprintf("searching documents (attempt %d/%d)", rs.searchCount+1, e.maxSearches))
	rs.searchCount++

	passages, reports, err := e.searcher.Search(ctx, rs.currentQuery)
	if err != nil {
		logger.Warn("retrieval failed for all stores", "error", err)
		rs.record(StepSearch, StatusFailed, "all vector stores failed; answering without retrieved context")
		rs.candidates = nil
		return stateAnswer
	}

	failed := 0
	for _, r := range reports {
		if r.Failed() {
			failed++
		}
	}

	detail := fmt.Sprintf("found %d candidate passages across %d stores", len(passages), len(reports))
	if failed > 0 {
		detail += fmt.Sprintf(" (%d store(s) unavailable)", failed)
	}
	rs.record(StepSearch, StatusCompleted, detail)

	rs.candidates = passages
	return stateGrade
}

// grade judges every candidate concurrently and accumulates the relevant
// ones, then picks the next state from the accumulated set and remaining
// budget.
func (e *Engine) grade(ctx context.Context, rs *runState, logger log.Logger) state {
	rs.record(StepGrade, StatusInProgress,
		fmt.Sprintf("evaluating relevance of %d passages", len(rs.candidates)))

	verdicts := e.gradeAll(ctx, rs.currentQuery, rs.candidates, logger)

	var kept []retrieval.Passage
	for i, relevant := range verdicts {
		if relevant {
			kept = append(kept, rs.candidates[i])
		}
	}
	added := rs.accumulate(kept)

	rs.record(StepGrade, StatusCompleted,
		fmt.Sprintf("%d of %d passages relevant (%d new)", len(kept), len(rs.candidates), added))

	if len(rs.relevant) > 0 {
		return stateAnswer
	}
	if rs.rewriteCount < e.maxRewrites && rs.searchCount < e.maxSearches {
		return stateRewrite
	}

	logger.Info("no relevant passages and budget exhausted, answering anyway",
		"search_count", rs.searchCount,
		"rewrite_count", rs.rewriteCount,
	)
	return stateAnswer
}

// gradeAll fans Grade calls out with bounded concurrency and waits for all
// judgments. A failed judgment (after one retry) is not relevant.
func (e *Engine) gradeAll(ctx context.Context, query string, passages []retrieval.Passage, logger log.Logger) []bool {
	verdicts := make([]bool, len(passages))
	if len(passages) == 0 {
		return verdicts
	}

	sem := make(chan struct{}, e.gradeConc)
	var wg sync.WaitGroup
	for i, p := range passages {
		wg.Add(1)
		go func(i int, p retrieval.Passage) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			relevant, err := retryOnce(ctx, func(ctx context.Context) (bool, error) {
				return e.llm.Grade(ctx, query, p)
			})
			if err != nil {
				logger.Warn("grading failed, treating passage as not relevant",
					"source", p.SourceID,
					"error", err,
				)
				return
			}
			verdicts[i] = relevant
		}(i, p)
	}
	wg.Wait()
	return verdicts
}

// rewrite reformulates the query and loops back to DECIDE: a rewritten
// query may still turn out not to need retrieval.
// Degradation: a failed rewrite keeps the query and goes straight to ANSWER.
func (e *Engine) rewrite(ctx context.Context, rs *runState, logger log.Logger) state {
	rs.record(StepRewrite, StatusInProgress,
		fmt.Sprintf("refining question for better retrieval (attempt %d/%d)", rs.rewriteCount+1, e.maxRewrites))

	rewritten, err := retryOnce(ctx, func(ctx context.Context) (string, error) {
		return e.llm.Rewrite(ctx, rs.originalQuery, rs.currentQuery, rs.history)
	})
	if err != nil {
		logger.Warn("rewrite failed, answering with current query", "error", err)
		rs.record(StepRewrite, StatusFailed, "rewrite failed; answering with available context")
		return stateAnswer
	}

	rewritten = strings.TrimSpace(rewritten)
	if rewritten == "" {
		// Never search with an empty query.
		rewritten = rs.originalQuery
	}

	logger.Debug("question rewritten",
		"from_length", len(rs.currentQuery),
		"to_length", len(rewritten),
	)
	rs.currentQuery = rewritten
	rs.rewriteCount++
	rs.record(StepRewrite, StatusCompleted, "question refined for better document matching")
	return stateDecide
}

// answer generates the final text. This is the only step whose failure is
// fatal: there is no lower fallback for producing the deliverable.
func (e *Engine) answer(ctx context.Context, rs *runState, logger log.Logger) error {
	rs.record(StepAnswer, StatusInProgress,
		fmt.Sprintf("generating answer from %d relevant passages", len(rs.relevant)))

	text, err := retryOnce(ctx, func(ctx context.Context) (string, error) {
		out, genErr := e.llm.Generate(ctx, rs.originalQuery, rs.history, rs.relevant)
		if genErr != nil {
			return "", genErr
		}
		if strings.TrimSpace(out) == "" {
			return "", errors.New("model produced empty answer")
		}
		return out, nil
	})
	if err != nil {
		rs.record(StepAnswer, StatusFailed, "answer generation failed")
		logger.Error("answer generation failed", "error", err)
		return fmt.Errorf("%w: %w", ErrAnswerFailed, err)
	}

	rs.answer = text
	rs.record(StepAnswer, StatusCompleted, "answer generated successfully")
	return nil
}
