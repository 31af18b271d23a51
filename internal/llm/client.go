// Package llm implements the workflow's language-model contract on top of
// Genkit. One Client serves all four call shapes (decide, grade, rewrite,
// generate) against a single configured model.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"golang.org/x/time/rate"

	"github.com/hlinh96it/agentic-rag/internal/log"
	"github.com/hlinh96it/agentic-rag/internal/retrieval"
	"github.com/hlinh96it/agentic-rag/internal/workflow"
)

// Context truncation limits. Grading sees less context than answering:
// a relevance judgment doesn't need the full passage set.
const (
	DefaultGradeContextChars  = 2000
	DefaultAnswerContextChars = 3000

	// DefaultCallTimeout bounds a single model invocation.
	DefaultCallTimeout = 60 * time.Second
)

// Config contains all required parameters for the Client.
type Config struct {
	Genkit    *genkit.Genkit
	ModelName string

	// CallTimeout bounds each model call. 0 = DefaultCallTimeout.
	CallTimeout time.Duration

	// Limiter optionally rate-limits model calls across all four shapes.
	// nil disables proactive limiting.
	Limiter *rate.Limiter

	Logger log.Logger // nil = discard
}

// Client implements workflow.LLM via genkit.Generate.
//
// Client is stateless after construction and safe for concurrent use.
type Client struct {
	g           *genkit.Genkit
	modelName   string
	callTimeout time.Duration
	limiter     *rate.Limiter
	logger      log.Logger
}

// New creates a Client. Genkit instance and model name are required.
func New(cfg Config) (*Client, error) {
	if cfg.Genkit == nil {
		return nil, errors.New("genkit instance is required")
	}
	if cfg.ModelName == "" {
		return nil, errors.New("model name is required")
	}

	callTimeout := cfg.CallTimeout
	if callTimeout <= 0 {
		callTimeout = DefaultCallTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}

	return &Client{
		g:           cfg.Genkit,
		modelName:   cfg.ModelName,
		callTimeout: callTimeout,
		limiter:     cfg.Limiter,
		logger:      logger,
	}, nil
}

// ModelName returns the configured model identifier.
func (c *Client) ModelName() string { return c.modelName }

// Decide implements workflow.LLM.
func (c *Client) Decide(ctx context.Context, query string, history []workflow.Turn) (workflow.Decision, error) {
	prompt := fmt.Sprintf(decidePrompt, formatHistory(history), query)

	text, err := c.generate(ctx, prompt)
	if err != nil {
		return workflow.DecisionRetrieve, fmt.Errorf("decide: %w", err)
	}

	decision := parseDecision(text)
	c.logger.Debug("routing decision", "decision", decision)
	if decision == "ANSWER" {
		return workflow.DecisionAnswer, nil
	}
	return workflow.DecisionRetrieve, nil
}

// Grade implements workflow.LLM. Ambiguous model output grades false.
func (c *Client) Grade(ctx context.Context, query string, passage retrieval.Passage) (bool, error) {
	content := truncate(passage.Content, DefaultGradeContextChars)
	prompt := fmt.Sprintf(gradePrompt, content, query)

	text, err := c.generate(ctx, prompt)
	if err != nil {
		return false, fmt.Errorf("grade %q: %w", passage.SourceID, err)
	}

	relevant := parseYesNo(text)
	c.logger.Debug("passage graded", "source", passage.SourceID, "relevant", relevant)
	return relevant, nil
}

// Rewrite implements workflow.LLM.
func (c *Client) Rewrite(ctx context.Context, originalQuery, currentQuery string, history []workflow.Turn) (string, error) {
	prompt := fmt.Sprintf(rewritePrompt, formatHistory(history), originalQuery, currentQuery)

	text, err := c.generate(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("rewrite: %w", err)
	}

	rewritten := strings.Trim(stripCodeFences(text), `"`)
	c.logger.Debug("question rewritten", "length", len(rewritten))
	return rewritten, nil
}

// Generate implements workflow.LLM. With no passages it answers best-effort
// from general knowledge; with passages it grounds the answer in them.
func (c *Client) Generate(ctx context.Context, query string, history []workflow.Turn, passages []retrieval.Passage) (string, error) {
	var prompt string
	if len(passages) == 0 {
		prompt = fmt.Sprintf(answerDirectPrompt, formatHistory(history), query)
	} else {
		prompt = fmt.Sprintf(answerGroundedPrompt, formatHistory(history), query, formatContext(passages))
	}

	text, err := c.generate(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("generate answer: %w", err)
	}
	return text, nil
}

// generate issues one model call with rate limiting and a timeout.
func (c *Client) generate(ctx context.Context, prompt string) (string, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limit wait: %w", err)
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	start := time.Now()
	resp, err := genkit.Generate(callCtx, c.g,
		ai.WithModelName(c.modelName),
		ai.WithPrompt(prompt),
	)
	if err != nil {
		return "", fmt.Errorf("model call: %w", err)
	}

	c.logger.Debug("model call complete", "elapsed", time.Since(start))
	return strings.TrimSpace(resp.Text()), nil
}

// formatHistory renders conversation turns for prompt inclusion.
// Returns "" for empty history so prompts degrade to the bare question.
func formatHistory(history []workflow.Turn) string {
	if len(history) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("Conversation so far:\n")
	for _, turn := range history {
		switch turn.Role {
		case workflow.RoleAssistant:
			b.WriteString("Assistant: ")
		default:
			b.WriteString("User: ")
		}
		b.WriteString(turn.Content)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	return b.String()
}

// formatContext renders passages as numbered blocks with provenance,
// bounded by the answer context limit.
func formatContext(passages []retrieval.Passage) string {
	var b strings.Builder
	for i, p := range passages {
		if b.Len() >= DefaultAnswerContextChars {
			break
		}
		fmt.Fprintf(&b, "[%d] (source: %s)\n%s\n\n", i+1, p.SourceID, p.Content)
	}

	out := b.String()
	if len(out) > DefaultAnswerContextChars {
		out = out[:DefaultAnswerContextChars] + "..."
	}
	return out
}
