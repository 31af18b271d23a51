package workflow

import (
	"time"

	"github.com/hlinh96it/agentic-rag/internal/retrieval"
)

// Conversation roles accepted in Request.History.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one prior exchange in the conversation, supplied by the caller
// and read-only to the engine.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is the input for one workflow run.
type Request struct {
	// Question is the user's natural-language query. Immutable; rewrites
	// operate on a working copy.
	Question string `json:"question"`

	// History is the prior conversation, oldest first. May be empty.
	History []Turn `json:"chat_history,omitempty"`
}

// Step trace vocabulary. Names mirror the public processing_steps contract.
const (
	StepAnalyze = "analyze_question"
	StepSearch  = "search_documents"
	StepGrade   = "grade_documents"
	StepRewrite = "rewrite_question"
	StepAnswer  = "generate_answer"

	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Step is one recorded state-machine transition.
type Step struct {
	Name string `json:"step_name"`
	// Status is one of StatusInProgress, StatusCompleted, StatusFailed.
	Status string `json:"status"`
	// Timestamp is Unix seconds with sub-second precision, strictly
	// increasing within one run.
	Timestamp float64 `json:"timestamp"`
	Detail    string  `json:"details,omitempty"`
}

// Result is the immutable output of a completed run.
type Result struct {
	Answer string `json:"answer"`

	// RetrievedDocuments are exactly the passages the answer was grounded
	// in: the accumulated relevant set, in accumulation order.
	RetrievedDocuments []retrieval.Passage `json:"retrieved_documents"`

	// ProcessingSteps is the ordered trace of the path actually taken.
	ProcessingSteps []Step `json:"processing_steps"`

	SearchCount  int `json:"search_count"`
	RewriteCount int `json:"rewrite_count"`
}

// state identifies a node of the machine.
type state int

const (
	stateDecide state = iota
	stateRetrieve
	stateGrade
	stateRewrite
	stateAnswer
	stateEnd
)

func (s state) String() string {
	switch s {
	case stateDecide:
		return "decide"
	case stateRetrieve:
		return "retrieve"
	case stateGrade:
		return "grade"
	case stateRewrite:
		return "rewrite"
	case stateAnswer:
		return "answer"
	case stateEnd:
		return "end"
	default:
		return "unknown"
	}
}

// runState is the mutable record threaded through one run.
// Created at run start, discarded when Run returns; never shared.
type runState struct {
	originalQuery string
	currentQuery  string
	history       []Turn

	// candidates holds the current round's merged retrieval output,
	// replaced on every RETRIEVE.
	candidates []retrieval.Passage

	// relevant accumulates graded-relevant passages across rounds.
	// Append-only; deduplicated by SourceID via seen.
	relevant []retrieval.Passage
	seen     map[string]struct{}

	searchCount  int
	rewriteCount int

	answer string

	steps     []Step
	clock     func() time.Time
	lastStamp time.Time
}

func newRunState(req Request, clock func() time.Time) *runState {
	return &runState{
		originalQuery: req.Question,
		currentQuery:  req.Question,
		history:       req.History,
		seen:          make(map[string]struct{}),
		clock:         clock,
	}
}

// record appends one step to the trace. Timestamps are forced strictly
// increasing even under a coarse clock.
func (rs *runState) record(name, status, detail string) {
	now := rs.clock()
	if !now.After(rs.lastStamp) {
		now = rs.lastStamp.Add(time.Microsecond)
	}
	rs.lastStamp = now

	rs.steps = append(rs.steps, Step{
		Name:      name,
		Status:    status,
		Timestamp: float64(now.UnixNano()) / 1e9,
		Detail:    detail,
	})
}

// accumulate appends passages graded relevant, skipping any SourceID seen
// in an earlier round. Returns the number actually added.
func (rs *runState) accumulate(passages []retrieval.Passage) int {
	added := 0
	for _, p := range passages {
		if _, dup := rs.seen[p.SourceID]; dup {
			continue
		}
		rs.seen[p.SourceID] = struct{}{}
		rs.relevant = append(rs.relevant, p)
		added++
	}
	return added
}

// result assembles the immutable Result from the final state.
func (rs *runState) result() *Result {
	docs := make([]retrieval.Passage, len(rs.relevant))
	copy(docs, rs.relevant)

	steps := make([]Step, len(rs.steps))
	copy(steps, rs.steps)

	return &Result{
		Answer:             rs.answer,
		RetrievedDocuments: docs,
		ProcessingSteps:    steps,
		SearchCount:        rs.searchCount,
		RewriteCount:       rs.rewriteCount,
	}
}
