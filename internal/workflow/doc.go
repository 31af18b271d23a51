// Package workflow implements the agentic retrieval loop as an explicit
// state machine.
//
// One run moves through a small, fixed state space:
//
//	START → DECIDE → RETRIEVE → GRADE → (ANSWER | REWRITE) → END
//	                    ↑                        │
//	                    └──────── DECIDE ←───────┘
//
//	DECIDE    ask the model whether retrieval is needed at all
//	RETRIEVE  fan out across all configured vector stores, merge results
//	GRADE     binary-grade each passage, accumulate the relevant ones
//	REWRITE   reformulate the query and loop back to DECIDE, bounded
//	ANSWER    generate the final grounded (or best-effort) answer
//
// Each run owns its state exclusively; concurrent runs share only the
// stateless LLM client and store backends, so no cross-run synchronization
// exists. Iteration is bounded by MaxSearches and MaxRewrites, validated at
// construction. Every transition is recorded in a step trace returned to
// the caller.
package workflow
