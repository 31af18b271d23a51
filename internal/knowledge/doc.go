// Package knowledge implements a document store over PostgreSQL + pgvector
// with hybrid retrieval: dense embedding similarity blended with lexical
// full-text rank under configurable weights.
//
// # Architecture
//
// Indexing and retrieval flow:
//
//	Document (content + metadata + namespace)
//	     |
//	     v
//	Embedding Generation (via AI Embedder)
//	     |
//	     v
//	Vector Storage (PostgreSQL + pgvector)
//	     |
//	     | (when searching)
//	     v
//	Query Embedding + Full-Text Query
//	     |
//	     v
//	Weighted Hybrid Ranking (dense * w1 + lexical * w2)
//	     |
//	     v
//	Ranked Passages (with blended scores)
//
// Each Store is scoped to a namespace, a partition key fixed at configuration
// time. Queries never choose their namespace; an empty namespace searches all
// documents.
//
// Store implements retrieval.Store and is safe for concurrent use.
//
// # Database Backend
//
// Requires PostgreSQL 14+ with the pgvector extension. The schema lives in
// db/migrations and is applied through golang-migrate at startup.
package knowledge
