// Package retrieval wraps named vector-store backends behind a uniform
// search contract and fans a query out across all of them.
//
// Architecture:
//
//	Store (interface)        one named backend: search(query) -> ranked passages
//	├── knowledge.Store      pgvector hybrid search (dense + lexical)
//	├── FromRetriever        bridge for a Genkit ai.Retriever
//	└── test fakes           in-memory stores (internal/testutil)
//
//	Multi                    concurrent fan-out over all configured stores,
//	                         per-store timeout, soft failure, merged ranking
//
// Failure semantics: a store that errors or times out contributes an empty
// result and is reported per store; Multi.Search returns ErrAllStoresFailed
// only when every configured store failed.
package retrieval
