package testutil

import (
	"context"
	"sync"

	"github.com/hlinh96it/agentic-rag/internal/retrieval"
)

// MemStore is an in-memory retrieval.Store for testing. It returns a fixed
// set of passages for every query, or an error when one is configured.
//
// Thread-safe for concurrent use.
type MemStore struct {
	mu          sync.Mutex
	name        string
	description string
	k           int
	passages    []retrieval.Passage
	err         error
	queries     []string
}

// NewMemStore creates a store with the given identity and result size.
func NewMemStore(name, description string, k int) *MemStore {
	return &MemStore{name: name, description: description, k: k}
}

// SetPassages sets the passages every search returns.
func (s *MemStore) SetPassages(passages []retrieval.Passage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.passages = passages
}

// SetError makes every search fail with err. Pass nil to clear.
func (s *MemStore) SetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Queries returns a copy of all queries seen so far.
func (s *MemStore) Queries() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]string, len(s.queries))
	copy(cp, s.queries)
	return cp
}

// Name implements retrieval.Store.
func (s *MemStore) Name() string { return s.name }

// Description implements retrieval.Store.
func (s *MemStore) Description() string { return s.description }

// K implements retrieval.Store.
func (s *MemStore) K() int { return s.k }

// Search implements retrieval.Store.
func (s *MemStore) Search(_ context.Context, query string) ([]retrieval.Passage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = append(s.queries, query)
	if s.err != nil {
		return nil, s.err
	}
	cp := make([]retrieval.Passage, len(s.passages))
	copy(cp, s.passages)
	return cp, nil
}
