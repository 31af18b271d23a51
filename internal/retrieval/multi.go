package retrieval

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hlinh96it/agentic-rag/internal/log"
)

// ErrAllStoresFailed indicates that every configured store errored for a
// search. Callers degrade to answering without context rather than aborting.
var ErrAllStoresFailed = errors.New("all vector stores failed")

// ErrNoStores indicates Multi was constructed without any store.
var ErrNoStores = errors.New("no vector stores configured")

// DefaultStoreTimeout bounds a single store's search when the caller does
// not configure one.
const DefaultStoreTimeout = 10 * time.Second

// Report describes the outcome of one store's search within a fan-out.
// A failed store is reported, never propagated as a run-level error on its
// own.
type Report struct {
	Store string
	Count int
	Err   error
}

// Failed reports whether the store's search errored or timed out.
func (r Report) Failed() bool {
	return r.Err != nil
}

// MultiConfig configures a Multi searcher.
type MultiConfig struct {
	Stores       []Store
	StoreTimeout time.Duration // per-store search bound; 0 = DefaultStoreTimeout
	Merge        MergeStrategy // nil = MergeByScore
	Logger       log.Logger    // nil = discard
}

// Multi fans a query out across all configured stores concurrently and
// merges the results into a single ranking.
//
// Multi holds no mutable state after construction and is safe for
// concurrent use.
type Multi struct {
	stores  []Store
	timeout time.Duration
	merge   MergeStrategy
	logger  log.Logger
}

// NewMulti creates a fan-out searcher over the given stores.
// At least one store is required.
func NewMulti(cfg MultiConfig) (*Multi, error) {
	if len(cfg.Stores) == 0 {
		return nil, ErrNoStores
	}

	seen := make(map[string]struct{}, len(cfg.Stores))
	for _, s := range cfg.Stores {
		if _, dup := seen[s.Name()]; dup {
			return nil, fmt.Errorf("duplicate store name %q", s.Name())
		}
		seen[s.Name()] = struct{}{}
	}

	timeout := cfg.StoreTimeout
	if timeout <= 0 {
		timeout = DefaultStoreTimeout
	}
	merge := cfg.Merge
	if merge == nil {
		merge = MergeByScore
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}

	return &Multi{
		stores:  cfg.Stores,
		timeout: timeout,
		merge:   merge,
		logger:  logger,
	}, nil
}

// Stores returns the configured stores in configuration order.
func (m *Multi) Stores() []Store {
	return m.stores
}

// Search queries every store concurrently, waits for all of them (or their
// individual timeouts), and returns the merged ranking plus a per-store
// report in configuration order.
//
// A store failure yields an empty contribution and a Report entry.
// ErrAllStoresFailed is returned only when every store failed; the partial
// reports are still valid then.
func (m *Multi) Search(ctx context.Context, query string) ([]Passage, []Report, error) {
	perStore := make([][]Passage, len(m.stores))
	reports := make([]Report, len(m.stores))

	var wg sync.WaitGroup
	for i, store := range m.stores {
		wg.Add(1)
		go func(i int, store Store) {
			defer wg.Done()

			searchCtx, cancel := context.WithTimeout(ctx, m.timeout)
			defer cancel()

			passages, err := store.Search(searchCtx, query)
			if err != nil {
				m.logger.Warn("store search failed",
					"store", store.Name(),
					"error", err,
				)
				reports[i] = Report{Store: store.Name(), Err: err}
				return
			}

			// Never pass more than the store's configured k upstream,
			// even if the backend over-returns.
			if k := store.K(); k > 0 && len(passages) > k {
				passages = passages[:k]
			}
			for j := range passages {
				if passages[j].Store == "" {
					passages[j].Store = store.Name()
				}
			}

			perStore[i] = passages
			reports[i] = Report{Store: store.Name(), Count: len(passages)}
		}(i, store)
	}
	wg.Wait()

	failures := 0
	for _, r := range reports {
		if r.Failed() {
			failures++
		}
	}
	if failures == len(m.stores) {
		return nil, reports, ErrAllStoresFailed
	}

	merged := m.merge(perStore)
	m.logger.Debug("multi-store search complete",
		"stores", len(m.stores),
		"failures", failures,
		"passages", len(merged),
	)
	return merged, reports, nil
}
