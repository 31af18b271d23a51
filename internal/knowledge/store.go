package knowledge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/pgvector/pgvector-go"
	"google.golang.org/genai"

	"github.com/hlinh96it/agentic-rag/internal/log"
	"github.com/hlinh96it/agentic-rag/internal/retrieval"
)

// Configuration errors returned by New.
var (
	ErrNilQuerier  = errors.New("knowledge: querier is required")
	ErrNilEmbedder = errors.New("knowledge: embedder is required")
	ErrEmptyName   = errors.New("knowledge: store name is required")
	ErrBadWeights  = errors.New("knowledge: dense and lexical weights must be non-negative and sum to 1")
)

// Defaults applied by New when the corresponding Config field is zero.
const (
	DefaultK             = 2
	DefaultDenseWeight   = 0.6
	DefaultLexicalWeight = 0.4
	DefaultQueryTimeout  = 10 * time.Second
)

// Config configures a Store.
type Config struct {
	// Querier executes the database operations. Required.
	Querier Querier

	// Embedder generates vectors for documents and queries. Required.
	Embedder ai.Embedder

	// Name identifies the store in traces and API responses. Required.
	Name string

	// Description tells the decision model what the store contains.
	Description string

	// K is the number of passages a search returns. Defaults to DefaultK.
	K int

	// Namespace restricts every query to one partition. Empty searches all.
	Namespace string

	// DenseWeight and LexicalWeight blend the two ranking signals. Both zero
	// means use the defaults; otherwise they must sum to 1.
	DenseWeight   float64
	LexicalWeight float64

	// QueryTimeout bounds each search, embedding included. Defaults to
	// DefaultQueryTimeout.
	QueryTimeout time.Duration

	// EmbedDimensions truncates Gemini embeddings to the schema's vector
	// width. Zero keeps the model's native dimensionality; set to 0 for
	// providers that don't accept Gemini embed options.
	EmbedDimensions int32

	// Logger defaults to a no-op logger.
	Logger log.Logger
}

// Store is a hybrid vector + full-text document store scoped to one
// namespace. It implements retrieval.Store.
type Store struct {
	queries       Querier
	embedder      ai.Embedder
	name          string
	description   string
	k             int
	namespace     string
	denseWeight   float64
	lexicalWeight float64
	timeout       time.Duration
	embedDims     int32
	logger        log.Logger
}

// New validates cfg and returns a Store.
func New(cfg Config) (*Store, error) {
	if cfg.Querier == nil {
		return nil, ErrNilQuerier
	}
	if cfg.Embedder == nil {
		return nil, ErrNilEmbedder
	}
	if cfg.Name == "" {
		return nil, ErrEmptyName
	}
	if cfg.K <= 0 {
		cfg.K = DefaultK
	}
	if cfg.DenseWeight == 0 && cfg.LexicalWeight == 0 {
		cfg.DenseWeight = DefaultDenseWeight
		cfg.LexicalWeight = DefaultLexicalWeight
	}
	if cfg.DenseWeight < 0 || cfg.LexicalWeight < 0 ||
		math.Abs(cfg.DenseWeight+cfg.LexicalWeight-1) > 1e-9 {
		return nil, fmt.Errorf("%w: got dense=%v lexical=%v", ErrBadWeights, cfg.DenseWeight, cfg.LexicalWeight)
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = DefaultQueryTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NewNop()
	}

	return &Store{
		queries:       cfg.Querier,
		embedder:      cfg.Embedder,
		name:          cfg.Name,
		description:   cfg.Description,
		k:             cfg.K,
		namespace:     cfg.Namespace,
		denseWeight:   cfg.DenseWeight,
		lexicalWeight: cfg.LexicalWeight,
		timeout:       cfg.QueryTimeout,
		embedDims:     cfg.EmbedDimensions,
		logger:        cfg.Logger,
	}, nil
}

// Name implements retrieval.Store.
func (s *Store) Name() string { return s.name }

// Description implements retrieval.Store.
func (s *Store) Description() string { return s.description }

// K implements retrieval.Store.
func (s *Store) K() int { return s.k }

// Search implements retrieval.Store. It embeds the query, runs the weighted
// hybrid ranking inside the store's namespace, and returns up to K passages
// ordered by blended score.
func (s *Store) Search(ctx context.Context, query string) ([]retrieval.Passage, error) {
	queryCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	embedding, err := s.embed(queryCtx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	limit := s.k
	if limit > math.MaxInt32 {
		limit = math.MaxInt32
	}
	rows, err := s.queries.HybridSearch(queryCtx, HybridSearchParams{
		Embedding:     embedding,
		Query:         query,
		Namespace:     s.namespace,
		DenseWeight:   s.denseWeight,
		LexicalWeight: s.lexicalWeight,
		Limit:         int32(limit),
	})
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", s.name, err)
	}

	passages := make([]retrieval.Passage, 0, len(rows))
	for _, row := range rows {
		score := row.Score
		passages = append(passages, retrieval.Passage{
			SourceID: row.ID,
			Content:  row.Content,
			Score:    &score,
		})
	}
	s.logger.Debug("hybrid search done",
		"store", s.name, "namespace", s.namespace, "results", len(passages))
	return passages, nil
}

// Add embeds and upserts a document. The store's namespace is applied when
// the document does not carry one.
func (s *Store) Add(ctx context.Context, doc Document) error {
	if doc.ID == "" {
		return errors.New("knowledge: document id is required")
	}
	if doc.Content == "" {
		return fmt.Errorf("knowledge: document %q has no content", doc.ID)
	}

	embedding, err := s.embed(ctx, doc.Content)
	if err != nil {
		return fmt.Errorf("embed document %q: %w", doc.ID, err)
	}

	metadata, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata for %q: %w", doc.ID, err)
	}

	namespace := doc.Namespace
	if namespace == "" {
		namespace = s.namespace
	}

	err = s.queries.UpsertDocument(ctx, UpsertDocumentParams{
		ID:        doc.ID,
		Content:   doc.Content,
		Embedding: embedding,
		Metadata:  metadata,
		Namespace: namespace,
		CreatedAt: pgtype.Timestamptz{Time: doc.CreatedAt, Valid: !doc.CreatedAt.IsZero()},
	})
	if err != nil {
		return fmt.Errorf("upsert document %q: %w", doc.ID, err)
	}

	s.logger.Debug("added document",
		"id", doc.ID, "namespace", namespace, "content_length", len(doc.Content))
	return nil
}

// Delete removes a document by ID.
func (s *Store) Delete(ctx context.Context, docID string) error {
	if err := s.queries.DeleteDocument(ctx, docID); err != nil {
		return fmt.Errorf("delete document %q: %w", docID, err)
	}
	s.logger.Debug("deleted document", "id", docID)
	return nil
}

// Count returns the number of documents visible to this store.
func (s *Store) Count(ctx context.Context) (int64, error) {
	return s.queries.CountDocuments(ctx, s.namespace)
}

func (s *Store) embed(ctx context.Context, text string) (*pgvector.Vector, error) {
	req := &ai.EmbedRequest{
		Input: []*ai.Document{ai.DocumentFromText(text, nil)},
	}
	if s.embedDims > 0 {
		dim := s.embedDims
		req.Options = &genai.EmbedContentConfig{OutputDimensionality: &dim}
	}
	resp, err := s.embedder.Embed(ctx, req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("embedding timeout: %w", err)
		}
		return nil, err
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return nil, errors.New("embedder returned no embedding")
	}
	v := pgvector.NewVector(resp.Embeddings[0].Embedding)
	return &v, nil
}
