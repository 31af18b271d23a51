package knowledge

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/pgvector/pgvector-go"
)

// DBTX is the subset of pgx connection behavior the queries need.
// Both *pgxpool.Pool and pgx.Tx satisfy it.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// UpsertDocumentParams holds the columns written by UpsertDocument.
type UpsertDocumentParams struct {
	ID        string
	Content   string
	Embedding *pgvector.Vector
	Metadata  []byte
	Namespace string
	CreatedAt pgtype.Timestamptz
}

// HybridSearchParams holds the inputs of a hybrid search query.
// DenseWeight and LexicalWeight scale the two ranking signals.
type HybridSearchParams struct {
	Embedding     *pgvector.Vector
	Query         string
	Namespace     string
	DenseWeight   float64
	LexicalWeight float64
	Limit         int32
}

// HybridSearchRow is one row returned by HybridSearch, ordered by Score
// descending.
type HybridSearchRow struct {
	ID        string
	Content   string
	Metadata  []byte
	CreatedAt pgtype.Timestamptz
	Score     float64
}

// Querier defines the database operations the Store depends on. Defining the
// interface at the consumer keeps the Store testable with an in-memory fake.
type Querier interface {
	UpsertDocument(ctx context.Context, arg UpsertDocumentParams) error
	HybridSearch(ctx context.Context, arg HybridSearchParams) ([]HybridSearchRow, error)
	DeleteDocument(ctx context.Context, id string) error
	CountDocuments(ctx context.Context, namespace string) (int64, error)
}

// Queries implements Querier against PostgreSQL. All statements are
// parameterized; no user input is interpolated into SQL.
type Queries struct {
	db DBTX
}

// NewQueries returns a Queries bound to the given connection or pool.
func NewQueries(db DBTX) *Queries {
	return &Queries{db: db}
}

const upsertDocumentSQL = `
INSERT INTO documents (id, content, embedding, metadata, namespace, created_at)
VALUES ($1, $2, $3, $4, $5, COALESCE($6, now()))
ON CONFLICT (id) DO UPDATE SET
    content    = EXCLUDED.content,
    embedding  = EXCLUDED.embedding,
    metadata   = EXCLUDED.metadata,
    namespace  = EXCLUDED.namespace,
    created_at = EXCLUDED.created_at
`

// UpsertDocument inserts or replaces a document by ID.
func (q *Queries) UpsertDocument(ctx context.Context, arg UpsertDocumentParams) error {
	var createdAt any
	if arg.CreatedAt.Valid {
		createdAt = arg.CreatedAt
	}
	_, err := q.db.Exec(ctx, upsertDocumentSQL,
		arg.ID, arg.Content, arg.Embedding, arg.Metadata, arg.Namespace, createdAt)
	if err != nil {
		return fmt.Errorf("upsert document: %w", err)
	}
	return nil
}

// Dense similarity is cosine (1 - cosine distance); lexical rank uses
// ts_rank_cd over an english text-search vector. The two signals are blended
// in SQL so ordering and LIMIT happen on the database side.
const hybridSearchSQL = `
SELECT id, content, metadata, created_at,
       ($4 * (1 - (embedding <=> $1)))
     + ($5 * ts_rank_cd(to_tsvector('english', content), plainto_tsquery('english', $2))) AS score
FROM documents
WHERE ($3 = '' OR namespace = $3)
ORDER BY score DESC
LIMIT $6
`

// HybridSearch returns the top documents for a query under a weighted blend
// of dense and lexical relevance. An empty namespace matches every document.
func (q *Queries) HybridSearch(ctx context.Context, arg HybridSearchParams) ([]HybridSearchRow, error) {
	rows, err := q.db.Query(ctx, hybridSearchSQL,
		arg.Embedding, arg.Query, arg.Namespace, arg.DenseWeight, arg.LexicalWeight, arg.Limit)
	if err != nil {
		return nil, fmt.Errorf("hybrid search: %w", err)
	}
	defer rows.Close()

	var results []HybridSearchRow
	for rows.Next() {
		var r HybridSearchRow
		if err := rows.Scan(&r.ID, &r.Content, &r.Metadata, &r.CreatedAt, &r.Score); err != nil {
			return nil, fmt.Errorf("scan search row: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate search rows: %w", err)
	}
	return results, nil
}

// DeleteDocument removes a document by ID. Deleting a missing ID is not an
// error.
func (q *Queries) DeleteDocument(ctx context.Context, id string) error {
	_, err := q.db.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return nil
}

// CountDocuments counts documents in a namespace. An empty namespace counts
// all documents.
func (q *Queries) CountDocuments(ctx context.Context, namespace string) (int64, error) {
	var count int64
	err := q.db.QueryRow(ctx,
		`SELECT count(*) FROM documents WHERE ($1 = '' OR namespace = $1)`, namespace).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return count, nil
}
