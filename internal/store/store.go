// Package store persists embedded rule chunks in PostgreSQL with pgvector
// and serves cosine-similarity retrieval over them.
package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/grimoire-ai/grimoire/internal/log"
)

// querier is the common interface satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// StoredChunk is one row of the rule_chunks table.
type StoredChunk struct {
	ID       uuid.UUID
	Title    string
	Category string
	Source   string
	Content  string
	// Embedding is nil when embedding generation was skipped; the row
	// is then written without a vector and excluded from retrieval.
	Embedding []float32
	SourceID  string
	Metadata  map[string]any
}

// RetrievedChunk is one retrieval result, best matches first.
type RetrievedChunk struct {
	ID         uuid.UUID
	Title      string
	Category   string
	Source     string
	Content    string
	Similarity float64
}

// Store reads and writes rule chunks. Safe for concurrent use.
type Store struct {
	db     querier
	logger log.Logger
}

// New creates a Store on an existing pool.
func New(pool *pgxpool.Pool, logger log.Logger) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{db: pool, logger: logger}, nil
}

// NewPool opens a pgx pool with pgvector types registered on every
// connection.
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// WriteChunks inserts rows in fixed-size batches, one multi-row INSERT
// per batch. The embedding column is omitted entirely when the rows carry
// no vectors.
func (s *Store) WriteChunks(ctx context.Context, rows []StoredChunk, batchSize int) error {
	if len(rows) == 0 {
		return nil
	}
	if batchSize <= 0 {
		batchSize = 50
	}

	withEmbeddings := rows[0].Embedding != nil
	for start := 0; start < len(rows); start += batchSize {
		end := min(start+batchSize, len(rows))
		batch := rows[start:end]

		sql, args := buildInsert(batch, withEmbeddings)
		if _, err := s.db.Exec(ctx, sql, args...); err != nil {
			return fmt.Errorf("insert batch at row %d: %w", start, err)
		}
		s.logger.Debug("wrote chunk batch", "done", end, "total", len(rows))
	}
	return nil
}

// buildInsert renders one multi-row INSERT for a batch.
func buildInsert(batch []StoredChunk, withEmbeddings bool) (string, []any) {
	cols := []string{"id", "title", "category", "source", "content", "source_id", "metadata"}
	if withEmbeddings {
		cols = append(cols, "embedding")
	}

	var b strings.Builder
	b.WriteString("INSERT INTO rule_chunks (")
	b.WriteString(strings.Join(cols, ", "))
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(batch)*len(cols))
	for i, row := range batch {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for j := range cols {
			if j > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "$%d", len(args)+j+1)
		}
		b.WriteByte(')')

		args = append(args, row.ID, row.Title, row.Category, row.Source, row.Content, row.SourceID, row.Metadata)
		if withEmbeddings {
			args = append(args, pgvector.NewVector(row.Embedding))
		}
	}
	return b.String(), args
}

// Clear deletes every row. Used only under an explicit full-reload flag.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM rule_chunks`); err != nil {
		return fmt.Errorf("clearing chunks: %w", err)
	}
	return nil
}

// Count returns the total row count.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRow(ctx, `SELECT count(*) FROM rule_chunks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting chunks: %w", err)
	}
	return n, nil
}

const (
	// DefaultTopK is the retrieval result cap when no override is given.
	DefaultTopK = 8
	// DefaultSimilarityThreshold is the default cosine similarity floor.
	DefaultSimilarityThreshold = 0.3
)

type searchParams struct {
	topK      int
	threshold float64
	category  string
}

// SearchOption overrides a retrieval default.
type SearchOption func(*searchParams)

// WithTopK caps the number of returned rows.
func WithTopK(k int) SearchOption {
	return func(p *searchParams) {
		if k > 0 {
			p.topK = k
		}
	}
}

// WithThreshold sets the similarity floor.
func WithThreshold(t float64) SearchOption {
	return func(p *searchParams) { p.threshold = t }
}

// WithCategory restricts results to one category.
func WithCategory(category string) SearchOption {
	return func(p *searchParams) { p.category = category }
}

// Search returns the chunks nearest to the query vector by cosine
// distance, best first, restricted to rows at or above the similarity
// floor. Rows without an embedding never rank.
func (s *Store) Search(ctx context.Context, vector []float32, opts ...SearchOption) ([]RetrievedChunk, error) {
	p := searchParams{topK: DefaultTopK, threshold: DefaultSimilarityThreshold}
	for _, opt := range opts {
		opt(&p)
	}

	sql, args := buildSearch(vector, p)
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("searching chunks: %w", err)
	}
	defer rows.Close()

	var out []RetrievedChunk
	for rows.Next() {
		var c RetrievedChunk
		if err := rows.Scan(&c.ID, &c.Title, &c.Category, &c.Source, &c.Content, &c.Similarity); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading chunks: %w", err)
	}
	return out, nil
}

func buildSearch(vector []float32, p searchParams) (string, []any) {
	vec := pgvector.NewVector(vector)
	args := []any{vec, p.threshold}

	var b strings.Builder
	b.WriteString(`SELECT id, title, category, source, content, 1 - (embedding <=> $1) AS similarity
	 FROM rule_chunks
	 WHERE embedding IS NOT NULL
	   AND 1 - (embedding <=> $1) >= $2`)
	if p.category != "" {
		args = append(args, p.category)
		fmt.Fprintf(&b, "\n\t   AND category = $%d", len(args))
	}
	args = append(args, p.topK)
	fmt.Fprintf(&b, "\n\t ORDER BY embedding <=> $1\n\t LIMIT $%d", len(args))

	return b.String(), args
}
