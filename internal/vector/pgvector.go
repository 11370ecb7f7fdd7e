// Package vector runs similarity search over the document embeddings that
// the ingestion tooling writes into Postgres.
package vector

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/peakmind/coach/internal/llm"
)

type Chunk struct {
	Content  string
	Source   string
	Distance float64
}

type Searcher interface {
	SimilaritySearch(ctx context.Context, query string, k int) ([]Chunk, error)
}

// The table layout is the one LangChain's PGVector store creates.
const similarityQuery = `
    SELECT e.document, COALESCE(e.cmetadata->>'source', ''), e.embedding <=> $2 AS distance
    FROM langchain_pg_embedding e
    JOIN langchain_pg_collection c ON c.uuid = e.collection_id
    WHERE c.name = $1
    ORDER BY e.embedding <=> $2
    LIMIT $3`

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type PGVectorStore struct {
	pool       *pgxpool.Pool
	db         querier
	embedder   llm.Embedder
	collection string
}

func NewPGVectorStore(ctx context.Context, dsn, collection string, embedder llm.Embedder) (*PGVectorStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid vector database url: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create vector database pool: %w", err)
	}
	return &PGVectorStore{pool: pool, db: pool, embedder: embedder, collection: collection}, nil
}

func (s *PGVectorStore) SimilaritySearch(ctx context.Context, query string, k int) ([]Chunk, error) {
	if k <= 0 {
		return nil, nil
	}
	embedding, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	rows, err := s.db.Query(ctx, similarityQuery, s.collection, pgvector.NewVector(embedding), k)
	if err != nil {
		return nil, fmt.Errorf("similarity query failed: %w", err)
	}
	defer rows.Close()

	chunks := make([]Chunk, 0, k)
	for rows.Next() {
		var c Chunk
		if err := rows.Scan(&c.Content, &c.Source, &c.Distance); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed reading chunks: %w", err)
	}
	return chunks, nil
}

func (s *PGVectorStore) Ping(ctx context.Context) error {
	if s.pool == nil {
		return errors.New("vector database pool is not initialised")
	}
	return s.pool.Ping(ctx)
}

func (s *PGVectorStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}
