package vector

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubEmbedder struct {
	vec []float32
	err error
}

func (s stubEmbedder) Embed(context.Context, string) ([]float32, error) {
	return s.vec, s.err
}

type stubQuerier struct {
	sql  string
	args []any
	err  error
}

func (q *stubQuerier) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	q.sql = sql
	q.args = args
	return nil, q.err
}

func TestSimilaritySearchZeroK(t *testing.T) {
	s := &PGVectorStore{embedder: stubEmbedder{err: errors.New("must not be called")}}

	chunks, err := s.SimilaritySearch(context.Background(), "anything", 0)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestSimilaritySearchEmbedError(t *testing.T) {
	q := &stubQuerier{}
	s := &PGVectorStore{db: q, embedder: stubEmbedder{err: errors.New("quota exceeded")}, collection: "docs"}

	_, err := s.SimilaritySearch(context.Background(), "pressure", 4)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to embed query")
	assert.Empty(t, q.sql)
}

func TestSimilaritySearchQueryArgs(t *testing.T) {
	q := &stubQuerier{err: errors.New("connection refused")}
	s := &PGVectorStore{db: q, embedder: stubEmbedder{vec: []float32{0.1, 0.2}}, collection: "sports_psychology_docs"}

	_, err := s.SimilaritySearch(context.Background(), "pressure", 4)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "similarity query failed")

	require.Len(t, q.args, 3)
	assert.Equal(t, "sports_psychology_docs", q.args[0])
	assert.Equal(t, 4, q.args[2])
	assert.Contains(t, q.sql, "ORDER BY e.embedding <=> $2")
}

func TestPingWithoutPool(t *testing.T) {
	s := &PGVectorStore{}
	assert.Error(t, s.Ping(context.Background()))
	s.Close()
}
