package core

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/peakmind/coach/internal/metrics"
	"github.com/peakmind/coach/internal/resilience"
	"github.com/peakmind/coach/internal/vector"
)

const contextSeparator = "\n"

// RetrievalResult is the joined text of the retrieved chunks. Degraded is
// set when the search failed and Text is empty because of it.
type RetrievalResult struct {
	Text     string
	Sources  []string
	Degraded bool
}

type RAGService struct {
	searcher vector.Searcher
	k        int
	breaker  *resilience.Breaker
	metrics  *metrics.Collector
	logger   *zap.Logger
}

// NewRAGService accepts a nil searcher, in which case retrieval is off and
// every query yields empty context.
func NewRAGService(searcher vector.Searcher, k int, m *metrics.Collector, logger *zap.Logger) *RAGService {
	return &RAGService{
		searcher: searcher,
		k:        k,
		breaker:  resilience.NewBreaker(resilience.DefaultBreakerConfig("retrieval"), logger),
		metrics:  m,
		logger:   logger.With(zap.String("component", "rag")),
	}
}

// Retrieve never fails. Zero hits give an empty, non-degraded result.
func (s *RAGService) Retrieve(ctx context.Context, query string) RetrievalResult {
	if s.searcher == nil || strings.TrimSpace(query) == "" {
		return RetrievalResult{}
	}

	start := time.Now()
	chunks, err := resilience.Call(ctx, s.breaker, func() ([]vector.Chunk, error) {
		return s.searcher.SimilaritySearch(ctx, query, s.k)
	})
	elapsed := time.Since(start)

	if err != nil {
		outcome := resilience.Outcome(ctx, err)
		s.metrics.ObserveUpstream("retrieval", outcome, elapsed)
		if outcome == "canceled" {
			s.logger.Debug("Context retrieval canceled", zap.Duration("elapsed", elapsed))
			return RetrievalResult{Degraded: true}
		}
		s.logger.Warn("Context retrieval failed, continuing without context",
			zap.Error(err),
			zap.Duration("elapsed", elapsed),
		)
		return RetrievalResult{Degraded: true}
	}
	s.metrics.ObserveUpstream("retrieval", "success", elapsed)

	texts := make([]string, 0, len(chunks))
	sources := make([]string, 0, len(chunks))
	for _, c := range chunks {
		if strings.TrimSpace(c.Content) == "" {
			continue
		}
		texts = append(texts, c.Content)
		if c.Source != "" {
			sources = append(sources, c.Source)
		}
	}

	if len(texts) == 0 {
		s.logger.Debug("No relevant chunks found", zap.Int("k", s.k))
		return RetrievalResult{}
	}

	s.logger.Debug("Retrieved context", zap.Int("chunks", len(texts)), zap.Strings("sources", sources))
	return RetrievalResult{
		Text:    strings.Join(texts, contextSeparator),
		Sources: sources,
	}
}
