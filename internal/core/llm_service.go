package core

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/peakmind/coach/internal/llm"
	"github.com/peakmind/coach/internal/metrics"
	"github.com/peakmind/coach/internal/resilience"
)

// Completion is the model's answer. When Degraded is set, Text is the
// configured fallback rather than a generated reply.
type Completion struct {
	Text     string
	Degraded bool
}

// LLMService never returns an error to its caller: every failure is
// logged, counted and replaced with the fallback text.
type LLMService struct {
	model    llm.ChatModel
	breaker  *resilience.Breaker
	fallback string
	timeout  time.Duration
	metrics  *metrics.Collector
	logger   *zap.Logger
}

func NewLLMService(model llm.ChatModel, fallback string, timeout time.Duration, m *metrics.Collector, logger *zap.Logger) *LLMService {
	return &LLMService{
		model:    model,
		breaker:  resilience.NewBreaker(resilience.DefaultBreakerConfig("completion"), logger),
		fallback: fallback,
		timeout:  timeout,
		metrics:  m,
		logger:   logger.With(zap.String("component", "llm"), zap.String("model", model.Name())),
	}
}

func (s *LLMService) Complete(ctx context.Context, prompt llm.Prompt) Completion {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	text, err := resilience.Call(ctx, s.breaker, func() (string, error) {
		return s.model.Generate(ctx, prompt)
	})
	elapsed := time.Since(start)

	if err != nil {
		outcome := resilience.Outcome(ctx, err)
		s.metrics.ObserveUpstream("completion", outcome, elapsed)
		s.logger.Warn("Completion failed, answering with fallback",
			zap.Error(err),
			zap.String("outcome", outcome),
			zap.Duration("elapsed", elapsed),
		)
		return Completion{Text: s.fallback, Degraded: true}
	}

	s.metrics.ObserveUpstream("completion", "success", elapsed)
	s.logger.Debug("Completion generated", zap.Duration("elapsed", elapsed), zap.Int("chars", len(text)))
	return Completion{Text: text}
}
