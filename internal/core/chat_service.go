package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/peakmind/coach/internal/llm"
	"github.com/peakmind/coach/internal/metrics"
	"github.com/peakmind/coach/internal/store"
	"github.com/peakmind/coach/internal/telemetry"
)

// Degradation reasons reported on a turn.
const (
	DegradedHistory    = "history"
	DegradedRetrieval  = "retrieval"
	DegradedCompletion = "completion"
)

type ChatStore interface {
	store.ProfileStore
	store.HistoryStore
}

type Retriever interface {
	Retrieve(ctx context.Context, query string) RetrievalResult
}

type Completer interface {
	Complete(ctx context.Context, prompt llm.Prompt) Completion
}

type ChatConfig struct {
	Instructions  string
	HistoryLimit  int
	FanoutTimeout time.Duration
}

type TurnResult struct {
	TurnID          string   `json:"turn_id"`
	Response        string   `json:"response"`
	Degraded        bool     `json:"degraded"`
	DegradedReasons []string `json:"degraded_reasons,omitempty"`
}

type ChatService struct {
	store     ChatStore
	retriever Retriever
	completer Completer
	cfg       ChatConfig
	metrics   *metrics.Collector
	logger    *zap.Logger
	now       func() time.Time
}

func NewChatService(st ChatStore, retriever Retriever, completer Completer, cfg ChatConfig, m *metrics.Collector, logger *zap.Logger) *ChatService {
	return &ChatService{
		store:     st,
		retriever: retriever,
		completer: completer,
		cfg:       cfg,
		metrics:   m,
		logger:    logger.With(zap.String("component", "chat")),
		now:       time.Now,
	}
}

// Chat runs one conversational turn for userID.
//
// The profile, the recent history and the retrieved context are fetched
// concurrently under a single timeout. A missing profile aborts the turn
// with store.ErrNotFound and cancels the other two reads; nothing is
// written in that case. A failed history read or search only degrades the
// turn. The user message and the reply are stored together in one write.
func (s *ChatService) Chat(ctx context.Context, userID, message string) (*TurnResult, error) {
	ctx, span := telemetry.Tracer("core").Start(ctx, "ChatService.Chat")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	var (
		profile    *store.Profile
		history    []store.Message
		historyErr error
		retrieval  RetrievalResult
	)

	fanoutCtx, cancel := context.WithTimeout(ctx, s.cfg.FanoutTimeout)
	defer cancel()
	g, gctx := errgroup.WithContext(fanoutCtx)

	g.Go(func() error {
		p, err := s.store.GetProfile(gctx, userID)
		if err != nil {
			return err
		}
		profile = p
		return nil
	})
	g.Go(func() error {
		h, err := s.store.ListMessages(gctx, userID, s.cfg.HistoryLimit)
		if err != nil {
			historyErr = err
			return nil
		}
		history = h
		return nil
	})
	g.Go(func() error {
		retrieval = s.retriever.Retrieve(gctx, message)
		return nil
	})

	if err := g.Wait(); err != nil {
		span.RecordError(err)
		if errors.Is(err, store.ErrNotFound) {
			span.SetStatus(codes.Error, "profile not found")
			return nil, err
		}
		span.SetStatus(codes.Error, "profile lookup failed")
		return nil, fmt.Errorf("failed to load profile for %s: %w", userID, err)
	}

	var reasons []string
	if historyErr != nil {
		s.logger.Warn("History read failed, continuing without history",
			zap.String("user_id", userID), zap.Error(historyErr))
		history = nil
		reasons = append(reasons, DegradedHistory)
	}
	if retrieval.Degraded {
		reasons = append(reasons, DegradedRetrieval)
	}

	prompt := ComposePrompt(s.cfg.Instructions, profile, history, retrieval.Text, message)

	completion := s.completer.Complete(ctx, prompt)
	if completion.Degraded {
		reasons = append(reasons, DegradedCompletion)
	}

	turn := store.NewTurn(userID, message, completion.Text, s.now())
	if err := s.store.AppendTurn(ctx, turn); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist failed")
		return nil, fmt.Errorf("failed to persist turn: %w", err)
	}

	for _, r := range reasons {
		s.metrics.IncDegraded(r)
	}
	span.SetAttributes(
		attribute.String("turn.id", turn.ID),
		attribute.Int("history.messages", len(history)),
		attribute.Bool("turn.degraded", len(reasons) > 0),
	)
	s.logger.Info("Turn completed",
		zap.String("user_id", userID),
		zap.String("turn_id", turn.ID),
		zap.Int("history", len(history)),
		zap.Int("sources", len(retrieval.Sources)),
		zap.Strings("degraded", reasons),
	)

	return &TurnResult{
		TurnID:          turn.ID,
		Response:        completion.Text,
		Degraded:        len(reasons) > 0,
		DegradedReasons: reasons,
	}, nil
}
