package core

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/peakmind/coach/internal/metrics"
	"github.com/peakmind/coach/internal/resilience"
	"github.com/peakmind/coach/internal/speech"
)

type Audio struct {
	Data        []byte
	ContentType string
	VoiceID     string
}

// SpeechService surfaces every upstream failure as a *SynthesisError;
// there is no meaningful fallback audio.
type SpeechService struct {
	synth        speech.Synthesizer
	defaultVoice string
	breaker      *resilience.Breaker
	metrics      *metrics.Collector
	logger       *zap.Logger
}

func NewSpeechService(synth speech.Synthesizer, defaultVoice string, m *metrics.Collector, logger *zap.Logger) *SpeechService {
	return &SpeechService{
		synth:        synth,
		defaultVoice: defaultVoice,
		breaker:      resilience.NewBreaker(resilience.DefaultBreakerConfig("speech"), logger),
		metrics:      m,
		logger:       logger.With(zap.String("component", "speech")),
	}
}

func (s *SpeechService) Synthesize(ctx context.Context, text, voiceID string) (*Audio, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}
	if voiceID == "" {
		voiceID = s.defaultVoice
	}

	start := time.Now()
	data, err := resilience.Call(ctx, s.breaker, func() ([]byte, error) {
		return s.synth.Synthesize(ctx, text, voiceID)
	})
	elapsed := time.Since(start)

	if err != nil {
		outcome := resilience.Outcome(ctx, err)
		s.metrics.ObserveUpstream("speech", outcome, elapsed)
		s.logger.Error("Speech synthesis failed",
			zap.String("voice_id", voiceID), zap.String("outcome", outcome), zap.Error(err))
		return nil, &SynthesisError{VoiceID: voiceID, Err: err}
	}

	s.metrics.ObserveUpstream("speech", "success", elapsed)
	return &Audio{Data: data, ContentType: "audio/mpeg", VoiceID: voiceID}, nil
}
