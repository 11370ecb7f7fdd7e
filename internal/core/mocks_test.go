package core

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/peakmind/coach/internal/llm"
	"github.com/peakmind/coach/internal/store"
	"github.com/peakmind/coach/internal/vector"
)

type MockChatStore struct {
	mock.Mock
}

func (m *MockChatStore) GetProfile(ctx context.Context, userID string) (*store.Profile, error) {
	args := m.Called(ctx, userID)
	p, _ := args.Get(0).(*store.Profile)
	return p, args.Error(1)
}

func (m *MockChatStore) UpsertProfile(ctx context.Context, update store.ProfileUpdate) (*store.Profile, error) {
	args := m.Called(ctx, update)
	p, _ := args.Get(0).(*store.Profile)
	return p, args.Error(1)
}

func (m *MockChatStore) ListProfiles(ctx context.Context) ([]store.Profile, error) {
	args := m.Called(ctx)
	p, _ := args.Get(0).([]store.Profile)
	return p, args.Error(1)
}

func (m *MockChatStore) AppendMessage(ctx context.Context, userID string, role store.Role, content string) (*store.Message, error) {
	args := m.Called(ctx, userID, role, content)
	msg, _ := args.Get(0).(*store.Message)
	return msg, args.Error(1)
}

func (m *MockChatStore) AppendTurn(ctx context.Context, turn *store.Turn) error {
	args := m.Called(ctx, turn)
	return args.Error(0)
}

func (m *MockChatStore) ListMessages(ctx context.Context, userID string, limit int) ([]store.Message, error) {
	args := m.Called(ctx, userID, limit)
	msgs, _ := args.Get(0).([]store.Message)
	return msgs, args.Error(1)
}

type MockRetriever struct {
	mock.Mock
}

func (m *MockRetriever) Retrieve(ctx context.Context, query string) RetrievalResult {
	args := m.Called(ctx, query)
	return args.Get(0).(RetrievalResult)
}

type MockCompleter struct {
	mock.Mock
}

func (m *MockCompleter) Complete(ctx context.Context, prompt llm.Prompt) Completion {
	args := m.Called(ctx, prompt)
	return args.Get(0).(Completion)
}

type stubChatModel struct {
	text  string
	err   error
	calls int
	last  llm.Prompt
}

func (s *stubChatModel) Generate(_ context.Context, prompt llm.Prompt) (string, error) {
	s.calls++
	s.last = prompt
	return s.text, s.err
}

func (s *stubChatModel) Name() string { return "stub" }

type stubSearcher struct {
	chunks []vector.Chunk
	err    error
	gotK   int
}

func (s *stubSearcher) SimilaritySearch(_ context.Context, _ string, k int) ([]vector.Chunk, error) {
	s.gotK = k
	return s.chunks, s.err
}

type stubSynthesizer struct {
	audio     []byte
	err       error
	gotVoice  string
	gotText   string
	callCount int
}

func (s *stubSynthesizer) Synthesize(_ context.Context, text, voiceID string) ([]byte, error) {
	s.callCount++
	s.gotText = text
	s.gotVoice = voiceID
	return s.audio, s.err
}

func strPtr(s string) *string { return &s }

// blockingSearcher answers the fast query at once and holds every other
// query until its context is done.
type blockingSearcher struct {
	fast string
}

func (s *blockingSearcher) SimilaritySearch(ctx context.Context, query string, _ int) ([]vector.Chunk, error) {
	if query == s.fast {
		return []vector.Chunk{{Content: "Slow your exhale.", Source: "breathing.pdf"}}, nil
	}
	<-ctx.Done()
	return nil, ctx.Err()
}
