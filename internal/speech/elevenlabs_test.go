package speech

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSynthesize(t *testing.T) {
	var got synthesisRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/text-to-speech/voice-123", r.URL.Path)
		assert.Equal(t, "xi-key", r.Header.Get("xi-api-key"))
		assert.Equal(t, "audio/mpeg", r.Header.Get("Accept"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("ID3fakeaudio"))
	}))
	defer srv.Close()

	c := NewClient("xi-key", 5*time.Second, WithBaseURL(srv.URL+"/"), WithModel("eleven_turbo_v2"))

	audio, err := c.Synthesize(context.Background(), "Breathe in slowly.", "voice-123")
	require.NoError(t, err)
	assert.Equal(t, []byte("ID3fakeaudio"), audio)
	assert.Equal(t, "Breathe in slowly.", got.Text)
	assert.Equal(t, "eleven_turbo_v2", got.ModelID)
}

func TestSynthesizeAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"detail":{"status":"invalid_api_key"}}`))
	}))
	defer srv.Close()

	c := NewClient("bad", 5*time.Second, WithBaseURL(srv.URL))

	_, err := c.Synthesize(context.Background(), "hello", "v")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Contains(t, apiErr.Body, "invalid_api_key")
}

func TestSynthesizeEmptyAudio(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient("k", 5*time.Second, WithBaseURL(srv.URL))

	_, err := c.Synthesize(context.Background(), "hello", "v")
	assert.Error(t, err)
}

func TestSynthesizeCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("audio"))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewClient("k", 5*time.Second, WithBaseURL(srv.URL))
	_, err := c.Synthesize(ctx, "hello", "v")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSynthesizeContextIsPerCall(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/text-to-speech/slow" {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}
		_, _ = w.Write([]byte("audio"))
	}))
	defer srv.Close()
	defer close(release)

	c := NewClient("k", 5*time.Second, WithBaseURL(srv.URL))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err := c.Synthesize(ctx, "hello", "slow")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)

	audio, err := c.Synthesize(context.Background(), "hello", "fast")
	require.NoError(t, err)
	assert.Equal(t, []byte("audio"), audio)
}
