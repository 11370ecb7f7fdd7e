// Package llm wraps the hosted model providers behind two small interfaces:
// ChatModel for completions and Embedder for query embeddings.
package llm

import (
	"context"
	"errors"
)

// ErrEmptyResponse is returned when a provider answers without any text.
var ErrEmptyResponse = errors.New("model returned an empty response")

// Prompt is a composed system instruction plus the user's message.
type Prompt struct {
	System string
	User   string
}

type ChatModel interface {
	Generate(ctx context.Context, prompt Prompt) (string, error)
	Name() string
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
