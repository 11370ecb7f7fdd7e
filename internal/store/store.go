package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a lookup by key matches nothing.
var ErrNotFound = errors.New("not found")

type ProfileStore interface {
	GetProfile(ctx context.Context, userID string) (*Profile, error)
	UpsertProfile(ctx context.Context, update ProfileUpdate) (*Profile, error)
	ListProfiles(ctx context.Context) ([]Profile, error)
}

type HistoryStore interface {
	AppendMessage(ctx context.Context, userID string, role Role, content string) (*Message, error)
	// AppendTurn persists both messages of a turn or neither.
	AppendTurn(ctx context.Context, turn *Turn) error
	// ListMessages returns the newest limit messages in chronological order.
	// limit <= 0 returns the full history. A user with no history gets an
	// empty slice.
	ListMessages(ctx context.Context, userID string, limit int) ([]Message, error)
}

// Store is what a persistence backend provides to the service layer.
type Store interface {
	ProfileStore
	HistoryStore
	Ping(ctx context.Context) error
	Close() error
}
