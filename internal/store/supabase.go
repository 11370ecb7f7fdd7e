package store

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/supabase-community/postgrest-go"
	"go.uber.org/zap"
)

const (
	profilesTable = "profiles"
	messagesTable = "messages"

	profileColumns = "id,sport,goals,level,notes,updated_at"
	messageColumns = "id,user_id,role,content,turn_id,created_at"

	restPath = "/rest/v1"
)

// SupabaseStore talks to the hosted Postgres database through PostgREST.
// postgrest-go requests carry no context, so every call runs through
// withContext and the transport bounds how long a request may wait.
type SupabaseStore struct {
	client *postgrest.Client
	logger *zap.Logger
	now    func() time.Time
}

// NewSupabaseStore builds a PostgREST client for the project at url.
// requestTimeout caps the wait for response headers of any single request.
func NewSupabaseStore(url, key string, requestTimeout time.Duration, logger *zap.Logger) (*SupabaseStore, error) {
	if url == "" || key == "" {
		return nil, errors.New("supabase url and key are required")
	}
	client := postgrest.NewClient(strings.TrimRight(url, "/")+restPath, "public", map[string]string{
		"Authorization": "Bearer " + key,
		"apikey":        key,
	})
	if client.ClientError != nil {
		return nil, fmt.Errorf("failed to create postgrest client: %w", client.ClientError)
	}
	client.Transport.Parent = newTransport(requestTimeout)
	return &SupabaseStore{client: client, logger: logger, now: time.Now}, nil
}

func newTransport(requestTimeout time.Duration) *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.DialContext = (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext
	t.TLSHandshakeTimeout = 5 * time.Second
	t.ResponseHeaderTimeout = requestTimeout
	return t
}

// withContext returns as soon as ctx is done, leaving fn to finish in the
// background within the transport's timeout.
func withContext[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn()
		done <- result{v, err}
	}()

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case r := <-done:
		return r.v, r.err
	}
}

// Ping issues the cheapest query PostgREST accepts against the profiles table.
func (s *SupabaseStore) Ping(ctx context.Context) error {
	_, err := withContext(ctx, func() ([]Profile, error) {
		var rows []Profile
		_, err := s.client.From(profilesTable).Select("id", "", false).Limit(1, "").ExecuteTo(&rows)
		return rows, err
	})
	if err != nil {
		return fmt.Errorf("supabase ping failed: %w", err)
	}
	return nil
}

func (s *SupabaseStore) Close() error {
	return nil
}

func (s *SupabaseStore) GetProfile(ctx context.Context, userID string) (*Profile, error) {
	rows, err := withContext(ctx, func() ([]Profile, error) {
		var rows []Profile
		_, err := s.client.From(profilesTable).
			Select(profileColumns, "", false).
			Eq("id", userID).
			Limit(1, "").
			ExecuteTo(&rows)
		return rows, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query profile: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return &rows[0], nil
}

// UpsertProfile sends only the supplied columns. PostgREST merge-duplicates
// updates just those columns on conflict, so unspecified fields keep their
// stored values.
func (s *SupabaseStore) UpsertProfile(ctx context.Context, update ProfileUpdate) (*Profile, error) {
	row := map[string]any{
		"id":         update.ID,
		"updated_at": s.now().UTC(),
	}
	if update.Sport != nil {
		row["sport"] = *update.Sport
	}
	if update.Goals != nil {
		row["goals"] = *update.Goals
	}
	if update.Level != nil {
		row["level"] = *update.Level
	}
	if update.Notes != nil {
		row["notes"] = *update.Notes
	}

	rows, err := withContext(ctx, func() ([]Profile, error) {
		var rows []Profile
		_, err := s.client.From(profilesTable).
			Upsert(row, "id", "representation", "").
			ExecuteTo(&rows)
		return rows, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upsert profile: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("upsert of profile %s returned no rows", update.ID)
	}
	return &rows[0], nil
}

func (s *SupabaseStore) ListProfiles(ctx context.Context) ([]Profile, error) {
	profiles, err := withContext(ctx, func() ([]Profile, error) {
		profiles := []Profile{}
		_, err := s.client.From(profilesTable).
			Select(profileColumns, "", false).
			Order("id", &postgrest.OrderOpts{Ascending: true}).
			ExecuteTo(&profiles)
		return profiles, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	return profiles, nil
}

func (s *SupabaseStore) AppendMessage(ctx context.Context, userID string, role Role, content string) (*Message, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("invalid role %q", role)
	}
	msg := Message{
		ID:        ulid.Make().String(),
		UserID:    userID,
		Role:      role,
		Content:   content,
		CreatedAt: s.now().UTC(),
	}
	if err := s.insertMessages(ctx, msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// AppendTurn writes both rows in one bulk insert, which Postgres runs as a
// single statement.
func (s *SupabaseStore) AppendTurn(ctx context.Context, turn *Turn) error {
	if turn.User.ID == "" {
		turn.User.ID = ulid.Make().String()
	}
	if turn.Assistant.ID == "" {
		turn.Assistant.ID = ulid.Make().String()
	}
	if err := s.insertMessages(ctx, turn.User, turn.Assistant); err != nil {
		return fmt.Errorf("failed to write turn %s: %w", turn.ID, err)
	}
	s.logger.Debug("Turn persisted", zap.String("turn_id", turn.ID), zap.String("user_id", turn.UserID))
	return nil
}

func (s *SupabaseStore) insertMessages(ctx context.Context, msgs ...Message) error {
	_, err := withContext(ctx, func() ([]byte, error) {
		body, _, err := s.client.From(messagesTable).
			Insert(msgs, false, "", "minimal", "").
			Execute()
		return body, err
	})
	if err != nil {
		return fmt.Errorf("failed to insert messages: %w", err)
	}
	return nil
}

func (s *SupabaseStore) ListMessages(ctx context.Context, userID string, limit int) ([]Message, error) {
	query := s.client.From(messagesTable).
		Select(messageColumns, "", false).
		Eq("user_id", userID).
		Order("created_at", &postgrest.OrderOpts{Ascending: false}).
		Order("seq", &postgrest.OrderOpts{Ascending: false})
	if limit > 0 {
		query = query.Limit(limit, "")
	}

	messages, err := withContext(ctx, func() ([]Message, error) {
		messages := []Message{}
		_, err := query.ExecuteTo(&messages)
		return messages, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	slices.Reverse(messages)
	return messages, nil
}
