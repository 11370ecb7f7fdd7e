package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/peakmind/coach/internal/store/migrations"
)

// SQLiteStore is the local backend used for development and tests.
type SQLiteStore struct {
	db  *sqlx.DB
	now func() time.Time
}

func NewSQLiteStore(dataSourceName string, logger *zap.Logger) (*SQLiteStore, error) {
	db, err := sqlx.Connect("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := ApplyMigrations(db.DB, dataSourceName, logger); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite store ready", zap.String("path", dbNameFromPath(dataSourceName)))
	return &SQLiteStore{db: db, now: time.Now}, nil
}

// ApplyMigrations brings the schema up to the latest embedded version.
func ApplyMigrations(db *sql.DB, dataSourceName string, logger *zap.Logger) error {
	sourceDriver, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("failed to open embedded migrations: %w", err)
	}
	dbDriver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create sqlite3 migration driver: %w", err)
	}
	migrator, err := migrate.NewWithInstance("iofs", sourceDriver, dbNameFromPath(dataSourceName), dbDriver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := migrator.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Debug("No database migrations to apply")
			return nil
		}
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	logger.Info("Database migrations applied")
	return nil
}

func dbNameFromPath(path string) string {
	path = strings.TrimPrefix(path, "file:")
	if idx := strings.Index(path, "?"); idx != -1 {
		path = path[:idx]
	}
	if decoded, err := url.PathUnescape(path); err == nil {
		return decoded
	}
	return path
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Profile methods

func (s *SQLiteStore) GetProfile(ctx context.Context, userID string) (*Profile, error) {
	return getProfile(ctx, s.db, userID)
}

func getProfile(ctx context.Context, q sqlx.QueryerContext, userID string) (*Profile, error) {
	var p Profile
	err := sqlx.GetContext(ctx, q, &p,
		"SELECT id, sport, goals, level, notes, updated_at FROM profiles WHERE id = ?", userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query profile: %w", err)
	}
	return &p, nil
}

func (s *SQLiteStore) UpsertProfile(ctx context.Context, update ProfileUpdate) (*Profile, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	profile, err := getProfile(ctx, tx, update.ID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if profile == nil {
		profile = &Profile{}
	}
	update.Apply(profile)
	profile.UpdatedAt = s.now().UTC()

	_, err = tx.NamedExecContext(ctx, `
        INSERT INTO profiles (id, sport, goals, level, notes, updated_at)
        VALUES (:id, :sport, :goals, :level, :notes, :updated_at)
        ON CONFLICT (id) DO UPDATE SET
            sport = excluded.sport,
            goals = excluded.goals,
            level = excluded.level,
            notes = excluded.notes,
            updated_at = excluded.updated_at`, profile)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert profile: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit profile upsert: %w", err)
	}
	return profile, nil
}

func (s *SQLiteStore) ListProfiles(ctx context.Context) ([]Profile, error) {
	profiles := []Profile{}
	err := s.db.SelectContext(ctx, &profiles,
		"SELECT id, sport, goals, level, notes, updated_at FROM profiles ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	return profiles, nil
}

// Message methods

const insertMessage = `
    INSERT INTO messages (id, user_id, role, content, turn_id, created_at)
    VALUES (:id, :user_id, :role, :content, :turn_id, :created_at)`

func (s *SQLiteStore) AppendMessage(ctx context.Context, userID string, role Role, content string) (*Message, error) {
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
	if _, err := s.db.NamedExecContext(ctx, insertMessage, &msg); err != nil {
		return nil, fmt.Errorf("failed to insert message: %w", err)
	}
	return &msg, nil
}

func (s *SQLiteStore) AppendTurn(ctx context.Context, turn *Turn) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, msg := range []*Message{&turn.User, &turn.Assistant} {
		if msg.ID == "" {
			msg.ID = ulid.Make().String()
		}
		if _, err := tx.NamedExecContext(ctx, insertMessage, msg); err != nil {
			return fmt.Errorf("failed to insert %s message: %w", msg.Role, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit turn: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListMessages(ctx context.Context, userID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	query := `
        SELECT id, user_id, role, content, turn_id, created_at
        FROM messages
        WHERE user_id = ?
        ORDER BY created_at DESC, seq DESC
        LIMIT ?`

	messages := []Message{}
	if err := s.db.SelectContext(ctx, &messages, query, userID, limit); err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	slices.Reverse(messages)
	return messages, nil
}
