package bookmark

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iff-guardian/hostguard/internal/domain"
	"github.com/iff-guardian/hostguard/pkg/database"
)

// PostgresStore persists bookmarks keyed by channel name, one row per
// channel, last-writer-wins via upsert.
type PostgresStore struct {
	db *database.DB
}

func NewPostgresStore(db *database.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const schemaBookmarks = `
CREATE TABLE IF NOT EXISTS event_bookmarks (
	channel      TEXT PRIMARY KEY,
	bookmark     BYTEA NOT NULL,
	last_updated TIMESTAMPTZ NOT NULL
);`

// EnsureSchema creates the bookmarks table if the migrations runner was
// not used (tests, local dev without golang-migrate wired in).
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schemaBookmarks)
	return err
}

func (s *PostgresStore) Load(ctx context.Context, channel string) (*domain.EventBookmark, error) {
	row := s.db.QueryRowContext(ctx, `SELECT bookmark, last_updated FROM event_bookmarks WHERE channel = $1`, channel)
	var b []byte
	var updated time.Time
	if err := row.Scan(&b, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, domain.ErrStorageUnavailable
	}
	return &domain.EventBookmark{Channel: channel, Bytes: b, LastUpdated: updated}, nil
}

func (s *PostgresStore) Save(ctx context.Context, channel string, b []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO event_bookmarks (channel, bookmark, last_updated)
		VALUES ($1, $2, now())
		ON CONFLICT (channel) DO UPDATE SET bookmark = EXCLUDED.bookmark, last_updated = EXCLUDED.last_updated
	`, channel, b)
	if err != nil {
		return domain.ErrStorageUnavailable
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, channel string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM event_bookmarks WHERE channel = $1`, channel)
	if err != nil {
		return domain.ErrStorageUnavailable
	}
	return nil
}

func (s *PostgresStore) Exists(ctx context.Context, channel string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM event_bookmarks WHERE channel = $1)`, channel).Scan(&exists)
	if err != nil {
		return false, domain.ErrStorageUnavailable
	}
	return exists, nil
}

func (s *PostgresStore) LastUpdated(ctx context.Context, channel string) (time.Time, error) {
	var t time.Time
	err := s.db.QueryRowContext(ctx, `SELECT last_updated FROM event_bookmarks WHERE channel = $1`, channel).Scan(&t)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, nil
		}
		return time.Time{}, domain.ErrStorageUnavailable
	}
	return t, nil
}
