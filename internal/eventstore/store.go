// Package eventstore implements the append-only, queryable SecurityEvent
// store (component B): idempotent Add keyed by original.unique_id, and
// paged reads with the filter set spec §4.B recognizes.
package eventstore

import (
	"context"
	"time"

	"github.com/iff-guardian/hostguard/internal/domain"
)

// Store is the read/write contract the pipeline commits through and the
// read-only admin API queries.
type Store interface {
	// Add persists event, or is a no-op if an event with the same
	// Original.UniqueID already exists. Returns the persisted (possibly
	// pre-existing) event's ID.
	Add(ctx context.Context, event *domain.SecurityEvent) (string, error)
	Get(ctx context.Context, page, pageSize int, filter domain.EventFilter) ([]domain.SecurityEvent, error)
	GetByID(ctx context.Context, id string) (*domain.SecurityEvent, error)
	Count(ctx context.Context, filter domain.EventFilter) (int, error)
	// Update persists in-place enrichment (correlation upgrades) made
	// after the initial commit.
	Update(ctx context.Context, event *domain.SecurityEvent) error
	// RecentByHost returns events for host with Original.Time >= since,
	// newest first, bounded by limit — the correlation engine's read
	// path into recent per-host history.
	RecentByHost(ctx context.Context, host string, since time.Time, limit int) ([]domain.SecurityEvent, error)
	// RecentByUser is the user-scoped equivalent of RecentByHost, used by
	// lateral-movement detection.
	RecentByUser(ctx context.Context, user string, since time.Time, limit int) ([]domain.SecurityEvent, error)
}
