// Package rules implements the Rule Store (component E's storage half): a
// priority-ordered, cached table of SecurityEventRule keyed by
// (channel, event_id), invalidated on mutation.
package rules

import (
	"context"

	"github.com/iff-guardian/hostguard/internal/domain"
)

// Store persists rules and serves the Normalizer's classification lookups.
type Store interface {
	// Match returns the highest-priority enabled rule for (channel, eventID),
	// or nil if none match. Ties on priority break by event_id ASC, which
	// is moot here since eventID is part of the lookup key, but Match still
	// orders candidates deterministically when a channel carries wildcard
	// rules in the future.
	Match(ctx context.Context, channel string, eventID int) (*domain.SecurityEventRule, error)
	Create(ctx context.Context, rule domain.SecurityEventRule) error
	Update(ctx context.Context, rule domain.SecurityEventRule) error
	Delete(ctx context.Context, key domain.RuleKey) error
	List(ctx context.Context) ([]domain.SecurityEventRule, error)
}
