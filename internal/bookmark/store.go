// Package bookmark implements the durable per-channel resume token store
// (component A): load/save/delete/exists/last-updated, with last-writer-
// wins semantics per channel and graceful fallback to "from tail" on
// corruption or absence.
package bookmark

import (
	"context"
	"time"

	"github.com/iff-guardian/hostguard/internal/domain"
)

// Store is the bookmark persistence contract. Implementations must make
// Save last-writer-wins per channel: concurrent savers for the same
// channel leave the store holding one of the writes, never a merge of
// both, and readers never observe a torn write.
type Store interface {
	Load(ctx context.Context, channel string) (*domain.EventBookmark, error)
	Save(ctx context.Context, channel string, b []byte) error
	Delete(ctx context.Context, channel string) error
	Exists(ctx context.Context, channel string) (bool, error)
	LastUpdated(ctx context.Context, channel string) (time.Time, error)
}
