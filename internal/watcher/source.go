// Package watcher implements the bookmarked channel watcher (component C):
// one producer per enabled channel feeding a bounded, drop-oldest FIFO that
// a pool of consumer_concurrency workers drains into the pipeline.
package watcher

import (
	"context"

	"github.com/iff-guardian/hostguard/internal/domain"
)

// Source produces raw records for a single channel, starting after
// afterBookmark (nil means "from the stream's current tail"). It must keep
// emitting on records until ctx is cancelled, then close the channel.
type Source interface {
	Subscribe(ctx context.Context, channel string, afterBookmark []byte) (<-chan domain.RawRecord, error)
}
