package domain

import "time"

// EventBookmark is an opaque per-channel resume token. The store must
// preserve Bytes byte-for-byte; only the watcher interprets their
// contents (as a channel-source-specific resume position).
type EventBookmark struct {
	Channel     string
	Bytes       []byte
	LastUpdated time.Time
}
