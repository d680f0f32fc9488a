package watcher

import "time"

// BookmarkPersistence selects whether a channel's read position survives
// restarts.
type BookmarkPersistence string

const (
	BookmarkDatabase BookmarkPersistence = "Database"
	BookmarkNone     BookmarkPersistence = "None"
)

// ChannelConfig describes one subscribed channel.
type ChannelConfig struct {
	Name                string
	Enabled             bool
	XPathFilter         string
	BookmarkPersistence BookmarkPersistence
	MaxQueue            int // 0 means "use GlobalConfig.DefaultMaxQueue"
	MaxEventsPerSecond  int // 0 means unlimited
}

func (c ChannelConfig) effectiveMaxQueue(global Config) int {
	if c.MaxQueue > 0 {
		return c.MaxQueue
	}
	return global.DefaultMaxQueue
}

// Config holds the watcher-wide defaults applied across channels.
type Config struct {
	DefaultMaxQueue      int
	ConsumerConcurrency  int
	ImmediateBroadcast   bool
	BookmarkSaveInterval time.Duration // coalescing window, spec floor is 500ms
}

func (c Config) withDefaults() Config {
	if c.DefaultMaxQueue <= 0 {
		c.DefaultMaxQueue = 1000
	}
	if c.ConsumerConcurrency <= 0 {
		c.ConsumerConcurrency = 4
	}
	if c.BookmarkSaveInterval <= 0 {
		c.BookmarkSaveInterval = 500 * time.Millisecond
	}
	return c
}
