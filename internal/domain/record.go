package domain

import "time"

// RawRecord is the opaque input read off a channel. It is immutable once
// constructed; the watcher owns it until it is enqueued, the normalizer
// consumes and discards it.
type RawRecord struct {
	ID       string
	Channel  string
	EventID  int
	Provider string
	Level    string
	Time     time.Time
	Host     string
	User     string
	Message  string
	XML      string
}

// LogEvent is the normalized view of a RawRecord. UniqueID is stable
// across redeliveries and is the idempotence key the event store uses to
// dedup at-least-once channel delivery.
type LogEvent struct {
	Time     time.Time
	Host     string
	Channel  string
	EventID  int
	Level    string
	User     string
	Message  string
	RawJSON  string
	UniqueID string
}

// FromRawRecord builds the normalized LogEvent view of a RawRecord. The
// unique id is derived from the record id so redelivery of the same
// record (same id, possibly a different bookmark offset) still dedups.
func FromRawRecord(r RawRecord) LogEvent {
	return LogEvent{
		Time:     r.Time,
		Host:     r.Host,
		Channel:  r.Channel,
		EventID:  r.EventID,
		Level:    r.Level,
		User:     r.User,
		Message:  r.Message,
		RawJSON:  r.XML,
		UniqueID: r.Channel + ":" + r.ID,
	}
}
