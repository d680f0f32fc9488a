package domain

import "time"

// StepMatcher describes one step of an ignore sequence. Within a step,
// fields are OR-within-field (any listed value may match); across fields
// they are AND (every declared field must match).
type StepMatcher struct {
	EventType      []SecurityEventType
	Mitre          []string
	SourceMachines []string
	AccountNames   []string
	LogonTypes     []string
}

// IgnorePattern is a single-event matcher (sequence of length 1) or an
// ordered multi-step matcher, bounded by the engine's sliding window.
type IgnorePattern struct {
	ID                   string
	Sequence             []StepMatcher
	Reason               string
	IgnoreAllInSequence  bool
}

// RecentEvent is the lightweight projection the ignore-pattern engine
// keeps in its per-host ring buffer.
type RecentEvent struct {
	EventType   SecurityEventType
	Mitre       []string
	Host        string
	AccountName string
	LogonType   string
	Time        time.Time
	EventRef    string // SecurityEvent.ID, for ignore-all-in-sequence bookkeeping
}
