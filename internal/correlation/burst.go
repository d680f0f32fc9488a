package correlation

import (
	"context"
	"sync"
	"time"

	"github.com/iff-guardian/hostguard/pkg/redisutil"
)

// GlobalBurstTracker maintains the engine's second sliding structure: a
// burst counter per event type, independent of host/user scoping. Analyze
// records every event into it; no detector reads CountSince, so the count
// does not influence findings.
type GlobalBurstTracker interface {
	Record(ctx context.Context, eventType string, id string, at time.Time) error
	CountSince(ctx context.Context, eventType string, since time.Time) (int64, error)
}

// MemoryBurstTracker is an in-process GlobalBurstTracker, used by tests.
type MemoryBurstTracker struct {
	mu     sync.Mutex
	events map[string][]time.Time
}

func NewMemoryBurstTracker() *MemoryBurstTracker {
	return &MemoryBurstTracker{events: make(map[string][]time.Time)}
}

func (m *MemoryBurstTracker) Record(_ context.Context, eventType string, _ string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[eventType] = append(m.events[eventType], at)
	return nil
}

func (m *MemoryBurstTracker) CountSince(_ context.Context, eventType string, since time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, t := range m.events[eventType] {
		if !t.Before(since) {
			n++
		}
	}
	return n, nil
}

// RedisBurstTracker persists the per-event-type burst window in Redis so
// the count survives process restarts and is shared across replicas.
type RedisBurstTracker struct {
	client *redisutil.Client
	window time.Duration
}

func NewRedisBurstTracker(client *redisutil.Client, window time.Duration) *RedisBurstTracker {
	return &RedisBurstTracker{client: client, window: window}
}

func (r *RedisBurstTracker) key(eventType string) string {
	return "hostguard:burst:" + eventType
}

func (r *RedisBurstTracker) Record(ctx context.Context, eventType string, id string, at time.Time) error {
	return r.client.WindowAdd(ctx, r.key(eventType), at, id, r.window)
}

func (r *RedisBurstTracker) CountSince(ctx context.Context, eventType string, since time.Time) (int64, error) {
	return r.client.WindowCount(ctx, r.key(eventType), since)
}
