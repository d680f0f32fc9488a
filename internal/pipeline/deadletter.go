package pipeline

import "sync"

const maxFailuresBeforeDeadLetter = 3

// deadLetterEntry records a poison record's last error and how many times
// normalization has failed for its unique id.
type deadLetterEntry struct {
	uniqueID string
	channel  string
	failures int
	lastErr  string
}

// deadLetterSet tracks per-unique-id normalization failures and marks a
// record poisoned once it crosses maxFailuresBeforeDeadLetter, so the
// pipeline keeps reporting it as failed on every redelivery and the
// watcher never advances the bookmark past it, until an operator calls
// Retry to clear the entry. Bounded to capacity with oldest-first
// eviction, the same drop-oldest policy applied to the channel queues
// themselves.
type deadLetterSet struct {
	mu       sync.Mutex
	capacity int
	order    []string // uniqueID insertion order, for capacity eviction
	entries  map[string]*deadLetterEntry
}

func newDeadLetterSet(capacity int) *deadLetterSet {
	if capacity <= 0 {
		capacity = 1000
	}
	return &deadLetterSet{capacity: capacity, entries: make(map[string]*deadLetterEntry)}
}

// RecordFailure registers one normalization failure for uniqueID and
// reports whether it has now crossed the threshold into the dead-letter
// set (true on the call that crosses it and every call after).
func (d *deadLetterSet) RecordFailure(channel, uniqueID string, err error) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	e, ok := d.entries[uniqueID]
	if !ok {
		if len(d.order) >= d.capacity {
			oldest := d.order[0]
			d.order = d.order[1:]
			delete(d.entries, oldest)
		}
		e = &deadLetterEntry{uniqueID: uniqueID, channel: channel}
		d.entries[uniqueID] = e
		d.order = append(d.order, uniqueID)
	}
	e.failures++
	if err != nil {
		e.lastErr = err.Error()
	}
	return e.failures >= maxFailuresBeforeDeadLetter
}

// Clear removes uniqueID from the set, e.g. after a successful retry.
func (d *deadLetterSet) Clear(uniqueID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.entries[uniqueID]; !ok {
		return
	}
	delete(d.entries, uniqueID)
	for i, id := range d.order {
		if id == uniqueID {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
}

// DeadLetterRecord is the read-only view of one poisoned record exposed
// for operator inspection/retry.
type DeadLetterRecord struct {
	UniqueID string
	Channel  string
	Failures int
	LastErr  string
}

func (d *deadLetterSet) List() []DeadLetterRecord {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]DeadLetterRecord, 0, len(d.order))
	for _, id := range d.order {
		e := d.entries[id]
		out = append(out, DeadLetterRecord{UniqueID: e.uniqueID, Channel: e.channel, Failures: e.failures, LastErr: e.lastErr})
	}
	return out
}
