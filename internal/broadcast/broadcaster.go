package broadcast

import (
	"sync"

	"github.com/iff-guardian/hostguard/pkg/logger"
	"github.com/iff-guardian/hostguard/pkg/metrics"
)

// Config controls the fan-out delivery policy.
type Config struct {
	// ImmediateBroadcast, when true, guarantees every delivered message
	// reaches every remaining subscriber without buffering delay: a
	// subscriber whose channel is full is dropped (unsubscribed)
	// rather than allowed to fall behind. When false, a full
	// subscriber channel just skips that one message, keeping the
	// subscriber attached and the rest of its stream in producer order.
	ImmediateBroadcast  bool
	SubscriberBufferSize int
}

func (c Config) withDefaults() Config {
	if c.SubscriberBufferSize <= 0 {
		c.SubscriberBufferSize = 64
	}
	return c
}

type subscription struct {
	id      string
	ch      chan Message
	streams map[StreamType]struct{} // nil/empty means "all streams"

	mu     sync.Mutex
	closed bool
}

func (s *subscription) wants(stream StreamType) bool {
	if len(s.streams) == 0 {
		return true
	}
	_, ok := s.streams[stream]
	return ok
}

// send delivers msg if the subscriber is still open, reporting whether it
// was delivered and, if not, whether that was because the channel was
// full (as opposed to already closed). Guarding the send and the close in
// Broadcaster.Unsubscribe with the same mutex keeps a concurrent
// Unsubscribe from closing ch while a Publish is sending on it.
func (s *subscription) send(msg Message) (delivered, full bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, false
	}
	select {
	case s.ch <- msg:
		return true, false
	default:
		return false, true
	}
}

func (s *subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}

// Broadcaster fans Messages out to subscribers over bounded per-subscriber
// channels. No ordering guarantee holds across subscribers; within one
// subscriber's channel, producer order is preserved for whatever gets
// through.
type Broadcaster struct {
	cfg     Config
	log     logger.Logger
	metrics *metrics.Collector

	mu   sync.RWMutex
	subs map[string]*subscription
}

func New(cfg Config, log logger.Logger, mc *metrics.Collector) *Broadcaster {
	return &Broadcaster{
		cfg:     cfg.withDefaults(),
		log:     log,
		metrics: mc,
		subs:    make(map[string]*subscription),
	}
}

// Subscribe registers a new subscriber and returns its receive channel and
// an unsubscribe function. An empty streams list subscribes to everything.
func (b *Broadcaster) Subscribe(id string, streams ...StreamType) (<-chan Message, func()) {
	set := make(map[StreamType]struct{}, len(streams))
	for _, s := range streams {
		set[s] = struct{}{}
	}
	sub := &subscription{
		id:      id,
		ch:      make(chan Message, b.cfg.SubscriberBufferSize),
		streams: set,
	}
	b.mu.Lock()
	b.subs[id] = sub
	b.mu.Unlock()
	return sub.ch, func() { b.Unsubscribe(id) }
}

func (b *Broadcaster) Unsubscribe(id string) {
	b.mu.Lock()
	sub, ok := b.subs[id]
	if ok {
		delete(b.subs, id)
	}
	b.mu.Unlock()
	if ok {
		sub.close()
	}
}

// Publish delivers msg to every subscriber of its stream, best-effort.
func (b *Broadcaster) Publish(msg Message) {
	b.mu.RLock()
	targets := make([]*subscription, 0, len(b.subs))
	for _, sub := range b.subs {
		if sub.wants(msg.Stream) {
			targets = append(targets, sub)
		}
	}
	b.mu.RUnlock()

	var toDrop []string
	for _, sub := range targets {
		delivered, full := sub.send(msg)
		if !delivered && full {
			if b.cfg.ImmediateBroadcast {
				toDrop = append(toDrop, sub.id)
			}
			b.observeSkip(msg.Stream)
		}
	}
	for _, id := range toDrop {
		b.log.Warn("dropping slow broadcast subscriber", "subscriber", id, "stream", string(msg.Stream))
		b.Unsubscribe(id)
	}
}

func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func (b *Broadcaster) observeSkip(stream StreamType) {
	if b.metrics == nil {
		return
	}
	b.metrics.BroadcastSkipped.WithLabelValues(string(stream)).Inc()
}
