package watcher

import (
	"context"
	"sync"
	"time"

	"go.uber.org/ratelimit"

	"github.com/iff-guardian/hostguard/internal/bookmark"
	"github.com/iff-guardian/hostguard/internal/domain"
	"github.com/iff-guardian/hostguard/pkg/logger"
	"github.com/iff-guardian/hostguard/pkg/metrics"
)

// Handler is the sink a worker commits a raw record through, generally the
// normalizer-to-pipeline chain. Returning an error leaves the record's
// bookmark position unadvanced.
type Handler interface {
	Handle(ctx context.Context, record domain.RawRecord) error
}

type recordEnvelope struct {
	record domain.RawRecord
}

// channelState is the watcher's per-channel runtime: its queue, bookmark
// cursor, and coalesced-save timer.
type channelState struct {
	cfg   ChannelConfig
	queue *dropOldestQueue
	limit ratelimit.Limiter

	mu            sync.Mutex
	pendingSave   []byte
	lastSaveAt    time.Time
	lastCommitted []byte
}

// Watcher owns one producer and a shared worker pool per channel, draining
// each channel's bounded queue into handler and advancing its bookmark
// after every successful commit.
type Watcher struct {
	cfg     Config
	source  Source
	store   bookmark.Store
	handler Handler
	log     logger.Logger
	metrics *metrics.Collector

	mu       sync.Mutex
	channels map[string]*channelState
	wg       sync.WaitGroup
}

func New(cfg Config, source Source, store bookmark.Store, handler Handler, log logger.Logger, mc *metrics.Collector) *Watcher {
	return &Watcher{
		cfg:      cfg.withDefaults(),
		source:   source,
		store:    store,
		handler:  handler,
		log:      log,
		metrics:  mc,
		channels: make(map[string]*channelState),
	}
}

// Run subscribes every enabled channel and blocks workers until ctx is
// cancelled, then drains in-flight work, flushes bookmarks, and returns.
func (w *Watcher) Run(ctx context.Context, channels []ChannelConfig) error {
	for _, cc := range channels {
		if !cc.Enabled {
			continue
		}
		if err := w.startChannel(ctx, cc); err != nil {
			w.log.Error("failed to start channel watcher", "error", err, "channel", cc.Name)
			continue
		}
	}
	<-ctx.Done()
	w.wg.Wait()
	w.flushAll(context.Background())
	return nil
}

func (w *Watcher) startChannel(ctx context.Context, cc ChannelConfig) error {
	var after []byte
	if cc.BookmarkPersistence == BookmarkDatabase {
		b, err := w.store.Load(ctx, cc.Name)
		if err != nil {
			w.log.Warn("bookmark load failed, starting from tail", "error", err, "channel", cc.Name)
		} else if b != nil {
			after = b.Bytes
		}
	}

	records, err := w.source.Subscribe(ctx, cc.Name, after)
	if err != nil {
		return err
	}

	st := &channelState{cfg: cc, queue: newDropOldestQueue(cc.effectiveMaxQueue(w.cfg))}
	if cc.MaxEventsPerSecond > 0 {
		st.limit = ratelimit.New(cc.MaxEventsPerSecond)
	}
	w.mu.Lock()
	w.channels[cc.Name] = st
	w.mu.Unlock()

	w.wg.Add(1)
	go w.produce(ctx, st, records)

	for i := 0; i < w.cfg.ConsumerConcurrency; i++ {
		w.wg.Add(1)
		go w.consume(ctx, st)
	}
	return nil
}

func (w *Watcher) produce(ctx context.Context, st *channelState, records <-chan domain.RawRecord) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case rec, ok := <-records:
			if !ok {
				return
			}
			if st.queue.push(recordEnvelope{record: rec}) {
				w.metrics.RecordsDropped.WithLabelValues(st.cfg.Name).Inc()
			}
			w.metrics.QueueDepth.WithLabelValues(st.cfg.Name).Set(float64(st.queue.depth()))
		}
	}
}

func (w *Watcher) consume(ctx context.Context, st *channelState) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			w.drain(ctx, st)
			return
		case <-st.queue.notify():
			w.drainOnce(ctx, st)
		}
	}
}

// drain empties the queue on shutdown, discarding the remaining records
// without handling them; their bookmarks are not advanced.
func (w *Watcher) drain(ctx context.Context, st *channelState) {
	for {
		if _, ok := st.queue.pop(); !ok {
			return
		}
	}
}

func (w *Watcher) drainOnce(ctx context.Context, st *channelState) {
	for {
		env, ok := st.queue.pop()
		if !ok {
			return
		}
		if st.limit != nil {
			st.limit.Take()
		}
		w.metrics.QueueDepth.WithLabelValues(st.cfg.Name).Set(float64(st.queue.depth()))
		w.metrics.RecordsIngested.WithLabelValues(st.cfg.Name).Inc()

		if err := w.handler.Handle(ctx, env.record); err != nil {
			w.log.Error("record handling failed", "error", err, "channel", st.cfg.Name)
			continue
		}
		w.advance(ctx, st, []byte(env.record.ID))
	}
}

// advance records the new bookmark position, coalescing saves at the
// configured interval; it is always flushed at shutdown regardless of the
// coalescing window.
func (w *Watcher) advance(ctx context.Context, st *channelState, position []byte) {
	if st.cfg.BookmarkPersistence != BookmarkDatabase {
		return
	}
	st.mu.Lock()
	st.pendingSave = position
	due := time.Since(st.lastSaveAt) >= w.cfg.BookmarkSaveInterval
	st.mu.Unlock()
	if due {
		w.flushChannel(ctx, st)
	}
}

func (w *Watcher) flushChannel(ctx context.Context, st *channelState) {
	st.mu.Lock()
	if len(st.pendingSave) == 0 || (len(st.lastCommitted) > 0 && string(st.pendingSave) == string(st.lastCommitted)) {
		st.mu.Unlock()
		return
	}
	pos := st.pendingSave
	st.mu.Unlock()

	if err := w.store.Save(ctx, st.cfg.Name, pos); err != nil {
		w.log.Error("bookmark save failed", "error", err, "channel", st.cfg.Name)
		return
	}
	st.mu.Lock()
	st.lastCommitted = pos
	st.lastSaveAt = time.Now()
	st.mu.Unlock()
}

func (w *Watcher) flushAll(ctx context.Context) {
	w.mu.Lock()
	states := make([]*channelState, 0, len(w.channels))
	for _, st := range w.channels {
		states = append(states, st)
	}
	w.mu.Unlock()
	for _, st := range states {
		w.flushChannel(ctx, st)
	}
}

// DroppedCount reports the drop-oldest eviction count for channel, used by
// health checks and tests.
func (w *Watcher) DroppedCount(channel string) int64 {
	w.mu.Lock()
	st, ok := w.channels[channel]
	w.mu.Unlock()
	if !ok {
		return 0
	}
	return st.queue.droppedCount()
}

// QueueDepth reports the current queue depth for channel.
func (w *Watcher) QueueDepth(channel string) int {
	w.mu.Lock()
	st, ok := w.channels[channel]
	w.mu.Unlock()
	if !ok {
		return 0
	}
	return st.queue.depth()
}
