package broadcast

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iff-guardian/hostguard/pkg/logger"
	"github.com/iff-guardian/hostguard/pkg/metrics"
)

func TestBroadcaster_DeliversToMatchingStreamOnly(t *testing.T) {
	b := New(Config{SubscriberBufferSize: 4}, logger.NewNoop(), metrics.NewCollector(t.Name()))
	ch, unsub := b.Subscribe("sub-1", StreamSecurityEvent)
	defer unsub()

	b.Publish(Message{Stream: StreamSecurityEvent, Payload: "event-1"})
	b.Publish(Message{Stream: StreamScanProgress, Payload: "progress-1"})

	select {
	case msg := <-ch:
		assert.Equal(t, "event-1", msg.Payload)
	case <-time.After(time.Second):
		t.Fatal("expected a message")
	}

	select {
	case msg := <-ch:
		t.Fatalf("unexpected message delivered: %+v", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBroadcaster_SubscribeAllStreamsWhenNoneGiven(t *testing.T) {
	b := New(Config{SubscriberBufferSize: 4}, logger.NewNoop(), metrics.NewCollector(t.Name()))
	ch, unsub := b.Subscribe("sub-1")
	defer unsub()

	b.Publish(Message{Stream: StreamSystemMetrics, Payload: 42})
	select {
	case msg := <-ch:
		assert.Equal(t, StreamSystemMetrics, msg.Stream)
	case <-time.After(time.Second):
		t.Fatal("expected a message")
	}
}

func TestBroadcaster_SkipPolicyKeepsSubscriberAttached(t *testing.T) {
	b := New(Config{SubscriberBufferSize: 1, ImmediateBroadcast: false}, logger.NewNoop(), metrics.NewCollector(t.Name()))
	ch, unsub := b.Subscribe("sub-1", StreamSecurityEvent)
	defer unsub()

	b.Publish(Message{Stream: StreamSecurityEvent, Payload: "first"})
	b.Publish(Message{Stream: StreamSecurityEvent, Payload: "second"}) // channel full, skipped

	require.Equal(t, 1, b.SubscriberCount())
	msg := <-ch
	assert.Equal(t, "first", msg.Payload)
}

func TestBroadcaster_ImmediateBroadcastDropsSlowSubscriber(t *testing.T) {
	b := New(Config{SubscriberBufferSize: 1, ImmediateBroadcast: true}, logger.NewNoop(), metrics.NewCollector(t.Name()))
	_, unsub := b.Subscribe("sub-1", StreamSecurityEvent)
	defer unsub()

	b.Publish(Message{Stream: StreamSecurityEvent, Payload: "first"})
	b.Publish(Message{Stream: StreamSecurityEvent, Payload: "second"}) // channel full, subscriber dropped

	assert.Equal(t, 0, b.SubscriberCount())
}

func TestBroadcaster_UnsubscribeClosesChannel(t *testing.T) {
	b := New(Config{}, logger.NewNoop(), metrics.NewCollector(t.Name()))
	ch, unsub := b.Subscribe("sub-1")
	unsub()

	_, ok := <-ch
	assert.False(t, ok)
}
