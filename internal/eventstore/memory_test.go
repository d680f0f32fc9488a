package eventstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iff-guardian/hostguard/internal/domain"
)

func sampleEvent(uniqueID, host string, at time.Time) *domain.SecurityEvent {
	return &domain.SecurityEvent{
		Original: domain.LogEvent{
			UniqueID: uniqueID,
			Host:     host,
			Time:     at,
			Channel:  "Security",
		},
		EventType:  domain.AuthenticationSuccess,
		RiskLevel:  domain.RiskMedium,
		Confidence: 85,
	}
}

func TestMemoryStore_AddIsIdempotentOnUniqueID(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	id1, err := s.Add(ctx, sampleEvent("u1", "host-a", now))
	require.NoError(t, err)

	id2, err := s.Add(ctx, sampleEvent("u1", "host-a", now))
	require.NoError(t, err)

	assert.Equal(t, id1, id2)
	count, err := s.Count(ctx, domain.EventFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestMemoryStore_AddRejectsInvalidEvent(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.Add(context.Background(), &domain.SecurityEvent{})
	assert.ErrorIs(t, err, domain.ErrInvalidEvent)
}

func TestMemoryStore_GetOrdersByTimeDescending(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	base := time.Now()

	_, err := s.Add(ctx, sampleEvent("u1", "host-a", base))
	require.NoError(t, err)
	_, err = s.Add(ctx, sampleEvent("u2", "host-a", base.Add(time.Minute)))
	require.NoError(t, err)
	_, err = s.Add(ctx, sampleEvent("u3", "host-a", base.Add(2*time.Minute)))
	require.NoError(t, err)

	events, err := s.Get(ctx, 1, 10, domain.EventFilter{})
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, "u3", events[0].Original.UniqueID)
	assert.Equal(t, "u2", events[1].Original.UniqueID)
	assert.Equal(t, "u1", events[2].Original.UniqueID)
}

func TestMemoryStore_FilterByHostAndRisk(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	e1 := sampleEvent("u1", "host-a", now)
	e2 := sampleEvent("u2", "host-b", now)
	e2.RiskLevel = domain.RiskHigh
	_, _ = s.Add(ctx, e1)
	_, _ = s.Add(ctx, e2)

	events, err := s.Get(ctx, 1, 10, domain.EventFilter{Host: "host-b"})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "u2", events[0].Original.UniqueID)

	events, err = s.Get(ctx, 1, 10, domain.EventFilter{RiskLevel: domain.RiskHigh})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, domain.RiskHigh, events[0].RiskLevel)
}

func TestMemoryStore_UpdateEnrichesInPlace(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	e := sampleEvent("u1", "host-a", now)
	id, err := s.Add(ctx, e)
	require.NoError(t, err)

	stored, err := s.GetByID(ctx, id)
	require.NoError(t, err)
	stored.Enrich("corr-1", 0.9, "brute force", domain.RiskHigh)
	require.NoError(t, s.Update(ctx, stored))

	reloaded, err := s.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.RiskHigh, reloaded.RiskLevel)
	assert.True(t, reloaded.IsEnhanced)
}

func TestMemoryStore_RecentByHostRespectsWindowAndLimit(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	_, _ = s.Add(ctx, sampleEvent("u1", "host-a", now.Add(-time.Hour)))
	_, _ = s.Add(ctx, sampleEvent("u2", "host-a", now.Add(-time.Minute)))
	_, _ = s.Add(ctx, sampleEvent("u3", "host-a", now))

	recent, err := s.RecentByHost(ctx, "host-a", now.Add(-5*time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "u3", recent[0].Original.UniqueID)
}
