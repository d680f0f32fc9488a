package correlation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iff-guardian/hostguard/internal/domain"
	"github.com/iff-guardian/hostguard/internal/eventstore"
	"github.com/iff-guardian/hostguard/pkg/logger"
	"github.com/iff-guardian/hostguard/pkg/metrics"
)

func newTestEngine(t *testing.T, store eventstore.Store) *Engine {
	return New(store, NewMemoryBurstTracker(), nil, logger.NewNoop(), metrics.NewCollector(t.Name()))
}

func commitEvent(t *testing.T, store eventstore.Store, e domain.SecurityEvent) *domain.SecurityEvent {
	e.CorrelationIDs = make(map[string]struct{})
	e.MitreTechniques = make(map[string]struct{})
	if e.Original.UniqueID == "" {
		e.Original.UniqueID = e.ID + "-unique"
	}
	id, err := store.Add(context.Background(), &e)
	require.NoError(t, err)
	e.ID = id
	return &e
}

func TestEngine_BruteForceFiresAfterFiveFailuresThenSuccess(t *testing.T) {
	store := eventstore.NewMemoryStore()
	e := newTestEngine(t, store)
	ctx := context.Background()
	base := time.Now()

	for i := 0; i < 5; i++ {
		commitEvent(t, store, domain.SecurityEvent{
			ID:        string(rune('a' + i)),
			Original:  domain.LogEvent{Host: "host-a", User: "jdoe", Time: base.Add(time.Duration(i) * time.Minute)},
			EventType: domain.AuthenticationFailure,
			RiskLevel: domain.RiskLow,
		})
	}

	success := commitEvent(t, store, domain.SecurityEvent{
		ID:        "success",
		Original:  domain.LogEvent{Host: "host-a", User: "jdoe", Time: base.Add(6 * time.Minute)},
		EventType: domain.AuthenticationSuccess,
		RiskLevel: domain.RiskLow,
	})

	result, err := e.Analyze(ctx, success)
	require.NoError(t, err)
	require.True(t, result.HasCorrelation)
	assert.Equal(t, domain.BruteForce, result.Correlation.Type)
	assert.Equal(t, domain.RiskHigh, success.RiskLevel)
	assert.True(t, success.IsCorrelationBased)
}

func TestEngine_FewerThanFiveFailuresDoesNotFire(t *testing.T) {
	store := eventstore.NewMemoryStore()
	e := newTestEngine(t, store)
	ctx := context.Background()
	base := time.Now()

	for i := 0; i < 3; i++ {
		commitEvent(t, store, domain.SecurityEvent{
			ID:        string(rune('a' + i)),
			Original:  domain.LogEvent{Host: "host-a", User: "jdoe", Time: base.Add(time.Duration(i) * time.Minute)},
			EventType: domain.AuthenticationFailure,
			RiskLevel: domain.RiskLow,
		})
	}
	success := commitEvent(t, store, domain.SecurityEvent{
		ID:        "success",
		Original:  domain.LogEvent{Host: "host-a", User: "jdoe", Time: base.Add(4 * time.Minute)},
		EventType: domain.AuthenticationSuccess,
		RiskLevel: domain.RiskLow,
	})

	result, err := e.Analyze(ctx, success)
	require.NoError(t, err)
	assert.False(t, result.HasCorrelation)
}

func TestEngine_TemporalBurstRiskUnchanged(t *testing.T) {
	store := eventstore.NewMemoryStore()
	e := newTestEngine(t, store)
	ctx := context.Background()
	base := time.Now()

	for i := 0; i < 5; i++ {
		commitEvent(t, store, domain.SecurityEvent{
			ID:        string(rune('a' + i)),
			Original:  domain.LogEvent{Host: "host-a", Time: base.Add(time.Duration(i) * 10 * time.Second)},
			EventType: domain.ProcessCreation,
			RiskLevel: domain.RiskLow,
		})
	}
	sixth := commitEvent(t, store, domain.SecurityEvent{
		ID:        "sixth",
		Original:  domain.LogEvent{Host: "host-a", Time: base.Add(60 * time.Second)},
		EventType: domain.ProcessCreation,
		RiskLevel: domain.RiskLow,
	})

	result, err := e.Analyze(ctx, sixth)
	require.NoError(t, err)
	require.True(t, result.HasCorrelation)
	assert.Equal(t, domain.TemporalBurst, result.Correlation.Type)
	assert.Equal(t, domain.RiskLow, sixth.RiskLevel)
}

func TestEngine_LateralMovementAcrossThreeHosts(t *testing.T) {
	store := eventstore.NewMemoryStore()
	e := newTestEngine(t, store)
	ctx := context.Background()
	base := time.Now()

	commitEvent(t, store, domain.SecurityEvent{
		ID:        "c1",
		Original:  domain.LogEvent{Host: "host-a", User: "jdoe", Time: base},
		EventType: domain.NetworkConnection,
		RiskLevel: domain.RiskLow,
	})
	commitEvent(t, store, domain.SecurityEvent{
		ID:        "c2",
		Original:  domain.LogEvent{Host: "host-b", User: "jdoe", Time: base.Add(time.Minute)},
		EventType: domain.NetworkConnection,
		RiskLevel: domain.RiskLow,
	})
	c3 := commitEvent(t, store, domain.SecurityEvent{
		ID:        "c3",
		Original:  domain.LogEvent{Host: "host-c", User: "jdoe", Time: base.Add(2 * time.Minute)},
		EventType: domain.NetworkConnection,
		RiskLevel: domain.RiskLow,
	})

	result, err := e.Analyze(ctx, c3)
	require.NoError(t, err)
	require.True(t, result.HasCorrelation)
	assert.Equal(t, domain.LateralMovement, result.Correlation.Type)
	assert.Equal(t, domain.RiskHigh, c3.RiskLevel)
}

func TestEngine_AttackChainUpgradesToCritical(t *testing.T) {
	store := eventstore.NewMemoryStore()
	e := newTestEngine(t, store)
	ctx := context.Background()
	base := time.Now()

	commitEvent(t, store, domain.SecurityEvent{
		ID:        "auth",
		Original:  domain.LogEvent{Host: "host-a", Time: base},
		EventType: domain.AuthenticationSuccess,
		RiskLevel: domain.RiskLow,
	})
	commitEvent(t, store, domain.SecurityEvent{
		ID:        "priv",
		Original:  domain.LogEvent{Host: "host-a", Time: base.Add(2 * time.Minute)},
		EventType: domain.PrivilegeEscalation,
		RiskLevel: domain.RiskMedium,
	})
	final := commitEvent(t, store, domain.SecurityEvent{
		ID:        "final",
		Original:  domain.LogEvent{Host: "host-a", Time: base.Add(4 * time.Minute)},
		EventType: domain.ProcessCreation,
		RiskLevel: domain.RiskLow,
	})

	result, err := e.Analyze(ctx, final)
	require.NoError(t, err)
	require.True(t, result.HasCorrelation)
	assert.Equal(t, domain.AttackChain, result.Correlation.Type)
	assert.Equal(t, domain.RiskCritical, final.RiskLevel)
	assert.Contains(t, final.RecommendedActions, "Investigate entire attack sequence")
}

func TestEngine_DedupesRepeatedFindingAcrossCalls(t *testing.T) {
	store := eventstore.NewMemoryStore()
	e := newTestEngine(t, store)
	ctx := context.Background()
	base := time.Now()

	for i := 0; i < 5; i++ {
		commitEvent(t, store, domain.SecurityEvent{
			ID:        string(rune('a' + i)),
			Original:  domain.LogEvent{Host: "host-a", User: "jdoe", Time: base.Add(time.Duration(i) * time.Minute)},
			EventType: domain.AuthenticationFailure,
			RiskLevel: domain.RiskLow,
		})
	}
	success := commitEvent(t, store, domain.SecurityEvent{
		ID:        "success",
		Original:  domain.LogEvent{Host: "host-a", User: "jdoe", Time: base.Add(6 * time.Minute)},
		EventType: domain.AuthenticationSuccess,
		RiskLevel: domain.RiskLow,
	})

	first, err := e.Analyze(ctx, success)
	require.NoError(t, err)
	second, err := e.Analyze(ctx, success)
	require.NoError(t, err)

	assert.Equal(t, first.Correlation.ID, second.Correlation.ID)
	stats := e.GetStatistics()
	assert.Equal(t, 1, stats.TotalCorrelations)
}

type fakeChainStore struct {
	edges [][4]string // host, from, to, stage
}

func (f *fakeChainStore) PersistEdge(_ context.Context, host, from, to, stage string) error {
	f.edges = append(f.edges, [4]string{host, from, to, stage})
	return nil
}

func TestEngine_AttackChainPersistsEdgesWhenChainStoreSet(t *testing.T) {
	store := eventstore.NewMemoryStore()
	e := newTestEngine(t, store)
	chains := &fakeChainStore{}
	e.SetChainStore(chains)
	ctx := context.Background()
	base := time.Now()

	commitEvent(t, store, domain.SecurityEvent{
		ID:        "auth",
		Original:  domain.LogEvent{Host: "host-a", Time: base},
		EventType: domain.AuthenticationSuccess,
		RiskLevel: domain.RiskLow,
	})
	commitEvent(t, store, domain.SecurityEvent{
		ID:        "priv",
		Original:  domain.LogEvent{Host: "host-a", Time: base.Add(2 * time.Minute)},
		EventType: domain.PrivilegeEscalation,
		RiskLevel: domain.RiskMedium,
	})
	final := commitEvent(t, store, domain.SecurityEvent{
		ID:        "final",
		Original:  domain.LogEvent{Host: "host-a", Time: base.Add(4 * time.Minute)},
		EventType: domain.ProcessCreation,
		RiskLevel: domain.RiskLow,
	})

	_, err := e.Analyze(ctx, final)
	require.NoError(t, err)
	require.Len(t, chains.edges, 2)
	assert.Equal(t, [4]string{"host-a", "auth", "priv", "completed"}, chains.edges[0])
	assert.Equal(t, [4]string{"host-a", "priv", "final", "completed"}, chains.edges[1])
}
