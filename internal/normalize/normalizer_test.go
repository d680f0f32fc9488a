package normalize

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iff-guardian/hostguard/internal/domain"
	"github.com/iff-guardian/hostguard/internal/rules"
)

func noon() time.Time {
	return time.Date(2026, 7, 30, 12, 0, 0, 0, time.Local)
}

func afterHours() time.Time {
	return time.Date(2026, 7, 30, 22, 0, 0, 0, time.Local)
}

func TestNormalizer_NoMatchReturnsNilEvent(t *testing.T) {
	store := rules.NewMemoryStore()
	n := New(store)

	sec, err := n.Classify(context.Background(), domain.LogEvent{
		Channel: "Security", EventID: 9999, UniqueID: "Security:1", Time: noon(),
	})
	require.NoError(t, err)
	assert.Nil(t, sec)
}

func TestNormalizer_MatchStampsTemplateFields(t *testing.T) {
	store := rules.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, domain.SecurityEventRule{
		Channel: "Security", EventID: 4624, EventType: domain.AuthenticationSuccess,
		BaseRisk: domain.RiskLow, BaseConfidence: 70, SummaryTemplate: "successful logon",
		MitreTechniques: []string{"T1078"}, Priority: 10, Enabled: true,
	}))
	n := New(store)

	sec, err := n.Classify(ctx, domain.LogEvent{
		Channel: "Security", EventID: 4624, UniqueID: "Security:1", User: "jdoe", Time: noon(),
	})
	require.NoError(t, err)
	require.NotNil(t, sec)
	assert.Equal(t, domain.AuthenticationSuccess, sec.EventType)
	assert.Equal(t, domain.RiskLow, sec.RiskLevel)
	assert.Contains(t, sec.Mitre(), "T1078")
	assert.True(t, sec.IsDeterministic)
}

func TestNormalizer_AdminAccountUpgradesMediumToHigh(t *testing.T) {
	store := rules.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, domain.SecurityEventRule{
		Channel: "Security", EventID: 4732, EventType: domain.AccountManagement,
		BaseRisk: domain.RiskMedium, Priority: 10, Enabled: true,
	}))
	n := New(store)

	sec, err := n.Classify(ctx, domain.LogEvent{
		Channel: "Security", EventID: 4732, UniqueID: "Security:2", User: "Administrator", Time: noon(),
	})
	require.NoError(t, err)
	require.NotNil(t, sec)
	assert.Equal(t, domain.RiskHigh, sec.RiskLevel)
}

func TestNormalizer_AfterHoursUpgradesLowToMedium(t *testing.T) {
	store := rules.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, domain.SecurityEventRule{
		Channel: "Security", EventID: 4688, EventType: domain.ProcessCreation,
		BaseRisk: domain.RiskLow, Priority: 10, Enabled: true,
	}))
	n := New(store)

	sec, err := n.Classify(ctx, domain.LogEvent{
		Channel: "Security", EventID: 4688, UniqueID: "Security:3", User: "jdoe", Time: afterHours(),
	})
	require.NoError(t, err)
	require.NotNil(t, sec)
	assert.Equal(t, domain.RiskMedium, sec.RiskLevel)
}

func TestNormalizer_HighRiskUnaffectedByContextualAdjustments(t *testing.T) {
	store := rules.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, domain.SecurityEventRule{
		Channel: "Security", EventID: 4672, EventType: domain.PrivilegeEscalation,
		BaseRisk: domain.RiskHigh, Priority: 10, Enabled: true,
	}))
	n := New(store)

	sec, err := n.Classify(ctx, domain.LogEvent{
		Channel: "Security", EventID: 4672, UniqueID: "Security:4", User: "root", Time: afterHours(),
	})
	require.NoError(t, err)
	require.NotNil(t, sec)
	assert.Equal(t, domain.RiskHigh, sec.RiskLevel)
}
