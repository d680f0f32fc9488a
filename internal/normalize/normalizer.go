// Package normalize implements the Normalizer (component D): it resolves a
// LogEvent against the Rule Store and applies the two deterministic
// contextual risk adjustments the rule template itself cannot encode.
package normalize

import (
	"context"
	"regexp"
	"time"

	"github.com/iff-guardian/hostguard/internal/domain"
	"github.com/iff-guardian/hostguard/internal/rules"
)

var adminAccountPattern = regexp.MustCompile(`(?i)^(administrator|admin|root|system)$`)

// Normalizer classifies LogEvents into SecurityEvents via the Rule Store.
type Normalizer struct {
	store rules.Store
}

func New(store rules.Store) *Normalizer {
	return &Normalizer{store: store}
}

// Classify resolves event against the rule table and stamps its template
// fields, then applies contextual risk adjustments. Returns nil, nil when
// no rule matches — "no event" is not an error.
func (n *Normalizer) Classify(ctx context.Context, event domain.LogEvent) (*domain.SecurityEvent, error) {
	rule, err := n.store.Match(ctx, event.Channel, event.EventID)
	if err != nil {
		return nil, err
	}
	if rule == nil {
		return nil, nil
	}

	sec := &domain.SecurityEvent{
		Original:            event,
		EventType:           rule.EventType,
		RiskLevel:           rule.BaseRisk,
		Confidence:          rule.BaseConfidence,
		Summary:             rule.SummaryTemplate,
		MitreTechniques:     make(map[string]struct{}),
		RecommendedActions:  append([]string(nil), rule.RecommendedActions...),
		IsDeterministic:     true,
		CorrelationIDs:      make(map[string]struct{}),
	}
	sec.AddMitre(rule.MitreTechniques...)

	applyContextualAdjustments(sec)

	if err := sec.Validate(); err != nil {
		return nil, err
	}
	return sec, nil
}

// applyContextualAdjustments implements the two deterministic upgrades the
// rule table cannot express: an admin-account upgrade and an after-hours
// upgrade. Both only ever raise risk, never lower it.
func applyContextualAdjustments(sec *domain.SecurityEvent) {
	if adminAccountPattern.MatchString(sec.Original.User) {
		if sec.RiskLevel == domain.RiskMedium {
			sec.RiskLevel = domain.RiskHigh
		}
	}
	if outsideBusinessHours(sec.Original.Time) {
		if sec.RiskLevel == domain.RiskLow {
			sec.RiskLevel = domain.RiskMedium
		}
	}
}

func outsideBusinessHours(t time.Time) bool {
	local := t.Local()
	hour := local.Hour()
	return hour < 8 || hour >= 18
}
