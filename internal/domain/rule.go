package domain

// SecurityEventRule maps a (channel, event id) pair to the classification
// template the normalizer stamps onto a matching LogEvent. Rules are
// ordered by Priority DESC, EventID ASC; only Enabled rules participate.
type SecurityEventRule struct {
	EventID            int
	Channel            string
	EventType          SecurityEventType
	BaseRisk           RiskLevel
	BaseConfidence     int
	SummaryTemplate    string
	MitreTechniques    []string
	RecommendedActions []string
	Priority           int
	Enabled            bool
}

// Key identifies the (channel, event id) pair a rule classifies.
type RuleKey struct {
	Channel string
	EventID int
}

func (r SecurityEventRule) Key() RuleKey {
	return RuleKey{Channel: r.Channel, EventID: r.EventID}
}
