package domain

import "time"

// SecurityEventType is the closed classification enum produced by the
// normalizer and, in the Unknown case, rejected rather than stored.
type SecurityEventType string

const (
	AuthenticationSuccess SecurityEventType = "AuthenticationSuccess"
	AuthenticationFailure SecurityEventType = "AuthenticationFailure"
	PrivilegeEscalation   SecurityEventType = "PrivilegeEscalation"
	AccountManagement     SecurityEventType = "AccountManagement"
	ProcessCreation       SecurityEventType = "ProcessCreation"
	ServiceInstallation   SecurityEventType = "ServiceInstallation"
	ScheduledTask         SecurityEventType = "ScheduledTask"
	SecurityPolicyChange  SecurityEventType = "SecurityPolicyChange"
	NetworkConnection     SecurityEventType = "NetworkConnection"
	PowerShellExecution   SecurityEventType = "PowerShellExecution"
	SystemStartup         SecurityEventType = "SystemStartup"
	SystemShutdown        SecurityEventType = "SystemShutdown"
	SuspiciousActivity    SecurityEventType = "SuspiciousActivity"
	UnknownEventType      SecurityEventType = "Unknown"
)

// RiskLevel is ordered low < medium < high < critical; correlation
// enrichment may only move an event rightward on this scale.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

var riskRank = map[RiskLevel]int{
	RiskLow:      0,
	RiskMedium:   1,
	RiskHigh:     2,
	RiskCritical: 3,
}

// Rank returns the risk level's position on the low..critical scale, used
// to enforce the monotonic-upgrade invariant and to break correlation
// enrichment ties.
func (r RiskLevel) Rank() int {
	return riskRank[r]
}

// Max returns the higher-ranked of the two risk levels.
func (r RiskLevel) Max(other RiskLevel) RiskLevel {
	if other.Rank() > r.Rank() {
		return other
	}
	return r
}

// SecurityEvent is the core pipeline output: a classified, optionally
// correlation-enriched, view of a single LogEvent.
type SecurityEvent struct {
	ID                string
	Original          LogEvent
	EventType         SecurityEventType
	RiskLevel         RiskLevel
	Confidence        int // 0..100
	Summary           string
	MitreTechniques   map[string]struct{}
	RecommendedActions []string

	IsDeterministic     bool
	IsCorrelationBased  bool
	IsEnhanced          bool
	CorrelationIDs      map[string]struct{}
	CorrelationContext  string
	CorrelationScore    float64 // 0..1, only meaningful when IsEnhanced
}

// Validate enforces the schema invariants that make an event eligible for
// storage: it must carry its originating LogEvent and must not be the
// Unknown type (a rule match that produced Unknown means no match at all).
func (e *SecurityEvent) Validate() error {
	if e.Original.UniqueID == "" {
		return ErrInvalidEvent
	}
	if e.EventType == "" || e.EventType == UnknownEventType {
		return ErrInvalidEvent
	}
	return nil
}

// Mitre returns the technique ids as a stable, sorted slice.
func (e *SecurityEvent) Mitre() []string {
	out := make([]string, 0, len(e.MitreTechniques))
	for t := range e.MitreTechniques {
		out = append(out, t)
	}
	sortStrings(out)
	return out
}

// AddMitre merges technique ids into the event's technique set.
func (e *SecurityEvent) AddMitre(techniques ...string) {
	if e.MitreTechniques == nil {
		e.MitreTechniques = make(map[string]struct{})
	}
	for _, t := range techniques {
		e.MitreTechniques[t] = struct{}{}
	}
}

// AddRecommendedActions appends actions the event does not already carry,
// preserving order and never replacing what a rule or earlier enrichment
// already suggested.
func (e *SecurityEvent) AddRecommendedActions(actions ...string) {
	existing := make(map[string]struct{}, len(e.RecommendedActions))
	for _, a := range e.RecommendedActions {
		existing[a] = struct{}{}
	}
	for _, a := range actions {
		if _, ok := existing[a]; ok {
			continue
		}
		e.RecommendedActions = append(e.RecommendedActions, a)
		existing[a] = struct{}{}
	}
}

// UpgradeRisk raises RiskLevel to at least floor, never downgrading it —
// the monotonic-upgrade invariant correlation enrichment must respect.
func (e *SecurityEvent) UpgradeRisk(floor RiskLevel) {
	e.RiskLevel = e.RiskLevel.Max(floor)
}

// BumpConfidence increases confidence by delta, capped at 100.
func (e *SecurityEvent) BumpConfidence(delta int) {
	e.Confidence += delta
	if e.Confidence > 100 {
		e.Confidence = 100
	}
}

// Enrich marks an event as correlation-enhanced and records which
// correlation(s) contributed, keeping the context of the highest-scoring
// correlation seen so far as the primary CorrelationContext.
func (e *SecurityEvent) Enrich(correlationID string, score float64, context string, floor RiskLevel) {
	if e.CorrelationIDs == nil {
		e.CorrelationIDs = make(map[string]struct{})
	}
	e.CorrelationIDs[correlationID] = struct{}{}
	e.IsCorrelationBased = true
	e.IsEnhanced = true
	if score > e.CorrelationScore {
		e.CorrelationScore = score
		e.CorrelationContext = context
	}
	e.UpgradeRisk(floor)
	e.BumpConfidence(10)
}

// EventFilter is the set of recognized filter keys for paged event store
// reads.
type EventFilter struct {
	EventType      SecurityEventType
	RiskLevel      RiskLevel
	Host           string
	User           string
	FromTime       time.Time
	ToTime         time.Time
	HasCorrelation *bool
}
