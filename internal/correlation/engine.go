// Package correlation implements the Correlation Engine (component G):
// sliding per-host/per-user windows feeding five detectors, plus a global
// per-event-type burst counter that records every analyzed event (no
// detector reads it), with append-only findings, risk-upgrade enrichment,
// and failure isolation so a detector fault never poisons the event stream.
package correlation

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iff-guardian/hostguard/internal/domain"
	"github.com/iff-guardian/hostguard/internal/eventstore"
	"github.com/iff-guardian/hostguard/internal/mitre"
	"github.com/iff-guardian/hostguard/pkg/logger"
	"github.com/iff-guardian/hostguard/pkg/metrics"
)

const historyLookback = 30 * time.Minute // widest detector window

// typeFloor maps a correlation type to the minimum risk level an event
// enriched by it must carry; TemporalBurst is absent, since it leaves risk
// unchanged.
var typeFloor = map[domain.CorrelationType]domain.RiskLevel{
	domain.AttackChain:     domain.RiskCritical,
	domain.LateralMovement: domain.RiskHigh,
	domain.BruteForce:      domain.RiskHigh,
}

// Engine runs the five correlation detectors over recently committed
// events and enriches a SecurityEvent in place when one fires.
type Engine struct {
	events eventstore.Store
	burst  GlobalBurstTracker
	ml     MLAdapter
	log    logger.Logger
	metrics *metrics.Collector
	chainStore ChainStore

	mu           sync.Mutex
	rulesByID    map[string]domain.CorrelationRule
	ruleIDByType map[domain.CorrelationType]string
	seenDedup    map[string]string
	findings     map[string]domain.Correlation
	stats        domain.CorrelationStatistics
}

func New(events eventstore.Store, burst GlobalBurstTracker, ml MLAdapter, log logger.Logger, mc *metrics.Collector) *Engine {
	if ml == nil {
		ml = NoopMLAdapter{}
	}
	rules := domain.DefaultCorrelationRules()
	rulesByID := make(map[string]domain.CorrelationRule, len(rules))
	for _, r := range rules {
		rulesByID[r.ID] = r
	}
	return &Engine{
		events: events,
		burst:  burst,
		ml:     ml,
		log:    log,
		metrics: mc,
		rulesByID: rulesByID,
		// AttackChain is gated by the privilege-escalation rule: its
		// final stage is the chain's defining step.
		ruleIDByType: map[domain.CorrelationType]string{
			domain.TemporalBurst:   "temporal-burst",
			domain.BruteForce:      "brute-force",
			domain.LateralMovement: "lateral-movement",
			domain.AttackChain:     "privilege-escalation",
		},
		seenDedup: make(map[string]string),
		findings:  make(map[string]domain.Correlation),
		stats:     domain.CorrelationStatistics{ByType: make(map[domain.CorrelationType]int)},
	}
}

func (e *Engine) minConfidence(t domain.CorrelationType) (float64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	id, ok := e.ruleIDByType[t]
	if !ok {
		return 0, true
	}
	rule, ok := e.rulesByID[id]
	if !ok || !rule.Enabled {
		return 0, false
	}
	return rule.MinConfidence, true
}

func (e *Engine) ruleNameForType(t domain.CorrelationType) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	id, ok := e.ruleIDByType[t]
	if !ok {
		return "", false
	}
	rule, ok := e.rulesByID[id]
	if !ok {
		return "", false
	}
	return rule.Name, true
}

// Analyze runs synchronous per-event correlation. It never returns an
// error to the caller for detector-internal faults: those are logged and
// treated as "no correlation", so a bad detector cannot poison the
// pipeline.
func (e *Engine) Analyze(ctx context.Context, event *domain.SecurityEvent) (result domain.AnalysisResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("correlation analysis panicked, continuing with base event", "panic", r, "event_id", event.ID)
			result = domain.AnalysisResult{Explanation: "analysis failed internally, event left unenriched"}
			err = nil
		}
	}()

	hostHistory, herr := e.events.RecentByHost(ctx, event.Original.Host, event.Original.Time.Add(-historyLookback), 500)
	if herr != nil {
		e.log.Error("failed to load host history for correlation", "error", herr, "host", event.Original.Host)
		hostHistory = nil
	}
	userHistory, uerr := e.events.RecentByUser(ctx, event.Original.User, event.Original.Time.Add(-historyLookback), 500)
	if uerr != nil {
		e.log.Error("failed to load user history for correlation", "error", uerr, "user", event.Original.User)
		userHistory = nil
	}

	// The pipeline commits an event before analyzing it, so it already
	// appears in its own host/user history; exclude it to avoid detectors
	// counting it twice.
	hostHistory = excludeByID(hostHistory, event.ID)
	userHistory = excludeByID(userHistory, event.ID)

	_ = e.burst.Record(ctx, string(event.EventType), event.ID, event.Original.Time)

	candidates := e.runDetectors(ctx, *event, hostHistory, userHistory)
	if len(candidates) == 0 {
		return domain.AnalysisResult{Explanation: "no correlation matched"}, nil
	}
	if event.CorrelationIDs == nil {
		event.CorrelationIDs = make(map[string]struct{})
	}

	winner := candidates[0]
	for _, c := range candidates[1:] {
		if betterMatch(c, winner) {
			winner = c
		}
	}

	matchedRuleNames := make([]string, 0, len(candidates))
	for _, c := range candidates {
		found := e.commitFinding(c)
		event.CorrelationIDs[found.ID] = struct{}{}
		if name, ok := e.ruleNameForType(c.typ); ok {
			matchedRuleNames = append(matchedRuleNames, name)
		}
	}

	winnerFinding := e.commitFinding(winner)
	floor := typeFloor[winner.typ]
	if floor == "" {
		floor = event.RiskLevel
	}
	event.Enrich(winnerFinding.ID, winner.confidence, winner.pattern, floor)
	event.AddRecommendedActions(winner.actions...)
	event.AddMitre(winner.mitre...)
	if len(winner.mitre) > 0 {
		event.AddRecommendedActions("Review techniques: " + strings.Join(mitre.DescribeAll(winner.mitre), "; "))
	}
	if winner.typ == domain.AttackChain {
		e.persistChain(ctx, event.Original.Host, winner)
	}

	e.metrics.CorrelationsFound.WithLabelValues(string(winner.typ)).Inc()

	return domain.AnalysisResult{
		HasCorrelation: true,
		Confidence:     winner.confidence,
		Correlation:    &winnerFinding,
		MatchedRules:   matchedRuleNames,
		Explanation:    winner.pattern,
	}, nil
}

func excludeByID(events []domain.SecurityEvent, id string) []domain.SecurityEvent {
	if id == "" {
		return events
	}
	out := events[:0:0]
	for _, e := range events {
		if e.ID == id {
			continue
		}
		out = append(out, e)
	}
	return out
}

// betterMatch reports whether candidate outranks current by (risk_rank,
// confidence), the engine's enrichment tie-break.
func betterMatch(candidate, current detection) bool {
	if candidate.risk.Rank() != current.risk.Rank() {
		return candidate.risk.Rank() > current.risk.Rank()
	}
	return candidate.confidence > current.confidence
}

func (e *Engine) runDetectors(ctx context.Context, candidate domain.SecurityEvent, hostHistory, userHistory []domain.SecurityEvent) []detection {
	var out []detection

	if d := detectBruteForce(candidate, hostHistory); d != nil {
		if min, ok := e.minConfidence(domain.BruteForce); ok && d.confidence >= min {
			out = append(out, *d)
		}
	}
	if d := detectTemporalBurst(candidate, hostHistory); d != nil {
		if min, ok := e.minConfidence(domain.TemporalBurst); ok && d.confidence >= min {
			out = append(out, *d)
		}
	}
	if d := detectLateralMovement(candidate, userHistory); d != nil {
		if min, ok := e.minConfidence(domain.LateralMovement); ok && d.confidence >= min {
			out = append(out, *d)
		}
	}
	if d := detectAttackChain(candidate, hostHistory); d != nil {
		if min, ok := e.minConfidence(domain.AttackChain); ok && d.confidence >= min {
			out = append(out, *d)
		}
	}
	if pred, err := e.ml.Predict(ctx, candidate, hostHistory); err == nil && pred != nil && pred.Confidence >= 0.6 {
		out = append(out, detection{
			typ: domain.MLDetected, confidence: pred.Confidence, pattern: pred.Pattern,
			eventIDs: []string{candidate.ID}, risk: candidate.RiskLevel,
			actions: []string{"Review ML-detected anomaly pattern", "Consider updating correlation rules"},
		})
	}
	return out
}

// commitFinding assigns a stable, deduplicated identity to a raw
// detection and records it in the append-only findings table.
func (e *Engine) commitFinding(d detection) domain.Correlation {
	c := domain.Correlation{
		Type: d.typ, Confidence: d.confidence, Pattern: d.pattern, EventIDs: d.eventIDs,
		TimeWindow: d.window, RiskLevel: d.risk, MitreTechniques: d.mitre,
		RecommendedActions: d.actions, AttackChainStage: d.stage, DetectedAt: time.Now(),
	}
	key := c.DedupeKey()

	e.mu.Lock()
	defer e.mu.Unlock()
	if existingID, ok := e.seenDedup[key]; ok {
		if existing, ok := e.findings[existingID]; ok {
			return existing
		}
	}
	c.ID = uuid.NewString()
	e.seenDedup[key] = c.ID
	e.findings[c.ID] = c
	e.stats.TotalCorrelations++
	e.stats.ByType[c.Type]++
	if c.Type == domain.AttackChain {
		e.stats.AttackChainsActive++
	}
	return c
}

// AnalyzeBatch runs correlation over a closed set of events, the offline
// equivalent of repeated Analyze calls: each event is checked against the
// other events of its host and of its user, without mutating the events
// themselves. Each detector applies its own time window; window is not used.
func (e *Engine) AnalyzeBatch(ctx context.Context, events []domain.SecurityEvent, window time.Duration) []domain.Correlation {
	var out []domain.Correlation
	byHost := make(map[string][]domain.SecurityEvent)
	byUser := make(map[string][]domain.SecurityEvent)
	for _, ev := range events {
		byHost[ev.Original.Host] = append(byHost[ev.Original.Host], ev)
		byUser[ev.Original.User] = append(byUser[ev.Original.User], ev)
	}
	for i := range events {
		ev := events[i]
		hostHistory := excludeByID(byHost[ev.Original.Host], ev.ID)
		userHistory := excludeByID(byUser[ev.Original.User], ev.ID)
		for _, d := range e.runDetectors(ctx, ev, hostHistory, userHistory) {
			out = append(out, e.commitFinding(d))
		}
	}
	return out
}

// DetectAttackChains scans events for completed attack-chain sequences
// without requiring a live Analyze call per event.
func (e *Engine) DetectAttackChains(ctx context.Context, events []domain.SecurityEvent, window time.Duration) []domain.Correlation {
	byHost := make(map[string][]domain.SecurityEvent)
	for _, ev := range events {
		byHost[ev.Original.Host] = append(byHost[ev.Original.Host], ev)
	}
	var out []domain.Correlation
	for i := range events {
		ev := events[i]
		if d := detectAttackChain(ev, byHost[ev.Original.Host]); d != nil {
			out = append(out, e.commitFinding(*d))
		}
	}
	return out
}

func (e *Engine) GetCorrelations(from, to time.Time) []domain.Correlation {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []domain.Correlation
	for _, c := range e.findings {
		if !c.DetectedAt.Before(from) && !c.DetectedAt.After(to) {
			out = append(out, c)
		}
	}
	return out
}

func (e *Engine) GetStatistics() domain.CorrelationStatistics {
	e.mu.Lock()
	defer e.mu.Unlock()
	byType := make(map[domain.CorrelationType]int, len(e.stats.ByType))
	for k, v := range e.stats.ByType {
		byType[k] = v
	}
	stats := e.stats
	stats.ByType = byType
	return stats
}

func (e *Engine) GetRules() []domain.CorrelationRule {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]domain.CorrelationRule, 0, len(e.rulesByID))
	for _, r := range e.rulesByID {
		out = append(out, r)
	}
	return out
}

func (e *Engine) UpdateRule(rule domain.CorrelationRule) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.rulesByID[rule.ID]; !ok {
		return domain.ErrNotFound
	}
	e.rulesByID[rule.ID] = rule
	return nil
}

// TrainModels is a documented no-op: online model training is out of
// scope. It only validates the sample count and logs, matching the
// "accepts >= N samples, otherwise records a warning and returns"
// contract without ever mutating detector behavior.
func (e *Engine) TrainModels(confirmed []domain.SecurityEvent) {
	const minSamples = 50
	if len(confirmed) < minSamples {
		e.log.Warn("train_models called with too few samples, ignoring", "samples", len(confirmed), "minimum", minSamples)
		return
	}
	e.log.Info(fmt.Sprintf("train_models received %d confirmed samples; online training is not implemented", len(confirmed)))
}

// CleanupOldCorrelations evicts findings older than maxAge from the
// in-memory table, bounding its growth.
func (e *Engine) CleanupOldCorrelations(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)
	e.mu.Lock()
	defer e.mu.Unlock()
	removed := 0
	for id, c := range e.findings {
		if c.DetectedAt.Before(cutoff) {
			delete(e.findings, id)
			removed++
		}
	}
	return removed
}
