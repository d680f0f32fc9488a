package rules

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"sync"

	"github.com/iff-guardian/hostguard/internal/domain"
	"github.com/iff-guardian/hostguard/pkg/database"
	"github.com/iff-guardian/hostguard/pkg/metrics"
)

const schemaRules = `
CREATE TABLE IF NOT EXISTS security_event_rules (
	channel             TEXT NOT NULL,
	event_id            INTEGER NOT NULL,
	event_type          TEXT NOT NULL,
	base_risk           TEXT NOT NULL,
	base_confidence     INTEGER NOT NULL,
	summary_template    TEXT NOT NULL,
	mitre_techniques    TEXT NOT NULL,
	recommended_actions TEXT NOT NULL,
	priority            INTEGER NOT NULL,
	enabled             BOOLEAN NOT NULL DEFAULT true,
	PRIMARY KEY (channel, event_id)
);
`

// PostgresStore is the durable backing store for rules; Normalizer
// lookups go through CachedStore, not this type directly.
type PostgresStore struct {
	db *database.DB
}

func NewPostgresStore(db *database.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schemaRules)
	return err
}

func scanRule(row interface{ Scan(dest ...interface{}) error }) (*domain.SecurityEventRule, error) {
	var r domain.SecurityEventRule
	var eventType, mitreCSV, actionsJSON string
	if err := row.Scan(&r.Channel, &r.EventID, &eventType, &r.BaseRisk, &r.BaseConfidence,
		&r.SummaryTemplate, &mitreCSV, &actionsJSON, &r.Priority, &r.Enabled); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrStorageUnavailable
	}
	r.EventType = domain.SecurityEventType(eventType)
	if mitreCSV != "" {
		r.MitreTechniques = strings.Split(mitreCSV, ",")
	}
	_ = json.Unmarshal([]byte(actionsJSON), &r.RecommendedActions)
	return &r, nil
}

const ruleColumns = `channel, event_id, event_type, base_risk, base_confidence, summary_template, mitre_techniques, recommended_actions, priority, enabled`

func (s *PostgresStore) Match(ctx context.Context, channel string, eventID int) (*domain.SecurityEventRule, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+ruleColumns+` FROM security_event_rules
		WHERE channel = $1 AND event_id = $2 AND enabled = true
		ORDER BY priority DESC, event_id ASC LIMIT 1`, channel, eventID)
	rule, err := scanRule(row)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	return rule, err
}

func (s *PostgresStore) Create(ctx context.Context, rule domain.SecurityEventRule) error {
	var existingPriority int
	err := s.db.QueryRowContext(ctx, `SELECT priority FROM security_event_rules WHERE channel = $1 AND event_id = $2 AND priority = $3`,
		rule.Channel, rule.EventID, rule.Priority).Scan(&existingPriority)
	if err == nil {
		return domain.ErrRuleConflict
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return domain.ErrStorageUnavailable
	}

	actions, _ := json.Marshal(rule.RecommendedActions)
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO security_event_rules (channel, event_id, event_type, base_risk, base_confidence, summary_template, mitre_techniques, recommended_actions, priority, enabled)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (channel, event_id) DO UPDATE SET
			event_type = EXCLUDED.event_type, base_risk = EXCLUDED.base_risk, base_confidence = EXCLUDED.base_confidence,
			summary_template = EXCLUDED.summary_template, mitre_techniques = EXCLUDED.mitre_techniques,
			recommended_actions = EXCLUDED.recommended_actions, priority = EXCLUDED.priority, enabled = EXCLUDED.enabled
	`, rule.Channel, rule.EventID, string(rule.EventType), rule.BaseRisk, rule.BaseConfidence,
		rule.SummaryTemplate, strings.Join(rule.MitreTechniques, ","), string(actions), rule.Priority, rule.Enabled)
	if err != nil {
		return domain.ErrStorageUnavailable
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, rule domain.SecurityEventRule) error {
	actions, _ := json.Marshal(rule.RecommendedActions)
	res, err := s.db.ExecContext(ctx, `
		UPDATE security_event_rules SET event_type = $3, base_risk = $4, base_confidence = $5,
			summary_template = $6, mitre_techniques = $7, recommended_actions = $8, priority = $9, enabled = $10
		WHERE channel = $1 AND event_id = $2
	`, rule.Channel, rule.EventID, string(rule.EventType), rule.BaseRisk, rule.BaseConfidence,
		rule.SummaryTemplate, strings.Join(rule.MitreTechniques, ","), string(actions), rule.Priority, rule.Enabled)
	if err != nil {
		return domain.ErrStorageUnavailable
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, key domain.RuleKey) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM security_event_rules WHERE channel = $1 AND event_id = $2`, key.Channel, key.EventID)
	if err != nil {
		return domain.ErrStorageUnavailable
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context) ([]domain.SecurityEventRule, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+ruleColumns+` FROM security_event_rules ORDER BY channel, priority DESC, event_id ASC`)
	if err != nil {
		return nil, domain.ErrStorageUnavailable
	}
	defer rows.Close()

	var out []domain.SecurityEventRule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, nil
}

// CachedStore wraps a durable Store with an in-process cache that
// invalidates on any write, and a single-flight loader so concurrent
// cache misses for the same key only hit storage once.
type CachedStore struct {
	backing Store
	metrics *metrics.Collector

	mu    sync.RWMutex
	cache map[domain.RuleKey]*domain.SecurityEventRule

	loadMu   sync.Mutex
	inFlight map[domain.RuleKey]*sync.WaitGroup
}

func NewCachedStore(backing Store, mc *metrics.Collector) *CachedStore {
	return &CachedStore{
		backing:  backing,
		metrics:  mc,
		cache:    make(map[domain.RuleKey]*domain.SecurityEventRule),
		inFlight: make(map[domain.RuleKey]*sync.WaitGroup),
	}
}

func (c *CachedStore) Match(ctx context.Context, channel string, eventID int) (*domain.SecurityEventRule, error) {
	key := domain.RuleKey{Channel: channel, EventID: eventID}

	c.mu.RLock()
	rule, ok := c.cache[key]
	c.mu.RUnlock()
	if ok {
		c.metrics.RuleCacheHits.WithLabelValues(channel).Inc()
		return rule, nil
	}
	c.metrics.RuleCacheMisses.WithLabelValues(channel).Inc()

	return c.loadSingleFlight(ctx, key)
}

// loadSingleFlight ensures only one goroutine queries storage per key at a
// time; others wait for it and reuse its result.
func (c *CachedStore) loadSingleFlight(ctx context.Context, key domain.RuleKey) (*domain.SecurityEventRule, error) {
	c.loadMu.Lock()
	if wg, loading := c.inFlight[key]; loading {
		c.loadMu.Unlock()
		wg.Wait()
		c.mu.RLock()
		defer c.mu.RUnlock()
		return c.cache[key], nil
	}
	wg := &sync.WaitGroup{}
	wg.Add(1)
	c.inFlight[key] = wg
	c.loadMu.Unlock()

	defer func() {
		c.loadMu.Lock()
		delete(c.inFlight, key)
		c.loadMu.Unlock()
		wg.Done()
	}()

	rule, err := c.backing.Match(ctx, key.Channel, key.EventID)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.cache[key] = rule
	c.mu.Unlock()
	return rule, nil
}

func (c *CachedStore) invalidate(key domain.RuleKey) {
	c.mu.Lock()
	delete(c.cache, key)
	c.mu.Unlock()
}

func (c *CachedStore) Create(ctx context.Context, rule domain.SecurityEventRule) error {
	if err := c.backing.Create(ctx, rule); err != nil {
		return err
	}
	c.invalidate(rule.Key())
	return nil
}

func (c *CachedStore) Update(ctx context.Context, rule domain.SecurityEventRule) error {
	if err := c.backing.Update(ctx, rule); err != nil {
		return err
	}
	c.invalidate(rule.Key())
	return nil
}

func (c *CachedStore) Delete(ctx context.Context, key domain.RuleKey) error {
	if err := c.backing.Delete(ctx, key); err != nil {
		return err
	}
	c.invalidate(key)
	return nil
}

func (c *CachedStore) List(ctx context.Context) ([]domain.SecurityEventRule, error) {
	return c.backing.List(ctx)
}
