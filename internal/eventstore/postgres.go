package eventstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iff-guardian/hostguard/internal/domain"
	"github.com/iff-guardian/hostguard/pkg/database"
)

// PostgresStore persists security events in a single append-mostly
// table. Enrichment (Update) rewrites the row in place; nothing is ever
// deleted, matching the append-only invariant in spec §3.
type PostgresStore struct {
	db *database.DB
}

func NewPostgresStore(db *database.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const schemaEvents = `
CREATE TABLE IF NOT EXISTS security_events (
	id                   TEXT PRIMARY KEY,
	unique_id            TEXT UNIQUE NOT NULL,
	original_time        TIMESTAMPTZ NOT NULL,
	host                 TEXT NOT NULL,
	channel              TEXT NOT NULL,
	event_id             INTEGER NOT NULL,
	level                TEXT NOT NULL,
	"user"               TEXT NOT NULL,
	message              TEXT NOT NULL,
	raw_json             TEXT NOT NULL,
	event_type           TEXT NOT NULL,
	risk_level           TEXT NOT NULL,
	confidence           INTEGER NOT NULL,
	summary              TEXT NOT NULL,
	mitre_techniques     TEXT NOT NULL,
	recommended_actions  TEXT NOT NULL,
	is_deterministic     BOOLEAN NOT NULL,
	is_correlation_based BOOLEAN NOT NULL,
	is_enhanced          BOOLEAN NOT NULL,
	correlation_ids      TEXT NOT NULL,
	correlation_context  TEXT NOT NULL,
	correlation_score    DOUBLE PRECISION NOT NULL,
	inserted_seq         BIGSERIAL
);
CREATE INDEX IF NOT EXISTS idx_security_events_time ON security_events (original_time DESC);
CREATE INDEX IF NOT EXISTS idx_security_events_host ON security_events (host);
CREATE INDEX IF NOT EXISTS idx_security_events_user ON security_events ("user");
`

func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schemaEvents)
	return err
}

func encodeSet(m map[string]struct{}) string {
	parts := make([]string, 0, len(m))
	for k := range m {
		parts = append(parts, k)
	}
	return strings.Join(parts, ",")
}

func decodeSet(s string) map[string]struct{} {
	if s == "" {
		return map[string]struct{}{}
	}
	out := make(map[string]struct{})
	for _, p := range strings.Split(s, ",") {
		out[p] = struct{}{}
	}
	return out
}

func (s *PostgresStore) Add(ctx context.Context, event *domain.SecurityEvent) (string, error) {
	if err := event.Validate(); err != nil {
		return "", err
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}

	actions, _ := json.Marshal(event.RecommendedActions)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO security_events (
			id, unique_id, original_time, host, channel, event_id, level, "user", message, raw_json,
			event_type, risk_level, confidence, summary, mitre_techniques, recommended_actions,
			is_deterministic, is_correlation_based, is_enhanced, correlation_ids, correlation_context, correlation_score
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22)
		ON CONFLICT (unique_id) DO NOTHING
	`,
		event.ID, event.Original.UniqueID, event.Original.Time, event.Original.Host, event.Original.Channel,
		event.Original.EventID, event.Original.Level, event.Original.User, event.Original.Message, event.Original.RawJSON,
		string(event.EventType), string(event.RiskLevel), event.Confidence, event.Summary,
		encodeSet(event.MitreTechniques), string(actions),
		event.IsDeterministic, event.IsCorrelationBased, event.IsEnhanced,
		encodeSet(event.CorrelationIDs), event.CorrelationContext, event.CorrelationScore,
	)
	if err != nil {
		return "", domain.ErrStorageUnavailable
	}

	var id string
	if err := s.db.QueryRowContext(ctx, `SELECT id FROM security_events WHERE unique_id = $1`, event.Original.UniqueID).Scan(&id); err != nil {
		return "", domain.ErrStorageUnavailable
	}
	return id, nil
}

func (s *PostgresStore) Update(ctx context.Context, event *domain.SecurityEvent) error {
	actions, _ := json.Marshal(event.RecommendedActions)
	res, err := s.db.ExecContext(ctx, `
		UPDATE security_events SET
			risk_level = $2, confidence = $3, summary = $4, mitre_techniques = $5, recommended_actions = $6,
			is_correlation_based = $7, is_enhanced = $8, correlation_ids = $9, correlation_context = $10, correlation_score = $11
		WHERE id = $1
	`, event.ID, string(event.RiskLevel), event.Confidence, event.Summary, encodeSet(event.MitreTechniques), string(actions),
		event.IsCorrelationBased, event.IsEnhanced, encodeSet(event.CorrelationIDs), event.CorrelationContext, event.CorrelationScore)
	if err != nil {
		return domain.ErrStorageUnavailable
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanEvent(row interface {
	Scan(dest ...interface{}) error
}) (*domain.SecurityEvent, error) {
	var e domain.SecurityEvent
	var eventType, risk, mitre, actionsJSON, correlationIDs string
	if err := row.Scan(
		&e.ID, &e.Original.UniqueID, &e.Original.Time, &e.Original.Host, &e.Original.Channel,
		&e.Original.EventID, &e.Original.Level, &e.Original.User, &e.Original.Message, &e.Original.RawJSON,
		&eventType, &risk, &e.Confidence, &e.Summary, &mitre, &actionsJSON,
		&e.IsDeterministic, &e.IsCorrelationBased, &e.IsEnhanced, &correlationIDs, &e.CorrelationContext, &e.CorrelationScore,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrStorageUnavailable
	}
	e.EventType = domain.SecurityEventType(eventType)
	e.RiskLevel = domain.RiskLevel(risk)
	e.MitreTechniques = decodeSet(mitre)
	e.CorrelationIDs = decodeSet(correlationIDs)
	_ = json.Unmarshal([]byte(actionsJSON), &e.RecommendedActions)
	return &e, nil
}

const eventColumns = `id, unique_id, original_time, host, channel, event_id, level, "user", message, raw_json,
	event_type, risk_level, confidence, summary, mitre_techniques, recommended_actions,
	is_deterministic, is_correlation_based, is_enhanced, correlation_ids, correlation_context, correlation_score`

func (s *PostgresStore) GetByID(ctx context.Context, id string) (*domain.SecurityEvent, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM security_events WHERE id = $1`, id)
	return scanEvent(row)
}

func buildFilter(f domain.EventFilter) (string, []interface{}) {
	var clauses []string
	var args []interface{}
	add := func(clause string, arg interface{}) {
		args = append(args, arg)
		clauses = append(clauses, strings.Replace(clause, "?", "$"+strconv.Itoa(len(args)), 1))
	}
	if f.EventType != "" {
		add("event_type = ?", string(f.EventType))
	}
	if f.RiskLevel != "" {
		add("risk_level = ?", string(f.RiskLevel))
	}
	if f.Host != "" {
		add("host = ?", f.Host)
	}
	if f.User != "" {
		add(`"user" = ?`, f.User)
	}
	if !f.FromTime.IsZero() {
		add("original_time >= ?", f.FromTime)
	}
	if !f.ToTime.IsZero() {
		add("original_time <= ?", f.ToTime)
	}
	if f.HasCorrelation != nil {
		add("is_correlation_based = ?", *f.HasCorrelation)
	}
	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func (s *PostgresStore) Get(ctx context.Context, page, pageSize int, filter domain.EventFilter) ([]domain.SecurityEvent, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	where, args := buildFilter(filter)
	args = append(args, pageSize, (page-1)*pageSize)
	query := `SELECT ` + eventColumns + ` FROM security_events` + where +
		` ORDER BY original_time DESC, inserted_seq ASC LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, domain.ErrStorageUnavailable
	}
	defer rows.Close()

	var out []domain.SecurityEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, nil
}

func (s *PostgresStore) Count(ctx context.Context, filter domain.EventFilter) (int, error) {
	where, args := buildFilter(filter)
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM security_events`+where, args...).Scan(&n); err != nil {
		return 0, domain.ErrStorageUnavailable
	}
	return n, nil
}

func (s *PostgresStore) RecentByHost(ctx context.Context, host string, since time.Time, limit int) ([]domain.SecurityEvent, error) {
	return s.Get(ctx, 1, limit, domain.EventFilter{Host: host, FromTime: since})
}

func (s *PostgresStore) RecentByUser(ctx context.Context, user string, since time.Time, limit int) ([]domain.SecurityEvent, error) {
	return s.Get(ctx, 1, limit, domain.EventFilter{User: user, FromTime: since})
}
