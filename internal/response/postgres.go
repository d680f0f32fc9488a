package response

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/iff-guardian/hostguard/internal/domain"
	"github.com/iff-guardian/hostguard/pkg/database"
)

const schemaActions = `
CREATE TABLE IF NOT EXISTS action_executions (
	id                    TEXT PRIMARY KEY,
	conversation_id       TEXT NOT NULL,
	suggesting_message_id TEXT NOT NULL,
	type                  TEXT NOT NULL,
	action_data           TEXT NOT NULL,
	status                TEXT NOT NULL,
	suggested_at          TIMESTAMPTZ NOT NULL,
	executed_at           TIMESTAMPTZ,
	rolled_back_at        TIMESTAMPTZ,
	executed_by           TEXT NOT NULL DEFAULT '',
	rolled_back_by        TEXT NOT NULL DEFAULT '',
	rollback_reason       TEXT NOT NULL DEFAULT '',
	before_state          TEXT NOT NULL DEFAULT '',
	after_state           TEXT NOT NULL DEFAULT '',
	execution_log         TEXT NOT NULL DEFAULT '[]'
);
CREATE INDEX IF NOT EXISTS idx_action_executions_conversation ON action_executions (conversation_id);`

// PostgresStore persists ActionExecution records one row per action id.
type PostgresStore struct {
	db *database.DB
}

func NewPostgresStore(db *database.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schemaActions)
	return err
}

const actionColumns = `id, conversation_id, suggesting_message_id, type, action_data, status,
	suggested_at, executed_at, rolled_back_at, executed_by, rolled_back_by,
	rollback_reason, before_state, after_state, execution_log`

func scanAction(row interface {
	Scan(dest ...interface{}) error
}) (*domain.ActionExecution, error) {
	var a domain.ActionExecution
	var dataJSON, logJSON string
	if err := row.Scan(
		&a.ID, &a.ConversationID, &a.SuggestingMessageID, &a.Type, &dataJSON, &a.Status,
		&a.SuggestedAt, &a.ExecutedAt, &a.RolledBackAt, &a.ExecutedBy, &a.RolledBackBy,
		&a.RollbackReason, &a.BeforeState, &a.AfterState, &logJSON,
	); err != nil {
		return nil, err
	}
	_ = json.Unmarshal([]byte(dataJSON), &a.ActionData)
	_ = json.Unmarshal([]byte(logJSON), &a.ExecutionLog)
	return &a, nil
}

func (s *PostgresStore) Create(ctx context.Context, a *domain.ActionExecution) error {
	dataJSON, _ := json.Marshal(a.ActionData)
	logJSON, _ := json.Marshal(a.ExecutionLog)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO action_executions (`+actionColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
	`, a.ID, a.ConversationID, a.SuggestingMessageID, a.Type, string(dataJSON), a.Status,
		a.SuggestedAt, a.ExecutedAt, a.RolledBackAt, a.ExecutedBy, a.RolledBackBy,
		a.RollbackReason, a.BeforeState, a.AfterState, string(logJSON))
	if err != nil {
		return domain.ErrStorageUnavailable
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*domain.ActionExecution, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+actionColumns+` FROM action_executions WHERE id = $1`, id)
	a, err := scanAction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrStorageUnavailable
	}
	return a, nil
}

func (s *PostgresStore) Update(ctx context.Context, a *domain.ActionExecution) error {
	dataJSON, _ := json.Marshal(a.ActionData)
	logJSON, _ := json.Marshal(a.ExecutionLog)
	res, err := s.db.ExecContext(ctx, `
		UPDATE action_executions SET
			status = $2, executed_at = $3, rolled_back_at = $4, executed_by = $5,
			rolled_back_by = $6, rollback_reason = $7, before_state = $8,
			after_state = $9, execution_log = $10, action_data = $11
		WHERE id = $1
	`, a.ID, a.Status, a.ExecutedAt, a.RolledBackAt, a.ExecutedBy, a.RolledBackBy,
		a.RollbackReason, a.BeforeState, a.AfterState, string(logJSON), string(dataJSON))
	if err != nil {
		return domain.ErrStorageUnavailable
	}
	n, err := res.RowsAffected()
	if err != nil {
		return domain.ErrStorageUnavailable
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) listWhere(ctx context.Context, conversationID, statusFilter string) ([]domain.ActionExecution, error) {
	query := `SELECT ` + actionColumns + ` FROM action_executions WHERE conversation_id = $1`
	args := []interface{}{conversationID}
	if statusFilter != "" {
		query += ` AND status = $2`
		args = append(args, statusFilter)
	}
	query += ` ORDER BY suggested_at ASC`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, domain.ErrStorageUnavailable
	}
	defer rows.Close()

	var out []domain.ActionExecution
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, domain.ErrStorageUnavailable
		}
		out = append(out, *a)
	}
	return out, nil
}

func (s *PostgresStore) ListPending(ctx context.Context, conversationID string) ([]domain.ActionExecution, error) {
	return s.listWhere(ctx, conversationID, string(domain.ActionPending))
}

func (s *PostgresStore) ListHistory(ctx context.Context, conversationID string) ([]domain.ActionExecution, error) {
	return s.listWhere(ctx, conversationID, "")
}

func (s *PostgresStore) CountPending(ctx context.Context, conversationID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM action_executions WHERE conversation_id = $1 AND status = $2
	`, conversationID, string(domain.ActionPending)).Scan(&n)
	if err != nil {
		return 0, domain.ErrStorageUnavailable
	}
	return n, nil
}
