package response

import (
	"context"

	"github.com/iff-guardian/hostguard/internal/domain"
)

// Store persists ActionExecution records, one row per action id.
type Store interface {
	Create(ctx context.Context, a *domain.ActionExecution) error
	Get(ctx context.Context, id string) (*domain.ActionExecution, error)
	Update(ctx context.Context, a *domain.ActionExecution) error
	ListPending(ctx context.Context, conversationID string) ([]domain.ActionExecution, error)
	ListHistory(ctx context.Context, conversationID string) ([]domain.ActionExecution, error)
	CountPending(ctx context.Context, conversationID string) (int, error)
}
