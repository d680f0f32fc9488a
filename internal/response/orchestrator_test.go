package response

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iff-guardian/hostguard/internal/domain"
	"github.com/iff-guardian/hostguard/pkg/logger"
	"github.com/iff-guardian/hostguard/pkg/metrics"
)

func newTestOrchestrator(t *testing.T, cfg Config) (*Orchestrator, *Registry) {
	reg := NewRegistry()
	RegisterBuiltins(reg)
	return New(cfg, NewMemoryStore(), reg, logger.NewNoop(), metrics.NewCollector(t.Name())), reg
}

func TestOrchestrator_ActionLifecycle(t *testing.T) {
	o, _ := newTestOrchestrator(t, Config{MaxPendingActionsPerConversation: 5, DefaultUndoWindow: 72 * time.Hour})
	ctx := context.Background()

	a, err := o.Suggest(ctx, "conv-1", "msg-1", "BlockIP", map[string]interface{}{"ip": "192.168.1.100"})
	require.NoError(t, err)
	assert.Equal(t, domain.ActionPending, a.Status)

	executed, err := o.Execute(ctx, a.ID, "admin")
	require.NoError(t, err)
	assert.Equal(t, domain.ActionExecuted, executed.Status)
	assert.NotEmpty(t, executed.BeforeState)
	assert.NotEmpty(t, executed.AfterState)

	rolledBack, err := o.Rollback(ctx, a.ID, "admin", "False positive")
	require.NoError(t, err)
	assert.Equal(t, domain.ActionRolledBack, rolledBack.Status)

	_, err = o.Rollback(ctx, a.ID, "admin", "again")
	assert.ErrorIs(t, err, domain.ErrNotExecuted)
}

func TestOrchestrator_RollbackOutsideUndoWindow(t *testing.T) {
	o, _ := newTestOrchestrator(t, Config{MaxPendingActionsPerConversation: 5, DefaultUndoWindow: 1 * time.Millisecond})
	ctx := context.Background()

	a, err := o.Suggest(ctx, "conv-1", "msg-1", "BlockIP", map[string]interface{}{"ip": "10.0.0.1"})
	require.NoError(t, err)
	_, err = o.Execute(ctx, a.ID, "admin")
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	_, err = o.Rollback(ctx, a.ID, "admin", "too late")
	assert.ErrorIs(t, err, domain.ErrOutsideUndoWindow)

	stored, err := o.store.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ActionExecuted, stored.Status)
}

func TestOrchestrator_SuggestUnsupportedAction(t *testing.T) {
	o, _ := newTestOrchestrator(t, Config{MaxPendingActionsPerConversation: 5})
	_, err := o.Suggest(context.Background(), "conv-1", "msg-1", "NukeFromOrbit", nil)
	assert.ErrorIs(t, err, domain.ErrUnsupportedAction)
}

func TestOrchestrator_SuggestInvalidActionData(t *testing.T) {
	o, _ := newTestOrchestrator(t, Config{MaxPendingActionsPerConversation: 5})
	_, err := o.Suggest(context.Background(), "conv-1", "msg-1", "BlockIP", map[string]interface{}{})
	assert.ErrorIs(t, err, domain.ErrInvalidActionData)
}

func TestOrchestrator_ZeroQuotaAlwaysExceeded(t *testing.T) {
	o, _ := newTestOrchestrator(t, Config{MaxPendingActionsPerConversation: 0})
	_, err := o.Suggest(context.Background(), "conv-1", "msg-1", "BlockIP", map[string]interface{}{"ip": "1.1.1.1"})
	assert.ErrorIs(t, err, domain.ErrQuotaExceeded)
}

func TestOrchestrator_QuotaExceededAfterLimit(t *testing.T) {
	o, _ := newTestOrchestrator(t, Config{MaxPendingActionsPerConversation: 1})
	ctx := context.Background()
	_, err := o.Suggest(ctx, "conv-1", "msg-1", "BlockIP", map[string]interface{}{"ip": "1.1.1.1"})
	require.NoError(t, err)
	_, err = o.Suggest(ctx, "conv-1", "msg-2", "BlockIP", map[string]interface{}{"ip": "2.2.2.2"})
	assert.ErrorIs(t, err, domain.ErrQuotaExceeded)
}

func TestOrchestrator_ExecuteExpiredAction(t *testing.T) {
	o, _ := newTestOrchestrator(t, Config{MaxPendingActionsPerConversation: 5, AutoExpire: true, PendingExpiration: 1 * time.Millisecond})
	ctx := context.Background()
	a, err := o.Suggest(ctx, "conv-1", "msg-1", "BlockIP", map[string]interface{}{"ip": "1.1.1.1"})
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	_, err = o.Execute(ctx, a.ID, "admin")
	assert.ErrorIs(t, err, domain.ErrExpired)

	stored, err := o.store.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ActionExpired, stored.Status)
}

func TestOrchestrator_HandlerFailureMarksFailedWithoutExecutedAt(t *testing.T) {
	reg := NewRegistry()
	blockIP := NewBlockIPHandler()
	blockIP.Block = func(context.Context, map[string]interface{}) error {
		return errors.New("firewall unreachable")
	}
	reg.Register("BlockIP", blockIP)
	o := New(Config{MaxPendingActionsPerConversation: 5}, NewMemoryStore(), reg, logger.NewNoop(), metrics.NewCollector(t.Name()))
	ctx := context.Background()

	a, err := o.Suggest(ctx, "conv-1", "msg-1", "BlockIP", map[string]interface{}{"ip": "1.1.1.1"})
	require.NoError(t, err)

	result, err := o.Execute(ctx, a.ID, "admin")
	require.NoError(t, err)
	assert.Equal(t, domain.ActionFailed, result.Status)
	assert.Nil(t, result.ExecutedAt)
}

func TestOrchestrator_GetPendingAndHistory(t *testing.T) {
	o, _ := newTestOrchestrator(t, Config{MaxPendingActionsPerConversation: 5})
	ctx := context.Background()
	a, err := o.Suggest(ctx, "conv-1", "msg-1", "BlockIP", map[string]interface{}{"ip": "1.1.1.1"})
	require.NoError(t, err)

	pending, err := o.GetPending(ctx, "conv-1")
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	_, err = o.Execute(ctx, a.ID, "admin")
	require.NoError(t, err)

	pending, err = o.GetPending(ctx, "conv-1")
	require.NoError(t, err)
	assert.Len(t, pending, 0)

	history, err := o.GetHistory(ctx, "conv-1")
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestOrchestrator_CanRollback(t *testing.T) {
	o, _ := newTestOrchestrator(t, Config{MaxPendingActionsPerConversation: 5, DefaultUndoWindow: time.Hour})
	ctx := context.Background()
	a, err := o.Suggest(ctx, "conv-1", "msg-1", "BlockIP", map[string]interface{}{"ip": "1.1.1.1"})
	require.NoError(t, err)

	ok, err := o.CanRollback(ctx, a.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = o.Execute(ctx, a.ID, "admin")
	require.NoError(t, err)

	ok, err = o.CanRollback(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestOrchestrator_UndoWindowPerType(t *testing.T) {
	o, _ := newTestOrchestrator(t, Config{
		MaxPendingActionsPerConversation: 5,
		DefaultUndoWindow:                time.Hour,
		UndoWindows:                      map[string]time.Duration{"QuarantineFile": 10 * time.Minute},
	})
	assert.Equal(t, time.Hour, o.UndoWindow("BlockIP"))
	assert.Equal(t, 10*time.Minute, o.UndoWindow("QuarantineFile"))
}
