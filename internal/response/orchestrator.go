package response

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iff-guardian/hostguard/internal/domain"
	"github.com/iff-guardian/hostguard/pkg/logger"
	"github.com/iff-guardian/hostguard/pkg/metrics"
)

// Statistics summarizes the orchestrator's action outcomes, mirroring the
// shape of the correlation engine's get_statistics.
type Statistics struct {
	TotalSuggested  int
	TotalExecuted   int
	TotalRolledBack int
	TotalFailed     int
	TotalExpired    int
	ByType          map[string]int
}

// Orchestrator implements suggest/execute/rollback over a registered set
// of action handlers, serializing state transitions per action id: a
// per-id lock, not a single global one, so unrelated actions never contend.
type Orchestrator struct {
	cfg      Config
	store    Store
	registry *Registry
	log      logger.Logger
	metrics  *metrics.Collector

	locks sync.Map // action id -> *sync.Mutex

	statsMu sync.Mutex
	stats   Statistics
}

func New(cfg Config, store Store, registry *Registry, log logger.Logger, mc *metrics.Collector) *Orchestrator {
	return &Orchestrator{
		cfg:      cfg.withDefaults(),
		store:    store,
		registry: registry,
		log:      log,
		metrics:  mc,
		stats:    Statistics{ByType: make(map[string]int)},
	}
}

func (o *Orchestrator) lockFor(id string) *sync.Mutex {
	v, _ := o.locks.LoadOrStore(id, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// UndoWindow returns the configured undo window for an action type.
func (o *Orchestrator) UndoWindow(actionType string) time.Duration {
	return o.cfg.undoWindow(actionType)
}

// Suggest validates action_data against the type's registered handler,
// enforces the per-conversation pending-action quota, and persists a new
// Pending ActionExecution.
func (o *Orchestrator) Suggest(ctx context.Context, conversationID, messageID, actionType string, data map[string]interface{}) (*domain.ActionExecution, error) {
	handler, ok := o.registry.lookup(actionType)
	if !ok {
		return nil, domain.ErrUnsupportedAction
	}
	if err := handler.Validate(data); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidActionData, err)
	}

	pending, err := o.store.CountPending(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if pending >= o.cfg.MaxPendingActionsPerConversation {
		return nil, domain.ErrQuotaExceeded
	}

	a := &domain.ActionExecution{
		ID:                  uuid.NewString(),
		ConversationID:      conversationID,
		SuggestingMessageID: messageID,
		Type:                actionType,
		ActionData:          data,
		Status:              domain.ActionPending,
		SuggestedAt:         time.Now().UTC(),
	}
	a.Append("suggested", map[string]interface{}{"type": actionType})
	if err := o.store.Create(ctx, a); err != nil {
		return nil, err
	}
	o.recordStat(func(s *Statistics) { s.TotalSuggested++ })
	return a, nil
}

// Execute transitions a Pending action to Executed (or Failed) by calling
// its handler, capturing before/after state atomically around the call.
func (o *Orchestrator) Execute(ctx context.Context, actionID, actor string) (*domain.ActionExecution, error) {
	mu := o.lockFor(actionID)
	mu.Lock()
	defer mu.Unlock()

	a, err := o.store.Get(ctx, actionID)
	if err != nil {
		return nil, err
	}
	if !a.Status.CanTransitionTo(domain.ActionExecuted) {
		return nil, domain.ErrNotExecuted
	}

	if o.cfg.AutoExpire && time.Since(a.SuggestedAt) >= o.cfg.PendingExpiration {
		a.Status = domain.ActionExpired
		a.Append("expired", nil)
		if err := o.store.Update(ctx, a); err != nil {
			return nil, err
		}
		o.recordStat(func(s *Statistics) { s.TotalExpired++ })
		o.observeOutcome(a.Type, "expired")
		return nil, domain.ErrExpired
	}

	handler, ok := o.registry.lookup(a.Type)
	if !ok {
		return nil, domain.ErrUnsupportedAction
	}

	before, err := handler.CaptureBeforeState(ctx, a.ActionData)
	if err != nil {
		before = ""
	}
	a.BeforeState = before

	result, err := handler.Execute(ctx, a.ActionData)
	if err != nil || !result.Success {
		a.Status = domain.ActionFailed
		msg := result.Message
		if err != nil {
			msg = err.Error()
		}
		a.Append("execute failed", map[string]interface{}{"message": msg})
		if uerr := o.store.Update(ctx, a); uerr != nil {
			return nil, uerr
		}
		o.recordStat(func(s *Statistics) { s.TotalFailed++ })
		o.observeOutcome(a.Type, "failed")
		return a, nil
	}

	now := time.Now().UTC()
	a.Status = domain.ActionExecuted
	a.ExecutedAt = &now
	a.ExecutedBy = actor
	a.AfterState = result.AfterState
	a.Append("executed", map[string]interface{}{"actor": actor, "message": result.Message})
	for _, l := range result.Logs {
		a.Append(l, nil)
	}
	if err := o.store.Update(ctx, a); err != nil {
		return nil, err
	}
	o.recordStat(func(s *Statistics) {
		s.TotalExecuted++
		s.ByType[a.Type]++
	})
	o.observeOutcome(a.Type, "executed")
	return a, nil
}

// Rollback transitions an Executed action to RolledBack, subject to its
// type's undo window.
func (o *Orchestrator) Rollback(ctx context.Context, actionID, actor, reason string) (*domain.ActionExecution, error) {
	mu := o.lockFor(actionID)
	mu.Lock()
	defer mu.Unlock()

	a, err := o.store.Get(ctx, actionID)
	if err != nil {
		return nil, err
	}
	if !a.Status.CanTransitionTo(domain.ActionRolledBack) || a.ExecutedAt == nil {
		return nil, domain.ErrNotExecuted
	}
	if time.Since(*a.ExecutedAt) >= o.cfg.undoWindow(a.Type) {
		return nil, domain.ErrOutsideUndoWindow
	}

	handler, ok := o.registry.lookup(a.Type)
	if !ok {
		return nil, domain.ErrUnsupportedAction
	}

	result, err := handler.Rollback(ctx, a.ActionData, reason)
	if err != nil || !result.Success {
		msg := result.Message
		if err != nil {
			msg = err.Error()
		}
		a.Append("rollback failed", map[string]interface{}{"message": msg})
		if uerr := o.store.Update(ctx, a); uerr != nil {
			return nil, uerr
		}
		if err != nil {
			return nil, err
		}
		return a, fmt.Errorf("rollback handler declined: %s", result.Message)
	}

	now := time.Now().UTC()
	a.Status = domain.ActionRolledBack
	a.RolledBackAt = &now
	a.RolledBackBy = actor
	a.RollbackReason = reason
	a.Append("rolled back", map[string]interface{}{"actor": actor, "reason": reason})
	for _, l := range result.Logs {
		a.Append(l, nil)
	}
	if err := o.store.Update(ctx, a); err != nil {
		return nil, err
	}
	o.recordStat(func(s *Statistics) { s.TotalRolledBack++ })
	o.observeOutcome(a.Type, "rolled_back")
	return a, nil
}

// CanRollback reports whether an action is currently eligible for rollback
// without attempting one.
func (o *Orchestrator) CanRollback(ctx context.Context, actionID string) (bool, error) {
	a, err := o.store.Get(ctx, actionID)
	if err != nil {
		return false, err
	}
	if !a.Status.CanTransitionTo(domain.ActionRolledBack) || a.ExecutedAt == nil {
		return false, nil
	}
	return time.Since(*a.ExecutedAt) < o.cfg.undoWindow(a.Type), nil
}

func (o *Orchestrator) GetPending(ctx context.Context, conversationID string) ([]domain.ActionExecution, error) {
	return o.store.ListPending(ctx, conversationID)
}

func (o *Orchestrator) GetHistory(ctx context.Context, conversationID string) ([]domain.ActionExecution, error) {
	return o.store.ListHistory(ctx, conversationID)
}

func (o *Orchestrator) GetStatistics() Statistics {
	o.statsMu.Lock()
	defer o.statsMu.Unlock()
	cp := o.stats
	cp.ByType = make(map[string]int, len(o.stats.ByType))
	for k, v := range o.stats.ByType {
		cp.ByType[k] = v
	}
	return cp
}

func (o *Orchestrator) recordStat(fn func(*Statistics)) {
	o.statsMu.Lock()
	defer o.statsMu.Unlock()
	fn(&o.stats)
}

func (o *Orchestrator) observeOutcome(actionType, outcome string) {
	if o.metrics == nil {
		return
	}
	o.metrics.ActionOutcomes.WithLabelValues(actionType, outcome).Inc()
}
