package response

import (
	"context"
	"fmt"

	"github.com/iff-guardian/hostguard/internal/domain"
)

// Effector performs the actual side effect for a built-in handler (firewall
// push, IAM call, EDR isolation command, ...). The default effectors are
// no-ops that only log through Logs, so the orchestrator is runnable
// without any external integration wired in; a deployment replaces them
// with real callbacks.
type Effector func(ctx context.Context, data map[string]interface{}) error

func noopEffector(context.Context, map[string]interface{}) error { return nil }

func stringField(data map[string]interface{}, key string) (string, bool) {
	v, ok := data[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok && s != ""
}

// BlockIPHandler blocks/unblocks a single IP address, keyed by "ip".
type BlockIPHandler struct {
	Block   Effector
	Unblock Effector
}

func NewBlockIPHandler() *BlockIPHandler {
	return &BlockIPHandler{Block: noopEffector, Unblock: noopEffector}
}

func (h *BlockIPHandler) Validate(data map[string]interface{}) error {
	if _, ok := stringField(data, "ip"); !ok {
		return fmt.Errorf("%w: missing ip", domain.ErrInvalidActionData)
	}
	return nil
}

func (h *BlockIPHandler) CaptureBeforeState(_ context.Context, data map[string]interface{}) (string, error) {
	ip, _ := stringField(data, "ip")
	return fmt.Sprintf("ip %s not blocked", ip), nil
}

func (h *BlockIPHandler) Execute(ctx context.Context, data map[string]interface{}) (HandlerResult, error) {
	ip, _ := stringField(data, "ip")
	if err := h.Block(ctx, data); err != nil {
		return HandlerResult{Success: false, Message: err.Error()}, nil
	}
	return HandlerResult{
		Success:    true,
		Message:    "ip blocked",
		AfterState: fmt.Sprintf("ip %s blocked", ip),
		Logs:       []string{"block rule pushed to firewall"},
	}, nil
}

func (h *BlockIPHandler) Rollback(ctx context.Context, data map[string]interface{}, reason string) (HandlerResult, error) {
	if err := h.Unblock(ctx, data); err != nil {
		return HandlerResult{Success: false, Message: err.Error()}, nil
	}
	return HandlerResult{
		Success: true,
		Message: "ip unblocked",
		Logs:    []string{"block rule withdrawn: " + reason},
	}, nil
}

// DisableAccountHandler disables/re-enables a user account, keyed by
// "account".
type DisableAccountHandler struct {
	Disable Effector
	Enable  Effector
}

func NewDisableAccountHandler() *DisableAccountHandler {
	return &DisableAccountHandler{Disable: noopEffector, Enable: noopEffector}
}

func (h *DisableAccountHandler) Validate(data map[string]interface{}) error {
	if _, ok := stringField(data, "account"); !ok {
		return fmt.Errorf("%w: missing account", domain.ErrInvalidActionData)
	}
	return nil
}

func (h *DisableAccountHandler) CaptureBeforeState(_ context.Context, data map[string]interface{}) (string, error) {
	acct, _ := stringField(data, "account")
	return fmt.Sprintf("account %s enabled", acct), nil
}

func (h *DisableAccountHandler) Execute(ctx context.Context, data map[string]interface{}) (HandlerResult, error) {
	acct, _ := stringField(data, "account")
	if err := h.Disable(ctx, data); err != nil {
		return HandlerResult{Success: false, Message: err.Error()}, nil
	}
	return HandlerResult{
		Success:    true,
		Message:    "account disabled",
		AfterState: fmt.Sprintf("account %s disabled", acct),
		Logs:       []string{"account disabled pending investigation"},
	}, nil
}

func (h *DisableAccountHandler) Rollback(ctx context.Context, data map[string]interface{}, reason string) (HandlerResult, error) {
	if err := h.Enable(ctx, data); err != nil {
		return HandlerResult{Success: false, Message: err.Error()}, nil
	}
	return HandlerResult{
		Success: true,
		Message: "account re-enabled",
		Logs:    []string{"account re-enabled: " + reason},
	}, nil
}

// IsolateHostHandler isolates/restores network access for a host, keyed by
// "host".
type IsolateHostHandler struct {
	Isolate Effector
	Restore Effector
}

func NewIsolateHostHandler() *IsolateHostHandler {
	return &IsolateHostHandler{Isolate: noopEffector, Restore: noopEffector}
}

func (h *IsolateHostHandler) Validate(data map[string]interface{}) error {
	if _, ok := stringField(data, "host"); !ok {
		return fmt.Errorf("%w: missing host", domain.ErrInvalidActionData)
	}
	return nil
}

func (h *IsolateHostHandler) CaptureBeforeState(_ context.Context, data map[string]interface{}) (string, error) {
	host, _ := stringField(data, "host")
	return fmt.Sprintf("host %s connected", host), nil
}

func (h *IsolateHostHandler) Execute(ctx context.Context, data map[string]interface{}) (HandlerResult, error) {
	host, _ := stringField(data, "host")
	if err := h.Isolate(ctx, data); err != nil {
		return HandlerResult{Success: false, Message: err.Error()}, nil
	}
	return HandlerResult{
		Success:    true,
		Message:    "host isolated",
		AfterState: fmt.Sprintf("host %s isolated", host),
		Logs:       []string{"network isolation policy applied"},
	}, nil
}

func (h *IsolateHostHandler) Rollback(ctx context.Context, data map[string]interface{}, reason string) (HandlerResult, error) {
	if err := h.Restore(ctx, data); err != nil {
		return HandlerResult{Success: false, Message: err.Error()}, nil
	}
	return HandlerResult{
		Success: true,
		Message: "host restored",
		Logs:    []string{"network isolation lifted: " + reason},
	}, nil
}

// QuarantineFileHandler quarantines/releases a file, keyed by "path".
// Quarantine has no meaningful undo beyond marking it released; the
// orchestrator still records the transition for audit.
type QuarantineFileHandler struct {
	Quarantine Effector
	Release    Effector
}

func NewQuarantineFileHandler() *QuarantineFileHandler {
	return &QuarantineFileHandler{Quarantine: noopEffector, Release: noopEffector}
}

func (h *QuarantineFileHandler) Validate(data map[string]interface{}) error {
	if _, ok := stringField(data, "path"); !ok {
		return fmt.Errorf("%w: missing path", domain.ErrInvalidActionData)
	}
	return nil
}

func (h *QuarantineFileHandler) CaptureBeforeState(_ context.Context, data map[string]interface{}) (string, error) {
	path, _ := stringField(data, "path")
	return fmt.Sprintf("file %s in place", path), nil
}

func (h *QuarantineFileHandler) Execute(ctx context.Context, data map[string]interface{}) (HandlerResult, error) {
	path, _ := stringField(data, "path")
	if err := h.Quarantine(ctx, data); err != nil {
		return HandlerResult{Success: false, Message: err.Error()}, nil
	}
	return HandlerResult{
		Success:    true,
		Message:    "file quarantined",
		AfterState: fmt.Sprintf("file %s quarantined", path),
		Logs:       []string{"file moved to quarantine store"},
	}, nil
}

func (h *QuarantineFileHandler) Rollback(ctx context.Context, data map[string]interface{}, reason string) (HandlerResult, error) {
	if err := h.Release(ctx, data); err != nil {
		return HandlerResult{Success: false, Message: err.Error()}, nil
	}
	return HandlerResult{
		Success: true,
		Message: "file released from quarantine",
		Logs:    []string{"file restored: " + reason},
	}, nil
}

// RegisterBuiltins wires the default BlockIP/DisableAccount/IsolateHost/
// QuarantineFile handlers into r, each with no-op effectors.
func RegisterBuiltins(r *Registry) {
	r.Register("BlockIP", NewBlockIPHandler())
	r.Register("DisableAccount", NewDisableAccountHandler())
	r.Register("IsolateHost", NewIsolateHostHandler())
	r.Register("QuarantineFile", NewQuarantineFileHandler())
}
