package domain

import "time"

// ActionStatus is the closed set of states an ActionExecution may be in.
// The only legal transitions are Pending -> {Executed, Failed, Expired}
// and Executed -> RolledBack.
type ActionStatus string

const (
	ActionPending    ActionStatus = "Pending"
	ActionExecuted   ActionStatus = "Executed"
	ActionRolledBack ActionStatus = "RolledBack"
	ActionFailed     ActionStatus = "Failed"
	ActionExpired    ActionStatus = "Expired"
)

// CanTransitionTo reports whether the status change is one of the
// transitions the spec permits.
func (s ActionStatus) CanTransitionTo(next ActionStatus) bool {
	switch s {
	case ActionPending:
		switch next {
		case ActionExecuted, ActionFailed, ActionExpired:
			return true
		}
	case ActionExecuted:
		return next == ActionRolledBack
	}
	return false
}

// LogEntry is one opaque, append-only execution_log entry.
type LogEntry struct {
	At      time.Time
	Message string
	Data    map[string]interface{}
}

// ActionExecution is a single suggested/executed/rolled-back response
// action, scoped to a conversation.
type ActionExecution struct {
	ID                  string
	ConversationID       string
	SuggestingMessageID  string
	Type                 string
	ActionData           map[string]interface{}
	Status               ActionStatus
	SuggestedAt          time.Time
	ExecutedAt           *time.Time
	RolledBackAt         *time.Time
	ExecutedBy           string
	RolledBackBy         string
	RollbackReason       string
	BeforeState          string
	AfterState           string
	ExecutionLog         []LogEntry
}

func (a *ActionExecution) Append(msg string, data map[string]interface{}) {
	a.ExecutionLog = append(a.ExecutionLog, LogEntry{At: time.Now().UTC(), Message: msg, Data: data})
}
