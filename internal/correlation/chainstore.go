package correlation

import "context"

// ChainStore persists confirmed attack-chain stage edges for
// reconstruction across process restarts. It is additive to the
// in-memory sliding-window analysis Engine already performs: nothing
// here is consulted to decide whether a chain fired, only to remember
// that it did.
type ChainStore interface {
	PersistEdge(ctx context.Context, host, fromEventID, toEventID, stage string) error
}

// SetChainStore attaches a ChainStore; nil (the default) disables
// persistence without changing detection behavior.
func (e *Engine) SetChainStore(cs ChainStore) {
	e.chainStore = cs
}

// persistChain records each consecutive pair in an AttackChain finding's
// ordered event ids as one graph edge. Failures are logged and swallowed,
// consistent with Analyze never letting a storage fault poison the event
// stream.
func (e *Engine) persistChain(ctx context.Context, host string, d detection) {
	if e.chainStore == nil {
		return
	}
	for i := 0; i+1 < len(d.eventIDs); i++ {
		if err := e.chainStore.PersistEdge(ctx, host, d.eventIDs[i], d.eventIDs[i+1], d.stage); err != nil {
			e.log.Warn("failed to persist attack chain edge", "error", err, "host", host)
		}
	}
}
