package call

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"pulsechat-core/internal/docstore"
	"pulsechat-core/internal/domain"
	"pulsechat-core/internal/signaling"
)

// IncomingCallWatcher surfaces ringing sessions addressed to one identity.
// It watches the whole calls collection and filters client-side; each
// session is reported at most once, and terminal sessions never ring again,
// so the dedupe set only grows for the lifetime of the subscription.
type IncomingCallWatcher struct {
	store docstore.Store
	log   *zap.Logger
}

// NewIncomingCallWatcher creates a watcher on the given store.
func NewIncomingCallWatcher(store docstore.Store, log *zap.Logger) *IncomingCallWatcher {
	return &IncomingCallWatcher{store: store, log: log}
}

// Subscribe invokes onIncoming for every session where identity is the
// callee and the status is ringing. Sessions already ringing at subscribe
// time are delivered too. The returned unsubscribe stops delivery.
func (w *IncomingCallWatcher) Subscribe(ctx context.Context, identity string, onIncoming func(domain.CallSession)) (docstore.Unsubscribe, error) {
	var mu sync.Mutex
	seen := make(map[string]struct{})

	unsub, err := w.store.WatchCollection(ctx, signaling.CallsCollection, func(change docstore.Change) {
		if change.Kind == docstore.ChangeRemoved {
			return
		}
		session := signaling.DecodeSession(change.Doc)
		if session.Callee != identity || session.Status != domain.StatusRinging {
			return
		}

		mu.Lock()
		if _, dup := seen[session.ID]; dup {
			mu.Unlock()
			return
		}
		seen[session.ID] = struct{}{}
		mu.Unlock()

		w.log.Info("incoming call",
			zap.String("session", session.ID),
			zap.String("caller", session.Caller),
			zap.String("callee", session.Callee))
		onIncoming(session)
	})
	if err != nil {
		return nil, err
	}
	return unsub, nil
}
