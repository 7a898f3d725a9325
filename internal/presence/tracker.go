package presence

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"pulsechat-core/internal/docstore"
	"pulsechat-core/internal/domain"
)

// Tracker keeps a live in-memory view of every presence record so query
// endpoints can answer synchronously instead of waiting on a change feed.
type Tracker struct {
	store docstore.Store
	log   *zap.Logger

	mu      sync.Mutex
	records map[string]domain.PresenceRecord
	unsub   docstore.Unsubscribe
	now     func() time.Time
}

// NewTracker creates a stopped tracker.
func NewTracker(store docstore.Store, log *zap.Logger) *Tracker {
	return &Tracker{
		store:   store,
		log:     log,
		records: make(map[string]domain.PresenceRecord),
		now:     time.Now,
	}
}

// SetClock overrides the staleness clock.
func (t *Tracker) SetClock(now func() time.Time) {
	t.mu.Lock()
	t.now = now
	t.mu.Unlock()
}

// Start subscribes to the presence collection. Existing records are
// replayed by the store, so the view converges shortly after Start.
func (t *Tracker) Start(ctx context.Context) error {
	unsub, err := t.store.WatchCollection(ctx, presenceCollection, func(change docstore.Change) {
		t.mu.Lock()
		defer t.mu.Unlock()
		if change.Kind == docstore.ChangeRemoved {
			delete(t.records, change.Doc.ID)
			return
		}
		t.records[change.Doc.ID] = decodeRecord(change.Doc)
	})
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.unsub = unsub
	t.mu.Unlock()
	return nil
}

// Stop cancels the subscription. Safe to call repeatedly.
func (t *Tracker) Stop() {
	t.mu.Lock()
	unsub := t.unsub
	t.unsub = nil
	t.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

// Typing returns the sorted identities currently composing into
// conversationID, excluding self and stale markers.
func (t *Tracker) Typing(conversationID, self string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	typing := []string{}
	for id, rec := range t.records {
		if id == self {
			continue
		}
		if domain.TypingFresh(rec, conversationID, now) {
			typing = append(typing, id)
		}
	}
	sort.Strings(typing)
	return typing
}

// Record returns the tracked record for one identity, if any.
func (t *Tracker) Record(identity string) (domain.PresenceRecord, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.records[identity]
	return rec, ok
}
