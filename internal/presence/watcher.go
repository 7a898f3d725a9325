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

// Watcher derives availability and typing indicators from the presence
// collection for any observer screen.
type Watcher struct {
	store docstore.Store
	log   *zap.Logger

	// now is swappable so tests can pin the staleness clock.
	now func() time.Time
}

// NewWatcher creates a presence watcher.
func NewWatcher(store docstore.Store, log *zap.Logger) *Watcher {
	return &Watcher{store: store, log: log, now: time.Now}
}

// SetClock overrides the staleness clock.
func (w *Watcher) SetClock(now func() time.Time) { w.now = now }

// Record loads one identity's presence record.
func (w *Watcher) Record(ctx context.Context, identity string) (domain.PresenceRecord, error) {
	doc, err := w.store.Get(ctx, presenceCollection, identity)
	if err != nil {
		return domain.PresenceRecord{}, err
	}
	return decodeRecord(doc), nil
}

// WatchTyping reports, on every presence change, the sorted identities
// currently composing into conversationID. Self is excluded and markers
// older than the staleness window are discarded on read; that is the
// expiry mechanism; nobody pushes a stop-typing event.
func (w *Watcher) WatchTyping(ctx context.Context, conversationID, self string, onChange func([]string)) (docstore.Unsubscribe, error) {
	var mu sync.Mutex
	records := make(map[string]domain.PresenceRecord)

	emit := func() {
		now := w.now()
		var typing []string
		for id, rec := range records {
			if id == self {
				continue
			}
			if domain.TypingFresh(rec, conversationID, now) {
				typing = append(typing, id)
			}
		}
		sort.Strings(typing)
		onChange(typing)
	}

	return w.store.WatchCollection(ctx, presenceCollection, func(change docstore.Change) {
		mu.Lock()
		defer mu.Unlock()
		if change.Kind == docstore.ChangeRemoved {
			delete(records, change.Doc.ID)
		} else {
			records[change.Doc.ID] = decodeRecord(change.Doc)
		}
		emit()
	})
}

func decodeRecord(doc docstore.Document) domain.PresenceRecord {
	fields := doc.Fields
	rec := domain.PresenceRecord{Identity: doc.ID}
	if active, ok := fields["active"].(bool); ok {
		rec.Active = active
	}
	rec.LastActive = fieldTime(fields["lastActive"])
	if typingIn, ok := fields["typingIn"].(string); ok {
		rec.TypingIn = typingIn
	}
	rec.UpdatedAt = fieldTime(fields["updatedAt"])
	return rec
}

// fieldTime accepts native time values and the RFC3339 strings the Redis
// backend's JSON round-trip produces.
func fieldTime(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case string:
		if parsed, err := time.Parse(time.RFC3339Nano, t); err == nil {
			return parsed
		}
	}
	return time.Time{}
}
