// Package presence keeps one user's liveness record fresh and derives
// availability and typing indicators for observers. Presence is advisory:
// writes are best-effort and failures never block another feature.
package presence

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"pulsechat-core/internal/docstore"
	"pulsechat-core/pkg/metrics"
)

const presenceCollection = "presence"

// DefaultHeartbeat matches the web clients' 30-second beat.
const DefaultHeartbeat = 30 * time.Second

// Beacon periodically refreshes the presence document of one identity.
type Beacon struct {
	store    docstore.Store
	identity string
	interval time.Duration
	log      *zap.Logger

	mu      sync.Mutex
	stop    chan struct{}
	running bool
}

// NewBeacon creates a beacon for the given identity.
func NewBeacon(store docstore.Store, identity string, log *zap.Logger) *Beacon {
	return &Beacon{
		store:    store,
		identity: identity,
		interval: DefaultHeartbeat,
		log:      log,
	}
}

// SetInterval overrides the heartbeat interval. Must be called before Start.
func (b *Beacon) SetInterval(d time.Duration) {
	if d > 0 {
		b.interval = d
	}
}

// Start begins the heartbeat loop. Idempotent per identity: a second Start
// while running is a no-op, so a remounting screen cannot double-subscribe.
func (b *Beacon) Start(ctx context.Context) {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return
	}
	b.running = true
	b.stop = make(chan struct{})
	stop := b.stop
	b.mu.Unlock()

	b.MarkActive(ctx)

	go func() {
		ticker := time.NewTicker(b.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				b.markStopped()
				return
			case <-stop:
				return
			case <-ticker.C:
				b.MarkActive(ctx)
			}
		}
	}()
}

// Stop halts the heartbeat and writes one final inactive mark.
func (b *Beacon) Stop() {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return
	}
	b.running = false
	close(b.stop)
	b.mu.Unlock()

	// Best-effort away mark on teardown.
	b.MarkInactive(context.Background())
}

func (b *Beacon) markStopped() {
	b.mu.Lock()
	if b.running {
		b.running = false
		close(b.stop)
	}
	b.mu.Unlock()
}

// MarkActive merge-upserts a fresh active heartbeat. Store failures are
// swallowed: presence must tolerate the remote store being unreachable.
func (b *Beacon) MarkActive(ctx context.Context) {
	b.beat(ctx, true)
}

// MarkInactive records loss of focus or teardown.
func (b *Beacon) MarkInactive(ctx context.Context) {
	b.beat(ctx, false)
}

func (b *Beacon) beat(ctx context.Context, active bool) {
	err := b.store.Set(ctx, presenceCollection, b.identity, map[string]any{
		"active":     active,
		"lastActive": docstore.ServerTimestamp,
	})
	if err != nil {
		metrics.PresenceWriteFailuresTotal.Inc()
		b.log.Debug("presence heartbeat dropped",
			zap.String("identity", b.identity),
			zap.Bool("active", active),
			zap.Error(err))
		return
	}
	state := "inactive"
	if active {
		state = "active"
	}
	metrics.PresenceHeartbeatsTotal.WithLabelValues(state).Inc()
}

// SetTyping broadcasts "composing in conversationID" on the caller's own
// presence document, or clears the marker when on is false. A user types
// in at most one conversation system-wide; readers expire the marker by
// timestamp, so a missed clear (closed tab) heals itself.
func (b *Beacon) SetTyping(ctx context.Context, conversationID string, on bool) {
	typingIn := ""
	if on {
		typingIn = conversationID
	}
	err := b.store.Set(ctx, presenceCollection, b.identity, map[string]any{
		"typingIn":  typingIn,
		"updatedAt": docstore.ServerTimestamp,
	})
	if err != nil {
		metrics.PresenceWriteFailuresTotal.Inc()
		b.log.Debug("typing marker dropped",
			zap.String("identity", b.identity),
			zap.Error(err))
		return
	}
	metrics.TypingWritesTotal.Inc()
}
