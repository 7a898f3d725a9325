package presence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"pulsechat-core/internal/docstore/memory"
)

func TestWatchTypingSurfacesFreshMarkersOnly(t *testing.T) {
	store := memory.New()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	store.SetClock(func() time.Time { return now })

	w := NewWatcher(store, zap.NewNop())
	w.SetClock(func() time.Time { return now })
	ctx := context.Background()

	var latest []string
	unsub, err := w.WatchTyping(ctx, "conv-1", "me@x.com", func(typing []string) {
		latest = typing
	})
	require.NoError(t, err)
	defer unsub()

	alice := NewBeacon(store, "alice@x.com", zap.NewNop())
	bob := NewBeacon(store, "bob@x.com", zap.NewNop())
	me := NewBeacon(store, "me@x.com", zap.NewNop())

	alice.SetTyping(ctx, "conv-1", true)
	bob.SetTyping(ctx, "conv-2", true) // different conversation
	me.SetTyping(ctx, "conv-1", true)  // self is excluded

	assert.Equal(t, []string{"alice@x.com"}, latest)
}

func TestWatchTypingExpiresStaleMarkers(t *testing.T) {
	store := memory.New()
	wrote := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	store.SetClock(func() time.Time { return wrote })

	w := NewWatcher(store, zap.NewNop())
	ctx := context.Background()

	alice := NewBeacon(store, "alice@x.com", zap.NewNop())
	alice.SetTyping(ctx, "conv-1", true)

	// A reader arriving 3.5s later never surfaces the marker, even though
	// typingIn still names the conversation.
	w.SetClock(func() time.Time { return wrote.Add(3500 * time.Millisecond) })

	var latest []string
	unsub, err := w.WatchTyping(ctx, "conv-1", "me@x.com", func(typing []string) {
		latest = typing
	})
	require.NoError(t, err)
	defer unsub()

	assert.Empty(t, latest)
}

func TestWatchTypingClearsWhenMarkerCleared(t *testing.T) {
	store := memory.New()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	store.SetClock(func() time.Time { return now })

	w := NewWatcher(store, zap.NewNop())
	w.SetClock(func() time.Time { return now })
	ctx := context.Background()

	alice := NewBeacon(store, "alice@x.com", zap.NewNop())
	alice.SetTyping(ctx, "conv-1", true)

	var latest []string
	unsub, err := w.WatchTyping(ctx, "conv-1", "me@x.com", func(typing []string) {
		latest = typing
	})
	require.NoError(t, err)
	defer unsub()
	require.Equal(t, []string{"alice@x.com"}, latest)

	alice.SetTyping(ctx, "", false)
	assert.Empty(t, latest)
}

func TestRecordDecodesPresenceDocument(t *testing.T) {
	store := memory.New()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	store.SetClock(func() time.Time { return now })

	b := NewBeacon(store, "alice@x.com", zap.NewNop())
	ctx := context.Background()
	b.MarkActive(ctx)
	b.SetTyping(ctx, "conv-1", true)

	w := NewWatcher(store, zap.NewNop())
	rec, err := w.Record(ctx, "alice@x.com")
	require.NoError(t, err)
	assert.Equal(t, "alice@x.com", rec.Identity)
	assert.True(t, rec.Active)
	assert.Equal(t, now, rec.LastActive)
	assert.Equal(t, "conv-1", rec.TypingIn)
	assert.Equal(t, now, rec.UpdatedAt)
}
