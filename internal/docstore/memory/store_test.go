package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pulsechat-core/internal/docstore"
)

func TestSetMergesAndStampsServerTime(t *testing.T) {
	s := New()
	stamp := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return stamp })
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "presence", "a@x.com", map[string]any{
		"active":     true,
		"lastActive": docstore.ServerTimestamp,
	}))
	require.NoError(t, s.Set(ctx, "presence", "a@x.com", map[string]any{
		"typingIn": "conv-1",
	}))

	doc, err := s.Get(ctx, "presence", "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, true, doc.Fields["active"])
	assert.Equal(t, stamp, doc.Fields["lastActive"])
	assert.Equal(t, "conv-1", doc.Fields["typingIn"])
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	s := New()
	_, err := s.Get(context.Background(), "calls", "nope")
	assert.ErrorIs(t, err, docstore.ErrNotFound)
}

func TestArrayUnionAppends(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "calls", "c1", map[string]any{
		"history": docstore.ArrayUnion(map[string]any{"action": "start"}),
	}))
	require.NoError(t, s.Set(ctx, "calls", "c1", map[string]any{
		"history": docstore.ArrayUnion(map[string]any{"action": "hangup"}),
	}))
	// Re-adding an identical element is a no-op.
	require.NoError(t, s.Set(ctx, "calls", "c1", map[string]any{
		"history": docstore.ArrayUnion(map[string]any{"action": "hangup"}),
	}))

	doc, err := s.Get(ctx, "calls", "c1")
	require.NoError(t, err)
	history, ok := doc.Fields["history"].([]any)
	require.True(t, ok)
	assert.Len(t, history, 2)
}

func TestWatchDocDeliversCurrentAndSubsequent(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "calls", "c1", map[string]any{"status": "ringing"}))

	var seen []string
	unsub, err := s.WatchDoc(ctx, "calls", "c1", func(doc docstore.Document) {
		seen = append(seen, doc.Fields["status"].(string))
	})
	require.NoError(t, err)

	require.NoError(t, s.Set(ctx, "calls", "c1", map[string]any{"status": "connected"}))
	assert.Equal(t, []string{"ringing", "connected"}, seen)

	unsub()
	require.NoError(t, s.Set(ctx, "calls", "c1", map[string]any{"status": "ended"}))
	assert.Len(t, seen, 2, "no delivery after unsubscribe")

	unsub() // second call must be safe
}

func TestWatchCollectionDistinguishesAddedAndModified(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "calls", "existing", map[string]any{"status": "ringing"}))

	var kinds []docstore.ChangeKind
	var ids []string
	unsub, err := s.WatchCollection(ctx, "calls", func(ch docstore.Change) {
		kinds = append(kinds, ch.Kind)
		ids = append(ids, ch.Doc.ID)
	})
	require.NoError(t, err)
	defer unsub()

	require.NoError(t, s.Set(ctx, "calls", "fresh", map[string]any{"status": "ringing"}))
	require.NoError(t, s.Set(ctx, "calls", "fresh", map[string]any{"status": "connected"}))

	assert.Equal(t, []docstore.ChangeKind{docstore.ChangeAdded, docstore.ChangeAdded, docstore.ChangeModified}, kinds)
	assert.Equal(t, []string{"existing", "fresh", "fresh"}, ids)
}

func TestAddGeneratesDistinctIDs(t *testing.T) {
	s := New()
	ctx := context.Background()

	id1, err := s.Add(ctx, "calls/c1/offerCandidates", map[string]any{"candidate": "a"})
	require.NoError(t, err)
	id2, err := s.Add(ctx, "calls/c1/offerCandidates", map[string]any{"candidate": "b"})
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2)

	doc, err := s.Get(ctx, "calls/c1/offerCandidates", id1)
	require.NoError(t, err)
	assert.Equal(t, "a", doc.Fields["candidate"])
}
