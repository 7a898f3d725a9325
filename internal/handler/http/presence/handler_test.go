package presence

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"pulsechat-core/internal/docstore"
	"pulsechat-core/internal/docstore/memory"
	presencesvc "pulsechat-core/internal/presence"
)

func newTestRouter(t *testing.T, store *memory.Store) (*gin.Engine, *presencesvc.Tracker) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	watcher := presencesvc.NewWatcher(store, zap.NewNop())
	tracker := presencesvc.NewTracker(store, zap.NewNop())
	require.NoError(t, tracker.Start(context.Background()))
	t.Cleanup(tracker.Stop)

	r := gin.New()
	NewHandler(watcher, tracker, zap.NewNop()).RegisterRoutes(r)
	return r, tracker
}

func TestGetPresence(t *testing.T) {
	store := memory.New()
	r, _ := newTestRouter(t, store)

	require.NoError(t, store.Set(context.Background(), "presence", "bob", map[string]any{
		"active":     true,
		"lastActive": docstore.ServerTimestamp,
	}))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/presence/bob", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp presenceResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "bob", resp.Identity)
	assert.Equal(t, "active_now", resp.Tier)
	assert.Equal(t, "Active now", resp.Label)
	assert.True(t, resp.Active)
	require.NotNil(t, resp.LastActive)
}

func TestGetPresenceUnknownIsOffline(t *testing.T) {
	r, _ := newTestRouter(t, memory.New())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/presence/nobody", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp presenceResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "offline", resp.Tier)
	assert.Equal(t, "Offline", resp.Label)
	assert.Nil(t, resp.LastActive)
}

func TestGetPresenceFriendLabel(t *testing.T) {
	store := memory.New()
	base := time.Now().Add(-5 * time.Minute)
	store.SetClock(func() time.Time { return base })
	r, _ := newTestRouter(t, store)

	require.NoError(t, store.Set(context.Background(), "presence", "bob", map[string]any{
		"active":     false,
		"lastActive": docstore.ServerTimestamp,
	}))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/presence/bob?friend=1", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp presenceResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "recently_active", resp.Tier)
	assert.Equal(t, "5 min ago", resp.Label)
}

func TestGetTyping(t *testing.T) {
	store := memory.New()
	r, _ := newTestRouter(t, store)

	require.NoError(t, store.Set(context.Background(), "presence", "carol", map[string]any{
		"typingIn":  "conv-1",
		"updatedAt": docstore.ServerTimestamp,
	}))
	require.NoError(t, store.Set(context.Background(), "presence", "alice", map[string]any{
		"typingIn":  "conv-1",
		"updatedAt": docstore.ServerTimestamp,
	}))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/conversations/conv-1/typing?user=alice", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp typingResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "conv-1", resp.ConversationID)
	assert.Equal(t, []string{"carol"}, resp.Identities)
	assert.Equal(t, 1, resp.Count)
}
