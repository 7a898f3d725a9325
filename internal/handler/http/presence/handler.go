// Package presence exposes derived availability and typing indicators
// over HTTP.
package presence

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"pulsechat-core/internal/docstore"
	"pulsechat-core/internal/domain"
	presencesvc "pulsechat-core/internal/presence"
)

// Handler answers presence and typing queries.
type Handler struct {
	watcher *presencesvc.Watcher
	tracker *presencesvc.Tracker
	log     *zap.Logger
}

// NewHandler creates the handler over a record reader and a live tracker.
func NewHandler(watcher *presencesvc.Watcher, tracker *presencesvc.Tracker, log *zap.Logger) *Handler {
	return &Handler{watcher: watcher, tracker: tracker, log: log}
}

// RegisterRoutes mounts the v1 endpoints.
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	v1 := r.Group("/v1")
	v1.GET("/presence/:id", h.GetPresence)
	v1.GET("/conversations/:id/typing", h.GetTyping)
}

type presenceResponse struct {
	Identity   string     `json:"identity"`
	Tier       string     `json:"tier"`
	Label      string     `json:"label"`
	Active     bool       `json:"active"`
	LastActive *time.Time `json:"lastActive,omitempty"`
}

// GetPresence handles GET /v1/presence/:id. Unknown identities are
// reported as offline rather than 404: an account that never wrote a
// heartbeat looks the same as one that signed out long ago.
func (h *Handler) GetPresence(c *gin.Context) {
	identity := c.Param("id")

	rec, err := h.watcher.Record(c.Request.Context(), identity)
	if err != nil && !errors.Is(err, docstore.ErrNotFound) {
		h.log.Error("presence lookup failed", zap.String("identity", identity), zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "presence unavailable"})
		return
	}

	now := time.Now()
	var status domain.PresenceStatus
	if c.Query("friend") == "1" {
		status = domain.FriendStatus(rec, now)
	} else {
		status = domain.Status(rec, now)
	}

	resp := presenceResponse{
		Identity: identity,
		Tier:     string(status.Tier),
		Label:    status.Label,
		Active:   rec.Active,
	}
	if !rec.LastActive.IsZero() {
		last := rec.LastActive
		resp.LastActive = &last
	}
	c.JSON(http.StatusOK, resp)
}

type typingResponse struct {
	ConversationID string   `json:"conversationId"`
	Identities     []string `json:"identities"`
	Count          int      `json:"count"`
}

// GetTyping handles GET /v1/conversations/:id/typing. The optional user
// query excludes the asker from their own indicator.
func (h *Handler) GetTyping(c *gin.Context) {
	conversationID := c.Param("id")
	self := c.Query("user")

	identities := h.tracker.Typing(conversationID, self)
	c.JSON(http.StatusOK, typingResponse{
		ConversationID: conversationID,
		Identities:     identities,
		Count:          len(identities),
	})
}
