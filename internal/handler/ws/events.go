// Package ws pushes incoming-call and typing events to connected clients
// over a websocket, one connection per identity.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"pulsechat-core/internal/call"
	"pulsechat-core/internal/docstore"
	"pulsechat-core/internal/domain"
	"pulsechat-core/internal/presence"
	"pulsechat-core/pkg/metrics"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	sendBuffer = 64
)

// Event is one pushed notification.
type Event struct {
	Type           string              `json:"type"` // "incoming_call" | "typing"
	Session        *domain.CallSession `json:"session,omitempty"`
	ConversationID string              `json:"conversationId,omitempty"`
	Identities     []string            `json:"identities,omitempty"`
	Timestamp      time.Time           `json:"timestamp"`
}

// EventHandler upgrades /ws/events connections and bridges store watches
// onto them.
type EventHandler struct {
	calls          *call.IncomingCallWatcher
	typing         *presence.Watcher
	log            *zap.Logger
	allowedOrigins map[string]bool
}

// NewEventHandler creates the handler. An empty origin list allows every
// origin; anything else is an allowlist.
func NewEventHandler(calls *call.IncomingCallWatcher, typing *presence.Watcher, allowedOrigins []string, log *zap.Logger) *EventHandler {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	return &EventHandler{calls: calls, typing: typing, log: log, allowedOrigins: allowed}
}

func (h *EventHandler) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(h.allowedOrigins) == 0 {
				return true
			}
			return h.allowedOrigins[r.Header.Get("Origin")]
		},
	}
}

// ServeEvents handles GET /ws/events?user=<id>[&conversation=<id>].
// Incoming calls for the user are always pushed; typing updates only when
// a conversation is named.
func (h *EventHandler) ServeEvents(c *gin.Context) {
	identity := c.Query("user")
	if identity == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user required"})
		return
	}
	conversationID := c.Query("conversation")

	upgrader := h.upgrader()
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.String("user", identity), zap.Error(err))
		return
	}

	// The request context dies the moment this handler returns, even
	// though the hijacked socket lives on. The watches must ride the
	// socket's lifetime; readPump cancels them on disconnect.
	ctx, cancel := context.WithCancel(context.Background())
	client := &eventClient{
		conn:   conn,
		send:   make(chan Event, sendBuffer),
		cancel: cancel,
		log:    h.log,
	}

	var unsubs []docstore.Unsubscribe
	unsub, err := h.calls.Subscribe(ctx, identity, func(s domain.CallSession) {
		client.push(Event{Type: "incoming_call", Session: &s, Timestamp: time.Now()})
	})
	if err != nil {
		h.log.Error("call subscription failed", zap.String("user", identity), zap.Error(err))
		conn.Close()
		cancel()
		return
	}
	unsubs = append(unsubs, unsub)

	if conversationID != "" {
		unsub, err := h.typing.WatchTyping(ctx, conversationID, identity, func(identities []string) {
			client.push(Event{
				Type:           "typing",
				ConversationID: conversationID,
				Identities:     identities,
				Timestamp:      time.Now(),
			})
		})
		if err != nil {
			h.log.Error("typing subscription failed", zap.String("user", identity), zap.Error(err))
		} else {
			unsubs = append(unsubs, unsub)
		}
	}

	metrics.EventClientsActive.Inc()
	h.log.Info("event client connected",
		zap.String("user", identity),
		zap.String("conversation", conversationID))

	go client.writePump()
	go client.readPump(func() {
		for _, fn := range unsubs {
			fn()
		}
		metrics.EventClientsActive.Dec()
		h.log.Info("event client disconnected", zap.String("user", identity))
	})
}

// eventClient is one connected websocket with the usual read/write pumps.
type eventClient struct {
	conn   *websocket.Conn
	send   chan Event
	cancel context.CancelFunc
	log    *zap.Logger
}

// push drops the event if the client's buffer is full; a stalled consumer
// must not block store fan-out.
func (c *eventClient) push(ev Event) {
	select {
	case c.send <- ev:
	default:
		c.log.Warn("event dropped, client too slow")
	}
}

// readPump discards inbound frames; it exists to process control messages
// and notice the close.
func (c *eventClient) readPump(onClose func()) {
	defer func() {
		c.cancel()
		c.conn.Close()
		onClose()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug("websocket closed", zap.Error(err))
			}
			return
		}
	}
}

func (c *eventClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case ev := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			payload, err := json.Marshal(ev)
			if err != nil {
				c.log.Error("event marshal failed", zap.Error(err))
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
