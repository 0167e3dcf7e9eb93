package simulator

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"nestly/models"
	"nestly/utils"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Local development backend; any origin may connect.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type subscriber struct {
	conn   *websocket.Conn
	room   string
	events map[string]bool
	mu     sync.Mutex
}

func (s *subscriber) send(env models.EventEnvelope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.WriteJSON(env)
}

// Hub fans real-time events out to connected clients. Room events are
// scoped to one user; broadcast events go to every connection that
// subscribed to the event name.
type Hub struct {
	mu     sync.RWMutex
	subs   map[*subscriber]struct{}
	logger *zap.Logger
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		subs:   make(map[*subscriber]struct{}),
		logger: utils.GetLogger(),
	}
}

// Handle upgrades GET /ws?token=... and serves the connection until the
// client goes away. Invalid tokens are rejected before the upgrade so the
// client sees a plain 401.
func (h *Hub) Handle(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "token is required"})
		return
	}
	userID, err := utils.ExtractIDFromToken(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "invalid or expired token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	sub := &subscriber{conn: conn, events: make(map[string]bool)}
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug("client connected", zap.String("userId", userID))

	defer func() {
		h.mu.Lock()
		delete(h.subs, sub)
		h.mu.Unlock()
		_ = conn.Close()
	}()

	for {
		var msg struct {
			Type   string   `json:"type"`
			Room   string   `json:"room,omitempty"`
			Events []string `json:"events,omitempty"`
		}
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		switch msg.Type {
		case "join":
			h.mu.Lock()
			sub.room = msg.Room
			h.mu.Unlock()
		case "subscribe":
			h.mu.Lock()
			for _, ev := range msg.Events {
				sub.events[ev] = true
			}
			h.mu.Unlock()
		}
	}
}

// Publish delivers an event to every connection joined to the room.
func (h *Hub) Publish(room, event string, payload any) {
	env := envelope(event, payload)
	h.mu.RLock()
	targets := make([]*subscriber, 0, 4)
	for sub := range h.subs {
		if sub.room == room {
			targets = append(targets, sub)
		}
	}
	h.mu.RUnlock()
	for _, sub := range targets {
		sub.send(env)
	}
}

// Broadcast delivers an event to every connection subscribed to it.
func (h *Hub) Broadcast(event string, payload any) {
	env := envelope(event, payload)
	h.mu.RLock()
	targets := make([]*subscriber, 0, len(h.subs))
	for sub := range h.subs {
		if sub.events[event] {
			targets = append(targets, sub)
		}
	}
	h.mu.RUnlock()
	for _, sub := range targets {
		sub.send(env)
	}
}

func envelope(event string, payload any) models.EventEnvelope {
	env := models.EventEnvelope{Event: event}
	if payload != nil {
		raw, err := jsonMarshal(payload)
		if err == nil {
			env.Data = raw
		}
	}
	return env
}
