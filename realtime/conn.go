// Package realtime owns the single live event channel per session and the
// dispatch of inbound events onto the entity store.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"nestly/models"
	"nestly/utils"
)

// Handler consumes the raw payload of one named event.
type Handler func(data json.RawMessage)

// ErrAuthFailed marks a connection rejected by the backend's auth layer.
// The connection fails closed: no retry happens until a fresh token is
// supplied through a new Connect.
var ErrAuthFailed = errors.New("realtime: authentication failed")

// clientMessage is what the client sends upstream: a room join bound to the
// session's user, and event subscriptions.
type clientMessage struct {
	Type   string   `json:"type"`
	Room   string   `json:"room,omitempty"`
	Events []string `json:"events,omitempty"`
}

// Conn manages exactly one websocket connection per tab per session. On
// transport drops it reconnects with exponential backoff and re-subscribes
// every registered event name, so no handler is silently lost. Auth
// failures are surfaced through OnAuthError and never retried with the
// same token.
type Conn struct {
	url     string
	minWait time.Duration
	maxWait time.Duration
	logger  *zap.Logger

	mu          sync.Mutex
	ws          *websocket.Conn
	handlers    map[string]Handler
	session     *models.Session
	connected   bool
	refs        int
	gen         int
	cancel      context.CancelFunc
	onAuthError func(error)
}

// NewConn builds a connection manager for the given websocket URL.
func NewConn(url string, minWait, maxWait time.Duration) *Conn {
	if minWait <= 0 {
		minWait = time.Second
	}
	if maxWait < minWait {
		maxWait = 30 * time.Second
	}
	return &Conn{
		url:      url,
		minWait:  minWait,
		maxWait:  maxWait,
		logger:   utils.GetLogger(),
		handlers: make(map[string]Handler),
	}
}

// OnAuthError registers the callback invoked when the backend rejects the
// token, during the handshake or mid-connection.
func (c *Conn) OnAuthError(fn func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onAuthError = fn
}

// On registers the single handler for a named event. Registering again
// replaces the previous handler.
func (c *Conn) On(event string, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[event] = h
}

// Off removes the handler for an event.
func (c *Conn) Off(event string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.handlers, event)
}

// Acquire registers a consumer of the connection and returns the new
// reference count.
func (c *Conn) Acquire() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refs++
	return c.refs
}

// Release drops one consumer. When the last consumer goes away the
// connection closes; in-flight fetches elsewhere are unaffected.
func (c *Conn) Release() {
	c.mu.Lock()
	c.refs--
	last := c.refs <= 0
	if last {
		c.refs = 0
	}
	c.mu.Unlock()
	if last {
		c.Disconnect()
	}
}

// IsConnected reports whether the channel is currently up.
func (c *Conn) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Connect opens the channel authenticated with the session token and joins
// the user's room. Exactly one connection exists per Conn; calling Connect
// while connected tears the old one down first.
func (c *Conn) Connect(ctx context.Context, s *models.Session) error {
	if s == nil || s.AuthToken == "" {
		return fmt.Errorf("realtime: connect requires a session")
	}
	c.Disconnect()

	ctx, cancel := context.WithCancel(ctx)

	c.mu.Lock()
	c.session = copyOf(s)
	c.cancel = cancel
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	ws, err := c.dial(ctx, s.AuthToken)
	if err != nil {
		cancel()
		if errors.Is(err, ErrAuthFailed) {
			c.notifyAuthError(err)
		}
		return err
	}
	c.install(gen, ws, s)
	go c.readLoop(ctx, gen)
	return nil
}

// Disconnect closes the channel. Idempotent; the connection never outlives
// a logout.
func (c *Conn) Disconnect() {
	c.mu.Lock()
	cancel := c.cancel
	ws := c.ws
	c.cancel = nil
	c.ws = nil
	c.connected = false
	c.session = nil
	c.gen++
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if ws != nil {
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"),
			time.Now().Add(time.Second))
		_ = ws.Close()
	}
}

func (c *Conn) dial(ctx context.Context, token string) (*websocket.Conn, error) {
	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, c.url+"?token="+token, nil)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, fmt.Errorf("%w: handshake rejected (%d)", ErrAuthFailed, resp.StatusCode)
		}
		return nil, fmt.Errorf("realtime: dial %s: %w", c.url, err)
	}
	return ws, nil
}

// install wires a fresh websocket under the given generation and replays
// the room join plus every registered subscription.
func (c *Conn) install(gen int, ws *websocket.Conn, s *models.Session) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		_ = ws.Close()
		return
	}
	c.ws = ws
	c.connected = true
	events := make([]string, 0, len(c.handlers))
	for name := range c.handlers {
		events = append(events, name)
	}
	c.mu.Unlock()

	_ = ws.WriteJSON(clientMessage{Type: "join", Room: "user:" + s.UserID})
	if len(events) > 0 {
		_ = ws.WriteJSON(clientMessage{Type: "subscribe", Events: events})
	}
	c.logger.Info("realtime channel up",
		zap.String("userId", s.UserID), zap.Int("subscriptions", len(events)))
}

func (c *Conn) readLoop(ctx context.Context, gen int) {
	for {
		c.mu.Lock()
		if gen != c.gen {
			c.mu.Unlock()
			return
		}
		ws := c.ws
		c.mu.Unlock()
		if ws == nil {
			return
		}

		_, raw, err := ws.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if isAuthClose(err) {
				c.mu.Lock()
				c.connected = false
				c.mu.Unlock()
				c.notifyAuthError(fmt.Errorf("%w: %v", ErrAuthFailed, err))
				return
			}
			c.logger.Warn("realtime channel dropped", zap.Error(err))
			c.reconnect(ctx, gen)
			return
		}

		var env models.EventEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			c.logger.Debug("discarding malformed event frame", zap.Error(err))
			continue
		}
		c.mu.Lock()
		h := c.handlers[env.Event]
		c.mu.Unlock()
		if h != nil {
			h(env.Data)
		}
	}
}

// reconnect re-dials with exponential backoff and jitter, then re-installs
// the room join and all subscriptions under the same generation.
func (c *Conn) reconnect(ctx context.Context, gen int) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.connected = false
	c.ws = nil
	s := copyOf(c.session)
	c.mu.Unlock()
	if s == nil {
		return
	}

	wait := c.minWait
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait + time.Duration(rand.Int63n(int64(c.minWait)))):
		}

		c.mu.Lock()
		stale := gen != c.gen
		c.mu.Unlock()
		if stale {
			return
		}

		ws, err := c.dial(ctx, s.AuthToken)
		if err == nil {
			c.install(gen, ws, s)
			go c.readLoop(ctx, gen)
			return
		}
		if errors.Is(err, ErrAuthFailed) {
			// fail closed: a stale token must not be retried
			c.notifyAuthError(err)
			return
		}
		c.logger.Debug("reconnect attempt failed",
			zap.Duration("nextWait", wait), zap.Error(err))
		if wait *= 2; wait > c.maxWait {
			wait = c.maxWait
		}
	}
}

func (c *Conn) notifyAuthError(err error) {
	c.mu.Lock()
	fn := c.onAuthError
	c.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}

func isAuthClose(err error) bool {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code == websocket.ClosePolicyViolation
	}
	return false
}

func copyOf(s *models.Session) *models.Session {
	if s == nil {
		return nil
	}
	out := *s
	return &out
}
