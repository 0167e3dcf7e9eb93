package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"nestly/models"
	"nestly/utils"
)

// Broadcaster keeps this tab's in-memory session mirror in sync with the
// shared storage. Login and logout from any tab converge everywhere within
// one change delivery; subscribers (the connection manager above all) react
// to every transition.
type Broadcaster struct {
	storage Storage
	tabID   string
	logger  *zap.Logger

	mu      sync.RWMutex
	current *models.Session
	subs    []func(*models.Session)

	cancel context.CancelFunc
}

// NewBroadcaster creates a broadcaster and rehydrates the mirror from
// storage, so a reloaded tab starts logged in.
func NewBroadcaster(ctx context.Context, storage Storage) (*Broadcaster, error) {
	s, err := storage.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("session: rehydrate: %w", err)
	}
	return &Broadcaster{
		storage: storage,
		tabID:   uuid.NewString(),
		logger:  utils.GetLogger(),
		current: s,
	}, nil
}

// TabID identifies this tab in change origins.
func (b *Broadcaster) TabID() string { return b.tabID }

// Start begins consuming storage change notifications. It returns once the
// watcher is registered; delivery happens on a background goroutine until
// Stop or ctx cancellation.
func (b *Broadcaster) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	changes, err := b.storage.Watch(ctx)
	if err != nil {
		cancel()
		return err
	}
	b.cancel = cancel

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case c, ok := <-changes:
				if !ok {
					return
				}
				if c.Origin == b.tabID {
					// our own write, mirror already updated
					continue
				}
				b.logger.Debug("session change from another tab",
					zap.String("origin", c.Origin),
					zap.Bool("loggedIn", c.Session != nil))
				b.apply(c.Session)
			}
		}
	}()
	return nil
}

// Stop detaches the watcher.
func (b *Broadcaster) Stop() {
	if b.cancel != nil {
		b.cancel()
	}
}

// Current returns a copy of the session mirror, or nil when logged out.
func (b *Broadcaster) Current() *models.Session {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return copySession(b.current)
}

// Token returns the live bearer token, or "".
func (b *Broadcaster) Token() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.current == nil {
		return ""
	}
	return b.current.AuthToken
}

// OnChange registers a subscriber invoked with the new session (nil on
// logout) after every transition, local or remote.
func (b *Broadcaster) OnChange(fn func(*models.Session)) {
	b.mu.Lock()
	b.subs = append(b.subs, fn)
	b.mu.Unlock()
}

// Login persists the session and broadcasts it to every tab. UserID, Role
// and TokenIssuedAt are filled from the token claims when the caller left
// them empty.
func (b *Broadcaster) Login(ctx context.Context, s *models.Session) error {
	if s == nil || s.AuthToken == "" {
		return fmt.Errorf("session: login requires a token")
	}
	if s.UserID == "" {
		claims, err := utils.ParseClaims(s.AuthToken)
		if err != nil {
			return fmt.Errorf("session: parse token: %w", err)
		}
		s.UserID = claims.Subject
		s.Role = models.Role(claims.Role)
		s.TokenIssuedAt = claims.IssuedAt
	}
	if err := b.storage.Save(ctx, s, b.tabID); err != nil {
		return err
	}
	b.apply(s)
	return nil
}

// Logout clears the session everywhere. Every tab's connection manager
// disconnects in response.
func (b *Broadcaster) Logout(ctx context.Context) error {
	if err := b.storage.Clear(ctx, b.tabID); err != nil {
		return err
	}
	b.apply(nil)
	return nil
}

// Update applies fn to a copy of the current session and persists the
// result. Used to keep accumulated notifications and last-known location in
// the durable session without going through a full login.
func (b *Broadcaster) Update(ctx context.Context, fn func(*models.Session)) error {
	b.mu.RLock()
	cur := copySession(b.current)
	b.mu.RUnlock()
	if cur == nil {
		return fmt.Errorf("session: no session to update")
	}
	fn(cur)
	if err := b.storage.Save(ctx, cur, b.tabID); err != nil {
		return err
	}
	b.apply(cur)
	return nil
}

func (b *Broadcaster) apply(s *models.Session) {
	b.mu.Lock()
	b.current = copySession(s)
	subs := append(([]func(*models.Session))(nil), b.subs...)
	b.mu.Unlock()
	for _, fn := range subs {
		fn(copySession(s))
	}
}
