// Package session owns the authenticated session: durable persistence,
// cross-tab broadcast, and the in-memory mirror every other component
// reads.
package session

import (
	"context"

	"nestly/models"
)

// Change is one session transition as seen through a storage backend.
// Session is nil on logout. Origin identifies the tab that caused the
// change so it can skip its own echo.
type Change struct {
	Session *models.Session `json:"session,omitempty"`
	Origin  string          `json:"origin"`
}

// Storage is a durable, tab-shared session store with change
// notifications. Implementations: MemoryStorage (tests, single process)
// and RedisStorage (cross-process pub/sub).
type Storage interface {
	// Load returns the persisted session, or nil when logged out.
	Load(ctx context.Context) (*models.Session, error)
	// Save persists the session and notifies every watcher.
	Save(ctx context.Context, s *models.Session, origin string) error
	// Clear removes the session and notifies every watcher.
	Clear(ctx context.Context, origin string) error
	// Watch delivers changes until ctx ends. Each call registers an
	// independent watcher ("tab").
	Watch(ctx context.Context) (<-chan Change, error)
}
