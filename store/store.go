// Package store holds the tab-wide, in-memory cache of domain entities.
// UI consumers read snapshots and subscribe to changes; only the event
// dispatcher and acknowledged user actions write.
package store

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"nestly/utils"
)

// Entity is anything the store can hold. Implementations live in models.
type Entity interface {
	EntityID() string
}

// Snapshot is the read view of one collection. Items is a copy; mutating it
// never touches the store.
type Snapshot struct {
	Items     []Entity
	Loading   bool
	Err       error
	UpdatedAt time.Time
}

// Find returns the item with the given id, if present.
func (s Snapshot) Find(id string) (Entity, bool) {
	for _, it := range s.Items {
		if it.EntityID() == id {
			return it, true
		}
	}
	return nil, false
}

// Guard vets a single-item replacement. Returning false rejects the write;
// the store keeps the old value. Used to enforce monotonic booking status.
type Guard func(old, next Entity) bool

type collection struct {
	items     []Entity
	loading   bool
	err       error
	updatedAt time.Time
}

// Store is the process-wide entity cache. All methods are safe for
// concurrent use; writes are serialized so readers always observe either
// the pre-write or the post-write state of an item, never a partial merge.
type Store struct {
	mu     sync.RWMutex
	cols   map[string]*collection
	guards map[string]Guard
	subs   map[string]map[int]chan Snapshot
	nextID int
	logger *zap.Logger
}

// New creates an empty store.
func New() *Store {
	return &Store{
		cols:   make(map[string]*collection),
		guards: make(map[string]Guard),
		subs:   make(map[string]map[int]chan Snapshot),
		logger: utils.GetLogger(),
	}
}

// RegisterGuard installs a write guard for one collection.
func (s *Store) RegisterGuard(key string, g Guard) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.guards[key] = g
}

func (s *Store) col(key string) *collection {
	c, ok := s.cols[key]
	if !ok {
		c = &collection{loading: true}
		s.cols[key] = c
	}
	return c
}

func (s *Store) snapshotLocked(c *collection) Snapshot {
	items := make([]Entity, len(c.items))
	copy(items, c.items)
	return Snapshot{
		Items:     items,
		Loading:   c.loading,
		Err:       c.err,
		UpdatedAt: c.updatedAt,
	}
}

// Get returns the current snapshot of a collection. A never-fetched
// collection reads as empty and loading.
func (s *Store) Get(key string) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(s.col(key))
}

// SetLoading flags a collection as being fetched without discarding the
// stale items, so the UI can keep rendering them.
func (s *Store) SetLoading(key string) {
	s.mu.Lock()
	c := s.col(key)
	c.loading = true
	snap := s.snapshotLocked(c)
	s.mu.Unlock()
	s.notify(key, snap)
}

// Set replaces a collection wholesale and clears loading and error state.
func (s *Store) Set(key string, items []Entity) {
	s.mu.Lock()
	c := s.col(key)
	c.items = make([]Entity, len(items))
	copy(c.items, items)
	c.loading = false
	c.err = nil
	c.updatedAt = time.Now()
	snap := s.snapshotLocked(c)
	s.mu.Unlock()
	s.notify(key, snap)
}

// SetError records a fetch failure on the collection. Stale items survive
// so each subscribed surface can decide how to render the error.
func (s *Store) SetError(key string, err error) {
	s.mu.Lock()
	c := s.col(key)
	c.loading = false
	c.err = err
	c.updatedAt = time.Now()
	snap := s.snapshotLocked(c)
	s.mu.Unlock()
	s.notify(key, snap)
}

// Patch replaces a single item atomically with the result of apply. The
// item slice is copied before the swap, so concurrent readers see the old
// or the new item, never an intermediate. Returns false when the id is
// absent or the collection guard rejects the write.
func (s *Store) Patch(key, id string, apply func(Entity) Entity) bool {
	s.mu.Lock()
	c := s.col(key)
	idx := -1
	for i, it := range c.items {
		if it.EntityID() == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return false
	}

	next := apply(c.items[idx])
	if g, ok := s.guards[key]; ok && !g(c.items[idx], next) {
		s.logger.Debug("patch rejected by guard",
			zap.String("collection", key), zap.String("id", id))
		s.mu.Unlock()
		return false
	}

	items := make([]Entity, len(c.items))
	copy(items, c.items)
	items[idx] = next
	c.items = items
	c.updatedAt = time.Now()
	snap := s.snapshotLocked(c)
	s.mu.Unlock()
	s.notify(key, snap)
	return true
}

// Upsert inserts or replaces one item, subject to the collection guard.
func (s *Store) Upsert(key string, e Entity) bool {
	s.mu.Lock()
	c := s.col(key)
	items := make([]Entity, len(c.items))
	copy(items, c.items)

	replaced := false
	for i, it := range items {
		if it.EntityID() == e.EntityID() {
			if g, ok := s.guards[key]; ok && !g(it, e) {
				s.mu.Unlock()
				return false
			}
			items[i] = e
			replaced = true
			break
		}
	}
	if !replaced {
		items = append(items, e)
	}
	c.items = items
	c.loading = false
	c.updatedAt = time.Now()
	snap := s.snapshotLocked(c)
	s.mu.Unlock()
	s.notify(key, snap)
	return true
}

// Remove drops one item by id.
func (s *Store) Remove(key, id string) {
	s.mu.Lock()
	c := s.col(key)
	items := make([]Entity, 0, len(c.items))
	for _, it := range c.items {
		if it.EntityID() != id {
			items = append(items, it)
		}
	}
	c.items = items
	c.updatedAt = time.Now()
	snap := s.snapshotLocked(c)
	s.mu.Unlock()
	s.notify(key, snap)
}

// Reset clears every collection. Called on logout so the next session
// never sees another user's data.
func (s *Store) Reset() {
	s.mu.Lock()
	keys := make([]string, 0, len(s.cols))
	snaps := make([]Snapshot, 0, len(s.cols))
	for key, c := range s.cols {
		c.items = nil
		c.loading = true
		c.err = nil
		c.updatedAt = time.Now()
		keys = append(keys, key)
		snaps = append(snaps, s.snapshotLocked(c))
	}
	s.mu.Unlock()
	for i, key := range keys {
		s.notify(key, snaps[i])
	}
}

// Subscribe returns a channel receiving the collection snapshot after each
// change, plus a cancel func. Slow consumers only ever lag by one snapshot:
// a pending unread value is replaced, not queued.
func (s *Store) Subscribe(key string) (<-chan Snapshot, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan Snapshot, 1)
	id := s.nextID
	s.nextID++
	if s.subs[key] == nil {
		s.subs[key] = make(map[int]chan Snapshot)
	}
	s.subs[key][id] = ch

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if set, ok := s.subs[key]; ok {
			delete(set, id)
		}
	}
	return ch, cancel
}

func (s *Store) notify(key string, snap Snapshot) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subs[key] {
		select {
		case ch <- snap:
		default:
			// replace the stale pending snapshot
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}
