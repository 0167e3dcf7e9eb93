package session

import (
	"context"
	"sync"

	"nestly/models"
)

// MemoryStorage is the in-process Storage backend. Several broadcasters
// watching the same MemoryStorage behave like tabs of one browser profile,
// which is exactly what the tests need.
type MemoryStorage struct {
	mu       sync.Mutex
	current  *models.Session
	watchers map[int]chan Change
	nextID   int
}

// NewMemoryStorage creates an empty in-memory session store.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{watchers: make(map[int]chan Change)}
}

func (m *MemoryStorage) Load(ctx context.Context) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copySession(m.current), nil
}

func (m *MemoryStorage) Save(ctx context.Context, s *models.Session, origin string) error {
	m.mu.Lock()
	m.current = copySession(s)
	m.broadcastLocked(Change{Session: copySession(s), Origin: origin})
	m.mu.Unlock()
	return nil
}

func (m *MemoryStorage) Clear(ctx context.Context, origin string) error {
	m.mu.Lock()
	m.current = nil
	m.broadcastLocked(Change{Origin: origin})
	m.mu.Unlock()
	return nil
}

func (m *MemoryStorage) Watch(ctx context.Context) (<-chan Change, error) {
	m.mu.Lock()
	ch := make(chan Change, 16)
	id := m.nextID
	m.nextID++
	m.watchers[id] = ch
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		delete(m.watchers, id)
		m.mu.Unlock()
	}()
	return ch, nil
}

func (m *MemoryStorage) broadcastLocked(c Change) {
	for _, ch := range m.watchers {
		select {
		case ch <- c:
		default:
			// watcher is saturated; drop the oldest so it still converges
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- c:
			default:
			}
		}
	}
}

func copySession(s *models.Session) *models.Session {
	if s == nil {
		return nil
	}
	out := *s
	if s.Profile != nil {
		p := *s.Profile
		out.Profile = &p
	}
	out.Notifications = append([]models.NotificationItem(nil), s.Notifications...)
	return &out
}
