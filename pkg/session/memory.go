package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStorage is a process-local Storage for development and tests. A
// janitor goroutine evicts long-expired online sessions so the map does
// not grow without bound.
type MemoryStorage struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	stopOnce sync.Once
	stop     chan struct{}
}

// janitorGrace is how long past expiry an online session survives before
// the janitor evicts it. The grace period lets Expired-but-reloadable
// sessions drive re-authentication instead of looking brand new.
const janitorGrace = time.Hour

// NewMemory returns a MemoryStorage with its janitor running at the given
// sweep interval. A non-positive interval disables the janitor.
func NewMemory(sweep time.Duration) *MemoryStorage {
	m := &MemoryStorage{
		sessions: make(map[string]*Session),
		stop:     make(chan struct{}),
	}

	if sweep > 0 {
		go m.janitor(sweep)
	}
	return m
}

// Close stops the janitor. Safe to call more than once.
func (m *MemoryStorage) Close() {
	m.stopOnce.Do(func() { close(m.stop) })
}

func (m *MemoryStorage) Store(_ context.Context, s *Session) error {
	cp := *s
	if s.User != nil {
		u := *s.User
		cp.User = &u
	}
	if s.Expires != nil {
		e := *s.Expires
		cp.Expires = &e
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = &cp
	return nil
}

func (m *MemoryStorage) Load(_ context.Context, id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}

	cp := *s
	if s.User != nil {
		u := *s.User
		cp.User = &u
	}
	if s.Expires != nil {
		e := *s.Expires
		cp.Expires = &e
	}
	return &cp, nil
}

func (m *MemoryStorage) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

func (m *MemoryStorage) DeleteMany(_ context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.sessions, id)
	}
	return nil
}

func (m *MemoryStorage) FindByShop(_ context.Context, shop string) ([]*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Session
	for _, s := range m.sessions {
		if s.Shop != shop {
			continue
		}
		cp := *s
		out = append(out, &cp)
	}
	return out, nil
}

func (m *MemoryStorage) janitor(sweep time.Duration) {
	ticker := time.NewTicker(sweep)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.evictExpired()
		}
	}
}

func (m *MemoryStorage) evictExpired() {
	cutoff := time.Now().Add(-janitorGrace)

	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.sessions {
		if s.Expires != nil && s.Expires.Before(cutoff) {
			delete(m.sessions, id)
		}
	}
}
