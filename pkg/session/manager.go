package session

import (
	"context"
	"sync"
)

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Manager serializes operations per progress key. It uses reference
// counting to garbage collect locks for idle sessions.
type Manager struct {
	mu    sync.Mutex            // global lock for the map
	locks map[string]*lockEntry // active per-key locks
}

// NewManager creates a session manager.
func NewManager() *Manager {
	return &Manager{
		locks: make(map[string]*lockEntry),
	}
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller must lock entry.mu and call release(key) after unlocking.
func (m *Manager) acquire(key string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[key]
	if !exists {
		entry = &lockEntry{}
		m.locks[key] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry when it
// reaches zero.
func (m *Manager) release(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[key]
	if !exists {
		return
	}
	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, key)
	}
}

// WithLock executes fn while holding the lock for the key.
func (m *Manager) WithLock(ctx context.Context, key string, fn func(context.Context) error) error {
	entry := m.acquire(key)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		m.release(key)
	}()
	return fn(ctx)
}
