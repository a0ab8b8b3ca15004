package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryMirror implements Mirror in process memory. Expired keys are dropped
// lazily on access.
//
// MemoryMirror is thread-safe and supports concurrent access using sync.RWMutex.
type MemoryMirror struct {
	// items maps keys to values with their expiry.
	items map[string]memoryItem

	// sets maps set keys to their members.
	sets map[string]map[string]struct{}

	mu  sync.RWMutex
	now func() time.Time
}

type memoryItem struct {
	value   []byte
	expires time.Time
}

// NewMemoryMirror creates an empty in-memory mirror.
func NewMemoryMirror() *MemoryMirror {
	return &MemoryMirror{
		items: make(map[string]memoryItem),
		sets:  make(map[string]map[string]struct{}),
		now:   time.Now,
	}
}

// Set stores value under key.
func (m *MemoryMirror) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	item := memoryItem{value: append([]byte(nil), value...)}
	if ttl > 0 {
		item.expires = m.now().Add(ttl)
	}

	m.mu.Lock()
	m.items[key] = item
	m.mu.Unlock()
	return nil
}

// Get returns the value for key or ErrMiss.
func (m *MemoryMirror) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	item, ok := m.items[key]
	m.mu.RUnlock()

	if !ok {
		return nil, ErrMiss
	}
	if !item.expires.IsZero() && !m.now().Before(item.expires) {
		m.mu.Lock()
		if cur, ok := m.items[key]; ok && cur.expires.Equal(item.expires) {
			delete(m.items, key)
		}
		m.mu.Unlock()
		return nil, ErrMiss
	}
	return append([]byte(nil), item.value...), nil
}

// Delete removes keys and sets with the given names.
func (m *MemoryMirror) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, k := range keys {
		delete(m.items, k)
		delete(m.sets, k)
	}
	return nil
}

// AddToSet adds members to set.
func (m *MemoryMirror) AddToSet(_ context.Context, set string, members ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sets[set]
	if !ok {
		s = make(map[string]struct{}, len(members))
		m.sets[set] = s
	}
	for _, member := range members {
		s[member] = struct{}{}
	}
	return nil
}

// RemoveFromSet removes members from set.
func (m *MemoryMirror) RemoveFromSet(_ context.Context, set string, members ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sets[set]
	if !ok {
		return nil
	}
	for _, member := range members {
		delete(s, member)
	}
	if len(s) == 0 {
		delete(m.sets, set)
	}
	return nil
}

// Members returns the members of set.
func (m *MemoryMirror) Members(_ context.Context, set string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := m.sets[set]
	out := make([]string, 0, len(s))
	for member := range s {
		out = append(out, member)
	}
	return out, nil
}

// Ping always succeeds.
func (m *MemoryMirror) Ping(context.Context) error {
	return nil
}

// Close is a no-op.
func (m *MemoryMirror) Close() error {
	return nil
}
