package cache

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	value        string
	expiresAt    time.Time
	lastAccessed time.Time
}

// MemoryStore is a process-local cache with per-entry TTL and least
// recently used eviction once maxEntries is reached.
type MemoryStore struct {
	mu         sync.RWMutex
	entries    map[string]*memoryEntry
	maxEntries int
	closed     bool
	now        func() time.Time
}

// NewMemoryStore creates a MemoryStore. maxEntries <= 0 means unbounded.
func NewMemoryStore(maxEntries int) *MemoryStore {
	return &MemoryStore{
		entries:    make(map[string]*memoryEntry),
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

// Get returns the live value for key. Expired entries are removed.
func (m *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return "", false, ErrClosed
	}
	entry, ok := m.entries[key]
	if !ok {
		return "", false, nil
	}
	now := m.now()
	if !now.Before(entry.expiresAt) {
		delete(m.entries, key)
		return "", false, nil
	}
	entry.lastAccessed = now
	return entry.value, true, nil
}

// Set stores value for ttl, replacing any previous entry. A non-positive
// ttl stores nothing.
func (m *MemoryStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	if ttl <= 0 {
		delete(m.entries, key)
		return nil
	}

	now := m.now()
	if _, exists := m.entries[key]; !exists && m.maxEntries > 0 && len(m.entries) >= m.maxEntries {
		m.evictExpired(now)
		if len(m.entries) >= m.maxEntries {
			m.evictLRU()
		}
	}
	m.entries[key] = &memoryEntry{
		value:        value,
		expiresAt:    now.Add(ttl),
		lastAccessed: now,
	}
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func (m *MemoryStore) Name() string { return "memory" }

func (m *MemoryStore) Health(context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrClosed
	}
	return nil
}

// Close drops every entry.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.entries = make(map[string]*memoryEntry)
	return nil
}

// evictExpired must be called with mu held.
func (m *MemoryStore) evictExpired(now time.Time) {
	for key, entry := range m.entries {
		if !now.Before(entry.expiresAt) {
			delete(m.entries, key)
		}
	}
}

// evictLRU must be called with mu held.
func (m *MemoryStore) evictLRU() {
	var oldestKey string
	var oldest time.Time
	for key, entry := range m.entries {
		if oldestKey == "" || entry.lastAccessed.Before(oldest) {
			oldestKey = key
			oldest = entry.lastAccessed
		}
	}
	if oldestKey != "" {
		delete(m.entries, oldestKey)
	}
}
