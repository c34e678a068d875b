// Package cache provides the process-lifetime key/value store used to memoize
// tree reductions such as permission aggregation.
//
// Entries never expire unless an expiry is given explicitly on Set. The store
// assumes single-threaded access, matching the lifecycle layer that owns it.
package cache

import (
	"strings"
	"time"
)

// Store is the caching collaborator consumed by memoizing components.
type Store interface {
	// Get returns the value stored under key and whether it was present.
	Get(key string) (any, bool)

	// Set stores value under key. A zero ttl means the entry never expires.
	Set(key string, value any, ttl time.Duration)

	// Delete removes key. Deleting a missing key is a no-op.
	Delete(key string)

	// DeletePrefix removes every key starting with prefix and returns how many
	// entries were removed.
	DeletePrefix(prefix string) int

	// Flush removes every entry.
	Flush()
}

// entry is a single cached value.
type entry struct {
	value     any
	expiresAt time.Time
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// Memory is an in-process Store backed by a plain map.
type Memory struct {
	entries map[string]entry
	now     func() time.Time
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

// Get implements Store. Expired entries are evicted lazily.
func (m *Memory) Get(key string) (any, bool) {
	e, ok := m.entries[key]
	if !ok {
		return nil, false
	}
	if e.expired(m.now()) {
		delete(m.entries, key)
		return nil, false
	}
	return e.value, true
}

// Set implements Store.
func (m *Memory) Set(key string, value any, ttl time.Duration) {
	e := entry{value: value}
	if ttl > 0 {
		e.expiresAt = m.now().Add(ttl)
	}
	m.entries[key] = e
}

// Delete implements Store.
func (m *Memory) Delete(key string) {
	delete(m.entries, key)
}

// DeletePrefix implements Store.
func (m *Memory) DeletePrefix(prefix string) int {
	removed := 0
	for key := range m.entries {
		if strings.HasPrefix(key, prefix) {
			delete(m.entries, key)
			removed++
		}
	}
	return removed
}

// Flush implements Store.
func (m *Memory) Flush() {
	m.entries = make(map[string]entry)
}

// Len returns the number of entries, including ones that expired but have not
// been evicted yet.
func (m *Memory) Len() int {
	return len(m.entries)
}

// Key joins key parts with ':' to build a namespaced cache key.
func Key(parts ...string) string {
	return strings.Join(parts, ":")
}
