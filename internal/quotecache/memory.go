package quotecache

import (
	"context"
	"sync"
	"time"
)

type memoryItem struct {
	entry   Entry
	expires time.Time
}

// MemoryBackend is a thread-safe in-memory Backend. Each instance owns its own
// map.
type MemoryBackend struct {
	data  map[string]memoryItem
	mutex sync.RWMutex
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{data: make(map[string]memoryItem)}
}

func (m *MemoryBackend) Get(_ context.Context, key string) (Entry, bool, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	item, ok := m.data[key]
	return item.entry, ok, nil
}

func (m *MemoryBackend) Set(_ context.Context, key string, entry Entry, ttl time.Duration) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.data[key] = memoryItem{entry: entry, expires: entry.CreatedAt.Add(ttl)}
	return nil
}

// Prune removes entries whose retention ended before now and returns how many
// were dropped.
func (m *MemoryBackend) Prune(now time.Time) int {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	removed := 0
	for key, item := range m.data {
		if !now.Before(item.expires) {
			delete(m.data, key)
			removed++
		}
	}
	return removed
}

// Size returns the current number of items.
func (m *MemoryBackend) Size() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.data)
}
