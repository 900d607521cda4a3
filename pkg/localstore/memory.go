package localstore

import (
	"context"
	"strings"
	"sync"

	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
)

// MemoryBackend keeps documents in process memory. A positive quota caps the
// total bytes held, mimicking browser storage limits.
type MemoryBackend struct {
	mu    sync.RWMutex
	data  map[string][]byte
	quota int64
}

// NewMemoryBackend builds an empty in-memory backend; quota <= 0 disables the cap.
func NewMemoryBackend(quota int64) *MemoryBackend {
	return &MemoryBackend{data: make(map[string][]byte), quota: quota}
}

func (m *MemoryBackend) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

func (m *MemoryBackend) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.quota > 0 {
		used := m.usedLocked()
		if old, exists := m.data[key]; exists {
			used -= entrySize(key, old)
		}
		if used+entrySize(key, value) > m.quota {
			return pkgerrors.New(pkgerrors.CodeStorageQuota, "memory backend quota exceeded")
		}
	}
	stored := make([]byte, len(value))
	copy(stored, value)
	m.data[key] = stored
	return nil
}

func (m *MemoryBackend) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *MemoryBackend) Keys(_ context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.data))
	for key := range m.data {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

func (m *MemoryBackend) usedLocked() int64 {
	var total int64
	for key, value := range m.data {
		total += entrySize(key, value)
	}
	return total
}

func entrySize(key string, value []byte) int64 {
	return int64(len(key) + len(value))
}
