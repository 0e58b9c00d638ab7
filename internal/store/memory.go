package store

import (
	"context"
	"fmt"
	"sync"
)

type memEntry struct {
	value   string
	version int64
}

// MemoryKV is an in-process KV. Contents are lost on exit.
type MemoryKV struct {
	mu   sync.RWMutex
	data map[string]memEntry
}

var _ KV = (*MemoryKV)(nil)

func NewMemoryKV() *MemoryKV {
	return &MemoryKV{data: make(map[string]memEntry)}
}

func (m *MemoryKV) Get(ctx context.Context, key string) (string, bool, error) {
	v, _, ok, err := m.GetVersioned(ctx, key)
	return v, ok, err
}

func (m *MemoryKV) Put(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = memEntry{value: value, version: m.data[key].version + 1}
	return nil
}

func (m *MemoryKV) GetVersioned(_ context.Context, key string) (string, int64, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.data[key]
	return e.value, e.version, ok, nil
}

func (m *MemoryKV) PutVersioned(_ context.Context, key, value string, expected int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur := m.data[key].version; cur != expected {
		return 0, fmt.Errorf("put %q at version %d: %w", key, expected, ErrVersionConflict)
	}
	m.data[key] = memEntry{value: value, version: expected + 1}
	return expected + 1, nil
}

func (m *MemoryKV) Ping(context.Context) error { return nil }

func (m *MemoryKV) Close() error { return nil }
