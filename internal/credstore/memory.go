package credstore

import (
	"context"
	"maps"
	"sync"
)

// MemoryStore - хранилище в памяти процесса. Безопасно для конкурентного использования.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]string)}
}

func (m *MemoryStore) Get(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.data[key]
	if !ok {
		return "", ErrNotFound
	}

	return v, nil
}

func (m *MemoryStore) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	m.data[key] = value
	m.mu.Unlock()

	return nil
}

func (m *MemoryStore) SetMany(_ context.Context, kv map[string]string) error {
	m.mu.Lock()
	maps.Copy(m.data, kv)
	m.mu.Unlock()

	return nil
}

func (m *MemoryStore) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	for _, k := range keys {
		delete(m.data, k)
	}
	m.mu.Unlock()

	return nil
}

func (m *MemoryStore) Close() error { return nil }

var (
	_ Store       = (*MemoryStore)(nil)
	_ BatchSetter = (*MemoryStore)(nil)
)
