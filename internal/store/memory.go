package store

import (
	"context"
	"slices"
	"sync"
)

// Memory is a process-local Store. Values do not survive the process; it
// backs tests and callers that only want handle de-duplication.
type Memory struct {
	mu      sync.RWMutex
	items   map[string][]byte
	corrupt map[string]bool
}

func NewMemory() *Memory {
	return &Memory{
		items:   make(map[string][]byte),
		corrupt: make(map[string]bool),
	}
}

func (m *Memory) Get(ctx context.Context, key string) (Entry, error) {
	if err := ctx.Err(); err != nil {
		return Entry{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.corrupt[key] {
		return Entry{State: Corrupt}, nil
	}
	v, ok := m.items[key]
	if !ok {
		return Entry{State: Absent}, nil
	}
	return Entry{State: Present, Data: slices.Clone(v)}, nil
}

func (m *Memory) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.corrupt, key)
	m.items[key] = slices.Clone(value)
	return nil
}

func (m *Memory) Keys(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.items))
	for k := range m.items {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys, nil
}

// MarkCorrupt makes key read back as Corrupt while keeping it listed.
func (m *Memory) MarkCorrupt(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.items[key]; !ok {
		m.items[key] = nil
	}
	m.corrupt[key] = true
}
