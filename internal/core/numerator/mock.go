package numerator

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory CounterStore.
// Use in unit tests to avoid filesystem or database dependencies.
type MemoryStore struct {
	mu     sync.Mutex
	values map[Class]int

	// Err, when set, is returned by every operation.
	Err error
}

// NewMemoryStore creates a store with optional initial values.
func NewMemoryStore(initial map[Class]int) *MemoryStore {
	values := make(map[Class]int, len(initial))
	for k, v := range initial {
		values[k] = v
	}
	return &MemoryStore{values: values}
}

func (m *MemoryStore) current(class Class) int {
	v := m.values[class]
	if v < 1 {
		v = 1
		m.values[class] = v
	}
	return v
}

// Peek implements CounterStore.
func (m *MemoryStore) Peek(_ context.Context, class Class) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return 0, m.Err
	}
	return m.current(class), nil
}

// Advance implements CounterStore.
func (m *MemoryStore) Advance(_ context.Context, class Class) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return 0, m.Err
	}
	n := m.current(class)
	m.values[class] = n + 1
	return n, nil
}

// ForceTo implements CounterStore.
func (m *MemoryStore) ForceTo(_ context.Context, class Class, candidateNext int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return 0, m.Err
	}
	n := m.current(class)
	if candidateNext > n {
		m.values[class] = candidateNext
		n = candidateNext
	}
	return n, nil
}

// Ensure compile-time interface compliance.
var _ CounterStore = (*MemoryStore)(nil)
