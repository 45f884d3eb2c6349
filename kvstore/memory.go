package kvstore

import (
	"context"
	"sync"
)

// Memory is an in-process Store backed by maps. Nothing survives process
// exit; it exists for tests and ephemeral profiles.
type Memory struct {
	mu      sync.RWMutex
	buckets map[string]map[string][]byte
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{buckets: make(map[string]map[string][]byte)}
}

// Get returns the record stored under bucket/id, or ErrNotFound.
func (m *Memory) Get(ctx context.Context, bucket, id string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	value, ok := m.buckets[bucket][id]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

// Set stores value under bucket/id, replacing any existing record.
func (m *Memory) Set(ctx context.Context, bucket, id string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	records, ok := m.buckets[bucket]
	if !ok {
		records = make(map[string][]byte)
		m.buckets[bucket] = records
	}
	stored := make([]byte, len(value))
	copy(stored, value)
	records[id] = stored
	return nil
}

// Delete removes the record under bucket/id if present.
func (m *Memory) Delete(ctx context.Context, bucket, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.buckets[bucket], id)
	return nil
}

// List returns a copy of every record in bucket, keyed by id.
func (m *Memory) List(ctx context.Context, bucket string) (map[string][]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string][]byte, len(m.buckets[bucket]))
	for id, value := range m.buckets[bucket] {
		cp := make([]byte, len(value))
		copy(cp, value)
		out[id] = cp
	}
	return out, nil
}

// Apply performs every write under a single lock acquisition.
func (m *Memory) Apply(ctx context.Context, writes []Write) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, w := range writes {
		if w.Value == nil {
			delete(m.buckets[w.Bucket], w.ID)
			continue
		}
		records, ok := m.buckets[w.Bucket]
		if !ok {
			records = make(map[string][]byte)
			m.buckets[w.Bucket] = records
		}
		stored := make([]byte, len(w.Value))
		copy(stored, w.Value)
		records[w.ID] = stored
	}
	return nil
}

// Close is a no-op for the in-memory store.
func (m *Memory) Close() error {
	return nil
}
