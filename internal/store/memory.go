package store

import (
	"context"
	"sync"
)

// MemoryStore keeps snapshots in process memory
type MemoryStore struct {
	mu        sync.RWMutex
	snapshots map[string]*Snapshot
	closed    bool
}

// NewMemoryStore creates an empty in-memory backend
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snapshots: make(map[string]*Snapshot)}
}

// Put replaces the snapshot under key
func (m *MemoryStore) Put(ctx context.Context, key string, snap *Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.snapshots[key] = snap.clone()
	return nil
}

// Merge updates the listed properties under key
func (m *MemoryStore) Merge(ctx context.Context, key string, snap *Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	cur, ok := m.snapshots[key]
	if !ok {
		m.snapshots[key] = snap.clone()
		return nil
	}
	cur.Type = snap.Type
	for k, v := range snap.Properties {
		cur.Properties[k] = v
	}
	return nil
}

// Get returns a copy of the snapshot under key
func (m *MemoryStore) Get(ctx context.Context, key string) (*Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	snap, ok := m.snapshots[key]
	if !ok {
		return nil, ErrNotFound
	}
	return snap.clone(), nil
}

// Delete removes the snapshot under key
func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	delete(m.snapshots, key)
	return nil
}

// Keys returns the stored keys
func (m *MemoryStore) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.snapshots))
	for k := range m.snapshots {
		keys = append(keys, k)
	}
	return keys
}

// Close drops every snapshot
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.snapshots = nil
	return nil
}
