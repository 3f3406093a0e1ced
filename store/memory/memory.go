package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/smallnest/kgqa/store"
)

// MemoryRecordStore keeps records in a map. Records are copied on the way in
// and out so callers cannot mutate stored state.
type MemoryRecordStore struct {
	mu      sync.RWMutex
	records map[string]*store.Record
}

// NewMemoryRecordStore creates an empty in-memory record store
func NewMemoryRecordStore() *MemoryRecordStore {
	return &MemoryRecordStore{records: make(map[string]*store.Record)}
}

func clone(r *store.Record) *store.Record {
	c := *r
	c.Payload = append([]byte(nil), r.Payload...)
	return &c
}

// Save stores a record
func (m *MemoryRecordStore) Save(_ context.Context, record *store.Record) error {
	if record == nil || record.ID == "" {
		return fmt.Errorf("record id is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[record.ID] = clone(record)
	return nil
}

// Load retrieves a record by ID
func (m *MemoryRecordStore) Load(_ context.Context, id string) (*store.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.records[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", store.ErrNotFound, id)
	}
	return clone(r), nil
}

// List returns records newest first
func (m *MemoryRecordStore) List(_ context.Context, opts store.ListOptions) ([]*store.Record, error) {
	m.mu.RLock()
	all := make([]*store.Record, 0, len(m.records))
	for _, r := range m.records {
		all = append(all, clone(r))
	}
	m.mu.RUnlock()
	return store.Sort(all, opts), nil
}

// Delete removes a record
func (m *MemoryRecordStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[id]; !ok {
		return fmt.Errorf("%w: %s", store.ErrNotFound, id)
	}
	delete(m.records, id)
	return nil
}

// Clear removes all records
func (m *MemoryRecordStore) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = make(map[string]*store.Record)
	return nil
}

// Close is a no-op
func (m *MemoryRecordStore) Close() error {
	return nil
}

var _ store.RecordStore = (*MemoryRecordStore)(nil)
