package cache

import (
	"context"
	"fmt"
	"sync"
)

// MemoryOpener opens in-process stores. It backs the "memory" store
// backend and the unit tests.
type MemoryOpener struct {
	mu     sync.Mutex
	stores map[string]*MemoryStore

	// OpenErr, when set, is returned by every Open call.
	OpenErr error
}

// NewMemoryOpener creates an opener with no stores.
func NewMemoryOpener() *MemoryOpener {
	return &MemoryOpener{stores: make(map[string]*MemoryStore)}
}

// Open returns the store for name, creating it on first use.
func (o *MemoryOpener) Open(_ context.Context, name string) (Store, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.OpenErr != nil {
		CacheErrors.WithLabelValues(name, "open").Inc()
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, o.OpenErr)
	}

	if s, ok := o.stores[name]; ok {
		return s, nil
	}
	s := NewMemoryStore(name)
	o.stores[name] = s
	return s, nil
}

// Ping always succeeds unless OpenErr is set.
func (o *MemoryOpener) Ping(context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.OpenErr
}

// MemoryStore is an ordered in-memory Store.
type MemoryStore struct {
	name string

	mu      sync.Mutex
	order   []string
	records map[string]*Record
}

// NewMemoryStore creates an empty store.
func NewMemoryStore(name string) *MemoryStore {
	return &MemoryStore{
		name:    name,
		records: make(map[string]*Record),
	}
}

// Name returns the store name.
func (s *MemoryStore) Name() string {
	return s.name
}

// Get retrieves a record by key.
func (s *MemoryStore) Get(_ context.Context, key string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key]
	if !ok {
		CacheMisses.WithLabelValues(s.name).Inc()
		return nil, ErrCacheMiss
	}
	CacheHits.WithLabelValues(s.name).Inc()

	cp := *rec
	cp.Headers = rec.Headers.Clone()
	return &cp, nil
}

// Put stores a record and moves key to the newest position.
func (s *MemoryStore) Put(_ context.Context, key string, rec *Record) error {
	if rec == nil {
		return fmt.Errorf("cache record cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[key]; ok {
		s.removeOrder(key)
	}
	cp := *rec
	cp.Headers = rec.Headers.Clone()
	s.records[key] = &cp
	s.order = append(s.order, key)

	StoredBytes.WithLabelValues(s.name).Add(float64(len(rec.Data)))
	return nil
}

// Delete removes a record. Deleting a missing key returns false.
func (s *MemoryStore) Delete(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[key]; !ok {
		return false, nil
	}
	delete(s.records, key)
	s.removeOrder(key)
	return true, nil
}

// Keys lists all keys, oldest first.
func (s *MemoryStore) Keys(context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, len(s.order))
	copy(keys, s.order)
	return keys, nil
}

// Len returns the number of stored records.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func (s *MemoryStore) removeOrder(key string) {
	for i, k := range s.order {
		if k == key {
			s.order = append(s.order[:i], s.order[i+1:]...)
			return
		}
	}
}
