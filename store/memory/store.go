// Package memory provides an in-process store.Store for tests and apps that
// do not need durable usage.
package memory

import (
	"context"
	"sync"

	"github.com/xraph/tally"
	"github.com/xraph/tally/store"
)

// compile-time interface check
var _ store.Store = (*Store)(nil)

// Store keeps usage values in a map, partitioned by namespace.
type Store struct {
	mu     sync.RWMutex
	ns     string
	data   map[string]map[string]int64
	closed bool
	fail   error
}

// New creates an empty memory store.
func New(opts ...store.Option) *Store {
	cfg := store.NewConfig(opts...)
	return &Store{
		ns:   cfg.Namespace,
		data: make(map[string]map[string]int64),
	}
}

// Namespace returns the namespace this store reads and writes.
func (s *Store) Namespace() string { return s.ns }

// ReadAll implements usage.Store.
func (s *Store) ReadAll(_ context.Context) (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.errLocked(); err != nil {
		return nil, err
	}

	out := make(map[string]int64, len(s.data[s.ns]))
	for k, v := range s.data[s.ns] {
		out[k] = v
	}
	return out, nil
}

// Write implements usage.Store.
func (s *Store) Write(_ context.Context, key string, value int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.errLocked(); err != nil {
		return err
	}

	row, ok := s.data[s.ns]
	if !ok {
		row = make(map[string]int64)
		s.data[s.ns] = row
	}
	row[key] = value
	return nil
}

// Get returns the stored value of key.
func (s *Store) Get(key string) (int64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[s.ns][key]
	return v, ok
}

// FailWith makes every subsequent read and write return err. A nil err
// restores normal operation.
func (s *Store) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = err
}

// Migrate implements store.Store.
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping implements store.Store.
func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return tally.ErrStoreClosed
	}
	return nil
}

// Close implements store.Store. Stored values survive until Reopen.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Reopen makes a closed store usable again with its values intact.
func (s *Store) Reopen() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = false
}

func (s *Store) errLocked() error {
	if s.closed {
		return tally.ErrStoreClosed
	}
	return s.fail
}
