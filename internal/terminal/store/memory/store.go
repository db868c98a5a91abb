// Package memory provides an in-memory Store used by tests and the
// --store=memory development mode. Values round-trip through JSON so the
// semantics match the durable implementation.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/tapcard/terminal/internal/terminal/store"
)

type Store struct {
	mu   sync.Mutex
	data map[string][]byte
}

func New() *Store {
	return &Store{data: make(map[string][]byte)}
}

func (s *Store) Save(_ context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("%w: marshal %q: %v", store.ErrStorage, key, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = raw
	return nil
}

func (s *Store) Load(_ context.Context, key string, out any) (bool, error) {
	s.mu.Lock()
	raw, ok := s.data[key]
	s.mu.Unlock()
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("%w: unmarshal %q: %v", store.ErrStorage, key, err)
	}
	return true, nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

func (s *Store) Close() error { return nil }
