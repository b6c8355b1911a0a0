package secrets

import (
	"context"
	"sync"
)

// InMemoryStore is a map-backed Store for tests and local development.
type InMemoryStore struct {
	mu     sync.Mutex
	values map[string]string

	// Error injection
	GetErr    error
	SetErr    error
	DeleteErr error

	// Call tracking
	GetCalled    int
	SetCalled    int
	DeleteCalled int
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{values: make(map[string]string)}
}

func (s *InMemoryStore) Get(ctx context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.GetCalled++
	if s.GetErr != nil {
		return "", false, s.GetErr
	}
	value, ok := s.values[key]
	return value, ok, nil
}

func (s *InMemoryStore) Set(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SetCalled++
	if s.SetErr != nil {
		return s.SetErr
	}
	s.values[key] = value
	return nil
}

func (s *InMemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.DeleteCalled++
	if s.DeleteErr != nil {
		return s.DeleteErr
	}
	delete(s.values, key)
	return nil
}

// Len reports how many secrets are held, for test assertions.
func (s *InMemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.values)
}

var _ Store = (*InMemoryStore)(nil)
