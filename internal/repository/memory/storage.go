package memory

import (
	"context"
	"sync"

	"github.com/tastybites/storefront/internal/repository"
	apperrors "github.com/tastybites/storefront/pkg/errors"
)

// LocalStorage is an in-process repository.LocalStorage. Contents are lost
// on restart.
type LocalStorage struct {
	mu   sync.RWMutex
	data map[string][]byte
}

var _ repository.LocalStorage = (*LocalStorage)(nil)

// NewLocalStorage creates an empty in-memory local storage.
func NewLocalStorage() *LocalStorage {
	return &LocalStorage{data: make(map[string][]byte)}
}

func (s *LocalStorage) Read(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	if !ok {
		return nil, apperrors.NotFound("local storage key", key)
	}
	return append([]byte(nil), v...), nil
}

func (s *LocalStorage) Write(_ context.Context, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = append([]byte(nil), data...)
	return nil
}

func (s *LocalStorage) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

// Has reports whether key is present.
func (s *LocalStorage) Has(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.data[key]
	return ok
}
