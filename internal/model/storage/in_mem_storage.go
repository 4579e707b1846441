package storage

import (
	"context"
	"sync"

	"max.ks1230/beancount-bot/internal/entity/user"
)

type InMemStorage struct {
	mu      sync.RWMutex
	userMap map[int64]user.Record
}

func NewInMemStorage() *InMemStorage {
	return &InMemStorage{userMap: make(map[int64]user.Record)}
}

func (s *InMemStorage) IsAuthorized(_ context.Context, id int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.userMap[id]
	return ok, nil
}

func (s *InMemStorage) Authorize(_ context.Context, rec user.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userMap[rec.ID] = rec
	return nil
}
