package storage

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	"max.ks1230/beancount-bot/internal/entity/user"
)

type state struct {
	AuthUsers []int64 `json:"auth_users"`
}

// FileStorage keeps authorized user ids in a JSON file, rewritten on every change.
type FileStorage struct {
	path string

	mu    sync.RWMutex
	users map[int64]struct{}
	order []int64
}

func NewFileStorage(path string) (*FileStorage, error) {
	s := &FileStorage{
		path:  path,
		users: make(map[int64]struct{}),
	}

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "read state file")
	}

	var st state
	if err = json.Unmarshal(raw, &st); err != nil {
		return nil, errors.Wrap(err, "parse state file")
	}
	for _, id := range st.AuthUsers {
		if _, ok := s.users[id]; !ok {
			s.users[id] = struct{}{}
			s.order = append(s.order, id)
		}
	}
	return s, nil
}

func (s *FileStorage) IsAuthorized(_ context.Context, id int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.users[id]
	return ok, nil
}

func (s *FileStorage) Authorize(_ context.Context, rec user.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[rec.ID]; ok {
		return nil
	}
	order := append(append([]int64{}, s.order...), rec.ID)
	if err := s.write(order); err != nil {
		return err
	}
	s.users[rec.ID] = struct{}{}
	s.order = order
	return nil
}

func (s *FileStorage) write(ids []int64) error {
	raw, err := json.Marshal(state{AuthUsers: ids})
	if err != nil {
		return errors.Wrap(err, "write state file")
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".state-*")
	if err != nil {
		return errors.Wrap(err, "write state file")
	}
	defer os.Remove(tmp.Name())

	if _, err = tmp.Write(raw); err != nil {
		_ = tmp.Close()
		return errors.Wrap(err, "write state file")
	}
	if err = tmp.Close(); err != nil {
		return errors.Wrap(err, "write state file")
	}
	return errors.Wrap(os.Rename(tmp.Name(), s.path), "write state file")
}
