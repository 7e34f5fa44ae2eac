// Package jsonfile stores users and pictures as flat JSON documents.
//
// The user file is always read and rewritten as a whole. A mutex serializes
// each single read-modify-write of the file inside one process, but nothing
// spans a service-level read → change → Upsert sequence: two requests for the
// same user can still overwrite each other. Use the sqlite store when that
// matters.
package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/coko7/advent-of-time/internal/apperror"
	"github.com/coko7/advent-of-time/internal/model"
	"github.com/coko7/advent-of-time/internal/repository"
)

var _ repository.UserRepository = (*UserStore)(nil)

// UserStore keeps every user in one JSON array.
type UserStore struct {
	path string
	mu   sync.Mutex
}

// NewUserStore opens the user file at path, creating an empty one (and its
// directory) when it does not exist yet.
func NewUserStore(path string) (*UserStore, error) {
	s := &UserStore{path: path}

	_, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if err := writeFileAtomic(path, []byte("[]\n")); err != nil {
			return nil, fmt.Errorf("jsonfile: creating %s: %w", path, err)
		}
	case err != nil:
		return nil, fmt.Errorf("jsonfile: checking %s: %w", path, err)
	}
	return s, nil
}

func (s *UserStore) GetByID(_ context.Context, id string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := s.load()
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, apperror.NotFound("user", id)
}

func (s *UserStore) GetByAccessToken(_ context.Context, accessToken string) (*model.User, error) {
	if accessToken == "" {
		return nil, apperror.NotFound("session", "(empty)")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := s.load()
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		if u.AccessToken == accessToken {
			return u, nil
		}
	}
	return nil, apperror.NotFound("session", "(bearer)")
}

// Upsert replaces the user with the same ID, or appends it. The version
// field is ignored; last writer wins.
func (s *UserStore) Upsert(_ context.Context, user *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := s.load()
	if err != nil {
		return err
	}

	replaced := false
	for i, u := range users {
		if u.ID == user.ID {
			users[i] = user
			replaced = true
			break
		}
	}
	if !replaced {
		users = append(users, user)
	}

	return s.save(users)
}

// List returns every user ordered by ID.
func (s *UserStore) List(_ context.Context) ([]*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := s.load()
	if err != nil {
		return nil, err
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

func (s *UserStore) load() ([]*model.User, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, apperror.Store("reading users", fmt.Errorf("jsonfile: %w", err))
	}

	var users []*model.User
	if err := json.Unmarshal(data, &users); err != nil {
		return nil, apperror.Store("reading users", fmt.Errorf("jsonfile: decoding %s: %w", s.path, err))
	}
	for _, u := range users {
		if u.Guesses == nil {
			u.Guesses = make(map[model.Day]model.GuessEntry)
		}
	}
	return users, nil
}

func (s *UserStore) save(users []*model.User) error {
	data, err := json.MarshalIndent(users, "", "  ")
	if err != nil {
		return apperror.Store("writing users", fmt.Errorf("jsonfile: encoding users: %w", err))
	}
	if err := writeFileAtomic(s.path, append(data, '\n')); err != nil {
		return apperror.Store("writing users", fmt.Errorf("jsonfile: %w", err))
	}
	return nil
}

// writeFileAtomic writes data next to path and renames it into place, so a
// crash mid-write leaves the previous file intact.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".users-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("fsync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o600); err != nil {
		return fmt.Errorf("chmod temp: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}
