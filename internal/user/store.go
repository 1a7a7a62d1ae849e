package user

import (
	"context"
	"errors"
	"sync"
)

var (
	ErrNotFound       = errors.New("user not found")
	ErrDuplicateEmail = errors.New("email already exists")
)

// Store persists user records. Save assigns an ID when the record has none.
// Implementations enforce email uniqueness and report it as ErrDuplicateEmail.
type Store interface {
	FindByID(ctx context.Context, id int64) (User, error)
	FindByEmail(ctx context.Context, email string) (User, error)
	Save(ctx context.Context, u User) (User, error)
	Delete(ctx context.Context, id int64) error
}

type InMemoryStore struct {
	mu      sync.RWMutex
	nextID  int64
	byID    map[int64]User
	byEmail map[string]int64
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		byID:    make(map[int64]User),
		byEmail: make(map[string]int64),
	}
}

func (s *InMemoryStore) FindByID(ctx context.Context, id int64) (User, error) {
	_ = ctx

	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.byID[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (s *InMemoryStore) FindByEmail(ctx context.Context, email string) (User, error) {
	_ = ctx

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[email]
	if !ok {
		return User{}, ErrNotFound
	}
	return s.byID[id], nil
}

func (s *InMemoryStore) Save(ctx context.Context, u User) (User, error) {
	_ = ctx

	s.mu.Lock()
	defer s.mu.Unlock()

	if owner, ok := s.byEmail[u.Email]; ok && owner != u.ID {
		return User{}, ErrDuplicateEmail
	}

	if u.ID == 0 {
		s.nextID++
		u.ID = s.nextID
	} else {
		prev, ok := s.byID[u.ID]
		if !ok {
			return User{}, ErrNotFound
		}
		delete(s.byEmail, prev.Email)
	}

	s.byID[u.ID] = u
	s.byEmail[u.Email] = u.ID
	return u, nil
}

func (s *InMemoryStore) Delete(ctx context.Context, id int64) error {
	_ = ctx

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	delete(s.byID, id)
	delete(s.byEmail, u.Email)
	return nil
}

func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}
