package accounts

import (
	"context"
	"strings"
	"sync"
	"time"
)

// InMemoryStore keeps accounts in process memory for local use and tests.
type InMemoryStore struct {
	mu      sync.RWMutex
	users   map[string]User
	byEmail map[string]string
	tokens  map[string]Token
	byUser  map[string]string
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		users:   make(map[string]User),
		byEmail: make(map[string]string),
		tokens:  make(map[string]Token),
		byUser:  make(map[string]string),
	}
}

func (s *InMemoryStore) CreateUser(_ context.Context, u User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.ToLower(u.Email)
	if _, ok := s.byEmail[key]; ok {
		return ErrEmailTaken
	}
	s.users[u.ID] = u
	s.byEmail[key] = u.ID
	return nil
}

func (s *InMemoryStore) UserByEmail(_ context.Context, email string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[strings.ToLower(email)]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return s.users[id], nil
}

func (s *InMemoryStore) UserByID(_ context.Context, id string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return u, nil
}

func (s *InMemoryStore) TokenForUser(_ context.Context, userID, newKey string, now time.Time) (Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[userID]; !ok {
		return Token{}, ErrUserNotFound
	}
	if key, ok := s.byUser[userID]; ok {
		return s.tokens[key], nil
	}
	tok := Token{Key: newKey, UserID: userID, CreatedAt: now}
	s.tokens[newKey] = tok
	s.byUser[userID] = newKey
	return tok, nil
}

func (s *InMemoryStore) UserByToken(_ context.Context, key string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tok, ok := s.tokens[key]
	if !ok {
		return User{}, ErrTokenNotFound
	}
	return s.users[tok.UserID], nil
}

func (s *InMemoryStore) DeleteToken(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tok, ok := s.tokens[key]
	if !ok {
		return ErrTokenNotFound
	}
	delete(s.tokens, key)
	delete(s.byUser, tok.UserID)
	return nil
}

func (s *InMemoryStore) Close() error { return nil }
