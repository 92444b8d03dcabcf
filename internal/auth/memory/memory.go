// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package memory implements the auth repositories in process memory.
//
// Records are held in their serialized form so that the memory backend
// decodes exactly like the shared stores, including skipping unreadable
// entries. Data does not survive a restart and is not shared between
// processes.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/samber/oops"

	"github.com/xybot/xyweb/internal/auth"
)

type tokenEntry struct {
	data    []byte
	purgeAt time.Time
}

// Store holds users, tokens and the installation secret.
type Store struct {
	mu     sync.Mutex
	now    func() time.Time
	users  map[string][]byte
	tokens map[string]tokenEntry
	secret string
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces the time source used for physical token expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		now:    time.Now,
		users:  make(map[string][]byte),
		tokens: make(map[string]tokenEntry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Users returns the user repository view of the store.
func (s *Store) Users() *UserRepository { return &UserRepository{s: s} }

// Tokens returns the token repository view of the store.
func (s *Store) Tokens() *TokenRepository { return &TokenRepository{s: s} }

// Secrets returns the secret repository view of the store.
func (s *Store) Secrets() *SecretRepository { return &SecretRepository{s: s} }

// PutRawUser stores data under username without validation. It exists to
// seed fixtures, including unreadable ones.
func (s *Store) PutRawUser(username string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[username] = data
}

// PutRawToken stores data under key without validation or expiry.
func (s *Store) PutRawToken(key string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[key] = tokenEntry{data: data}
}

// TokenCount returns the number of physically present token records.
func (s *Store) TokenCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purgeLocked()
	return len(s.tokens)
}

func (s *Store) purgeLocked() {
	now := s.now()
	for key, e := range s.tokens {
		if !e.purgeAt.IsZero() && !now.Before(e.purgeAt) {
			delete(s.tokens, key)
		}
	}
}

// UserRepository implements auth.UserRepository.
type UserRepository struct {
	s *Store
}

// Get retrieves a user by name.
func (r *UserRepository) Get(_ context.Context, username string) (*auth.User, error) {
	r.s.mu.Lock()
	data, ok := r.s.users[username]
	r.s.mu.Unlock()
	if !ok {
		return nil, oops.With("username", username).Wrap(auth.ErrNotFound)
	}
	u, err := auth.DecodeUser(username, data)
	if err != nil {
		return nil, oops.With("username", username).Wrapf(auth.ErrNotFound, "unreadable user record: %v", err)
	}
	return u, nil
}

// Put writes the user, replacing any existing record.
func (r *UserRepository) Put(_ context.Context, user *auth.User) error {
	data, err := auth.EncodeUser(user)
	if err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.users[user.Username] = data
	return nil
}

// Create writes the user only if the name is free.
func (r *UserRepository) Create(_ context.Context, user *auth.User) error {
	data, err := auth.EncodeUser(user)
	if err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, exists := r.s.users[user.Username]; exists {
		return oops.With("username", user.Username).Wrap(auth.ErrAlreadyExists)
	}
	r.s.users[user.Username] = data
	return nil
}

// Delete removes a user, consulting guard under the store lock.
func (r *UserRepository) Delete(_ context.Context, username string, guard auth.DeleteGuard) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	data, ok := r.s.users[username]
	if !ok {
		return oops.With("username", username).Wrap(auth.ErrNotFound)
	}
	if guard != nil {
		target, err := auth.DecodeUser(username, data)
		if err != nil {
			return oops.With("username", username).Wrapf(auth.ErrNotFound, "unreadable user record: %v", err)
		}
		if err := guard(target, r.listLocked()); err != nil {
			return err
		}
	}
	delete(r.s.users, username)
	return nil
}

// List returns every readable user.
func (r *UserRepository) List(_ context.Context) (map[string]*auth.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.listLocked(), nil
}

func (r *UserRepository) listLocked() map[string]*auth.User {
	out := make(map[string]*auth.User, len(r.s.users))
	for name, data := range r.s.users {
		u, err := auth.DecodeUser(name, data)
		if err != nil {
			continue
		}
		out[name] = u
	}
	return out
}

// Exists reports whether any record is stored under username.
func (r *UserRepository) Exists(_ context.Context, username string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	_, ok := r.s.users[username]
	return ok, nil
}

// Ping always succeeds.
func (r *UserRepository) Ping(context.Context) error {
	return nil
}

// TokenRepository implements auth.TokenRepository.
type TokenRepository struct {
	s *Store
}

// Get retrieves a token record.
func (r *TokenRepository) Get(_ context.Context, key string) (*auth.Token, error) {
	r.s.mu.Lock()
	r.s.purgeLocked()
	e, ok := r.s.tokens[key]
	r.s.mu.Unlock()
	if !ok {
		return nil, auth.ErrNotFound
	}
	t, err := auth.DecodeToken(e.data)
	if err != nil {
		return nil, oops.Wrapf(auth.ErrNotFound, "unreadable token record: %v", err)
	}
	return t, nil
}

// Put stores a token record that disappears after ttl.
func (r *TokenRepository) Put(_ context.Context, key string, token *auth.Token, ttl time.Duration) error {
	data, err := auth.EncodeToken(token)
	if err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.tokens[key] = tokenEntry{data: data, purgeAt: r.s.now().Add(ttl)}
	return nil
}

// Delete removes a token record.
func (r *TokenRepository) Delete(_ context.Context, key string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.purgeLocked()
	_, ok := r.s.tokens[key]
	delete(r.s.tokens, key)
	return ok, nil
}

// List returns every readable token record.
func (r *TokenRepository) List(_ context.Context) (map[string]*auth.Token, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.purgeLocked()
	out := make(map[string]*auth.Token, len(r.s.tokens))
	for key, e := range r.s.tokens {
		t, err := auth.DecodeToken(e.data)
		if err != nil {
			continue
		}
		out[key] = t
	}
	return out, nil
}

// SecretRepository implements auth.SecretRepository.
type SecretRepository struct {
	s *Store
}

// GetSecret returns the stored secret.
func (r *SecretRepository) GetSecret(context.Context) (string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.secret == "" {
		return "", auth.ErrNotFound
	}
	return r.s.secret, nil
}

// PutSecretIfAbsent stores secret unless one exists.
func (r *SecretRepository) PutSecretIfAbsent(_ context.Context, secret string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.secret != "" {
		return false, nil
	}
	r.s.secret = secret
	return true, nil
}

var (
	_ auth.UserRepository   = (*UserRepository)(nil)
	_ auth.TokenRepository  = (*TokenRepository)(nil)
	_ auth.SecretRepository = (*SecretRepository)(nil)
)
