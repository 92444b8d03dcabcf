// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/xybot/xyweb/internal/auth"
	"github.com/xybot/xyweb/internal/auth/memory"
)

// testHasher keeps tests fast; the production iteration count is covered in
// hasher_test.go.
var testHasher = auth.NewPBKDF2HasherWithIterations(1000)

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	store     *memory.Store
	clock     *fakeClock
	authority *auth.Authority
}

func newTestEnv(t *testing.T, opts ...auth.Option) *testEnv {
	t.Helper()
	clock := newFakeClock()
	// The store keeps wall-clock time so that advancing the authority's
	// clock exercises logical expiry while the record is still present.
	store := memory.New()
	opts = append([]auth.Option{auth.WithClock(clock.Now)}, opts...)

	a, err := auth.NewAuthority(context.Background(),
		store.Users(), store.Tokens(), store.Secrets(), testHasher, opts...)
	require.NoError(t, err)

	return &testEnv{store: store, clock: clock, authority: a}
}

func (e *testEnv) login(t *testing.T, username, password string) *auth.Session {
	t.Helper()
	session, err := e.authority.Authenticate(context.Background(), username, password)
	require.NoError(t, err)
	return session
}

// failingTokens wraps a token repository and fails selected operations.
type failingTokens struct {
	auth.TokenRepository
	listErr   error
	deleteErr error
}

func (f *failingTokens) List(ctx context.Context) (map[string]*auth.Token, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.TokenRepository.List(ctx)
}

func (f *failingTokens) Delete(ctx context.Context, key string) (bool, error) {
	if f.deleteErr != nil {
		return false, f.deleteErr
	}
	return f.TokenRepository.Delete(ctx, key)
}

// failingUsers wraps a user repository and fails lookups.
type failingUsers struct {
	auth.UserRepository
	getErr error
}

func (f *failingUsers) Get(ctx context.Context, username string) (*auth.User, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.UserRepository.Get(ctx, username)
}

// mockMetrics is a mock for auth.Metrics.
type mockMetrics struct {
	mock.Mock
}

func (m *mockMetrics) RecordLogin(outcome string) {
	m.Called(outcome)
}

func (m *mockMetrics) RecordValidation(outcome string) {
	m.Called(outcome)
}

func (m *mockMetrics) RecordTokenIssued() {
	m.Called()
}

func (m *mockMetrics) RecordTokensRevoked(reason string, n int) {
	m.Called(reason, n)
}

func (m *mockMetrics) RecordUserOperation(operation, outcome string) {
	m.Called(operation, outcome)
}
