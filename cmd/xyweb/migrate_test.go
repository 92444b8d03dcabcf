// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xybot/xyweb/internal/store"
	"github.com/xybot/xyweb/pkg/errutil"
)

type fakeMigrator struct {
	calls   []string
	status  store.MigrationStatus
	applied []uint
	err     error
	closed  bool
}

func (m *fakeMigrator) record(call string) error {
	m.calls = append(m.calls, call)
	return m.err
}

func (m *fakeMigrator) Up() error   { return m.record("up") }
func (m *fakeMigrator) Down() error { return m.record("down") }

func (m *fakeMigrator) Steps(n int) error {
	if n > 0 {
		return m.record("steps+")
	}
	return m.record("steps-")
}

func (m *fakeMigrator) Force(version int) error {
	m.status.Version = uint(version) //nolint:gosec // test input is non-negative
	m.status.Dirty = false
	return m.record("force")
}

func (m *fakeMigrator) Status() (*store.MigrationStatus, error) {
	s := m.status
	return &s, nil
}

func (m *fakeMigrator) AppliedMigrations() ([]uint, error) { return m.applied, nil }

func (m *fakeMigrator) Close() error {
	m.closed = true
	return nil
}

func migratorDeps(t *testing.T, m *fakeMigrator) Deps {
	t.Helper()
	isolateConfig(t)
	t.Setenv("XYWEB_STORE__BACKEND", "postgres")
	t.Setenv("XYWEB_STORE__POSTGRES__URL", "postgres://xyweb:secret@db/xyweb")
	return Deps{NewMigrator: func(url string) (Migrator, error) {
		assert.Equal(t, "postgres://xyweb:secret@db/xyweb", url)
		return m, nil
	}}
}

func TestMigrate_Up(t *testing.T) {
	m := &fakeMigrator{
		status:  store.MigrationStatus{Version: 2, Name: "token_expiry_index"},
		applied: []uint{1, 2},
	}
	deps := migratorDeps(t, m)

	res := execute(t, context.Background(), deps, "migrate", "up")
	require.NoError(t, res.err)
	assert.Equal(t, []string{"up"}, m.calls)
	assert.True(t, m.closed)
	assert.Contains(t, res.stdout, "Schema version: 2 (token_expiry_index)")
	assert.Contains(t, res.stdout, "Applied migrations: [1 2]")
	assert.Contains(t, res.stdout, "No pending migrations")
}

func TestMigrate_VersionShowsPendingAndDirty(t *testing.T) {
	m := &fakeMigrator{status: store.MigrationStatus{Version: 1, Name: "init", Dirty: true, Pending: []uint{2}}, applied: []uint{1}}
	deps := migratorDeps(t, m)

	res := execute(t, context.Background(), deps, "migrate", "version")
	require.NoError(t, res.err)
	assert.Empty(t, m.calls)
	assert.Contains(t, res.stdout, "WARNING: schema is dirty")
	assert.Contains(t, res.stdout, "Pending migrations: [2]")
}

func TestMigrate_StepsAndForce(t *testing.T) {
	m := &fakeMigrator{status: store.MigrationStatus{Dirty: true}}
	deps := migratorDeps(t, m)

	require.NoError(t, execute(t, context.Background(), deps, "migrate", "steps", "1").err)
	require.NoError(t, execute(t, context.Background(), deps, "migrate", "steps", "--", "-1").err)
	res := execute(t, context.Background(), deps, "migrate", "force", "1")
	require.NoError(t, res.err)

	assert.Equal(t, []string{"steps+", "steps-", "force"}, m.calls)
	assert.Contains(t, res.stdout, "Schema version: 1 (none)")
	assert.NotContains(t, res.stdout, "dirty")
}

func TestMigrate_InvalidArguments(t *testing.T) {
	m := &fakeMigrator{}
	deps := migratorDeps(t, m)

	res := execute(t, context.Background(), deps, "migrate", "steps", "0")
	errutil.AssertErrorCode(t, res.err, "INVALID_STEPS")

	res = execute(t, context.Background(), deps, "migrate", "force", "latest")
	errutil.AssertErrorCode(t, res.err, "INVALID_VERSION")

	assert.Empty(t, m.calls)
}

func TestMigrate_RequiresDatabaseURL(t *testing.T) {
	isolateConfig(t)
	called := false
	deps := Deps{NewMigrator: func(string) (Migrator, error) {
		called = true
		return &fakeMigrator{}, nil
	}}

	res := execute(t, context.Background(), deps, "migrate", "up")
	errutil.AssertErrorCode(t, res.err, "CONFIG_INVALID")
	errutil.AssertErrorContext(t, res.err, "key", "store.postgres.url")
	assert.False(t, called)
}

func TestMigrate_WarnsWhenBackendIsNotPostgres(t *testing.T) {
	m := &fakeMigrator{}
	deps := migratorDeps(t, m)
	t.Setenv("XYWEB_STORE__BACKEND", "memory")

	res := execute(t, context.Background(), deps, "migrate", "up")
	require.NoError(t, res.err)
	assert.Contains(t, res.stderr, "store.backend is not postgres")
}

func TestMigrate_FailureIsReturned(t *testing.T) {
	m := &fakeMigrator{err: errors.New("dirty database version 2")}
	deps := migratorDeps(t, m)

	res := execute(t, context.Background(), deps, "migrate", "down")
	require.Error(t, res.err)
	assert.True(t, m.closed, "migrator is closed after a failure")
}
