// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xybot/xyweb/internal/config"
	"github.com/xybot/xyweb/pkg/errutil"
)

// defaultConfig loads the built-in defaults with no file or environment.
func defaultConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	cfg, err := config.Load(config.LoadOptions{DotEnv: filepath.Join(t.TempDir(), ".env")})
	require.NoError(t, err)
	return cfg
}

func TestOpenBackend_Memory(t *testing.T) {
	var logs bytes.Buffer
	cfg := defaultConfig(t)
	cfg.Store.Backend = config.BackendMemory

	backend, err := openBackend(context.Background(), cfg, slog.New(slog.NewTextHandler(&logs, nil)))
	require.NoError(t, err)
	defer backend.Close()

	assert.Nil(t, backend.Collector)
	assert.Nil(t, backend.Sweeper)
	assert.Contains(t, logs.String(), "memory store")

	a, err := backend.NewAuthority(context.Background(), testHasher)
	require.NoError(t, err)
	users, err := a.ListUsers(context.Background())
	require.NoError(t, err)
	assert.Len(t, users, 1)
}

func TestOpenBackend_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := defaultConfig(t)
	cfg.Store.Redis.Addr = mr.Addr()
	cfg.Store.KeyPrefix = "test:web"

	backend, err := openBackend(context.Background(), cfg, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	defer backend.Close()
	assert.NotNil(t, backend.Collector)

	_, err = backend.NewAuthority(context.Background(), testHasher)
	require.NoError(t, err)
	for _, key := range mr.Keys() {
		assert.True(t, strings.HasPrefix(key, "test:web:"), key)
	}
}

func TestOpenBackend_RedisUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := defaultConfig(t)
	cfg.Store.Redis.Addr = addr
	cfg.Store.Redis.DialTimeout = 200 * time.Millisecond

	_, err := openBackend(context.Background(), cfg, slog.New(slog.DiscardHandler))
	errutil.AssertErrorCode(t, err, "STORE_CONNECT_FAILED")
}

func TestOpenBackend_Unsupported(t *testing.T) {
	cfg := defaultConfig(t)
	cfg.Store.Backend = "etcd"

	_, err := openBackend(context.Background(), cfg, slog.New(slog.DiscardHandler))
	errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
	errutil.AssertErrorContext(t, err, "value", "etcd")
}

func TestReadPassword_LineInput(t *testing.T) {
	cmd := &cobra.Command{}
	var prompts bytes.Buffer
	cmd.SetIn(strings.NewReader("first\r\nsecond"))
	cmd.SetErr(&prompts)

	got, err := readPassword(cmd, "Password: ")
	require.NoError(t, err)
	assert.Equal(t, "first", got)

	got, err = readPassword(cmd, "Confirm password: ")
	require.NoError(t, err)
	assert.Equal(t, "second", got)

	_, err = readPassword(cmd, "Again: ")
	errutil.AssertErrorCode(t, err, "PASSWORD_READ_FAILED")
	assert.Equal(t, "Password: Confirm password: Again: ", prompts.String())
}

func TestPromptNewPassword(t *testing.T) {
	tests := []struct {
		name    string
		answers []string
		want    string
		code    string
	}{
		{"match", []string{"s3cret", "s3cret"}, "s3cret", ""},
		{"mismatch", []string{"s3cret", "other"}, "", "PASSWORD_MISMATCH"},
		{"empty", []string{""}, "", "PASSWORD_EMPTY"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := Deps{ReadPassword: scriptedPasswords(tt.answers...)}
			got, err := promptNewPassword(&cobra.Command{}, deps, "Password: ")
			if tt.code != "" {
				errutil.AssertErrorCode(t, err, tt.code)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
