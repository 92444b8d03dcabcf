// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xybot/xyweb/internal/config"
	"github.com/xybot/xyweb/pkg/errutil"
)

func healthServer(t *testing.T, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestStatus_Ready(t *testing.T) {
	isolateConfig(t)
	srv := healthServer(t, http.StatusOK)

	res := execute(t, context.Background(), Deps{}, "status", "--url", srv.URL+"/healthz")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "ready ("+srv.URL+"/healthz)")
}

func TestStatus_NotReady(t *testing.T) {
	isolateConfig(t)
	srv := healthServer(t, http.StatusServiceUnavailable)

	res := execute(t, context.Background(), Deps{}, "status", "--url", srv.URL)
	errutil.AssertErrorCode(t, res.err, "SERVER_NOT_READY")
	assert.Contains(t, res.stdout, "HTTP 503")
}

func TestStatus_JSON(t *testing.T) {
	isolateConfig(t)
	srv := healthServer(t, http.StatusServiceUnavailable)

	res := execute(t, context.Background(), Deps{}, "status", "--json", "--url", srv.URL)
	require.Error(t, res.err)

	var got ServerStatus
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &got))
	assert.Equal(t, ServerStatus{URL: srv.URL, Status: http.StatusServiceUnavailable}, got)
}

func TestStatus_Unreachable(t *testing.T) {
	isolateConfig(t)
	srv := healthServer(t, http.StatusOK)
	url := srv.URL
	srv.Close()

	res := execute(t, context.Background(), Deps{}, "status", "--url", url)
	errutil.AssertErrorCode(t, res.err, "SERVER_NOT_READY")
	assert.Contains(t, res.stdout, "unreachable")
}

func TestStatus_UsesConfiguredAddress(t *testing.T) {
	isolateConfig(t)
	srv := healthServer(t, http.StatusOK)
	t.Setenv("XYWEB_HTTP__ADDR", srv.Listener.Addr().String())

	res := execute(t, context.Background(), Deps{}, "status")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "/healthz")
}

func TestHealthURL(t *testing.T) {
	tests := []struct {
		name    string
		http    string
		metrics string
		want    string
	}{
		{"web listener", "0.0.0.0:8080", "", "http://127.0.0.1:8080/healthz"},
		{"metrics listener preferred", "0.0.0.0:8080", ":9100", "http://127.0.0.1:9100/healthz/readiness"},
		{"ipv6 wildcard", "[::]:8080", "", "http://127.0.0.1:8080/healthz"},
		{"explicit host", "10.0.0.5:8080", "", "http://10.0.0.5:8080/healthz"},
		{"unparseable", "localhost", "", "http://localhost/healthz"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{MetricsAddr: tt.metrics, HTTP: config.HTTPConfig{Addr: tt.http}}
			assert.Equal(t, tt.want, healthURL(cfg))
		})
	}
}
