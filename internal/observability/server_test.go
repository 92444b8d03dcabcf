// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package observability

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/xybot/xyweb/internal/auth"
	"github.com/xybot/xyweb/pkg/errutil"
)

func startServer(t *testing.T, ready ReadinessChecker, extra ...prometheus.Collector) *Server {
	t.Helper()
	server := NewServer("127.0.0.1:0", ready, extra...)
	_, err := server.Start()
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Stop(ctx)
	})
	return server
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url) //nolint:noctx // test helper
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestServer_Metrics(t *testing.T) {
	server := startServer(t, nil)

	metrics := server.Metrics()
	metrics.RecordLogin(auth.OutcomeSuccess)
	metrics.RecordValidation(auth.OutcomeExpired)
	metrics.RecordTokenIssued()
	metrics.RecordTokensRevoked("user", 3)
	metrics.RecordUserOperation("delete", auth.OutcomeRefused)
	metrics.RecordHTTPRequest("/api/auth/login", http.StatusUnauthorized)

	status, body := get(t, "http://"+server.Addr()+"/metrics")
	assert.Equal(t, http.StatusOK, status)
	for _, want := range []string{
		"go_goroutines",
		"process_",
		`xyweb_auth_logins_total{outcome="success"} 1`,
		`xyweb_auth_token_validations_total{outcome="expired"} 1`,
		"xyweb_auth_tokens_issued_total 1",
		`xyweb_auth_tokens_revoked_total{reason="user"} 3`,
		`xyweb_auth_user_operations_total{operation="delete",outcome="refused"} 1`,
		`xyweb_http_requests_total{route="/api/auth/login",status="401"} 1`,
	} {
		assert.Contains(t, body, want)
	}
}

func TestServer_ExtraCollectors(t *testing.T) {
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{Name: "xyweb_test_pool_size", Help: "test"})
	gauge.Set(7)
	server := startServer(t, nil, gauge, nil)

	_, body := get(t, "http://"+server.Addr()+"/metrics")
	assert.Contains(t, body, "xyweb_test_pool_size 7")
}

func TestServer_Liveness(t *testing.T) {
	server := startServer(t, func(context.Context) error { return errors.New("down") })

	status, body := get(t, "http://"+server.Addr()+"/healthz/liveness")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", strings.TrimSpace(body))
}

func TestServer_Readiness(t *testing.T) {
	tests := []struct {
		name   string
		ready  ReadinessChecker
		status int
		body   string
	}{
		{"no checker", nil, http.StatusOK, "ok"},
		{"ready", func(context.Context) error { return nil }, http.StatusOK, "ok"},
		{"store down", func(context.Context) error { return auth.ErrStoreUnavailable }, http.StatusServiceUnavailable, "not ready"},
		{"checker gets a deadline", func(ctx context.Context) error {
			if _, ok := ctx.Deadline(); !ok {
				return errors.New("no deadline")
			}
			return nil
		}, http.StatusOK, "ok"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := NewServer("127.0.0.1:0", tt.ready)
			rec := httptest.NewRecorder()
			server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz/readiness", nil))

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.body, strings.TrimSpace(rec.Body.String()))
		})
	}
}

func TestServer_Lifecycle(t *testing.T) {
	defer goleak.VerifyNone(t)

	server := NewServer("127.0.0.1:0", nil)
	errCh, err := server.Start()
	require.NoError(t, err)
	assert.NotEmpty(t, server.Addr())

	_, err = server.Start()
	require.Error(t, err, "second Start must fail")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, server.Stop(ctx))
	require.NoError(t, server.Stop(ctx), "Stop is idempotent")

	select {
	case err, ok := <-errCh:
		assert.False(t, ok, "channel closes without an error, got %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("error channel was not closed")
	}
}

func TestServer_ListenFailure(t *testing.T) {
	first := startServer(t, nil)

	second := NewServer(first.Addr(), nil)
	_, err := second.Start()
	errutil.AssertErrorCode(t, err, "SERVER_LISTEN_FAILED")

	// A failed Start does not leave the server marked as running.
	_, err = second.Start()
	errutil.AssertErrorCode(t, err, "SERVER_LISTEN_FAILED")
}

func TestMetrics_RecordHTTPRequestUnmatched(t *testing.T) {
	server := NewServer("127.0.0.1:0", nil)
	server.Metrics().RecordHTTPRequest("", http.StatusNotFound)

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), `xyweb_http_requests_total{route="unmatched",status="404"} 1`)
}
