// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package observability

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/xybot/xyweb/internal/auth"
)

const namespace = "xyweb"

// Metrics holds the application counters. It implements auth.Metrics.
type Metrics struct {
	Logins           *prometheus.CounterVec
	TokenValidations *prometheus.CounterVec
	TokensIssued     prometheus.Counter
	TokensRevoked    *prometheus.CounterVec
	UserOperations   *prometheus.CounterVec
	HTTPRequests     *prometheus.CounterVec
}

// NewMetrics creates the counters and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "logins_total",
			Help:      "Login attempts by outcome",
		}, []string{"outcome"}),
		TokenValidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "token_validations_total",
			Help:      "Token validations by outcome",
		}, []string{"outcome"}),
		TokensIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "tokens_issued_total",
			Help:      "Session tokens issued",
		}),
		TokensRevoked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "tokens_revoked_total",
			Help:      "Session tokens removed by reason",
		}, []string{"reason"}),
		UserOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "user_operations_total",
			Help:      "Account management operations by operation and outcome",
		}, []string{"operation", "outcome"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status",
		}, []string{"route", "status"}),
	}

	reg.MustRegister(
		m.Logins,
		m.TokenValidations,
		m.TokensIssued,
		m.TokensRevoked,
		m.UserOperations,
		m.HTTPRequests,
	)
	return m
}

// RecordLogin implements auth.Metrics.
func (m *Metrics) RecordLogin(outcome string) {
	m.Logins.WithLabelValues(outcome).Inc()
}

// RecordValidation implements auth.Metrics.
func (m *Metrics) RecordValidation(outcome string) {
	m.TokenValidations.WithLabelValues(outcome).Inc()
}

// RecordTokenIssued implements auth.Metrics.
func (m *Metrics) RecordTokenIssued() {
	m.TokensIssued.Inc()
}

// RecordTokensRevoked implements auth.Metrics.
func (m *Metrics) RecordTokensRevoked(reason string, n int) {
	m.TokensRevoked.WithLabelValues(reason).Add(float64(n))
}

// RecordUserOperation implements auth.Metrics.
func (m *Metrics) RecordUserOperation(operation, outcome string) {
	m.UserOperations.WithLabelValues(operation, outcome).Inc()
}

// RecordHTTPRequest counts a served request. route is the matched pattern,
// not the raw path.
func (m *Metrics) RecordHTTPRequest(route string, status int) {
	if route == "" {
		route = "unmatched"
	}
	m.HTTPRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
}

var _ auth.Metrics = (*Metrics)(nil)
