// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"log/slog"
	"time"
)

// Metrics receives authority events. Implementations must be safe for
// concurrent use.
type Metrics interface {
	RecordLogin(outcome string)
	RecordValidation(outcome string)
	RecordTokenIssued()
	RecordTokensRevoked(reason string, n int)
	RecordUserOperation(operation, outcome string)
}

// Metric outcome labels.
const (
	OutcomeSuccess          = "success"
	OutcomeUnknownUser      = "unknown_user"
	OutcomePasswordMismatch = "password_mismatch"
	OutcomeError            = "error"
	OutcomeValid            = "valid"
	OutcomeNotFound         = "not_found"
	OutcomeExpired          = "expired"
	OutcomeOrphaned         = "orphaned"
	OutcomeRefused          = "refused"
)

type noopMetrics struct{}

func (noopMetrics) RecordLogin(string)                 {}
func (noopMetrics) RecordValidation(string)            {}
func (noopMetrics) RecordTokenIssued()                 {}
func (noopMetrics) RecordTokensRevoked(string, int)    {}
func (noopMetrics) RecordUserOperation(string, string) {}

// Option configures an Authority.
type Option func(*Authority)

// WithTokenTTL sets the lifetime of issued tokens.
func WithTokenTTL(ttl time.Duration) Option {
	return func(a *Authority) {
		a.tokenTTL = ttl
	}
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(a *Authority) {
		if now != nil {
			a.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Authority) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(a *Authority) {
		if m != nil {
			a.metrics = m
		}
	}
}

// WithHashConcurrency bounds concurrent hash and verify calls. Values below
// one keep the default of GOMAXPROCS.
func WithHashConcurrency(n int) Option {
	return func(a *Authority) {
		if n > 0 {
			a.hashConcurrency = int64(n)
		}
	}
}

// WithRevokeOnPasswordChange revokes every token of a user after a
// successful password change.
func WithRevokeOnPasswordChange(revoke bool) Option {
	return func(a *Authority) {
		a.revokeOnPasswordChange = revoke
	}
}
