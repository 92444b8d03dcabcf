// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package postgres

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultSweepInterval is how often expired tokens are purged.
const DefaultSweepInterval = 10 * time.Minute

// Purger removes token rows past their purge deadline.
type Purger interface {
	Purge(ctx context.Context) (int64, error)
}

// Sweeper periodically purges dead token rows.
type Sweeper struct {
	purger   Purger
	interval time.Duration
	logger   *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSweeper creates a Sweeper. A non-positive interval uses
// DefaultSweepInterval.
func NewSweeper(purger Purger, interval time.Duration, logger *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{purger: purger, interval: interval, logger: logger}
}

// RunOnce runs a single purge.
func (s *Sweeper) RunOnce(ctx context.Context) (int64, error) {
	n, err := s.purger.Purge(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "token purge failed", "operation", "purge tokens", "error", err)
		return 0, err
	}
	if n > 0 {
		s.logger.InfoContext(ctx, "purged expired tokens", "count", n)
	}
	return n, nil
}

// Start begins purging in the background until Stop or ctx cancellation.
func (s *Sweeper) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.run(ctx)
}

// Stop halts the sweeper and waits for an in-flight purge to finish.
func (s *Sweeper) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Sweeper) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	_, _ = s.RunOnce(ctx) //nolint:errcheck // logged by RunOnce
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = s.RunOnce(ctx) //nolint:errcheck // logged by RunOnce
		}
	}
}
