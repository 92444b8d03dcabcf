// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/xybot/xyweb/internal/auth"
	"github.com/xybot/xyweb/internal/config"
	"github.com/xybot/xyweb/internal/logging"
	"github.com/xybot/xyweb/internal/observability"
	"github.com/xybot/xyweb/internal/web"
	"github.com/xybot/xyweb/pkg/errutil"
)

func newServeCmd(opts *globalOptions, deps Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the web API server",
		Long: `Start the web API server. The credential store is bootstrapped on
first start: an installation secret is generated and, when no users exist,
a default administrator is created.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cmd, cfg, deps)
		},
	}
}

// authorityOptions maps configuration onto Authority options.
func authorityOptions(cfg *config.Config, logger *slog.Logger) []auth.Option {
	return []auth.Option{
		auth.WithTokenTTL(cfg.Auth.TokenTTL()),
		auth.WithHashConcurrency(cfg.Auth.HashConcurrency),
		auth.WithRevokeOnPasswordChange(cfg.Auth.RevokeTokensOnPasswordChange),
		auth.WithLogger(logger),
	}
}

// runServe runs until ctx is cancelled or a server fails.
func runServe(ctx context.Context, cmd *cobra.Command, cfg *config.Config, deps Deps) error {
	logger := logging.SetDefault(serviceName, version, logging.Options{
		Format: cfg.LogFormat,
		Level:  cfg.LogLevel,
		Writer: cmd.ErrOrStderr(),
	})
	gin.SetMode(gin.ReleaseMode)

	backend, err := deps.OpenBackend(ctx, cfg, logger)
	if err != nil {
		errutil.LogError(ctx, logger, "failed to open credential store", err, "backend", cfg.Store.Backend)
		return err
	}
	defer backend.Close()

	authOpts := authorityOptions(cfg, logger)
	webOpts := []web.Option{web.WithLogger(logger), web.WithCORSOrigins(cfg.HTTP.CORSOrigins)}

	var obsServer *observability.Server
	if cfg.MetricsAddr != "" {
		obsServer = observability.NewServer(cfg.MetricsAddr, backend.Users.Ping, backend.Collector).WithLogger(logger)
		authOpts = append(authOpts, auth.WithMetrics(obsServer.Metrics()))
		webOpts = append(webOpts, web.WithMetrics(obsServer.Metrics()))
	}

	authority, err := backend.NewAuthority(ctx, deps.Hasher, authOpts...)
	if err != nil {
		errutil.LogError(ctx, logger, "failed to bootstrap credential store", err)
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	serveErrs := make(chan error, 2)

	webServer := web.NewServer(cfg.HTTP.Addr, authority, webOpts...)
	webErrCh, err := webServer.Start()
	if err != nil {
		return err
	}
	defer stopWithTimeout(cfg, logger, "web", webServer.Stop)
	go monitorServerErrors(ctx, cancel, webErrCh, serveErrs, "web", logger)

	metricsAddr := ""
	if obsServer != nil {
		obsErrCh, err := obsServer.Start()
		if err != nil {
			return oops.With("operation", "start observability server").Wrap(err)
		}
		defer stopWithTimeout(cfg, logger, "observability", obsServer.Stop)
		go monitorServerErrors(ctx, cancel, obsErrCh, serveErrs, "observability", logger)
		metricsAddr = obsServer.Addr()
	}

	if backend.Sweeper != nil {
		backend.Sweeper.Start(ctx)
		defer backend.Sweeper.Stop()
	}

	cmd.Println("xyweb server started")
	logger.InfoContext(ctx, "xyweb ready",
		"http_addr", webServer.Addr(),
		"metrics_addr", metricsAddr,
		"backend", cfg.Store.Backend)
	deps.OnReady(webServer.Addr(), metricsAddr)

	<-ctx.Done()
	logger.Info("shutting down")
	select {
	case err := <-serveErrs:
		return err
	default:
		return nil
	}
}

// stopWithTimeout stops a server within the configured shutdown timeout.
func stopWithTimeout(cfg *config.Config, logger *slog.Logger, name string, stop func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := stop(ctx); err != nil {
		logger.Warn("error stopping server", "server", name, "error", err)
	}
}

// monitorServerErrors forwards a server's serve error to failed and cancels
// ctx. It exits when an error is received, the channel is closed, or ctx is
// done.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, failed chan<- error, name string, logger *slog.Logger) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			logger.Error("server error, triggering shutdown", "server", name, "error", err)
			failed <- oops.Code("SERVER_FAILED").With("server", name).Wrap(err)
			cancel()
		}
	case <-ctx.Done():
	}
}
