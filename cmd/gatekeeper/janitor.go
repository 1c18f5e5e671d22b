// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/gatekeeper/internal/auth"
	"github.com/holomush/gatekeeper/pkg/errutil"
)

const shutdownTimeout = 5 * time.Second

func (c *cli) newJanitorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "janitor",
		Short: "Sweep expired sessions on an interval",
		Long: `Run until interrupted, deleting expired sessions every
sessions.sweepInterval. When metrics.addr is set, operation and sweep
counters and health probes are served there.`,
		Args: cobra.NoArgs,
		RunE: c.runJanitor,
	}
}

func (c *cli) runJanitor(cmd *cobra.Command, _ []string) (err error) {
	cfg, logger, err := c.setup(cmd)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := c.deps.SignalContext(parent)
	defer cancel()

	var (
		ready    atomic.Bool
		server   ObservabilityServer
		recorder auth.Recorder
		errCh    <-chan error
	)
	if cfg.Metrics.Addr != "" {
		server = c.deps.ObservabilityServerFactory(cfg.Metrics.Addr, ready.Load)
		recorder = server.Metrics()
		if errCh, err = server.Start(); err != nil {
			return oops.Code("METRICS_START_FAILED").With("addr", cfg.Metrics.Addr).Wrap(err)
		}
		defer func() {
			stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer stopCancel()
			if stopErr := server.Stop(stopCtx); stopErr != nil {
				errutil.LogError(logger, "metrics server shutdown failed", stopErr)
			}
		}()
	}

	b, err := openBackend(ctx, cfg, c.deps, logger, recorder)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := b.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	ready.Store(true)

	logger.InfoContext(ctx, "janitor started",
		"database_driver", cfg.Database.Driver,
		"sessions_backend", cfg.Sessions.Backend,
		"sweep_interval", cfg.Sessions.SweepInterval.String())

	sweepDone := make(chan error, 1)
	go func() {
		sweepDone <- b.users.RunSweeper(ctx, cfg.Sessions.SweepInterval)
	}()

	select {
	case err = <-sweepDone:
	case serveErr, ok := <-errCh:
		cancel()
		<-sweepDone
		if ok && serveErr != nil {
			err = oops.Code("METRICS_SERVE_FAILED").Wrap(serveErr)
		}
	}
	ready.Store(false)

	logger.Info("janitor stopped")
	return err
}
