// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"time"

	"github.com/samber/oops"

	"github.com/holomush/gatekeeper/pkg/errutil"
)

// RunSweeper calls ClearExpiredSessions every interval until ctx is done.
// Sweep failures are logged and counted but never stop the loop.
func (u *Users) RunSweeper(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return oops.Code("AUTH_INVALID_SWEEP_INTERVAL").
			With("interval", interval.String()).
			Errorf("sweep interval must be positive")
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	u.logger.InfoContext(ctx, "session sweeper started", "interval", interval.String())
	for {
		select {
		case <-ctx.Done():
			u.logger.InfoContext(ctx, "session sweeper stopped")
			return nil
		case <-ticker.C:
			u.sweepOnce(ctx)
		}
	}
}

func (u *Users) sweepOnce(ctx context.Context) {
	err := u.ClearExpiredSessions(ctx)
	u.recorder.ObserveSweep(Outcome(err))
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		errutil.LogError(u.logger, "session sweep failed", err)
	}
}
