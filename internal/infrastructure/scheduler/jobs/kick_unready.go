// Package jobs contains the arena's scheduled maintenance jobs: sweeping
// pending matches past the ready window, warming leaderboard snapshots, and
// closing abandoned sessions.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// KICK UNREADY JOB
// ══════════════════════════════════════════════════════════════════════════════

// UnreadySweeper cancels every pending match older than the ready window.
// The application's kick-unready handler implements it.
type UnreadySweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// KickUnreadyJob drives the ready-window sweep. A pending match whose
// participants never sent ready would otherwise hold its players out of
// matchmaking forever; the sweep cancels it and applies the no-show penalty.
type KickUnreadyJob struct {
	sweeper UnreadySweeper
	logger  *slog.Logger
	timeout time.Duration

	totalKicked atomic.Int64
}

// NewKickUnreadyJob creates the sweep job.
func NewKickUnreadyJob(sweeper UnreadySweeper, logger *slog.Logger, timeout time.Duration) *KickUnreadyJob {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &KickUnreadyJob{
		sweeper: sweeper,
		logger:  logger.With("job", "kick_unready"),
		timeout: timeout,
	}
}

// Name returns the unique name of the job.
func (j *KickUnreadyJob) Name() string {
	return "kick_unready"
}

// Description returns a human-readable description of the job.
func (j *KickUnreadyJob) Description() string {
	return "Cancels pending matches that outlived the ready window and debits the no-show penalty"
}

// Run executes one sweep.
func (j *KickUnreadyJob) Run(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	start := time.Now()
	kicked, err := j.sweeper.Sweep(ctx)
	if err != nil {
		return fmt.Errorf("unready sweep: %w", err)
	}

	if kicked > 0 {
		j.totalKicked.Add(int64(kicked))
		j.logger.Info("pending matches cancelled",
			"kicked", kicked,
			"total_kicked", j.totalKicked.Load(),
			"duration", time.Since(start).String(),
		)
	}
	return nil
}

// TotalKicked returns the number of matches cancelled since process start.
func (j *KickUnreadyJob) TotalKicked() int64 {
	return j.totalKicked.Load()
}
