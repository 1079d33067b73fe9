package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/codearena/arena-server/internal/domain/leaderboard"
)

// ══════════════════════════════════════════════════════════════════════════════
// REFRESH LEADERBOARDS JOB
// ══════════════════════════════════════════════════════════════════════════════

// RefreshLeaderboardsConfig tunes the warm refresh.
type RefreshLeaderboardsConfig struct {
	// Limit is the snapshot depth per board.
	Limit int

	// MinAge skips boards younger than this, so the job never races the
	// read-path rebuild right after it ran.
	MinAge time.Duration

	// Timeout bounds one full refresh pass across all boards.
	Timeout time.Duration
}

// DefaultRefreshLeaderboardsConfig returns sensible defaults.
func DefaultRefreshLeaderboardsConfig() RefreshLeaderboardsConfig {
	return RefreshLeaderboardsConfig{
		Limit:   leaderboard.DefaultLimit,
		MinAge:  leaderboard.DefaultTTL / 2,
		Timeout: 2 * time.Minute,
	}
}

// RefreshLeaderboardsJob rebuilds every board snapshot ahead of TTL expiry
// so a reader never pays the rebuild latency on a cold board.
type RefreshLeaderboardsJob struct {
	repo   leaderboard.Repository
	config RefreshLeaderboardsConfig
	logger *slog.Logger
}

// NewRefreshLeaderboardsJob creates the warm refresh job.
func NewRefreshLeaderboardsJob(repo leaderboard.Repository, config RefreshLeaderboardsConfig, logger *slog.Logger) *RefreshLeaderboardsJob {
	if logger == nil {
		logger = slog.Default()
	}
	if config.Limit <= 0 {
		config.Limit = leaderboard.DefaultLimit
	}
	if config.Timeout <= 0 {
		config.Timeout = 2 * time.Minute
	}
	return &RefreshLeaderboardsJob{
		repo:   repo,
		config: config,
		logger: logger.With("job", "refresh_leaderboards"),
	}
}

// Name returns the unique name of the job.
func (j *RefreshLeaderboardsJob) Name() string {
	return "refresh_leaderboards"
}

// Description returns a human-readable description of the job.
func (j *RefreshLeaderboardsJob) Description() string {
	return "Rebuilds the four leaderboard snapshots before their TTL expires"
}

// Run refreshes every board that is old enough to be worth rebuilding. One
// board failing does not stop the others.
func (j *RefreshLeaderboardsJob) Run(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, j.config.Timeout)
	defer cancel()

	var errs []error
	refreshed := 0
	for _, board := range leaderboard.BoardTypes() {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		age, count, err := j.repo.SnapshotAge(ctx, board)
		if err != nil {
			errs = append(errs, fmt.Errorf("board %s: %w", board, err))
			continue
		}
		if count > 0 && age < j.config.MinAge {
			continue
		}

		if err := j.refreshBoard(ctx, board); err != nil {
			errs = append(errs, fmt.Errorf("board %s: %w", board, err))
			continue
		}
		refreshed++
	}

	if refreshed > 0 {
		j.logger.Info("leaderboards refreshed", "boards", refreshed)
	}
	return errors.Join(errs...)
}

func (j *RefreshLeaderboardsJob) refreshBoard(ctx context.Context, board leaderboard.BoardType) error {
	start := time.Now()
	entries, err := j.repo.BuildBoard(ctx, board, j.config.Limit)
	if err != nil {
		return fmt.Errorf("build: %w", err)
	}
	if err := j.repo.ReplaceBoard(ctx, board, entries); err != nil {
		return fmt.Errorf("replace: %w", err)
	}

	j.logger.Debug("board snapshot replaced",
		"board", string(board),
		"entries", len(entries),
		"duration", time.Since(start).String(),
	)
	return nil
}
