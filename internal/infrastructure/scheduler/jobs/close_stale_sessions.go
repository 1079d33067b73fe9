package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/codearena/arena-server/internal/domain/session"
)

// ══════════════════════════════════════════════════════════════════════════════
// CLOSE STALE SESSIONS JOB
// ══════════════════════════════════════════════════════════════════════════════

// CloseStaleSessionsJob ends open sessions whose last heartbeat is older
// than the stale window. A session that never closes would keep its user
// "online" for the matchmaking filter indefinitely.
type CloseStaleSessionsJob struct {
	sessions    session.Repository
	staleWindow time.Duration
	timeout     time.Duration
	logger      *slog.Logger
}

// NewCloseStaleSessionsJob creates the session sweep job. A non-positive
// staleWindow falls back to 30 minutes.
func NewCloseStaleSessionsJob(sessions session.Repository, staleWindow time.Duration, logger *slog.Logger) *CloseStaleSessionsJob {
	if logger == nil {
		logger = slog.Default()
	}
	if staleWindow <= 0 {
		staleWindow = 30 * time.Minute
	}
	return &CloseStaleSessionsJob{
		sessions:    sessions,
		staleWindow: staleWindow,
		timeout:     30 * time.Second,
		logger:      logger.With("job", "close_stale_sessions"),
	}
}

// Name returns the unique name of the job.
func (j *CloseStaleSessionsJob) Name() string {
	return "close_stale_sessions"
}

// Description returns a human-readable description of the job.
func (j *CloseStaleSessionsJob) Description() string {
	return "Ends open sessions without a recent heartbeat so they stop counting as online"
}

// Run closes every session unseen since the stale cutoff.
func (j *CloseStaleSessionsJob) Run(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	cutoff := time.Now().UTC().Add(-j.staleWindow)
	closed, err := j.sessions.CloseStale(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("close stale sessions: %w", err)
	}
	if closed > 0 {
		j.logger.Info("stale sessions closed", "count", closed, "cutoff", cutoff)
	}
	return nil
}
