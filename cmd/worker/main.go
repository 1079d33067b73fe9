// Package main is the arena maintenance worker: a scheduler host for the
// periodic jobs the request path must not pay for — sweeping pending matches
// past the ready window, warming leaderboard snapshots, and closing
// abandoned sessions.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/codearena/arena-server/config"
	"github.com/codearena/arena-server/internal/application/command"
	"github.com/codearena/arena-server/internal/domain/notification"
	"github.com/codearena/arena-server/internal/infrastructure/messaging"
	"github.com/codearena/arena-server/internal/infrastructure/persistence/postgres"
	"github.com/codearena/arena-server/internal/infrastructure/scheduler"
	"github.com/codearena/arena-server/internal/infrastructure/scheduler/jobs"
	"github.com/codearena/arena-server/pkg/logger"
	"github.com/codearena/arena-server/pkg/metrics"
)

// sessionStaleWindow is how long an open session may go without a heartbeat
// before the sweep closes it.
const sessionStaleWindow = 30 * time.Minute

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. CONFIGURATION + LOGGING
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if !cfg.Scheduler.Enabled {
		return fmt.Errorf("scheduler is disabled; nothing for the worker to do")
	}

	var handler slog.Handler
	if cfg.Observability.LogFormat == "text" || cfg.App.Environment == config.EnvDevelopment {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{})
	} else {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{})
	}
	slogger := slog.New(handler).With("app", cfg.App.Name+"-worker")
	slog.SetDefault(slogger)

	log := logger.New(logger.Options{
		Output: os.Stdout,
		Level:  logger.ParseLevel(cfg.Observability.LogLevel),
	})
	log.Info("starting arena worker", logger.String("env", string(cfg.App.Environment)))

	m := metrics.New()

	// ─────────────────────────────────────────────────────────────────────────
	// 2. DATABASE
	// ─────────────────────────────────────────────────────────────────────────
	conn, err := postgres.NewConnectionFromURL(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer conn.Close()

	if err := conn.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	// Migrations run here too: the worker may boot before the server on a
	// fresh deployment.
	if err := postgres.NewMigrator(conn).Migrate(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 3. JOB DEPENDENCIES
	// ─────────────────────────────────────────────────────────────────────────
	uow := postgres.NewUnitOfWork(conn)
	matchRepo := postgres.NewMatchRepository(conn)
	sessionRepo := postgres.NewSessionRepository(conn)
	leaderboardRepo := postgres.NewLeaderboardRepository(conn)

	bus := messaging.New(log)
	defer bus.Close()

	// The worker has no sockets; cancelled players learn the outcome from
	// the server's idempotent battle reads.
	kicker := command.NewKickUnreadyHandler(uow, matchRepo, notification.NopNotifier{}, bus, log, m)

	// ─────────────────────────────────────────────────────────────────────────
	// 4. SCHEDULER
	// ─────────────────────────────────────────────────────────────────────────
	schedCfg := scheduler.DefaultSchedulerConfig()
	schedCfg.Logger = slogger
	sched := scheduler.NewScheduler(schedCfg)

	refreshCfg := jobs.DefaultRefreshLeaderboardsConfig()
	refreshCfg.Limit = cfg.Leaderboard.Limit
	refreshCfg.MinAge = cfg.Leaderboard.TTL / 2

	register := []struct {
		job      scheduler.Job
		schedule scheduler.Schedule
	}{
		{jobs.NewKickUnreadyJob(kicker, slogger, cfg.Scheduler.JobTimeout),
			scheduler.NewIntervalSchedule(cfg.Scheduler.KickUnreadyInterval)},
		{jobs.NewRefreshLeaderboardsJob(leaderboardRepo, refreshCfg, slogger),
			scheduler.NewJitteredSchedule(cfg.Scheduler.RefreshLeaderboardInterval, cfg.Scheduler.RefreshLeaderboardInterval/10)},
		{jobs.NewCloseStaleSessionsJob(sessionRepo, sessionStaleWindow, slogger),
			scheduler.NewIntervalSchedule(cfg.Scheduler.CloseStaleSessionsInterval)},
	}
	for _, r := range register {
		if err := sched.Register(r.job, r.schedule); err != nil {
			return fmt.Errorf("failed to register %s: %w", r.job.Name(), err)
		}
		log.Info("job registered",
			logger.String("job", r.job.Name()),
			logger.String("schedule", r.schedule.String()),
		)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. RUN
	// ─────────────────────────────────────────────────────────────────────────
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	<-ctx.Done()
	log.Info("shutting down worker")
	if err := sched.Stop(); err != nil {
		log.Warn("scheduler stop", logger.Err(err))
	}
	log.Info("arena worker stopped")
	return nil
}
