// Package main is the arena server entrypoint: the HTTP API, the WebSocket
// gateway, and the matchmaking engine run in one process. Periodic
// maintenance jobs live in cmd/worker.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/codearena/arena-server/config"
	"github.com/codearena/arena-server/internal/application/command"
	"github.com/codearena/arena-server/internal/application/eventhandler"
	"github.com/codearena/arena-server/internal/application/query"
	"github.com/codearena/arena-server/internal/domain/adaptive"
	"github.com/codearena/arena-server/internal/domain/shared"
	"github.com/codearena/arena-server/internal/infrastructure/cache"
	"github.com/codearena/arena-server/internal/infrastructure/external/kernel"
	"github.com/codearena/arena-server/internal/infrastructure/matchqueue"
	"github.com/codearena/arena-server/internal/infrastructure/messaging"
	"github.com/codearena/arena-server/internal/infrastructure/persistence/postgres"
	"github.com/codearena/arena-server/internal/infrastructure/persistence/redis"
	"github.com/codearena/arena-server/internal/infrastructure/realtime"
	"github.com/codearena/arena-server/internal/interface/auth"
	httpserver "github.com/codearena/arena-server/internal/interface/http"
	"github.com/codearena/arena-server/internal/interface/ws"
	"github.com/codearena/arena-server/pkg/logger"
	"github.com/codearena/arena-server/pkg/metrics"
)

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
	// 1. CONFIGURATION
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. LOGGING
	// ─────────────────────────────────────────────────────────────────────────
	slogger := setupSlog(cfg)
	slog.SetDefault(slogger)

	log := logger.New(logger.Options{
		Output: os.Stdout,
		Level:  logger.ParseLevel(cfg.Observability.LogLevel),
	})
	log.Info("starting arena server",
		logger.String("env", string(cfg.App.Environment)),
		logger.String("version", cfg.App.Version),
	)

	m := metrics.New()

	// ─────────────────────────────────────────────────────────────────────────
	// 3. DATABASE
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("connecting to database")
	conn, err := postgres.NewConnectionFromURL(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer conn.Close()

	if err := conn.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	log.Info("running migrations")
	if err := postgres.NewMigrator(conn).Migrate(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. REDIS (optional: presence + cross-instance relay)
	// ─────────────────────────────────────────────────────────────────────────
	var (
		redisCache *redis.Cache
		presence   *redis.PresenceTracker
		relay      *redis.RoomRelay
	)
	if !cfg.Redis.Disabled {
		rc := redis.DefaultConfig()
		if cfg.Redis.Host != "" {
			rc.Host = cfg.Redis.Host
		}
		if cfg.Redis.Port != 0 {
			rc.Port = cfg.Redis.Port
		}
		rc.Password = cfg.Redis.Password
		rc.DB = cfg.Redis.DB
		if cfg.Redis.PoolSize > 0 {
			rc.PoolSize = cfg.Redis.PoolSize
		}

		redisCache, err = redis.NewCache(rc)
		if err != nil {
			log.Warn("redis unavailable, presence and relay disabled", logger.Err(err))
		} else {
			defer redisCache.Close()
			presence = redis.NewPresenceTracker(redisCache)
			relay = redis.NewRoomRelay(redisCache, log)
			log.Info("redis connected", logger.String("addr", rc.Addr()))
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. EVENT BUS
	// ─────────────────────────────────────────────────────────────────────────
	bus := messaging.New(log,
		messaging.WithWorkers(8),
		messaging.WithDeadLetterLimit(256),
	)
	defer bus.Close()

	// ─────────────────────────────────────────────────────────────────────────
	// 6. REALTIME HUB
	// ─────────────────────────────────────────────────────────────────────────
	hubOpts := []realtime.Option{realtime.WithMetrics(m)}
	if relay != nil {
		hubOpts = append(hubOpts, realtime.WithRelay(relay))
	}
	if presence != nil {
		p := presence
		hubOpts = append(hubOpts, realtime.WithPresenceHooks(
			func(id shared.UserID) { _ = p.Connected(context.Background(), id) },
			func(id shared.UserID) { _ = p.Disconnected(context.Background(), id) },
		))
	}
	hub := realtime.NewHub(log, hubOpts...)
	defer hub.Close()

	// ─────────────────────────────────────────────────────────────────────────
	// 7. KERNEL CHAIN (warm service → subprocess → defaults)
	// ─────────────────────────────────────────────────────────────────────────
	var warm *kernel.HTTPClient
	if cfg.Kernel.BaseURL != "" {
		warm = kernel.NewHTTPClient(kernel.HTTPConfig{
			BaseURL:          cfg.Kernel.BaseURL,
			Timeout:          cfg.Kernel.Timeout,
			MaxRetries:       cfg.Kernel.MaxRetries,
			RetryBaseDelay:   cfg.Kernel.RetryBaseDelay,
			CircuitThreshold: cfg.Kernel.CircuitBreakerThreshold,
			CircuitReset:     cfg.Kernel.CircuitBreakerTimeout,
		}, log, m)
	}
	var sub *kernel.SubprocessKernel
	if cfg.Kernel.SubprocessCommand != "" {
		sub = kernel.NewSubprocessKernel(cfg.Kernel.SubprocessCommand, cfg.Kernel.SubprocessTimeout, log, m)
	}
	warmEnabled := cfg.Features.IsEnabled(config.FeatureWarmKernel, nil)
	kernelChain := kernel.NewChain(warm, sub, warmEnabled, log)

	// ─────────────────────────────────────────────────────────────────────────
	// 8. REPOSITORIES, CACHE, RULE ENGINE
	// ─────────────────────────────────────────────────────────────────────────
	uow := postgres.NewUnitOfWork(conn)

	levelRepo := postgres.NewLevelRepository(conn)
	progressRepo := postgres.NewProgressRepository(conn)
	attemptRepo := postgres.NewAttemptRepository(conn)
	completionRepo := postgres.NewCompletionRepository(conn)
	statsRepo := postgres.NewStatsRepository(conn)
	achievementRepo := postgres.NewAchievementRepository(conn)
	sessionRepo := postgres.NewSessionRepository(conn)
	matchRepo := postgres.NewMatchRepository(conn)
	participantRepo := postgres.NewParticipantRepository(conn)
	challengeRepo := postgres.NewChallengeRepository(conn)
	leaderboardRepo := postgres.NewLeaderboardRepository(conn)
	userRepo := postgres.NewUserRepository(conn)

	summaryOpts := []cache.Option{cache.WithLogger(log), cache.WithMetrics(m)}
	if !cfg.Features.IsEnabled(config.FeatureSummaryCache, nil) {
		summaryOpts = append(summaryOpts, cache.Disabled())
	}
	summaries := cache.NewSummaryCache(
		postgres.NewSummaryStore(attemptRepo),
		cfg.SummaryCache.TTL,
		cfg.SummaryCache.MaxEntries,
		summaryOpts...,
	)

	engine := adaptive.NewEngine(adaptive.RuleConfig{
		MaxErrors:            cfg.Rules.MaxErrors,
		TimeUnderSeconds:     cfg.Rules.TimeUnderSeconds,
		MinAttemptsForRate:   cfg.Rules.MinAttemptsForRate,
		HeavyStruggleErrors:  cfg.Rules.HeavyStruggleErrors,
		BeginnerMediumWindow: cfg.Rules.BeginnerMediumWindow,
		BeginnerHardWindow:   cfg.Rules.BeginnerHardWindow,
		BeginnerMinLevel:     cfg.Rules.BeginnerMinLevel,
		IntermediateWindow:   cfg.Rules.IntermediateWindow,
		AdvancedMediumWindow: cfg.Rules.AdvancedMediumWindow,
		AdvancedEasyWindow:   cfg.Rules.AdvancedEasyWindow,
	})

	// ─────────────────────────────────────────────────────────────────────────
	// 9. APPLICATION LAYER
	// ─────────────────────────────────────────────────────────────────────────
	recordAttempt := command.NewRecordAttemptHandler(uow, summaries, kernelChain, engine, cfg.Features, cfg.Kernel, bus, log, m)
	purchaseHint := command.NewPurchaseHintHandler(uow, bus, log)
	trackSession := command.NewTrackSessionHandler(uow, log)
	createBattle := command.NewCreateBattleHandler(uow, bus, log)
	readyBattle := command.NewReadyBattleHandler(uow, hub, log)
	submit := command.NewSubmitSolutionHandler(uow, hub, bus, log, m)
	exitBattle := command.NewExitBattleHandler(uow, matchRepo, hub, bus, log, m)
	kickUnready := command.NewKickUnreadyHandler(uow, matchRepo, hub, bus, log, m)
	challenges := command.NewChallengeHandler(uow, userRepo, hub, bus, log)

	leaderboardQuery := query.NewLeaderboardHandler(leaderboardRepo, cfg.Leaderboard.TTL, cfg.Leaderboard.Limit, log, m)
	progressQuery := query.NewProgressHandler(levelRepo, progressRepo)
	statsQuery := query.NewStatsHandler(statsRepo, completionRepo, participantRepo)
	achievementsQuery := query.NewAchievementsHandler(achievementRepo)
	battleQuery := query.NewBattleHandler(matchRepo, participantRepo, challengeRepo, levelRepo, userRepo)

	if err := eventhandler.RegisterAll(bus, hub, leaderboardQuery, log); err != nil {
		return fmt.Errorf("failed to register event handlers: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 10. MATCHMAKING ENGINE
	// ─────────────────────────────────────────────────────────────────────────
	former := command.NewMatchFormer(uow, hub, bus, log)
	queue := matchqueue.New(former, hub, log,
		matchqueue.WithKernel(kernelChain),
		matchqueue.WithWaiterSource(matchqueue.NewPendingMatchWaiters(matchRepo, participantRepo, userRepo)),
		matchqueue.WithOnlineChecker(matchqueue.NewCompositeOnlineChecker(sessionRepo, hub, presenceOrNil(presence))),
		matchqueue.WithMetrics(m),
		matchqueue.WithTick(cfg.Matchmaking.TickInterval),
	)

	joinQueue := command.NewJoinQueueHandler(uow, queue, statsRepo, userRepo, progressRepo, bus, log)

	// ─────────────────────────────────────────────────────────────────────────
	// 11. INTERFACE LAYER
	// ─────────────────────────────────────────────────────────────────────────
	verifier := auth.NewVerifier(cfg.HTTP.JWTSecret)
	gateway := ws.NewGateway(hub, verifier, ws.Handlers{
		JoinQueue: joinQueue,
		Queue:     queue,
		Ready:     readyBattle,
		Submit:    submit,
		Exit:      exitBattle,
		Sessions:  trackSession,
		Battles:   battleQuery,
	}, log)

	probes := []httpserver.Probe{{Name: "postgres", Check: conn.Ping}}
	if redisCache != nil {
		probes = append(probes, httpserver.Probe{Name: "redis", Check: redisCache.Ping})
	}

	srvCfg := httpserver.DefaultConfig()
	srvCfg.Host = cfg.HTTP.Host
	srvCfg.Port = cfg.HTTP.Port
	srvCfg.ReadTimeout = cfg.HTTP.ReadTimeout
	srvCfg.WriteTimeout = cfg.HTTP.WriteTimeout
	srvCfg.IdleTimeout = cfg.HTTP.IdleTimeout
	srvCfg.RateLimitPerMinute = cfg.HTTP.RateLimit
	srvCfg.JWTSecret = cfg.HTTP.JWTSecret
	srvCfg.EnableMetrics = cfg.Observability.MetricsEnabled

	server := httpserver.NewServer(srvCfg, httpserver.Dependencies{
		RecordAttempt: recordAttempt,
		PurchaseHint:  purchaseHint,
		TrackSession:  trackSession,
		JoinQueue:     joinQueue,
		CreateBattle:  createBattle,
		ReadyBattle:   readyBattle,
		Submit:        submit,
		ExitBattle:    exitBattle,
		KickUnready:   kickUnready,
		Challenges:    challenges,
		Leaderboard:   leaderboardQuery,
		Progress:      progressQuery,
		Stats:         statsQuery,
		Achievements:  achievementsQuery,
		Battles:       battleQuery,
		WS:            gateway,
		Probes:        probes,
		Logger:        log,
		Metrics:       m,
	})

	// ─────────────────────────────────────────────────────────────────────────
	// 12. RUN
	// ─────────────────────────────────────────────────────────────────────────
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return server.Start()
	})
	g.Go(func() error {
		queue.Run(gctx)
		return nil
	})
	if relay != nil {
		g.Go(func() error {
			relay.Run(gctx, func(room, event string, payload json.RawMessage) {
				hub.EmitLocal(room, event, payload)
			})
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	log.Info("arena server running", logger.String("addr", cfg.HTTP.Addr()))
	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return err
	}
	log.Info("arena server stopped")
	return nil
}

// setupSlog configures the process-wide slog default used by libraries that
// log through slog.Default.
func setupSlog(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Observability.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	var handler slog.Handler
	if cfg.Observability.LogFormat == "text" || cfg.App.Environment == config.EnvDevelopment {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}
	return slog.New(handler).With("app", cfg.App.Name, "version", cfg.App.Version)
}

// presenceOrNil keeps the composite checker's remote half optional without a
// typed-nil interface value.
func presenceOrNil(p *redis.PresenceTracker) matchqueue.RemotePresence {
	if p == nil {
		return nil
	}
	return p
}
