package command

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/codearena/arena-server/config"
	"github.com/codearena/arena-server/internal/domain/adaptive"
	"github.com/codearena/arena-server/internal/domain/progression"
	"github.com/codearena/arena-server/internal/domain/puzzle"
	"github.com/codearena/arena-server/internal/domain/shared"
	"github.com/codearena/arena-server/pkg/logger"
	"github.com/codearena/arena-server/pkg/metrics"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECORD ATTEMPT COMMAND
// ══════════════════════════════════════════════════════════════════════════════

// RecordAttemptCommand processes one puzzle attempt end to end: counters,
// kernel evaluation, difficulty rules, next-variant selection, exp and
// achievements, audit rows. Everything commits in a single transaction.
type RecordAttemptCommand struct {
	UserID      string
	LevelID     string
	LessonID    string // empty when the attempt is not lesson-scoped
	AttemptID   string // client-generated idempotency key, optional
	Success     bool
	AttemptTime int // seconds
	Code        string
}

// Validate checks the command's input invariants.
func (c *RecordAttemptCommand) Validate() error {
	if _, err := shared.NewUserID(c.UserID); err != nil {
		return err
	}
	if !shared.LevelID(c.LevelID).IsValid() {
		return shared.NewDomainError("command", "RecordAttempt", shared.ErrInvalidID, "invalid level id")
	}
	if c.LessonID != "" && !shared.LessonID(c.LessonID).IsValid() {
		return shared.NewDomainError("command", "RecordAttempt", shared.ErrInvalidID, "invalid lesson id")
	}
	if c.AttemptTime < 0 || c.AttemptTime > puzzle.MaxAttemptTimeSeconds {
		return shared.ErrInvalidAttemptTime
	}
	return nil
}

// UnlockedAchievement is one achievement earned by this attempt.
type UnlockedAchievement struct {
	Type      string `json:"type"`
	Title     string `json:"title"`
	ExpReward int    `json:"exp_reward"`
}

// RecordAttemptResult is the processed outcome returned to the client.
type RecordAttemptResult struct {
	Duplicate bool `json:"duplicate,omitempty"`

	ExpGained     int    `json:"exp_gained"`
	TotalExp      int    `json:"total_exp"`
	RankName      string `json:"rank_name"`
	RankChanged   bool   `json:"rank_changed"`
	CurrentStreak int    `json:"current_streak"`

	Theta       float64           `json:"theta"`
	Beta        float64           `json:"beta"`
	Difficulty  shared.Difficulty `json:"next_difficulty"`
	Probability float64           `json:"success_probability"`
	AppliedRule string            `json:"applied_rule"`

	NextLevelID string `json:"next_level_id,omitempty"`

	Achievements []UnlockedAchievement `json:"achievements,omitempty"`

	KernelSource string `json:"-"`
}

// SummaryAccess is the read-through performance window the pipeline consumes:
// reads during evaluation, a prime after commit so the next attempt observes
// this one without a store round-trip.
type SummaryAccess interface {
	puzzle.SummarySource
	Prime(userID shared.UserID, lessonID shared.LessonID, obs puzzle.Observation)
}

// RecordAttemptHandler handles RecordAttemptCommand.
type RecordAttemptHandler struct {
	uow       UnitOfWork
	summaries SummaryAccess
	kernel    adaptive.Kernel
	engine    *adaptive.Engine
	flags     *config.FeatureFlags
	kernelCfg config.KernelConfig
	events    shared.EventPublisher
	log       *logger.Logger
	metrics   *metrics.Metrics
}

// NewRecordAttemptHandler creates the attempt pipeline handler.
func NewRecordAttemptHandler(
	uow UnitOfWork,
	summaries SummaryAccess,
	kernel adaptive.Kernel,
	engine *adaptive.Engine,
	flags *config.FeatureFlags,
	kernelCfg config.KernelConfig,
	events shared.EventPublisher,
	log *logger.Logger,
	m *metrics.Metrics,
) *RecordAttemptHandler {
	if log == nil {
		log = logger.Default()
	}
	return &RecordAttemptHandler{
		uow:       uow,
		summaries: summaries,
		kernel:    kernel,
		engine:    engine,
		flags:     flags,
		kernelCfg: kernelCfg,
		events:    events,
		log:       log.With(logger.Component("record_attempt")),
		metrics:   m,
	}
}

// Handle runs the full pipeline. On success the transaction has committed;
// cache priming and event publication happen after commit and are best-effort.
func (h *RecordAttemptHandler) Handle(ctx context.Context, cmd RecordAttemptCommand) (*RecordAttemptResult, error) {
	start := time.Now()
	if err := cmd.Validate(); err != nil {
		h.observeOutcome("rejected", start)
		return nil, err
	}

	userID := shared.UserID(cmd.UserID)
	levelID := shared.LevelID(cmd.LevelID)
	lessonID := shared.LessonID(cmd.LessonID)
	lessonScoped := !lessonID.IsEmpty()

	res := &RecordAttemptResult{}
	var (
		attemptObs    puzzle.Observation
		pendingEvents []shared.Event
	)

	err := h.uow.Run(ctx, func(ctx context.Context, r Repos) error {
		// Idempotency: a replayed attempt id is acknowledged without writes.
		if cmd.AttemptID != "" {
			exists, err := r.Attempts.ExistsByIdempotencyKey(ctx, userID, cmd.AttemptID)
			if err != nil {
				return fmt.Errorf("failed to check idempotency key: %w", err)
			}
			if exists {
				res.Duplicate = true
				return nil
			}
		}

		// The progress row lock serializes concurrent attempts on the same
		// (user, level) pair for the rest of the transaction.
		progress, err := r.Progress.GetForUpdate(ctx, userID, levelID)
		if err != nil {
			return fmt.Errorf("failed to lock progress: %w", err)
		}

		level, err := r.Levels.GetByID(ctx, levelID)
		if err != nil {
			return err
		}

		var band shared.LessonBand
		if lessonScoped {
			lesson, err := r.Levels.GetLesson(ctx, lessonID)
			if err != nil {
				return err
			}
			band = lesson.Band
		}

		thetaBefore := progress.Theta
		betaCurrent := level.Beta
		if !betaCurrent.IsValid() {
			betaCurrent = progress.Beta
		}
		if !betaCurrent.IsValid() {
			betaCurrent = level.Difficulty.DefaultBeta()
		}

		progress.RecordOutcome(cmd.Success)
		newFailCount := progress.FailCount

		var summary *puzzle.LessonSummary
		if lessonScoped && h.summaries != nil {
			summary, err = h.summaries.GetLessonSummary(ctx, userID, lessonID)
			if err != nil {
				// Rules degrade to the no-history path; the attempt proceeds.
				h.log.Warn("lesson summary unavailable",
					logger.UserID(cmd.UserID), logger.LessonID(cmd.LessonID), logger.Err(err))
				summary = nil
			}
		}

		stats, err := r.Stats.GetOrCreateForUpdate(ctx, userID)
		if err != nil {
			return fmt.Errorf("failed to lock statistics: %w", err)
		}

		kernelRes, err := h.kernel.Evaluate(ctx, adaptive.EvaluateRequest{
			UserID:                userID,
			LevelID:               levelID,
			Theta:                 thetaBefore,
			BetaOld:               betaCurrent,
			RankName:              stats.RankName,
			CompletedAchievements: stats.CompletedAchievements,
			SuccessCount:          progress.SuccessCount,
			FailCount:             progress.FailCount,
			TargetPerformance:     h.kernelCfg.TargetPerformance,
			AdjustmentRate:        h.kernelCfg.AdjustmentRate,
			AutoSync:              true,
		})
		if err != nil || kernelRes == nil {
			// The chain already fell through every tier; finish with defaults.
			kernelRes = adaptive.DefaultEvaluateResult(adaptive.EvaluateRequest{
				Theta: thetaBefore, BetaOld: betaCurrent,
			}, level.Difficulty)
		}

		fctx := &config.FeatureContext{UserID: cmd.UserID}
		ruleRes := h.engine.Evaluate(adaptive.RuleInput{
			AlgorithmBeta:      kernelRes.Summary.NewBeta,
			CurrentBeta:        betaCurrent,
			LevelID:            levelID,
			CurrentLevelNumber: level.LevelNumber,
			LevelDifficulty:    level.Difficulty,
			LessonBand:         band,
			Success:            cmd.Success,
			AttemptTime:        cmd.AttemptTime,
			NewFailCount:       newFailCount,
			EnableRules:        h.flags == nil || h.flags.RuleOverridesEnabled(fctx),
			PureKernel:         h.flags != nil && h.flags.PureKernelEnabled(fctx),
			Summary:            summary,
		})

		// Next-variant selection: the target number is the next level on
		// success, the same level on a difficulty redirect.
		var nextLevel *puzzle.Level
		if lessonScoped {
			targetNumber := level.LevelNumber
			if cmd.Success {
				targetNumber++
			}
			nextLevel, err = findVariant(ctx, r.Levels, lessonID, targetNumber, ruleRes.Difficulty)
			if err != nil {
				return err
			}
			if err := r.Progress.SetPreferredDifficulty(ctx, userID, lessonID, ruleRes.Difficulty); err != nil {
				return fmt.Errorf("failed to store preferred difficulty: %w", err)
			}
		}

		if cmd.Success {
			times, err := r.Attempts.SuccessTimes(ctx, userID, levelID)
			if err != nil {
				return fmt.Errorf("failed to load success times: %w", err)
			}
			progress.UpdateTimings(append(times, cmd.AttemptTime))
		}

		progress.ApplyAdaptiveUpdate(kernelRes.IRT.AdjustedTheta, ruleRes.Beta)
		if err := r.Progress.Save(ctx, progress); err != nil {
			return fmt.Errorf("failed to save progress: %w", err)
		}

		// A failed attempt redirected to a sibling variant seeds the sibling's
		// progress so the ability estimate carries over.
		if !cmd.Success && nextLevel != nil && nextLevel.ID != levelID {
			sibling, err := r.Progress.GetForUpdate(ctx, userID, nextLevel.ID)
			if err != nil {
				return fmt.Errorf("failed to lock sibling progress: %w", err)
			}
			sibling.SeedFrom(progress)
			if err := r.Progress.Save(ctx, sibling); err != nil {
				return fmt.Errorf("failed to seed sibling progress: %w", err)
			}
		}

		if cmd.Success {
			if _, err := r.Completions.Upsert(ctx, &puzzle.Completion{
				UserID: userID, LevelID: levelID, CompletedAt: time.Now().UTC(),
			}); err != nil {
				return fmt.Errorf("failed to upsert completion: %w", err)
			}
		}

		attempt := &puzzle.Attempt{
			ID:             uuid.NewString(),
			UserID:         userID,
			LevelID:        levelID,
			LessonID:       lessonID,
			Success:        cmd.Success,
			AttemptTime:    cmd.AttemptTime,
			ThetaAtAttempt: thetaBefore,
			BetaAtAttempt:  betaCurrent,
			Difficulty:     level.Difficulty,
			IdempotencyKey: cmd.AttemptID,
			CodeSubmitted:  cmd.Code,
			CreatedAt:      time.Now().UTC(),
		}
		if err := r.Attempts.Insert(ctx, attempt); err != nil {
			return fmt.Errorf("failed to insert attempt: %w", err)
		}

		streakBefore := stats.CurrentStreak
		oldRank := stats.Rank()
		expGain := progression.AttemptExpGain(cmd.Success, lessonScoped, level.Difficulty, streakBefore)
		rankChanged := stats.ApplyAttempt(cmd.Success, expGain)

		owned, err := r.Achievements.OwnedTypes(ctx, userID)
		if err != nil {
			return fmt.Errorf("failed to load owned achievements: %w", err)
		}
		completedLevels, err := r.Completions.CountByUser(ctx, userID)
		if err != nil {
			return fmt.Errorf("failed to count completions: %w", err)
		}
		for _, def := range progression.CheckUnlocks(progression.CheckInput{
			Stats:           stats,
			CompletedLevels: completedLevels,
			Success:         cmd.Success,
			Owned:           owned,
		}) {
			inserted, err := r.Achievements.Insert(ctx, &progression.Achievement{
				UserID:     userID,
				Type:       def.Type,
				Title:      def.Title,
				ExpReward:  def.ExpReward,
				UnlockedAt: time.Now().UTC(),
			})
			if err != nil {
				return fmt.Errorf("failed to insert achievement: %w", err)
			}
			if !inserted {
				continue
			}
			if stats.RecordAchievement(def.ExpReward) {
				rankChanged = true
			}
			res.Achievements = append(res.Achievements, UnlockedAchievement{
				Type: string(def.Type), Title: def.Title, ExpReward: def.ExpReward,
			})
			pendingEvents = append(pendingEvents,
				shared.NewAchievementUnlockedEvent(cmd.UserID, string(def.Type), def.Title, def.ExpReward))
		}

		if err := r.Stats.Save(ctx, stats); err != nil {
			return fmt.Errorf("failed to save statistics: %w", err)
		}

		// Audit rows ride a savepoint: losing analytics never loses the attempt.
		if err := r.Optional(ctx, "adaptive_audit", func(ctx context.Context) error {
			if err := r.Audit.InsertLog(ctx, &adaptive.AdaptiveLog{
				ID:           uuid.NewString(),
				UserID:       userID,
				LevelID:      levelID,
				Success:      cmd.Success,
				ThetaBefore:  thetaBefore,
				ThetaAfter:   progress.Theta,
				BetaBefore:   betaCurrent,
				BetaAfter:    ruleRes.Beta,
				Probability:  kernelRes.IRT.Probability,
				KernelSource: kernelRes.Source,
				AppliedRule:  ruleRes.AppliedRule,
				AttemptTime:  cmd.AttemptTime,
				CreatedAt:    time.Now().UTC(),
			}); err != nil {
				return err
			}
			audit := &adaptive.DifficultyAudit{
				ID:             uuid.NewString(),
				UserID:         userID,
				LevelID:        levelID,
				LessonID:       lessonID,
				BetaBefore:     betaCurrent,
				BetaAfter:      ruleRes.Beta,
				DifficultyFrom: level.Difficulty,
				DifficultyTo:   ruleRes.Difficulty,
				AppliedRule:    ruleRes.AppliedRule,
				Evaluations:    ruleRes.Audit,
				CreatedAt:      time.Now().UTC(),
			}
			if audit.Changed() {
				return r.Audit.InsertDifficultyAudit(ctx, audit)
			}
			return nil
		}); err != nil {
			h.log.Warn("adaptive audit write failed",
				logger.UserID(cmd.UserID), logger.LevelID(cmd.LevelID), logger.Err(err))
		}

		if err := r.Optional(ctx, "session_counters", func(ctx context.Context) error {
			return r.Sessions.IncrementCounters(ctx, userID, cmd.Success)
		}); err != nil {
			h.log.Warn("session counter update failed", logger.UserID(cmd.UserID), logger.Err(err))
		}

		res.ExpGained = expGain
		res.TotalExp = stats.Exp
		res.RankName = stats.RankName
		res.RankChanged = rankChanged
		res.CurrentStreak = stats.CurrentStreak
		res.Theta = progress.Theta.Float64()
		res.Beta = progress.Beta.Float64()
		res.Difficulty = ruleRes.Difficulty
		res.Probability = kernelRes.IRT.Probability
		res.AppliedRule = ruleRes.AppliedRule
		res.KernelSource = kernelRes.Source
		if nextLevel != nil {
			res.NextLevelID = nextLevel.ID.String()
		}

		attemptObs = puzzle.Observation{
			LevelID:     levelID,
			LevelNumber: level.LevelNumber,
			Success:     cmd.Success,
			Difficulty:  level.Difficulty,
			AttemptTime: cmd.AttemptTime,
			CreatedAt:   attempt.CreatedAt,
		}

		pendingEvents = append(pendingEvents,
			shared.NewAttemptRecordedEvent(cmd.UserID, cmd.LevelID, cmd.LessonID,
				cmd.Success, expGain, ruleRes.Beta.Float64(), string(ruleRes.Difficulty), kernelRes.Source))
		if rankChanged {
			newRank := stats.Rank()
			pendingEvents = append(pendingEvents,
				shared.NewRankChangedEvent(cmd.UserID, oldRank.Name, newRank.Name, oldRank.Index, newRank.Index, stats.Exp))
		}
		if !cmd.Success && streakBefore >= 3 {
			pendingEvents = append(pendingEvents, shared.NewStreakBrokenEvent(cmd.UserID, streakBefore))
		}
		return nil
	})
	if err != nil {
		h.observeOutcome("rejected", start)
		return nil, err
	}

	if res.Duplicate {
		h.observeOutcome("duplicate", start)
		return res, nil
	}

	if lessonScoped && h.summaries != nil {
		h.summaries.Prime(userID, lessonID, attemptObs)
	}
	for _, ev := range pendingEvents {
		if err := h.events.Publish(ev); err != nil {
			h.log.Warn("event publish failed", logger.String("event", string(ev.EventType())), logger.Err(err))
		}
	}

	if h.metrics != nil {
		h.metrics.RuleApplied.WithLabelValues(res.AppliedRule).Inc()
	}
	outcome := "fail"
	if cmd.Success {
		outcome = "success"
	}
	h.observeOutcome(outcome, start)

	h.log.Info("attempt processed",
		logger.UserID(cmd.UserID),
		logger.LevelID(cmd.LevelID),
		logger.Bool("success", cmd.Success),
		logger.ExpDelta(res.ExpGained),
		logger.AppliedRule(res.AppliedRule),
		logger.KernelSource(res.KernelSource),
		logger.Latency(time.Since(start)))
	return res, nil
}

func (h *RecordAttemptHandler) observeOutcome(outcome string, start time.Time) {
	if h.metrics == nil {
		return
	}
	h.metrics.AttemptsProcessed.WithLabelValues(outcome).Inc()
	h.metrics.AttemptDuration.Observe(time.Since(start).Seconds())
}

// findVariant walks the difficulty fallback order and returns the first
// existing variant of the level number, or nil when the number has none
// (end of lesson).
func findVariant(ctx context.Context, levels puzzle.LevelRepository, lessonID shared.LessonID, number int, target shared.Difficulty) (*puzzle.Level, error) {
	for _, d := range puzzle.DifficultySearchOrder(target) {
		lvl, err := levels.FindVariant(ctx, lessonID, number, d)
		if err == nil {
			return lvl, nil
		}
		if !shared.IsNotFound(err) {
			return nil, fmt.Errorf("failed to find level variant: %w", err)
		}
	}
	return nil, nil
}
