package adaptive

import (
	"github.com/codearena/arena-server/internal/domain/puzzle"
	"github.com/codearena/arena-server/internal/domain/shared"
)

// Rule identifiers, stable across config changes. They are written to the
// difficulty audit log, so renaming one breaks analytics.
const (
	RuleBeginnerPromoteMedium    = "beginner_promote_medium"
	RuleBeginnerPromoteHard      = "beginner_promote_hard"
	RuleBeginnerReliefEasy       = "beginner_relief_easy"
	RuleIntermediatePromoteHard  = "intermediate_promote_hard"
	RuleIntermediatePromoteMed   = "intermediate_promote_medium"
	RuleIntermediateReliefMedium = "intermediate_relief_medium"
	RuleIntermediateHeavyStruggle = "intermediate_heavy_struggle"
	RuleIntermediatePerfectFloor = "intermediate_perfect_floor"
	RuleAdvancedDemoteMedium     = "advanced_demote_medium"
	RuleAdvancedDemoteEasy       = "advanced_demote_easy"
	RuleAdvancedPromoteHard      = "advanced_promote_hard"
	RuleAdvancedReliefMedium     = "advanced_relief_medium"
	RuleKernelPassthrough        = "kernel_passthrough"
)

// RuleConfig holds the tunable thresholds of the rule engine. The zero value
// is not usable; start from DefaultRuleConfig.
type RuleConfig struct {
	// Shared performance criteria.
	MaxErrors          int // a level "meets criteria" with at most this many fails
	TimeUnderSeconds   int // ...and an attempt time strictly under this
	MinAttemptsForRate int // insufficient-history guard for promotions

	// Intermediate heavy-struggle threshold (distinct from MaxErrors).
	HeavyStruggleErrors int

	// Consecutive-run windows per band.
	BeginnerMediumWindow int // Easy successes required for Medium
	BeginnerHardWindow   int // Easy successes required for Hard
	BeginnerMinLevel     int // minimum current level number for promotion
	IntermediateWindow   int // Medium successes required for Hard
	AdvancedMediumWindow int // struggling Hard attempts before Medium
	AdvancedEasyWindow   int // struggling Hard attempts before Easy
}

// DefaultRuleConfig returns the production thresholds.
func DefaultRuleConfig() RuleConfig {
	return RuleConfig{
		MaxErrors:            5,
		TimeUnderSeconds:     60,
		MinAttemptsForRate:   5,
		HeavyStruggleErrors:  7,
		BeginnerMediumWindow: 5,
		BeginnerHardWindow:   8,
		BeginnerMinLevel:     5,
		IntermediateWindow:   5,
		AdvancedMediumWindow: 5,
		AdvancedEasyWindow:   8,
	}
}

// RuleInput carries everything one evaluation needs. Summary may be nil when
// the attempt is not lesson-scoped; run-based rules then cannot fire.
type RuleInput struct {
	AlgorithmBeta      shared.Beta
	CurrentBeta        shared.Beta
	LevelID            shared.LevelID
	CurrentLevelNumber int
	LevelDifficulty    shared.Difficulty
	LessonBand         shared.LessonBand
	Success            bool
	AttemptTime        int
	NewFailCount       int
	EnableRules        bool
	PureKernel         bool
	Summary            *puzzle.LessonSummary
}

// AuditEntry records one rule evaluation for the difficulty audit trail.
type AuditEntry struct {
	Rule    string
	Applied bool
}

// RuleResult is the engine's decision.
type RuleResult struct {
	Beta        shared.Beta
	Difficulty  shared.Difficulty
	AppliedRule string
	Audit       []AuditEntry
}

// Engine evaluates the lesson-band rule overrides on top of the kernel's
// algorithm beta. Evaluation is deterministic: the same input always yields
// the same result.
type Engine struct {
	cfg RuleConfig
}

// NewEngine creates a rule engine with the given thresholds.
func NewEngine(cfg RuleConfig) *Engine {
	return &Engine{cfg: cfg}
}

// Evaluate applies the band rules in priority order and returns the first
// match; without a match the kernel beta passes through, clamped.
func (e *Engine) Evaluate(in RuleInput) RuleResult {
	if !in.EnableRules || in.PureKernel {
		return e.passthrough(in, nil)
	}

	var audit []AuditEntry
	var decided *RuleResult

	try := func(rule string, matched bool, difficulty shared.Difficulty) {
		applied := matched && decided == nil
		audit = append(audit, AuditEntry{Rule: rule, Applied: applied})
		if applied {
			decided = &RuleResult{
				Beta:        difficulty.DefaultBeta(),
				Difficulty:  difficulty,
				AppliedRule: rule,
			}
		}
	}

	switch in.LessonBand {
	case shared.BandBeginner:
		e.evaluateBeginner(in, try)
	case shared.BandIntermediate:
		e.evaluateIntermediate(in, try)
	case shared.BandAdvanced:
		e.evaluateAdvanced(in, try)
	}

	if decided != nil {
		decided.Audit = audit
		// A perfect intermediate run never lowers beta below the current one.
		if in.LessonBand == shared.BandIntermediate && in.Success && in.NewFailCount == 0 && decided.Beta < in.CurrentBeta {
			decided.Beta = in.CurrentBeta.Clamp()
			decided.Difficulty = shared.DifficultyFromBeta(decided.Beta)
			decided.Audit = append(decided.Audit, AuditEntry{Rule: RuleIntermediatePerfectFloor, Applied: true})
		}
		return *decided
	}
	return e.passthrough(in, audit)
}

// passthrough returns the clamped kernel beta.
func (e *Engine) passthrough(in RuleInput, audit []AuditEntry) RuleResult {
	beta := in.AlgorithmBeta.Clamp()
	if in.LessonBand == shared.BandIntermediate && in.Success && in.NewFailCount == 0 && beta < in.CurrentBeta {
		beta = in.CurrentBeta.Clamp()
		audit = append(audit, AuditEntry{Rule: RuleIntermediatePerfectFloor, Applied: true})
	}
	return RuleResult{
		Beta:        beta,
		Difficulty:  shared.DifficultyFromBeta(beta),
		AppliedRule: RuleKernelPassthrough,
		Audit:       append(audit, AuditEntry{Rule: RuleKernelPassthrough, Applied: true}),
	}
}

// meetsCriteria is the shared performance bar: fast enough and few errors.
func (e *Engine) meetsCriteria(attemptTime, failCount int) bool {
	return attemptTime < e.cfg.TimeUnderSeconds && failCount <= e.cfg.MaxErrors
}

// hasHistory is the insufficient-history guard for promotions.
func (e *Engine) hasHistory(in RuleInput) bool {
	return in.Summary != nil && in.Summary.TotalAttempts >= e.cfg.MinAttemptsForRate
}

// qualifyingRun checks whether the latest successes form a consecutive run
// of length k on the given difficulty, each meeting the performance bar.
func (e *Engine) qualifyingRun(in RuleInput, difficulty shared.Difficulty, k int) bool {
	if in.Summary == nil {
		return false
	}
	tail, ok := puzzle.ConsecutiveTail(in.Summary.LatestSuccessPerLevel(), k)
	if !ok {
		return false
	}
	for _, obs := range tail {
		if obs.Difficulty != difficulty {
			return false
		}
		if !e.meetsCriteria(obs.AttemptTime, in.Summary.FailCount(obs.LevelNumber)) {
			return false
		}
	}
	return true
}

// strugglingRun checks whether the latest attempts form a consecutive run of
// length k on the given difficulty, each FAILING the performance bar.
func (e *Engine) strugglingRun(in RuleInput, difficulty shared.Difficulty, k int) bool {
	if in.Summary == nil {
		return false
	}
	tail, ok := puzzle.ConsecutiveTail(in.Summary.LatestAttemptPerLevel(), k)
	if !ok {
		return false
	}
	for _, obs := range tail {
		if obs.Difficulty != difficulty {
			return false
		}
		if e.meetsCriteria(obs.AttemptTime, in.Summary.FailCount(obs.LevelNumber)) {
			return false
		}
	}
	return true
}

func (e *Engine) evaluateBeginner(in RuleInput, try func(string, bool, shared.Difficulty)) {
	promotable := in.Success && e.hasHistory(in)

	// The longer run wins when both promotion windows are satisfied.
	try(RuleBeginnerPromoteHard,
		promotable && e.qualifyingRun(in, shared.DifficultyEasy, e.cfg.BeginnerHardWindow),
		shared.DifficultyHard)

	try(RuleBeginnerPromoteMedium,
		promotable &&
			in.CurrentLevelNumber >= e.cfg.BeginnerMinLevel &&
			e.qualifyingRun(in, shared.DifficultyEasy, e.cfg.BeginnerMediumWindow),
		shared.DifficultyMedium)

	try(RuleBeginnerReliefEasy,
		in.Success &&
			in.LevelDifficulty != shared.DifficultyEasy &&
			!e.meetsCriteria(in.AttemptTime, in.NewFailCount),
		shared.DifficultyEasy)
}

func (e *Engine) evaluateIntermediate(in RuleInput, try func(string, bool, shared.Difficulty)) {
	try(RuleIntermediatePromoteHard,
		in.Success && e.hasHistory(in) &&
			e.qualifyingRun(in, shared.DifficultyMedium, e.cfg.IntermediateWindow),
		shared.DifficultyHard)

	try(RuleIntermediatePromoteMed,
		in.Success &&
			in.LevelDifficulty == shared.DifficultyEasy &&
			e.meetsCriteria(in.AttemptTime, in.NewFailCount),
		shared.DifficultyMedium)

	try(RuleIntermediateReliefMedium,
		in.Success &&
			in.LevelDifficulty == shared.DifficultyHard &&
			!e.meetsCriteria(in.AttemptTime, in.NewFailCount),
		shared.DifficultyMedium)

	heavy := in.Success && in.NewFailCount >= e.cfg.HeavyStruggleErrors
	heavyTarget := shared.DifficultyEasy
	if in.LevelDifficulty == shared.DifficultyHard {
		heavyTarget = shared.DifficultyMedium
	}
	try(RuleIntermediateHeavyStruggle, heavy, heavyTarget)
}

func (e *Engine) evaluateAdvanced(in RuleInput, try func(string, bool, shared.Difficulty)) {
	// The longer struggling run wins when both demotion windows match.
	try(RuleAdvancedDemoteEasy,
		e.strugglingRun(in, shared.DifficultyHard, e.cfg.AdvancedEasyWindow),
		shared.DifficultyEasy)

	try(RuleAdvancedDemoteMedium,
		e.strugglingRun(in, shared.DifficultyHard, e.cfg.AdvancedMediumWindow),
		shared.DifficultyMedium)

	try(RuleAdvancedPromoteHard,
		in.Success &&
			in.LevelDifficulty != shared.DifficultyHard &&
			e.meetsCriteria(in.AttemptTime, in.NewFailCount),
		shared.DifficultyHard)

	try(RuleAdvancedReliefMedium,
		in.LevelDifficulty == shared.DifficultyHard &&
			!e.meetsCriteria(in.AttemptTime, in.NewFailCount),
		shared.DifficultyMedium)
}
