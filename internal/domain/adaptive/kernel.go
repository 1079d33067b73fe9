// Package adaptive defines the contract with the remote IRT/DDA computation
// kernel and the lesson-band rule engine layered on top of its output.
package adaptive

import (
	"context"

	"github.com/codearena/arena-server/internal/domain/shared"
)

// Kernel result sources, in fallback order.
const (
	SourceWarmService = "warm_service"
	SourceSubprocess  = "subprocess"
	SourceDefaults    = "defaults"
)

// EvaluateRequest is the input to one IRT/DDA evaluation.
type EvaluateRequest struct {
	UserID                shared.UserID
	LevelID               shared.LevelID
	Theta                 shared.Theta
	BetaOld               shared.Beta
	RankName              string
	CompletedAchievements int
	SuccessCount          int
	FailCount             int
	TargetPerformance     float64
	AdjustmentRate        float64
	AutoSync              bool
}

// IRTResult is the item-response-theory half of the kernel output.
type IRTResult struct {
	AdjustedTheta   shared.Theta
	Probability     float64
	ConfidenceIndex float64
}

// DDAResult is the dynamic-difficulty-adjustment half of the kernel output.
type DDAResult struct {
	BetaNew           shared.Beta
	AdjustmentApplied bool
	Momentum          float64
	BehaviorWeight    float64
}

// EvaluateSummary is the roll-up block the kernel returns alongside the two
// detailed results.
type EvaluateSummary struct {
	NewBeta              shared.Beta
	NextPuzzleDifficulty shared.Difficulty
	StudentSkill         shared.Theta
	ActualSuccessRate    float64
	ActualFailRate       float64
}

// EvaluateResult is the full kernel response plus the source tier that
// produced it.
type EvaluateResult struct {
	Summary EvaluateSummary
	IRT     IRTResult
	DDA     DDAResult
	Source  string
}

// ClusterPlayer is one matchmaking candidate as the skill matcher sees it.
type ClusterPlayer struct {
	UserID shared.UserID
	Theta  shared.Theta
	Beta   shared.Beta
}

// ClusterRequest asks the kernel to pick the most compatible sub-group.
type ClusterRequest struct {
	Players       []ClusterPlayer
	GroupSize     int
	MinMatchScore float64
}

// ClusterResult is the accepted sub-group with its compatibility score.
type ClusterResult struct {
	UserIDs    []shared.UserID
	MatchScore float64
	ClusterID  string
	Source     string
}

// Kernel is the remote IRT/DDA computation service. Implementations chain
// warm HTTP service, subprocess, and in-process defaults; the attempt
// pipeline must always receive a usable result.
type Kernel interface {
	Evaluate(ctx context.Context, req EvaluateRequest) (*EvaluateResult, error)
	ClusterPlayers(ctx context.Context, req ClusterRequest) (*ClusterResult, error)
}

// DefaultEvaluateResult is the last-resort kernel output: keep the current
// difficulty and ability, report an uninformative probability.
func DefaultEvaluateResult(req EvaluateRequest, currentDifficulty shared.Difficulty) *EvaluateResult {
	return &EvaluateResult{
		Summary: EvaluateSummary{
			NewBeta:              req.BetaOld.Clamp(),
			NextPuzzleDifficulty: currentDifficulty,
			StudentSkill:         req.Theta.Clamp(),
		},
		IRT: IRTResult{
			AdjustedTheta: req.Theta.Clamp(),
			Probability:   0.5,
		},
		DDA: DDAResult{
			BetaNew: req.BetaOld.Clamp(),
		},
		Source: SourceDefaults,
	}
}
