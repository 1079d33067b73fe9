// Package kernel implements the IRT/DDA computation clients: the warm HTTP
// service, the subprocess fallback, and the chain that degrades to in-process
// defaults so an attempt can always complete.
package kernel

import (
	"github.com/codearena/arena-server/internal/domain/adaptive"
	"github.com/codearena/arena-server/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// WIRE DTOs
// ══════════════════════════════════════════════════════════════════════════════

// evaluateRequestDTO is the kernel's evaluate input. Field names are the
// kernel's wire contract; do not rename.
type evaluateRequestDTO struct {
	UserID                string  `json:"user_id"`
	LevelID               string  `json:"level_id"`
	Theta                 float64 `json:"theta"`
	BetaOld               float64 `json:"beta_old"`
	RankName              string  `json:"rank_name"`
	CompletedAchievements int     `json:"completed_achievements"`
	SuccessCount          int     `json:"success_count"`
	FailCount             int     `json:"fail_count"`
	TargetPerformance     float64 `json:"target_performance"`
	AdjustmentRate        float64 `json:"adjustment_rate"`
	AutoSync              bool    `json:"auto_sync"`
}

// evaluateResponseDTO mirrors the kernel's mixed-case response blocks.
type evaluateResponseDTO struct {
	Summary struct {
		NewBeta              float64 `json:"New_Beta"`
		NextPuzzleDifficulty string  `json:"Next_Puzzle_Difficulty"`
		StudentSkill         float64 `json:"Student_Skill"`
		ActualSuccessRate    float64 `json:"Actual_Success_Rate"`
		ActualFailRate       float64 `json:"Actual_Fail_Rate"`
	} `json:"summary"`
	IRTResult struct {
		AdjustedTheta   float64 `json:"adjusted_theta"`
		Probability     float64 `json:"probability"`
		ConfidenceIndex float64 `json:"confidence_index"`
	} `json:"IRT_Result"`
	DDAResult struct {
		BetaNew           float64 `json:"beta_new"`
		AdjustmentApplied bool    `json:"adjustment_applied"`
		Momentum          float64 `json:"momentum"`
		BehaviorWeight    float64 `json:"behavior_weight"`
	} `json:"DDA_Result"`
}

type clusterPlayerDTO struct {
	UserID string  `json:"user_id"`
	Theta  float64 `json:"theta"`
	Beta   float64 `json:"beta"`
}

type clusterRequestDTO struct {
	Players       []clusterPlayerDTO `json:"players"`
	GroupSize     int                `json:"group_size"`
	MinMatchScore float64            `json:"min_match_score"`
}

type clusterResponseDTO struct {
	UserIDs    []string `json:"user_ids"`
	MatchScore float64  `json:"match_score"`
	ClusterID  string   `json:"cluster_id"`
}

// ══════════════════════════════════════════════════════════════════════════════
// MAPPING
// ══════════════════════════════════════════════════════════════════════════════

func toEvaluateDTO(req adaptive.EvaluateRequest) evaluateRequestDTO {
	return evaluateRequestDTO{
		UserID:                req.UserID.String(),
		LevelID:               req.LevelID.String(),
		Theta:                 float64(req.Theta),
		BetaOld:               float64(req.BetaOld),
		RankName:              req.RankName,
		CompletedAchievements: req.CompletedAchievements,
		SuccessCount:          req.SuccessCount,
		FailCount:             req.FailCount,
		TargetPerformance:     req.TargetPerformance,
		AdjustmentRate:        req.AdjustmentRate,
		AutoSync:              req.AutoSync,
	}
}

func fromEvaluateDTO(dto evaluateResponseDTO, source string) *adaptive.EvaluateResult {
	difficulty, err := shared.ParseDifficulty(dto.Summary.NextPuzzleDifficulty)
	if err != nil {
		difficulty = shared.DifficultyFromBeta(shared.Beta(dto.Summary.NewBeta).Clamp())
	}
	return &adaptive.EvaluateResult{
		Summary: adaptive.EvaluateSummary{
			NewBeta:              shared.Beta(dto.Summary.NewBeta).Clamp(),
			NextPuzzleDifficulty: difficulty,
			StudentSkill:         shared.Theta(dto.Summary.StudentSkill).Clamp(),
			ActualSuccessRate:    dto.Summary.ActualSuccessRate,
			ActualFailRate:       dto.Summary.ActualFailRate,
		},
		IRT: adaptive.IRTResult{
			AdjustedTheta:   shared.Theta(dto.IRTResult.AdjustedTheta).Clamp(),
			Probability:     dto.IRTResult.Probability,
			ConfidenceIndex: dto.IRTResult.ConfidenceIndex,
		},
		DDA: adaptive.DDAResult{
			BetaNew:           shared.Beta(dto.DDAResult.BetaNew).Clamp(),
			AdjustmentApplied: dto.DDAResult.AdjustmentApplied,
			Momentum:          dto.DDAResult.Momentum,
			BehaviorWeight:    dto.DDAResult.BehaviorWeight,
		},
		Source: source,
	}
}

func toClusterDTO(req adaptive.ClusterRequest) clusterRequestDTO {
	players := make([]clusterPlayerDTO, 0, len(req.Players))
	for _, p := range req.Players {
		players = append(players, clusterPlayerDTO{
			UserID: p.UserID.String(),
			Theta:  float64(p.Theta),
			Beta:   float64(p.Beta),
		})
	}
	return clusterRequestDTO{
		Players:       players,
		GroupSize:     req.GroupSize,
		MinMatchScore: req.MinMatchScore,
	}
}

func fromClusterDTO(dto clusterResponseDTO, source string) *adaptive.ClusterResult {
	ids := make([]shared.UserID, 0, len(dto.UserIDs))
	for _, id := range dto.UserIDs {
		ids = append(ids, shared.UserID(id))
	}
	return &adaptive.ClusterResult{
		UserIDs:    ids,
		MatchScore: dto.MatchScore,
		ClusterID:  dto.ClusterID,
		Source:     source,
	}
}
