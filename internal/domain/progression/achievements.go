package progression

import (
	"fmt"
	"time"

	"github.com/codearena/arena-server/internal/domain/shared"
)

// AchievementType identifies one catalog entry. Unlocks are unique per
// (user, type).
type AchievementType string

// Fixed catalog identifiers.
const (
	AchievementFirstPuzzle AchievementType = "first_puzzle"
)

// Milestone steps for the generated catalog entries.
var (
	levelMilestones = []int{5, 10, 15, 25, 35, 50, 75, 100, 200, 250, 500, 1000}
	streakMilestones = []int{3, 5, 7, 10, 15, 20, 30}
	rankExpMilestones = []int{1050, 1920, 2960, 4140, 5440, 6860}
)

// LevelAchievementType returns the identifier for a level-count milestone.
func LevelAchievementType(count int) AchievementType {
	return AchievementType(fmt.Sprintf("levels_%d", count))
}

// StreakAchievementType returns the identifier for a streak milestone.
func StreakAchievementType(length int) AchievementType {
	return AchievementType(fmt.Sprintf("streak_%d", length))
}

// RankAchievementType returns the identifier for a rank exp milestone.
func RankAchievementType(threshold int) AchievementType {
	return AchievementType(fmt.Sprintf("rank_%d", threshold))
}

// Definition describes one catalog entry: a stable identifier, display data,
// and a fixed exp reward credited exactly once on unlock.
type Definition struct {
	Type      AchievementType
	Title     string
	Description string
	ExpReward int
}

// Achievement is a per-user unlock record, append-only with one row per type.
type Achievement struct {
	UserID     shared.UserID
	Type       AchievementType
	Title      string
	ExpReward  int
	UnlockedAt time.Time
}

// Catalog returns every achievement definition in evaluation order.
func Catalog() []Definition {
	defs := []Definition{
		{Type: AchievementFirstPuzzle, Title: "First Steps", Description: "Solve your first puzzle", ExpReward: 25},
	}
	for _, n := range levelMilestones {
		defs = append(defs, Definition{
			Type:        LevelAchievementType(n),
			Title:       fmt.Sprintf("Level Grinder %d", n),
			Description: fmt.Sprintf("Complete %d levels", n),
			ExpReward:   milestoneReward(n),
		})
	}
	for _, n := range streakMilestones {
		defs = append(defs, Definition{
			Type:        StreakAchievementType(n),
			Title:       fmt.Sprintf("On Fire %d", n),
			Description: fmt.Sprintf("Reach a %d-success streak", n),
			ExpReward:   10 * n,
		})
	}
	for _, threshold := range rankExpMilestones {
		rank := RankFromExp(threshold)
		defs = append(defs, Definition{
			Type:        RankAchievementType(threshold),
			Title:       fmt.Sprintf("Rank Up: %s", rank.Name),
			Description: fmt.Sprintf("Reach %d exp", threshold),
			ExpReward:   50,
		})
	}
	return defs
}

// milestoneReward scales level-count rewards with the milestone size.
func milestoneReward(n int) int {
	switch {
	case n < 50:
		return 25
	case n < 200:
		return 50
	default:
		return 100
	}
}

// CheckInput is the ledger snapshot the achievement check runs against. The
// snapshot must already reflect the attempt being processed.
type CheckInput struct {
	Stats           *Statistics
	CompletedLevels int
	Success         bool
	Owned           map[AchievementType]bool
}

// CheckUnlocks returns every catalog entry newly earned by the snapshot, in
// catalog order. It never returns an already-owned type, so awarding the
// result is idempotent as long as the unique (user, type) index holds.
func CheckUnlocks(in CheckInput) []Definition {
	if in.Stats == nil {
		return nil
	}
	owned := in.Owned
	if owned == nil {
		owned = map[AchievementType]bool{}
	}

	var unlocked []Definition
	earn := func(def Definition, qualifies bool) {
		if qualifies && !owned[def.Type] {
			unlocked = append(unlocked, def)
			owned[def.Type] = true
		}
	}

	for _, def := range Catalog() {
		switch {
		case def.Type == AchievementFirstPuzzle:
			earn(def, in.Success && in.Stats.TotalSuccessCount >= 1)
		case isMilestoneType(def.Type, "levels_"):
			earn(def, in.CompletedLevels >= milestoneValue(def.Type, "levels_"))
		case isMilestoneType(def.Type, "streak_"):
			earn(def, in.Stats.CurrentStreak >= milestoneValue(def.Type, "streak_"))
		case isMilestoneType(def.Type, "rank_"):
			// Rank milestones fire exactly at the exp threshold, not below.
			earn(def, in.Stats.Exp >= milestoneValue(def.Type, "rank_"))
		}
	}
	return unlocked
}

func isMilestoneType(t AchievementType, prefix string) bool {
	return len(t) > len(prefix) && string(t[:len(prefix)]) == prefix
}

func milestoneValue(t AchievementType, prefix string) int {
	var v int
	fmt.Sscanf(string(t[len(prefix):]), "%d", &v)
	return v
}
