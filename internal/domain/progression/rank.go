// Package progression implements the progression ledger: EXP accounting,
// rank derivation, streaks, and the achievement catalog. Rank is always a
// pure function of exp; every write path recomputes it.
package progression

import (
	"math"
)

// Exp bounds. The ledger clamps every write into this range.
const (
	MinExp = 0
	MaxExp = 10000
)

// LessonSuccessExp is the flat exp awarded for a successful lesson-scoped
// attempt. It overrides the difficulty formula whenever lesson_id is set.
const LessonSuccessExp = 20

// BaseExpGain is the base of the difficulty exp formula.
const BaseExpGain = 50

// StreakBonusStep is the per-streak multiplier increment (5% per streak).
const StreakBonusStep = 0.05

// HintExpCost is debited from the ledger for each hint purchase.
const HintExpCost = 100

// RankCount is the number of rank tiers.
const RankCount = 10

// rankNames lists the ten tiers in ascending order.
var rankNames = [RankCount]string{
	"novice",
	"apprentice",
	"bronze_coder",
	"silver_coder",
	"gold_developer",
	"platinum_engineer",
	"diamond_hacker",
	"master_coder",
	"grandmaster_dev",
	"code_overlord",
}

// rankBiases are per-tier performance biases fed into the adaptive kernel's
// target-performance calculation. Lower tiers get an easier target.
var rankBiases = [RankCount]float64{
	-0.05, -0.05, -0.03, 0, 0, 0.03, 0.03, 0.05, 0.06, 0.07,
}

// rankCurveExponent shapes the exp-to-rank curve: the threshold for tier i
// (on normalized exp) is (i/9)^1.6.
const rankCurveExponent = 1.6

// Rank is a derived tier. It carries no identity of its own: two users with
// the same exp always have the same Rank.
type Rank struct {
	Name  string
	Index int
	Bias  float64
}

// RankThreshold returns the minimum normalized exp for tier index i.
func RankThreshold(i int) float64 {
	if i <= 0 {
		return 0
	}
	if i >= RankCount {
		i = RankCount - 1
	}
	return math.Pow(float64(i)/float64(RankCount-1), rankCurveExponent)
}

// RankFromExp derives the rank tier for an exp total. Exp outside the ledger
// bounds is clamped first, so the result is always a valid tier.
func RankFromExp(exp int) Rank {
	norm := NormalizeExp(ClampExp(exp))
	for i := RankCount - 1; i >= 0; i-- {
		if norm >= RankThreshold(i) {
			return Rank{Name: rankNames[i], Index: i, Bias: rankBiases[i]}
		}
	}
	return Rank{Name: rankNames[0], Index: 0, Bias: rankBiases[0]}
}

// RankNames returns the tier names in ascending order.
func RankNames() []string {
	names := make([]string, RankCount)
	copy(names, rankNames[:])
	return names
}

// ClampExp bounds an exp total to [MinExp, MaxExp].
func ClampExp(exp int) int {
	if exp < MinExp {
		return MinExp
	}
	if exp > MaxExp {
		return MaxExp
	}
	return exp
}

// NormalizeExp maps a clamped exp total onto [0, 1].
func NormalizeExp(exp int) float64 {
	return float64(ClampExp(exp)) / float64(MaxExp)
}
