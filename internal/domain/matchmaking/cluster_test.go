package matchmaking

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codearena/arena-server/internal/domain/battle"
	"github.com/codearena/arena-server/internal/domain/shared"
)

func ticket(id string, theta shared.Theta, beta shared.Beta) Ticket {
	return Ticket{UserID: shared.UserID(id), Theta: theta, Beta: beta}
}

func TestCompatibility(t *testing.T) {
	a := ticket("a", 0, 0.5)

	assert.Equal(t, 1.0, Compatibility(a, a), "identical skill is a perfect match")

	// Opposite corners of the normalized (theta, beta) space score zero.
	lo := ticket("lo", shared.MinTheta, shared.MinBeta)
	hi := ticket("hi", shared.MaxTheta, shared.MaxBeta)
	assert.InDelta(t, 0.0, Compatibility(lo, hi), 1e-9)

	// Symmetry.
	b := ticket("b", 1.2, 0.7)
	assert.Equal(t, Compatibility(a, b), Compatibility(b, a))
}

func TestGroupScore(t *testing.T) {
	assert.Zero(t, GroupScore(nil))
	assert.Zero(t, GroupScore([]Ticket{ticket("solo", 0, 0.5)}))

	same := []Ticket{ticket("a", 0, 0.5), ticket("b", 0, 0.5), ticket("c", 0, 0.5)}
	assert.Equal(t, 1.0, GroupScore(same))
}

func TestSelectGroup(t *testing.T) {
	// Three tightly clustered players plus one outlier: the best trio must
	// exclude the outlier.
	candidates := []Ticket{
		ticket("a", 0.1, 0.5),
		ticket("outlier", 2.9, 1.0),
		ticket("b", 0.0, 0.5),
		ticket("c", -0.1, 0.45),
	}

	sel, ok := SelectGroup(candidates, 3, PhaseOneMinScore)
	require.True(t, ok)
	require.Len(t, sel.UserIDs, 3)
	assert.NotContains(t, sel.UserIDs, shared.UserID("outlier"))
	assert.Greater(t, sel.MatchScore, PhaseOneMinScore)
	assert.NotEmpty(t, sel.ClusterID)
}

func TestSelectGroup_NotEnoughCandidates(t *testing.T) {
	candidates := []Ticket{ticket("a", 0, 0.5), ticket("b", 0, 0.5)}
	_, ok := SelectGroup(candidates, 3, PhaseOneMinScore)
	assert.False(t, ok)

	_, ok = SelectGroup(candidates, 1, PhaseOneMinScore)
	assert.False(t, ok, "group size below two is rejected")
}

func TestSelectGroup_BelowMinScore(t *testing.T) {
	// Players spread across the whole skill space cannot clear the gate.
	candidates := []Ticket{
		ticket("a", shared.MinTheta, shared.MinBeta),
		ticket("b", shared.MaxTheta, shared.MaxBeta),
		ticket("c", shared.MinTheta, shared.MaxBeta),
	}
	_, ok := SelectGroup(candidates, 3, 0.99)
	assert.False(t, ok)
}

func TestClampMatchSize(t *testing.T) {
	assert.Equal(t, battle.MinMatchSize, ClampMatchSize(0))
	assert.Equal(t, battle.MinMatchSize, ClampMatchSize(2))
	assert.Equal(t, 4, ClampMatchSize(4))
	assert.Equal(t, battle.MaxMatchSize, ClampMatchSize(12))
}

func TestGroupKeys(t *testing.T) {
	tk := Ticket{
		UserID:    "a",
		MatchType: battle.TypeRanked,
		Language:  "go",
		MatchSize: 3,
		RankName:  "silver_coder",
	}

	p1 := tk.PhaseOneKey()
	assert.Equal(t, "silver_coder", p1.Rank)

	p2 := tk.PhaseTwoKey()
	assert.Empty(t, p2.Rank, "phase two drops the rank dimension")
	assert.Equal(t, p1.MatchType, p2.MatchType)
	assert.Equal(t, p1.Language, p2.Language)
	assert.Equal(t, p1.MatchSize, p2.MatchSize)

	// Same-rank players share a phase-one bucket, different ranks do not.
	other := tk
	other.RankName = "novice"
	assert.NotEqual(t, tk.PhaseOneKey(), other.PhaseOneKey())
	assert.Equal(t, tk.PhaseTwoKey(), other.PhaseTwoKey())
}

func TestToClusterRequest(t *testing.T) {
	candidates := []Ticket{ticket("a", 0.5, 0.4), ticket("b", -0.5, 0.6)}
	req := ToClusterRequest(candidates, 3, PhaseOneMinScore)
	require.Len(t, req.Players, 2)
	assert.Equal(t, shared.UserID("a"), req.Players[0].UserID)
	assert.Equal(t, shared.Theta(0.5), req.Players[0].Theta)
	assert.Equal(t, 3, req.GroupSize)
	assert.Equal(t, PhaseOneMinScore, req.MinMatchScore)
}
