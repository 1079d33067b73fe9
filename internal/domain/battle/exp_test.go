package battle

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWinExp_Ranked(t *testing.T) {
	// 200 base plus 50 per defeated opponent.
	assert.Equal(t, 300, WinExp(TypeRanked, 3, 0))
	assert.Equal(t, 350, WinExp(TypeRanked, 4, 0))
	assert.Equal(t, 400, WinExp(TypeRanked, 5, 0))

	// Degenerate participant counts never go below the base.
	assert.Equal(t, 200, WinExp(TypeRanked, 1, 0))
	assert.Equal(t, 200, WinExp(TypeRanked, 0, 0))
}

func TestWinExp_Challenge(t *testing.T) {
	assert.Equal(t, 300, WinExp(TypeChallenge, 2, 150))
	// A zero wager falls back to the default stake.
	assert.Equal(t, 2*DefaultWager, WinExp(TypeChallenge, 2, 0))
}

func TestLossExp(t *testing.T) {
	assert.Equal(t, 50, LossExp(TypeRanked, 0))
	assert.Equal(t, 50, LossExp(TypeRanked, 999), "ranked loss ignores wager")
	assert.Equal(t, 150, LossExp(TypeChallenge, 150))
	assert.Equal(t, DefaultWager, LossExp(TypeChallenge, 0))
}
