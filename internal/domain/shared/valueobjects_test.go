package shared

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewUserID(t *testing.T) {
	id, err := NewUserID("  11111111-2222-3333-4444-555555555555  ")
	require.NoError(t, err)
	assert.Equal(t, UserID("11111111-2222-3333-4444-555555555555"), id)

	// Uppercase input is normalized to lowercase.
	id, err = NewUserID("AAAAAAAA-BBBB-CCCC-DDDD-EEEEEEEEEEEE")
	require.NoError(t, err)
	assert.Equal(t, UserID("aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee"), id)

	_, err = NewUserID("not-a-uuid")
	assert.Error(t, err)
	_, err = NewUserID("")
	assert.Error(t, err)
}

func TestThetaClamp(t *testing.T) {
	assert.Equal(t, MinTheta, Theta(-10).Clamp())
	assert.Equal(t, MaxTheta, Theta(10).Clamp())
	assert.Equal(t, Theta(1.5), Theta(1.5).Clamp())
	assert.True(t, Theta(0).IsValid())
	assert.False(t, Theta(3.01).IsValid())
}

func TestBetaClamp(t *testing.T) {
	assert.Equal(t, MinBeta, Beta(0).Clamp())
	assert.Equal(t, MaxBeta, Beta(2).Clamp())
	assert.Equal(t, Beta(0.55), Beta(0.55).Clamp())
	assert.False(t, Beta(0.05).IsValid())
}

func TestDifficultyFromBeta(t *testing.T) {
	tests := []struct {
		beta Beta
		want Difficulty
	}{
		{0.1, DifficultyEasy},
		{0.29, DifficultyEasy},
		{0.3, DifficultyMedium},
		{0.45, DifficultyMedium},
		{0.59, DifficultyMedium},
		{0.6, DifficultyHard},
		{1.0, DifficultyHard},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DifficultyFromBeta(tt.beta), "beta %v", tt.beta)
	}
}

func TestDifficultyExpMultiplier(t *testing.T) {
	assert.Equal(t, 1.0, DifficultyEasy.ExpMultiplier())
	assert.Equal(t, 1.25, DifficultyMedium.ExpMultiplier())
	assert.Equal(t, 1.5, DifficultyHard.ExpMultiplier())
}

func TestDifficultyDefaultBeta(t *testing.T) {
	// Each representative beta must land back in its own band.
	for _, d := range []Difficulty{DifficultyEasy, DifficultyMedium, DifficultyHard} {
		assert.Equal(t, d, DifficultyFromBeta(d.DefaultBeta()))
	}
}

func TestParseDifficulty(t *testing.T) {
	d, err := ParseDifficulty("  HARD ")
	require.NoError(t, err)
	assert.Equal(t, DifficultyHard, d)

	_, err = ParseDifficulty("impossible")
	assert.Error(t, err)
}

func TestParseLessonBand(t *testing.T) {
	b, err := ParseLessonBand("intermediate")
	require.NoError(t, err)
	assert.Equal(t, BandIntermediate, b)

	_, err = ParseLessonBand("expert")
	assert.Error(t, err)
}
