package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeatureFlags_Defaults(t *testing.T) {
	ff := LoadFeatureFlags()

	assert.True(t, ff.RuleOverridesEnabled(nil))
	assert.False(t, ff.PureKernelEnabled(nil))
	assert.True(t, ff.IsEnabled(FeatureWarmKernel, nil))
	assert.False(t, ff.IsEnabled("no.such.feature", nil))
}

func TestFeatureFlags_EnvKeyOverride(t *testing.T) {
	t.Setenv("ENABLE_RULE_OVERRIDES", "false")
	t.Setenv("EXPERIMENT_PURE_DDA", "true")

	ff := LoadFeatureFlags()
	assert.False(t, ff.RuleOverridesEnabled(nil))
	assert.True(t, ff.PureKernelEnabled(nil))
}

func TestFeatureFlags_DerivedEnvKey(t *testing.T) {
	// battle.telemetry_relay has no explicit key, so the FEATURE_* form applies.
	t.Setenv("FEATURE_BATTLE_TELEMETRY_RELAY", "false")

	ff := LoadFeatureFlags()
	assert.False(t, ff.IsEnabled(FeatureBattleTelemetry, nil))
}

func TestFeatureFlags_PercentRollout(t *testing.T) {
	t.Setenv("ENABLE_SUMMARY_CACHE", "50")
	ff := LoadFeatureFlags()

	// Bucketing is consistent: the same user always gets the same answer.
	userCtx := &FeatureContext{UserID: "user-abc"}
	first := ff.IsEnabled(FeatureSummaryCache, userCtx)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, ff.IsEnabled(FeatureSummaryCache, userCtx))
	}

	// With enough users, both buckets are populated.
	var on, off int
	for _, id := range []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j", "k", "l", "m", "n", "o", "p"} {
		if ff.IsEnabled(FeatureSummaryCache, &FeatureContext{UserID: id}) {
			on++
		} else {
			off++
		}
	}
	assert.Positive(t, on)
	assert.Positive(t, off)
}

func TestFeatureFlags_UserOverrideWins(t *testing.T) {
	ff := LoadFeatureFlags()

	ff.SetUserOverride("user-1", FeaturePureKernel, true)
	assert.True(t, ff.PureKernelEnabled(&FeatureContext{UserID: "user-1"}))
	assert.False(t, ff.PureKernelEnabled(&FeatureContext{UserID: "user-2"}))

	ff.ClearUserOverrides("user-1")
	assert.False(t, ff.PureKernelEnabled(&FeatureContext{UserID: "user-1"}))
}

func TestFeatureFlags_AdminSeesEverything(t *testing.T) {
	ff := LoadFeatureFlags()
	assert.True(t, ff.PureKernelEnabled(&FeatureContext{UserID: "admin", IsAdmin: true}))
}

func TestFeatureFlags_SetRolloutPercent(t *testing.T) {
	ff := LoadFeatureFlags()

	require.NoError(t, ff.DisableFeature(FeatureSummaryCache))
	assert.False(t, ff.IsEnabled(FeatureSummaryCache, nil))

	require.NoError(t, ff.EnableFeature(FeatureSummaryCache))
	assert.True(t, ff.IsEnabled(FeatureSummaryCache, nil))

	assert.ErrorIs(t, ff.SetRolloutPercent("no.such.feature", 10), ErrFeatureNotFound)
	assert.ErrorIs(t, ff.SetRolloutPercent(FeatureSummaryCache, 150), ErrInvalidRolloutPercent)
}
