package config

import (
	"hash/fnv"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// FeatureFlags manages feature toggles and experiments.
// Supports gradual rollout, per-user overrides, and time-based activation.
type FeatureFlags struct {
	mu sync.RWMutex

	// Core features
	features map[string]*Feature

	// Override rules (for testing/debugging)
	userOverrides map[string]map[string]bool // userID -> feature -> enabled
}

// Feature represents a single feature flag.
type Feature struct {
	Name        string
	Description string
	Enabled     bool

	// EnvKey overrides the derived FEATURE_* environment key. Used for flags
	// whose names are part of the deployment contract.
	EnvKey string

	// Rollout percentage (0-100)
	// Users are assigned based on hash of their ID
	RolloutPercent int

	// Time-based activation
	EnabledFrom  *time.Time
	EnabledUntil *time.Time
}

// FeatureContext provides context for feature flag evaluation.
type FeatureContext struct {
	UserID  string
	IsAdmin bool
}

// Predefined feature flag names.
const (
	// === Adaptive engine ===
	FeatureRuleOverrides = "adaptive.rule_overrides" // lesson-band rules on top of the kernel
	FeaturePureKernel    = "adaptive.pure_kernel"    // experiment: bypass all rule overrides
	FeatureWarmKernel    = "adaptive.warm_kernel"    // call the warm HTTP kernel first
	FeatureSummaryCache  = "adaptive.summary_cache"  // per-lesson performance window cache

	// === Matchmaking / battles ===
	FeatureCrossRankMatching = "matchmaking.cross_rank" // phase-2 lenient clustering
	FeatureBattleTelemetry   = "battle.telemetry_relay" // relay code-editing telemetry

	// === Leaderboard ===
	FeatureLeaderboardLiveFallback = "leaderboard.live_fallback" // live count past snapshot depth
)

// LoadFeatureFlags loads feature flags from environment variables.
func LoadFeatureFlags() *FeatureFlags {
	ff := &FeatureFlags{
		features:      make(map[string]*Feature),
		userOverrides: make(map[string]map[string]bool),
	}

	// Initialize all features with defaults
	ff.initializeDefaults()

	// Load overrides from environment
	ff.loadFromEnvironment()

	return ff
}

// initializeDefaults sets up all features with default values.
func (ff *FeatureFlags) initializeDefaults() {
	ff.features[FeatureRuleOverrides] = &Feature{
		Name:           FeatureRuleOverrides,
		Description:    "Apply lesson-band rule overrides to kernel output",
		EnvKey:         "ENABLE_RULE_OVERRIDES",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeaturePureKernel] = &Feature{
		Name:           FeaturePureKernel,
		Description:    "Experiment: trust the kernel beta unmodified",
		EnvKey:         "EXPERIMENT_PURE_DDA",
		Enabled:        false,
		RolloutPercent: 0,
	}

	ff.features[FeatureWarmKernel] = &Feature{
		Name:           FeatureWarmKernel,
		Description:    "Call the warm HTTP kernel before subprocess fallback",
		EnvKey:         "ENABLE_WARM_ALGO_SERVICE",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureSummaryCache] = &Feature{
		Name:           FeatureSummaryCache,
		Description:    "Cache per-lesson performance summaries",
		EnvKey:         "ENABLE_SUMMARY_CACHE",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureCrossRankMatching] = &Feature{
		Name:           FeatureCrossRankMatching,
		Description:    "Run the lenient cross-rank clustering pass",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureBattleTelemetry] = &Feature{
		Name:           FeatureBattleTelemetry,
		Description:    "Relay code-editing telemetry to opponents",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureLeaderboardLiveFallback] = &Feature{
		Name:           FeatureLeaderboardLiveFallback,
		Description:    "Compute live standings past the snapshot depth",
		Enabled:        true,
		RolloutPercent: 100,
	}
}

// loadFromEnvironment loads feature flag overrides from env vars.
// Format: <KEY>=true|false|<percent>
// Example: ENABLE_SUMMARY_CACHE=false
// Example: FEATURE_BATTLE_TELEMETRY_RELAY=50 (50% rollout)
func (ff *FeatureFlags) loadFromEnvironment() {
	for name, feature := range ff.features {
		envKey := feature.EnvKey
		if envKey == "" {
			envKey = featureNameToEnvKey(name)
		}
		if val := os.Getenv(envKey); val != "" {
			// Try parsing as boolean
			if b, err := strconv.ParseBool(val); err == nil {
				feature.Enabled = b
				if b {
					feature.RolloutPercent = 100
				} else {
					feature.RolloutPercent = 0
				}
				continue
			}

			// Try parsing as percentage
			if p, err := strconv.Atoi(val); err == nil && p >= 0 && p <= 100 {
				feature.Enabled = p > 0
				feature.RolloutPercent = p
			}
		}
	}
}

// featureNameToEnvKey converts feature name to environment variable key.
// "battle.telemetry_relay" -> "FEATURE_BATTLE_TELEMETRY_RELAY"
func featureNameToEnvKey(name string) string {
	key := strings.ToUpper(name)
	key = strings.ReplaceAll(key, ".", "_")
	return "FEATURE_" + key
}

// IsEnabled checks if a feature is enabled for the given context.
func (ff *FeatureFlags) IsEnabled(featureName string, ctx *FeatureContext) bool {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	// Check user overrides first
	if ctx != nil && ctx.UserID != "" {
		if userOverrides, ok := ff.userOverrides[ctx.UserID]; ok {
			if enabled, ok := userOverrides[featureName]; ok {
				return enabled
			}
		}
	}

	feature, ok := ff.features[featureName]
	if !ok {
		return false
	}

	// Admin users get all features
	if ctx != nil && ctx.IsAdmin {
		return true
	}

	// Check if feature is enabled at all
	if !feature.Enabled {
		return false
	}

	// Check time-based activation
	now := time.Now()
	if feature.EnabledFrom != nil && now.Before(*feature.EnabledFrom) {
		return false
	}
	if feature.EnabledUntil != nil && now.After(*feature.EnabledUntil) {
		return false
	}

	// Check rollout percentage
	if feature.RolloutPercent < 100 && ctx != nil && ctx.UserID != "" {
		return ff.isInRollout(ctx.UserID, featureName, feature.RolloutPercent)
	}

	return feature.RolloutPercent > 0
}

// isInRollout determines if a user is in the rollout percentage.
// Uses consistent hashing so users stay in their bucket.
func (ff *FeatureFlags) isInRollout(userID, featureName string, percent int) bool {
	// Create a consistent hash for this user+feature combination
	h := fnv.New32a()
	h.Write([]byte(featureName))
	h.Write([]byte(userID))
	hash := h.Sum32()

	// Map to 0-99 range
	bucket := int(hash % 100)

	return bucket < percent
}

// SetUserOverride sets a feature override for a specific user.
// Useful for testing and debugging.
func (ff *FeatureFlags) SetUserOverride(userID, featureName string, enabled bool) {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	if _, ok := ff.userOverrides[userID]; !ok {
		ff.userOverrides[userID] = make(map[string]bool)
	}
	ff.userOverrides[userID][featureName] = enabled
}

// ClearUserOverrides removes all overrides for a user.
func (ff *FeatureFlags) ClearUserOverrides(userID string) {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	delete(ff.userOverrides, userID)
}

// SetRolloutPercent updates the rollout percentage for a feature.
// Thread-safe for live updates.
func (ff *FeatureFlags) SetRolloutPercent(featureName string, percent int) error {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	feature, ok := ff.features[featureName]
	if !ok {
		return ErrFeatureNotFound
	}

	if percent < 0 || percent > 100 {
		return ErrInvalidRolloutPercent
	}

	feature.RolloutPercent = percent
	feature.Enabled = percent > 0

	return nil
}

// EnableFeature enables a feature at 100% rollout.
func (ff *FeatureFlags) EnableFeature(featureName string) error {
	return ff.SetRolloutPercent(featureName, 100)
}

// DisableFeature disables a feature completely.
func (ff *FeatureFlags) DisableFeature(featureName string) error {
	return ff.SetRolloutPercent(featureName, 0)
}

// GetAllFeatures returns a copy of all feature configurations.
func (ff *FeatureFlags) GetAllFeatures() map[string]*Feature {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	result := make(map[string]*Feature, len(ff.features))
	for k, v := range ff.features {
		// Return a copy
		featureCopy := *v
		result[k] = &featureCopy
	}
	return result
}

// --- Convenience methods for common checks ---

// RuleOverridesEnabled reports whether the rule engine runs for this user.
func (ff *FeatureFlags) RuleOverridesEnabled(ctx *FeatureContext) bool {
	return ff.IsEnabled(FeatureRuleOverrides, ctx)
}

// PureKernelEnabled reports whether the pure-kernel experiment applies.
func (ff *FeatureFlags) PureKernelEnabled(ctx *FeatureContext) bool {
	return ff.IsEnabled(FeaturePureKernel, ctx)
}

// --- Errors ---

var (
	ErrFeatureNotFound       = &FeatureFlagError{Message: "feature not found"}
	ErrInvalidRolloutPercent = &FeatureFlagError{Message: "rollout percent must be 0-100"}
)

// FeatureFlagError represents a feature flag error.
type FeatureFlagError struct {
	Message string
}

func (e *FeatureFlagError) Error() string {
	return e.Message
}
