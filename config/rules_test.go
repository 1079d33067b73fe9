package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeRulesFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadRulesConfig_Defaults(t *testing.T) {
	cfg, err := loadRulesConfig()
	require.NoError(t, err)
	assert.Equal(t, defaultRules(), cfg)
}

func TestLoadRulesConfig_PartialFileOverlay(t *testing.T) {
	path := writeRulesFile(t, "max_errors: 9\nbeginner_hard_window: 10\n")
	t.Setenv("RULES_CONFIG_PATH", path)

	cfg, err := loadRulesConfig()
	require.NoError(t, err)

	// Named fields override, everything else keeps the default.
	assert.Equal(t, 9, cfg.MaxErrors)
	assert.Equal(t, 10, cfg.BeginnerHardWindow)
	assert.Equal(t, defaultRules().HeavyStruggleErrors, cfg.HeavyStruggleErrors)
	assert.Equal(t, defaultRules().BeginnerMediumWindow, cfg.BeginnerMediumWindow)
}

func TestLoadRulesConfig_ExplicitZeroInFile(t *testing.T) {
	path := writeRulesFile(t, "beginner_min_level: 0\n")
	t.Setenv("RULES_CONFIG_PATH", path)

	cfg, err := loadRulesConfig()
	require.NoError(t, err)
	assert.Zero(t, cfg.BeginnerMinLevel, "an explicit zero is not the same as absent")
}

func TestLoadRulesConfig_EnvBeatsFile(t *testing.T) {
	path := writeRulesFile(t, "max_errors: 9\n")
	t.Setenv("RULES_CONFIG_PATH", path)
	t.Setenv("RULES_MAX_ERRORS", "3")

	cfg, err := loadRulesConfig()
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.MaxErrors)
}

func TestLoadRulesConfig_MissingFile(t *testing.T) {
	t.Setenv("RULES_CONFIG_PATH", filepath.Join(t.TempDir(), "absent.yaml"))

	_, err := loadRulesConfig()
	assert.Error(t, err)
}

func TestLoadRulesConfig_MalformedFile(t *testing.T) {
	path := writeRulesFile(t, "max_errors: [not an int\n")
	t.Setenv("RULES_CONFIG_PATH", path)

	_, err := loadRulesConfig()
	assert.Error(t, err)
}
