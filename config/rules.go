package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// rulesFile is the optional YAML shape for the difficulty rule thresholds.
// Pointer fields distinguish "absent" from an explicit zero so a partial file
// only overrides what it names.
type rulesFile struct {
	MaxErrors            *int `yaml:"max_errors"`
	TimeUnderSeconds     *int `yaml:"time_under_seconds"`
	MinAttemptsForRate   *int `yaml:"min_attempts_for_rate"`
	HeavyStruggleErrors  *int `yaml:"heavy_struggle_errors"`
	BeginnerMediumWindow *int `yaml:"beginner_medium_window"`
	BeginnerHardWindow   *int `yaml:"beginner_hard_window"`
	BeginnerMinLevel     *int `yaml:"beginner_min_level"`
	IntermediateWindow   *int `yaml:"intermediate_window"`
	AdvancedMediumWindow *int `yaml:"advanced_medium_window"`
	AdvancedEasyWindow   *int `yaml:"advanced_easy_window"`
}

// defaultRules mirrors the production thresholds of the rule engine.
func defaultRules() RulesConfig {
	return RulesConfig{
		MaxErrors:            5,
		TimeUnderSeconds:     60,
		MinAttemptsForRate:   5,
		HeavyStruggleErrors:  7,
		BeginnerMediumWindow: 5,
		BeginnerHardWindow:   8,
		BeginnerMinLevel:     5,
		IntermediateWindow:   5,
		AdvancedMediumWindow: 5,
		AdvancedEasyWindow:   8,
	}
}

// loadRulesConfig resolves the rule thresholds in three layers: built-in
// defaults, then the optional YAML file named by RULES_CONFIG_PATH, then
// RULES_* environment variables on top.
func loadRulesConfig() (RulesConfig, error) {
	base := defaultRules()

	if path := getEnv("RULES_CONFIG_PATH", ""); path != "" {
		loaded, err := applyRulesFile(base, path)
		if err != nil {
			return RulesConfig{}, err
		}
		base = loaded
	}

	return RulesConfig{
		MaxErrors:            getEnvInt("RULES_MAX_ERRORS", base.MaxErrors),
		TimeUnderSeconds:     getEnvInt("RULES_TIME_UNDER_SECONDS", base.TimeUnderSeconds),
		MinAttemptsForRate:   getEnvInt("RULES_MIN_ATTEMPTS_FOR_RATE", base.MinAttemptsForRate),
		HeavyStruggleErrors:  getEnvInt("RULES_HEAVY_STRUGGLE_ERRORS", base.HeavyStruggleErrors),
		BeginnerMediumWindow: getEnvInt("RULES_BEGINNER_MEDIUM_WINDOW", base.BeginnerMediumWindow),
		BeginnerHardWindow:   getEnvInt("RULES_BEGINNER_HARD_WINDOW", base.BeginnerHardWindow),
		BeginnerMinLevel:     getEnvInt("RULES_BEGINNER_MIN_LEVEL", base.BeginnerMinLevel),
		IntermediateWindow:   getEnvInt("RULES_INTERMEDIATE_WINDOW", base.IntermediateWindow),
		AdvancedMediumWindow: getEnvInt("RULES_ADVANCED_MEDIUM_WINDOW", base.AdvancedMediumWindow),
		AdvancedEasyWindow:   getEnvInt("RULES_ADVANCED_EASY_WINDOW", base.AdvancedEasyWindow),
	}, nil
}

// applyRulesFile overlays the YAML file's present fields onto base.
func applyRulesFile(base RulesConfig, path string) (RulesConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return RulesConfig{}, fmt.Errorf("read rules file %s: %w", path, err)
	}

	var f rulesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return RulesConfig{}, fmt.Errorf("parse rules file %s: %w", path, err)
	}

	overlay := func(dst *int, src *int) {
		if src != nil {
			*dst = *src
		}
	}
	overlay(&base.MaxErrors, f.MaxErrors)
	overlay(&base.TimeUnderSeconds, f.TimeUnderSeconds)
	overlay(&base.MinAttemptsForRate, f.MinAttemptsForRate)
	overlay(&base.HeavyStruggleErrors, f.HeavyStruggleErrors)
	overlay(&base.BeginnerMediumWindow, f.BeginnerMediumWindow)
	overlay(&base.BeginnerHardWindow, f.BeginnerHardWindow)
	overlay(&base.BeginnerMinLevel, f.BeginnerMinLevel)
	overlay(&base.IntermediateWindow, f.IntermediateWindow)
	overlay(&base.AdvancedMediumWindow, f.AdvancedMediumWindow)
	overlay(&base.AdvancedEasyWindow, f.AdvancedEasyWindow)
	return base, nil
}
