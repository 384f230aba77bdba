package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, ValidateConfig(cfg))
	assert.Equal(t, 1.15, cfg.HomeAdvDefault)
	assert.Equal(t, 0.80, cfg.InjuryImpact)
	assert.Equal(t, 3.0, cfg.MaxGoals)
	assert.Equal(t, 1.35, cfg.DefaultLeagueAvgGoals)
	assert.Equal(t, 15, cfg.RecentWindow)
	assert.Equal(t, 10, cfg.H2HWindow)
	assert.Equal(t, StrategyVoting, cfg.EnsembleStrategy)
	assert.Equal(t, 10, cfg.RequestTimeoutS)
	assert.Equal(t, 30, cfg.RequestDeadlineS)
}

func TestValidateConfigRejectsOutOfRange(t *testing.T) {
	cases := map[string]func(*Config){
		"injury impact above one": func(c *Config) { c.InjuryImpact = 1.2 },
		"unknown strategy":        func(c *Config) { c.EnsembleStrategy = "stacking" },
		"too many retries":        func(c *Config) { c.MaxRetries = 5 },
		"deadline below timeout":  func(c *Config) { c.RequestDeadlineS = 5 },
		"window above fifty":      func(c *Config) { c.RecentWindow = 60 },
		"bad log output":          func(c *Config) { c.LogOutput = "x" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(cfg)
			assert.Error(t, ValidateConfig(cfg))
		})
	}
}

func TestLoadConfigFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "podds.yaml")
	yml := `
injury_impact: 0.75
ensemble_strategy: weighted
elo_file: ` + filepath.Join(dir, "elo.json") + `
classifier_artifacts:
  - a.json
  - b.json
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 0.75, cfg.InjuryImpact)
	assert.Equal(t, StrategyWeighted, cfg.EnsembleStrategy)
	assert.Equal(t, []string{"a.json", "b.json"}, cfg.ClassifierArtifacts)
	assert.Equal(t, 1.15, cfg.HomeAdvDefault)
}

func TestLoadConfigRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "podds.yaml")
	require.NoError(t, os.WriteFile(path, []byte("injury_impakt: 0.7\n"), 0644))
	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	env := map[string]string{
		"PODDS_API_KEY":              "secret",
		"PODDS_RECENT_WINDOW":        "12",
		"PODDS_INJURY_IMPACT":        "0.9",
		"PODDS_ENSEMBLE_STRATEGY":    "Averaging",
		"PODDS_CLASSIFIER_ARTIFACTS": "x.json, y.json,",
	}
	cfg := DefaultConfig()
	err := applyEnv(cfg, func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})
	require.NoError(t, err)
	assert.Equal(t, "secret", cfg.APIKey)
	assert.Equal(t, 12, cfg.RecentWindow)
	assert.Equal(t, 0.9, cfg.InjuryImpact)
	assert.Equal(t, StrategyAveraging, cfg.EnsembleStrategy)
	assert.Equal(t, []string{"x.json", "y.json"}, cfg.ClassifierArtifacts)

	err = applyEnv(DefaultConfig(), func(k string) (string, bool) {
		if k == "PODDS_H2H_WINDOW" {
			return "ten", true
		}
		return "", false
	})
	assert.Error(t, err)
}
