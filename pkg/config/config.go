package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Strategy selects how the ensemble combines its sources
type Strategy string

const (
	StrategyVoting    Strategy = "voting"
	StrategyAveraging Strategy = "averaging"
	StrategyWeighted  Strategy = "weighted"
)

// ParseStrategy returns the strategy named s
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case StrategyVoting:
		return StrategyVoting, nil
	case StrategyAveraging:
		return StrategyAveraging, nil
	case StrategyWeighted:
		return StrategyWeighted, nil
	}
	return "", fmt.Errorf("unknown ensemble strategy %q", s)
}

// Config contains every parameter that influences data fetching and prediction.
// Field comments give the default
type Config struct {
	// === MODEL PARAMETERS ===

	HomeAdvDefault        float64  `yaml:"home_adv_default"`         // fallback home advantage multiplier (1.15)
	InjuryImpact          float64  `yaml:"injury_impact"`            // attack multiplier when a key player is out (0.80)
	MaxGoals              float64  `yaml:"max_goals"`                // clamp on both intensities (3.0)
	DefaultLeagueAvgGoals float64  `yaml:"default_league_avg_goals"` // goals per team per match when the league has no history (1.35)
	RecentWindow          int      `yaml:"recent_window"`            // recent form window (15)
	H2HWindow             int      `yaml:"h2h_window"`               // head-to-head meetings considered (10)
	FormWindow            int      `yaml:"form_window"`              // matches used by the form factor (5)
	EnsembleStrategy      Strategy `yaml:"ensemble_strategy"`        // voting | averaging | weighted
	PoissonBlend          float64  `yaml:"poisson_blend"`            // Poisson share of the rule-based source (0.6)

	// === DEADLINES ===

	RequestTimeoutS  int `yaml:"request_timeout_s"`  // per upstream call (10)
	RequestDeadlineS int `yaml:"request_deadline_s"` // per prediction soft deadline (30)
	MaxRetries       int `yaml:"max_retries"`        // upstream retries on 429/5xx (3)
	RetryBudgetS     int `yaml:"retry_budget_s"`     // wall time across retries (30)

	// === STORAGE ===

	CacheDir            string   `yaml:"cache_dir"`              // directory holding the L2 cache database
	CacheMaxEntries     int      `yaml:"cache_max_entries"`      // L1 bound (1000)
	CacheSweepIntervalS int      `yaml:"cache_sweep_interval_s"` // L2 expiry sweep period (600)
	EloFile             string   `yaml:"elo_file"`               // Elo ratings JSON file
	ClassifierArtifacts []string `yaml:"classifier_artifacts"`   // fitted classifier artifact paths

	// === UPSTREAM ===

	APIBaseURL        string  `yaml:"api_base_url"`
	APIKey            string  `yaml:"api_key"`
	XGBaseURL         string  `yaml:"xg_base_url"`
	WeatherBaseURL    string  `yaml:"weather_base_url"`
	WeatherAPIKey     string  `yaml:"weather_api_key"`
	RequestsPerSecond float64 `yaml:"requests_per_second"` // client side limiter (5)
	Burst             int     `yaml:"burst"`               // limiter burst (5)

	// === QUOTA ===

	UserID       string `yaml:"user_id"`
	DailyQuota   int64  `yaml:"daily_quota"`   // 0 disables the check
	MonthlyQuota int64  `yaml:"monthly_quota"` // 0 disables the check
	RedisAddr    string `yaml:"redis_addr"`    // empty keeps counters in process

	// === RUNTIME ===

	BatchWorkers int    `yaml:"batch_workers"`
	ListenAddr   string `yaml:"listen_addr"`
	LogLevel     string `yaml:"log_level"`
	LogOutput    string `yaml:"log_output"` // c, f or b
	LogFile      string `yaml:"log_file"`
}

// DefaultConfig returns the configuration with all standard values
func DefaultConfig() *Config {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = os.TempDir()
	}
	base := filepath.Join(home, ".podds")

	return &Config{
		HomeAdvDefault:        1.15,
		InjuryImpact:          0.80,
		MaxGoals:              3.0,
		DefaultLeagueAvgGoals: 1.35,
		RecentWindow:          15,
		H2HWindow:             10,
		FormWindow:            5,
		EnsembleStrategy:      StrategyVoting,
		PoissonBlend:          0.6,

		RequestTimeoutS:  10,
		RequestDeadlineS: 30,
		MaxRetries:       3,
		RetryBudgetS:     30,

		CacheDir:            filepath.Join(base, "cache"),
		CacheMaxEntries:     1000,
		CacheSweepIntervalS: 600,
		EloFile:             filepath.Join(base, "elo.json"),

		APIBaseURL:        "https://v3.football.api-sports.io",
		XGBaseURL:         "https://understat.com",
		RequestsPerSecond: 5,
		Burst:             5,

		UserID:       "default",
		DailyQuota:   100,
		MonthlyQuota: 3000,

		BatchWorkers: 4,
		ListenAddr:   ":8080",
		LogLevel:     "info",
		LogOutput:    "c",
		LogFile:      "/tmp/podds.log",
	}
}

// RequestTimeout is the per upstream call deadline
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutS) * time.Second
}

// RequestDeadline is the per prediction soft deadline
func (c *Config) RequestDeadline() time.Duration {
	return time.Duration(c.RequestDeadlineS) * time.Second
}

// RetryBudget bounds the total time spent retrying one upstream call
func (c *Config) RetryBudget() time.Duration {
	return time.Duration(c.RetryBudgetS) * time.Second
}

// SweepInterval is how often expired L2 rows are removed
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.CacheSweepIntervalS) * time.Second
}

// CacheDBPath is the sqlite file behind the L2 cache
func (c *Config) CacheDBPath() string {
	return filepath.Join(c.CacheDir, "cache.db")
}

// === CONFIGURATION VALIDATION ===

// ValidateConfig ensures all configuration values are within reasonable ranges
func ValidateConfig(config *Config) error {
	if config.HomeAdvDefault < 1.0 || config.HomeAdvDefault > 1.5 {
		return fmt.Errorf("home_adv_default should be between 1.0 and 1.5, got: %f", config.HomeAdvDefault)
	}
	if config.InjuryImpact <= 0 || config.InjuryImpact > 1.0 {
		return fmt.Errorf("injury_impact must be in (0, 1], got: %f", config.InjuryImpact)
	}
	if config.MaxGoals <= 0 || config.MaxGoals > 10 {
		return fmt.Errorf("max_goals must be in (0, 10], got: %f", config.MaxGoals)
	}
	if config.DefaultLeagueAvgGoals <= 0 {
		return fmt.Errorf("default_league_avg_goals must be positive, got: %f", config.DefaultLeagueAvgGoals)
	}
	if config.RecentWindow < 1 || config.RecentWindow > 50 {
		return fmt.Errorf("recent_window must be between 1 and 50, got: %d", config.RecentWindow)
	}
	if config.H2HWindow < 1 || config.H2HWindow > 50 {
		return fmt.Errorf("h2h_window must be between 1 and 50, got: %d", config.H2HWindow)
	}
	if config.FormWindow < 1 || config.FormWindow > config.RecentWindow {
		return fmt.Errorf("form_window must be between 1 and recent_window (%d), got: %d", config.RecentWindow, config.FormWindow)
	}
	if _, err := ParseStrategy(string(config.EnsembleStrategy)); err != nil {
		return err
	}
	if config.PoissonBlend < 0 || config.PoissonBlend > 1 {
		return fmt.Errorf("poisson_blend must be between 0 and 1, got: %f", config.PoissonBlend)
	}
	if config.RequestTimeoutS < 1 {
		return fmt.Errorf("request_timeout_s must be at least 1, got: %d", config.RequestTimeoutS)
	}
	if config.RequestDeadlineS < config.RequestTimeoutS {
		return fmt.Errorf("request_deadline_s (%d) must not be shorter than request_timeout_s (%d)", config.RequestDeadlineS, config.RequestTimeoutS)
	}
	if config.MaxRetries < 0 || config.MaxRetries > 3 {
		return fmt.Errorf("max_retries must be between 0 and 3, got: %d", config.MaxRetries)
	}
	if config.RetryBudgetS < 1 || config.RetryBudgetS > 30 {
		return fmt.Errorf("retry_budget_s must be between 1 and 30, got: %d", config.RetryBudgetS)
	}
	if config.CacheMaxEntries < 1 {
		return fmt.Errorf("cache_max_entries must be positive, got: %d", config.CacheMaxEntries)
	}
	if config.CacheSweepIntervalS < 1 {
		return fmt.Errorf("cache_sweep_interval_s must be positive, got: %d", config.CacheSweepIntervalS)
	}
	if config.EloFile == "" {
		return fmt.Errorf("elo_file must be set")
	}
	if config.RequestsPerSecond <= 0 || config.Burst < 1 {
		return fmt.Errorf("requests_per_second and burst must be positive, got: %f/%d", config.RequestsPerSecond, config.Burst)
	}
	if config.DailyQuota < 0 || config.MonthlyQuota < 0 {
		return fmt.Errorf("quotas must not be negative")
	}
	if config.BatchWorkers < 1 {
		return fmt.Errorf("batch_workers must be at least 1, got: %d", config.BatchWorkers)
	}
	switch config.LogOutput {
	case "c", "f", "b":
	default:
		return fmt.Errorf("log_output must be one of c, f, b, got: %q", config.LogOutput)
	}
	return nil
}

// LoadConfig reads path (when non-empty) over the defaults, applies PODDS_* environment
// overrides and validates the result
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}
	if err := applyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	if err := ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

type lookupFunc func(string) (string, bool)

func applyEnv(cfg *Config, lookup lookupFunc) error {
	str := map[string]*string{
		"PODDS_API_BASE_URL":     &cfg.APIBaseURL,
		"PODDS_API_KEY":          &cfg.APIKey,
		"PODDS_XG_BASE_URL":      &cfg.XGBaseURL,
		"PODDS_WEATHER_BASE_URL": &cfg.WeatherBaseURL,
		"PODDS_WEATHER_API_KEY":  &cfg.WeatherAPIKey,
		"PODDS_CACHE_DIR":        &cfg.CacheDir,
		"PODDS_ELO_FILE":         &cfg.EloFile,
		"PODDS_USER_ID":          &cfg.UserID,
		"PODDS_REDIS_ADDR":       &cfg.RedisAddr,
		"PODDS_LISTEN_ADDR":      &cfg.ListenAddr,
		"PODDS_LOG_LEVEL":        &cfg.LogLevel,
		"PODDS_LOG_OUTPUT":       &cfg.LogOutput,
		"PODDS_LOG_FILE":         &cfg.LogFile,
	}
	for key, dst := range str {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}

	ints := map[string]*int{
		"PODDS_RECENT_WINDOW":      &cfg.RecentWindow,
		"PODDS_H2H_WINDOW":         &cfg.H2HWindow,
		"PODDS_REQUEST_TIMEOUT_S":  &cfg.RequestTimeoutS,
		"PODDS_REQUEST_DEADLINE_S": &cfg.RequestDeadlineS,
		"PODDS_BATCH_WORKERS":      &cfg.BatchWorkers,
	}
	for key, dst := range ints {
		if v, ok := lookup(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s must be an integer, got %q", key, v)
			}
			*dst = n
		}
	}

	floats := map[string]*float64{
		"PODDS_HOME_ADV_DEFAULT":   &cfg.HomeAdvDefault,
		"PODDS_INJURY_IMPACT":      &cfg.InjuryImpact,
		"PODDS_MAX_GOALS":          &cfg.MaxGoals,
		"PODDS_DEFAULT_LEAGUE_AVG": &cfg.DefaultLeagueAvgGoals,
		"PODDS_POISSON_BLEND":      &cfg.PoissonBlend,
	}
	for key, dst := range floats {
		if v, ok := lookup(key); ok {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("%s must be a number, got %q", key, v)
			}
			*dst = f
		}
	}

	if v, ok := lookup("PODDS_ENSEMBLE_STRATEGY"); ok {
		s, err := ParseStrategy(v)
		if err != nil {
			return err
		}
		cfg.EnsembleStrategy = s
	}
	if v, ok := lookup("PODDS_CLASSIFIER_ARTIFACTS"); ok {
		cfg.ClassifierArtifacts = nil
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				cfg.ClassifierArtifacts = append(cfg.ClassifierArtifacts, p)
			}
		}
	}
	return nil
}
