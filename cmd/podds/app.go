package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/richard-senior/podds/internal/logger"
	"github.com/richard-senior/podds/pkg/cache"
	"github.com/richard-senior/podds/pkg/classifier"
	"github.com/richard-senior/podds/pkg/config"
	"github.com/richard-senior/podds/pkg/elo"
	"github.com/richard-senior/podds/pkg/ensemble"
	"github.com/richard-senior/podds/pkg/features"
	"github.com/richard-senior/podds/pkg/metrics"
	"github.com/richard-senior/podds/pkg/predictor"
	"github.com/richard-senior/podds/pkg/quota"
	"github.com/richard-senior/podds/pkg/scorer"
	"github.com/richard-senior/podds/pkg/sportsdata"
	"github.com/richard-senior/podds/pkg/store"
	"github.com/richard-senior/podds/pkg/transport"
)

// app owns every long lived resource. Process wide state is confined to the Elo file
// and the cache database, both opened and closed here
type app struct {
	cfg       *config.Config
	l2        *store.Store
	cache     *cache.MatchCache
	metrics   *metrics.Metrics
	redis     *redis.Client
	client    *sportsdata.HTTPClient
	elo       *elo.Store
	predictor *predictor.Predictor
}

func setupLogging(cfg *config.Config) error {
	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger.SetLevel(level)
	logger.SetShowDateTime(true)
	logger.SetLogFile(cfg.LogFile)
	if cfg.LogOutput == "" {
		return nil
	}
	return logger.SetLogOutput(rune(cfg.LogOutput[0]))
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg, metrics: metrics.New()}

	if err := os.MkdirAll(cfg.CacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache dir: %w", err)
	}
	l2, err := store.Open(cfg.CacheDBPath())
	if err != nil {
		return nil, err
	}
	a.l2 = l2
	if a.cache, err = cache.New(ctx, cfg.CacheMaxEntries, l2); err != nil {
		a.Close()
		return nil, err
	}
	a.metrics.RegisterCache(a.cache)
	if n, err := a.cache.Warm(ctx); err != nil {
		logger.Warn("Failed to warm cache from disk", err)
	} else {
		logger.Debug("Cache warmed from disk", n)
	}

	opts := []sportsdata.ClientOption{
		sportsdata.WithBaseURL(cfg.APIBaseURL),
		sportsdata.WithAPIKey(cfg.APIKey),
		sportsdata.WithXGBaseURL(cfg.XGBaseURL),
		sportsdata.WithRateLimit(cfg.RequestsPerSecond, cfg.Burst),
		sportsdata.WithRetryPolicy(transport.NewRetryPolicy(cfg.MaxRetries, 500*time.Millisecond, cfg.RetryBudget())),
		sportsdata.WithTimeout(cfg.RequestTimeout()),
		sportsdata.WithCache(a.cache),
		sportsdata.WithMetrics(a.metrics),
	}
	if cfg.WeatherBaseURL != "" {
		opts = append(opts, sportsdata.WithWeather(cfg.WeatherBaseURL, cfg.WeatherAPIKey))
	}
	if cfg.DailyQuota > 0 || cfg.MonthlyQuota > 0 {
		var counter quota.Counter
		if cfg.RedisAddr != "" {
			a.redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
			if err := a.redis.Ping(ctx).Err(); err != nil {
				a.Close()
				return nil, fmt.Errorf("redis at %s: %w", cfg.RedisAddr, err)
			}
			counter = quota.NewRedisCounter(a.redis)
		} else {
			counter = quota.NewMemoryCounter()
		}
		opts = append(opts, sportsdata.WithQuota(quota.NewGuard(counter, cfg.UserID, quota.Limits{Daily: cfg.DailyQuota, Monthly: cfg.MonthlyQuota})))
	}
	a.client = sportsdata.NewHTTPClient(opts...)

	a.elo = elo.NewStore(cfg.EloFile)
	if err := a.elo.Load(); err != nil {
		// ratings only sharpen the elo_diff factor; predictions go ahead without them
		logger.Warn("Elo ratings unavailable, elo_diff will default", err)
	}

	models, errs := classifier.LoadAll(cfg.ClassifierArtifacts)
	for _, err := range errs {
		logger.Error("Classifier disabled", err)
	}

	a.predictor = predictor.New(predictor.Deps{
		Client:      a.client,
		Builder:     features.NewBuilder(a.client, a.elo, features.ParamsFrom(cfg)),
		Scorer:      scorer.New(scorer.NewRegistry()),
		Classifiers: models,
		Ensemble:    ensemble.New(cfg.EnsembleStrategy),
		Metrics:     a.metrics,
	}, predictor.OptionsFrom(cfg))
	return a, nil
}

func (a *app) Close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			logger.Warn("Failed to close redis client", err)
		}
	}
	if a.l2 != nil {
		if err := a.l2.Close(); err != nil {
			logger.Warn("Failed to close cache database", err)
		}
	}
}
