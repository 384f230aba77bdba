package elo

import (
	"context"
	"fmt"
	"time"

	"github.com/richard-senior/podds/internal/logger"
	"github.com/richard-senior/podds/pkg/metrics"
	"github.com/richard-senior/podds/pkg/podds"
	"github.com/richard-senior/podds/pkg/sportsdata"
)

// FixtureSource is the part of the sports data client the updater needs
type FixtureSource interface {
	FixturesByDate(ctx context.Context, date time.Time, leagueIDs []int, season int) ([]podds.Fixture, error)
}

var _ FixtureSource = (sportsdata.Client)(nil)

// Updater is the offline batch job that folds finished results into the store
type Updater struct {
	source  FixtureSource
	store   *Store
	metrics *metrics.Metrics
}

// NewUpdater binds a fixture source to a store. m may be nil
func NewUpdater(source FixtureSource, store *Store, m *metrics.Metrics) *Updater {
	return &Updater{source: source, store: store, metrics: m}
}

// Run loads the store, applies every finished fixture kicked off in [from, to] for
// the leagues in chronological order and persists. Any failure is fatal for the run
func (u *Updater) Run(ctx context.Context, from, to time.Time, leagueIDs []int, season int) (int, error) {
	if to.Before(from) {
		return 0, fmt.Errorf("date range ends before it starts: %s > %s", from.Format("2006-01-02"), to.Format("2006-01-02"))
	}
	if err := u.store.Load(); err != nil {
		return 0, err
	}

	seen := make(map[int]bool)
	var finished []podds.Fixture
	for day := truncateDay(from); !day.After(truncateDay(to)); day = day.AddDate(0, 0, 1) {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		fixtures, err := u.source.FixturesByDate(ctx, day, leagueIDs, season)
		if err != nil {
			return 0, fmt.Errorf("failed to fetch fixtures for %s: %w", day.Format("2006-01-02"), err)
		}
		for _, f := range fixtures {
			if seen[f.ID] || !f.HasResult() {
				continue
			}
			seen[f.ID] = true
			finished = append(finished, f)
		}
	}

	applied := u.store.ApplyResults(finished)
	if u.metrics != nil {
		u.metrics.EloUpdates.Add(float64(applied))
	}
	if err := u.store.Persist(); err != nil {
		return applied, err
	}
	logger.Info("Elo update complete", applied, "results applied,", u.store.Len(), "teams rated")
	return applied, nil
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
