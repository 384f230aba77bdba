package elo

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/richard-senior/podds/pkg/podds"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := NewStore(filepath.Join(t.TempDir(), "elo.json"))
	s.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	return s
}

func TestUnknownTeamGetsDefault(t *testing.T) {
	s := newTestStore(t)
	_, ok := s.Lookup(42)
	assert.False(t, ok)
	assert.Equal(t, DefaultRating, s.GetRating(42))
	r, ok := s.Lookup(42)
	require.True(t, ok)
	assert.Equal(t, DefaultRating, r.Rating)
}

func TestUpsetWin(t *testing.T) {
	s := newTestStore(t)
	s.Set(1, 1400)
	s.Set(2, 1700)

	dh, da := s.UpdateFromResult(1, 2, 2, 0)
	assert.Greater(t, dh, 15)
	assert.InDelta(t, -dh, da, 1)
	assert.Equal(t, 32, dh)
	assert.Equal(t, 1432, s.GetRating(1))
	assert.Equal(t, 1668, s.GetRating(2))
}

func TestDrawOfEquals(t *testing.T) {
	s := newTestStore(t)
	dh, da := s.UpdateFromResult(1, 2, 1, 1)
	assert.Equal(t, 0, dh)
	assert.Equal(t, 0, da)
}

func TestSwappedFixtureIsSymmetric(t *testing.T) {
	a := newTestStore(t)
	a.Set(1, 1550)
	a.Set(2, 1480)
	d1, d2 := a.UpdateFromResult(1, 2, 3, 1)

	b := newTestStore(t)
	b.Set(1, 1550)
	b.Set(2, 1480)
	e2, e1 := b.UpdateFromResult(2, 1, 1, 3)

	assert.Equal(t, d1, e1)
	assert.Equal(t, d2, e2)
	assert.InDelta(t, 0, d1+d2, 1)
}

func TestRandomResultsAreZeroSum(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	s := newTestStore(t)
	for i := 0; i < 500; i++ {
		ra, rb := 1000+rng.Intn(1000), 1000+rng.Intn(1000)
		hg, ag := rng.Intn(7), rng.Intn(7)
		s.Set(1, ra)
		s.Set(2, rb)

		dh, da := s.UpdateFromResult(1, 2, hg, ag)
		// rounding each side separately can leave at most one point unbalanced
		assert.LessOrEqual(t, math.Abs(float64(dh+da)), 1.0, "ratings %d/%d score %d-%d", ra, rb, hg, ag)
		bound := int(math.Ceil(K * MarginMultiplier(hg, ag)))
		assert.LessOrEqual(t, int(math.Abs(float64(dh))), bound)
		switch {
		case hg > ag:
			assert.GreaterOrEqual(t, dh, 0)
		case hg < ag:
			assert.LessOrEqual(t, dh, 0)
		}
	}
}

func TestMarginMultiplier(t *testing.T) {
	assert.Equal(t, 1.0, MarginMultiplier(1, 0))
	assert.Equal(t, 1.0, MarginMultiplier(2, 2))
	assert.Equal(t, 1.25, MarginMultiplier(0, 2))
	assert.Equal(t, 1.75, MarginMultiplier(5, 1))
}

func TestUnfinishedFixtureIsNoop(t *testing.T) {
	s := newTestStore(t)
	assert.False(t, s.Apply(&podds.Fixture{ID: 1, HomeID: 1, AwayID: 2, Status: podds.StatusCancelled}))
	assert.False(t, s.Apply(&podds.Fixture{ID: 2, HomeID: 1, AwayID: 2, Status: podds.StatusFinished}))
	assert.Equal(t, 0, s.Len())
}

func TestApplyResultsIsChronological(t *testing.T) {
	day := time.Date(2024, 3, 1, 15, 0, 0, 0, time.UTC)
	fixtures := []podds.Fixture{
		{ID: 2, HomeID: 1, AwayID: 3, Kickoff: day.AddDate(0, 0, 7), Status: podds.StatusFinished, Score: &podds.Score{Home: 0, Away: 3}},
		{ID: 1, HomeID: 1, AwayID: 2, Kickoff: day, Status: podds.StatusFinished, Score: &podds.Score{Home: 4, Away: 0}},
	}

	shuffled := newTestStore(t)
	assert.Equal(t, 2, shuffled.ApplyResults(fixtures))

	ordered := newTestStore(t)
	ordered.UpdateFromResult(1, 2, 4, 0)
	ordered.UpdateFromResult(1, 3, 0, 3)

	for _, id := range []int{1, 2, 3} {
		assert.Equal(t, ordered.GetRating(id), shuffled.GetRating(id), "team %d", id)
	}
}

func TestPersistAndLoad(t *testing.T) {
	s := newTestStore(t)
	s.Set(33, 1620)
	s.UpdateFromResult(33, 40, 2, 1)
	require.NoError(t, s.Persist())

	data, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	var f file
	require.NoError(t, json.Unmarshal(data, &f))
	assert.Contains(t, f.Ratings, "33")
	assert.Contains(t, f.Ratings, "40")

	again := NewStore(s.Path())
	require.NoError(t, again.Load())
	assert.Equal(t, s.GetRating(33), again.GetRating(33))
	assert.Equal(t, s.GetRating(40), again.GetRating(40))

	matches, _ := filepath.Glob(filepath.Join(filepath.Dir(s.Path()), "*.tmp"))
	assert.Empty(t, matches)
}

func TestLoadMissingFileIsEmpty(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Load())
	assert.Equal(t, 0, s.Len())
}

func TestLoadRejectsBadIDs(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, os.WriteFile(s.Path(), []byte(`{"abc": {"rating": 1500}}`), 0o644))
	assert.Error(t, s.Load())
}

func TestLoadReadsBareRatingMap(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, os.WriteFile(s.Path(), []byte(`{"33": {"rating": 1580}, "40": {"rating": 1490}}`), 0o644))
	require.NoError(t, s.Load())
	assert.Equal(t, 1580, s.GetRating(33))
	assert.Equal(t, 1490, s.GetRating(40))
	assert.False(t, s.Applied(7))
}

func TestAppliedFixturesSurvivePersist(t *testing.T) {
	s := newTestStore(t)
	f := podds.Fixture{ID: 7, HomeID: 1, AwayID: 2, Status: podds.StatusFinished, Score: &podds.Score{Home: 2, Away: 0}}
	assert.True(t, s.Apply(&f))
	assert.False(t, s.Apply(&f))
	require.NoError(t, s.Persist())

	again := NewStore(s.Path())
	require.NoError(t, again.Load())
	assert.True(t, again.Applied(7))
	before := again.GetRating(1)
	assert.False(t, again.Apply(&f))
	assert.Equal(t, before, again.GetRating(1))
}

func TestReloadPicksUpPersistedRatings(t *testing.T) {
	reader := newTestStore(t)
	writer := NewStore(reader.Path())
	writer.Set(33, 1600)
	require.NoError(t, writer.Persist())
	require.NoError(t, reader.Load())
	assert.Equal(t, 1600, reader.GetRating(33))

	changed, err := reader.Reload()
	require.NoError(t, err)
	assert.False(t, changed)

	writer.Set(33, 1640)
	require.NoError(t, writer.Persist())
	later := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(reader.Path(), later, later))

	changed, err = reader.Reload()
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, 1640, reader.GetRating(33))
}

func TestPersistFailureIsErrPersist(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	s := NewStore(filepath.Join(blocker, "elo.json"))
	s.GetRating(1)
	err := s.Persist()
	assert.True(t, errors.Is(err, ErrPersist))
}

type fakeSource struct {
	byDay map[string][]podds.Fixture
	calls int
}

func (f *fakeSource) FixturesByDate(ctx context.Context, date time.Time, leagueIDs []int, season int) ([]podds.Fixture, error) {
	f.calls++
	return f.byDay[date.Format("2006-01-02")], nil
}

func TestUpdaterRun(t *testing.T) {
	kick := time.Date(2024, 3, 2, 15, 0, 0, 0, time.UTC)
	finished := podds.Fixture{ID: 7, HomeID: 1, AwayID: 2, Kickoff: kick, Status: podds.StatusFinished, Score: &podds.Score{Home: 1, Away: 0}}
	src := &fakeSource{byDay: map[string][]podds.Fixture{
		"2024-03-02": {finished, {ID: 8, HomeID: 3, AwayID: 4, Kickoff: kick, Status: podds.StatusScheduled}},
		"2024-03-03": {finished},
	}}
	s := newTestStore(t)
	u := NewUpdater(src, s, nil)

	n, err := u.Run(context.Background(), kick.AddDate(0, 0, -1), kick.AddDate(0, 0, 1), []int{39}, 2023)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 3, src.calls)
	assert.Equal(t, 1515, s.GetRating(1))

	_, err = os.Stat(s.Path())
	assert.NoError(t, err)
}

func TestUpdaterOverlappingRunsApplyOnce(t *testing.T) {
	kick := time.Date(2024, 3, 2, 15, 0, 0, 0, time.UTC)
	src := &fakeSource{byDay: map[string][]podds.Fixture{
		"2024-03-02": {{ID: 7, HomeID: 1, AwayID: 2, Kickoff: kick, Status: podds.StatusFinished, Score: &podds.Score{Home: 1, Away: 0}}},
		"2024-03-03": {{ID: 9, HomeID: 2, AwayID: 3, Kickoff: kick.AddDate(0, 0, 1), Status: podds.StatusFinished, Score: &podds.Score{Home: 0, Away: 0}}},
	}}
	s := newTestStore(t)

	n, err := NewUpdater(src, s, nil).Run(context.Background(), kick, kick, []int{39}, 2023)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1515, s.GetRating(1))

	// a fresh store reading the same file sees fixture 7 as done
	next := NewStore(s.Path())
	n, err = NewUpdater(src, next, nil).Run(context.Background(), kick, kick.AddDate(0, 0, 1), []int{39}, 2023)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1515, next.GetRating(1))
	assert.True(t, next.Applied(9))
}

func TestUpdaterRejectsReversedRange(t *testing.T) {
	u := NewUpdater(&fakeSource{}, newTestStore(t), nil)
	_, err := u.Run(context.Background(), time.Now(), time.Now().AddDate(0, 0, -2), []int{39}, 2023)
	assert.Error(t, err)
}
