package features

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/richard-senior/podds/internal/logger"
	"github.com/richard-senior/podds/pkg/config"
	"github.com/richard-senior/podds/pkg/podds"
	"github.com/richard-senior/podds/pkg/scorer"
	"github.com/richard-senior/podds/pkg/sportsdata"
	"golang.org/x/sync/errgroup"
)

const (
	// leagueSample is how many recent finished league fixtures feed the league average
	leagueSample = 100
	// recentWeight is the share of the recent window in a blended rate
	recentWeight = 0.7
	// rateFloor replaces a blended rate when both inputs are zero
	rateFloor = 0.1

	minHomeAdvantage = 1.0
	maxHomeAdvantage = 1.35
)

var (
	// ErrInsufficientData means season statistics are missing for one of the teams
	ErrInsufficientData = errors.New("insufficient data")
	// ErrMissingInput means the request does not identify a valid fixture
	ErrMissingInput = errors.New("missing input")
)

// Ratings is the read side of the Elo store
type Ratings interface {
	GetRating(teamID int) int
}

// Request identifies the fixture to build features for
type Request struct {
	HomeID    int
	AwayID    int
	FixtureID int
	League    podds.LeagueInfo
}

// Params are the model constants the builder uses
type Params struct {
	HomeAdvDefault        float64
	InjuryImpact          float64
	MaxGoals              float64
	DefaultLeagueAvgGoals float64
	RecentWindow          int
	H2HWindow             int
	FormWindow            int
}

// ParamsFrom copies the builder constants out of cfg
func ParamsFrom(cfg *config.Config) Params {
	return Params{
		HomeAdvDefault:        cfg.HomeAdvDefault,
		InjuryImpact:          cfg.InjuryImpact,
		MaxGoals:              cfg.MaxGoals,
		DefaultLeagueAvgGoals: cfg.DefaultLeagueAvgGoals,
		RecentWindow:          cfg.RecentWindow,
		H2HWindow:             cfg.H2HWindow,
		FormWindow:            cfg.FormWindow,
	}
}

// Builder assembles feature records from sports data and Elo ratings
type Builder struct {
	client  sportsdata.Client
	ratings Ratings
	params  Params
	now     func() time.Time
}

// NewBuilder wires a builder. ratings may be nil, in which case elo_diff defaults
func NewBuilder(client sportsdata.Client, ratings Ratings, params Params) *Builder {
	return &Builder{client: client, ratings: ratings, params: params, now: time.Now}
}

// side holds everything computed for one team
type side struct {
	id          int
	name        string
	season      sportsdata.VenueStats
	consistency float64
	recent      []podds.Fixture
	attack      float64
	defense     float64
	injured     []sportsdata.Injury
	keyInjured  bool
	attackMul   float64
	defenseMul  float64
}

// Build returns the feature record for a fixture. It fails with ErrInsufficientData
// when either team has no season statistics and with ErrMissingInput for a malformed
// request; every other missing input falls back to its documented default
func (b *Builder) Build(ctx context.Context, req Request) (*podds.FeatureRecord, error) {
	if req.HomeID <= 0 || req.AwayID <= 0 || req.HomeID == req.AwayID || req.League.ID <= 0 || req.League.Season <= 0 {
		return nil, fmt.Errorf("%w: teams %d/%d league %d season %d", ErrMissingInput, req.HomeID, req.AwayID, req.League.ID, req.League.Season)
	}

	rec := &podds.FeatureRecord{
		FixtureID: req.FixtureID,
		HomeID:    req.HomeID,
		AwayID:    req.AwayID,
		League:    req.League,
		Home:      podds.NeutralVector(),
		Away:      podds.NeutralVector(),
	}
	fixture := b.fixture(ctx, req, rec)
	b.leagueInfo(ctx, rec)
	rec.LeagueProfile = scorer.ProfileFor(rec.League.ID)

	home := &side{id: req.HomeID, name: fixture.HomeName, attackMul: 1, defenseMul: 1}
	away := &side{id: req.AwayID, name: fixture.AwayName, attackMul: 1, defenseMul: 1}

	// 1. league average
	leagueAvg := b.leagueAverage(ctx, rec)

	// 2. season statistics
	homeStats, err := b.seasonStats(ctx, rec, home, away)
	if err != nil {
		return nil, err
	}

	// 3. team specific home advantage from the home team's own home and away records
	homeAdv, ok := HomeAdvantage(homeStats.Home.PointsPerGame(), homeStats.Away.PointsPerGame(), b.params.HomeAdvDefault)
	if !ok {
		rec.MarkDefault("home_advantage")
	}

	// 4. recent form windows
	b.recentForm(ctx, rec, home, away, fixture.Kickoff)

	// 5. blended attack and defense rates at the relevant venue
	blendRates(home, true)
	blendRates(away, false)

	// 6. key player injuries
	b.injuries(ctx, rec, home, away)

	// 7. expected goal intensities
	lambdaHome, lambdaAway := Intensities(home.attack, home.defense, away.attack, away.defense,
		home.attackMul, home.defenseMul, away.attackMul, away.defenseMul, leagueAvg, homeAdv, b.params.MaxGoals)

	rec.HomeKeyInjured = home.keyInjured
	rec.AwayKeyInjured = away.keyInjured
	rec.Raw = podds.RawParams{
		HomeAttack:      home.attack,
		HomeDefense:     home.defense,
		AwayAttack:      away.attack,
		AwayDefense:     away.defense,
		HomeAttackMul:   home.attackMul,
		HomeDefenseMul:  home.defenseMul,
		AwayAttackMul:   away.attackMul,
		AwayDefenseMul:  away.defenseMul,
		HomeAdvantage:   homeAdv,
		LeagueAvgGoals:  leagueAvg,
		LambdaHome:      lambdaHome,
		LambdaAway:      lambdaAway,
		HomeConsistency: home.consistency,
		AwayConsistency: away.consistency,
	}

	// 8. normalised factors
	b.factors(ctx, rec, fixture, home, away)

	if !rec.Home.Valid() || !rec.Away.Valid() {
		return nil, fmt.Errorf("feature vector out of range for fixture %d", req.FixtureID)
	}
	if rec.Degraded() {
		logger.Debug("Feature record built with defaults", req.FixtureID, rec.Defaulted)
	}
	return rec, nil
}

// fixture loads the fixture for names, kick-off, referee and city. Without one a
// synthetic fixture kicking off now is used
func (b *Builder) fixture(ctx context.Context, req Request, rec *podds.FeatureRecord) podds.Fixture {
	fallback := podds.Fixture{
		ID:       req.FixtureID,
		HomeID:   req.HomeID,
		AwayID:   req.AwayID,
		LeagueID: req.League.ID,
		Season:   req.League.Season,
		Kickoff:  b.now().UTC(),
		Status:   podds.StatusScheduled,
	}
	if req.FixtureID <= 0 {
		rec.MarkDefault("fixture")
		return fallback
	}
	f, err := b.client.Fixture(ctx, req.FixtureID)
	if err != nil {
		b.fallback(rec, "fixture", err)
		return fallback
	}
	if f.HomeID != req.HomeID || f.AwayID != req.AwayID {
		logger.Warn("Fixture teams do not match request", req.FixtureID, f.HomeID, f.AwayID, req.HomeID, req.AwayID)
		rec.MarkDefault("fixture")
		return fallback
	}
	if f.Kickoff.IsZero() {
		f.Kickoff = fallback.Kickoff
	}
	return *f
}

// leagueInfo fills in the competition type when the caller did not supply it
func (b *Builder) leagueInfo(ctx context.Context, rec *podds.FeatureRecord) {
	if rec.League.Type != "" {
		return
	}
	info, err := b.client.League(ctx, rec.League.ID, rec.League.Season)
	if err != nil {
		b.fallback(rec, "league_info", err)
		return
	}
	rec.League.Name = info.Name
	rec.League.Country = info.Country
	rec.League.Type = info.Type
}

// leagueAverage is goals per team per match over the latest finished league fixtures
func (b *Builder) leagueAverage(ctx context.Context, rec *podds.FeatureRecord) float64 {
	results, err := b.client.LeagueResults(ctx, rec.League.ID, rec.League.Season)
	if err != nil {
		b.fallback(rec, "league_avg_goals", err)
		return b.params.DefaultLeagueAvgGoals
	}
	avg, ok := LeagueAverage(results, leagueSample)
	if !ok {
		rec.MarkDefault("league_avg_goals")
		return b.params.DefaultLeagueAvgGoals
	}
	return avg
}

// LeagueAverage returns mean goals per team per match over at most n finished fixtures
func LeagueAverage(results []podds.Fixture, n int) (float64, bool) {
	goals, matches := 0, 0
	for i := range results {
		if matches >= n {
			break
		}
		if !results[i].HasResult() {
			continue
		}
		goals += results[i].Score.Home + results[i].Score.Away
		matches++
	}
	if matches == 0 || goals == 0 {
		return 0, false
	}
	return float64(goals) / float64(2*matches), true
}

func (b *Builder) seasonStats(ctx context.Context, rec *podds.FeatureRecord, home, away *side) (*sportsdata.TeamStatistics, error) {
	hs, err := b.client.TeamStatistics(ctx, home.id, rec.League.ID, rec.League.Season)
	if err != nil {
		return nil, fmt.Errorf("%w: home team %d: %v", ErrInsufficientData, home.id, err)
	}
	as, err := b.client.TeamStatistics(ctx, away.id, rec.League.ID, rec.League.Season)
	if err != nil {
		return nil, fmt.Errorf("%w: away team %d: %v", ErrInsufficientData, away.id, err)
	}
	if hs.Total().Played == 0 || as.Total().Played == 0 {
		return nil, fmt.Errorf("%w: no matches played this season", ErrInsufficientData)
	}

	home.season = hs.Home
	home.consistency = hs.Home.Consistency()
	away.season = as.Away
	away.consistency = as.Away.Consistency()
	return hs, nil
}

// HomeAdvantage is homePPG/awayPPG clamped to [1.0, 1.35]. Unless both are positive
// it returns def and false
func HomeAdvantage(homePPG, awayPPG, def float64) (float64, bool) {
	if homePPG <= 0 || awayPPG <= 0 || math.IsNaN(homePPG) || math.IsNaN(awayPPG) {
		return def, false
	}
	return podds.Clamp(homePPG/awayPPG, minHomeAdvantage, maxHomeAdvantage, def), true
}

func (b *Builder) recentForm(ctx context.Context, rec *podds.FeatureRecord, home, away *side, kickoff time.Time) {
	for _, s := range []*side{home, away} {
		rows, err := b.client.TeamLastMatches(ctx, s.id, b.params.RecentWindow)
		if err != nil {
			b.fallback(rec, "recent_form", err)
			continue
		}
		// never let a result from the fixture itself or later leak in
		kept := rows[:0:0]
		for _, f := range rows {
			if f.HasResult() && f.Kickoff.Before(kickoff) {
				kept = append(kept, f)
			}
		}
		s.recent = kept
	}
}

// WeightedVenueAverages averages goals for and against over the team's matches at one
// venue using linear weights, the most recent match heaviest. rows must be newest first
func WeightedVenueAverages(rows []podds.Fixture, teamID int, atHome bool) (gf, ga float64, ok bool) {
	var venue []podds.Fixture
	for i := range rows {
		if _, _, home, found := rows[i].GoalsFor(teamID); found && home == atHome && rows[i].HasResult() {
			venue = append(venue, rows[i])
		}
	}
	n := len(venue)
	if n == 0 {
		return 0, 0, false
	}
	var wsum float64
	for i := range venue {
		w := float64(n - i)
		scored, conceded, _, _ := venue[i].GoalsFor(teamID)
		gf += w * float64(scored)
		ga += w * float64(conceded)
		wsum += w
	}
	return gf / wsum, ga / wsum, true
}

// Blend mixes a recent weighted average with the season mean. Without recent data the
// season mean is used; two zero inputs give the floor
func Blend(recent float64, haveRecent bool, season float64) float64 {
	if !haveRecent {
		recent = season
	}
	if recent == 0 && season == 0 {
		return rateFloor
	}
	return recentWeight*recent + (1-recentWeight)*season
}

func blendRates(s *side, atHome bool) {
	gf, ga, ok := WeightedVenueAverages(s.recent, s.id, atHome)
	s.attack = Blend(gf, ok, s.season.AvgFor())
	s.defense = Blend(ga, ok, s.season.AvgAgainst())
}

func (b *Builder) injuries(ctx context.Context, rec *podds.FeatureRecord, home, away *side) {
	if rec.FixtureID <= 0 {
		rec.MarkDefault("injuries")
		return
	}
	list, err := b.client.FixtureInjuries(ctx, rec.FixtureID)
	if err != nil {
		b.fallback(rec, "injuries", err)
		return
	}
	for _, inj := range list {
		switch inj.TeamID {
		case home.id:
			home.injured = append(home.injured, inj)
		case away.id:
			away.injured = append(away.injured, inj)
		}
	}
	if len(home.injured) == 0 && len(away.injured) == 0 {
		return
	}

	scorers, err := b.client.TopScorers(ctx, rec.League.ID, rec.League.Season)
	if err != nil {
		b.fallback(rec, "key_players", err)
	}
	for _, s := range []*side{home, away} {
		if len(s.injured) == 0 {
			continue
		}
		players, err := b.client.PlayerStatistics(ctx, s.id, rec.League.Season)
		if err != nil {
			b.fallback(rec, "key_players", err)
		}
		key := KeyPlayers(s.id, scorers, players)
		for _, inj := range s.injured {
			if key[inj.PlayerID] {
				s.keyInjured = true
				break
			}
		}
		if s.keyInjured {
			s.attackMul = b.params.InjuryImpact
			s.defenseMul = 1 / b.params.InjuryImpact
		}
	}
}

// KeyPlayers are a team's league top scorers plus its top quartile by minutes played
func KeyPlayers(teamID int, scorers, squad []sportsdata.PlayerSeason) map[int]bool {
	key := make(map[int]bool)
	for _, p := range scorers {
		if p.TeamID == teamID && p.Goals > 0 {
			key[p.PlayerID] = true
		}
	}
	var played []sportsdata.PlayerSeason
	for _, p := range squad {
		if p.Minutes > 0 {
			played = append(played, p)
		}
	}
	if len(played) == 0 {
		return key
	}
	sortByMinutes(played)
	quartile := int(math.Ceil(float64(len(played)) / 4))
	for _, p := range played[:quartile] {
		key[p.PlayerID] = true
	}
	return key
}

// Intensities computes both expected goal rates, clamped to [0, maxGoals]
func Intensities(homeAtt, homeDef, awayAtt, awayDef, homeAMul, homeDMul, awayAMul, awayDMul, leagueAvg, homeAdv, maxGoals float64) (float64, float64) {
	if leagueAvg <= 0 {
		return 0, 0
	}
	l := leagueAvg
	lh := (homeAtt * homeAMul / l) * (awayDef * awayDMul / l) * l * homeAdv
	la := (awayAtt * awayAMul / l) * (homeDef * homeDMul / l) * l
	return podds.Clamp(lh, 0, maxGoals, 0), podds.Clamp(la, 0, maxGoals, 0)
}

// fallback records a defaulted input and logs why
func (b *Builder) fallback(rec *podds.FeatureRecord, name string, err error) {
	rec.MarkDefault(name)
	kind := sportsdata.PoddsKind(err)
	if kind == podds.ErrMissingInput {
		logger.Debug("Input not available, using default", name, rec.FixtureID, err)
		return
	}
	logger.Warn("Input failed, using default", name, rec.FixtureID, string(kind), err)
}

// group runs independent lookups concurrently. Lookups never fail the group; each
// records its own fallback
func group(ctx context.Context, fns ...func(context.Context)) {
	var g errgroup.Group
	for _, fn := range fns {
		fn := fn
		g.Go(func() error {
			fn(ctx)
			return nil
		})
	}
	_ = g.Wait()
}
