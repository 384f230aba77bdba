package features

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/richard-senior/podds/pkg/config"
	"github.com/richard-senior/podds/pkg/podds"
	"github.com/richard-senior/podds/pkg/sportsdata"
	"github.com/richard-senior/podds/pkg/sportsdata/sportsdatatest"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testLeague  = 39
	testSeason  = 2024
	homeID      = 33
	awayID      = 34
	testFixture = 1001
)

var kickoff = time.Date(2024, 3, 10, 15, 0, 0, 0, time.UTC)

type ratingsMap map[int]int

func (r ratingsMap) GetRating(teamID int) int {
	if v, ok := r[teamID]; ok {
		return v
	}
	return 1500
}

func result(id, home, away, hg, ag int, at time.Time) podds.Fixture {
	return podds.Fixture{
		ID: id, HomeID: home, AwayID: away, LeagueID: testLeague, Season: testSeason,
		Kickoff: at, Status: podds.StatusFinished, Score: &podds.Score{Home: hg, Away: ag},
	}
}

func leagueResults(scores ...[2]int) []podds.Fixture {
	out := make([]podds.Fixture, 0, len(scores))
	for i, s := range scores {
		out = append(out, result(500+i, 100+2*i, 101+2*i, s[0], s[1], kickoff.AddDate(0, 0, -i-1)))
	}
	return out
}

func request(fixtureID int) Request {
	return Request{
		HomeID:    homeID,
		AwayID:    awayID,
		FixtureID: fixtureID,
		League:    podds.LeagueInfo{ID: testLeague, Season: testSeason, Type: "League"},
	}
}

func newBuilder(f *sportsdatatest.Fake, ratings Ratings) *Builder {
	b := NewBuilder(f, ratings, ParamsFrom(config.DefaultConfig()))
	b.now = func() time.Time { return kickoff }
	return b
}

// flatScenario has both teams scoring and conceding 1.2 a game with no points record
func flatScenario() *sportsdatatest.Fake {
	f := sportsdatatest.New()
	f.Results[testLeague] = leagueResults([2]int{2, 1}, [2]int{1, 1}, [2]int{2, 0}, [2]int{1, 2}, [2]int{1, 1})
	even := sportsdata.VenueStats{Played: 10, GoalsFor: 12, GoalsAgainst: 12}
	f.Stats[homeID] = &sportsdata.TeamStatistics{TeamID: homeID, Home: even, Away: even}
	f.Stats[awayID] = &sportsdata.TeamStatistics{TeamID: awayID, Home: even, Away: even}
	return f
}

// strongHomeScenario pits a strong home side against a weak travelling one
func strongHomeScenario() *sportsdatatest.Fake {
	f := sportsdatatest.New()
	f.Results[testLeague] = leagueResults([2]int{2, 1}, [2]int{2, 1}, [2]int{2, 1}, [2]int{2, 1}, [2]int{1, 2})
	f.Stats[homeID] = &sportsdata.TeamStatistics{
		TeamID: homeID,
		Home:   sportsdata.VenueStats{Played: 10, Wins: 6, Losses: 4, GoalsFor: 18, GoalsAgainst: 8},
		Away:   sportsdata.VenueStats{Played: 10, Wins: 5, Losses: 5, GoalsFor: 10, GoalsAgainst: 10},
	}
	f.Stats[awayID] = &sportsdata.TeamStatistics{
		TeamID: awayID,
		Home:   sportsdata.VenueStats{Played: 10, Wins: 3, Draws: 3, Losses: 4, GoalsFor: 10, GoalsAgainst: 10},
		Away:   sportsdata.VenueStats{Played: 10, Wins: 1, Draws: 2, Losses: 7, GoalsFor: 7, GoalsAgainst: 16},
	}
	f.Fixtures[testFixture] = &podds.Fixture{
		ID: testFixture, HomeID: homeID, AwayID: awayID, HomeName: "Arsenal", AwayName: "Chelsea",
		Kickoff: kickoff, LeagueID: testLeague, Season: testSeason, Status: podds.StatusScheduled,
		Referee: "M Oliver", City: "London",
	}
	f.Injuries[testFixture] = []sportsdata.Injury{}
	return f
}

func TestBuildUsesDefaultHomeAdvantageWithoutPoints(t *testing.T) {
	rec, err := newBuilder(flatScenario(), nil).Build(context.Background(), request(0))
	require.NoError(t, err)

	assert.InDelta(t, 1.2, rec.Raw.LeagueAvgGoals, 1e-9)
	assert.InDelta(t, 1.15, rec.Raw.HomeAdvantage, 1e-9)
	assert.InDelta(t, 1.38, rec.Raw.LambdaHome, 1e-9)
	assert.InDelta(t, 1.2, rec.Raw.LambdaAway, 1e-9)
	assert.Contains(t, rec.Defaulted, "home_advantage")
	assert.Contains(t, rec.Defaulted, "elo_diff")
	assert.Equal(t, "premier_league", rec.LeagueProfile)
	assert.True(t, rec.Home.Valid())
	assert.True(t, rec.Away.Valid())
}

func TestBuildTeamSpecificHomeAdvantage(t *testing.T) {
	rec, err := newBuilder(strongHomeScenario(), ratingsMap{homeID: 1600}).Build(context.Background(), request(testFixture))
	require.NoError(t, err)

	assert.InDelta(t, 1.5, rec.Raw.LeagueAvgGoals, 1e-9)
	assert.InDelta(t, 1.2, rec.Raw.HomeAdvantage, 1e-9)
	assert.InDelta(t, 2.304, rec.Raw.LambdaHome, 1e-9)
	assert.InDelta(t, 0.56/1.5, rec.Raw.LambdaAway, 1e-9)
	assert.NotContains(t, rec.Defaulted, "home_advantage")
	assert.False(t, rec.HomeKeyInjured)
	assert.Equal(t, 1.0, rec.Home[podds.FactorInjuries])

	assert.Equal(t, 1600.0, rec.Raw.HomeElo)
	assert.Equal(t, 1500.0, rec.Raw.AwayElo)
	assert.InDelta(t, EloFactor(1600, 1500), rec.Home[podds.FactorEloDiff], 1e-9)
	assert.InDelta(t, 1-EloFactor(1600, 1500), rec.Away[podds.FactorEloDiff], 1e-9)
}

func TestKeyPlayerInjuryScalesIntensities(t *testing.T) {
	f := strongHomeScenario()
	f.Injuries[testFixture] = []sportsdata.Injury{{PlayerID: 9, TeamID: homeID, PlayerName: "Striker"}}
	f.Scorers[testLeague] = []sportsdata.PlayerSeason{{PlayerID: 9, TeamID: homeID, Goals: 15}}

	rec, err := newBuilder(f, nil).Build(context.Background(), request(testFixture))
	require.NoError(t, err)

	assert.True(t, rec.HomeKeyInjured)
	assert.False(t, rec.AwayKeyInjured)
	assert.InDelta(t, 0.8, rec.Raw.HomeAttackMul, 1e-9)
	assert.InDelta(t, 1.25, rec.Raw.HomeDefenseMul, 1e-9)
	assert.InDelta(t, 1.8432, rec.Raw.LambdaHome, 1e-9)
	assert.InDelta(t, 0.56/1.5/0.8, rec.Raw.LambdaAway, 1e-9)
	assert.InDelta(t, 0.7, rec.Home[podds.FactorInjuries], 1e-9)
	assert.Equal(t, 1.0, rec.Away[podds.FactorInjuries])
	// squad minutes were unavailable but the scorer list was enough
	assert.Contains(t, rec.Defaulted, "key_players")
}

func TestBuildWithEveryInput(t *testing.T) {
	f := strongHomeScenario()
	f.Last[homeID] = []podds.Fixture{
		result(901, homeID, 50, 3, 0, kickoff.AddDate(0, 0, -7)),
		result(902, 51, homeID, 1, 1, kickoff.AddDate(0, 0, -14)),
	}
	f.Last[awayID] = []podds.Fixture{
		result(903, awayID, 52, 0, 1, kickoff.AddDate(0, 0, -3)),
		result(904, 53, awayID, 2, 2, kickoff.AddDate(0, 0, -10)),
	}
	f.H2H = []podds.Fixture{
		result(801, homeID, awayID, 2, 0, kickoff.AddDate(-1, 0, 0)),
		result(802, awayID, homeID, 1, 1, kickoff.AddDate(-1, -6, 0)),
	}
	var table []sportsdata.StandingRow
	for rank := 1; rank <= 20; rank++ {
		table = append(table, sportsdata.StandingRow{Rank: rank, TeamID: 200 + rank, Points: 52 - 2*rank})
	}
	table[0].TeamID, table[2].TeamID = homeID, awayID
	f.Tables[testLeague] = table
	f.Odds[testFixture] = &sportsdata.Odds{Home: decimal.NewFromFloat(2.0), Draw: decimal.NewFromFloat(3.5), Away: decimal.NewFromFloat(4.0)}
	f.Forecasts["London"] = &sportsdata.Weather{City: "London", TempC: 15, WindKph: 30, PrecipMM: 5}
	f.Referees["M Oliver"] = &sportsdata.RefereeRecord{Name: "M Oliver", Matches: 10, HomeWins: 6, Draws: 2, AwayWins: 2}
	f.XG["Arsenal"] = &sportsdata.XGRecord{Matches: []sportsdata.XGMatch{{XG: 2, XGA: 1}}}
	f.XG["Chelsea"] = &sportsdata.XGRecord{Matches: []sportsdata.XGMatch{{XG: 1, XGA: 1}}}
	f.Transfers[homeID] = []sportsdata.Transfer{{PlayerID: 1, InTeamID: homeID, OutTeamID: 90, Date: kickoff.AddDate(0, -1, 0)}}
	f.Transfers[awayID] = []sportsdata.Transfer{}
	f.Squads[homeID] = []sportsdata.SquadPlayer{{ID: 1, Age: 27}, {ID: 2, Age: 27}}
	f.Squads[awayID] = []sportsdata.SquadPlayer{{ID: 3, Age: 22}, {ID: 4, Age: 24}}

	rec, err := newBuilder(f, ratingsMap{}).Build(context.Background(), request(testFixture))
	require.NoError(t, err)

	assert.Empty(t, rec.Defaulted)
	assert.Equal(t, podds.MatchTitleRace, rec.MatchType)

	h, a := rec.Home, rec.Away
	assert.InDelta(t, 0.5+(2.0-0.5)/6, h[podds.FactorForm], 1e-9)
	assert.InDelta(t, 0.5, h[podds.FactorH2H], 1e-9)
	assert.InDelta(t, 0.0, a[podds.FactorH2H], 1e-9)
	assert.InDelta(t, (2.0/20+1)/2, h[podds.FactorLeaguePosition], 1e-9)
	assert.InDelta(t, 0.85, h[podds.FactorMotivation], 1e-9)
	assert.InDelta(t, 0.85, a[podds.FactorMotivation], 1e-9)
	assert.InDelta(t, 0.5+(2.0/3-0.5)/2, h[podds.FactorRecentXG], 1e-9)
	assert.InDelta(t, 0.7, h[podds.FactorWeather], 1e-9)
	assert.InDelta(t, 0.3, a[podds.FactorWeather], 1e-9)
	assert.InDelta(t, 0.65, h[podds.FactorReferee], 1e-9)
	assert.InDelta(t, 2.0/3, h[podds.FactorBettingOdds], 1e-6)
	assert.InDelta(t, 0.55, h[podds.FactorTransferImpact], 1e-9)
	assert.InDelta(t, 0.5, a[podds.FactorTransferImpact], 1e-9)
	assert.InDelta(t, 1.0, h[podds.FactorSquadExperience], 1e-9)
	assert.InDelta(t, 0.6, a[podds.FactorSquadExperience], 1e-9)
	assert.InDelta(t, 0.85, h[podds.FactorMatchImportance], 1e-9)
	assert.InDelta(t, 1.0, h[podds.FactorFatigue], 1e-9)
	assert.InDelta(t, 0.2+0.8*2.0/6, a[podds.FactorFatigue], 1e-9)
	assert.True(t, h.Valid())
	assert.True(t, a.Valid())
}

func TestDerbyDetectedFromTeamCities(t *testing.T) {
	f := strongHomeScenario()
	f.Teams["Arsenal"] = &podds.Team{ID: homeID, Name: "Arsenal", City: "London"}
	f.Teams["Chelsea"] = &podds.Team{ID: awayID, Name: "Chelsea", City: "london"}

	rec, err := newBuilder(f, nil).Build(context.Background(), request(testFixture))
	require.NoError(t, err)
	assert.Equal(t, podds.MatchDerby, rec.MatchType)
	assert.InDelta(t, 0.9, rec.Home[podds.FactorMatchImportance], 1e-9)
}

func TestMissingSeasonStatisticsIsInsufficientData(t *testing.T) {
	f := flatScenario()
	delete(f.Stats, awayID)
	_, err := newBuilder(f, nil).Build(context.Background(), request(0))
	assert.True(t, errors.Is(err, ErrInsufficientData))

	f = flatScenario()
	f.Stats[homeID] = &sportsdata.TeamStatistics{TeamID: homeID}
	_, err = newBuilder(f, nil).Build(context.Background(), request(0))
	assert.True(t, errors.Is(err, ErrInsufficientData))
}

func TestMalformedRequest(t *testing.T) {
	b := newBuilder(flatScenario(), nil)
	r := request(0)
	r.AwayID = homeID
	_, err := b.Build(context.Background(), r)
	assert.True(t, errors.Is(err, ErrMissingInput))

	r = request(0)
	r.League.Season = 0
	_, err = b.Build(context.Background(), r)
	assert.True(t, errors.Is(err, ErrMissingInput))
}

func TestLeagueAverageFallsBackToDefault(t *testing.T) {
	f := flatScenario()
	delete(f.Results, testLeague)
	rec, err := newBuilder(f, nil).Build(context.Background(), request(0))
	require.NoError(t, err)
	assert.InDelta(t, 1.35, rec.Raw.LeagueAvgGoals, 1e-9)
	assert.Contains(t, rec.Defaulted, "league_avg_goals")
}

func TestMismatchedFixtureIsIgnored(t *testing.T) {
	f := strongHomeScenario()
	f.Fixtures[testFixture].AwayID = 77
	rec, err := newBuilder(f, nil).Build(context.Background(), request(testFixture))
	require.NoError(t, err)
	assert.Contains(t, rec.Defaulted, "fixture")
}

func TestRecentResultsAfterKickoffAreIgnored(t *testing.T) {
	f := flatScenario()
	f.Last[homeID] = []podds.Fixture{
		result(990, homeID, 60, 9, 0, kickoff.Add(time.Hour)),
	}
	f.Last[awayID] = []podds.Fixture{}
	rec, err := newBuilder(f, nil).Build(context.Background(), request(0))
	require.NoError(t, err)
	// the 9-0 must not lift the home attack above its season mean
	assert.InDelta(t, 1.2, rec.Raw.HomeAttack, 1e-9)
}
