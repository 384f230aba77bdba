package features

import (
	"math/rand"
	"testing"
	"time"

	"github.com/richard-senior/podds/pkg/podds"
	"github.com/richard-senior/podds/pkg/sportsdata"
	"github.com/stretchr/testify/assert"
)

func TestLeagueAverage(t *testing.T) {
	rows := leagueResults([2]int{3, 1}, [2]int{0, 0})
	rows = append(rows, podds.Fixture{ID: 9, Status: podds.StatusScheduled})
	avg, ok := LeagueAverage(rows, 100)
	assert.True(t, ok)
	assert.InDelta(t, 1.0, avg, 1e-9)

	avg, ok = LeagueAverage(rows, 1)
	assert.True(t, ok)
	assert.InDelta(t, 2.0, avg, 1e-9)

	_, ok = LeagueAverage(nil, 100)
	assert.False(t, ok)
}

func TestHomeAdvantageClamped(t *testing.T) {
	v, ok := HomeAdvantage(3.0, 1.0, 1.15)
	assert.True(t, ok)
	assert.Equal(t, 1.35, v)

	v, ok = HomeAdvantage(1.0, 2.0, 1.15)
	assert.True(t, ok)
	assert.Equal(t, 1.0, v)

	v, ok = HomeAdvantage(1.8, 0, 1.15)
	assert.False(t, ok)
	assert.Equal(t, 1.15, v)
}

func TestWeightedVenueAveragesFavoursRecentMatches(t *testing.T) {
	rows := []podds.Fixture{
		result(1, homeID, 2, 3, 0, kickoff.AddDate(0, 0, -7)),
		result(2, 3, homeID, 5, 5, kickoff.AddDate(0, 0, -14)),
		result(3, homeID, 4, 0, 1, kickoff.AddDate(0, 0, -21)),
	}
	gf, ga, ok := WeightedVenueAverages(rows, homeID, true)
	assert.True(t, ok)
	// weights 2 and 1 over the two home matches
	assert.InDelta(t, 2.0, gf, 1e-9)
	assert.InDelta(t, 1.0/3, ga, 1e-9)

	_, _, ok = WeightedVenueAverages(rows, 99, true)
	assert.False(t, ok)
}

func TestBlend(t *testing.T) {
	assert.InDelta(t, 0.7*2+0.3*1, Blend(2, true, 1), 1e-9)
	assert.InDelta(t, 1.0, Blend(5, false, 1), 1e-9)
	assert.Equal(t, rateFloor, Blend(0, true, 0))
}

func TestIntensities(t *testing.T) {
	h, a := Intensities(1.2, 1.2, 1.2, 1.2, 1, 1, 1, 1, 1.2, 1.15, 3)
	assert.InDelta(t, 1.38, h, 1e-9)
	assert.InDelta(t, 1.2, a, 1e-9)

	h, _ = Intensities(4, 1, 1, 4, 1, 1, 1, 1, 1, 1.35, 3)
	assert.Equal(t, 3.0, h)

	h, a = Intensities(1, 1, 1, 1, 1, 1, 1, 1, 0, 1.15, 3)
	assert.Zero(t, h)
	assert.Zero(t, a)
}

func TestKeyPlayers(t *testing.T) {
	scorers := []sportsdata.PlayerSeason{
		{PlayerID: 1, TeamID: homeID, Goals: 10},
		{PlayerID: 2, TeamID: awayID, Goals: 12},
	}
	var squad []sportsdata.PlayerSeason
	for i := 0; i < 8; i++ {
		squad = append(squad, sportsdata.PlayerSeason{PlayerID: 10 + i, TeamID: homeID, Minutes: 100 * (i + 1)})
	}
	key := KeyPlayers(homeID, scorers, squad)
	assert.True(t, key[1])
	assert.False(t, key[2])
	// the top quartile of eight by minutes is two players
	assert.True(t, key[17])
	assert.True(t, key[16])
	assert.False(t, key[15])
	assert.Len(t, key, 3)
}

func TestFactorFormulas(t *testing.T) {
	assert.Equal(t, 1.0, Form(3, 0))
	assert.Equal(t, 0.5, Form(1.5, 1.5))
	assert.InDelta(t, 0.5, EloFactor(1500, 1500), 1e-12)
	assert.InDelta(t, 1/(1+1/1.7782794), EloFactor(1600, 1500), 1e-6)
	assert.InDelta(t, 0.6, HomeAdvantageFactor(1.15), 1e-12)
	assert.InDelta(t, 0.975, LeaguePositionFactor(1, 20), 1e-12)
	assert.InDelta(t, 0.5, LeaguePositionFactor(7, 7), 1e-12)
	assert.Equal(t, 1.0, InjuryFactor(0, false))
	assert.InDelta(t, 0.5, InjuryFactor(3, true), 1e-12)
	assert.Equal(t, 0.0, InjuryFactor(12, true))
	assert.InDelta(t, 0.6, RefereeFactor(0.55), 1e-12)
	assert.InDelta(t, 0.5, RefereeFactor(refereeBaseline), 1e-12)
	assert.InDelta(t, 0.35, RefereeFactor(0.3), 1e-12)
	assert.InDelta(t, 0.5, TacticalMatchup(1, 1, 1, 1), 1e-12)
	assert.InDelta(t, 0.8, TacticalMatchup(2, 1, 1, 2), 1e-12)
	assert.Equal(t, 0.5, TacticalMatchup(0, 0, 0, 0))
}

func TestMotivation(t *testing.T) {
	assert.Equal(t, 0.85, Motivation(2, 60, 64, 20))
	assert.Equal(t, 0.8, Motivation(18, 20, 64, 20))
	assert.Equal(t, 0.65, Motivation(5, 50, 64, 20))
	assert.Equal(t, 0.45, Motivation(10, 40, 64, 20))
}

func TestWeatherSeverity(t *testing.T) {
	assert.Zero(t, WeatherSeverity(&sportsdata.Weather{TempC: 15}))
	assert.InDelta(t, 0.25, WeatherSeverity(&sportsdata.Weather{TempC: 5}), 1e-12)
	assert.Equal(t, 1.0, WeatherSeverity(&sportsdata.Weather{TempC: -5, WindKph: 80, PrecipMM: 20}))
}

func TestTransferImpactWindow(t *testing.T) {
	transfers := []sportsdata.Transfer{
		{InTeamID: homeID, Date: kickoff.AddDate(0, -2, 0)},
		{InTeamID: homeID, Date: kickoff.AddDate(0, -1, 0)},
		{OutTeamID: homeID, Date: kickoff.AddDate(0, 0, -3)},
		// too old and after kick-off
		{InTeamID: homeID, Date: kickoff.AddDate(-1, 0, 0)},
		{InTeamID: homeID, Date: kickoff.Add(time.Hour)},
	}
	assert.InDelta(t, 0.55, TransferImpact(transfers, homeID, kickoff), 1e-12)
	assert.InDelta(t, 0.5, TransferImpact(transfers, awayID, kickoff), 1e-12)
}

func TestSquadExperience(t *testing.T) {
	v, ok := SquadExperience([]sportsdata.SquadPlayer{{Age: 30}, {Age: 30}, {Age: 0}})
	assert.True(t, ok)
	assert.InDelta(t, 0.7, v, 1e-12)

	_, ok = SquadExperience(nil)
	assert.False(t, ok)
}

func TestFatigue(t *testing.T) {
	v, ok := Fatigue([]podds.Fixture{result(1, homeID, 2, 1, 0, kickoff.AddDate(0, 0, -1))}, kickoff)
	assert.True(t, ok)
	assert.InDelta(t, 0.2, v, 1e-12)

	v, _ = Fatigue([]podds.Fixture{result(1, homeID, 2, 1, 0, kickoff.AddDate(0, 0, -30))}, kickoff)
	assert.Equal(t, 1.0, v)

	_, ok = Fatigue(nil, kickoff)
	assert.False(t, ok)
}

func TestRecentPerformanceAndWinRate(t *testing.T) {
	rows := []podds.Fixture{
		result(1, homeID, 2, 2, 0, kickoff.AddDate(0, 0, -7)),
		result(2, 3, homeID, 1, 1, kickoff.AddDate(0, 0, -14)),
	}
	// weights 2 and 1: (2*2 + 0) / 3 goals per match
	assert.InDelta(t, 0.5+4.0/3/4, RecentPerformance(rows, homeID), 1e-12)
	assert.Equal(t, 0.5, RecentPerformance(nil, homeID))

	assert.InDelta(t, 0.5, WinRate(rows, homeID), 1e-12)
	assert.Equal(t, 0.0, WinRate(rows, 2))
	assert.Equal(t, 0.5, WinRate(nil, homeID))
}

func TestClassifyMatch(t *testing.T) {
	league := podds.LeagueInfo{ID: testLeague, Season: testSeason, Type: "League"}
	cup := podds.LeagueInfo{ID: 45, Season: testSeason, Type: "Cup"}

	assert.Equal(t, podds.MatchCup, ClassifyMatch(cup, "London", "London", 1, 2, 20))
	assert.Equal(t, podds.MatchDerby, ClassifyMatch(league, "Manchester", " manchester", 1, 20, 20))
	assert.Equal(t, podds.MatchTitleRace, ClassifyMatch(league, "London", "Liverpool", 2, 4, 20))
	assert.Equal(t, podds.MatchRelegation, ClassifyMatch(league, "London", "Liverpool", 10, 17, 20))
	assert.Equal(t, podds.MatchMidTable, ClassifyMatch(league, "London", "Liverpool", 10, 16, 20))
	assert.Equal(t, podds.MatchMidTable, ClassifyMatch(league, "", "", 0, 0, 0))
}

func TestFactorFormulasStayInUnitRange(t *testing.T) {
	rng := rand.New(rand.NewSource(17))
	kickoff := time.Date(2024, 3, 9, 15, 0, 0, 0, time.UTC)
	inRange := func(name string, v float64) {
		t.Helper()
		assert.True(t, v >= 0 && v <= 1, "%s out of range: %v", name, v)
	}
	for i := 0; i < 500; i++ {
		inRange("form", Form(rng.Float64()*3, rng.Float64()*3))
		inRange("elo", EloFactor(1000+rng.Float64()*1200, 1000+rng.Float64()*1200))
		inRange("home_advantage", HomeAdvantageFactor(1+rng.Float64()*0.35))
		inRange("league_position", LeaguePositionFactor(1+rng.Intn(24), 1+rng.Intn(24)))
		inRange("motivation", Motivation(1+rng.Intn(20), rng.Intn(90), 60+rng.Intn(40), 20))
		inRange("injuries", InjuryFactor(rng.Intn(15), rng.Intn(2) == 0))
		inRange("referee", RefereeFactor(rng.Float64()))
		inRange("tactical", TacticalMatchup(rng.Float64()*3, rng.Float64()*3, rng.Float64()*3, rng.Float64()*3))
		inRange("weather", WeatherSeverity(&sportsdata.Weather{
			TempC: rng.Float64()*60 - 20, WindKph: rng.Float64() * 120, PrecipMM: rng.Float64() * 30,
		}))

		var rows []podds.Fixture
		var transfers []sportsdata.Transfer
		var squad []sportsdata.SquadPlayer
		for j := 0; j < 1+rng.Intn(10); j++ {
			rows = append(rows, podds.Fixture{
				ID: j + 1, HomeID: 1, AwayID: 100 + j, Status: podds.StatusFinished,
				Kickoff: kickoff.Add(-time.Duration(j+1+rng.Intn(5)) * 24 * time.Hour),
				Score:   &podds.Score{Home: rng.Intn(7), Away: rng.Intn(7)},
			})
			transfers = append(transfers, sportsdata.Transfer{
				Date: kickoff.Add(-time.Duration(rng.Intn(400)) * 24 * time.Hour), InTeamID: 1 + rng.Intn(2), OutTeamID: 3,
			})
			squad = append(squad, sportsdata.SquadPlayer{ID: j, Age: 16 + rng.Intn(25)})
		}
		inRange("h2h", WinRate(rows, 1))
		inRange("recent_performance", RecentPerformance(rows, 1))
		inRange("transfer_impact", TransferImpact(transfers, 1, kickoff))
		exp, _ := SquadExperience(squad)
		inRange("squad_experience", exp)
		fat, _ := Fatigue(rows, kickoff)
		inRange("fatigue", fat)
	}
}
