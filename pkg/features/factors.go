package features

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/richard-senior/podds/pkg/podds"
	"github.com/richard-senior/podds/pkg/sportsdata"
)

const (
	// baselineHomeAdvantage maps to a home_advantage factor of 0.6
	baselineHomeAdvantage = 1.15
	// refereeBaseline is the home win rate of an unbiased referee
	refereeBaseline = 0.45
	// minRefereeMatches is the sample below which a referee record is ignored
	minRefereeMatches = 5
	// transferWindow bounds which transfers still count as recent
	transferWindow = 180 * 24 * time.Hour
	// peakAge is the squad mean age treated as most experienced
	peakAge = 27.0
	// xgWindow is how many recent matches feed the recent_xg factor
	xgWindow = 5
)

// importance of each match type for the match_importance factor
var importance = map[podds.MatchType]float64{
	podds.MatchDerby:      0.9,
	podds.MatchTitleRace:  0.85,
	podds.MatchRelegation: 0.8,
	podds.MatchCup:        0.75,
	podds.MatchMidTable:   0.5,
}

// aux holds the lookups that do not depend on each other. Each is fetched
// concurrently; failures are recorded and turned into defaults afterwards
type aux struct {
	h2h       []podds.Fixture
	h2hErr    error
	standings []sportsdata.StandingRow
	standErr  error
	odds      *sportsdata.Odds
	oddsErr   error
	xg        [2]*sportsdata.XGRecord
	xgErr     [2]error
	weather   *sportsdata.Weather
	weathErr  error
	referee   *sportsdata.RefereeRecord
	refErr    error
	transfers [2][]sportsdata.Transfer
	transErr  [2]error
	squad     [2][]sportsdata.SquadPlayer
	squadErr  [2]error
	city      [2]string
}

func (b *Builder) lookups(ctx context.Context, rec *podds.FeatureRecord, fixture podds.Fixture, home, away *side) *aux {
	a := &aux{}
	league, season := rec.League.ID, rec.League.Season
	sides := [2]*side{home, away}

	fns := []func(context.Context){
		func(ctx context.Context) {
			a.h2h, a.h2hErr = b.client.HeadToHead(ctx, home.id, away.id, b.params.H2HWindow)
		},
		func(ctx context.Context) {
			a.standings, a.standErr = b.client.Standings(ctx, league, season)
		},
	}
	if rec.FixtureID > 0 {
		fns = append(fns, func(ctx context.Context) {
			a.odds, a.oddsErr = b.client.FixtureOdds(ctx, rec.FixtureID)
		})
	}
	if fixture.City != "" {
		fns = append(fns, func(ctx context.Context) {
			a.weather, a.weathErr = b.client.Weather(ctx, fixture.City, fixture.Kickoff)
		})
	}
	if fixture.Referee != "" {
		fns = append(fns, func(ctx context.Context) {
			a.referee, a.refErr = b.client.RefereeHistory(ctx, fixture.Referee, league, season)
		})
	}
	for i := range sides {
		i, s := i, sides[i]
		fns = append(fns,
			func(ctx context.Context) {
				a.transfers[i], a.transErr[i] = b.client.TeamTransfers(ctx, s.id)
			},
			func(ctx context.Context) {
				a.squad[i], a.squadErr[i] = b.client.TeamSquad(ctx, s.id)
			},
		)
		if s.name != "" {
			fns = append(fns,
				func(ctx context.Context) {
					a.xg[i], a.xgErr[i] = b.client.ExpectedGoals(ctx, s.name, season)
				},
				func(ctx context.Context) {
					// team lookups only feed derby detection, so failures are silent
					if t, err := b.client.TeamByName(ctx, s.name); err == nil {
						a.city[i] = t.City
					}
				},
			)
		}
	}
	group(ctx, fns...)

	if a.city[0] == "" {
		a.city[0] = fixture.City
	}
	return a
}

// factors fills both factor vectors. Relative factors are computed for the home side
// and mirrored; per-team factors are computed for each side
func (b *Builder) factors(ctx context.Context, rec *podds.FeatureRecord, fixture podds.Fixture, home, away *side) {
	a := b.lookups(ctx, rec, fixture, home, away)

	set := func(f podds.Factor, h, aw float64) {
		rec.Home[f] = podds.Clamp01(h)
		rec.Away[f] = podds.Clamp01(aw)
	}
	relative := func(f podds.Factor, h float64) { set(f, h, 1-podds.Clamp01(h)) }
	def := func(f podds.Factor, err error) {
		set(f, 0.5, 0.5)
		if err != nil {
			b.fallback(rec, f.String(), err)
		} else {
			rec.MarkDefault(f.String())
		}
	}

	// form
	if len(home.recent) > 0 && len(away.recent) > 0 {
		relative(podds.FactorForm, Form(PointsPerGame(home.recent, home.id, b.params.FormWindow), PointsPerGame(away.recent, away.id, b.params.FormWindow)))
	} else {
		def(podds.FactorForm, nil)
	}

	// elo_diff
	if b.ratings != nil {
		rh, ra := b.ratings.GetRating(home.id), b.ratings.GetRating(away.id)
		rec.Raw.HomeElo, rec.Raw.AwayElo = float64(rh), float64(ra)
		relative(podds.FactorEloDiff, EloFactor(float64(rh), float64(ra)))
	} else {
		def(podds.FactorEloDiff, nil)
	}

	// home_advantage
	relative(podds.FactorHomeAdvantage, HomeAdvantageFactor(rec.Raw.HomeAdvantage))

	// h2h
	if a.h2hErr == nil && len(a.h2h) > 0 {
		set(podds.FactorH2H, WinRate(a.h2h, home.id), WinRate(a.h2h, away.id))
	} else {
		def(podds.FactorH2H, a.h2hErr)
	}

	// league_position, motivation and the match type all come from the table
	hRow, aRow, groupSize := standingsRows(a.standings, home.id, away.id)
	haveTable := a.standErr == nil && hRow != nil && aRow != nil
	if haveTable {
		relative(podds.FactorLeaguePosition, LeaguePositionFactor(hRow.Rank, aRow.Rank))
	} else {
		def(podds.FactorLeaguePosition, a.standErr)
	}

	if haveTable {
		rec.MatchType = ClassifyMatch(rec.League, a.city[0], a.city[1], hRow.Rank, aRow.Rank, groupSize)
	} else {
		rec.MatchType = ClassifyMatch(rec.League, a.city[0], a.city[1], 0, 0, 0)
	}

	switch {
	case rec.MatchType == podds.MatchCup:
		set(podds.FactorMotivation, 0.75, 0.75)
	case haveTable:
		leader := a.standings[0].Points
		for _, r := range a.standings {
			if r.Rank == 1 && r.Group == hRow.Group {
				leader = r.Points
			}
		}
		set(podds.FactorMotivation, Motivation(hRow.Rank, hRow.Points, leader, groupSize), Motivation(aRow.Rank, aRow.Points, leader, groupSize))
	default:
		def(podds.FactorMotivation, a.standErr)
	}

	// injuries
	if rec.FixtureID > 0 && !contains(rec.Defaulted, "injuries") {
		set(podds.FactorInjuries, InjuryFactor(len(home.injured), home.keyInjured), InjuryFactor(len(away.injured), away.keyInjured))
	} else {
		set(podds.FactorInjuries, 0.5, 0.5)
		rec.MarkDefault(podds.FactorInjuries.String())
	}

	// recent_xg
	xh, okh := xgStrength(a.xg[0], a.xgErr[0])
	xa, oka := xgStrength(a.xg[1], a.xgErr[1])
	if okh && oka {
		relative(podds.FactorRecentXG, 0.5+(xh-xa)/2)
	} else {
		def(podds.FactorRecentXG, firstErr(a.xgErr[0], a.xgErr[1]))
	}

	// weather
	if a.weathErr == nil && a.weather != nil {
		s := WeatherSeverity(a.weather)
		set(podds.FactorWeather, 0.5+0.2*s, 0.5-0.2*s)
	} else {
		def(podds.FactorWeather, a.weathErr)
	}

	// referee
	if a.refErr == nil && a.referee != nil && a.referee.Matches >= minRefereeMatches {
		relative(podds.FactorReferee, RefereeFactor(a.referee.HomeWinRate()))
	} else {
		def(podds.FactorReferee, a.refErr)
	}

	// betting_odds
	if a.oddsErr == nil && a.odds != nil {
		if d, ok := a.odds.Implied(); ok && d.Home+d.Away > 0 {
			relative(podds.FactorBettingOdds, d.Home/(d.Home+d.Away))
		} else {
			def(podds.FactorBettingOdds, nil)
		}
	} else {
		def(podds.FactorBettingOdds, a.oddsErr)
	}

	// tactical_matchup
	relative(podds.FactorTacticalMatchup, TacticalMatchup(home.attack, home.defense, away.attack, away.defense))

	// transfer_impact
	if a.transErr[0] == nil && a.transErr[1] == nil {
		set(podds.FactorTransferImpact,
			TransferImpact(a.transfers[0], home.id, fixture.Kickoff),
			TransferImpact(a.transfers[1], away.id, fixture.Kickoff))
	} else {
		def(podds.FactorTransferImpact, firstErr(a.transErr[0], a.transErr[1]))
	}

	// squad_experience
	eh, okh := SquadExperience(a.squad[0])
	ea, oka := SquadExperience(a.squad[1])
	if a.squadErr[0] == nil && a.squadErr[1] == nil && okh && oka {
		set(podds.FactorSquadExperience, eh, ea)
	} else {
		def(podds.FactorSquadExperience, firstErr(a.squadErr[0], a.squadErr[1]))
	}

	// match_importance
	imp := importance[rec.MatchType]
	set(podds.FactorMatchImportance, imp, imp)

	// fatigue
	fh, okh := Fatigue(home.recent, fixture.Kickoff)
	fa, oka := Fatigue(away.recent, fixture.Kickoff)
	if okh && oka {
		set(podds.FactorFatigue, fh, fa)
	} else {
		def(podds.FactorFatigue, nil)
	}

	// recent_performance
	if len(home.recent) > 0 && len(away.recent) > 0 {
		set(podds.FactorRecentPerformance, RecentPerformance(home.recent, home.id), RecentPerformance(away.recent, away.id))
	} else {
		def(podds.FactorRecentPerformance, nil)
	}
}

/////////////////////////////////////////////////////////////////////////
////// Factor formulas
/////////////////////////////////////////////////////////////////////////

// PointsPerGame over the first n results of rows, which are newest first
func PointsPerGame(rows []podds.Fixture, teamID, n int) float64 {
	points, played := 0, 0
	for i := range rows {
		if played >= n {
			break
		}
		scored, conceded, _, ok := rows[i].GoalsFor(teamID)
		if !ok || !rows[i].HasResult() {
			continue
		}
		played++
		switch {
		case scored > conceded:
			points += 3
		case scored == conceded:
			points++
		}
	}
	if played == 0 {
		return 0
	}
	return float64(points) / float64(played)
}

// Form maps a points-per-game difference onto [0,1]; a 3 point gap saturates
func Form(homePPG, awayPPG float64) float64 {
	return podds.Clamp01(0.5 + (homePPG-awayPPG)/6)
}

// EloFactor is the home side's Elo expected score
func EloFactor(homeRating, awayRating float64) float64 {
	return 1 / (1 + math.Pow(10, -(homeRating-awayRating)/400))
}

// HomeAdvantageFactor is 0.6 at the baseline multiplier and scales with it
func HomeAdvantageFactor(mult float64) float64 {
	return podds.Clamp01(0.6 * mult / baselineHomeAdvantage)
}

// WinRate is the share of meetings teamID won
func WinRate(meetings []podds.Fixture, teamID int) float64 {
	wins, n := 0, 0
	for i := range meetings {
		scored, conceded, _, ok := meetings[i].GoalsFor(teamID)
		if !ok || !meetings[i].HasResult() {
			continue
		}
		n++
		if scored > conceded {
			wins++
		}
	}
	if n == 0 {
		return 0.5
	}
	return float64(wins) / float64(n)
}

// LeaguePositionFactor maps the rank gap onto [0,1]; a higher placed home side scores above 0.5
func LeaguePositionFactor(homeRank, awayRank int) float64 {
	return podds.Clamp01((float64(awayRank-homeRank)/20 + 1) / 2)
}

// Motivation rates what a team is playing for given its place in a table of size n
func Motivation(rank, points, leaderPoints, n int) float64 {
	switch {
	case leaderPoints-points <= 6:
		return 0.85
	case n >= minTableSize && rank > n-relegationZone:
		return 0.8
	case rank <= 6:
		return 0.65
	default:
		return 0.45
	}
}

// InjuryFactor is 1 for a full squad, less 0.1 per absentee and a further 0.2 when a
// key player is out
func InjuryFactor(injured int, keyOut bool) float64 {
	v := 1 - 0.1*float64(injured)
	if keyOut {
		v -= 0.2
	}
	return podds.Clamp01(v)
}

func xgStrength(rec *sportsdata.XGRecord, err error) (float64, bool) {
	if err != nil {
		return 0, false
	}
	xg, xga, ok := rec.Averages(xgWindow)
	if !ok || xg+xga <= 0 {
		return 0, false
	}
	return xg / (xg + xga), true
}

// WeatherSeverity is 0 for mild dry conditions rising to 1 for extreme ones
func WeatherSeverity(w *sportsdata.Weather) float64 {
	s := w.PrecipMM/10 + w.WindKph/60 + math.Abs(w.TempC-15)/40
	return podds.Clamp(s, 0, 1, 0)
}

// RefereeFactor shifts 0.5 by how far the referee's home win rate is from the baseline
func RefereeFactor(homeWinRate float64) float64 {
	return podds.Clamp01(0.5 + (homeWinRate - refereeBaseline))
}

// TacticalMatchup compares the home attack against the away defence with the reverse
func TacticalMatchup(homeAtt, homeDef, awayAtt, awayDef float64) float64 {
	h := homeAtt * awayDef
	a := awayAtt * homeDef
	if h+a <= 0 {
		return 0.5
	}
	return h / (h + a)
}

// TransferImpact is 0.5 moved 0.05 per net signing in the window before kickoff
func TransferImpact(transfers []sportsdata.Transfer, teamID int, kickoff time.Time) float64 {
	net := 0
	for _, t := range transfers {
		if t.Date.After(kickoff) || kickoff.Sub(t.Date) > transferWindow {
			continue
		}
		switch teamID {
		case t.InTeamID:
			net++
		case t.OutTeamID:
			net--
		}
	}
	return podds.Clamp01(0.5 + 0.05*float64(net))
}

// SquadExperience peaks at a mean age of 27 and falls 0.1 per year either side
func SquadExperience(squad []sportsdata.SquadPlayer) (float64, bool) {
	total, n := 0, 0
	for _, p := range squad {
		if p.Age > 0 {
			total += p.Age
			n++
		}
	}
	if n == 0 {
		return 0.5, false
	}
	mean := float64(total) / float64(n)
	return podds.Clamp01(1 - math.Abs(mean-peakAge)/10), true
}

// Fatigue is 0.2 with a day's rest rising to 1 after a week. rows are newest first
func Fatigue(rows []podds.Fixture, kickoff time.Time) (float64, bool) {
	for i := range rows {
		if rows[i].Kickoff.Before(kickoff) {
			days := kickoff.Sub(rows[i].Kickoff).Hours() / 24
			return podds.Clamp(0.2+0.8*(days-1)/6, 0.2, 1, 0.5), true
		}
	}
	return 0.5, false
}

// RecentPerformance is 0.5 moved by the linearly weighted goal difference per match
func RecentPerformance(rows []podds.Fixture, teamID int) float64 {
	n := len(rows)
	var gd, wsum float64
	for i := range rows {
		scored, conceded, _, ok := rows[i].GoalsFor(teamID)
		if !ok {
			continue
		}
		w := float64(n - i)
		gd += w * float64(scored-conceded)
		wsum += w
	}
	if wsum == 0 {
		return 0.5
	}
	return podds.Clamp01(0.5 + gd/wsum/4)
}

/////////////////////////////////////////////////////////////////////////
////// Helpers
/////////////////////////////////////////////////////////////////////////

// standingsRows finds both teams and the size of the home team's group
func standingsRows(rows []sportsdata.StandingRow, homeID, awayID int) (*sportsdata.StandingRow, *sportsdata.StandingRow, int) {
	var h, a *sportsdata.StandingRow
	for i := range rows {
		switch rows[i].TeamID {
		case homeID:
			h = &rows[i]
		case awayID:
			a = &rows[i]
		}
	}
	if h == nil {
		return h, a, 0
	}
	n := 0
	for i := range rows {
		if rows[i].Group == h.Group {
			n++
		}
	}
	return h, a, n
}

func sortByMinutes(players []sportsdata.PlayerSeason) {
	sort.SliceStable(players, func(i, j int) bool { return players[i].Minutes > players[j].Minutes })
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func sameCity(a, b string) bool {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	return a != "" && strings.EqualFold(a, b)
}
