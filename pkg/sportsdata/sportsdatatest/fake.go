// Package sportsdatatest provides an in-memory sportsdata.Client for tests
package sportsdatatest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/richard-senior/podds/pkg/podds"
	"github.com/richard-senior/podds/pkg/sportsdata"
)

// Fake serves canned data. Anything not configured answers not_found. Populate the
// maps before use; only the call counters are written concurrently
type Fake struct {
	Teams     map[string]*podds.Team
	Stats     map[int]*sportsdata.TeamStatistics
	Leagues   map[int]*podds.LeagueInfo
	Fixtures  map[int]*podds.Fixture
	ByDate    map[string][]podds.Fixture // keyed by 2006-01-02
	Last      map[int][]podds.Fixture    // newest first
	Results   map[int][]podds.Fixture    // by league
	H2H       []podds.Fixture
	Injuries  map[int][]sportsdata.Injury
	Transfers map[int][]sportsdata.Transfer
	Squads    map[int][]sportsdata.SquadPlayer
	Players   map[int][]sportsdata.PlayerSeason
	Scorers   map[int][]sportsdata.PlayerSeason // by league
	Odds      map[int]*sportsdata.Odds
	Referees  map[string]*sportsdata.RefereeRecord
	Tables    map[int][]sportsdata.StandingRow
	XG        map[string]*sportsdata.XGRecord
	Forecasts map[string]*sportsdata.Weather

	// Errs forces an error for an operation name
	Errs map[string]error
	// Delay is applied to every call and cut short by the context
	Delay time.Duration

	mu    sync.Mutex
	calls map[string]int
}

// New returns an empty fake
func New() *Fake {
	return &Fake{
		Teams:     map[string]*podds.Team{},
		Stats:     map[int]*sportsdata.TeamStatistics{},
		Leagues:   map[int]*podds.LeagueInfo{},
		Fixtures:  map[int]*podds.Fixture{},
		ByDate:    map[string][]podds.Fixture{},
		Last:      map[int][]podds.Fixture{},
		Results:   map[int][]podds.Fixture{},
		Injuries:  map[int][]sportsdata.Injury{},
		Transfers: map[int][]sportsdata.Transfer{},
		Squads:    map[int][]sportsdata.SquadPlayer{},
		Players:   map[int][]sportsdata.PlayerSeason{},
		Scorers:   map[int][]sportsdata.PlayerSeason{},
		Odds:      map[int]*sportsdata.Odds{},
		Referees:  map[string]*sportsdata.RefereeRecord{},
		Tables:    map[int][]sportsdata.StandingRow{},
		XG:        map[string]*sportsdata.XGRecord{},
		Forecasts: map[string]*sportsdata.Weather{},
		Errs:      map[string]error{},
		calls:     map[string]int{},
	}
}

// Calls is how many times op was invoked
func (f *Fake) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// TotalCalls counts every invocation
func (f *Fake) TotalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func (f *Fake) enter(ctx context.Context, op string) error {
	f.mu.Lock()
	f.calls[op]++
	f.mu.Unlock()

	if f.Delay > 0 {
		t := time.NewTimer(f.Delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return &sportsdata.Error{Op: op, Kind: sportsdata.KindTimeout, Err: ctx.Err()}
		case <-t.C:
		}
	}
	if err := ctx.Err(); err != nil {
		return &sportsdata.Error{Op: op, Kind: sportsdata.KindTimeout, Err: err}
	}
	return f.Errs[op]
}

func missing(op string) error {
	return &sportsdata.Error{Op: op, Kind: sportsdata.KindNotFound}
}

func found[T any](ctx context.Context, f *Fake, op string, v T, ok bool) (T, error) {
	var zero T
	if err := f.enter(ctx, op); err != nil {
		return zero, err
	}
	if !ok {
		return zero, missing(op)
	}
	return v, nil
}

func (f *Fake) TeamByName(ctx context.Context, name string) (*podds.Team, error) {
	t, ok := f.Teams[name]
	return found(ctx, f, "team", t, ok)
}

func (f *Fake) TeamStatistics(ctx context.Context, teamID, leagueID, season int) (*sportsdata.TeamStatistics, error) {
	s, ok := f.Stats[teamID]
	return found(ctx, f, "team_stats", s, ok)
}

func (f *Fake) League(ctx context.Context, leagueID, season int) (*podds.LeagueInfo, error) {
	l, ok := f.Leagues[leagueID]
	return found(ctx, f, "league", l, ok)
}

func (f *Fake) FixturesByDate(ctx context.Context, date time.Time, leagueIDs []int, season int) ([]podds.Fixture, error) {
	if err := f.enter(ctx, "fixtures_by_date"); err != nil {
		return nil, err
	}
	wanted := make(map[int]bool, len(leagueIDs))
	for _, id := range leagueIDs {
		wanted[id] = true
	}
	var out []podds.Fixture
	for _, fx := range f.ByDate[date.UTC().Format("2006-01-02")] {
		if wanted[fx.LeagueID] {
			out = append(out, fx)
		}
	}
	return out, nil
}

func (f *Fake) Fixture(ctx context.Context, fixtureID int) (*podds.Fixture, error) {
	fx, ok := f.Fixtures[fixtureID]
	return found(ctx, f, "fixture", fx, ok)
}

func (f *Fake) TeamLastMatches(ctx context.Context, teamID, n int) ([]podds.Fixture, error) {
	rows, ok := f.Last[teamID]
	if ok && n < len(rows) {
		rows = rows[:n]
	}
	return found(ctx, f, "team_last_matches", rows, ok)
}

func (f *Fake) LeagueResults(ctx context.Context, leagueID, season int) ([]podds.Fixture, error) {
	rows, ok := f.Results[leagueID]
	return found(ctx, f, "league_results", rows, ok)
}

func (f *Fake) HeadToHead(ctx context.Context, teamA, teamB, n int) ([]podds.Fixture, error) {
	rows := f.H2H
	if n < len(rows) {
		rows = rows[:n]
	}
	return found(ctx, f, "h2h", rows, f.H2H != nil)
}

func (f *Fake) UpcomingFixture(ctx context.Context, homeID, awayID int) (*podds.Fixture, error) {
	if err := f.enter(ctx, "upcoming_fixture"); err != nil {
		return nil, err
	}
	var next []*podds.Fixture
	for _, fx := range f.Fixtures {
		if fx.HomeID == homeID && fx.AwayID == awayID && fx.Status == podds.StatusScheduled {
			next = append(next, fx)
		}
	}
	if len(next) == 0 {
		return nil, missing("upcoming_fixture")
	}
	sort.Slice(next, func(i, j int) bool { return next[i].Kickoff.Before(next[j].Kickoff) })
	return next[0], nil
}

func (f *Fake) FixtureInjuries(ctx context.Context, fixtureID int) ([]sportsdata.Injury, error) {
	rows, ok := f.Injuries[fixtureID]
	return found(ctx, f, "injuries", rows, ok)
}

func (f *Fake) TeamTransfers(ctx context.Context, teamID int) ([]sportsdata.Transfer, error) {
	rows, ok := f.Transfers[teamID]
	return found(ctx, f, "transfers", rows, ok)
}

func (f *Fake) TeamSquad(ctx context.Context, teamID int) ([]sportsdata.SquadPlayer, error) {
	rows, ok := f.Squads[teamID]
	return found(ctx, f, "squad", rows, ok)
}

func (f *Fake) PlayerStatistics(ctx context.Context, teamID, season int) ([]sportsdata.PlayerSeason, error) {
	rows, ok := f.Players[teamID]
	return found(ctx, f, "players", rows, ok)
}

func (f *Fake) TopScorers(ctx context.Context, leagueID, season int) ([]sportsdata.PlayerSeason, error) {
	rows, ok := f.Scorers[leagueID]
	return found(ctx, f, "top_scorers", rows, ok)
}

func (f *Fake) FixtureOdds(ctx context.Context, fixtureID int) (*sportsdata.Odds, error) {
	o, ok := f.Odds[fixtureID]
	return found(ctx, f, "odds", o, ok)
}

func (f *Fake) RefereeHistory(ctx context.Context, referee string, leagueID, season int) (*sportsdata.RefereeRecord, error) {
	r, ok := f.Referees[referee]
	return found(ctx, f, "referee_history", r, ok)
}

func (f *Fake) Standings(ctx context.Context, leagueID, season int) ([]sportsdata.StandingRow, error) {
	rows, ok := f.Tables[leagueID]
	return found(ctx, f, "standings", rows, ok)
}

func (f *Fake) ExpectedGoals(ctx context.Context, teamName string, season int) (*sportsdata.XGRecord, error) {
	r, ok := f.XG[teamName]
	return found(ctx, f, "xg", r, ok)
}

func (f *Fake) Weather(ctx context.Context, city string, at time.Time) (*sportsdata.Weather, error) {
	w, ok := f.Forecasts[city]
	return found(ctx, f, "weather", w, ok)
}

var _ sportsdata.Client = (*Fake)(nil)
