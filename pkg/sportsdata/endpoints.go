package sportsdata

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/richard-senior/podds/pkg/cache"
	"github.com/richard-senior/podds/pkg/podds"
	"github.com/shopspring/decimal"
)

/////////////////////////////////////////////////////////////////////////
////// Vendor wire format
/////////////////////////////////////////////////////////////////////////

type wireTeam struct {
	Team struct {
		ID      int    `json:"id"`
		Name    string `json:"name"`
		Country string `json:"country"`
		Founded int    `json:"founded"`
	} `json:"team"`
	Venue struct {
		City string `json:"city"`
	} `json:"venue"`
}

type wireSplit struct {
	Home  *int `json:"home"`
	Away  *int `json:"away"`
	Total *int `json:"total"`
}

func (s wireSplit) home() int { return deref(s.Home) }
func (s wireSplit) away() int { return deref(s.Away) }

type wireStatistics struct {
	Form     string `json:"form"`
	Fixtures struct {
		Played wireSplit `json:"played"`
		Wins   wireSplit `json:"wins"`
		Draws  wireSplit `json:"draws"`
		Loses  wireSplit `json:"loses"`
	} `json:"fixtures"`
	Goals struct {
		For struct {
			Total wireSplit `json:"total"`
		} `json:"for"`
		Against struct {
			Total wireSplit `json:"total"`
		} `json:"against"`
	} `json:"goals"`
}

type wireFixture struct {
	Fixture struct {
		ID      int    `json:"id"`
		Referee string `json:"referee"`
		Date    string `json:"date"`
		Status  struct {
			Short string `json:"short"`
		} `json:"status"`
		Venue struct {
			City string `json:"city"`
		} `json:"venue"`
	} `json:"fixture"`
	League struct {
		ID     int    `json:"id"`
		Season int    `json:"season"`
		Round  string `json:"round"`
	} `json:"league"`
	Teams struct {
		Home struct {
			ID   int    `json:"id"`
			Name string `json:"name"`
		} `json:"home"`
		Away struct {
			ID   int    `json:"id"`
			Name string `json:"name"`
		} `json:"away"`
	} `json:"teams"`
	Goals struct {
		Home *int `json:"home"`
		Away *int `json:"away"`
	} `json:"goals"`
}

func (w *wireFixture) toFixture() podds.Fixture {
	f := podds.Fixture{
		ID:       w.Fixture.ID,
		HomeID:   w.Teams.Home.ID,
		AwayID:   w.Teams.Away.ID,
		HomeName: w.Teams.Home.Name,
		AwayName: w.Teams.Away.Name,
		LeagueID: w.League.ID,
		Season:   w.League.Season,
		Round:    w.League.Round,
		Status:   podds.ParseFixtureStatus(w.Fixture.Status.Short),
		Referee:  cleanReferee(w.Fixture.Referee),
		City:     w.Fixture.Venue.City,
	}
	if t, err := time.Parse(time.RFC3339, w.Fixture.Date); err == nil {
		f.Kickoff = t.UTC()
	}
	if w.Goals.Home != nil && w.Goals.Away != nil {
		f.Score = &podds.Score{Home: *w.Goals.Home, Away: *w.Goals.Away}
	}
	return f
}

type wireInjury struct {
	Player struct {
		ID     int    `json:"id"`
		Name   string `json:"name"`
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"player"`
	Team struct {
		ID int `json:"id"`
	} `json:"team"`
}

type wireTransfers struct {
	Player struct {
		ID int `json:"id"`
	} `json:"player"`
	Transfers []struct {
		Date  string `json:"date"`
		Type  string `json:"type"`
		Teams struct {
			In struct {
				ID int `json:"id"`
			} `json:"in"`
			Out struct {
				ID int `json:"id"`
			} `json:"out"`
		} `json:"teams"`
	} `json:"transfers"`
}

type wireSquad struct {
	Players []struct {
		ID       int    `json:"id"`
		Name     string `json:"name"`
		Age      *int   `json:"age"`
		Position string `json:"position"`
	} `json:"players"`
}

type wirePlayer struct {
	Player struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	} `json:"player"`
	Statistics []struct {
		Team struct {
			ID int `json:"id"`
		} `json:"team"`
		Games struct {
			Minutes     *int `json:"minutes"`
			Appearences *int `json:"appearences"`
		} `json:"games"`
		Goals struct {
			Total *int `json:"total"`
		} `json:"goals"`
	} `json:"statistics"`
}

func (w *wirePlayer) toSeason(teamID int) PlayerSeason {
	ps := PlayerSeason{PlayerID: w.Player.ID, Name: w.Player.Name, TeamID: teamID}
	for _, s := range w.Statistics {
		if teamID > 0 && s.Team.ID != teamID {
			continue
		}
		if ps.TeamID == 0 {
			ps.TeamID = s.Team.ID
		}
		ps.Minutes += deref(s.Games.Minutes)
		ps.Appearances += deref(s.Games.Appearences)
		ps.Goals += deref(s.Goals.Total)
	}
	return ps
}

type wireOdds struct {
	Bookmakers []struct {
		Name string `json:"name"`
		Bets []struct {
			Name   string `json:"name"`
			Values []struct {
				Value string `json:"value"`
				Odd   string `json:"odd"`
			} `json:"values"`
		} `json:"bets"`
	} `json:"bookmakers"`
}

type wireStandings struct {
	League struct {
		Standings [][]struct {
			Rank int `json:"rank"`
			Team struct {
				ID   int    `json:"id"`
				Name string `json:"name"`
			} `json:"team"`
			Points      int    `json:"points"`
			GoalsDiff   int    `json:"goalsDiff"`
			Group       string `json:"group"`
			Form        string `json:"form"`
			Description string `json:"description"`
			All         struct {
				Played int `json:"played"`
			} `json:"all"`
		} `json:"standings"`
	} `json:"league"`
}

type wireLeague struct {
	League struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
		Type string `json:"type"`
	} `json:"league"`
	Country struct {
		Name string `json:"name"`
	} `json:"country"`
}

func deref(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

// cleanReferee drops the nationality suffix the vendor appends, e.g. "M. Oliver, England"
func cleanReferee(s string) string {
	if i := strings.Index(s, ","); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

func validSeason(season int) bool { return season >= 1900 && season <= 2100 }

func q(kv ...string) url.Values {
	v := url.Values{}
	for i := 0; i+1 < len(kv); i += 2 {
		v.Set(kv[i], kv[i+1])
	}
	return v
}

func itoa(n int) string { return strconv.Itoa(n) }

/////////////////////////////////////////////////////////////////////////
////// Operations
/////////////////////////////////////////////////////////////////////////

// TeamByName looks a team up by its display name
func (c *HTTPClient) TeamByName(ctx context.Context, name string) (*podds.Team, error) {
	const op = cache.OpTeam
	name = strings.TrimSpace(name)
	if len(name) < 3 {
		return nil, invalid(op, "team name %q too short", name)
	}
	return cached(ctx, c, op, map[string]any{"name": name}, func(ctx context.Context) (*podds.Team, error) {
		var rows []wireTeam
		if _, err := c.apiGet(ctx, op, "/teams", q("search", name), &rows); err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			return nil, &Error{Op: op, Kind: KindNotFound, Err: fmt.Errorf("no team named %q", name)}
		}
		best := rows[0]
		for _, r := range rows {
			if strings.EqualFold(r.Team.Name, name) {
				best = r
				break
			}
		}
		return &podds.Team{
			ID:      best.Team.ID,
			Name:    best.Team.Name,
			Country: best.Team.Country,
			City:    best.Venue.City,
			Founded: best.Team.Founded,
		}, nil
	})
}

// TeamStatistics returns a team's season split by venue
func (c *HTTPClient) TeamStatistics(ctx context.Context, teamID, leagueID, season int) (*TeamStatistics, error) {
	const op = cache.OpTeamStatistics
	if teamID <= 0 || leagueID <= 0 || !validSeason(season) {
		return nil, invalid(op, "team %d league %d season %d", teamID, leagueID, season)
	}
	params := map[string]any{"team": teamID, "league": leagueID, "season": season}
	return cached(ctx, c, op, params, func(ctx context.Context) (*TeamStatistics, error) {
		var w wireStatistics
		if _, err := c.apiGet(ctx, op, "/teams/statistics", q("team", itoa(teamID), "league", itoa(leagueID), "season", itoa(season)), &w); err != nil {
			return nil, err
		}
		if deref(w.Fixtures.Played.Total) == 0 && w.Fixtures.Played.home()+w.Fixtures.Played.away() == 0 {
			return nil, &Error{Op: op, Kind: KindNotFound, Err: fmt.Errorf("no statistics for team %d", teamID)}
		}
		return &TeamStatistics{
			TeamID:   teamID,
			LeagueID: leagueID,
			Season:   season,
			Form:     w.Form,
			Home: VenueStats{
				Played:       w.Fixtures.Played.home(),
				Wins:         w.Fixtures.Wins.home(),
				Draws:        w.Fixtures.Draws.home(),
				Losses:       w.Fixtures.Loses.home(),
				GoalsFor:     w.Goals.For.Total.home(),
				GoalsAgainst: w.Goals.Against.Total.home(),
			},
			Away: VenueStats{
				Played:       w.Fixtures.Played.away(),
				Wins:         w.Fixtures.Wins.away(),
				Draws:        w.Fixtures.Draws.away(),
				Losses:       w.Fixtures.Loses.away(),
				GoalsFor:     w.Goals.For.Total.away(),
				GoalsAgainst: w.Goals.Against.Total.away(),
			},
		}, nil
	})
}

// League describes a competition
func (c *HTTPClient) League(ctx context.Context, leagueID, season int) (*podds.LeagueInfo, error) {
	const op = "league"
	if leagueID <= 0 || !validSeason(season) {
		return nil, invalid(op, "league %d season %d", leagueID, season)
	}
	return cached(ctx, c, op, map[string]any{"league": leagueID, "season": season}, func(ctx context.Context) (*podds.LeagueInfo, error) {
		var rows []wireLeague
		if _, err := c.apiGet(ctx, op, "/leagues", q("id", itoa(leagueID), "season", itoa(season)), &rows); err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			return nil, &Error{Op: op, Kind: KindNotFound, Err: fmt.Errorf("no league %d", leagueID)}
		}
		return &podds.LeagueInfo{
			ID:      rows[0].League.ID,
			Season:  season,
			Name:    rows[0].League.Name,
			Country: rows[0].Country.Name,
			Type:    rows[0].League.Type,
		}, nil
	})
}

func (c *HTTPClient) fixtures(ctx context.Context, op string, params map[string]any, path string, query url.Values) ([]podds.Fixture, error) {
	return cached(ctx, c, op, params, func(ctx context.Context) ([]podds.Fixture, error) {
		var rows []wireFixture
		if _, err := c.apiGet(ctx, op, path, query, &rows); err != nil {
			return nil, err
		}
		out := make([]podds.Fixture, 0, len(rows))
		for i := range rows {
			out = append(out, rows[i].toFixture())
		}
		return out, nil
	})
}

// FixturesByDate lists fixtures on one day across leagues
func (c *HTTPClient) FixturesByDate(ctx context.Context, date time.Time, leagueIDs []int, season int) ([]podds.Fixture, error) {
	const op = "fixtures_by_date"
	if date.IsZero() || !validSeason(season) || len(leagueIDs) == 0 {
		return nil, invalid(op, "date %v leagues %v season %d", date, leagueIDs, season)
	}
	day := date.UTC().Format("2006-01-02")
	var all []podds.Fixture
	for _, league := range leagueIDs {
		if league <= 0 {
			return nil, invalid(op, "league %d", league)
		}
		params := map[string]any{"date": day, "league": league, "season": season}
		rows, err := c.fixtures(ctx, op, params, "/fixtures", q("date", day, "league", itoa(league), "season", itoa(season)))
		if err != nil {
			return nil, err
		}
		all = append(all, rows...)
	}
	sortByKickoff(all)
	return all, nil
}

// Fixture returns one fixture by id
func (c *HTTPClient) Fixture(ctx context.Context, fixtureID int) (*podds.Fixture, error) {
	const op = "fixture"
	if fixtureID <= 0 {
		return nil, invalid(op, "fixture %d", fixtureID)
	}
	rows, err := c.fixtures(ctx, op, map[string]any{"id": fixtureID}, "/fixtures", q("id", itoa(fixtureID)))
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, &Error{Op: op, Kind: KindNotFound, Err: fmt.Errorf("no fixture %d", fixtureID)}
	}
	return &rows[0], nil
}

// TeamLastMatches returns up to n finished matches, most recent first
func (c *HTTPClient) TeamLastMatches(ctx context.Context, teamID, n int) ([]podds.Fixture, error) {
	const op = "team_last_matches"
	if teamID <= 0 || n < 1 || n > MaxLookback {
		return nil, invalid(op, "team %d last %d", teamID, n)
	}
	rows, err := c.fixtures(ctx, op, map[string]any{"team": teamID, "last": n}, "/fixtures", q("team", itoa(teamID), "last", itoa(n)))
	if err != nil {
		return nil, err
	}
	return newestFirst(finished(rows)), nil
}

// LeagueResults returns every finished fixture of a league season, most recent first
func (c *HTTPClient) LeagueResults(ctx context.Context, leagueID, season int) ([]podds.Fixture, error) {
	const op = "league_results"
	if leagueID <= 0 || !validSeason(season) {
		return nil, invalid(op, "league %d season %d", leagueID, season)
	}
	rows, err := c.fixtures(ctx, op, map[string]any{"league": leagueID, "season": season}, "/fixtures",
		q("league", itoa(leagueID), "season", itoa(season), "status", "FT-AET-PEN"))
	if err != nil {
		return nil, err
	}
	return newestFirst(finished(rows)), nil
}

// HeadToHead returns up to n past meetings, most recent first
func (c *HTTPClient) HeadToHead(ctx context.Context, teamA, teamB, n int) ([]podds.Fixture, error) {
	const op = cache.OpHeadToHead
	if teamA <= 0 || teamB <= 0 || teamA == teamB || n < 1 || n > MaxLookback {
		return nil, invalid(op, "teams %d/%d last %d", teamA, teamB, n)
	}
	lo, hi := teamA, teamB
	if lo > hi {
		lo, hi = hi, lo
	}
	pair := fmt.Sprintf("%d-%d", lo, hi)
	rows, err := c.fixtures(ctx, op, map[string]any{"h2h": pair, "last": n}, "/fixtures/headtohead", q("h2h", pair, "last", itoa(n)))
	if err != nil {
		return nil, err
	}
	return newestFirst(finished(rows)), nil
}

// UpcomingFixture returns the next scheduled meeting with homeID at home
func (c *HTTPClient) UpcomingFixture(ctx context.Context, homeID, awayID int) (*podds.Fixture, error) {
	const op = "upcoming_fixture"
	if homeID <= 0 || awayID <= 0 || homeID == awayID {
		return nil, invalid(op, "teams %d/%d", homeID, awayID)
	}
	pair := fmt.Sprintf("%d-%d", homeID, awayID)
	rows, err := c.fixtures(ctx, op, map[string]any{"h2h": pair, "next": 5}, "/fixtures/headtohead", q("h2h", pair, "next", "5"))
	if err != nil {
		return nil, err
	}
	sortByKickoff(rows)
	for i := range rows {
		if rows[i].HomeID == homeID && rows[i].AwayID == awayID && rows[i].Status == podds.StatusScheduled {
			return &rows[i], nil
		}
	}
	return nil, &Error{Op: op, Kind: KindNotFound, Err: fmt.Errorf("no upcoming fixture %s", pair)}
}

// FixtureInjuries lists players unavailable for a fixture
func (c *HTTPClient) FixtureInjuries(ctx context.Context, fixtureID int) ([]Injury, error) {
	const op = cache.OpInjuries
	if fixtureID <= 0 {
		return nil, invalid(op, "fixture %d", fixtureID)
	}
	return cached(ctx, c, op, map[string]any{"fixture": fixtureID}, func(ctx context.Context) ([]Injury, error) {
		var rows []wireInjury
		if _, err := c.apiGet(ctx, op, "/injuries", q("fixture", itoa(fixtureID)), &rows); err != nil {
			return nil, err
		}
		out := make([]Injury, 0, len(rows))
		for _, r := range rows {
			out = append(out, Injury{
				PlayerID:   r.Player.ID,
				PlayerName: r.Player.Name,
				TeamID:     r.Team.ID,
				Type:       r.Player.Type,
				Reason:     r.Player.Reason,
			})
		}
		return out, nil
	})
}

// TeamTransfers lists a team's transfers, newest first
func (c *HTTPClient) TeamTransfers(ctx context.Context, teamID int) ([]Transfer, error) {
	const op = cache.OpTransfers
	if teamID <= 0 {
		return nil, invalid(op, "team %d", teamID)
	}
	return cached(ctx, c, op, map[string]any{"team": teamID}, func(ctx context.Context) ([]Transfer, error) {
		var rows []wireTransfers
		if _, err := c.apiGet(ctx, op, "/transfers", q("team", itoa(teamID)), &rows); err != nil {
			return nil, err
		}
		var out []Transfer
		for _, r := range rows {
			for _, t := range r.Transfers {
				d, err := time.Parse("2006-01-02", t.Date)
				if err != nil {
					continue
				}
				out = append(out, Transfer{
					PlayerID:  r.Player.ID,
					Date:      d,
					Type:      t.Type,
					InTeamID:  t.Teams.In.ID,
					OutTeamID: t.Teams.Out.ID,
				})
			}
		}
		sort.SliceStable(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
		return out, nil
	})
}

// TeamSquad lists the current squad with ages
func (c *HTTPClient) TeamSquad(ctx context.Context, teamID int) ([]SquadPlayer, error) {
	const op = cache.OpSquad
	if teamID <= 0 {
		return nil, invalid(op, "team %d", teamID)
	}
	return cached(ctx, c, op, map[string]any{"team": teamID}, func(ctx context.Context) ([]SquadPlayer, error) {
		var rows []wireSquad
		if _, err := c.apiGet(ctx, op, "/players/squads", q("team", itoa(teamID)), &rows); err != nil {
			return nil, err
		}
		var out []SquadPlayer
		for _, r := range rows {
			for _, p := range r.Players {
				out = append(out, SquadPlayer{ID: p.ID, Name: p.Name, Age: deref(p.Age), Position: p.Position})
			}
		}
		return out, nil
	})
}

// maxPlayerPages bounds paging through /players
const maxPlayerPages = 5

// PlayerStatistics returns season minutes, appearances and goals for a team's players
func (c *HTTPClient) PlayerStatistics(ctx context.Context, teamID, season int) ([]PlayerSeason, error) {
	const op = "player_statistics"
	if teamID <= 0 || !validSeason(season) {
		return nil, invalid(op, "team %d season %d", teamID, season)
	}
	return cached(ctx, c, op, map[string]any{"team": teamID, "season": season}, func(ctx context.Context) ([]PlayerSeason, error) {
		var out []PlayerSeason
		for page := 1; page <= maxPlayerPages; page++ {
			var rows []wirePlayer
			env, err := c.apiGet(ctx, op, "/players", q("team", itoa(teamID), "season", itoa(season), "page", itoa(page)), &rows)
			if err != nil {
				return nil, err
			}
			for i := range rows {
				out = append(out, rows[i].toSeason(teamID))
			}
			if env.Paging.Total <= page {
				break
			}
		}
		return out, nil
	})
}

// TopScorers returns the league's leading scorers
func (c *HTTPClient) TopScorers(ctx context.Context, leagueID, season int) ([]PlayerSeason, error) {
	const op = "top_scorers"
	if leagueID <= 0 || !validSeason(season) {
		return nil, invalid(op, "league %d season %d", leagueID, season)
	}
	return cached(ctx, c, op, map[string]any{"league": leagueID, "season": season}, func(ctx context.Context) ([]PlayerSeason, error) {
		var rows []wirePlayer
		if _, err := c.apiGet(ctx, op, "/players/topscorers", q("league", itoa(leagueID), "season", itoa(season)), &rows); err != nil {
			return nil, err
		}
		out := make([]PlayerSeason, 0, len(rows))
		for i := range rows {
			out = append(out, rows[i].toSeason(0))
		}
		return out, nil
	})
}

// FixtureOdds returns the first bookmaker's match winner prices
func (c *HTTPClient) FixtureOdds(ctx context.Context, fixtureID int) (*Odds, error) {
	const op = "odds"
	if fixtureID <= 0 {
		return nil, invalid(op, "fixture %d", fixtureID)
	}
	return cached(ctx, c, op, map[string]any{"fixture": fixtureID}, func(ctx context.Context) (*Odds, error) {
		var rows []wireOdds
		if _, err := c.apiGet(ctx, op, "/odds", q("fixture", itoa(fixtureID), "bet", "1"), &rows); err != nil {
			return nil, err
		}
		for _, r := range rows {
			for _, b := range r.Bookmakers {
				for _, bet := range b.Bets {
					if bet.Name != "Match Winner" {
						continue
					}
					o := &Odds{Bookmaker: b.Name}
					for _, v := range bet.Values {
						price, err := decimal.NewFromString(v.Odd)
						if err != nil {
							return nil, &Error{Op: op, Kind: KindBadResponse, Err: fmt.Errorf("odd %q: %w", v.Odd, err)}
						}
						switch v.Value {
						case "Home":
							o.Home = price
						case "Draw":
							o.Draw = price
						case "Away":
							o.Away = price
						}
					}
					if !o.Home.IsZero() && !o.Draw.IsZero() && !o.Away.IsZero() {
						return o, nil
					}
				}
			}
		}
		return nil, &Error{Op: op, Kind: KindNotFound, Err: fmt.Errorf("no match winner odds for fixture %d", fixtureID)}
	})
}

// RefereeHistory summarises the league season results under referee
func (c *HTTPClient) RefereeHistory(ctx context.Context, referee string, leagueID, season int) (*RefereeRecord, error) {
	const op = cache.OpRefereeHistory
	referee = cleanReferee(referee)
	if referee == "" || leagueID <= 0 || !validSeason(season) {
		return nil, invalid(op, "referee %q league %d season %d", referee, leagueID, season)
	}
	params := map[string]any{"referee": referee, "league": leagueID, "season": season}
	return cached(ctx, c, op, params, func(ctx context.Context) (*RefereeRecord, error) {
		results, err := c.LeagueResults(ctx, leagueID, season)
		if err != nil {
			return nil, err
		}
		rec := &RefereeRecord{Name: referee}
		for _, f := range results {
			if !strings.EqualFold(f.Referee, referee) || !f.HasResult() {
				continue
			}
			rec.Matches++
			switch {
			case f.Score.Home > f.Score.Away:
				rec.HomeWins++
			case f.Score.Home == f.Score.Away:
				rec.Draws++
			default:
				rec.AwayWins++
			}
		}
		return rec, nil
	})
}

// Standings returns the league table. Group stages are flattened
func (c *HTTPClient) Standings(ctx context.Context, leagueID, season int) ([]StandingRow, error) {
	const op = cache.OpStandings
	if leagueID <= 0 || !validSeason(season) {
		return nil, invalid(op, "league %d season %d", leagueID, season)
	}
	return cached(ctx, c, op, map[string]any{"league": leagueID, "season": season}, func(ctx context.Context) ([]StandingRow, error) {
		var rows []wireStandings
		if _, err := c.apiGet(ctx, op, "/standings", q("league", itoa(leagueID), "season", itoa(season)), &rows); err != nil {
			return nil, err
		}
		var out []StandingRow
		for _, r := range rows {
			for _, group := range r.League.Standings {
				for _, s := range group {
					out = append(out, StandingRow{
						Rank:        s.Rank,
						TeamID:      s.Team.ID,
						TeamName:    s.Team.Name,
						Points:      s.Points,
						Played:      s.All.Played,
						GoalsDiff:   s.GoalsDiff,
						Form:        s.Form,
						Description: s.Description,
						Group:       s.Group,
					})
				}
			}
		}
		if len(out) == 0 {
			return nil, &Error{Op: op, Kind: KindNotFound, Err: fmt.Errorf("no standings for league %d", leagueID)}
		}
		return out, nil
	})
}

func finished(rows []podds.Fixture) []podds.Fixture {
	out := rows[:0:0]
	for _, f := range rows {
		if f.HasResult() {
			out = append(out, f)
		}
	}
	return out
}

func newestFirst(rows []podds.Fixture) []podds.Fixture {
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Kickoff.After(rows[j].Kickoff) })
	return rows
}

func sortByKickoff(rows []podds.Fixture) {
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Kickoff.Before(rows[j].Kickoff) })
}
