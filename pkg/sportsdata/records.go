package sportsdata

import (
	"time"

	"github.com/richard-senior/podds/pkg/podds"
	"github.com/shopspring/decimal"
)

// VenueStats aggregates a team's season at one venue
type VenueStats struct {
	Played       int `json:"played"`
	Wins         int `json:"wins"`
	Draws        int `json:"draws"`
	Losses       int `json:"losses"`
	GoalsFor     int `json:"goalsFor"`
	GoalsAgainst int `json:"goalsAgainst"`
}

// AvgFor is goals scored per match, 0 with no matches
func (v VenueStats) AvgFor() float64 {
	if v.Played <= 0 {
		return 0
	}
	return float64(v.GoalsFor) / float64(v.Played)
}

// AvgAgainst is goals conceded per match, 0 with no matches
func (v VenueStats) AvgAgainst() float64 {
	if v.Played <= 0 {
		return 0
	}
	return float64(v.GoalsAgainst) / float64(v.Played)
}

// PointsPerGame uses three points for a win and one for a draw
func (v VenueStats) PointsPerGame() float64 {
	if v.Played <= 0 {
		return 0
	}
	return float64(3*v.Wins+v.Draws) / float64(v.Played)
}

// Consistency is ((wins/played) + 0.5*(draws/played)) * 100
func (v VenueStats) Consistency() float64 {
	if v.Played <= 0 {
		return 0
	}
	p := float64(v.Played)
	return (float64(v.Wins)/p + 0.5*float64(v.Draws)/p) * 100
}

// TeamStatistics is a team's season in one league split by venue
type TeamStatistics struct {
	TeamID   int        `json:"teamId"`
	LeagueID int        `json:"leagueId"`
	Season   int        `json:"season"`
	Home     VenueStats `json:"home"`
	Away     VenueStats `json:"away"`
	Form     string     `json:"form,omitempty"`
}

// Total combines both venues
func (s *TeamStatistics) Total() VenueStats {
	return VenueStats{
		Played:       s.Home.Played + s.Away.Played,
		Wins:         s.Home.Wins + s.Away.Wins,
		Draws:        s.Home.Draws + s.Away.Draws,
		Losses:       s.Home.Losses + s.Away.Losses,
		GoalsFor:     s.Home.GoalsFor + s.Away.GoalsFor,
		GoalsAgainst: s.Home.GoalsAgainst + s.Away.GoalsAgainst,
	}
}

// Injury is a player listed as unavailable for a fixture
type Injury struct {
	PlayerID   int    `json:"playerId"`
	PlayerName string `json:"playerName"`
	TeamID     int    `json:"teamId"`
	Type       string `json:"type"`
	Reason     string `json:"reason"`
}

// Transfer is one player movement
type Transfer struct {
	PlayerID  int       `json:"playerId"`
	Date      time.Time `json:"date"`
	Type      string    `json:"type"`
	InTeamID  int       `json:"inTeamId"`
	OutTeamID int       `json:"outTeamId"`
}

// SquadPlayer is a current squad member
type SquadPlayer struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Age      int    `json:"age"`
	Position string `json:"position"`
}

// PlayerSeason is a player's output in one season
type PlayerSeason struct {
	PlayerID    int    `json:"playerId"`
	Name        string `json:"name"`
	TeamID      int    `json:"teamId"`
	Minutes     int    `json:"minutes"`
	Appearances int    `json:"appearances"`
	Goals       int    `json:"goals"`
}

// Odds are decimal match-winner prices
type Odds struct {
	Bookmaker string          `json:"bookmaker"`
	Home      decimal.Decimal `json:"home"`
	Draw      decimal.Decimal `json:"draw"`
	Away      decimal.Decimal `json:"away"`
}

// Implied converts the prices into probabilities with the bookmaker margin removed
func (o *Odds) Implied() (podds.Distribution, bool) {
	one := decimal.NewFromInt(1)
	prices := []decimal.Decimal{o.Home, o.Draw, o.Away}
	inv := make([]float64, 3)
	for i, p := range prices {
		if p.LessThanOrEqual(one) {
			return podds.Distribution{}, false
		}
		inv[i] = one.DivRound(p, 8).InexactFloat64()
	}
	return podds.Distribution{Home: inv[0], Draw: inv[1], Away: inv[2]}.Normalize(), true
}

// Overround is the bookmaker margin, e.g. 0.05 for a 105% book
func (o *Odds) Overround() float64 {
	one := decimal.NewFromInt(1)
	total := decimal.Zero
	for _, p := range []decimal.Decimal{o.Home, o.Draw, o.Away} {
		if p.IsZero() {
			return 0
		}
		total = total.Add(one.DivRound(p, 8))
	}
	return total.Sub(one).InexactFloat64()
}

// RefereeRecord summarises results of matches a referee took charge of
type RefereeRecord struct {
	Name     string `json:"name"`
	Matches  int    `json:"matches"`
	HomeWins int    `json:"homeWins"`
	Draws    int    `json:"draws"`
	AwayWins int    `json:"awayWins"`
}

// HomeWinRate is the share of home wins, 0 with no matches
func (r *RefereeRecord) HomeWinRate() float64 {
	if r.Matches <= 0 {
		return 0
	}
	return float64(r.HomeWins) / float64(r.Matches)
}

// StandingRow is one line of a league table
type StandingRow struct {
	Rank        int    `json:"rank"`
	TeamID      int    `json:"teamId"`
	TeamName    string `json:"teamName"`
	Points      int    `json:"points"`
	Played      int    `json:"played"`
	GoalsDiff   int    `json:"goalsDiff"`
	Form        string `json:"form,omitempty"`
	Description string `json:"description,omitempty"`
	Group       string `json:"group,omitempty"`
}

// XGMatch is one match from an expected goals source
type XGMatch struct {
	Date time.Time `json:"date"`
	Home bool      `json:"home"`
	XG   float64   `json:"xg"`
	XGA  float64   `json:"xga"`
}

// XGRecord is a team's expected goals history, most recent first
type XGRecord struct {
	Team    string    `json:"team"`
	Season  int       `json:"season"`
	Matches []XGMatch `json:"matches"`
}

// Averages returns mean xG for and against over the last n matches
func (r *XGRecord) Averages(n int) (xg, xga float64, ok bool) {
	if r == nil || len(r.Matches) == 0 || n <= 0 {
		return 0, 0, false
	}
	if n > len(r.Matches) {
		n = len(r.Matches)
	}
	for _, m := range r.Matches[:n] {
		xg += m.XG
		xga += m.XGA
	}
	return xg / float64(n), xga / float64(n), true
}

// Weather is the forecast at a venue
type Weather struct {
	City      string  `json:"city"`
	TempC     float64 `json:"tempC"`
	WindKph   float64 `json:"windKph"`
	PrecipMM  float64 `json:"precipMm"`
	Condition string  `json:"condition"`
}
