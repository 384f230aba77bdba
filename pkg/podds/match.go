package podds

import (
	"fmt"
	"time"
)

// Team is a club as known to the sports data vendor
type Team struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	LeagueID int    `json:"leagueId,omitempty"`
	Country  string `json:"country,omitempty"`
	City     string `json:"city,omitempty"`
	Founded  int    `json:"founded,omitempty"`
}

// FixtureStatus is the lifecycle state of a fixture
type FixtureStatus string

const (
	StatusScheduled  FixtureStatus = "scheduled"
	StatusInProgress FixtureStatus = "in_progress"
	StatusFinished   FixtureStatus = "finished"
	StatusCancelled  FixtureStatus = "cancelled"
)

// ParseFixtureStatus maps vendor short status codes onto FixtureStatus
func ParseFixtureStatus(short string) FixtureStatus {
	switch short {
	case "FT", "AET", "PEN", "AWD", "WO", "finished":
		return StatusFinished
	case "1H", "HT", "2H", "ET", "BT", "P", "INT", "LIVE", "SUSP", "in_progress":
		return StatusInProgress
	case "CANC", "ABD", "PST", "cancelled":
		return StatusCancelled
	default:
		return StatusScheduled
	}
}

// Score is a final score pair
type Score struct {
	Home int `json:"home"`
	Away int `json:"away"`
}

// Fixture is a single match. The core treats it as read-only
type Fixture struct {
	ID       int           `json:"id"`
	HomeID   int           `json:"homeId"`
	AwayID   int           `json:"awayId"`
	HomeName string        `json:"homeName,omitempty"`
	AwayName string        `json:"awayName,omitempty"`
	Kickoff  time.Time     `json:"kickoff"`
	LeagueID int           `json:"leagueId"`
	Season   int           `json:"season"`
	Round    string        `json:"round,omitempty"`
	Status   FixtureStatus `json:"status"`
	Score    *Score        `json:"score,omitempty"`
	Referee  string        `json:"referee,omitempty"`
	City     string        `json:"city,omitempty"`
}

// HasResult reports whether the fixture is finished with a usable score
func (f *Fixture) HasResult() bool {
	return f.Status == StatusFinished && f.Score != nil && f.Score.Home >= 0 && f.Score.Away >= 0
}

// Validate checks the fixture invariants
func (f *Fixture) Validate() error {
	if f.ID <= 0 {
		return fmt.Errorf("fixture id must be positive, got %d", f.ID)
	}
	if f.HomeID <= 0 || f.AwayID <= 0 {
		return fmt.Errorf("fixture %d has invalid team ids %d/%d", f.ID, f.HomeID, f.AwayID)
	}
	if f.HomeID == f.AwayID {
		return fmt.Errorf("fixture %d has the same team on both sides", f.ID)
	}
	if f.Status == StatusFinished {
		if f.Score == nil {
			return fmt.Errorf("finished fixture %d has no score", f.ID)
		}
		if f.Score.Home < 0 || f.Score.Away < 0 {
			return fmt.Errorf("finished fixture %d has negative score %d-%d", f.ID, f.Score.Home, f.Score.Away)
		}
	}
	return nil
}

// GoalsFor returns goals scored and conceded by teamID, and whether teamID was at home
func (f *Fixture) GoalsFor(teamID int) (scored, conceded int, home bool, ok bool) {
	if f.Score == nil {
		return 0, 0, false, false
	}
	switch teamID {
	case f.HomeID:
		return f.Score.Home, f.Score.Away, true, true
	case f.AwayID:
		return f.Score.Away, f.Score.Home, false, true
	}
	return 0, 0, false, false
}

// LeagueInfo identifies the competition a fixture belongs to
type LeagueInfo struct {
	ID      int    `json:"id"`
	Season  int    `json:"season"`
	Name    string `json:"name,omitempty"`
	Country string `json:"country,omitempty"`
	// Type is "League" or "Cup" as reported by the vendor
	Type string `json:"type,omitempty"`
}

// IsCup reports whether the competition is a knockout cup
func (l LeagueInfo) IsCup() bool {
	return l.Type == "Cup" || l.Type == "cup"
}

// MatchType is the context classification used for factor weights
type MatchType string

const (
	MatchDerby      MatchType = "derby"
	MatchTitleRace  MatchType = "title_race"
	MatchRelegation MatchType = "relegation"
	MatchMidTable   MatchType = "mid_table"
	MatchCup        MatchType = "cup"
)

// MatchTypes lists every match type
var MatchTypes = []MatchType{MatchDerby, MatchTitleRace, MatchRelegation, MatchMidTable, MatchCup}

// ParseMatchType returns the match type named s
func ParseMatchType(s string) (MatchType, error) {
	for _, mt := range MatchTypes {
		if string(mt) == s {
			return mt, nil
		}
	}
	return "", fmt.Errorf("unknown match type %q", s)
}
