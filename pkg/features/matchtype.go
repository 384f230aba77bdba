package features

import "github.com/richard-senior/podds/pkg/podds"

// titleRaceRank is the lowest rank still counted as in the title race
const titleRaceRank = 4

// relegationZone is how many places above the bottom count as a relegation fight
const relegationZone = 4

// minTableSize is the smallest table that can have a relegation fight
const minTableSize = 8

// ClassifyMatch picks the match type. Checks run in order: cup, derby, title race,
// relegation, mid table. Zero ranks mean the table is unknown
func ClassifyMatch(league podds.LeagueInfo, homeCity, awayCity string, homeRank, awayRank, tableSize int) podds.MatchType {
	if league.IsCup() {
		return podds.MatchCup
	}
	if sameCity(homeCity, awayCity) {
		return podds.MatchDerby
	}
	if homeRank <= 0 || awayRank <= 0 {
		return podds.MatchMidTable
	}
	if homeRank <= titleRaceRank && awayRank <= titleRaceRank {
		return podds.MatchTitleRace
	}
	if tableSize >= minTableSize && (homeRank > tableSize-relegationZone || awayRank > tableSize-relegationZone) {
		return podds.MatchRelegation
	}
	return podds.MatchMidTable
}
