package scorer

import (
	"fmt"
	"math"

	"github.com/richard-senior/podds/pkg/podds"
)

// WeightTolerance is how far a weight vector may drift from summing to 1
const WeightTolerance = 1e-3

// League profiles. Weight sets are keyed by these tags rather than vendor ids
const (
	ProfilePremierLeague = "premier_league"
	ProfileLaLiga        = "la_liga"
	ProfileSerieA        = "serie_a"
	ProfileBundesliga    = "bundesliga"
	ProfileLigue1        = "ligue_1"
	ProfileChampionship  = "championship"
	ProfileEuropean      = "european"
	ProfileGeneric       = "generic"
)

// Profiles is the closed list of league profiles
var Profiles = []string{
	ProfilePremierLeague, ProfileLaLiga, ProfileSerieA, ProfileBundesliga,
	ProfileLigue1, ProfileChampionship, ProfileEuropean, ProfileGeneric,
}

// leagueProfiles maps API-Football league ids onto profiles
var leagueProfiles = map[int]string{
	39:  ProfilePremierLeague,
	140: ProfileLaLiga,
	135: ProfileSerieA,
	78:  ProfileBundesliga,
	61:  ProfileLigue1,
	40:  ProfileChampionship,
	2:   ProfileEuropean,
	3:   ProfileEuropean,
	848: ProfileEuropean,
}

// ProfileFor returns the profile of a vendor league id, ProfileGeneric when unmapped
func ProfileFor(leagueID int) string {
	if p, ok := leagueProfiles[leagueID]; ok {
		return p
	}
	return ProfileGeneric
}

// Weights holds one weight per factor
type Weights [podds.NumFactors]float64

// Sum of all weights
func (w Weights) Sum() float64 {
	total := 0.0
	for _, x := range w {
		total += x
	}
	return total
}

// Valid reports whether each weight is in [0,1] and they sum to 1 within WeightTolerance
func (w Weights) Valid() bool {
	for _, x := range w {
		if math.IsNaN(x) || x < 0 || x > 1 {
			return false
		}
	}
	return math.Abs(w.Sum()-1) < WeightTolerance
}

// Of returns the weight of factor f
func (w Weights) Of(f podds.Factor) float64 { return w[f] }

func (w Weights) normalized() Weights {
	total := w.Sum()
	var out Weights
	for i, x := range w {
		out[i] = x / total
	}
	return out
}

func (w Weights) scaled(adj map[podds.Factor]float64) Weights {
	out := w
	for f, mul := range adj {
		out[f] *= mul
	}
	return out.normalized()
}

// globalDefault is used when neither the league profile nor its mid_table entry is known
var globalDefault = Weights{
	podds.FactorForm:              0.12,
	podds.FactorEloDiff:           0.12,
	podds.FactorHomeAdvantage:     0.08,
	podds.FactorH2H:               0.05,
	podds.FactorLeaguePosition:    0.08,
	podds.FactorInjuries:          0.07,
	podds.FactorMotivation:        0.05,
	podds.FactorRecentXG:          0.10,
	podds.FactorWeather:           0.02,
	podds.FactorReferee:           0.02,
	podds.FactorBettingOdds:       0.10,
	podds.FactorTacticalMatchup:   0.03,
	podds.FactorTransferImpact:    0.02,
	podds.FactorSquadExperience:   0.02,
	podds.FactorMatchImportance:   0.03,
	podds.FactorFatigue:           0.03,
	podds.FactorRecentPerformance: 0.06,
}

var matchTypeAdjustments = map[podds.MatchType]map[podds.Factor]float64{
	podds.MatchDerby: {
		podds.FactorForm:           0.7,
		podds.FactorH2H:            2.0,
		podds.FactorMotivation:     2.0,
		podds.FactorHomeAdvantage:  1.2,
		podds.FactorLeaguePosition: 0.5,
	},
	podds.MatchTitleRace: {
		podds.FactorLeaguePosition: 1.5,
		podds.FactorMotivation:     1.5,
		podds.FactorForm:           1.2,
	},
	podds.MatchRelegation: {
		podds.FactorMotivation:      2.0,
		podds.FactorMatchImportance: 1.5,
		podds.FactorSquadExperience: 1.5,
	},
	podds.MatchMidTable: {},
	podds.MatchCup: {
		podds.FactorLeaguePosition:  0.5,
		podds.FactorMotivation:      1.5,
		podds.FactorSquadExperience: 1.5,
		podds.FactorFatigue:         1.5,
		podds.FactorMatchImportance: 1.5,
	},
}

var profileAdjustments = map[string]map[podds.Factor]float64{
	ProfilePremierLeague: {podds.FactorFatigue: 1.3, podds.FactorBettingOdds: 1.1},
	ProfileLaLiga:        {podds.FactorTacticalMatchup: 1.5},
	ProfileSerieA:        {podds.FactorTacticalMatchup: 1.5, podds.FactorReferee: 1.3},
	ProfileBundesliga:    {podds.FactorRecentXG: 1.2},
	ProfileLigue1:        {podds.FactorEloDiff: 1.2},
	ProfileChampionship:  {podds.FactorFatigue: 1.5, podds.FactorForm: 1.2},
	ProfileEuropean:      {podds.FactorEloDiff: 1.3, podds.FactorSquadExperience: 1.5},
}

// profileMatchTypes lists the match types each profile carries a dedicated set for.
// Anything else falls back to the profile's mid_table set
var profileMatchTypes = map[string][]podds.MatchType{
	ProfilePremierLeague: {podds.MatchMidTable, podds.MatchDerby, podds.MatchTitleRace, podds.MatchRelegation},
	ProfileLaLiga:        {podds.MatchMidTable, podds.MatchDerby, podds.MatchTitleRace, podds.MatchRelegation},
	ProfileSerieA:        {podds.MatchMidTable, podds.MatchDerby, podds.MatchTitleRace, podds.MatchRelegation},
	ProfileBundesliga:    {podds.MatchMidTable, podds.MatchDerby, podds.MatchTitleRace, podds.MatchRelegation},
	ProfileLigue1:        {podds.MatchMidTable, podds.MatchDerby, podds.MatchTitleRace, podds.MatchRelegation},
	ProfileChampionship:  {podds.MatchMidTable, podds.MatchDerby, podds.MatchTitleRace, podds.MatchRelegation},
	ProfileEuropean:      {podds.MatchMidTable, podds.MatchCup},
}

type weightKey struct {
	profile   string
	matchType podds.MatchType
}

func (k weightKey) String() string { return fmt.Sprintf("%s/%s", k.profile, k.matchType) }

// Registry is a frozen table of weight sets keyed by league profile and match type
type Registry struct {
	table    map[weightKey]Weights
	fallback Weights
}

// NewRegistry builds the weight table
func NewRegistry() *Registry {
	r := &Registry{table: make(map[weightKey]Weights), fallback: globalDefault.normalized()}
	for profile, types := range profileMatchTypes {
		base := globalDefault.scaled(profileAdjustments[profile])
		for _, mt := range types {
			r.table[weightKey{profile, mt}] = base.scaled(matchTypeAdjustments[mt])
		}
	}
	return r
}

// Get returns the most specific weight set for the key: the exact entry, then the
// profile's mid_table entry, then the global default
func (r *Registry) Get(profile string, mt podds.MatchType) Weights {
	w, _ := r.Lookup(profile, mt)
	return w
}

// Lookup is Get that also names the entry that was used
func (r *Registry) Lookup(profile string, mt podds.MatchType) (Weights, string) {
	k := weightKey{profile, mt}
	if w, ok := r.table[k]; ok {
		return w, k.String()
	}
	k.matchType = podds.MatchMidTable
	if w, ok := r.table[k]; ok {
		return w, k.String()
	}
	return r.fallback, "default"
}

// Keys lists every explicit entry as profile/match_type
func (r *Registry) Keys() []string {
	out := make([]string, 0, len(r.table))
	for k := range r.table {
		out = append(out, k.String())
	}
	return out
}
