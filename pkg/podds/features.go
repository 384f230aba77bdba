package podds

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
)

// Factor is one of the normalised match factors
type Factor int

const (
	FactorForm Factor = iota
	FactorEloDiff
	FactorHomeAdvantage
	FactorH2H
	FactorLeaguePosition
	FactorInjuries
	FactorMotivation
	FactorRecentXG
	FactorWeather
	FactorReferee
	FactorBettingOdds
	FactorTacticalMatchup
	FactorTransferImpact
	FactorSquadExperience
	FactorMatchImportance
	FactorFatigue
	FactorRecentPerformance

	NumFactors
)

var factorNames = [NumFactors]string{
	"form",
	"elo_diff",
	"home_advantage",
	"h2h",
	"league_position",
	"injuries",
	"motivation",
	"recent_xg",
	"weather",
	"referee",
	"betting_odds",
	"tactical_matchup",
	"transfer_impact",
	"squad_experience",
	"match_importance",
	"fatigue",
	"recent_performance",
}

// Factors lists every factor in schema order
func Factors() []Factor {
	out := make([]Factor, NumFactors)
	for i := range out {
		out[i] = Factor(i)
	}
	return out
}

func (f Factor) String() string {
	if f < 0 || f >= NumFactors {
		return fmt.Sprintf("factor(%d)", int(f))
	}
	return factorNames[f]
}

// ParseFactor returns the factor with the given name
func ParseFactor(name string) (Factor, error) {
	for i, n := range factorNames {
		if n == name {
			return Factor(i), nil
		}
	}
	return -1, fmt.Errorf("unknown factor %q", name)
}

// FactorVector holds one value in [0,1] per factor
type FactorVector [NumFactors]float64

// NeutralVector returns a vector with every factor at 0.5
func NeutralVector() FactorVector {
	var v FactorVector
	for i := range v {
		v[i] = 0.5
	}
	return v
}

// Set stores value for the named factor, clamped to [0,1]. Unknown names are rejected
func (v *FactorVector) Set(name string, value float64) error {
	f, err := ParseFactor(name)
	if err != nil {
		return err
	}
	v[f] = Clamp01(value)
	return nil
}

// Get returns the named factor
func (v FactorVector) Get(name string) (float64, error) {
	f, err := ParseFactor(name)
	if err != nil {
		return 0, err
	}
	return v[f], nil
}

// Mirror returns 1-v for every factor
func (v FactorVector) Mirror() FactorVector {
	var out FactorVector
	for i := range v {
		out[i] = 1 - v[i]
	}
	return out
}

// Valid reports whether every factor is a finite value in [0,1]
func (v FactorVector) Valid() bool {
	for _, x := range v {
		if math.IsNaN(x) || x < 0 || x > 1 {
			return false
		}
	}
	return true
}

func (v FactorVector) MarshalJSON() ([]byte, error) {
	m := make(map[string]float64, NumFactors)
	for i, x := range v {
		m[factorNames[i]] = x
	}
	return json.Marshal(m)
}

func (v *FactorVector) UnmarshalJSON(data []byte) error {
	var m map[string]float64
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	*v = NeutralVector()
	for name, x := range m {
		if err := v.Set(name, x); err != nil {
			return err
		}
	}
	return nil
}

// RawParams are the un-normalised numbers behind the expected goal intensities
type RawParams struct {
	HomeAttack      float64 `json:"homeAttack"`
	HomeDefense     float64 `json:"homeDefense"`
	AwayAttack      float64 `json:"awayAttack"`
	AwayDefense     float64 `json:"awayDefense"`
	HomeAttackMul   float64 `json:"homeAttackMul"`
	HomeDefenseMul  float64 `json:"homeDefenseMul"`
	AwayAttackMul   float64 `json:"awayAttackMul"`
	AwayDefenseMul  float64 `json:"awayDefenseMul"`
	HomeAdvantage   float64 `json:"homeAdvantage"`
	LeagueAvgGoals  float64 `json:"leagueAvgGoals"`
	LambdaHome      float64 `json:"lambdaHome"`
	LambdaAway      float64 `json:"lambdaAway"`
	HomeConsistency float64 `json:"homeConsistency"`
	AwayConsistency float64 `json:"awayConsistency"`
	HomeElo         float64 `json:"homeElo"`
	AwayElo         float64 `json:"awayElo"`
}

// rawColumns is the schema order of raw parameters
var rawColumns = []string{
	"home_attack", "home_defense", "away_attack", "away_defense",
	"home_attack_mul", "home_defense_mul", "away_attack_mul", "away_defense_mul",
	"home_advantage_mul", "league_avg_goals", "lambda_home", "lambda_away",
	"home_consistency", "away_consistency", "home_elo", "away_elo",
}

func (r RawParams) values() []float64 {
	return []float64{
		r.HomeAttack, r.HomeDefense, r.AwayAttack, r.AwayDefense,
		r.HomeAttackMul, r.HomeDefenseMul, r.AwayAttackMul, r.AwayDefenseMul,
		r.HomeAdvantage, r.LeagueAvgGoals, r.LambdaHome, r.LambdaAway,
		r.HomeConsistency, r.AwayConsistency, r.HomeElo, r.AwayElo,
	}
}

// FeatureRecord is the fixed-schema input to the scorer and the classifiers
type FeatureRecord struct {
	FixtureID     int          `json:"fixtureId"`
	HomeID        int          `json:"homeId"`
	AwayID        int          `json:"awayId"`
	League        LeagueInfo   `json:"league"`
	LeagueProfile string       `json:"leagueProfile"`
	MatchType     MatchType    `json:"matchType"`
	Home          FactorVector `json:"home"`
	Away          FactorVector `json:"away"`
	Raw           RawParams    `json:"raw"`
	// HomeKeyInjured and AwayKeyInjured are set when a key player is listed as out
	HomeKeyInjured bool `json:"homeKeyInjured"`
	AwayKeyInjured bool `json:"awayKeyInjured"`
	// Defaulted names the inputs that fell back to documented defaults
	Defaulted []string `json:"defaulted,omitempty"`
}

// Degraded reports whether any input fell back to a default
func (r *FeatureRecord) Degraded() bool {
	return len(r.Defaulted) > 0
}

// MarkDefault records that input name fell back to its default
func (r *FeatureRecord) MarkDefault(name string) {
	for _, d := range r.Defaulted {
		if d == name {
			return
		}
	}
	r.Defaulted = append(r.Defaulted, name)
	sort.Strings(r.Defaulted)
}

const (
	homePrefix = "home_"
	awayPrefix = "away_"
	rawPrefix  = "raw_"
)

// FeatureSchema returns the column names classifiers are fitted against, in order
func FeatureSchema() []string {
	cols := make([]string, 0, 2*int(NumFactors)+len(rawColumns))
	for _, n := range factorNames {
		cols = append(cols, homePrefix+n)
	}
	for _, n := range factorNames {
		cols = append(cols, awayPrefix+n)
	}
	for _, n := range rawColumns {
		cols = append(cols, rawPrefix+n)
	}
	return cols
}

// IsRawColumn reports whether a schema column is an un-normalised parameter
func IsRawColumn(col string) bool {
	return len(col) > len(rawPrefix) && col[:len(rawPrefix)] == rawPrefix
}

// Columns flattens the record into schema column values
func (r *FeatureRecord) Columns() map[string]float64 {
	out := make(map[string]float64, 2*int(NumFactors)+len(rawColumns))
	for i, n := range factorNames {
		out[homePrefix+n] = r.Home[i]
		out[awayPrefix+n] = r.Away[i]
	}
	for i, x := range r.Raw.values() {
		out[rawPrefix+rawColumns[i]] = x
	}
	return out
}

// Clamp01 bounds x to [0,1]. NaN becomes 0.5
func Clamp01(x float64) float64 {
	return Clamp(x, 0, 1, 0.5)
}

// Clamp bounds x to [lo,hi], returning nan for NaN input
func Clamp(x, lo, hi, nan float64) float64 {
	if math.IsNaN(x) {
		return nan
	}
	return math.Max(lo, math.Min(hi, x))
}
