package scorer

import (
	"math"
	"sort"

	"github.com/richard-senior/podds/pkg/podds"
)

const (
	// DrawShare is the fixed draw probability of the rule-based distribution
	DrawShare = 0.25
	// TopContributions is how many explaining factors are returned
	TopContributions = 5
)

// Contribution is one factor's weighted effect on each side
type Contribution struct {
	Factor string  `json:"factor"`
	Home   float64 `json:"home"`
	Away   float64 `json:"away"`
	// Diff is Home - Away; positive favours the home side
	Diff float64 `json:"diff"`
}

// Result is the weighted scorer's view of a fixture
type Result struct {
	HomeScore     float64            `json:"homeScore"`
	AwayScore     float64            `json:"awayScore"`
	Probabilities podds.Distribution `json:"probabilities"`
	WeightSet     string             `json:"weightSet"`
	Top           []Contribution     `json:"top"`
}

// Scorer turns factor vectors into a 1X2 distribution using context weights
type Scorer struct {
	registry *Registry
}

// New returns a scorer over registry, or the built-in table when nil
func New(registry *Registry) *Scorer {
	if registry == nil {
		registry = NewRegistry()
	}
	return &Scorer{registry: registry}
}

// Registry exposes the weight table in use
func (s *Scorer) Registry() *Registry { return s.registry }

// ScoreTeam is the weighted sum of a team's factors, in [0,1]
func ScoreTeam(f podds.FactorVector, w Weights) float64 {
	total := 0.0
	for i := range f {
		total += w[i] * f[i]
	}
	return podds.Clamp(total, 0, 1, 0)
}

// WinProbabilities fixes the draw at DrawShare and splits the rest in proportion to
// the two scores. Two zero scores give podds.Uniform
func WinProbabilities(home, away float64) podds.Distribution {
	total := home + away
	if math.IsNaN(total) || total <= 0 {
		return podds.Uniform
	}
	rest := 1 - DrawShare
	return podds.Distribution{
		Home: rest * home / total,
		Draw: DrawShare,
		Away: rest * away / total,
	}
}

// Score rates both sides of a feature record
func (s *Scorer) Score(rec *podds.FeatureRecord) Result {
	w, key := s.registry.Lookup(rec.LeagueProfile, rec.MatchType)
	home := ScoreTeam(rec.Home, w)
	away := ScoreTeam(rec.Away, w)
	return Result{
		HomeScore:     home,
		AwayScore:     away,
		Probabilities: WinProbabilities(home, away),
		WeightSet:     key,
		Top:           topContributions(rec.Home, rec.Away, w, TopContributions),
	}
}

// topContributions returns the n factors with the largest absolute weighted difference
func topContributions(home, away podds.FactorVector, w Weights, n int) []Contribution {
	all := make([]Contribution, 0, podds.NumFactors)
	for _, f := range podds.Factors() {
		h := home[f] * w[f]
		a := away[f] * w[f]
		all = append(all, Contribution{Factor: f.String(), Home: h, Away: a, Diff: h - a})
	}
	sort.SliceStable(all, func(i, j int) bool { return math.Abs(all[i].Diff) > math.Abs(all[j].Diff) })
	if len(all) > n {
		all = all[:n]
	}
	return all
}
