package ensemble

import (
	"fmt"

	"github.com/richard-senior/podds/pkg/config"
	"github.com/richard-senior/podds/pkg/podds"
)

const (
	// MLShare is the collective weight of classifier sources under the weighted strategy
	MLShare = 0.7
	// RuleShare is the weight of the rule-based source under the weighted strategy
	RuleShare = 0.3

	// tieNudge is the mass moved onto a tie-broken vote winner so the distribution's
	// arg-max names it
	tieNudge = 1e-4
)

// Source is one model's opinion of a fixture
type Source struct {
	Name          string
	Method        string
	Probabilities podds.Distribution
	// Confidence is on a 0..100 scale
	Confidence float64
	// ML marks fitted classifiers as opposed to the rule-based source
	ML bool
}

func (s Source) breakdown(weight float64) podds.ModelBreakdown {
	return podds.ModelBreakdown{
		Name:         s.Name,
		Method:       s.Method,
		Distribution: s.Probabilities,
		Confidence:   s.Confidence,
		Weight:       weight,
	}
}

// Result is the combined opinion
type Result struct {
	Probabilities podds.Distribution
	Outcome       podds.Outcome
	Confidence    float64
	Method        string
	Breakdown     []podds.ModelBreakdown
}

// Predictor combines sources under a strategy
type Predictor struct {
	strategy config.Strategy
}

// New returns a predictor pinned to strategy, voting when empty
func New(strategy config.Strategy) *Predictor {
	if strategy == "" {
		strategy = config.StrategyVoting
	}
	return &Predictor{strategy: strategy}
}

// Strategy is the pinned strategy
func (p *Predictor) Strategy() config.Strategy { return p.strategy }

// Combine merges the sources with the pinned strategy
func (p *Predictor) Combine(sources []Source) (Result, error) {
	return p.CombineWith(p.strategy, sources)
}

// CombineWith merges the sources with an explicit strategy. Sources with invalid
// distributions are dropped; one remaining source is returned as is. It fails only
// when no usable source remains or the strategy is unknown
func (p *Predictor) CombineWith(strategy config.Strategy, sources []Source) (Result, error) {
	usable := make([]Source, 0, len(sources))
	for _, s := range sources {
		if s.Probabilities.Valid() {
			usable = append(usable, s)
		}
	}
	switch len(usable) {
	case 0:
		return Result{}, fmt.Errorf("no usable ensemble sources")
	case 1:
		return single(usable[0]), nil
	}

	switch strategy {
	case config.StrategyVoting:
		return vote(usable), nil
	case config.StrategyAveraging:
		return average(usable), nil
	case config.StrategyWeighted:
		return weighted(usable), nil
	}
	return Result{}, fmt.Errorf("unknown ensemble strategy %q", strategy)
}

func single(s Source) Result {
	d := s.Probabilities
	return Result{
		Probabilities: d,
		Outcome:       d.ArgMax(),
		Confidence:    podds.Clamp(s.Confidence, 0, 100, 0),
		Method:        s.Method,
		Breakdown:     []podds.ModelBreakdown{s.breakdown(1)},
	}
}

// vote counts arg-max votes. Ties go to the outcome whose voters are most confident on
// average, then to the earlier outcome in home, draw, away order
func vote(sources []Source) Result {
	var votes, confSum [3]float64
	n := float64(len(sources))
	res := Result{Method: string(config.StrategyVoting)}
	for _, s := range sources {
		i := outcomeIndex(s.Probabilities.ArgMax())
		votes[i]++
		confSum[i] += s.Confidence
		res.Breakdown = append(res.Breakdown, s.breakdown(1/n))
	}

	winner := 0
	for i := 1; i < 3; i++ {
		if votes[i] > votes[winner] ||
			(votes[i] == votes[winner] && votes[i] > 0 && confSum[i]/votes[i] > confSum[winner]/votes[winner]) {
			winner = i
		}
	}

	var shares [3]float64
	tied := 0
	for i := range votes {
		shares[i] = votes[i] / n
		if i != winner && votes[i] == votes[winner] {
			tied++
		}
	}
	if tied > 0 {
		for i := range shares {
			if i != winner && votes[i] == votes[winner] {
				shares[i] -= tieNudge
				shares[winner] += tieNudge
			}
		}
	}

	res.Probabilities = podds.FromVector(shares)
	res.Outcome = podds.Outcomes[winner]
	res.Confidence = podds.Clamp(shares[winner]*confSum[winner]/votes[winner], 0, 100, 0)
	return res
}

func average(sources []Source) Result {
	w := 1 / float64(len(sources))
	weights := make([]float64, len(sources))
	for i := range weights {
		weights[i] = w
	}
	return mix(string(config.StrategyAveraging), sources, weights)
}

// weighted gives classifiers MLShare split equally and the rule-based sources RuleShare.
// When one group is absent the other takes all the weight
func weighted(sources []Source) Result {
	var nML, nRule int
	for _, s := range sources {
		if s.ML {
			nML++
		} else {
			nRule++
		}
	}
	mlShare, ruleShare := MLShare, RuleShare
	switch {
	case nML == 0:
		mlShare, ruleShare = 0, 1
	case nRule == 0:
		mlShare, ruleShare = 1, 0
	}
	weights := make([]float64, len(sources))
	for i, s := range sources {
		if s.ML {
			weights[i] = mlShare / float64(nML)
		} else {
			weights[i] = ruleShare / float64(nRule)
		}
	}
	return mix(string(config.StrategyWeighted), sources, weights)
}

func mix(method string, sources []Source, weights []float64) Result {
	var acc [3]float64
	conf := 0.0
	res := Result{Method: method}
	for i, s := range sources {
		v := s.Probabilities.Vector()
		for k := range acc {
			acc[k] += weights[i] * v[k]
		}
		conf += weights[i] * s.Confidence
		res.Breakdown = append(res.Breakdown, s.breakdown(weights[i]))
	}
	res.Probabilities = podds.FromVector(acc).Normalize()
	res.Outcome = res.Probabilities.ArgMax()
	res.Confidence = podds.Clamp(conf, 0, 100, 0)
	return res
}

func outcomeIndex(o podds.Outcome) int {
	for i, x := range podds.Outcomes {
		if x == o {
			return i
		}
	}
	return 0
}
