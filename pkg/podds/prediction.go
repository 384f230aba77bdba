package podds

import (
	"fmt"
	"math"
	"time"
)

// Outcome is a 1X2 result label
type Outcome string

const (
	HomeWin Outcome = "home_win"
	Draw    Outcome = "draw"
	AwayWin Outcome = "away_win"
)

// Outcomes in vector order
var Outcomes = [3]Outcome{HomeWin, Draw, AwayWin}

// ProbabilityTolerance is how far a distribution may drift from summing to 1
const ProbabilityTolerance = 1e-3

// Distribution is a three-way outcome distribution
type Distribution struct {
	Home float64 `json:"homeWin"`
	Draw float64 `json:"draw"`
	Away float64 `json:"awayWin"`
}

// Uniform is the distribution returned when nothing is known
var Uniform = Distribution{Home: 0.33, Draw: 0.34, Away: 0.33}

// FromVector builds a distribution from [home, draw, away]
func FromVector(v [3]float64) Distribution {
	return Distribution{Home: v[0], Draw: v[1], Away: v[2]}
}

// Vector returns [home, draw, away]
func (d Distribution) Vector() [3]float64 {
	return [3]float64{d.Home, d.Draw, d.Away}
}

// Sum of the three components
func (d Distribution) Sum() float64 {
	return d.Home + d.Draw + d.Away
}

// Normalize rescales to sum to 1. Degenerate input yields Uniform
func (d Distribution) Normalize() Distribution {
	v := d.Vector()
	total := 0.0
	for i, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) || x < 0 {
			v[i] = 0
		}
		total += v[i]
	}
	if total <= 0 {
		return Uniform
	}
	return Distribution{Home: v[0] / total, Draw: v[1] / total, Away: v[2] / total}
}

// ArgMax returns the most likely outcome. Ties prefer home, then draw
func (d Distribution) ArgMax() Outcome {
	best := HomeWin
	bestP := d.Home
	if d.Draw > bestP {
		best, bestP = Draw, d.Draw
	}
	if d.Away > bestP {
		best = AwayWin
	}
	return best
}

// Of returns the probability of outcome o
func (d Distribution) Of(o Outcome) float64 {
	switch o {
	case HomeWin:
		return d.Home
	case Draw:
		return d.Draw
	case AwayWin:
		return d.Away
	}
	return 0
}

// Valid reports whether each component is in [0,1] and the sum is 1 within ProbabilityTolerance
func (d Distribution) Valid() bool {
	for _, x := range d.Vector() {
		if math.IsNaN(x) || x < 0 || x > 1 {
			return false
		}
	}
	return math.Abs(d.Sum()-1) < ProbabilityTolerance
}

// TopTwo returns the largest and second largest component
func (d Distribution) TopTwo() (float64, float64) {
	v := d.Vector()
	first, second := math.Inf(-1), math.Inf(-1)
	for _, x := range v {
		if x > first {
			first, second = x, first
		} else if x > second {
			second = x
		}
	}
	return first, second
}

func (d Distribution) String() string {
	return fmt.Sprintf("H %.3f D %.3f A %.3f", d.Home, d.Draw, d.Away)
}

// PredictionStatus says how complete a prediction is
type PredictionStatus string

const (
	PredictionOK          PredictionStatus = "ok"
	PredictionDegraded    PredictionStatus = "degraded"
	PredictionUnavailable PredictionStatus = "unavailable"
)

// ErrorKind is the closed set of failure classes seen by the prediction path
type ErrorKind string

const (
	ErrMissingInput     ErrorKind = "missing_input"
	ErrInsufficientData ErrorKind = "insufficient_data"
	ErrTimeout          ErrorKind = "timeout"
	ErrUpstream         ErrorKind = "upstream_error"
	ErrRateLimited      ErrorKind = "rate_limited"
	ErrBadResponse      ErrorKind = "bad_response"
	ErrSchemaDrift      ErrorKind = "schema_drift"
	ErrIO               ErrorKind = "io_error"
	ErrNumeric          ErrorKind = "numeric"
)

// ModelBreakdown is one source's contribution to an ensemble prediction
type ModelBreakdown struct {
	Name         string       `json:"name"`
	Method       string       `json:"method"`
	Distribution Distribution `json:"distribution"`
	Confidence   float64      `json:"confidence"`
	Weight       float64      `json:"weight,omitempty"`
}

// MaxReasons bounds PredictionRecord.Reasons
const MaxReasons = 3

// PredictionRecord is what callers get back for one fixture
type PredictionRecord struct {
	RequestID         string           `json:"requestId"`
	FixtureID         int              `json:"fixtureId"`
	HomeID            int              `json:"homeId"`
	AwayID            int              `json:"awayId"`
	Probabilities     Distribution     `json:"probabilities"`
	ExpectedHomeGoals float64          `json:"expectedHomeGoals"`
	ExpectedAwayGoals float64          `json:"expectedAwayGoals"`
	Over25            float64          `json:"over2_5"`
	Under25           float64          `json:"under2_5"`
	BTTSYes           float64          `json:"bttsYes"`
	BTTSNo            float64          `json:"bttsNo"`
	Confidence        float64          `json:"confidence"`
	Outcome           Outcome          `json:"outcome"`
	Reasons           []string         `json:"reasons"`
	Method            string           `json:"method"`
	Breakdown         []ModelBreakdown `json:"breakdown"`
	Status            PredictionStatus `json:"status"`
	StatusReason      string           `json:"statusReason,omitempty"`
	GeneratedAt       time.Time        `json:"generatedAt"`
}

// AddReason appends r unless MaxReasons is reached or r is already present
func (p *PredictionRecord) AddReason(r string) {
	if r == "" || len(p.Reasons) >= MaxReasons {
		return
	}
	for _, existing := range p.Reasons {
		if existing == r {
			return
		}
	}
	p.Reasons = append(p.Reasons, r)
}

// Check verifies the record invariants
func (p *PredictionRecord) Check() error {
	if !p.Probabilities.Valid() {
		return fmt.Errorf("probabilities %s do not form a distribution", p.Probabilities)
	}
	if p.Outcome != p.Probabilities.ArgMax() {
		return fmt.Errorf("outcome %s is not the arg-max of %s", p.Outcome, p.Probabilities)
	}
	if p.Confidence < 0 || p.Confidence > 100 {
		return fmt.Errorf("confidence %.2f outside [0,100]", p.Confidence)
	}
	if len(p.Reasons) > MaxReasons {
		return fmt.Errorf("%d reasons, at most %d allowed", len(p.Reasons), MaxReasons)
	}
	return nil
}
