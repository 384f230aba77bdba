package poisson

import (
	"math"

	"github.com/richard-senior/podds/pkg/podds"
)

// GridSize is the number of goal counts per team enumerated by the score grid (0..6)
const GridSize = 7

// Result holds the market probabilities derived from a pair of intensities
type Result struct {
	LambdaHome    float64            `json:"lambdaHome"`
	LambdaAway    float64            `json:"lambdaAway"`
	Probabilities podds.Distribution `json:"probabilities"`
	Over25        float64            `json:"over2_5"`
	Under25       float64            `json:"under2_5"`
	BTTSYes       float64            `json:"bttsYes"`
	BTTSNo        float64            `json:"bttsNo"`
	// MostLikelyHome and MostLikelyAway are the modal goal counts of each marginal
	MostLikelyHome int `json:"mostLikelyHome"`
	MostLikelyAway int `json:"mostLikelyAway"`
	// Matrix[i][j] is the probability of the score i-j
	Matrix [][]float64 `json:"-"`
}

// PMF is the Poisson probability of k events at rate lambda. It is 0 for negative
// inputs and for any term that overflows or underflows
func PMF(lambda float64, k int) float64 {
	if k < 0 || lambda < 0 || math.IsNaN(lambda) || math.IsInf(lambda, 0) {
		return 0
	}
	if lambda == 0 {
		if k == 0 {
			return 1
		}
		return 0
	}
	lg, _ := math.Lgamma(float64(k) + 1)
	p := math.Exp(float64(k)*math.Log(lambda) - lambda - lg)
	if math.IsNaN(p) || math.IsInf(p, 0) {
		return 0
	}
	return p
}

// Predict enumerates the score grid for the two intensities and aggregates the
// 1X2, over/under 2.5 and both-teams-to-score markets
func Predict(lambdaHome, lambdaAway float64) Result {
	r := Result{LambdaHome: lambdaHome, LambdaAway: lambdaAway}

	home := make([]float64, GridSize)
	away := make([]float64, GridSize)
	for k := 0; k < GridSize; k++ {
		home[k] = PMF(lambdaHome, k)
		away[k] = PMF(lambdaAway, k)
	}
	r.Matrix = renormalize(outer(home, away))

	var pHome, pDraw, over, btts float64
	for i := range r.Matrix {
		for j, p := range r.Matrix[i] {
			switch {
			case i > j:
				pHome += p
			case i == j:
				pDraw += p
			}
			if i+j > 2 {
				over += p
			}
			if i > 0 && j > 0 {
				btts += p
			}
		}
	}
	if pHome+pDraw == 0 {
		r.Probabilities = podds.Uniform
	} else {
		pAway := math.Max(0, 1-pHome-pDraw)
		r.Probabilities = podds.Distribution{Home: pHome, Draw: pDraw, Away: pAway}
	}
	r.Over25, r.Under25 = over, math.Max(0, 1-over)
	r.BTTSYes, r.BTTSNo = btts, math.Max(0, 1-btts)
	r.MostLikelyHome, r.MostLikelyAway = modes(r.Matrix)
	return r
}

// Confidence is the gap between the two most likely outcomes, in percentage points,
// scaled by the teams' average consistency (0..100) and clamped to [0,100]
func Confidence(d podds.Distribution, avgConsistency float64) float64 {
	top1, top2 := d.TopTwo()
	c := (top1 - top2) * 100 * avgConsistency / 100
	return podds.Clamp(c, 0, 100, 0)
}

func outer(home, away []float64) [][]float64 {
	m := make([][]float64, len(home))
	for i := range home {
		m[i] = make([]float64, len(away))
		for j := range away {
			m[i][j] = home[i] * away[j]
		}
	}
	return m
}

// renormalize rescales the truncated grid so its mass is 1
func renormalize(m [][]float64) [][]float64 {
	total := 0.0
	for i := range m {
		for j := range m[i] {
			total += m[i][j]
		}
	}
	if total > 0 {
		for i := range m {
			for j := range m[i] {
				m[i][j] /= total
			}
		}
	}
	return m
}

func modes(m [][]float64) (int, int) {
	bestH, bestA := 0, 0
	maxH, maxA := -1.0, -1.0
	for i := range m {
		row := 0.0
		for j := range m[i] {
			row += m[i][j]
		}
		if row > maxH {
			maxH, bestH = row, i
		}
	}
	for j := range m[0] {
		col := 0.0
		for i := range m {
			col += m[i][j]
		}
		if col > maxA {
			maxA, bestA = col, j
		}
	}
	return bestH, bestA
}
