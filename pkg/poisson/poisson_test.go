package poisson

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPMF(t *testing.T) {
	assert.InDelta(t, math.Exp(-1.5), PMF(1.5, 0), 1e-12)
	assert.InDelta(t, 1.5*math.Exp(-1.5), PMF(1.5, 1), 1e-12)
	assert.Equal(t, 0.0, PMF(1.5, -1))
	assert.Equal(t, 0.0, PMF(-0.5, 2))
	assert.Equal(t, 1.0, PMF(0, 0))
	assert.Equal(t, 0.0, PMF(0, 3))
	assert.Equal(t, 0.0, PMF(math.NaN(), 1))
	assert.Equal(t, 0.0, PMF(math.Inf(1), 1))
}

func TestMarketsAreComplementary(t *testing.T) {
	for _, lambdas := range [][2]float64{{0, 0}, {1.38, 1.2}, {2.304, 0.373}, {3, 0}, {0.1, 2.9}} {
		r := Predict(lambdas[0], lambdas[1])
		assert.True(t, r.Probabilities.Valid(), "%v", lambdas)
		assert.InDelta(t, 1.0, r.Over25+r.Under25, 1e-9)
		assert.InDelta(t, 1.0, r.BTTSYes+r.BTTSNo, 1e-9)
	}
}

func TestGoallessIntensities(t *testing.T) {
	r := Predict(0, 0)
	assert.InDelta(t, 1.0, r.Probabilities.Draw, 1e-9)
	assert.InDelta(t, 0.0, r.Probabilities.Home, 1e-9)
	assert.InDelta(t, 0.0, r.Probabilities.Away, 1e-9)
	assert.InDelta(t, 0.0, r.Over25, 1e-9)
	assert.Equal(t, 0, r.MostLikelyHome)
}

func TestOneSidedIntensities(t *testing.T) {
	r := Predict(3, 0)
	assert.Greater(t, r.Probabilities.Home, 0.9)
	assert.Less(t, r.Probabilities.Draw, 0.06)
	assert.InDelta(t, 0.0, r.Probabilities.Away, 1e-9)
	assert.InDelta(t, 0.0, r.BTTSYes, 1e-9)
}

func TestEqualTeams(t *testing.T) {
	r := Predict(1.38, 1.2)
	assert.InDelta(t, 0.41, r.Probabilities.Home, 0.02)
	assert.InDelta(t, 0.27, r.Probabilities.Draw, 0.02)
	assert.InDelta(t, 0.32, r.Probabilities.Away, 0.02)
	assert.InDelta(t, 0.476, r.Over25, 0.01)
	assert.InDelta(t, 0.522, r.BTTSYes, 0.01)
	assert.Less(t, Confidence(r.Probabilities, 50), 20.0)
}

func TestDominantHome(t *testing.T) {
	r := Predict(2.304, 0.3733)
	assert.GreaterOrEqual(t, r.Probabilities.Home, 0.6)
	assert.LessOrEqual(t, r.Probabilities.Draw, 0.22)
	assert.LessOrEqual(t, r.Probabilities.Away, 0.18)
	assert.Equal(t, 2, r.MostLikelyHome)
	assert.Equal(t, 0, r.MostLikelyAway)

	injured := Predict(2.304*0.8, 0.3733)
	assert.Less(t, injured.Probabilities.Home, r.Probabilities.Home)
	assert.Greater(t, injured.Probabilities.Draw, r.Probabilities.Draw)
	assert.Equal(t, "home_win", string(injured.Probabilities.ArgMax()))
}

func TestMatrixMass(t *testing.T) {
	r := Predict(1.7, 1.1)
	require.Len(t, r.Matrix, GridSize)
	total := 0.0
	for _, row := range r.Matrix {
		require.Len(t, row, GridSize)
		for _, p := range row {
			total += p
		}
	}
	assert.InDelta(t, 1.0, total, 1e-9)
}

func TestConfidence(t *testing.T) {
	d := Predict(2.304, 0.3733).Probabilities
	top1, top2 := d.TopTwo()
	assert.InDelta(t, (top1-top2)*80, Confidence(d, 80), 1e-9)
	assert.Equal(t, 0.0, Confidence(d, 0))
	assert.Equal(t, 0.0, Confidence(d, math.NaN()))
	assert.LessOrEqual(t, Confidence(d, 1000), 100.0)
}

func TestMarketsAreComplementaryForRandomIntensities(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 500; i++ {
		lh, la := rng.Float64()*3, rng.Float64()*3
		r := Predict(lh, la)
		d := r.Probabilities
		for _, p := range []float64{d.Home, d.Draw, d.Away, r.Over25, r.Under25, r.BTTSYes, r.BTTSNo} {
			require.True(t, p >= 0 && p <= 1+1e-12, "λ=(%v,%v) probability %v", lh, la, p)
		}
		assert.InDelta(t, 1, d.Home+d.Draw+d.Away, 1e-9, "λ=(%v,%v)", lh, la)
		assert.InDelta(t, 1, r.Over25+r.Under25, 1e-9, "λ=(%v,%v)", lh, la)
		assert.InDelta(t, 1, r.BTTSYes+r.BTTSNo, 1e-9, "λ=(%v,%v)", lh, la)

		mass := 0.0
		for _, row := range r.Matrix {
			for _, p := range row {
				mass += p
			}
		}
		assert.InDelta(t, 1, mass, 1e-9)

		c := Confidence(d, rng.Float64()*100)
		assert.True(t, c >= 0 && c <= 100)
	}
}
