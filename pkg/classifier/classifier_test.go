package classifier

import (
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/richard-senior/podds/pkg/podds"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stump splits on home_elo_diff at 0.5
func stump(low, high float64) Tree {
	return Tree{Nodes: []Node{
		{Feature: int(podds.FactorEloDiff), Threshold: 0.5, Left: 1, Right: 2},
		{Leaf: true, Value: low},
		{Leaf: true, Value: high},
	}}
}

func testArtifact() Artifact {
	return Artifact{
		Format:   ArtifactFormat,
		Version:  ArtifactVersion,
		Name:     "xgb-test",
		Flavour:  FlavourXGBoost,
		Features: podds.FeatureSchema(),
		Trees: [3][]Tree{
			{stump(-1, 1)},
			{stump(0, 0)},
			{stump(1, -1)},
		},
	}
}

func writeArtifact(t *testing.T, a Artifact) string {
	t.Helper()
	data, err := json.Marshal(a)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "model.json")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func record(elo float64) *podds.FeatureRecord {
	rec := &podds.FeatureRecord{FixtureID: 7, Home: podds.NeutralVector(), Away: podds.NeutralVector()}
	rec.Home[podds.FactorEloDiff] = elo
	rec.Away[podds.FactorEloDiff] = 1 - elo
	return rec
}

func TestLoadAndPredict(t *testing.T) {
	m, err := Load(writeArtifact(t, testArtifact()))
	require.NoError(t, err)
	assert.Equal(t, "xgb-test", m.Name())
	assert.Equal(t, FlavourXGBoost, m.Method())

	strong, err := m.PredictProba(record(0.8))
	require.NoError(t, err)
	assert.True(t, strong.Valid())
	assert.Equal(t, podds.HomeWin, strong.ArgMax())
	e := math.E
	assert.InDelta(t, e/(e+1+1/e), strong.Home, 1e-9)

	weak, err := m.PredictProba(record(0.2))
	require.NoError(t, err)
	assert.Equal(t, podds.AwayWin, weak.ArgMax())
}

func TestSchemaDriftIsFatal(t *testing.T) {
	a := testArtifact()
	a.Features = append([]string{}, a.Features...)
	a.Features[3] = "home_vibes"
	_, err := Load(writeArtifact(t, a))
	assert.True(t, errors.Is(err, ErrSchemaDrift))

	a = testArtifact()
	a.Features = a.Features[:10]
	_, err = Load(writeArtifact(t, a))
	assert.True(t, errors.Is(err, ErrSchemaDrift))
}

func TestBadArtifacts(t *testing.T) {
	a := testArtifact()
	a.Version = 2
	_, err := New(a)
	assert.True(t, errors.Is(err, ErrBadArtifact))

	a = testArtifact()
	a.Trees[0] = []Tree{{Nodes: []Node{{Feature: 0, Threshold: 1, Left: 0, Right: 0}}}}
	_, err = New(a)
	assert.True(t, errors.Is(err, ErrBadArtifact))

	_, err = Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.True(t, errors.Is(err, ErrBadArtifact))
}

func TestMissingInputsAreImputed(t *testing.T) {
	m, err := New(testArtifact())
	require.NoError(t, err)

	rec := record(0.9)
	rec.Home[podds.FactorEloDiff] = math.NaN()
	d, err := m.PredictProba(rec)
	require.NoError(t, err)
	// imputed 0.5 goes right of the split
	assert.Equal(t, podds.HomeWin, d.ArgMax())

	x, imputed := vectorize(rec, podds.FeatureSchema())
	assert.Equal(t, []string{"home_elo_diff"}, imputed)
	assert.Equal(t, 0.5, x[int(podds.FactorEloDiff)])
}

func TestLoadAllSkipsBrokenArtifacts(t *testing.T) {
	good := writeArtifact(t, testArtifact())
	drift := testArtifact()
	drift.Features = drift.Features[1:]
	bad := writeArtifact(t, drift)

	models, errs := LoadAll([]string{good, bad})
	assert.Len(t, models, 1)
	require.Len(t, errs, 1)
	assert.True(t, errors.Is(errs[0], ErrSchemaDrift))
}

func TestConfidence(t *testing.T) {
	assert.InDelta(t, 60, Confidence(podds.Distribution{Home: 0.6, Draw: 0.3, Away: 0.1}), 1e-9)
}

func TestImputationWarningsAreBounded(t *testing.T) {
	var w warnSet
	assert.True(t, w.first(1))
	assert.False(t, w.first(1))
	for id := 2; id <= maxWarned+10; id++ {
		w.first(id)
	}
	assert.Equal(t, maxWarned, w.len())
	// the oldest ids were forgotten, the newest are still held
	assert.True(t, w.first(1))
	assert.False(t, w.first(maxWarned+10))
}
