package podds

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFactorNamesAreClosed(t *testing.T) {
	assert.Equal(t, 17, int(NumFactors))
	for _, f := range Factors() {
		parsed, err := ParseFactor(f.String())
		require.NoError(t, err)
		assert.Equal(t, f, parsed)
	}

	v := NeutralVector()
	assert.Error(t, v.Set("fromm", 0.7))
	require.NoError(t, v.Set("form", 1.7))
	got, err := v.Get("form")
	require.NoError(t, err)
	assert.Equal(t, 1.0, got)
	assert.True(t, v.Valid())
}

func TestFactorVectorJSONRejectsUnknownKeys(t *testing.T) {
	var v FactorVector
	err := json.Unmarshal([]byte(`{"form":0.6,"moon_phase":0.1}`), &v)
	assert.Error(t, err)

	require.NoError(t, json.Unmarshal([]byte(`{"form":0.6}`), &v))
	assert.Equal(t, 0.6, v[FactorForm])
	assert.Equal(t, 0.5, v[FactorFatigue])
}

func TestFeatureSchemaCoversColumns(t *testing.T) {
	rec := &FeatureRecord{Home: NeutralVector(), Away: NeutralVector()}
	cols := rec.Columns()
	schema := FeatureSchema()
	assert.Len(t, cols, len(schema))
	for _, c := range schema {
		_, ok := cols[c]
		assert.True(t, ok, c)
	}
	assert.True(t, IsRawColumn("raw_lambda_home"))
	assert.False(t, IsRawColumn("home_form"))
}

func TestDistributionHelpers(t *testing.T) {
	d := Distribution{Home: 2, Draw: 1, Away: 1}.Normalize()
	assert.InDelta(t, 0.5, d.Home, 1e-9)
	assert.True(t, d.Valid())
	assert.Equal(t, HomeWin, d.ArgMax())

	top1, top2 := Distribution{Home: 0.2, Draw: 0.3, Away: 0.5}.TopTwo()
	assert.Equal(t, 0.5, top1)
	assert.Equal(t, 0.3, top2)

	assert.Equal(t, Uniform, Distribution{}.Normalize())
	assert.Equal(t, Draw, Uniform.ArgMax())
}

func TestFixtureValidate(t *testing.T) {
	f := &Fixture{ID: 1, HomeID: 10, AwayID: 20, Status: StatusFinished}
	assert.Error(t, f.Validate())
	f.Score = &Score{Home: 2, Away: 1}
	assert.NoError(t, f.Validate())
	assert.True(t, f.HasResult())

	scored, conceded, home, ok := f.GoalsFor(20)
	assert.True(t, ok)
	assert.False(t, home)
	assert.Equal(t, 1, scored)
	assert.Equal(t, 2, conceded)

	assert.Equal(t, StatusFinished, ParseFixtureStatus("FT"))
	assert.Equal(t, StatusCancelled, ParseFixtureStatus("PST"))
	assert.Equal(t, StatusScheduled, ParseFixtureStatus("NS"))
}

func TestPredictionRecordReasonsBounded(t *testing.T) {
	p := &PredictionRecord{Probabilities: Distribution{Home: 0.5, Draw: 0.3, Away: 0.2}, Outcome: HomeWin}
	for _, r := range []string{"a", "b", "a", "c", "d"} {
		p.AddReason(r)
	}
	assert.Equal(t, []string{"a", "b", "c"}, p.Reasons)
	assert.NoError(t, p.Check())

	p.Outcome = AwayWin
	assert.Error(t, p.Check())
}
