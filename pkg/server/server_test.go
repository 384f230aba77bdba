package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/richard-senior/podds/pkg/cache"
	"github.com/richard-senior/podds/pkg/config"
	"github.com/richard-senior/podds/pkg/metrics"
	"github.com/richard-senior/podds/pkg/podds"
	"github.com/richard-senior/podds/pkg/predictor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPredictor struct {
	last predictor.Request
}

func (s *stubPredictor) Predict(ctx context.Context, req predictor.Request) *podds.PredictionRecord {
	s.last = req
	rec := &podds.PredictionRecord{HomeID: req.HomeID, AwayID: req.AwayID, FixtureID: req.FixtureID}
	if req.HomeID == 999 {
		rec.Status = podds.PredictionUnavailable
		rec.Probabilities = podds.Uniform
		rec.Outcome = podds.Draw
		return rec
	}
	rec.Status = podds.PredictionOK
	rec.Probabilities = podds.Distribution{Home: 0.5, Draw: 0.3, Away: 0.2}
	rec.Outcome = podds.HomeWin
	return rec
}

func (s *stubPredictor) PredictBatch(ctx context.Context, reqs []predictor.Request) []*podds.PredictionRecord {
	out := make([]*podds.PredictionRecord, len(reqs))
	for i := range reqs {
		out[i] = s.Predict(ctx, reqs[i])
	}
	return out
}

func newTestServer(t *testing.T) (*Server, *stubPredictor, *cache.MatchCache) {
	t.Helper()
	c, err := cache.New(context.Background(), 10, nil)
	require.NoError(t, err)
	p := &stubPredictor{}
	m := metrics.New()
	m.RegisterCache(c)
	return New(":0", p, c, m, 30*time.Second), p, c
}

func do(t *testing.T, s *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestPredictEndpoint(t *testing.T) {
	s, p, _ := newTestServer(t)
	w := do(t, s, http.MethodGet, "/predict?home=33&away=34&league=39&season=2024&fixture=1001&strategy=Weighted", "")
	require.Equal(t, http.StatusOK, w.Code)

	var rec podds.PredictionRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rec))
	assert.Equal(t, podds.HomeWin, rec.Outcome)
	assert.Equal(t, 1001, p.last.FixtureID)
	assert.Equal(t, 39, p.last.League.ID)
	assert.Equal(t, config.StrategyWeighted, p.last.Strategy)
}

func TestPredictEndpointValidation(t *testing.T) {
	s, _, _ := newTestServer(t)
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodGet, "/predict?home=33&league=39&season=2024", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodGet, "/predict?home=x&away=34&league=39&season=2024", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodGet, "/predict?home=33&away=34&league=39&season=2024&strategy=stacking", "").Code)
	assert.Equal(t, http.StatusUnprocessableEntity, do(t, s, http.MethodGet, "/predict?home=999&away=34&league=39&season=2024", "").Code)
}

func TestPredictBatchEndpoint(t *testing.T) {
	s, _, _ := newTestServer(t)
	body := `[{"homeId":33,"awayId":34,"league":{"id":39,"season":2024}},{"homeId":40,"awayId":41,"league":{"id":39,"season":2024},"strategy":"averaging"}]`
	w := do(t, s, http.MethodPost, "/predict/batch", body)
	require.Equal(t, http.StatusOK, w.Code)

	var out []podds.PredictionRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	require.Len(t, out, 2)
	assert.Equal(t, 40, out[1].HomeID)

	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodPost, "/predict/batch", `[]`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodPost, "/predict/batch", `[{"home":1}]`).Code)
}

func TestCacheEndpoints(t *testing.T) {
	s, _, c := newTestServer(t)
	ctx := context.Background()
	c.Set(ctx, "team:name=arsenal", []byte("1"), time.Hour)
	c.Set(ctx, "standings:league=39", []byte("2"), time.Hour)

	w := do(t, s, http.MethodGet, "/cache/stats", "")
	require.Equal(t, http.StatusOK, w.Code)
	var stats cache.Stats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, 2, stats.L1.Entries)

	w = do(t, s, http.MethodDelete, "/cache?pattern=team:", "")
	require.Equal(t, http.StatusOK, w.Code)
	_, ok := c.Get(ctx, "team:name=arsenal")
	assert.False(t, ok)
	_, ok = c.Get(ctx, "standings:league=39")
	assert.True(t, ok)

	w = do(t, s, http.MethodDelete, "/cache", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, c.Stats(ctx).L1.Entries)
}

func TestHealthAndMetrics(t *testing.T) {
	s, _, _ := newTestServer(t)
	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/healthz", "").Code)

	w := do(t, s, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "podds_cache")
}
