// Package predictor turns a fixture request into a PredictionRecord. It owns the
// degradation policy: it never returns an error, only records whose status says how
// complete they are.
package predictor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/richard-senior/podds/internal/logger"
	"github.com/richard-senior/podds/pkg/classifier"
	"github.com/richard-senior/podds/pkg/config"
	"github.com/richard-senior/podds/pkg/ensemble"
	"github.com/richard-senior/podds/pkg/features"
	"github.com/richard-senior/podds/pkg/metrics"
	"github.com/richard-senior/podds/pkg/podds"
	"github.com/richard-senior/podds/pkg/poisson"
	"github.com/richard-senior/podds/pkg/scorer"
	"github.com/richard-senior/podds/pkg/sportsdata"
	"golang.org/x/sync/errgroup"
)

const (
	// RuleSourceName names the Poisson and weighted scorer blend in breakdowns
	RuleSourceName = "rule_based"
	// RuleSourceMethod is the method label of the rule-based source
	RuleSourceMethod = "poisson_weighted"
	// MethodNone labels records no model contributed to
	MethodNone = "none"
)

// Request identifies one fixture to predict
type Request struct {
	HomeID    int              `json:"homeId"`
	AwayID    int              `json:"awayId"`
	FixtureID int              `json:"fixtureId,omitempty"`
	League    podds.LeagueInfo `json:"league"`
	// Strategy overrides the configured ensemble strategy when set
	Strategy config.Strategy `json:"strategy,omitempty"`
}

// Deps are the collaborators a Predictor is wired from
type Deps struct {
	Client      sportsdata.Client
	Builder     *features.Builder
	Scorer      *scorer.Scorer
	Classifiers []classifier.Model
	Ensemble    *ensemble.Predictor
	Metrics     *metrics.Metrics
}

// Options are the tunables of the prediction path
type Options struct {
	// PoissonBlend is the Poisson share of the rule-based source
	PoissonBlend float64
	// Deadline is the soft per prediction deadline. Past it classifiers are skipped
	Deadline time.Duration
	// Workers bounds PredictBatch concurrency
	Workers int
}

// OptionsFrom copies the prediction options out of cfg
func OptionsFrom(cfg *config.Config) Options {
	return Options{
		PoissonBlend: cfg.PoissonBlend,
		Deadline:     cfg.RequestDeadline(),
		Workers:      cfg.BatchWorkers,
	}
}

// Predictor is the dependency injection context for the prediction core
type Predictor struct {
	deps  Deps
	opts  Options
	now   func() time.Time
	newID func() string
}

// New wires a predictor. Scorer and Ensemble default to the built-in weights and
// the voting strategy when nil
func New(deps Deps, opts Options) *Predictor {
	if deps.Scorer == nil {
		deps.Scorer = scorer.New(nil)
	}
	if deps.Ensemble == nil {
		deps.Ensemble = ensemble.New(config.StrategyVoting)
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	opts.PoissonBlend = podds.Clamp(opts.PoissonBlend, 0, 1, 1)
	return &Predictor{
		deps:  deps,
		opts:  opts,
		now:   time.Now,
		newID: func() string { return uuid.NewString() },
	}
}

// Predict produces a prediction for one fixture. It never fails: a record that could
// not be computed has status unavailable and a uniform distribution
func (p *Predictor) Predict(ctx context.Context, req Request) *podds.PredictionRecord {
	start := p.now()
	rec := &podds.PredictionRecord{
		RequestID: p.newID(),
		FixtureID: req.FixtureID,
		HomeID:    req.HomeID,
		AwayID:    req.AwayID,
	}
	var defaulted []string
	defer func() {
		rec.GeneratedAt = p.now().UTC()
		p.deps.Metrics.ObservePrediction(string(rec.Status), rec.Method, p.now().Sub(start), defaulted)
	}()

	buildCtx := ctx
	if p.opts.Deadline > 0 {
		var cancel context.CancelFunc
		buildCtx, cancel = context.WithTimeout(ctx, p.opts.Deadline)
		defer cancel()
	}

	fbReq := features.Request{HomeID: req.HomeID, AwayID: req.AwayID, FixtureID: req.FixtureID, League: req.League}
	if fbReq.FixtureID <= 0 {
		fbReq.FixtureID = p.resolveFixture(buildCtx, req)
		rec.FixtureID = fbReq.FixtureID
	}

	fr, err := p.deps.Builder.Build(buildCtx, fbReq)
	if err != nil {
		kind := podds.ErrUpstream
		switch {
		case errors.Is(err, features.ErrMissingInput):
			kind = podds.ErrMissingInput
		case errors.Is(err, features.ErrInsufficientData):
			kind = podds.ErrInsufficientData
		}
		logger.Warn("Cannot predict fixture", req.FixtureID, req.HomeID, req.AwayID, err)
		unavailable(rec, kind, err.Error())
		return rec
	}
	defaulted = fr.Defaulted

	pois := poisson.Predict(fr.Raw.LambdaHome, fr.Raw.LambdaAway)
	rec.ExpectedHomeGoals = pois.LambdaHome
	rec.ExpectedAwayGoals = pois.LambdaAway
	rec.Over25, rec.Under25 = pois.Over25, pois.Under25
	rec.BTTSYes, rec.BTTSNo = pois.BTTSYes, pois.BTTSNo

	scored := p.deps.Scorer.Score(fr)
	avgConsistency := (fr.Raw.HomeConsistency + fr.Raw.AwayConsistency) / 2
	rule := p.ruleSource(pois, scored, avgConsistency)

	sources := []ensemble.Source{rule}
	var problems []string
	if len(fr.Defaulted) > 0 {
		problems = append(problems, "defaults for "+strings.Join(fr.Defaulted, ", "))
	}

	if len(p.deps.Classifiers) > 0 {
		if p.pastDeadline(ctx, start) {
			logger.Warn("Soft deadline passed, skipping classifiers", rec.FixtureID)
			problems = append(problems, "deadline passed, classifiers skipped")
		} else {
			ml, failed := p.classify(fr)
			sources = append(sources, ml...)
			problems = append(problems, failed...)
		}
	}

	strategy := req.Strategy
	if strategy == "" {
		strategy = p.deps.Ensemble.Strategy()
	}
	res, err := p.deps.Ensemble.CombineWith(strategy, sources)
	if err != nil {
		logger.Warn("Ensemble failed, using Poisson only", rec.FixtureID, err)
		problems = append(problems, "ensemble: "+err.Error())
		res = ensemble.Result{
			Probabilities: pois.Probabilities,
			Outcome:       pois.Probabilities.ArgMax(),
			Confidence:    poisson.Confidence(pois.Probabilities, avgConsistency),
			Method:        "poisson",
		}
	}

	rec.Probabilities = res.Probabilities
	rec.Outcome = res.Outcome
	rec.Confidence = res.Confidence
	rec.Method = res.Method
	rec.Breakdown = res.Breakdown
	for _, r := range Reasons(fr, scored) {
		rec.AddReason(r)
	}

	rec.Status = podds.PredictionOK
	if len(problems) > 0 {
		rec.Status = podds.PredictionDegraded
		rec.StatusReason = strings.Join(problems, "; ")
	}
	if err := rec.Check(); err != nil {
		logger.Error("Prediction failed its own checks", rec.FixtureID, err)
		unavailable(rec, podds.ErrNumeric, err.Error())
	}
	return rec
}

// PredictBatch predicts every request with at most Options.Workers in flight.
// Results are in request order
func (p *Predictor) PredictBatch(ctx context.Context, reqs []Request) []*podds.PredictionRecord {
	out := make([]*podds.PredictionRecord, len(reqs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Workers)
	for i := range reqs {
		i := i
		g.Go(func() error {
			out[i] = p.Predict(gctx, reqs[i])
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// resolveFixture looks up the next scheduled meeting when the caller gave no fixture id
func (p *Predictor) resolveFixture(ctx context.Context, req Request) int {
	if p.deps.Client == nil || req.HomeID <= 0 || req.AwayID <= 0 {
		return 0
	}
	f, err := p.deps.Client.UpcomingFixture(ctx, req.HomeID, req.AwayID)
	if err != nil {
		logger.Debug("No upcoming fixture found", req.HomeID, req.AwayID, err)
		return 0
	}
	return f.ID
}

// ruleSource blends the Poisson distribution with the weighted scorer's
func (p *Predictor) ruleSource(pois poisson.Result, scored scorer.Result, avgConsistency float64) ensemble.Source {
	b := p.opts.PoissonBlend
	pv, sv := pois.Probabilities.Vector(), scored.Probabilities.Vector()
	var v [3]float64
	for i := range v {
		v[i] = b*pv[i] + (1-b)*sv[i]
	}
	d := podds.FromVector(v).Normalize()
	return ensemble.Source{
		Name:          RuleSourceName,
		Method:        RuleSourceMethod,
		Probabilities: d,
		Confidence:    poisson.Confidence(d, avgConsistency),
	}
}

// classify runs every classifier. Failures drop that source and are reported
func (p *Predictor) classify(fr *podds.FeatureRecord) ([]ensemble.Source, []string) {
	var sources []ensemble.Source
	var failed []string
	for _, m := range p.deps.Classifiers {
		d, err := m.PredictProba(fr)
		if err != nil {
			logger.Warn("Classifier failed, dropping it", m.Name(), fr.FixtureID, err)
			failed = append(failed, fmt.Sprintf("classifier %s failed", m.Name()))
			continue
		}
		sources = append(sources, ensemble.Source{
			Name:          m.Name(),
			Method:        m.Method(),
			Probabilities: d,
			Confidence:    classifier.Confidence(d),
			ML:            true,
		})
	}
	return sources, failed
}

func (p *Predictor) pastDeadline(ctx context.Context, start time.Time) bool {
	if ctx.Err() != nil {
		return true
	}
	return p.opts.Deadline > 0 && p.now().Sub(start) >= p.opts.Deadline
}

func unavailable(rec *podds.PredictionRecord, kind podds.ErrorKind, detail string) {
	rec.Probabilities = podds.Uniform
	rec.Outcome = podds.Uniform.ArgMax()
	rec.Confidence = 0
	rec.Method = MethodNone
	rec.Breakdown = nil
	rec.Reasons = nil
	rec.Status = podds.PredictionUnavailable
	rec.StatusReason = fmt.Sprintf("%s: %s", kind, detail)
}
