package classifier

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
	"sync"

	"github.com/richard-senior/podds/internal/logger"
	"github.com/richard-senior/podds/pkg/podds"
)

const (
	// ArtifactFormat identifies a podds tree-ensemble artifact
	ArtifactFormat = "podds-gbdt"
	// ArtifactVersion is the only artifact version this build reads
	ArtifactVersion = 1

	FlavourXGBoost  = "xgboost"
	FlavourLightGBM = "lightgbm"

	numClasses = 3
)

var (
	// ErrSchemaDrift means the artifact was fitted against a different feature schema
	ErrSchemaDrift = errors.New("classifier schema drift")
	// ErrBadArtifact covers unreadable or structurally invalid artifacts
	ErrBadArtifact = errors.New("invalid classifier artifact")
)

// Model is a fitted 3-way classifier over feature records
type Model interface {
	Name() string
	Method() string
	PredictProba(rec *podds.FeatureRecord) (podds.Distribution, error)
}

// Node is one node of a regression tree. Leaves carry Value; splits send rows with
// feature value < Threshold to Left
type Node struct {
	Leaf      bool    `json:"leaf,omitempty"`
	Value     float64 `json:"value,omitempty"`
	Feature   int     `json:"feature,omitempty"`
	Threshold float64 `json:"threshold,omitempty"`
	Left      int     `json:"left,omitempty"`
	Right     int     `json:"right,omitempty"`
}

// Tree is a flat node list rooted at index 0
type Tree struct {
	Nodes []Node `json:"nodes"`
}

func (t *Tree) eval(x []float64) float64 {
	i := 0
	for {
		n := &t.Nodes[i]
		if n.Leaf {
			return n.Value
		}
		if x[n.Feature] < n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// validate checks indices and that children always follow their parent, which rules out cycles
func (t *Tree) validate(numFeatures int) error {
	if len(t.Nodes) == 0 {
		return fmt.Errorf("empty tree")
	}
	for i, n := range t.Nodes {
		if n.Leaf {
			if math.IsNaN(n.Value) || math.IsInf(n.Value, 0) {
				return fmt.Errorf("node %d has non-finite leaf value", i)
			}
			continue
		}
		if n.Feature < 0 || n.Feature >= numFeatures {
			return fmt.Errorf("node %d splits on feature %d of %d", i, n.Feature, numFeatures)
		}
		for _, child := range []int{n.Left, n.Right} {
			if child <= i || child >= len(t.Nodes) {
				return fmt.Errorf("node %d has invalid child %d", i, child)
			}
		}
	}
	return nil
}

// Artifact is the on-disk form of a fitted gradient-boosted classifier
type Artifact struct {
	Format   string   `json:"format"`
	Version  int      `json:"version"`
	Name     string   `json:"name"`
	Flavour  string   `json:"flavour"`
	Features []string `json:"features"`
	// BaseScore is the starting margin per class in home, draw, away order
	BaseScore [numClasses]float64 `json:"base_score"`
	// Trees[c] are the boosting rounds for class c
	Trees [numClasses][]Tree `json:"trees"`
}

// Validate checks the artifact against the current feature schema
func (a *Artifact) Validate() error {
	if a.Format != ArtifactFormat {
		return fmt.Errorf("%w: format %q", ErrBadArtifact, a.Format)
	}
	if a.Version != ArtifactVersion {
		return fmt.Errorf("%w: version %d, want %d", ErrBadArtifact, a.Version, ArtifactVersion)
	}
	if a.Flavour != FlavourXGBoost && a.Flavour != FlavourLightGBM {
		return fmt.Errorf("%w: unknown flavour %q", ErrBadArtifact, a.Flavour)
	}
	if err := checkSchema(a.Features, podds.FeatureSchema()); err != nil {
		return err
	}
	for c := range a.Trees {
		for i := range a.Trees[c] {
			if err := a.Trees[c][i].validate(len(a.Features)); err != nil {
				return fmt.Errorf("%w: class %d tree %d: %v", ErrBadArtifact, c, i, err)
			}
		}
	}
	return nil
}

func checkSchema(got, want []string) error {
	if len(got) != len(want) {
		return fmt.Errorf("%w: artifact has %d features, current schema has %d", ErrSchemaDrift, len(got), len(want))
	}
	var diffs []string
	for i := range want {
		if got[i] != want[i] {
			diffs = append(diffs, fmt.Sprintf("%d:%s!=%s", i, got[i], want[i]))
		}
	}
	if len(diffs) > 0 {
		if len(diffs) > 3 {
			diffs = append(diffs[:3], "...")
		}
		return fmt.Errorf("%w: %s", ErrSchemaDrift, strings.Join(diffs, ", "))
	}
	return nil
}

// GBDT evaluates a validated artifact
type GBDT struct {
	artifact Artifact
	warned warnSet
}

// maxWarned bounds how many fixture ids are remembered for imputation warnings
const maxWarned = 1024

// warnSet remembers the most recent fixture ids that logged an imputation warning.
// The oldest id is forgotten once maxWarned are held
type warnSet struct {
	mu    sync.Mutex
	seen  map[int]struct{}
	order []int
}

// first reports whether id has not been seen and records it
func (w *warnSet) first(id int) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.seen == nil {
		w.seen = make(map[int]struct{})
	}
	if _, ok := w.seen[id]; ok {
		return false
	}
	if len(w.order) >= maxWarned {
		delete(w.seen, w.order[0])
		w.order = w.order[1:]
	}
	w.seen[id] = struct{}{}
	w.order = append(w.order, id)
	return true
}

func (w *warnSet) len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.seen)
}

var _ Model = (*GBDT)(nil)

// New validates a and wraps it
func New(a Artifact) (*GBDT, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return &GBDT{artifact: a}, nil
}

// Load reads and validates an artifact file. Schema mismatches return ErrSchemaDrift
func Load(path string) (*GBDT, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadArtifact, err)
	}
	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrBadArtifact, path, err)
	}
	m, err := New(a)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	logger.Info("Loaded classifier", m.Name(), a.Flavour, path)
	return m, nil
}

// LoadAll loads every path, logging and skipping the ones that fail
func LoadAll(paths []string) ([]Model, []error) {
	var models []Model
	var errs []error
	for _, p := range paths {
		m, err := Load(p)
		if err != nil {
			logger.Error("Classifier disabled", p, err)
			errs = append(errs, err)
			continue
		}
		models = append(models, m)
	}
	return models, errs
}

func (g *GBDT) Name() string {
	if g.artifact.Name != "" {
		return g.artifact.Name
	}
	return g.artifact.Flavour
}

func (g *GBDT) Method() string { return g.artifact.Flavour }

// PredictProba scores a record. Missing or NaN columns are imputed with 0.5 for factors
// and 0 for raw parameters
func (g *GBDT) PredictProba(rec *podds.FeatureRecord) (podds.Distribution, error) {
	if rec == nil {
		return podds.Distribution{}, fmt.Errorf("nil feature record")
	}
	x, imputed := vectorize(rec, g.artifact.Features)
	if len(imputed) > 0 {
		if g.warned.first(rec.FixtureID) {
			logger.Warn("Imputed missing classifier inputs", g.Name(), rec.FixtureID, imputed)
		}
	}

	var margin [numClasses]float64
	for c := 0; c < numClasses; c++ {
		margin[c] = g.artifact.BaseScore[c]
		for i := range g.artifact.Trees[c] {
			margin[c] += g.artifact.Trees[c][i].eval(x)
		}
	}
	p := softmax(margin)
	d := podds.FromVector(p)
	if !d.Valid() {
		return podds.Distribution{}, fmt.Errorf("classifier %s produced invalid distribution %s", g.Name(), d)
	}
	return d, nil
}

// Confidence of a classifier output is its top probability in percent
func Confidence(d podds.Distribution) float64 {
	top, _ := d.TopTwo()
	return podds.Clamp(top*100, 0, 100, 0)
}

func vectorize(rec *podds.FeatureRecord, schema []string) ([]float64, []string) {
	cols := rec.Columns()
	x := make([]float64, len(schema))
	var imputed []string
	for i, name := range schema {
		v, ok := cols[name]
		if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
			v = 0.5
			if podds.IsRawColumn(name) {
				v = 0
			}
			imputed = append(imputed, name)
		}
		x[i] = v
	}
	return x, imputed
}

func softmax(m [numClasses]float64) [3]float64 {
	maxM := math.Max(m[0], math.Max(m[1], m[2]))
	var out [3]float64
	total := 0.0
	for i, v := range m {
		out[i] = math.Exp(v - maxM)
		total += out[i]
	}
	for i := range out {
		out[i] /= total
	}
	return out
}
