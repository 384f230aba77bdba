package elo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/richard-senior/podds/internal/logger"
	"github.com/richard-senior/podds/pkg/podds"
)

const (
	// DefaultRating is given to a team the first time it is seen
	DefaultRating = 1500
	// K is the base update factor
	K = 30.0
	// movStep is the extra multiplier per goal of margin beyond the first
	movStep = 0.25
)

// ErrPersist is returned when the rating file could not be written after a retry
var ErrPersist = errors.New("failed to persist elo ratings")

// Rating is one team's entry in the rating file
type Rating struct {
	Rating      int       `json:"rating"`
	LastUpdated time.Time `json:"last_updated"`
}

// file is the on-disk layout. Applied lists the fixture ids already folded into the
// ratings so overlapping updater runs never count a result twice
type file struct {
	Ratings map[string]Rating `json:"ratings"`
	Applied []int             `json:"applied"`
}

// Store holds per-team ratings backed by a JSON file. Reads may run concurrently;
// updates assume a single writer
type Store struct {
	mu      sync.RWMutex
	path    string
	ratings map[int]Rating
	applied map[int]struct{}
	modTime time.Time
	now     func() time.Time
}

// NewStore returns an empty store bound to path. Call Load to read existing ratings
func NewStore(path string) *Store {
	return &Store{path: path, ratings: make(map[int]Rating), applied: make(map[int]struct{}), now: time.Now}
}

// Path is the backing file
func (s *Store) Path() string { return s.path }

// Load replaces the in-memory ratings with the file contents. A missing file is
// an empty store. Files holding a bare team id to rating object are also read
func (s *Store) Load() error {
	info, err := os.Stat(s.path)
	if errors.Is(err, os.ErrNotExist) {
		logger.Debug("No elo file yet, starting empty", s.path)
		s.mu.Lock()
		s.ratings = make(map[int]Rating)
		s.applied = make(map[int]struct{})
		s.modTime = time.Time{}
		s.mu.Unlock()
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to stat elo file %s: %w", s.path, err)
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("failed to read elo file %s: %w", s.path, err)
	}

	var f file
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("failed to parse elo file %s: %w", s.path, err)
	}
	if f.Ratings == nil && f.Applied == nil {
		if err := json.Unmarshal(data, &f.Ratings); err != nil {
			return fmt.Errorf("failed to parse elo file %s: %w", s.path, err)
		}
	}
	ratings := make(map[int]Rating, len(f.Ratings))
	for k, v := range f.Ratings {
		id, err := strconv.Atoi(k)
		if err != nil || id <= 0 {
			return fmt.Errorf("elo file %s has invalid team id %q", s.path, k)
		}
		ratings[id] = v
	}
	applied := make(map[int]struct{}, len(f.Applied))
	for _, id := range f.Applied {
		applied[id] = struct{}{}
	}

	s.mu.Lock()
	s.ratings = ratings
	s.applied = applied
	s.modTime = info.ModTime()
	s.mu.Unlock()
	logger.Info("Loaded elo ratings", len(ratings), s.path)
	return nil
}

// Reload reads the file again if it changed since the last Load and reports whether it did
func (s *Store) Reload() (bool, error) {
	info, err := os.Stat(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat elo file %s: %w", s.path, err)
	}
	s.mu.RLock()
	unchanged := info.ModTime().Equal(s.modTime)
	s.mu.RUnlock()
	if unchanged {
		return false, nil
	}
	return true, s.Load()
}

// RunReloader calls Reload every interval until ctx is done, so a long running reader
// picks up ratings persisted by the offline updater
func (s *Store) RunReloader(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Reload(); err != nil {
				logger.Warn("Elo reload failed, keeping current ratings", err)
			}
		}
	}
}

// Persist writes every rating atomically, retrying once before giving up with ErrPersist
func (s *Store) Persist() error {
	s.mu.RLock()
	f := file{Ratings: make(map[string]Rating, len(s.ratings)), Applied: make([]int, 0, len(s.applied))}
	for id, r := range s.ratings {
		f.Ratings[strconv.Itoa(id)] = Rating{Rating: r.Rating, LastUpdated: r.LastUpdated.UTC()}
	}
	for id := range s.applied {
		f.Applied = append(f.Applied, id)
	}
	s.mu.RUnlock()
	sort.Ints(f.Applied)

	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersist, err)
	}

	if err = writeAtomic(s.path, data); err != nil {
		logger.Warn("Elo persist failed, retrying once", s.path, err)
		if err = writeAtomic(s.path, data); err != nil {
			return fmt.Errorf("%w: %v", ErrPersist, err)
		}
	}
	if info, err := os.Stat(s.path); err == nil {
		s.mu.Lock()
		s.modTime = info.ModTime()
		s.mu.Unlock()
	}
	return nil
}

// writeAtomic writes to a temp file in the same directory and renames it over path
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return err
	}
	if err := os.Rename(name, path); err != nil {
		os.Remove(name)
		return err
	}
	return nil
}

// GetRating returns the team's rating, creating the default on first access
func (s *Store) GetRating(teamID int) int {
	s.mu.RLock()
	r, ok := s.ratings[teamID]
	s.mu.RUnlock()
	if ok {
		return r.Rating
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.ratings[teamID]; ok {
		return r.Rating
	}
	s.ratings[teamID] = Rating{Rating: DefaultRating, LastUpdated: s.now().UTC()}
	return DefaultRating
}

// Set overwrites a team's rating
func (s *Store) Set(teamID, rating int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ratings[teamID] = Rating{Rating: rating, LastUpdated: s.now().UTC()}
}

// Lookup returns the team's rating without creating one
func (s *Store) Lookup(teamID int) (Rating, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.ratings[teamID]
	return r, ok
}

// Len is the number of known teams
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ratings)
}

// Expected is the expected score of a team rated ra against one rated rb
func Expected(ra, rb float64) float64 {
	return 1 / (1 + math.Pow(10, (rb-ra)/400))
}

// MarginMultiplier scales K by the goal difference: 1 for margins up to one goal,
// then 0.25 more per extra goal
func MarginMultiplier(homeGoals, awayGoals int) float64 {
	diff := homeGoals - awayGoals
	if diff < 0 {
		diff = -diff
	}
	if diff <= 1 {
		return 1
	}
	return 1 + float64(diff-1)*movStep
}

// UpdateFromResult applies one finished result and returns the rating change of each side
func (s *Store) UpdateFromResult(homeID, awayID, homeGoals, awayGoals int) (deltaHome, deltaAway int) {
	if homeID <= 0 || awayID <= 0 || homeID == awayID || homeGoals < 0 || awayGoals < 0 {
		logger.Warn("Ignoring elo update with invalid input", homeID, awayID, homeGoals, awayGoals)
		return 0, 0
	}
	ra := s.GetRating(homeID)
	rb := s.GetRating(awayID)

	ea := Expected(float64(ra), float64(rb))
	eb := 1 - ea
	var sa float64
	switch {
	case homeGoals > awayGoals:
		sa = 1
	case homeGoals == awayGoals:
		sa = 0.5
	}
	sb := 1 - sa
	k := K * MarginMultiplier(homeGoals, awayGoals)

	newA := int(math.Round(float64(ra) + k*(sa-ea)))
	newB := int(math.Round(float64(rb) + k*(sb-eb)))

	now := s.now().UTC()
	s.mu.Lock()
	s.ratings[homeID] = Rating{Rating: newA, LastUpdated: now}
	s.ratings[awayID] = Rating{Rating: newB, LastUpdated: now}
	s.mu.Unlock()
	return newA - ra, newB - rb
}

// Apply updates from a fixture. Anything but a finished fixture with a score is a no-op,
// as is a fixture whose id was already applied
func (s *Store) Apply(f *podds.Fixture) bool {
	if f == nil || !f.HasResult() {
		return false
	}
	if f.ID > 0 {
		s.mu.Lock()
		_, done := s.applied[f.ID]
		if !done {
			s.applied[f.ID] = struct{}{}
		}
		s.mu.Unlock()
		if done {
			return false
		}
	}
	s.UpdateFromResult(f.HomeID, f.AwayID, f.Score.Home, f.Score.Away)
	return true
}

// Applied reports whether the fixture id has been folded into the ratings
func (s *Store) Applied(fixtureID int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.applied[fixtureID]
	return ok
}

// ApplyResults applies fixtures in kick-off order and returns how many were used
func (s *Store) ApplyResults(fixtures []podds.Fixture) int {
	ordered := make([]podds.Fixture, len(fixtures))
	copy(ordered, fixtures)
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].Kickoff.Equal(ordered[j].Kickoff) {
			return ordered[i].Kickoff.Before(ordered[j].Kickoff)
		}
		return ordered[i].ID < ordered[j].ID
	})
	applied := 0
	for i := range ordered {
		if s.Apply(&ordered[i]) {
			applied++
		}
	}
	return applied
}
