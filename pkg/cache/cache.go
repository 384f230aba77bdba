package cache

import (
	"container/list"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/richard-senior/podds/internal/logger"
	"github.com/richard-senior/podds/pkg/store"
	"golang.org/x/sync/singleflight"
)

// cacheEntry is the L2 row
type cacheEntry struct {
	Key       string `column:"key" dbtype:"TEXT" primary:"true"`
	Value     []byte `column:"value" dbtype:"BLOB NOT NULL"`
	CreatedAt int64  `column:"created_at" dbtype:"INTEGER NOT NULL"`
	ExpiresAt int64  `column:"expires_at" dbtype:"INTEGER NOT NULL" index:"true"`
}

func (e *cacheEntry) GetTableName() string { return "cache_entries" }

func (e *cacheEntry) GetPrimaryKey() map[string]any { return map[string]any{"key": e.Key} }

func (e *cacheEntry) BeforeSave() error {
	if e.Key == "" {
		return fmt.Errorf("cache entry without key")
	}
	return nil
}

type l1Entry struct {
	key     string
	value   []byte
	expires time.Time
}

type tierCounters struct {
	hits, misses, evictions atomic.Uint64
}

func (t *tierCounters) snapshot() TierStats {
	return TierStats{Hits: t.hits.Load(), Misses: t.misses.Load(), Evictions: t.evictions.Load()}
}

// TierStats counts lookups against one tier
type TierStats struct {
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Evictions uint64 `json:"evictions"`
	Entries   int    `json:"entries"`
}

// Stats covers both tiers
type Stats struct {
	L1 TierStats `json:"l1"`
	L2 TierStats `json:"l2"`
}

// MatchCache is an LRU in-process tier backed by an optional sqlite tier
type MatchCache struct {
	mu         sync.Mutex
	maxEntries int
	ll         *list.List
	items      map[string]*list.Element

	l2    *store.Store
	group singleflight.Group
	now   func() time.Time

	l1, l2c tierCounters
}

// New returns a cache holding at most maxEntries in memory. l2 may be nil
func New(ctx context.Context, maxEntries int, l2 *store.Store) (*MatchCache, error) {
	if maxEntries < 1 {
		return nil, fmt.Errorf("maxEntries must be positive, got %d", maxEntries)
	}
	if l2 != nil {
		if err := l2.CreateTable(ctx, &cacheEntry{}); err != nil {
			return nil, err
		}
	}
	return &MatchCache{
		maxEntries: maxEntries,
		ll:         list.New(),
		items:      make(map[string]*list.Element),
		l2:         l2,
		now:        time.Now,
	}, nil
}

// Get returns the value stored under key, consulting L1 then L2
func (c *MatchCache) Get(ctx context.Context, key string) ([]byte, bool) {
	if v, ok := c.getL1(key); ok {
		c.l1.hits.Add(1)
		return v, true
	}
	c.l1.misses.Add(1)

	if c.l2 == nil {
		return nil, false
	}
	row := &cacheEntry{Key: key}
	if err := c.l2.FindByPrimaryKey(ctx, row); err != nil {
		c.l2c.misses.Add(1)
		return nil, false
	}
	expires := time.UnixMilli(row.ExpiresAt)
	if !c.now().Before(expires) {
		c.l2c.misses.Add(1)
		return nil, false
	}
	c.l2c.hits.Add(1)
	c.setL1(key, row.Value, expires)
	return row.Value, true
}

// Set stores value in L1 and writes it through to L2
func (c *MatchCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	now := c.now()
	expires := now.Add(ttl)
	c.setL1(key, value, expires)
	if c.l2 == nil {
		return
	}
	row := &cacheEntry{Key: key, Value: value, CreatedAt: now.UnixMilli(), ExpiresAt: expires.UnixMilli()}
	if err := c.l2.Save(ctx, row); err != nil {
		logger.Warn("L2 cache write failed", key, err)
	}
}

// computeTimeout bounds a shared computation once it no longer follows any caller's context
const computeTimeout = 30 * time.Second

// GetOrCompute returns the cached value for key or calls compute once, however many
// callers ask concurrently, and caches its result for ttl. The shared computation does
// not inherit the starting caller's cancellation; each caller stops waiting when its
// own ctx is done
func (c *MatchCache) GetOrCompute(ctx context.Context, key string, ttl time.Duration, compute func(context.Context) ([]byte, error)) ([]byte, error) {
	if v, ok := c.Get(ctx, key); ok {
		return v, nil
	}
	ch := c.group.DoChan(key, func() (any, error) {
		if v, ok := c.getL1(key); ok {
			return v, nil
		}
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), computeTimeout)
		defer cancel()
		v, err := compute(cctx)
		if err != nil {
			return nil, err
		}
		c.Set(cctx, key, v, ttl)
		return v, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	}
}

// ErrNilResult is returned by Fetch when compute yields a nil pointer without an error.
// Such results are never cached
var ErrNilResult = errors.New("compute returned a nil value")

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

// Fetch is GetOrCompute for JSON encodable values
func Fetch[T any](ctx context.Context, c *MatchCache, key string, ttl time.Duration, compute func(context.Context) (T, error)) (T, error) {
	var out T
	raw, err := c.GetOrCompute(ctx, key, ttl, func(ctx context.Context) ([]byte, error) {
		v, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		if isNil(v) {
			return nil, ErrNilResult
		}
		return json.Marshal(v)
	})
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		// a stale or foreign blob; drop it so the next call recomputes
		c.Delete(ctx, key)
		return out, fmt.Errorf("failed to decode cached %s: %w", key, err)
	}
	return out, nil
}

// Delete removes key from both tiers
func (c *MatchCache) Delete(ctx context.Context, key string) {
	c.mu.Lock()
	if el, ok := c.items[key]; ok {
		c.ll.Remove(el)
		delete(c.items, key)
	}
	c.mu.Unlock()
	if c.l2 != nil {
		if err := c.l2.Delete(ctx, &cacheEntry{Key: key}); err != nil {
			logger.Warn("L2 cache delete failed", key, err)
		}
	}
}

// Invalidate drops L1 keys containing pattern. L2 rows are matched by substring too,
// except that a pattern containing "*" clears L2 entirely
func (c *MatchCache) Invalidate(ctx context.Context, pattern string) (int, error) {
	clearAll := pattern == "" || strings.Contains(pattern, "*")
	removed := 0

	c.mu.Lock()
	for key, el := range c.items {
		if clearAll || strings.Contains(key, pattern) {
			c.ll.Remove(el)
			delete(c.items, key)
			removed++
		}
	}
	c.mu.Unlock()

	if c.l2 == nil {
		return removed, nil
	}
	var n int64
	var err error
	if clearAll {
		n, err = c.l2.DeleteWhere(ctx, &cacheEntry{}, "")
	} else {
		n, err = c.l2.DeleteWhere(ctx, &cacheEntry{}, "key LIKE ? ESCAPE '\\'", "%"+escapeLike(pattern)+"%")
	}
	if err != nil {
		return removed, err
	}
	logger.Debug("Cache invalidated", pattern, removed, n)
	return removed + int(n), nil
}

// Sweep drops expired entries from both tiers and returns how many L2 rows went
func (c *MatchCache) Sweep(ctx context.Context) (int64, error) {
	now := c.now()
	c.mu.Lock()
	for el := c.ll.Back(); el != nil; {
		prev := el.Prev()
		e := el.Value.(*l1Entry)
		if !now.Before(e.expires) {
			c.ll.Remove(el)
			delete(c.items, e.key)
			c.l1.evictions.Add(1)
		}
		el = prev
	}
	c.mu.Unlock()

	if c.l2 == nil {
		return 0, nil
	}
	n, err := c.l2.DeleteWhere(ctx, &cacheEntry{}, "expires_at <= ?", now.UnixMilli())
	if err != nil {
		return 0, err
	}
	c.l2c.evictions.Add(uint64(n))
	return n, nil
}

// RunSweeper calls Sweep every interval until ctx is done
func (c *MatchCache) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := c.Sweep(ctx)
			if err != nil {
				logger.Warn("Cache sweep failed", err)
				continue
			}
			if n > 0 {
				logger.Info("Cache sweep removed expired rows", int(n))
			}
		}
	}
}

// Warm fills L1 from the newest unexpired L2 rows, up to the L1 bound, and returns how
// many were loaded
func (c *MatchCache) Warm(ctx context.Context) (int, error) {
	if c.l2 == nil {
		return 0, nil
	}
	rows, err := store.FindWhere[cacheEntry](ctx, c.l2, "expires_at > ? ORDER BY created_at DESC LIMIT ?", c.now().UnixMilli(), c.maxEntries)
	if err != nil {
		return 0, err
	}
	// oldest first so the newest rows end up most recently used
	for i := len(rows) - 1; i >= 0; i-- {
		c.setL1(rows[i].Key, rows[i].Value, time.UnixMilli(rows[i].ExpiresAt))
	}
	return len(rows), nil
}

// Stats returns hit, miss and eviction counters for both tiers
func (c *MatchCache) Stats(ctx context.Context) Stats {
	c.mu.Lock()
	size := c.ll.Len()
	c.mu.Unlock()

	s := Stats{L1: c.l1.snapshot(), L2: c.l2c.snapshot()}
	s.L1.Entries = size
	if c.l2 != nil {
		if n, err := c.l2.Count(ctx, &cacheEntry{}, ""); err == nil {
			s.L2.Entries = int(n)
		}
	}
	return s
}

func (c *MatchCache) getL1(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[key]
	if !ok {
		return nil, false
	}
	e := el.Value.(*l1Entry)
	if !c.now().Before(e.expires) {
		c.ll.Remove(el)
		delete(c.items, key)
		c.l1.evictions.Add(1)
		return nil, false
	}
	c.ll.MoveToFront(el)
	return e.value, true
}

func (c *MatchCache) setL1(key string, value []byte, expires time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		e := el.Value.(*l1Entry)
		e.value, e.expires = value, expires
		c.ll.MoveToFront(el)
		return
	}
	c.items[key] = c.ll.PushFront(&l1Entry{key: key, value: value, expires: expires})
	for c.ll.Len() > c.maxEntries {
		oldest := c.ll.Back()
		c.ll.Remove(oldest)
		delete(c.items, oldest.Value.(*l1Entry).key)
		c.l1.evictions.Add(1)
	}
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
