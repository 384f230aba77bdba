package quota

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrExceeded is returned when a user has used up a quota
var ErrExceeded = errors.New("quota exceeded")

// Usage is how many upstream calls a user has made in the current periods
type Usage struct {
	Daily   int64 `json:"daily"`
	Monthly int64 `json:"monthly"`
}

// Limits caps Usage. Zero disables a limit
type Limits struct {
	Daily   int64
	Monthly int64
}

func (l Limits) exceededBy(u Usage) bool {
	return (l.Daily > 0 && u.Daily > l.Daily) || (l.Monthly > 0 && u.Monthly > l.Monthly)
}

// Counter keeps per-user daily and monthly call counters. Increments for one
// user are applied atomically
type Counter interface {
	Add(ctx context.Context, user string, delta int64) (Usage, error)
	Usage(ctx context.Context, user string) (Usage, error)
}

func dayKey(prefix, user string, t time.Time) string {
	return fmt.Sprintf("%s:%s:d:%s", prefix, user, t.UTC().Format("20060102"))
}

func monthKey(prefix, user string, t time.Time) string {
	return fmt.Sprintf("%s:%s:m:%s", prefix, user, t.UTC().Format("200601"))
}

/////////////////////////////////////////////////////////////////////////
////// Redis
/////////////////////////////////////////////////////////////////////////

// RedisCounter stores counters in redis with expiring keys
type RedisCounter struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

// NewRedisCounter uses client for storage
func NewRedisCounter(client *redis.Client) *RedisCounter {
	return &RedisCounter{client: client, prefix: "podds:quota", now: time.Now}
}

// Add increments both counters in one transaction
func (r *RedisCounter) Add(ctx context.Context, user string, delta int64) (Usage, error) {
	now := r.now()
	dk, mk := dayKey(r.prefix, user, now), monthKey(r.prefix, user, now)

	var daily, monthly *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		daily = pipe.IncrBy(ctx, dk, delta)
		pipe.Expire(ctx, dk, 48*time.Hour)
		monthly = pipe.IncrBy(ctx, mk, delta)
		pipe.Expire(ctx, mk, 32*24*time.Hour)
		return nil
	})
	if err != nil {
		return Usage{}, fmt.Errorf("failed to update quota counters: %w", err)
	}
	return Usage{Daily: daily.Val(), Monthly: monthly.Val()}, nil
}

// Usage reads both counters
func (r *RedisCounter) Usage(ctx context.Context, user string) (Usage, error) {
	now := r.now()
	vals, err := r.client.MGet(ctx, dayKey(r.prefix, user, now), monthKey(r.prefix, user, now)).Result()
	if err != nil {
		return Usage{}, fmt.Errorf("failed to read quota counters: %w", err)
	}
	var u Usage
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var n int64
		if _, err := fmt.Sscan(s, &n); err != nil {
			return Usage{}, fmt.Errorf("corrupt quota counter: %w", err)
		}
		if i == 0 {
			u.Daily = n
		} else {
			u.Monthly = n
		}
	}
	return u, nil
}

/////////////////////////////////////////////////////////////////////////
////// In process
/////////////////////////////////////////////////////////////////////////

// MemoryCounter keeps counters in process. Used when no redis is configured
type MemoryCounter struct {
	mu     sync.Mutex
	counts map[string]int64
	now    func() time.Time
}

func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{counts: make(map[string]int64), now: time.Now}
}

func (m *MemoryCounter) Add(ctx context.Context, user string, delta int64) (Usage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	dk, mk := dayKey("", user, now), monthKey("", user, now)
	m.counts[dk] += delta
	m.counts[mk] += delta
	return Usage{Daily: m.counts[dk], Monthly: m.counts[mk]}, nil
}

func (m *MemoryCounter) Usage(ctx context.Context, user string) (Usage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	return Usage{Daily: m.counts[dayKey("", user, now)], Monthly: m.counts[monthKey("", user, now)]}, nil
}

/////////////////////////////////////////////////////////////////////////
////// Guard
/////////////////////////////////////////////////////////////////////////

// Guard charges one call per Acquire and refuses calls above the limits
type Guard struct {
	counter Counter
	limits  Limits
	user    string
}

func NewGuard(counter Counter, user string, limits Limits) *Guard {
	return &Guard{counter: counter, user: user, limits: limits}
}

// Acquire counts one upstream call. When that takes the user over a limit the
// call is given back and ErrExceeded returned
func (g *Guard) Acquire(ctx context.Context) error {
	u, err := g.counter.Add(ctx, g.user, 1)
	if err != nil {
		return err
	}
	if g.limits.exceededBy(u) {
		if _, err := g.counter.Add(ctx, g.user, -1); err != nil {
			return fmt.Errorf("%w (and failed to restore counter: %v)", ErrExceeded, err)
		}
		return fmt.Errorf("%w for %s: %d today, %d this month", ErrExceeded, g.user, u.Daily, u.Monthly)
	}
	return nil
}

// Usage reports the guarded user's counters
func (g *Guard) Usage(ctx context.Context) (Usage, error) {
	return g.counter.Usage(ctx, g.user)
}
