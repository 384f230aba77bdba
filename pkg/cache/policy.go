package cache

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"
)

// Operation names used for keys and TTL lookup
const (
	OpTeam           = "team"
	OpTeamStatistics = "team_statistics"
	OpTransfers      = "transfers"
	OpInjuries       = "injuries"
	OpExpectedGoals  = "expected_goals"
	OpSquad          = "squad"
	OpHeadToHead     = "head_to_head"
	OpRefereeHistory = "referee_history"
	OpStandings      = "standings"
)

// DefaultTTL is applied to operations missing from the TTL table
const DefaultTTL = 10 * time.Minute

var ttls = map[string]time.Duration{
	OpTeam:           30 * time.Minute,
	OpTeamStatistics: 24 * time.Hour,
	OpTransfers:      24 * time.Hour,
	OpInjuries:       time.Hour,
	OpExpectedGoals:  2 * time.Hour,
	OpSquad:          12 * time.Hour,
	OpHeadToHead:     7 * 24 * time.Hour,
	OpRefereeHistory: 30 * 24 * time.Hour,
	OpStandings:      6 * time.Hour,
}

// TTLFor returns how long results of op stay fresh
func TTLFor(op string) time.Duration {
	if d, ok := ttls[op]; ok {
		return d
	}
	return DefaultTTL
}

// Key fingerprints an operation and its parameters. Parameter order does not matter
func Key(op string, params map[string]any) string {
	names := make([]string, 0, len(params))
	for k := range params {
		names = append(names, k)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString(op)
	b.WriteByte(':')
	for i, k := range names {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(k))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(normalise(params[k])))
	}
	return b.String()
}

func normalise(v any) string {
	switch x := v.(type) {
	case string:
		return strings.ToLower(strings.TrimSpace(x))
	case time.Time:
		return x.UTC().Format("2006-01-02")
	case []int:
		parts := make([]string, len(x))
		sorted := append([]int(nil), x...)
		sort.Ints(sorted)
		for i, n := range sorted {
			parts[i] = fmt.Sprint(n)
		}
		return strings.Join(parts, ",")
	default:
		return fmt.Sprint(x)
	}
}
