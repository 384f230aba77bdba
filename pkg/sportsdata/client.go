package sportsdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/richard-senior/podds/internal/logger"
	"github.com/richard-senior/podds/pkg/cache"
	"github.com/richard-senior/podds/pkg/metrics"
	"github.com/richard-senior/podds/pkg/podds"
	"github.com/richard-senior/podds/pkg/quota"
	"github.com/richard-senior/podds/pkg/transport"
	"golang.org/x/time/rate"
)

// Client is the typed view of the sports data vendor used by the prediction core.
// Every error it returns is an *Error
type Client interface {
	TeamByName(ctx context.Context, name string) (*podds.Team, error)
	TeamStatistics(ctx context.Context, teamID, leagueID, season int) (*TeamStatistics, error)
	League(ctx context.Context, leagueID, season int) (*podds.LeagueInfo, error)
	FixturesByDate(ctx context.Context, date time.Time, leagueIDs []int, season int) ([]podds.Fixture, error)
	Fixture(ctx context.Context, fixtureID int) (*podds.Fixture, error)
	TeamLastMatches(ctx context.Context, teamID, n int) ([]podds.Fixture, error)
	LeagueResults(ctx context.Context, leagueID, season int) ([]podds.Fixture, error)
	HeadToHead(ctx context.Context, teamA, teamB, n int) ([]podds.Fixture, error)
	UpcomingFixture(ctx context.Context, homeID, awayID int) (*podds.Fixture, error)
	FixtureInjuries(ctx context.Context, fixtureID int) ([]Injury, error)
	TeamTransfers(ctx context.Context, teamID int) ([]Transfer, error)
	TeamSquad(ctx context.Context, teamID int) ([]SquadPlayer, error)
	PlayerStatistics(ctx context.Context, teamID, season int) ([]PlayerSeason, error)
	TopScorers(ctx context.Context, leagueID, season int) ([]PlayerSeason, error)
	FixtureOdds(ctx context.Context, fixtureID int) (*Odds, error)
	RefereeHistory(ctx context.Context, referee string, leagueID, season int) (*RefereeRecord, error)
	Standings(ctx context.Context, leagueID, season int) ([]StandingRow, error)
	ExpectedGoals(ctx context.Context, teamName string, season int) (*XGRecord, error)
	Weather(ctx context.Context, city string, at time.Time) (*Weather, error)
}

// MaxLookback bounds every "last n matches" request
const MaxLookback = 50

/////////////////////////////////////////////////////////////////////////
////// Errors
/////////////////////////////////////////////////////////////////////////

// Kind is the closed set of failure classes a Client reports
type Kind string

const (
	KindNotFound    Kind = "not_found"
	KindRateLimited Kind = "rate_limited"
	KindUpstream    Kind = "upstream_error"
	KindTimeout     Kind = "timeout"
	KindBadResponse Kind = "bad_response"
)

// Error carries the operation and failure class of a Client call
type Error struct {
	Op   string
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same Kind, so errors.Is(err, ErrTimeout) works
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Op == "" && t.Kind == e.Kind
}

var (
	ErrNotFound    = &Error{Kind: KindNotFound}
	ErrRateLimited = &Error{Kind: KindRateLimited}
	ErrUpstream    = &Error{Kind: KindUpstream}
	ErrTimeout     = &Error{Kind: KindTimeout}
	ErrBadResponse = &Error{Kind: KindBadResponse}
)

// KindOf returns the Kind of err, or "" when err did not come from a Client
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// PoddsKind maps a client failure onto the prediction error taxonomy
func PoddsKind(err error) podds.ErrorKind {
	switch KindOf(err) {
	case KindNotFound:
		return podds.ErrMissingInput
	case KindRateLimited:
		return podds.ErrRateLimited
	case KindTimeout:
		return podds.ErrTimeout
	case KindBadResponse:
		return podds.ErrBadResponse
	default:
		return podds.ErrUpstream
	}
}

func invalid(op, format string, args ...any) error {
	return &Error{Op: op, Kind: KindNotFound, Err: fmt.Errorf("invalid input: "+format, args...)}
}

// vendorError is an error reported inside a 200 response envelope
type vendorError struct {
	msg         string
	rateLimited bool
}

func (e *vendorError) Error() string   { return "vendor error: " + e.msg }
func (e *vendorError) Temporary() bool { return e.rateLimited }

/////////////////////////////////////////////////////////////////////////
////// HTTP client
/////////////////////////////////////////////////////////////////////////

// HTTPClient talks to an API-Football style vendor over HTTP
type HTTPClient struct {
	baseURL        string
	apiKey         string
	xgBaseURL      string
	weatherBaseURL string
	weatherKey     string

	webFetcher *transport.Fetcher
	apiFetcher *transport.Fetcher
	limiter    *rate.Limiter
	retry      *transport.RetryPolicy
	timeout    time.Duration

	cache   *cache.MatchCache
	guard   *quota.Guard
	metrics *metrics.Metrics
}

var _ Client = (*HTTPClient)(nil)

// ClientOption configures the client.
type ClientOption func(*HTTPClient)

// WithBaseURL sets the vendor API base URL.
func WithBaseURL(u string) ClientOption {
	return func(c *HTTPClient) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithAPIKey sets the vendor key header.
func WithAPIKey(key string) ClientOption {
	return func(c *HTTPClient) { c.apiKey = key }
}

// WithXGBaseURL sets where expected goals pages are scraped from.
func WithXGBaseURL(u string) ClientOption {
	return func(c *HTTPClient) { c.xgBaseURL = strings.TrimRight(u, "/") }
}

// WithWeather enables weather lookups.
func WithWeather(baseURL, key string) ClientOption {
	return func(c *HTTPClient) {
		c.weatherBaseURL = strings.TrimRight(baseURL, "/")
		c.weatherKey = key
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *HTTPClient) { c.webFetcher = transport.NewFetcher(hc, nil) }
}

// WithRateLimit sets custom rate limiting.
func WithRateLimit(rps float64, burst int) ClientOption {
	return func(c *HTTPClient) { c.limiter = rate.NewLimiter(rate.Limit(rps), burst) }
}

// WithRetryPolicy replaces the default retry policy.
func WithRetryPolicy(p *transport.RetryPolicy) ClientOption {
	return func(c *HTTPClient) { c.retry = p }
}

// WithTimeout bounds each upstream call, retries included.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) { c.timeout = d }
}

// WithCache puts a MatchCache in front of every operation.
func WithCache(mc *cache.MatchCache) ClientOption {
	return func(c *HTTPClient) { c.cache = mc }
}

// WithQuota charges each upstream call to a user quota.
func WithQuota(g *quota.Guard) ClientOption {
	return func(c *HTTPClient) { c.guard = g }
}

// WithMetrics records upstream call counts and latency.
func WithMetrics(m *metrics.Metrics) ClientOption {
	return func(c *HTTPClient) { c.metrics = m }
}

// NewHTTPClient creates a vendor client.
func NewHTTPClient(opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		baseURL:   "https://v3.football.api-sports.io",
		xgBaseURL: "https://understat.com",
		limiter:   rate.NewLimiter(rate.Limit(5), 5),
		retry:     transport.NewRetryPolicy(3, 500*time.Millisecond, 30*time.Second),
		timeout:   10 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.webFetcher == nil {
		c.webFetcher = transport.NewFetcher(transport.NewHTTPClient(c.timeout), nil)
	}
	c.apiFetcher = c.webFetcher
	if c.apiKey != "" {
		h := http.Header{}
		h.Set("x-apisports-key", c.apiKey)
		c.apiFetcher = c.webFetcher.WithHeaders(h)
	}
	return c
}

// cached serves op from the cache when possible and otherwise runs fetch. Failures
// are never cached
func cached[T any](ctx context.Context, c *HTTPClient, op string, params map[string]any, fetch func(context.Context) (T, error)) (T, error) {
	if c.cache == nil {
		return fetch(ctx)
	}
	v, err := cache.Fetch(ctx, c.cache, cache.Key(op, params), cache.TTLFor(op), fetch)
	if err != nil && KindOf(err) == "" {
		// the caller stopped waiting on a shared fetch, or the cached blob did not decode
		var zero T
		kind := KindBadResponse
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			kind = KindTimeout
		}
		return zero, &Error{Op: op, Kind: kind, Err: err}
	}
	return v, err
}

// envelope is the vendor's response wrapper
type envelope struct {
	Errors  json.RawMessage `json:"errors"`
	Results int             `json:"results"`
	Paging  struct {
		Current int `json:"current"`
		Total   int `json:"total"`
	} `json:"paging"`
	Response json.RawMessage `json:"response"`
}

// vendorErrors decodes the errors field, which is [] when empty and an object otherwise
func (e *envelope) vendorErrors() *vendorError {
	raw := strings.TrimSpace(string(e.Errors))
	if raw == "" || raw == "[]" || raw == "{}" || raw == "null" {
		return nil
	}
	var m map[string]string
	if err := json.Unmarshal(e.Errors, &m); err != nil {
		return &vendorError{msg: raw}
	}
	parts := make([]string, 0, len(m))
	limited := false
	for k, v := range m {
		parts = append(parts, k+": "+v)
		if strings.EqualFold(k, "rateLimit") || strings.EqualFold(k, "requests") {
			limited = true
		}
	}
	return &vendorError{msg: strings.Join(parts, "; "), rateLimited: limited}
}

// apiGet calls the vendor and decodes the response field into out. It applies the
// per-call deadline, the rate limiter, the quota and the retry policy
func (c *HTTPClient) apiGet(ctx context.Context, op, path string, query url.Values, out any) (*envelope, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	env := &envelope{}
	err := c.do(ctx, op, func(ctx context.Context) error {
		body, err := c.apiFetcher.Get(ctx, u, "application/json")
		if err != nil {
			return err
		}
		*env = envelope{}
		if err := json.Unmarshal(body, env); err != nil {
			return &Error{Op: op, Kind: KindBadResponse, Err: err}
		}
		if verr := env.vendorErrors(); verr != nil {
			return verr
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if out != nil && len(env.Response) > 0 {
		if err := json.Unmarshal(env.Response, out); err != nil {
			return nil, &Error{Op: op, Kind: KindBadResponse, Err: err}
		}
	}
	return env, nil
}

// do runs one upstream call under the deadline, limiter, quota and retry policy and
// converts whatever goes wrong into an *Error
func (c *HTTPClient) do(ctx context.Context, op string, call func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	err := c.retry.Execute(ctx, func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		if c.guard != nil {
			if err := c.guard.Acquire(ctx); err != nil {
				if errors.Is(err, quota.ErrExceeded) && c.metrics != nil {
					c.metrics.QuotaRejections.Inc()
				}
				return err
			}
		}
		return call(ctx)
	})
	if err == nil {
		c.metrics.ObserveUpstream(op, "ok", time.Since(start))
		return nil
	}
	cerr := classify(op, err)
	if errors.Is(ctx.Err(), context.DeadlineExceeded) && cerr.Kind == KindUpstream {
		cerr = &Error{Op: op, Kind: KindTimeout, Err: err}
	}
	c.metrics.ObserveUpstream(op, string(cerr.Kind), time.Since(start))
	logger.Warn("Upstream call failed", op, cerr)
	return cerr
}

func classify(op string, err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		if e.Op == "" {
			e.Op = op
		}
		return e
	}
	if transport.IsTimeout(err) {
		return &Error{Op: op, Kind: KindTimeout, Err: err}
	}
	if errors.Is(err, quota.ErrExceeded) {
		return &Error{Op: op, Kind: KindRateLimited, Err: err}
	}
	var se *transport.StatusError
	if errors.As(err, &se) {
		switch {
		case se.StatusCode == http.StatusNotFound:
			return &Error{Op: op, Kind: KindNotFound, Err: err}
		case se.StatusCode == http.StatusTooManyRequests:
			return &Error{Op: op, Kind: KindRateLimited, Err: err}
		default:
			return &Error{Op: op, Kind: KindUpstream, Err: err}
		}
	}
	var ve *vendorError
	if errors.As(err, &ve) && ve.rateLimited {
		return &Error{Op: op, Kind: KindRateLimited, Err: err}
	}
	return &Error{Op: op, Kind: KindUpstream, Err: err}
}
