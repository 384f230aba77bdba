package sportsdata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/richard-senior/podds/pkg/cache"
)

// datesDataPattern captures the escaped JSON literal understat embeds in team pages
var datesDataPattern = regexp.MustCompile(`datesData\s*=\s*JSON\.parse\('([^']*)'\)`)

var hexEscape = regexp.MustCompile(`\\x([0-9A-Fa-f]{2})`)

type xgSide struct {
	Title string `json:"title"`
}

type xgEntry struct {
	IsResult bool   `json:"isResult"`
	Side     string `json:"side"`
	Home     xgSide `json:"h"`
	Away     xgSide `json:"a"`
	XG       struct {
		H string `json:"h"`
		A string `json:"a"`
	} `json:"xG"`
	Datetime string `json:"datetime"`
}

// ExpectedGoals scrapes a team's per-match xG for a season, most recent first
func (c *HTTPClient) ExpectedGoals(ctx context.Context, teamName string, season int) (*XGRecord, error) {
	const op = cache.OpExpectedGoals
	teamName = strings.TrimSpace(teamName)
	if teamName == "" || !validSeason(season) {
		return nil, invalid(op, "team %q season %d", teamName, season)
	}
	return cached(ctx, c, op, map[string]any{"team": teamName, "season": season}, func(ctx context.Context) (*XGRecord, error) {
		u := fmt.Sprintf("%s/team/%s/%d", c.xgBaseURL, url.PathEscape(strings.ReplaceAll(teamName, " ", "_")), season)
		var page []byte
		err := c.do(ctx, op, func(ctx context.Context) error {
			body, err := c.webFetcher.Get(ctx, u, "text/html")
			if err != nil {
				return err
			}
			page = body
			return nil
		})
		if err != nil {
			return nil, err
		}
		rec, err := parseXGPage(page, teamName, season)
		if err != nil {
			return nil, &Error{Op: op, Kind: KindBadResponse, Err: err}
		}
		return rec, nil
	})
}

// parseXGPage pulls the datesData blob out of the page scripts and keeps played matches
func parseXGPage(page []byte, teamName string, season int) (*XGRecord, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(page)))
	if err != nil {
		return nil, fmt.Errorf("error parsing HTML: %w", err)
	}

	var literal string
	doc.Find("script").EachWithBreak(func(i int, s *goquery.Selection) bool {
		if m := datesDataPattern.FindStringSubmatch(s.Text()); m != nil {
			literal = m[1]
			return false
		}
		return true
	})
	if literal == "" {
		return nil, fmt.Errorf("could not find datesData script")
	}

	var entries []xgEntry
	if err := json.Unmarshal([]byte(unescapeJS(literal)), &entries); err != nil {
		return nil, fmt.Errorf("error parsing xG data: %w", err)
	}

	rec := &XGRecord{Team: teamName, Season: season}
	for _, e := range entries {
		if !e.IsResult {
			continue
		}
		h, errH := strconv.ParseFloat(e.XG.H, 64)
		a, errA := strconv.ParseFloat(e.XG.A, 64)
		if errH != nil || errA != nil {
			continue
		}
		date, _ := time.Parse("2006-01-02 15:04:05", e.Datetime)
		m := XGMatch{Date: date, Home: e.Side == "h"}
		if m.Home {
			m.XG, m.XGA = h, a
		} else {
			m.XG, m.XGA = a, h
		}
		rec.Matches = append(rec.Matches, m)
	}
	if len(rec.Matches) == 0 {
		return nil, fmt.Errorf("no played matches for %s", teamName)
	}
	sort.SliceStable(rec.Matches, func(i, j int) bool { return rec.Matches[i].Date.After(rec.Matches[j].Date) })
	return rec, nil
}

// unescapeJS expands the \xNN escapes inside a single quoted JS string literal. Each
// escape is one byte, so multi byte UTF-8 sequences come out whole
func unescapeJS(s string) string {
	s = hexEscape.ReplaceAllStringFunc(s, func(m string) string {
		b, err := strconv.ParseUint(m[2:], 16, 8)
		if err != nil {
			return m
		}
		return string([]byte{byte(b)})
	})
	return strings.ReplaceAll(s, `\'`, `'`)
}
