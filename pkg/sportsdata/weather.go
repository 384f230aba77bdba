package sportsdata

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type wireForecast struct {
	Location struct {
		Name string `json:"name"`
	} `json:"location"`
	Forecast struct {
		Forecastday []struct {
			Hour []struct {
				TimeEpoch int64   `json:"time_epoch"`
				TempC     float64 `json:"temp_c"`
				WindKph   float64 `json:"wind_kph"`
				PrecipMM  float64 `json:"precip_mm"`
				Condition struct {
					Text string `json:"text"`
				} `json:"condition"`
			} `json:"hour"`
		} `json:"forecastday"`
	} `json:"forecast"`
}

// Weather returns the forecast hour closest to kick off at a city
func (c *HTTPClient) Weather(ctx context.Context, city string, at time.Time) (*Weather, error) {
	const op = "weather"
	city = strings.TrimSpace(city)
	if city == "" || at.IsZero() {
		return nil, invalid(op, "city %q at %v", city, at)
	}
	if c.weatherBaseURL == "" {
		return nil, &Error{Op: op, Kind: KindNotFound, Err: fmt.Errorf("no weather source configured")}
	}
	hour := at.UTC().Truncate(time.Hour)
	return cached(ctx, c, op, map[string]any{"city": city, "hour": hour.Format(time.RFC3339)}, func(ctx context.Context) (*Weather, error) {
		u := c.weatherBaseURL + "/forecast.json?" + q("key", c.weatherKey, "q", city, "dt", hour.Format("2006-01-02")).Encode()
		var w wireForecast
		err := c.do(ctx, op, func(ctx context.Context) error {
			body, err := c.webFetcher.Get(ctx, u, "application/json")
			if err != nil {
				return err
			}
			if err := json.Unmarshal(body, &w); err != nil {
				return &Error{Op: op, Kind: KindBadResponse, Err: err}
			}
			return nil
		})
		if err != nil {
			return nil, err
		}

		var best *Weather
		bestGap := time.Duration(1<<63 - 1)
		for _, day := range w.Forecast.Forecastday {
			for _, h := range day.Hour {
				gap := time.Unix(h.TimeEpoch, 0).Sub(hour)
				if gap < 0 {
					gap = -gap
				}
				if gap < bestGap {
					bestGap = gap
					best = &Weather{City: city, TempC: h.TempC, WindKph: h.WindKph, PrecipMM: h.PrecipMM, Condition: h.Condition.Text}
				}
			}
		}
		if best == nil {
			return nil, &Error{Op: op, Kind: KindBadResponse, Err: fmt.Errorf("forecast for %s has no hours", city)}
		}
		return best, nil
	})
}
