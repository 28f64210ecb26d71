package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"

	"github.com/i474232898/hourly-weather-sync/internal/weather"
)

const openMeteoHourLayout = "2006-01-02T15:04"

// openMeteoForecastReach is how far back the forecast endpoint serves hourly
// data (past_days caps at 92). Older hours come from the archive endpoint.
const openMeteoForecastReach = 90 * 24 * time.Hour

// OpenMeteoProvider implements the weather.Provider interface for Open-Meteo
// hourly temperature_2m data. No API key is needed.
type OpenMeteoProvider struct {
	name       string
	baseURL    string
	archiveURL string
	httpCfg    HTTPClientConfig
	circuit    *gobreaker.CircuitBreaker
}

func NewOpenMeteoProvider(client *http.Client) *OpenMeteoProvider {
	return &OpenMeteoProvider{
		name:       "openmeteo",
		baseURL:    "https://api.open-meteo.com/v1/forecast",
		archiveURL: "https://archive-api.open-meteo.com/v1/archive",
		httpCfg:    defaultHTTPConfig(client),
		circuit:    newCircuitBreaker("openmeteo"),
	}
}

func (p *OpenMeteoProvider) Name() string {
	return p.name
}

// Fetch serves the recent part of the window from the forecast endpoint and
// anything older than openMeteoForecastReach from the archive endpoint.
func (p *OpenMeteoProvider) Fetch(ctx context.Context, point weather.Point, start, end time.Time) ([]weather.Observation, error) {
	window := weather.SyncWindow{Start: start.UTC(), End: end.UTC()}
	if window.IsEmpty() {
		return nil, nil
	}

	var obs []weather.Observation
	seen := make(map[time.Time]bool)

	cutoff := window.End.Add(-openMeteoForecastReach).Truncate(24 * time.Hour)
	if window.Start.Before(cutoff) {
		archived := weather.SyncWindow{Start: window.Start, End: cutoff}
		values := p.baseValues(point)
		values.Set("start_date", archived.Start.Format(time.DateOnly))
		values.Set("end_date", archived.End.Format(time.DateOnly))

		part, err := p.fetchHourly(ctx, p.archiveURL, values)
		if err != nil {
			return nil, providerError(p.name, err)
		}
		obs = collect(obs, seen, archived, part...)
		window.Start = cutoff
	}

	values := p.baseValues(point)
	// start_hour and end_hour are inclusive; the window is trimmed below.
	values.Set("start_hour", window.Start.Truncate(time.Hour).Format(openMeteoHourLayout))
	values.Set("end_hour", window.End.Truncate(time.Hour).Format(openMeteoHourLayout))

	part, err := p.fetchHourly(ctx, p.baseURL, values)
	if err != nil {
		return nil, providerError(p.name, err)
	}
	return collect(obs, seen, window, part...), nil
}

func (p *OpenMeteoProvider) baseValues(point weather.Point) url.Values {
	values := url.Values{}
	values.Set("latitude", fmt.Sprintf("%f", point.Lat))
	values.Set("longitude", fmt.Sprintf("%f", point.Lon))
	values.Set("hourly", "temperature_2m")
	values.Set("timezone", "GMT")
	return values
}

func (p *OpenMeteoProvider) fetchHourly(ctx context.Context, endpoint string, values url.Values) ([]weather.Observation, error) {
	buildRequest := func() (*http.Request, error) {
		u := fmt.Sprintf("%s?%s", endpoint, values.Encode())
		return http.NewRequest(http.MethodGet, u, nil)
	}

	var payload struct {
		Hourly struct {
			Time          []string   `json:"time"`
			Temperature2m []*float64 `json:"temperature_2m"`
		} `json:"hourly"`
	}

	if err := getJSON(ctx, p.httpCfg, p.circuit, buildRequest, &payload); err != nil {
		return nil, err
	}

	if len(payload.Hourly.Time) != len(payload.Hourly.Temperature2m) {
		return nil, fmt.Errorf("%w: %d times but %d temperatures",
			errMalformed, len(payload.Hourly.Time), len(payload.Hourly.Temperature2m))
	}

	obs := make([]weather.Observation, 0, len(payload.Hourly.Time))
	for i, raw := range payload.Hourly.Time {
		ts, err := time.Parse(openMeteoHourLayout, raw)
		if err != nil {
			return nil, fmt.Errorf("%w: time %q", errMalformed, raw)
		}
		obs = append(obs, weather.Observation{Time: ts, Temperature: payload.Hourly.Temperature2m[i]})
	}
	return obs, nil
}
