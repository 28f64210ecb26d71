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

// meteostatMaxSpan is the longest period the hourly endpoint serves per request.
const meteostatMaxSpan = 30 * 24 * time.Hour

// MeteostatProvider implements the weather.Provider interface for the Meteostat
// JSON API (point/hourly), served through RapidAPI.
type MeteostatProvider struct {
	name    string
	apiKey  string
	host    string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

func NewMeteostatProvider(client *http.Client, apiKey string) *MeteostatProvider {
	return &MeteostatProvider{
		name:    "meteostat",
		apiKey:  apiKey,
		host:    "meteostat.p.rapidapi.com",
		baseURL: "https://meteostat.p.rapidapi.com/point/hourly",
		httpCfg: defaultHTTPConfig(client),
		circuit: newCircuitBreaker("meteostat"),
	}
}

func (p *MeteostatProvider) Name() string {
	return p.name
}

func (p *MeteostatProvider) Fetch(ctx context.Context, point weather.Point, start, end time.Time) ([]weather.Observation, error) {
	if p.apiKey == "" {
		return nil, providerError(p.name, errMissingAPIKey)
	}
	window := weather.SyncWindow{Start: start.UTC(), End: end.UTC()}

	var obs []weather.Observation
	seen := make(map[time.Time]bool)
	for _, chunk := range chunkWindow(window.Start, window.End, meteostatMaxSpan) {
		part, err := p.fetchChunk(ctx, point, chunk)
		if err != nil {
			return nil, providerError(p.name, err)
		}
		obs = collect(obs, seen, window, part...)
	}
	return obs, nil
}

func (p *MeteostatProvider) fetchChunk(ctx context.Context, point weather.Point, chunk weather.SyncWindow) ([]weather.Observation, error) {
	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("lat", fmt.Sprintf("%f", point.Lat))
		values.Set("lon", fmt.Sprintf("%f", point.Lon))
		// Dates are inclusive and whole days.
		values.Set("start", chunk.Start.Format(time.DateOnly))
		values.Set("end", chunk.End.Format(time.DateOnly))
		values.Set("tz", "UTC")

		u := fmt.Sprintf("%s?%s", p.baseURL, values.Encode())
		req, err := http.NewRequest(http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("x-rapidapi-key", p.apiKey)
		req.Header.Set("x-rapidapi-host", p.host)
		return req, nil
	}

	var payload struct {
		Data []struct {
			Time string   `json:"time"`
			Temp *float64 `json:"temp"`
		} `json:"data"`
	}

	if err := getJSON(ctx, p.httpCfg, p.circuit, buildRequest, &payload); err != nil {
		return nil, err
	}

	obs := make([]weather.Observation, 0, len(payload.Data))
	for _, d := range payload.Data {
		ts, err := time.Parse(time.DateTime, d.Time)
		if err != nil {
			return nil, fmt.Errorf("%w: time %q", errMalformed, d.Time)
		}
		obs = append(obs, weather.Observation{Time: ts, Temperature: d.Temp})
	}
	return obs, nil
}
