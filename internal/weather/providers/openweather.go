package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sony/gobreaker"

	"github.com/i474232898/hourly-weather-sync/internal/weather"
)

// openWeatherMaxSpan matches the one-week limit of the hourly history API.
const openWeatherMaxSpan = 7 * 24 * time.Hour

// OpenWeatherProvider implements the weather.Provider interface for the
// OpenWeatherMap hourly history API.
type OpenWeatherProvider struct {
	name    string
	apiKey  string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

func NewOpenWeatherProvider(client *http.Client, apiKey string) *OpenWeatherProvider {
	return &OpenWeatherProvider{
		name:    "openweathermap",
		apiKey:  apiKey,
		baseURL: "https://history.openweathermap.org/data/2.5/history/city",
		httpCfg: defaultHTTPConfig(client),
		circuit: newCircuitBreaker("openweather"),
	}
}

func (p *OpenWeatherProvider) Name() string {
	return p.name
}

func (p *OpenWeatherProvider) Fetch(ctx context.Context, point weather.Point, start, end time.Time) ([]weather.Observation, error) {
	if p.apiKey == "" {
		return nil, providerError(p.name, errMissingAPIKey)
	}
	window := weather.SyncWindow{Start: start.UTC(), End: end.UTC()}

	var obs []weather.Observation
	seen := make(map[time.Time]bool)
	for _, chunk := range chunkWindow(window.Start, window.End, openWeatherMaxSpan) {
		part, err := p.fetchChunk(ctx, point, chunk)
		if err != nil {
			return nil, providerError(p.name, err)
		}
		obs = collect(obs, seen, window, part...)
	}
	return obs, nil
}

func (p *OpenWeatherProvider) fetchChunk(ctx context.Context, point weather.Point, chunk weather.SyncWindow) ([]weather.Observation, error) {
	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("appid", p.apiKey)
		values.Set("units", "metric")
		values.Set("type", "hour")
		values.Set("lat", fmt.Sprintf("%f", point.Lat))
		values.Set("lon", fmt.Sprintf("%f", point.Lon))
		values.Set("start", strconv.FormatInt(chunk.Start.Unix(), 10))
		values.Set("end", strconv.FormatInt(chunk.End.Unix(), 10))

		u := fmt.Sprintf("%s?%s", p.baseURL, values.Encode())
		return http.NewRequest(http.MethodGet, u, nil)
	}

	var payload struct {
		List []struct {
			Dt   int64 `json:"dt"`
			Main struct {
				Temp *float64 `json:"temp"`
			} `json:"main"`
		} `json:"list"`
	}

	if err := getJSON(ctx, p.httpCfg, p.circuit, buildRequest, &payload); err != nil {
		return nil, err
	}

	obs := make([]weather.Observation, 0, len(payload.List))
	for _, item := range payload.List {
		obs = append(obs, weather.Observation{
			Time:        time.Unix(item.Dt, 0).UTC(),
			Temperature: item.Main.Temp,
		})
	}
	return obs, nil
}
