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

// weatherAPIMaxSpan keeps the padded dt..end_dt range of a chunk within the
// 30 days history.json accepts.
const weatherAPIMaxSpan = 28 * 24 * time.Hour

// WeatherAPIProvider implements the weather.Provider interface for the
// WeatherAPI.com history endpoint.
type WeatherAPIProvider struct {
	name    string
	apiKey  string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

func NewWeatherAPIProvider(client *http.Client, apiKey string) *WeatherAPIProvider {
	return &WeatherAPIProvider{
		name:    "weatherapi",
		apiKey:  apiKey,
		baseURL: "https://api.weatherapi.com/v1/history.json",
		httpCfg: defaultHTTPConfig(client),
		circuit: newCircuitBreaker("weatherapi"),
	}
}

func (p *WeatherAPIProvider) Name() string {
	return p.name
}

func (p *WeatherAPIProvider) Fetch(ctx context.Context, point weather.Point, start, end time.Time) ([]weather.Observation, error) {
	if p.apiKey == "" {
		return nil, providerError(p.name, errMissingAPIKey)
	}
	window := weather.SyncWindow{Start: start.UTC(), End: end.UTC()}

	var obs []weather.Observation
	seen := make(map[time.Time]bool)
	for _, chunk := range chunkWindow(window.Start, window.End, weatherAPIMaxSpan) {
		part, err := p.fetchChunk(ctx, point, chunk)
		if err != nil {
			return nil, providerError(p.name, err)
		}
		obs = collect(obs, seen, window, part...)
	}
	return obs, nil
}

func (p *WeatherAPIProvider) fetchChunk(ctx context.Context, point weather.Point, chunk weather.SyncWindow) ([]weather.Observation, error) {
	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("key", p.apiKey)
		// WeatherAPI uses "q" for location; it accepts "lat,lon".
		values.Set("q", fmt.Sprintf("%f,%f", point.Lat, point.Lon))
		// Days are local to the location, so pad by one day on each side.
		values.Set("dt", chunk.Start.AddDate(0, 0, -1).Format(time.DateOnly))
		values.Set("end_dt", chunk.End.AddDate(0, 0, 1).Format(time.DateOnly))

		u := fmt.Sprintf("%s?%s", p.baseURL, values.Encode())
		return http.NewRequest(http.MethodGet, u, nil)
	}

	var payload struct {
		Forecast struct {
			ForecastDay []struct {
				Hour []struct {
					TimeEpoch int64    `json:"time_epoch"`
					TempC     *float64 `json:"temp_c"`
				} `json:"hour"`
			} `json:"forecastday"`
		} `json:"forecast"`
	}

	if err := getJSON(ctx, p.httpCfg, p.circuit, buildRequest, &payload); err != nil {
		return nil, err
	}

	var obs []weather.Observation
	for _, day := range payload.Forecast.ForecastDay {
		for _, h := range day.Hour {
			obs = append(obs, weather.Observation{
				Time:        time.Unix(h.TimeEpoch, 0).UTC(),
				Temperature: h.TempC,
			})
		}
	}
	return obs, nil
}
