package providers

import (
	"fmt"
	"net/http"

	"github.com/i474232898/hourly-weather-sync/internal/weather"
)

// Names of the providers New understands.
const (
	OpenMeteo   = "openmeteo"
	Meteostat   = "meteostat"
	WeatherAPI  = "weatherapi"
	OpenWeather = "openweather"
)

// Keys holds the API keys of the providers that need one.
type Keys struct {
	Meteostat   string
	WeatherAPI  string
	OpenWeather string
}

// New returns the provider registered under name.
func New(name string, client *http.Client, keys Keys) (weather.Provider, error) {
	switch name {
	case OpenMeteo:
		return NewOpenMeteoProvider(client), nil
	case Meteostat:
		return NewMeteostatProvider(client, keys.Meteostat), nil
	case WeatherAPI:
		return NewWeatherAPIProvider(client, keys.WeatherAPI), nil
	case OpenWeather:
		return NewOpenWeatherProvider(client, keys.OpenWeather), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", name)
	}
}
