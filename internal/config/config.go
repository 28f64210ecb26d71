package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/go-playground/validator/v10"

	"github.com/i474232898/hourly-weather-sync/internal/store"
	"github.com/i474232898/hourly-weather-sync/internal/weather"
	"github.com/i474232898/hourly-weather-sync/internal/weather/providers"
)

// ErrConfiguration marks missing or malformed settings. It is always fatal.
var ErrConfiguration = errors.New("configuration error")

var validate = validator.New()

// AppConfig is read once at startup and never mutated afterwards.
type AppConfig struct {
	LocationName string
	Lat          float64 `validate:"latitude"`
	Lon          float64 `validate:"longitude"`

	// LookbackDays is the bootstrap depth used when the store is empty.
	LookbackDays int `validate:"min=1"`

	// IntervalMinutes is the pause after each cycle.
	IntervalMinutes int `validate:"min=1"`

	// ScheduleCron replaces the fixed pause with a cron schedule when set.
	ScheduleCron string

	StoreDriver   string         `validate:"oneof=postgres sqlite memory"`
	StoreTimezone *time.Location `validate:"-"`
	CreateTable   bool

	PostgresHost     string `validate:"required_if=StoreDriver postgres"`
	PostgresPort     int    `validate:"min=0,max=65535"`
	PostgresDB       string `validate:"required_if=StoreDriver postgres"`
	PostgresUser     string `validate:"required_if=StoreDriver postgres"`
	PostgresPassword string `validate:"required_if=StoreDriver postgres"`
	PostgresSSLMode  string `validate:"omitempty,oneof=disable allow prefer require verify-ca verify-full"`
	Table            string `validate:"required_unless=StoreDriver memory"`

	SQLitePath string `validate:"required_if=StoreDriver sqlite"`

	Provider          string `validate:"oneof=openmeteo meteostat weatherapi openweather"`
	MeteostatAPIKey   string `validate:"required_if=Provider meteostat"`
	WeatherAPIKey     string `validate:"required_if=Provider weatherapi"`
	OpenWeatherAPIKey string `validate:"required_if=Provider openweather"`
	HTTPTimeout       time.Duration

	LogLevel string `validate:"oneof=debug info warn error"`
	LogFile  string
}

// Load reads configuration from environment with sensible defaults.
// Every returned error wraps ErrConfiguration.
func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		LocationName:      getenvDefault("LOCATION_NAME", "Default Location"),
		ScheduleCron:      os.Getenv("SCHEDULE_CRON"),
		StoreDriver:       strings.ToLower(getenvDefault("STORE_DRIVER", store.DriverPostgres)),
		PostgresHost:      os.Getenv("POSTGRES_HOST"),
		PostgresDB:        os.Getenv("POSTGRES_DB"),
		PostgresUser:      os.Getenv("POSTGRES_USER"),
		PostgresPassword:  os.Getenv("POSTGRES_PASSWORD"),
		PostgresSSLMode:   os.Getenv("POSTGRES_SSLMODE"),
		Table:             getenvDefault("POSTGRES_TABLE", os.Getenv("STORE_TABLE")),
		SQLitePath:        os.Getenv("SQLITE_PATH"),
		Provider:          strings.ToLower(getenvDefault("PROVIDER", providers.OpenMeteo)),
		MeteostatAPIKey:   os.Getenv("METEOSTAT_API_KEY"),
		WeatherAPIKey:     os.Getenv("WEATHERAPI_API_KEY"),
		OpenWeatherAPIKey: os.Getenv("OPENWEATHER_API_KEY"),
		LogLevel:          strings.ToLower(getenvDefault("LOG_LEVEL", "info")),
		LogFile:           os.Getenv("LOG_FILE"),
	}

	required := []string{"LAT", "LON"}
	if cfg.StoreDriver == store.DriverPostgres {
		required = append(required, "POSTGRES_HOST", "POSTGRES_PORT", "POSTGRES_DB", "POSTGRES_USER", "POSTGRES_PASSWORD", "POSTGRES_TABLE")
	}
	if missing := missingVars(required...); len(missing) > 0 {
		return nil, fmt.Errorf("%w: required environment variables not set: %s",
			ErrConfiguration, strings.Join(missing, ", "))
	}

	var err error
	if cfg.Lat, err = getenvFloat("LAT"); err != nil {
		return nil, err
	}
	if cfg.Lon, err = getenvFloat("LON"); err != nil {
		return nil, err
	}
	if cfg.LookbackDays, err = getenvInt("DAYS_BACK", 30); err != nil {
		return nil, err
	}
	if cfg.IntervalMinutes, err = getenvInt("DELAY_MINUTES", 65); err != nil {
		return nil, err
	}
	if cfg.PostgresPort, err = getenvInt("POSTGRES_PORT", 0); err != nil {
		return nil, err
	}
	if cfg.CreateTable, err = getenvBool("STORE_CREATE_TABLE", false); err != nil {
		return nil, err
	}

	timeoutStr := getenvDefault("HTTP_TIMEOUT", "30s")
	if cfg.HTTPTimeout, err = time.ParseDuration(timeoutStr); err != nil {
		return nil, fmt.Errorf("%w: invalid HTTP_TIMEOUT: %v", ErrConfiguration, err)
	}

	// Stored timestamps carry no zone, so the zone they were written in is configuration.
	tzName := getenvDefault("STORE_TIMEZONE", "Europe/Moscow")
	if cfg.StoreTimezone, err = time.LoadLocation(tzName); err != nil {
		return nil, fmt.Errorf("%w: invalid STORE_TIMEZONE %q: %v", ErrConfiguration, tzName, err)
	}

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	return cfg, nil
}

// Point returns the configured location.
func (c *AppConfig) Point() weather.Point {
	return weather.Point{Name: c.LocationName, Lat: c.Lat, Lon: c.Lon}
}

// Lookback returns the lookback window as a duration.
func (c *AppConfig) Lookback() time.Duration {
	return time.Duration(c.LookbackDays) * 24 * time.Hour
}

// Interval returns the pause between cycles.
func (c *AppConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMinutes) * time.Minute
}

// DriverConfig returns the settings the sync driver needs.
func (c *AppConfig) DriverConfig() weather.DriverConfig {
	return weather.DriverConfig{
		Point:         c.Point(),
		Lookback:      c.Lookback(),
		StoreLocation: c.StoreTimezone,
	}
}

// PostgresURL builds a pgx connection URL from the discrete settings.
func (c *AppConfig) PostgresURL() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.PostgresUser, c.PostgresPassword),
		Host:   net.JoinHostPort(c.PostgresHost, strconv.Itoa(c.PostgresPort)),
		Path:   "/" + c.PostgresDB,
	}
	if c.PostgresSSLMode != "" {
		u.RawQuery = url.Values{"sslmode": {c.PostgresSSLMode}}.Encode()
	}
	return u.String()
}

// StoreOptions returns the options for store.New.
func (c *AppConfig) StoreOptions() store.Options {
	return store.Options{
		Driver:      c.StoreDriver,
		PostgresURL: c.PostgresURL(),
		SQLitePath:  c.SQLitePath,
		Table:       c.Table,
		Location:    c.StoreTimezone,
	}
}

// ProviderKeys returns the API keys for providers.New.
func (c *AppConfig) ProviderKeys() providers.Keys {
	return providers.Keys{
		Meteostat:   c.MeteostatAPIKey,
		WeatherAPI:  c.WeatherAPIKey,
		OpenWeather: c.OpenWeatherAPIKey,
	}
}

func missingVars(keys ...string) []string {
	var missing []string
	for _, k := range keys {
		if os.Getenv(k) == "" {
			missing = append(missing, k)
		}
	}
	return missing
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer, got %q", ErrConfiguration, key, v)
	}
	return n, nil
}

func getenvFloat(key string) (float64, error) {
	v := os.Getenv(key)
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be a number, got %q", ErrConfiguration, key, v)
	}
	return f, nil
}

func getenvBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return false, fmt.Errorf("%w: %s must be a boolean, got %q", ErrConfiguration, key, v)
	}
	return b, nil
}
