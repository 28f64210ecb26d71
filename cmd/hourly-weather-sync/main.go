package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/i474232898/hourly-weather-sync/internal/config"
	"github.com/i474232898/hourly-weather-sync/internal/logging"
	"github.com/i474232898/hourly-weather-sync/internal/scheduler"
	"github.com/i474232898/hourly-weather-sync/internal/store"
	"github.com/i474232898/hourly-weather-sync/internal/weather"
	"github.com/i474232898/hourly-weather-sync/internal/weather/providers"
)

var errCycleFailed = errors.New("sync cycle failed")

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Printf("ERROR: %v", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var envFile string

	root := &cobra.Command{
		Use:           "hourly-weather-sync",
		Short:         "Sync hourly weather observations for one location into a SQL table",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if err := godotenv.Load(envFile); err != nil {
				log.Printf("INFO: No .env file found or error loading it: %v", err)
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(cmd.Context(), false)
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading the environment")

	root.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Run sync cycles forever at the configured interval",
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(cmd.Context(), false)
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "once",
		Short: "Run a single sync cycle and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(cmd.Context(), true)
		},
	})
	return root
}

func execute(parent context.Context, once bool) error {
	if parent == nil {
		parent = context.Background()
	}

	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		logger := slog.New(logging.NewHandler(os.Stderr, slog.LevelInfo))
		logging.Critical(logger, "invalid configuration", "error", err)
		return err
	}

	logger, closer, err := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	if err != nil {
		return fmt.Errorf("%w: %v", config.ErrConfiguration, err)
	}
	defer closer.Close()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	driver, err := buildDriver(ctx, cfg, logger)
	if err != nil {
		logging.Critical(logger, "startup failed", "error", err)
		return err
	}

	sched, err := scheduler.New(driver, cfg.Interval(), cfg.ScheduleCron, logger)
	if err != nil {
		err = fmt.Errorf("%w: %v", config.ErrConfiguration, err)
		logging.Critical(logger, "invalid configuration", "error", err)
		return err
	}

	logger.Info("weather sync service started",
		"location", cfg.LocationName,
		"provider", cfg.Provider,
		"store", cfg.StoreDriver,
		"store_timezone", cfg.StoreTimezone.String())

	if once {
		res := sched.RunOnce(ctx)
		if res.Failed() {
			return fmt.Errorf("%w: %v", errCycleFailed, res.Err)
		}
		return nil
	}
	return sched.Run(ctx)
}

// buildDriver wires the store and provider selected by cfg into a driver.
func buildDriver(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) (*weather.Driver, error) {
	st, err := store.New(cfg.StoreOptions())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrConfiguration, err)
	}
	if cfg.CreateTable {
		if err := st.EnsureTable(ctx); err != nil {
			return nil, err
		}
	}

	// Shared HTTP client for outbound provider calls.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}
	prov, err := providers.New(cfg.Provider, httpClient, cfg.ProviderKeys())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrConfiguration, err)
	}

	return weather.NewDriver(st, prov, cfg.DriverConfig(), weather.WithLogger(logger)), nil
}
