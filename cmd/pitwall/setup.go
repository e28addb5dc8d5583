package main

import (
	"fmt"

	"github.com/pitwall-bot/pitwall/internal/cache"
	"github.com/pitwall-bot/pitwall/internal/config"
	"github.com/pitwall-bot/pitwall/internal/openf1"
	"github.com/pitwall-bot/pitwall/internal/store"
	"github.com/pitwall-bot/pitwall/internal/telemetry"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"gorm.io/gorm"
)

// loadConfig reads and validates the configuration and applies its logging settings
func loadConfig(cctx *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(cctx.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if lvl := cctx.String("log-level"); lvl != "" {
		cfg.Log.Level = lvl
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := setupLogging(cfg.Log); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setupLogging(cfg config.LogConfig) error {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	logrus.SetLevel(level)

	switch cfg.Format {
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	default:
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return nil
}

// backend owns every long-lived dependency of a command
type backend struct {
	cfg    *config.Config
	db     *gorm.DB
	source *telemetry.Source
}

func openBackend(cfg *config.Config) (*backend, error) {
	timeout, err := cfg.GetTimeout()
	if err != nil {
		return nil, fmt.Errorf("invalid openf1 timeout: %w", err)
	}
	policies, err := telemetry.PoliciesFromConfig(cfg.Cache)
	if err != nil {
		return nil, err
	}

	db, err := store.Open(cfg.Storage)
	if err != nil {
		return nil, err
	}

	client := openf1.New(cfg.OpenF1.URL, openf1.WithHTTPClient(openf1.NewHTTPClient(timeout, cfg.OpenF1.MaxRetries)))
	source := telemetry.New(
		client,
		cache.New(cfg.Cache.Capacity),
		store.NewDriverRepository(db),
		store.NewLocationRepository(db),
		policies,
	)

	return &backend{cfg: cfg, db: db, source: source}, nil
}

func (b *backend) Close() {
	if err := store.Close(b.db); err != nil {
		logrus.Errorf("Failed to close store: %v", err)
	}
}

// withBackend loads configuration, opens the backend for the duration of fn and closes it
func withBackend(cctx *cli.Context, fn func(b *backend) error) error {
	cfg, err := loadConfig(cctx)
	if err != nil {
		return err
	}
	b, err := openBackend(cfg)
	if err != nil {
		return err
	}
	defer b.Close()
	return fn(b)
}
