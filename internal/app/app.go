// Package app initializes and holds long-lived application services,
// acting as a dependency injection container.
package app

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/redlens/collector/internal/config"
	"github.com/redlens/collector/internal/logging"
	"github.com/redlens/collector/internal/metrics"
	"github.com/redlens/collector/internal/patcher"
	"github.com/redlens/collector/internal/runner"
	"github.com/redlens/collector/internal/store"
)

// App holds the shared services every command needs: configuration,
// logger, progress store, configuration patcher and subprocess runner. It
// is built once at startup and torn down with Close.
type App struct {
	cfg     config.Config
	logger  *zap.Logger
	store   *store.Store
	patcher *patcher.Patcher
	runner  runner.Runner
}

// New loads configuration from path (empty means defaults plus
// environment) and wires the service container. It fails fast on any
// unusable dependency.
func New(configPath string) (*App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}

	st, err := store.Open(cfg.DB.Path)
	if err != nil {
		return nil, fmt.Errorf("opening progress store: %w", err)
	}

	metrics.Init()
	return &App{
		cfg:     cfg,
		logger:  logger,
		store:   st,
		patcher: patcher.New(cfg.Crawler.ConfigArtifact, logger),
		runner:  runner.New(logger),
	}, nil
}

// Config returns the loaded configuration.
func (a *App) Config() config.Config { return a.cfg }

// Logger returns the shared zap logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Store returns the progress store.
func (a *App) Store() *store.Store { return a.store }

// Patcher returns the crawler configuration patcher.
func (a *App) Patcher() *patcher.Patcher { return a.patcher }

// Runner returns the subprocess runner.
func (a *App) Runner() runner.Runner { return a.runner }

// Close releases held resources. Safe on a nil receiver so commands can
// defer it unconditionally.
func (a *App) Close() error {
	if a == nil {
		return nil
	}
	_ = a.logger.Sync()
	if a.store != nil {
		return a.store.Close()
	}
	return nil
}
