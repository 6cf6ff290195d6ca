package cmd

import (
	"go.uber.org/zap"

	"github.com/redlens/collector/internal/app"
	"github.com/redlens/collector/internal/config"
	"github.com/redlens/collector/internal/patcher"
	"github.com/redlens/collector/internal/runner"
	"github.com/redlens/collector/internal/store"
)

// App is the service surface commands depend on; tests inject a mock
// through newApp.
type App interface {
	Config() config.Config
	Logger() *zap.Logger
	Store() *store.Store
	Patcher() *patcher.Patcher
	Runner() runner.Runner
	Close() error
}

func realApp(configPath string) (App, error) {
	return app.New(configPath)
}
