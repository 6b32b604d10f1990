// Package app assembles the daemon: config, logging, orchestrator,
// block watcher and the Control API, wired together with google/wire.
package app

import (
	"log/slog"

	"github.com/localchain-dev/localchain/internal/blockwatch"
	"github.com/localchain-dev/localchain/internal/config"
	"github.com/localchain-dev/localchain/internal/server"
	"github.com/localchain-dev/localchain/internal/supervisor"
)

// App is the daemon container.
type App struct {
	Config     *config.RuntimeConfig
	Logger     *slog.Logger
	Supervisor *supervisor.Supervisor
	Blocks     *blockwatch.Service
	Server     *server.Server
}

// NewApp creates the application container.
func NewApp(
	cfg *config.RuntimeConfig,
	logger *slog.Logger,
	sup *supervisor.Supervisor,
	blocks *blockwatch.Service,
	srv *server.Server,
) *App {
	return &App{
		Config:     cfg,
		Logger:     logger,
		Supervisor: sup,
		Blocks:     blocks,
		Server:     srv,
	}
}
