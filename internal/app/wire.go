//go:build wireinject
// +build wireinject

package app

import (
	"github.com/google/wire"
	"github.com/spf13/viper"

	"github.com/localchain-dev/localchain/internal/blockwatch"
	"github.com/localchain-dev/localchain/internal/config"
	"github.com/localchain-dev/localchain/internal/health"
	"github.com/localchain-dev/localchain/internal/logging"
	"github.com/localchain-dev/localchain/internal/netalloc"
	"github.com/localchain-dev/localchain/internal/registry"
	"github.com/localchain-dev/localchain/internal/runner"
	"github.com/localchain-dev/localchain/internal/server"
	"github.com/localchain-dev/localchain/internal/supervisor"
)

// InitApp creates a fully wired App instance
func InitApp(v *viper.Viper) (*App, error) {
	wire.Build(
		config.Provider,
		logging.NewLogger,

		registry.NewRegistry,
		netalloc.NewAllocator,
		runner.NewRunner,
		health.NewProber,

		supervisor.NewSupervisor,
		wire.Bind(new(supervisor.ProcessRunner), new(*runner.Runner)),
		wire.Bind(new(supervisor.HealthProber), new(*health.Prober)),

		blockwatch.NewService,
		wire.Bind(new(blockwatch.ChainSource), new(*supervisor.Supervisor)),

		server.NewServer,
		wire.Bind(new(server.Orchestrator), new(*supervisor.Supervisor)),
		wire.Bind(new(server.BlockSource), new(*blockwatch.Service)),

		NewApp,
	)
	return nil, nil
}
