package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/localchain-dev/localchain/internal/app"
	"github.com/localchain-dev/localchain/internal/config"
)

// NewServeCmd creates the serve command that runs the daemon.
func NewServeCmd() *cobra.Command {
	var manifestPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the orchestrator daemon",
		Long: `Run the orchestrator daemon: the Control API, the process supervisor
and the block watcher. Stops all managed nodes on SIGINT/SIGTERM.`,
		Example: `  # Run with defaults (listens on 127.0.0.1:3000)
  localchain serve

  # Pre-create chains from a manifest and autostart the flagged ones
  localchain serve --manifest chains.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := getViper(cmd)
			if err != nil {
				return err
			}
			if manifestPath != "" {
				v.Set("manifest", manifestPath)
			}

			a, err := app.InitApp(v)
			if err != nil {
				return fmt.Errorf("failed to initialize daemon: %w", err)
			}
			return runDaemon(cmd.Context(), a)
		},
	}

	cmd.Flags().StringVar(&manifestPath, "manifest", "", "YAML manifest of chains to pre-create on boot")

	return cmd
}

func runDaemon(parent context.Context, a *app.App) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if a.Config.Manifest != "" {
		if err := bootFromManifest(ctx, a); err != nil {
			return err
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.Server.Run(ctx)
	})
	g.Go(func() error {
		return a.Blocks.Run(ctx)
	})

	err := g.Wait()

	shutCtx, cancel := context.WithTimeout(context.Background(), a.Config.StopTimeout+10*time.Second)
	defer cancel()
	if shutErr := a.Supervisor.Shutdown(shutCtx); shutErr != nil {
		a.Logger.Error("shutdown left processes behind", "err", shutErr)
		if err == nil {
			err = shutErr
		}
	}
	return err
}

// bootFromManifest pre-creates the manifest's chains and starts the
// ones flagged autostart. A failing entry aborts the boot; a dev who
// declares a chain wants it to exist.
func bootFromManifest(ctx context.Context, a *app.App) error {
	manifest, err := config.LoadManifest(a.Config.Manifest)
	if err != nil {
		return err
	}

	for _, mc := range manifest.Chains {
		st, err := a.Supervisor.Create(mc.ChainConfig())
		if err != nil {
			return fmt.Errorf("manifest chain %q: %w", mc.Name, err)
		}
		a.Logger.Info("chain created from manifest", "chain", st.ID, "name", mc.Name)

		if mc.AutoStart {
			if err := a.Supervisor.Start(ctx, st.ID); err != nil {
				return fmt.Errorf("manifest chain %q: %w", mc.Name, err)
			}
		}
	}
	return nil
}
