// Package cli defines the localchain command tree: a serve command
// that runs the daemon and thin client commands that drive it over the
// Control API.
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/localchain-dev/localchain/internal/client"
	"github.com/localchain-dev/localchain/internal/config"
)

// contextKey is the type for context keys
type contextKey string

// viperKey is the context key for the configured viper instance
const viperKey contextKey = "viper"

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "localchain",
		Short: "Local blockchain dev-node orchestrator",
		Long: `Localchain manages local blockchain development nodes (anvil, geth --dev):
it allocates ports, supervises node processes, watches their health and
exposes everything over an HTTP control API with log and block streams.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" || cmd.Name() == "help" || cmd.Name() == "completion" {
				return nil
			}

			v := config.SetupViper()
			bindGlobalFlags(v, cmd)
			cmd.SetContext(withViper(cmd.Context(), v))
			return nil
		},
	}

	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug output")
	rootCmd.PersistentFlags().String("api-url", "", "Daemon API base URL (default derived from listen_addr)")

	rootCmd.AddGroup(&cobra.Group{
		ID:    "daemon",
		Title: "Daemon Commands",
	})
	rootCmd.AddGroup(&cobra.Group{
		ID:    "chains",
		Title: "Chain Commands",
	})

	serveCmd := NewServeCmd()
	serveCmd.GroupID = "daemon"
	rootCmd.AddCommand(serveCmd)

	for _, c := range []*cobra.Command{
		NewCreateCmd(),
		NewListCmd(),
		NewShowCmd(),
		NewStartCmd(),
		NewStopCmd(),
		NewRestartCmd(),
		NewDeleteCmd(),
		NewLogsCmd(),
		NewBlocksCmd(),
	} {
		c.GroupID = "chains"
		rootCmd.AddCommand(c)
	}

	rootCmd.AddCommand(NewVersionCmd())

	return rootCmd
}

// bindGlobalFlags maps persistent flags onto viper keys so flags win
// over env and config file.
func bindGlobalFlags(v *viper.Viper, cmd *cobra.Command) {
	cmd.Flags().Visit(func(f *pflag.Flag) {
		switch f.Name {
		case "debug":
			v.Set("debug", f.Value.String() == "true")
		case "api-url":
			v.Set("api_url", f.Value.String())
		}
	})
}

func withViper(ctx context.Context, v *viper.Viper) context.Context {
	return context.WithValue(ctx, viperKey, v)
}

// getViper returns the configured viper instance from the command
// context.
func getViper(cmd *cobra.Command) (*viper.Viper, error) {
	v, ok := cmd.Context().Value(viperKey).(*viper.Viper)
	if !ok {
		return nil, fmt.Errorf("configuration not initialized")
	}
	return v, nil
}

// getClient builds an API client against the configured daemon.
func getClient(cmd *cobra.Command) (*client.Client, error) {
	v, err := getViper(cmd)
	if err != nil {
		return nil, err
	}
	url := v.GetString("api_url")
	if url == "" {
		url = "http://" + v.GetString("listen_addr")
	}
	return client.New(url), nil
}
