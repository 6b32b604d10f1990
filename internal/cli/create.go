package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/localchain-dev/localchain/internal/client"
)

// NewCreateCmd creates the create command
func NewCreateCmd() *cobra.Command {
	var (
		kind      string
		port      int
		chainID   uint64
		blockTime uint64
		forkURL   string
		extraArgs []string
		start     bool
	)

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a new chain",
		Long: `Create a new chain definition on the daemon. The node process is not
launched until 'localchain start' unless --start is given.`,
		Example: `  # An on-demand anvil chain
  localchain create dev

  # A forked chain mining every 12 seconds
  localchain create mainnet-fork --fork-url https://eth.llamarpc.com --block-time 12

  # Create and immediately start
  localchain create dev --start`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := getClient(cmd)
			if err != nil {
				return err
			}

			st, err := c.CreateChain(cmd.Context(), client.CreateChainRequest{
				Kind:      kind,
				Name:      args[0],
				Port:      port,
				ChainID:   chainID,
				BlockTime: blockTime,
				ForkURL:   forkURL,
				ExtraArgs: extraArgs,
			})
			if err != nil {
				return err
			}

			color.New(color.FgGreen).Printf("✅ Created chain '%s' (%s)\n", st.Config.Name, st.ID)

			if start {
				return startAndWait(cmd, c, st.ID)
			}
			fmt.Printf("Start it with: localchain start %s\n", st.Config.Name)
			return nil
		},
	}

	cmd.Flags().StringVarP(&kind, "kind", "k", "anvil", "Node kind (anvil, geth-dev)")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "Requested port (0 = auto-assign)")
	cmd.Flags().Uint64Var(&chainID, "chain-id", 0, "Chain id (0 = binary default)")
	cmd.Flags().Uint64VarP(&blockTime, "block-time", "b", 0, "Seconds between blocks (0 = mine on demand)")
	cmd.Flags().StringVarP(&forkURL, "fork-url", "f", "", "Upstream RPC URL to fork from")
	cmd.Flags().StringArrayVar(&extraArgs, "extra-arg", nil, "Extra argument passed through to the node binary (repeatable)")
	cmd.Flags().BoolVar(&start, "start", false, "Start the chain right after creating it")

	return cmd
}

// resolveChain maps a name or id prefix typed by the user to a chain.
func resolveChain(cmd *cobra.Command, c *client.Client, ref string) (string, error) {
	chains, err := c.ListChains(cmd.Context())
	if err != nil {
		return "", err
	}

	var matches []string
	for _, st := range chains {
		if st.ID == ref || st.Config.Name == ref {
			return st.ID, nil
		}
		if len(ref) >= 4 && len(st.ID) > len(ref) && st.ID[:len(ref)] == ref {
			matches = append(matches, st.ID)
		}
	}
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return "", fmt.Errorf("no chain named %q", ref)
	default:
		return "", fmt.Errorf("%q matches %d chains, be more specific", ref, len(matches))
	}
}
