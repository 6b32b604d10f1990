package cli

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/localchain-dev/localchain/internal/cli/render"
)

// NewListCmd creates the list command
func NewListCmd() *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List all chains",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := getClient(cmd)
			if err != nil {
				return err
			}
			chains, err := c.ListChains(cmd.Context())
			if err != nil {
				return err
			}

			if jsonOut {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(chains)
			}
			return render.NewChainsRenderer(os.Stdout).RenderList(chains)
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")

	return cmd
}
