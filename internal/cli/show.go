package cli

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/localchain-dev/localchain/internal/cli/render"
)

// NewShowCmd creates the show command
func NewShowCmd() *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "show <chain>",
		Short: "Show one chain in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := getClient(cmd)
			if err != nil {
				return err
			}
			id, err := resolveChain(cmd, c, args[0])
			if err != nil {
				return err
			}
			st, err := c.GetChain(cmd.Context(), id)
			if err != nil {
				return err
			}

			if jsonOut {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(st)
			}
			return render.NewChainsRenderer(os.Stdout).RenderDetail(st)
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")

	return cmd
}
