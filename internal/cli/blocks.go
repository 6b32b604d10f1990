package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/localchain-dev/localchain/internal/cli/render"
	"github.com/localchain-dev/localchain/internal/domain"
)

// NewBlocksCmd creates the blocks command
func NewBlocksCmd() *cobra.Command {
	var follow bool

	cmd := &cobra.Command{
		Use:   "blocks <chain> [number]",
		Short: "Show mined blocks",
		Long: `Show a single block by number (or 'latest'), or follow blocks as they
are mined with --follow.`,
		Example: `  # The latest block with its transactions
  localchain blocks dev

  # Block 42
  localchain blocks dev 42

  # Stream blocks as they are mined
  localchain blocks dev -f`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := getClient(cmd)
			if err != nil {
				return err
			}
			id, err := resolveChain(cmd, c, args[0])
			if err != nil {
				return err
			}

			if follow {
				return c.StreamBlocks(cmd.Context(), id, func(b domain.BlockSummary) error {
					render.BlockLine(os.Stdout, b)
					return nil
				})
			}

			number := "latest"
			if len(args) == 2 {
				number = args[1]
			}
			detail, err := c.GetBlock(cmd.Context(), id, number)
			if err != nil {
				return err
			}
			render.BlockDetail(os.Stdout, detail)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Stream blocks as they are mined")

	return cmd
}
