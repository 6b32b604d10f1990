package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/localchain-dev/localchain/internal/cli/render"
	"github.com/localchain-dev/localchain/internal/domain"
)

// NewLogsCmd creates the logs command
func NewLogsCmd() *cobra.Command {
	var (
		follow bool
		tail   int
	)

	cmd := &cobra.Command{
		Use:   "logs <chain>",
		Short: "Show a chain's node output",
		Example: `  # Last 50 buffered lines
  localchain logs dev --tail 50

  # Follow live output (Ctrl+C to exit)
  localchain logs dev -f`,
		Args: cobra.ExactArgs(1),
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
				return c.StreamLogs(cmd.Context(), id, func(line domain.LogLine) error {
					render.LogLine(os.Stdout, line)
					return nil
				})
			}

			lines, err := c.Logs(cmd.Context(), id, tail)
			if err != nil {
				return err
			}
			for _, line := range lines {
				render.LogLine(os.Stdout, line)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Replay buffered lines, then follow live output")
	cmd.Flags().IntVarP(&tail, "tail", "n", 0, "Only show the last N buffered lines")

	return cmd
}
