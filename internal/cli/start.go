package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/localchain-dev/localchain/internal/client"
	"github.com/localchain-dev/localchain/internal/domain"
)

// NewStartCmd creates the start command
func NewStartCmd() *cobra.Command {
	var noWait bool

	cmd := &cobra.Command{
		Use:   "start <chain>",
		Short: "Start a chain's node process",
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

			if noWait {
				st, err := c.Start(cmd.Context(), id)
				if err != nil {
					return err
				}
				fmt.Printf("Chain '%s' is %s\n", st.Config.Name, st.Status)
				return nil
			}
			return startAndWait(cmd, c, id)
		},
	}

	cmd.Flags().BoolVar(&noWait, "no-wait", false, "Return as soon as the start is accepted instead of waiting for Running")

	return cmd
}

// startAndWait starts the chain and waits for the health prober to
// promote it to Running.
func startAndWait(cmd *cobra.Command, c *client.Client, id string) error {
	if _, err := c.Start(cmd.Context(), id); err != nil {
		return err
	}

	sp := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
	sp.Suffix = " waiting for node to become healthy..."
	sp.Start()
	st, err := c.WaitForStatus(cmd.Context(), id, domain.StatusRunning, 60*time.Second)
	sp.Stop()
	if err != nil {
		return fmt.Errorf("chain did not reach running: %w", err)
	}

	color.New(color.FgGreen).Printf("✅ Chain '%s' is running\n", st.Config.Name)
	color.New(color.FgBlue).Printf("🌐 RPC URL: %s\n", st.RPCURL())
	return nil
}
