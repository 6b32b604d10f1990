package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/localchain-dev/localchain/internal/domain"
)

// NewRestartCmd creates the restart command
func NewRestartCmd() *cobra.Command {
	var noWait bool

	cmd := &cobra.Command{
		Use:   "restart <chain>",
		Short: "Restart a chain's node process",
		Long: `Restart a chain's node process. The chain keeps its previous port when
it is still free, so RPC URLs stay stable across restarts.`,
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

			st, err := c.Restart(cmd.Context(), id)
			if err != nil {
				return err
			}
			if noWait {
				fmt.Printf("Chain '%s' is %s\n", st.Config.Name, st.Status)
				return nil
			}

			sp := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
			sp.Suffix = " restarting..."
			sp.Start()
			st, err = c.WaitForStatus(cmd.Context(), id, domain.StatusRunning, 60*time.Second)
			sp.Stop()
			if err != nil {
				return fmt.Errorf("chain did not come back: %w", err)
			}
			color.New(color.FgGreen).Printf("✅ Chain '%s' is running\n", st.Config.Name)
			color.New(color.FgBlue).Printf("🌐 RPC URL: %s\n", st.RPCURL())
			return nil
		},
	}

	cmd.Flags().BoolVar(&noWait, "no-wait", false, "Return as soon as the restart is accepted instead of waiting for Running")

	return cmd
}
