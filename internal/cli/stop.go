package cli

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/localchain-dev/localchain/internal/domain"
)

// NewStopCmd creates the stop command
func NewStopCmd() *cobra.Command {
	var noWait bool

	cmd := &cobra.Command{
		Use:   "stop <chain>",
		Short: "Stop a chain's node process",
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

			st, err := c.Stop(cmd.Context(), id)
			if err != nil {
				return err
			}
			if noWait {
				fmt.Printf("Chain '%s' is %s\n", st.Config.Name, st.Status)
				return nil
			}

			st, err = c.WaitForStatus(cmd.Context(), id, domain.StatusStopped, 30*time.Second)
			if err != nil {
				return fmt.Errorf("chain did not stop cleanly: %w", err)
			}
			color.New(color.FgGreen).Printf("✅ Chain '%s' stopped\n", st.Config.Name)
			return nil
		},
	}

	cmd.Flags().BoolVar(&noWait, "no-wait", false, "Return as soon as the stop is accepted instead of waiting for Stopped")

	return cmd
}
