package cli

import (
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
)

// NewDeleteCmd creates the delete command
func NewDeleteCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:     "delete <chain>",
		Aliases: []string{"rm"},
		Short:   "Delete a chain and its data",
		Long: `Delete a chain, releasing its port and removing its data directory. The
chain must not be running; stop it first.`,
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
			st, err := c.GetChain(cmd.Context(), id)
			if err != nil {
				return err
			}

			if !force {
				prompt := promptui.Prompt{
					Label:     fmt.Sprintf("Delete chain '%s' and its data", st.Config.Name),
					IsConfirm: true,
				}
				if _, err := prompt.Run(); err != nil {
					if errors.Is(err, promptui.ErrAbort) {
						fmt.Println("Aborted.")
						return nil
					}
					return err
				}
			}

			if err := c.DeleteChain(cmd.Context(), id); err != nil {
				return err
			}
			color.New(color.FgGreen).Printf("✅ Deleted chain '%s'\n", st.Config.Name)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Skip the confirmation prompt")

	return cmd
}
