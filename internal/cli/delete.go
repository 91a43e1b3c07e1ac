package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/gkobilansky/funnelstat/internal/ledger"
	"github.com/gkobilansky/funnelstat/internal/store"
)

func newDeleteCmd(a *app) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an experiment and all its events",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withLedger(func(st store.Store, _ *ledger.Ledger) error {
				ctx := context.Background()
				exp, err := getExperiment(ctx, st, args[0])
				if err != nil {
					return err
				}

				if !yes {
					if !interactive(cmd.InOrStdin()) {
						return errors.New("refusing to delete without --yes when stdin is not a terminal")
					}
					prompt := promptui.Prompt{
						Label:     fmt.Sprintf("Delete experiment '%s' and all its events", exp.ID),
						IsConfirm: true,
					}
					if _, err := prompt.Run(); err != nil {
						fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
						return nil
					}
				}

				if err := st.DeleteExperiment(ctx, exp.ID); err != nil {
					return fmt.Errorf("failed to delete experiment: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted experiment '%s'\n", exp.ID)
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}
