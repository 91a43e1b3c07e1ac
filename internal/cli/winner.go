package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gkobilansky/funnelstat/internal/ledger"
	"github.com/gkobilansky/funnelstat/internal/store"
)

func newWinnerCmd(a *app) *cobra.Command {
	var variantID string

	cmd := &cobra.Command{
		Use:   "winner <id>",
		Short: "Declare a winner for an experiment",
		Long: `Declare a winning variant for an experiment and complete it.

Completed experiments keep their events and results but are no longer
expected to receive new traffic.

Example:
  funnelstat winner subject --variant b`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withLedger(func(st store.Store, _ *ledger.Ledger) error {
				ctx := context.Background()
				exp, err := getExperiment(ctx, st, args[0])
				if err != nil {
					return err
				}

				if exp.State == store.StateCompleted {
					return fmt.Errorf("experiment is already completed (winner: %s)", exp.WinnerVariant)
				}

				v, ok := exp.Variant(variantID)
				if !ok {
					return fmt.Errorf("invalid variant: %s (experiment has variants: %s)", variantID, strings.Join(exp.VariantIDs(), ", "))
				}

				if err := st.UpdateExperimentState(ctx, exp.ID, store.StateCompleted, v.ID); err != nil {
					return fmt.Errorf("failed to set winner: %w", err)
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Declared winner for experiment '%s': %s (\"%s\")\n", exp.ID, v.ID, v.Name)
				fmt.Fprintln(out, "Experiment has been marked as completed.")
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&variantID, "variant", "v", "", "winning variant ID (required)")
	_ = cmd.MarkFlagRequired("variant")

	return cmd
}
