package cli

import (
	"context"
	"fmt"
	"math"

	"github.com/spf13/cobra"

	"github.com/gkobilansky/funnelstat/internal/assign"
	"github.com/gkobilansky/funnelstat/internal/ledger"
	"github.com/gkobilansky/funnelstat/internal/store"
)

func newAssignCmd(a *app) *cobra.Command {
	var explain bool

	cmd := &cobra.Command{
		Use:   "assign <id> <participant>...",
		Short: "Show which variant participants are assigned to",
		Long: `Assign participants to variants of an experiment.

Assignment is a pure function of the participant ID and the experiment's
variants and weights, so the same participant always gets the same variant.

Examples:
  funnelstat assign subject jane@example.com sam@example.com
  funnelstat assign subject jane@example.com --explain`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withLedger(func(st store.Store, _ *ledger.Ledger) error {
				exp, err := getExperiment(context.Background(), st, args[0])
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				for _, participant := range args[1:] {
					v, err := assign.ForExperiment(exp, participant)
					if err != nil {
						return fmt.Errorf("failed to assign %s: %w", participant, err)
					}
					fmt.Fprintf(out, "%s -> %s (%s)\n", participant, v.ID, v.Name)
					if explain {
						h := assign.Hash(participant)
						fmt.Fprintf(out, "  hash=0x%08x position=%.6f\n", h, float64(h)/math.Exp2(32))
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&explain, "explain", false, "print the hash and position used for assignment")
	return cmd
}
