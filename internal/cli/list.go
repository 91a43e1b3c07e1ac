package cli

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/gkobilansky/funnelstat/internal/ledger"
	"github.com/gkobilansky/funnelstat/internal/store"
)

func newListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all experiments",
		Long:  `List all experiments with their state and funnel totals.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withLedger(func(st store.Store, l *ledger.Ledger) error {
				return runList(cmd, st, l)
			})
		},
	}
}

func runList(cmd *cobra.Command, st store.Store, l *ledger.Ledger) error {
	ctx := context.Background()
	out := cmd.OutOrStdout()

	experiments, err := st.ListExperiments(ctx)
	if err != nil {
		return fmt.Errorf("failed to list experiments: %w", err)
	}

	if len(experiments) == 0 {
		fmt.Fprintln(out, "No experiments yet.")
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Create one with:")
		fmt.Fprintln(out, `  funnelstat create subject --variants "a=Quick question,b=Saw your launch"`)
		return nil
	}

	// Print table
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSTATE\tVARIANTS\tSENT\tREPLIED\tCONVERTED\tCREATED")

	for _, exp := range experiments {
		aggs, err := l.Aggregate(ctx, exp.ID)
		if err != nil {
			return fmt.Errorf("failed to aggregate %s: %w", exp.ID, err)
		}

		var total store.VariantAggregate
		for _, agg := range aggs {
			total.Sent += agg.Sent
			total.Replied += agg.Replied
			total.Converted += agg.Converted
		}

		state := strings.ToUpper(string(exp.State))
		if exp.WinnerVariant != "" {
			state += " (" + exp.WinnerVariant + ")"
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\t%s\t%s\n",
			exp.ID,
			truncate(exp.Name, 24),
			state,
			len(exp.Variants),
			humanize.Comma(int64(total.Sent)),
			humanize.Comma(int64(total.Replied)),
			humanize.Comma(int64(total.Converted)),
			exp.CreatedAt.Format("2006-01-02"),
		)
	}

	return w.Flush()
}
