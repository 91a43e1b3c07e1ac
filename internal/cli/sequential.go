package cli

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/gkobilansky/funnelstat/internal/ledger"
	"github.com/gkobilansky/funnelstat/internal/report"
	"github.com/gkobilansky/funnelstat/internal/stats"
	"github.com/gkobilansky/funnelstat/internal/store"
)

func newSequentialCmd(a *app) *cobra.Command {
	var (
		metricName string
		treatment  string
		period     time.Duration
		alpha      float64
	)

	cmd := &cobra.Command{
		Use:   "sequential <id>",
		Short: "Check whether stopping the experiment now is statistically valid",
		Long: `Split the experiment's history into periods, count one look per period,
and test the cumulative data against a Bonferroni-corrected threshold.

Examples:
  funnelstat sequential subject --period 24h --metric replied
  funnelstat sequential cta --period 168h --treatment c`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			metric, err := parseMetric(metricName)
			if err != nil {
				return err
			}

			return a.withLedger(func(st store.Store, l *ledger.Ledger) error {
				ctx := context.Background()
				if _, err := getExperiment(ctx, st, args[0]); err != nil {
					return err
				}

				rep, err := report.New(st, l).Sequential(ctx, args[0], treatment, metric, period, alpha)
				if err != nil {
					return fmt.Errorf("failed to run sequential test: %w", err)
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%s vs %s on %s, one look per %s\n\n", rep.TreatmentID, rep.ControlID, rep.Metric, period)

				w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "PERIOD\tSTART\tCONTROL\tTREATMENT")
				for i := range rep.Visits.Control {
					start := rep.Start.Add(time.Duration(i) * period)
					fmt.Fprintf(w, "%d\t%s\t%d/%d\t%d/%d\n", i+1, start.Format("2006-01-02 15:04"),
						rep.Conversions.Control[i], rep.Visits.Control[i],
						rep.Conversions.Treatment[i], rep.Visits.Treatment[i])
				}
				if err := w.Flush(); err != nil {
					return err
				}

				fmt.Fprintln(out)
				fmt.Fprintf(out, "z=%.3f p=%.4f looks=%d adjusted alpha=%.4f\n", rep.CurrentZ, rep.PValue, rep.Looks, rep.AdjustedAlpha)
				switch {
				case rep.ShouldStop:
					fmt.Fprintln(out, "Stopping now is valid: the result holds after correcting for repeated looks.")
				case rep.Significant:
					fmt.Fprintln(out, "Significant at the nominal level, but not after correcting for repeated looks. Keep running.")
				default:
					fmt.Fprintln(out, "Keep running: no significant difference yet.")
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&metricName, "metric", "m", "converted", "conversion event to analyze")
	cmd.Flags().StringVarP(&treatment, "treatment", "t", "", "variant to test against control (default: best challenger)")
	cmd.Flags().DurationVar(&period, "period", 24*time.Hour, "length of one analysis period")
	cmd.Flags().Float64Var(&alpha, "alpha", stats.DefaultAlpha, "overall false-positive rate")
	return cmd
}
