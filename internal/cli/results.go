package cli

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/gkobilansky/funnelstat/internal/ledger"
	"github.com/gkobilansky/funnelstat/internal/report"
	"github.com/gkobilansky/funnelstat/internal/stats"
	"github.com/gkobilansky/funnelstat/internal/store"
)

func newResultsCmd(a *app) *cobra.Command {
	var (
		metricName string
		confidence float64
		bayes      bool
		seed       uint64
	)

	cmd := &cobra.Command{
		Use:   "results <id>",
		Short: "Show detailed results for an experiment",
		Long: `Show per-variant rates, confidence intervals and a significance test of
every variant against the control.

Examples:
  funnelstat results subject --metric replied
  funnelstat results subject --confidence 0.99 --bayes`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			metric, err := parseMetric(metricName)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("confidence") {
				confidence = a.cfg.Stats.Confidence
			}

			return a.withLedger(func(st store.Store, l *ledger.Ledger) error {
				ctx := context.Background()
				exp, err := getExperiment(ctx, st, args[0])
				if err != nil {
					return err
				}

				r := report.New(st, l)
				res, err := r.Results(ctx, exp.ID, stats.AnalyzeOptions{
					Metric:     metric,
					Confidence: confidence,
					Power:      a.cfg.Stats.Power,
				})
				if err != nil {
					return fmt.Errorf("failed to analyze: %w", err)
				}

				out := cmd.OutOrStdout()
				printResults(out, exp, res)

				if bayes && len(res.Variants) > 1 {
					opts := stats.BayesianOptions{
						Simulations: a.cfg.Stats.Simulations,
						Workers:     a.cfg.Stats.Workers,
					}
					if cmd.Flags().Changed("seed") {
						opts.Source = rand.NewPCG(seed, seed)
					}
					b, err := r.Bayesian(ctx, exp.ID, "", metric, opts)
					if err != nil {
						return fmt.Errorf("failed to run bayesian analysis: %w", err)
					}
					printBayesian(out, b)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&metricName, "metric", "m", "converted", "conversion event to analyze")
	cmd.Flags().Float64VarP(&confidence, "confidence", "c", stats.DefaultConfidence, "confidence level")
	cmd.Flags().BoolVar(&bayes, "bayes", false, "add a Bayesian win probability for the best challenger")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "seed for reproducible Bayesian simulation")
	return cmd
}

func printResults(out io.Writer, exp *store.Experiment, res *stats.Result) {
	// Print header
	fmt.Fprintf(out, "EXPERIMENT: %s (%s)\n", exp.ID, exp.Name)
	fmt.Fprintf(out, "STATE: %s\n", exp.State)
	if exp.WinnerVariant != "" {
		fmt.Fprintf(out, "WINNER: %s\n", exp.WinnerVariant)
	}
	fmt.Fprintf(out, "METRIC: %s\n", res.Metric)
	fmt.Fprintf(out, "CREATED: %s\n", exp.CreatedAt.Format("2006-01-02"))
	fmt.Fprintln(out)

	ciLabel := humanize.FtoaWithDigits(res.ConfidenceLevel*100, 2) + "% CI"
	fmt.Fprintf(out, "%-16s  %-8s  %-11s  %-7s  %-16s  %-8s  %s\n", "VARIANT", "SENT", strings.ToUpper(res.Metric.String()), "RATE", ciLabel, "LIFT", "P-VALUE")
	fmt.Fprintln(out, strings.Repeat("─", 84))

	for _, v := range res.Variants {
		ci := fmt.Sprintf("[%.1f%%, %.1f%%]", v.CILower*100, v.CIUpper*100)
		if v.Sent == 0 {
			ci = "N/A"
		}

		lift, p := "control", ""
		if !v.IsControl {
			lift, p = "-", "-"
			if v.Comparison != nil {
				lift = fmt.Sprintf("%+.1f%%", v.Comparison.RelativeLift)
				p = fmt.Sprintf("%.4f", v.Comparison.PValue)
			}
		}

		indicator := ""
		if v.ID == res.LeadingVariant && len(res.Variants) > 1 && v.Sent > 0 {
			indicator = " ← LEADING"
		}
		if v.Undeclared {
			indicator = " (not declared on experiment)"
		}

		fmt.Fprintf(out, "%-16s  %-8s  %-11s  %-7s  %-16s  %-8s  %s%s\n",
			truncate(v.Name, 16),
			humanize.Comma(int64(v.Sent)),
			humanize.Comma(int64(v.Conversions)),
			formatPercent(v.Rate),
			ci,
			lift,
			p,
			indicator,
		)
	}
	fmt.Fprintln(out)

	if len(res.Variants) < 2 {
		return
	}

	// Print significance message
	leader, _ := res.Variant(res.LeadingVariant)
	confPct := res.Confidence * 100
	switch {
	case res.Confident && leader.IsControl:
		fmt.Fprintf(out, "Statistical significance: %.1f%% confident the control \"%s\" beats every challenger\n", confPct, leader.Name)
	case res.Confident:
		fmt.Fprintf(out, "Statistical significance: %.1f%% confident \"%s\" is the winner\n", confPct, leader.Name)
	case confPct >= 90:
		fmt.Fprintf(out, "Statistical significance: %.1f%% confident \"%s\" differs from control (not yet significant)\n", confPct, leader.Name)
	default:
		fmt.Fprintln(out, "Statistical significance: Not enough data to determine a winner")
	}

	for _, v := range res.Variants {
		if v.Comparison == nil || v.Comparison.Significant || v.Comparison.RecommendedSampleSize == 0 {
			continue
		}
		fmt.Fprintf(out, "  %s: about %s sent per variant needed to confirm a %+.1f%% lift\n",
			v.ID, humanize.Comma(int64(v.Comparison.RecommendedSampleSize)), v.Comparison.RelativeLift)
	}
	for _, v := range res.Variants {
		if v.ComparisonError != "" {
			fmt.Fprintf(out, "  %s: %s\n", v.ID, v.ComparisonError)
		}
	}
}

func printBayesian(out io.Writer, b *report.BayesianReport) {
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Bayesian (%s simulations): P(%s beats %s) = %.1f%%\n",
		humanize.Comma(int64(b.Simulations)), b.TreatmentID, b.ControlID, b.ProbabilityTreatmentWins*100)
	fmt.Fprintf(out, "  expected lift %+.1f%%, 95%% credible interval [%+.1f%%, %+.1f%%]\n",
		b.ExpectedLift, b.CredibleInterval[0], b.CredibleInterval[1])
}
