package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/manifoldco/promptui"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/gkobilansky/funnelstat/internal/stats"
)

type planInput struct {
	baseline     float64
	mde          float64
	confidence   float64
	power        float64
	variants     int
	dailyTraffic int
}

func newPlanCmd(a *app) *cobra.Command {
	var in planInput

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Estimate the sample size and duration of an experiment",
		Long: `Estimate how many participants each variant needs to detect a relative
change of --mde on a --baseline rate, and how long that takes at the
given daily traffic.

When --baseline or --mde is missing and stdin is a terminal, plan asks
for the values interactively.

Examples:
  funnelstat plan --baseline 0.03 --mde 0.2 --daily-traffic 500
  funnelstat plan --baseline 0.1 --mde 0.1 --variants 3 --confidence 0.99`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("confidence") {
				in.confidence = a.cfg.Stats.Confidence
			}
			if !cmd.Flags().Changed("power") {
				in.power = a.cfg.Stats.Power
			}

			missing := !cmd.Flags().Changed("baseline") || !cmd.Flags().Changed("mde")
			if missing {
				if !interactive(cmd.InOrStdin()) {
					return errors.New("--baseline and --mde are required when stdin is not a terminal")
				}
				if err := promptPlan(&in, cmd.Flags().Changed("confidence")); err != nil {
					return err
				}
			}

			return runPlan(cmd.OutOrStdout(), in)
		},
	}

	cmd.Flags().Float64VarP(&in.baseline, "baseline", "b", 0, "current conversion rate, e.g. 0.05")
	cmd.Flags().Float64Var(&in.mde, "mde", 0, "minimum detectable effect relative to baseline, e.g. 0.2 for +20%")
	cmd.Flags().Float64VarP(&in.confidence, "confidence", "c", stats.DefaultConfidence, "confidence level")
	cmd.Flags().Float64Var(&in.power, "power", stats.DefaultPower, "statistical power")
	cmd.Flags().IntVar(&in.variants, "variants", 2, "number of variants including control")
	cmd.Flags().IntVar(&in.dailyTraffic, "daily-traffic", 0, "participants entering the experiment per day")
	return cmd
}

func runPlan(out io.Writer, in planInput) error {
	size, err := stats.PracticalSignificanceSampleSize(in.baseline, in.mde, in.confidence, in.power, in.variants)
	if err != nil {
		return fmt.Errorf("failed to size experiment: %w", err)
	}

	fmt.Fprintf(out, "Baseline rate:     %s\n", formatPercent(in.baseline))
	fmt.Fprintf(out, "Detectable change: %+.1f%% (to %s)\n", in.mde*100, formatPercent(in.baseline*(1+in.mde)))
	fmt.Fprintf(out, "Confidence/power:  %s%% / %s%%\n",
		humanize.FtoaWithDigits(in.confidence*100, 2), humanize.FtoaWithDigits(in.power*100, 2))
	fmt.Fprintf(out, "Effect size (h):   %.3f\n", size.EffectSize)
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Sample per variant: %s\n", humanize.Comma(int64(size.PerVariant)))
	fmt.Fprintf(out, "Total sample:       %s (%d variants)\n", humanize.Comma(int64(size.Total)), in.variants)

	if in.dailyTraffic > 0 {
		d, err := stats.DurationEstimate(in.dailyTraffic, size.PerVariant, in.variants)
		if err != nil {
			return fmt.Errorf("failed to estimate duration: %w", err)
		}
		fmt.Fprintf(out, "Duration:           %s (%d days at %s per variant per day)\n",
			d.Human, d.Days, humanize.Comma(int64(d.DailyPerVariant)))
	}

	for _, advice := range size.Advisories {
		fmt.Fprintf(out, "\nNote: %s\n", advice)
	}
	return nil
}

func interactive(in io.Reader) bool {
	f, ok := in.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func promptPlan(in *planInput, confidenceSet bool) error {
	var err error
	if in.baseline == 0 {
		if in.baseline, err = promptRate("Baseline conversion rate (e.g. 0.05)", false); err != nil {
			return err
		}
	}
	if in.mde == 0 {
		if in.mde, err = promptRate("Relative change to detect (e.g. 0.2 for +20%)", true); err != nil {
			return err
		}
	}
	if !confidenceSet {
		if in.confidence, err = promptConfidence(); err != nil {
			return err
		}
	}
	if in.dailyTraffic == 0 {
		traffic, err := (&promptui.Prompt{
			Label:    "Daily traffic (blank to skip)",
			Validate: validateOptionalInt,
		}).Run()
		if err != nil {
			return promptErr(err)
		}
		if traffic != "" {
			in.dailyTraffic, _ = strconv.Atoi(traffic)
		}
	}
	return nil
}

func promptRate(label string, allowAboveOne bool) (float64, error) {
	prompt := promptui.Prompt{
		Label: label,
		Validate: func(s string) error {
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return errors.New("enter a number")
			}
			if v == 0 || (!allowAboveOne && (v < 0 || v >= 1)) {
				return errors.New("out of range")
			}
			return nil
		},
	}
	s, err := prompt.Run()
	if err != nil {
		return 0, promptErr(err)
	}
	return strconv.ParseFloat(s, 64)
}

func promptConfidence() (float64, error) {
	levels := []float64{0.90, 0.95, 0.99}
	prompt := promptui.Select{
		Label:     "Confidence level",
		Items:     []string{"90%", "95% (recommended)", "99%"},
		CursorPos: 1,
		Size:      3,
	}
	idx, _, err := prompt.Run()
	if err != nil {
		return 0, promptErr(err)
	}
	return levels[idx], nil
}

func validateOptionalInt(s string) error {
	if s == "" {
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return errors.New("enter a positive whole number")
	}
	return nil
}

func promptErr(err error) error {
	if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) {
		return errors.New("plan cancelled")
	}
	return err
}
