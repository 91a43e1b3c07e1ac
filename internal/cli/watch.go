package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gkobilansky/funnelstat/internal/ledger"
	"github.com/gkobilansky/funnelstat/internal/stats"
	"github.com/gkobilansky/funnelstat/internal/store"
)

func newWatchCmd(a *app) *cobra.Command {
	var metricName string

	cmd := &cobra.Command{
		Use:   "watch <id>",
		Short: "Record events from stdin and print live results",
		Long: `Read JSON lines events from stdin, record each one, and print the
leading variant and its confidence as every event lands.

Example:
  tail -f outreach.jsonl | funnelstat watch subject --metric replied`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			metric, err := parseMetric(metricName)
			if err != nil {
				return err
			}
			return a.withLedger(func(st store.Store, l *ledger.Ledger) error {
				return runWatch(cmd.Context(), cmd, a.cfg.Stats.Confidence, st, l, args[0], metric)
			})
		},
	}

	cmd.Flags().StringVarP(&metricName, "metric", "m", "converted", "conversion event to analyze")
	return cmd
}

func runWatch(ctx context.Context, cmd *cobra.Command, confidence float64, st store.Store, l *ledger.Ledger, testID string, metric store.EventType) error {
	if ctx == nil {
		ctx = context.Background()
	}
	out := cmd.OutOrStdout()

	// Events for unknown tests are still aggregated by variant ID.
	exp, err := st.GetExperiment(ctx, testID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("failed to get experiment: %w", err)
	}

	var pending sync.WaitGroup
	sub := l.Subscribe(testID, func(e store.Event) error {
		defer pending.Done()
		return printLive(ctx, out, l, exp, e, stats.AnalyzeOptions{Metric: metric, Confidence: confidence})
	})
	defer sub.Unsubscribe()

	scanner := newLineScanner(cmd.InOrStdin())
	recorded := 0
	for line := 1; scanner.Scan(); line++ {
		e, ok, err := decodeEvent(scanner.Bytes(), testID)
		if err != nil {
			zap.L().Warn("skipping line", zap.Int("line", line), zap.Error(err))
			continue
		}
		if !ok {
			continue
		}

		pending.Add(1)
		if err := l.Record(ctx, e); err != nil {
			pending.Done()
			zap.L().Warn("event rejected", zap.Int("line", line), zap.Error(err))
			continue
		}
		recorded++
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read events: %w", err)
	}

	pending.Wait()
	fmt.Fprintf(out, "Recorded %d events\n", recorded)
	return nil
}

func printLive(ctx context.Context, out io.Writer, l *ledger.Ledger, exp *store.Experiment, e store.Event, opts stats.AnalyzeOptions) error {
	aggs, err := l.Aggregate(ctx, e.TestID)
	if err != nil {
		return err
	}
	res, err := stats.Analyze(exp, aggs, opts)
	if err != nil {
		return err
	}

	line := fmt.Sprintf("%-12s %-8s leader=%s", e.Type, e.VariantID, res.LeadingVariant)
	if lead, ok := res.Variant(res.LeadingVariant); ok {
		line += fmt.Sprintf(" rate=%s", formatPercent(lead.Rate))
	}
	line += fmt.Sprintf(" confidence=%.1f%%", res.Confidence*100)
	if res.Confident {
		line += " SIGNIFICANT"
	}
	fmt.Fprintln(out, line)
	return nil
}
