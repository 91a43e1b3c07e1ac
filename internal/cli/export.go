package cli

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/gkobilansky/funnelstat/internal/ledger"
	"github.com/gkobilansky/funnelstat/internal/store"
)

type exportDoc struct {
	Experiment *store.Experiment `json:"experiment" yaml:"experiment"`
	Events     []exportEvent     `json:"events" yaml:"events"`
}

type exportEvent struct {
	ID            string         `json:"id" yaml:"id"`
	Timestamp     int64          `json:"timestamp" yaml:"timestamp"`
	VariantID     string         `json:"variant_id" yaml:"variant_id"`
	ParticipantID string         `json:"participant_id" yaml:"participant_id"`
	EventType     string         `json:"event_type" yaml:"event_type"`
	SequenceID    string         `json:"sequence_id,omitempty" yaml:"sequence_id,omitempty"`
	TouchID       string         `json:"touch_id,omitempty" yaml:"touch_id,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

func newExportCmd(a *app) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "export <id>",
		Short: "Export raw event data",
		Long: `Export an experiment's raw events in CSV, JSON or YAML format.

Examples:
  funnelstat export subject --format csv > subject.csv
  funnelstat export subject --format json > subject.json
  funnelstat export subject --format yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "csv" && format != "json" && format != "yaml" {
				return fmt.Errorf("invalid format: must be 'csv', 'json' or 'yaml'")
			}

			return a.withLedger(func(st store.Store, l *ledger.Ledger) error {
				ctx := context.Background()
				exp, err := getExperiment(ctx, st, args[0])
				if err != nil {
					return err
				}

				events, err := l.Events(ctx, exp.ID)
				if err != nil {
					return fmt.Errorf("failed to get events: %w", err)
				}

				out := cmd.OutOrStdout()
				switch format {
				case "csv":
					return exportCSV(out, events)
				case "json":
					return exportJSON(out, exp, events)
				default:
					return exportYAML(out, exp, events)
				}
			})
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "csv", "output format (csv, json or yaml)")
	return cmd
}

func exportCSV(out io.Writer, events []store.Event) error {
	w := csv.NewWriter(out)

	// Write header
	if err := w.Write([]string{"timestamp", "variant_id", "event_type", "participant_id", "sequence_id", "touch_id"}); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	// Write rows
	for _, e := range events {
		row := []string{
			strconv.FormatInt(e.CreatedAt.Unix(), 10),
			e.VariantID,
			e.Type.String(),
			e.ParticipantID,
			e.SequenceID,
			e.TouchID,
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}

	w.Flush()
	return w.Error()
}

func newExportDoc(exp *store.Experiment, events []store.Event) exportDoc {
	doc := exportDoc{
		Experiment: exp,
		Events:     make([]exportEvent, len(events)),
	}
	for i, e := range events {
		doc.Events[i] = exportEvent{
			ID:            e.ID,
			Timestamp:     e.CreatedAt.Unix(),
			VariantID:     e.VariantID,
			ParticipantID: e.ParticipantID,
			EventType:     e.Type.String(),
			SequenceID:    e.SequenceID,
			TouchID:       e.TouchID,
			Metadata:      e.Metadata,
		}
	}
	return doc
}

func exportJSON(out io.Writer, exp *store.Experiment, events []store.Event) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(newExportDoc(exp, events))
}

func exportYAML(out io.Writer, exp *store.Experiment, events []store.Event) error {
	encoder := yaml.NewEncoder(out)
	encoder.SetIndent(2)
	if err := encoder.Encode(newExportDoc(exp, events)); err != nil {
		return fmt.Errorf("failed to encode yaml: %w", err)
	}
	return encoder.Close()
}
