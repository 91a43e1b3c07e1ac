package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gkobilansky/funnelstat/internal/ledger"
	"github.com/gkobilansky/funnelstat/internal/store"
)

func newCreateCmd(a *app) *cobra.Command {
	var (
		name      string
		variants  string
		weights   string
		controlID string
	)

	cmd := &cobra.Command{
		Use:   "create <id>",
		Short: "Create a new experiment",
		Long: `Create a new experiment with the specified ID and variants.

Variants are comma-separated IDs, each optionally followed by =Name.
The first variant is the control unless --control is given.

Examples:
  funnelstat create subject --variants "a=Quick question,b=Saw your launch"
  funnelstat create cta --variants a,b,c --weights 2,1,1 --control a`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			exp, err := buildExperiment(args[0], name, variants, weights, controlID)
			if err != nil {
				return err
			}

			return a.withLedger(func(st store.Store, _ *ledger.Ledger) error {
				created, err := st.CreateExperiment(context.Background(), exp)
				if errors.Is(err, store.ErrExists) {
					return fmt.Errorf("experiment '%s' already exists", exp.ID)
				}
				if err != nil {
					return fmt.Errorf("failed to create experiment: %w", err)
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Created experiment '%s' with %d variants:\n", created.ID, len(created.Variants))
				control := created.Control().ID
				for _, v := range created.Variants {
					line := fmt.Sprintf("  %s: %s", v.ID, v.Name)
					if v.Weight > 0 {
						line += fmt.Sprintf(" (weight %g)", v.Weight)
					}
					if v.ID == control {
						line += " [control]"
					}
					fmt.Fprintln(out, line)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&variants, "variants", "v", "", "comma-separated variants, id or id=Name (required)")
	cmd.Flags().StringVar(&name, "name", "", "human-readable experiment name")
	cmd.Flags().StringVar(&weights, "weights", "", "comma-separated traffic weights aligned to --variants")
	cmd.Flags().StringVar(&controlID, "control", "", "control variant ID (default: first variant)")
	cmd.MarkFlagRequired("variants") //nolint:errcheck

	return cmd
}

func buildExperiment(id, name, variants, weights, controlID string) (*store.Experiment, error) {
	exp := &store.Experiment{ID: id, Name: name, ControlID: controlID}
	if exp.Name == "" {
		exp.Name = id
	}

	for _, part := range strings.Split(variants, ",") {
		vid, vname, _ := strings.Cut(strings.TrimSpace(part), "=")
		vid, vname = strings.TrimSpace(vid), strings.TrimSpace(vname)
		if vname == "" {
			vname = vid
		}
		exp.Variants = append(exp.Variants, store.Variant{ID: vid, Name: vname})
	}
	if len(exp.Variants) < 2 {
		return nil, fmt.Errorf("need at least 2 variants. Example: --variants \"a,b\"")
	}

	if weights != "" {
		parts := strings.Split(weights, ",")
		if len(parts) != len(exp.Variants) {
			return nil, fmt.Errorf("got %d weights for %d variants", len(parts), len(exp.Variants))
		}
		for i, p := range parts {
			w, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
			if err != nil {
				return nil, fmt.Errorf("invalid weight %q: %w", p, err)
			}
			exp.Variants[i].Weight = w
		}
	}

	if exp.ControlID == "" {
		exp.ControlID = exp.Variants[0].ID
	}
	if err := store.ValidateExperiment(exp); err != nil {
		return nil, fmt.Errorf("invalid experiment: %w", err)
	}
	return exp, nil
}
