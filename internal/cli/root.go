package cli

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gkobilansky/funnelstat/internal/config"
)

// app carries state shared by every command of one invocation.
type app struct {
	dbPath string
	cfg    *config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "funnelstat",
		Short: "funnelstat - experiment measurement and inference for outreach funnels",
		Long: `funnelstat assigns participants to experiment variants, records funnel
events (sent, opened, clicked, replied, converted, unsubscribed) and tells
you whether the differences between variants are real.

Single Go binary, embedded SQLite.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("db") {
				cfg.Store.Path = a.dbPath
			}
			a.cfg = cfg
			return config.InitLogger(cfg.Log)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = zap.L().Sync()
		},
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&a.dbPath, "db", "./funnelstat.db", "database path (overrides store.path)")

	rootCmd.AddCommand(
		newCreateCmd(a),
		newListCmd(a),
		newAssignCmd(a),
		newRecordCmd(a),
		newWatchCmd(a),
		newResultsCmd(a),
		newSequentialCmd(a),
		newPlanCmd(a),
		newExportCmd(a),
		newWinnerCmd(a),
		newDeleteCmd(a),
		newServeCmd(a),
		newTokenCmd(a),
	)
	return rootCmd
}

func Execute() error {
	return newRootCmd().Execute()
}
