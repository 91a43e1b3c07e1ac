package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gkobilansky/funnelstat/internal/ledger"
	"github.com/gkobilansky/funnelstat/internal/server"
	"github.com/gkobilansky/funnelstat/internal/store"
)

func newServeCmd(a *app) *cobra.Command {
	var (
		port  int
		token string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the read-only results API",
		Long: `Start the funnelstat HTTP server.

The server provides:
  - Experiment list, aggregates and results under /api
  - Bayesian and sequential analyses per experiment
  - Prometheus metrics at /metrics
  - Health check at /health

When a token is configured, /api requires it as a bearer token or a
token query parameter. Generate one with 'funnelstat token'.

Example:
  funnelstat serve --port 8080`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("port") {
				port = a.cfg.Server.Port
			}
			if !cmd.Flags().Changed("token") {
				token = a.cfg.Server.Token
			}

			return a.withLedger(func(st store.Store, l *ledger.Ledger) error {
				ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
				defer stop()

				srv := server.New(st, l, server.Options{
					Port:        port,
					Token:       token,
					Confidence:  a.cfg.Stats.Confidence,
					Power:       a.cfg.Stats.Power,
					Simulations: a.cfg.Stats.Simulations,
					Workers:     a.cfg.Stats.Workers,
					Logger:      zap.L(),
				})

				fmt.Fprintf(cmd.OutOrStdout(), "Server running at http://localhost:%d\n", port)
				if token == "" {
					fmt.Fprintln(cmd.OutOrStdout(), "Warning: no API token set, /api is open to anyone who can reach this port")
				}
				return srv.Start(ctx)
			})
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 8080, "port to listen on (overrides server.port)")
	cmd.Flags().StringVar(&token, "token", "", "API token (overrides server.token)")
	return cmd
}
