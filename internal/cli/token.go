package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gkobilansky/funnelstat/internal/server"
)

func newTokenCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "token",
		Short: "Generate an API token for the results server",
		Long: `Generate a random API token for 'funnelstat serve'.

Export it before starting the server and send it from clients as
"Authorization: Bearer <token>" or "?token=<token>".

Example:
  eval "$(funnelstat token)"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := server.GenerateToken()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "export FUNNELSTAT_SERVER_TOKEN=%s\n", token)
			if a.cfg.Server.Token != "" {
				fmt.Fprintln(out, "# replaces the token currently set in your configuration")
			}
			return nil
		},
	}
}
