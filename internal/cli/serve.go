package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/socialgravity/socialgravity/internal/server"
	"github.com/socialgravity/socialgravity/internal/store"
)

// Setting key holding the dashboard's base URL for the token command.
const serverURLKey = "server_url"

var port int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local results dashboard",
	Long: `Start a token-protected dashboard for locally tracked simulations.

When the backend is configured, results not cached yet are fetched on
first view. Without it, only cached results are shown.

Example:
  sg serve --port 8080`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&port, "port", "p", 0, "port to listen on (default from config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	if port == 0 {
		port = cfg.Port
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	return withStore(func(s *store.SQLiteStore) error {
		opts := server.Options{
			Store:     s,
			Logger:    logger,
			Port:      port,
			TokenFile: getTokenFilePath(),
		}
		if b, err := newBackend(); err == nil {
			opts.Fetcher = b
		} else {
			logger.Warn("backend not configured, serving cached results only", "reason", err)
		}

		srv := server.New(opts)

		serverURL := fmt.Sprintf("http://localhost:%d", port)
		if err := s.SetSetting(ctx, serverURLKey, serverURL); err != nil {
			logger.Warn("failed to save server url", "error", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out)
		fmt.Fprintf(out, "Dashboard: %s/dashboard?token=%s\n", serverURL, srv.Token())
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Press Ctrl+C to stop")

		return srv.Start(ctx)
	})
}
