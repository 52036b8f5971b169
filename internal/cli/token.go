package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/socialgravity/socialgravity/internal/store"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Show dashboard URL with access token",
	Long: `Show the dashboard URL with your access token.

Use this when you've scrolled past the startup message of 'sg serve'.

Example:
  sg token`,
	RunE: runToken,
}

func init() {
	rootCmd.AddCommand(tokenCmd)
}

func runToken(cmd *cobra.Command, args []string) error {
	return withStore(func(s *store.SQLiteStore) error {
		return printDashboardURL(cmd.Context(), cmd.OutOrStdout(), s, getTokenFilePath())
	})
}

func printDashboardURL(ctx context.Context, out io.Writer, kv interface {
	GetSetting(ctx context.Context, key string) (string, error)
}, tokenFile string) error {
	data, err := os.ReadFile(tokenFile)
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("no dashboard running. Start one with: sg serve")
	}
	if err != nil {
		return fmt.Errorf("failed to read token file: %w", err)
	}

	token := strings.TrimSpace(string(data))
	if token == "" {
		return fmt.Errorf("token file is empty. Restart the dashboard with: sg serve")
	}

	serverURL := "http://localhost:8080"
	if url, err := kv.GetSetting(ctx, serverURLKey); err == nil && url != "" {
		serverURL = url
	}

	fmt.Fprintf(out, "Dashboard: %s/dashboard?token=%s\n", serverURL, token)
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Tip: Bookmark this URL or run 'sg token' anytime.")
	return nil
}
