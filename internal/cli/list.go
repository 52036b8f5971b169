package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/socialgravity/socialgravity/internal/store"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List simulations started from this machine",
	Long:  `List locally tracked simulations with their lifecycle state.`,
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	return withStore(func(s *store.SQLiteStore) error {
		sims, err := s.ListSimulations(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to list simulations: %w", err)
		}
		printSimulations(cmd.OutOrStdout(), sims)
		return nil
	})
}

func printSimulations(out io.Writer, sims []*store.Simulation) {
	if len(sims) == 0 {
		fmt.Fprintln(out, "No simulations yet.")
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Start one with:")
		fmt.Fprintln(out, "  sg simulate --audience \"busy parents who cook\" --video clip.mp4")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATE\tSTATUS\tVIDEO\tAUDIENCE\tCREATED")

	for _, sim := range sims {
		status := sim.BackendStatus
		if status == "" {
			status = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			sim.ID,
			strings.ToUpper(sim.State),
			status,
			sim.VideoName,
			truncate(sim.AudiencePrompt, 40),
			sim.CreatedAt.Format("2006-01-02 15:04"),
		)
	}

	w.Flush()
}
