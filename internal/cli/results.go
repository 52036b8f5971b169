package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/socialgravity/socialgravity/internal/insights"
	"github.com/socialgravity/socialgravity/internal/simulation"
	"github.com/socialgravity/socialgravity/internal/store"
)

var (
	resultsRefresh bool
	resultsJSON    bool
)

var resultsCmd = &cobra.Command{
	Use:   "results <id>",
	Short: "Show how the audience reacted",
	Long: `Show the audience fit score, engagement, per-persona reactions,
storytelling and editing insights, and the retention curve.

Results are cached locally after the first fetch. Use --refresh to
read them from the backend again.`,
	Args: cobra.ExactArgs(1),
	RunE: runResults,
}

func init() {
	resultsCmd.Flags().BoolVar(&resultsRefresh, "refresh", false, "fetch results from the backend even when cached")
	resultsCmd.Flags().BoolVar(&resultsJSON, "json", false, "print the view model as JSON")
	rootCmd.AddCommand(resultsCmd)
}

func runResults(cmd *cobra.Command, args []string) error {
	id := args[0]
	ctx := cmd.Context()

	return withStore(func(s *store.SQLiteStore) error {
		view, err := resolveView(ctx, s, backendFetcher, id, resultsRefresh)
		if err != nil {
			return err
		}

		if resultsJSON {
			encoder := json.NewEncoder(cmd.OutOrStdout())
			encoder.SetIndent("", "  ")
			return encoder.Encode(view)
		}
		printView(cmd.OutOrStdout(), view)
		return nil
	})
}

func printView(out io.Writer, view *simulation.View) {
	fmt.Fprintf(out, "SIMULATION: %s\n", view.ID)
	if view.AudiencePrompt != "" {
		fmt.Fprintf(out, "AUDIENCE: %s\n", view.AudiencePrompt)
	}
	if view.Status != "" {
		fmt.Fprintf(out, "STATUS: %s\n", view.Status)
	}
	if view.ErrorMessage != nil {
		fmt.Fprintf(out, "ERROR: %s\n", *view.ErrorMessage)
	}
	fmt.Fprintf(out, "AUDIENCE FIT: %s\n", percentText(view.AudienceFitScore))
	fmt.Fprintln(out)

	if g := view.GeneralMetrics; g != nil {
		fmt.Fprintln(out, "ENGAGEMENT")
		fmt.Fprintln(out, strings.Repeat("─", 40))
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "Like\t%s\n", probabilityText(g.LikeProbability))
		fmt.Fprintf(w, "Comment\t%s\n", probabilityText(g.CommentProbability))
		fmt.Fprintf(w, "Share\t%s\n", probabilityText(g.ShareProbability))
		fmt.Fprintf(w, "Save\t%s\n", probabilityText(g.SaveProbability))
		fmt.Fprintf(w, "Follow\t%s\n", probabilityText(g.FollowProbability))
		fmt.Fprintf(w, "Swipe away\t%s\n", probabilityText(g.SwipeProbability))
		fmt.Fprintf(w, "Avg. watch time\t%s\n", secondsText(g.WatchTimeSeconds))
		w.Flush()
		fmt.Fprintln(out)
	}

	if len(view.PersonaMetrics) > 0 {
		fmt.Fprintln(out, "PERSONAS")
		fmt.Fprintln(out, strings.Repeat("─", 40))
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "PERSONA\tFIT\tWATCHED\tKEYWORDS")
		for _, m := range view.PersonaMetrics {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				truncate(m.Label, 32),
				percentText(m.FitPercent),
				percentText(m.WatchPercent),
				strings.Join(m.Keywords, ", "),
			)
		}
		w.Flush()
		fmt.Fprintln(out)
	}

	printBucket(out, "STORYTELLING", view.Storytelling)
	printBucket(out, "EDITING", view.Editing)

	if len(view.Retention.Points) > 0 {
		title := "RETENTION"
		if view.Retention.Synthetic {
			title += " (estimated from watch time)"
		}
		fmt.Fprintln(out, title)
		fmt.Fprintln(out, strings.Repeat("─", 40))
		for _, p := range view.Retention.Points {
			pct := int(p.Retention*100 + 0.5)
			fmt.Fprintf(out, "%6.1fs  %-20s %3d%%\n", p.Second, strings.Repeat("█", pct/5), pct)
		}
	}
}

func printBucket(out io.Writer, title string, b insights.Bucket) {
	bullets := insights.Summarize(b, insights.SummaryBullets)
	if len(bullets) == 0 {
		return
	}
	fmt.Fprintln(out, title)
	fmt.Fprintln(out, strings.Repeat("─", 40))
	for _, bullet := range bullets {
		fmt.Fprintf(out, "  • %s\n", bullet)
	}
	fmt.Fprintln(out)
}

func percentText(p *int) string {
	if p == nil {
		return "–"
	}
	return fmt.Sprintf("%d%%", *p)
}

func probabilityText(v *float64) string {
	if v == nil {
		return "–"
	}
	return fmt.Sprintf("%.0f%%", *v*100)
}

func secondsText(v *float64) string {
	if v == nil {
		return "–"
	}
	return fmt.Sprintf("%.1fs", *v)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
