package cli

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/xuri/excelize/v2"

	"github.com/socialgravity/socialgravity/internal/insights"
	"github.com/socialgravity/socialgravity/internal/simulation"
	"github.com/socialgravity/socialgravity/internal/store"
)

var (
	exportFormat string
	exportOutput string
)

var exportCmd = &cobra.Command{
	Use:   "export <id>",
	Short: "Export simulation results",
	Long: `Export a simulation's results as JSON, CSV or an Excel workbook.

JSON holds the full view model. CSV holds one row per persona.
The workbook has Summary, Personas, Insights and Retention sheets.

Examples:
  sg export 3f2c... --format json > results.json
  sg export 3f2c... --format csv > personas.csv
  sg export 3f2c... --format xlsx --output results.xlsx`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "json", "output format (json, csv or xlsx)")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "output file (default stdout; xlsx defaults to <id>.xlsx)")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	id := args[0]

	if exportFormat != "json" && exportFormat != "csv" && exportFormat != "xlsx" {
		return fmt.Errorf("invalid format: must be 'json', 'csv' or 'xlsx'")
	}

	return withStore(func(s *store.SQLiteStore) error {
		view, err := resolveView(cmd.Context(), s, backendFetcher, id, false)
		if err != nil {
			return err
		}

		if exportFormat == "xlsx" {
			path := exportOutput
			if path == "" {
				path = id + ".xlsx"
			}
			if err := exportXLSX(path, view); err != nil {
				return fmt.Errorf("failed to write workbook: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		}

		out := cmd.OutOrStdout()
		if exportOutput != "" {
			f, err := os.Create(exportOutput)
			if err != nil {
				return fmt.Errorf("failed to create output file: %w", err)
			}
			defer f.Close()
			out = f
		}

		if exportFormat == "csv" {
			return exportCSV(out, view)
		}
		return exportJSON(out, view)
	})
}

func exportJSON(w io.Writer, view *simulation.View) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(view)
}

var personaHeaders = []string{
	"persona_id", "label", "fit_percent", "watch_time_seconds", "watch_percent",
	"like", "comment", "share", "save", "follow", "swipe",
	"valence", "arousal", "keywords", "feedback", "explanation",
}

func personaRows(view *simulation.View) [][]string {
	rows := make([][]string, 0, len(view.PersonaMetrics))
	for _, m := range view.PersonaMetrics {
		e := m.Engagement
		rows = append(rows, []string{
			m.PersonaID,
			m.Label,
			intCell(m.FitPercent),
			floatCell(m.WatchTimeSeconds),
			intCell(m.WatchPercent),
			floatCell(e.LikeProbability),
			floatCell(e.CommentProbability),
			floatCell(e.ShareProbability),
			floatCell(e.SaveProbability),
			floatCell(e.FollowProbability),
			floatCell(e.SwipeProbability),
			floatCell(m.EmotionalValence),
			floatCell(m.EmotionalArousal),
			strings.Join(m.Keywords, "; "),
			strings.Join(m.Feedback, "; "),
			m.Explanation,
		})
	}
	return rows
}

func exportCSV(w io.Writer, view *simulation.View) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	// Write header
	if err := cw.Write(personaHeaders); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	// Write rows
	for _, row := range personaRows(view) {
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
	return nil
}

// exportXLSX writes one sheet per section of the view.
func exportXLSX(path string, view *simulation.View) error {
	f := excelize.NewFile()
	defer f.Close()

	// The default sheet becomes Summary.
	if err := f.SetSheetName("Sheet1", "Summary"); err != nil {
		return err
	}
	summary := [][]string{
		{"field", "value"},
		{"simulation_id", view.ID},
		{"audience", view.AudiencePrompt},
		{"status", view.Status},
		{"audience_fit_percent", intCell(view.AudienceFitScore)},
	}
	if g := view.GeneralMetrics; g != nil {
		summary = append(summary,
			[]string{"like", floatCell(g.LikeProbability)},
			[]string{"comment", floatCell(g.CommentProbability)},
			[]string{"share", floatCell(g.ShareProbability)},
			[]string{"save", floatCell(g.SaveProbability)},
			[]string{"follow", floatCell(g.FollowProbability)},
			[]string{"swipe", floatCell(g.SwipeProbability)},
			[]string{"watch_time_seconds", floatCell(g.WatchTimeSeconds)},
		)
	}
	if err := writeSheet(f, "Summary", summary); err != nil {
		return err
	}

	personas := append([][]string{personaHeaders}, personaRows(view)...)
	if err := writeSheet(f, "Personas", personas); err != nil {
		return err
	}

	insightRows := [][]string{{"area", "kind", "text", "detail"}}
	insightRows = append(insightRows, bucketRows("storytelling", view.Storytelling)...)
	insightRows = append(insightRows, bucketRows("editing", view.Editing)...)
	if err := writeSheet(f, "Insights", insightRows); err != nil {
		return err
	}

	retention := [][]string{{"second", "retention", "synthetic"}}
	for _, p := range view.Retention.Points {
		retention = append(retention, []string{
			strconv.FormatFloat(p.Second, 'f', 2, 64),
			strconv.FormatFloat(p.Retention, 'f', 4, 64),
			strconv.FormatBool(view.Retention.Synthetic),
		})
	}
	if err := writeSheet(f, "Retention", retention); err != nil {
		return err
	}

	return f.SaveAs(path)
}

func writeSheet(f *excelize.File, sheet string, rows [][]string) error {
	if idx, err := f.GetSheetIndex(sheet); err != nil || idx == -1 {
		if _, err := f.NewSheet(sheet); err != nil {
			return err
		}
	}
	for r, row := range rows {
		for c, v := range row {
			cell, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return err
			}
		}
	}
	return nil
}

func bucketRows(area string, b insights.Bucket) [][]string {
	var rows [][]string
	add := func(kind string, items []string) {
		for _, s := range items {
			rows = append(rows, []string{area, kind, s, ""})
		}
	}
	add("short_summary", b.ShortSummary)
	add("what_worked", b.WhatWorked)
	add("what_to_improve", b.WhatToImprove)
	add("key_changes", b.KeyChanges)
	for _, a := range b.ImprovementActions {
		rows = append(rows, []string{area, "action", a.Label, fmt.Sprintf("at %.1fs, confidence %.2f", a.TimestampSeconds, a.Confidence)})
	}
	return rows
}

func intCell(p *int) string {
	if p == nil {
		return ""
	}
	return strconv.Itoa(*p)
}

func floatCell(p *float64) string {
	if p == nil {
		return ""
	}
	return strconv.FormatFloat(*p, 'f', -1, 64)
}
