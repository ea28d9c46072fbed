package commands

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	ltable "github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/chemviz/chemviz/internal/chart"
	"github.com/chemviz/chemviz/internal/export"
	"github.com/chemviz/chemviz/internal/preview"
	"github.com/chemviz/chemviz/internal/workspace"
	"github.com/chemviz/chemviz/pkg/models"
)

const textChartWidth = 40

func newUploadCommand(a *app) *cobra.Command {
	var check bool
	cmd := &cobra.Command{
		Use:   "upload <file.csv>",
		Short: "Upload a CSV file and print its summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireLogin(); err != nil {
				return err
			}
			if check {
				if _, err := runPreview(cmd, args[0]); err != nil {
					return err
				}
			}
			summary, err := a.ws.Upload(cmd.Context(), args[0])
			if err != nil {
				return failure(err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Uploaded %s\n\n", filepath.Base(args[0]))
			printSummary(out, summary)
			return nil
		},
	}
	cmd.Flags().BoolVar(&check, "check", false, "validate the file locally before uploading")
	return cmd
}

func newHistoryCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "List the most recent uploads",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireLogin(); err != nil {
				return err
			}
			records := a.ws.FetchHistory(cmd.Context())
			printHistory(cmd.OutOrStdout(), records)
			return nil
		},
	}
}

func newSummaryCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "summary <id>",
		Short: "Print the summary of one upload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireLogin(); err != nil {
				return err
			}
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			summary, err := a.ws.FetchSummary(cmd.Context(), id)
			if err != nil {
				return failure(err)
			}
			printSummary(cmd.OutOrStdout(), summary)
			return nil
		},
	}
}

func newTableCommand(a *app) *cobra.Command {
	var xlsxPath string
	cmd := &cobra.Command{
		Use:   "table <id>",
		Short: "Print the CSV content of a recent upload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireLogin(); err != nil {
				return err
			}
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			rec, err := a.findRecord(cmd, id)
			if err != nil {
				return err
			}
			table, err := a.ws.LoadRecordTable(cmd.Context(), rec)
			if errors.Is(err, workspace.ErrCSVUnavailable) {
				return fmt.Errorf("upload %d: %w", id, err)
			}

			if xlsxPath != "" {
				if err := export.WriteFile(xlsxPath, table, rec.Summary); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", xlsxPath)
				return nil
			}
			printTable(cmd.OutOrStdout(), table)
			return nil
		},
	}
	cmd.Flags().StringVar(&xlsxPath, "xlsx", "", "write the table and summary to an Excel workbook instead")
	return cmd
}

func newReportCommand(a *app) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "report <id>",
		Short: "Download the PDF report of an upload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireLogin(); err != nil {
				return err
			}
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if dir == "" {
				dir = a.cfg.Download.Dir
			}
			path, err := a.ws.DownloadReport(cmd.Context(), id, dir)
			if err != nil {
				return failure(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "directory to save the report in (default from config)")
	return cmd
}

func newChartCommand(a *app) *cobra.Command {
	var latest bool
	var outDir string
	cmd := &cobra.Command{
		Use:   "chart [id]",
		Short: "Chart the type distribution and averages of an upload",
		Long: `Draws the type distribution and the per-field averages of one upload.
The charts are printed as text. With --out-dir a pie chart and a bar chart
are also written there as PNG files.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireLogin(); err != nil {
				return err
			}

			var id int64
			switch {
			case len(args) == 1:
				parsed, err := parseID(args[0])
				if err != nil {
					return err
				}
				id = parsed
			case latest:
				records := a.ws.FetchHistory(cmd.Context())
				if len(records) == 0 {
					return errors.New("no uploads yet")
				}
				id = records[0].ID
			default:
				return errors.New("pass an upload id or --latest")
			}

			summary, err := a.ws.FetchSummary(cmd.Context(), id)
			if err != nil {
				return failure(err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Type distribution")
			fmt.Fprintln(out, chart.TypeDistributionText(summary, textChartWidth))
			fmt.Fprintln(out)
			fmt.Fprintln(out, "Averages")
			fmt.Fprintln(out, chart.AveragesText(summary, textChartWidth))

			if outDir == "" {
				return nil
			}
			if err := os.MkdirAll(outDir, 0o755); err != nil {
				return fmt.Errorf("failed to create %s: %w", outDir, err)
			}
			charts := []struct {
				name   string
				render func(io.Writer, *models.Summary) error
			}{
				{fmt.Sprintf("type_distribution_%d.png", id), chart.TypeDistributionPNG},
				{fmt.Sprintf("averages_%d.png", id), chart.AveragesPNG},
			}
			for _, c := range charts {
				path := filepath.Join(outDir, c.name)
				if err := writePNG(path, summary, c.render); err != nil {
					if errors.Is(err, chart.ErrNoData) {
						fmt.Fprintf(out, "Skipped %s: no data\n", c.name)
						continue
					}
					return err
				}
				fmt.Fprintf(out, "Wrote %s\n", path)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&latest, "latest", false, "chart the most recent upload")
	cmd.Flags().StringVar(&outDir, "out-dir", "", "also write PNG charts to this directory")
	return cmd
}

func newPreviewCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "preview <file.csv>",
		Short: "Validate a CSV file locally and show the summary it would get",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := runPreview(cmd, args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: %d bytes, columns %v\n\n", report.Name, report.Size, report.Columns)
			printSummary(out, report.Summary)
			return nil
		},
	}
}

func runPreview(cmd *cobra.Command, path string) (*preview.Report, error) {
	p, err := preview.Default()
	if err != nil {
		return nil, fmt.Errorf("failed to open preview engine: %w", err)
	}
	report, err := p.Check(cmd.Context(), path)
	if err != nil {
		var invalid *preview.ValidationError
		if errors.As(err, &invalid) {
			return nil, fmt.Errorf("%s rejected: %s", filepath.Base(path), invalid.Message)
		}
		return nil, err
	}
	return report, nil
}

// findRecord looks id up in the recent history, which is where csv_url lives
func (a *app) findRecord(cmd *cobra.Command, id int64) (models.UploadRecord, error) {
	for _, rec := range a.ws.FetchHistory(cmd.Context()) {
		if rec.ID == id {
			return rec, nil
		}
	}
	return models.UploadRecord{}, fmt.Errorf("upload %d is not in the recent history", id)
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

func writePNG(path string, summary *models.Summary, render func(io.Writer, *models.Summary) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := render(f, summary); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}

func printHistory(out io.Writer, records []models.UploadRecord) {
	if len(records) == 0 {
		fmt.Fprintln(out, "No uploads yet")
		return
	}
	fmt.Fprintln(out, "Recent uploads:")
	fmt.Fprintln(out, "===============")
	for _, rec := range records {
		fmt.Fprintf(out, "%d. %s\n", rec.ID, rec.Name)
		fmt.Fprintf(out, "   Uploaded: %s\n", rec.UploadedAt.Local().Format("2006-01-02 15:04"))
		if rec.Summary != nil {
			fmt.Fprintf(out, "   Rows: %d\n", rec.Summary.Total)
		}
		if !rec.HasCSV() {
			fmt.Fprintln(out, "   CSV: unavailable")
		}
	}
}

func printSummary(out io.Writer, summary *models.Summary) {
	if summary == nil {
		fmt.Fprintln(out, "No summary available")
		return
	}
	fmt.Fprintf(out, "Total rows: %d\n", summary.Total)
	if labels := summary.TypeLabels(); len(labels) > 0 {
		fmt.Fprintln(out, "\nType distribution:")
		for _, label := range labels {
			fmt.Fprintf(out, "  %-20s %d\n", label, summary.TypeDistribution[label])
		}
	}
	if fields := summary.AverageFields(); len(fields) > 0 {
		fmt.Fprintln(out, "\nAverages:")
		for _, field := range fields {
			fmt.Fprintf(out, "  %-20s %.2f\n", field, summary.Averages[field])
		}
	}
}

func printTable(out io.Writer, table models.Table) {
	if table.Empty() {
		fmt.Fprintln(out, "No rows")
		return
	}
	rows := make([][]string, 0, len(table.Rows))
	for _, row := range table.Rows {
		cells := make([]string, len(table.Headers))
		for i, h := range table.Headers {
			cells[i] = row[h]
		}
		rows = append(rows, cells)
	}
	t := ltable.New().
		Border(lipgloss.NormalBorder()).
		Headers(table.Headers...).
		Rows(rows...)
	fmt.Fprintln(out, t.Render())
}
