package commands

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"github.com/chemviz/chemviz/pkg/models"
)

type showOptions struct {
	style string
	width int
}

// NewShowCommand creates the show command
func NewShowCommand(a *app) *cobra.Command {
	opts := &showOptions{}
	cmd := &cobra.Command{
		Use:   "show [id]",
		Short: "Show uploads or one upload's summary as a formatted document",
		Long: `Show uploads in a non-interactive, formatted view.
Without arguments: lists the recent uploads with their totals
With an upload id: shows that upload's type distribution and averages`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireLogin(); err != nil {
				return err
			}

			var doc string
			if len(args) == 0 {
				doc = historyMarkdown(a.ws.FetchHistory(cmd.Context()))
			} else {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				summary, err := a.ws.FetchSummary(cmd.Context(), id)
				if err != nil {
					return failure(err)
				}
				doc = summaryMarkdown(fmt.Sprintf("Upload %d", id), summary)
			}

			out, err := opts.render(doc)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), out)
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.style, "style", "auto", "glamour style: auto, dark, light, notty")
	cmd.Flags().IntVar(&opts.width, "width", 80, "word wrap width")
	return cmd
}

func (o *showOptions) render(doc string) (string, error) {
	style := glamour.WithAutoStyle()
	if o.style != "" && o.style != "auto" {
		style = glamour.WithStandardStyle(o.style)
	}
	r, err := glamour.NewTermRenderer(style, glamour.WithWordWrap(o.width))
	if err != nil {
		return "", fmt.Errorf("failed to create renderer: %w", err)
	}
	out, err := r.Render(doc)
	if err != nil {
		return "", fmt.Errorf("failed to render: %w", err)
	}
	return out, nil
}

func historyMarkdown(records []models.UploadRecord) string {
	var b strings.Builder
	b.WriteString("# Recent uploads\n\n")
	if len(records) == 0 {
		b.WriteString("No uploads yet.\n")
		return b.String()
	}
	b.WriteString("| ID | Name | Uploaded | Rows | CSV |\n")
	b.WriteString("|---:|------|----------|-----:|-----|\n")
	for _, rec := range records {
		rows := "-"
		if rec.Summary != nil {
			rows = fmt.Sprintf("%d", rec.Summary.Total)
		}
		csv := "yes"
		if !rec.HasCSV() {
			csv = "no"
		}
		fmt.Fprintf(&b, "| %d | %s | %s | %s | %s |\n",
			rec.ID,
			escapeCell(rec.Name),
			rec.UploadedAt.Local().Format("2006-01-02 15:04"),
			rows,
			csv)
	}
	return b.String()
}

func summaryMarkdown(title string, summary *models.Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", title)
	if summary == nil {
		b.WriteString("No summary available.\n")
		return b.String()
	}
	fmt.Fprintf(&b, "**Total rows:** %d\n\n", summary.Total)

	b.WriteString("## Type distribution\n\n")
	if labels := summary.TypeLabels(); len(labels) > 0 {
		b.WriteString("| Type | Count |\n|------|------:|\n")
		for _, label := range labels {
			fmt.Fprintf(&b, "| %s | %d |\n", escapeCell(label), summary.TypeDistribution[label])
		}
	} else {
		b.WriteString("No type distribution.\n")
	}

	b.WriteString("\n## Averages\n\n")
	if fields := summary.AverageFields(); len(fields) > 0 {
		b.WriteString("| Field | Average |\n|-------|--------:|\n")
		for _, field := range fields {
			fmt.Fprintf(&b, "| %s | %.2f |\n", escapeCell(field), summary.Averages[field])
		}
	} else {
		b.WriteString("No averages.\n")
	}
	return b.String()
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
