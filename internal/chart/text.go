package chart

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/chemviz/chemviz/pkg/models"
)

var (
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("250"))
	valueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	emptyStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("238"))
	barColors  = []lipgloss.Color{"39", "42", "214", "196", "226", "51", "245"}
)

// TypeDistributionText draws one bar per type, sized by its share of the total
func TypeDistributionText(summary *models.Summary, width int) string {
	labels := summary.TypeLabels()
	if len(labels) == 0 {
		return valueStyle.Render("No type distribution")
	}

	total := 0
	for _, l := range labels {
		total += summary.TypeDistribution[l]
	}

	rows := make([]row, 0, len(labels))
	for _, l := range labels {
		n := summary.TypeDistribution[l]
		share := 0.0
		if total > 0 {
			share = float64(n) / float64(total)
		}
		rows = append(rows, row{label: l, fraction: share, value: fmt.Sprintf("%d (%.0f%%)", n, share*100)})
	}
	return renderRows(rows, width)
}

// AveragesText draws one bar per numeric column, scaled to the largest average
func AveragesText(summary *models.Summary, width int) string {
	fields := summary.AverageFields()
	if len(fields) == 0 {
		return valueStyle.Render("No averages")
	}

	peak := 0.0
	for _, f := range fields {
		peak = math.Max(peak, math.Abs(summary.Averages[f]))
	}

	rows := make([]row, 0, len(fields))
	for _, f := range fields {
		v := summary.Averages[f]
		fraction := 0.0
		if peak > 0 {
			fraction = math.Abs(v) / peak
		}
		rows = append(rows, row{label: f, fraction: fraction, value: formatNumber(v)})
	}
	return renderRows(rows, width)
}

type row struct {
	label    string
	fraction float64
	value    string
}

func renderRows(rows []row, width int) string {
	labelWidth := 0
	for _, r := range rows {
		labelWidth = max(labelWidth, lipgloss.Width(r.label))
	}
	barWidth := width - labelWidth - 16
	if barWidth < 5 {
		barWidth = 5
	}

	var b strings.Builder
	for i, r := range rows {
		filled := int(math.Round(r.fraction * float64(barWidth)))
		filled = min(max(filled, 0), barWidth)

		fill := lipgloss.NewStyle().Foreground(barColors[i%len(barColors)])
		fmt.Fprintf(&b, "%s %s%s %s",
			labelStyle.Render(padRight(r.label, labelWidth)),
			fill.Render(strings.Repeat("█", filled)),
			emptyStyle.Render(strings.Repeat("░", barWidth-filled)),
			valueStyle.Render(r.value))
		if i < len(rows)-1 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func padRight(s string, width int) string {
	if gap := width - lipgloss.Width(s); gap > 0 {
		return s + strings.Repeat(" ", gap)
	}
	return s
}

func formatNumber(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < 1e12 {
		return fmt.Sprintf("%.0f", v)
	}
	return fmt.Sprintf("%.2f", v)
}
