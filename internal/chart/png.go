// Package chart renders the two summary charts: a proportion chart of the
// type distribution and a magnitude chart of the column averages. PNG output
// is for export; the text variants are drawn inside the terminal UI.
package chart

import (
	"errors"
	"io"
	"math"

	gochart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/chemviz/chemviz/pkg/models"
)

// ErrNoData is returned when a summary has nothing to plot
var ErrNoData = errors.New("nothing to plot")

const (
	defaultWidth  = 640
	defaultHeight = 480
)

var palette = []drawing.Color{
	gochart.ColorBlue,
	gochart.ColorGreen,
	gochart.ColorOrange,
	gochart.ColorRed,
	gochart.ColorYellow,
	gochart.ColorCyan,
	gochart.ColorAlternateGray,
}

func barStyle(i int) gochart.Style {
	col := palette[i%len(palette)]
	return gochart.Style{
		FillColor:   col,
		StrokeColor: col,
		StrokeWidth: 1,
	}
}

// TypeDistributionPNG writes a pie chart of summary.TypeDistribution
func TypeDistributionPNG(w io.Writer, summary *models.Summary) error {
	var values []gochart.Value
	for i, label := range summary.TypeLabels() {
		count := summary.TypeDistribution[label]
		if count <= 0 {
			continue
		}
		values = append(values, gochart.Value{
			Label: label,
			Value: float64(count),
			Style: barStyle(i),
		})
	}
	if len(values) == 0 {
		return ErrNoData
	}

	pie := gochart.PieChart{
		Title:  "Equipment Type Distribution",
		Width:  defaultWidth,
		Height: defaultHeight,
		Values: values,
	}
	return pie.Render(gochart.PNG, w)
}

// AveragesPNG writes a bar chart of summary.Averages
func AveragesPNG(w io.Writer, summary *models.Summary) error {
	fields := summary.AverageFields()
	if len(fields) == 0 {
		return ErrNoData
	}

	bars := make([]gochart.Value, 0, len(fields))
	lo, hi := 0.0, 0.0
	for i, field := range fields {
		v := summary.Averages[field]
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
		bars = append(bars, gochart.Value{Label: field, Value: v, Style: barStyle(i)})
	}
	if hi == lo {
		hi = lo + 1
	}

	bar := gochart.BarChart{
		Title:    "Average Values",
		Width:    defaultWidth,
		Height:   defaultHeight,
		BarWidth: 60,
		Background: gochart.Style{
			Padding: gochart.Box{Top: 40, Left: 16, Right: 16, Bottom: 16},
		},
		YAxis: gochart.YAxis{
			Range: &gochart.ContinuousRange{Min: lo, Max: hi * 1.1},
		},
		Bars: bars,
	}
	return bar.Render(gochart.PNG, w)
}
