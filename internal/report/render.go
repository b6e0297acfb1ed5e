package report

import (
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("0")).Background(lipgloss.Color("6"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	valueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("15"))
	gainStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	lossStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

// RunRows describes the run itself: period, bar count and capital path.
// equity holds the initial capital first, as returned by backtest.Run.
func RunRows(dates []time.Time, equity []float64) []Row {
	if len(dates) == 0 || len(equity) == 0 {
		return nil
	}
	return []Row{
		{"Start", dates[0].Format(time.DateOnly)},
		{"End", dates[len(dates)-1].Format(time.DateOnly)},
		{"Bars", humanize.Comma(int64(len(dates)))},
		{"Initial Equity", humanize.FormatFloat("#,###.##", equity[0])},
		{"Final Equity", humanize.FormatFloat("#,###.##", equity[len(equity)-1])},
	}
}

// Render lays rows out as an aligned two-column block under title.
// Percentage rows are coloured by sign.
func Render(title string, rows ...[]Row) string {
	width := 0
	for _, group := range rows {
		for _, r := range group {
			width = max(width, lipgloss.Width(r.Label))
		}
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(" " + title + " "))
	b.WriteString("\n")
	for _, group := range rows {
		for _, r := range group {
			b.WriteString(labelStyle.Width(width + 2).Render(r.Label))
			b.WriteString(valueFor(r).Render(r.Value))
			b.WriteString("\n")
		}
	}
	return b.String()
}

func valueFor(r Row) lipgloss.Style {
	if !strings.Contains(r.Label, "[%]") {
		return valueStyle
	}
	switch {
	case strings.HasPrefix(r.Value, "-"):
		return lossStyle
	case strings.Trim(r.Value, "0.") == "":
		return valueStyle
	default:
		return gainStyle
	}
}
