package tui

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/JonMunkholm/chemviz/internal/client"
	"github.com/JonMunkholm/chemviz/internal/core"
	"github.com/charmbracelet/lipgloss"
)

const (
	equipmentRowLimit = 20
	chartWidth        = 40
	timeLayout        = "2006-01-02 15:04"
)

// renderTable lays out rows in left-aligned columns under a styled header.
func renderTable(headers []string, rows [][]string) string {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if w := lipgloss.Width(cell); i < len(widths) && w > widths[i] {
				widths[i] = w
			}
		}
	}

	line := func(cells []string, style *lipgloss.Style) string {
		parts := make([]string, len(cells))
		for i, cell := range cells {
			padded := cell + strings.Repeat(" ", widths[i]-lipgloss.Width(cell))
			if style != nil {
				padded = style.Render(padded)
			}
			parts[i] = padded
		}
		return strings.TrimRight(strings.Join(parts, "  "), " ")
	}

	var b strings.Builder
	b.WriteString(line(headers, &headerStyle))
	for _, row := range rows {
		b.WriteString("\n")
		b.WriteString(line(row, nil))
	}
	return b.String()
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// renderSummary shows the session header and the min/avg/max table.
func renderSummary(sum client.SummaryResult) string {
	if sum.SessionID == nil {
		return mutedStyle.Render("No uploads yet. Choose Upload to add a CSV file.")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Session #%d", *sum.SessionID)
	if sum.Filename != nil {
		fmt.Fprintf(&b, "  %s", *sum.Filename)
	}
	if sum.UploadedAt != nil {
		fmt.Fprintf(&b, "  %s", sum.UploadedAt.Local().Format(timeLayout))
	}
	fmt.Fprintf(&b, "\nTotal equipment: %d\n\n", sum.TotalCount)

	b.WriteString(renderTable(
		[]string{"Parameter", "Min", "Avg", "Max"},
		[][]string{
			{"Flowrate", num(sum.MinFlowrate), num(sum.AvgFlowrate), num(sum.MaxFlowrate)},
			{"Pressure", num(sum.MinPressure), num(sum.AvgPressure), num(sum.MaxPressure)},
			{"Temperature", num(sum.MinTemperature), num(sum.AvgTemperature), num(sum.MaxTemperature)},
		},
	))
	return b.String()
}

// renderEquipment lists at most limit rows.
func renderEquipment(rows []core.Equipment, limit int) string {
	if len(rows) == 0 {
		return mutedStyle.Render("No equipment to show.")
	}

	shown := rows
	if limit > 0 && len(shown) > limit {
		shown = shown[:limit]
	}
	cells := make([][]string, 0, len(shown))
	for _, e := range shown {
		cells = append(cells, []string{e.Name, string(e.Type), num(e.Flowrate), num(e.Pressure), num(e.Temperature)})
	}

	out := renderTable([]string{"Name", "Type", "Flowrate", "Pressure", "Temperature"}, cells)
	if len(shown) < len(rows) {
		out += "\n" + mutedStyle.Render(fmt.Sprintf("Showing %d of %d rows.", len(shown), len(rows)))
	}
	return out
}

// renderHistory lists retained sessions, newest first.
func renderHistory(sessions []core.Session) string {
	if len(sessions) == 0 {
		return mutedStyle.Render("No upload history.")
	}
	cells := make([][]string, 0, len(sessions))
	for _, s := range sessions {
		cells = append(cells, []string{
			"#" + strconv.FormatInt(s.ID, 10),
			s.Filename,
			s.UploadedAt.Local().Format(timeLayout),
			strconv.Itoa(s.RecordCount),
			num(s.Summary.AvgFlowrate),
		})
	}
	return renderTable([]string{"Session", "File", "Uploaded", "Records", "Avg Flowrate"}, cells)
}

type bar struct {
	label string
	count int
}

// sortedBars orders the distribution by count descending, then label.
func sortedBars(dist map[string]int) []bar {
	bars := make([]bar, 0, len(dist))
	for label, count := range dist {
		bars = append(bars, bar{label, count})
	}
	sort.Slice(bars, func(i, j int) bool {
		if bars[i].count != bars[j].count {
			return bars[i].count > bars[j].count
		}
		return bars[i].label < bars[j].label
	})
	return bars
}

// renderChart draws a horizontal bar per equipment type. The largest bar
// spans width cells; any non-zero count gets at least one.
func renderChart(dist map[string]int, width int) string {
	bars := sortedBars(dist)
	if len(bars) == 0 {
		return mutedStyle.Render("No type distribution to chart.")
	}

	labelWidth := 0
	for _, b := range bars {
		labelWidth = max(labelWidth, lipgloss.Width(b.label))
	}
	peak := bars[0].count

	lines := make([]string, 0, len(bars))
	for _, b := range bars {
		n := 0
		if peak > 0 {
			n = b.count * width / peak
		}
		if n == 0 && b.count > 0 {
			n = 1
		}
		label := b.label + strings.Repeat(" ", labelWidth-lipgloss.Width(b.label))
		lines = append(lines, fmt.Sprintf("%s │%s %d", label, barStyle.Render(strings.Repeat("█", n)), b.count))
	}
	return strings.Join(lines, "\n")
}
