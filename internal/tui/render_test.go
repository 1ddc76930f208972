package tui

import (
	"strings"
	"testing"
	"time"

	"github.com/JonMunkholm/chemviz/internal/client"
	"github.com/JonMunkholm/chemviz/internal/core"
)

func TestRenderChart(t *testing.T) {
	out := renderChart(map[string]int{"Valve": 2, "Pump": 4, "Reactor": 1, "Mixer": 2}, 8)
	lines := strings.Split(out, "\n")
	if len(lines) != 4 {
		t.Fatalf("got %d lines, want 4:\n%s", len(lines), out)
	}

	wantOrder := []string{"Pump", "Mixer", "Valve", "Reactor"}
	wantBars := []int{8, 4, 4, 2}
	for i, line := range lines {
		if !strings.HasPrefix(line, wantOrder[i]) {
			t.Errorf("line %d = %q, want prefix %q", i, line, wantOrder[i])
		}
		if got := strings.Count(line, "█"); got != wantBars[i] {
			t.Errorf("line %d bar = %d cells, want %d", i, got, wantBars[i])
		}
	}
}

func TestRenderChart_SmallCountsStillVisible(t *testing.T) {
	out := renderChart(map[string]int{"Pump": 100, "Valve": 1}, 10)
	lines := strings.Split(out, "\n")
	if got := strings.Count(lines[1], "█"); got != 1 {
		t.Errorf("minority bar = %d cells, want 1", got)
	}
}

func TestRenderChart_Empty(t *testing.T) {
	if out := renderChart(nil, 10); !strings.Contains(out, "No type distribution") {
		t.Errorf("renderChart(nil) = %q", out)
	}
}

func TestRenderSummary(t *testing.T) {
	id := int64(4)
	name := "plant.csv"
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		in   client.SummaryResult
		want []string
	}{
		{
			name: "no uploads",
			in:   client.SummaryResult{Summary: core.EmptySummary()},
			want: []string{"No uploads yet"},
		},
		{
			name: "session",
			in: client.SummaryResult{
				SessionID:  &id,
				Filename:   &name,
				UploadedAt: &at,
				Summary: core.Summary{
					TotalCount:  2,
					MinFlowrate: 10, AvgFlowrate: 15, MaxFlowrate: 20,
					MinPressure: 5, AvgPressure: 10, MaxPressure: 15,
				},
			},
			want: []string{"Session #4", "plant.csv", "Total equipment: 2", "Flowrate", "15.00", "Temperature"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := renderSummary(tt.in)
			for _, w := range tt.want {
				if !strings.Contains(out, w) {
					t.Errorf("missing %q in:\n%s", w, out)
				}
			}
		})
	}
}

func TestRenderEquipment_Limit(t *testing.T) {
	rows := make([]core.Equipment, 25)
	for i := range rows {
		rows[i] = core.Equipment{Name: "E", Type: core.TypeValve}
	}

	out := renderEquipment(rows, 20)
	if !strings.Contains(out, "Showing 20 of 25 rows.") {
		t.Errorf("missing truncation note:\n%s", out)
	}
	// header + 20 rows + note
	if got := strings.Count(out, "\n") + 1; got != 22 {
		t.Errorf("got %d lines, want 22", got)
	}

	if out := renderEquipment(nil, 20); !strings.Contains(out, "No equipment") {
		t.Errorf("renderEquipment(nil) = %q", out)
	}
}

func TestRenderTable_Alignment(t *testing.T) {
	out := renderTable([]string{"A", "Long header"}, [][]string{{"wide cell", "x"}})
	lines := strings.Split(out, "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines", len(lines))
	}
	if strings.Index(lines[0], "Long header") != strings.Index(lines[1], "x") {
		t.Errorf("columns misaligned:\n%s", out)
	}
}

func TestRenderHistory(t *testing.T) {
	out := renderHistory([]core.Session{
		{ID: 2, Filename: "b.csv", RecordCount: 7},
		{ID: 1, Filename: "a.csv", RecordCount: 3},
	})
	if strings.Index(out, "b.csv") > strings.Index(out, "a.csv") {
		t.Errorf("history not in given order:\n%s", out)
	}
	if out := renderHistory(nil); !strings.Contains(out, "No upload history") {
		t.Errorf("renderHistory(nil) = %q", out)
	}
}
