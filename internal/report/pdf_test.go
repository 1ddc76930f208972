package report

import (
	"bytes"
	"fmt"
	"testing"
	"time"

	"github.com/JonMunkholm/chemviz/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reportData(n int) core.ReportData {
	items := make([]core.Equipment, n)
	for i := range items {
		items[i] = core.Equipment{
			ID:          int64(i + 1),
			Name:        fmt.Sprintf("Unit-%03d", i),
			Type:        core.EquipmentTypes[i%len(core.EquipmentTypes)],
			Flowrate:    float64(i) + 0.5,
			Pressure:    2.25,
			Temperature: 80,
		}
	}
	return core.ReportData{
		Session: core.Session{
			ID:         4,
			Filename:   "plant-ä.csv",
			UploadedAt: time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC),
		},
		Equipment: items,
		Summary:   core.Summarize(items),
	}
}

func TestRender_ProducesPDF(t *testing.T) {
	r := NewPDFRenderer(0)
	assert.Equal(t, DefaultRowLimit, r.RowLimit)

	var buf bytes.Buffer
	require.NoError(t, r.Render(&buf, reportData(3)))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")))
	assert.True(t, bytes.Contains(buf.Bytes(), []byte("%%EOF")))
}

func TestRender_Empty(t *testing.T) {
	var buf bytes.Buffer
	data := core.ReportData{Summary: core.EmptySummary()}
	require.NoError(t, NewPDFRenderer(10).Render(&buf, data))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")))
}

func TestRender_LongListingBreaksPages(t *testing.T) {
	fixed := func() time.Time { return time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC) }

	short := (&PDFRenderer{RowLimit: 5, Now: fixed}).layout(reportData(200))
	long := (&PDFRenderer{RowLimit: 200, Now: fixed}).layout(reportData(200))

	require.NoError(t, long.Error())
	assert.Equal(t, 1, short.PageCount())
	assert.Greater(t, long.PageCount(), 1)
}

func TestEquipmentTable_Cap(t *testing.T) {
	data := reportData(60)

	tbl := equipmentTable(data.Equipment, 50)
	require.Len(t, tbl.rows, 50)
	assert.Equal(t, "Unit-000", tbl.rows[0][0])
	assert.Equal(t, "Unit-049", tbl.rows[49][0])
	assert.Equal(t, "0.50", tbl.rows[0][2])

	assert.Len(t, equipmentTable(data.Equipment[:3], 50).rows, 3)
}

func TestDistributionTable_Sorted(t *testing.T) {
	s := core.Summary{TypeDistribution: map[string]int{"Valve": 1, "Compressor": 4, "Pump": 2}}

	tbl := distributionTable(s)
	require.Len(t, tbl.rows, 3)
	assert.Equal(t, []string{"Compressor", "4"}, tbl.rows[0])
	assert.Equal(t, []string{"Pump", "2"}, tbl.rows[1])
	assert.Equal(t, []string{"Valve", "1"}, tbl.rows[2])
}

func TestStatisticsTable(t *testing.T) {
	s := core.Summary{AvgFlowrate: 15, MinPressure: 5, MaxTemperature: 40.126}

	tbl := statisticsTable(s)
	assert.Equal(t, []string{"Average", "15.00", "0.00", "0.00"}, tbl.rows[0])
	assert.Equal(t, "5.00", tbl.rows[1][2])
	assert.Equal(t, "40.13", tbl.rows[2][3])
}
