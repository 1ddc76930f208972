// Package report renders session reports as PDF documents.
package report

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/JonMunkholm/chemviz/internal/core"
	"github.com/go-pdf/fpdf"
)

// DefaultRowLimit caps the equipment listing.
const DefaultRowLimit = 50

// Title heads every report.
const Title = "Chemical Equipment Parameter Report"

const (
	pageMargin = 15.0
	lineHeight = 7.0
	fontFamily = "Helvetica"
)

var (
	headerFill = [3]int{52, 73, 94}
	stripeFill = [3]int{236, 240, 241}
)

// PDFRenderer implements core.ReportRenderer with fpdf.
type PDFRenderer struct {
	RowLimit int
	Now      func() time.Time
}

var _ core.ReportRenderer = (*PDFRenderer)(nil)

// NewPDFRenderer returns a renderer listing at most rowLimit equipment rows.
func NewPDFRenderer(rowLimit int) *PDFRenderer {
	if rowLimit <= 0 {
		rowLimit = DefaultRowLimit
	}
	return &PDFRenderer{RowLimit: rowLimit, Now: time.Now}
}

// table is one titled grid. widths are in millimetres.
type table struct {
	title   string
	headers []string
	widths  []float64
	aligns  []string
	rows    [][]string
}

// Render writes an A4 document: title and metadata, statistics, type
// distribution and the first RowLimit equipment rows in the order given.
// Values are formatted as supplied; nothing is recomputed.
func (r *PDFRenderer) Render(w io.Writer, data core.ReportData) error {
	pdf := r.layout(data)
	if err := pdf.Error(); err != nil {
		return fmt.Errorf("layout report: %w", err)
	}
	return pdf.Output(w)
}

func (r *PDFRenderer) layout(data core.ReportData) *fpdf.Fpdf {
	limit := r.RowLimit
	if limit <= 0 {
		limit = DefaultRowLimit
	}
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(pageMargin, pageMargin, pageMargin)
	pdf.SetAutoPageBreak(true, pageMargin)
	pdf.SetTitle(Title, true)
	pdf.SetCreator("chemviz", true)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFooterFunc(func() {
		pdf.SetY(-pageMargin + 5)
		pdf.SetFont(fontFamily, "I", 8)
		pdf.SetTextColor(120, 120, 120)
		pdf.CellFormat(0, 5, fmt.Sprintf("Page %d", pdf.PageNo()), "", 0, "C", false, 0, "")
	})

	pdf.AddPage()

	pdf.SetFont(fontFamily, "B", 18)
	pdf.SetTextColor(44, 62, 80)
	pdf.CellFormat(0, 12, Title, "", 1, "C", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont(fontFamily, "", 11)
	pdf.SetTextColor(0, 0, 0)
	meta := [][2]string{
		{"File", data.Session.Filename},
		{"Uploaded", data.Session.UploadedAt.UTC().Format("2006-01-02 15:04:05 MST")},
		{"Total Records", strconv.Itoa(data.Summary.TotalCount)},
		{"Generated", now().UTC().Format("2006-01-02 15:04:05 MST")},
	}
	for _, m := range meta {
		pdf.SetFont(fontFamily, "B", 11)
		pdf.CellFormat(35, lineHeight, m[0]+":", "", 0, "L", false, 0, "")
		pdf.SetFont(fontFamily, "", 11)
		pdf.CellFormat(0, lineHeight, tr(m[1]), "", 1, "L", false, 0, "")
	}
	pdf.Ln(6)

	for _, t := range []table{
		statisticsTable(data.Summary),
		distributionTable(data.Summary),
		equipmentTable(data.Equipment, limit),
	} {
		drawTable(pdf, tr, t)
		pdf.Ln(6)
	}

	if len(data.Equipment) > limit {
		pdf.SetFont(fontFamily, "I", 9)
		pdf.CellFormat(0, 5,
			fmt.Sprintf("Showing first %d of %d records.", limit, len(data.Equipment)),
			"", 1, "L", false, 0, "")
	}

	return pdf
}

func statisticsTable(s core.Summary) table {
	return table{
		title:   "Summary Statistics",
		headers: []string{"Metric", "Flowrate", "Pressure", "Temperature"},
		widths:  []float64{45, 45, 45, 45},
		aligns:  []string{"L", "R", "R", "R"},
		rows: [][]string{
			{"Average", num(s.AvgFlowrate), num(s.AvgPressure), num(s.AvgTemperature)},
			{"Minimum", num(s.MinFlowrate), num(s.MinPressure), num(s.MinTemperature)},
			{"Maximum", num(s.MaxFlowrate), num(s.MaxPressure), num(s.MaxTemperature)},
		},
	}
}

// distributionTable sorts types by name so output is stable.
func distributionTable(s core.Summary) table {
	types := make([]string, 0, len(s.TypeDistribution))
	for t := range s.TypeDistribution {
		types = append(types, t)
	}
	sort.Strings(types)

	rows := make([][]string, 0, len(types))
	for _, t := range types {
		rows = append(rows, []string{t, strconv.Itoa(s.TypeDistribution[t])})
	}
	return table{
		title:   "Equipment Type Distribution",
		headers: []string{"Equipment Type", "Count"},
		widths:  []float64{90, 45},
		aligns:  []string{"L", "R"},
		rows:    rows,
	}
}

func equipmentTable(items []core.Equipment, limit int) table {
	if len(items) > limit {
		items = items[:limit]
	}
	rows := make([][]string, len(items))
	for i, e := range items {
		rows[i] = []string{e.Name, string(e.Type), num(e.Flowrate), num(e.Pressure), num(e.Temperature)}
	}
	return table{
		title:   "Equipment Details",
		headers: []string{"Name", "Type", "Flowrate", "Pressure", "Temperature"},
		widths:  []float64{50, 35, 30, 30, 35},
		aligns:  []string{"L", "L", "R", "R", "R"},
		rows:    rows,
	}
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// drawTable repeats the header row after every page break.
func drawTable(pdf *fpdf.Fpdf, tr func(string) string, t table) {
	pdf.SetFont(fontFamily, "B", 13)
	pdf.SetTextColor(44, 62, 80)
	pdf.CellFormat(0, 9, t.title, "", 1, "L", false, 0, "")

	header := func() {
		pdf.SetFont(fontFamily, "B", 10)
		pdf.SetFillColor(headerFill[0], headerFill[1], headerFill[2])
		pdf.SetTextColor(255, 255, 255)
		for i, h := range t.headers {
			pdf.CellFormat(t.widths[i], lineHeight, h, "1", 0, "C", true, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont(fontFamily, "", 10)
		pdf.SetTextColor(0, 0, 0)
	}
	header()

	if len(t.rows) == 0 {
		total := 0.0
		for _, w := range t.widths {
			total += w
		}
		pdf.CellFormat(total, lineHeight, "No data", "1", 1, "C", false, 0, "")
		return
	}

	_, pageHeight := pdf.GetPageSize()
	for n, row := range t.rows {
		if pdf.GetY()+lineHeight > pageHeight-pageMargin {
			pdf.AddPage()
			header()
		}
		fill := n%2 == 1
		pdf.SetFillColor(stripeFill[0], stripeFill[1], stripeFill[2])
		for i, cell := range row {
			pdf.CellFormat(t.widths[i], lineHeight, tr(cell), "1", 0, t.aligns[i], fill, 0, "")
		}
		pdf.Ln(-1)
	}
}
