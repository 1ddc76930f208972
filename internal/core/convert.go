package core

import (
	"math"
	"strconv"
	"strings"
)

// CleanCell strips spreadsheet export artifacts from a cell: surrounding
// whitespace, Excel text-formula wrappers (="00123") and enclosing quotes.
func CleanCell(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, `="`) && strings.HasSuffix(s, `"`) && len(s) >= 3 {
		s = s[2 : len(s)-1]
	} else if strings.HasPrefix(s, "=") {
		s = s[1:]
	}
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	return strings.TrimSpace(s)
}

// ParseMeasurement converts a cell into a finite float64. Empty cells,
// non-numeric text, NaN and infinities report ok=false.
func ParseMeasurement(s string) (float64, bool) {
	s = CleanCell(s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// isEmptyRow reports whether every cell of a record is blank.
func isEmptyRow(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
