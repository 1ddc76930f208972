package core

import (
	"encoding/csv"
	"errors"
	"io"
	"path/filepath"
	"strings"
)

// columnIndex holds the position of each canonical column in a header row.
type columnIndex map[string]int

// resolveColumns maps header cells onto canonical columns. When two headers
// resolve to the same column the first one wins.
func resolveColumns(header []string, aliases Aliases) (columnIndex, error) {
	lookup := aliases.lookup()
	idx := make(columnIndex, len(RequiredColumns))
	for i, h := range header {
		col, ok := lookup[normalizeHeader(sanitizeUTF8(h))]
		if !ok {
			continue
		}
		if _, seen := idx[col]; !seen {
			idx[col] = i
		}
	}

	var missing []string
	for _, col := range RequiredColumns {
		if _, ok := idx[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, &MissingColumnsError{Columns: missing}
	}
	return idx, nil
}

func (c columnIndex) cell(record []string, col string) string {
	i := c[col]
	if i >= len(record) {
		return ""
	}
	return sanitizeUTF8(record[i])
}

// IsCSVFilename reports whether name carries a .csv extension.
func IsCSVFilename(name string) bool {
	return strings.EqualFold(filepath.Ext(strings.TrimSpace(name)), ".csv")
}

// ParseCSV reads an equipment table with a header row.
//
// A missing canonical column fails the whole parse. Data rows with an empty
// or non-numeric measurement are dropped and counted; blank lines are
// skipped without counting. Records keep input order.
func ParseCSV(r io.Reader, aliases Aliases) (ParseResult, error) {
	if aliases == nil {
		aliases = DefaultAliases()
	}

	reader := csv.NewReader(NewBOMSkippingReader(r))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return ParseResult{}, ErrEmptyFile
	}
	if err != nil {
		return ParseResult{}, &InvalidCSVError{Err: err}
	}
	if isEmptyRow(header) {
		return ParseResult{}, ErrEmptyFile
	}

	cols, err := resolveColumns(header, aliases)
	if err != nil {
		return ParseResult{}, err
	}

	var result ParseResult
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return ParseResult{}, &InvalidCSVError{Err: err}
		}
		if isEmptyRow(record) {
			continue
		}

		eq, ok := buildEquipment(record, cols)
		if !ok {
			result.Dropped++
			continue
		}
		result.Records = append(result.Records, eq)
	}

	return result, nil
}

func buildEquipment(record []string, cols columnIndex) (Equipment, bool) {
	flow, ok := ParseMeasurement(cols.cell(record, ColFlowrate))
	if !ok {
		return Equipment{}, false
	}
	pressure, ok := ParseMeasurement(cols.cell(record, ColPressure))
	if !ok {
		return Equipment{}, false
	}
	temp, ok := ParseMeasurement(cols.cell(record, ColTemperature))
	if !ok {
		return Equipment{}, false
	}

	return Equipment{
		Name:        CleanCell(cols.cell(record, ColName)),
		Type:        NormalizeType(CleanCell(cols.cell(record, ColType))),
		Flowrate:    flow,
		Pressure:    pressure,
		Temperature: temp,
	}, true
}
