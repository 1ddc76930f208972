package core

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Canonical column names every upload must provide.
const (
	ColName        = "name"
	ColType        = "type"
	ColFlowrate    = "flowrate"
	ColPressure    = "pressure"
	ColTemperature = "temperature"
)

// RequiredColumns is the fixed order used in error messages.
var RequiredColumns = []string{ColName, ColType, ColFlowrate, ColPressure, ColTemperature}

// Aliases maps a canonical column to the header spellings that select it.
// Matching is case-insensitive and ignores surrounding whitespace.
type Aliases map[string][]string

// DefaultAliases returns the built-in header spellings.
func DefaultAliases() Aliases {
	return Aliases{
		ColName:        {"Equipment Name", "Name", "Equipment", "equipment_name"},
		ColType:        {"Type", "Equipment Type", "equipment_type"},
		ColFlowrate:    {"Flowrate", "Flow Rate", "flow_rate"},
		ColPressure:    {"Pressure"},
		ColTemperature: {"Temperature", "Temp"},
	}
}

// LoadAliases reads an alias file of the form
//
//	flowrate: ["Flowrate", "Flow (m3/h)"]
//
// Columns absent from the file keep their default spellings. An empty path
// returns DefaultAliases.
func LoadAliases(path string) (Aliases, error) {
	aliases := DefaultAliases()
	if path == "" {
		return aliases, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read alias file: %w", err)
	}

	var fromFile Aliases
	if err := yaml.Unmarshal(data, &fromFile); err != nil {
		return nil, fmt.Errorf("parse alias file %s: %w", path, err)
	}

	for col, names := range fromFile {
		if !isRequiredColumn(col) {
			return nil, fmt.Errorf("alias file %s: unknown column %q", path, col)
		}
		if len(names) == 0 {
			return nil, fmt.Errorf("alias file %s: column %q has no aliases", path, col)
		}
		aliases[col] = names
	}
	return aliases, nil
}

// lookup builds a normalized header -> canonical column index.
func (a Aliases) lookup() map[string]string {
	m := make(map[string]string)
	for col, names := range a {
		m[normalizeHeader(col)] = col
		for _, n := range names {
			m[normalizeHeader(n)] = col
		}
	}
	return m
}

func isRequiredColumn(col string) bool {
	for _, c := range RequiredColumns {
		if c == col {
			return true
		}
	}
	return false
}

func normalizeHeader(h string) string {
	return strings.ToLower(strings.TrimSpace(CleanCell(h)))
}
