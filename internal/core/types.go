package core

import (
	"strings"
	"time"
)

// EquipmentType is one of the fixed equipment categories.
type EquipmentType string

const (
	TypePump          EquipmentType = "Pump"
	TypeCompressor    EquipmentType = "Compressor"
	TypeValve         EquipmentType = "Valve"
	TypeHeatExchanger EquipmentType = "HeatExchanger"
	TypeReactor       EquipmentType = "Reactor"
	TypeCondenser     EquipmentType = "Condenser"
	TypeOther         EquipmentType = "Other"
)

// EquipmentTypes lists every category in display order.
var EquipmentTypes = []EquipmentType{
	TypePump,
	TypeCompressor,
	TypeValve,
	TypeHeatExchanger,
	TypeReactor,
	TypeCondenser,
	TypeOther,
}

// typeLookup is keyed by the lowercased name with spaces, dashes and
// underscores removed.
var typeLookup = func() map[string]EquipmentType {
	m := make(map[string]EquipmentType, len(EquipmentTypes))
	for _, t := range EquipmentTypes {
		m[typeKey(string(t))] = t
	}
	return m
}()

func typeKey(s string) string {
	return strings.ToLower(strings.NewReplacer(" ", "", "_", "", "-", "").Replace(strings.TrimSpace(s)))
}

// NormalizeType maps free text onto the enumeration. "heat exchanger",
// "HEAT_EXCHANGER" and "HeatExchanger" all resolve to TypeHeatExchanger.
// Unknown or empty values become TypeOther.
func NormalizeType(s string) EquipmentType {
	if t, ok := typeLookup[typeKey(s)]; ok {
		return t
	}
	return TypeOther
}

// Equipment is one validated row of an uploaded file.
type Equipment struct {
	ID          int64         `json:"id"`
	SessionID   int64         `json:"-"`
	Name        string        `json:"name"`
	Type        EquipmentType `json:"equipment_type"`
	Flowrate    float64       `json:"flowrate"`
	Pressure    float64       `json:"pressure"`
	Temperature float64       `json:"temperature"`
}

// Session is one CSV ingestion event.
type Session struct {
	ID          int64     `json:"id"`
	UserID      int64     `json:"-"`
	Filename    string    `json:"filename"`
	UploadedAt  time.Time `json:"uploaded_at"`
	RecordCount int       `json:"equipment_count"`
	Summary     Summary   `json:"summary"`
}

// NewSession is the input to SessionStore.CreateSession.
type NewSession struct {
	UserID     int64
	Filename   string
	UploadedAt time.Time
	Records    []Equipment
}

// CreatedSession is the result of a successful CreateSession.
type CreatedSession struct {
	Session Session
	// Evicted holds the ids removed by the retention policy.
	Evicted []int64
}

// Summary holds aggregate statistics over one session's equipment.
type Summary struct {
	TotalCount       int            `json:"total_count"`
	AvgFlowrate      float64        `json:"avg_flowrate"`
	AvgPressure      float64        `json:"avg_pressure"`
	AvgTemperature   float64        `json:"avg_temperature"`
	MinFlowrate      float64        `json:"min_flowrate"`
	MaxFlowrate      float64        `json:"max_flowrate"`
	MinPressure      float64        `json:"min_pressure"`
	MaxPressure      float64        `json:"max_pressure"`
	MinTemperature   float64        `json:"min_temperature"`
	MaxTemperature   float64        `json:"max_temperature"`
	TypeDistribution map[string]int `json:"type_distribution"`
}

// ParseResult is the output of ParseCSV.
type ParseResult struct {
	Records []Equipment
	// Dropped counts data rows discarded for a missing or non-numeric measurement.
	Dropped int
}

// UploadResult is returned by Service.Upload.
type UploadResult struct {
	Session Session
	Dropped int
}
