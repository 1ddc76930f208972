package core

import (
	"encoding/json"
	"math"
	"reflect"
	"testing"
)

func TestSummarize_PumpExample(t *testing.T) {
	records := []Equipment{
		{Name: "Pump1", Type: TypePump, Flowrate: 10, Pressure: 5, Temperature: 20},
		{Name: "Pump2", Type: TypePump, Flowrate: 20, Pressure: 15, Temperature: 40},
	}

	got := Summarize(records)
	want := Summary{
		TotalCount:       2,
		AvgFlowrate:      15,
		AvgPressure:      10,
		AvgTemperature:   30,
		MinFlowrate:      10,
		MaxFlowrate:      20,
		MinPressure:      5,
		MaxPressure:      15,
		MinTemperature:   20,
		MaxTemperature:   40,
		TypeDistribution: map[string]int{"Pump": 2},
	}

	if !reflect.DeepEqual(got, want) {
		t.Errorf("Summarize() = %+v, want %+v", got, want)
	}
}

func TestSummarize_Empty(t *testing.T) {
	for name, records := range map[string][]Equipment{"nil": nil, "empty": {}} {
		t.Run(name, func(t *testing.T) {
			got := Summarize(records)
			if got.TotalCount != 0 {
				t.Errorf("TotalCount = %d, want 0", got.TotalCount)
			}
			if got.TypeDistribution == nil || len(got.TypeDistribution) != 0 {
				t.Errorf("TypeDistribution = %#v, want empty non-nil map", got.TypeDistribution)
			}
			zero := Summary{TypeDistribution: map[string]int{}}
			if !reflect.DeepEqual(got, zero) {
				t.Errorf("Summarize() = %+v, want zero values", got)
			}
		})
	}
}

func TestSummarize_RoundsToTwoDecimals(t *testing.T) {
	records := []Equipment{
		{Type: TypeValve, Flowrate: 1, Pressure: 1.005, Temperature: -0.125},
		{Type: TypeValve, Flowrate: 2, Pressure: 2, Temperature: -0.125},
		{Type: TypeReactor, Flowrate: 2, Pressure: 3.3333, Temperature: 100.999},
	}

	got := Summarize(records)

	checks := []struct {
		name string
		got  float64
		want float64
	}{
		{"AvgFlowrate", got.AvgFlowrate, 1.67},
		{"MaxPressure", got.MaxPressure, 3.33},
		{"MinTemperature", got.MinTemperature, -0.12},
		{"MaxTemperature", got.MaxTemperature, 101},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}
	if want := map[string]int{"Valve": 2, "Reactor": 1}; !reflect.DeepEqual(got.TypeDistribution, want) {
		t.Errorf("TypeDistribution = %v, want %v", got.TypeDistribution, want)
	}
}

func TestSummarize_Deterministic(t *testing.T) {
	records := make([]Equipment, 0, 500)
	for i := 0; i < 500; i++ {
		f := float64(i)
		records = append(records, Equipment{
			Type:        EquipmentTypes[i%len(EquipmentTypes)],
			Flowrate:    f*0.1 + 0.07,
			Pressure:    math.Sqrt(f),
			Temperature: 273.15 - f/3,
		})
	}

	first := Summarize(records)
	second := Summarize(records)

	if !reflect.DeepEqual(first, second) {
		t.Fatalf("Summarize() not deterministic: %+v vs %+v", first, second)
	}
	if math.Float64bits(first.AvgPressure) != math.Float64bits(second.AvgPressure) {
		t.Errorf("AvgPressure bits differ")
	}
	if first.TotalCount != 500 {
		t.Errorf("TotalCount = %d, want 500", first.TotalCount)
	}
}

func TestSummarize_EmptyTypeCountsAsOther(t *testing.T) {
	got := Summarize([]Equipment{{Flowrate: 1, Pressure: 1, Temperature: 1}})
	if got.TypeDistribution["Other"] != 1 {
		t.Errorf("TypeDistribution = %v, want Other:1", got.TypeDistribution)
	}
}

func TestRound2_HalfEven(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{0.125, 0.12},
		{0.375, 0.38},
		{-0.125, -0.12},
		{1.005, 1},
		{2.675, 2.67},
		{40.126, 40.13},
		{1e15, 1e15},
		{1e307, 1e307},
	}
	for _, tt := range tests {
		if got := round2(tt.in); got != tt.want {
			t.Errorf("round2(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestSummarize_HugeValuesStayFinite(t *testing.T) {
	tests := []struct {
		name    string
		records []Equipment
		wantAvg float64
		wantMax float64
	}{
		{
			name:    "single 1e307",
			records: []Equipment{{Name: "Big", Type: TypePump, Flowrate: 1e307, Pressure: 1, Temperature: 1}},
			wantAvg: 1e307,
			wantMax: 1e307,
		},
		{
			name: "sum beyond MaxFloat64",
			records: []Equipment{
				{Name: "A", Type: TypePump, Flowrate: 1e308, Pressure: 1, Temperature: 1},
				{Name: "B", Type: TypePump, Flowrate: 1e308, Pressure: 1, Temperature: 1},
			},
			wantAvg: 1e308,
			wantMax: 1e308,
		},
		{
			name: "opposite extremes",
			records: []Equipment{
				{Flowrate: math.MaxFloat64, Pressure: 1, Temperature: 1},
				{Flowrate: -math.MaxFloat64, Pressure: 1, Temperature: 1},
			},
			wantAvg: 0,
			wantMax: math.MaxFloat64,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Summarize(tt.records)
			fields := []float64{
				got.AvgFlowrate, got.AvgPressure, got.AvgTemperature,
				got.MinFlowrate, got.MaxFlowrate,
				got.MinPressure, got.MaxPressure,
				got.MinTemperature, got.MaxTemperature,
			}
			for i, v := range fields {
				if math.IsInf(v, 0) || math.IsNaN(v) {
					t.Fatalf("field %d = %v, want finite", i, v)
				}
			}
			if got.AvgFlowrate != tt.wantAvg {
				t.Errorf("AvgFlowrate = %v, want %v", got.AvgFlowrate, tt.wantAvg)
			}
			if got.MaxFlowrate != tt.wantMax {
				t.Errorf("MaxFlowrate = %v, want %v", got.MaxFlowrate, tt.wantMax)
			}
			if _, err := json.Marshal(got); err != nil {
				t.Errorf("json.Marshal() error = %v", err)
			}
		})
	}
}
