package core

import (
	"math"
	"strconv"
)

// round2 rounds to two decimals. Ties on the exact binary value go to even,
// so 0.125 becomes 0.12 and 1.005 (stored just below) becomes 1.
func round2(v float64) float64 {
	if math.Abs(v) >= 1e15 {
		return v
	}
	r, _ := strconv.ParseFloat(strconv.FormatFloat(v, 'f', 2, 64), 64)
	return r
}

// mean averages through the plain sum, falling back to a pre-scaled sum when
// the plain one leaves the float64 range.
func mean(sum, scaled, n float64) float64 {
	if math.IsInf(sum, 0) {
		return scaled
	}
	return sum / n
}

// Summarize computes aggregate statistics over records.
//
// The result depends only on the records and their order, so recomputing from
// rows read back in id order reproduces the value computed at upload time.
// An empty slice yields zeros and an empty, non-nil distribution. Every field
// is finite whenever the inputs are.
func Summarize(records []Equipment) Summary {
	s := Summary{
		TotalCount:       len(records),
		TypeDistribution: make(map[string]int),
	}
	if len(records) == 0 {
		return s
	}

	n := float64(len(records))
	first := records[0]
	minF, maxF := first.Flowrate, first.Flowrate
	minP, maxP := first.Pressure, first.Pressure
	minT, maxT := first.Temperature, first.Temperature
	var sumF, sumP, sumT float64
	var scaledF, scaledP, scaledT float64

	for _, r := range records {
		sumF += r.Flowrate
		sumP += r.Pressure
		sumT += r.Temperature
		scaledF += r.Flowrate / n
		scaledP += r.Pressure / n
		scaledT += r.Temperature / n

		minF, maxF = math.Min(minF, r.Flowrate), math.Max(maxF, r.Flowrate)
		minP, maxP = math.Min(minP, r.Pressure), math.Max(maxP, r.Pressure)
		minT, maxT = math.Min(minT, r.Temperature), math.Max(maxT, r.Temperature)

		t := r.Type
		if t == "" {
			t = TypeOther
		}
		s.TypeDistribution[string(t)]++
	}

	s.AvgFlowrate = round2(mean(sumF, scaledF, n))
	s.AvgPressure = round2(mean(sumP, scaledP, n))
	s.AvgTemperature = round2(mean(sumT, scaledT, n))
	s.MinFlowrate, s.MaxFlowrate = round2(minF), round2(maxF)
	s.MinPressure, s.MaxPressure = round2(minP), round2(maxP)
	s.MinTemperature, s.MaxTemperature = round2(minT), round2(maxT)
	return s
}

// EmptySummary is the zero-valued summary with a non-nil distribution.
func EmptySummary() Summary {
	return Summarize(nil)
}
