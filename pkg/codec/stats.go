package codec

import (
	"math"
	"sort"
)

// accumulator collects running aggregate values for one series.
type accumulator struct {
	sum    float64
	count  int
	min    float64
	max    float64
	values []float64
}

func (a *accumulator) add(v float64) {
	if a.count == 0 || v < a.min {
		a.min = v
	}
	if a.count == 0 || v > a.max {
		a.max = v
	}
	a.sum += v
	a.count++
	a.values = append(a.values, v)
}

func (a *accumulator) average() float64 {
	if a.count == 0 {
		return 0
	}
	return a.sum / float64(a.count)
}

func (a *accumulator) fieldStats() FieldStats {
	return FieldStats{
		Count:   a.count,
		Sum:     a.sum,
		Average: a.average(),
		Min:     a.min,
		Max:     a.max,
		Median:  CalculatePercentile(a.values, 0.5),
	}
}

// CalculatePercentile computes percentile p (0..1) from raw values with
// linear interpolation between neighbours.
func CalculatePercentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	index := p * float64(len(sorted)-1)
	lower := int(math.Floor(index))
	upper := int(math.Ceil(index))

	if lower == upper {
		return sorted[lower]
	}

	weight := index - float64(lower)
	return sorted[lower]*(1-weight) + sorted[upper]*weight
}

// rankPercentile picks sorted[floor(n*p)], clamped to the last element.
func rankPercentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Floor(float64(len(sorted)) * p))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func summarizeNumbers(values []float64) *NumericSummary {
	s := &NumericSummary{Type: TypeNumericSummary, Count: len(values)}
	if len(values) == 0 {
		return s
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	for _, v := range sorted {
		s.Sum += v
	}
	s.Mean = s.Sum / float64(len(sorted))
	s.Min = sorted[0]
	s.Max = sorted[len(sorted)-1]
	s.Median = CalculatePercentile(sorted, 0.5)

	var variance float64
	for _, v := range sorted {
		d := v - s.Mean
		variance += d * d
	}
	s.StandardDeviation = math.Sqrt(variance / float64(len(sorted)))

	s.Percentiles = Percentiles{
		P25: rankPercentile(sorted, 0.25),
		P50: rankPercentile(sorted, 0.50),
		P75: rankPercentile(sorted, 0.75),
		P90: rankPercentile(sorted, 0.90),
		P95: rankPercentile(sorted, 0.95),
		P99: rankPercentile(sorted, 0.99),
	}
	return s
}
