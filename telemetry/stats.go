package telemetry

import (
	"log/slog"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// FieldStats summarizes an energy density field after a run.
type FieldStats struct {
	Count   int     `csv:"points"`
	Nonzero int     `csv:"nonzero"`
	Total   float64 `csv:"w_total"`
	Min     float64 `csv:"w_min"`
	Max     float64 `csv:"w_max"`
	Mean    float64 `csv:"w_mean"`
	Std     float64 `csv:"w_std"`
	P10     float64 `csv:"w_p10"`
	P50     float64 `csv:"w_p50"`
	P90     float64 `csv:"w_p90"`
}

// Percentile calculates the p-th percentile of a sorted slice.
// p should be in [0, 1]. Returns 0 if slice is empty.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[n-1]
	}

	// Linear interpolation
	idx := p * float64(n-1)
	lo := int(idx)
	hi := lo + 1
	if hi >= n {
		return sorted[n-1]
	}

	frac := idx - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// ComputeFieldStats calculates summary statistics of a field.
// The input is not modified.
func ComputeFieldStats(values []float64) FieldStats {
	n := len(values)
	if n == 0 {
		return FieldStats{}
	}

	s := FieldStats{
		Count: n,
		Total: floats.Sum(values),
		Min:   floats.Min(values),
		Max:   floats.Max(values),
	}
	s.Mean, s.Std = stat.PopMeanStdDev(values, nil)

	for _, v := range values {
		if v != 0 {
			s.Nonzero++
		}
	}

	sorted := slices.Clone(values)
	slices.Sort(sorted)
	s.P10 = Percentile(sorted, 0.10)
	s.P50 = Percentile(sorted, 0.50)
	s.P90 = Percentile(sorted, 0.90)

	return s
}

// LogValue implements slog.LogValuer for structured logging.
func (s FieldStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("points", s.Count),
		slog.Int("nonzero", s.Nonzero),
		slog.Float64("total", s.Total),
		slog.Float64("min", s.Min),
		slog.Float64("max", s.Max),
		slog.Float64("mean", s.Mean),
		slog.Float64("std", s.Std),
		slog.Float64("p10", s.P10),
		slog.Float64("p50", s.P50),
		slog.Float64("p90", s.P90),
	)
}
