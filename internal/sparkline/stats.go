package sparkline

import (
	"encoding/json"
	"math"
	"sort"
)

// Stats summarizes the samples of a loaded widget
type Stats struct {
	Median float64
	P95    float64
	Latest float64
	Limit  *float64
}

// ComputeStats derives median, 95th percentile and latest value from samples.
// Samples are expected in ascending timestamp order; the last one is reported
// as latest without re-sorting. NaN values are ignored by the quantiles.
// It returns false for an empty set.
func ComputeStats(samples []Sample, limit *float64) (Stats, bool) {
	if len(samples) == 0 {
		return Stats{}, false
	}

	values := make([]float64, 0, len(samples))
	for _, s := range samples {
		if !math.IsNaN(s.Value) {
			values = append(values, s.Value)
		}
	}
	sort.Float64s(values)

	return Stats{
		Median: Quantile(values, 0.5),
		P95:    Quantile(values, 0.95),
		Latest: samples[len(samples)-1].Value,
		Limit:  limit,
	}, true
}

// Quantile returns the p-quantile of sorted using linear interpolation
// between closest ranks at position (n-1)*p. An empty input yields NaN.
func Quantile(sorted []float64, p float64) float64 {
	n := len(sorted)
	switch {
	case n == 0:
		return math.NaN()
	case p <= 0 || n == 1:
		return sorted[0]
	case p >= 1:
		return sorted[n-1]
	}

	pos := float64(n-1) * p
	lo := int(math.Floor(pos))
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[lo+1]-sorted[lo])*frac
}

type statsJSON struct {
	Median *float64 `json:"median"`
	P95    *float64 `json:"p95"`
	Latest *float64 `json:"latest"`
	Limit  *float64 `json:"limit,omitempty"`
}

// MarshalJSON renders non-finite values as null
func (s Stats) MarshalJSON() ([]byte, error) {
	return json.Marshal(statsJSON{
		Median: finite(s.Median),
		P95:    finite(s.P95),
		Latest: finite(s.Latest),
		Limit:  s.Limit,
	})
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
