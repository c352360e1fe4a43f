package sparkline

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func samplesOf(values ...float64) []Sample {
	base := time.Unix(1700000000, 0)
	out := make([]Sample, len(values))
	for i, v := range values {
		out[i] = Sample{Timestamp: base.Add(time.Duration(i) * 30 * time.Second), Value: v}
	}
	return out
}

func TestComputeStats(t *testing.T) {
	stats, ok := ComputeStats(samplesOf(10, 20, 30), nil)
	require.True(t, ok)
	assert.Equal(t, 20.0, stats.Median)
	assert.InDelta(t, 29.0, stats.P95, 1e-9)
	assert.Equal(t, 30.0, stats.Latest)
	assert.Nil(t, stats.Limit)
}

func TestComputeStats_LatestIsLastNotLargest(t *testing.T) {
	stats, ok := ComputeStats(samplesOf(5, 90, 1, 3), nil)
	require.True(t, ok)
	assert.Equal(t, 3.0, stats.Latest)
	assert.Equal(t, 4.0, stats.Median)
}

func TestComputeStats_SingleSample(t *testing.T) {
	limit := 80.0
	stats, ok := ComputeStats(samplesOf(42), &limit)
	require.True(t, ok)
	assert.Equal(t, 42.0, stats.Median)
	assert.Equal(t, 42.0, stats.P95)
	assert.Equal(t, 42.0, stats.Latest)
	require.NotNil(t, stats.Limit)
	assert.Equal(t, 80.0, *stats.Limit)
}

func TestComputeStats_Empty(t *testing.T) {
	_, ok := ComputeStats(nil, nil)
	assert.False(t, ok)
}

func TestComputeStats_IgnoresNaNInQuantiles(t *testing.T) {
	stats, ok := ComputeStats(samplesOf(1, math.NaN(), 3), nil)
	require.True(t, ok)
	assert.Equal(t, 2.0, stats.Median)
	assert.Equal(t, 3.0, stats.Latest)
}

func TestQuantile(t *testing.T) {
	sorted := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}

	assert.Equal(t, 1.0, Quantile(sorted, 0))
	assert.Equal(t, 10.0, Quantile(sorted, 1))
	assert.InDelta(t, 5.5, Quantile(sorted, 0.5), 1e-9)
	assert.InDelta(t, 9.55, Quantile(sorted, 0.95), 1e-9)
	assert.True(t, math.IsNaN(Quantile(nil, 0.5)))
}

func TestStats_MarshalJSON(t *testing.T) {
	limit := 100.0
	data, err := json.Marshal(Stats{Median: 1.5, P95: math.NaN(), Latest: 2, Limit: &limit})
	require.NoError(t, err)
	assert.JSONEq(t, `{"median":1.5,"p95":null,"latest":2,"limit":100}`, string(data))
}
