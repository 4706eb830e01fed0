package analysis

import (
	"math"
	"sort"

	"github.com/HatiCode/metrial/pkg/storage"
)

// Describe computes the summary statistics for a sample. The standard
// deviation is the sample deviation (n-1 divisor); a sample of one has
// deviation zero.
func Describe(values []float64) storage.Stats {
	if len(values) == 0 {
		return storage.Stats{}
	}

	sum := 0.0
	min := values[0]
	max := values[0]
	for _, v := range values {
		sum += v
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	mean := sum / float64(len(values))

	variance := 0.0
	for _, v := range values {
		diff := v - mean
		variance += diff * diff
	}
	stddev := 0.0
	if len(values) > 1 {
		variance = variance / float64(len(values)-1)
		stddev = math.Sqrt(variance)
	}

	return storage.Stats{
		Mean:   mean,
		Median: Median(values),
		StdDev: stddev,
		Min:    min,
		Max:    max,
	}
}

// Median returns the middle value of the sample, averaging the two central
// values for even-sized samples. Does not modify its input; returns 0 for an
// empty sample.
func Median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

// CoefficientOfVariation expresses spread relative to the mean. Zero-mean
// samples report 0 rather than dividing by zero.
func CoefficientOfVariation(s storage.Stats) float64 {
	if s.Mean == 0 {
		return 0
	}
	return s.StdDev / math.Abs(s.Mean)
}
