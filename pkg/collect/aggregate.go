package collect

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/HatiCode/metrial/pkg/storage"
)

// Aggregate summarizes one metric stream over a time window.
type Aggregate struct {
	Source        string  `json:"source"`
	MetricName    string  `json:"metric_name"`
	WindowSeconds int     `json:"window_seconds"`
	Count         int     `json:"count"`
	Avg           float64 `json:"avg"`
	Min           float64 `json:"min"`
	Max           float64 `json:"max"`
	Median        float64 `json:"median"`
}

// Aggregates computes per-stream aggregates over the trailing window.
// Streams with fewer than two numeric points in the window are omitted.
func Aggregates(ctx context.Context, store storage.Store, window time.Duration) ([]Aggregate, error) {
	if window <= 0 {
		return nil, fmt.Errorf("aggregation window must be positive, got %v", window)
	}

	keys, err := store.MetricKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("list metrics: %w", err)
	}

	since := time.Now().UTC().Add(-window)
	aggregates := make([]Aggregate, 0, len(keys))

	for _, key := range keys {
		points, err := store.PointsSince(ctx, key.Source, key.Name, since)
		if err != nil {
			return nil, fmt.Errorf("points for %s/%s: %w", key.Source, key.Name, err)
		}

		values := make([]float64, 0, len(points))
		for _, p := range points {
			if v, ok := p.Float(); ok {
				values = append(values, v)
			}
		}
		if len(values) < 2 {
			continue
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

		aggregates = append(aggregates, Aggregate{
			Source:        key.Source,
			MetricName:    key.Name,
			WindowSeconds: int(window.Seconds()),
			Count:         len(values),
			Avg:           sum / float64(len(values)),
			Min:           min,
			Max:           max,
			Median:        median(values),
		})
	}

	return aggregates, nil
}

// median returns the middle value of the sample, averaging the two central
// values for even-sized samples. Does not modify its input.
func median(values []float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}
