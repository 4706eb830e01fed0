package collect

import (
	"context"
	"testing"
	"time"

	"github.com/HatiCode/metrial/pkg/storage"
)

func seedPoint(t *testing.T, store storage.Store, source, metric string, age time.Duration, value any) {
	t.Helper()
	err := store.AppendPoint(context.Background(), storage.DataPoint{
		SessionID:    "collection_seed",
		Timestamp:    time.Now().UTC().Add(-age),
		Source:       source,
		Category:     "general",
		MetricName:   metric,
		Value:        value,
		QualityScore: 0.8,
	})
	if err != nil {
		t.Fatalf("AppendPoint error: %v", err)
	}
}

func TestAggregates(t *testing.T) {
	store := storage.NewMemoryStore()

	// Four in-window latency points plus one too old to count.
	seedPoint(t, store, "api", "latency_ms", 2*time.Hour, 500.0)
	seedPoint(t, store, "api", "latency_ms", 40*time.Minute, 100.0)
	seedPoint(t, store, "api", "latency_ms", 30*time.Minute, 300.0)
	seedPoint(t, store, "api", "latency_ms", 20*time.Minute, 200.0)
	seedPoint(t, store, "api", "latency_ms", 10*time.Minute, 400.0)

	// One point is below the two-sample floor.
	seedPoint(t, store, "api", "queue_depth", 5*time.Minute, 7.0)

	// Non-numeric values are skipped, leaving one numeric sample.
	seedPoint(t, store, "deploys", "version", 5*time.Minute, "v2.1.0x")
	seedPoint(t, store, "deploys", "version", 4*time.Minute, 3.0)

	aggregates, err := Aggregates(context.Background(), store, time.Hour)
	if err != nil {
		t.Fatalf("Aggregates error: %v", err)
	}

	if len(aggregates) != 1 {
		t.Fatalf("expected 1 aggregate, got %d: %+v", len(aggregates), aggregates)
	}

	agg := aggregates[0]
	if agg.Source != "api" || agg.MetricName != "latency_ms" {
		t.Errorf("aggregate for %s/%s, want api/latency_ms", agg.Source, agg.MetricName)
	}
	if agg.WindowSeconds != 3600 {
		t.Errorf("WindowSeconds = %d, want 3600", agg.WindowSeconds)
	}
	if agg.Count != 4 {
		t.Errorf("Count = %d, want 4 (the 2h-old point is outside the window)", agg.Count)
	}
	// avg = (100+300+200+400)/4 = 250
	if !almostEqual(agg.Avg, 250) {
		t.Errorf("Avg = %f, want 250", agg.Avg)
	}
	if agg.Min != 100 || agg.Max != 400 {
		t.Errorf("min/max = %f/%f, want 100/400", agg.Min, agg.Max)
	}
	// median of [100, 200, 300, 400] = (200+300)/2 = 250
	if !almostEqual(agg.Median, 250) {
		t.Errorf("Median = %f, want 250", agg.Median)
	}
}

func TestAggregates_InvalidWindow(t *testing.T) {
	store := storage.NewMemoryStore()
	if _, err := Aggregates(context.Background(), store, 0); err == nil {
		t.Error("expected error for zero window")
	}
	if _, err := Aggregates(context.Background(), store, -time.Hour); err == nil {
		t.Error("expected error for negative window")
	}
}

func TestMedian(t *testing.T) {
	tests := []struct {
		name     string
		values   []float64
		expected float64
	}{
		{"odd count", []float64{3, 1, 2}, 2},
		{"even count", []float64{4, 1, 3, 2}, 2.5},
		{"single", []float64{9}, 9},
		{"outlier resistant", []float64{10, 12, 11, 13, 50, 9, 11}, 11},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := median(tt.values); got != tt.expected {
				t.Errorf("median(%v) = %f, want %f", tt.values, got, tt.expected)
			}
		})
	}
}
