package collect

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/HatiCode/metrial/pkg/sources"
	"github.com/HatiCode/metrial/pkg/storage"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

type testMetrics struct {
	collected int
	rejected  map[string]int
	ticks     int
	denials   int
	errors    map[string]int
}

func newTestMetrics() *testMetrics {
	return &testMetrics{
		rejected: make(map[string]int),
		errors:   make(map[string]int),
	}
}

func (m *testMetrics) RecordPointCollected(source string) { m.collected++ }
func (m *testMetrics) RecordPointRejected(reason string)  { m.rejected[reason]++ }
func (m *testMetrics) RecordCollectTick(seconds float64)  { m.ticks++ }
func (m *testMetrics) RecordGuardDenial(stage string)     { m.denials++ }
func (m *testMetrics) RecordError(component, reason string) {
	m.errors[component+":"+reason]++
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type failingSource struct{}

func (failingSource) Name() string { return "broken" }
func (failingSource) Collect(ctx context.Context) ([]sources.RawRecord, error) {
	return nil, errors.New("connection refused")
}

func TestCollector_TickCollectsAndStores(t *testing.T) {
	store := storage.NewMemoryStore()
	m := newTestMetrics()
	c := New(store, Config{}, testLogger(), m)

	c.RegisterFunc("api", func() []sources.RawRecord {
		return []sources.RawRecord{
			{
				"source":       "api",
				"category":     "application",
				"metric_name":  "error_rate",
				"metric_value": 0.1,
				"timestamp":    "2026-02-01T10:00:00Z",
			},
			{
				"metric_name":  "request_throughput",
				"metric_value": 500.0,
				"region":       "eu-west-1",
			},
		}
	}, WithMetricTypes(map[string]storage.MetricType{
		"error_rate": storage.MetricError,
	}))

	if err := c.Tick(context.Background()); err != nil {
		t.Fatalf("Tick error: %v", err)
	}

	session := c.Session()
	if session.Kind != storage.SessionCollection {
		t.Errorf("session kind = %s, want collection", session.Kind)
	}
	if session.Status != storage.SessionActive {
		t.Errorf("session status = %s, want active", session.Status)
	}
	if session.Counters.PointsCollected != 2 {
		t.Errorf("PointsCollected = %d, want 2", session.Counters.PointsCollected)
	}
	if session.Counters.PointsRejected != 0 {
		t.Errorf("PointsRejected = %d, want 0", session.Counters.PointsRejected)
	}
	if !reflect.DeepEqual(session.Counters.Sources, []string{"api"}) {
		t.Errorf("Sources = %v, want [api]", session.Counters.Sources)
	}
	// Second record had no category, so the default joins the explicit one.
	if !reflect.DeepEqual(session.Counters.Categories, []string{"application", "general"}) {
		t.Errorf("Categories = %v, want [application general]", session.Counters.Categories)
	}

	points, err := store.PointsSince(context.Background(), "api", "error_rate", time.Time{})
	if err != nil {
		t.Fatalf("PointsSince error: %v", err)
	}
	if len(points) != 1 {
		t.Fatalf("expected 1 error_rate point, got %d", len(points))
	}
	p := points[0]
	if p.SessionID != session.ID {
		t.Errorf("SessionID = %s, want %s", p.SessionID, session.ID)
	}
	if p.Type != storage.MetricError {
		t.Errorf("Type = %s, want error (declared at registration)", p.Type)
	}
	// Error-rate quality: 1 - 0.1 = 0.9
	if !almostEqual(p.QualityScore, 0.9) {
		t.Errorf("QualityScore = %f, want 0.9", p.QualityScore)
	}
	if !p.Timestamp.Equal(time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("Timestamp = %v, want parsed record timestamp", p.Timestamp)
	}

	points, err = store.PointsSince(context.Background(), "api", "request_throughput", time.Time{})
	if err != nil {
		t.Fatalf("PointsSince error: %v", err)
	}
	if len(points) != 1 {
		t.Fatalf("expected 1 throughput point, got %d", len(points))
	}
	p = points[0]
	// Undeclared name falls back to inference: "request_throughput" is generic.
	if p.Type != storage.MetricGeneric {
		t.Errorf("Type = %s, want generic", p.Type)
	}
	if p.Category != "general" {
		t.Errorf("Category = %s, want general default", p.Category)
	}
	// Throughput quality: min(500/1000, 1) = 0.5
	if !almostEqual(p.QualityScore, 0.5) {
		t.Errorf("QualityScore = %f, want 0.5", p.QualityScore)
	}
	if p.Metadata["region"] != "eu-west-1" {
		t.Errorf("Metadata = %v, want region carried over", p.Metadata)
	}

	if m.collected != 2 {
		t.Errorf("metrics collected = %d, want 2", m.collected)
	}
	if m.ticks != 1 {
		t.Errorf("metrics ticks = %d, want 1", m.ticks)
	}
}

func TestCollector_RejectsOutOfRangeQuality(t *testing.T) {
	tests := []struct {
		name     string
		quality  any
		accepted bool
	}{
		{"above range", 1.5, false},
		{"below range", -0.1, false},
		{"lower bound", 0.0, true},
		{"upper bound", 1.0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := storage.NewMemoryStore()
			m := newTestMetrics()
			c := New(store, Config{}, testLogger(), m)
			c.RegisterFunc("probe", func() []sources.RawRecord {
				return []sources.RawRecord{
					{
						"metric_name":   "queue_depth",
						"metric_value":  12,
						"quality_score": tt.quality,
					},
				}
			})

			if err := c.Tick(context.Background()); err != nil {
				t.Fatalf("Tick error: %v", err)
			}

			counters := c.Session().Counters
			if tt.accepted {
				if counters.PointsCollected != 1 || counters.PointsRejected != 0 {
					t.Errorf("collected=%d rejected=%d, want 1/0", counters.PointsCollected, counters.PointsRejected)
				}
			} else {
				if counters.PointsCollected != 0 || counters.PointsRejected != 1 {
					t.Errorf("collected=%d rejected=%d, want 0/1", counters.PointsCollected, counters.PointsRejected)
				}
				if m.rejected["semantic"] != 1 {
					t.Errorf("semantic rejections = %d, want 1", m.rejected["semantic"])
				}
			}
		})
	}
}

func TestCollector_RejectsMalformedRecords(t *testing.T) {
	tests := []struct {
		name   string
		record sources.RawRecord
		reason string
	}{
		{
			"missing metric_name",
			sources.RawRecord{"metric_value": 1.0},
			"structural",
		},
		{
			"missing metric_value",
			sources.RawRecord{"metric_name": "latency"},
			"structural",
		},
		{
			"unsupported value type",
			sources.RawRecord{"metric_name": "latency", "metric_value": map[string]any{"p99": 3}},
			"semantic",
		},
		{
			"unparseable timestamp",
			sources.RawRecord{"metric_name": "latency", "metric_value": 1.0, "timestamp": "yesterday"},
			"semantic",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := storage.NewMemoryStore()
			m := newTestMetrics()
			c := New(store, Config{}, testLogger(), m)
			c.RegisterFunc("probe", func() []sources.RawRecord {
				return []sources.RawRecord{tt.record}
			})

			if err := c.Tick(context.Background()); err != nil {
				t.Fatalf("Tick error: %v", err)
			}

			counters := c.Session().Counters
			if counters.PointsRejected != 1 {
				t.Fatalf("PointsRejected = %d, want 1", counters.PointsRejected)
			}
			if counters.PointsCollected != 0 {
				t.Errorf("PointsCollected = %d, want 0", counters.PointsCollected)
			}
			if m.rejected[tt.reason] != 1 {
				t.Errorf("rejections[%s] = %d, want 1 (all: %v)", tt.reason, m.rejected[tt.reason], m.rejected)
			}
			if store.PointCount() != 0 {
				t.Errorf("store has %d points, want 0", store.PointCount())
			}
		})
	}
}

func TestCollector_MaxRecordsKeepsNewest(t *testing.T) {
	store := storage.NewMemoryStore()
	c := New(store, Config{MaxRecords: 2}, testLogger(), nil)
	c.RegisterFunc("burst", func() []sources.RawRecord {
		var records []sources.RawRecord
		for i := 1; i <= 5; i++ {
			records = append(records, sources.RawRecord{
				"metric_name":  "batch_size",
				"metric_value": i,
			})
		}
		return records
	})

	if err := c.Tick(context.Background()); err != nil {
		t.Fatalf("Tick error: %v", err)
	}

	points, err := store.PointsSince(context.Background(), "burst", "batch_size", time.Time{})
	if err != nil {
		t.Fatalf("PointsSince error: %v", err)
	}
	if len(points) != 2 {
		t.Fatalf("expected 2 points after cap, got %d", len(points))
	}
	// Sources emit oldest first, so the cap keeps values 4 and 5.
	if points[0].Value != 4 || points[1].Value != 5 {
		t.Errorf("kept values %v and %v, want 4 and 5", points[0].Value, points[1].Value)
	}
}

func TestCollector_GuardCooldownSkipsSource(t *testing.T) {
	store := storage.NewMemoryStore()
	m := newTestMetrics()
	c := New(store, Config{GuardCooldown: time.Hour}, testLogger(), m)
	c.RegisterFunc("probe", func() []sources.RawRecord {
		return []sources.RawRecord{{"metric_name": "heartbeat", "metric_value": 1}}
	})

	if err := c.Tick(context.Background()); err != nil {
		t.Fatalf("first Tick error: %v", err)
	}
	if err := c.Tick(context.Background()); err != nil {
		t.Fatalf("second Tick error: %v", err)
	}

	// Second tick lands inside the 1h cooldown, so the source is skipped.
	if got := c.Session().Counters.PointsCollected; got != 1 {
		t.Errorf("PointsCollected = %d, want 1", got)
	}
	if m.denials != 1 {
		t.Errorf("guard denials = %d, want 1", m.denials)
	}
}

func TestCollector_SourceErrorTolerated(t *testing.T) {
	store := storage.NewMemoryStore()
	m := newTestMetrics()
	c := New(store, Config{}, testLogger(), m)
	c.Register(failingSource{})
	c.RegisterFunc("healthy", func() []sources.RawRecord {
		return []sources.RawRecord{{"metric_name": "jobs_done", "metric_value": 3}}
	})

	if err := c.Tick(context.Background()); err != nil {
		t.Fatalf("Tick error: %v", err)
	}

	if got := c.Session().Counters.PointsCollected; got != 1 {
		t.Errorf("PointsCollected = %d, want 1 from the healthy source", got)
	}
	if m.errors["collector:source_failed"] != 1 {
		t.Errorf("source_failed errors = %d, want 1", m.errors["collector:source_failed"])
	}
}

func TestCollector_CustomQuality(t *testing.T) {
	store := storage.NewMemoryStore()
	c := New(store, Config{}, testLogger(), nil)
	c.RegisterFunc("scored", func() []sources.RawRecord {
		return []sources.RawRecord{{"metric_name": "custom_metric", "metric_value": 7.0}}
	}, WithQuality(func(p storage.DataPoint) float64 {
		return 0.93
	}))

	if err := c.Tick(context.Background()); err != nil {
		t.Fatalf("Tick error: %v", err)
	}

	points, err := store.PointsSince(context.Background(), "scored", "custom_metric", time.Time{})
	if err != nil {
		t.Fatalf("PointsSince error: %v", err)
	}
	if len(points) != 1 {
		t.Fatalf("expected 1 point, got %d", len(points))
	}
	if points[0].QualityScore != 0.93 {
		t.Errorf("QualityScore = %f, want 0.93", points[0].QualityScore)
	}
}

func TestCollector_Finish(t *testing.T) {
	store := storage.NewMemoryStore()
	c := New(store, Config{}, testLogger(), nil)
	c.RegisterFunc("api", func() []sources.RawRecord {
		return []sources.RawRecord{
			// Utilization quality: 1 - (40/100)*0.3 = 0.88
			{"metric_name": "cpu_usage_percent", "metric_value": 40.0, "category": "resources"},
			// Error-rate quality: 1 - 0.02 = 0.98
			{"metric_name": "error_rate", "metric_value": 0.02},
			// Rejected: no value.
			{"metric_name": "broken"},
		}
	})

	if err := c.Tick(context.Background()); err != nil {
		t.Fatalf("Tick error: %v", err)
	}

	summary, err := c.Finish(context.Background())
	if err != nil {
		t.Fatalf("Finish error: %v", err)
	}

	if summary.PointsCollected != 2 || summary.PointsRejected != 1 {
		t.Errorf("collected=%d rejected=%d, want 2/1", summary.PointsCollected, summary.PointsRejected)
	}
	// avg = (0.88 + 0.98) / 2 = 0.93 → A+
	if !almostEqual(summary.QualityAvg, 0.93) {
		t.Errorf("QualityAvg = %f, want 0.93", summary.QualityAvg)
	}
	if !almostEqual(summary.QualityMin, 0.88) || !almostEqual(summary.QualityMax, 0.98) {
		t.Errorf("quality min/max = %f/%f, want 0.88/0.98", summary.QualityMin, summary.QualityMax)
	}
	if summary.Grade != "A+" {
		t.Errorf("Grade = %s, want A+", summary.Grade)
	}

	stored, err := store.GetSession(context.Background(), summary.SessionID)
	if err != nil {
		t.Fatalf("GetSession error: %v", err)
	}
	if stored.Status != storage.SessionCompleted {
		t.Errorf("stored status = %s, want completed", stored.Status)
	}
	if stored.EndTime.IsZero() {
		t.Error("stored session has no end time")
	}
	if stored.Counters.PointsCollected != 2 {
		t.Errorf("stored PointsCollected = %d, want 2", stored.Counters.PointsCollected)
	}
}

func TestCollector_FinishBeforeStart(t *testing.T) {
	c := New(storage.NewMemoryStore(), Config{}, testLogger(), nil)
	if _, err := c.Finish(context.Background()); err == nil {
		t.Error("expected error finishing before any tick")
	}
}

func TestCollector_RunStopsOnCancel(t *testing.T) {
	store := storage.NewMemoryStore()
	c := New(store, Config{Interval: 10 * time.Millisecond}, testLogger(), nil)
	c.RegisterFunc("probe", func() []sources.RawRecord {
		return []sources.RawRecord{{"metric_name": "heartbeat", "metric_value": 1}}
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancellation")
	}

	if store.PointCount() == 0 {
		t.Error("expected at least one point collected before cancellation")
	}
}
