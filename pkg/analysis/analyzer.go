// Package analysis implements the performance analysis stage: robust
// baselines, trend classification, baseline-relative scoring, and ranked
// optimization opportunities, produced in one synchronous pass per analysis
// session.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/HatiCode/metrial/pkg/guard"
	"github.com/HatiCode/metrial/pkg/storage"
)

const (
	defaultAnalysisWindow = 24 * time.Hour
	defaultGuardDepth     = 20
	defaultGuardCooldown  = 300 * time.Millisecond
)

// Metrics receives analyzer instrumentation. The binary's Prometheus
// registry satisfies it; a nil Metrics disables instrumentation.
type Metrics interface {
	RecordAnalysisRun(seconds float64)
	RecordMetricAnalyzed()
	RecordOpportunity(priority string)
	RecordGuardDenial(stage string)
	RecordError(component, reason string)
	SetOverallScore(score float64)
}

// AnalyzerConfig holds the analyzer's tuning knobs. Zero values select
// defaults.
type AnalyzerConfig struct {
	// Window is how far back points are considered. Defaults to 24h.
	Window time.Duration
	// GuardDepth and GuardCooldown parameterize the stage's operation
	// guard. Default to 20 concurrent keys and a 300ms cooldown.
	GuardDepth    int
	GuardCooldown time.Duration
}

// Analyzer runs one analysis pass per call: every stored metric stream is
// scored against its baseline, trend-classified, and mined for
// opportunities.
type Analyzer struct {
	store     storage.Store
	baselines *BaselineEngine
	guard     *guard.Guard
	window    time.Duration
	logger    *slog.Logger
	metrics   Metrics
}

// NewAnalyzer creates an Analyzer reading and writing the given store.
func NewAnalyzer(store storage.Store, baselines *BaselineEngine, cfg AnalyzerConfig, logger *slog.Logger, metrics Metrics) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Window <= 0 {
		cfg.Window = defaultAnalysisWindow
	}
	if cfg.GuardDepth <= 0 {
		cfg.GuardDepth = defaultGuardDepth
	}
	if cfg.GuardCooldown <= 0 {
		cfg.GuardCooldown = defaultGuardCooldown
	}

	return &Analyzer{
		store:     store,
		baselines: baselines,
		guard:     guard.New(cfg.GuardDepth, cfg.GuardCooldown),
		window:    cfg.Window,
		logger:    logger,
		metrics:   metrics,
	}
}

// Report summarizes one analysis session.
type Report struct {
	SessionID       string   `json:"session_id"`
	MetricsAnalyzed int      `json:"metrics_analyzed"`
	OverallScore    float64  `json:"overall_score"`
	Grade           string   `json:"performance_grade"`
	Improving       []string `json:"improving,omitempty"`
	Declining       []string `json:"declining,omitempty"`
	Stable          []string `json:"stable,omitempty"`
	TrendScore      int      `json:"trend_score"`
	Opportunities   int      `json:"opportunities"`
}

// Run performs one full analysis pass and returns its report. Per-metric
// failures are logged and skipped; only session bookkeeping failures abort
// the pass.
func (a *Analyzer) Run(ctx context.Context) (Report, error) {
	start := time.Now()
	now := start.UTC()

	session := storage.NewSession(storage.SessionAnalysis, now)
	if err := a.store.PutSession(ctx, session); err != nil {
		if a.metrics != nil {
			a.metrics.RecordError("analyzer", "session_failed")
		}
		return Report{}, fmt.Errorf("start analysis session: %w", err)
	}
	a.logger.Info("analysis session started", "session", session.ID)

	keys, err := a.store.MetricKeys(ctx)
	if err != nil {
		if a.metrics != nil {
			a.metrics.RecordError("analyzer", "keys_failed")
		}
		return Report{}, fmt.Errorf("list metrics: %w", err)
	}

	var records []storage.PerformanceRecord
	var opportunities []storage.Opportunity

	for _, key := range keys {
		guardKey := "analyze:" + key.Source + ":" + key.Name
		ran := a.guard.Do(guardKey, func() {
			record, ok := a.analyzeMetric(ctx, session.ID, key, now)
			if !ok {
				return
			}
			records = append(records, record)
			opportunities = append(opportunities, Recommend(record, now)...)
		})
		if !ran {
			if a.metrics != nil {
				a.metrics.RecordGuardDenial("analyzer")
			}
			a.logger.Debug("metric skipped by guard", "source", key.Source, "metric", key.Name)
		}
	}

	// Persist opportunities in ranked order so readers get them back the
	// way the recommendation stage prioritized them.
	Rank(opportunities)
	for _, opp := range opportunities {
		if err := a.store.AppendOpportunity(ctx, opp); err != nil {
			if a.metrics != nil {
				a.metrics.RecordError("store", "append_failed")
			}
			a.logger.Error("failed to store opportunity",
				"source", opp.Source,
				"metric", opp.MetricName,
				"error", err,
			)
		}
		if a.metrics != nil {
			a.metrics.RecordOpportunity(opp.Priority)
		}
	}

	report := a.buildReport(session.ID, records, len(opportunities))

	session.Counters.MetricsAnalyzed = len(records)
	session.Counters.Opportunities = len(opportunities)
	session.Finish(time.Now().UTC())
	if err := a.store.PutSession(ctx, session); err != nil {
		if a.metrics != nil {
			a.metrics.RecordError("analyzer", "session_failed")
		}
		return Report{}, fmt.Errorf("finalize analysis session: %w", err)
	}

	duration := time.Since(start)
	if a.metrics != nil {
		a.metrics.RecordAnalysisRun(duration.Seconds())
		a.metrics.SetOverallScore(report.OverallScore)
	}

	a.logger.Info("analysis session finished",
		"session", session.ID,
		"metrics_analyzed", report.MetricsAnalyzed,
		"overall_score", report.OverallScore,
		"grade", report.Grade,
		"opportunities", report.Opportunities,
		"total_ms", duration.Milliseconds(),
	)

	return report, nil
}

// analyzeMetric scores one metric stream. Streams with no numeric points in
// the window are skipped; a missing baseline scores through the neutral
// zero-baseline path.
func (a *Analyzer) analyzeMetric(ctx context.Context, sessionID string, key storage.MetricKey, now time.Time) (storage.PerformanceRecord, bool) {
	points, err := a.store.PointsSince(ctx, key.Source, key.Name, now.Add(-a.window))
	if err != nil {
		if a.metrics != nil {
			a.metrics.RecordError("analyzer", "points_failed")
		}
		a.logger.Error("failed to read points", "source", key.Source, "metric", key.Name, "error", err)
		return storage.PerformanceRecord{}, false
	}

	values := make([]float64, 0, len(points))
	var latest storage.DataPoint
	for _, p := range points {
		v, ok := p.Float()
		if !ok {
			continue
		}
		values = append(values, v)
		latest = p
	}
	if len(values) == 0 {
		a.logger.Debug("no numeric points in window", "source", key.Source, "metric", key.Name)
		return storage.PerformanceRecord{}, false
	}

	baselineValue := 0.0
	baseline, err := a.baselines.Baseline(ctx, key.Source, key.Name)
	switch {
	case err == nil:
		baselineValue = baseline.Value
	case errors.Is(err, ErrInsufficientData):
		a.logger.Debug("baseline unavailable, scoring neutrally",
			"source", key.Source, "metric", key.Name, "error", err)
	default:
		if a.metrics != nil {
			a.metrics.RecordError("analyzer", "baseline_failed")
		}
		a.logger.Error("baseline lookup failed, scoring neutrally",
			"source", key.Source, "metric", key.Name, "error", err)
	}

	metricType := latest.Type
	if metricType == "" {
		metricType = storage.InferMetricType(key.Name)
	}

	stats := Describe(values)
	trend := Trend(values)
	current := values[len(values)-1]

	record := storage.PerformanceRecord{
		SessionID:       sessionID,
		Source:          key.Source,
		MetricName:      key.Name,
		MetricType:      metricType,
		CurrentValue:    current,
		BaselineValue:   baselineValue,
		Score:           Score(metricType, current, baselineValue),
		Trend:           trend.Direction,
		TrendSlope:      trend.Slope,
		TrendConfidence: trend.Confidence,
		Confidence:      Confidence(len(values), now.Sub(latest.Timestamp), CoefficientOfVariation(stats)),
		Stats:           stats,
		AnalyzedAt:      now,
	}

	if err := a.store.AppendPerformanceRecord(ctx, record); err != nil {
		if a.metrics != nil {
			a.metrics.RecordError("store", "append_failed")
		}
		a.logger.Error("failed to store performance record",
			"source", key.Source, "metric", key.Name, "error", err)
	}
	if a.metrics != nil {
		a.metrics.RecordMetricAnalyzed()
	}

	a.logger.Debug("metric analyzed",
		"source", key.Source,
		"metric", key.Name,
		"score", record.Score,
		"trend", record.Trend,
		"confidence", record.Confidence,
	)

	return record, true
}

func (a *Analyzer) buildReport(sessionID string, records []storage.PerformanceRecord, opportunities int) Report {
	report := Report{
		SessionID:       sessionID,
		MetricsAnalyzed: len(records),
		Opportunities:   opportunities,
	}

	sum := 0.0
	for _, r := range records {
		sum += r.Score
		name := r.Source + "/" + r.MetricName
		switch r.Trend {
		case TrendImproving:
			report.Improving = append(report.Improving, name)
			report.TrendScore++
		case TrendDeclining:
			report.Declining = append(report.Declining, name)
			report.TrendScore--
		case TrendStable:
			report.Stable = append(report.Stable, name)
		}
	}

	if len(records) > 0 {
		report.OverallScore = sum / float64(len(records))
	}
	report.Grade = performanceGrade(report.OverallScore)

	return report
}
