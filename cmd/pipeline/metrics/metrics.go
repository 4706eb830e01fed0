// Package metrics provides Prometheus instrumentation for the pipeline.
//
// One Metrics value serves all three stages; each stage consumes the subset
// of methods its own Metrics interface declares. All instruments are exposed
// via the /metrics HTTP endpoint for Prometheus scraping.
//
// Metrics exposed:
//   - metrial_points_collected_total: Counter of accepted data points by source
//   - metrial_points_rejected_total: Counter of rejected records by reason
//   - metrial_collect_tick_seconds: Histogram of collection tick duration
//   - metrial_analysis_run_seconds: Histogram of analysis pass duration
//   - metrial_metrics_analyzed_total: Counter of metric streams analyzed
//   - metrial_opportunities_total: Counter of opportunities by priority
//   - metrial_scaling_run_seconds: Histogram of scaling pass duration
//   - metrial_scaling_operations_total: Counter of scaling operations by status
//   - metrial_scaling_success_rate: Gauge of the latest session's success rate
//   - metrial_overall_score: Gauge of the latest overall performance score
//   - metrial_guard_denials_total: Counter of guard denials by stage
//   - metrial_errors_total: Counter of errors by component and reason
//
// All metrics carry the pipeline label.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the pipeline.
type Metrics struct {
	PointsCollected    *prometheus.CounterVec
	PointsRejected     *prometheus.CounterVec
	CollectTickSeconds prometheus.Histogram

	AnalysisRunSeconds prometheus.Histogram
	MetricsAnalyzed    prometheus.Counter
	Opportunities      *prometheus.CounterVec
	OverallScore       prometheus.Gauge

	ScalingRunSeconds  prometheus.Histogram
	ScalingOperations  *prometheus.CounterVec
	ScalingSuccessRate prometheus.Gauge

	GuardDenials *prometheus.CounterVec
	ErrorsTotal  *prometheus.CounterVec
}

// New creates and registers all Prometheus metrics.
func New(pipeline string) *Metrics {
	labels := prometheus.Labels{"pipeline": pipeline}

	return &Metrics{
		PointsCollected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name:        "metrial_points_collected_total",
			Help:        "Total data points accepted into storage",
			ConstLabels: labels,
		}, []string{"source"}),

		PointsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name:        "metrial_points_rejected_total",
			Help:        "Total records rejected by the consensus validator",
			ConstLabels: labels,
		}, []string{"reason"}),

		CollectTickSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:        "metrial_collect_tick_seconds",
			Help:        "Time spent per collection tick",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}),

		AnalysisRunSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:        "metrial_analysis_run_seconds",
			Help:        "Time spent per analysis pass",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}),

		MetricsAnalyzed: promauto.NewCounter(prometheus.CounterOpts{
			Name:        "metrial_metrics_analyzed_total",
			Help:        "Total metric streams analyzed",
			ConstLabels: labels,
		}),

		Opportunities: promauto.NewCounterVec(prometheus.CounterOpts{
			Name:        "metrial_opportunities_total",
			Help:        "Total optimization opportunities by priority",
			ConstLabels: labels,
		}, []string{"priority"}),

		OverallScore: promauto.NewGauge(prometheus.GaugeOpts{
			Name:        "metrial_overall_score",
			Help:        "Overall performance score from the latest analysis session",
			ConstLabels: labels,
		}),

		ScalingRunSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:        "metrial_scaling_run_seconds",
			Help:        "Time spent per scaling pass",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}),

		ScalingOperations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name:        "metrial_scaling_operations_total",
			Help:        "Total scaling operations by final status",
			ConstLabels: labels,
		}, []string{"status"}),

		ScalingSuccessRate: promauto.NewGauge(prometheus.GaugeOpts{
			Name:        "metrial_scaling_success_rate",
			Help:        "Success rate of the latest scaling session",
			ConstLabels: labels,
		}),

		GuardDenials: promauto.NewCounterVec(prometheus.CounterOpts{
			Name:        "metrial_guard_denials_total",
			Help:        "Total operation guard denials by stage",
			ConstLabels: labels,
		}, []string{"stage"}),

		ErrorsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name:        "metrial_errors_total",
			Help:        "Total errors by component and reason",
			ConstLabels: labels,
		}, []string{"component", "reason"}),
	}
}

// RecordPointCollected counts an accepted data point.
func (m *Metrics) RecordPointCollected(source string) {
	m.PointsCollected.WithLabelValues(source).Inc()
}

// RecordPointRejected counts a rejected record.
func (m *Metrics) RecordPointRejected(reason string) {
	m.PointsRejected.WithLabelValues(reason).Inc()
}

// RecordCollectTick records the duration of one collection tick.
func (m *Metrics) RecordCollectTick(seconds float64) {
	m.CollectTickSeconds.Observe(seconds)
}

// RecordAnalysisRun records the duration of one analysis pass.
func (m *Metrics) RecordAnalysisRun(seconds float64) {
	m.AnalysisRunSeconds.Observe(seconds)
}

// RecordMetricAnalyzed counts one analyzed metric stream.
func (m *Metrics) RecordMetricAnalyzed() {
	m.MetricsAnalyzed.Inc()
}

// RecordOpportunity counts a generated opportunity.
func (m *Metrics) RecordOpportunity(priority string) {
	m.Opportunities.WithLabelValues(priority).Inc()
}

// SetOverallScore publishes the latest overall performance score.
func (m *Metrics) SetOverallScore(score float64) {
	m.OverallScore.Set(score)
}

// RecordScalingRun records the duration of one scaling pass.
func (m *Metrics) RecordScalingRun(seconds float64) {
	m.ScalingRunSeconds.Observe(seconds)
}

// RecordScalingOperation counts a finished scaling operation.
func (m *Metrics) RecordScalingOperation(status string) {
	m.ScalingOperations.WithLabelValues(status).Inc()
}

// SetScalingSuccessRate publishes the latest scaling session's success rate.
func (m *Metrics) SetScalingSuccessRate(rate float64) {
	m.ScalingSuccessRate.Set(rate)
}

// RecordGuardDenial counts a guard denial.
func (m *Metrics) RecordGuardDenial(stage string) {
	m.GuardDenials.WithLabelValues(stage).Inc()
}

// RecordError increments the error counter.
func (m *Metrics) RecordError(component, reason string) {
	m.ErrorsTotal.WithLabelValues(component, reason).Inc()
}
