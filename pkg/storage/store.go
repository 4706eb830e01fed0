// Package storage defines the pipeline's persisted records and the Store
// interface over them. Two implementations are provided: an in-memory store
// for single-process runs and tests, and a Redis-backed store for durability
// across restarts.
//
// All records are append-only and carry the owning session's id; the only
// update-in-place is a Session being finalized (end time, status, final
// counters) and a Baseline being recomputed.
package storage

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a requested session or baseline does not
// exist. Check with errors.Is.
var ErrNotFound = errors.New("not found")

// Store persists the pipeline's records. Implementations must be safe for
// concurrent use; a coarse per-store lock is sufficient.
type Store interface {
	// AppendPoint stores one data point. Points for the same
	// (source, metric) stream are kept in arrival order.
	AppendPoint(ctx context.Context, p DataPoint) error
	// PointsSince returns the stream's points with Timestamp >= since,
	// oldest first.
	PointsSince(ctx context.Context, source, metric string, since time.Time) ([]DataPoint, error)
	// MetricKeys lists every (source, metric) stream with stored points.
	MetricKeys(ctx context.Context) ([]MetricKey, error)

	// PutSession writes a session. Called once when a session starts and
	// once when it is finalized; the second write overwrites the first.
	PutSession(ctx context.Context, s Session) error
	// GetSession returns the session with the given id, or ErrNotFound.
	GetSession(ctx context.Context, id string) (Session, error)
	// ListSessions returns sessions of the given kind in creation order;
	// an empty kind returns all sessions.
	ListSessions(ctx context.Context, kind SessionKind) ([]Session, error)

	// PutBaseline stores the live baseline for its (source, metric) pair,
	// replacing any previous one.
	PutBaseline(ctx context.Context, b Baseline) error
	// GetBaseline returns the live baseline for the pair, or ErrNotFound.
	GetBaseline(ctx context.Context, source, metric string) (Baseline, error)

	AppendPerformanceRecord(ctx context.Context, r PerformanceRecord) error
	// PerformanceRecords returns an analysis session's records in append
	// order.
	PerformanceRecords(ctx context.Context, sessionID string) ([]PerformanceRecord, error)

	AppendOpportunity(ctx context.Context, o Opportunity) error
	// Opportunities returns a session's opportunities in append order,
	// which is the ranked order the recommendation stage emitted.
	Opportunities(ctx context.Context, sessionID string) ([]Opportunity, error)

	AppendScalingOperation(ctx context.Context, op ScalingOperation) error
	// ScalingOperations returns a scaling session's operations in append
	// order.
	ScalingOperations(ctx context.Context, sessionID string) ([]ScalingOperation, error)
}

// MetricType tags a metric with the semantics its score should follow.
// Sources declare the type at registration; InferMetricType exists only as a
// fallback for untagged records.
type MetricType string

const (
	// MetricError marks rates and counts where lower is better.
	MetricError MetricType = "error"
	// MetricUtilization marks 0-100 percentage metrics scored against a
	// target level rather than a direction.
	MetricUtilization MetricType = "utilization"
	// MetricGeneric marks throughput-like metrics where higher is better.
	MetricGeneric MetricType = "generic"
)

// InferMetricType guesses a metric's type from its name. This is the legacy
// substring heuristic kept for records whose source did not declare a type;
// prefer tagging sources explicitly.
func InferMetricType(name string) MetricType {
	n := strings.ToLower(name)
	switch {
	case strings.Contains(n, "error") || strings.Contains(n, "failure"):
		return MetricError
	case strings.Contains(n, "usage") || strings.Contains(n, "utilization") || strings.Contains(n, "percent"):
		return MetricUtilization
	default:
		return MetricGeneric
	}
}

// DataPoint is a single normalized, quality-scored observation of a metric.
// Immutable once stored; created only by the collector.
type DataPoint struct {
	SessionID    string         `json:"session_id"`
	Timestamp    time.Time      `json:"timestamp"`
	Source       string         `json:"source"`
	Category     string         `json:"category"`
	MetricName   string         `json:"metric_name"`
	Value        any            `json:"metric_value"`
	Type         MetricType     `json:"metric_type,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	QualityScore float64        `json:"quality_score"`
}

// Float returns the point's value as a float64. Booleans map to 0/1 and
// numeric strings are parsed; ok is false for anything that cannot be read
// as a number, and such points are skipped by the analytics stages.
func (p DataPoint) Float() (float64, bool) {
	return ToFloat(p.Value)
}

// ToFloat coerces a primitive value to float64.
func ToFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint:
		return float64(x), true
	case uint32:
		return float64(x), true
	case uint64:
		return float64(x), true
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	case string:
		f, err := strconv.ParseFloat(x, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// SessionKind names the pipeline stage a session belongs to.
type SessionKind string

const (
	SessionCollection SessionKind = "collection"
	SessionAnalysis   SessionKind = "analysis"
	SessionScaling    SessionKind = "scaling"
)

// SessionStatus is the lifecycle state of a session.
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
)

// Session is the bounded-lifetime context owning one pipeline run. Counters
// grow monotonically in memory while the session is active; the stored copy
// is written once at creation and once at finalization.
type Session struct {
	ID        string        `json:"id"`
	Kind      SessionKind   `json:"kind"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time,omitzero"`
	Status    SessionStatus `json:"status"`
	Counters  Counters      `json:"counters"`
}

// Counters holds the per-stage tallies a session accumulates. Only the
// fields relevant to the session's kind are populated.
type Counters struct {
	PointsCollected      int      `json:"points_collected,omitempty"`
	PointsRejected       int      `json:"points_rejected,omitempty"`
	Sources              []string `json:"data_sources,omitempty"`
	Categories           []string `json:"categories_processed,omitempty"`
	MetricsAnalyzed      int      `json:"metrics_analyzed,omitempty"`
	Opportunities        int      `json:"opportunities,omitempty"`
	TotalOperations      int      `json:"total_operations,omitempty"`
	SuccessfulOperations int      `json:"successful_operations,omitempty"`
	FailedOperations     int      `json:"failed_operations,omitempty"`
}

// NoteSource records a source name on the session, deduplicated.
func (c *Counters) NoteSource(name string) {
	c.Sources = appendUnique(c.Sources, name)
}

// NoteCategory records a category on the session, deduplicated.
func (c *Counters) NoteCategory(name string) {
	c.Categories = appendUnique(c.Categories, name)
}

func appendUnique(list []string, v string) []string {
	for _, s := range list {
		if s == v {
			return list
		}
	}
	return append(list, v)
}

// NewSession returns an active session of the given kind with a fresh id.
func NewSession(kind SessionKind, now time.Time) Session {
	return Session{
		ID:        string(kind) + "_" + uuid.NewString(),
		Kind:      kind,
		StartTime: now,
		Status:    SessionActive,
	}
}

// Finish marks the session completed. The caller persists the result.
func (s *Session) Finish(now time.Time) {
	s.EndTime = now
	s.Status = SessionCompleted
}

// Baseline is the robust reference value for one (source, metric) pair.
// Baselines are scoped to the pair so that two sources emitting the same
// metric name never share a reference value.
type Baseline struct {
	Source      string    `json:"source"`
	MetricName  string    `json:"metric_name"`
	Value       float64   `json:"value"`
	Method      string    `json:"method"`
	SampleCount int       `json:"sample_count"`
	Confidence  float64   `json:"confidence"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Stats summarizes the sample a performance record was computed from.
type Stats struct {
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	StdDev float64 `json:"stdev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// PerformanceRecord is one scored, trend-classified metric within an
// analysis session.
type PerformanceRecord struct {
	SessionID       string     `json:"session_id"`
	Source          string     `json:"source"`
	MetricName      string     `json:"metric_name"`
	MetricType      MetricType `json:"metric_type"`
	CurrentValue    float64    `json:"current_value"`
	BaselineValue   float64    `json:"baseline_value"`
	Score           float64    `json:"score"`
	Trend           string     `json:"trend"`
	TrendSlope      float64    `json:"trend_slope"`
	TrendConfidence float64    `json:"trend_confidence"`
	Confidence      float64    `json:"confidence"`
	Stats           Stats      `json:"stats"`
	AnalyzedAt      time.Time  `json:"analyzed_at"`
}

// Opportunity kinds.
const (
	OpportunityPerformance = "performance_improvement"
	OpportunityTrend       = "trend_reversal"
	OpportunityVariability = "variability_reduction"
)

// Opportunity priorities.
const (
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"
)

// Opportunity is a ranked optimization suggestion derived from a low score
// or adverse trend.
type Opportunity struct {
	SessionID   string    `json:"session_id"`
	Source      string    `json:"source"`
	MetricName  string    `json:"metric_name"`
	Kind        string    `json:"kind"`
	Priority    string    `json:"priority"`
	Potential   float64   `json:"potential_improvement"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// Scaling operation statuses, in lifecycle order.
const (
	ScalingRequested = "requested"
	ScalingValidated = "validated"
	ScalingExecuting = "executing"
	ScalingSucceeded = "succeeded"
	ScalingFailed    = "failed"
)

// ScalingOperation records one capability scaling attempt and its outcome.
type ScalingOperation struct {
	ID                string             `json:"id"`
	SessionID         string             `json:"session_id"`
	CapabilityID      string             `json:"capability_id"`
	Status            string             `json:"status"`
	Success           bool               `json:"success"`
	PerformanceImpact float64            `json:"performance_impact"`
	ResourceUsage     map[string]float64 `json:"resource_usage,omitempty"`
	Method            string             `json:"method,omitempty"`
	Error             string             `json:"error,omitempty"`
	StartedAt         time.Time          `json:"started_at"`
	FinishedAt        time.Time          `json:"finished_at,omitzero"`
}

// NewOperationID returns a fresh scaling operation id for a capability.
func NewOperationID(capabilityID string) string {
	return "op_" + capabilityID + "_" + uuid.NewString()
}

// MetricKey identifies one stream of data points.
type MetricKey struct {
	Source string `json:"source"`
	Name   string `json:"name"`
}
