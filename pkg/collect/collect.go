// Package collect implements the metrics collection stage.
//
// A Collector polls a set of registered sources on a fixed interval:
//
//	poll source → normalize records → score quality → dual assessment → store
//
// Each raw record is normalized into a storage.DataPoint, given a quality
// score (caller-supplied, explicit on the record, or heuristic), and then
// judged by two independent assessors, one structural and one semantic, whose
// scores are combined by the consensus validator. Points that fail consensus
// are dropped and counted, never returned as errors; a collection session
// tracks the tallies for the run.
package collect

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/HatiCode/metrial/pkg/guard"
	"github.com/HatiCode/metrial/pkg/sources"
	"github.com/HatiCode/metrial/pkg/storage"
	"github.com/HatiCode/metrial/pkg/validate"
)

const (
	defaultInterval      = 10 * time.Second
	defaultMaxRecords    = 100
	defaultGuardDepth    = 15
	defaultGuardCooldown = 500 * time.Millisecond
)

// Metrics receives collector instrumentation. The binary's Prometheus
// registry satisfies it; a nil Metrics disables instrumentation.
type Metrics interface {
	RecordPointCollected(source string)
	RecordPointRejected(reason string)
	RecordCollectTick(seconds float64)
	RecordGuardDenial(stage string)
	RecordError(component, reason string)
}

// QualityFunc scores a normalized point's quality. Implementations should
// return values in [0, 1]; out-of-range scores cause the point to be
// rejected.
type QualityFunc func(p storage.DataPoint) float64

// Config holds the collector's tuning knobs. Zero values select defaults.
type Config struct {
	// Interval between collection ticks. Defaults to 10s.
	Interval time.Duration
	// MaxRecords caps how many records are kept per source per tick,
	// newest first. Defaults to 100.
	MaxRecords int
	// GuardDepth and GuardCooldown parameterize the stage's operation
	// guard. Default to 15 concurrent keys and a 500ms cooldown.
	GuardDepth    int
	GuardCooldown time.Duration
}

type registration struct {
	source  sources.Source
	types   map[string]storage.MetricType
	quality QualityFunc
}

// Option configures a single source registration.
type Option func(*registration)

// WithMetricTypes declares the metric type for each metric name the source
// emits. Undeclared names fall back to storage.InferMetricType.
func WithMetricTypes(types map[string]storage.MetricType) Option {
	return func(r *registration) { r.types = types }
}

// WithQuality overrides quality scoring for every point the source emits.
func WithQuality(fn QualityFunc) Option {
	return func(r *registration) { r.quality = fn }
}

// Collector polls registered sources and persists validated data points.
//
// Register all sources before calling Run; the Collector itself is driven by
// the single Run goroutine and is not safe for concurrent mutation. Finish is
// called once after Run returns.
type Collector struct {
	store      storage.Store
	guard      *guard.Guard
	validator  *validate.Validator
	interval   time.Duration
	maxRecords int
	logger     *slog.Logger
	metrics    Metrics

	regs     []*registration
	session  *storage.Session
	counters storage.Counters

	qualitySum   float64
	qualityMin   float64
	qualityMax   float64
	qualityCount int
}

// New creates a Collector writing to the given store.
func New(store storage.Store, cfg Config, logger *slog.Logger, metrics Metrics) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.MaxRecords <= 0 {
		cfg.MaxRecords = defaultMaxRecords
	}
	if cfg.GuardDepth <= 0 {
		cfg.GuardDepth = defaultGuardDepth
	}
	if cfg.GuardCooldown <= 0 {
		cfg.GuardCooldown = defaultGuardCooldown
	}

	return &Collector{
		store:      store,
		guard:      guard.New(cfg.GuardDepth, cfg.GuardCooldown),
		validator:  validate.NewValidator(),
		interval:   cfg.Interval,
		maxRecords: cfg.MaxRecords,
		logger:     logger,
		metrics:    metrics,
	}
}

// Register adds a source to the poll set.
func (c *Collector) Register(src sources.Source, opts ...Option) {
	reg := &registration{source: src}
	for _, opt := range opts {
		opt(reg)
	}
	c.regs = append(c.regs, reg)
}

// RegisterFunc adds an in-process source backed by a plain function.
func (c *Collector) RegisterFunc(name string, fn func() []sources.RawRecord, opts ...Option) {
	c.Register(sources.NewFuncSource(name, fn), opts...)
}

// Session returns a copy of the collection session, which is zero until the
// first tick.
func (c *Collector) Session() storage.Session {
	if c.session == nil {
		return storage.Session{}
	}
	s := *c.session
	s.Counters = c.counters
	return s
}

// Run executes the collection loop at the configured interval.
// Blocks until context is canceled.
func (c *Collector) Run(ctx context.Context) error {
	c.logger.Info("starting collection loop", "interval", c.interval, "sources", len(c.regs))

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	if err := c.Tick(ctx); err != nil {
		c.logger.Error("initial collection tick failed", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("collection loop stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := c.Tick(ctx); err != nil {
				c.logger.Error("collection tick failed", "error", err)
			}
		}
	}
}

// Tick performs one collection cycle over every registered source.
// Exported for testing purposes.
func (c *Collector) Tick(ctx context.Context) error {
	start := time.Now()

	if err := c.ensureSession(ctx); err != nil {
		if c.metrics != nil {
			c.metrics.RecordError("collector", "session_failed")
		}
		return fmt.Errorf("ensure session: %w", err)
	}

	collectedBefore := c.counters.PointsCollected
	rejectedBefore := c.counters.PointsRejected

	for _, reg := range c.regs {
		key := "collect:" + reg.source.Name()
		ran := c.guard.Do(key, func() {
			c.collectSource(ctx, reg)
		})
		if !ran {
			if c.metrics != nil {
				c.metrics.RecordGuardDenial("collector")
			}
			c.logger.Debug("source skipped by guard", "source", reg.source.Name())
		}
	}

	duration := time.Since(start)
	if c.metrics != nil {
		c.metrics.RecordCollectTick(duration.Seconds())
	}

	c.logger.Info("collection tick complete",
		"session", c.session.ID,
		"sources", len(c.regs),
		"collected", c.counters.PointsCollected-collectedBefore,
		"rejected", c.counters.PointsRejected-rejectedBefore,
		"total_ms", duration.Milliseconds(),
	)

	return nil
}

// collectSource polls one source and validates and stores what it returned.
// Source failures and rejected points are logged and counted, never
// propagated.
func (c *Collector) collectSource(ctx context.Context, reg *registration) {
	name := reg.source.Name()

	records, err := reg.source.Collect(ctx)
	if err != nil {
		if c.metrics != nil {
			c.metrics.RecordError("collector", "source_failed")
		}
		c.logger.Warn("source collect failed", "source", name, "error", err)
		return
	}

	// Keep only the newest records when a source over-produces. Sources
	// return oldest first, so the tail is the newest.
	if len(records) > c.maxRecords {
		records = records[len(records)-c.maxRecords:]
	}

	now := time.Now().UTC()
	for _, raw := range records {
		point, structural, semantic := c.normalize(reg, raw, now)

		verdict := c.validator.Combine(validate.ScoreIssues(structural), validate.ScoreIssues(semantic))
		if !verdict.Accepted() {
			c.counters.PointsRejected++
			reason := "semantic"
			if len(structural) > 0 {
				reason = "structural"
			}
			if c.metrics != nil {
				c.metrics.RecordPointRejected(reason)
			}
			c.logger.Debug("point rejected",
				"source", point.Source,
				"metric", point.MetricName,
				"consensus", verdict.Consensus,
				"issues", strings.Join(verdict.Issues, "; "),
			)
			continue
		}

		c.counters.PointsCollected++
		c.counters.NoteSource(point.Source)
		c.counters.NoteCategory(point.Category)
		c.recordQuality(point.QualityScore)
		if c.metrics != nil {
			c.metrics.RecordPointCollected(point.Source)
		}

		if err := c.store.AppendPoint(ctx, point); err != nil {
			if c.metrics != nil {
				c.metrics.RecordError("store", "append_failed")
			}
			c.logger.Error("failed to store point",
				"source", point.Source,
				"metric", point.MetricName,
				"error", err,
			)
		}
	}
}

// normalize converts a raw record into a DataPoint and reports structural
// issues (required fields) and semantic issues (value type, timestamp,
// quality range) for the two assessors.
func (c *Collector) normalize(reg *registration, raw sources.RawRecord, now time.Time) (storage.DataPoint, []string, []string) {
	var structural, semantic []string

	p := storage.DataPoint{
		SessionID: c.session.ID,
		Timestamp: now,
		Source:    reg.source.Name(),
		Category:  "general",
	}

	if s, ok := raw["source"].(string); ok && s != "" {
		p.Source = s
	}
	if s, ok := raw["category"].(string); ok && s != "" {
		p.Category = s
	}

	if s, ok := raw["metric_name"].(string); ok && s != "" {
		p.MetricName = s
	} else {
		structural = append(structural, "missing metric_name")
	}

	if v, ok := raw["metric_value"]; ok && v != nil {
		p.Value = v
		switch v.(type) {
		case float64, float32, int, int32, int64, uint, uint32, uint64, bool, string:
		default:
			semantic = append(semantic, fmt.Sprintf("unsupported value type %T", v))
		}
	} else {
		structural = append(structural, "missing metric_value")
	}

	if ts, ok := raw["timestamp"]; ok {
		switch t := ts.(type) {
		case string:
			parsed, err := time.Parse(time.RFC3339, t)
			if err != nil {
				semantic = append(semantic, fmt.Sprintf("timestamp %q does not parse", t))
			} else {
				p.Timestamp = parsed
			}
		case time.Time:
			p.Timestamp = t
		default:
			semantic = append(semantic, fmt.Sprintf("timestamp has unsupported type %T", ts))
		}
	}

	for k, v := range raw {
		switch k {
		case "source", "category", "metric_name", "metric_value", "timestamp", "quality_score":
		default:
			if p.Metadata == nil {
				p.Metadata = make(map[string]any)
			}
			p.Metadata[k] = v
		}
	}

	if t, ok := reg.types[p.MetricName]; ok {
		p.Type = t
	} else {
		p.Type = storage.InferMetricType(p.MetricName)
	}

	switch {
	case hasKey(raw, "quality_score"):
		q, ok := storage.ToFloat(raw["quality_score"])
		if !ok {
			semantic = append(semantic, "quality_score is not numeric")
		}
		p.QualityScore = q
	case reg.quality != nil:
		p.QualityScore = reg.quality(p)
	default:
		p.QualityScore = defaultQuality(p)
	}

	if p.QualityScore < 0 || p.QualityScore > 1 {
		semantic = append(semantic, fmt.Sprintf("quality_score %.2f outside [0, 1]", p.QualityScore))
	}

	return p, structural, semantic
}

func hasKey(raw sources.RawRecord, key string) bool {
	_, ok := raw[key]
	return ok
}

func (c *Collector) ensureSession(ctx context.Context) error {
	if c.session != nil {
		return nil
	}

	s := storage.NewSession(storage.SessionCollection, time.Now().UTC())
	if err := c.store.PutSession(ctx, s); err != nil {
		return err
	}

	c.session = &s
	c.logger.Info("collection session started", "session", s.ID)
	return nil
}

func (c *Collector) recordQuality(q float64) {
	if c.qualityCount == 0 || q < c.qualityMin {
		c.qualityMin = q
	}
	if c.qualityCount == 0 || q > c.qualityMax {
		c.qualityMax = q
	}
	c.qualitySum += q
	c.qualityCount++
}

// Summary reports a finished collection session.
type Summary struct {
	SessionID       string   `json:"session_id"`
	PointsCollected int      `json:"points_collected"`
	PointsRejected  int      `json:"points_rejected"`
	Sources         []string `json:"data_sources"`
	Categories      []string `json:"categories_processed"`
	QualityAvg      float64  `json:"quality_avg"`
	QualityMin      float64  `json:"quality_min"`
	QualityMax      float64  `json:"quality_max"`
	Grade           string   `json:"quality_grade"`
}

// Finish finalizes the collection session and returns its summary. Call once
// after Run has returned; the context should outlive the one that stopped
// the loop.
func (c *Collector) Finish(ctx context.Context) (Summary, error) {
	if c.session == nil {
		return Summary{}, fmt.Errorf("collection has not started")
	}

	c.session.Counters = c.counters
	c.session.Finish(time.Now().UTC())
	if err := c.store.PutSession(ctx, *c.session); err != nil {
		return Summary{}, fmt.Errorf("finalize session: %w", err)
	}

	avg := 0.0
	if c.qualityCount > 0 {
		avg = c.qualitySum / float64(c.qualityCount)
	}

	summary := Summary{
		SessionID:       c.session.ID,
		PointsCollected: c.counters.PointsCollected,
		PointsRejected:  c.counters.PointsRejected,
		Sources:         c.counters.Sources,
		Categories:      c.counters.Categories,
		QualityAvg:      avg,
		QualityMin:      c.qualityMin,
		QualityMax:      c.qualityMax,
		Grade:           qualityGrade(avg),
	}

	c.logger.Info("collection session finished",
		"session", summary.SessionID,
		"collected", summary.PointsCollected,
		"rejected", summary.PointsRejected,
		"quality_avg", summary.QualityAvg,
		"grade", summary.Grade,
	)

	return summary, nil
}
