package scaling

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/HatiCode/metrial/pkg/guard"
	"github.com/HatiCode/metrial/pkg/storage"
	"github.com/HatiCode/metrial/pkg/validate"
)

const (
	defaultGuardDepth    = 25
	defaultGuardCooldown = 200 * time.Millisecond

	// withinLimitsPct is the per-resource usage percentage under which a
	// resource counts as comfortably budgeted in reports.
	withinLimitsPct = 85
)

// Metrics receives scaler instrumentation. The binary's Prometheus registry
// satisfies it; a nil Metrics disables instrumentation.
type Metrics interface {
	RecordScalingRun(seconds float64)
	RecordScalingOperation(status string)
	SetScalingSuccessRate(rate float64)
	RecordGuardDenial(stage string)
	RecordError(component, reason string)
}

// ScalerConfig holds the scaler's tuning knobs. Zero values select
// defaults.
type ScalerConfig struct {
	// Threshold is the resource budget passed to strategy execution.
	// Defaults to 0.85.
	Threshold float64
	// GuardDepth and GuardCooldown parameterize the stage's operation
	// guard. Default to 25 concurrent keys and a 200ms cooldown.
	GuardDepth    int
	GuardCooldown time.Duration
}

// Scaler executes scaling plans: each capability is validated, run through
// its strategy, result-checked, and recorded as a scaling operation.
type Scaler struct {
	store     storage.Store
	guard     *guard.Guard
	validator *validate.Validator
	threshold float64
	logger    *slog.Logger
	metrics   Metrics
}

// NewScaler creates a Scaler recording operations in the given store.
func NewScaler(store storage.Store, cfg ScalerConfig, logger *slog.Logger, metrics Metrics) *Scaler {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = defaultThreshold
	}
	if cfg.GuardDepth <= 0 {
		cfg.GuardDepth = defaultGuardDepth
	}
	if cfg.GuardCooldown <= 0 {
		cfg.GuardCooldown = defaultGuardCooldown
	}

	return &Scaler{
		store:     store,
		guard:     guard.New(cfg.GuardDepth, cfg.GuardCooldown),
		validator: validate.NewValidator(),
		threshold: cfg.Threshold,
		logger:    logger,
		metrics:   metrics,
	}
}

// ResourceUsage summarizes one resource across a session's successful
// operations.
type ResourceUsage struct {
	Total        float64 `json:"total"`
	Avg          float64 `json:"avg"`
	Pct          float64 `json:"usage_pct"`
	WithinLimits bool    `json:"within_limits"`
}

// Report summarizes one scaling session.
type Report struct {
	SessionID          string                   `json:"session_id"`
	Total              int                      `json:"total_operations"`
	Successful         int                      `json:"successful_operations"`
	Failed             int                      `json:"failed_operations"`
	SuccessRate        float64                  `json:"success_rate"`
	OverallImprovement float64                  `json:"overall_improvement"`
	Utilization        map[string]ResourceUsage `json:"resource_utilization,omitempty"`
	Notes              []string                 `json:"notes,omitempty"`
	Coverage           float64                  `json:"coverage"`
}

// RunPlan executes one scaling pass over the plan and returns its report.
// Every attempted capability produces a stored operation, succeeded or
// failed; capabilities denied by the guard are skipped without a record.
func (s *Scaler) RunPlan(ctx context.Context, plan []Capability) (Report, error) {
	start := time.Now()
	now := start.UTC()

	session := storage.NewSession(storage.SessionScaling, now)
	if err := s.store.PutSession(ctx, session); err != nil {
		if s.metrics != nil {
			s.metrics.RecordError("scaler", "session_failed")
		}
		return Report{}, fmt.Errorf("start scaling session: %w", err)
	}
	s.logger.Info("scaling session started", "session", session.ID, "capabilities", len(plan))

	var operations []storage.ScalingOperation
	for _, capability := range plan {
		key := "scale:" + capability.ID
		ran := s.guard.Do(key, func() {
			op := s.scaleCapability(capability, session.ID)

			if err := s.store.AppendScalingOperation(ctx, op); err != nil {
				if s.metrics != nil {
					s.metrics.RecordError("store", "append_failed")
				}
				s.logger.Error("failed to store scaling operation",
					"capability", capability.ID, "operation", op.ID, "error", err)
			}
			if s.metrics != nil {
				s.metrics.RecordScalingOperation(op.Status)
			}
			operations = append(operations, op)
		})
		if !ran {
			if s.metrics != nil {
				s.metrics.RecordGuardDenial("scaler")
			}
			s.logger.Debug("capability skipped by guard", "capability", capability.ID)
		}
	}

	report := s.buildReport(session.ID, plan, operations)

	session.Counters.TotalOperations = report.Total
	session.Counters.SuccessfulOperations = report.Successful
	session.Counters.FailedOperations = report.Failed
	session.Finish(time.Now().UTC())
	if err := s.store.PutSession(ctx, session); err != nil {
		if s.metrics != nil {
			s.metrics.RecordError("scaler", "session_failed")
		}
		return Report{}, fmt.Errorf("finalize scaling session: %w", err)
	}

	duration := time.Since(start)
	if s.metrics != nil {
		s.metrics.RecordScalingRun(duration.Seconds())
		s.metrics.SetScalingSuccessRate(report.SuccessRate)
	}

	s.logger.Info("scaling session finished",
		"session", session.ID,
		"total", report.Total,
		"successful", report.Successful,
		"failed", report.Failed,
		"improvement", report.OverallImprovement,
		"total_ms", duration.Milliseconds(),
	)

	return report, nil
}

// scaleCapability walks one capability through the operation state machine:
// requested → validated → executing → succeeded | failed.
func (s *Scaler) scaleCapability(c Capability, sessionID string) storage.ScalingOperation {
	op := storage.ScalingOperation{
		ID:           storage.NewOperationID(c.ID),
		SessionID:    sessionID,
		CapabilityID: c.ID,
		Status:       storage.ScalingRequested,
		StartedAt:    time.Now().UTC(),
	}

	verdict := s.validator.Combine(
		validate.ScoreIssues(requestIssues(c)),
		validate.ScoreIssues(consistencyIssues(c)),
	)
	if !verdict.Accepted() {
		op.Status = storage.ScalingFailed
		op.Error = "validation failed: " + strings.Join(verdict.Issues, "; ")
		op.FinishedAt = time.Now().UTC()
		s.logger.Warn("scaling request rejected",
			"capability", c.ID, "operation", op.ID, "issues", strings.Join(verdict.Issues, "; "))
		return op
	}
	op.Status = storage.ScalingValidated
	s.logger.Debug("scaling request validated", "capability", c.ID, "operation", op.ID)

	op.Status = storage.ScalingExecuting
	result := Execute(c, StrategyConfig{Threshold: s.threshold})
	op.Method = result.Method
	op.ResourceUsage = result.ResourceUsage
	op.PerformanceImpact = result.Impact

	resultVerdict := s.validator.Combine(
		validate.ScoreIssues(impactIssues(result)),
		validate.ScoreIssues(usageIssues(result)),
	)
	if !resultVerdict.Accepted() {
		op.Status = storage.ScalingFailed
		op.PerformanceImpact = 0
		op.Error = "result validation failed: " + strings.Join(resultVerdict.Issues, "; ")
		op.FinishedAt = time.Now().UTC()
		s.logger.Warn("scaling result rejected",
			"capability", c.ID, "operation", op.ID, "issues", strings.Join(resultVerdict.Issues, "; "))
		return op
	}

	op.FinishedAt = time.Now().UTC()
	if result.Success {
		op.Status = storage.ScalingSucceeded
		op.Success = true
		s.logger.Info("capability scaled",
			"capability", c.ID,
			"operation", op.ID,
			"method", op.Method,
			"steps", result.StepsCompleted,
			"impact", result.Impact,
		)
	} else {
		op.Status = storage.ScalingFailed
		op.Error = fmt.Sprintf("resource demand %.2f exceeds budget", result.Demand)
		s.logger.Warn("capability not scaled",
			"capability", c.ID,
			"operation", op.ID,
			"method", op.Method,
			"demand", result.Demand,
		)
	}

	return op
}

// requestIssues checks a scaling request's fields and ranges.
func requestIssues(c Capability) []string {
	var issues []string
	if c.ID == "" {
		issues = append(issues, "missing capability id")
	}
	if c.Name == "" {
		issues = append(issues, "missing capability name")
	}
	if c.TargetLevel < 0 {
		issues = append(issues, fmt.Sprintf("target level %d is negative", c.TargetLevel))
	}
	if c.ScalingFactor <= 0 || c.ScalingFactor > 10 {
		issues = append(issues, fmt.Sprintf("scaling factor %.2f outside (0, 10]", c.ScalingFactor))
	}
	return issues
}

// consistencyIssues checks that the request makes sense as a whole.
func consistencyIssues(c Capability) []string {
	var issues []string
	if c.TargetLevel < c.CurrentLevel {
		issues = append(issues, fmt.Sprintf("target level %d below current level %d", c.TargetLevel, c.CurrentLevel))
	}
	return issues
}

// impactIssues checks an execution result's impact range.
func impactIssues(r StrategyResult) []string {
	var issues []string
	if r.Impact < -1 || r.Impact > 1 {
		issues = append(issues, fmt.Sprintf("impact %.2f outside [-1, 1]", r.Impact))
	}
	return issues
}

// usageIssues checks an execution result's resource figures.
func usageIssues(r StrategyResult) []string {
	var issues []string
	for resource, usage := range r.ResourceUsage {
		if usage < 0 {
			issues = append(issues, fmt.Sprintf("%s usage %.2f is negative", resource, usage))
		}
	}
	return issues
}

func (s *Scaler) buildReport(sessionID string, plan []Capability, operations []storage.ScalingOperation) Report {
	report := Report{
		SessionID: sessionID,
		Total:     len(operations),
	}

	improvementSum := 0.0
	usageTotals := make(map[string]float64)
	for _, op := range operations {
		if !op.Success {
			report.Failed++
			continue
		}
		report.Successful++
		improvementSum += op.PerformanceImpact
		for resource, usage := range op.ResourceUsage {
			usageTotals[resource] += usage
		}
	}

	if report.Total > 0 {
		report.SuccessRate = float64(report.Successful) / float64(report.Total)
	}
	if report.Successful > 0 {
		report.OverallImprovement = improvementSum / float64(report.Successful)
	}
	if len(plan) > 0 {
		report.Coverage = float64(report.Successful) / float64(len(plan))
	}

	if len(usageTotals) > 0 {
		report.Utilization = make(map[string]ResourceUsage, len(usageTotals))
		for resource, total := range usageTotals {
			avg := total / float64(report.Successful)
			pct := avg * 100
			if pct > 100 {
				pct = 100
			}
			report.Utilization[resource] = ResourceUsage{
				Total:        total,
				Avg:          avg,
				Pct:          pct,
				WithinLimits: pct < withinLimitsPct,
			}
		}
	}

	report.Notes = buildNotes(report)
	return report
}

// buildNotes derives the report's advisory notes from fixed tiers, so the
// same outcomes always produce the same notes.
func buildNotes(report Report) []string {
	var notes []string

	if report.Total > 0 {
		switch {
		case report.SuccessRate < 0.5:
			notes = append(notes, fmt.Sprintf("only %d of %d operations scaled; review failing capabilities before widening the plan",
				report.Successful, report.Total))
		case report.SuccessRate < 0.8:
			notes = append(notes, "success rate under 80%; some capabilities are pressing against the resource budget")
		}
	}

	if report.Successful > 0 {
		switch {
		case report.OverallImprovement < 0.1:
			notes = append(notes, "scaling succeeded but bought little improvement; the plan may be targeting saturated capabilities")
		case report.OverallImprovement > 0.5:
			notes = append(notes, "strong improvement from this plan; consider raising target levels next session")
		}
	}

	resources := make([]string, 0, len(report.Utilization))
	for resource := range report.Utilization {
		resources = append(resources, resource)
	}
	sort.Strings(resources)
	for _, resource := range resources {
		if usage := report.Utilization[resource]; usage.Pct > 80 {
			notes = append(notes, fmt.Sprintf("%s running at %.0f%% of budget", resource, usage.Pct))
		}
	}

	return notes
}
