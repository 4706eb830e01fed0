package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/HatiCode/metrial/pkg/analysis"
	"github.com/HatiCode/metrial/pkg/scaling"
	"github.com/HatiCode/metrial/pkg/storage"
)

// Pipeline ties the analysis and scaling stages together: each cycle it
// analyzes collected data, derives capabilities from the opportunities the
// analyzer found, merges them with the static catalog, and scales the result.
type Pipeline struct {
	analyzer *analysis.Analyzer
	scaler   *scaling.Scaler
	store    storage.Store
	catalog  []scaling.Capability
	interval time.Duration
	logger   *slog.Logger
}

func NewPipeline(analyzer *analysis.Analyzer, scaler *scaling.Scaler, store storage.Store, catalog []scaling.Capability, interval time.Duration, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		analyzer: analyzer,
		scaler:   scaler,
		store:    store,
		catalog:  catalog,
		interval: interval,
		logger:   logger,
	}
}

// Run executes analysis and scaling cycles until the context is cancelled.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("analysis loop started", "interval", p.interval)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	if err := p.Tick(ctx); err != nil {
		p.logger.Error("pipeline cycle failed", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("analysis loop stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := p.Tick(ctx); err != nil {
				p.logger.Error("pipeline cycle failed", "error", err)
			}
		}
	}
}

// Tick runs one analysis and scaling pass. Exported for testing purposes.
func (p *Pipeline) Tick(ctx context.Context) error {
	report, err := p.analyzer.Run(ctx)
	if err != nil {
		return fmt.Errorf("analysis: %w", err)
	}

	opportunities, err := p.store.Opportunities(ctx, report.SessionID)
	if err != nil {
		return fmt.Errorf("load opportunities: %w", err)
	}

	plan := scaling.Merge(scaling.CapabilitiesFromOpportunities(opportunities), p.catalog)
	if len(plan) == 0 {
		p.logger.Debug("no capabilities to scale", "analysis_session", report.SessionID)
		return nil
	}

	scalingReport, err := p.scaler.RunPlan(ctx, plan)
	if err != nil {
		return fmt.Errorf("scaling: %w", err)
	}

	p.logger.Info("pipeline cycle complete",
		"analysis_session", report.SessionID,
		"scaling_session", scalingReport.SessionID,
		"metrics_analyzed", report.MetricsAnalyzed,
		"overall_score", report.OverallScore,
		"opportunities", len(opportunities),
		"operations", scalingReport.Total,
		"success_rate", scalingReport.SuccessRate,
	)
	return nil
}
