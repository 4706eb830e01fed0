// Command pipeline runs the metrial data pipeline: it collects metrics from
// registered sources, analyzes them against rolling baselines, and scales
// capabilities derived from the opportunities the analysis surfaces.
//
// The pipeline exposes an HTTP API for inspecting its state:
//
//	/healthz                    liveness and storage connectivity
//	/metrics                    Prometheus metrics
//	/sessions                   collection, analysis, and scaling sessions
//	/analysis/records           per-metric performance records
//	/analysis/recommendations   ranked improvement opportunities
//	/scaling/operations         scaling operation outcomes
//	/aggregates                 windowed per-metric aggregates
//
// Usage:
//
//	pipeline -listen :8080 -storage redis -redis-addr localhost:6379 \
//	    -collect-interval 10s -analysis-interval 5m -source http
//
// Every flag has an environment variable equivalent (LISTEN, STORAGE,
// REDIS_ADDR, ...); flags take precedence. Source-specific settings use the
// SOURCE_ prefix, for example SOURCE_URL and SOURCE_VALUE_PATH.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/HatiCode/metrial/cmd/pipeline/config"
	"github.com/HatiCode/metrial/cmd/pipeline/logger"
	"github.com/HatiCode/metrial/cmd/pipeline/metrics"
	"github.com/HatiCode/metrial/cmd/pipeline/router"
	"github.com/HatiCode/metrial/cmd/pipeline/store"
	"github.com/HatiCode/metrial/pkg/analysis"
	"github.com/HatiCode/metrial/pkg/collect"
	"github.com/HatiCode/metrial/pkg/httpx"
	"github.com/HatiCode/metrial/pkg/scaling"
	"github.com/HatiCode/metrial/pkg/sources"
	pipelinetls "github.com/HatiCode/metrial/pkg/tls"
)

// version is set at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cfg := config.ParseFlags()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}

	logger := logger.New(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	logger.Info("starting metrial pipeline", "version", version, "pipeline", cfg.PipelineName)

	st, err := store.New(cfg, logger)
	if err != nil {
		logger.Error("failed to initialize storage", "error", err)
		os.Exit(1)
	}
	if closer, ok := st.(interface{ Close() error }); ok {
		defer func() {
			if err := closer.Close(); err != nil {
				logger.Error("failed to close store", "error", err)
			}
		}()
	}
	if stopper, ok := st.(interface{ Stop() }); ok {
		defer stopper.Stop()
	}

	catalog := scaling.DefaultCatalog()
	if cfg.CatalogPath != "" {
		catalog, err = scaling.LoadCapabilityCatalog(cfg.CatalogPath)
		if err != nil {
			logger.Error("failed to load capability catalog", "path", cfg.CatalogPath, "error", err)
			os.Exit(1)
		}
		logger.Info("loaded capability catalog", "path", cfg.CatalogPath, "capabilities", len(catalog))
	}

	m := metrics.New(cfg.PipelineName)

	collector := collect.New(st, collect.Config{
		Interval:   cfg.CollectInterval,
		MaxRecords: cfg.MaxRecords,
	}, logger, m)
	if cfg.SystemSource {
		collector.Register(&sources.SystemSource{DiskPath: cfg.DiskPath})
	}
	if cfg.Source != "" {
		src, err := sources.New(cfg.Source, cfg.SourceConfig)
		if err != nil {
			logger.Error("failed to build source", "kind", cfg.Source, "error", err)
			os.Exit(1)
		}
		if httpSrc, ok := src.(*sources.HTTPSource); ok {
			client, err := httpx.NewClient(cfg.TLS, 10*time.Second)
			if err != nil {
				logger.Error("failed to build source client", "error", err)
				os.Exit(1)
			}
			httpSrc.HTTPClient = client
		}
		collector.Register(src)
	}

	engine := analysis.NewBaselineEngine(st, analysis.BaselineConfig{
		Window:     cfg.BaselineWindow,
		MinSamples: cfg.BaselineMinSamples,
		MinQuality: cfg.BaselineMinQuality,
		TTL:        cfg.CollectInterval * 30,
	})
	analyzer := analysis.NewAnalyzer(st, engine, analysis.AnalyzerConfig{
		Window: cfg.AnalysisWindow,
	}, logger, m)
	scaler := scaling.NewScaler(st, scaling.ScalerConfig{
		Threshold: cfg.ScalingThreshold,
	}, logger, m)
	pipeline := NewPipeline(analyzer, scaler, st, catalog, cfg.AnalysisInterval, logger)

	mux := router.SetupRoutes(st, logger)
	handler := httpx.RecoveryMiddleware(logger)(httpx.LoggingMiddleware(logger)(mux))
	httpServer := httpx.NewServer(cfg.Listen, handler, logger)
	if cfg.TLS.Enabled {
		tlsCfg, err := pipelinetls.NewServerConfig(cfg.TLS.CertFile, cfg.TLS.KeyFile, cfg.TLS.CAFile)
		if err != nil {
			logger.Error("failed to build TLS config", "error", err)
			os.Exit(1)
		}
		httpServer.SetTLSConfig(tlsCfg)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	collectorDone := make(chan struct{})
	go func() {
		defer close(collectorDone)
		if err := collector.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("collection loop failed", "error", err)
		}
	}()

	go func() {
		if err := pipeline.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("analysis loop failed", "error", err)
		}
	}()

	serverErr := make(chan error, 1)
	go func() {
		if cfg.TLS.Enabled {
			serverErr <- httpServer.StartTLS(cfg.TLS.CertFile, cfg.TLS.KeyFile)
		} else {
			serverErr <- httpServer.Start()
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig.String())
	case err := <-serverErr:
		logger.Error("server failed", "error", err)
	}

	logger.Info("shutting down")
	cancel()
	<-collectorDone

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if _, err := collector.Finish(shutdownCtx); err != nil {
		logger.Error("failed to finalize collection session", "error", err)
	}

	if err := httpServer.Stop(10 * time.Second); err != nil {
		logger.Error("failed to stop http server", "error", err)
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}
