// Package config provides configuration parsing for the pipeline.
//
// It handles both command-line flags and environment variables, with flags
// taking precedence. The Config struct carries all runtime configuration:
//   - HTTP listen address and TLS material
//   - Logging (level, format)
//   - Storage backend selection (memory or redis) and retention
//   - Collection settings (interval, per-tick record cap, sources)
//   - Baseline settings (window, minimum samples, minimum quality)
//   - Analysis settings (interval, window)
//   - Scaling settings (resource threshold, capability catalog path)
//
// Source-specific configuration is provided via SOURCE_* environment
// variables, converted to camelCase keys for the source factory
// (SOURCE_VALUE_PATH becomes valuePath).
//
// Supported configuration sources, in order of precedence:
//  1. Command-line flags
//  2. Environment variables
//  3. Default values
package config

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/HatiCode/metrial/pkg/tls"
)

// Config holds all pipeline configuration.
type Config struct {
	Listen    string
	LogLevel  string
	LogFormat string

	PipelineName string

	Storage       string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Retention     time.Duration

	TLS tls.Config

	CollectInterval time.Duration
	MaxRecords      int
	SystemSource    bool
	DiskPath        string
	Source          string
	SourceConfig    map[string]string

	BaselineWindow     time.Duration
	BaselineMinSamples int
	BaselineMinQuality float64

	AnalysisInterval time.Duration
	AnalysisWindow   time.Duration

	ScalingThreshold float64
	CatalogPath      string
}

// ParseFlags parses command-line flags and environment variables into a
// Config. Environment variables are used as fallbacks when flags are not
// provided. Call Validate before using the result.
func ParseFlags() *Config {
	cfg := &Config{}

	flag.StringVar(&cfg.Listen, "listen", getEnv("LISTEN", ":8080"), "HTTP listen address")

	flag.StringVar(&cfg.LogFormat, "log-format", getEnv("LOG_FORMAT", "text"), "Log format: text or json")
	flag.StringVar(&cfg.LogLevel, "log-level", getEnv("LOG_LEVEL", "info"), "Log level: debug, info, warn, error")

	flag.StringVar(&cfg.PipelineName, "pipeline-name", getEnv("PIPELINE_NAME", "default"), "Pipeline name used as a metric label")

	flag.StringVar(&cfg.Storage, "storage", getEnv("STORAGE", "memory"), "Storage backend: memory or redis")
	flag.StringVar(&cfg.RedisAddr, "redis-addr", getEnv("REDIS_ADDR", "localhost:6379"), "Redis server address")
	flag.StringVar(&cfg.RedisPassword, "redis-password", getEnv("REDIS_PASSWORD", ""), "Redis password")
	flag.IntVar(&cfg.RedisDB, "redis-db", getEnvInt("REDIS_DB", 0), "Redis database number")
	flag.DurationVar(&cfg.Retention, "retention", getEnvDuration("RETENTION", 24*time.Hour), "How long stored records are kept")

	flag.BoolVar(&cfg.TLS.Enabled, "tls-enabled", getEnvBool("TLS_ENABLED", false), "Enable TLS for the HTTP server")
	flag.StringVar(&cfg.TLS.CertFile, "tls-cert-file", getEnv("TLS_CERT_FILE", ""), "TLS certificate file")
	flag.StringVar(&cfg.TLS.KeyFile, "tls-key-file", getEnv("TLS_KEY_FILE", ""), "TLS private key file")
	flag.StringVar(&cfg.TLS.CAFile, "tls-ca-file", getEnv("TLS_CA_FILE", ""), "TLS CA certificate file for client verification")

	flag.DurationVar(&cfg.CollectInterval, "collect-interval", getEnvDuration("COLLECT_INTERVAL", 10*time.Second), "Collection tick interval")
	flag.IntVar(&cfg.MaxRecords, "max-records", getEnvInt("MAX_RECORDS", 100), "Most-recent records kept per source per tick")
	flag.BoolVar(&cfg.SystemSource, "system-source", getEnvBool("SYSTEM_SOURCE", true), "Register the host resource source")
	flag.StringVar(&cfg.DiskPath, "disk-path", getEnv("DISK_PATH", "/"), "Mount point sampled for disk utilization")
	flag.StringVar(&cfg.Source, "source", getEnv("SOURCE", ""), "Additional source kind: system or http (configured via SOURCE_* env vars)")

	flag.DurationVar(&cfg.BaselineWindow, "baseline-window", getEnvDuration("BASELINE_WINDOW", 7*24*time.Hour), "History window for baseline computation")
	flag.IntVar(&cfg.BaselineMinSamples, "baseline-min-samples", getEnvInt("BASELINE_MIN_SAMPLES", 5), "Minimum qualifying points for a baseline")
	flag.Float64Var(&cfg.BaselineMinQuality, "baseline-min-quality", getEnvFloat("BASELINE_MIN_QUALITY", 0.5), "Minimum quality score for baseline points")

	flag.DurationVar(&cfg.AnalysisInterval, "analysis-interval", getEnvDuration("ANALYSIS_INTERVAL", 5*time.Minute), "Analysis and scaling cycle interval")
	flag.DurationVar(&cfg.AnalysisWindow, "analysis-window", getEnvDuration("ANALYSIS_WINDOW", 24*time.Hour), "History window for analysis")

	flag.Float64Var(&cfg.ScalingThreshold, "scaling-threshold", getEnvFloat("SCALING_THRESHOLD", 0.85), "Resource budget for scaling strategies")
	flag.StringVar(&cfg.CatalogPath, "catalog", getEnv("CATALOG", ""), "Capability catalog JSON file (built-in catalog when empty)")

	flag.Parse()

	cfg.SourceConfig = parseSourceConfig()

	return cfg
}

// Validate checks ranges and enumerations. Returns the first offending field.
func (c *Config) Validate() error {
	if c.Storage != "memory" && c.Storage != "redis" {
		return fmt.Errorf("invalid storage backend %q (must be memory or redis)", c.Storage)
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %q (must be debug, info, warn, or error)", c.LogLevel)
	}

	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("invalid log format %q (must be text or json)", c.LogFormat)
	}

	if c.CollectInterval <= 0 {
		return fmt.Errorf("collect interval must be > 0, got %v", c.CollectInterval)
	}
	if c.MaxRecords <= 0 {
		return fmt.Errorf("max records must be > 0, got %d", c.MaxRecords)
	}
	if c.Retention <= 0 {
		return fmt.Errorf("retention must be > 0, got %v", c.Retention)
	}

	if c.BaselineWindow <= 0 {
		return fmt.Errorf("baseline window must be > 0, got %v", c.BaselineWindow)
	}
	if c.BaselineMinSamples < 1 {
		return fmt.Errorf("baseline min samples must be >= 1, got %d", c.BaselineMinSamples)
	}
	if c.BaselineMinQuality < 0 || c.BaselineMinQuality > 1 {
		return fmt.Errorf("baseline min quality must be in [0, 1], got %v", c.BaselineMinQuality)
	}

	if c.AnalysisInterval <= 0 {
		return fmt.Errorf("analysis interval must be > 0, got %v", c.AnalysisInterval)
	}
	if c.AnalysisWindow <= 0 {
		return fmt.Errorf("analysis window must be > 0, got %v", c.AnalysisWindow)
	}

	if c.ScalingThreshold <= 0 {
		return fmt.Errorf("scaling threshold must be > 0, got %v", c.ScalingThreshold)
	}

	if err := c.TLS.Validate(); err != nil {
		return fmt.Errorf("tls config: %w", err)
	}

	return nil
}

// parseSourceConfig collects SOURCE_* environment variables into a generic
// configuration map for the source factory. Variable names are converted to
// camelCase keys: SOURCE_VALUE_PATH becomes valuePath.
func parseSourceConfig() map[string]string {
	config := make(map[string]string)

	for _, env := range os.Environ() {
		if len(env) > 7 && env[:7] == "SOURCE_" {
			parts := splitEnv(env)
			if len(parts) == 2 {
				key := toLowerCamelCase(parts[0][7:])
				config[key] = parts[1]
			}
		}
	}

	return config
}

func splitEnv(env string) []string {
	for i := 0; i < len(env); i++ {
		if env[i] == '=' {
			return []string{env[:i], env[i+1:]}
		}
	}
	return []string{env}
}

func toLowerCamelCase(s string) string {
	if s == "" {
		return s
	}
	parts := []rune(s)
	result := make([]rune, 0, len(parts))
	nextUpper := false
	for i, r := range parts {
		if r == '_' {
			nextUpper = true
			continue
		}
		if i == 0 {
			result = append(result, toLower(r))
		} else if nextUpper {
			result = append(result, r)
			nextUpper = false
		} else {
			result = append(result, toLower(r))
		}
	}
	return string(result)
}

func toLower(r rune) rune {
	if r >= 'A' && r <= 'Z' {
		return r + 32
	}
	return r
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var i int
		if _, err := fmt.Sscanf(value, "%d", &i); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		var f float64
		if _, err := fmt.Sscanf(value, "%f", &f); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}
