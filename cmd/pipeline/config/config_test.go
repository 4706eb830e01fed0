package config

import (
	"flag"
	"os"
	"strings"
	"testing"
	"time"
)

func parseWithArgs(t *testing.T, args ...string) *Config {
	t.Helper()
	flag.CommandLine = flag.NewFlagSet(os.Args[0], flag.ContinueOnError)
	os.Args = append([]string{"cmd"}, args...)
	return ParseFlags()
}

func TestConfig_Defaults(t *testing.T) {
	cfg := parseWithArgs(t)

	if cfg.Listen != ":8080" {
		t.Errorf("Listen = %q, want :8080", cfg.Listen)
	}
	if cfg.LogLevel != "info" || cfg.LogFormat != "text" {
		t.Errorf("logging = %q/%q, want info/text", cfg.LogLevel, cfg.LogFormat)
	}
	if cfg.Storage != "memory" {
		t.Errorf("Storage = %q, want memory", cfg.Storage)
	}
	if cfg.Retention != 24*time.Hour {
		t.Errorf("Retention = %v, want 24h", cfg.Retention)
	}
	if cfg.CollectInterval != 10*time.Second {
		t.Errorf("CollectInterval = %v, want 10s", cfg.CollectInterval)
	}
	if cfg.MaxRecords != 100 {
		t.Errorf("MaxRecords = %d, want 100", cfg.MaxRecords)
	}
	if !cfg.SystemSource {
		t.Error("SystemSource should default to true")
	}
	if cfg.BaselineWindow != 7*24*time.Hour {
		t.Errorf("BaselineWindow = %v, want 168h", cfg.BaselineWindow)
	}
	if cfg.BaselineMinSamples != 5 {
		t.Errorf("BaselineMinSamples = %d, want 5", cfg.BaselineMinSamples)
	}
	if cfg.BaselineMinQuality != 0.5 {
		t.Errorf("BaselineMinQuality = %v, want 0.5", cfg.BaselineMinQuality)
	}
	if cfg.AnalysisInterval != 5*time.Minute {
		t.Errorf("AnalysisInterval = %v, want 5m", cfg.AnalysisInterval)
	}
	if cfg.AnalysisWindow != 24*time.Hour {
		t.Errorf("AnalysisWindow = %v, want 24h", cfg.AnalysisWindow)
	}
	if cfg.ScalingThreshold != 0.85 {
		t.Errorf("ScalingThreshold = %v, want 0.85", cfg.ScalingThreshold)
	}
	if cfg.CatalogPath != "" {
		t.Errorf("CatalogPath = %q, want empty", cfg.CatalogPath)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate, got %v", err)
	}
}

func TestConfig_CustomValues(t *testing.T) {
	cfg := parseWithArgs(t,
		"-listen=:9090",
		"-log-format=json",
		"-log-level=debug",
		"-storage=redis",
		"-redis-addr=redis:6379",
		"-retention=48h",
		"-collect-interval=30s",
		"-max-records=50",
		"-system-source=false",
		"-analysis-interval=1m",
		"-scaling-threshold=0.5",
		"-catalog=/etc/metrial/catalog.json",
	)

	if cfg.Listen != ":9090" {
		t.Errorf("Listen = %q, want :9090", cfg.Listen)
	}
	if cfg.LogFormat != "json" || cfg.LogLevel != "debug" {
		t.Errorf("logging = %q/%q, want debug/json", cfg.LogLevel, cfg.LogFormat)
	}
	if cfg.Storage != "redis" || cfg.RedisAddr != "redis:6379" {
		t.Errorf("storage = %q/%q", cfg.Storage, cfg.RedisAddr)
	}
	if cfg.Retention != 48*time.Hour {
		t.Errorf("Retention = %v, want 48h", cfg.Retention)
	}
	if cfg.CollectInterval != 30*time.Second {
		t.Errorf("CollectInterval = %v, want 30s", cfg.CollectInterval)
	}
	if cfg.MaxRecords != 50 {
		t.Errorf("MaxRecords = %d, want 50", cfg.MaxRecords)
	}
	if cfg.SystemSource {
		t.Error("SystemSource should be disabled")
	}
	if cfg.AnalysisInterval != time.Minute {
		t.Errorf("AnalysisInterval = %v, want 1m", cfg.AnalysisInterval)
	}
	if cfg.ScalingThreshold != 0.5 {
		t.Errorf("ScalingThreshold = %v, want 0.5", cfg.ScalingThreshold)
	}
	if cfg.CatalogPath != "/etc/metrial/catalog.json" {
		t.Errorf("CatalogPath = %q", cfg.CatalogPath)
	}
}

func TestConfig_SourceConfigFromEnv(t *testing.T) {
	os.Setenv("SOURCE_URL", "http://api.internal/metrics")
	os.Setenv("SOURCE_METRIC_NAME", "latency_ms")
	os.Setenv("SOURCE_VALUE_PATH", "data.#.value")
	defer func() {
		os.Unsetenv("SOURCE_URL")
		os.Unsetenv("SOURCE_METRIC_NAME")
		os.Unsetenv("SOURCE_VALUE_PATH")
	}()

	cfg := parseWithArgs(t, "-source=http")

	if cfg.Source != "http" {
		t.Errorf("Source = %q, want http", cfg.Source)
	}
	if cfg.SourceConfig["url"] != "http://api.internal/metrics" {
		t.Errorf("url = %q", cfg.SourceConfig["url"])
	}
	if cfg.SourceConfig["metricName"] != "latency_ms" {
		t.Errorf("metricName = %q", cfg.SourceConfig["metricName"])
	}
	if cfg.SourceConfig["valuePath"] != "data.#.value" {
		t.Errorf("valuePath = %q", cfg.SourceConfig["valuePath"])
	}
}

func TestConfig_Validate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Listen:             ":8080",
			LogLevel:           "info",
			LogFormat:          "text",
			Storage:            "memory",
			Retention:          time.Hour,
			CollectInterval:    10 * time.Second,
			MaxRecords:         100,
			BaselineWindow:     24 * time.Hour,
			BaselineMinSamples: 5,
			BaselineMinQuality: 0.5,
			AnalysisInterval:   time.Minute,
			AnalysisWindow:     time.Hour,
			ScalingThreshold:   0.85,
		}
	}

	if err := base().Validate(); err != nil {
		t.Fatalf("base config should validate, got %v", err)
	}

	tests := []struct {
		name     string
		mutate   func(*Config)
		fragment string
	}{
		{"bad storage", func(c *Config) { c.Storage = "postgres" }, "storage backend"},
		{"bad log level", func(c *Config) { c.LogLevel = "trace" }, "log level"},
		{"bad log format", func(c *Config) { c.LogFormat = "xml" }, "log format"},
		{"zero collect interval", func(c *Config) { c.CollectInterval = 0 }, "collect interval"},
		{"zero max records", func(c *Config) { c.MaxRecords = 0 }, "max records"},
		{"negative retention", func(c *Config) { c.Retention = -time.Hour }, "retention"},
		{"zero baseline window", func(c *Config) { c.BaselineWindow = 0 }, "baseline window"},
		{"zero baseline samples", func(c *Config) { c.BaselineMinSamples = 0 }, "baseline min samples"},
		{"quality above one", func(c *Config) { c.BaselineMinQuality = 1.5 }, "baseline min quality"},
		{"zero analysis interval", func(c *Config) { c.AnalysisInterval = 0 }, "analysis interval"},
		{"zero analysis window", func(c *Config) { c.AnalysisWindow = 0 }, "analysis window"},
		{"zero scaling threshold", func(c *Config) { c.ScalingThreshold = 0 }, "scaling threshold"},
		{"tls without files", func(c *Config) { c.TLS.Enabled = true }, "tls"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.fragment) {
				t.Errorf("Validate() error = %v, want one mentioning %q", err, tt.fragment)
			}
		})
	}
}

func TestGetEnvHelpers(t *testing.T) {
	os.Setenv("TEST_STR", "from-env")
	os.Setenv("TEST_INT", "42")
	os.Setenv("TEST_FLOAT", "3.14")
	os.Setenv("TEST_DURATION", "5m")
	os.Setenv("TEST_BOOL", "true")
	os.Setenv("TEST_BAD", "not-a-number")
	defer func() {
		for _, key := range []string{"TEST_STR", "TEST_INT", "TEST_FLOAT", "TEST_DURATION", "TEST_BOOL", "TEST_BAD"} {
			os.Unsetenv(key)
		}
	}()

	if got := getEnv("TEST_STR", "default"); got != "from-env" {
		t.Errorf("getEnv() = %q, want from-env", got)
	}
	if got := getEnv("TEST_ABSENT", "default"); got != "default" {
		t.Errorf("getEnv() = %q, want default", got)
	}
	if got := getEnvInt("TEST_INT", 10); got != 42 {
		t.Errorf("getEnvInt() = %d, want 42", got)
	}
	if got := getEnvInt("TEST_BAD", 10); got != 10 {
		t.Errorf("getEnvInt() = %d, want fallback 10", got)
	}
	if got := getEnvFloat("TEST_FLOAT", 1.0); got != 3.14 {
		t.Errorf("getEnvFloat() = %v, want 3.14", got)
	}
	if got := getEnvDuration("TEST_DURATION", time.Second); got != 5*time.Minute {
		t.Errorf("getEnvDuration() = %v, want 5m", got)
	}
	if got := getEnvDuration("TEST_BAD", 30*time.Second); got != 30*time.Second {
		t.Errorf("getEnvDuration() = %v, want fallback 30s", got)
	}
	if got := getEnvBool("TEST_BOOL", false); !got {
		t.Error("getEnvBool() = false, want true")
	}
	if got := getEnvBool("TEST_ABSENT", true); !got {
		t.Error("getEnvBool() = false, want default true")
	}
}

func TestToLowerCamelCase(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"URL", "url"},
		{"METRIC_NAME", "metricName"},
		{"VALUE_PATH", "valuePath"},
		{"TIMESTAMP_FORMAT", "timestampFormat"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := toLowerCamelCase(tt.in); got != tt.want {
			t.Errorf("toLowerCamelCase(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
