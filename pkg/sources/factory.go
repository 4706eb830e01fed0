package sources

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// New creates a source from a kind and a generic configuration map.
// This is the central extension point for adding new source types.
//
// Supported kinds:
//   - "system": host resource utilization sampling
//   - "http": generic HTTP/JSON source
//
// Returns an error if kind is unknown or required fields are missing.
func New(kind string, config map[string]string) (Source, error) {
	switch kind {
	case "system":
		return &SystemSource{DiskPath: config["diskPath"]}, nil
	case "http":
		return newHTTP(config)
	default:
		return nil, fmt.Errorf("unknown source kind: %s (must be system or http)", kind)
	}
}

// newHTTP creates an HTTP source from generic config.
func newHTTP(config map[string]string) (Source, error) {
	src := &HTTPSource{
		SourceName:      config["name"],
		Category:        config["category"],
		MetricName:      config["metricName"],
		URL:             config["url"],
		Method:          config["method"],
		Body:            config["body"],
		ValuePath:       config["valuePath"],
		TimestampPath:   config["timestampPath"],
		TimestampFormat: config["timestampFormat"],
	}

	if windowStr := config["windowSeconds"]; windowStr != "" {
		window, err := strconv.Atoi(windowStr)
		if err != nil {
			return nil, fmt.Errorf("invalid windowSeconds: %w", err)
		}
		src.WindowSeconds = window
	}

	if headersJSON := config["headers"]; headersJSON != "" {
		if err := json.Unmarshal([]byte(headersJSON), &src.Headers); err != nil {
			return nil, fmt.Errorf("invalid 'headers' JSON: %w", err)
		}
	}

	if varsJSON := config["templateVars"]; varsJSON != "" {
		if err := json.Unmarshal([]byte(varsJSON), &src.TemplateVars); err != nil {
			return nil, fmt.Errorf("invalid 'templateVars' JSON: %w", err)
		}
	}

	if err := src.Validate(); err != nil {
		return nil, fmt.Errorf("http source config: %w", err)
	}
	return src, nil
}
