package sources

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"text/template"
	"time"

	"github.com/tidwall/gjson"
)

// HTTPSource is a generic source that calls any REST API endpoint and
// extracts metric records using JSON path expressions.
//
// It supports:
//   - Configurable HTTP method (GET, POST, etc.)
//   - Template-based request body with variables: {{.WindowSeconds}},
//     {{.Start}}, {{.End}}, {{.StartRFC3339}}, {{.EndRFC3339}}
//   - Custom headers including authentication (Bearer tokens, API keys)
//   - JSON path extraction for timestamps and values using gjson syntax
//   - Flexible timestamp parsing (RFC3339, Unix seconds, Unix milliseconds)
//
// Example configuration for a custom metrics API:
//
//	source := &HTTPSource{
//	    SourceName: "orders-api",
//	    Category:   "application",
//	    MetricName: "requests_per_second",
//	    URL:        "https://api.example.com/metrics",
//	    Method:     "POST",
//	    Headers: map[string]string{
//	        "Authorization": "Bearer {{.Token}}",
//	        "Content-Type":  "application/json",
//	    },
//	    Body:          `{"metric": "requests", "window": "{{.WindowSeconds}}s"}`,
//	    ValuePath:     "data.#.value",
//	    TimestampPath: "data.#.timestamp",
//	}
type HTTPSource struct {
	// SourceName labels the records this source emits. Defaults to "http".
	SourceName string

	// Category labels the records' category. Defaults to "external".
	Category string

	// MetricName names the metric extracted from the response (required).
	MetricName string

	// URL is the endpoint to call (required).
	URL string

	// Method is the HTTP method. Defaults to GET if empty.
	Method string

	// Headers are custom HTTP headers to include in the request.
	// Values can use template variables like {{.Token}}.
	Headers map[string]string

	// Body is the request body template (for POST/PUT). Supports variables:
	//   {{.WindowSeconds}} - the collection window in seconds
	//   {{.Start}}         - window start as Unix timestamp
	//   {{.End}}           - window end as Unix timestamp
	//   {{.StartRFC3339}}  - window start as RFC3339 string
	//   {{.EndRFC3339}}    - window end as RFC3339 string
	Body string

	// ValuePath is the gjson path to extract metric values from the
	// response. Use "#" for arrays, e.g. "data.#.value".
	ValuePath string

	// TimestampPath is the gjson path to extract timestamps. Must return
	// the same number of elements as ValuePath.
	TimestampPath string

	// TimestampFormat specifies how to parse timestamps:
	//   "rfc3339"    - RFC3339 strings (default)
	//   "unix"       - Unix seconds (float or int)
	//   "unix_milli" - Unix milliseconds (float or int)
	TimestampFormat string

	// WindowSeconds is how far back the rendered request window reaches.
	// Defaults to 300s if <= 0.
	WindowSeconds int

	// HTTPClient is optional; if nil a default client with timeout is used.
	HTTPClient *http.Client

	// TemplateVars are custom variables available in Body and Headers
	// templates. Use this to pass tokens, API keys, etc.
	TemplateVars map[string]string
}

func (h *HTTPSource) Name() string {
	if h.SourceName == "" {
		return "http"
	}
	return h.SourceName
}

// Collect implements Source. It calls the configured endpoint and converts
// each extracted (timestamp, value) pair into a RawRecord, oldest first.
func (h *HTTPSource) Collect(ctx context.Context) ([]RawRecord, error) {
	if err := h.Validate(); err != nil {
		return nil, fmt.Errorf("http source: %w", err)
	}

	window := h.WindowSeconds
	if window <= 0 {
		window = 300
	}

	now := time.Now().UTC().Truncate(time.Second)
	start := now.Add(-time.Duration(window) * time.Second)

	templateData := map[string]any{
		"WindowSeconds": window,
		"Start":         start.Unix(),
		"End":           now.Unix(),
		"StartRFC3339":  start.Format(time.RFC3339),
		"EndRFC3339":    now.Format(time.RFC3339),
	}
	for k, v := range h.TemplateVars {
		templateData[k] = v
	}

	method := h.Method
	if method == "" {
		method = http.MethodGet
	}

	var bodyReader io.Reader
	if h.Body != "" {
		rendered, err := renderTemplate(h.Body, templateData)
		if err != nil {
			return nil, fmt.Errorf("render body template: %w", err)
		}
		bodyReader = bytes.NewBufferString(rendered)
	}

	cli := h.HTTPClient
	if cli == nil {
		cli = &http.Client{Timeout: 10 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, method, h.URL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	for key, value := range h.Headers {
		rendered, err := renderTemplate(value, templateData)
		if err != nil {
			return nil, fmt.Errorf("render header %s: %w", key, err)
		}
		req.Header.Set(key, rendered)
	}

	resp, err := cli.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("http status %d: %s", resp.StatusCode, string(body))
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	values := gjson.GetBytes(respBody, h.ValuePath)
	timestamps := gjson.GetBytes(respBody, h.TimestampPath)

	if !values.Exists() {
		return nil, fmt.Errorf("value path %q not found in response", h.ValuePath)
	}
	if !timestamps.Exists() {
		return nil, fmt.Errorf("timestamp path %q not found in response", h.TimestampPath)
	}

	valArray := values.Array()
	tsArray := timestamps.Array()

	if len(valArray) != len(tsArray) {
		return nil, fmt.Errorf("value count (%d) != timestamp count (%d)", len(valArray), len(tsArray))
	}

	type sample struct {
		ts    time.Time
		value float64
	}
	samples := make([]sample, 0, len(valArray))
	for i := range valArray {
		ts, err := h.parseTimestamp(tsArray[i])
		if err != nil {
			return nil, fmt.Errorf("parse timestamp[%d]: %w", i, err)
		}
		samples = append(samples, sample{ts: ts, value: valArray[i].Float()})
	}

	sort.Slice(samples, func(i, j int) bool {
		return samples[i].ts.Before(samples[j].ts)
	})

	category := h.Category
	if category == "" {
		category = "external"
	}

	records := make([]RawRecord, 0, len(samples))
	for _, s := range samples {
		records = append(records, RawRecord{
			"source":       h.Name(),
			"category":     category,
			"metric_name":  h.MetricName,
			"metric_value": s.value,
			"timestamp":    s.ts.UTC().Format(time.RFC3339),
		})
	}
	return records, nil
}

// parseTimestamp parses a timestamp according to the configured format
func (h *HTTPSource) parseTimestamp(value gjson.Result) (time.Time, error) {
	format := h.TimestampFormat
	if format == "" {
		format = "rfc3339"
	}

	switch format {
	case "rfc3339":
		return time.Parse(time.RFC3339, value.String())

	case "unix":
		// Unix seconds (supports both int and float)
		sec := value.Float()
		return time.Unix(int64(sec), 0).UTC(), nil

	case "unix_milli":
		ms := value.Float()
		return time.UnixMilli(int64(ms)).UTC(), nil

	default:
		return time.Time{}, fmt.Errorf("unsupported timestamp format: %s", format)
	}
}

// renderTemplate renders a text template with the given data
func renderTemplate(tmplStr string, data map[string]any) (string, error) {
	if !strings.Contains(tmplStr, "{{") {
		return tmplStr, nil
	}

	tmpl, err := template.New("").Parse(tmplStr)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}

	return buf.String(), nil
}

// Validate checks that the source configuration is usable.
func (h *HTTPSource) Validate() error {
	if h.URL == "" {
		return errors.New("url is required")
	}
	if h.MetricName == "" {
		return errors.New("metricName is required")
	}
	if h.ValuePath == "" {
		return errors.New("valuePath is required")
	}
	if h.TimestampPath == "" {
		return errors.New("timestampPath is required")
	}

	validFormats := map[string]bool{
		"":           true,
		"rfc3339":    true,
		"unix":       true,
		"unix_milli": true,
	}
	if !validFormats[h.TimestampFormat] {
		return fmt.Errorf("invalid timestampFormat: %s (must be rfc3339, unix, or unix_milli)", h.TimestampFormat)
	}

	return nil
}
