// Package sources provides the pluggable inputs the collector polls for raw
// metric records.
//
// Each source implements the Source interface and can be registered with the
// collector. Available sources include:
//   - SystemSource samples host cpu/memory/disk utilization via gopsutil
//   - HTTPSource is a generic source for any REST API with JSON responses
//   - FuncSource wraps a plain record-producing function
//
// Sources are intentionally lightweight. They fetch raw data and shape it
// into RawRecord maps, leaving normalization, quality scoring, and
// validation to the collector.
package sources

import "context"

// RawRecord is one un-normalized observation handed to the collector.
// The collector expects the keys "source", "category", "metric_name",
// "metric_value", and "timestamp" (RFC3339 string or time.Time); missing
// source, category, and timestamp fields are filled with defaults during
// normalization, and records may carry extra keys that end up in the point's
// metadata.
type RawRecord map[string]any

// Source is the interface all collector inputs implement.
//
// Collect is synchronous and must respect context cancellation. Transient
// failures are returned as errors; the collector logs them and retries on
// the next tick.
type Source interface {
	// Collect fetches the source's current records. It must never panic.
	Collect(ctx context.Context) ([]RawRecord, error)

	// Name returns a short, unique identifier for the source.
	// Example: "system", "application", "http".
	Name() string
}

// FuncSource adapts a plain function into a Source. It backs the collector's
// RegisterFunc convenience for collaborators that just hand records over.
type FuncSource struct {
	name string
	fn   func() []RawRecord
}

// NewFuncSource wraps fn as a Source with the given name.
func NewFuncSource(name string, fn func() []RawRecord) *FuncSource {
	return &FuncSource{name: name, fn: fn}
}

func (s *FuncSource) Name() string { return s.name }

// Collect invokes the wrapped function. The context is only consulted for
// cancellation before the call; the function itself cannot be interrupted.
func (s *FuncSource) Collect(ctx context.Context) ([]RawRecord, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	if s.fn == nil {
		return nil, nil
	}
	return s.fn(), nil
}
