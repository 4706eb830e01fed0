package sources

import (
	"context"
	"errors"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
)

// SystemSource samples host resource utilization so the pipeline has a live
// input stream even before any collaborator registers a source. Each Collect
// emits up to three records: cpu_usage_percent, memory_usage_percent, and
// disk_usage_percent, all on the 0-100 scale.
type SystemSource struct {
	// DiskPath is the mount point sampled for disk usage. Defaults to "/".
	DiskPath string
}

func (s *SystemSource) Name() string { return "system" }

// Collect samples cpu, memory, and disk. Individual probes that fail are
// skipped; an error is returned only when no probe produced a sample.
func (s *SystemSource) Collect(ctx context.Context) ([]RawRecord, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	now := time.Now().UTC().Format(time.RFC3339)

	record := func(name string, value float64) RawRecord {
		return RawRecord{
			"source":       "system",
			"category":     "resources",
			"metric_name":  name,
			"metric_value": value,
			"timestamp":    now,
		}
	}

	var records []RawRecord

	if percents, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(percents) > 0 {
		records = append(records, record("cpu_usage_percent", percents[0]))
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		records = append(records, record("memory_usage_percent", vm.UsedPercent))
	}

	path := s.DiskPath
	if path == "" {
		path = "/"
	}
	if usage, err := disk.UsageWithContext(ctx, path); err == nil {
		records = append(records, record("disk_usage_percent", usage.UsedPercent))
	}

	if len(records) == 0 {
		return nil, errors.New("system source: no resource samples available")
	}
	return records, nil
}
