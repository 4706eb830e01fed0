package scaling

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/HatiCode/metrial/pkg/storage"
)

// derivedLimit caps how many capabilities one analysis session can feed
// into a scaling plan.
const derivedLimit = 10

// LoadCapabilityCatalog reads a JSON array of capabilities from a file.
func LoadCapabilityCatalog(path string) ([]Capability, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read capability catalog: %w", err)
	}

	var catalog []Capability
	if err := json.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("parse capability catalog %s: %w", path, err)
	}

	for _, c := range catalog {
		if c.ID == "" {
			return nil, fmt.Errorf("capability catalog %s: capability without id", path)
		}
	}

	return catalog, nil
}

// DefaultCatalog returns the built-in capabilities scaled when no catalog
// file is configured: three framework features and three capacity levers.
func DefaultCatalog() []Capability {
	return []Capability{
		{
			ID: "fw_concurrency", Name: "Request concurrency",
			CurrentLevel: 2, TargetLevel: 5, ScalingFactor: 2.0, PerformanceImpact: 0.4,
			ResourceRequirements: frameworkRequirements(2.0),
		},
		{
			ID: "fw_caching", Name: "Response caching",
			CurrentLevel: 1, TargetLevel: 4, ScalingFactor: 1.8, PerformanceImpact: 0.35,
			ResourceRequirements: frameworkRequirements(1.8),
		},
		{
			ID: "fw_batching", Name: "Write batching",
			CurrentLevel: 1, TargetLevel: 3, ScalingFactor: 1.5, PerformanceImpact: 0.25,
			ResourceRequirements: frameworkRequirements(1.5),
		},
		{
			ID: "sys_throughput", Name: "System throughput",
			CurrentLevel: 1, TargetLevel: 3, ScalingFactor: 1.6, PerformanceImpact: 0.3,
			ResourceRequirements: capacityRequirements(1.6),
		},
		{
			ID: "data_processing", Name: "Data processing capacity",
			CurrentLevel: 2, TargetLevel: 4, ScalingFactor: 1.4, PerformanceImpact: 0.2,
			ResourceRequirements: capacityRequirements(1.4),
		},
		{
			ID: "analytics", Name: "Analytics capacity",
			CurrentLevel: 1, TargetLevel: 3, ScalingFactor: 1.7, PerformanceImpact: 0.25,
			ResourceRequirements: capacityRequirements(1.7),
		},
	}
}

func frameworkRequirements(factor float64) map[string]float64 {
	return map[string]float64{
		"cpu":             0.2 * factor,
		"memory":          0.15 * factor,
		"processing_time": 0.3 * factor,
	}
}

func capacityRequirements(factor float64) map[string]float64 {
	return map[string]float64{
		"cpu":             0.1 * factor,
		"memory":          0.08 * factor,
		"processing_time": 0.15 * factor,
	}
}

// CapabilitiesFromOpportunities turns an analysis session's
// performance-improvement opportunities into scaling capabilities, largest
// potential first, capped at ten. The potential drives every parameter:
// more headroom means a higher target level, a stronger factor, and more
// resources committed.
func CapabilitiesFromOpportunities(opps []storage.Opportunity) []Capability {
	perf := make([]storage.Opportunity, 0, len(opps))
	for _, opp := range opps {
		if opp.Kind == storage.OpportunityPerformance {
			perf = append(perf, opp)
		}
	}

	sort.SliceStable(perf, func(i, j int) bool {
		return perf[i].Potential > perf[j].Potential
	})
	if len(perf) > derivedLimit {
		perf = perf[:derivedLimit]
	}

	capabilities := make([]Capability, 0, len(perf))
	for _, opp := range perf {
		p := opp.Potential
		target := int(p * 10)
		if target > 5 {
			target = 5
		}
		capabilities = append(capabilities, Capability{
			ID:            "perf_" + opp.MetricName,
			Name:          fmt.Sprintf("Improve %s on %s", opp.MetricName, opp.Source),
			CurrentLevel:  1,
			TargetLevel:   target,
			ScalingFactor: 1 + p,
			ResourceRequirements: map[string]float64{
				"cpu":             0.1 * p,
				"memory":          0.05 * p,
				"processing_time": 0.2 * p,
			},
			PerformanceImpact: p,
		})
	}

	return capabilities
}

// Merge combines two capability lists, keeping the first occurrence of each
// id.
func Merge(primary, secondary []Capability) []Capability {
	seen := make(map[string]bool, len(primary))
	merged := make([]Capability, 0, len(primary)+len(secondary))

	for _, c := range primary {
		if seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		merged = append(merged, c)
	}
	for _, c := range secondary {
		if seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		merged = append(merged, c)
	}

	return merged
}
