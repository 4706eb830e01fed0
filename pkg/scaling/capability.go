// Package scaling implements the capability scaling stage: deterministic
// resource-threshold strategies applied to a plan of scaling capabilities,
// with every attempt validated, executed, and recorded as a scaling
// operation.
package scaling

import "strings"

// Category selects the scaling strategy applied to a capability.
type Category string

const (
	// CategoryPerformance scales hot paths at face-value resource cost.
	CategoryPerformance Category = "performance"
	// CategoryFramework scales framework-level features, which amortize
	// resource cost across callers but pay an integration premium.
	CategoryFramework Category = "framework"
	// CategorySystem scales system-wide capacity, which carries overhead
	// and a tighter budget.
	CategorySystem Category = "system"
	// CategoryDefault is the fallback strategy, identical to performance.
	CategoryDefault Category = "default"
)

// Capability describes one scalable unit of the system: what level it runs
// at, what level is wanted, and what scaling it costs.
type Capability struct {
	ID                   string             `json:"id"`
	Name                 string             `json:"name"`
	Category             Category           `json:"category,omitempty"`
	CurrentLevel         int                `json:"current_level"`
	TargetLevel          int                `json:"target_level"`
	ScalingFactor        float64            `json:"scaling_factor"`
	ResourceRequirements map[string]float64 `json:"resource_requirements,omitempty"`
	PerformanceImpact    float64            `json:"performance_impact"`
}

// ResolvedCategory returns the capability's category, inferring it from the
// id prefix when not set explicitly: perf_, fw_, and sys_ map to their
// strategies, anything else to default.
func (c Capability) ResolvedCategory() Category {
	if c.Category != "" {
		return c.Category
	}
	switch {
	case strings.HasPrefix(c.ID, "perf_"):
		return CategoryPerformance
	case strings.HasPrefix(c.ID, "fw_"):
		return CategoryFramework
	case strings.HasPrefix(c.ID, "sys_"):
		return CategorySystem
	}
	return CategoryDefault
}

// Steps returns how many levels the capability is being raised, at least 1
// so impact division is always defined.
func (c Capability) Steps() int {
	steps := c.TargetLevel - c.CurrentLevel
	if steps < 1 {
		return 1
	}
	return steps
}
