package scaling

// defaultThreshold is the resource budget a scaled capability must stay
// under for the attempt to succeed.
const defaultThreshold = 0.85

// StrategyConfig parameterizes strategy execution. A zero Threshold selects
// the default 0.85 budget.
type StrategyConfig struct {
	Threshold float64
}

// StrategyResult is the outcome of executing one scaling strategy.
type StrategyResult struct {
	Success        bool
	Impact         float64
	ResourceUsage  map[string]float64
	Demand         float64
	StepsCompleted int
	Method         string
}

// Execute runs the capability's strategy and returns the outcome. Execution
// is pure arithmetic: the category shapes how requirements translate into
// resource demand and how the budget flexes, and the attempt succeeds iff
// total demand stays under the budget.
//
//   - performance (and default): demand is requirement × factor against the
//     plain budget.
//   - framework: demand is discounted 20%, the budget stretches 10%, and a
//     successful impact is boosted 30%.
//   - system: demand carries a 20% overhead against a budget tightened 10%.
//
// A successful attempt's impact is the capability's performance impact
// spread over the levels climbed.
func Execute(c Capability, cfg StrategyConfig) StrategyResult {
	threshold := cfg.Threshold
	if threshold <= 0 {
		threshold = defaultThreshold
	}

	category := c.ResolvedCategory()
	usageFactor := c.ScalingFactor
	impactBoost := 1.0

	switch category {
	case CategoryFramework:
		usageFactor = 0.8 * c.ScalingFactor
		impactBoost = 1.3
		threshold *= 1.1
	case CategorySystem:
		usageFactor = 1.2 * c.ScalingFactor
		threshold *= 0.9
	}

	usage := make(map[string]float64, len(c.ResourceRequirements))
	demand := 0.0
	for resource, requirement := range c.ResourceRequirements {
		usage[resource] = requirement * usageFactor
		demand += usage[resource]
	}

	result := StrategyResult{
		ResourceUsage: usage,
		Demand:        demand,
		Method:        string(category),
	}

	if demand < threshold {
		result.Success = true
		result.Impact = c.PerformanceImpact / float64(c.Steps()) * impactBoost
		result.StepsCompleted = c.Steps()
	}

	return result
}
