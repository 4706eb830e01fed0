package scaling

import (
	"math"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestExecute_PerformanceBudget(t *testing.T) {
	capability := Capability{
		ID:            "perf_latency_ms",
		Name:          "Improve latency_ms on api",
		CurrentLevel:  1,
		TargetLevel:   3,
		ScalingFactor: 1.0,
		ResourceRequirements: map[string]float64{
			"cpu":             0.2,
			"memory":          0.2,
			"processing_time": 0.1,
		},
		PerformanceImpact: 0.6,
	}

	result := Execute(capability, StrategyConfig{})
	if !result.Success {
		t.Fatalf("demand 0.5 under budget 0.85 should succeed, got %+v", result)
	}
	if !almostEqual(result.Demand, 0.5) {
		t.Errorf("Demand = %v, want 0.5", result.Demand)
	}
	// 0.6 impact spread over 2 levels.
	if !almostEqual(result.Impact, 0.3) {
		t.Errorf("Impact = %v, want 0.3", result.Impact)
	}
	if result.StepsCompleted != 2 {
		t.Errorf("StepsCompleted = %d, want 2", result.StepsCompleted)
	}
	if result.Method != "performance" {
		t.Errorf("Method = %q, want performance", result.Method)
	}
	if !almostEqual(result.ResourceUsage["cpu"], 0.2) {
		t.Errorf("cpu usage = %v, want 0.2", result.ResourceUsage["cpu"])
	}

	capability.ScalingFactor = 3.0
	result = Execute(capability, StrategyConfig{})
	if result.Success {
		t.Fatalf("demand 1.5 over budget 0.85 should fail, got %+v", result)
	}
	if !almostEqual(result.Demand, 1.5) {
		t.Errorf("Demand = %v, want 1.5", result.Demand)
	}
	if result.Impact != 0 {
		t.Errorf("Impact = %v, want 0 on failure", result.Impact)
	}
	if result.StepsCompleted != 0 {
		t.Errorf("StepsCompleted = %d, want 0 on failure", result.StepsCompleted)
	}
}

func TestExecute_FrameworkDiscountAndBoost(t *testing.T) {
	capability := Capability{
		ID:                   "fw_caching",
		Name:                 "Response caching",
		CurrentLevel:         1,
		TargetLevel:          3,
		ScalingFactor:        1.5,
		ResourceRequirements: map[string]float64{"cpu": 0.5},
		PerformanceImpact:    0.4,
	}

	result := Execute(capability, StrategyConfig{})
	if !result.Success {
		t.Fatalf("framework demand 0.6 under stretched budget 0.935, got %+v", result)
	}
	// 0.5 requirement × (0.8 × 1.5) = 0.6.
	if !almostEqual(result.Demand, 0.6) {
		t.Errorf("Demand = %v, want 0.6", result.Demand)
	}
	// 0.4 impact over 2 levels, boosted 30%: 0.26.
	if !almostEqual(result.Impact, 0.26) {
		t.Errorf("Impact = %v, want 0.26", result.Impact)
	}
	if result.Method != "framework" {
		t.Errorf("Method = %q, want framework", result.Method)
	}
}

func TestExecute_FrameworkBudgetStretch(t *testing.T) {
	framework := Capability{
		ID:           "fw_concurrency",
		CurrentLevel: 1, TargetLevel: 2, ScalingFactor: 1.5,
		ResourceRequirements: map[string]float64{"cpu": 0.75},
		PerformanceImpact:    0.4,
	}
	performance := Capability{
		ID:           "perf_hotpath",
		CurrentLevel: 1, TargetLevel: 2, ScalingFactor: 1.0,
		ResourceRequirements: map[string]float64{"cpu": 0.9},
		PerformanceImpact:    0.4,
	}

	// Both land on demand 0.9; only the stretched framework budget of
	// 0.85 × 1.1 = 0.935 accommodates it.
	fwResult := Execute(framework, StrategyConfig{})
	if !fwResult.Success || !almostEqual(fwResult.Demand, 0.9) {
		t.Errorf("framework result = %+v, want success at demand 0.9", fwResult)
	}
	perfResult := Execute(performance, StrategyConfig{})
	if perfResult.Success || !almostEqual(perfResult.Demand, 0.9) {
		t.Errorf("performance result = %+v, want failure at demand 0.9", perfResult)
	}
}

func TestExecute_SystemOverhead(t *testing.T) {
	capability := Capability{
		ID:                   "sys_throughput",
		Name:                 "System throughput",
		CurrentLevel:         1,
		TargetLevel:          2,
		ScalingFactor:        1.0,
		ResourceRequirements: map[string]float64{"cpu": 0.5},
		PerformanceImpact:    0.3,
	}

	result := Execute(capability, StrategyConfig{})
	if !result.Success {
		t.Fatalf("system demand 0.6 under tightened budget 0.765, got %+v", result)
	}
	// 0.5 requirement × 1.2 overhead = 0.6.
	if !almostEqual(result.Demand, 0.6) {
		t.Errorf("Demand = %v, want 0.6", result.Demand)
	}
	// One level climbed, no boost.
	if !almostEqual(result.Impact, 0.3) {
		t.Errorf("Impact = %v, want 0.3", result.Impact)
	}
	if result.Method != "system" {
		t.Errorf("Method = %q, want system", result.Method)
	}

	// Demand 0.84 fits the plain budget but not the system budget of
	// 0.85 × 0.9 = 0.765.
	capability.ResourceRequirements = map[string]float64{"cpu": 0.7}
	result = Execute(capability, StrategyConfig{})
	if result.Success {
		t.Errorf("system demand %.2f should bust budget 0.765", result.Demand)
	}
}

func TestExecute_DefaultMatchesPerformance(t *testing.T) {
	base := Capability{
		CurrentLevel:         2,
		TargetLevel:          4,
		ScalingFactor:        1.2,
		ResourceRequirements: map[string]float64{"cpu": 0.3, "memory": 0.2},
		PerformanceImpact:    0.2,
	}

	unlabeled := base
	unlabeled.ID = "data_processing"
	labeled := base
	labeled.ID = "perf_data"

	got := Execute(unlabeled, StrategyConfig{})
	want := Execute(labeled, StrategyConfig{})

	if got.Method != "default" || want.Method != "performance" {
		t.Fatalf("methods = %q and %q, want default and performance", got.Method, want.Method)
	}
	if got.Success != want.Success || !almostEqual(got.Impact, want.Impact) || !almostEqual(got.Demand, want.Demand) {
		t.Errorf("default result %+v differs from performance result %+v", got, want)
	}
}

func TestExecute_EmptyRequirements(t *testing.T) {
	capability := Capability{ID: "perf_warmup", ScalingFactor: 1.0, PerformanceImpact: 0.5}

	result := Execute(capability, StrategyConfig{})
	if !result.Success {
		t.Fatalf("zero demand should always fit the budget, got %+v", result)
	}
	// No levels to climb still counts as one step.
	if !almostEqual(result.Impact, 0.5) {
		t.Errorf("Impact = %v, want 0.5", result.Impact)
	}
	if result.StepsCompleted != 1 {
		t.Errorf("StepsCompleted = %d, want 1", result.StepsCompleted)
	}
}

func TestExecute_CustomThreshold(t *testing.T) {
	capability := Capability{
		ID:                   "perf_latency_ms",
		ScalingFactor:        1.0,
		ResourceRequirements: map[string]float64{"cpu": 0.4},
		PerformanceImpact:    0.5,
	}

	if result := Execute(capability, StrategyConfig{Threshold: 0.3}); result.Success {
		t.Errorf("demand 0.4 over tightened budget 0.3 should fail, got %+v", result)
	}
	if result := Execute(capability, StrategyConfig{}); !result.Success {
		t.Errorf("demand 0.4 under default budget should succeed, got %+v", result)
	}
}
