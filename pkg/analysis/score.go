package analysis

import (
	"math"
	"time"

	"github.com/HatiCode/metrial/pkg/storage"
)

// utilizationTarget is the sweet spot for 0-100 utilization metrics: far
// enough below saturation to absorb spikes, high enough not to waste
// capacity.
const utilizationTarget = 0.6

// Score rates a current value against its baseline on a 0-1 scale, 1 being
// best.
//
// Error metrics reward being at or under baseline; utilization metrics
// reward proximity to the target level and ignore the baseline; generic
// metrics reward exceeding baseline. A zero baseline is uninformative and
// scores the neutral 0.5.
func Score(t storage.MetricType, current, baseline float64) float64 {
	if t == storage.MetricUtilization {
		score := 1 - 2*math.Abs(current/100-utilizationTarget)
		if score < 0 {
			return 0
		}
		if score > 1 {
			return 1
		}
		return score
	}

	if baseline == 0 {
		return 0.5
	}

	switch t {
	case storage.MetricError:
		if current <= baseline {
			return 1 - 0.5*(current/baseline)
		}
		return math.Max(0, 0.5-0.5*(current-baseline)/baseline)
	default:
		if current >= baseline {
			return 0.5 + 0.5*math.Min((current-baseline)/baseline, 1)
		}
		return 0.5 * (current / baseline)
	}
}

// Confidence rates how much to trust a performance record: the average of a
// sample-size term (full at 10 points), a recency term (decaying to zero
// over 24h), and a stability term (decaying with the coefficient of
// variation).
func Confidence(samples int, sinceLatest time.Duration, cv float64) float64 {
	sampleScore := math.Min(float64(samples)/10, 1)
	recencyScore := math.Max(0, 1-sinceLatest.Hours()/24)
	stabilityScore := math.Max(0, 1-cv)
	return (sampleScore + recencyScore + stabilityScore) / 3
}

// performanceGrade maps an overall analysis score onto the letter scale used
// in analysis reports.
func performanceGrade(score float64) string {
	switch {
	case score >= 0.9:
		return "A+"
	case score >= 0.7:
		return "B+"
	case score >= 0.5:
		return "C"
	case score >= 0.3:
		return "D"
	default:
		return "F"
	}
}
