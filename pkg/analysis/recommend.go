package analysis

import (
	"fmt"
	"sort"
	"time"

	"github.com/HatiCode/metrial/pkg/storage"
)

const (
	// scoreFloor is the performance score below which a metric is worth
	// improving; deeper shortfalls below urgentFloor escalate the
	// priority.
	scoreFloor  = 0.6
	urgentFloor = 0.4

	// reversalConfidence is the minimum trend confidence before a decline
	// is treated as real rather than noise.
	reversalConfidence = 0.7

	// noisyCV marks a metric whose spread is large enough relative to its
	// mean to be worth stabilizing.
	noisyCV = 0.3
)

// Recommend derives optimization opportunities from one analyzed metric:
// a low score suggests headroom to recover, a confident decline suggests a
// reversal, and high relative spread suggests stabilization. Returns nil
// when the metric needs nothing.
func Recommend(r storage.PerformanceRecord, now time.Time) []storage.Opportunity {
	var opps []storage.Opportunity

	if r.Score < scoreFloor {
		priority := storage.PriorityMedium
		if r.Score < urgentFloor {
			priority = storage.PriorityHigh
		}
		opps = append(opps, storage.Opportunity{
			SessionID:  r.SessionID,
			Source:     r.Source,
			MetricName: r.MetricName,
			Kind:       storage.OpportunityPerformance,
			Priority:   priority,
			Potential:  0.9 - r.Score,
			Description: fmt.Sprintf("%s/%s scores %.2f against a %.2f baseline; tuning it back toward baseline is the largest available win",
				r.Source, r.MetricName, r.Score, r.BaselineValue),
			CreatedAt: now,
		})
	}

	if r.Trend == TrendDeclining && r.TrendConfidence > reversalConfidence {
		priority := storage.PriorityMedium
		if r.Score < 0.5 {
			priority = storage.PriorityHigh
		}
		opps = append(opps, storage.Opportunity{
			SessionID:  r.SessionID,
			Source:     r.Source,
			MetricName: r.MetricName,
			Kind:       storage.OpportunityTrend,
			Priority:   priority,
			Potential:  0.3,
			Description: fmt.Sprintf("%s/%s is declining (slope %.3f, confidence %.2f); reversing the trend before it compounds",
				r.Source, r.MetricName, r.TrendSlope, r.TrendConfidence),
			CreatedAt: now,
		})
	}

	if cv := CoefficientOfVariation(r.Stats); cv > noisyCV {
		opps = append(opps, storage.Opportunity{
			SessionID:  r.SessionID,
			Source:     r.Source,
			MetricName: r.MetricName,
			Kind:       storage.OpportunityVariability,
			Priority:   storage.PriorityLow,
			Potential:  0.2,
			Description: fmt.Sprintf("%s/%s varies %.0f%% around its mean; smoothing it would make every other signal clearer",
				r.Source, r.MetricName, cv*100),
			CreatedAt: now,
		})
	}

	return opps
}

var priorityRank = map[string]int{
	storage.PriorityHigh:   3,
	storage.PriorityMedium: 2,
	storage.PriorityLow:    1,
}

// Rank orders opportunities by priority, then by potential improvement
// within a priority. The sort is stable so equal opportunities keep their
// discovery order.
func Rank(opps []storage.Opportunity) {
	sort.SliceStable(opps, func(i, j int) bool {
		if priorityRank[opps[i].Priority] != priorityRank[opps[j].Priority] {
			return priorityRank[opps[i].Priority] > priorityRank[opps[j].Priority]
		}
		return opps[i].Potential > opps[j].Potential
	})
}
