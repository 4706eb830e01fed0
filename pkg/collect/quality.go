package collect

import (
	"math"
	"strings"

	"github.com/HatiCode/metrial/pkg/storage"
)

// defaultQuality scores a point's reliability from its type and magnitude.
// Utilization readings degrade as they approach saturation, error rates
// degrade linearly, response times degrade toward the 1s mark, and
// throughput gains confidence up to 1000 units. Anything unrecognized gets
// the neutral 0.5.
func defaultQuality(p storage.DataPoint) float64 {
	v, ok := p.Float()
	if !ok {
		return 0.5
	}

	name := strings.ToLower(p.MetricName)
	var q float64
	switch {
	case p.Type == storage.MetricUtilization:
		q = 1 - (v/100)*0.3
	case p.Type == storage.MetricError:
		q = 1 - v
	case strings.Contains(name, "response_time"):
		q = 1 - v/1000
	case strings.Contains(name, "throughput"):
		q = math.Min(v/1000, 1)
	default:
		return 0.5
	}

	return clamp01(q)
}

// qualityGrade maps an average quality score onto the letter scale used in
// collection summaries.
func qualityGrade(avg float64) string {
	switch {
	case avg >= 0.9:
		return "A+"
	case avg >= 0.8:
		return "A"
	case avg >= 0.7:
		return "B"
	case avg >= 0.6:
		return "C"
	default:
		return "D"
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
