package analysis

import "math"

// Trend directions.
const (
	TrendImproving = "improving"
	TrendDeclining = "declining"
	TrendStable    = "stable"
	TrendUnknown   = "unknown"
)

// stableBand is the fraction of the sample's standard deviation inside which
// a slope is considered noise.
const stableBand = 0.1

// TrendResult classifies the direction of a value series.
type TrendResult struct {
	Direction  string  `json:"direction"`
	Slope      float64 `json:"slope"`
	Confidence float64 `json:"confidence"`
}

// Trend fits a least-squares line through the series (x = 0..n-1) and
// classifies its direction. Slopes smaller than a tenth of the sample's
// standard deviation count as stable; confidence is the absolute Pearson
// correlation of the fit. Fewer than three points is unknown.
func Trend(values []float64) TrendResult {
	if len(values) < 3 {
		return TrendResult{Direction: TrendUnknown}
	}

	n := float64(len(values))
	sumX := 0.0
	sumY := 0.0
	sumXY := 0.0
	sumX2 := 0.0
	sumY2 := 0.0

	for i, y := range values {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumX2 += x * x
		sumY2 += y * y
	}

	// slope = (n*sumXY - sumX*sumY) / (n*sumX2 - sumX*sumX)
	denominator := n*sumX2 - sumX*sumX
	if denominator == 0 {
		return TrendResult{Direction: TrendStable}
	}
	slope := (n*sumXY - sumX*sumY) / denominator

	// Pearson correlation of the fit. A flat series is a perfect fit for
	// the zero-slope line, so it gets full confidence.
	confidence := 1.0
	varY := n*sumY2 - sumY*sumY
	if varY > 0 {
		confidence = math.Abs((n*sumXY - sumX*sumY) / math.Sqrt(denominator*varY))
	}

	stddev := Describe(values).StdDev
	direction := TrendStable
	if slope != 0 && math.Abs(slope) >= stableBand*stddev {
		if slope > 0 {
			direction = TrendImproving
		} else {
			direction = TrendDeclining
		}
	}

	return TrendResult{
		Direction:  direction,
		Slope:      slope,
		Confidence: confidence,
	}
}
