// Package trend provides generic time-series analysis: a half-split trend
// verdict, a least-squares next-value forecast and a moving-average smoother.
package trend

import (
	"math"

	"github.com/nadmax/pipepulse/internal/repository/models"
)

type Direction string

const (
	Increasing Direction = "increasing"
	Decreasing Direction = "decreasing"
	Stable     Direction = "stable"
)

const (
	stableBandPercent    = 5.0
	DefaultMovingWindow  = 7
	DefaultAnalysisDays  = 7
	originalValueMetaKey = "originalValue"
)

// HalfSplit compares the mean of the second half of values against the first
// half. On odd lengths the second half receives the extra element.
func HalfSplit(values []float64) (Direction, float64) {
	if len(values) < 2 {
		return Stable, 0
	}

	mid := len(values) / 2
	firstAvg := mean(values[:mid])
	secondAvg := mean(values[mid:])

	var changePercent float64
	switch {
	case firstAvg != 0:
		changePercent = (secondAvg - firstAvg) / firstAvg * 100
	case secondAvg != 0:
		changePercent = math.Copysign(100, secondAvg)
	}

	switch {
	case math.Abs(changePercent) < stableBandPercent:
		return Stable, changePercent
	case changePercent > 0:
		return Increasing, changePercent
	default:
		return Decreasing, changePercent
	}
}

// PredictNext fits value against index 0..n-1 and extrapolates to index n.
func PredictNext(values []float64) float64 {
	n := len(values)
	switch n {
	case 0:
		return 0
	case 1:
		return values[0]
	}

	var sumX, sumY, sumXY, sumX2 float64
	for i, y := range values {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumX2 += x * x
	}

	fn := float64(n)
	slope := (fn*sumXY - sumX*sumY) / (fn*sumX2 - sumX*sumX)
	intercept := (sumY - slope*sumX) / fn

	return slope*fn + intercept
}

// MovingAverage emits one smoothed point per window-ending sample. Each
// output point keeps the original value under metadata "originalValue".
// Series shorter than the window are returned unchanged.
func MovingAverage(points []models.TrendPoint, window int) []models.TrendPoint {
	if window <= 0 {
		window = DefaultMovingWindow
	}
	if len(points) < window {
		return points
	}

	out := make([]models.TrendPoint, 0, len(points)-window+1)
	var sum float64
	for i, p := range points {
		sum += p.Value
		if i >= window {
			sum -= points[i-window].Value
		}
		if i < window-1 {
			continue
		}

		smoothed := p
		smoothed.Value = sum / float64(window)
		smoothed.Metadata = make(map[string]any, len(p.Metadata)+1)
		for k, v := range p.Metadata {
			smoothed.Metadata[k] = v
		}
		smoothed.Metadata[originalValueMetaKey] = p.Value

		out = append(out, smoothed)
	}

	return out
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	var sum float64
	for _, v := range values {
		sum += v
	}

	return sum / float64(len(values))
}
