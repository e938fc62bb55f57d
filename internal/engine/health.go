package engine

import (
	"math"

	"github.com/miradorstack/equipment-monitor/internal/models"
)

const (
	highPenalty   = 15
	mediumPenalty = 8
	lowPenalty    = 3
)

// HealthScore combines anomaly penalties, data quality, value stability and runtime into an
// integer in [0,100]. A populated series never scores a hard zero: it floors at max(30, 100-5n)
// where n is the anomaly count.
func HealthScore(series []models.DataPoint, anomalies []models.Anomaly, params []string) int {
	score := rawHealthScore(series, anomalies, params)
	if score == 0 && len(series) > 0 {
		score = max(30, 100-5*len(anomalies))
	}
	return score
}

func rawHealthScore(series []models.DataPoint, anomalies []models.Anomaly, params []string) int {
	if len(series) == 0 || len(params) == 0 {
		return 0
	}

	score := 100.0
	counts := severityCounts(anomalies)
	score -= float64(highPenalty*counts[models.SeverityHigh] +
		mediumPenalty*counts[models.SeverityMedium] +
		lowPenalty*counts[models.SeverityLow])

	valid := 0
	for _, param := range params {
		for _, point := range series {
			if v, ok := point.Value(param); ok && v >= 0 {
				valid++
			}
		}
	}
	// Near-empty series skip the quality adjustment entirely; otherwise the penalty floors at 50%.
	quality := float64(valid) / float64(len(series)*len(params))
	if quality > 0.1 {
		score *= math.Max(0.5, quality)
	}

	totalStability, stableParams := 0.0, 0
	for _, param := range params {
		values := positiveValues(series, param)
		if len(values) < 2 {
			continue
		}
		totalStability += stability(values)
		stableParams++
	}
	if stableParams > 0 {
		score += totalStability / float64(stableParams) * 15
	}

	score += math.Min(10, float64(len(series))/10)

	// Overflowing readings leave the score non-finite; treat it as zero so the floor applies.
	if !finite(score) {
		return 0
	}
	return int(clamp(math.Floor(score+0.5), 0, 100))
}

// stability is 1 - coefficient of variation, clamped to [0,1]. values must be strictly positive.
func stability(values []float64) float64 {
	m, sd := meanStdDev(values)
	if m == 0 || !finite(m) || !finite(sd) {
		return 0
	}
	return clamp(1-sd/m, 0, 1)
}

func severityCounts(anomalies []models.Anomaly) map[models.Severity]int {
	counts := make(map[models.Severity]int, 3)
	for _, a := range anomalies {
		counts[a.Severity]++
	}
	return counts
}

func clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
