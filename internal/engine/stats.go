package engine

import (
	"fmt"
	"math"

	"github.com/miradorstack/equipment-monitor/internal/models"
)

const (
	specLowerLimit = 0.0
	specUpperLimit = 100.0
	binCount       = 10
	runningLevel   = 10.0
)

// Correlation is the Pearson coefficient of two parameters over points where both are strictly positive.
// Fewer than two pairs or a zero denominator yield 0.
func Correlation(series []models.DataPoint, x, y string) float64 {
	var n, sumX, sumY, sumXY, sumX2, sumY2 float64
	for _, point := range series {
		vx, okX := point.Value(x)
		vy, okY := point.Value(y)
		if !okX || !okY || vx <= 0 || vy <= 0 {
			continue
		}
		n++
		sumX += vx
		sumY += vy
		sumXY += vx * vy
		sumX2 += vx * vx
		sumY2 += vy * vy
	}
	if n < 2 {
		return 0
	}
	numerator := n*sumXY - sumX*sumY
	denominator := math.Sqrt((n*sumX2 - sumX*sumX) * (n*sumY2 - sumY*sumY))
	if denominator == 0 || !finite(denominator) || !finite(numerator) {
		return 0
	}
	return numerator / denominator
}

// Utilization is the percentage of points whose param exceeds the running level, one decimal.
func Utilization(series []models.DataPoint, param string) string {
	if len(series) == 0 {
		return "0"
	}
	running := runningPoints(series, param)
	return fmt.Sprintf("%.1f", float64(running)/float64(len(series))*100)
}

// EnergyEfficiency is running point count divided by the mean of param, two decimals.
// It is a relative indicator only. No running points (or a non-positive mean) yields "0".
func EnergyEfficiency(series []models.DataPoint, param string) string {
	if len(series) == 0 {
		return "0"
	}
	running := runningPoints(series, param)
	if running == 0 {
		return "0"
	}
	total := 0.0
	for _, point := range series {
		v, _ := point.Value(param)
		total += v
	}
	avg := total / float64(len(series))
	if avg <= 0 || !finite(avg) {
		return "0"
	}
	return fmt.Sprintf("%.2f", float64(running)/avg)
}

// ProcessCapability computes Cp, Cpk and sigma of the strictly-positive values against LSL=0, USL=100.
// No positive values, zero spread, or values large enough to overflow yield the zero Capability.
func ProcessCapability(values []float64) models.Capability {
	positive := filterPositive(values)
	if len(positive) == 0 {
		return models.Capability{}
	}
	mean, sigma := meanStdDev(positive)
	if sigma == 0 || !finite(mean) || !finite(sigma) {
		return models.Capability{}
	}
	cp := (specUpperLimit - specLowerLimit) / (6 * sigma)
	cpk := math.Min((specUpperLimit-mean)/(3*sigma), (mean-specLowerLimit)/(3*sigma))
	if !finite(cp) || !finite(cpk) {
		return models.Capability{}
	}
	return models.Capability{
		Cp:    round(cp, 3),
		Cpk:   round(cpk, 3),
		Sigma: round(sigma, 2),
	}
}

// Distribution buckets strictly-positive values into ten equal-width bins over [min,max].
// When every value is equal all of them land in the first bin.
func Distribution(values []float64) []models.Bin {
	positive := filterPositive(values)
	if len(positive) == 0 {
		return []models.Bin{}
	}
	lo, hi := positive[0], positive[0]
	for _, v := range positive[1:] {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	width := (hi - lo) / binCount

	bins := make([]models.Bin, binCount)
	for i := range bins {
		bins[i].Range = fmt.Sprintf("%.1f-%.1f", lo+float64(i)*width, lo+float64(i+1)*width)
	}
	for _, v := range positive {
		idx := 0
		if width > 0 {
			idx = int(math.Floor((v - lo) / width))
		}
		if idx > binCount-1 {
			idx = binCount - 1
		}
		bins[idx].Count++
	}
	for i := range bins {
		bins[i].Percentage = fmt.Sprintf("%.1f", float64(bins[i].Count)/float64(len(positive))*100)
	}
	return bins
}

// ParamValues returns the defined values of param in series order.
func ParamValues(series []models.DataPoint, param string) []float64 {
	values := make([]float64, 0, len(series))
	for _, point := range series {
		if v, ok := point.Value(param); ok {
			values = append(values, v)
		}
	}
	return values
}

func positiveValues(series []models.DataPoint, param string) []float64 {
	return filterPositive(ParamValues(series, param))
}

func filterPositive(values []float64) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if v > 0 {
			out = append(out, v)
		}
	}
	return out
}

func runningPoints(series []models.DataPoint, param string) int {
	running := 0
	for _, point := range series {
		if v, ok := point.Value(param); ok && v > runningLevel {
			running++
		}
	}
	return running
}

// meanStdDev uses the population variance.
func meanStdDev(values []float64) (mean, sd float64) {
	if len(values) == 0 {
		return 0, 0
	}
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))
	variance := 0.0
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(values))
	return mean, math.Sqrt(variance)
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
