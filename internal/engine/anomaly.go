package engine

import (
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/miradorstack/equipment-monitor/internal/models"
	"github.com/miradorstack/equipment-monitor/internal/utils"
)

const instabilityWindow = 5

// Detector applies the per-parameter threshold rules to a repaired series.
type Detector struct {
	classifier Classifier
}

// NewDetector builds a detector; a nil classifier uses the built-in vocabulary.
func NewDetector(classifier Classifier) *Detector {
	if classifier == nil {
		classifier = NewKeywordClassifier(DefaultVocabulary())
	}
	return &Detector{classifier: classifier}
}

// Detect scans every parameter once and returns anomalies ordered by severity, then clock time.
// A single point may raise several anomalies. Points without a value for the parameter are skipped.
func (d *Detector) Detect(series []models.DataPoint, params []string) []models.Anomaly {
	anomalies := make([]models.Anomaly, 0)
	for _, param := range params {
		profile := d.classifier.Classify(param)
		anomalies = append(anomalies, detectParam(series, param, profile)...)
	}
	SortAnomalies(anomalies)
	return anomalies
}

func detectParam(series []models.DataPoint, param string, profile Profile) []models.Anomaly {
	t := profile.Thresholds
	unit := profile.Unit
	var out []models.Anomaly

	emit := func(point models.DataPoint, kind string, severity models.Severity, value float64, msg string) {
		out = append(out, models.Anomaly{
			Time:     point.Time,
			Type:     param + "_" + kind,
			Message:  msg,
			Severity: severity,
			Value:    saturate(value),
			Param:    param,
		})
	}

	for i, point := range series {
		value, ok := point.Value(param)
		if !ok {
			continue
		}
		var prev, next float64
		var hasPrev, hasNext bool
		if i > 0 {
			prev, hasPrev = series[i-1].Value(param)
		}
		if i < len(series)-1 {
			next, hasNext = series[i+1].Value(param)
		}

		if value > t.Max {
			emit(point, "critical_high", models.SeverityHigh, value,
				fmt.Sprintf("%s critically high: %.1f%s (>%s%s)", param, value, unit, num(t.Max), unit))
		}
		// Exact zero is data loss, not critical low.
		if value < t.Min && value > 0 {
			emit(point, "critical_low", models.SeverityHigh, value,
				fmt.Sprintf("%s critically low: %.1f%s (<%s%s)", param, value, unit, num(t.Min), unit))
		}
		if value > t.HighWarning && value <= t.Max {
			emit(point, "warning_high", models.SeverityMedium, value,
				fmt.Sprintf("%s high warning: %.1f%s (>%s%s)", param, value, unit, num(t.HighWarning), unit))
		}
		if value < t.LowWarning && value >= t.Min {
			emit(point, "warning_low", models.SeverityMedium, value,
				fmt.Sprintf("%s low warning: %.1f%s (<%s%s)", param, value, unit, num(t.LowWarning), unit))
		}

		if hasPrev {
			if change := abs(value - prev); change > t.SuddenChange {
				emit(point, "spike", models.SeverityMedium, change,
					fmt.Sprintf("%s spike: %.1f%s (previous %.1f%s)", param, change, unit, prev, unit))
			}
		}

		if hasPrev && hasNext {
			if prev < value && value < next && next-prev > t.SuddenChange*0.5 {
				emit(point, "trend_up", models.SeverityLow, next-prev,
					fmt.Sprintf("%s rising trend: %.1f→%.1f→%.1f%s", param, prev, value, next, unit))
			}
			if prev > value && value > next && prev-next > t.SuddenChange*0.5 {
				emit(point, "trend_down", models.SeverityLow, prev-next,
					fmt.Sprintf("%s falling trend: %.1f→%.1f→%.1f%s", param, prev, value, next, unit))
			}
		}

		if value == 0 && hasPrev && prev > 0 {
			emit(point, "data_loss", models.SeverityMedium, 0,
				fmt.Sprintf("%s data loss: dropped to zero (previous %.1f%s)", param, prev, unit))
		}

		if i >= instabilityWindow-1 {
			if lo, hi, ok := windowRange(series[i-instabilityWindow+1:i+1], param); ok {
				if fluctuation := hi - lo; fluctuation > t.SuddenChange*1.5 {
					emit(point, "unstable", models.SeverityLow, fluctuation,
						fmt.Sprintf("%s unstable: fluctuation %.1f%s (range %.1f-%.1f%s)", param, fluctuation, unit, lo, hi, unit))
				}
			}
		}
	}
	return out
}

// windowRange returns min and max of param over points; ok is false if any point lacks a value.
func windowRange(points []models.DataPoint, param string) (lo, hi float64, ok bool) {
	for i, p := range points {
		v, defined := p.Value(param)
		if !defined {
			return 0, 0, false
		}
		if i == 0 || v < lo {
			lo = v
		}
		if i == 0 || v > hi {
			hi = v
		}
	}
	return lo, hi, len(points) > 0
}

// SortAnomalies orders by severity (high first), then by clock time within a day.
// Labels that are not clock times sort after those that are.
func SortAnomalies(anomalies []models.Anomaly) {
	sort.SliceStable(anomalies, func(i, j int) bool {
		ri, rj := anomalies[i].Severity.Rank(), anomalies[j].Severity.Rank()
		if ri != rj {
			return ri > rj
		}
		si, okI := utils.ClockSeconds(anomalies[i].Time)
		sj, okJ := utils.ClockSeconds(anomalies[j].Time)
		switch {
		case okI && okJ:
			return si < sj
		case okI:
			return true
		default:
			return false
		}
	})
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// saturate caps differences of huge opposite-signed readings at the largest finite float.
func saturate(v float64) float64 {
	switch {
	case math.IsInf(v, 1):
		return math.MaxFloat64
	case math.IsInf(v, -1):
		return -math.MaxFloat64
	}
	return v
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
