package ingest

import "github.com/miradorstack/equipment-monitor/internal/models"

// Repair fills every missing parameter value with its nearest defined neighbour, searching
// backward first and then forward. Parameters with no value anywhere stay missing.
// The input series is left untouched.
func Repair(series []models.DataPoint, params []string) []models.DataPoint {
	repaired := make([]models.DataPoint, len(series))
	for i, point := range series {
		repaired[i] = point.Clone()
	}

	for _, param := range params {
		for i := range repaired {
			if _, ok := repaired[i].Values[param]; ok {
				continue
			}
			if v, ok := nearestValue(series, param, i); ok {
				repaired[i].Values[param] = v
			}
		}
	}
	return repaired
}

func nearestValue(series []models.DataPoint, param string, index int) (float64, bool) {
	for i := index - 1; i >= 0; i-- {
		if v, ok := series[i].Values[param]; ok {
			return v, true
		}
	}
	for i := index + 1; i < len(series); i++ {
		if v, ok := series[i].Values[param]; ok {
			return v, true
		}
	}
	return 0, false
}
