// Package ingest turns raw detection records into a gap-filled per-device time series.
package ingest

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/miradorstack/equipment-monitor/internal/models"
	"github.com/miradorstack/equipment-monitor/internal/utils"
)

// Result is the output of one ingestion pass.
type Result struct {
	Series      []models.DataPoint
	Parameters  *models.ParameterSet
	Equipment   []models.EquipmentEntry
	LatestStats map[string]float64
}

// Empty reports whether the pass produced no data points.
func (r Result) Empty() bool { return len(r.Series) == 0 }

// Process filters records to deviceID, extracts parameter values and repairs gaps.
// Records are down-sampled to MaxChartPoints first. Nil or empty input yields an empty result.
func Process(records []models.RawDetectionRecord, deviceID string) Result {
	res := Result{
		Series:      []models.DataPoint{},
		Parameters:  models.NewParameterSet(),
		Equipment:   []models.EquipmentEntry{},
		LatestStats: map[string]float64{},
	}
	if len(records) == 0 {
		return res
	}

	sampled := Downsample(records, MaxChartPoints)
	equipmentIndex := make(map[string]int)

	for i, record := range sampled {
		if record.CamIndex.String() != deviceID {
			continue
		}

		point := models.NewDataPoint(utils.FormatDisplayTime(record.Datetime), record.Datetime)
		for _, det := range record.Detections {
			value := ParseValue(det.Value.String())
			if det.DeviceName != "" {
				point.Values[det.DeviceName] = value
				res.Parameters.Add(det.DeviceName)
			}

			key := det.DeviceID.String() + "_" + det.DeviceName
			idx, ok := equipmentIndex[key]
			if !ok {
				name := det.DeviceName
				if name == "" {
					name = "設備-" + det.DeviceID.String()
				}
				lastUpdate := det.LatestDetectionTime
				if lastUpdate == "" {
					lastUpdate = record.Datetime
				}
				res.Equipment = append(res.Equipment, models.EquipmentEntry{
					ID:         det.DeviceID.String(),
					Name:       name,
					Values:     map[string]float64{},
					LastUpdate: lastUpdate,
				})
				idx = len(res.Equipment) - 1
				equipmentIndex[key] = idx
			}
			res.Equipment[idx].Values[det.DeviceName] = value
			res.Equipment[idx].Status = StatusForValue(value)
		}

		// A record without readings of its own still marks a timestamp once earlier readings exist.
		if n := len(res.Series); n > 0 {
			carryForward(point, res.Series[n-1], res.Parameters)
		}
		if len(point.Values) > 0 {
			res.Series = append(res.Series, point)
		}

		if i == len(sampled)-1 {
			res.LatestStats = make(map[string]float64, len(point.Values))
			for k, v := range point.Values {
				res.LatestStats[k] = v
			}
		}
	}

	res.Series = Repair(res.Series, res.Parameters.Names())
	return res
}

// carryForward copies known parameters missing from point out of the preceding kept point.
func carryForward(point, prev models.DataPoint, params *models.ParameterSet) {
	for _, param := range params.Names() {
		if _, ok := point.Values[param]; ok {
			continue
		}
		if v, ok := prev.Values[param]; ok {
			point.Values[param] = v
		}
	}
}

// StatusForValue classifies a reading: 0 offline, (0,10) idle, [10,100) running, anything else error.
func StatusForValue(value float64) models.EquipmentStatus {
	switch {
	case value == 0:
		return models.StatusOffline
	case value > 0 && value < 10:
		return models.StatusIdle
	case value >= 10 && value < 100:
		return models.StatusRunning
	default:
		return models.StatusError
	}
}

var leadingNumber = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?`)

// ParseValue reads the leading decimal number of raw, returning 0 when there is none.
func ParseValue(raw string) float64 {
	match := leadingNumber.FindString(strings.TrimSpace(raw))
	if match == "" {
		return 0
	}
	v, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return 0
	}
	return v
}
