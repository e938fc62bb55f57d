package patterns

import (
	"log/slog"
	"sort"

	"github.com/miradorstack/equipment-monitor/internal/models"
	"github.com/miradorstack/equipment-monitor/internal/utils"
)

// Severity weights mirror the health-score deductions.
var severityWeights = map[models.Severity]float64{
	models.SeverityHigh:   15,
	models.SeverityMedium: 8,
	models.SeverityLow:    3,
}

// Miner aggregates a cycle's anomalies into per-parameter hotspots.
type Miner struct {
	logger *slog.Logger
	limit  int
}

// NewMiner constructs a Miner; limit <= 0 keeps every parameter.
func NewMiner(logger *slog.Logger, limit int) *Miner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Miner{logger: logger, limit: limit}
}

// Mine groups anomalies by parameter and returns hotspots ordered by weighted score,
// then by parameter name.
func (m *Miner) Mine(anomalies []models.Anomaly) []models.AnomalyPattern {
	if len(anomalies) == 0 {
		return []models.AnomalyPattern{}
	}

	byParam := make(map[string]*paramAggregate)
	for _, a := range anomalies {
		agg := ensureAggregate(byParam, a.Param)
		switch a.Severity {
		case models.SeverityHigh:
			agg.high++
		case models.SeverityMedium:
			agg.medium++
		case models.SeverityLow:
			agg.low++
		}
		agg.score += severityWeights[a.Severity]
		agg.addKind(kindOf(a))
		agg.observe(a.Time)
	}

	hotspots := make([]models.AnomalyPattern, 0, len(byParam))
	for param, agg := range byParam {
		hotspots = append(hotspots, models.AnomalyPattern{
			Param:     param,
			High:      agg.high,
			Medium:    agg.medium,
			Low:       agg.low,
			Kinds:     agg.kinds,
			FirstSeen: agg.firstSeen,
			LastSeen:  agg.lastSeen,
			Score:     agg.score,
		})
	}

	sort.Slice(hotspots, func(i, j int) bool {
		if hotspots[i].Score != hotspots[j].Score {
			return hotspots[i].Score > hotspots[j].Score
		}
		return hotspots[i].Param < hotspots[j].Param
	})
	if m.limit > 0 && len(hotspots) > m.limit {
		hotspots = hotspots[:m.limit]
	}

	m.logger.Debug("hotspots mined", slog.Int("anomalies", len(anomalies)), slog.Int("hotspots", len(hotspots)))
	return hotspots
}

type paramAggregate struct {
	high, medium, low int
	score             float64
	kinds             []string
	seenKinds         map[string]struct{}
	firstSeen         string
	lastSeen          string
	firstSec, lastSec int
	timed             bool
}

func ensureAggregate(m map[string]*paramAggregate, param string) *paramAggregate {
	if param == "" {
		param = "unknown"
	}
	agg, ok := m[param]
	if !ok {
		agg = &paramAggregate{seenKinds: make(map[string]struct{})}
		m[param] = agg
	}
	return agg
}

func (agg *paramAggregate) addKind(kind string) {
	if _, ok := agg.seenKinds[kind]; ok {
		return
	}
	agg.seenKinds[kind] = struct{}{}
	agg.kinds = append(agg.kinds, kind)
}

// observe tracks the earliest and latest clock labels; unparseable labels are ignored.
func (agg *paramAggregate) observe(label string) {
	sec, ok := utils.ClockSeconds(label)
	if !ok {
		return
	}
	if !agg.timed || sec < agg.firstSec {
		agg.firstSec, agg.firstSeen = sec, label
	}
	if !agg.timed || sec > agg.lastSec {
		agg.lastSec, agg.lastSeen = sec, label
	}
	agg.timed = true
}

// kindOf strips the parameter prefix from an anomaly type ("電流_spike" → "spike").
func kindOf(a models.Anomaly) string {
	prefix := a.Param + "_"
	if a.Param != "" && len(a.Type) > len(prefix) && a.Type[:len(prefix)] == prefix {
		return a.Type[len(prefix):]
	}
	return a.Type
}
