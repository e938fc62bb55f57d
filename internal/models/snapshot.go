package models

import "time"

// Snapshot is everything a completed fetch cycle hands to presentation clients.
type Snapshot struct {
	Generation  uint64             `json:"generation"`
	DeviceID    string             `json:"deviceId"`
	Window      QueryWindow        `json:"window"`
	Series      []DataPoint        `json:"series"`
	Parameters  []string           `json:"parameters"`
	Equipment   []EquipmentEntry   `json:"equipment"`
	LatestStats map[string]float64 `json:"latestStats"`
	Analysis    AnalysisResult     `json:"analysis"`
	Hotspots    []AnomalyPattern   `json:"hotspots"`
	Error       string             `json:"error,omitempty"`
	UpdatedAt   time.Time          `json:"updatedAt"`
}

// EmptySnapshot returns a snapshot with every collection initialised and nothing in it.
func EmptySnapshot() Snapshot {
	return Snapshot{
		Series:      []DataPoint{},
		Parameters:  []string{},
		Equipment:   []EquipmentEntry{},
		LatestStats: map[string]float64{},
		Analysis:    EmptyAnalysis(),
		Hotspots:    []AnomalyPattern{},
	}
}
