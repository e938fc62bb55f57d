package models

// EquipmentStatus is the coarse operating state shown in equipment lists.
type EquipmentStatus string

const (
	StatusRunning EquipmentStatus = "running"
	StatusIdle    EquipmentStatus = "idle"
	StatusError   EquipmentStatus = "error"
	StatusOffline EquipmentStatus = "offline"
)

// Priority orders statuses for display: running first, offline last.
func (s EquipmentStatus) Priority() int {
	switch s {
	case StatusRunning:
		return 1
	case StatusIdle:
		return 2
	case StatusError:
		return 3
	case StatusOffline:
		return 4
	default:
		return 5
	}
}

// EquipmentEntry tracks the last value of one (deviceId, deviceName) pair within a fetch cycle.
type EquipmentEntry struct {
	ID         string             `json:"id"`
	Name       string             `json:"name"`
	Values     map[string]float64 `json:"values"`
	Status     EquipmentStatus    `json:"status"`
	LastUpdate string             `json:"lastUpdate"`
}
