package models

// Device is one machine in the backend roster.
type Device struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Status        EquipmentStatus `json:"status"`
	Connected     bool            `json:"connected"`
	Warning       bool            `json:"warning"`
	WorkCount     int             `json:"workCount"`
	Efficiency    string          `json:"efficiency"`
	OperationMode string          `json:"operationMode"`
	ProgramNo     string          `json:"programNo"`
	ToolCode      string          `json:"toolCode"`
	SpindleLoad   float64         `json:"spindleLoad"`
	SpindleSpeed  int             `json:"spindleSpeed"`
	FeedRate      int             `json:"feedRate"`
	PowerOnTime   string          `json:"powerOnTime"`
	Rates         DeviceRates     `json:"rates"`
}

// DeviceRates are the backend's share-of-time ratios, formatted to two decimals.
type DeviceRates struct {
	Operation string `json:"operation"`
	Idle      string `json:"idle"`
	Alarm     string `json:"alarm"`
	Offline   string `json:"offline"`
}

// RosterSummary counts devices per status.
type RosterSummary struct {
	Error             int    `json:"error"`
	Idle              int    `json:"idle"`
	Running           int    `json:"running"`
	Offline           int    `json:"offline"`
	AverageEfficiency string `json:"averageEfficiency"`
}

// Roster is the sorted device list plus its summary.
type Roster struct {
	Devices []Device      `json:"devices"`
	Summary RosterSummary `json:"summary"`
}
