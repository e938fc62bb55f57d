package models

// Severity captures anomaly impact levels.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Rank maps severities onto 3 (high), 2 (medium), 1 (low) and 0 otherwise.
func (s Severity) Rank() int {
	switch s {
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// Anomaly is a single rule violation found in a repaired series.
type Anomaly struct {
	Time     string   `json:"time"`
	Type     string   `json:"type"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
	Value    float64  `json:"value"`
	Param    string   `json:"param"`
}

// Capability holds process-capability indices rounded for display.
type Capability struct {
	Cp    float64 `json:"cp"`
	Cpk   float64 `json:"cpk"`
	Sigma float64 `json:"sigma"`
}

// Bin is one bucket of a frequency distribution.
type Bin struct {
	Range      string `json:"range"`
	Count      int    `json:"count"`
	Percentage string `json:"percentage"`
}

// AnalysisResult bundles every derived metric of one fetch cycle.
type AnalysisResult struct {
	Anomalies         []Anomaly             `json:"anomalies"`
	HealthScore       int                   `json:"healthScore"`
	Correlation       float64               `json:"correlation"`
	Utilization       string                `json:"utilization"`
	EnergyEfficiency  string                `json:"energyEfficiency"`
	ProcessCapability map[string]Capability `json:"processCapability"`
	Distributions     map[string][]Bin      `json:"distributions"`
}

// EmptyAnalysis returns the zero bundle used for empty input and failed cycles.
func EmptyAnalysis() AnalysisResult {
	return AnalysisResult{
		Anomalies:         []Anomaly{},
		HealthScore:       0,
		Correlation:       0,
		Utilization:       "0",
		EnergyEfficiency:  "0",
		ProcessCapability: map[string]Capability{},
		Distributions:     map[string][]Bin{},
	}
}

// AnomalyPattern summarises the anomalies one parameter raised during a cycle.
type AnomalyPattern struct {
	Param     string   `json:"param"`
	High      int      `json:"high"`
	Medium    int      `json:"medium"`
	Low       int      `json:"low"`
	Kinds     []string `json:"kinds"`
	FirstSeen string   `json:"firstSeen"`
	LastSeen  string   `json:"lastSeen"`
	Score     float64  `json:"score"`
}
