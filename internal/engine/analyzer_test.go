package engine

import (
	"encoding/json"
	"testing"

	"github.com/miradorstack/equipment-monitor/internal/models"
)

func TestAnalyzeEmptySeries(t *testing.T) {
	result := NewAnalyzer(nil, nil).Analyze(nil, []string{"current"})
	if result.HealthScore != 0 || result.Utilization != "0" || result.EnergyEfficiency != "0" {
		t.Fatalf("unexpected empty analysis %+v", result)
	}
	if result.Anomalies == nil || len(result.Anomalies) != 0 {
		t.Fatalf("expected empty anomalies slice, got %#v", result.Anomalies)
	}
	if len(result.ProcessCapability) != 0 || len(result.Distributions) != 0 {
		t.Fatalf("expected empty maps, got %+v", result)
	}
}

func TestAnalyzeComputesEveryParameter(t *testing.T) {
	series := pairSeries([]float64{20, 22, 24, 45}, []float64{30, 31, 32, 33})
	result := NewAnalyzer(nil, nil).Analyze(series, []string{"x", "y"})

	if result.HealthScore < 0 || result.HealthScore > 100 {
		t.Fatalf("health score out of range: %d", result.HealthScore)
	}
	if result.Utilization != "100.0" {
		t.Fatalf("expected utilization of primary parameter, got %s", result.Utilization)
	}
	if result.Correlation <= 0 {
		t.Fatalf("expected positive correlation, got %f", result.Correlation)
	}
	for _, param := range []string{"x", "y"} {
		if _, ok := result.ProcessCapability[param]; !ok {
			t.Fatalf("missing capability for %s", param)
		}
		if len(result.Distributions[param]) != 10 {
			t.Fatalf("expected 10 bins for %s, got %d", param, len(result.Distributions[param]))
		}
	}
	found := false
	for _, a := range result.Anomalies {
		if a.Type == "x_spike" && a.Time == "08:03:00" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected x spike at last point, got %+v", result.Anomalies)
	}
}

func TestAnalyzeOverflowingReadingsStayEncodable(t *testing.T) {
	series := seriesOf("load", clockTimes(6), []float64{1.5e308, 1.6e308, -1.7e308, 1.6e308, 1.5e308, 1.7e308})
	result := NewAnalyzer(nil, nil).Analyze(series, []string{"load"})

	if result.HealthScore < 0 || result.HealthScore > 100 {
		t.Fatalf("health score out of range: %d", result.HealthScore)
	}
	if capability := result.ProcessCapability["load"]; capability != (models.Capability{}) {
		t.Fatalf("expected zero capability for overflowing values, got %+v", capability)
	}
	if _, err := json.Marshal(result); err != nil {
		t.Fatalf("analysis must stay JSON-encodable: %v", err)
	}
}
