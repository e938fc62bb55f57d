package ingest

import (
	"testing"

	"github.com/miradorstack/equipment-monitor/internal/models"
)

func point(values map[string]float64) models.DataPoint {
	p := models.NewDataPoint("", "")
	for k, v := range values {
		p.Values[k] = v
	}
	return p
}

func TestRepairFillsEveryParameter(t *testing.T) {
	series := []models.DataPoint{
		point(map[string]float64{"a": 1}),
		point(map[string]float64{"b": 7}),
		point(map[string]float64{}),
		point(map[string]float64{"a": 4}),
	}
	params := []string{"a", "b", "c"}

	repaired := Repair(series, params)

	for i, p := range repaired {
		for _, param := range []string{"a", "b"} {
			if _, ok := p.Value(param); !ok {
				t.Fatalf("point %d missing %s after repair", i, param)
			}
		}
		if _, ok := p.Value("c"); ok {
			t.Fatalf("point %d should not invent a value for c", i)
		}
	}
	if v, _ := repaired[0].Value("b"); v != 7 {
		t.Fatalf("expected forward search to fill b=7 at index 0, got %v", v)
	}
	if v, _ := repaired[2].Value("a"); v != 1 {
		t.Fatalf("expected backward search priority (a=1) at index 2, got %v", v)
	}
	if _, ok := series[0].Value("b"); ok {
		t.Fatalf("input series mutated")
	}
}

func TestRepairEmptySeries(t *testing.T) {
	if out := Repair(nil, []string{"a"}); len(out) != 0 {
		t.Fatalf("expected empty output, got %v", out)
	}
}
