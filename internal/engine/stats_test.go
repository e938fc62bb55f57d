package engine

import (
	"math"
	"testing"

	"github.com/miradorstack/equipment-monitor/internal/models"
)

func pairSeries(xs, ys []float64) []models.DataPoint {
	out := make([]models.DataPoint, len(xs))
	for i := range xs {
		p := models.NewDataPoint(clockTimes(len(xs))[i], "")
		p.Values["x"] = xs[i]
		p.Values["y"] = ys[i]
		out[i] = p
	}
	return out
}

func TestCorrelation(t *testing.T) {
	series := pairSeries([]float64{1, 2, 3, 0}, []float64{2, 4, 6, 100})
	if got := Correlation(series, "x", "y"); math.Abs(got-1) > 1e-9 {
		t.Fatalf("expected perfect correlation ignoring zero pair, got %f", got)
	}

	inverse := pairSeries([]float64{1, 2, 3}, []float64{6, 4, 2})
	if got := Correlation(inverse, "x", "y"); math.Abs(got+1) > 1e-9 {
		t.Fatalf("expected -1, got %f", got)
	}

	if got := Correlation(pairSeries([]float64{1}, []float64{2}), "x", "y"); got != 0 {
		t.Fatalf("single pair must yield 0, got %f", got)
	}
	if got := Correlation(pairSeries([]float64{5, 5, 5}, []float64{1, 2, 3}), "x", "y"); got != 0 {
		t.Fatalf("constant series must yield 0, got %f", got)
	}
}

func TestUtilization(t *testing.T) {
	values := []float64{20, 20, 20, 20, 20, 20, 20, 5, 5, 5}
	series := seriesOf("current", clockTimes(len(values)), values)
	if got := Utilization(series, "current"); got != "70.0" {
		t.Fatalf("expected 70.0, got %s", got)
	}
	if got := Utilization(nil, "current"); got != "0" {
		t.Fatalf("expected 0 for empty series, got %s", got)
	}
}

func TestEnergyEfficiency(t *testing.T) {
	series := seriesOf("current", clockTimes(4), []float64{20, 20, 0, 0})
	if got := EnergyEfficiency(series, "current"); got != "0.20" {
		t.Fatalf("expected 0.20, got %s", got)
	}
	idle := seriesOf("current", clockTimes(3), []float64{5, 5, 5})
	if got := EnergyEfficiency(idle, "current"); got != "0" {
		t.Fatalf("expected 0 with nothing running, got %s", got)
	}
}

func TestProcessCapability(t *testing.T) {
	got := ProcessCapability([]float64{40, 60, 0, -3})
	want := models.Capability{Cp: 1.667, Cpk: 1.667, Sigma: 10}
	if got != want {
		t.Fatalf("expected %+v, got %+v", want, got)
	}

	if got := ProcessCapability([]float64{0, -1}); got != (models.Capability{}) {
		t.Fatalf("expected zero capability without positive values, got %+v", got)
	}
	if got := ProcessCapability([]float64{7, 7, 7}); got != (models.Capability{}) {
		t.Fatalf("expected zero capability without spread, got %+v", got)
	}

	skewed := ProcessCapability([]float64{80, 90})
	if skewed.Cpk >= skewed.Cp {
		t.Fatalf("off-centre process must have cpk < cp, got %+v", skewed)
	}
}

func TestDistribution(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 0}
	bins := Distribution(values)
	if len(bins) != 10 {
		t.Fatalf("expected 10 bins, got %d", len(bins))
	}
	total := 0
	for _, b := range bins {
		total += b.Count
	}
	if total != 10 {
		t.Fatalf("expected 10 positive values binned, got %d", total)
	}
	if bins[0].Range != "1.0-1.9" || bins[0].Count != 1 || bins[0].Percentage != "10.0" {
		t.Fatalf("unexpected first bin %+v", bins[0])
	}
	if bins[9].Count == 0 {
		t.Fatalf("maximum must land in the last bin, got %+v", bins)
	}
}

func TestDistributionEqualValues(t *testing.T) {
	bins := Distribution([]float64{4, 4, 4})
	if len(bins) != 10 {
		t.Fatalf("expected 10 bins, got %d", len(bins))
	}
	if bins[0].Count != 3 || bins[0].Percentage != "100.0" {
		t.Fatalf("expected all values in first bin, got %+v", bins[0])
	}
	if bins[5].Count != 0 || bins[5].Range != "4.0-4.0" {
		t.Fatalf("unexpected bin %+v", bins[5])
	}
}

func TestDistributionEmpty(t *testing.T) {
	bins := Distribution([]float64{0, -2})
	if bins == nil || len(bins) != 0 {
		t.Fatalf("expected empty non-nil bins, got %#v", bins)
	}
}

func TestProcessCapabilityOverflow(t *testing.T) {
	if got := ProcessCapability([]float64{1.5e308, 1.6e308}); got != (models.Capability{}) {
		t.Fatalf("expected zero capability, got %+v", got)
	}
	series := pairSeries([]float64{1.5e308, 1.6e308, 1.7e308}, []float64{1, 2, 3})
	if got := Correlation(series, "x", "y"); got != 0 {
		t.Fatalf("expected zero correlation on overflow, got %v", got)
	}
}
