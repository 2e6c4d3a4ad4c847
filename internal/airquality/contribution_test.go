package airquality

import (
	"math"
	"testing"
)

func TestComputeContributionsSumsToHundred(t *testing.T) {
	readings := []Pollutants{
		{PM25: 35.5, PM10: 50, NO2: 20, SO2: 5, CO: 0.5, O3: 30},
		{PM25: 1},
		{CO: 12, O3: 0},
		{NO2: 3, SO2: 7},
	}

	for _, r := range readings {
		got := ComputeContributions(r)
		var sum float64
		for _, v := range got {
			sum += v
		}
		if math.Abs(sum-100) > 1e-9 {
			t.Errorf("contributions %v sum to %v", got, sum)
		}
	}
}

func TestComputeContributionsWeights(t *testing.T) {
	got := ComputeContributions(Pollutants{PM25: 10, O3: 10})
	// 40 vs 15 weighted
	want := 40.0 / 55 * 100
	if math.Abs(got[PM25]-want) > 1e-9 {
		t.Fatalf("PM2.5=%v want %v", got[PM25], want)
	}
	if _, ok := got[PM10]; ok {
		t.Fatal("absent pollutant must not appear in output")
	}
}

func TestComputeContributionsAllZero(t *testing.T) {
	got := ComputeContributions(Pollutants{PM25: 0, PM10: 0, NO2: 0, SO2: 0, CO: 0, O3: 0})
	if len(got) != 6 {
		t.Fatalf("len=%d want 6", len(got))
	}
	for p, v := range got {
		if v != 0 || math.IsNaN(v) {
			t.Errorf("%s=%v want 0", p, v)
		}
	}

	if empty := ComputeContributions(Pollutants{}); len(empty) != 0 {
		t.Fatalf("empty input gave %v", empty)
	}
}

func TestComputeContributionsIgnoresUnknown(t *testing.T) {
	got := ComputeContributions(Pollutants{PM25: 5, "NH3": 100})
	if _, ok := got["NH3"]; ok {
		t.Fatal("unknown pollutant included")
	}
	if got[PM25] != 100 {
		t.Fatalf("PM2.5=%v want 100", got[PM25])
	}
}
