package transform

import (
	"math"
	"testing"
)

func TestFlagOutliersSingleSpike(t *testing.T) {
	values := []float64{1.40, 1.45, 1.40, 1.45, 1.40, 2.10, 1.45, 1.40, 1.45, 1.40, 1.45}
	flags := FlagOutliers(values, 5, 5, 0.5)

	for i, flagged := range flags {
		want := i == 5
		if flagged != want {
			t.Errorf("flags[%d] = %v, want %v (values[%d] = %v)", i, flagged, want, i, values[i])
		}
	}
}

func TestFlagOutliersLevelShiftKept(t *testing.T) {
	// A sustained move looks extreme against the past but normal
	// against the future, so it must survive.
	values := []float64{1.0, 1.0, 1.0, 1.0, 1.0, 1.0, 2.0, 2.0, 2.0, 2.0, 2.0, 2.0}
	flags := FlagOutliers(values, 5, 5, 0.5)
	for i, flagged := range flags {
		if flagged {
			t.Errorf("flags[%d] = true for a level shift, want all false", i)
		}
	}
}

func TestFlagOutliersEdgesNeverFlagged(t *testing.T) {
	values := []float64{10, 1, 1, 1, 10}
	flags := FlagOutliers(values, 5, 5, 0.5)
	if flags[0] || flags[len(flags)-1] {
		t.Error("edge points with an empty side must not be flagged")
	}
}

func TestFlagOutliersBelowNeighborhood(t *testing.T) {
	values := []float64{1.40, 1.45, 1.40, 0.60, 1.45, 1.40, 1.45}
	flags := FlagOutliers(values, 5, 5, 0.5)
	if !flags[3] {
		t.Error("downward spike not flagged")
	}
}

func TestRollingAverage(t *testing.T) {
	got := RollingAverage([]float64{1, 2, 3, 4, 5}, 3)
	want := []float64{1, 1.5, 2, 3, 4}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-9 {
			t.Errorf("rolling[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestRollingAverageWindowLargerThanSeries(t *testing.T) {
	got := RollingAverage([]float64{2, 4}, 10)
	if got[0] != 2 || got[1] != 3 {
		t.Errorf("rolling = %v, want [2 3]", got)
	}
}
