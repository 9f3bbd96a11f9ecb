package util

import (
	"math"
	"testing"
)

func TestNewDistributionStats(t *testing.T) {
	even := NewDistributionStats([]float64{10, 10, 10, 10})
	if even.DistributionQuality != 1.0 {
		t.Errorf("Even distribution should have quality 1.0, got %f", even.DistributionQuality)
	}

	skewed := NewDistributionStats([]float64{40, 0, 0, 0})
	if skewed.DistributionQuality >= even.DistributionQuality {
		t.Errorf("Skewed distribution should rate lower, got %f", skewed.DistributionQuality)
	}
	if skewed.Min != 0 || skewed.Max != 40 || skewed.Mean != 10 {
		t.Errorf("Unexpected stats %+v", skewed.Stats)
	}

	if (NewStats(nil) != Stats{}) {
		t.Errorf("Stats of no samples should be zero")
	}
}

func TestSizeHistogram(t *testing.T) {
	h := NewSizeHistogram()

	for i := 0; i < 90; i++ {
		h.AddSample(10)
	}
	for i := 0; i < 10; i++ {
		h.AddSample(5000)
	}

	if h.GetCount() != 100 {
		t.Fatalf("Expected 100 samples, got %d", h.GetCount())
	}
	if h.Sum() != 90*10+10*5000 {
		t.Errorf("Unexpected sum %d", h.Sum())
	}
	if got := h.MedianEstimate(); got != 8 {
		t.Errorf("Median of small samples should be estimated as 8, got %d", got)
	}
	if got := h.GetPercentileEstimate(99); got != (4096+16384)/2 {
		t.Errorf("Unexpected p99 estimate %d", got)
	}

	h.RemoveSample(5000)
	if h.GetCount() != 99 {
		t.Errorf("Expected 99 samples after removal, got %d", h.GetCount())
	}
	if math.Abs(float64(h.AverageSize())-float64(h.Sum()/99)) > 0 {
		t.Errorf("Average does not match sum/count")
	}

	h.Reset()
	if h.GetCount() != 0 || h.Sum() != 0 {
		t.Errorf("Histogram should be empty after Reset")
	}
}
