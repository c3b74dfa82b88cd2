package vigil

import (
	"math"
	"testing"
)

func TestPercentileDetector_InterpolatedBounds(t *testing.T) {
	d, err := NewPercentileDetector(PercentileConfig{
		WindowSize:      100,
		LowerPercentile: 5,
		UpperPercentile: 95,
	})
	if err != nil {
		t.Fatalf("NewPercentileDetector failed: %v", err)
	}

	// Fill the window with 1..100.
	for i := 1; i <= 100; i++ {
		if _, err := d.Ingest(Sample{Timestamp: int64(i) * 1000, Value: float64(i)}); err != nil {
			t.Fatalf("Ingest failed: %v", err)
		}
	}

	v, err := d.Ingest(Sample{Timestamp: 101000, Value: 50})
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if v == nil {
		t.Fatal("expected a verdict")
	}
	lower := v.Field("lower_bound").(float64)
	upper := v.Field("upper_bound").(float64)
	if math.Abs(lower-5.95) > 1e-9 {
		t.Errorf("lower bound = %g, want 5.95", lower)
	}
	if math.Abs(upper-95.05) > 1e-9 {
		t.Errorf("upper bound = %g, want 95.05", upper)
	}
	if v.IsAnomaly {
		t.Error("50 is inside the 5th-95th percentile band")
	}
}

func TestPercentileDetector_FlagsOutliers(t *testing.T) {
	d, err := NewPercentileDetector(PercentileConfig{
		WindowSize:      100,
		LowerPercentile: 5,
		UpperPercentile: 95,
	})
	if err != nil {
		t.Fatalf("NewPercentileDetector failed: %v", err)
	}
	for i := 1; i <= 100; i++ {
		if _, err := d.Ingest(Sample{Timestamp: int64(i) * 1000, Value: float64(i)}); err != nil {
			t.Fatalf("Ingest failed: %v", err)
		}
	}

	v, err := d.Ingest(Sample{Timestamp: 101000, Value: 3})
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if v == nil || !v.IsAnomaly || v.Severity != SeverityCritical {
		t.Errorf("value 3 should be flagged below the lower bound, got %+v", v)
	}
}

func TestPercentileDetector_InvertedBandFailsFast(t *testing.T) {
	_, err := NewPercentileDetector(PercentileConfig{
		LowerPercentile: 90,
		UpperPercentile: 10,
	})
	if err == nil {
		t.Fatal("expected construction to fail for inverted percentile band")
	}
}
