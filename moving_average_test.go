package vigil

import (
	"math"
	"testing"
)

func TestMovingAverageDetector_StdDevMode(t *testing.T) {
	d := NewMovingAverageDetector(MovingAverageConfig{
		WindowSize: 10,
		Mode:       ResidualModeStdDev,
		Threshold:  3.0,
	})

	feed(t, d, 10, 12, 10, 12, 10, 12, 10, 12)
	v, err := d.Ingest(Sample{Timestamp: 9000, Value: 18})
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if v == nil {
		t.Fatal("expected a verdict")
	}
	// MA = 11, sigma = 1, residual = 7 => statistic 7.
	if math.Abs(v.Metric-7) > 1e-9 {
		t.Errorf("statistic = %g, want 7", v.Metric)
	}
	if v.Severity != SeverityCritical {
		t.Errorf("expected critical, got %v", v.Severity)
	}
}

func TestMovingAverageDetector_PercentageMode(t *testing.T) {
	d := NewMovingAverageDetector(MovingAverageConfig{
		WindowSize: 10,
		Mode:       ResidualModePercentage,
		Threshold:  20, // percent
	})

	feed(t, d, 100, 100, 100, 100)
	v, err := d.Ingest(Sample{Timestamp: 5000, Value: 130})
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if v == nil {
		t.Fatal("expected a verdict")
	}
	if math.Abs(v.Metric-30) > 1e-9 {
		t.Errorf("statistic = %g%%, want 30%%", v.Metric)
	}
	if !v.IsAnomaly {
		t.Error("30% deviation should exceed a 20% threshold")
	}
}

func TestEMADetector_TracksLevel(t *testing.T) {
	d := NewEMADetector(EMAConfig{WindowSize: 10, Alpha: 0.5, Threshold: 3.0})

	v := feed(t, d, 10, 10, 10, 10, 10)
	if v == nil {
		t.Fatal("expected a verdict")
	}
	if ema := v.Field("ema").(float64); math.Abs(ema-10) > 1e-9 {
		t.Errorf("ema = %g, want 10", ema)
	}
	if v.Severity != SeverityNormal {
		t.Errorf("constant stream should be normal, got %v", v.Severity)
	}
}

func TestEMADetector_FirstSampleInitializes(t *testing.T) {
	d := NewEMADetector(EMAConfig{WindowSize: 10, Alpha: 0.5})

	if _, err := d.Ingest(Sample{Timestamp: 1, Value: 42}); err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	v := feed(t, d, 42, 42)
	if v == nil {
		t.Fatal("expected a verdict")
	}
	if ema := v.Field("ema").(float64); ema != 42 {
		t.Errorf("ema = %g, want 42 (initialized from first sample)", ema)
	}
}

func TestEMADetector_PercentageMode(t *testing.T) {
	d := NewEMADetector(EMAConfig{
		WindowSize: 10,
		Alpha:      0.1,
		Mode:       ResidualModePercentage,
		Threshold:  50,
	})

	feed(t, d, 100, 100, 100, 100)
	v, err := d.Ingest(Sample{Timestamp: 5000, Value: 300})
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if v == nil {
		t.Fatal("expected a verdict")
	}
	if !v.IsAnomaly {
		t.Errorf("200-point jump should be anomalous, metric=%g", v.Metric)
	}
}
