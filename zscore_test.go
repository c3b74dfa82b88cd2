package vigil

import (
	"math"
	"testing"
)

func feed(t *testing.T, d Detector, values ...float64) *Verdict {
	t.Helper()
	var last *Verdict
	for i, x := range values {
		v, err := d.Ingest(Sample{Timestamp: int64(i+1) * 1000, Value: x})
		if err != nil {
			t.Fatalf("Ingest(%g) failed: %v", x, err)
		}
		if v != nil {
			last = v
		}
	}
	return last
}

func TestZScoreDetector_SpikeCritical(t *testing.T) {
	d := NewZScoreDetector(ZScoreConfig{WindowSize: 10, Threshold: 3.0})

	feed(t, d, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1)
	v, err := d.Ingest(Sample{Timestamp: 11000, Value: 10})
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if v == nil {
		t.Fatal("expected a verdict after warmup")
	}
	if z := v.Field("z_score").(float64); math.Abs(z-9.0) > 1e-9 {
		t.Errorf("expected z-score 9.0, got %g", z)
	}
	if v.Severity != SeverityCritical || !v.IsAnomaly {
		t.Errorf("expected critical anomaly, got %v", v.Severity)
	}
}

func TestZScoreDetector_ConstantStreamNormal(t *testing.T) {
	d := NewZScoreDetector(ZScoreConfig{WindowSize: 10, Threshold: 3.0})

	for i := 0; i < 50; i++ {
		v, err := d.Ingest(Sample{Timestamp: int64(i) * 1000, Value: 7.5})
		if err != nil {
			t.Fatalf("Ingest failed: %v", err)
		}
		if v != nil && v.Severity != SeverityNormal {
			t.Fatalf("constant stream produced %v at sample %d", v.Severity, i)
		}
	}
}

func TestZScoreDetector_FlatBaselineJump(t *testing.T) {
	d := NewZScoreDetector(ZScoreConfig{WindowSize: 10, Threshold: 3.0})

	for i := 0; i < 5; i++ {
		if _, err := d.Ingest(Sample{Timestamp: int64(i) * 1000, Value: 10}); err != nil {
			t.Fatalf("Ingest failed: %v", err)
		}
	}
	// Zero-variance baseline: the raw deviation stands in for the
	// Z-score.
	v, err := d.Ingest(Sample{Timestamp: 5000, Value: 19})
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if v == nil {
		t.Fatal("expected a verdict")
	}
	if v.Metric != 9 {
		t.Errorf("statistic = %g, want 9 (raw deviation from flat mean)", v.Metric)
	}
	if v.Severity != SeverityCritical {
		t.Errorf("severity = %v, want critical", v.Severity)
	}
}

func TestZScoreDetector_RejectsNonFinite(t *testing.T) {
	d := NewZScoreDetector(DefaultZScoreConfig())
	feed(t, d, 1, 2, 3)
	before := d.Status().BufferSize

	if _, err := d.Ingest(Sample{Value: math.NaN()}); err == nil {
		t.Fatal("expected validation error for NaN")
	}
	if _, err := d.Ingest(Sample{Value: math.Inf(1)}); err == nil {
		t.Fatal("expected validation error for +Inf")
	}
	if d.Status().BufferSize != before {
		t.Error("invalid input must not alter state")
	}
}

func TestZScoreDetector_WarningTier(t *testing.T) {
	d := NewZScoreDetector(ZScoreConfig{WindowSize: 20, Threshold: 3.0, WarningThreshold: 2.0})

	// Alternating baseline gives non-zero variance.
	feed(t, d, 10, 12, 10, 12, 10, 12, 10, 12, 10, 12)
	v, err := d.Ingest(Sample{Timestamp: 99000, Value: 13.5})
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if v == nil {
		t.Fatal("expected a verdict")
	}
	if v.Severity != SeverityWarning {
		t.Errorf("expected warning, got %v (metric=%g)", v.Severity, v.Metric)
	}
}

func TestZScoreDetector_ResetClearsBuffer(t *testing.T) {
	d := NewZScoreDetector(DefaultZScoreConfig())
	feed(t, d, 1, 2, 3, 4, 5)
	d.Reset()

	st := d.Status()
	if st.BufferSize != 0 || st.Ready {
		t.Errorf("expected empty, unready detector after reset, got %+v", st)
	}
}

func TestRing_BoundedAndOrdered(t *testing.T) {
	r := NewRing(5)
	for i := 0; i < 12; i++ {
		r.Push(Sample{Timestamp: int64(i), Value: float64(i)})
		if r.Len() > 5 {
			t.Fatalf("ring exceeded capacity: %d", r.Len())
		}
	}
	vals := r.Values()
	want := []float64{7, 8, 9, 10, 11}
	for i, w := range want {
		if vals[i] != w {
			t.Errorf("vals[%d] = %g, want %g", i, vals[i], w)
		}
	}
}

func TestAggregates_AgreeWithRecomputation(t *testing.T) {
	agg := NewAggregates()
	values := []float64{3.2, -1.5, 7.8, 0, 2.2, 9.1, -4.4}
	for _, v := range values {
		agg.Observe(v)
	}

	var sum, sumSq float64
	lo, hi := math.MaxFloat64, -math.MaxFloat64
	for _, v := range values {
		sum += v
		sumSq += v * v
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	mean := sum / float64(len(values))
	variance := sumSq/float64(len(values)) - mean*mean

	if math.Abs(agg.Mean()-mean) > 1e-9*math.Abs(mean) {
		t.Errorf("mean mismatch: %g vs %g", agg.Mean(), mean)
	}
	if math.Abs(agg.Variance()-variance) > 1e-9 {
		t.Errorf("variance mismatch: %g vs %g", agg.Variance(), variance)
	}
	if agg.Min != lo || agg.Max != hi {
		t.Errorf("min/max mismatch: %g/%g vs %g/%g", agg.Min, agg.Max, lo, hi)
	}
}
