package vigil

import "testing"

func TestCUSUMDetector_ExcursionAndReset(t *testing.T) {
	d := NewCUSUMDetector(CUSUMConfig{
		TargetSet: true,
		Target:    0,
		Drift:     0.5,
		Threshold: 5,
	})

	// On target: stays normal.
	for i := 0; i < 5; i++ {
		v, err := d.Ingest(Sample{Timestamp: int64(i) * 1000, Value: 0})
		if err != nil {
			t.Fatalf("Ingest failed: %v", err)
		}
		if v == nil || v.Severity != SeverityNormal {
			t.Fatalf("expected normal verdict on target, got %+v", v)
		}
	}

	// Sustained shift of +2 accumulates d-k = 1.5 per sample:
	// 1.5, 3.0 normal; 4.5 warning; 6.0 critical (then reset); 1.5.
	wantStats := []float64{1.5, 3.0, 4.5, 6.0, 1.5}
	wantSev := []Severity{SeverityNormal, SeverityNormal, SeverityWarning, SeverityCritical, SeverityNormal}
	for i := range wantStats {
		v, err := d.Ingest(Sample{Timestamp: int64(10+i) * 1000, Value: 2})
		if err != nil {
			t.Fatalf("Ingest failed: %v", err)
		}
		if v == nil {
			t.Fatal("expected a verdict")
		}
		if v.Metric != wantStats[i] {
			t.Errorf("step %d: cusum = %g, want %g", i, v.Metric, wantStats[i])
		}
		if v.Severity != wantSev[i] {
			t.Errorf("step %d: severity = %v, want %v", i, v.Severity, wantSev[i])
		}
	}
}

func TestCUSUMDetector_NegativeShift(t *testing.T) {
	d := NewCUSUMDetector(CUSUMConfig{TargetSet: true, Target: 10, Drift: 0.5, Threshold: 5})

	var last *Verdict
	for i := 0; i < 4; i++ {
		v, err := d.Ingest(Sample{Timestamp: int64(i) * 1000, Value: 8})
		if err != nil {
			t.Fatalf("Ingest failed: %v", err)
		}
		last = v
	}
	if last == nil {
		t.Fatal("expected verdicts")
	}
	if neg := last.Field("cusum_neg").(float64); neg != 6.0 {
		t.Errorf("cusum_neg = %g, want 6.0", neg)
	}
	if last.Severity != SeverityCritical {
		t.Errorf("expected critical for sustained low shift, got %v", last.Severity)
	}
}

func TestCUSUMDetector_TargetFromBufferMean(t *testing.T) {
	d := NewCUSUMDetector(DefaultCUSUMConfig())

	// First sample: no target yet, no verdict.
	v, err := d.Ingest(Sample{Timestamp: 1000, Value: 10})
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if v != nil {
		t.Error("expected no verdict before a target can be resolved")
	}

	v = feed(t, d, 10, 10, 10)
	if v == nil {
		t.Fatal("expected a verdict once the buffer mean is available")
	}
	if tau := v.Field("target").(float64); tau != 10 {
		t.Errorf("resolved target = %g, want 10", tau)
	}
}

func TestCUSUMDetector_ConstantStreamNormal(t *testing.T) {
	d := NewCUSUMDetector(DefaultCUSUMConfig())
	for i := 0; i < 40; i++ {
		v, err := d.Ingest(Sample{Timestamp: int64(i) * 1000, Value: 3.3})
		if err != nil {
			t.Fatalf("Ingest failed: %v", err)
		}
		if v != nil && v.Severity != SeverityNormal {
			t.Fatalf("constant stream produced %v", v.Severity)
		}
	}
}
