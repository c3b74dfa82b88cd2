package vigil

import (
	"math"
	"testing"
)

func TestRateOfChangeDetector_AbsoluteRate(t *testing.T) {
	d := NewRateOfChangeDetector(RateOfChangeConfig{Mode: RateModeAbsolute, Threshold: 5})

	if v, err := d.Ingest(Sample{Timestamp: 1000, Value: 10}); err != nil || v != nil {
		t.Fatalf("first sample should only establish a reference: v=%v err=%v", v, err)
	}

	v, err := d.Ingest(Sample{Timestamp: 2000, Value: 20})
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if v == nil {
		t.Fatal("expected a verdict")
	}
	// +10 units over 1s.
	if math.Abs(v.Metric-10) > 1e-9 {
		t.Errorf("rate = %g, want 10", v.Metric)
	}
	if v.Severity != SeverityCritical {
		t.Errorf("rate 10 exceeds threshold 5, got %v", v.Severity)
	}
}

func TestRateOfChangeDetector_PercentageRate(t *testing.T) {
	d := NewRateOfChangeDetector(RateOfChangeConfig{Mode: RateModePercentage})

	d.Ingest(Sample{Timestamp: 0, Value: 100})
	v, err := d.Ingest(Sample{Timestamp: 2000, Value: 110})
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if v == nil {
		t.Fatal("expected a verdict")
	}
	// +10% over 2s = 5 %/s.
	if math.Abs(v.Metric-5) > 1e-9 {
		t.Errorf("rate = %g %%/s, want 5", v.Metric)
	}
	if v.IsAnomaly {
		t.Error("no threshold configured: rates are reported, never flagged")
	}
}

func TestRateOfChangeDetector_SkipsNonPositiveDelta(t *testing.T) {
	d := NewRateOfChangeDetector(DefaultRateOfChangeConfig())

	d.Ingest(Sample{Timestamp: 5000, Value: 1})
	v, err := d.Ingest(Sample{Timestamp: 5000, Value: 2})
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if v != nil {
		t.Error("dt = 0 must not produce a verdict")
	}
}

func TestRateOfChangeDetector_Acceleration(t *testing.T) {
	d := NewRateOfChangeDetector(DefaultRateOfChangeConfig())

	d.Ingest(Sample{Timestamp: 0, Value: 0})
	d.Ingest(Sample{Timestamp: 1000, Value: 10}) // rate 10
	v, _ := d.Ingest(Sample{Timestamp: 2000, Value: 30})
	if v == nil {
		t.Fatal("expected a verdict")
	}
	// rate 20, previous rate 10, over 1s => acceleration 10.
	if a := v.Field("acceleration").(float64); math.Abs(a-10) > 1e-9 {
		t.Errorf("acceleration = %g, want 10", a)
	}
}

func TestRateOfChangeDetector_HistoryPruned(t *testing.T) {
	d := NewRateOfChangeDetector(RateOfChangeConfig{TimeWindow: 10})

	d.Ingest(Sample{Timestamp: 0, Value: 0})
	for i := 1; i <= 30; i++ {
		d.Ingest(Sample{Timestamp: int64(i) * 1000, Value: float64(i)})
	}
	// 10 second window at 1 sample/s keeps about 11 rates.
	if n := d.Status().BufferSize; n > 11 {
		t.Errorf("history not pruned: %d entries", n)
	}
}

func TestTrendDetector_LinearDirections(t *testing.T) {
	cases := []struct {
		name   string
		values []float64
		want   string
	}{
		{"increasing", []float64{1, 2, 3, 4, 5, 6, 7, 8}, TrendIncreasing},
		{"decreasing", []float64{8, 7, 6, 5, 4, 3, 2, 1}, TrendDecreasing},
		{"stable", []float64{5, 5, 5, 5, 5, 5, 5, 5}, TrendStable},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := NewTrendDetector(TrendConfig{WindowSize: 10, WarmupSamples: 5, Method: TrendMethodLinear})
			v := feed(t, d, tc.values...)
			if v == nil {
				t.Fatal("expected a verdict")
			}
			if got := v.Field("trend").(string); got != tc.want {
				t.Errorf("trend = %q, want %q (slope=%g)", got, tc.want, v.Metric)
			}
		})
	}
}

func TestTrendDetector_HoltPrediction(t *testing.T) {
	d := NewTrendDetector(TrendConfig{WindowSize: 30, WarmupSamples: 5, Method: TrendMethodExponential})

	v := feed(t, d, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15)
	if v == nil {
		t.Fatal("expected a verdict")
	}
	if v.Field("trend").(string) != TrendIncreasing {
		t.Errorf("expected increasing trend, got %v", v.Field("trend"))
	}
	next := v.Field("predicted_next").(float64)
	if next <= v.Value {
		t.Errorf("prediction %g should continue above last value %g", next, v.Value)
	}
	// A clean ramp is a fixed point of the smoother once level and trend
	// are seeded from the first two samples, so the one-step forecast
	// lands on the next ramp value.
	if math.Abs(next-16) > 1e-9 {
		t.Errorf("predicted_next = %g, want 16", next)
	}
}

func TestTrendDetector_StepsToThreshold(t *testing.T) {
	d := NewTrendDetector(TrendConfig{
		WindowSize:       20,
		WarmupSamples:    5,
		Method:           TrendMethodLinear,
		WarningThreshold: 20,
	})

	v := feed(t, d, 10, 11, 12, 13, 14, 15)
	if v == nil {
		t.Fatal("expected a verdict")
	}
	steps, ok := v.Field("steps_to_threshold").(int)
	if !ok {
		t.Fatal("expected steps_to_threshold to be present")
	}
	// Slope 1 from value 15: threshold 20 reached in 5 steps.
	if steps != 5 {
		t.Errorf("steps_to_threshold = %d, want 5", steps)
	}
	if ttms := v.Field("time_to_threshold_ms").(float64); math.Abs(ttms-5000) > 1e-6 {
		t.Errorf("time_to_threshold_ms = %g, want 5000", ttms)
	}
}
