package vigil

import (
	"math"
	"testing"
)

func TestRealCepstrum_FiniteOnSilence(t *testing.T) {
	ceps := RealCepstrum(make([]float64, 64))
	if len(ceps) != 33 {
		t.Fatalf("cepstrum length = %d, want 33 for a 64-point frame", len(ceps))
	}
	for i, c := range ceps {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			t.Fatalf("non-finite coefficient at %d; log floor missing", i)
		}
	}
}

func TestRealCepstrum_HarmonicSignalHasRahmonic(t *testing.T) {
	// A harmonic series spaced 100 Hz apart puts periodic ripple in the
	// log spectrum; the cepstrum concentrates it near q = 1/100 s.
	fs := 2048.0
	n := 2048
	signal := make([]float64, n)
	for i := 0; i < n; i++ {
		ti := float64(i) / fs
		for h := 1; h <= 8; h++ {
			signal[i] += math.Sin(2 * math.Pi * 100 * float64(h) * ti)
		}
	}

	cfg := CepstrumConfig{
		SampleRate: fs,
		WindowSize: n,
		Threshold:  0.3,
	}
	a := NewCepstrumAnalyzer(cfg)
	res, err := a.Analyze(signal, 0)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if len(res.Rahmonics) == 0 {
		t.Fatal("no rahmonics found for a harmonic series")
	}

	found := false
	for _, r := range res.Rahmonics {
		if math.Abs(r.Frequency-100) < 10 {
			found = true
		}
	}
	if !found {
		freqs := make([]float64, len(res.Rahmonics))
		for i, r := range res.Rahmonics {
			freqs[i] = r.Frequency
		}
		t.Errorf("no rahmonic near 100 Hz; found %v", freqs)
	}
}

func TestCepstrumAnalyzer_GearMeshMatching(t *testing.T) {
	// 20 Hz shaft with a 20-tooth gear: GMF = 400 Hz. Build a signal
	// whose harmonics are spaced at the mesh frequency.
	fs := 4096.0
	n := 4096
	signal := make([]float64, n)
	for i := 0; i < n; i++ {
		ti := float64(i) / fs
		for h := 1; h <= 4; h++ {
			signal[i] += math.Sin(2 * math.Pi * 400 * float64(h) * ti)
		}
	}

	cfg := CepstrumConfig{
		SampleRate: fs,
		WindowSize: n,
		Threshold:  0.3,
		ShaftRPM:   1200, // 20 Hz
		GearTeeth:  []int{20},
	}
	a := NewCepstrumAnalyzer(cfg)
	res, err := a.Analyze(signal, 0)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if res.ShaftFreq != 20 {
		t.Errorf("shaft frequency = %g, want 20", res.ShaftFreq)
	}

	found := false
	for _, m := range res.Matches {
		if m.Teeth == 20 && m.Sideband == 0 {
			found = true
			if math.Abs(m.Detected-m.Expected)/m.Expected > gearTolerance {
				t.Errorf("match outside tolerance: %+v", m)
			}
		}
	}
	if !found {
		t.Errorf("gear mesh not matched; rahmonics %v matches %v", res.Rahmonics, res.Matches)
	}
}

func TestCepstrumAnalyzer_FrameBuffering(t *testing.T) {
	cfg := DefaultCepstrumConfig()
	cfg.WindowSize = 32
	a := NewCepstrumAnalyzer(cfg)
	for i := 0; i < 31; i++ {
		res, err := a.Ingest(Sample{Timestamp: int64(i), Value: math.Sin(float64(i))})
		if err != nil {
			t.Fatalf("Ingest failed: %v", err)
		}
		if res != nil {
			t.Fatalf("result before the frame filled, at %d", i)
		}
	}
	res, err := a.Ingest(Sample{Timestamp: 31, Value: 0})
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if res == nil {
		t.Fatal("no result at frame boundary")
	}
	if a.Len() != 0 {
		t.Errorf("buffer not drained, Len = %d", a.Len())
	}
}

func TestCepstrumAnalyzer_RejectsNonFinite(t *testing.T) {
	a := NewCepstrumAnalyzer(DefaultCepstrumConfig())
	if _, err := a.Ingest(Sample{Timestamp: 1, Value: math.NaN()}); err == nil {
		t.Error("NaN accepted")
	}
	if _, err := a.Analyze([]float64{1, 2, 3}, 0); err == nil {
		t.Error("undersized frame accepted")
	}
}

func TestCepstrumAnalyzer_QuefrencyBand(t *testing.T) {
	fs := 1000.0
	cfg := CepstrumConfig{
		SampleRate:    fs,
		WindowSize:    256,
		Threshold:     0.01,
		QuefrencyLow:  0.02,
		QuefrencyHigh: 0.05,
	}
	a := NewCepstrumAnalyzer(cfg)

	signal := make([]float64, 256)
	for i := range signal {
		ti := float64(i) / fs
		for h := 1; h <= 6; h++ {
			signal[i] += math.Sin(2 * math.Pi * 40 * float64(h) * ti)
		}
	}
	res, err := a.Analyze(signal, 0)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	for _, r := range res.Rahmonics {
		if r.Quefrency < 0.02-1e-9 || r.Quefrency > 0.05+1e-9 {
			t.Errorf("rahmonic at q=%g outside the configured band", r.Quefrency)
		}
	}
}
