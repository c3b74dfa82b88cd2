package vigil

import (
	"math"
	"testing"
)

func TestLowpassBiquad_UnityAtDC(t *testing.T) {
	f := lowpassBiquad(100, 1000)
	// H(1) = (b0+b1+b2)/(1+a1+a2) must be 1 for a low-pass.
	num := f.b0 + f.b1 + f.b2
	den := 1 + f.a1 + f.a2
	if math.Abs(num/den-1) > 1e-9 {
		t.Errorf("DC gain = %g, want 1", num/den)
	}
}

func TestHighpassBiquad_UnityAtNyquist(t *testing.T) {
	f := highpassBiquad(100, 1000)
	// H(-1) = (b0-b1+b2)/(1-a1+a2) must be 1 for a high-pass.
	num := f.b0 - f.b1 + f.b2
	den := 1 - f.a1 + f.a2
	if math.Abs(num/den-1) > 1e-9 {
		t.Errorf("Nyquist gain = %g, want 1", num/den)
	}
	// And zero at DC.
	if g := (f.b0 + f.b1 + f.b2) / (1 + f.a1 + f.a2); math.Abs(g) > 1e-9 {
		t.Errorf("DC gain = %g, want 0", g)
	}
}

func TestBiquad_FiltfiltPreservesLength(t *testing.T) {
	signal := make([]float64, 300)
	for i := range signal {
		signal[i] = math.Sin(0.1 * float64(i))
	}
	out := lowpassBiquad(50, 1000).filtfilt(signal)
	if len(out) != len(signal) {
		t.Errorf("filtfilt length = %d, want %d", len(out), len(signal))
	}
}

func TestBandpass_AttenuatesOutOfBand(t *testing.T) {
	fs := 1000.0
	n := 1000
	inBand := make([]float64, n)
	low := make([]float64, n)
	for i := 0; i < n; i++ {
		ti := float64(i) / fs
		inBand[i] = math.Sin(2 * math.Pi * 150 * ti)
		low[i] = math.Sin(2 * math.Pi * 5 * ti)
	}
	// Band 100..300 Hz: the 150 Hz tone passes, the 5 Hz tone does not.
	outIn := bandpass(inBand, 100, 300, fs)
	outLow := bandpass(low, 100, 300, fs)

	// Skip the edges where the reflected transient lives.
	rmsIn := rmsOf(outIn[100 : n-100])
	rmsLow := rmsOf(outLow[100 : n-100])
	if rmsIn < 0.5 {
		t.Errorf("in-band RMS = %g, want near the input's 0.707", rmsIn)
	}
	if rmsLow > 0.1*rmsIn {
		t.Errorf("out-of-band RMS %g not attenuated vs in-band %g", rmsLow, rmsIn)
	}
}

func rmsOf(signal []float64) float64 {
	var sum float64
	for _, v := range signal {
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(signal)))
}

func TestBandpass_FallbackOnBadBand(t *testing.T) {
	signal := []float64{1, 2, 3, 4, 5, 6, 7, 8, 7, 6, 5, 4, 3, 2, 1, 0}
	// fL >= fH forces the moving-average fallback; it must still return
	// a same-length finite signal.
	out := bandpass(signal, 400, 100, 1000)
	if len(out) != len(signal) {
		t.Fatalf("fallback length = %d, want %d", len(out), len(signal))
	}
	for i, v := range out {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			t.Fatalf("fallback produced non-finite value at %d", i)
		}
	}
	// Short signals also fall back.
	short := bandpass([]float64{1, 2, 3}, 100, 400, 1000)
	if len(short) != 3 {
		t.Errorf("short-signal fallback length = %d, want 3", len(short))
	}
}

func TestEnvelopeAnalyzer_DetectsModulationFrequency(t *testing.T) {
	cfg := EnvelopeConfig{
		SampleRate:    4096,
		WindowSize:    4096,
		BandLow:       400,
		BandHigh:      1600,
		ShaftRPM:      1800, // 30 Hz shaft
		BPFO:          96,
		PeakThreshold: 0.2,
	}
	a := NewEnvelopeAnalyzer(cfg)

	// A 1 kHz carrier amplitude-modulated at the BPFO rate: the classic
	// outer-race signature.
	n := 4096
	signal := make([]float64, n)
	for i := 0; i < n; i++ {
		ti := float64(i) / cfg.SampleRate
		mod := 1 + 0.8*math.Sin(2*math.Pi*96*ti)
		signal[i] = mod * math.Sin(2*math.Pi*1000*ti)
	}
	res, err := a.Analyze(signal, 0)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if len(res.Peaks) == 0 {
		t.Fatal("no envelope peaks found")
	}

	found := false
	for _, m := range res.Matches {
		if m.Type == FaultBPFO && m.Harmonic == 1 {
			found = true
			if math.Abs(m.Detected-96) > 96*faultTolerance {
				t.Errorf("BPFO detected at %g Hz, want within 5%% of 96", m.Detected)
			}
		}
	}
	if !found {
		t.Errorf("BPFO fundamental not matched; peaks %v matches %v", res.Peaks, res.Matches)
	}
}

func TestEnvelopeAnalyzer_FrameBuffering(t *testing.T) {
	cfg := DefaultEnvelopeConfig()
	cfg.WindowSize = 64
	cfg.SampleRate = 1000
	cfg.BandLow = 50
	cfg.BandHigh = 400
	a := NewEnvelopeAnalyzer(cfg)

	for i := 0; i < 63; i++ {
		res, err := a.Ingest(Sample{Timestamp: int64(i), Value: math.Sin(float64(i))})
		if err != nil {
			t.Fatalf("Ingest failed: %v", err)
		}
		if res != nil {
			t.Fatalf("result before the frame filled, at %d", i)
		}
	}
	res, err := a.Ingest(Sample{Timestamp: 63, Value: 0})
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if res == nil {
		t.Fatal("no result at frame boundary")
	}
	if a.Len() != 0 {
		t.Errorf("buffer not drained after frame, Len = %d", a.Len())
	}
}

func TestFaultSeverityGrading(t *testing.T) {
	if s := faultSeverity(1.0, 1.0); s != "high" {
		t.Errorf("dominant peak severity = %s, want high", s)
	}
	if s := faultSeverity(0.5, 1.0); s != "medium" {
		t.Errorf("mid peak severity = %s, want medium", s)
	}
	if s := faultSeverity(0.1, 1.0); s != "low" {
		t.Errorf("minor peak severity = %s, want low", s)
	}
}
