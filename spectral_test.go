package vigil

import (
	"math"
	"math/cmplx"
	"testing"
)

func TestFFT_ImpulseIsFlat(t *testing.T) {
	signal := make([]float64, 8)
	signal[0] = 1
	spectrum := FFT(signal)
	if len(spectrum) != 8 {
		t.Fatalf("spectrum length = %d, want 8", len(spectrum))
	}
	for k, c := range spectrum {
		if math.Abs(cmplx.Abs(c)-1) > 1e-12 {
			t.Errorf("|X[%d]| = %g, want 1 for an impulse", k, cmplx.Abs(c))
		}
	}
}

func TestFFT_DCOnly(t *testing.T) {
	signal := []float64{2, 2, 2, 2}
	spectrum := FFT(signal)
	if math.Abs(cmplx.Abs(spectrum[0])-8) > 1e-12 {
		t.Errorf("|X[0]| = %g, want 8", cmplx.Abs(spectrum[0]))
	}
	for k := 1; k < len(spectrum); k++ {
		if cmplx.Abs(spectrum[k]) > 1e-12 {
			t.Errorf("|X[%d]| = %g, want 0 for a constant signal", k, cmplx.Abs(spectrum[k]))
		}
	}
}

func TestFFT_ZeroPadsToPowerOfTwo(t *testing.T) {
	spectrum := FFT(make([]float64, 100))
	if len(spectrum) != 128 {
		t.Errorf("padded length = %d, want 128", len(spectrum))
	}
}

func TestFFT_MatchesDFT(t *testing.T) {
	signal := []float64{0.3, -1.2, 2.5, 0.7, -0.4, 1.1, -2.0, 0.9}
	spectrum := FFT(signal)
	n := len(signal)
	for k := 0; k < n; k++ {
		var want complex128
		for i, v := range signal {
			angle := -2 * math.Pi * float64(k) * float64(i) / float64(n)
			want += complex(v*math.Cos(angle), v*math.Sin(angle))
		}
		if cmplx.Abs(spectrum[k]-want) > 1e-9 {
			t.Errorf("X[%d] = %v, direct DFT gives %v", k, spectrum[k], want)
		}
	}
}

func TestMagnitudes_HalfSpectrumWithNyquist(t *testing.T) {
	// Alternating +1/-1 puts all energy in the Nyquist bin, which the
	// single-sided spectrum keeps as its last entry.
	signal := []float64{1, -1, 1, -1, 1, -1, 1, -1}
	mags := Magnitudes(FFT(signal))

	if len(mags) != len(signal)/2+1 {
		t.Fatalf("bins = %d, want %d (DC through Nyquist)", len(mags), len(signal)/2+1)
	}
	nyquist := mags[len(mags)-1]
	if math.Abs(nyquist-1) > 1e-9 {
		t.Errorf("Nyquist magnitude = %g, want 1", nyquist)
	}
	for k := 0; k < len(mags)-1; k++ {
		if mags[k] > 1e-9 {
			t.Errorf("bin %d magnitude = %g, want 0", k, mags[k])
		}
	}
}

func TestSpectralAnalyzer_FindsSineFrequency(t *testing.T) {
	cfg := DefaultSpectralConfig()
	cfg.SampleRate = 1000
	cfg.FFTSize = 256
	cfg.Window = WindowHann
	a := NewSpectralAnalyzer(cfg)

	var res *SpectrumResult
	for n := 0; n < 256; n++ {
		var err error
		res, err = a.Ingest(Sample{
			Timestamp: int64(n),
			Value:     math.Sin(2 * math.Pi * 50 * float64(n) / 1000),
		})
		if err != nil {
			t.Fatalf("Ingest failed: %v", err)
		}
	}
	if res == nil {
		t.Fatal("expected spectrum after a full frame")
	}
	if len(res.Peaks) == 0 {
		t.Fatal("no peaks found for a pure sine")
	}
	binWidth := 1000.0 / 256.0
	if got := res.Peaks[0].Frequency; math.Abs(got-50) > binWidth {
		t.Errorf("dominant peak at %g Hz, want 50 within one bin (%g Hz)", got, binWidth)
	}
	if math.Abs(res.Features.Dominant-res.Peaks[0].Frequency) > 1e-9 {
		t.Errorf("dominant feature %g disagrees with top peak %g",
			res.Features.Dominant, res.Peaks[0].Frequency)
	}
}

func TestSpectralAnalyzer_NilUntilFrameFull(t *testing.T) {
	a := NewSpectralAnalyzer(DefaultSpectralConfig())
	for n := 0; n < 255; n++ {
		res, err := a.Ingest(Sample{Timestamp: int64(n), Value: 1})
		if err != nil {
			t.Fatalf("Ingest failed: %v", err)
		}
		if res != nil {
			t.Fatalf("spectrum emitted at sample %d, frame is 256", n+1)
		}
	}
}

func TestSpectralAnalyzer_OverlapRetainsTail(t *testing.T) {
	cfg := DefaultSpectralConfig()
	cfg.FFTSize = 64
	cfg.Overlap = 0.5
	a := NewSpectralAnalyzer(cfg)
	for n := 0; n < 64; n++ {
		if _, err := a.Ingest(Sample{Timestamp: int64(n), Value: float64(n)}); err != nil {
			t.Fatalf("Ingest failed: %v", err)
		}
	}
	if a.Len() != 32 {
		t.Errorf("retained %d samples after frame, want 32 at 50%% overlap", a.Len())
	}
}

func TestSpectralAnalyzer_RejectsNonFinite(t *testing.T) {
	a := NewSpectralAnalyzer(DefaultSpectralConfig())
	if _, err := a.Ingest(Sample{Timestamp: 1, Value: math.NaN()}); err == nil {
		t.Error("NaN accepted")
	}
	if a.Len() != 0 {
		t.Error("rejected sample was buffered")
	}
}

func TestFindPeaks_SortedAndThresholded(t *testing.T) {
	mags := []float64{0, 0.3, 0.2, 5, 0.1, 3, 0.05, 0.4, 0}
	peaks := FindPeaks(mags, 0.1)
	if len(peaks) != 2 {
		t.Fatalf("found %d peaks, want 2 (bins 3 and 5)", len(peaks))
	}
	if peaks[0].Bin != 3 || peaks[1].Bin != 5 {
		t.Errorf("peak bins = %d, %d, want 3, 5", peaks[0].Bin, peaks[1].Bin)
	}
}

func TestFindPeaks_DCExcluded(t *testing.T) {
	mags := []float64{10, 1, 0.5, 0.2}
	for _, p := range FindPeaks(mags, 0.01) {
		if p.Bin == 0 {
			t.Error("DC bin reported as a peak")
		}
	}
}

func TestSpectralFeatures_SingleTone(t *testing.T) {
	a := NewSpectralAnalyzer(SpectralConfig{SampleRate: 1000, FFTSize: 128, Window: WindowRect, PeakThreshold: 0.1})
	signal := make([]float64, 128)
	for n := range signal {
		// Bin-aligned tone: 1000 * 16 / 128 = 125 Hz.
		signal[n] = math.Sin(2 * math.Pi * 125 * float64(n) / 1000)
	}
	res, err := a.Analyze(signal, 0)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if math.Abs(res.Features.Centroid-125) > 1 {
		t.Errorf("centroid = %g Hz, want 125 for a bin-aligned tone", res.Features.Centroid)
	}
	if res.Features.Spread > 5 {
		t.Errorf("spread = %g Hz, want near 0 for a pure tone", res.Features.Spread)
	}
	if res.Features.Energy <= 0 || res.Features.RMS <= 0 {
		t.Errorf("energy = %g, rms = %g, want positive", res.Features.Energy, res.Features.RMS)
	}
}

func TestNextPowerOfTwo(t *testing.T) {
	cases := map[int]int{0: 2, 1: 2, 2: 2, 3: 4, 100: 128, 256: 256, 257: 512}
	for in, want := range cases {
		if got := nextPowerOfTwo(in); got != want {
			t.Errorf("nextPowerOfTwo(%d) = %d, want %d", in, got, want)
		}
	}
}
