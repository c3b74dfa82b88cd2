package vigil

import (
	"math"
	"sort"
)

// SpectralConfig configures the streaming spectrum analyzer.
type SpectralConfig struct {
	// SampleRate is the signal sample rate in Hz. When zero it is
	// estimated from sample timestamps.
	SampleRate float64

	// FFTSize is the transform length. Rounded up to a power of two.
	FFTSize int

	// Window tapers each frame before the transform.
	Window WindowFunc

	// PeakThreshold is the fraction of the maximum magnitude a bin must
	// reach to count as a peak.
	PeakThreshold float64

	// MaxPeaks bounds the reported peak list. Zero means no bound.
	MaxPeaks int

	// Overlap is the fraction of each frame shared with the next,
	// in [0, 0.95].
	Overlap float64
}

// DefaultSpectralConfig returns sensible defaults.
func DefaultSpectralConfig() SpectralConfig {
	return SpectralConfig{
		FFTSize:       256,
		Window:        WindowHann,
		PeakThreshold: 0.1,
		MaxPeaks:      10,
	}
}

// SpectralPeak is one local maximum of the magnitude spectrum.
type SpectralPeak struct {
	Bin       int     `json:"bin"`
	Frequency float64 `json:"frequency"`
	Magnitude float64 `json:"magnitude"`
}

// SpectralFeatures summarizes one magnitude spectrum.
type SpectralFeatures struct {
	Centroid    float64 `json:"centroid"`
	Spread      float64 `json:"spread"`
	RMS         float64 `json:"rms"`
	CrestFactor float64 `json:"crest_factor"`
	Energy      float64 `json:"energy"`
	Dominant    float64 `json:"dominant_frequency"`
}

// SpectrumResult is the full output for one analyzed frame.
type SpectrumResult struct {
	SampleRate float64 `json:"sample_rate"`
	FFTSize    int     `json:"fft_size"`
	Window     string  `json:"window"`
	// Magnitudes is the single-sided spectrum, bins 0 through
	// FFTSize/2 inclusive (DC through Nyquist).
	Magnitudes []float64        `json:"magnitudes"`
	Peaks      []SpectralPeak   `json:"peaks"`
	Features   SpectralFeatures `json:"features"`
	Timestamp  int64            `json:"timestamp"`
}

// Resolution returns the bin width in Hz.
func (r *SpectrumResult) Resolution() float64 {
	if r.FFTSize == 0 {
		return 0
	}
	return r.SampleRate / float64(r.FFTSize)
}

// SpectralAnalyzer buffers a scalar stream and emits a spectrum each time
// a full frame is available, retaining the configured overlap between
// frames.
type SpectralAnalyzer struct {
	config SpectralConfig
	buf    []Sample
}

// NewSpectralAnalyzer creates a spectrum analyzer, clamping invalid
// config to defaults.
func NewSpectralAnalyzer(config SpectralConfig) *SpectralAnalyzer {
	if config.FFTSize <= 0 {
		config.FFTSize = 256
	}
	config.FFTSize = nextPowerOfTwo(config.FFTSize)
	if config.PeakThreshold <= 0 || config.PeakThreshold >= 1 {
		config.PeakThreshold = 0.1
	}
	if config.Overlap < 0 {
		config.Overlap = 0
	}
	if config.Overlap > 0.95 {
		config.Overlap = 0.95
	}
	return &SpectralAnalyzer{
		config: config,
		buf:    make([]Sample, 0, config.FFTSize),
	}
}

// Ingest appends one sample and returns a spectrum when a frame
// completes, nil otherwise.
func (a *SpectralAnalyzer) Ingest(s Sample) (*SpectrumResult, error) {
	if !s.Valid() {
		return nil, newValidationError("spectral", "non-finite value", s.Value)
	}
	a.buf = append(a.buf, s)
	if len(a.buf) < a.config.FFTSize {
		return nil, nil
	}

	res := a.analyzeFrame(a.buf, s.Timestamp)

	// Retain the overlap tail for the next frame.
	keep := int(float64(a.config.FFTSize) * a.config.Overlap)
	if keep > 0 {
		copy(a.buf, a.buf[len(a.buf)-keep:])
		a.buf = a.buf[:keep]
	} else {
		a.buf = a.buf[:0]
	}
	return res, nil
}

// Analyze runs a one-shot transform over an arbitrary signal slice.
func (a *SpectralAnalyzer) Analyze(signal []float64, timestamp int64) (*SpectrumResult, error) {
	if len(signal) < 2 {
		return nil, ErrInsufficientData
	}
	for _, v := range signal {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, newValidationError("spectral", "non-finite value", v)
		}
	}
	samples := make([]Sample, len(signal))
	dt := int64(1)
	if a.config.SampleRate > 0 {
		dt = int64(1000 / a.config.SampleRate)
	}
	for i, v := range signal {
		samples[i] = Sample{Timestamp: int64(i) * dt, Value: v}
	}
	return a.analyzeFrame(samples, timestamp), nil
}

// Reset discards buffered samples.
func (a *SpectralAnalyzer) Reset() {
	a.buf = a.buf[:0]
}

// Len returns the number of buffered samples.
func (a *SpectralAnalyzer) Len() int { return len(a.buf) }

func (a *SpectralAnalyzer) analyzeFrame(frame []Sample, timestamp int64) *SpectrumResult {
	fs := a.config.SampleRate
	if fs <= 0 {
		fs = estimateSampleRate(frame)
	}

	signal := make([]float64, len(frame))
	for i, s := range frame {
		signal[i] = s.Value
	}
	applyWindow(signal, a.config.Window)

	spectrum := FFT(signal)
	mags := Magnitudes(spectrum)
	n := len(spectrum)

	peaks := FindPeaks(mags, a.config.PeakThreshold)
	for i := range peaks {
		peaks[i].Frequency = BinFrequency(peaks[i].Bin, n, fs)
	}
	if a.config.MaxPeaks > 0 && len(peaks) > a.config.MaxPeaks {
		peaks = peaks[:a.config.MaxPeaks]
	}

	return &SpectrumResult{
		SampleRate: fs,
		FFTSize:    n,
		Window:     a.config.Window.String(),
		Magnitudes: mags,
		Peaks:      peaks,
		Features:   computeSpectralFeatures(mags, n, fs),
		Timestamp:  timestamp,
	}
}

// estimateSampleRate derives the rate from the mean spacing of the
// frame's millisecond timestamps.
func estimateSampleRate(frame []Sample) float64 {
	if len(frame) < 2 {
		return 1
	}
	span := frame[len(frame)-1].Timestamp - frame[0].Timestamp
	if span <= 0 {
		return 1
	}
	meanMS := float64(span) / float64(len(frame)-1)
	return 1000 / meanMS
}

// FindPeaks scans a magnitude spectrum for local maxima strictly greater
// than both neighbors and at least threshold times the global maximum.
// The DC bin and the last bin are never peaks. The result is sorted by
// magnitude, descending.
func FindPeaks(mags []float64, threshold float64) []SpectralPeak {
	if len(mags) < 3 {
		return nil
	}
	maxMag := 0.0
	for _, m := range mags[1:] {
		if m > maxMag {
			maxMag = m
		}
	}
	if maxMag == 0 {
		return nil
	}
	floor := threshold * maxMag

	var peaks []SpectralPeak
	for k := 1; k < len(mags)-1; k++ {
		m := mags[k]
		if m > mags[k-1] && m > mags[k+1] && m >= floor {
			peaks = append(peaks, SpectralPeak{Bin: k, Magnitude: m})
		}
	}
	sort.Slice(peaks, func(i, j int) bool { return peaks[i].Magnitude > peaks[j].Magnitude })
	return peaks
}

// computeSpectralFeatures summarizes the non-DC part of a magnitude
// spectrum.
func computeSpectralFeatures(mags []float64, fftSize int, fs float64) SpectralFeatures {
	var f SpectralFeatures
	if len(mags) < 2 {
		return f
	}

	var sum, weighted, sumSq, peak float64
	peakBin := 0
	for k := 1; k < len(mags); k++ {
		m := mags[k]
		freq := BinFrequency(k, fftSize, fs)
		sum += m
		weighted += m * freq
		sumSq += m * m
		if m > peak {
			peak = m
			peakBin = k
		}
	}
	f.Energy = sumSq
	f.RMS = math.Sqrt(sumSq / float64(len(mags)-1))
	if f.RMS > 0 {
		f.CrestFactor = peak / f.RMS
	}
	f.Dominant = BinFrequency(peakBin, fftSize, fs)
	if sum > 0 {
		f.Centroid = weighted / sum
		var spread float64
		for k := 1; k < len(mags); k++ {
			d := BinFrequency(k, fftSize, fs) - f.Centroid
			spread += mags[k] * d * d
		}
		f.Spread = math.Sqrt(spread / sum)
	}
	return f
}
