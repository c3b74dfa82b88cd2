package vigil

import (
	"fmt"
	"math"
)

// biquad is one 2nd-order IIR section in direct form I.
type biquad struct {
	b0, b1, b2 float64
	a1, a2     float64
}

// lowpassBiquad builds a 2nd-order Butterworth low-pass section at
// cutoff fc via the bilinear transform with pre-warping k = tan(pi*fc/fs).
func lowpassBiquad(fc, fs float64) biquad {
	k := math.Tan(math.Pi * fc / fs)
	k2 := k * k
	a0 := 1 + math.Sqrt2*k + k2
	return biquad{
		b0: k2 / a0,
		b1: 2 * k2 / a0,
		b2: k2 / a0,
		a1: 2 * (k2 - 1) / a0,
		a2: (1 - math.Sqrt2*k + k2) / a0,
	}
}

// highpassBiquad builds the matching high-pass section.
func highpassBiquad(fc, fs float64) biquad {
	k := math.Tan(math.Pi * fc / fs)
	k2 := k * k
	a0 := 1 + math.Sqrt2*k + k2
	return biquad{
		b0: 1 / a0,
		b1: -2 / a0,
		b2: 1 / a0,
		a1: 2 * (k2 - 1) / a0,
		a2: (1 - math.Sqrt2*k + k2) / a0,
	}
}

// apply runs the section forward over the signal.
func (f biquad) apply(signal []float64) []float64 {
	out := make([]float64, len(signal))
	var x1, x2, y1, y2 float64
	for i, x := range signal {
		y := f.b0*x + f.b1*x1 + f.b2*x2 - f.a1*y1 - f.a2*y2
		out[i] = y
		x2, x1 = x1, x
		y2, y1 = y1, y
	}
	return out
}

// filtfilt applies the section forward then backward for zero phase.
func (f biquad) filtfilt(signal []float64) []float64 {
	fwd := f.apply(signal)
	reverse(fwd)
	back := f.apply(fwd)
	reverse(back)
	return back
}

func reverse(s []float64) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

// bandpass filters the signal to [fL, fH] with a zero-phase Butterworth
// pair. Falls back to a moving-average difference when the band is
// malformed for the sample rate or the signal is too short for the IIR
// transients to settle.
func bandpass(signal []float64, fL, fH, fs float64) []float64 {
	nyquist := fs / 2
	if fL >= fH || fL <= 0 || fH >= nyquist || len(signal) < 12 {
		return movingAverageBandpass(signal, fL, fH, fs)
	}
	hp := highpassBiquad(fL, fs)
	lp := lowpassBiquad(fH, fs)
	return lp.filtfilt(hp.filtfilt(signal))
}

// movingAverageBandpass approximates a bandpass as the difference of two
// moving averages: a short one tracking content below fH and a long one
// tracking content below fL.
func movingAverageBandpass(signal []float64, fL, fH, fs float64) []float64 {
	short := windowWidth(fH, fs, len(signal))
	long := windowWidth(fL, fs, len(signal))
	if long <= short {
		long = short + 2
	}
	fast := movingAverage(signal, short)
	slow := movingAverage(signal, long)
	out := make([]float64, len(signal))
	for i := range out {
		out[i] = fast[i] - slow[i]
	}
	return out
}

func windowWidth(fc, fs float64, n int) int {
	if fc <= 0 || fs <= 0 {
		return 3
	}
	w := int(fs / fc / 2)
	if w < 1 {
		w = 1
	}
	if w > n {
		w = n
	}
	return w
}

// movingAverage smooths with a centered window of the given width.
func movingAverage(signal []float64, width int) []float64 {
	n := len(signal)
	out := make([]float64, n)
	if width < 1 {
		width = 1
	}
	half := width / 2
	for i := range signal {
		lo := i - half
		if lo < 0 {
			lo = 0
		}
		hi := i + half
		if hi >= n {
			hi = n - 1
		}
		var sum float64
		for j := lo; j <= hi; j++ {
			sum += signal[j]
		}
		out[i] = sum / float64(hi-lo+1)
	}
	return out
}

// BearingFaultType identifies a characteristic bearing defect frequency.
type BearingFaultType string

const (
	// FaultBPFO is a ball-pass outer-race defect.
	FaultBPFO BearingFaultType = "BPFO"
	// FaultBPFI is a ball-pass inner-race defect.
	FaultBPFI BearingFaultType = "BPFI"
	// FaultBSF is a ball-spin defect.
	FaultBSF BearingFaultType = "BSF"
	// FaultFTF is a cage defect.
	FaultFTF BearingFaultType = "FTF"
	// FaultShaft is shaft imbalance or misalignment at 1x/2x speed.
	FaultShaft BearingFaultType = "shaft"
)

// EnvelopeConfig configures the envelope analyzer.
type EnvelopeConfig struct {
	// SampleRate is the vibration sample rate in Hz.
	SampleRate float64

	// WindowSize is the analysis frame length.
	WindowSize int

	// BandLow and BandHigh bound the resonance band in Hz.
	BandLow  float64
	BandHigh float64

	// ShaftRPM is the shaft speed in revolutions per minute.
	ShaftRPM float64

	// BPFO, BPFI, BSF, FTF are the bearing defect frequencies in Hz.
	// Zero entries are skipped during matching.
	BPFO float64
	BPFI float64
	BSF  float64
	FTF  float64

	// PeakThreshold is passed to the envelope-spectrum peak finder.
	PeakThreshold float64
}

// DefaultEnvelopeConfig returns sensible defaults for a machine sampled
// at 10 kHz.
func DefaultEnvelopeConfig() EnvelopeConfig {
	return EnvelopeConfig{
		SampleRate:    10000,
		WindowSize:    1024,
		BandLow:       500,
		BandHigh:      4000,
		PeakThreshold: 0.1,
	}
}

// FaultMatch pairs an envelope-spectrum peak with a defect frequency.
type FaultMatch struct {
	Type      BearingFaultType `json:"type"`
	Harmonic  int              `json:"harmonic"`
	Expected  float64          `json:"expected_frequency"`
	Detected  float64          `json:"detected_frequency"`
	Magnitude float64          `json:"magnitude"`
	Severity  string           `json:"severity"`
}

// EnvelopeResult is the output of one envelope analysis pass.
type EnvelopeResult struct {
	Envelope  []float64      `json:"-"`
	Spectrum  []float64      `json:"-"`
	Peaks     []SpectralPeak `json:"peaks"`
	Matches   []FaultMatch   `json:"matches"`
	ShaftFreq float64        `json:"shaft_frequency"`
	Timestamp int64          `json:"timestamp"`
}

// EnvelopeAnalyzer extracts the amplitude envelope of a vibration frame
// and matches its spectral peaks against bearing defect frequencies.
type EnvelopeAnalyzer struct {
	config EnvelopeConfig
	buf    []Sample
}

// NewEnvelopeAnalyzer creates an envelope analyzer, clamping invalid
// config to defaults.
func NewEnvelopeAnalyzer(config EnvelopeConfig) *EnvelopeAnalyzer {
	if config.SampleRate <= 0 {
		config.SampleRate = 10000
	}
	if config.WindowSize < 16 {
		config.WindowSize = 1024
	}
	config.WindowSize = nextPowerOfTwo(config.WindowSize)
	if config.PeakThreshold <= 0 || config.PeakThreshold >= 1 {
		config.PeakThreshold = 0.1
	}
	return &EnvelopeAnalyzer{
		config: config,
		buf:    make([]Sample, 0, config.WindowSize),
	}
}

// Ingest buffers one sample and runs the pipeline when a frame fills.
func (a *EnvelopeAnalyzer) Ingest(s Sample) (*EnvelopeResult, error) {
	if !s.Valid() {
		return nil, newValidationError("envelope", "non-finite value", s.Value)
	}
	a.buf = append(a.buf, s)
	if len(a.buf) < a.config.WindowSize {
		return nil, nil
	}
	signal := make([]float64, len(a.buf))
	for i, smp := range a.buf {
		signal[i] = smp.Value
	}
	a.buf = a.buf[:0]
	return a.Analyze(signal, s.Timestamp)
}

// Reset discards the partial frame.
func (a *EnvelopeAnalyzer) Reset() { a.buf = a.buf[:0] }

// Len returns the number of buffered samples.
func (a *EnvelopeAnalyzer) Len() int { return len(a.buf) }

// Analyze runs bandpass, rectification, smoothing, envelope FFT, and
// fault matching over an arbitrary signal slice.
func (a *EnvelopeAnalyzer) Analyze(signal []float64, timestamp int64) (*EnvelopeResult, error) {
	if len(signal) < 4 {
		return nil, ErrInsufficientData
	}
	for _, v := range signal {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, newValidationError("envelope", "non-finite value", v)
		}
	}

	fs := a.config.SampleRate
	filtered := bandpass(signal, a.config.BandLow, a.config.BandHigh, fs)

	// Rectify, then smooth to the envelope.
	for i, v := range filtered {
		filtered[i] = math.Abs(v)
	}
	env := movingAverage(filtered, windowWidth(a.config.BandLow, fs, len(filtered)))

	spectrum := FFT(env)
	mags := Magnitudes(spectrum)
	mags[0] = 0 // envelope DC offset carries no fault information

	peaks := FindPeaks(mags, a.config.PeakThreshold)
	for i := range peaks {
		peaks[i].Frequency = BinFrequency(peaks[i].Bin, len(spectrum), fs)
	}

	res := &EnvelopeResult{
		Envelope:  env,
		Spectrum:  mags,
		Peaks:     peaks,
		ShaftFreq: a.config.ShaftRPM / 60,
		Timestamp: timestamp,
	}
	res.Matches = a.matchFaults(peaks, res.ShaftFreq)
	return res, nil
}

// faultTolerance is the relative frequency window for a peak to match a
// defect harmonic.
const faultTolerance = 0.05

func (a *EnvelopeAnalyzer) matchFaults(peaks []SpectralPeak, shaftFreq float64) []FaultMatch {
	type candidate struct {
		typ  BearingFaultType
		freq float64
	}
	candidates := []candidate{
		{FaultBPFO, a.config.BPFO},
		{FaultBPFI, a.config.BPFI},
		{FaultBSF, a.config.BSF},
		{FaultFTF, a.config.FTF},
		{FaultShaft, shaftFreq},
		{FaultShaft, 2 * shaftFreq},
	}

	maxMag := 0.0
	for _, p := range peaks {
		if p.Magnitude > maxMag {
			maxMag = p.Magnitude
		}
	}

	var matches []FaultMatch
	for _, p := range peaks {
		for _, c := range candidates {
			if c.freq <= 0 {
				continue
			}
			for h := 1; h <= 3; h++ {
				expected := float64(h) * c.freq
				if math.Abs(p.Frequency-expected)/expected <= faultTolerance {
					matches = append(matches, FaultMatch{
						Type:      c.typ,
						Harmonic:  h,
						Expected:  expected,
						Detected:  p.Frequency,
						Magnitude: p.Magnitude,
						Severity:  faultSeverity(p.Magnitude, maxMag),
					})
				}
			}
		}
	}
	return matches
}

// faultSeverity grades a match by its magnitude relative to the
// strongest envelope peak.
func faultSeverity(mag, maxMag float64) string {
	if maxMag <= 0 {
		return "low"
	}
	switch rel := mag / maxMag; {
	case rel >= 0.7:
		return "high"
	case rel >= 0.3:
		return "medium"
	default:
		return "low"
	}
}

// Describe renders a fault match for logs and alerts.
func (m FaultMatch) Describe() string {
	return fmt.Sprintf("%s %dx at %.1f Hz (expected %.1f Hz, %s severity)",
		m.Type, m.Harmonic, m.Detected, m.Expected, m.Severity)
}
