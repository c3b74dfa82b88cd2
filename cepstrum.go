package vigil

import (
	"math"
	"sort"
)

// logFloor keeps the log-magnitude spectrum finite on empty bins.
const logFloor = 1e-10

// CepstrumConfig configures the cepstral analyzer.
type CepstrumConfig struct {
	// SampleRate is the signal sample rate in Hz.
	SampleRate float64

	// WindowSize is the analysis frame length, rounded to a power of
	// two.
	WindowSize int

	// QuefrencyLow and QuefrencyHigh bound the rahmonic search in
	// seconds. Zero values default to the full usable range.
	QuefrencyLow  float64
	QuefrencyHigh float64

	// Threshold is the normalized magnitude a rahmonic must exceed.
	Threshold float64

	// ShaftRPM is the shaft speed in revolutions per minute.
	ShaftRPM float64

	// GearTeeth lists tooth counts of the monitored gears. Each count T
	// implies a mesh frequency T times the shaft frequency.
	GearTeeth []int
}

// DefaultCepstrumConfig returns sensible defaults.
func DefaultCepstrumConfig() CepstrumConfig {
	return CepstrumConfig{
		SampleRate: 10000,
		WindowSize: 1024,
		Threshold:  0.3,
	}
}

// Rahmonic is one cepstral peak.
type Rahmonic struct {
	Bin       int     `json:"bin"`
	Quefrency float64 `json:"quefrency"`
	Frequency float64 `json:"frequency"`
	Magnitude float64 `json:"magnitude"` // normalized to the strongest rahmonic
}

// GearMatch links a rahmonic to a gear-mesh frequency or sideband.
type GearMatch struct {
	Teeth     int     `json:"teeth"`
	Harmonic  int     `json:"harmonic"`
	Sideband  int     `json:"sideband"` // 0 for the mesh line itself
	Expected  float64 `json:"expected_frequency"`
	Detected  float64 `json:"detected_frequency"`
	Magnitude float64 `json:"magnitude"`
}

// CepstrumResult is the output of one cepstral pass.
type CepstrumResult struct {
	Coefficients []float64   `json:"-"`
	Rahmonics    []Rahmonic  `json:"rahmonics"`
	Matches      []GearMatch `json:"matches"`
	ShaftFreq    float64     `json:"shaft_frequency"`
	Timestamp    int64       `json:"timestamp"`
}

// CepstrumAnalyzer computes real cepstral coefficients of a signal frame
// and matches rahmonics against configured gear-mesh frequencies.
type CepstrumAnalyzer struct {
	config CepstrumConfig
	buf    []Sample
}

// NewCepstrumAnalyzer creates a cepstral analyzer, clamping invalid
// config to defaults.
func NewCepstrumAnalyzer(config CepstrumConfig) *CepstrumAnalyzer {
	if config.SampleRate <= 0 {
		config.SampleRate = 10000
	}
	if config.WindowSize < 16 {
		config.WindowSize = 1024
	}
	config.WindowSize = nextPowerOfTwo(config.WindowSize)
	if config.Threshold <= 0 || config.Threshold >= 1 {
		config.Threshold = 0.3
	}
	return &CepstrumAnalyzer{
		config: config,
		buf:    make([]Sample, 0, config.WindowSize),
	}
}

// Ingest buffers one sample and runs the pipeline when a frame fills.
func (a *CepstrumAnalyzer) Ingest(s Sample) (*CepstrumResult, error) {
	if !s.Valid() {
		return nil, newValidationError("cepstrum", "non-finite value", s.Value)
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
func (a *CepstrumAnalyzer) Reset() { a.buf = a.buf[:0] }

// Len returns the number of buffered samples.
func (a *CepstrumAnalyzer) Len() int { return len(a.buf) }

// Analyze computes the cepstrum of an arbitrary signal slice and runs
// rahmonic extraction and gear matching.
func (a *CepstrumAnalyzer) Analyze(signal []float64, timestamp int64) (*CepstrumResult, error) {
	if len(signal) < 8 {
		return nil, ErrInsufficientData
	}
	for _, v := range signal {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, newValidationError("cepstrum", "non-finite value", v)
		}
	}

	ceps := RealCepstrum(signal)
	rahmonics := a.findRahmonics(ceps)

	res := &CepstrumResult{
		Coefficients: ceps,
		Rahmonics:    rahmonics,
		ShaftFreq:    a.config.ShaftRPM / 60,
		Timestamp:    timestamp,
	}
	res.Matches = a.matchGears(rahmonics, res.ShaftFreq)
	return res, nil
}

// RealCepstrum computes real cepstral coefficients: log magnitude of the
// spectrum (floored), then a DCT-style inverse transform back to the
// quefrency domain.
func RealCepstrum(signal []float64) []float64 {
	spectrum := FFT(signal)
	n := len(spectrum)

	logMag := make([]float64, n/2+1)
	for k := range logMag {
		m := cmplxAbs(spectrum[k]) / float64(n)
		if m < logFloor {
			m = logFloor
		}
		logMag[k] = math.Log(m)
	}

	// DCT-II of the half spectrum plays the role of the inverse FFT for
	// a real, even log-magnitude sequence.
	half := len(logMag)
	ceps := make([]float64, half)
	for i := 0; i < half; i++ {
		var sum float64
		for k := 0; k < half; k++ {
			sum += logMag[k] * math.Cos(math.Pi*float64(i)*(float64(k)+0.5)/float64(half))
		}
		ceps[i] = sum / float64(half)
	}
	return ceps
}

// lowQuefrencySkip excludes the first bins, which carry the spectral
// envelope rather than harmonic spacing.
const lowQuefrencySkip = 3

func (a *CepstrumAnalyzer) findRahmonics(ceps []float64) []Rahmonic {
	fs := a.config.SampleRate
	qLow := a.config.QuefrencyLow
	qHigh := a.config.QuefrencyHigh
	if qHigh <= 0 {
		qHigh = float64(len(ceps)) / fs
	}

	maxMag := 0.0
	for i := lowQuefrencySkip; i < len(ceps); i++ {
		if m := math.Abs(ceps[i]); m > maxMag {
			maxMag = m
		}
	}
	if maxMag == 0 {
		return nil
	}

	var out []Rahmonic
	for i := lowQuefrencySkip; i < len(ceps)-1; i++ {
		q := float64(i) / fs
		if q < qLow || q > qHigh {
			continue
		}
		m := math.Abs(ceps[i])
		if m <= math.Abs(ceps[i-1]) || m <= math.Abs(ceps[i+1]) {
			continue
		}
		norm := m / maxMag
		if norm < a.config.Threshold {
			continue
		}
		out = append(out, Rahmonic{
			Bin:       i,
			Quefrency: q,
			Frequency: 1 / q,
			Magnitude: norm,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Magnitude > out[j].Magnitude })
	return out
}

// gearTolerance is the relative window for a rahmonic frequency to match
// a mesh line or sideband.
const gearTolerance = 0.10

func (a *CepstrumAnalyzer) matchGears(rahmonics []Rahmonic, shaftFreq float64) []GearMatch {
	if shaftFreq <= 0 || len(a.config.GearTeeth) == 0 {
		return nil
	}
	var matches []GearMatch
	for _, teeth := range a.config.GearTeeth {
		if teeth <= 0 {
			continue
		}
		gmf := float64(teeth) * shaftFreq
		for _, r := range rahmonics {
			for h := 1; h <= 3; h++ {
				expected := float64(h) * gmf
				if math.Abs(r.Frequency-expected)/gmf < gearTolerance {
					matches = append(matches, GearMatch{
						Teeth:     teeth,
						Harmonic:  h,
						Expected:  expected,
						Detected:  r.Frequency,
						Magnitude: r.Magnitude,
					})
				}
			}
			for s := 1; s <= 3; s++ {
				expected := gmf + float64(s)*shaftFreq
				if math.Abs(r.Frequency-expected)/expected < gearTolerance {
					matches = append(matches, GearMatch{
						Teeth:     teeth,
						Harmonic:  1,
						Sideband:  s,
						Expected:  expected,
						Detected:  r.Frequency,
						Magnitude: r.Magnitude,
					})
				}
			}
		}
	}
	return matches
}
