package vigil

import (
	"math"
)

// VibrationConfig configures the time-domain vibration analyzer.
type VibrationConfig struct {
	// WindowSize is the sliding analysis window.
	WindowSize int

	// MaxLag bounds the autocorrelation sweep. Zero means WindowSize-1.
	MaxLag int

	// EnableEntropy turns on sample entropy, which is O(n^2).
	EnableEntropy bool
}

// DefaultVibrationConfig returns sensible defaults.
func DefaultVibrationConfig() VibrationConfig {
	return VibrationConfig{
		WindowSize:    128,
		EnableEntropy: true,
	}
}

// VibrationFeatures is the time-domain feature set over one window.
type VibrationFeatures struct {
	RMS           float64 `json:"rms"`
	PeakToPeak    float64 `json:"peak_to_peak"`
	Peak          float64 `json:"peak"`
	CrestFactor   float64 `json:"crest_factor"`
	Kurtosis      float64 `json:"kurtosis"`
	Skewness      float64 `json:"skewness"`
	FormFactor    float64 `json:"form_factor"`
	ImpulseFactor float64 `json:"impulse_factor"`

	// HealthScore is a bounded heuristic in [0,100]; deductions are
	// taken for crest, kurtosis, and skewness excursions.
	HealthScore float64 `json:"health_score"`

	SampleEntropy float64 `json:"sample_entropy"`

	// Periodic reports whether the ACF shows a peak above 0.3 after
	// lag 0; PeriodSamples is the first such lag.
	Periodic      bool `json:"periodic"`
	PeriodSamples int  `json:"period_samples"`

	SampleCount int   `json:"sample_count"`
	Timestamp   int64 `json:"timestamp"`
}

// VibrationAnalyzer computes time-domain condition features over a
// sliding window of raw vibration samples.
type VibrationAnalyzer struct {
	config VibrationConfig
	ring   *Ring
}

// NewVibrationAnalyzer creates a vibration analyzer, clamping invalid
// config to defaults.
func NewVibrationAnalyzer(config VibrationConfig) *VibrationAnalyzer {
	if config.WindowSize < 8 {
		config.WindowSize = 128
	}
	if config.MaxLag <= 0 || config.MaxLag >= config.WindowSize {
		config.MaxLag = config.WindowSize - 1
	}
	return &VibrationAnalyzer{
		config: config,
		ring:   NewRing(config.WindowSize),
	}
}

// Ingest adds one sample and returns the feature set once the window
// holds at least 8 samples, nil before that.
func (a *VibrationAnalyzer) Ingest(s Sample) (*VibrationFeatures, error) {
	if !s.Valid() {
		return nil, newValidationError("vibration", "non-finite value", s.Value)
	}
	a.ring.Push(s)
	if a.ring.Len() < 8 {
		return nil, nil
	}
	f := ComputeVibrationFeatures(a.ring.Values())
	f.Timestamp = s.Timestamp
	if a.config.EnableEntropy {
		f.SampleEntropy = SampleEntropy(a.ring.Values(), 2, 0)
	}
	lag, ok := DetectPeriod(a.ring.Values(), a.config.MaxLag)
	f.Periodic = ok
	f.PeriodSamples = lag
	return f, nil
}

// Reset clears the window.
func (a *VibrationAnalyzer) Reset() { a.ring.Reset() }

// Len returns the number of buffered samples.
func (a *VibrationAnalyzer) Len() int { return a.ring.Len() }

// ComputeVibrationFeatures derives the time-domain feature set from a
// signal slice. The caller guarantees finite values.
func ComputeVibrationFeatures(signal []float64) *VibrationFeatures {
	n := len(signal)
	f := &VibrationFeatures{SampleCount: n, HealthScore: 100}
	if n == 0 {
		return f
	}

	minV, maxV := signal[0], signal[0]
	var sum, sumSq, sumAbs float64
	for _, v := range signal {
		sum += v
		sumSq += v * v
		sumAbs += math.Abs(v)
		if v < minV {
			minV = v
		}
		if v > maxV {
			maxV = v
		}
	}
	mean := sum / float64(n)

	f.RMS = math.Sqrt(sumSq / float64(n))
	f.PeakToPeak = maxV - minV
	f.Peak = math.Max(math.Abs(maxV), math.Abs(minV))
	meanAbs := sumAbs / float64(n)
	if f.RMS > 0 {
		f.CrestFactor = f.Peak / f.RMS
	}
	if meanAbs > 0 {
		f.FormFactor = f.RMS / meanAbs
		f.ImpulseFactor = f.Peak / meanAbs
	}

	var m2, m3, m4 float64
	for _, v := range signal {
		d := v - mean
		d2 := d * d
		m2 += d2
		m3 += d2 * d
		m4 += d2 * d2
	}
	m2 /= float64(n)
	m3 /= float64(n)
	m4 /= float64(n)
	if m2 > 0 {
		sigma := math.Sqrt(m2)
		f.Skewness = m3 / (sigma * sigma * sigma)
		f.Kurtosis = m4/(m2*m2) - 3
	}

	if f.CrestFactor > 5 {
		f.HealthScore -= 20
	}
	if math.Abs(f.Kurtosis) > 3 {
		f.HealthScore -= 20
	}
	if math.Abs(f.Skewness) > 1 {
		f.HealthScore -= 10
	}
	if f.HealthScore < 0 {
		f.HealthScore = 0
	}
	return f
}

// SampleEntropy computes SampEn(m, r) with Chebyshev distance. When r is
// zero or negative it defaults to 0.2 times the signal's standard
// deviation. Returns 0 when no template matches exist.
func SampleEntropy(signal []float64, m int, r float64) float64 {
	n := len(signal)
	if m < 1 || n < m+2 {
		return 0
	}
	if r <= 0 {
		var sum, sumSq float64
		for _, v := range signal {
			sum += v
			sumSq += v * v
		}
		mean := sum / float64(n)
		variance := sumSq/float64(n) - mean*mean
		if variance < 0 {
			variance = 0
		}
		r = 0.2 * math.Sqrt(variance)
	}
	if r == 0 {
		return 0
	}

	match := func(length int) int {
		count := 0
		limit := n - length
		for i := 0; i <= limit; i++ {
			for j := i + 1; j <= limit; j++ {
				within := true
				for k := 0; k < length; k++ {
					if math.Abs(signal[i+k]-signal[j+k]) > r {
						within = false
						break
					}
				}
				if within {
					count++
				}
			}
		}
		return count
	}

	b := match(m)
	a := match(m + 1)
	if a == 0 || b == 0 {
		return 0
	}
	return -math.Log(float64(a) / float64(b))
}

// Autocorrelation returns the biased ACF of the signal over lags
// 0..min(maxLag, n-1), normalized so lag 0 equals 1 for non-constant
// input.
func Autocorrelation(signal []float64, maxLag int) []float64 {
	n := len(signal)
	if n == 0 {
		return nil
	}
	if maxLag >= n {
		maxLag = n - 1
	}
	if maxLag < 0 {
		maxLag = 0
	}

	var sum float64
	for _, v := range signal {
		sum += v
	}
	mean := sum / float64(n)

	var c0 float64
	for _, v := range signal {
		c0 += (v - mean) * (v - mean)
	}

	acf := make([]float64, maxLag+1)
	if c0 == 0 {
		acf[0] = 1
		return acf
	}
	for lag := 0; lag <= maxLag; lag++ {
		var c float64
		for i := 0; i < n-lag; i++ {
			c += (signal[i] - mean) * (signal[i+lag] - mean)
		}
		acf[lag] = c / c0
	}
	return acf
}

// DetectPeriod scans the ACF for the first local maximum above 0.3 after
// lag 0 and returns its lag. Reports false when the signal shows no such
// periodicity.
func DetectPeriod(signal []float64, maxLag int) (int, bool) {
	acf := Autocorrelation(signal, maxLag)
	for lag := 2; lag < len(acf)-1; lag++ {
		if acf[lag] > 0.3 && acf[lag] > acf[lag-1] && acf[lag] >= acf[lag+1] {
			return lag, true
		}
	}
	return 0, false
}
