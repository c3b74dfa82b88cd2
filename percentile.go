package vigil

import (
	"math"
	"sort"
)

// PercentileConfig configures the percentile-bounds detector.
type PercentileConfig struct {
	// WindowSize is the ring capacity.
	WindowSize int

	// WarmupSamples is the minimum buffered samples before verdicts.
	WarmupSamples int

	// LowerPercentile and UpperPercentile bound the accepted band, in
	// percent (0-100).
	LowerPercentile float64
	UpperPercentile float64
}

// DefaultPercentileConfig returns sensible defaults.
func DefaultPercentileConfig() PercentileConfig {
	return PercentileConfig{
		WindowSize:      100,
		WarmupSamples:   4,
		LowerPercentile: 5,
		UpperPercentile: 95,
	}
}

// PercentileDetector flags samples that fall outside the interpolated
// lower/upper percentile bounds of the buffer.
type PercentileDetector struct {
	config PercentileConfig
	ring   *Ring
}

// NewPercentileDetector creates a percentile detector. Construction fails
// fast when the percentile band is inverted.
func NewPercentileDetector(config PercentileConfig) (*PercentileDetector, error) {
	if config.WindowSize <= 0 {
		config.WindowSize = 100
	}
	if config.WarmupSamples < 2 {
		config.WarmupSamples = 4
	}
	if config.LowerPercentile <= 0 {
		config.LowerPercentile = 5
	}
	if config.UpperPercentile <= 0 {
		config.UpperPercentile = 95
	}
	if config.LowerPercentile >= config.UpperPercentile {
		return nil, newConfigError("lowerPercentile", "must be below upperPercentile")
	}
	if config.UpperPercentile > 100 {
		return nil, newConfigError("upperPercentile", "must not exceed 100")
	}
	return &PercentileDetector{
		config: config,
		ring:   NewRing(config.WindowSize),
	}, nil
}

// Method returns the detector's method tag.
func (d *PercentileDetector) Method() string { return "percentile" }

// percentile computes the p-th percentile of sorted by linear interpolation
// between the neighboring order statistics at the fractional index
// p/100*(n-1).
func percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return sorted[0]
	}
	idx := p / 100 * float64(n-1)
	lo := int(math.Floor(idx))
	hi := int(math.Ceil(idx))
	if lo < 0 {
		lo = 0
	}
	if hi >= n {
		hi = n - 1
	}
	if lo == hi {
		return sorted[lo]
	}
	frac := idx - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

// Ingest processes one sample.
func (d *PercentileDetector) Ingest(s Sample) (*Verdict, error) {
	if !s.Valid() {
		return nil, newValidationError(d.Method(), "non-finite value", s.Value)
	}

	ready := d.ring.Len() >= d.config.WarmupSamples
	values := d.ring.Values()
	d.ring.Push(s)

	if !ready {
		return nil, nil
	}

	sort.Float64s(values)
	lower := percentile(values, d.config.LowerPercentile)
	upper := percentile(values, d.config.UpperPercentile)

	outside := s.Value < lower || s.Value > upper
	sev := SeverityNormal
	if outside {
		sev = SeverityCritical
	}

	v := &Verdict{
		Value:      s.Value,
		IsAnomaly:  outside,
		Severity:   sev,
		Method:     d.Method(),
		Metric:     s.Value,
		BufferSize: d.ring.Len(),
		WindowSize: d.config.WindowSize,
		Timestamp:  s.Timestamp,
	}
	v.setField("lower_bound", lower)
	v.setField("upper_bound", upper)
	v.setField("lower_percentile", d.config.LowerPercentile)
	v.setField("upper_percentile", d.config.UpperPercentile)
	return v, nil
}

// Reset clears the ring.
func (d *PercentileDetector) Reset() {
	d.ring.Reset()
}

// Status reports buffering progress.
func (d *PercentileDetector) Status() Status {
	return Status{
		Ready:         d.ring.Len() >= d.config.WarmupSamples,
		BufferSize:    d.ring.Len(),
		WindowSize:    d.config.WindowSize,
		WarmupSamples: d.config.WarmupSamples,
	}
}
