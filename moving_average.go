package vigil

import "math"

// ResidualMode selects how a residual is compared to its threshold.
type ResidualMode int

const (
	// ResidualModeStdDev compares |x - baseline| / sigma to the threshold.
	ResidualModeStdDev ResidualMode = iota
	// ResidualModePercentage compares 100*|x - baseline|/|baseline|.
	ResidualModePercentage
)

func (m ResidualMode) String() string {
	switch m {
	case ResidualModeStdDev:
		return "stddev"
	case ResidualModePercentage:
		return "percentage"
	default:
		return "unknown"
	}
}

// MovingAverageConfig configures the moving-average residual detector.
type MovingAverageConfig struct {
	// WindowSize is the ring capacity.
	WindowSize int

	// WarmupSamples is the minimum buffered samples before verdicts.
	WarmupSamples int

	// Mode selects stddev or percentage residual comparison.
	Mode ResidualMode

	// Threshold is the critical limit: sigma multiples in stddev mode,
	// percent deviation in percentage mode.
	Threshold float64

	// WarningThreshold defaults to 0.7 * Threshold when zero.
	WarningThreshold float64
}

// DefaultMovingAverageConfig returns sensible defaults.
func DefaultMovingAverageConfig() MovingAverageConfig {
	return MovingAverageConfig{
		WindowSize:    20,
		WarmupSamples: 2,
		Mode:          ResidualModeStdDev,
		Threshold:     3.0,
	}
}

// MovingAverageDetector flags samples whose residual against the moving
// average of the buffer exceeds the configured threshold.
type MovingAverageDetector struct {
	config MovingAverageConfig
	ring   *Ring
}

// NewMovingAverageDetector creates a moving-average detector.
func NewMovingAverageDetector(config MovingAverageConfig) *MovingAverageDetector {
	if config.WindowSize <= 0 {
		config.WindowSize = 20
	}
	if config.WarmupSamples < 2 {
		config.WarmupSamples = 2
	}
	if config.Threshold <= 0 {
		config.Threshold = 3.0
	}
	config.WarningThreshold = resolveWarning(config.Threshold, config.WarningThreshold)
	return &MovingAverageDetector{
		config: config,
		ring:   NewRing(config.WindowSize),
	}
}

// Method returns the detector's method tag.
func (d *MovingAverageDetector) Method() string { return "moving_average" }

// Ingest processes one sample.
func (d *MovingAverageDetector) Ingest(s Sample) (*Verdict, error) {
	if !s.Valid() {
		return nil, newValidationError(d.Method(), "non-finite value", s.Value)
	}

	ma := d.ring.Mean()
	std := d.ring.Std()
	ready := d.ring.Len() >= d.config.WarmupSamples

	d.ring.Push(s)

	if !ready {
		return nil, nil
	}

	residual := math.Abs(s.Value - ma)
	var stat float64
	switch d.config.Mode {
	case ResidualModePercentage:
		if ma != 0 {
			stat = 100 * residual / math.Abs(ma)
		} else {
			stat = 0
		}
	default:
		if std > 0 {
			stat = residual / std
		} else {
			// Zero-variance baseline: measure the raw deviation so a
			// first excursion off a flat signal is still caught.
			stat = residual
		}
	}

	v := newVerdict(d.Method(), s, stat, d.config.Threshold, d.config.WarningThreshold, d.ring.Len(), d.config.WindowSize)
	v.setField("moving_average", ma)
	v.setField("residual", residual)
	v.setField("mode", d.config.Mode.String())
	return v, nil
}

// Reset clears the ring.
func (d *MovingAverageDetector) Reset() {
	d.ring.Reset()
}

// Status reports buffering progress.
func (d *MovingAverageDetector) Status() Status {
	return Status{
		Ready:         d.ring.Len() >= d.config.WarmupSamples,
		BufferSize:    d.ring.Len(),
		WindowSize:    d.config.WindowSize,
		WarmupSamples: d.config.WarmupSamples,
	}
}
