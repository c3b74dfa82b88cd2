package vigil

import "math"

// EMAConfig configures the exponential-moving-average residual detector.
type EMAConfig struct {
	// WindowSize is the ring capacity used for the std baseline.
	WindowSize int

	// WarmupSamples is the minimum buffered samples before verdicts.
	WarmupSamples int

	// Alpha is the smoothing factor in (0, 1]. The first sample
	// initializes the EMA.
	Alpha float64

	// Mode selects stddev or percentage residual comparison.
	Mode ResidualMode

	// Threshold is the critical limit.
	Threshold float64

	// WarningThreshold defaults to 0.7 * Threshold when zero.
	WarningThreshold float64

	// StateKey, when non-empty, identifies this detector in a
	// StateStore so the running average survives restarts.
	StateKey string
}

// DefaultEMAConfig returns sensible defaults.
func DefaultEMAConfig() EMAConfig {
	return EMAConfig{
		WindowSize:    20,
		WarmupSamples: 2,
		Alpha:         0.3,
		Mode:          ResidualModeStdDev,
		Threshold:     3.0,
	}
}

// EMADetector flags samples whose residual against an exponential moving
// average exceeds the configured threshold. The ring is kept alongside the
// EMA to provide the standard-deviation baseline in stddev mode.
type EMADetector struct {
	config      EMAConfig
	ring        *Ring
	ema         float64
	initialized bool
}

// NewEMADetector creates an EMA residual detector.
func NewEMADetector(config EMAConfig) *EMADetector {
	if config.WindowSize <= 0 {
		config.WindowSize = 20
	}
	if config.WarmupSamples < 2 {
		config.WarmupSamples = 2
	}
	if config.Alpha <= 0 || config.Alpha > 1 {
		config.Alpha = 0.3
	}
	if config.Threshold <= 0 {
		config.Threshold = 3.0
	}
	config.WarningThreshold = resolveWarning(config.Threshold, config.WarningThreshold)
	return &EMADetector{
		config: config,
		ring:   NewRing(config.WindowSize),
	}
}

// Method returns the detector's method tag.
func (d *EMADetector) Method() string { return "ema" }

// Ingest processes one sample.
func (d *EMADetector) Ingest(s Sample) (*Verdict, error) {
	if !s.Valid() {
		return nil, newValidationError(d.Method(), "non-finite value", s.Value)
	}

	if !d.initialized {
		d.ema = s.Value
		d.initialized = true
	} else {
		d.ema = d.config.Alpha*s.Value + (1-d.config.Alpha)*d.ema
	}

	std := d.ring.Std()
	ready := d.ring.Len() >= d.config.WarmupSamples
	d.ring.Push(s)

	if !ready {
		return nil, nil
	}

	residual := math.Abs(s.Value - d.ema)
	var stat float64
	switch d.config.Mode {
	case ResidualModePercentage:
		if d.ema != 0 {
			stat = 100 * residual / math.Abs(d.ema)
		}
	default:
		if std > 0 {
			stat = residual / std
		} else {
			stat = residual
		}
	}

	v := newVerdict(d.Method(), s, stat, d.config.Threshold, d.config.WarningThreshold, d.ring.Len(), d.config.WindowSize)
	v.setField("ema", d.ema)
	v.setField("residual", residual)
	v.setField("mode", d.config.Mode.String())
	return v, nil
}

// Reset clears the ring and the EMA state.
func (d *EMADetector) Reset() {
	d.ring.Reset()
	d.ema = 0
	d.initialized = false
}

// Status reports buffering progress.
func (d *EMADetector) Status() Status {
	return Status{
		Ready:         d.ring.Len() >= d.config.WarmupSamples,
		BufferSize:    d.ring.Len(),
		WindowSize:    d.config.WindowSize,
		WarmupSamples: d.config.WarmupSamples,
	}
}

// StateKey returns the configured persistence key.
func (d *EMADetector) StateKey() string { return d.config.StateKey }

// SnapshotState captures the running average and the ring.
func (d *EMADetector) SnapshotState() map[string]any {
	return map[string]any{
		"ema":         d.ema,
		"initialized": d.initialized,
		"samples":     d.ring.Samples(),
	}
}

// RestoreState reloads the running average and refills the ring.
func (d *EMADetector) RestoreState(state map[string]any) error {
	d.Reset()
	if ema, ok := stateFloat(state, "ema"); ok {
		d.ema = ema
	}
	d.initialized = stateBool(state, "initialized")
	for _, s := range stateSamples(state["samples"]) {
		d.ring.Push(s)
	}
	return nil
}
