package vigil

// ZScoreConfig configures the Z-score detector.
type ZScoreConfig struct {
	// WindowSize is the ring capacity.
	WindowSize int

	// WarmupSamples is the minimum buffered samples before verdicts.
	// Defaults to 2.
	WarmupSamples int

	// Threshold is the critical Z-score magnitude.
	Threshold float64

	// WarningThreshold defaults to 0.7 * Threshold when zero.
	WarningThreshold float64

	// StateKey, when non-empty, identifies this detector in a
	// StateStore so its buffer survives restarts.
	StateKey string
}

// DefaultZScoreConfig returns sensible defaults.
func DefaultZScoreConfig() ZScoreConfig {
	return ZScoreConfig{
		WindowSize:    20,
		WarmupSamples: 2,
		Threshold:     3.0,
	}
}

// ZScoreDetector flags samples whose standardized deviation from the
// buffer mean exceeds the configured threshold. When the baseline has
// zero variance the raw deviation from the mean stands in for the
// Z-score, so a jump off a flat line is still measured.
type ZScoreDetector struct {
	config ZScoreConfig
	ring   *Ring
}

// NewZScoreDetector creates a Z-score detector, clamping invalid config.
func NewZScoreDetector(config ZScoreConfig) *ZScoreDetector {
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
	return &ZScoreDetector{
		config: config,
		ring:   NewRing(config.WindowSize),
	}
}

// Method returns the detector's method tag.
func (d *ZScoreDetector) Method() string { return "zscore" }

// Ingest processes one sample.
func (d *ZScoreDetector) Ingest(s Sample) (*Verdict, error) {
	if !s.Valid() {
		return nil, newValidationError(d.Method(), "non-finite value", s.Value)
	}

	// Statistic is computed against the buffer before the new sample
	// joins it, so a spike is measured against the established baseline.
	mean := d.ring.Mean()
	std := d.ring.Std()
	ready := d.ring.Len() >= d.config.WarmupSamples

	d.ring.Push(s)

	if !ready {
		return nil, nil
	}

	var z float64
	if std > 0 {
		z = (s.Value - mean) / std
	} else {
		// Zero-variance baseline: fall back to the raw deviation so a
		// constant stream scores 0 while a jump off the flat line is
		// still measured.
		z = s.Value - mean
	}

	v := newVerdict(d.Method(), s, z, d.config.Threshold, d.config.WarningThreshold, d.ring.Len(), d.config.WindowSize)
	v.setField("z_score", z)
	v.setField("mean", mean)
	v.setField("std_dev", std)
	return v, nil
}

// Reset clears the ring.
func (d *ZScoreDetector) Reset() {
	d.ring.Reset()
}

// Status reports buffering progress.
func (d *ZScoreDetector) Status() Status {
	return Status{
		Ready:         d.ring.Len() >= d.config.WarmupSamples,
		BufferSize:    d.ring.Len(),
		WindowSize:    d.config.WindowSize,
		WarmupSamples: d.config.WarmupSamples,
	}
}

// StateKey returns the configured persistence key.
func (d *ZScoreDetector) StateKey() string { return d.config.StateKey }

// SnapshotState captures the ring so a restart skips warmup.
func (d *ZScoreDetector) SnapshotState() map[string]any {
	return map[string]any{"samples": d.ring.Samples()}
}

// RestoreState refills the ring from a snapshot.
func (d *ZScoreDetector) RestoreState(state map[string]any) error {
	d.ring.Reset()
	for _, s := range stateSamples(state["samples"]) {
		d.ring.Push(s)
	}
	return nil
}
