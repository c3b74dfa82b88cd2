package vigil

import "math"

// CUSUMConfig configures the cumulative-sum mean-shift detector.
type CUSUMConfig struct {
	// WindowSize is the ring capacity used when the target is derived
	// from the buffer mean.
	WindowSize int

	// Target is the expected process mean. When TargetSet is false the
	// buffer mean is used once at least two samples are buffered.
	Target    float64
	TargetSet bool

	// Drift is the slack value k subtracted from each deviation.
	Drift float64

	// Threshold is the critical decision interval h.
	Threshold float64

	// WarningThreshold defaults to 0.7 * Threshold when zero. The warning
	// tier does not reset the accumulators.
	WarningThreshold float64

	// StateKey, when non-empty, identifies this detector in a
	// StateStore so its accumulators survive restarts.
	StateKey string
}

// DefaultCUSUMConfig returns sensible defaults.
func DefaultCUSUMConfig() CUSUMConfig {
	return CUSUMConfig{
		WindowSize: 20,
		Drift:      0.5,
		Threshold:  5.0,
	}
}

// CUSUMDetector accumulates positive and negative deviations from a target
// mean to detect small sustained shifts. On a critical verdict both
// accumulators reset to zero so the detector is ready for the next
// excursion.
type CUSUMDetector struct {
	config   CUSUMConfig
	ring     *Ring
	cusumPos float64
	cusumNeg float64
}

// NewCUSUMDetector creates a CUSUM detector.
func NewCUSUMDetector(config CUSUMConfig) *CUSUMDetector {
	if config.WindowSize <= 0 {
		config.WindowSize = 20
	}
	if config.Drift < 0 {
		config.Drift = 0.5
	}
	if config.Threshold <= 0 {
		config.Threshold = 5.0
	}
	config.WarningThreshold = resolveWarning(config.Threshold, config.WarningThreshold)
	return &CUSUMDetector{
		config: config,
		ring:   NewRing(config.WindowSize),
	}
}

// Method returns the detector's method tag.
func (d *CUSUMDetector) Method() string { return "cusum" }

// target resolves the reference mean: the configured value, or the buffer
// mean once at least two samples are available.
func (d *CUSUMDetector) target() (float64, bool) {
	if d.config.TargetSet {
		return d.config.Target, true
	}
	if d.ring.Len() >= 2 {
		return d.ring.Mean(), true
	}
	return 0, false
}

// Ingest processes one sample.
func (d *CUSUMDetector) Ingest(s Sample) (*Verdict, error) {
	if !s.Valid() {
		return nil, newValidationError(d.Method(), "non-finite value", s.Value)
	}

	tau, ok := d.target()
	d.ring.Push(s)
	if !ok {
		return nil, nil
	}

	k := d.config.Drift
	delta := s.Value - tau
	d.cusumPos = math.Max(0, d.cusumPos+delta-k)
	d.cusumNeg = math.Max(0, d.cusumNeg-delta-k)

	stat := math.Max(d.cusumPos, d.cusumNeg)
	v := newVerdict(d.Method(), s, stat, d.config.Threshold, d.config.WarningThreshold, d.ring.Len(), d.config.WindowSize)
	v.setField("cusum_pos", d.cusumPos)
	v.setField("cusum_neg", d.cusumNeg)
	v.setField("target", tau)

	if v.Severity == SeverityCritical {
		// Arm for the next excursion. The emitted verdict keeps the
		// pre-reset accumulator values.
		d.cusumPos = 0
		d.cusumNeg = 0
	}
	return v, nil
}

// Reset clears the ring and both accumulators.
func (d *CUSUMDetector) Reset() {
	d.ring.Reset()
	d.cusumPos = 0
	d.cusumNeg = 0
}

// Status reports buffering progress. The detector is ready as soon as a
// target can be resolved.
func (d *CUSUMDetector) Status() Status {
	_, ok := d.target()
	return Status{
		Ready:         ok,
		BufferSize:    d.ring.Len(),
		WindowSize:    d.config.WindowSize,
		WarmupSamples: 2,
	}
}

// StateKey returns the configured persistence key.
func (d *CUSUMDetector) StateKey() string { return d.config.StateKey }

// SnapshotState captures the accumulators and the ring.
func (d *CUSUMDetector) SnapshotState() map[string]any {
	return map[string]any{
		"cusum_pos": d.cusumPos,
		"cusum_neg": d.cusumNeg,
		"samples":   d.ring.Samples(),
	}
}

// RestoreState reloads the accumulators and refills the ring.
func (d *CUSUMDetector) RestoreState(state map[string]any) error {
	d.Reset()
	if pos, ok := stateFloat(state, "cusum_pos"); ok {
		d.cusumPos = pos
	}
	if neg, ok := stateFloat(state, "cusum_neg"); ok {
		d.cusumNeg = neg
	}
	for _, s := range stateSamples(state["samples"]) {
		d.ring.Push(s)
	}
	return nil
}
