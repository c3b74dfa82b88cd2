package vigil

import "math"

// Detector is the common contract for univariate analyzers. Ingest is
// synchronous: one sample is processed to completion before the next is
// accepted, and verdicts are emitted in sample order.
//
// Ingest returns (nil, nil) while the detector is warming up; no detector
// emits a verdict before its minimum sample count is reached. Callers that
// need pass-through behavior forward the raw envelope themselves and can
// inspect Status for warmup progress.
//
// A non-finite sample returns a *ValidationError and leaves state
// unchanged.
type Detector interface {
	// Ingest processes one sample and returns at most one verdict.
	Ingest(s Sample) (*Verdict, error)

	// Reset clears the ring and all stateful accumulators.
	Reset()

	// Status reports buffering progress and readiness.
	Status() Status

	// Method returns the detector's method tag.
	Method() string
}

// Status describes a detector's buffering state.
type Status struct {
	// Ready is true once warmup is complete and verdicts are being emitted.
	Ready bool `json:"ready"`

	// BufferSize is the number of currently buffered samples.
	BufferSize int `json:"buffer_size"`

	// WindowSize is the configured ring capacity.
	WindowSize int `json:"window_size"`

	// WarmupSamples is the minimum buffered samples before verdicts.
	WarmupSamples int `json:"warmup_samples"`
}

// thresholds resolves the warning threshold: when unset it defaults to
// 0.7 times the critical threshold.
func resolveWarning(critical, warning float64) float64 {
	if warning > 0 {
		return warning
	}
	return 0.7 * critical
}

// stage classifies an absolute statistic against critical and warning
// thresholds.
func stage(stat, critical, warning float64) Severity {
	abs := math.Abs(stat)
	switch {
	case abs > critical:
		return SeverityCritical
	case abs > warning:
		return SeverityWarning
	default:
		return SeverityNormal
	}
}

// newVerdict fills the common envelope for a scalar detector.
func newVerdict(method string, s Sample, stat, critical, warning float64, bufLen, window int) *Verdict {
	sev := stage(stat, critical, warning)
	return &Verdict{
		Value:            s.Value,
		IsAnomaly:        sev != SeverityNormal,
		Severity:         sev,
		Method:           method,
		Metric:           stat,
		Threshold:        critical,
		WarningThreshold: warning,
		BufferSize:       bufLen,
		WindowSize:       window,
		Timestamp:        s.Timestamp,
	}
}
