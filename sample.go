package vigil

import (
	"math"
	"time"
)

// Sample is a single scalar observation on a stream.
type Sample struct {
	// Timestamp is milliseconds since the Unix epoch. Timestamps are
	// expected to be monotonically non-decreasing within a stream.
	Timestamp int64 `json:"timestamp"`

	// Value is the observed value. Must be finite.
	Value float64 `json:"value"`
}

// Valid reports whether the sample carries a finite value.
func (s Sample) Valid() bool {
	return !math.IsNaN(s.Value) && !math.IsInf(s.Value, 0)
}

// VectorSample is a multi-feature observation on a stream. Names and Values
// are parallel slices; name ordering is fixed by the first sample of a
// stream and must not change afterwards.
type VectorSample struct {
	Timestamp int64     `json:"timestamp"`
	Names     []string  `json:"names"`
	Values    []float64 `json:"values"`
}

// Valid reports whether the vector is well formed: parallel slices and all
// values finite.
func (v VectorSample) Valid() bool {
	if len(v.Names) != len(v.Values) || len(v.Values) == 0 {
		return false
	}
	for _, x := range v.Values {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

// Severity classifies how far an observation deviates from normal.
type Severity int

const (
	// SeverityNormal means the observation is within expected bounds.
	SeverityNormal Severity = iota
	// SeverityWarning means the warning threshold was exceeded.
	SeverityWarning
	// SeverityCritical means the critical threshold was exceeded.
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityNormal:
		return "normal"
	case SeverityWarning:
		return "warning"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler so Severity serializes as
// its string form in JSON documents.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler so JSON verdicts
// round-trip.
func (s *Severity) UnmarshalText(b []byte) error {
	switch string(b) {
	case "normal":
		*s = SeverityNormal
	case "warning":
		*s = SeverityWarning
	case "critical":
		*s = SeverityCritical
	default:
		return newValidationError("severity", "unknown severity "+string(b), 0)
	}
	return nil
}

// Verdict is the structured diagnostic result a detector emits for one
// sample. All detectors share this envelope; method-specific measurements
// go into Fields.
type Verdict struct {
	// Value echoes the scalar input, or the aggregate for vector input.
	Value float64 `json:"value"`

	// Vector echoes vector input when the detector is multivariate.
	Vector []float64 `json:"vector,omitempty"`

	// IsAnomaly is true when Severity is warning or critical.
	IsAnomaly bool `json:"is_anomaly"`

	// Severity is the staged classification of the observation.
	Severity Severity `json:"severity"`

	// Method tags the detector that produced the verdict.
	Method string `json:"method"`

	// Metric is the detector's headline statistic (z-score, distance, ...).
	Metric float64 `json:"metric"`

	// Threshold and WarningThreshold echo the configured limits.
	Threshold        float64 `json:"threshold"`
	WarningThreshold float64 `json:"warning_threshold"`

	// BufferSize is the number of samples currently buffered.
	BufferSize int `json:"buffer_size"`

	// WindowSize is the configured ring capacity.
	WindowSize int `json:"window_size"`

	// Timestamp echoes the input sample timestamp (milliseconds).
	Timestamp int64 `json:"timestamp"`

	// Fields carries method-specific measurements (cusum accumulators,
	// percentile bounds, detected lags, matched fault frequencies, ...).
	Fields map[string]any `json:"fields,omitempty"`
}

// Field returns a method-specific measurement, or nil.
func (v *Verdict) Field(name string) any {
	if v == nil || v.Fields == nil {
		return nil
	}
	return v.Fields[name]
}

// setField lazily initializes Fields.
func (v *Verdict) setField(name string, val any) {
	if v.Fields == nil {
		v.Fields = make(map[string]any, 4)
	}
	v.Fields[name] = val
}

// Envelope is a message wrapper: the verdict plus every input property that
// detectors do not own. Merging is right-biased so verdict fields overwrite
// input fields of the same name and everything else passes through
// verbatim.
type Envelope map[string]any

// Merge returns a new envelope containing all of e overlaid with all of
// other. Keys present in both take other's value.
func (e Envelope) Merge(other Envelope) Envelope {
	out := make(Envelope, len(e)+len(other))
	for k, v := range e {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}

// WithVerdict overlays a verdict's fields onto the envelope.
func (e Envelope) WithVerdict(v *Verdict) Envelope {
	if v == nil {
		return e
	}
	overlay := Envelope{
		"value":             v.Value,
		"is_anomaly":        v.IsAnomaly,
		"severity":          v.Severity.String(),
		"method":            v.Method,
		"metric":            v.Metric,
		"threshold":         v.Threshold,
		"warning_threshold": v.WarningThreshold,
		"buffer_size":       v.BufferSize,
		"window_size":       v.WindowSize,
		"timestamp":         v.Timestamp,
	}
	if len(v.Vector) > 0 {
		overlay["vector"] = v.Vector
	}
	for k, val := range v.Fields {
		overlay[k] = val
	}
	return e.Merge(overlay)
}

// NowMillis returns the current wall clock in sample-timestamp units.
func NowMillis() int64 {
	return time.Now().UnixMilli()
}
