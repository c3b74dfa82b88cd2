package vigil

import "math"

// RateMode selects the rate-of-change units.
type RateMode int

const (
	// RateModeAbsolute reports units per second.
	RateModeAbsolute RateMode = iota
	// RateModePercentage reports percent of the previous value per second.
	RateModePercentage
)

func (m RateMode) String() string {
	switch m {
	case RateModeAbsolute:
		return "absolute"
	case RateModePercentage:
		return "percentage"
	default:
		return "unknown"
	}
}

// RateOfChangeConfig configures the rate-of-change detector.
type RateOfChangeConfig struct {
	// Mode selects absolute (units/s) or percentage (%/s) rates.
	Mode RateMode

	// Threshold is the critical rate magnitude. Zero disables anomaly
	// classification; rates are still reported.
	Threshold float64

	// WarningThreshold defaults to 0.7 * Threshold when zero.
	WarningThreshold float64

	// TimeWindow bounds the rate history in seconds. Rates older than
	// this are pruned. Defaults to 60.
	TimeWindow float64
}

// DefaultRateOfChangeConfig returns sensible defaults.
func DefaultRateOfChangeConfig() RateOfChangeConfig {
	return RateOfChangeConfig{
		Mode:       RateModeAbsolute,
		TimeWindow: 60,
	}
}

type ratePoint struct {
	timestamp int64
	rate      float64
}

// RateOfChangeDetector reports the first derivative of a stream and the
// acceleration derived from consecutive rates over a sliding time window.
type RateOfChangeDetector struct {
	config            RateOfChangeConfig
	previousValue     float64
	previousTimestamp int64
	hasPrevious       bool
	history           []ratePoint
}

// NewRateOfChangeDetector creates a rate-of-change detector.
func NewRateOfChangeDetector(config RateOfChangeConfig) *RateOfChangeDetector {
	if config.TimeWindow <= 0 {
		config.TimeWindow = 60
	}
	if config.Threshold > 0 {
		config.WarningThreshold = resolveWarning(config.Threshold, config.WarningThreshold)
	}
	return &RateOfChangeDetector{config: config}
}

// Method returns the detector's method tag.
func (d *RateOfChangeDetector) Method() string { return "rate_of_change" }

// prune drops history entries older than the time window relative to now.
func (d *RateOfChangeDetector) prune(now int64) {
	cutoff := now - int64(d.config.TimeWindow*1000)
	idx := 0
	for _, p := range d.history {
		if p.timestamp >= cutoff {
			d.history[idx] = p
			idx++
		}
	}
	d.history = d.history[:idx]
}

// Ingest processes one sample. Samples with non-positive time deltas are
// recorded as the new reference point but produce no verdict.
func (d *RateOfChangeDetector) Ingest(s Sample) (*Verdict, error) {
	if !s.Valid() {
		return nil, newValidationError(d.Method(), "non-finite value", s.Value)
	}

	if !d.hasPrevious {
		d.previousValue = s.Value
		d.previousTimestamp = s.Timestamp
		d.hasPrevious = true
		return nil, nil
	}

	dt := float64(s.Timestamp-d.previousTimestamp) / 1000.0
	if dt <= 0 {
		d.previousValue = s.Value
		d.previousTimestamp = s.Timestamp
		return nil, nil
	}

	dv := s.Value - d.previousValue
	var rate float64
	switch d.config.Mode {
	case RateModePercentage:
		if d.previousValue != 0 {
			rate = 100 * dv / math.Abs(d.previousValue) / dt
		}
	default:
		rate = dv / dt
	}

	// Acceleration is the first difference of consecutive rates.
	var accel float64
	if n := len(d.history); n > 0 {
		prev := d.history[n-1]
		adt := float64(s.Timestamp-prev.timestamp) / 1000.0
		if adt > 0 {
			accel = (rate - prev.rate) / adt
		}
	}

	d.history = append(d.history, ratePoint{timestamp: s.Timestamp, rate: rate})
	d.prune(s.Timestamp)
	d.previousValue = s.Value
	d.previousTimestamp = s.Timestamp

	sev := SeverityNormal
	if d.config.Threshold > 0 {
		sev = stage(rate, d.config.Threshold, d.config.WarningThreshold)
	}

	v := &Verdict{
		Value:            s.Value,
		IsAnomaly:        sev != SeverityNormal,
		Severity:         sev,
		Method:           d.Method(),
		Metric:           rate,
		Threshold:        d.config.Threshold,
		WarningThreshold: d.config.WarningThreshold,
		BufferSize:       len(d.history),
		WindowSize:       int(d.config.TimeWindow),
		Timestamp:        s.Timestamp,
	}
	v.setField("rate", rate)
	v.setField("acceleration", accel)
	v.setField("mode", d.config.Mode.String())
	return v, nil
}

// Reset clears the reference point and rate history.
func (d *RateOfChangeDetector) Reset() {
	d.hasPrevious = false
	d.previousValue = 0
	d.previousTimestamp = 0
	d.history = d.history[:0]
}

// Status reports readiness: one prior sample is enough.
func (d *RateOfChangeDetector) Status() Status {
	return Status{
		Ready:         d.hasPrevious,
		BufferSize:    len(d.history),
		WindowSize:    int(d.config.TimeWindow),
		WarmupSamples: 1,
	}
}
