package vigil

// TrendMethod identifies the trend estimation algorithm.
type TrendMethod int

const (
	// TrendMethodLinear fits an ordinary least squares line over sample
	// indices.
	TrendMethodLinear TrendMethod = iota
	// TrendMethodExponential uses Holt's double exponential smoothing.
	TrendMethodExponential
)

func (m TrendMethod) String() string {
	switch m {
	case TrendMethodLinear:
		return "linear"
	case TrendMethodExponential:
		return "exponential"
	default:
		return "unknown"
	}
}

// Trend direction labels.
const (
	TrendIncreasing = "increasing"
	TrendDecreasing = "decreasing"
	TrendStable     = "stable"
)

// slopeDeadBand is the slope magnitude below which a trend is reported as
// stable.
const slopeDeadBand = 0.01

// Holt smoothing parameters for the exponential method.
const (
	holtAlpha = 0.3
	holtBeta  = 0.1
)

// TrendConfig configures the trend predictor.
type TrendConfig struct {
	// WindowSize is the ring capacity.
	WindowSize int

	// WarmupSamples is the minimum buffered samples before verdicts.
	WarmupSamples int

	// Method selects linear regression or Holt smoothing.
	Method TrendMethod

	// WarningThreshold, when non-zero, enables steps-to-threshold
	// prediction against this value.
	WarningThreshold float64

	// StateKey, when non-empty, identifies this detector in a
	// StateStore so the smoothing state survives restarts.
	StateKey string
}

// DefaultTrendConfig returns sensible defaults.
func DefaultTrendConfig() TrendConfig {
	return TrendConfig{
		WindowSize:    30,
		WarmupSamples: 5,
		Method:        TrendMethodLinear,
	}
}

// TrendDetector estimates the direction and slope of a stream and, when a
// warning threshold is configured, predicts how many future steps remain
// until the threshold is crossed.
type TrendDetector struct {
	config TrendConfig
	ring   *Ring

	// Holt state for the exponential method. The first two samples seed
	// level and trend; smoothing starts on the third.
	level       float64
	trend       float64
	initialized bool
	seeded      bool
}

// NewTrendDetector creates a trend detector.
func NewTrendDetector(config TrendConfig) *TrendDetector {
	if config.WindowSize <= 0 {
		config.WindowSize = 30
	}
	if config.WarmupSamples < 3 {
		config.WarmupSamples = 5
	}
	return &TrendDetector{
		config: config,
		ring:   NewRing(config.WindowSize),
	}
}

// Method returns the detector's method tag.
func (d *TrendDetector) Method() string { return "trend" }

// olsSlope fits y = a + b*i over sample indices and returns the slope b.
func olsSlope(values []float64) float64 {
	n := float64(len(values))
	if n < 2 {
		return 0
	}
	var sumX, sumY, sumXY, sumXX float64
	for i, y := range values {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	den := n*sumXX - sumX*sumX
	if den == 0 {
		return 0
	}
	return (n*sumXY - sumX*sumY) / den
}

// classifyTrend maps a slope to a direction label using the dead-band.
func classifyTrend(slope float64) string {
	switch {
	case slope > slopeDeadBand:
		return TrendIncreasing
	case slope < -slopeDeadBand:
		return TrendDecreasing
	default:
		return TrendStable
	}
}

// Predict returns the Holt forecast k steps ahead. Only meaningful for the
// exponential method after at least one sample.
func (d *TrendDetector) Predict(k int) float64 {
	return d.level + float64(k)*d.trend
}

// stepsToThreshold returns the smallest future step whose predicted value
// crosses threshold, and ok=false when the prediction never crosses within
// the horizon.
func stepsToThreshold(current, slope, threshold float64) (int, bool) {
	if slope == 0 {
		return 0, false
	}
	// Only an approach toward the threshold counts.
	if (threshold > current && slope < 0) || (threshold < current && slope > 0) {
		return 0, false
	}
	const horizon = 10000
	for k := 1; k <= horizon; k++ {
		p := current + float64(k)*slope
		if (threshold >= current && p >= threshold) || (threshold <= current && p <= threshold) {
			return k, true
		}
	}
	return 0, false
}

// Ingest processes one sample.
func (d *TrendDetector) Ingest(s Sample) (*Verdict, error) {
	if !s.Valid() {
		return nil, newValidationError(d.Method(), "non-finite value", s.Value)
	}

	switch {
	case !d.initialized:
		d.level = s.Value
		d.initialized = true
	case !d.seeded:
		d.trend = s.Value - d.level
		d.level = s.Value
		d.seeded = true
	default:
		prevLevel := d.level
		d.level = holtAlpha*s.Value + (1-holtAlpha)*(prevLevel+d.trend)
		d.trend = holtBeta*(d.level-prevLevel) + (1-holtBeta)*d.trend
	}

	d.ring.Push(s)
	if d.ring.Len() < d.config.WarmupSamples {
		return nil, nil
	}

	var slope float64
	switch d.config.Method {
	case TrendMethodExponential:
		slope = d.trend
	default:
		slope = olsSlope(d.ring.Values())
	}
	direction := classifyTrend(slope)

	v := &Verdict{
		Value:            s.Value,
		IsAnomaly:        false,
		Severity:         SeverityNormal,
		Method:           d.Method(),
		Metric:           slope,
		WarningThreshold: d.config.WarningThreshold,
		BufferSize:       d.ring.Len(),
		WindowSize:       d.config.WindowSize,
		Timestamp:        s.Timestamp,
	}
	v.setField("slope", slope)
	v.setField("trend", direction)
	v.setField("trend_method", d.config.Method.String())
	if d.config.Method == TrendMethodExponential {
		v.setField("level", d.level)
		v.setField("predicted_next", d.Predict(1))
	}

	if d.config.WarningThreshold != 0 {
		current := s.Value
		if d.config.Method == TrendMethodExponential {
			current = d.level
		}
		if steps, ok := stepsToThreshold(current, slope, d.config.WarningThreshold); ok {
			v.setField("steps_to_threshold", steps)
			if interval := d.ring.MeanInterval(); interval > 0 {
				v.setField("time_to_threshold_ms", float64(steps)*interval)
			}
			// An approaching threshold is a warning condition.
			v.Severity = SeverityWarning
			v.IsAnomaly = true
		}
	}

	return v, nil
}

// Reset clears the ring and Holt state.
func (d *TrendDetector) Reset() {
	d.ring.Reset()
	d.level = 0
	d.trend = 0
	d.initialized = false
	d.seeded = false
}

// Status reports buffering progress.
func (d *TrendDetector) Status() Status {
	return Status{
		Ready:         d.ring.Len() >= d.config.WarmupSamples,
		BufferSize:    d.ring.Len(),
		WindowSize:    d.config.WindowSize,
		WarmupSamples: d.config.WarmupSamples,
	}
}

// StateKey returns the configured persistence key.
func (d *TrendDetector) StateKey() string { return d.config.StateKey }

// SnapshotState captures the Holt state and the ring.
func (d *TrendDetector) SnapshotState() map[string]any {
	return map[string]any{
		"level":       d.level,
		"trend":       d.trend,
		"initialized": d.initialized,
		"seeded":      d.seeded,
		"samples":     d.ring.Samples(),
	}
}

// RestoreState reloads the Holt state and refills the ring.
func (d *TrendDetector) RestoreState(state map[string]any) error {
	d.Reset()
	if level, ok := stateFloat(state, "level"); ok {
		d.level = level
	}
	if trend, ok := stateFloat(state, "trend"); ok {
		d.trend = trend
	}
	d.initialized = stateBool(state, "initialized")
	d.seeded = stateBool(state, "seeded")
	for _, s := range stateSamples(state["samples"]) {
		d.ring.Push(s)
	}
	return nil
}
