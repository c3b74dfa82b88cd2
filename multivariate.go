package vigil

import (
	"fmt"
	"math"
	"sort"
)

// FeatureMethod selects the per-feature anomaly check.
type FeatureMethod int

const (
	// FeatureMethodZScore applies a Z-score check per feature.
	FeatureMethodZScore FeatureMethod = iota
	// FeatureMethodIQR applies Tukey's 1.5*IQR fences (needs >= 4 samples).
	FeatureMethodIQR
	// FeatureMethodFixed applies fixed min/max thresholds.
	FeatureMethodFixed
)

func (m FeatureMethod) String() string {
	switch m {
	case FeatureMethodZScore:
		return "zscore"
	case FeatureMethodIQR:
		return "iqr"
	case FeatureMethodFixed:
		return "fixed"
	default:
		return "unknown"
	}
}

// minMahalanobisSamples is the minimum buffered vectors before a
// Mahalanobis distance is computed.
const minMahalanobisSamples = 10

// MultivariateConfig configures the multivariate analyzer.
type MultivariateConfig struct {
	// WindowSize is the capacity of the vector buffer and of each
	// per-feature ring.
	WindowSize int

	// FeatureMethod selects the per-feature check.
	FeatureMethod FeatureMethod

	// Threshold is the sigma factor: per-feature Z-score limit and the
	// Mahalanobis scale (critT = sqrt(dim*Threshold)).
	Threshold float64

	// WarningThreshold defaults to 0.7 * Threshold when zero.
	WarningThreshold float64

	// MinThreshold/MaxThreshold are the fixed per-feature bounds for
	// FeatureMethodFixed.
	MinThreshold float64
	MaxThreshold float64

	// EnableMahalanobis turns on the joint-distribution distance check.
	EnableMahalanobis bool
}

// DefaultMultivariateConfig returns sensible defaults.
func DefaultMultivariateConfig() MultivariateConfig {
	return MultivariateConfig{
		WindowSize:        50,
		FeatureMethod:     FeatureMethodZScore,
		Threshold:         3.0,
		EnableMahalanobis: true,
	}
}

// FeatureVerdict is the per-feature portion of a multivariate verdict.
type FeatureVerdict struct {
	Name      string  `json:"name"`
	Value     float64 `json:"value"`
	Metric    float64 `json:"metric"`
	IsAnomaly bool    `json:"is_anomaly"`
	Reason    string  `json:"reason,omitempty"`
}

// MultivariateDetector applies per-feature checks and an optional
// Mahalanobis distance over the joint distribution of a named feature
// vector. Feature names are discovered on the first sample and fixed for
// the stream's lifetime.
type MultivariateDetector struct {
	config MultivariateConfig

	names   []string
	rings   map[string]*Ring
	vectors [][]float64 // ring of full observations, insertion order
	vecTS   []int64
}

// NewMultivariateDetector creates a multivariate detector.
func NewMultivariateDetector(config MultivariateConfig) *MultivariateDetector {
	if config.WindowSize <= 0 {
		config.WindowSize = 50
	}
	if config.Threshold <= 0 {
		config.Threshold = 3.0
	}
	config.WarningThreshold = resolveWarning(config.Threshold, config.WarningThreshold)
	return &MultivariateDetector{
		config: config,
		rings:  make(map[string]*Ring),
	}
}

// Method returns the detector's method tag.
func (d *MultivariateDetector) Method() string { return "multivariate" }

// Names returns the discovered feature ordering, nil before the first
// sample.
func (d *MultivariateDetector) Names() []string {
	out := make([]string, len(d.names))
	copy(out, d.names)
	return out
}

// IngestVector processes one named vector sample.
func (d *MultivariateDetector) IngestVector(vs VectorSample) (*Verdict, error) {
	if !vs.Valid() {
		return nil, newValidationError(d.Method(), "malformed vector sample", 0)
	}

	if d.names == nil {
		d.names = make([]string, len(vs.Names))
		copy(d.names, vs.Names)
		for _, n := range d.names {
			d.rings[n] = NewRing(d.config.WindowSize)
		}
	} else if len(vs.Names) != len(d.names) {
		return nil, newValidationError(d.Method(),
			fmt.Sprintf("feature count changed: got %d, expected %d", len(vs.Names), len(d.names)), 0)
	}

	// Per-feature checks run against each feature's own ring before the
	// new value joins it.
	features := make([]FeatureVerdict, len(d.names))
	anomalous := 0
	for i, name := range d.names {
		x := vs.Values[i]
		fv := d.checkFeature(name, x)
		features[i] = fv
		if fv.IsAnomaly {
			anomalous++
		}
		d.rings[name].Push(Sample{Timestamp: vs.Timestamp, Value: x})
	}

	// Joint check over the buffered vectors.
	var dist float64
	var distOK bool
	if d.config.EnableMahalanobis && len(d.vectors) >= minMahalanobisSamples {
		dist = d.distance(vs.Values)
		distOK = true
	}
	d.pushVector(vs)

	dim := float64(len(d.names))
	critT := sqrtClamped(dim * d.config.Threshold)
	warnT := sqrtClamped(dim * d.config.WarningThreshold)

	sev := SeverityNormal
	if distOK {
		sev = stage(dist, critT, warnT)
	}
	if anomalous > 0 && sev == SeverityNormal {
		sev = SeverityWarning
	}

	v := &Verdict{
		Vector:           append([]float64(nil), vs.Values...),
		IsAnomaly:        sev != SeverityNormal,
		Severity:         sev,
		Method:           d.Method(),
		Metric:           dist,
		Threshold:        critT,
		WarningThreshold: warnT,
		BufferSize:       len(d.vectors),
		WindowSize:       d.config.WindowSize,
		Timestamp:        vs.Timestamp,
	}
	v.setField("features", features)
	v.setField("anomalous_features", anomalous)
	v.setField("feature_method", d.config.FeatureMethod.String())
	if distOK {
		v.setField("mahalanobis_distance", dist)
	}
	return v, nil
}

// checkFeature applies the configured per-feature anomaly check against the
// feature's ring contents.
func (d *MultivariateDetector) checkFeature(name string, x float64) FeatureVerdict {
	ring := d.rings[name]
	fv := FeatureVerdict{Name: name, Value: x}

	switch d.config.FeatureMethod {
	case FeatureMethodIQR:
		if ring.Len() < 4 {
			return fv
		}
		values := ring.Values()
		sort.Float64s(values)
		q1 := percentile(values, 25)
		q3 := percentile(values, 75)
		iqr := q3 - q1
		lo := q1 - 1.5*iqr
		hi := q3 + 1.5*iqr
		if x < lo || x > hi {
			fv.IsAnomaly = true
			fv.Reason = "outside IQR fences"
		}
		fv.Metric = iqr

	case FeatureMethodFixed:
		if x < d.config.MinThreshold || x > d.config.MaxThreshold {
			fv.IsAnomaly = true
			fv.Reason = "outside fixed thresholds"
		}
		fv.Metric = x

	default: // Z-score
		if ring.Len() < 2 {
			return fv
		}
		mean := ring.Mean()
		std := ring.Std()
		var z float64
		if std > 0 {
			z = (x - mean) / std
		} else {
			z = x - mean
		}
		fv.Metric = z
		if math.Abs(z) > d.config.Threshold {
			fv.IsAnomaly = true
			fv.Reason = "z-score threshold exceeded"
		}
	}
	return fv
}

// distance computes the Mahalanobis distance of x against the buffered
// vector distribution with Tikhonov regularization.
func (d *MultivariateDetector) distance(x []float64) float64 {
	dim := len(d.names)
	means := make([]float64, dim)
	for _, row := range d.vectors {
		for i := 0; i < dim; i++ {
			means[i] += row[i]
		}
	}
	for i := range means {
		means[i] /= float64(len(d.vectors))
	}

	cov := covarianceMatrix(d.vectors, means)
	regularize(cov, tikhonovEpsilon)
	invCov := invertMatrix(cov)
	return mahalanobis(x, means, invCov)
}

func (d *MultivariateDetector) pushVector(vs VectorSample) {
	row := append([]float64(nil), vs.Values...)
	if len(d.vectors) >= d.config.WindowSize {
		d.vectors = d.vectors[1:]
		d.vecTS = d.vecTS[1:]
	}
	d.vectors = append(d.vectors, row)
	d.vecTS = append(d.vecTS, vs.Timestamp)
}

// Reset clears all feature rings and the vector buffer. The discovered
// feature ordering is kept.
func (d *MultivariateDetector) Reset() {
	for _, r := range d.rings {
		r.Reset()
	}
	d.vectors = nil
	d.vecTS = nil
}

// Status reports buffering progress toward the Mahalanobis minimum.
func (d *MultivariateDetector) Status() Status {
	return Status{
		Ready:         len(d.vectors) >= minMahalanobisSamples,
		BufferSize:    len(d.vectors),
		WindowSize:    d.config.WindowSize,
		WarmupSamples: minMahalanobisSamples,
	}
}

func sqrtClamped(v float64) float64 {
	if v < 0 {
		return 0
	}
	return math.Sqrt(v)
}
