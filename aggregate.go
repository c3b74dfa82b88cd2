package vigil

import (
	"math"
	"sort"
)

// AggregateMethod identifies the reduction applied to a vector.
type AggregateMethod int

const (
	AggregateMean AggregateMethod = iota
	AggregateMedian
	AggregateMin
	AggregateMax
	AggregateSum
	AggregateRange
	AggregateStdDev
)

func (m AggregateMethod) String() string {
	switch m {
	case AggregateMean:
		return "mean"
	case AggregateMedian:
		return "median"
	case AggregateMin:
		return "min"
	case AggregateMax:
		return "max"
	case AggregateSum:
		return "sum"
	case AggregateRange:
		return "range"
	case AggregateStdDev:
		return "stddev"
	default:
		return "unknown"
	}
}

// ParseAggregateMethod resolves a method name, failing fast on unknown
// names.
func ParseAggregateMethod(name string) (AggregateMethod, error) {
	switch name {
	case "mean", "avg", "":
		return AggregateMean, nil
	case "median":
		return AggregateMedian, nil
	case "min":
		return AggregateMin, nil
	case "max":
		return AggregateMax, nil
	case "sum":
		return AggregateSum, nil
	case "range":
		return AggregateRange, nil
	case "stddev", "std":
		return AggregateStdDev, nil
	default:
		return 0, newConfigError("aggregateMethod", "unknown method "+name)
	}
}

// VectorStats is the full statistic bundle computed by the aggregator.
type VectorStats struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Sum    float64 `json:"sum"`
	Range  float64 `json:"range"`
	StdDev float64 `json:"std_dev"`
}

// Aggregator reduces a vector of scalars to a single value while also
// reporting the full statistic bundle.
type Aggregator struct {
	method AggregateMethod
}

// NewAggregator creates an aggregator.
func NewAggregator(method AggregateMethod) *Aggregator {
	return &Aggregator{method: method}
}

// Aggregate reduces values and returns the scalar plus the bundle.
func (a *Aggregator) Aggregate(values []float64) (float64, VectorStats, error) {
	if len(values) == 0 {
		return 0, VectorStats{}, ErrInsufficientData
	}
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, VectorStats{}, newValidationError("aggregate", "non-finite value", v)
		}
	}

	stats := computeVectorStats(values)
	var out float64
	switch a.method {
	case AggregateMedian:
		out = stats.Median
	case AggregateMin:
		out = stats.Min
	case AggregateMax:
		out = stats.Max
	case AggregateSum:
		out = stats.Sum
	case AggregateRange:
		out = stats.Range
	case AggregateStdDev:
		out = stats.StdDev
	default:
		out = stats.Mean
	}
	return out, stats, nil
}

// Method returns the configured reduction.
func (a *Aggregator) Method() AggregateMethod { return a.method }

func computeVectorStats(values []float64) VectorStats {
	n := len(values)
	stats := VectorStats{Count: n, Min: values[0], Max: values[0]}
	for _, v := range values {
		stats.Sum += v
		if v < stats.Min {
			stats.Min = v
		}
		if v > stats.Max {
			stats.Max = v
		}
	}
	stats.Mean = stats.Sum / float64(n)
	stats.Range = stats.Max - stats.Min

	var sumSq float64
	for _, v := range values {
		d := v - stats.Mean
		sumSq += d * d
	}
	stats.StdDev = math.Sqrt(sumSq / float64(n))

	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := n / 2
	if n%2 == 1 {
		stats.Median = sorted[mid]
	} else {
		stats.Median = (sorted[mid-1] + sorted[mid]) / 2
	}
	return stats
}

// SplitMode selects how a Splitter expands a vector.
type SplitMode int

const (
	// SplitSequential emits one scalar message per element, tagged with
	// index, name, and total.
	SplitSequential SplitMode = iota
	// SplitParallel emits a single array message.
	SplitParallel
)

// SplitPart is one scalar message produced by sequential splitting.
type SplitPart struct {
	Index     int     `json:"index"`
	Name      string  `json:"name"`
	Total     int     `json:"total"`
	Value     float64 `json:"value"`
	Timestamp int64   `json:"timestamp"`
}

// Splitter expands a vector sample into scalar messages or one array
// message.
type Splitter struct {
	mode SplitMode
}

// NewSplitter creates a splitter.
func NewSplitter(mode SplitMode) *Splitter {
	return &Splitter{mode: mode}
}

// Split expands a vector sample. In sequential mode the result has one
// part per element; in parallel mode a single part whose envelope carries
// the full array.
func (s *Splitter) Split(vs VectorSample) ([]SplitPart, []Envelope, error) {
	if !vs.Valid() {
		return nil, nil, newValidationError("split", "malformed vector sample", 0)
	}

	if s.mode == SplitParallel {
		env := Envelope{
			"values":    append([]float64(nil), vs.Values...),
			"names":     append([]string(nil), vs.Names...),
			"timestamp": vs.Timestamp,
		}
		return nil, []Envelope{env}, nil
	}

	parts := make([]SplitPart, len(vs.Values))
	envs := make([]Envelope, len(vs.Values))
	total := len(vs.Values)
	for i, v := range vs.Values {
		parts[i] = SplitPart{
			Index:     i,
			Name:      vs.Names[i],
			Total:     total,
			Value:     v,
			Timestamp: vs.Timestamp,
		}
		envs[i] = Envelope{
			"index":     i,
			"name":      vs.Names[i],
			"total":     total,
			"value":     v,
			"timestamp": vs.Timestamp,
		}
	}
	return parts, envs, nil
}
