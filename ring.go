package vigil

import "math"

// Ring is a bounded FIFO of samples with O(1) insertion. When full, the
// oldest sample is evicted. Samples retain insertion order.
type Ring struct {
	buf   []Sample
	head  int // index of oldest sample
	count int
}

// NewRing creates a ring with the given capacity. Capacity below 1 is
// clamped to 1.
func NewRing(capacity int) *Ring {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring{buf: make([]Sample, capacity)}
}

// Push appends a sample, evicting the oldest when full.
func (r *Ring) Push(s Sample) {
	if r.count < len(r.buf) {
		r.buf[(r.head+r.count)%len(r.buf)] = s
		r.count++
		return
	}
	r.buf[r.head] = s
	r.head = (r.head + 1) % len(r.buf)
}

// Len returns the number of buffered samples.
func (r *Ring) Len() int { return r.count }

// Cap returns the ring capacity.
func (r *Ring) Cap() int { return len(r.buf) }

// At returns the i-th buffered sample in insertion order (0 = oldest).
func (r *Ring) At(i int) Sample {
	return r.buf[(r.head+i)%len(r.buf)]
}

// Last returns the most recent sample. Callers must check Len first.
func (r *Ring) Last() Sample {
	return r.At(r.count - 1)
}

// Values copies the buffered values into a fresh slice in insertion order.
func (r *Ring) Values() []float64 {
	out := make([]float64, r.count)
	for i := 0; i < r.count; i++ {
		out[i] = r.At(i).Value
	}
	return out
}

// Samples copies the buffered samples into a fresh slice in insertion order.
func (r *Ring) Samples() []Sample {
	out := make([]Sample, r.count)
	for i := 0; i < r.count; i++ {
		out[i] = r.At(i)
	}
	return out
}

// Reset discards all buffered samples.
func (r *Ring) Reset() {
	r.head = 0
	r.count = 0
}

// Mean returns the mean of the buffered values, or 0 when empty.
func (r *Ring) Mean() float64 {
	if r.count == 0 {
		return 0
	}
	sum := 0.0
	for i := 0; i < r.count; i++ {
		sum += r.At(i).Value
	}
	return sum / float64(r.count)
}

// Std returns the population standard deviation of the buffered values.
func (r *Ring) Std() float64 {
	if r.count == 0 {
		return 0
	}
	mean := r.Mean()
	sumSq := 0.0
	for i := 0; i < r.count; i++ {
		d := r.At(i).Value - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(r.count))
}

// MeanInterval returns the mean spacing between consecutive timestamps in
// milliseconds, or 0 with fewer than two samples.
func (r *Ring) MeanInterval() float64 {
	if r.count < 2 {
		return 0
	}
	span := r.At(r.count-1).Timestamp - r.At(0).Timestamp
	return float64(span) / float64(r.count-1)
}

// Aggregates holds incrementally maintained feature statistics.
type Aggregates struct {
	Count      int64   `json:"count"`
	Sum        float64 `json:"sum"`
	SumSquares float64 `json:"sum_squares"`
	Min        float64 `json:"min"`
	Max        float64 `json:"max"`
}

// NewAggregates returns zeroed aggregates with sentinels for Min/Max.
func NewAggregates() Aggregates {
	return Aggregates{Min: math.MaxFloat64, Max: -math.MaxFloat64}
}

// Observe folds one value into the aggregates.
func (a *Aggregates) Observe(v float64) {
	a.Count++
	a.Sum += v
	a.SumSquares += v * v
	if v < a.Min {
		a.Min = v
	}
	if v > a.Max {
		a.Max = v
	}
}

// Mean returns the running mean, or 0 when no values were observed.
func (a *Aggregates) Mean() float64 {
	if a.Count == 0 {
		return 0
	}
	return a.Sum / float64(a.Count)
}

// Variance returns the population variance, clamped to be non-negative.
func (a *Aggregates) Variance() float64 {
	if a.Count == 0 {
		return 0
	}
	mean := a.Mean()
	v := a.SumSquares/float64(a.Count) - mean*mean
	if v < 0 {
		v = 0
	}
	return v
}

// Std returns the population standard deviation.
func (a *Aggregates) Std() float64 {
	return math.Sqrt(a.Variance())
}

// Reset clears the aggregates back to their initial state.
func (a *Aggregates) Reset() {
	*a = NewAggregates()
}
