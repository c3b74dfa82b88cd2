package vigil

import (
	"math"
	"math/rand"
	"time"
)

// SplitRatio partitions a dataset into train/val/test fractions. The
// three fractions must sum to 1.
type SplitRatio struct {
	Train float64 `json:"train" yaml:"train"`
	Val   float64 `json:"val" yaml:"val"`
	Test  float64 `json:"test" yaml:"test"`
}

// Validate checks non-negative fractions summing to 1.
func (r SplitRatio) Validate() error {
	if r.Train < 0 || r.Val < 0 || r.Test < 0 {
		return newConfigError("splitRatio", "fractions must be non-negative")
	}
	if math.Abs(r.Train+r.Val+r.Test-1) > 1e-9 {
		return newConfigError("splitRatio", "fractions must sum to 1")
	}
	return nil
}

// single reports whether everything lands in the train partition.
func (r SplitRatio) single() bool {
	return r.Val == 0 && r.Test == 0
}

// DatasetSplit is a disjoint, total partition of the buffered samples.
type DatasetSplit struct {
	Train []TrainingSample
	Val   []TrainingSample
	Test  []TrainingSample
}

// Shuffle runs a Fisher-Yates shuffle in place. A zero seed draws one
// from the clock; a fixed seed reproduces the same dataset ordering.
func Shuffle(samples []TrainingSample, seed int64) {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))
	for i := len(samples) - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		samples[i], samples[j] = samples[j], samples[i]
	}
}

// SplitDataset partitions samples by ratio: the train partition takes
// the first floor(N*train) samples, val the next floor(N*val), and test
// the remainder. The input slice is not copied.
func SplitDataset(samples []TrainingSample, ratio SplitRatio) (DatasetSplit, error) {
	if err := ratio.Validate(); err != nil {
		return DatasetSplit{}, err
	}
	n := len(samples)
	nTrain := int(math.Floor(float64(n) * ratio.Train))
	nVal := int(math.Floor(float64(n) * ratio.Val))
	if nTrain+nVal > n {
		nVal = n - nTrain
	}
	return DatasetSplit{
		Train: samples[:nTrain],
		Val:   samples[nTrain : nTrain+nVal],
		Test:  samples[nTrain+nVal:],
	}, nil
}
