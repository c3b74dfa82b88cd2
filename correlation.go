package vigil

import (
	"fmt"
	"math"
	"sort"
)

// CorrelationConfig configures the two-sensor correlation analyzer.
type CorrelationConfig struct {
	// WindowSize is the shared ring capacity for both sensors.
	WindowSize int

	// WarmupSamples is the minimum paired samples before results.
	WarmupSamples int

	// SensorX and SensorY name the two correlated features.
	SensorX string
	SensorY string
}

// DefaultCorrelationConfig returns sensible defaults.
func DefaultCorrelationConfig() CorrelationConfig {
	return CorrelationConfig{
		WindowSize:    50,
		WarmupSamples: 5,
	}
}

// CorrelationResult bundles all correlation measures for one update.
type CorrelationResult struct {
	Pearson  float64 `json:"pearson"`
	Spearman float64 `json:"spearman"`

	// BestLag is the integer lag maximizing cross-correlation. Negative
	// means X leads Y.
	BestLag        int     `json:"best_lag"`
	BestLagCorr    float64 `json:"best_lag_corr"`
	Interpretation string  `json:"interpretation"`

	// LagCorrelations holds rho for each lag in [-MaxLag, MaxLag].
	LagCorrelations []float64 `json:"lag_correlations"`
	MaxLag          int       `json:"max_lag"`

	SampleCount int   `json:"sample_count"`
	Timestamp   int64 `json:"timestamp"`
}

// CorrelationAnalyzer tracks two named sensors with shared-length buffers
// and reports Pearson, Spearman, and lagged cross-correlation.
type CorrelationAnalyzer struct {
	config CorrelationConfig
	xs     *Ring
	ys     *Ring
}

// NewCorrelationAnalyzer creates a correlation analyzer.
func NewCorrelationAnalyzer(config CorrelationConfig) *CorrelationAnalyzer {
	if config.WindowSize <= 0 {
		config.WindowSize = 50
	}
	if config.WarmupSamples < 3 {
		config.WarmupSamples = 5
	}
	return &CorrelationAnalyzer{
		config: config,
		xs:     NewRing(config.WindowSize),
		ys:     NewRing(config.WindowSize),
	}
}

// Ingest adds one paired observation and returns the current correlation
// bundle, or nil during warmup.
func (a *CorrelationAnalyzer) Ingest(timestamp int64, x, y float64) (*CorrelationResult, error) {
	if math.IsNaN(x) || math.IsInf(x, 0) || math.IsNaN(y) || math.IsInf(y, 0) {
		return nil, newValidationError("correlation", "non-finite value", x)
	}

	a.xs.Push(Sample{Timestamp: timestamp, Value: x})
	a.ys.Push(Sample{Timestamp: timestamp, Value: y})
	if a.xs.Len() < a.config.WarmupSamples {
		return nil, nil
	}

	xv := a.xs.Values()
	yv := a.ys.Values()

	res := &CorrelationResult{
		Pearson:     Pearson(xv, yv),
		Spearman:    Spearman(xv, yv),
		SampleCount: len(xv),
		Timestamp:   timestamp,
	}

	maxLag := len(xv) / 4
	res.MaxLag = maxLag
	res.LagCorrelations = make([]float64, 0, 2*maxLag+1)
	bestLag, bestCorr := 0, math.Inf(-1)
	for lag := -maxLag; lag <= maxLag; lag++ {
		rho := CrossCorrelation(xv, yv, lag)
		res.LagCorrelations = append(res.LagCorrelations, rho)
		if rho > bestCorr {
			bestCorr = rho
			bestLag = lag
		}
	}
	res.BestLag = bestLag
	res.BestLagCorr = bestCorr
	res.Interpretation = interpretLag(a.config.SensorX, a.config.SensorY, bestLag)

	return res, nil
}

// Reset clears both buffers.
func (a *CorrelationAnalyzer) Reset() {
	a.xs.Reset()
	a.ys.Reset()
}

// Len returns the number of buffered pairs.
func (a *CorrelationAnalyzer) Len() int { return a.xs.Len() }

func interpretLag(nameX, nameY string, lag int) string {
	if nameX == "" {
		nameX = "x"
	}
	if nameY == "" {
		nameY = "y"
	}
	switch {
	case lag < 0:
		return fmt.Sprintf("%s leads %s by %d samples", nameX, nameY, -lag)
	case lag > 0:
		return fmt.Sprintf("%s leads %s by %d samples", nameY, nameX, lag)
	default:
		return fmt.Sprintf("%s and %s move together", nameX, nameY)
	}
}

// Pearson returns the Pearson correlation coefficient of two equal-length
// series, or 0 when either series has zero variance.
func Pearson(x, y []float64) float64 {
	n := len(x)
	if n == 0 || n != len(y) {
		return 0
	}
	var sumX, sumY float64
	for i := 0; i < n; i++ {
		sumX += x[i]
		sumY += y[i]
	}
	meanX := sumX / float64(n)
	meanY := sumY / float64(n)

	var cov, varX, varY float64
	for i := 0; i < n; i++ {
		dx := x[i] - meanX
		dy := y[i] - meanY
		cov += dx * dy
		varX += dx * dx
		varY += dy * dy
	}
	if varX == 0 || varY == 0 {
		return 0
	}
	return cov / math.Sqrt(varX*varY)
}

// Spearman returns the Spearman rank correlation: Pearson applied to the
// mid-ranks of both series (ties averaged).
func Spearman(x, y []float64) float64 {
	if len(x) != len(y) || len(x) == 0 {
		return 0
	}
	return Pearson(midRanks(x), midRanks(y))
}

// midRanks replaces values with their 1-based ranks, averaging ties.
func midRanks(values []float64) []float64 {
	n := len(values)
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return values[idx[a]] < values[idx[b]] })

	ranks := make([]float64, n)
	i := 0
	for i < n {
		j := i
		for j+1 < n && values[idx[j+1]] == values[idx[i]] {
			j++
		}
		// Average rank for the tie group [i, j].
		avg := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			ranks[idx[k]] = avg
		}
		i = j + 1
	}
	return ranks
}

// CrossCorrelation returns the normalized cross-correlation of x and y at
// an integer lag, correlating x[i] with y[i-lag]. A negative best lag
// therefore means x leads y. Returns 0 when either series has zero
// variance or the overlap is empty.
func CrossCorrelation(x, y []float64, lag int) float64 {
	n := len(x)
	if n == 0 || n != len(y) {
		return 0
	}
	var sumX, sumY float64
	for i := 0; i < n; i++ {
		sumX += x[i]
		sumY += y[i]
	}
	meanX := sumX / float64(n)
	meanY := sumY / float64(n)

	var varX, varY float64
	for i := 0; i < n; i++ {
		varX += (x[i] - meanX) * (x[i] - meanX)
		varY += (y[i] - meanY) * (y[i] - meanY)
	}
	sigX := math.Sqrt(varX / float64(n))
	sigY := math.Sqrt(varY / float64(n))
	if sigX == 0 || sigY == 0 {
		return 0
	}

	var sum float64
	count := 0
	for i := 0; i < n; i++ {
		j := i - lag
		if j < 0 || j >= n {
			continue
		}
		sum += (x[i] - meanX) * (y[j] - meanY)
		count++
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count) / (sigX * sigY)
}
