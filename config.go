package vigil

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the YAML-loadable configuration surface. Enum-valued
// fields are plain strings validated fail-fast by Validate; the
// section accessors translate a validated Config into the typed
// per-component configurations.
type Config struct {
	Detector  DetectorOptions  `yaml:"detector"`
	Spectral  SpectralOptions  `yaml:"spectral"`
	Envelope  EnvelopeOptions  `yaml:"envelope"`
	Cepstrum  CepstrumOptions  `yaml:"cepstrum"`
	ISO       ISOOptions       `yaml:"iso"`
	Collector CollectorOptions `yaml:"collector"`
}

// DetectorOptions configures a univariate detector.
type DetectorOptions struct {
	// Method selects the detector: zscore, moving_average, ema, cusum,
	// percentile, rate_of_change, trend.
	Method string `yaml:"method"`

	WindowSize    int `yaml:"windowSize"`
	WarmupSamples int `yaml:"warmupSamples"`

	Threshold        float64 `yaml:"threshold"`
	WarningThreshold float64 `yaml:"warningThreshold"`

	// Mode selects stddev or percentage residuals for the moving_average
	// and ema methods, absolute or percentage rates for rate_of_change,
	// linear or exponential for trend.
	Mode string `yaml:"mode"`

	// Alpha is the EMA smoothing factor.
	Alpha float64 `yaml:"alpha"`

	// Drift and Target configure the cusum method. TargetSet must be
	// true for Target to take effect.
	Drift     float64 `yaml:"drift"`
	Target    float64 `yaml:"target"`
	TargetSet bool    `yaml:"targetSet"`

	// LowerPercentile and UpperPercentile bound the percentile method.
	LowerPercentile float64 `yaml:"lowerPercentile"`
	UpperPercentile float64 `yaml:"upperPercentile"`

	// TimeWindow bounds the rate_of_change history in seconds.
	TimeWindow float64 `yaml:"timeWindow"`
}

// SpectralOptions configures the FFT analyzer.
type SpectralOptions struct {
	SamplingRate   float64 `yaml:"samplingRate"`
	FFTSize        int     `yaml:"fftSize"`
	WindowFunction string  `yaml:"windowFunction"`
	PeakThreshold  float64 `yaml:"peakThreshold"`
	MaxPeaks       int     `yaml:"maxPeaks"`
	OverlapPercent float64 `yaml:"overlapPercent"`
}

// EnvelopeOptions configures bearing-fault envelope analysis.
type EnvelopeOptions struct {
	SamplingRate     float64 `yaml:"samplingRate"`
	WindowSize       int     `yaml:"windowSize"`
	EnvelopeBandLow  float64 `yaml:"envelopeBandLow"`
	EnvelopeBandHigh float64 `yaml:"envelopeBandHigh"`
	BearingBPFO      float64 `yaml:"bearingBPFO"`
	BearingBPFI      float64 `yaml:"bearingBPFI"`
	BearingBSF       float64 `yaml:"bearingBSF"`
	BearingFTF       float64 `yaml:"bearingFTF"`
	ShaftSpeed       float64 `yaml:"shaftSpeed"`
	PeakThreshold    float64 `yaml:"peakThreshold"`
}

// CepstrumOptions configures gear-mesh cepstrum analysis.
type CepstrumOptions struct {
	SamplingRate       float64 `yaml:"samplingRate"`
	WindowSize         int     `yaml:"windowSize"`
	QuefrencyRangeLow  float64 `yaml:"quefrencyRangeLow"`
	QuefrencyRangeHigh float64 `yaml:"quefrencyRangeHigh"`
	CepstrumThreshold  float64 `yaml:"cepstrumThreshold"`
	ShaftSpeed         float64 `yaml:"shaftSpeed"`
	GearToothCount     []int   `yaml:"gearToothCount"`
}

// ISOOptions configures ISO 10816-3 severity classification.
type ISOOptions struct {
	ISO10816Class string  `yaml:"iso10816Class"`
	VibInputUnit  string  `yaml:"vibInputUnit"`
	FundamentalHz float64 `yaml:"fundamentalHz"`
}

// CollectorOptions configures the training-data collector.
type CollectorOptions struct {
	DatasetName          string `yaml:"datasetName"`
	Mode                 string `yaml:"mode"`
	Capacity             int    `yaml:"capacity"`
	AutoSave             bool   `yaml:"autoSave"`
	ExportFormat         string `yaml:"exportFormat"`
	IncludeTimestamp     bool   `yaml:"includeTimestamp"`
	CompressionEnabled   bool   `yaml:"compressionEnabled"`
	CompressionThreshold int    `yaml:"compressionThreshold"`
	SplitRatio           struct {
		Train float64 `yaml:"train"`
		Val   float64 `yaml:"val"`
		Test  float64 `yaml:"test"`
	} `yaml:"splitRatio"`
	ShuffleOnExport bool     `yaml:"shuffleOnExport"`
	IncludeMetadata bool     `yaml:"includeMetadata"`
	FeatureFields   []string `yaml:"featureFields"`
	Strict          bool     `yaml:"strict"`
	LabelMode       string   `yaml:"labelMode"`
	DefaultLabel    string   `yaml:"defaultLabel"`
	LabelPath       string   `yaml:"labelPath"`
	RULStartValue   float64  `yaml:"rulStartValue"`
	RULUnit         string   `yaml:"rulUnit"`
	WindowSize      int      `yaml:"windowSize"`
	OverlapPercent  float64  `yaml:"overlapPercent"`
	FlushOnClose    bool     `yaml:"flushOnClose"`
}

// DefaultConfig returns a configuration with every enum at its default.
func DefaultConfig() Config {
	var c Config
	c.Detector.Method = "zscore"
	c.Detector.WindowSize = 20
	c.Detector.Threshold = 3.0
	c.Spectral.WindowFunction = "hann"
	c.ISO.ISO10816Class = "class2"
	c.ISO.VibInputUnit = "mm_s"
	c.Collector.Mode = "batch"
	c.Collector.ExportFormat = "csv"
	c.Collector.LabelMode = "unlabeled"
	return c
}

// ParseConfig unmarshals and validates a YAML document.
func ParseConfig(data []byte) (Config, error) {
	c := DefaultConfig()
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Config{}, fmt.Errorf("invalid YAML: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// LoadConfig reads and parses a YAML configuration file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return ParseConfig(data)
}

// Validate checks every enum-valued option. Unknown enum values fail
// here rather than being silently defaulted downstream.
func (c *Config) Validate() error {
	if c.Detector.Method != "" {
		if _, err := parseDetectorMethod(c.Detector.Method); err != nil {
			return err
		}
		switch c.Detector.Method {
		case "moving_average", "ema":
			if _, err := parseResidualMode(c.Detector.Mode); err != nil {
				return err
			}
		case "rate_of_change":
			if _, err := parseRateMode(c.Detector.Mode); err != nil {
				return err
			}
		case "trend":
			if _, err := parseTrendMethod(c.Detector.Mode); err != nil {
				return err
			}
		}
	}
	if c.Spectral.WindowFunction != "" {
		if _, err := ParseWindowFunc(c.Spectral.WindowFunction); err != nil {
			return err
		}
	}
	if c.ISO.ISO10816Class != "" {
		if _, err := ParseMachineClass(c.ISO.ISO10816Class); err != nil {
			return err
		}
	}
	if c.ISO.VibInputUnit != "" {
		if _, err := ParseVibrationUnit(c.ISO.VibInputUnit); err != nil {
			return err
		}
	}
	if c.Collector.Mode != "" {
		if _, err := ParseCollectMode(c.Collector.Mode); err != nil {
			return err
		}
	}
	if c.Collector.ExportFormat != "" {
		if _, err := ParseExportFormat(c.Collector.ExportFormat); err != nil {
			return err
		}
	}
	if c.Collector.LabelMode != "" {
		if _, err := ParseLabelMode(c.Collector.LabelMode); err != nil {
			return err
		}
	}
	if c.Collector.RULUnit != "" {
		if _, err := ParseRULUnit(c.Collector.RULUnit); err != nil {
			return err
		}
	}
	return nil
}

func parseDetectorMethod(name string) (string, error) {
	switch name {
	case "zscore", "moving_average", "ema", "cusum", "percentile",
		"rate_of_change", "trend":
		return name, nil
	default:
		return "", newConfigError("detector.method", "unknown method "+name)
	}
}

func parseResidualMode(name string) (ResidualMode, error) {
	switch name {
	case "", "stddev":
		return ResidualModeStdDev, nil
	case "percentage":
		return ResidualModePercentage, nil
	default:
		return 0, newConfigError("detector.mode", "unknown residual mode "+name)
	}
}

func parseRateMode(name string) (RateMode, error) {
	switch name {
	case "", "absolute":
		return RateModeAbsolute, nil
	case "percentage":
		return RateModePercentage, nil
	default:
		return 0, newConfigError("detector.mode", "unknown rate mode "+name)
	}
}

func parseTrendMethod(name string) (TrendMethod, error) {
	switch name {
	case "", "linear":
		return TrendMethodLinear, nil
	case "exponential":
		return TrendMethodExponential, nil
	default:
		return 0, newConfigError("detector.mode", "unknown trend method "+name)
	}
}

// NewDetector builds the configured univariate detector. The Config
// must have passed Validate.
func (c *Config) NewDetector() (Detector, error) {
	d := c.Detector
	switch d.Method {
	case "", "zscore":
		cfg := DefaultZScoreConfig()
		if d.WindowSize > 0 {
			cfg.WindowSize = d.WindowSize
		}
		if d.WarmupSamples > 0 {
			cfg.WarmupSamples = d.WarmupSamples
		}
		if d.Threshold > 0 {
			cfg.Threshold = d.Threshold
		}
		cfg.WarningThreshold = d.WarningThreshold
		return NewZScoreDetector(cfg), nil

	case "moving_average":
		mode, err := parseResidualMode(d.Mode)
		if err != nil {
			return nil, err
		}
		cfg := DefaultMovingAverageConfig()
		if d.WindowSize > 0 {
			cfg.WindowSize = d.WindowSize
		}
		if d.WarmupSamples > 0 {
			cfg.WarmupSamples = d.WarmupSamples
		}
		if d.Threshold > 0 {
			cfg.Threshold = d.Threshold
		}
		cfg.Mode = mode
		cfg.WarningThreshold = d.WarningThreshold
		return NewMovingAverageDetector(cfg), nil

	case "ema":
		mode, err := parseResidualMode(d.Mode)
		if err != nil {
			return nil, err
		}
		cfg := DefaultEMAConfig()
		if d.WindowSize > 0 {
			cfg.WindowSize = d.WindowSize
		}
		if d.WarmupSamples > 0 {
			cfg.WarmupSamples = d.WarmupSamples
		}
		if d.Alpha > 0 {
			cfg.Alpha = d.Alpha
		}
		if d.Threshold > 0 {
			cfg.Threshold = d.Threshold
		}
		cfg.Mode = mode
		cfg.WarningThreshold = d.WarningThreshold
		return NewEMADetector(cfg), nil

	case "cusum":
		cfg := DefaultCUSUMConfig()
		if d.WindowSize > 0 {
			cfg.WindowSize = d.WindowSize
		}
		if d.Drift > 0 {
			cfg.Drift = d.Drift
		}
		if d.Threshold > 0 {
			cfg.Threshold = d.Threshold
		}
		cfg.Target = d.Target
		cfg.TargetSet = d.TargetSet
		cfg.WarningThreshold = d.WarningThreshold
		return NewCUSUMDetector(cfg), nil

	case "percentile":
		cfg := DefaultPercentileConfig()
		if d.WindowSize > 0 {
			cfg.WindowSize = d.WindowSize
		}
		if d.WarmupSamples > 0 {
			cfg.WarmupSamples = d.WarmupSamples
		}
		if d.LowerPercentile > 0 {
			cfg.LowerPercentile = d.LowerPercentile
		}
		if d.UpperPercentile > 0 {
			cfg.UpperPercentile = d.UpperPercentile
		}
		return NewPercentileDetector(cfg)

	case "rate_of_change":
		mode, err := parseRateMode(d.Mode)
		if err != nil {
			return nil, err
		}
		cfg := DefaultRateOfChangeConfig()
		cfg.Mode = mode
		cfg.Threshold = d.Threshold
		cfg.WarningThreshold = d.WarningThreshold
		if d.TimeWindow > 0 {
			cfg.TimeWindow = d.TimeWindow
		}
		return NewRateOfChangeDetector(cfg), nil

	case "trend":
		method, err := parseTrendMethod(d.Mode)
		if err != nil {
			return nil, err
		}
		cfg := DefaultTrendConfig()
		if d.WindowSize > 0 {
			cfg.WindowSize = d.WindowSize
		}
		if d.WarmupSamples > 0 {
			cfg.WarmupSamples = d.WarmupSamples
		}
		cfg.Method = method
		cfg.WarningThreshold = d.WarningThreshold
		return NewTrendDetector(cfg), nil

	default:
		return nil, newConfigError("detector.method", "unknown method "+d.Method)
	}
}

// SpectralConfig translates the spectral section.
func (c *Config) SpectralConfig() (SpectralConfig, error) {
	win, err := ParseWindowFunc(orDefault(c.Spectral.WindowFunction, "hann"))
	if err != nil {
		return SpectralConfig{}, err
	}
	cfg := DefaultSpectralConfig()
	cfg.Window = win
	if c.Spectral.SamplingRate > 0 {
		cfg.SampleRate = c.Spectral.SamplingRate
	}
	if c.Spectral.FFTSize > 0 {
		cfg.FFTSize = c.Spectral.FFTSize
	}
	if c.Spectral.PeakThreshold > 0 {
		cfg.PeakThreshold = c.Spectral.PeakThreshold
	}
	if c.Spectral.MaxPeaks > 0 {
		cfg.MaxPeaks = c.Spectral.MaxPeaks
	}
	if c.Spectral.OverlapPercent > 0 {
		cfg.Overlap = c.Spectral.OverlapPercent / 100
	}
	return cfg, nil
}

// EnvelopeConfig translates the envelope section.
func (c *Config) EnvelopeConfig() EnvelopeConfig {
	cfg := DefaultEnvelopeConfig()
	e := c.Envelope
	if e.SamplingRate > 0 {
		cfg.SampleRate = e.SamplingRate
	}
	if e.WindowSize > 0 {
		cfg.WindowSize = e.WindowSize
	}
	if e.EnvelopeBandLow > 0 {
		cfg.BandLow = e.EnvelopeBandLow
	}
	if e.EnvelopeBandHigh > 0 {
		cfg.BandHigh = e.EnvelopeBandHigh
	}
	cfg.BPFO = e.BearingBPFO
	cfg.BPFI = e.BearingBPFI
	cfg.BSF = e.BearingBSF
	cfg.FTF = e.BearingFTF
	if e.ShaftSpeed > 0 {
		cfg.ShaftRPM = e.ShaftSpeed
	}
	if e.PeakThreshold > 0 {
		cfg.PeakThreshold = e.PeakThreshold
	}
	return cfg
}

// CepstrumConfig translates the cepstrum section.
func (c *Config) CepstrumConfig() CepstrumConfig {
	cfg := DefaultCepstrumConfig()
	q := c.Cepstrum
	if q.SamplingRate > 0 {
		cfg.SampleRate = q.SamplingRate
	}
	if q.WindowSize > 0 {
		cfg.WindowSize = q.WindowSize
	}
	cfg.QuefrencyLow = q.QuefrencyRangeLow
	cfg.QuefrencyHigh = q.QuefrencyRangeHigh
	if q.CepstrumThreshold > 0 {
		cfg.Threshold = q.CepstrumThreshold
	}
	if q.ShaftSpeed > 0 {
		cfg.ShaftRPM = q.ShaftSpeed
	}
	cfg.GearTeeth = q.GearToothCount
	return cfg
}

// ISOConfig translates the iso section.
func (c *Config) ISOConfig() (ISOConfig, error) {
	class, err := ParseMachineClass(orDefault(c.ISO.ISO10816Class, "class2"))
	if err != nil {
		return ISOConfig{}, err
	}
	unit, err := ParseVibrationUnit(orDefault(c.ISO.VibInputUnit, "mm_s"))
	if err != nil {
		return ISOConfig{}, err
	}
	return ISOConfig{
		Class:         class,
		Unit:          unit,
		FundamentalHz: c.ISO.FundamentalHz,
	}, nil
}

// CollectorConfig translates the collector section.
func (c *Config) CollectorConfig() (CollectorConfig, error) {
	o := c.Collector
	mode, err := ParseCollectMode(orDefault(o.Mode, "batch"))
	if err != nil {
		return CollectorConfig{}, err
	}
	format, err := ParseExportFormat(orDefault(o.ExportFormat, "csv"))
	if err != nil {
		return CollectorConfig{}, err
	}
	labelMode, err := ParseLabelMode(orDefault(o.LabelMode, "unlabeled"))
	if err != nil {
		return CollectorConfig{}, err
	}
	cfg := DefaultCollectorConfig()
	cfg.Mode = mode
	cfg.Format = format
	cfg.LabelMode = labelMode
	if o.DatasetName != "" {
		cfg.DatasetName = o.DatasetName
	}
	if o.Capacity > 0 {
		cfg.Capacity = o.Capacity
	}
	cfg.AutoExport = o.AutoSave
	cfg.IncludeTimestamp = o.IncludeTimestamp
	cfg.CompressionEnabled = o.CompressionEnabled
	if o.CompressionThreshold > 0 {
		cfg.CompressionThreshold = o.CompressionThreshold
	}
	if o.SplitRatio.Train > 0 || o.SplitRatio.Val > 0 || o.SplitRatio.Test > 0 {
		cfg.SplitRatio = SplitRatio{
			Train: o.SplitRatio.Train,
			Val:   o.SplitRatio.Val,
			Test:  o.SplitRatio.Test,
		}
	}
	cfg.ShuffleOnExport = o.ShuffleOnExport
	cfg.IncludeMetadata = o.IncludeMetadata
	cfg.FeatureFields = o.FeatureFields
	cfg.Strict = o.Strict
	cfg.DefaultLabel = o.DefaultLabel
	cfg.LabelPath = o.LabelPath
	cfg.RULStart = o.RULStartValue
	if o.RULUnit != "" {
		unit, err := ParseRULUnit(o.RULUnit)
		if err != nil {
			return CollectorConfig{}, err
		}
		cfg.RULUnit = unit
	}
	if o.WindowSize > 0 {
		cfg.WindowSize = o.WindowSize
	}
	if o.OverlapPercent > 0 {
		cfg.OverlapPercent = o.OverlapPercent
	}
	cfg.FlushOnClose = o.FlushOnClose
	return cfg, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
