package vigil

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
)

// CollectMode selects how accepted samples are buffered.
type CollectMode int

const (
	// CollectBatch accumulates up to capacity, then exports.
	CollectBatch CollectMode = iota
	// CollectStreaming appends each sample to a record store and keeps
	// a bounded in-memory ring for statistics.
	CollectStreaming
	// CollectTimeSeries emits overlapping fixed-size windows.
	CollectTimeSeries
)

// String returns the mode's config name.
func (m CollectMode) String() string {
	switch m {
	case CollectStreaming:
		return "streaming"
	case CollectTimeSeries:
		return "timeseries"
	default:
		return "batch"
	}
}

// ParseCollectMode maps a config string to a mode.
func ParseCollectMode(name string) (CollectMode, error) {
	switch name {
	case "", "batch":
		return CollectBatch, nil
	case "streaming":
		return CollectStreaming, nil
	case "timeseries", "time-series":
		return CollectTimeSeries, nil
	default:
		return 0, newConfigError("mode", "unknown collect mode "+name)
	}
}

// LabelMode selects how samples are labeled.
type LabelMode int

const (
	// LabelManual stamps the configured default label unless the
	// message carries one.
	LabelManual LabelMode = iota
	// LabelFromMessage resolves a dotted path in the message.
	LabelFromMessage
	// LabelRUL stamps a remaining-useful-life countdown.
	LabelRUL
	// LabelNone leaves samples unlabeled.
	LabelNone
)

// String returns the mode's config name.
func (m LabelMode) String() string {
	switch m {
	case LabelFromMessage:
		return "fromMessage"
	case LabelRUL:
		return "rul"
	case LabelNone:
		return "unlabeled"
	default:
		return "manual"
	}
}

// ParseLabelMode maps a config string to a label mode.
func ParseLabelMode(name string) (LabelMode, error) {
	switch name {
	case "", "manual":
		return LabelManual, nil
	case "fromMessage", "from_message":
		return LabelFromMessage, nil
	case "rul":
		return LabelRUL, nil
	case "unlabeled", "none":
		return LabelNone, nil
	default:
		return 0, newConfigError("labelMode", "unknown label mode "+name)
	}
}

// RULUnit is the unit of the remaining-useful-life countdown.
type RULUnit int

const (
	// RULSamples decrements by 1 per accepted sample.
	RULSamples RULUnit = iota
	// RULSeconds decrements by the inter-sample time in seconds.
	RULSeconds
	// RULHours decrements by the inter-sample time in hours.
	RULHours
	// RULDays decrements by the inter-sample time in days.
	RULDays
)

// String returns the unit's config name.
func (u RULUnit) String() string {
	switch u {
	case RULSeconds:
		return "seconds"
	case RULHours:
		return "hours"
	case RULDays:
		return "days"
	default:
		return "samples"
	}
}

// ParseRULUnit maps a config string to a unit.
func ParseRULUnit(name string) (RULUnit, error) {
	switch name {
	case "", "samples":
		return RULSamples, nil
	case "seconds":
		return RULSeconds, nil
	case "hours":
		return RULHours, nil
	case "days":
		return RULDays, nil
	default:
		return 0, newConfigError("rulUnit", "unknown RUL unit "+name)
	}
}

// millisPerUnit returns the countdown decrement per elapsed millisecond.
func (u RULUnit) perMillisecond() float64 {
	switch u {
	case RULSeconds:
		return 1.0 / 1000
	case RULHours:
		return 1.0 / (1000 * 3600)
	case RULDays:
		return 1.0 / (1000 * 86400)
	default:
		return 0
	}
}

// TrainingSample is one accepted observation.
type TrainingSample struct {
	Timestamp int64     `json:"timestamp"`
	Features  []float64 `json:"features"`
	Label     string    `json:"label,omitempty"`
	Severity  string    `json:"severity,omitempty"`
}

// TrainingWindow is one overlapping window in time-series mode. The
// label is the last sample's label in the window.
type TrainingWindow struct {
	Start   int64            `json:"start"`
	End     int64            `json:"end"`
	Label   string           `json:"label,omitempty"`
	Samples []TrainingSample `json:"samples"`
}

// CollectorConfig configures the training-data collector.
type CollectorConfig struct {
	// DatasetName prefixes export keys and appears in metadata.
	DatasetName string

	// Mode selects buffering behavior.
	Mode CollectMode

	// Capacity is the buffer size that triggers auto-export in batch
	// mode, the stats ring bound in streaming mode, and the pending
	// window bound in timeseries mode.
	Capacity int

	// AutoExport exports when the batch buffer fills. Without it the
	// oldest samples are dropped instead.
	AutoExport bool

	// Format selects the export encoding.
	Format ExportFormat

	// IncludeTimestamp adds the timestamp column to CSV exports and the
	// timestamp field to JSONL.
	IncludeTimestamp bool

	// CompressionEnabled gzips exports that reach
	// CompressionThreshold samples.
	CompressionEnabled   bool
	CompressionThreshold int

	// SplitRatio partitions exports into train/val/test.
	SplitRatio SplitRatio

	// ShuffleOnExport Fisher-Yates shuffles before splitting.
	ShuffleOnExport bool

	// ShuffleSeed fixes the shuffle for reproducible datasets. Zero
	// seeds from the clock.
	ShuffleSeed int64

	// IncludeMetadata uploads the metadata document next to the data.
	IncludeMetadata bool

	// FeatureFields names the message fields to extract. Empty means
	// the features array/object or whole-payload rules apply.
	FeatureFields []string

	// Strict rejects samples with non-finite values or feature-count
	// mismatches. Lenient mode records the issue and keeps the sample.
	Strict bool

	// LabelMode, DefaultLabel, and LabelPath control labeling.
	LabelMode    LabelMode
	DefaultLabel string
	LabelPath    string

	// RULStart and RULUnit configure the countdown label.
	RULStart float64
	RULUnit  RULUnit

	// WindowSize and OverlapPercent shape time-series windows.
	WindowSize     int
	OverlapPercent float64

	// FlushOnClose exports the remaining buffer during Close.
	FlushOnClose bool
}

// DefaultCollectorConfig returns sensible defaults.
func DefaultCollectorConfig() CollectorConfig {
	return CollectorConfig{
		DatasetName:          "dataset",
		Mode:                 CollectBatch,
		Capacity:             1000,
		AutoExport:           true,
		Format:               FormatCSV,
		IncludeTimestamp:     true,
		CompressionThreshold: 10000,
		SplitRatio:           SplitRatio{Train: 1},
		IncludeMetadata:      true,
		WindowSize:           50,
		OverlapPercent:       50,
	}
}

// CollectorStats is a point-in-time status snapshot.
type CollectorStats struct {
	DatasetName string                  `json:"dataset_name"`
	Mode        string                  `json:"mode"`
	Buffered    int                     `json:"buffered"`
	Capacity    int                     `json:"capacity"`
	Received    uint64                  `json:"received"`
	Accepted    uint64                  `json:"accepted"`
	Rejected    uint64                  `json:"rejected"`
	Issues      uint64                  `json:"issues"`
	Exports     uint64                  `json:"exports"`
	Windows     uint64                  `json:"windows"`
	Paused      bool                    `json:"paused"`
	RULValue    float64                 `json:"rul_value"`
	FeatureDim  int                     `json:"feature_dimension"`
	Features    map[string]FeatureStats `json:"features,omitempty"`
	Labels      map[string]int          `json:"labels,omitempty"`
}

// FeatureStats is the exported per-feature statistic bundle.
type FeatureStats struct {
	Count int64   `json:"count"`
	Mean  float64 `json:"mean"`
	Std   float64 `json:"std"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
}

// Collector accumulates labeled training samples from verdict envelopes
// and exports dataset bundles to a blob store.
type Collector struct {
	mu     sync.Mutex
	config CollectorConfig
	blob   BlobStore
	store  RecordStore
	logger *slog.Logger

	names   []string
	buf     []TrainingSample
	stats   []Aggregates
	labels  map[string]int
	windows []TrainingWindow

	received uint64
	accepted uint64
	rejected uint64
	issues   uint64
	exports  uint64
	windowed uint64

	paused bool
	rul    float64
	lastTS int64
	closed bool
}

// NewCollector creates a collector. The blob store receives exports; it
// is required when AutoExport or FlushOnClose is set. The record store
// is required for streaming mode.
func NewCollector(config CollectorConfig, blob BlobStore, store RecordStore) (*Collector, error) {
	if config.Capacity <= 0 {
		config.Capacity = 1000
	}
	if config.CompressionThreshold <= 0 {
		config.CompressionThreshold = 10000
	}
	if config.WindowSize <= 1 {
		config.WindowSize = 50
	}
	if config.OverlapPercent < 0 || config.OverlapPercent >= 100 {
		config.OverlapPercent = 50
	}
	if config.DatasetName == "" {
		config.DatasetName = "dataset"
	}
	if err := config.SplitRatio.Validate(); err != nil {
		return nil, err
	}
	if config.Mode == CollectStreaming && store == nil {
		return nil, newConfigError("mode", "streaming mode requires a record store")
	}
	if (config.AutoExport || config.FlushOnClose) && blob == nil {
		return nil, newConfigError("autoSave", "export requires a blob store")
	}
	return &Collector{
		config: config,
		blob:   blob,
		store:  store,
		logger: slog.Default().With("component", "collector", "dataset", config.DatasetName),
		labels: make(map[string]int),
		rul:    config.RULStart,
	}, nil
}

// Ingest extracts, validates, labels, and buffers one message. The
// returned sample is the accepted record, nil when the message was
// rejected or the collector is paused.
func (c *Collector) Ingest(ctx context.Context, msg Envelope) (*TrainingSample, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}
	c.received++
	if c.paused {
		return nil, nil
	}

	features, issues, err := c.extract(msg)
	if err != nil {
		c.rejected++
		return nil, err
	}
	if len(issues) > 0 {
		c.issues += uint64(len(issues))
		if c.config.Strict {
			c.rejected++
			return nil, newValidationError("collector", strings.Join(issues, "; "), 0)
		}
	}

	ts := extractTimestamp(msg)
	sample := TrainingSample{
		Timestamp: ts,
		Features:  features,
		Label:     c.label(msg, ts),
		Severity:  extractSeverity(msg),
	}
	c.accepted++
	c.observe(sample)

	if err := c.buffer(ctx, sample); err != nil {
		return &sample, err
	}
	return &sample, nil
}

// extract pulls the feature vector out of the message per the configured
// field list, a nested features array/object, or the whole payload.
func (c *Collector) extract(msg Envelope) ([]float64, []string, error) {
	var values []float64
	var names []string
	var issues []string

	switch {
	case len(c.config.FeatureFields) > 0:
		for _, field := range c.config.FeatureFields {
			v, ok := coerceFloat(resolvePath(msg, field))
			if !ok {
				issues = append(issues, "non-numeric field "+field)
				v = 0
			}
			values = append(values, v)
			names = append(names, field)
		}
	case msg["features"] != nil:
		values, names, issues = coerceVector(msg["features"], "features")
	case msg["payload"] != nil:
		values, names, issues = coerceVector(msg["payload"], "payload")
	default:
		return nil, nil, newValidationError("collector", "message carries no features", 0)
	}

	if len(values) == 0 {
		return nil, nil, newValidationError("collector", "no numeric features extracted", 0)
	}

	for i, v := range values {
		if !isFinite(v) {
			issues = append(issues, fmt.Sprintf("non-finite feature %d", i))
			values[i] = 0
		}
	}

	// The first accepted sample fixes the ordering and dimension.
	if c.names == nil {
		c.names = names
		c.stats = make([]Aggregates, len(names))
		for i := range c.stats {
			c.stats[i] = NewAggregates()
		}
	} else if len(values) != len(c.names) {
		if c.config.Strict {
			return nil, nil, newValidationError("collector",
				fmt.Sprintf("feature count changed: got %d, expected %d", len(values), len(c.names)), 0)
		}
		issues = append(issues, "feature count mismatch")
		values = conformLength(values, len(c.names))
	}
	return values, issues, nil
}

// label resolves the sample label per the configured mode.
func (c *Collector) label(msg Envelope, ts int64) string {
	switch c.config.LabelMode {
	case LabelNone:
		return ""
	case LabelFromMessage:
		path := c.config.LabelPath
		if path == "" {
			path = "label"
		}
		for _, p := range []string{path, "label", "class", "y", "target"} {
			if v := resolvePath(msg, p); v != nil {
				return coerceString(v)
			}
		}
		return c.config.DefaultLabel
	case LabelRUL:
		c.tickRUL(ts)
		return strconv.FormatFloat(c.rul, 'g', -1, 64)
	default:
		if v := msg["label"]; v != nil {
			return coerceString(v)
		}
		return c.config.DefaultLabel
	}
}

// tickRUL advances the countdown for one accepted sample.
func (c *Collector) tickRUL(ts int64) {
	if c.config.RULUnit == RULSamples {
		c.rul--
	} else if c.lastTS > 0 && ts > c.lastTS {
		c.rul -= float64(ts-c.lastTS) * c.config.RULUnit.perMillisecond()
	}
	if c.rul < 0 {
		c.rul = 0
	}
	c.lastTS = ts
}

// observe feeds the running statistics and label distribution.
func (c *Collector) observe(s TrainingSample) {
	for i, v := range s.Features {
		if i < len(c.stats) {
			c.stats[i].Observe(v)
		}
	}
	if s.Label != "" {
		c.labels[s.Label]++
	}
}

// buffer routes the sample per the collect mode. Caller holds the lock.
func (c *Collector) buffer(ctx context.Context, sample TrainingSample) error {
	switch c.config.Mode {
	case CollectStreaming:
		// Bounded ring for stats; the durable copy goes to the store.
		c.buf = append(c.buf, sample)
		if len(c.buf) > c.config.Capacity {
			c.buf = c.buf[1:]
		}
		if err := c.store.Append(ctx, c.config.DatasetName, sample); err != nil {
			return newExportError("append", c.config.DatasetName, err)
		}
		return nil

	case CollectTimeSeries:
		c.buf = append(c.buf, sample)
		if len(c.buf) >= c.config.WindowSize {
			c.emitWindow()
		}
		return nil

	default: // batch
		c.buf = append(c.buf, sample)
		if len(c.buf) < c.config.Capacity {
			return nil
		}
		if c.config.AutoExport {
			return c.exportLocked(ctx)
		}
		c.buf = c.buf[1:]
		return nil
	}
}

// emitWindow closes the current window and advances by the stride.
func (c *Collector) emitWindow() {
	w := c.config.WindowSize
	window := TrainingWindow{
		Start:   c.buf[0].Timestamp,
		End:     c.buf[w-1].Timestamp,
		Label:   c.buf[w-1].Label,
		Samples: append([]TrainingSample(nil), c.buf[:w]...),
	}
	c.windows = append(c.windows, window)
	// Pending windows are bounded like the hub's subscription buffers:
	// when the host stops draining, the oldest window is dropped.
	if len(c.windows) > c.config.Capacity {
		c.windows = c.windows[1:]
	}
	c.windowed++

	stride := w - int(float64(w)*c.config.OverlapPercent/100)
	if stride < 1 {
		stride = 1
	}
	c.buf = append(c.buf[:0], c.buf[stride:]...)
}

// Export writes the buffered dataset to the blob store on demand. The
// buffer is cleared only after every upload succeeds, so a failed export
// can be retried with nothing lost.
func (c *Collector) Export(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	return c.exportLocked(ctx)
}

// Windows drains and returns the completed time-series windows.
func (c *Collector) Windows() []TrainingWindow {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.windows
	c.windows = nil
	return out
}

// Clear discards buffered samples and running statistics.
func (c *Collector) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearLocked()
}

func (c *Collector) clearLocked() {
	c.buf = nil
	c.windows = nil
	c.names = nil
	c.stats = nil
	c.labels = make(map[string]int)
	c.rul = c.config.RULStart
	c.lastTS = 0
}

// Pause stops accepting samples; messages are counted but dropped.
func (c *Collector) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = true
}

// Resume restarts acceptance.
func (c *Collector) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = false
}

// ResetRUL restarts the countdown; a negative value restores the
// configured start.
func (c *Collector) ResetRUL(value float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if value < 0 {
		value = c.config.RULStart
	}
	c.rul = value
	c.lastTS = 0
}

// Stats returns a snapshot of counters and per-feature statistics.
func (c *Collector) Stats() CollectorStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := CollectorStats{
		DatasetName: c.config.DatasetName,
		Mode:        c.config.Mode.String(),
		Buffered:    len(c.buf),
		Capacity:    c.config.Capacity,
		Received:    c.received,
		Accepted:    c.accepted,
		Rejected:    c.rejected,
		Issues:      c.issues,
		Exports:     c.exports,
		Windows:     c.windowed,
		Paused:      c.paused,
		RULValue:    c.rul,
		FeatureDim:  len(c.names),
		Features:    make(map[string]FeatureStats, len(c.names)),
		Labels:      make(map[string]int, len(c.labels)),
	}
	for i, name := range c.names {
		a := c.stats[i]
		st.Features[name] = FeatureStats{
			Count: a.Count,
			Mean:  a.Mean(),
			Std:   a.Std(),
			Min:   a.Min,
			Max:   a.Max,
		}
	}
	for k, v := range c.labels {
		st.Labels[k] = v
	}
	return st
}

// Close flushes per FlushOnClose and rejects further ingestion.
func (c *Collector) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true

	var err error
	if c.config.FlushOnClose && len(c.buf) > 0 {
		err = c.exportLocked(ctx)
	}
	if c.store != nil {
		if cerr := c.store.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// HandleControl dispatches a control message. Recognized actions:
// export (or save), clear, stats, pause, resume, resetRul; a true
// "reset" field clears everything. The returned envelope answers stats
// requests, nil otherwise.
func (c *Collector) HandleControl(ctx context.Context, msg Envelope) (Envelope, error) {
	if reset, _ := msg["reset"].(bool); reset {
		c.Clear()
		return nil, nil
	}

	action, _ := msg["action"].(string)
	switch action {
	case "export", "save":
		return nil, c.Export(ctx)
	case "clear":
		c.Clear()
		return nil, nil
	case "stats":
		st := c.Stats()
		return Envelope{"stats": st}, nil
	case "pause":
		c.Pause()
		return nil, nil
	case "resume":
		c.Resume()
		return nil, nil
	case "resetRul":
		value := -1.0
		if v, ok := coerceFloat(msg["rulValue"]); ok {
			value = v
		}
		c.ResetRUL(value)
		return nil, nil
	case "":
		return nil, newValidationError("collector", "control message carries no action", 0)
	default:
		return nil, newValidationError("collector", "unknown action "+action, 0)
	}
}

// conformLength pads with zeros or truncates to n.
func conformLength(values []float64, n int) []float64 {
	if len(values) >= n {
		return values[:n]
	}
	out := make([]float64, n)
	copy(out, values)
	return out
}
