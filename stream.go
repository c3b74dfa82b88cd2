package vigil

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Sink receives dispatched verdicts. Implementations must not block:
// the engine calls sinks synchronously on the ingest path.
type Sink interface {
	Emit(stream string, v *Verdict)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(stream string, v *Verdict)

// Emit calls f.
func (f SinkFunc) Emit(stream string, v *Verdict) { f(stream, v) }

// DetectorFactory builds the detector for a stream seen for the first
// time.
type DetectorFactory func(stream string) (Detector, error)

// EngineConfig configures a stream engine.
type EngineConfig struct {
	// Factory builds detectors for new streams. Required unless every
	// stream is registered explicitly via Register.
	Factory DetectorFactory

	// Normal receives verdicts with Severity == SeverityNormal. Optional.
	Normal Sink

	// Anomaly receives warning and critical verdicts. Optional.
	Anomaly Sink

	// States, when set, restores detector state on stream creation and
	// schedules coalesced saves after each verdict. Only detectors that
	// implement StateProvider with a non-empty state key participate.
	States *StateManager
}

// EngineStats aggregates counters across all streams.
type EngineStats struct {
	Streams   int   `json:"streams"`
	Samples   int64 `json:"samples"`
	Verdicts  int64 `json:"verdicts"`
	Anomalies int64 `json:"anomalies"`
	Rejected  int64 `json:"rejected"`
}

// Engine routes samples to per-stream detectors and dispatches each
// verdict to exactly one sink. Processing is synchronous: a sample is
// handled to completion, verdict dispatched, before Process returns.
//
// The registry is mutex-guarded so multiple producers may feed
// different streams; samples within one stream must come from a single
// writer to preserve ordering.
type Engine struct {
	mu        sync.Mutex
	config    EngineConfig
	logger    *slog.Logger
	detectors map[string]Detector
	stats     EngineStats
	closed    bool
}

// NewEngine validates the configuration and creates an engine.
func NewEngine(config EngineConfig) (*Engine, error) {
	return &Engine{
		config:    config,
		logger:    slog.Default().With("component", "engine"),
		detectors: make(map[string]Detector),
	}, nil
}

// Register installs a detector for a stream, replacing any existing
// one.
func (e *Engine) Register(ctx context.Context, stream string, d Detector) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	e.detectors[stream] = d
	return e.restoreLocked(ctx, stream, d)
}

func (e *Engine) restoreLocked(ctx context.Context, stream string, d Detector) error {
	if e.config.States == nil {
		return nil
	}
	p, ok := d.(StateProvider)
	if !ok || p.StateKey() == "" {
		return nil
	}
	if err := e.config.States.Register(ctx, p); err != nil {
		e.logger.Warn("state restore failed", "stream", stream, "error", err)
		return err
	}
	return nil
}

func (e *Engine) detectorFor(ctx context.Context, stream string) (Detector, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ErrClosed
	}
	if d, ok := e.detectors[stream]; ok {
		return d, nil
	}
	if e.config.Factory == nil {
		return nil, fmt.Errorf("%w: no detector registered for stream %q", ErrInvalidConfig, stream)
	}
	d, err := e.config.Factory(stream)
	if err != nil {
		return nil, err
	}
	e.detectors[stream] = d
	e.restoreLocked(ctx, stream, d)
	return d, nil
}

// Process ingests one sample for a stream. A warmup sample returns
// (nil, nil) and reaches no sink. A verdict is dispatched to exactly
// one of the normal and anomaly sinks before Process returns.
func (e *Engine) Process(ctx context.Context, stream string, s Sample) (*Verdict, error) {
	d, err := e.detectorFor(ctx, stream)
	if err != nil {
		return nil, err
	}

	v, err := d.Ingest(s)

	e.mu.Lock()
	if err != nil {
		e.stats.Rejected++
		e.mu.Unlock()
		return nil, err
	}
	e.stats.Samples++
	if v != nil {
		e.stats.Verdicts++
		if v.IsAnomaly {
			e.stats.Anomalies++
		}
	}
	e.mu.Unlock()

	if v == nil {
		return nil, nil
	}

	if e.config.States != nil {
		if p, ok := d.(StateProvider); ok && p.StateKey() != "" {
			e.config.States.MarkDirty(p.StateKey())
		}
	}

	e.dispatch(stream, v)
	return v, nil
}

// dispatch delivers the verdict to the anomaly sink when IsAnomaly is
// set, otherwise to the normal sink. Never both.
func (e *Engine) dispatch(stream string, v *Verdict) {
	if v.IsAnomaly {
		if e.config.Anomaly != nil {
			e.config.Anomaly.Emit(stream, v)
		}
		return
	}
	if e.config.Normal != nil {
		e.config.Normal.Emit(stream, v)
	}
}

// Reset clears one stream's detector state. Unknown streams are a
// no-op.
func (e *Engine) Reset(stream string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if d, ok := e.detectors[stream]; ok {
		d.Reset()
	}
}

// ResetAll clears every stream.
func (e *Engine) ResetAll() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, d := range e.detectors {
		d.Reset()
	}
}

// Streams returns the registered stream keys, sorted.
func (e *Engine) Streams() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	keys := make([]string, 0, len(e.detectors))
	for k := range e.detectors {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Status reports a stream's detector status. The second return is
// false for unknown streams.
func (e *Engine) Status(stream string) (Status, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	d, ok := e.detectors[stream]
	if !ok {
		return Status{}, false
	}
	return d.Status(), true
}

// Stats returns a snapshot of the engine counters.
func (e *Engine) Stats() EngineStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := e.stats
	st.Streams = len(e.detectors)
	return st
}

// Close tears the engine down. When a state manager is attached its
// pending saves are flushed first.
func (e *Engine) Close(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	if e.config.States != nil {
		return e.config.States.Close(ctx)
	}
	return nil
}
