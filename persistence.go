package vigil

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/golang/snappy"
)

// StateStore is the host-provided key-value persistence consumed by
// detectors. Values are JSON documents produced by EncodeState.
type StateStore interface {
	// Load returns the stored value for key, or (nil, nil) when absent.
	Load(ctx context.Context, key string) ([]byte, error)

	// Save stores the value under key.
	Save(ctx context.Context, key string, value []byte) error

	// Close releases resources.
	Close() error
}

// Type tags used to round-trip values JSON cannot represent natively.
const (
	tagFloat32Array = "Float32Array"
	tagFloat64Array = "Float64Array"
	tagObjectArray  = "ObjectArray"
)

// EncodeState serializes detector state. Typed numeric arrays and
// arrays of timestamped objects get a __type tag so DecodeState can
// restore them to their original shape. The result is snappy-compressed.
func EncodeState(state map[string]any) ([]byte, error) {
	tagged := make(map[string]any, len(state))
	for k, v := range state {
		tagged[k] = tagValue(v)
	}
	raw, err := json.Marshal(tagged)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStateCodec, err)
	}
	return snappy.Encode(nil, raw), nil
}

// DecodeState reverses EncodeState.
func DecodeState(data []byte) (map[string]any, error) {
	raw, err := snappy.Decode(nil, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStateCodec, err)
	}
	var tagged map[string]any
	if err := json.Unmarshal(raw, &tagged); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStateCodec, err)
	}
	out := make(map[string]any, len(tagged))
	for k, v := range tagged {
		out[k] = untagValue(v)
	}
	return out, nil
}

func tagValue(v any) any {
	switch x := v.(type) {
	case []float32:
		vals := make([]float64, len(x))
		for i, f := range x {
			vals[i] = float64(f)
		}
		return map[string]any{"__type": tagFloat32Array, "data": vals}
	case []float64:
		return map[string]any{"__type": tagFloat64Array, "data": x}
	case []Sample:
		objs := make([]map[string]any, len(x))
		for i, s := range x {
			objs[i] = map[string]any{"timestamp": s.Timestamp, "value": s.Value}
		}
		return map[string]any{"__type": tagObjectArray, "data": objs}
	case []map[string]any:
		return map[string]any{"__type": tagObjectArray, "data": x}
	default:
		return v
	}
}

func untagValue(v any) any {
	m, ok := v.(map[string]any)
	if !ok {
		return v
	}
	tag, _ := m["__type"].(string)
	data, hasData := m["data"]
	if tag == "" || !hasData {
		return v
	}

	switch tag {
	case tagFloat32Array:
		vals := toFloat64Slice(data)
		out := make([]float32, len(vals))
		for i, f := range vals {
			out[i] = float32(f)
		}
		return out
	case tagFloat64Array:
		return toFloat64Slice(data)
	case tagObjectArray:
		items, _ := data.([]any)
		out := make([]map[string]any, 0, len(items))
		for _, item := range items {
			if obj, ok := item.(map[string]any); ok {
				out = append(out, obj)
			}
		}
		return out
	default:
		return v
	}
}

// stateSamples rebuilds ring contents from a decoded state value. A
// freshly captured snapshot holds []Sample; one that has been through
// the codec holds the tagged object-array form.
func stateSamples(v any) []Sample {
	switch t := v.(type) {
	case []Sample:
		return t
	case []map[string]any:
		out := make([]Sample, 0, len(t))
		for _, m := range t {
			val, ok := coerceFloat(m["value"])
			if !ok {
				continue
			}
			ts, _ := coerceFloat(m["timestamp"])
			out = append(out, Sample{Timestamp: int64(ts), Value: val})
		}
		return out
	default:
		return nil
	}
}

// stateFloat reads a scalar from a decoded state map.
func stateFloat(state map[string]any, key string) (float64, bool) {
	return coerceFloat(state[key])
}

// stateBool reads a flag from a decoded state map.
func stateBool(state map[string]any, key string) bool {
	b, _ := state[key].(bool)
	return b
}

func toFloat64Slice(data any) []float64 {
	items, _ := data.([]any)
	out := make([]float64, 0, len(items))
	for _, item := range items {
		if f, ok := coerceFloat(item); ok {
			out = append(out, f)
		}
	}
	return out
}

// FileStateStore persists state documents as files under a directory.
type FileStateStore struct {
	dir string
}

// NewFileStateStore creates the directory if needed.
func NewFileStateStore(dir string) (*FileStateStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	return &FileStateStore{dir: dir}, nil
}

func (f *FileStateStore) path(key string) string {
	safe := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, key)
	return filepath.Join(f.dir, safe+".state")
}

// Load returns (nil, nil) for unknown keys.
func (f *FileStateStore) Load(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.path(key))
	if os.IsNotExist(err) {
		return nil, nil
	}
	return data, err
}

// Save writes atomically via a temp file rename.
func (f *FileStateStore) Save(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path := f.path(key)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, value, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Close is a no-op for the file store.
func (f *FileStateStore) Close() error { return nil }

// MemoryStateStore keeps state in memory. Used in tests.
type MemoryStateStore struct {
	mu     sync.RWMutex
	values map[string][]byte
	saves  int
}

// NewMemoryStateStore creates an empty store.
func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{values: make(map[string][]byte)}
}

// Load returns (nil, nil) for unknown keys.
func (m *MemoryStateStore) Load(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), v...), nil
}

// Save stores a copy.
func (m *MemoryStateStore) Save(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = append([]byte(nil), value...)
	m.saves++
	return nil
}

// Saves returns the number of completed save calls.
func (m *MemoryStateStore) Saves() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.saves
}

// Close is a no-op for the memory store.
func (m *MemoryStateStore) Close() error { return nil }

// StateProvider is implemented by components whose state survives
// restarts. One stream owns one key; concurrent writers per key are
// prohibited by construction.
type StateProvider interface {
	// StateKey returns the component's persistence key.
	StateKey() string

	// SnapshotState captures the current state.
	SnapshotState() map[string]any

	// RestoreState applies a previously captured state.
	RestoreState(state map[string]any) error
}

// StateManagerConfig configures save coalescing.
type StateManagerConfig struct {
	// SaveInterval is the coalescing period. Dirty providers are saved
	// at most once per interval. Default: 30s
	SaveInterval time.Duration
}

// StateManager periodically persists registered providers and runs a
// final save on Close.
type StateManager struct {
	mu        sync.Mutex
	store     StateStore
	logger    *slog.Logger
	interval  time.Duration
	providers map[string]StateProvider
	dirty     map[string]bool
	stop      chan struct{}
	done      chan struct{}
	closed    bool
}

// NewStateManager starts the coalescing loop.
func NewStateManager(store StateStore, config StateManagerConfig) *StateManager {
	if config.SaveInterval <= 0 {
		config.SaveInterval = 30 * time.Second
	}
	m := &StateManager{
		store:     store,
		logger:    slog.Default().With("component", "statemanager"),
		interval:  config.SaveInterval,
		providers: make(map[string]StateProvider),
		dirty:     make(map[string]bool),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	go m.loop()
	return m
}

// Register adds a provider and restores its saved state if present.
func (m *StateManager) Register(ctx context.Context, p StateProvider) error {
	m.mu.Lock()
	m.providers[p.StateKey()] = p
	m.mu.Unlock()

	data, err := m.store.Load(ctx, p.StateKey())
	if err != nil {
		return err
	}
	if data == nil {
		return nil
	}
	state, err := DecodeState(data)
	if err != nil {
		return err
	}
	return p.RestoreState(state)
}

// MarkDirty schedules a provider for the next coalesced save.
func (m *StateManager) MarkDirty(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dirty[key] = true
}

func (m *StateManager) loop() {
	defer close(m.done)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.saveDirty(context.Background())
		case <-m.stop:
			return
		}
	}
}

// saveDirty persists every dirty provider, keeping dirt on failure so
// the next tick retries.
func (m *StateManager) saveDirty(ctx context.Context) {
	m.mu.Lock()
	pending := make([]StateProvider, 0, len(m.dirty))
	for key := range m.dirty {
		if p, ok := m.providers[key]; ok {
			pending = append(pending, p)
		}
		delete(m.dirty, key)
	}
	m.mu.Unlock()

	for _, p := range pending {
		if err := m.save(ctx, p); err != nil {
			m.logger.Warn("state save failed", "key", p.StateKey(), "error", err)
			m.MarkDirty(p.StateKey())
		}
	}
}

func (m *StateManager) save(ctx context.Context, p StateProvider) error {
	data, err := EncodeState(p.SnapshotState())
	if err != nil {
		return err
	}
	return m.store.Save(ctx, p.StateKey(), data)
}

// Flush saves every registered provider immediately.
func (m *StateManager) Flush(ctx context.Context) error {
	m.mu.Lock()
	providers := make([]StateProvider, 0, len(m.providers))
	for _, p := range m.providers {
		providers = append(providers, p)
	}
	for key := range m.dirty {
		delete(m.dirty, key)
	}
	m.mu.Unlock()

	var firstErr error
	for _, p := range providers {
		if err := m.save(ctx, p); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Close stops the loop and runs a final save of all providers.
func (m *StateManager) Close(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.stop)
	<-m.done
	return m.Flush(ctx)
}
