package vigil

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	// SQLite driver using pure Go implementation
	_ "modernc.org/sqlite"
)

// RecordStore is the durable append-only stream behind the collector's
// streaming mode. One stream per dataset name.
type RecordStore interface {
	// Append writes one sample to the dataset's stream.
	Append(ctx context.Context, dataset string, sample TrainingSample) error

	// Read returns up to limit samples starting at offset, in insertion
	// order.
	Read(ctx context.Context, dataset string, offset, limit int) ([]TrainingSample, error)

	// Count returns the stream length.
	Count(ctx context.Context, dataset string) (int64, error)

	// Close releases resources.
	Close() error
}

// SQLiteRecordStoreConfig configures the SQLite record store.
type SQLiteRecordStoreConfig struct {
	// Path to the SQLite database file.
	Path string

	// JournalMode sets the SQLite journal mode (WAL, DELETE, ...).
	JournalMode string

	// Synchronous sets the synchronous flag (OFF, NORMAL, FULL).
	Synchronous string

	// BusyTimeout is the lock timeout in milliseconds.
	BusyTimeout int

	// MaxConnections bounds the connection pool.
	MaxConnections int
}

// DefaultSQLiteRecordStoreConfig returns sensible defaults.
func DefaultSQLiteRecordStoreConfig() SQLiteRecordStoreConfig {
	return SQLiteRecordStoreConfig{
		Path:           "vigil_records.db",
		JournalMode:    "WAL",
		Synchronous:    "NORMAL",
		BusyTimeout:    5000,
		MaxConnections: 4,
	}
}

// SQLiteRecordStore keeps the streaming-mode sample log in SQLite, so
// datasets survive restarts and stay queryable with standard tools.
type SQLiteRecordStore struct {
	db     *sql.DB
	config SQLiteRecordStoreConfig
	mu     sync.RWMutex
	closed bool

	insertStmt *sql.Stmt
	countStmt  *sql.Stmt
}

// NewSQLiteRecordStore opens or creates the record database.
func NewSQLiteRecordStore(config SQLiteRecordStoreConfig) (*SQLiteRecordStore, error) {
	if config.Path == "" {
		config.Path = "vigil_records.db"
	}
	if config.JournalMode == "" {
		config.JournalMode = "WAL"
	}
	if config.Synchronous == "" {
		config.Synchronous = "NORMAL"
	}
	if config.BusyTimeout <= 0 {
		config.BusyTimeout = 5000
	}
	if config.MaxConnections <= 0 {
		config.MaxConnections = 4
	}

	db, err := sql.Open("sqlite", config.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open record database: %w", err)
	}
	db.SetMaxOpenConns(config.MaxConnections)
	db.SetMaxIdleConns(config.MaxConnections / 2)

	pragmas := []string{
		fmt.Sprintf("PRAGMA journal_mode=%s", config.JournalMode),
		fmt.Sprintf("PRAGMA synchronous=%s", config.Synchronous),
		fmt.Sprintf("PRAGMA busy_timeout=%d", config.BusyTimeout),
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %s: %w", p, err)
		}
	}

	store := &SQLiteRecordStore{db: db, config: config}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize record schema: %w", err)
	}
	if err := store.prepareStatements(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}
	return store, nil
}

func (s *SQLiteRecordStore) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS training_records (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			dataset TEXT NOT NULL,
			timestamp INTEGER NOT NULL,
			features BLOB NOT NULL,
			label TEXT,
			severity TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_records_dataset
			ON training_records(dataset, id);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteRecordStore) prepareStatements() error {
	var err error
	s.insertStmt, err = s.db.Prepare(
		`INSERT INTO training_records (dataset, timestamp, features, label, severity)
		 VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	s.countStmt, err = s.db.Prepare(
		`SELECT COUNT(*) FROM training_records WHERE dataset = ?`)
	return err
}

// Append writes one sample. Features travel as a JSON array blob.
func (s *SQLiteRecordStore) Append(ctx context.Context, dataset string, sample TrainingSample) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}

	features, err := json.Marshal(sample.Features)
	if err != nil {
		return fmt.Errorf("failed to encode features: %w", err)
	}
	_, err = s.insertStmt.ExecContext(ctx,
		dataset, sample.Timestamp, features, sample.Label, sample.Severity)
	if err != nil {
		return fmt.Errorf("failed to append record: %w", err)
	}
	return nil
}

// Read returns samples in insertion order.
func (s *SQLiteRecordStore) Read(ctx context.Context, dataset string, offset, limit int) ([]TrainingSample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	if limit <= 0 {
		limit = 1000
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT timestamp, features, label, severity
		 FROM training_records WHERE dataset = ?
		 ORDER BY id LIMIT ? OFFSET ?`,
		dataset, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to read records: %w", err)
	}
	defer rows.Close()

	var out []TrainingSample
	for rows.Next() {
		var sample TrainingSample
		var features []byte
		var label, severity sql.NullString
		if err := rows.Scan(&sample.Timestamp, &features, &label, &severity); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		if err := json.Unmarshal(features, &sample.Features); err != nil {
			return nil, fmt.Errorf("failed to decode features: %w", err)
		}
		sample.Label = label.String
		sample.Severity = severity.String
		out = append(out, sample)
	}
	return out, rows.Err()
}

// Count returns the stream length for a dataset.
func (s *SQLiteRecordStore) Count(ctx context.Context, dataset string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, ErrClosed
	}
	var n int64
	err := s.countStmt.QueryRowContext(ctx, dataset).Scan(&n)
	return n, err
}

// Close releases the database.
func (s *SQLiteRecordStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.insertStmt != nil {
		_ = s.insertStmt.Close()
	}
	if s.countStmt != nil {
		_ = s.countStmt.Close()
	}
	return s.db.Close()
}

// MemoryRecordStore keeps streams in memory. Used in tests.
type MemoryRecordStore struct {
	mu      sync.RWMutex
	streams map[string][]TrainingSample
}

// NewMemoryRecordStore creates an empty store.
func NewMemoryRecordStore() *MemoryRecordStore {
	return &MemoryRecordStore{streams: make(map[string][]TrainingSample)}
}

// Append adds a sample to the dataset's stream.
func (m *MemoryRecordStore) Append(ctx context.Context, dataset string, sample TrainingSample) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.streams[dataset] = append(m.streams[dataset], sample)
	return nil
}

// Read returns samples in insertion order.
func (m *MemoryRecordStore) Read(ctx context.Context, dataset string, offset, limit int) ([]TrainingSample, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	stream := m.streams[dataset]
	if offset >= len(stream) {
		return nil, nil
	}
	end := len(stream)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return append([]TrainingSample(nil), stream[offset:end]...), nil
}

// Count returns the stream length.
func (m *MemoryRecordStore) Count(ctx context.Context, dataset string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.streams[dataset])), nil
}

// Close is a no-op for the memory store.
func (m *MemoryRecordStore) Close() error { return nil }
