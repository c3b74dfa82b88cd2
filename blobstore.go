package vigil

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Content types attached to exported datasets.
const (
	ContentTypeCSV    = "text/csv"
	ContentTypeJSON   = "application/json"
	ContentTypeNDJSON = "application/x-ndjson"
	ContentTypeGzip   = "application/gzip"
	ContentTypeBinary = "application/octet-stream"
)

// BlobStore is the upload target for exported datasets. Implementations
// must be safe for use by a single exporting goroutine per key.
type BlobStore interface {
	// Put stores a blob under key with the given content type.
	Put(ctx context.Context, key string, data []byte, contentType string) error

	// Get retrieves a blob by key.
	Get(ctx context.Context, key string) ([]byte, error)

	// List returns keys under a prefix.
	List(ctx context.Context, prefix string) ([]string, error)

	// Close releases resources.
	Close() error
}

// FileBlobStore writes blobs into a base directory, one file per key.
type FileBlobStore struct {
	baseDir string
}

// NewFileBlobStore creates the base directory if needed.
func NewFileBlobStore(baseDir string) (*FileBlobStore, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, newExportError("mkdir", baseDir, err)
	}
	return &FileBlobStore{baseDir: baseDir}, nil
}

// safePath rejects keys that escape the base directory.
func (f *FileBlobStore) safePath(key string) (string, error) {
	cleaned := filepath.Clean(key)
	if strings.HasPrefix(cleaned, "..") || filepath.IsAbs(cleaned) {
		return "", newExportError("path", key, ErrInvalidInput)
	}
	return filepath.Join(f.baseDir, cleaned), nil
}

// Put writes the blob to disk. The content type is carried in the file
// name only, via the caller's key extension.
func (f *FileBlobStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := f.safePath(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return newExportError("mkdir", key, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return newExportError("write", key, err)
	}
	return nil
}

// Get reads a blob from disk.
func (f *FileBlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := f.safePath(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, newExportError("read", key, err)
	}
	return data, nil
}

// List walks the base directory for keys under prefix.
func (f *FileBlobStore) List(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var keys []string
	err := filepath.Walk(f.baseDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return err
		}
		rel, err := filepath.Rel(f.baseDir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if strings.HasPrefix(rel, prefix) {
			keys = append(keys, rel)
		}
		return nil
	})
	if err != nil {
		return nil, newExportError("list", prefix, err)
	}
	sort.Strings(keys)
	return keys, nil
}

// Close is a no-op for the file store.
func (f *FileBlobStore) Close() error { return nil }

// MemoryBlobStore keeps blobs in memory. Used in tests and as a sink for
// short-lived pipelines.
type MemoryBlobStore struct {
	mu    sync.RWMutex
	blobs map[string]memoryBlob
}

type memoryBlob struct {
	data        []byte
	contentType string
}

// NewMemoryBlobStore creates an empty in-memory store.
func NewMemoryBlobStore() *MemoryBlobStore {
	return &MemoryBlobStore{blobs: make(map[string]memoryBlob)}
}

// Put stores a copy of the blob.
func (m *MemoryBlobStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[key] = memoryBlob{
		data:        append([]byte(nil), data...),
		contentType: contentType,
	}
	return nil
}

// Get returns a copy of the blob.
func (m *MemoryBlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.blobs[key]
	if !ok {
		return nil, newExportError("read", key, os.ErrNotExist)
	}
	return append([]byte(nil), b.data...), nil
}

// List returns sorted keys under a prefix.
func (m *MemoryBlobStore) List(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var keys []string
	for k := range m.blobs {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// ContentType returns the stored content type for a key, empty when the
// key is absent.
func (m *MemoryBlobStore) ContentType(key string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.blobs[key].contentType
}

// Len returns the number of stored blobs.
func (m *MemoryBlobStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.blobs)
}

// Close is a no-op for the memory store.
func (m *MemoryBlobStore) Close() error { return nil }
