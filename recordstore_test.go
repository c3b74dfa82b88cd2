package vigil

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func TestSQLiteRecordStoreRoundTrip(t *testing.T) {
	cfg := DefaultSQLiteRecordStoreConfig()
	cfg.Path = filepath.Join(t.TempDir(), "records.db")
	store, err := NewSQLiteRecordStore(cfg)
	if err != nil {
		t.Fatalf("NewSQLiteRecordStore: %v", err)
	}
	defer store.Close()
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		sample := TrainingSample{
			Timestamp: int64(1000 + i),
			Features:  []float64{float64(i), float64(i) * 2},
			Label:     "normal",
			Severity:  "normal",
		}
		if err := store.Append(ctx, "bearing", sample); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}
	if err := store.Append(ctx, "other", TrainingSample{Timestamp: 1, Features: []float64{9}}); err != nil {
		t.Fatalf("Append other: %v", err)
	}

	n, err := store.Count(ctx, "bearing")
	if err != nil || n != 7 {
		t.Fatalf("Count = (%d, %v), want 7", n, err)
	}

	got, err := store.Read(ctx, "bearing", 2, 3)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("Read returned %d samples, want 3", len(got))
	}
	if got[0].Timestamp != 1002 || got[0].Features[1] != 4 || got[0].Label != "normal" {
		t.Errorf("got[0] = %+v", got[0])
	}
	if got[2].Timestamp != 1004 {
		t.Errorf("got[2].Timestamp = %d", got[2].Timestamp)
	}
}

func TestSQLiteRecordStoreSurvivesReopen(t *testing.T) {
	cfg := DefaultSQLiteRecordStoreConfig()
	cfg.Path = filepath.Join(t.TempDir(), "records.db")
	ctx := context.Background()

	store, err := NewSQLiteRecordStore(cfg)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := store.Append(ctx, "ds", TrainingSample{Timestamp: 5, Features: []float64{1.5}}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := NewSQLiteRecordStore(cfg)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	n, err := reopened.Count(ctx, "ds")
	if err != nil || n != 1 {
		t.Errorf("Count after reopen = (%d, %v), want 1", n, err)
	}
}

func TestSQLiteRecordStoreClosed(t *testing.T) {
	cfg := DefaultSQLiteRecordStoreConfig()
	cfg.Path = filepath.Join(t.TempDir(), "records.db")
	store, err := NewSQLiteRecordStore(cfg)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}

	if err := store.Append(context.Background(), "ds", TrainingSample{}); !errors.Is(err, ErrClosed) {
		t.Errorf("Append after Close = %v, want ErrClosed", err)
	}
	if _, err := store.Count(context.Background(), "ds"); !errors.Is(err, ErrClosed) {
		t.Errorf("Count after Close = %v, want ErrClosed", err)
	}
}
