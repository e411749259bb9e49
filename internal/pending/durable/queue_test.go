package durable

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dvloznov/budget-tracker/internal/domain"
	"github.com/dvloznov/budget-tracker/internal/pending"
	bolt "go.etcd.io/bbolt"
)

func openTemp(t *testing.T) (*Queue, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nested", "budget.db")
	q, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return q, path
}

func TestOpen_CreatesStoreOnFirstUse(t *testing.T) {
	q, path := openTemp(t)
	defer q.Close()

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected store file: %v", err)
	}
	entries, err := q.DrainAll(context.Background())
	if err != nil {
		t.Fatalf("DrainAll: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("new store should be empty, got %d", len(entries))
	}
}

func TestQueue_SurvivesRestart(t *testing.T) {
	ctx := context.Background()
	q, path := openTemp(t)

	rent := domain.Transaction{ID: "4f6f3c55-8d9c-4a8e-9d2e-1f2b3c4d5e6f", Name: "Rent", Value: -500, Date: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)}
	key, err := q.Enqueue(ctx, rent)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := q.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	entries, err := reopened.DrainAll(ctx)
	if err != nil {
		t.Fatalf("DrainAll: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry after restart, got %d", len(entries))
	}
	if entries[0].Key != key {
		t.Errorf("key = %d, want %d", entries[0].Key, key)
	}
	if !entries[0].Record.Date.Equal(rent.Date) || entries[0].Record.Name != rent.Name || entries[0].Record.Value != rent.Value || entries[0].Record.ID != rent.ID {
		t.Errorf("record = %+v, want %+v", entries[0].Record, rent)
	}
}

func TestQueue_ClearAndRemove(t *testing.T) {
	ctx := context.Background()
	q, _ := openTemp(t)
	defer q.Close()

	var keys []uint64
	for i := 0; i < 3; i++ {
		k, err := q.Enqueue(ctx, domain.Transaction{Name: "item", Value: int64(i), Date: time.Now()})
		if err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
		keys = append(keys, k)
	}

	if err := q.Remove(ctx, keys[0]); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if n, _ := q.Len(ctx); n != 2 {
		t.Errorf("Len after remove = %d, want 2", n)
	}

	if err := q.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if n, _ := q.Len(ctx); n != 0 {
		t.Errorf("Len after clear = %d, want 0", n)
	}

	next, _ := q.Enqueue(ctx, domain.Transaction{Name: "later", Date: time.Now()})
	if next <= keys[2] {
		t.Errorf("key %d reused after clear (last was %d)", next, keys[2])
	}
}

func TestQueue_StorageErrorAfterClose(t *testing.T) {
	q, _ := openTemp(t)
	_ = q.Close()

	_, err := q.Enqueue(context.Background(), domain.Transaction{Name: "x", Date: time.Now()})
	if !errors.Is(err, pending.ErrStorage) {
		t.Errorf("expected ErrStorage, got %v", err)
	}
}

func TestQueue_CancelledContext(t *testing.T) {
	q, _ := openTemp(t)
	defer q.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := q.DrainAll(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestDrainAll_QuarantinesUndecodableRecords(t *testing.T) {
	ctx := context.Background()
	q, path := openTemp(t)

	first, err := q.Enqueue(ctx, domain.Transaction{Name: "Rent", Value: -500, Date: time.Now()})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	err = q.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(BucketName))
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		return b.Put(encodeKey(seq), []byte(`{"name":`))
	})
	if err != nil {
		t.Fatalf("write bad record: %v", err)
	}
	last, err := q.Enqueue(ctx, domain.Transaction{Name: "Salary", Value: 2000, Date: time.Now()})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	entries, err := q.DrainAll(ctx)
	if err != nil {
		t.Fatalf("DrainAll: %v", err)
	}
	if len(entries) != 2 || entries[0].Key != first || entries[1].Key != last {
		t.Fatalf("entries = %+v, want keys %d and %d", entries, first, last)
	}
	if n, _ := q.Len(ctx); n != 2 {
		t.Errorf("Len = %d, want 2", n)
	}
	if n, _ := q.Quarantined(ctx); n != 1 {
		t.Errorf("Quarantined = %d, want 1", n)
	}
	if err := q.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// the bad record does not come back after a restart
	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	entries, err = reopened.DrainAll(ctx)
	if err != nil || len(entries) != 2 {
		t.Errorf("DrainAll after restart = %d entries, err %v", len(entries), err)
	}
	if n, _ := reopened.Quarantined(ctx); n != 1 {
		t.Errorf("Quarantined after restart = %d, want 1", n)
	}
}
