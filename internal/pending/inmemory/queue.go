package inmemory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/dvloznov/budget-tracker/internal/domain"
	"github.com/dvloznov/budget-tracker/internal/pending"
)

// Queue is an in-memory implementation of pending.Queue.
// It is safe for concurrent use. Data is lost on restart, so it backs tests
// and the -ephemeral client mode only.
type Queue struct {
	mu      sync.RWMutex
	seq     uint64
	records map[uint64]domain.Transaction
	closed  bool
}

// NewQueue creates an empty in-memory queue.
func NewQueue() *Queue {
	return &Queue{
		records: make(map[uint64]domain.Transaction),
	}
}

func (q *Queue) Enqueue(ctx context.Context, tx domain.Transaction) (uint64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return 0, &pending.StorageError{Op: "enqueue", Err: fmt.Errorf("queue is closed")}
	}
	q.seq++
	q.records[q.seq] = tx
	return q.seq, nil
}

// DrainAll returns entries in key order.
func (q *Queue) DrainAll(ctx context.Context) ([]pending.Entry, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return nil, &pending.StorageError{Op: "drain", Err: fmt.Errorf("queue is closed")}
	}
	entries := make([]pending.Entry, 0, len(q.records))
	for k, tx := range q.records {
		entries = append(entries, pending.Entry{Key: k, Record: tx})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Key < entries[j].Key
	})
	return entries, nil
}

func (q *Queue) Clear(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return &pending.StorageError{Op: "clear", Err: fmt.Errorf("queue is closed")}
	}
	q.records = make(map[uint64]domain.Transaction)
	return nil
}

func (q *Queue) Remove(ctx context.Context, keys ...uint64) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return &pending.StorageError{Op: "remove", Err: fmt.Errorf("queue is closed")}
	}
	for _, k := range keys {
		delete(q.records, k)
	}
	return nil
}

func (q *Queue) Len(ctx context.Context) (int, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.records), nil
}

func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	return nil
}

// Ensure Queue implements pending.Queue.
var _ pending.Queue = (*Queue)(nil)
