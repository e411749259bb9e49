// Package pending defines the durable buffer of transaction writes the server
// has not acknowledged yet.
package pending

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/budget-tracker/internal/domain"
)

// ErrStorage marks failures of the local durable store itself. Callers treat
// it as fatal to offline support for the session.
var ErrStorage = errors.New("pending: local storage failure")

// StorageError wraps an underlying store error. errors.Is(err, ErrStorage) holds.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("pending %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool { return target == ErrStorage }

// Entry is one queued record with the key the store assigned to it.
type Entry struct {
	Key    uint64
	Record domain.Transaction
}

// Records strips the keys off a drained batch.
func Records(entries []Entry) []domain.Transaction {
	out := make([]domain.Transaction, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Record)
	}
	return out
}

// Keys returns the keys of a drained batch.
func Keys(entries []Entry) []uint64 {
	out := make([]uint64, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Key)
	}
	return out
}

// Queue is an auto-keyed collection of records awaiting acknowledgement.
// Each call is atomic with respect to other calls on the same store.
type Queue interface {
	// Enqueue appends a record and returns its assigned key.
	Enqueue(ctx context.Context, tx domain.Transaction) (uint64, error)

	// DrainAll returns every queued record without removing any.
	DrainAll(ctx context.Context) ([]Entry, error)

	// Clear removes every record. Only call it after the server acknowledged
	// everything returned by the most recent DrainAll.
	Clear(ctx context.Context) error

	// Remove deletes the given keys; unknown keys are ignored.
	Remove(ctx context.Context, keys ...uint64) error

	// Len reports how many records are queued.
	Len(ctx context.Context) (int, error)

	// Close releases the store.
	Close() error
}
