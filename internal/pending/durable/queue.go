// Package durable implements pending.Queue on a bbolt file so queued writes
// survive process restarts.
package durable

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dvloznov/budget-tracker/internal/domain"
	"github.com/dvloznov/budget-tracker/internal/pending"
	bolt "go.etcd.io/bbolt"
)

// BucketName is the collection of queued writes.
const BucketName = "pending"

// QuarantineBucketName holds records that no longer decode. They are moved
// out of the pending bucket on drain and never replayed.
const QuarantineBucketName = "pending-quarantine"

// Queue is a bbolt-backed pending.Queue.
type Queue struct {
	db *bolt.DB
}

// Open opens (creating if absent) the store at path and makes sure the
// pending bucket exists.
func Open(path string) (*Queue, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, &pending.StorageError{Op: "open", Err: fmt.Errorf("create data dir: %w", err)}
		}
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, &pending.StorageError{Op: "open", Err: fmt.Errorf("open %s: %w", path, err)}
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(BucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, &pending.StorageError{Op: "open", Err: fmt.Errorf("create bucket: %w", err)}
	}
	return &Queue{db: db}, nil
}

func (q *Queue) Enqueue(ctx context.Context, record domain.Transaction) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	data, err := json.Marshal(record)
	if err != nil {
		return 0, &pending.StorageError{Op: "enqueue", Err: err}
	}
	var key uint64
	err = q.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(BucketName))
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		key = seq
		return b.Put(encodeKey(seq), data)
	})
	if err != nil {
		return 0, &pending.StorageError{Op: "enqueue", Err: err}
	}
	return key, nil
}

func (q *Queue) DrainAll(ctx context.Context) ([]pending.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var (
		entries []pending.Entry
		corrupt [][]byte
	)
	err := q.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(BucketName)).ForEach(func(k, v []byte) error {
			var record domain.Transaction
			if err := json.Unmarshal(v, &record); err != nil {
				corrupt = append(corrupt, append([]byte(nil), k...))
				return nil
			}
			entries = append(entries, pending.Entry{Key: decodeKey(k), Record: record})
			return nil
		})
	})
	if err != nil {
		return nil, &pending.StorageError{Op: "drain", Err: err}
	}
	if len(corrupt) > 0 {
		if err := q.quarantine(corrupt); err != nil {
			return nil, &pending.StorageError{Op: "drain", Err: fmt.Errorf("quarantine %d records: %w", len(corrupt), err)}
		}
	}
	return entries, nil
}

// quarantine moves undecodable records out of the pending bucket.
func (q *Queue) quarantine(keys [][]byte) error {
	return q.db.Update(func(tx *bolt.Tx) error {
		src := tx.Bucket([]byte(BucketName))
		dst, err := tx.CreateBucketIfNotExists([]byte(QuarantineBucketName))
		if err != nil {
			return err
		}
		for _, k := range keys {
			v := src.Get(k)
			if v == nil {
				continue
			}
			if err := dst.Put(k, append([]byte(nil), v...)); err != nil {
				return err
			}
			if err := src.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

// Quarantined reports how many records were set aside as undecodable.
func (q *Queue) Quarantined(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var n int
	err := q.db.View(func(tx *bolt.Tx) error {
		if b := tx.Bucket([]byte(QuarantineBucketName)); b != nil {
			n = b.Stats().KeyN
		}
		return nil
	})
	if err != nil {
		return 0, &pending.StorageError{Op: "quarantined", Err: err}
	}
	return n, nil
}

// Clear empties the bucket. The sequence is kept so keys are never reused.
func (q *Queue) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := q.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(BucketName))
		var keys [][]byte
		if err := b.ForEach(func(k, _ []byte) error {
			keys = append(keys, append([]byte(nil), k...))
			return nil
		}); err != nil {
			return err
		}
		for _, k := range keys {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return &pending.StorageError{Op: "clear", Err: err}
	}
	return nil
}

func (q *Queue) Remove(ctx context.Context, keys ...uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	err := q.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(BucketName))
		for _, k := range keys {
			if err := b.Delete(encodeKey(k)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return &pending.StorageError{Op: "remove", Err: err}
	}
	return nil
}

func (q *Queue) Len(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var n int
	err := q.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket([]byte(BucketName)).Stats().KeyN
		return nil
	})
	if err != nil {
		return 0, &pending.StorageError{Op: "len", Err: err}
	}
	return n, nil
}

func (q *Queue) Close() error {
	return q.db.Close()
}

func encodeKey(k uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, k)
	return buf
}

func decodeKey(b []byte) uint64 {
	if len(b) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

var _ pending.Queue = (*Queue)(nil)
