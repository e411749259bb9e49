// Package cachestore keeps named response caches in a bbolt file. Each cache
// is a bucket; entries are keyed by request URL and overwritten on every put.
package cachestore

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"
)

// ErrNotFound is returned by Match when there is no entry (or no cache).
var ErrNotFound = errors.New("cachestore: no match")

// Response is a stored HTTP response.
type Response struct {
	Status   int         `json:"status"`
	Header   http.Header `json:"header"`
	Body     []byte      `json:"body"`
	StoredAt time.Time   `json:"stored_at"`
}

// Storage holds all named caches of one agent.
type Storage struct {
	db *bolt.DB
}

// Open opens or creates the cache file.
func Open(path string) (*Storage, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create cache dir: %w", err)
		}
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open cache %s: %w", path, err)
	}
	return &Storage{db: db}, nil
}

// Open creates the named cache if it does not exist.
func (s *Storage) Open(name string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
			return fmt.Errorf("open cache %q: %w", name, err)
		}
		return nil
	})
}

// Keys lists cache names in sorted order.
func (s *Storage) Keys() ([]string, error) {
	var names []string
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.ForEach(func(name []byte, _ *bolt.Bucket) error {
			names = append(names, string(name))
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list caches: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

// Delete removes a whole cache. It reports whether the cache existed.
func (s *Storage) Delete(name string) (bool, error) {
	deleted := false
	err := s.db.Update(func(tx *bolt.Tx) error {
		err := tx.DeleteBucket([]byte(name))
		if errors.Is(err, bolt.ErrBucketNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		deleted = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("delete cache %q: %w", name, err)
	}
	return deleted, nil
}

// Put stores resp under key in the named cache, creating the cache if needed.
func (s *Storage) Put(name, key string, resp Response) error {
	if resp.StoredAt.IsZero() {
		resp.StoredAt = time.Now().UTC()
	}
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("encode cached response: %w", err)
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(name))
		if err != nil {
			return err
		}
		return b.Put([]byte(key), data)
	})
	if err != nil {
		return fmt.Errorf("put %s in cache %q: %w", key, name, err)
	}
	return nil
}

// Match returns the entry for key in the named cache.
func (s *Storage) Match(name, key string) (Response, error) {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(name))
		if b == nil {
			return nil
		}
		if v := b.Get([]byte(key)); v != nil {
			data = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return Response{}, fmt.Errorf("match %s in cache %q: %w", key, name, err)
	}
	if data == nil {
		return Response{}, ErrNotFound
	}
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return Response{}, fmt.Errorf("decode cached %s: %w", key, err)
	}
	return resp, nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}
