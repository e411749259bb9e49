package inmemory

import (
	"context"
	"errors"
	"sync"

	"github.com/dvloznov/budget-tracker/internal/domain"
	"github.com/dvloznov/budget-tracker/internal/store"
)

var errClosed = errors.New("store is closed")

// Store is an in-memory implementation of store.TransactionStore.
// Contents are lost when the process exits.
type Store struct {
	mu     sync.RWMutex
	txs    []domain.Transaction
	byID   map[string]int
	closed bool
}

// NewStore creates a new in-memory transaction store.
func NewStore() *Store {
	return &Store{
		byID: make(map[string]int),
	}
}

// List returns a copy of all transactions, newest first.
func (s *Store) List(ctx context.Context) ([]domain.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errClosed
	}

	out := make([]domain.Transaction, len(s.txs))
	// newest inserted first so equal dates list the latest write on top
	for i, tx := range s.txs {
		out[len(s.txs)-1-i] = tx
	}
	store.SortNewestFirst(out)
	return out, nil
}

// Insert stores txs, skipping IDs that are already present.
func (s *Store) Insert(ctx context.Context, txs ...domain.Transaction) ([]domain.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	txs = store.AssignIDs(txs)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errClosed
	}

	stored := make([]domain.Transaction, 0, len(txs))
	for _, tx := range txs {
		if idx, ok := s.byID[tx.ID]; ok {
			stored = append(stored, s.txs[idx])
			continue
		}
		s.byID[tx.ID] = len(s.txs)
		s.txs = append(s.txs, tx)
		stored = append(stored, tx)
	}
	return stored, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

var _ store.TransactionStore = (*Store)(nil)
