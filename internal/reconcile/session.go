package reconcile

import (
	"sync"

	"github.com/dvloznov/budget-tracker/internal/domain"
	"github.com/dvloznov/budget-tracker/internal/pending"
)

// Session is the page-side state: the newest-first transaction list the
// presentation layer renders, plus the bookkeeping that keeps queued records
// from being merged into it twice.
type Session struct {
	mu           sync.RWMutex
	transactions []domain.Transaction
	merged       map[uint64]struct{}
}

func NewSession() *Session {
	return &Session{merged: make(map[uint64]struct{})}
}

// Transactions returns a copy of the current list, newest first.
func (s *Session) Transactions() []domain.Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Transaction, len(s.transactions))
	copy(out, s.transactions)
	return out
}

// Prepend puts a freshly created record at the head of the list.
func (s *Session) Prepend(tx domain.Transaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transactions = append([]domain.Transaction{tx}, s.transactions...)
}

// Replace is a full reload. It forgets which queued records were merged,
// since the new list came from the server and does not contain them.
func (s *Session) Replace(txs []domain.Transaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transactions = append([]domain.Transaction(nil), txs...)
	s.merged = make(map[uint64]struct{})
}

// markMerged records that the entry under key is already in the list.
func (s *Session) markMerged(key uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.merged[key] = struct{}{}
}

// mergeQueued prepends queued records not already shown, in queue order, so
// the most recently queued one ends up first. Returns how many were added.
func (s *Session) mergeQueued(entries []pending.Entry) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make(map[string]struct{}, len(s.transactions))
	for _, tx := range s.transactions {
		if tx.ID != "" {
			ids[tx.ID] = struct{}{}
		}
	}

	added := 0
	for _, e := range entries {
		if _, ok := s.merged[e.Key]; ok {
			continue
		}
		s.merged[e.Key] = struct{}{}
		if e.Record.ID != "" {
			if _, ok := ids[e.Record.ID]; ok {
				continue
			}
			ids[e.Record.ID] = struct{}{}
		}
		s.transactions = append([]domain.Transaction{e.Record}, s.transactions...)
		added++
	}
	return added
}
