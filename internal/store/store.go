// Package store defines where the API server keeps transactions.
package store

import (
	"context"
	"sort"

	"github.com/dvloznov/budget-tracker/internal/domain"
	"github.com/google/uuid"
)

// TransactionStore persists transactions on the server side.
type TransactionStore interface {
	// List returns every transaction, newest first.
	List(ctx context.Context) ([]domain.Transaction, error)
	// Insert stores txs and returns them as stored. A record whose ID is
	// already stored is not written again; the stored copy is returned.
	Insert(ctx context.Context, txs ...domain.Transaction) ([]domain.Transaction, error)
	Close() error
}

// AssignIDs gives every record without an ID a fresh one.
func AssignIDs(txs []domain.Transaction) []domain.Transaction {
	out := make([]domain.Transaction, len(txs))
	for i, tx := range txs {
		if tx.ID == "" {
			tx.ID = uuid.NewString()
		}
		tx.Date = tx.Date.UTC()
		out[i] = tx
	}
	return out
}

// SortNewestFirst orders txs by date, most recent first. Records with equal
// dates keep their relative order.
func SortNewestFirst(txs []domain.Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		return txs[i].Date.After(txs[j].Date)
	})
}
