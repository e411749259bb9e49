package bigquery

import (
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/budget-tracker/internal/domain"
)

// TransactionRow is one row of the transactions table.
type TransactionRow struct {
	TransactionID string `bigquery:"transaction_id"` // REQUIRED, also the streaming insert ID
	Name          string `bigquery:"name"`           // REQUIRED
	Value         int64  `bigquery:"value"`          // REQUIRED, signed

	TransactionDate civil.Date `bigquery:"transaction_date"` // REQUIRED, partition column
	BookedTS        time.Time  `bigquery:"booked_ts"`        // REQUIRED, full client timestamp

	CreatedTS time.Time `bigquery:"created_ts"` // REQUIRED, server receipt time
}

func rowFromTransaction(tx domain.Transaction, now time.Time) *TransactionRow {
	booked := tx.Date.UTC()
	return &TransactionRow{
		TransactionID:   tx.ID,
		Name:            tx.Name,
		Value:           tx.Value,
		TransactionDate: civil.DateOf(booked),
		BookedTS:        booked,
		CreatedTS:       now.UTC(),
	}
}

func (r *TransactionRow) toTransaction() domain.Transaction {
	date := r.BookedTS
	if date.IsZero() {
		date = r.TransactionDate.In(time.UTC)
	}
	return domain.Transaction{
		ID:    r.TransactionID,
		Name:  r.Name,
		Value: r.Value,
		Date:  date.UTC(),
	}
}
