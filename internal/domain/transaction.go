package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Transaction is one signed budget entry. Positive values are credits,
// negative values are debits; the sign is fixed when the record is created.
// Records are immutable once created.
type Transaction struct {
	ID    string    `json:"id,omitempty"` // client-generated idempotency key
	Name  string    `json:"name"`
	Value int64     `json:"value"` // in the configured Unit (cents or whole units)
	Date  time.Time `json:"date"`
}

// NewTransaction builds a record from already-collected form input.
// amount is the unsigned magnitude; adding=false turns it into a debit.
func NewTransaction(name string, amount int64, adding bool, now time.Time) Transaction {
	if amount < 0 {
		amount = -amount
	}
	if !adding {
		amount = -amount
	}
	return Transaction{
		ID:    uuid.NewString(),
		Name:  strings.TrimSpace(name),
		Value: amount,
		Date:  now.UTC(),
	}
}

// Validate reports input the server would reject.
func (t Transaction) Validate() error {
	fields := make(map[string]string)
	if strings.TrimSpace(t.Name) == "" {
		fields["name"] = "Enter a name for transaction"
	}
	if t.Date.IsZero() {
		fields["date"] = "Enter a date for transaction"
	}
	if t.ID != "" {
		if _, err := uuid.Parse(t.ID); err != nil {
			fields["id"] = "id must be a UUID"
		}
	}
	if len(fields) > 0 {
		return &ValidationError{Message: "Missing Information", Fields: fields}
	}
	return nil
}

// ValidationError means the input itself is bad. It is never retried.
type ValidationError struct {
	Message string
	Fields  map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed: " + e.Message
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return fmt.Sprintf("validation failed: %s (%s)", e.Message, strings.Join(parts, "; "))
}
