package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/budget-tracker/internal/domain"
	"github.com/dvloznov/budget-tracker/internal/store"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
)

// TransactionRepository is the BigQuery implementation of
// store.TransactionStore. It holds a shared client for all operations.
type TransactionRepository struct {
	client  *bigquery.Client
	project string
	dataset string
	table   string
	now     func() time.Time
}

// NewTransactionRepository creates a repository for project.dataset.table.
func NewTransactionRepository(ctx context.Context, project, dataset, table string) (*TransactionRepository, error) {
	client, err := bigquery.NewClient(ctx, project)
	if err != nil {
		return nil, fmt.Errorf("NewTransactionRepository: creating client: %w", err)
	}
	return &TransactionRepository{
		client:  client,
		project: project,
		dataset: dataset,
		table:   table,
		now:     time.Now,
	}, nil
}

// Close closes the BigQuery client connection.
func (r *TransactionRepository) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

func (r *TransactionRepository) tableRef() string {
	return fmt.Sprintf("`%s.%s.%s`", r.project, r.dataset, r.table)
}

// EnsureTable creates the dataset and the day-partitioned transactions
// table when they do not exist yet.
func (r *TransactionRepository) EnsureTable(ctx context.Context) error {
	ds := r.client.DatasetInProject(r.project, r.dataset)
	if err := ds.Create(ctx, &bigquery.DatasetMetadata{}); err != nil && !isAlreadyExists(err) {
		return fmt.Errorf("EnsureTable: creating dataset: %w", err)
	}

	schema, err := bigquery.InferSchema(TransactionRow{})
	if err != nil {
		return fmt.Errorf("EnsureTable: inferring schema: %w", err)
	}
	meta := &bigquery.TableMetadata{
		Schema: schema,
		TimePartitioning: &bigquery.TimePartitioning{
			Type:  bigquery.DayPartitioningType,
			Field: "transaction_date",
		},
	}
	if err := ds.Table(r.table).Create(ctx, meta); err != nil && !isAlreadyExists(err) {
		return fmt.Errorf("EnsureTable: creating table: %w", err)
	}
	return nil
}

// List returns all transactions, newest first.
func (r *TransactionRepository) List(ctx context.Context) ([]domain.Transaction, error) {
	q := r.client.Query(`
		SELECT
		  transaction_id,
		  name,
		  value,
		  transaction_date,
		  booked_ts,
		  created_ts
		FROM ` + r.tableRef() + `
		ORDER BY booked_ts DESC, created_ts DESC
	`)

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListTransactions: query read: %w", err)
	}

	txs := []domain.Transaction{}
	for {
		var row TransactionRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListTransactions: iter next: %w", err)
		}
		txs = append(txs, row.toTransaction())
	}
	return txs, nil
}

// Insert streams the records whose IDs are not stored yet. The transaction
// ID doubles as the insert ID, so a retried request is also deduplicated by
// BigQuery's best-effort streaming dedupe.
func (r *TransactionRepository) Insert(ctx context.Context, txs ...domain.Transaction) ([]domain.Transaction, error) {
	if len(txs) == 0 {
		return nil, nil
	}
	txs = store.AssignIDs(txs)

	ids := make([]string, len(txs))
	for i, tx := range txs {
		ids[i] = tx.ID
	}
	existing, err := r.findByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	now := r.now()
	stored := make([]domain.Transaction, 0, len(txs))
	var savers []*bigquery.StructSaver
	for _, tx := range txs {
		if prev, ok := existing[tx.ID]; ok {
			stored = append(stored, prev)
			continue
		}
		row := rowFromTransaction(tx, now)
		savers = append(savers, &bigquery.StructSaver{Struct: row, InsertID: row.TransactionID})
		existing[tx.ID] = row.toTransaction()
		stored = append(stored, existing[tx.ID])
	}

	if len(savers) > 0 {
		inserter := r.client.DatasetInProject(r.project, r.dataset).Table(r.table).Inserter()
		if err := inserter.Put(ctx, savers); err != nil {
			return nil, fmt.Errorf("InsertTransactions: inserting rows: %w", err)
		}
	}
	return stored, nil
}

func (r *TransactionRepository) findByIDs(ctx context.Context, ids []string) (map[string]domain.Transaction, error) {
	q := r.client.Query(`
		SELECT
		  transaction_id,
		  name,
		  value,
		  transaction_date,
		  booked_ts,
		  created_ts
		FROM ` + r.tableRef() + `
		WHERE transaction_id IN UNNEST(@ids)
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "ids", Value: ids},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("FindTransactionsByID: query read: %w", err)
	}

	found := make(map[string]domain.Transaction, len(ids))
	for {
		var row TransactionRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("FindTransactionsByID: iter next: %w", err)
		}
		found[row.TransactionID] = row.toTransaction()
	}
	return found, nil
}

func isAlreadyExists(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusConflict
}

var _ store.TransactionStore = (*TransactionRepository)(nil)
