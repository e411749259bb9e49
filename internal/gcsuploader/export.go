package gcsuploader

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dvloznov/budget-tracker/internal/domain"
	"github.com/dvloznov/budget-tracker/internal/report"
)

// Snapshot is the exported form of the transaction list.
type Snapshot struct {
	ExportedAt   time.Time            `json:"exported_at"`
	Count        int                  `json:"count"`
	Total        int64                `json:"total"`
	Transactions []domain.Transaction `json:"transactions"`
}

// ExportTransactions writes a JSON snapshot of txs to dest, which is either a
// local file path or a gs:// URI. A gs:// destination ending in "/" (or a bare
// bucket) gets a timestamped object name. It returns where the snapshot went.
func ExportTransactions(ctx context.Context, svc StorageService, dest string, txs []domain.Transaction, now time.Time) (string, error) {
	if txs == nil {
		txs = []domain.Transaction{}
	}
	snap := Snapshot{
		ExportedAt:   now.UTC(),
		Count:        len(txs),
		Total:        report.Total(txs),
		Transactions: txs,
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode snapshot: %w", err)
	}

	if !strings.HasPrefix(dest, "gs://") {
		if dir := filepath.Dir(dest); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return "", fmt.Errorf("create export dir: %w", err)
			}
		}
		if err := os.WriteFile(dest, data, 0o644); err != nil {
			return "", fmt.Errorf("write snapshot %q: %w", dest, err)
		}
		return dest, nil
	}

	if svc == nil {
		return "", fmt.Errorf("no storage service for %s", dest)
	}
	bucket, object, err := ParseGCSURI(dest)
	if err != nil {
		return "", err
	}
	if object == "" || strings.HasSuffix(object, "/") {
		object += "transactions-" + snap.ExportedAt.Format("20060102T150405Z") + ".json"
	}
	if err := svc.Upload(ctx, bucket, object, "application/json", bytes.NewReader(data)); err != nil {
		return "", fmt.Errorf("upload snapshot: %w", err)
	}
	return fmt.Sprintf("gs://%s/%s", bucket, object), nil
}
