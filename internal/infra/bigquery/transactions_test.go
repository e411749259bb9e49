package bigquery

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/dvloznov/budget-tracker/internal/domain"
	"google.golang.org/api/googleapi"
)

func TestRowFromTransaction_RoundTrip(t *testing.T) {
	booked := time.Date(2024, 2, 29, 23, 30, 0, 0, time.FixedZone("x", -3600))
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	tx := domain.Transaction{ID: "0d6f3f7c-3c55-4a8e-9a52-2f7d2a3b7c11", Name: "Rent", Value: -500, Date: booked}

	row := rowFromTransaction(tx, now)
	if row.TransactionID != tx.ID || row.Name != "Rent" || row.Value != -500 {
		t.Errorf("row fields = %+v", row)
	}
	// 23:30 at UTC-1 is already March 1st in UTC
	if want := (civil.Date{Year: 2024, Month: time.March, Day: 1}); row.TransactionDate != want {
		t.Errorf("transaction_date = %v, want %v", row.TransactionDate, want)
	}
	if !row.CreatedTS.Equal(now) {
		t.Errorf("created_ts = %v", row.CreatedTS)
	}

	back := row.toTransaction()
	if !back.Date.Equal(booked) || back.ID != tx.ID {
		t.Errorf("toTransaction = %+v", back)
	}
}

func TestToTransaction_FallsBackToDate(t *testing.T) {
	row := &TransactionRow{TransactionID: "id", Name: "Old", TransactionDate: civil.Date{Year: 2023, Month: time.June, Day: 2}}
	got := row.toTransaction()
	if want := time.Date(2023, 6, 2, 0, 0, 0, 0, time.UTC); !got.Date.Equal(want) {
		t.Errorf("date = %v, want %v", got.Date, want)
	}
}

func TestInferSchema(t *testing.T) {
	schema, err := bigquery.InferSchema(TransactionRow{})
	if err != nil {
		t.Fatalf("InferSchema: %v", err)
	}
	types := map[string]bigquery.FieldType{}
	for _, f := range schema {
		types[f.Name] = f.Type
	}
	want := map[string]bigquery.FieldType{
		"transaction_id":   bigquery.StringFieldType,
		"name":             bigquery.StringFieldType,
		"value":            bigquery.IntegerFieldType,
		"transaction_date": bigquery.DateFieldType,
		"booked_ts":        bigquery.TimestampFieldType,
		"created_ts":       bigquery.TimestampFieldType,
	}
	for name, typ := range want {
		if types[name] != typ {
			t.Errorf("field %s type = %q, want %q", name, types[name], typ)
		}
	}
}

func TestIsAlreadyExists(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "conflict", err: &googleapi.Error{Code: http.StatusConflict}, want: true},
		{name: "wrapped conflict", err: fmt.Errorf("create: %w", &googleapi.Error{Code: http.StatusConflict}), want: true},
		{name: "forbidden", err: &googleapi.Error{Code: http.StatusForbidden}},
		{name: "plain", err: fmt.Errorf("boom")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isAlreadyExists(tt.err); got != tt.want {
				t.Errorf("isAlreadyExists() = %v, want %v", got, tt.want)
			}
		})
	}
}
