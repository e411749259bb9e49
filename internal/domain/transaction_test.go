package domain

import (
	"errors"
	"testing"
	"time"
)

func TestNewTransaction_AppliesSignAtCreation(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.FixedZone("x", 3600))

	credit := NewTransaction(" Salary ", 1500, true, now)
	if credit.Value != 1500 {
		t.Errorf("credit value = %d, want 1500", credit.Value)
	}
	if credit.Name != "Salary" {
		t.Errorf("name = %q, want trimmed", credit.Name)
	}
	if credit.Date.Location() != time.UTC {
		t.Errorf("date should be UTC, got %v", credit.Date.Location())
	}
	if credit.ID == "" {
		t.Error("expected generated ID")
	}

	debit := NewTransaction("Rent", 500, false, now)
	if debit.Value != -500 {
		t.Errorf("debit value = %d, want -500", debit.Value)
	}

	// a negative magnitude does not flip a debit back into a credit
	odd := NewTransaction("Rent", -500, false, now)
	if odd.Value != -500 {
		t.Errorf("negative magnitude debit = %d, want -500", odd.Value)
	}
}

func TestTransaction_Validate(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name      string
		tx        Transaction
		wantField string
	}{
		{name: "valid", tx: Transaction{Name: "Food", Value: -10, Date: now}},
		{name: "valid with id", tx: NewTransaction("Food", 10, true, now)},
		{name: "missing name", tx: Transaction{Name: "  ", Value: 1, Date: now}, wantField: "name"},
		{name: "missing date", tx: Transaction{Name: "x", Value: 1}, wantField: "date"},
		{name: "bad id", tx: Transaction{ID: "nope", Name: "x", Date: now}, wantField: "id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.tx.Validate()
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if _, ok := verr.Fields[tt.wantField]; !ok {
				t.Errorf("expected field %q in %v", tt.wantField, verr.Fields)
			}
		})
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		raw     string
		unit    Unit
		want    int64
		wantErr bool
	}{
		{"12.50", UnitCents, 1250, false},
		{"12", UnitCents, 1200, false},
		{"0.01", UnitCents, 1, false},
		{"12.505", UnitCents, 0, true},
		{"12", UnitWhole, 12, false},
		{"12.5", UnitWhole, 0, true},
		{"-3", UnitWhole, 0, true},
		{"abc", UnitCents, 0, true},
		{"", UnitCents, 0, true},
		{"92233720368547758.08", UnitCents, 0, true},
		{"1e30", UnitCents, 0, true},
		{"100000000000000000", UnitCents, 0, true},
		{"9999999999999999.99", UnitCents, 999999999999999999, false},
	}

	for _, tt := range tests {
		t.Run(tt.raw+"/"+string(tt.unit), func(t *testing.T) {
			got, err := ParseAmount(tt.raw, tt.unit)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseAmount() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseAmount() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestFormatValue(t *testing.T) {
	if got := FormatValue(-1250, UnitCents); got != "-12.50" {
		t.Errorf("FormatValue cents = %q", got)
	}
	if got := FormatValue(7, UnitCents); got != "0.07" {
		t.Errorf("FormatValue small cents = %q", got)
	}
	if got := FormatValue(-500, UnitWhole); got != "-500" {
		t.Errorf("FormatValue whole = %q", got)
	}
}

func TestParseUnit(t *testing.T) {
	if u, err := ParseUnit(""); err != nil || u != UnitCents {
		t.Errorf("empty unit = %q, %v", u, err)
	}
	if u, err := ParseUnit("WHOLE"); err != nil || u != UnitWhole {
		t.Errorf("WHOLE = %q, %v", u, err)
	}
	if _, err := ParseUnit("euros"); err == nil {
		t.Error("expected error for unknown unit")
	}
}
