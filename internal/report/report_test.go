package report

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/dvloznov/budget-tracker/internal/domain"
)

func sample() []domain.Transaction {
	// newest first, as listed by the server
	return []domain.Transaction{
		{Name: "Rent", Value: -500, Date: time.Date(2024, 3, 3, 0, 0, 0, 0, time.UTC)},
		{Name: "Groceries", Value: -45, Date: time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)},
		{Name: "Pay", Value: 1200, Date: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)},
	}
}

func TestTotal(t *testing.T) {
	if got := Total(sample()); got != 655 {
		t.Errorf("Total = %d, want 655", got)
	}
	if got := Total(nil); got != 0 {
		t.Errorf("Total(nil) = %d", got)
	}
}

func TestRows(t *testing.T) {
	rows := Rows(sample(), domain.UnitCents)
	if len(rows) != 3 || rows[0] != (Row{Name: "Rent", Funds: "-5.00"}) {
		t.Errorf("Rows = %+v", rows)
	}
}

func TestSeries_OldestToNewest(t *testing.T) {
	got := Series(sample(), time.UTC)
	want := []Point{
		{Label: "3/1/2024", Total: 1200},
		{Label: "3/2/2024", Total: 1155},
		{Label: "3/3/2024", Total: 655},
	}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Series[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestRender(t *testing.T) {
	var buf bytes.Buffer
	if err := Render(&buf, sample(), domain.UnitWhole, time.UTC); err != nil {
		t.Fatalf("Render: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"Your total is: 655", "Groceries", "-500", "Total Over Time", "3/3/2024"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRender_Empty(t *testing.T) {
	var buf bytes.Buffer
	if err := Render(&buf, nil, domain.UnitCents, time.UTC); err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(buf.String(), "Your total is: 0.00") {
		t.Errorf("output = %q", buf.String())
	}
	if strings.Contains(buf.String(), "Total Over Time") {
		t.Error("empty list should not render a series")
	}
}
