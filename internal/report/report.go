// Package report renders the transaction list: the running total, the
// table of entries and the cumulative balance series.
package report

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dvloznov/budget-tracker/internal/domain"
)

// Point is one step of the cumulative balance series.
type Point struct {
	Label string
	Total int64
}

// Total is the signed sum of all values.
func Total(txs []domain.Transaction) int64 {
	var total int64
	for _, tx := range txs {
		total += tx.Value
	}
	return total
}

// Row is one table line.
type Row struct {
	Name  string
	Funds string
}

// Rows formats txs for the table, in list order.
func Rows(txs []domain.Transaction, unit domain.Unit) []Row {
	rows := make([]Row, len(txs))
	for i, tx := range txs {
		rows[i] = Row{Name: tx.Name, Funds: domain.FormatValue(tx.Value, unit)}
	}
	return rows
}

// Series walks txs (given newest first, as displayed) from oldest to newest
// and returns the running balance after each entry. Labels are M/D/YYYY in loc.
func Series(txs []domain.Transaction, loc *time.Location) []Point {
	if loc == nil {
		loc = time.Local
	}
	points := make([]Point, 0, len(txs))
	var sum int64
	for i := len(txs) - 1; i >= 0; i-- {
		tx := txs[i]
		sum += tx.Value
		d := tx.Date.In(loc)
		points = append(points, Point{
			Label: fmt.Sprintf("%d/%d/%d", int(d.Month()), d.Day(), d.Year()),
			Total: sum,
		})
	}
	return points
}

// Render writes the total, the table and the series.
func Render(w io.Writer, txs []domain.Transaction, unit domain.Unit, loc *time.Location) error {
	if _, err := fmt.Fprintf(w, "Your total is: %s\n\n", domain.FormatValue(Total(txs), unit)); err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "Name\tFunds\t")
	for _, row := range Rows(txs, unit) {
		fmt.Fprintf(tw, "%s\t%s\t\n", row.Name, row.Funds)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(txs) == 0 {
		return nil
	}
	if _, err := fmt.Fprintln(w, "\nTotal Over Time"); err != nil {
		return err
	}
	tw = tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	for _, p := range Series(txs, loc) {
		fmt.Fprintf(tw, "%s\t%s\t\n", p.Label, domain.FormatValue(p.Total, unit))
	}
	return tw.Flush()
}
