package domain

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Unit says what one integer step of Transaction.Value represents.
type Unit string

const (
	UnitCents Unit = "cents"
	UnitWhole Unit = "whole"
)

// maxStored bounds stored values; the API rejects anything at or above it.
var maxStored = decimal.New(1, 18)

// ParseUnit accepts the config spelling of a unit.
func ParseUnit(raw string) (Unit, error) {
	switch Unit(strings.ToLower(strings.TrimSpace(raw))) {
	case UnitCents, "":
		return UnitCents, nil
	case UnitWhole:
		return UnitWhole, nil
	default:
		return "", fmt.Errorf("unknown unit %q (want cents or whole)", raw)
	}
}

func (u Unit) exp() int32 {
	if u == UnitWhole {
		return 0
	}
	return -2
}

// ParseAmount converts user input such as "12.50" into an unsigned integer amount.
func ParseAmount(raw string, unit Unit) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, &ValidationError{Message: "Missing Information", Fields: map[string]string{"value": "Enter an amount"}}
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return 0, &ValidationError{Message: "invalid amount", Fields: map[string]string{"value": "amount must be a number"}}
	}
	if d.IsNegative() {
		return 0, &ValidationError{Message: "invalid amount", Fields: map[string]string{"value": "amount must not be negative"}}
	}
	scaled := d.Shift(-unit.exp())
	if !scaled.Equal(scaled.Truncate(0)) {
		return 0, &ValidationError{Message: "invalid amount", Fields: map[string]string{"value": "amount has too many decimal places"}}
	}
	if !scaled.Abs().LessThan(maxStored) {
		return 0, &ValidationError{Message: "invalid amount", Fields: map[string]string{"value": "amount is too large"}}
	}
	return scaled.IntPart(), nil
}

// FormatValue renders a stored value for display.
func FormatValue(v int64, unit Unit) string {
	if unit == UnitWhole {
		return strconv.FormatInt(v, 10)
	}
	return decimal.New(v, unit.exp()).StringFixed(-unit.exp())
}
