// Package datetime provides date utility functions.
package datetime

import (
	"time"

	"github.com/avidalv/mortgage-tracker/pkg/constants"
)

const (
	// DateLayout is the calendar date format used in config files, API payloads
	// and output.
	DateLayout = constants.DateLayout
)

// MustParseDate parses a date string using DateLayout and panics on error.
// This is intended for use in tests where the date string is known to be valid.
func MustParseDate(dateStr string) time.Time {
	t, err := time.Parse(DateLayout, dateStr)
	if err != nil {
		panic(err)
	}
	return t
}

// PaymentDate returns the calendar date of the given 1-indexed payment number
// relative to the loan start date: payment 1 falls on the start date itself.
func PaymentDate(startDate time.Time, paymentNumber int) time.Time {
	return startDate.AddDate(0, paymentNumber-1, 0)
}

// EndDate returns the date the loan matures given its start date and term.
func EndDate(startDate time.Time, termMonths int) time.Time {
	return startDate.AddDate(0, termMonths, 0)
}

// OffsetDate returns the string-formatted date offset by the given number of
// months relative to the given date.
func OffsetDate(date string, months int) (string, error) {
	t, err := time.Parse(DateLayout, date)
	if err != nil {
		return date, err
	}
	return t.AddDate(0, months, 0).Format(DateLayout), nil
}
