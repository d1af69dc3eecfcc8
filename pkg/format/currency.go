// Package format renders monetary and percentage values for display. Values
// arrive already rounded by the engine; formatting never re-rounds beyond
// fixing two decimals.
package format

import (
	"fmt"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.EuropeanSpanish)

// Currency returns a euro string with Spanish thousands separators
// (e.g. "1.234,56 €").
func Currency(amount float64) string {
	return printer.Sprintf("%.2f €", amount)
}

// NumericCurrency returns the localized number without the euro sign
// (e.g. "-1.234,56").
func NumericCurrency(amount float64) string {
	return printer.Sprintf("%.2f", amount)
}

// Percent renders an annual rate in percent with two decimals (e.g. "3,50 %").
func Percent(rate float64) string {
	return printer.Sprintf("%.2f %%", rate)
}

// PlainCurrency renders with a dot decimal separator and no grouping, for
// machine-readable output such as CSV.
func PlainCurrency(amount float64) string {
	return fmt.Sprintf("%.2f", amount)
}
