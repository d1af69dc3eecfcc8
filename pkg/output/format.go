// Package output provides utilities for rendering amortization schedules and
// early-payoff simulations in human- and machine-readable formats.
package output

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/avidalv/mortgage-tracker/pkg/amortization"
	"github.com/avidalv/mortgage-tracker/pkg/datetime"
	"github.com/avidalv/mortgage-tracker/pkg/format"
)

// PrettyFormat writes a human-readable schedule table followed by its summary.
func PrettyFormat(w io.Writer, schedule []amortization.Payment, summary amortization.Summary) {
	fmt.Fprintf(w, "%4s | %-10s | %12s | %12s | %12s | %14s | %8s\n",
		"#", "Date", "Principal", "Interest", "Payment", "Balance", "Rate")
	fmt.Fprintf(w, "%4s | %-10s | %12s | %12s | %12s | %14s | %8s\n",
		"____", "__________", "____________", "____________", "____________", "______________", "________")
	for _, p := range schedule {
		fmt.Fprintf(w, "%4d | %s | %12s | %12s | %12s | %14s | %8s\n",
			p.Number,
			p.Date.Format(datetime.DateLayout),
			format.NumericCurrency(p.Principal),
			format.NumericCurrency(p.Interest),
			format.NumericCurrency(p.TotalPayment),
			format.NumericCurrency(p.RemainingBalance),
			format.Percent(p.InterestRate),
		)
	}
	fmt.Fprintf(w, "\nPayments: %d | Principal: %s | Interest: %s | Total: %s\n",
		summary.NumberOfPayments,
		format.Currency(summary.TotalPrincipal),
		format.Currency(summary.TotalInterest),
		format.Currency(summary.TotalPayments),
	)
}

// CsvFormat writes the schedule in comma-separated value format.
func CsvFormat(w io.Writer, schedule []amortization.Payment) error {
	cw := csv.NewWriter(w)
	header := []string{"paymentNumber", "date", "principal", "interest", "totalPayment", "remainingBalance", "interestRate"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, p := range schedule {
		record := []string{
			fmt.Sprintf("%d", p.Number),
			p.Date.Format(datetime.DateLayout),
			format.PlainCurrency(p.Principal),
			format.PlainCurrency(p.Interest),
			format.PlainCurrency(p.TotalPayment),
			format.PlainCurrency(p.RemainingBalance),
			fmt.Sprintf("%.3f", p.InterestRate),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV record: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// SimulationFormat writes a human-readable before/after comparison for an
// early-payoff simulation.
func SimulationFormat(w io.Writer, sim amortization.Simulation) {
	fmt.Fprintf(w, "Early payoff simulation (%s): %s after payment %d\n\n",
		sim.Strategy, format.Currency(sim.ExtraAmount), sim.AfterPayment)
	fmt.Fprintf(w, "%-22s | %14s | %14s\n", "", "Without", "With")
	fmt.Fprintf(w, "%-22s | %14d | %14d\n", "Remaining payments",
		sim.OriginalRemainingPayments, sim.NewRemainingPayments)
	fmt.Fprintf(w, "%-22s | %14s | %14s\n", "Monthly payment",
		format.NumericCurrency(sim.OriginalMonthlyPayment), format.NumericCurrency(sim.NewMonthlyPayment))
	fmt.Fprintf(w, "%-22s | %14s | %14s\n", "Total interest",
		format.NumericCurrency(sim.OriginalTotalInterest), format.NumericCurrency(sim.NewTotalInterest))
	fmt.Fprintf(w, "\nInterest saved: %s | Months saved: %d\n",
		format.Currency(sim.InterestSaved), sim.MonthsSaved)
}
