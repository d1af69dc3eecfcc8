// Package amortization implements the repayment engine: building month-by-month
// schedules for variable-rate mortgages and simulating early-payoff scenarios.
// The engine is pure and stateless; it allocates and returns new data on every
// call and performs no I/O.
package amortization

import (
	"fmt"
	"math"
	"time"

	"github.com/avidalv/mortgage-tracker/pkg/constants"
	"github.com/avidalv/mortgage-tracker/pkg/datetime"
	"github.com/avidalv/mortgage-tracker/pkg/mathutil"
	"github.com/avidalv/mortgage-tracker/pkg/mortgage"
	"go.uber.org/zap"
)

// Payment is one line of an amortization schedule. All monetary fields are
// rounded to two decimals at the point of computation; the running balance is
// carried at full precision internally and rounded (and floored at 0) here.
type Payment struct {
	Number           int       `json:"paymentNumber"`
	Date             time.Time `json:"date"`
	Principal        float64   `json:"principal"`
	Interest         float64   `json:"interest"`
	TotalPayment     float64   `json:"totalPayment"`
	RemainingBalance float64   `json:"remainingBalance"`
	// InterestRate is the effective annual rate used for this month, i.e. the
	// base-or-condition rate minus the total bonification, floored at 0.
	InterestRate float64 `json:"interestRate"`
}

// MonthlyPayment calculates the fixed monthly quota for a loan using the
// standard annuity formula. A zero rate amortizes linearly.
func MonthlyPayment(principal, annualRate float64, months int) float64 {
	if annualRate == 0 {
		return principal / float64(months)
	}
	r := monthlyRate(annualRate)
	power := math.Pow(1+r, float64(months))
	return principal * r * power / (power - 1)
}

// Engine computes amortization schedules and early-payoff simulations.
type Engine struct {
	logger *zap.Logger
}

// New creates an engine. A nil logger falls back to a no-op logger.
func New(logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{logger: logger}
}

// BuildSchedule produces the full baseline repayment schedule for a mortgage
// given its rate-modifying conditions and standing bonifications.
//
// Months sharing the same effective rate form a run; at the start of each run
// the quota is recomputed as if the loan were re-amortized over the whole
// remaining term at the run's rate. The schedule may come out shorter than the
// term when a run exhausts the balance early.
func (e *Engine) BuildSchedule(m mortgage.Mortgage, conditions []mortgage.Condition, bonifications []mortgage.Bonification) []Payment {
	resolver := newRateResolver(m, conditions, bonifications)

	schedule := make([]Payment, 0, m.TermMonths)
	balance := m.TotalAmount
	remainingMonths := m.TermMonths
	currentMonth := 1

	for currentMonth <= m.TermMonths && balance > constants.BalanceEpsilon {
		rate := resolver.rateFor(currentMonth)

		// Extend the run while consecutive months resolve to the same rate.
		endMonth := currentMonth
		for endMonth < m.TermMonths && resolver.rateFor(endMonth+1) == rate {
			endMonth++
		}

		payment := MonthlyPayment(balance, rate, remainingMonths)
		r := monthlyRate(rate)

		e.logger.Debug(fmt.Sprintf("rate run months %d-%d at %.3f%%: quota %.2f over %d remaining months",
			currentMonth, endMonth, rate, payment, remainingMonths),
			zap.String("op", "amortization.BuildSchedule"),
		)

		for month := currentMonth; month <= endMonth && balance > constants.BalanceEpsilon; month++ {
			var interest, principal, total float64
			if rate == 0 {
				// Grace period: the whole quota is principal.
				interest = 0
				principal = payment
				total = payment
			} else {
				interest = balance * r
				principal = payment - interest
				total = payment
			}

			// Final-payment correction.
			if principal > balance {
				principal = balance
				total = principal + interest
			}

			balance -= principal
			remainingMonths--

			schedule = append(schedule, Payment{
				Number:           month,
				Date:             datetime.PaymentDate(m.StartDate, month),
				Principal:        mathutil.Round(principal),
				Interest:         mathutil.Round(interest),
				TotalPayment:     mathutil.Round(total),
				RemainingBalance: mathutil.ClampFloor(mathutil.Round(balance), 0),
				InterestRate:     rate,
			})
		}

		currentMonth = endMonth + 1
	}

	return schedule
}

// Summary reduces a schedule to its totals. Each total is an independently
// rounded sum of the already-rounded line items, so it may differ by a cent or
// two from a round-once-at-the-end figure.
type Summary struct {
	TotalPrincipal   float64 `json:"totalPrincipal"`
	TotalInterest    float64 `json:"totalInterest"`
	TotalPayments    float64 `json:"totalPayments"`
	NumberOfPayments int     `json:"numberOfPayments"`
}

// Summarize computes the totals for a schedule.
func Summarize(schedule []Payment) Summary {
	var principal, interest, payments float64
	for _, p := range schedule {
		principal += p.Principal
		interest += p.Interest
		payments += p.TotalPayment
	}
	return Summary{
		TotalPrincipal:   mathutil.Round(principal),
		TotalInterest:    mathutil.Round(interest),
		TotalPayments:    mathutil.Round(payments),
		NumberOfPayments: len(schedule),
	}
}
