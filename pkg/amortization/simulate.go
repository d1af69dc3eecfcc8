package amortization

import (
	"fmt"
	"math"

	"github.com/avidalv/mortgage-tracker/pkg/constants"
	"github.com/avidalv/mortgage-tracker/pkg/datetime"
	"github.com/avidalv/mortgage-tracker/pkg/mathutil"
	"github.com/avidalv/mortgage-tracker/pkg/mortgage"
	"go.uber.org/zap"
)

// Strategy selects how an extra payment reshapes the remaining schedule.
type Strategy string

const (
	// StrategyReducePayment keeps the remaining term and lowers the quota.
	StrategyReducePayment Strategy = constants.StrategyReducePayment
	// StrategyReduceTerm keeps the quota and shortens the remaining term.
	StrategyReduceTerm Strategy = constants.StrategyReduceTerm
)

// Valid reports whether s is one of the two supported strategies.
func (s Strategy) Valid() bool {
	return s == StrategyReducePayment || s == StrategyReduceTerm
}

// Simulation is the outcome of an early-payoff what-if: paired before/after
// totals plus the full replacement schedule (untouched prefix concatenated
// with the regenerated tail).
type Simulation struct {
	Strategy     Strategy `json:"strategy"`
	ExtraAmount  float64  `json:"extraPaymentAmount"`
	AfterPayment int      `json:"afterPaymentNumber"`

	OriginalTotalInterest     float64 `json:"originalTotalInterest"`
	NewTotalInterest          float64 `json:"newTotalInterest"`
	OriginalRemainingPayments int     `json:"originalRemainingPayments"`
	NewRemainingPayments      int     `json:"newRemainingPayments"`
	OriginalMonthlyPayment    float64 `json:"originalMonthlyPayment"`
	NewMonthlyPayment         float64 `json:"newMonthlyPayment"`

	InterestSaved float64 `json:"interestSaved"`
	MonthsSaved   int     `json:"monthsSaved"`

	Schedule []Payment `json:"schedule"`
}

// Simulate computes the effect of an extra principal payment of extraAmount
// applied immediately after payment number afterPayment (0 means before the
// first payment). The caller is responsible for rejecting non-positive
// amounts and for constraining afterPayment to sane bounds; an index beyond
// the actual schedule falls back to the full principal as the balance and to
// the first payment's quota, mirroring how the balance lookup degrades.
func (e *Engine) Simulate(m mortgage.Mortgage, conditions []mortgage.Condition, bonifications []mortgage.Bonification,
	extraAmount float64, afterPayment int, strategy Strategy) Simulation {

	baseline := e.BuildSchedule(m, conditions, bonifications)
	baseSummary := Summarize(baseline)

	// Balance the extra payment lands on.
	balanceBefore := m.TotalAmount
	if afterPayment > 0 && afterPayment <= len(baseline) {
		balanceBefore = baseline[afterPayment-1].RemainingBalance
	}

	newBalance := balanceBefore - extraAmount
	if newBalance < 0 {
		newBalance = 0
	}

	// Untouched prefix, copied verbatim.
	prefixLen := afterPayment
	if prefixLen > len(baseline) {
		prefixLen = len(baseline)
	}
	prefix := make([]Payment, prefixLen)
	copy(prefix, baseline[:prefixLen])

	interestToDate := 0.0
	for _, p := range prefix {
		interestToDate += p.Interest
	}

	originalRemaining := baseSummary.NumberOfPayments - prefixLen

	// The quota the baseline charged at the application point; falls back to
	// the first payment's quota when the index is out of range.
	chargeAt := 0.0
	if len(baseline) > 0 {
		chargeAt = baseline[0].TotalPayment
		if afterPayment >= 1 && afterPayment <= len(baseline) {
			chargeAt = baseline[afterPayment-1].TotalPayment
		}
	}

	sim := Simulation{
		Strategy:                  strategy,
		ExtraAmount:               extraAmount,
		AfterPayment:              afterPayment,
		OriginalTotalInterest:     baseSummary.TotalInterest,
		OriginalRemainingPayments: originalRemaining,
		OriginalMonthlyPayment:    chargeAt,
	}

	if newBalance <= 0 {
		// Full payoff: the loan terminates right after the prefix.
		e.logger.Debug(fmt.Sprintf("extra payment %.2f clears balance %.2f after payment %d",
			extraAmount, balanceBefore, afterPayment),
			zap.String("op", "amortization.Simulate"),
		)
		sim.NewTotalInterest = mathutil.Round(interestToDate)
		sim.NewRemainingPayments = 0
		sim.InterestSaved = mathutil.Round(baseSummary.TotalInterest - interestToDate)
		sim.MonthsSaved = originalRemaining
		sim.Schedule = prefix
		return sim
	}

	resolver := newRateResolver(m, conditions, bonifications)
	startMonth := afterPayment + 1
	rate := resolver.rateFor(startMonth)
	remainingTerm := m.TermMonths - afterPayment

	var fixedPayment float64
	var tailMonths int
	switch strategy {
	case StrategyReduceTerm:
		fixedPayment = chargeAt
		tailMonths = solveTermMonths(newBalance, fixedPayment, rate, remainingTerm)
	default:
		// reduce_payment: term stays, quota drops.
		fixedPayment = MonthlyPayment(newBalance, rate, remainingTerm)
		tailMonths = remainingTerm
	}

	e.logger.Debug(fmt.Sprintf("regenerating %d payments from month %d at %.3f%% against balance %.2f",
		tailMonths, startMonth, rate, newBalance),
		zap.String("op", "amortization.Simulate"),
	)

	tail := e.buildTail(m, resolver, newBalance, startMonth, tailMonths, fixedPayment, strategy)

	newSchedule := append(prefix, tail...)
	newSummary := Summarize(newSchedule)

	sim.NewTotalInterest = newSummary.TotalInterest
	sim.NewRemainingPayments = len(tail)
	if len(tail) > 0 {
		sim.NewMonthlyPayment = tail[0].TotalPayment
	}
	sim.InterestSaved = mathutil.Round(baseSummary.TotalInterest - newSummary.TotalInterest)
	sim.MonthsSaved = originalRemaining - len(tail)
	sim.Schedule = newSchedule
	return sim
}

// solveTermMonths inverts the annuity formula to find how many months are
// needed to retire balance at the given fixed payment and annual rate. When
// the payment cannot even cover one month's interest the original remaining
// term is kept unchanged rather than producing a nonsensical result.
func solveTermMonths(balance, payment, annualRate float64, remainingTerm int) int {
	if annualRate == 0 {
		if payment <= 0 {
			return remainingTerm
		}
		return int(math.Ceil(balance / payment))
	}
	r := monthlyRate(annualRate)
	if payment-balance*r <= 0 {
		return remainingTerm
	}
	return int(math.Ceil(math.Log(payment/(payment-balance*r)) / math.Log(1+r)))
}

// buildTail regenerates the schedule from startMonth onward. Under
// reduce_term the quota is recomputed every month from the live balance and
// remaining month count; under reduce_payment the precomputed fixed quota is
// reused throughout, even across condition boundaries.
func (e *Engine) buildTail(m mortgage.Mortgage, resolver rateResolver, balance float64,
	startMonth, months int, fixedPayment float64, strategy Strategy) []Payment {

	tail := make([]Payment, 0, months)
	monthsLeft := months

	for i := 0; i < months && balance > constants.BalanceEpsilon; i++ {
		month := startMonth + i
		rate := resolver.rateFor(month)

		payment := fixedPayment
		if strategy == StrategyReduceTerm {
			payment = MonthlyPayment(balance, rate, monthsLeft)
		}

		var interest, principal, total float64
		if rate == 0 {
			interest = 0
			principal = payment
			total = payment
		} else {
			interest = balance * monthlyRate(rate)
			principal = payment - interest
			total = payment
		}

		if principal > balance {
			principal = balance
			total = principal + interest
		}

		balance -= principal
		monthsLeft--

		tail = append(tail, Payment{
			Number:           month,
			Date:             datetime.PaymentDate(m.StartDate, month),
			Principal:        mathutil.Round(principal),
			Interest:         mathutil.Round(interest),
			TotalPayment:     mathutil.Round(total),
			RemainingBalance: mathutil.ClampFloor(mathutil.Round(balance), 0),
			InterestRate:     rate,
		})
	}

	return tail
}
