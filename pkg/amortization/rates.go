package amortization

import (
	"sort"

	"github.com/avidalv/mortgage-tracker/pkg/constants"
	"github.com/avidalv/mortgage-tracker/pkg/mortgage"
)

// TotalBonification sums the rate reductions of all active bonifications.
func TotalBonification(bonifications []mortgage.Bonification) float64 {
	total := 0.0
	for _, b := range bonifications {
		if b.Active {
			total += b.RateReduction
		}
	}
	return total
}

// rateResolver answers which effective annual rate applies to a given month:
// the first matching condition's rate (in ascending start-month order), else
// the mortgage's nominal rate, minus the total bonification, floored at 0.
type rateResolver struct {
	baseRate   float64
	conditions []mortgage.Condition
	totalBonus float64
}

func newRateResolver(m mortgage.Mortgage, conditions []mortgage.Condition, bonifications []mortgage.Bonification) rateResolver {
	// Conditions with a null rate are ignored entirely.
	kept := make([]mortgage.Condition, 0, len(conditions))
	for _, c := range conditions {
		if c.InterestRate != nil {
			kept = append(kept, c)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].StartMonth < kept[j].StartMonth
	})

	return rateResolver{
		baseRate:   m.InterestRate,
		conditions: kept,
		totalBonus: TotalBonification(bonifications),
	}
}

// rateFor returns the effective annual rate in percent for a 1-indexed month.
// Overlapping conditions resolve to the first match in sorted order.
func (r rateResolver) rateFor(month int) float64 {
	rate := r.baseRate
	for _, c := range r.conditions {
		if c.Covers(month) {
			rate = *c.InterestRate
			break
		}
	}
	rate -= r.totalBonus
	if rate < 0 {
		return 0
	}
	return rate
}

// monthlyRate converts an annual percent rate to a monthly fraction.
func monthlyRate(annualRate float64) float64 {
	return annualRate / constants.PercentageMultiplier / constants.MonthsPerYear
}
