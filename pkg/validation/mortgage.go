package validation

import (
	"fmt"

	"github.com/avidalv/mortgage-tracker/pkg/mortgage"
)

// ValidateMortgage checks the contractual parameters of a mortgage.
func ValidateMortgage(m mortgage.Mortgage) error {
	if m.TotalAmount <= 0 {
		return fmt.Errorf("totalAmount must be positive, got %.2f", m.TotalAmount)
	}
	if m.TermMonths <= 0 {
		return fmt.Errorf("termMonths must be positive, got %d", m.TermMonths)
	}
	if m.InterestRate < 0 {
		return fmt.Errorf("interestRate must not be negative, got %.3f", m.InterestRate)
	}
	if m.StartDate.IsZero() {
		return fmt.Errorf("startDate is required")
	}
	return nil
}

// ValidateCondition checks a rate condition's month range.
func ValidateCondition(c mortgage.Condition) error {
	if c.StartMonth < 1 {
		return fmt.Errorf("startMonth must be at least 1, got %d", c.StartMonth)
	}
	if c.EndMonth < c.StartMonth {
		return fmt.Errorf("endMonth %d precedes startMonth %d", c.EndMonth, c.StartMonth)
	}
	if c.InterestRate != nil && *c.InterestRate < 0 {
		return fmt.Errorf("interestRate must not be negative, got %.3f", *c.InterestRate)
	}
	return nil
}

// ValidateShares checks that share percentages are sane individually and do
// not exceed 100 in total.
func ValidateShares(shares []mortgage.Share) []string {
	var warnings []string

	var total float64
	for _, s := range shares {
		if s.InitialSharePercentage < 0 || s.InitialSharePercentage > 100 {
			warnings = append(warnings, fmt.Sprintf("share for role %s has percentage %.2f outside 0-100",
				s.UserRole, s.InitialSharePercentage))
		}
		total += s.InitialSharePercentage
	}
	if total > 100.001 {
		warnings = append(warnings, fmt.Sprintf("share percentages sum to %.2f, exceeding 100", total))
	}

	return warnings
}
