// Package mortgage defines the domain entities tracked by the application: the
// mortgage itself, its rate-modifying conditions and bonifications, ownership
// shares, recorded payments, and early-payoff amortization requests.
package mortgage

import "time"

// Mortgage holds the contractual parameters of a loan. It is immutable from
// the engine's point of view; only the management layer mutates it.
type Mortgage struct {
	ID string `json:"id"`
	// TotalAmount is the borrowed principal.
	TotalAmount float64 `json:"totalAmount"`
	// InterestRate is the nominal annual rate in percent. It applies to any
	// month not covered by a condition.
	InterestRate float64   `json:"interestRate"`
	StartDate    time.Time `json:"startDate"`
	TermMonths   int       `json:"termMonths"`
	// MonthlyPayment is the precomputed baseline quota. Informational only;
	// the engine recomputes payments per rate period.
	MonthlyPayment float64 `json:"monthlyPayment"`
	Name           string  `json:"name,omitempty"`
}

// Condition overrides the mortgage's nominal rate for a closed, 1-indexed,
// inclusive range of months. A nil InterestRate disables the condition.
type Condition struct {
	ID         string `json:"id,omitempty"`
	MortgageID string `json:"mortgageId,omitempty"`
	// Type tags the condition kind (fixed_period, euribor_review, grace_period...).
	Type         string   `json:"type,omitempty"`
	StartMonth   int      `json:"startMonth"`
	EndMonth     int      `json:"endMonth"`
	InterestRate *float64 `json:"interestRate"`
}

// Covers reports whether the condition's month range contains the given
// 1-indexed month.
func (c Condition) Covers(month int) bool {
	return month >= c.StartMonth && month <= c.EndMonth
}

// Bonification is a standing annual-rate reduction contingent on ancillary
// products (payroll deposit, insurance...). Only active bonifications count.
type Bonification struct {
	ID         string `json:"id,omitempty"`
	MortgageID string `json:"mortgageId,omitempty"`
	// Type tags the product backing the discount (payroll, home_insurance...).
	Type          string  `json:"type,omitempty"`
	RateReduction float64 `json:"rateReduction"`
	Active        bool    `json:"active"`
}

// Role identifies a party's side of the mortgage.
type Role string

const (
	RoleLender   Role = "lender"
	RoleBorrower Role = "borrower"
)

// Share is a party's proportional stake in the mortgage's principal, used to
// apportion early-payoff impact per party.
type Share struct {
	ID         string `json:"id"`
	MortgageID string `json:"mortgageId"`
	UserRole   Role   `json:"userRole"`
	// InitialSharePercentage of the principal this party owes, 0-100.
	InitialSharePercentage float64 `json:"initialSharePercentage"`
	// InitialShareAmount is the party's slice of the principal at signing.
	InitialShareAmount float64 `json:"initialShareAmount"`
	// AmortizedAmount is the sum of approved early payoffs made by this party.
	AmortizedAmount float64 `json:"amortizedAmount"`
}

// RemainingDebt apportions the mortgage's remaining balance to this share and
// subtracts what the party has already amortized, floored at 0.
func (s Share) RemainingDebt(remainingBalance float64) float64 {
	debt := remainingBalance*s.InitialSharePercentage/100 - s.AmortizedAmount
	if debt < 0 {
		return 0
	}
	return debt
}

// PaymentRecord is a real payment registered against the mortgage, as opposed
// to the computed schedule lines produced by the amortization engine.
type PaymentRecord struct {
	ID         string    `json:"id"`
	MortgageID string    `json:"mortgageId"`
	Amount     float64   `json:"amount"`
	PaidAt     time.Time `json:"paidAt"`
	PaidBy     string    `json:"paidBy"`
	Notes      string    `json:"notes,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// RequestStatus is the review state of an amortization request.
type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestApproved RequestStatus = "approved"
	RequestRejected RequestStatus = "rejected"
)

// AmortizationRequest is a party's petition to make an out-of-schedule extra
// principal payment. It is recorded pending and later approved or rejected.
type AmortizationRequest struct {
	ID          string        `json:"id"`
	MortgageID  string        `json:"mortgageId"`
	ShareID     string        `json:"shareId"`
	Amount      float64       `json:"amount"`
	RequestedBy string        `json:"requestedBy"`
	Status      RequestStatus `json:"status"`
	ReviewedBy  string        `json:"reviewedBy,omitempty"`
	ReviewedAt  *time.Time    `json:"reviewedAt,omitempty"`
	CreatedAt   time.Time     `json:"createdAt"`
}
