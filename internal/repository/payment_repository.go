package repository

import (
	"context"
	"fmt"

	"github.com/avidalv/mortgage-tracker/pkg/mortgage"
)

// PaymentRepository persists real payments registered against a mortgage.
type PaymentRepository struct {
	db queryable
}

// NewPaymentRepository creates a new payment repository.
func NewPaymentRepository(db queryable) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// Create inserts a payment record and fills in the generated ID and creation
// time.
func (r *PaymentRepository) Create(ctx context.Context, p *mortgage.PaymentRecord) error {
	query := `
		INSERT INTO payments (mortgage_id, amount, paid_at, paid_by, notes)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`

	err := r.db.QueryRow(ctx, query,
		p.MortgageID, p.Amount, p.PaidAt, p.PaidBy, p.Notes,
	).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}

	return nil
}

// ListByMortgage retrieves all payments of a mortgage ordered by payment date.
func (r *PaymentRepository) ListByMortgage(ctx context.Context, mortgageID string) ([]mortgage.PaymentRecord, error) {
	query := `
		SELECT id, mortgage_id, amount, paid_at, paid_by, notes, created_at
		FROM payments
		WHERE mortgage_id = $1
		ORDER BY paid_at`

	rows, err := r.db.Query(ctx, query, mortgageID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	defer rows.Close()

	var payments []mortgage.PaymentRecord
	for rows.Next() {
		var p mortgage.PaymentRecord
		if err := rows.Scan(&p.ID, &p.MortgageID, &p.Amount, &p.PaidAt, &p.PaidBy, &p.Notes, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		payments = append(payments, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate payments: %w", err)
	}

	return payments, nil
}
