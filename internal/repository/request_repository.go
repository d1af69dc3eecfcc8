package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/avidalv/mortgage-tracker/pkg/mortgage"
)

// RequestRepository persists early-payoff amortization requests and their
// review state.
type RequestRepository struct {
	db queryable
}

// NewRequestRepository creates a new amortization request repository.
func NewRequestRepository(db queryable) *RequestRepository {
	return &RequestRepository{db: db}
}

// Create inserts a pending request and fills in the generated ID, status, and
// creation time.
func (r *RequestRepository) Create(ctx context.Context, req *mortgage.AmortizationRequest) error {
	query := `
		INSERT INTO amortization_requests (mortgage_id, share_id, amount, requested_by)
		VALUES ($1, $2, $3, $4)
		RETURNING id, status, created_at`

	err := r.db.QueryRow(ctx, query,
		req.MortgageID, req.ShareID, req.Amount, req.RequestedBy,
	).Scan(&req.ID, &req.Status, &req.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create amortization request: %w", err)
	}

	return nil
}

// GetByID retrieves a request by ID. Returns nil if not found.
func (r *RequestRepository) GetByID(ctx context.Context, id string) (*mortgage.AmortizationRequest, error) {
	query := `
		SELECT id, mortgage_id, share_id, amount, requested_by, status,
		       COALESCE(reviewed_by, ''), reviewed_at, created_at
		FROM amortization_requests
		WHERE id = $1`

	var req mortgage.AmortizationRequest
	err := r.db.QueryRow(ctx, query, id).Scan(
		&req.ID, &req.MortgageID, &req.ShareID, &req.Amount, &req.RequestedBy,
		&req.Status, &req.ReviewedBy, &req.ReviewedAt, &req.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get amortization request: %w", err)
	}

	return &req, nil
}

// ListByMortgage retrieves a mortgage's requests, newest first. An empty
// status lists all.
func (r *RequestRepository) ListByMortgage(ctx context.Context, mortgageID string, status mortgage.RequestStatus) ([]mortgage.AmortizationRequest, error) {
	query := `
		SELECT id, mortgage_id, share_id, amount, requested_by, status,
		       COALESCE(reviewed_by, ''), reviewed_at, created_at
		FROM amortization_requests
		WHERE mortgage_id = $1 AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, query, mortgageID, string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to list amortization requests: %w", err)
	}
	defer rows.Close()

	var requests []mortgage.AmortizationRequest
	for rows.Next() {
		var req mortgage.AmortizationRequest
		err := rows.Scan(
			&req.ID, &req.MortgageID, &req.ShareID, &req.Amount, &req.RequestedBy,
			&req.Status, &req.ReviewedBy, &req.ReviewedAt, &req.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan amortization request: %w", err)
		}
		requests = append(requests, req)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate amortization requests: %w", err)
	}

	return requests, nil
}

// UpdateStatus stamps a request with its review outcome and reviewer. Only
// pending requests can transition.
func (r *RequestRepository) UpdateStatus(ctx context.Context, id string, status mortgage.RequestStatus, reviewedBy string) error {
	query := `
		UPDATE amortization_requests
		SET status = $2, reviewed_by = $3, reviewed_at = now()
		WHERE id = $1 AND status = 'pending'`

	tag, err := r.db.Exec(ctx, query, id, string(status), reviewedBy)
	if err != nil {
		return fmt.Errorf("failed to update amortization request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("amortization request %s not found or already reviewed", id)
	}

	return nil
}
