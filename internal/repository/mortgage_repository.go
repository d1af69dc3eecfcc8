package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/avidalv/mortgage-tracker/pkg/mortgage"
)

// MortgageRepository persists mortgages together with their rate conditions,
// bonifications, and ownership shares.
type MortgageRepository struct {
	db queryable
}

// NewMortgageRepository creates a new mortgage repository.
func NewMortgageRepository(db queryable) *MortgageRepository {
	return &MortgageRepository{db: db}
}

// Create inserts a new mortgage and fills in the generated ID.
func (r *MortgageRepository) Create(ctx context.Context, m *mortgage.Mortgage) error {
	query := `
		INSERT INTO mortgages (name, total_amount, interest_rate, start_date, term_months, monthly_payment)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`

	err := r.db.QueryRow(ctx, query,
		m.Name, m.TotalAmount, m.InterestRate, m.StartDate, m.TermMonths, m.MonthlyPayment,
	).Scan(&m.ID)
	if err != nil {
		return fmt.Errorf("failed to create mortgage: %w", err)
	}

	return nil
}

// GetByID retrieves a mortgage by ID. Returns nil if not found.
func (r *MortgageRepository) GetByID(ctx context.Context, id string) (*mortgage.Mortgage, error) {
	query := `
		SELECT id, name, total_amount, interest_rate, start_date, term_months, monthly_payment
		FROM mortgages
		WHERE id = $1`

	var m mortgage.Mortgage
	err := r.db.QueryRow(ctx, query, id).Scan(
		&m.ID, &m.Name, &m.TotalAmount, &m.InterestRate, &m.StartDate, &m.TermMonths, &m.MonthlyPayment,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get mortgage: %w", err)
	}

	return &m, nil
}

// List retrieves all mortgages ordered by creation time.
func (r *MortgageRepository) List(ctx context.Context) ([]mortgage.Mortgage, error) {
	query := `
		SELECT id, name, total_amount, interest_rate, start_date, term_months, monthly_payment
		FROM mortgages
		ORDER BY created_at`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list mortgages: %w", err)
	}
	defer rows.Close()

	var mortgages []mortgage.Mortgage
	for rows.Next() {
		var m mortgage.Mortgage
		if err := rows.Scan(&m.ID, &m.Name, &m.TotalAmount, &m.InterestRate, &m.StartDate, &m.TermMonths, &m.MonthlyPayment); err != nil {
			return nil, fmt.Errorf("failed to scan mortgage: %w", err)
		}
		mortgages = append(mortgages, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate mortgages: %w", err)
	}

	return mortgages, nil
}

// CreateCondition inserts a rate condition for a mortgage.
func (r *MortgageRepository) CreateCondition(ctx context.Context, c *mortgage.Condition) error {
	query := `
		INSERT INTO mortgage_conditions (mortgage_id, condition_type, start_month, end_month, interest_rate)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`

	err := r.db.QueryRow(ctx, query,
		c.MortgageID, c.Type, c.StartMonth, c.EndMonth, c.InterestRate,
	).Scan(&c.ID)
	if err != nil {
		return fmt.Errorf("failed to create condition: %w", err)
	}

	return nil
}

// GetConditions retrieves all rate conditions of a mortgage ordered by start
// month.
func (r *MortgageRepository) GetConditions(ctx context.Context, mortgageID string) ([]mortgage.Condition, error) {
	query := `
		SELECT id, mortgage_id, condition_type, start_month, end_month, interest_rate
		FROM mortgage_conditions
		WHERE mortgage_id = $1
		ORDER BY start_month`

	rows, err := r.db.Query(ctx, query, mortgageID)
	if err != nil {
		return nil, fmt.Errorf("failed to get conditions: %w", err)
	}
	defer rows.Close()

	var conditions []mortgage.Condition
	for rows.Next() {
		var c mortgage.Condition
		if err := rows.Scan(&c.ID, &c.MortgageID, &c.Type, &c.StartMonth, &c.EndMonth, &c.InterestRate); err != nil {
			return nil, fmt.Errorf("failed to scan condition: %w", err)
		}
		conditions = append(conditions, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate conditions: %w", err)
	}

	return conditions, nil
}

// CreateBonification inserts a bonification for a mortgage.
func (r *MortgageRepository) CreateBonification(ctx context.Context, b *mortgage.Bonification) error {
	query := `
		INSERT INTO mortgage_bonifications (mortgage_id, bonification_type, rate_reduction, is_active)
		VALUES ($1, $2, $3, $4)
		RETURNING id`

	err := r.db.QueryRow(ctx, query,
		b.MortgageID, b.Type, b.RateReduction, b.Active,
	).Scan(&b.ID)
	if err != nil {
		return fmt.Errorf("failed to create bonification: %w", err)
	}

	return nil
}

// GetBonifications retrieves all bonifications of a mortgage.
func (r *MortgageRepository) GetBonifications(ctx context.Context, mortgageID string) ([]mortgage.Bonification, error) {
	query := `
		SELECT id, mortgage_id, bonification_type, rate_reduction, is_active
		FROM mortgage_bonifications
		WHERE mortgage_id = $1
		ORDER BY created_at`

	rows, err := r.db.Query(ctx, query, mortgageID)
	if err != nil {
		return nil, fmt.Errorf("failed to get bonifications: %w", err)
	}
	defer rows.Close()

	var bonifications []mortgage.Bonification
	for rows.Next() {
		var b mortgage.Bonification
		if err := rows.Scan(&b.ID, &b.MortgageID, &b.Type, &b.RateReduction, &b.Active); err != nil {
			return nil, fmt.Errorf("failed to scan bonification: %w", err)
		}
		bonifications = append(bonifications, b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate bonifications: %w", err)
	}

	return bonifications, nil
}

// SetBonificationActive toggles a bonification on or off.
func (r *MortgageRepository) SetBonificationActive(ctx context.Context, id string, active bool) error {
	query := `UPDATE mortgage_bonifications SET is_active = $2 WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, id, active)
	if err != nil {
		return fmt.Errorf("failed to update bonification: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("bonification %s not found", id)
	}

	return nil
}

// CreateShare inserts an ownership share for a mortgage.
func (r *MortgageRepository) CreateShare(ctx context.Context, s *mortgage.Share) error {
	query := `
		INSERT INTO mortgage_shares (mortgage_id, user_role, initial_share_percentage, initial_share_amount, amortized_amount)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`

	err := r.db.QueryRow(ctx, query,
		s.MortgageID, s.UserRole, s.InitialSharePercentage, s.InitialShareAmount, s.AmortizedAmount,
	).Scan(&s.ID)
	if err != nil {
		return fmt.Errorf("failed to create share: %w", err)
	}

	return nil
}

// GetShare retrieves a share by ID. Returns nil if not found.
func (r *MortgageRepository) GetShare(ctx context.Context, id string) (*mortgage.Share, error) {
	query := `
		SELECT id, mortgage_id, user_role, initial_share_percentage, initial_share_amount, amortized_amount
		FROM mortgage_shares
		WHERE id = $1`

	var s mortgage.Share
	err := r.db.QueryRow(ctx, query, id).Scan(
		&s.ID, &s.MortgageID, &s.UserRole, &s.InitialSharePercentage, &s.InitialShareAmount, &s.AmortizedAmount,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get share: %w", err)
	}

	return &s, nil
}

// GetShares retrieves all ownership shares of a mortgage.
func (r *MortgageRepository) GetShares(ctx context.Context, mortgageID string) ([]mortgage.Share, error) {
	query := `
		SELECT id, mortgage_id, user_role, initial_share_percentage, initial_share_amount, amortized_amount
		FROM mortgage_shares
		WHERE mortgage_id = $1
		ORDER BY user_role`

	rows, err := r.db.Query(ctx, query, mortgageID)
	if err != nil {
		return nil, fmt.Errorf("failed to get shares: %w", err)
	}
	defer rows.Close()

	var shares []mortgage.Share
	for rows.Next() {
		var s mortgage.Share
		if err := rows.Scan(&s.ID, &s.MortgageID, &s.UserRole, &s.InitialSharePercentage, &s.InitialShareAmount, &s.AmortizedAmount); err != nil {
			return nil, fmt.Errorf("failed to scan share: %w", err)
		}
		shares = append(shares, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate shares: %w", err)
	}

	return shares, nil
}

// AddAmortizedAmount adds an approved early payoff to the share's running
// total.
func (r *MortgageRepository) AddAmortizedAmount(ctx context.Context, shareID string, amount float64) error {
	query := `UPDATE mortgage_shares SET amortized_amount = amortized_amount + $2 WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, shareID, amount)
	if err != nil {
		return fmt.Errorf("failed to update share amortized amount: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("share %s not found", shareID)
	}

	return nil
}
