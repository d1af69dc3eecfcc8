package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/avidalv/mortgage-tracker/pkg/constants"
	"github.com/avidalv/mortgage-tracker/pkg/mortgage"
)

// ShareStore is the share persistence surface the request workflow consumes.
type ShareStore interface {
	GetShare(ctx context.Context, id string) (*mortgage.Share, error)
	AddAmortizedAmount(ctx context.Context, shareID string, amount float64) error
}

// RequestStore is the amortization request persistence surface.
type RequestStore interface {
	Create(ctx context.Context, req *mortgage.AmortizationRequest) error
	GetByID(ctx context.Context, id string) (*mortgage.AmortizationRequest, error)
	ListByMortgage(ctx context.Context, mortgageID string, status mortgage.RequestStatus) ([]mortgage.AmortizationRequest, error)
	UpdateStatus(ctx context.Context, id string, status mortgage.RequestStatus, reviewedBy string) error
}

// RequestService runs the early payoff approval workflow: parties file
// requests bounded by their remaining share debt, and a reviewer approves or
// rejects them. Approval adds to the share's amortized total.
type RequestService struct {
	requests  RequestStore
	shares    ShareStore
	schedules *ScheduleService
	logger    *zap.Logger
}

// NewRequestService creates a request service. A nil logger is replaced with
// a no-op logger.
func NewRequestService(requests RequestStore, shares ShareStore, schedules *ScheduleService, logger *zap.Logger) *RequestService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RequestService{
		requests:  requests,
		shares:    shares,
		schedules: schedules,
		logger:    logger,
	}
}

// Create files a pending request. The amount must not exceed the requester's
// remaining debt at the current balance.
func (s *RequestService) Create(ctx context.Context, mortgageID, shareID string, amount float64, requestedBy string) (*mortgage.AmortizationRequest, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	share, err := s.shares.GetShare(ctx, shareID)
	if err != nil {
		return nil, fmt.Errorf("failed to load share: %w", err)
	}
	if share == nil {
		return nil, ErrShareNotFound
	}
	if share.MortgageID != mortgageID {
		return nil, fmt.Errorf("share %s does not belong to mortgage %s", shareID, mortgageID)
	}

	balance, err := s.schedules.CurrentBalance(ctx, mortgageID)
	if err != nil {
		return nil, err
	}
	debt := share.RemainingDebt(balance)
	if amount > debt+constants.CurrencyTolerance {
		return nil, fmt.Errorf("%w: requested %.2f, remaining %.2f", ErrExceedsShareDebt, amount, debt)
	}

	req := &mortgage.AmortizationRequest{
		MortgageID:  mortgageID,
		ShareID:     shareID,
		Amount:      amount,
		RequestedBy: requestedBy,
	}
	if err := s.requests.Create(ctx, req); err != nil {
		return nil, err
	}

	s.logger.Info("amortization request filed",
		zap.String("op", "service.RequestService.Create"),
		zap.String("mortgage_id", mortgageID),
		zap.String("share_id", shareID),
		zap.Float64("amount", amount))
	return req, nil
}

// List returns a mortgage's requests, optionally filtered by status.
func (s *RequestService) List(ctx context.Context, mortgageID string, status mortgage.RequestStatus) ([]mortgage.AmortizationRequest, error) {
	return s.requests.ListByMortgage(ctx, mortgageID, status)
}

// Approve marks a pending request approved, credits the share's amortized
// total, and invalidates the cached summary.
func (s *RequestService) Approve(ctx context.Context, requestID, reviewedBy string) (*mortgage.AmortizationRequest, error) {
	req, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, ErrRequestNotFound
	}

	if err := s.requests.UpdateStatus(ctx, requestID, mortgage.RequestApproved, reviewedBy); err != nil {
		return nil, err
	}
	if err := s.shares.AddAmortizedAmount(ctx, req.ShareID, req.Amount); err != nil {
		return nil, fmt.Errorf("failed to credit share: %w", err)
	}
	s.schedules.Invalidate(ctx, req.MortgageID)

	s.logger.Info("amortization request approved",
		zap.String("op", "service.RequestService.Approve"),
		zap.String("request_id", requestID),
		zap.String("reviewed_by", reviewedBy),
		zap.Float64("amount", req.Amount))

	return s.requests.GetByID(ctx, requestID)
}

// Reject marks a pending request rejected.
func (s *RequestService) Reject(ctx context.Context, requestID, reviewedBy string) (*mortgage.AmortizationRequest, error) {
	req, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, ErrRequestNotFound
	}

	if err := s.requests.UpdateStatus(ctx, requestID, mortgage.RequestRejected, reviewedBy); err != nil {
		return nil, err
	}

	s.logger.Info("amortization request rejected",
		zap.String("op", "service.RequestService.Reject"),
		zap.String("request_id", requestID),
		zap.String("reviewed_by", reviewedBy))

	return s.requests.GetByID(ctx, requestID)
}
