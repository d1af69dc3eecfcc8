// Package service coordinates the amortization engine, the repositories, and
// the cache. It owns input validation; the engine computes whatever it is
// given.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/avidalv/mortgage-tracker/internal/cache"
	"github.com/avidalv/mortgage-tracker/pkg/amortization"
	"github.com/avidalv/mortgage-tracker/pkg/mortgage"
)

var (
	ErrMortgageNotFound = errors.New("mortgage not found")
	ErrShareNotFound    = errors.New("share not found")
	ErrRequestNotFound  = errors.New("amortization request not found")
	ErrInvalidAmount    = errors.New("amount must be positive")
	ErrInvalidStrategy  = errors.New("unknown early payoff strategy")
	ErrExceedsShareDebt = errors.New("amount exceeds the share's remaining debt")
)

// summaryTTL bounds staleness if an invalidation is ever missed.
const summaryTTL = 24 * time.Hour

// MortgageStore is the mortgage persistence surface the services consume.
type MortgageStore interface {
	GetByID(ctx context.Context, id string) (*mortgage.Mortgage, error)
	List(ctx context.Context) ([]mortgage.Mortgage, error)
	GetConditions(ctx context.Context, mortgageID string) ([]mortgage.Condition, error)
	GetBonifications(ctx context.Context, mortgageID string) ([]mortgage.Bonification, error)
	GetShares(ctx context.Context, mortgageID string) ([]mortgage.Share, error)
}

// Aggregate is a mortgage with everything the engine needs loaded.
type Aggregate struct {
	Mortgage      mortgage.Mortgage       `json:"mortgage"`
	Conditions    []mortgage.Condition    `json:"conditions"`
	Bonifications []mortgage.Bonification `json:"bonifications"`
	Shares        []mortgage.Share        `json:"shares"`
}

// ShareDebt pairs a share with its remaining debt at the current balance.
type ShareDebt struct {
	Share         mortgage.Share `json:"share"`
	RemainingDebt float64        `json:"remainingDebt"`
}

// ScheduleService builds schedules and simulations for stored mortgages and
// memoizes summaries.
type ScheduleService struct {
	store  MortgageStore
	cache  cache.Cache
	engine *amortization.Engine
	logger *zap.Logger
	now    func() time.Time
}

// NewScheduleService creates a schedule service. A nil logger is replaced
// with a no-op logger.
func NewScheduleService(store MortgageStore, c cache.Cache, logger *zap.Logger) *ScheduleService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScheduleService{
		store:  store,
		cache:  c,
		engine: amortization.New(logger),
		logger: logger,
		now:    time.Now,
	}
}

// ListMortgages returns all stored mortgages.
func (s *ScheduleService) ListMortgages(ctx context.Context) ([]mortgage.Mortgage, error) {
	return s.store.List(ctx)
}

// Aggregate loads a mortgage with its conditions, bonifications, and shares.
func (s *ScheduleService) Aggregate(ctx context.Context, mortgageID string) (*Aggregate, error) {
	m, err := s.store.GetByID(ctx, mortgageID)
	if err != nil {
		return nil, fmt.Errorf("failed to load mortgage: %w", err)
	}
	if m == nil {
		return nil, ErrMortgageNotFound
	}

	conditions, err := s.store.GetConditions(ctx, mortgageID)
	if err != nil {
		return nil, fmt.Errorf("failed to load conditions: %w", err)
	}
	bonifications, err := s.store.GetBonifications(ctx, mortgageID)
	if err != nil {
		return nil, fmt.Errorf("failed to load bonifications: %w", err)
	}
	shares, err := s.store.GetShares(ctx, mortgageID)
	if err != nil {
		return nil, fmt.Errorf("failed to load shares: %w", err)
	}

	return &Aggregate{
		Mortgage:      *m,
		Conditions:    conditions,
		Bonifications: bonifications,
		Shares:        shares,
	}, nil
}

// Schedule builds the full amortization schedule and its summary.
func (s *ScheduleService) Schedule(ctx context.Context, mortgageID string) ([]amortization.Payment, amortization.Summary, error) {
	agg, err := s.Aggregate(ctx, mortgageID)
	if err != nil {
		return nil, amortization.Summary{}, err
	}

	schedule := s.engine.BuildSchedule(agg.Mortgage, agg.Conditions, agg.Bonifications)
	summary := amortization.Summarize(schedule)

	if payload, err := json.Marshal(summary); err == nil {
		if err := s.cache.Set(ctx, summaryKey(mortgageID), string(payload), summaryTTL); err != nil {
			s.logger.Warn("failed to cache summary",
				zap.String("op", "service.ScheduleService.Schedule"),
				zap.String("mortgage_id", mortgageID),
				zap.Error(err))
		}
	}

	return schedule, summary, nil
}

// Summary returns the schedule summary, served from cache when possible.
func (s *ScheduleService) Summary(ctx context.Context, mortgageID string) (amortization.Summary, error) {
	if payload, ok := s.cache.Get(ctx, summaryKey(mortgageID)); ok {
		var summary amortization.Summary
		if err := json.Unmarshal([]byte(payload), &summary); err == nil {
			return summary, nil
		}
		s.logger.Warn("discarding unreadable cached summary",
			zap.String("op", "service.ScheduleService.Summary"),
			zap.String("mortgage_id", mortgageID))
	}

	_, summary, err := s.Schedule(ctx, mortgageID)
	return summary, err
}

// Simulate runs an early payoff simulation for a stored mortgage.
func (s *ScheduleService) Simulate(ctx context.Context, mortgageID string, extraAmount float64, afterPayment int, strategy amortization.Strategy) (*amortization.Simulation, error) {
	if extraAmount <= 0 {
		return nil, ErrInvalidAmount
	}
	if afterPayment < 0 {
		return nil, fmt.Errorf("afterPayment must not be negative")
	}
	if !strategy.Valid() {
		return nil, ErrInvalidStrategy
	}

	agg, err := s.Aggregate(ctx, mortgageID)
	if err != nil {
		return nil, err
	}

	sim := s.engine.Simulate(agg.Mortgage, agg.Conditions, agg.Bonifications, extraAmount, afterPayment, strategy)
	return &sim, nil
}

// CurrentBalance returns the remaining balance after the payments that have
// come due by now.
func (s *ScheduleService) CurrentBalance(ctx context.Context, mortgageID string) (float64, error) {
	agg, err := s.Aggregate(ctx, mortgageID)
	if err != nil {
		return 0, err
	}
	return s.currentBalance(agg), nil
}

// ShareDebts returns each party's remaining debt against the current balance.
func (s *ScheduleService) ShareDebts(ctx context.Context, mortgageID string) ([]ShareDebt, error) {
	agg, err := s.Aggregate(ctx, mortgageID)
	if err != nil {
		return nil, err
	}

	balance := s.currentBalance(agg)
	debts := make([]ShareDebt, 0, len(agg.Shares))
	for _, share := range agg.Shares {
		debts = append(debts, ShareDebt{
			Share:         share,
			RemainingDebt: share.RemainingDebt(balance),
		})
	}
	return debts, nil
}

// Invalidate drops the cached summary after a write.
func (s *ScheduleService) Invalidate(ctx context.Context, mortgageID string) {
	if err := s.cache.Delete(ctx, summaryKey(mortgageID)); err != nil {
		s.logger.Warn("failed to invalidate cached summary",
			zap.String("op", "service.ScheduleService.Invalidate"),
			zap.String("mortgage_id", mortgageID),
			zap.Error(err))
	}
}

func (s *ScheduleService) currentBalance(agg *Aggregate) float64 {
	schedule := s.engine.BuildSchedule(agg.Mortgage, agg.Conditions, agg.Bonifications)
	elapsed := elapsedPayments(agg.Mortgage.StartDate, s.now())
	if elapsed <= 0 {
		return agg.Mortgage.TotalAmount
	}
	if elapsed > len(schedule) {
		elapsed = len(schedule)
	}
	if elapsed == 0 {
		return agg.Mortgage.TotalAmount
	}
	return schedule[elapsed-1].RemainingBalance
}

// elapsedPayments counts schedule lines whose due date is not after now. The
// first payment is due on the start date itself.
func elapsedPayments(startDate, now time.Time) int {
	if now.Before(startDate) {
		return 0
	}
	months := (now.Year()-startDate.Year())*12 + int(now.Month()) - int(startDate.Month())
	if now.Day() < startDate.Day() {
		months--
	}
	return months + 1
}

func summaryKey(mortgageID string) string {
	return "summary:" + mortgageID
}
