package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avidalv/mortgage-tracker/internal/cache"
	"github.com/avidalv/mortgage-tracker/pkg/amortization"
	"github.com/avidalv/mortgage-tracker/pkg/mortgage"
)

type fakeMortgageStore struct {
	mortgages     map[string]mortgage.Mortgage
	conditions    map[string][]mortgage.Condition
	bonifications map[string][]mortgage.Bonification
	shares        map[string]mortgage.Share
	getByIDCalls  int
}

func newFakeMortgageStore() *fakeMortgageStore {
	return &fakeMortgageStore{
		mortgages:     make(map[string]mortgage.Mortgage),
		conditions:    make(map[string][]mortgage.Condition),
		bonifications: make(map[string][]mortgage.Bonification),
		shares:        make(map[string]mortgage.Share),
	}
}

func (f *fakeMortgageStore) GetByID(_ context.Context, id string) (*mortgage.Mortgage, error) {
	f.getByIDCalls++
	m, ok := f.mortgages[id]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

func (f *fakeMortgageStore) List(_ context.Context) ([]mortgage.Mortgage, error) {
	var out []mortgage.Mortgage
	for _, m := range f.mortgages {
		out = append(out, m)
	}
	return out, nil
}

func (f *fakeMortgageStore) GetConditions(_ context.Context, id string) ([]mortgage.Condition, error) {
	return f.conditions[id], nil
}

func (f *fakeMortgageStore) GetBonifications(_ context.Context, id string) ([]mortgage.Bonification, error) {
	return f.bonifications[id], nil
}

func (f *fakeMortgageStore) GetShares(_ context.Context, id string) ([]mortgage.Share, error) {
	var out []mortgage.Share
	for _, s := range f.shares {
		if s.MortgageID == id {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeMortgageStore) GetShare(_ context.Context, id string) (*mortgage.Share, error) {
	s, ok := f.shares[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (f *fakeMortgageStore) AddAmortizedAmount(_ context.Context, shareID string, amount float64) error {
	s, ok := f.shares[shareID]
	if !ok {
		return fmt.Errorf("share %s not found", shareID)
	}
	s.AmortizedAmount += amount
	f.shares[shareID] = s
	return nil
}

type fakeRequestStore struct {
	requests map[string]mortgage.AmortizationRequest
	nextID   int
}

func newFakeRequestStore() *fakeRequestStore {
	return &fakeRequestStore{requests: make(map[string]mortgage.AmortizationRequest)}
}

func (f *fakeRequestStore) Create(_ context.Context, req *mortgage.AmortizationRequest) error {
	f.nextID++
	req.ID = fmt.Sprintf("req-%d", f.nextID)
	req.Status = mortgage.RequestPending
	req.CreatedAt = time.Now()
	f.requests[req.ID] = *req
	return nil
}

func (f *fakeRequestStore) GetByID(_ context.Context, id string) (*mortgage.AmortizationRequest, error) {
	req, ok := f.requests[id]
	if !ok {
		return nil, nil
	}
	return &req, nil
}

func (f *fakeRequestStore) ListByMortgage(_ context.Context, mortgageID string, status mortgage.RequestStatus) ([]mortgage.AmortizationRequest, error) {
	var out []mortgage.AmortizationRequest
	for _, req := range f.requests {
		if req.MortgageID == mortgageID && (status == "" || req.Status == status) {
			out = append(out, req)
		}
	}
	return out, nil
}

func (f *fakeRequestStore) UpdateStatus(_ context.Context, id string, status mortgage.RequestStatus, reviewedBy string) error {
	req, ok := f.requests[id]
	if !ok || req.Status != mortgage.RequestPending {
		return fmt.Errorf("amortization request %s not found or already reviewed", id)
	}
	now := time.Now()
	req.Status = status
	req.ReviewedBy = reviewedBy
	req.ReviewedAt = &now
	f.requests[id] = req
	return nil
}

func seedMortgage(store *fakeMortgageStore) mortgage.Mortgage {
	m := mortgage.Mortgage{
		ID:           "m1",
		Name:         "Main residence",
		TotalAmount:  150000,
		InterestRate: 3.5,
		StartDate:    time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC),
		TermMonths:   360,
	}
	store.mortgages[m.ID] = m
	store.shares["s-lender"] = mortgage.Share{
		ID: "s-lender", MortgageID: "m1", UserRole: mortgage.RoleLender,
		InitialSharePercentage: 40, InitialShareAmount: 60000,
	}
	store.shares["s-borrower"] = mortgage.Share{
		ID: "s-borrower", MortgageID: "m1", UserRole: mortgage.RoleBorrower,
		InitialSharePercentage: 60, InitialShareAmount: 90000,
	}
	return m
}

func newTestScheduleService(store *fakeMortgageStore) *ScheduleService {
	svc := NewScheduleService(store, cache.NewMemoryCache(), nil)
	// Pin "now" to the day before the first payment so the current balance is
	// the full principal.
	svc.now = func() time.Time {
		return time.Date(2024, time.January, 14, 0, 0, 0, 0, time.UTC)
	}
	return svc
}

func TestScheduleServiceSchedule(t *testing.T) {
	store := newFakeMortgageStore()
	seedMortgage(store)
	svc := newTestScheduleService(store)

	schedule, summary, err := svc.Schedule(context.Background(), "m1")
	require.NoError(t, err)
	assert.Len(t, schedule, 360)
	assert.Equal(t, 360, summary.NumberOfPayments)
	assert.InDelta(t, 150000, summary.TotalPrincipal, 0.10)
}

func TestScheduleServiceSummaryUsesCache(t *testing.T) {
	store := newFakeMortgageStore()
	seedMortgage(store)
	svc := newTestScheduleService(store)
	ctx := context.Background()

	_, built, err := svc.Schedule(ctx, "m1")
	require.NoError(t, err)
	callsAfterBuild := store.getByIDCalls

	cached, err := svc.Summary(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, built, cached)
	assert.Equal(t, callsAfterBuild, store.getByIDCalls, "cached summary should not hit the store")

	svc.Invalidate(ctx, "m1")
	_, err = svc.Summary(ctx, "m1")
	require.NoError(t, err)
	assert.Greater(t, store.getByIDCalls, callsAfterBuild, "invalidation should force a rebuild")
}

func TestScheduleServiceNotFound(t *testing.T) {
	svc := newTestScheduleService(newFakeMortgageStore())

	_, err := svc.Aggregate(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrMortgageNotFound)
}

func TestScheduleServiceSimulateValidation(t *testing.T) {
	store := newFakeMortgageStore()
	seedMortgage(store)
	svc := newTestScheduleService(store)
	ctx := context.Background()

	_, err := svc.Simulate(ctx, "m1", 0, 60, amortization.StrategyReducePayment)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = svc.Simulate(ctx, "m1", 10000, 60, amortization.Strategy("balloon"))
	assert.ErrorIs(t, err, ErrInvalidStrategy)

	_, err = svc.Simulate(ctx, "m1", 10000, -1, amortization.StrategyReducePayment)
	assert.Error(t, err)

	sim, err := svc.Simulate(ctx, "m1", 10000, 60, amortization.StrategyReduceTerm)
	require.NoError(t, err)
	assert.Less(t, sim.NewTotalInterest, sim.OriginalTotalInterest)
}

func TestScheduleServiceShareDebts(t *testing.T) {
	store := newFakeMortgageStore()
	seedMortgage(store)
	svc := newTestScheduleService(store)

	debts, err := svc.ShareDebts(context.Background(), "m1")
	require.NoError(t, err)
	require.Len(t, debts, 2)

	byRole := make(map[mortgage.Role]float64)
	for _, d := range debts {
		byRole[d.Share.UserRole] = d.RemainingDebt
	}
	assert.InDelta(t, 60000, byRole[mortgage.RoleLender], 0.01)
	assert.InDelta(t, 90000, byRole[mortgage.RoleBorrower], 0.01)
}

func TestElapsedPayments(t *testing.T) {
	start := time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		name string
		now  time.Time
		want int
	}{
		{"before start", time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC), 0},
		{"on start date", start, 1},
		{"day before second payment", time.Date(2024, time.February, 14, 0, 0, 0, 0, time.UTC), 1},
		{"on second payment", time.Date(2024, time.February, 15, 0, 0, 0, 0, time.UTC), 2},
		{"one year in", time.Date(2025, time.January, 15, 0, 0, 0, 0, time.UTC), 13},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, elapsedPayments(start, tc.now))
		})
	}
}

func TestRequestServiceCreate(t *testing.T) {
	store := newFakeMortgageStore()
	seedMortgage(store)
	schedules := newTestScheduleService(store)
	requests := newFakeRequestStore()
	svc := NewRequestService(requests, store, schedules, nil)
	ctx := context.Background()

	req, err := svc.Create(ctx, "m1", "s-lender", 20000, "lender@example.com")
	require.NoError(t, err)
	assert.Equal(t, mortgage.RequestPending, req.Status)
	assert.NotEmpty(t, req.ID)

	listed, err := svc.List(ctx, "m1", mortgage.RequestPending)
	require.NoError(t, err)
	assert.Len(t, listed, 1)
}

func TestRequestServiceCreateRejectsInvalid(t *testing.T) {
	store := newFakeMortgageStore()
	seedMortgage(store)
	schedules := newTestScheduleService(store)
	svc := NewRequestService(newFakeRequestStore(), store, schedules, nil)
	ctx := context.Background()

	_, err := svc.Create(ctx, "m1", "s-lender", 0, "lender@example.com")
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = svc.Create(ctx, "m1", "missing", 100, "lender@example.com")
	assert.ErrorIs(t, err, ErrShareNotFound)

	// The lender's 40% share of 150000 is 60000.
	_, err = svc.Create(ctx, "m1", "s-lender", 60001, "lender@example.com")
	assert.ErrorIs(t, err, ErrExceedsShareDebt)
}

func TestRequestServiceApprove(t *testing.T) {
	store := newFakeMortgageStore()
	seedMortgage(store)
	schedules := newTestScheduleService(store)
	requests := newFakeRequestStore()
	svc := NewRequestService(requests, store, schedules, nil)
	ctx := context.Background()

	req, err := svc.Create(ctx, "m1", "s-lender", 20000, "lender@example.com")
	require.NoError(t, err)

	approved, err := svc.Approve(ctx, req.ID, "borrower@example.com")
	require.NoError(t, err)
	assert.Equal(t, mortgage.RequestApproved, approved.Status)
	assert.Equal(t, "borrower@example.com", approved.ReviewedBy)
	require.NotNil(t, approved.ReviewedAt)

	share, err := store.GetShare(ctx, "s-lender")
	require.NoError(t, err)
	assert.InDelta(t, 20000, share.AmortizedAmount, 0.01)

	// A second review of the same request fails.
	_, err = svc.Approve(ctx, req.ID, "borrower@example.com")
	assert.Error(t, err)
}

func TestRequestServiceReject(t *testing.T) {
	store := newFakeMortgageStore()
	seedMortgage(store)
	schedules := newTestScheduleService(store)
	requests := newFakeRequestStore()
	svc := NewRequestService(requests, store, schedules, nil)
	ctx := context.Background()

	req, err := svc.Create(ctx, "m1", "s-borrower", 5000, "borrower@example.com")
	require.NoError(t, err)

	rejected, err := svc.Reject(ctx, req.ID, "lender@example.com")
	require.NoError(t, err)
	assert.Equal(t, mortgage.RequestRejected, rejected.Status)

	// Rejection leaves the share untouched.
	share, err := store.GetShare(ctx, "s-borrower")
	require.NoError(t, err)
	assert.Zero(t, share.AmortizedAmount)

	_, err = svc.Reject(ctx, "missing", "lender@example.com")
	assert.ErrorIs(t, err, ErrRequestNotFound)
}

func TestRequestServiceApproveReducesFutureDebt(t *testing.T) {
	store := newFakeMortgageStore()
	seedMortgage(store)
	schedules := newTestScheduleService(store)
	requests := newFakeRequestStore()
	svc := NewRequestService(requests, store, schedules, nil)
	ctx := context.Background()

	req, err := svc.Create(ctx, "m1", "s-lender", 20000, "lender@example.com")
	require.NoError(t, err)
	_, err = svc.Approve(ctx, req.ID, "borrower@example.com")
	require.NoError(t, err)

	debts, err := schedules.ShareDebts(ctx, "m1")
	require.NoError(t, err)
	for _, d := range debts {
		if d.Share.UserRole == mortgage.RoleLender {
			assert.InDelta(t, 40000, d.RemainingDebt, 0.01)
		}
	}

	// The next request is bounded by the reduced debt.
	_, err = svc.Create(ctx, "m1", "s-lender", 40001, "lender@example.com")
	assert.ErrorIs(t, err, ErrExceedsShareDebt)
}
