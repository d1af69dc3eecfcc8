package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/avidalv/mortgage-tracker/internal/auth"
	"github.com/avidalv/mortgage-tracker/internal/cache"
	"github.com/avidalv/mortgage-tracker/internal/config"
	"github.com/avidalv/mortgage-tracker/internal/service"
	"github.com/avidalv/mortgage-tracker/pkg/mortgage"
)

// fakeStore is an in-memory stand-in for the repositories, implementing the
// read and write surfaces the handler and services consume.
type fakeStore struct {
	mortgages     map[string]mortgage.Mortgage
	conditions    map[string][]mortgage.Condition
	bonifications map[string]mortgage.Bonification
	shares        map[string]mortgage.Share
	payments      map[string]mortgage.PaymentRecord
	requests      map[string]mortgage.AmortizationRequest
	nextID        int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		mortgages:     make(map[string]mortgage.Mortgage),
		conditions:    make(map[string][]mortgage.Condition),
		bonifications: make(map[string]mortgage.Bonification),
		shares:        make(map[string]mortgage.Share),
		payments:      make(map[string]mortgage.PaymentRecord),
		requests:      make(map[string]mortgage.AmortizationRequest),
	}
}

func (f *fakeStore) id(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s-%d", prefix, f.nextID)
}

func (f *fakeStore) GetByID(_ context.Context, id string) (*mortgage.Mortgage, error) {
	m, ok := f.mortgages[id]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

func (f *fakeStore) List(_ context.Context) ([]mortgage.Mortgage, error) {
	out := make([]mortgage.Mortgage, 0, len(f.mortgages))
	for _, m := range f.mortgages {
		out = append(out, m)
	}
	return out, nil
}

func (f *fakeStore) GetConditions(_ context.Context, id string) ([]mortgage.Condition, error) {
	return f.conditions[id], nil
}

func (f *fakeStore) GetBonifications(_ context.Context, id string) ([]mortgage.Bonification, error) {
	var out []mortgage.Bonification
	for _, b := range f.bonifications {
		if b.MortgageID == id {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f *fakeStore) GetShares(_ context.Context, id string) ([]mortgage.Share, error) {
	var out []mortgage.Share
	for _, s := range f.shares {
		if s.MortgageID == id {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeStore) GetShare(_ context.Context, id string) (*mortgage.Share, error) {
	s, ok := f.shares[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (f *fakeStore) AddAmortizedAmount(_ context.Context, shareID string, amount float64) error {
	s, ok := f.shares[shareID]
	if !ok {
		return fmt.Errorf("share %s not found", shareID)
	}
	s.AmortizedAmount += amount
	f.shares[shareID] = s
	return nil
}

func (f *fakeStore) Create(_ context.Context, m *mortgage.Mortgage) error {
	m.ID = f.id("m")
	f.mortgages[m.ID] = *m
	return nil
}

func (f *fakeStore) CreateCondition(_ context.Context, c *mortgage.Condition) error {
	c.ID = f.id("c")
	f.conditions[c.MortgageID] = append(f.conditions[c.MortgageID], *c)
	return nil
}

func (f *fakeStore) CreateBonification(_ context.Context, b *mortgage.Bonification) error {
	b.ID = f.id("b")
	f.bonifications[b.ID] = *b
	return nil
}

func (f *fakeStore) SetBonificationActive(_ context.Context, id string, active bool) error {
	b, ok := f.bonifications[id]
	if !ok {
		return fmt.Errorf("bonification %s not found", id)
	}
	b.Active = active
	f.bonifications[id] = b
	return nil
}

func (f *fakeStore) CreateShare(_ context.Context, s *mortgage.Share) error {
	s.ID = f.id("s")
	f.shares[s.ID] = *s
	return nil
}

type fakePaymentStore struct {
	store *fakeStore
}

func (f *fakePaymentStore) Create(_ context.Context, p *mortgage.PaymentRecord) error {
	p.ID = f.store.id("p")
	p.CreatedAt = time.Now()
	f.store.payments[p.ID] = *p
	return nil
}

func (f *fakePaymentStore) ListByMortgage(_ context.Context, mortgageID string) ([]mortgage.PaymentRecord, error) {
	var out []mortgage.PaymentRecord
	for _, p := range f.store.payments {
		if p.MortgageID == mortgageID {
			out = append(out, p)
		}
	}
	return out, nil
}

type fakeRequestStore struct {
	store *fakeStore
}

func (f *fakeRequestStore) Create(_ context.Context, req *mortgage.AmortizationRequest) error {
	req.ID = f.store.id("req")
	req.Status = mortgage.RequestPending
	req.CreatedAt = time.Now()
	f.store.requests[req.ID] = *req
	return nil
}

func (f *fakeRequestStore) GetByID(_ context.Context, id string) (*mortgage.AmortizationRequest, error) {
	req, ok := f.store.requests[id]
	if !ok {
		return nil, nil
	}
	return &req, nil
}

func (f *fakeRequestStore) ListByMortgage(_ context.Context, mortgageID string, status mortgage.RequestStatus) ([]mortgage.AmortizationRequest, error) {
	var out []mortgage.AmortizationRequest
	for _, req := range f.store.requests {
		if req.MortgageID == mortgageID && (status == "" || req.Status == status) {
			out = append(out, req)
		}
	}
	return out, nil
}

func (f *fakeRequestStore) UpdateStatus(_ context.Context, id string, status mortgage.RequestStatus, reviewedBy string) error {
	req, ok := f.store.requests[id]
	if !ok || req.Status != mortgage.RequestPending {
		return fmt.Errorf("amortization request %s not found or already reviewed", id)
	}
	now := time.Now()
	req.Status = status
	req.ReviewedBy = reviewedBy
	req.ReviewedAt = &now
	f.store.requests[id] = req
	return nil
}

type testServer struct {
	handler    http.Handler
	store      *fakeStore
	mortgageID string
	shareID    string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	store := newFakeStore()
	// A start date far in the future keeps the current balance at the full
	// principal regardless of when the tests run.
	m := mortgage.Mortgage{
		ID:           "m1",
		Name:         "Main residence",
		TotalAmount:  150000,
		InterestRate: 3.5,
		StartDate:    time.Date(2100, time.January, 15, 0, 0, 0, 0, time.UTC),
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

	schedules := service.NewScheduleService(store, cache.NewMemoryCache(), nil)
	requests := service.NewRequestService(&fakeRequestStore{store: store}, store, schedules, nil)
	sessions := auth.NewStore([]config.UserConfig{
		{Email: "lender@example.com", Password: "s3cret", Role: "lender"},
		{Email: "borrower@example.com", Password: "hunter2", Role: "borrower"},
	})

	handler := NewHandler(nil, schedules, requests, store, &fakePaymentStore{store: store}, sessions, "test")
	return &testServer{handler: handler, store: store, mortgageID: "m1", shareID: "s-lender"}
}

func (ts *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) login(t *testing.T, email, password string) string {
	t.Helper()

	rec := ts.do(t, http.MethodPost, "/api/login", "", map[string]string{
		"email": email, "password": password,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login returned %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode login response: %v", err)
	}
	return resp.Token
}

func TestHandleVersion(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/version", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"version":"test"`) {
		t.Errorf("unexpected body: %s", rec.Body.String())
	}
}

func TestHandleLoginRejectsBadCredentials(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/login", "", map[string]string{
		"email": "lender@example.com", "password": "wrong",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("got status %d, want 401", rec.Code)
	}
}

func TestHandleSchedule(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/mortgages/m1/schedule", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d: %s", rec.Code, rec.Body.String())
	}

	var resp scheduleResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Schedule) != 360 {
		t.Errorf("got %d payments, want 360", len(resp.Schedule))
	}
	if resp.Summary.NumberOfPayments != 360 {
		t.Errorf("summary reports %d payments", resp.Summary.NumberOfPayments)
	}
}

func TestHandleScheduleNotFound(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/mortgages/missing/schedule", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("got status %d, want 404", rec.Code)
	}
}

func TestHandleScheduleCSV(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/mortgages/m1/schedule.csv", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/csv" {
		t.Errorf("got content type %q", ct)
	}
	if !strings.HasPrefix(rec.Body.String(), "paymentNumber,date,principal,interest,totalPayment,remainingBalance,interestRate") {
		t.Errorf("unexpected CSV header: %s", rec.Body.String()[:80])
	}
}

func TestHandleSchedulePDF(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/mortgages/m1/schedule.pdf", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d", rec.Code)
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")) {
		t.Error("response is not a PDF document")
	}
}

func TestHandleExport(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/mortgages/m1/export", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d", rec.Code)
	}
	var resp struct {
		MortgageYAML string `json:"mortgageYaml"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !strings.Contains(resp.MortgageYAML, "totalamount: 150000") {
		t.Errorf("unexpected YAML: %s", resp.MortgageYAML)
	}
}

func TestHandleSimulate(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/mortgages/m1/simulate", "", simulateRequest{
		ExtraPaymentAmount: 10000,
		AfterPaymentNumber: 60,
		Strategy:           "reduce_term",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		NewTotalInterest      float64 `json:"newTotalInterest"`
		OriginalTotalInterest float64 `json:"originalTotalInterest"`
		MonthsSaved           int     `json:"monthsSaved"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.NewTotalInterest >= resp.OriginalTotalInterest {
		t.Error("expected interest savings")
	}
	if resp.MonthsSaved <= 0 {
		t.Error("expected months saved")
	}
}

func TestHandleSimulateRejectsBadStrategy(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/mortgages/m1/simulate", "", simulateRequest{
		ExtraPaymentAmount: 10000,
		AfterPaymentNumber: 60,
		Strategy:           "balloon",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("got status %d, want 400", rec.Code)
	}
}

func TestMutationsRequireAuth(t *testing.T) {
	ts := newTestServer(t)

	paths := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/api/mortgages"},
		{http.MethodPost, "/api/mortgages/m1/conditions"},
		{http.MethodPost, "/api/mortgages/m1/requests"},
		{http.MethodPost, "/api/requests/req-1/approve"},
	}
	for _, tc := range paths {
		rec := ts.do(t, tc.method, tc.path, "", map[string]any{})
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s %s: got status %d, want 401", tc.method, tc.path, rec.Code)
		}
	}
}

func TestRequestWorkflowOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	lenderToken := ts.login(t, "lender@example.com", "s3cret")
	borrowerToken := ts.login(t, "borrower@example.com", "hunter2")

	rec := ts.do(t, http.MethodPost, "/api/mortgages/m1/requests", lenderToken, createRequestPayload{
		ShareID: "s-lender",
		Amount:  20000,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create returned %d: %s", rec.Code, rec.Body.String())
	}
	var created mortgage.AmortizationRequest
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("failed to decode request: %v", err)
	}
	if created.RequestedBy != "lender@example.com" {
		t.Errorf("requestedBy = %q", created.RequestedBy)
	}

	rec = ts.do(t, http.MethodPost, "/api/requests/"+created.ID+"/approve", borrowerToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("approve returned %d: %s", rec.Code, rec.Body.String())
	}
	var approved mortgage.AmortizationRequest
	if err := json.Unmarshal(rec.Body.Bytes(), &approved); err != nil {
		t.Fatalf("failed to decode approval: %v", err)
	}
	if approved.Status != mortgage.RequestApproved {
		t.Errorf("status = %q", approved.Status)
	}
	if approved.ReviewedBy != "borrower@example.com" {
		t.Errorf("reviewedBy = %q", approved.ReviewedBy)
	}

	share := ts.store.shares["s-lender"]
	if share.AmortizedAmount != 20000 {
		t.Errorf("share amortized = %.2f, want 20000", share.AmortizedAmount)
	}
}

func TestRequestExceedingDebtRejected(t *testing.T) {
	ts := newTestServer(t)
	token := ts.login(t, "lender@example.com", "s3cret")

	// The lender's 40% share of 150000 is 60000.
	rec := ts.do(t, http.MethodPost, "/api/mortgages/m1/requests", token, createRequestPayload{
		ShareID: "s-lender",
		Amount:  60001,
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("got status %d, want 400: %s", rec.Code, rec.Body.String())
	}
}

func TestCreateMortgageAndCondition(t *testing.T) {
	ts := newTestServer(t)
	token := ts.login(t, "borrower@example.com", "hunter2")

	rec := ts.do(t, http.MethodPost, "/api/mortgages", token, mortgage.Mortgage{
		Name:         "Second home",
		TotalAmount:  90000,
		InterestRate: 2.8,
		StartDate:    time.Date(2100, time.June, 1, 0, 0, 0, 0, time.UTC),
		TermMonths:   240,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create mortgage returned %d: %s", rec.Code, rec.Body.String())
	}
	var m mortgage.Mortgage
	if err := json.Unmarshal(rec.Body.Bytes(), &m); err != nil {
		t.Fatalf("failed to decode mortgage: %v", err)
	}

	rate := 1.5
	rec = ts.do(t, http.MethodPost, "/api/mortgages/"+m.ID+"/conditions", token, mortgage.Condition{
		Type:         "fixed_period",
		StartMonth:   1,
		EndMonth:     24,
		InterestRate: &rate,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create condition returned %d: %s", rec.Code, rec.Body.String())
	}

	// The condition shows up in the schedule: first month at 1.5%.
	rec = ts.do(t, http.MethodGet, "/api/mortgages/"+m.ID+"/schedule", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("schedule returned %d", rec.Code)
	}
	var resp scheduleResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode schedule: %v", err)
	}
	if resp.Schedule[0].InterestRate != 1.5 {
		t.Errorf("first month rate = %.2f, want 1.50", resp.Schedule[0].InterestRate)
	}
}

func TestCreateMortgageRejectsInvalid(t *testing.T) {
	ts := newTestServer(t)
	token := ts.login(t, "borrower@example.com", "hunter2")

	rec := ts.do(t, http.MethodPost, "/api/mortgages", token, mortgage.Mortgage{TotalAmount: 0, TermMonths: 360})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("got status %d, want 400", rec.Code)
	}
}

func TestPaymentEndpoints(t *testing.T) {
	ts := newTestServer(t)
	token := ts.login(t, "borrower@example.com", "hunter2")

	rec := ts.do(t, http.MethodPost, "/api/mortgages/m1/payments", token, mortgage.PaymentRecord{
		Amount: 673.57,
		PaidAt: time.Date(2100, time.January, 15, 0, 0, 0, 0, time.UTC),
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create payment returned %d: %s", rec.Code, rec.Body.String())
	}
	var p mortgage.PaymentRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &p); err != nil {
		t.Fatalf("failed to decode payment: %v", err)
	}
	if p.PaidBy != "borrower@example.com" {
		t.Errorf("paidBy = %q, want session user", p.PaidBy)
	}

	rec = ts.do(t, http.MethodGet, "/api/mortgages/m1/payments", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list payments returned %d", rec.Code)
	}
	var listed []mortgage.PaymentRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &listed); err != nil {
		t.Fatalf("failed to decode payments: %v", err)
	}
	if len(listed) != 1 {
		t.Errorf("got %d payments, want 1", len(listed))
	}
}

func TestRateLimiter(t *testing.T) {
	limiter := NewRateLimiter(2, time.Hour)
	defer limiter.Stop()

	if !limiter.Allow("10.0.0.1") || !limiter.Allow("10.0.0.1") {
		t.Fatal("first two requests should pass")
	}
	if limiter.Allow("10.0.0.1") {
		t.Error("third request should be limited")
	}
	if !limiter.Allow("10.0.0.2") {
		t.Error("other clients have their own bucket")
	}
}

func TestRateLimiterDropsIdleBuckets(t *testing.T) {
	limiter := NewRateLimiter(2, time.Minute)
	defer limiter.Stop()

	limiter.Allow("10.0.0.1")
	limiter.Allow("10.0.0.2")

	limiter.mu.Lock()
	limiter.clients["10.0.0.1"].lastRefill = time.Now().Add(-2 * limiter.idleAfter)
	limiter.mu.Unlock()

	limiter.cleanup()

	limiter.mu.Lock()
	defer limiter.mu.Unlock()
	if _, ok := limiter.clients["10.0.0.1"]; ok {
		t.Error("idle bucket should have been dropped")
	}
	if _, ok := limiter.clients["10.0.0.2"]; !ok {
		t.Error("fresh bucket should survive the sweep")
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	limiter := NewRateLimiter(1, time.Hour)
	defer limiter.Stop()

	wrapped := RateLimitMiddleware(limiter, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/version", nil)
	req.RemoteAddr = "10.0.0.1:1234"

	rec := httptest.NewRecorder()
	wrapped.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("first request got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	wrapped.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("second request got %d, want 429", rec.Code)
	}
}
