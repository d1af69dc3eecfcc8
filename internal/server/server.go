// Package server exposes the mortgage tracker over HTTP: schedule and
// simulation endpoints, the amortization request workflow, and CSV/PDF/YAML
// downloads. Handlers never re-round values the engine already rounded.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/avidalv/mortgage-tracker/internal/auth"
	"github.com/avidalv/mortgage-tracker/internal/service"
	"github.com/avidalv/mortgage-tracker/pkg/amortization"
	"github.com/avidalv/mortgage-tracker/pkg/mortgage"
	"github.com/avidalv/mortgage-tracker/pkg/output"
	"github.com/avidalv/mortgage-tracker/pkg/report"
	"github.com/avidalv/mortgage-tracker/pkg/validation"
)

// MortgageWriter is the persistence surface for mortgage mutations.
type MortgageWriter interface {
	Create(ctx context.Context, m *mortgage.Mortgage) error
	CreateCondition(ctx context.Context, c *mortgage.Condition) error
	CreateBonification(ctx context.Context, b *mortgage.Bonification) error
	SetBonificationActive(ctx context.Context, id string, active bool) error
	CreateShare(ctx context.Context, s *mortgage.Share) error
}

// PaymentStore is the persistence surface for the payment history.
type PaymentStore interface {
	Create(ctx context.Context, p *mortgage.PaymentRecord) error
	ListByMortgage(ctx context.Context, mortgageID string) ([]mortgage.PaymentRecord, error)
}

type handler struct {
	logger    *zap.Logger
	schedules *service.ScheduleService
	requests  *service.RequestService
	writer    MortgageWriter
	payments  PaymentStore
	sessions  *auth.Store
	version   string
}

type contextKey string

const userContextKey contextKey = "user"

// NewHandler constructs the HTTP handler serving the mortgage API.
func NewHandler(logger *zap.Logger, schedules *service.ScheduleService, requests *service.RequestService,
	writer MortgageWriter, payments PaymentStore, sessions *auth.Store, version string) http.Handler {

	if logger == nil {
		logger = zap.NewNop()
	}

	trimmedVersion := strings.TrimSpace(version)
	if trimmedVersion == "" {
		trimmedVersion = "dev"
	}

	h := &handler{
		logger:    logger,
		schedules: schedules,
		requests:  requests,
		writer:    writer,
		payments:  payments,
		sessions:  sessions,
		version:   trimmedVersion,
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/version", h.handleVersion)
	mux.HandleFunc("POST /api/login", h.handleLogin)
	mux.HandleFunc("POST /api/logout", h.handleLogout)

	mux.HandleFunc("GET /api/mortgages", h.handleListMortgages)
	mux.HandleFunc("GET /api/mortgages/{id}", h.handleGetMortgage)
	mux.HandleFunc("GET /api/mortgages/{id}/schedule", h.handleSchedule)
	mux.HandleFunc("GET /api/mortgages/{id}/schedule.csv", h.handleScheduleCSV)
	mux.HandleFunc("GET /api/mortgages/{id}/schedule.pdf", h.handleSchedulePDF)
	mux.HandleFunc("GET /api/mortgages/{id}/summary", h.handleSummary)
	mux.HandleFunc("GET /api/mortgages/{id}/export", h.handleExport)
	mux.HandleFunc("GET /api/mortgages/{id}/debts", h.handleShareDebts)
	mux.HandleFunc("POST /api/mortgages/{id}/simulate", h.handleSimulate)

	mux.Handle("POST /api/mortgages", h.requireAuth(h.handleCreateMortgage))
	mux.Handle("POST /api/mortgages/{id}/conditions", h.requireAuth(h.handleCreateCondition))
	mux.Handle("POST /api/mortgages/{id}/bonifications", h.requireAuth(h.handleCreateBonification))
	mux.Handle("PUT /api/bonifications/{id}/active", h.requireAuth(h.handleSetBonificationActive))
	mux.Handle("POST /api/mortgages/{id}/shares", h.requireAuth(h.handleCreateShare))

	mux.HandleFunc("GET /api/mortgages/{id}/payments", h.handleListPayments)
	mux.Handle("POST /api/mortgages/{id}/payments", h.requireAuth(h.handleCreatePayment))

	mux.HandleFunc("GET /api/mortgages/{id}/requests", h.handleListRequests)
	mux.Handle("POST /api/mortgages/{id}/requests", h.requireAuth(h.handleCreateRequest))
	mux.Handle("POST /api/requests/{id}/approve", h.requireAuth(h.handleApproveRequest))
	mux.Handle("POST /api/requests/{id}/reject", h.requireAuth(h.handleRejectRequest))

	return mux
}

// requireAuth resolves the bearer token and rejects unauthenticated requests.
func (h *handler) requireAuth(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		user := h.sessions.Validate(r.Context(), token)
		if user == nil {
			h.respondError(w, http.StatusUnauthorized, "authentication required", "server.requireAuth")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userContextKey, user)))
	})
}

func userFrom(ctx context.Context) *auth.User {
	user, _ := ctx.Value(userContextKey).(*auth.User)
	return user
}

func (h *handler) handleVersion(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"version": h.version})
}

func (h *handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.respondError(w, http.StatusBadRequest, "failed to decode credentials", "server.handleLogin")
		return
	}

	token, user, err := h.sessions.Login(r.Context(), payload.Email, payload.Password)
	if err != nil {
		h.respondError(w, http.StatusUnauthorized, "invalid credentials", "server.handleLogin")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"token": token, "user": user})
}

func (h *handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	h.sessions.Logout(r.Context(), token)
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) handleListMortgages(w http.ResponseWriter, r *http.Request) {
	// The list endpoint goes through the aggregate loader's store.
	mortgages, err := h.schedules.ListMortgages(r.Context())
	if err != nil {
		h.respondServiceError(w, err, "server.handleListMortgages")
		return
	}
	h.writeJSON(w, http.StatusOK, mortgages)
}

func (h *handler) handleGetMortgage(w http.ResponseWriter, r *http.Request) {
	agg, err := h.schedules.Aggregate(r.Context(), r.PathValue("id"))
	if err != nil {
		h.respondServiceError(w, err, "server.handleGetMortgage")
		return
	}
	h.writeJSON(w, http.StatusOK, agg)
}

type scheduleResponse struct {
	Schedule []amortization.Payment `json:"schedule"`
	Summary  amortization.Summary   `json:"summary"`
	Duration string                 `json:"duration"`
}

func (h *handler) handleSchedule(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	schedule, summary, err := h.schedules.Schedule(r.Context(), r.PathValue("id"))
	if err != nil {
		h.respondServiceError(w, err, "server.handleSchedule")
		return
	}

	elapsed := time.Since(start)
	h.logger.Info("schedule computed",
		zap.String("op", "server.handleSchedule"),
		zap.String("mortgage_id", r.PathValue("id")),
		zap.Int("payments", len(schedule)),
		zap.Duration("duration", elapsed),
	)

	h.writeJSON(w, http.StatusOK, scheduleResponse{
		Schedule: schedule,
		Summary:  summary,
		Duration: elapsed.String(),
	})
}

func (h *handler) handleScheduleCSV(w http.ResponseWriter, r *http.Request) {
	schedule, _, err := h.schedules.Schedule(r.Context(), r.PathValue("id"))
	if err != nil {
		h.respondServiceError(w, err, "server.handleScheduleCSV")
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="schedule.csv"`)
	if err := output.CsvFormat(w, schedule); err != nil {
		h.logger.Error("failed to write CSV response",
			zap.String("op", "server.handleScheduleCSV"),
			zap.Error(err),
		)
	}
}

func (h *handler) handleSchedulePDF(w http.ResponseWriter, r *http.Request) {
	agg, err := h.schedules.Aggregate(r.Context(), r.PathValue("id"))
	if err != nil {
		h.respondServiceError(w, err, "server.handleSchedulePDF")
		return
	}
	schedule, summary, err := h.schedules.Schedule(r.Context(), agg.Mortgage.ID)
	if err != nil {
		h.respondServiceError(w, err, "server.handleSchedulePDF")
		return
	}

	pdf, err := report.SchedulePDF(agg.Mortgage, schedule, summary)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render PDF: %v", err), "server.handleSchedulePDF")
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="schedule.pdf"`)
	if _, err := w.Write(pdf); err != nil {
		h.logger.Error("failed to write PDF response",
			zap.String("op", "server.handleSchedulePDF"),
			zap.Error(err),
		)
	}
}

func (h *handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.schedules.Summary(r.Context(), r.PathValue("id"))
	if err != nil {
		h.respondServiceError(w, err, "server.handleSummary")
		return
	}
	h.writeJSON(w, http.StatusOK, summary)
}

func (h *handler) handleExport(w http.ResponseWriter, r *http.Request) {
	agg, err := h.schedules.Aggregate(r.Context(), r.PathValue("id"))
	if err != nil {
		h.respondServiceError(w, err, "server.handleExport")
		return
	}

	yamlBytes, err := yaml.Marshal(agg)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, fmt.Sprintf("failed to encode mortgage: %v", err), "server.handleExport")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"mortgageYaml": string(yamlBytes)})
}

func (h *handler) handleShareDebts(w http.ResponseWriter, r *http.Request) {
	debts, err := h.schedules.ShareDebts(r.Context(), r.PathValue("id"))
	if err != nil {
		h.respondServiceError(w, err, "server.handleShareDebts")
		return
	}
	h.writeJSON(w, http.StatusOK, debts)
}

type simulateRequest struct {
	ExtraPaymentAmount float64 `json:"extraPaymentAmount"`
	AfterPaymentNumber int     `json:"afterPaymentNumber"`
	Strategy           string  `json:"strategy"`
}

func (h *handler) handleSimulate(w http.ResponseWriter, r *http.Request) {
	var payload simulateRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.respondError(w, http.StatusBadRequest, fmt.Sprintf("failed to decode simulation request: %v", err), "server.handleSimulate")
		return
	}

	sim, err := h.schedules.Simulate(r.Context(), r.PathValue("id"),
		payload.ExtraPaymentAmount, payload.AfterPaymentNumber, amortization.Strategy(payload.Strategy))
	if err != nil {
		h.respondServiceError(w, err, "server.handleSimulate")
		return
	}

	h.writeJSON(w, http.StatusOK, sim)
}

func (h *handler) handleCreateMortgage(w http.ResponseWriter, r *http.Request) {
	var m mortgage.Mortgage
	if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
		h.respondError(w, http.StatusBadRequest, fmt.Sprintf("failed to decode mortgage: %v", err), "server.handleCreateMortgage")
		return
	}
	if err := validation.ValidateMortgage(m); err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error(), "server.handleCreateMortgage")
		return
	}

	if err := h.writer.Create(r.Context(), &m); err != nil {
		h.respondError(w, http.StatusInternalServerError, err.Error(), "server.handleCreateMortgage")
		return
	}
	h.writeJSON(w, http.StatusCreated, m)
}

func (h *handler) handleCreateCondition(w http.ResponseWriter, r *http.Request) {
	var c mortgage.Condition
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		h.respondError(w, http.StatusBadRequest, fmt.Sprintf("failed to decode condition: %v", err), "server.handleCreateCondition")
		return
	}
	c.MortgageID = r.PathValue("id")
	if err := validation.ValidateCondition(c); err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error(), "server.handleCreateCondition")
		return
	}

	if err := h.writer.CreateCondition(r.Context(), &c); err != nil {
		h.respondError(w, http.StatusInternalServerError, err.Error(), "server.handleCreateCondition")
		return
	}
	h.schedules.Invalidate(r.Context(), c.MortgageID)
	h.writeJSON(w, http.StatusCreated, c)
}

func (h *handler) handleCreateBonification(w http.ResponseWriter, r *http.Request) {
	var b mortgage.Bonification
	if err := json.NewDecoder(r.Body).Decode(&b); err != nil {
		h.respondError(w, http.StatusBadRequest, fmt.Sprintf("failed to decode bonification: %v", err), "server.handleCreateBonification")
		return
	}
	b.MortgageID = r.PathValue("id")
	if b.RateReduction < 0 {
		h.respondError(w, http.StatusBadRequest, "rateReduction must not be negative", "server.handleCreateBonification")
		return
	}

	if err := h.writer.CreateBonification(r.Context(), &b); err != nil {
		h.respondError(w, http.StatusInternalServerError, err.Error(), "server.handleCreateBonification")
		return
	}
	h.schedules.Invalidate(r.Context(), b.MortgageID)
	h.writeJSON(w, http.StatusCreated, b)
}

func (h *handler) handleSetBonificationActive(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Active     bool   `json:"active"`
		MortgageID string `json:"mortgageId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.respondError(w, http.StatusBadRequest, fmt.Sprintf("failed to decode payload: %v", err), "server.handleSetBonificationActive")
		return
	}

	if err := h.writer.SetBonificationActive(r.Context(), r.PathValue("id"), payload.Active); err != nil {
		h.respondError(w, http.StatusNotFound, err.Error(), "server.handleSetBonificationActive")
		return
	}
	if payload.MortgageID != "" {
		h.schedules.Invalidate(r.Context(), payload.MortgageID)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) handleCreateShare(w http.ResponseWriter, r *http.Request) {
	var s mortgage.Share
	if err := json.NewDecoder(r.Body).Decode(&s); err != nil {
		h.respondError(w, http.StatusBadRequest, fmt.Sprintf("failed to decode share: %v", err), "server.handleCreateShare")
		return
	}
	s.MortgageID = r.PathValue("id")
	if s.InitialSharePercentage < 0 || s.InitialSharePercentage > 100 {
		h.respondError(w, http.StatusBadRequest, "initialSharePercentage must be between 0 and 100", "server.handleCreateShare")
		return
	}

	if err := h.writer.CreateShare(r.Context(), &s); err != nil {
		h.respondError(w, http.StatusInternalServerError, err.Error(), "server.handleCreateShare")
		return
	}
	h.writeJSON(w, http.StatusCreated, s)
}

func (h *handler) handleListPayments(w http.ResponseWriter, r *http.Request) {
	payments, err := h.payments.ListByMortgage(r.Context(), r.PathValue("id"))
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, err.Error(), "server.handleListPayments")
		return
	}
	h.writeJSON(w, http.StatusOK, payments)
}

func (h *handler) handleCreatePayment(w http.ResponseWriter, r *http.Request) {
	var p mortgage.PaymentRecord
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		h.respondError(w, http.StatusBadRequest, fmt.Sprintf("failed to decode payment: %v", err), "server.handleCreatePayment")
		return
	}
	p.MortgageID = r.PathValue("id")
	if p.Amount <= 0 {
		h.respondError(w, http.StatusBadRequest, "amount must be positive", "server.handleCreatePayment")
		return
	}
	if p.PaidBy == "" {
		if user := userFrom(r.Context()); user != nil {
			p.PaidBy = user.Email
		}
	}

	if err := h.payments.Create(r.Context(), &p); err != nil {
		h.respondError(w, http.StatusInternalServerError, err.Error(), "server.handleCreatePayment")
		return
	}
	h.writeJSON(w, http.StatusCreated, p)
}

func (h *handler) handleListRequests(w http.ResponseWriter, r *http.Request) {
	status := mortgage.RequestStatus(r.URL.Query().Get("status"))
	requests, err := h.requests.List(r.Context(), r.PathValue("id"), status)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, err.Error(), "server.handleListRequests")
		return
	}
	h.writeJSON(w, http.StatusOK, requests)
}

type createRequestPayload struct {
	ShareID string  `json:"shareId"`
	Amount  float64 `json:"amount"`
}

func (h *handler) handleCreateRequest(w http.ResponseWriter, r *http.Request) {
	var payload createRequestPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.respondError(w, http.StatusBadRequest, fmt.Sprintf("failed to decode request: %v", err), "server.handleCreateRequest")
		return
	}

	user := userFrom(r.Context())
	req, err := h.requests.Create(r.Context(), r.PathValue("id"), payload.ShareID, payload.Amount, user.Email)
	if err != nil {
		h.respondServiceError(w, err, "server.handleCreateRequest")
		return
	}
	h.writeJSON(w, http.StatusCreated, req)
}

func (h *handler) handleApproveRequest(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	req, err := h.requests.Approve(r.Context(), r.PathValue("id"), user.Email)
	if err != nil {
		h.respondServiceError(w, err, "server.handleApproveRequest")
		return
	}
	h.writeJSON(w, http.StatusOK, req)
}

func (h *handler) handleRejectRequest(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	req, err := h.requests.Reject(r.Context(), r.PathValue("id"), user.Email)
	if err != nil {
		h.respondServiceError(w, err, "server.handleRejectRequest")
		return
	}
	h.writeJSON(w, http.StatusOK, req)
}

// respondServiceError maps service errors onto HTTP statuses.
func (h *handler) respondServiceError(w http.ResponseWriter, err error, op string) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrMortgageNotFound),
		errors.Is(err, service.ErrShareNotFound),
		errors.Is(err, service.ErrRequestNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrInvalidAmount),
		errors.Is(err, service.ErrInvalidStrategy),
		errors.Is(err, service.ErrExceedsShareDebt):
		status = http.StatusBadRequest
	}
	h.respondError(w, status, err.Error(), op)
}

func (h *handler) respondError(w http.ResponseWriter, status int, msg string, op string) {
	h.logger.Error("request failed",
		zap.String("op", op),
		zap.Int("status", status),
		zap.String("error", msg),
	)
	h.writeJSON(w, status, map[string]string{"error": msg})
}

func (h *handler) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to write JSON response", zap.Error(err))
	}
}
