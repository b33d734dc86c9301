package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Dan9191/plutus/internal/confidential"
	"github.com/Dan9191/plutus/internal/gateway"
	"github.com/Dan9191/plutus/internal/ledger"
	"github.com/Dan9191/plutus/internal/models"
	"github.com/Dan9191/plutus/internal/permit"
	"github.com/Dan9191/plutus/internal/records"
	"github.com/Dan9191/plutus/internal/service"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// FinancialManager is the caller-facing surface served over HTTP
type FinancialManager interface {
	FetchFinancialData(ctx context.Context, token string) error
	ViewTransactionSummary(ctx context.Context) (string, error)
	ViewBankBalance(ctx context.Context) (string, error)
	AnalyzeFinancials(ctx context.Context, purchaseAmount decimal.Decimal) (string, error)
	RequestLoan(ctx context.Context, amount decimal.Decimal, interestRate float64, durationDays uint32) (string, error)
	ScheduleRepayment(ctx context.Context, amountDue decimal.Decimal, dueDate uint64) (string, error)
	TrackRepayments(ctx context.Context) (string, error)
	ViewLoanStatus(ctx context.Context) (string, error)
	ViewFinancialStatus(ctx context.Context) (string, error)
	QuoteRate(ctx context.Context) (float64, error)
}

// PermitIssuer exchanges the owner's passphrase for a permit
type PermitIssuer interface {
	Issue(account, passphrase string) (string, error)
}

type Handler struct {
	svc     FinancialManager
	permits PermitIssuer
	account string
	log     *logrus.Logger
}

func NewHandler(svc FinancialManager, permits PermitIssuer, account string, log *logrus.Logger) *Handler {
	return &Handler{svc: svc, permits: permits, account: account, log: log}
}

// Router builds the HTTP routes; auth guards everything except permit issuance
func (h *Handler) Router(auth mux.MiddlewareFunc) *mux.Router {
	r := mux.NewRouter()
	// Public routes
	r.HandleFunc("/permits", h.IssuePermit).Methods("POST")

	// Protected routes
	authRouter := r.PathPrefix("/").Subrouter()
	authRouter.Use(auth)
	authRouter.HandleFunc("/financial-data", h.FetchFinancialData).Methods("POST")
	authRouter.HandleFunc("/transactions", h.ViewTransactionSummary).Methods("GET")
	authRouter.HandleFunc("/balance", h.ViewBankBalance).Methods("GET")
	authRouter.HandleFunc("/analysis", h.AnalyzeFinancials).Methods("GET")
	authRouter.HandleFunc("/loans", h.RequestLoan).Methods("POST")
	authRouter.HandleFunc("/loans", h.ViewLoanStatus).Methods("GET")
	authRouter.HandleFunc("/repayments", h.ScheduleRepayment).Methods("POST")
	authRouter.HandleFunc("/repayments/next", h.TrackRepayments).Methods("GET")
	authRouter.HandleFunc("/status", h.ViewFinancialStatus).Methods("GET")
	authRouter.HandleFunc("/key-rate", h.KeyRate).Methods("GET")
	return r
}

// IssuePermit handles passphrase login
func (h *Handler) IssuePermit(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Passphrase string `json:"passphrase"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	token, err := h.permits.Issue(h.account, body.Passphrase)
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"permit": token})
}

// FetchFinancialData handles a snapshot refresh
func (h *Handler) FetchFinancialData(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Token == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "token is required"})
		return
	}
	if err := h.svc.FetchFinancialData(r.Context(), body.Token); err != nil {
		h.respondError(w, err)
		return
	}
	writeMessage(w, "Financial data updated.")
}

func (h *Handler) ViewTransactionSummary(w http.ResponseWriter, r *http.Request) {
	h.respondText(w, r, h.svc.ViewTransactionSummary)
}

func (h *Handler) ViewBankBalance(w http.ResponseWriter, r *http.Request) {
	h.respondText(w, r, h.svc.ViewBankBalance)
}

// AnalyzeFinancials handles GET /analysis?amount=N
func (h *Handler) AnalyzeFinancials(w http.ResponseWriter, r *http.Request) {
	amount, err := models.ParseAmount(r.URL.Query().Get("amount"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondText(w, r, func(ctx context.Context) (string, error) {
		return h.svc.AnalyzeFinancials(ctx, amount)
	})
}

// RequestLoan handles a new loan request. A missing interest_rate is quoted
// from the reference rate provider.
func (h *Handler) RequestLoan(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Amount       decimal.Decimal `json:"amount"`
		InterestRate *float64        `json:"interest_rate"`
		Duration     uint32          `json:"duration"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	var rate float64
	if body.InterestRate != nil {
		rate = *body.InterestRate
	} else {
		quoted, err := h.svc.QuoteRate(r.Context())
		if err != nil {
			h.respondError(w, err)
			return
		}
		rate = quoted
	}

	h.respondText(w, r, func(ctx context.Context) (string, error) {
		return h.svc.RequestLoan(ctx, body.Amount, rate, body.Duration)
	})
}

func (h *Handler) ViewLoanStatus(w http.ResponseWriter, r *http.Request) {
	h.respondText(w, r, h.svc.ViewLoanStatus)
}

// ScheduleRepayment records an obligation reported by the lending venue
func (h *Handler) ScheduleRepayment(w http.ResponseWriter, r *http.Request) {
	var body struct {
		AmountDue decimal.Decimal `json:"amount_due"`
		DueDate   uint64          `json:"due_date"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	h.respondText(w, r, func(ctx context.Context) (string, error) {
		return h.svc.ScheduleRepayment(ctx, body.AmountDue, body.DueDate)
	})
}

func (h *Handler) TrackRepayments(w http.ResponseWriter, r *http.Request) {
	h.respondText(w, r, h.svc.TrackRepayments)
}

func (h *Handler) ViewFinancialStatus(w http.ResponseWriter, r *http.Request) {
	h.respondText(w, r, h.svc.ViewFinancialStatus)
}

// KeyRate returns the reference rate used for loan quotes
func (h *Handler) KeyRate(w http.ResponseWriter, r *http.Request) {
	rate, err := h.svc.QuoteRate(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]float64{"key_rate": rate})
}

func (h *Handler) respondText(w http.ResponseWriter, r *http.Request, op func(ctx context.Context) (string, error)) {
	msg, err := op(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeMessage(w, msg)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.Errorf("Request failed: %v", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func statusFor(err error) int {
	var transportErr *gateway.TransportError
	switch {
	case errors.Is(err, ledger.ErrNonPositiveAmount),
		errors.Is(err, ledger.ErrInvalidRate),
		errors.Is(err, ledger.ErrNonPositiveDuration),
		errors.Is(err, models.ErrInvalidAmount):
		return http.StatusBadRequest
	case errors.Is(err, permit.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, confidential.ErrNotInitialized):
		return http.StatusNotFound
	case errors.Is(err, confidential.ErrDecryptionFailed):
		return http.StatusForbidden
	case errors.Is(err, records.ErrMalformedPayload),
		errors.Is(err, records.ErrTransportFailure),
		errors.As(err, &transportErr),
		errors.Is(err, service.ErrRateUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, service.ErrNoRateProvider):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeMessage(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusOK, map[string]string{"message": msg})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
