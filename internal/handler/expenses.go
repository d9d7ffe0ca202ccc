package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/tulung-app/tulung/internal/aggregator"
	"github.com/tulung-app/tulung/internal/budget"
	"github.com/tulung-app/tulung/internal/middleware"
	"github.com/tulung-app/tulung/internal/model"
	"github.com/tulung-app/tulung/internal/quota"
	"github.com/tulung-app/tulung/internal/service"
	"github.com/tulung-app/tulung/internal/streak"
)

type expenseRequest struct {
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency"`
	Category   model.Category  `json:"category"`
	Merchant   string          `json:"merchant"`
	Note       string          `json:"note"`
	ReceiptRef string          `json:"receipt_ref"`
	FromOCR    bool            `json:"from_ocr"`
}

type expenseResponse struct {
	ID         uuid.UUID       `json:"id"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency"`
	Category   model.Category  `json:"category"`
	Merchant   *string         `json:"merchant,omitempty"`
	Note       *string         `json:"note,omitempty"`
	ReceiptRef *string         `json:"receipt_ref,omitempty"`
	LoggedAt   string          `json:"logged_at"`
}

func newExpenseResponse(e model.Expense) expenseResponse {
	return expenseResponse{
		ID:         e.ID,
		Amount:     e.Amount,
		Currency:   e.Currency,
		Category:   e.Category,
		Merchant:   e.Merchant,
		Note:       e.Note,
		ReceiptRef: e.ReceiptRef,
		LoggedAt:   e.LoggedAt.Format(time.RFC3339),
	}
}

func newExpenseList(expenses []model.Expense) []expenseResponse {
	resp := make([]expenseResponse, 0, len(expenses))
	for _, e := range expenses {
		resp = append(resp, newExpenseResponse(e))
	}
	return resp
}

type outcomesResponse struct {
	Streak service.Outcome `json:"streak"`
	Quota  service.Outcome `json:"quota"`
	Alert  service.Outcome `json:"alert"`
}

type submissionResponse struct {
	Expense     expenseResponse   `json:"expense"`
	StreakCount int               `json:"streak_count"`
	Milestone   *streak.Milestone `json:"milestone,omitempty"`
	SpentToday  decimal.Decimal   `json:"spent_today"`
	Alert       *budget.Alert     `json:"alert,omitempty"`
	Quota       *quota.Decision   `json:"quota,omitempty"`
	Outcomes    outcomesResponse  `json:"outcomes"`
}

// CreateExpense сохраняет расход текущего пользователя.
func (h *Handler) CreateExpense(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeStatus(w, http.StatusUnauthorized)
		return
	}

	var req expenseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeStatus(w, http.StatusBadRequest)
		return
	}

	res, err := h.service.SubmitExpense(r.Context(), userID, model.ExpenseInput{
		Amount:     req.Amount,
		Currency:   req.Currency,
		Category:   req.Category,
		Merchant:   req.Merchant,
		Note:       req.Note,
		ReceiptRef: req.ReceiptRef,
		FromOCR:    req.FromOCR,
	})
	if err != nil {
		if errors.Is(err, service.ErrInvalidExpense) {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		h.internalError(w, "create expense error", err, userID)
		return
	}

	writeJSON(w, http.StatusCreated, submissionResponse{
		Expense:     newExpenseResponse(res.Expense),
		StreakCount: res.StreakCount,
		Milestone:   res.Milestone,
		SpentToday:  res.SpentToday,
		Alert:       res.Alert,
		Quota:       res.Quota,
		Outcomes: outcomesResponse{
			Streak: res.StreakOutcome,
			Quota:  res.QuotaOutcome,
			Alert:  res.AlertOutcome,
		},
	})
}

// GetExpense возвращает расход текущего пользователя по идентификатору.
func (h *Handler) GetExpense(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeStatus(w, http.StatusUnauthorized)
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeStatus(w, http.StatusBadRequest)
		return
	}

	e, err := h.service.GetExpense(r.Context(), userID, id)
	if err != nil {
		if isNotFound(err) {
			writeStatus(w, http.StatusNotFound)
			return
		}
		h.internalError(w, "get expense error", err, userID)
		return
	}

	writeJSON(w, http.StatusOK, newExpenseResponse(*e))
}

type dayResponse struct {
	Day      string            `json:"day"`
	Total    decimal.Decimal   `json:"total"`
	Expenses []expenseResponse `json:"expenses"`
}

// ListExpenses возвращает историю расходов по дням за интервал from..to.
func (h *Handler) ListExpenses(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeStatus(w, http.StatusUnauthorized)
		return
	}

	q := r.URL.Query()
	days, err := h.service.History(r.Context(), userID, q.Get("from"), q.Get("to"))
	if err != nil {
		if errors.Is(err, service.ErrInvalidRange) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.internalError(w, "list expenses error", err, userID)
		return
	}

	if len(days) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]dayResponse, 0, len(days))
	for _, d := range days {
		resp = append(resp, dayResponse{
			Day:      d.Day,
			Total:    d.Total,
			Expenses: newExpenseList(d.Expenses),
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

type categoryResponse struct {
	Category   model.Category  `json:"category"`
	Total      decimal.Decimal `json:"total"`
	Count      int             `json:"count"`
	Percentage decimal.Decimal `json:"percentage"`
}

func newCategoryList(totals []aggregator.CategoryTotal) []categoryResponse {
	resp := make([]categoryResponse, 0, len(totals))
	for _, ct := range totals {
		resp = append(resp, categoryResponse{
			Category:   ct.Category,
			Total:      ct.Total,
			Count:      ct.Count,
			Percentage: ct.Percentage.Round(1),
		})
	}
	return resp
}

type dashboardResponse struct {
	Day         string             `json:"day"`
	Currency    string             `json:"currency"`
	DailyBudget decimal.Decimal    `json:"daily_budget"`
	SpentToday  decimal.Decimal    `json:"spent_today"`
	Remaining   decimal.Decimal    `json:"remaining"`
	BurnRate    decimal.Decimal    `json:"burn_rate"`
	Level       budget.Level       `json:"level"`
	Alert       *budget.Alert      `json:"alert,omitempty"`
	Streak      streak.Status      `json:"streak"`
	Quota       quota.Decision     `json:"quota"`
	Today       []expenseResponse  `json:"today"`
	Categories  []categoryResponse `json:"categories"`
}

// GetDashboard возвращает сводку за сегодня.
func (h *Handler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeStatus(w, http.StatusUnauthorized)
		return
	}

	d, err := h.service.Dashboard(r.Context(), userID)
	if err != nil {
		h.logger.Error("get dashboard error", zap.Error(err), zap.String("userID", userID.String()))
		writeStatus(w, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, dashboardResponse{
		Day:         d.Day,
		Currency:    d.Currency,
		DailyBudget: d.DailyBudget,
		SpentToday:  d.SpentToday,
		Remaining:   decimal.Max(decimal.Zero, d.DailyBudget.Sub(d.SpentToday)),
		BurnRate:    d.BurnRate,
		Level:       d.Level,
		Alert:       d.Alert,
		Streak:      d.Streak,
		Quota:       d.Quota,
		Today:       newExpenseList(d.Today),
		Categories:  newCategoryList(d.Categories),
	})
}
