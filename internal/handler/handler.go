// Package handler содержит HTTP-обработчики API сервиса учёта расходов.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/tulung-app/tulung/internal/aggregator"
	"github.com/tulung-app/tulung/internal/calendar"
	"github.com/tulung-app/tulung/internal/middleware"
	"github.com/tulung-app/tulung/internal/model"
	"github.com/tulung-app/tulung/internal/quota"
	"github.com/tulung-app/tulung/internal/repository"
	"github.com/tulung-app/tulung/internal/service"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	GetProfile(ctx context.Context, userID uuid.UUID) (*model.UserBudgetProfile, error)
	UpdateProfile(ctx context.Context, userID uuid.UUID, settings service.ProfileSettings) (*model.UserBudgetProfile, error)
	SubmitExpense(ctx context.Context, userID uuid.UUID, in model.ExpenseInput) (*service.Submission, error)
	GetExpense(ctx context.Context, userID, id uuid.UUID) (*model.Expense, error)
	History(ctx context.Context, userID uuid.UUID, from, to string) ([]aggregator.DayGroup, error)
	Dashboard(ctx context.Context, userID uuid.UUID) (*service.Dashboard, error)
	CheckQuota(ctx context.Context, userID uuid.UUID) quota.Decision
	ScanReceipt(ctx context.Context, userID uuid.UUID, image []byte, mimeType string) (*service.ScanResult, error)
	SyncEntitlement(ctx context.Context, userID uuid.UUID) (model.Entitlement, error)
	AcknowledgeMilestone(ctx context.Context, userID uuid.UUID, days int) error
}

// Handler реализует HTTP-обработчики API сервиса учёта расходов.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
	allowedOrigins []string
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware, allowedOrigins []string) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
		allowedOrigins: allowedOrigins,
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeStatus(w http.ResponseWriter, status int) {
	http.Error(w, http.StatusText(status), status)
}

func (h *Handler) internalError(w http.ResponseWriter, msg string, err error, userID uuid.UUID) {
	h.logger.Error(msg, zap.Error(err), zap.String("userID", userID.String()))
	writeStatus(w, http.StatusInternalServerError)
}

type profileResponse struct {
	UserID               uuid.UUID       `json:"user_id"`
	DailyBudget          decimal.Decimal `json:"daily_budget"`
	Currency             string          `json:"currency"`
	Timezone             string          `json:"timezone"`
	StreakCount          int             `json:"streak_count"`
	LastActivityDate     *string         `json:"last_activity_date,omitempty"`
	IsEntitled           bool            `json:"is_entitled"`
	EntitlementExpiresAt *time.Time      `json:"entitlement_expires_at,omitempty"`
}

func newProfileResponse(p *model.UserBudgetProfile) profileResponse {
	resp := profileResponse{
		UserID:               p.UserID,
		DailyBudget:          p.DailyBudget,
		Currency:             p.Currency,
		Timezone:             p.Timezone,
		StreakCount:          p.StreakCount,
		IsEntitled:           p.IsEntitled,
		EntitlementExpiresAt: p.EntitlementExpiresAt,
	}
	if p.LastActivityDate != nil {
		day := calendar.DayKey(*p.LastActivityDate)
		resp.LastActivityDate = &day
	}
	return resp
}

// GetProfile возвращает профиль текущего пользователя.
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeStatus(w, http.StatusUnauthorized)
		return
	}

	p, err := h.service.GetProfile(r.Context(), userID)
	if err != nil {
		h.internalError(w, "get profile error", err, userID)
		return
	}

	writeJSON(w, http.StatusOK, newProfileResponse(p))
}

type profileRequest struct {
	DailyBudget decimal.Decimal `json:"daily_budget"`
	Currency    string          `json:"currency"`
	Timezone    string          `json:"timezone"`
}

// UpdateProfile обновляет бюджет, валюту и часовой пояс текущего пользователя.
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeStatus(w, http.StatusUnauthorized)
		return
	}

	var req profileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeStatus(w, http.StatusBadRequest)
		return
	}

	p, err := h.service.UpdateProfile(r.Context(), userID, service.ProfileSettings{
		DailyBudget: req.DailyBudget,
		Currency:    req.Currency,
		Timezone:    req.Timezone,
	})
	if err != nil {
		if errors.Is(err, service.ErrInvalidProfile) {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		h.internalError(w, "update profile error", err, userID)
		return
	}

	writeJSON(w, http.StatusOK, newProfileResponse(p))
}

// GetCategories возвращает фиксированный список категорий.
func (h *Handler) GetCategories(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, model.Categories())
}

// GetQuota возвращает состояние квоты сканирований.
func (h *Handler) GetQuota(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeStatus(w, http.StatusUnauthorized)
		return
	}

	writeJSON(w, http.StatusOK, h.service.CheckQuota(r.Context(), userID))
}

type entitlementResponse struct {
	Active    bool       `json:"active"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// SyncEntitlement сверяет подписку пользователя с биллингом.
func (h *Handler) SyncEntitlement(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeStatus(w, http.StatusUnauthorized)
		return
	}

	ent, err := h.service.SyncEntitlement(r.Context(), userID)
	if err != nil {
		if errors.Is(err, service.ErrBillingUnavailable) {
			writeStatus(w, http.StatusServiceUnavailable)
			return
		}
		h.logger.Error("sync entitlement error", zap.Error(err), zap.String("userID", userID.String()))
		writeStatus(w, http.StatusBadGateway)
		return
	}

	writeJSON(w, http.StatusOK, entitlementResponse{Active: ent.Active, ExpiresAt: ent.ExpiresAt})
}

// AcknowledgeMilestone отмечает отметку серии как показанную.
func (h *Handler) AcknowledgeMilestone(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeStatus(w, http.StatusUnauthorized)
		return
	}

	days, err := strconv.Atoi(chi.URLParam(r, "days"))
	if err != nil {
		writeStatus(w, http.StatusBadRequest)
		return
	}

	err = h.service.AcknowledgeMilestone(r.Context(), userID, days)
	if err != nil {
		if errors.Is(err, service.ErrUnknownMilestone) {
			writeStatus(w, http.StatusNotFound)
			return
		}
		h.internalError(w, "acknowledge milestone error", err, userID)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func isNotFound(err error) bool {
	return errors.Is(err, repository.ErrExpenseNotFound) || errors.Is(err, repository.ErrProfileNotFound)
}

func mimeOf(contentType string) string {
	mt, _, _ := strings.Cut(contentType, ";")
	return strings.TrimSpace(mt)
}
