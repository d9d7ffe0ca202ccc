// Package service реализует бизнес-логику сервиса учёта расходов.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/tulung-app/tulung/internal/model"
	"github.com/tulung-app/tulung/internal/notify"
	"github.com/tulung-app/tulung/internal/validation"
)

var (
	// ErrInvalidExpense возвращается при неверных данных расхода.
	ErrInvalidExpense = errors.New("invalid expense")
	// ErrInvalidProfile возвращается при неверных настройках профиля.
	ErrInvalidProfile = errors.New("invalid profile settings")
	// ErrInvalidRange возвращается, если интервал дат задан неверно.
	ErrInvalidRange = errors.New("invalid date range")
	// ErrQuotaExceeded возвращается, если бесплатные сканирования закончились.
	ErrQuotaExceeded = errors.New("scan quota exceeded")
	// ErrOCRUnavailable возвращается, если распознавание чеков не настроено.
	ErrOCRUnavailable = errors.New("receipt ocr unavailable")
	// ErrBillingUnavailable возвращается, если биллинг не настроен.
	ErrBillingUnavailable = errors.New("billing unavailable")
	// ErrUnknownMilestone возвращается, если число дней не совпадает ни с одной отметкой серии.
	ErrUnknownMilestone = errors.New("unknown milestone")
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	GetProfile(ctx context.Context, userID uuid.UUID) (*model.UserBudgetProfile, error)
	EnsureProfile(ctx context.Context, userID uuid.UUID) (*model.UserBudgetProfile, error)
	UpdateProfileSettings(ctx context.Context, userID uuid.UUID, dailyBudget decimal.Decimal, currency, timezone string) error
	UpdateStreak(ctx context.Context, userID uuid.UUID, activityDate time.Time, streakCount int) error
	UpdateEntitlement(ctx context.Context, userID uuid.UUID, ent model.Entitlement) error
	ListLapsedEntitlements(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)
	CreateExpense(ctx context.Context, e model.Expense) error
	GetExpense(ctx context.Context, userID, id uuid.UUID) (*model.Expense, error)
	ListExpenses(ctx context.Context, userID uuid.UUID, from, to time.Time) ([]model.Expense, error)
	GetScanQuota(ctx context.Context, userID uuid.UUID, loc *time.Location) (*model.ScanQuotaRecord, error)
	SaveScanQuota(ctx context.Context, rec model.ScanQuotaRecord) error
	IsMilestoneAcknowledged(ctx context.Context, userID uuid.UUID, days int) (bool, error)
	AcknowledgeMilestone(ctx context.Context, userID uuid.UUID, days int) error
}

// ReceiptReader распознаёт данные чека по изображению.
type ReceiptReader interface {
	ExtractReceipt(ctx context.Context, image []byte, mimeType string) (*model.ReceiptData, error)
}

// EntitlementSource возвращает состояние подписки из биллинга.
type EntitlementSource interface {
	GetEntitlement(ctx context.Context, userID uuid.UUID, now time.Time) (model.Entitlement, error)
}

// Service содержит бизнес-логику сервиса учёта расходов.
type Service struct {
	repo      Repository
	receipts  ReceiptReader
	billing   EntitlementSource
	publisher notify.Publisher
	logger    *zap.Logger
	now       func() time.Time
}

// NewService создаёт сервис. receipts и billing могут быть nil, если интеграции не настроены.
func NewService(repo Repository, receipts ReceiptReader, billing EntitlementSource, publisher notify.Publisher, logger *zap.Logger) *Service {
	if publisher == nil {
		publisher = notify.Noop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:      repo,
		receipts:  receipts,
		billing:   billing,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	var errs []error
	if s.publisher != nil {
		errs = append(errs, s.publisher.Close())
	}
	if s.repo != nil {
		errs = append(errs, s.repo.Close())
	}
	return errors.Join(errs...)
}

// GetProfile возвращает профиль пользователя, создавая его при первом обращении.
// IsEntitled отражает подписку с учётом истечения срока.
func (s *Service) GetProfile(ctx context.Context, userID uuid.UUID) (*model.UserBudgetProfile, error) {
	p, err := s.repo.EnsureProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	p.IsEntitled = p.EntitledAt(s.now())
	return p, nil
}

// ProfileSettings содержит настраиваемые пользователем поля профиля.
type ProfileSettings struct {
	DailyBudget decimal.Decimal
	Currency    string
	Timezone    string
}

// UpdateProfile проверяет и сохраняет настройки профиля.
func (s *Service) UpdateProfile(ctx context.Context, userID uuid.UUID, settings ProfileSettings) (*model.UserBudgetProfile, error) {
	budget, err := validation.ValidateAmount(settings.DailyBudget)
	if err != nil {
		return nil, fmt.Errorf("%w: daily budget: %w", ErrInvalidProfile, err)
	}

	currency := strings.ToUpper(strings.TrimSpace(settings.Currency))
	if !validation.IsCurrencyCode(currency) {
		return nil, fmt.Errorf("%w: currency %q", ErrInvalidProfile, settings.Currency)
	}

	tz := strings.TrimSpace(settings.Timezone)
	if err := validation.ValidateTimezone(tz); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidProfile, err)
	}

	if _, err := s.repo.EnsureProfile(ctx, userID); err != nil {
		return nil, err
	}

	if err := s.repo.UpdateProfileSettings(ctx, userID, budget, currency, tz); err != nil {
		return nil, err
	}

	return s.GetProfile(ctx, userID)
}

// GetExpense возвращает расход пользователя.
func (s *Service) GetExpense(ctx context.Context, userID, id uuid.UUID) (*model.Expense, error) {
	return s.repo.GetExpense(ctx, userID, id)
}

// AcknowledgeMilestone отмечает отметку серии показанной пользователю.
func (s *Service) AcknowledgeMilestone(ctx context.Context, userID uuid.UUID, days int) error {
	if !isMilestone(days) {
		return fmt.Errorf("%w: %d", ErrUnknownMilestone, days)
	}
	if _, err := s.repo.EnsureProfile(ctx, userID); err != nil {
		return err
	}
	return s.repo.AcknowledgeMilestone(ctx, userID, days)
}
