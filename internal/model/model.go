// Package model содержит доменные сущности сервиса учёта расходов.
package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Значения профиля по умолчанию для нового пользователя.
const (
	DefaultCurrency = "USD"
	DefaultTimezone = "UTC"
)

// DefaultDailyBudget задаёт дневной бюджет, пока пользователь не указал свой.
var DefaultDailyBudget = decimal.NewFromInt(50)

// Category описывает категорию расхода из фиксированного набора.
type Category string

// Фиксированный набор категорий.
const (
	CategoryFood          Category = "Food & Dining"
	CategoryTransport     Category = "Transportation"
	CategoryShopping      Category = "Shopping"
	CategoryEntertainment Category = "Entertainment"
	CategoryBills         Category = "Bills & Utilities"
	CategoryHealthcare    Category = "Healthcare"
	CategoryOther         Category = "Other"
)

// Categories возвращает категории в порядке отображения.
func Categories() []Category {
	return []Category{
		CategoryFood,
		CategoryTransport,
		CategoryShopping,
		CategoryEntertainment,
		CategoryBills,
		CategoryHealthcare,
		CategoryOther,
	}
}

// Valid сообщает, входит ли категория в фиксированный набор.
func (c Category) Valid() bool {
	for _, known := range Categories() {
		if c == known {
			return true
		}
	}
	return false
}

// UserBudgetProfile описывает профиль пользователя: бюджет, серию и подписку.
type UserBudgetProfile struct {
	UserID               uuid.UUID
	DailyBudget          decimal.Decimal
	Currency             string
	Timezone             string
	LastActivityDate     *time.Time
	StreakCount          int
	IsEntitled           bool
	EntitlementExpiresAt *time.Time
}

// NewProfile создаёт профиль со значениями по умолчанию.
func NewProfile(userID uuid.UUID) UserBudgetProfile {
	return UserBudgetProfile{
		UserID:      userID,
		DailyBudget: DefaultDailyBudget,
		Currency:    DefaultCurrency,
		Timezone:    DefaultTimezone,
	}
}

// EntitledAt возвращает действующий статус подписки на момент now.
// Истёкший срок отменяет сохранённый флаг.
func (p UserBudgetProfile) EntitledAt(now time.Time) bool {
	if !p.IsEntitled {
		return false
	}
	if p.EntitlementExpiresAt != nil && !p.EntitlementExpiresAt.After(now) {
		return false
	}
	return true
}

// Location возвращает часовой пояс профиля; неизвестный пояс трактуется как UTC.
func (p UserBudgetProfile) Location() *time.Location {
	if p.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ScanQuotaRecord хранит расход бесплатных сканирований за период.
type ScanQuotaRecord struct {
	UserID              uuid.UUID
	ScansUsedThisPeriod int
	PeriodResetDate     time.Time
}

// Expense описывает расход. После создания не изменяется.
type Expense struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	Amount     decimal.Decimal
	Currency   string
	Category   Category
	Merchant   *string
	Note       *string
	ReceiptRef *string
	LoggedAt   time.Time
}

// ExpenseInput содержит данные для создания расхода.
type ExpenseInput struct {
	Amount     decimal.Decimal
	Currency   string
	Category   Category
	Merchant   string
	Note       string
	ReceiptRef string
	FromOCR    bool
}

// Entitlement описывает состояние подписки по данным биллинга.
type Entitlement struct {
	Active    bool
	ExpiresAt *time.Time
}

// ReceiptData содержит структурированные поля, распознанные на чеке.
type ReceiptData struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
	Merchant string          `json:"merchant"`
	Category Category        `json:"category"`
}
