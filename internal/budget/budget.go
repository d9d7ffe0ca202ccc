// Package budget классифицирует дневные траты относительно бюджета.
package budget

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Tier задаёт уровень предупреждения о бюджете.
type Tier string

// Уровни предупреждения: от 80%, от 100% и от 120% дневного бюджета.
const (
	TierWarning  Tier = "warning"
	TierDanger   Tier = "danger"
	TierCritical Tier = "critical"
)

var (
	hundred           = decimal.NewFromInt(100)
	warningThreshold  = decimal.NewFromInt(80)
	criticalThreshold = decimal.NewFromInt(120)
	cautionThreshold  = decimal.NewFromInt(50)
)

// Alert описывает предупреждение о расходе дневного бюджета.
type Alert struct {
	Tier       Tier            `json:"type"`
	Message    string          `json:"message"`
	Percentage decimal.Decimal `json:"percentage"`
}

// BurnRate возвращает траты за день в процентах от бюджета.
// Для неположительного бюджета возвращает false.
func BurnRate(spentToday, dailyBudget decimal.Decimal) (decimal.Decimal, bool) {
	if !dailyBudget.IsPositive() {
		return decimal.Zero, false
	}
	return spentToday.Div(dailyBudget).Mul(hundred), true
}

// Classify возвращает предупреждение для трат за день или nil.
// Функция не хранит состояние: показ и повторное срабатывание решает вызывающий.
func Classify(spentToday, dailyBudget decimal.Decimal) *Alert {
	pct, ok := BurnRate(spentToday, dailyBudget)
	if !ok {
		return nil
	}

	switch {
	case pct.GreaterThanOrEqual(criticalThreshold):
		return &Alert{
			Tier:       TierCritical,
			Message:    fmt.Sprintf("You're over budget by %s%%!", pct.Sub(hundred).Round(0).String()),
			Percentage: pct,
		}
	case pct.GreaterThanOrEqual(hundred):
		return &Alert{
			Tier:       TierDanger,
			Message:    "Daily budget reached!",
			Percentage: pct,
		}
	case pct.GreaterThanOrEqual(warningThreshold):
		return &Alert{
			Tier:       TierWarning,
			Message:    fmt.Sprintf("You've spent %s%% of today's budget", pct.Round(0).String()),
			Percentage: pct,
		}
	}

	return nil
}

// Level задаёт цветовую зону индикатора расхода.
type Level string

// Зоны индикатора расхода.
const (
	LevelSafe    Level = "safe"
	LevelCaution Level = "caution"
	LevelDanger  Level = "danger"
	LevelOver    Level = "over"
)

// LevelFor возвращает зону индикатора: до 50%, до 80%, до 100% и выше.
func LevelFor(spentToday, dailyBudget decimal.Decimal) Level {
	pct, ok := BurnRate(spentToday, dailyBudget)
	if !ok {
		return LevelSafe
	}

	switch {
	case pct.GreaterThanOrEqual(hundred):
		return LevelOver
	case pct.GreaterThanOrEqual(warningThreshold):
		return LevelDanger
	case pct.GreaterThanOrEqual(cautionThreshold):
		return LevelCaution
	default:
		return LevelSafe
	}
}
