package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tulung-app/tulung/internal/aggregator"
	"github.com/tulung-app/tulung/internal/budget"
	"github.com/tulung-app/tulung/internal/calendar"
	"github.com/tulung-app/tulung/internal/model"
	"github.com/tulung-app/tulung/internal/quota"
	"github.com/tulung-app/tulung/internal/streak"
)

// defaultHistoryDays задаёт глубину истории, если интервал не указан.
const defaultHistoryDays = 30

// maxHistoryDays ограничивает интервал одного запроса истории.
const maxHistoryDays = 366

// Dashboard содержит сводку за сегодня для главного экрана.
type Dashboard struct {
	Day         string
	Currency    string
	DailyBudget decimal.Decimal
	SpentToday  decimal.Decimal
	BurnRate    decimal.Decimal
	Level       budget.Level
	Alert       *budget.Alert
	Streak      streak.Status
	Quota       quota.Decision
	Today       []model.Expense
	// Categories считаются за текущий календарный месяц.
	Categories []aggregator.CategoryTotal
}

// Dashboard собирает траты за сегодня, уровень бюджета, серию и квоту.
func (s *Service) Dashboard(ctx context.Context, userID uuid.UUID) (*Dashboard, error) {
	profile, err := s.repo.EnsureProfile(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := s.now().In(profile.Location())
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())

	month, err := s.repo.ListExpenses(ctx, userID, monthStart, calendar.EndOfDay(now))
	if err != nil {
		return nil, fmt.Errorf("list month expenses: %w", err)
	}

	spent := aggregator.TotalForDay(month, now)
	rate, _ := budget.BurnRate(spent, profile.DailyBudget)

	return &Dashboard{
		Day:         calendar.DayKey(now),
		Currency:    profile.Currency,
		DailyBudget: profile.DailyBudget,
		SpentToday:  spent,
		BurnRate:    rate.Round(2),
		Level:       budget.LevelFor(spent, profile.DailyBudget),
		Alert:       budget.Classify(spent, profile.DailyBudget),
		Streak:      streak.CurrentStatus(*profile, now),
		Quota:       s.quotaFor(ctx, *profile, now),
		Today:       aggregator.FilterByRange(month, now, now),
		Categories:  aggregator.ByCategory(month),
	}, nil
}

// History возвращает расходы за интервал дат from..to включительно, сгруппированные по дням.
// Даты в формате 2006-01-02 трактуются в поясе пользователя; пустые значения
// означают последние 30 дней.
func (s *Service) History(ctx context.Context, userID uuid.UUID, from, to string) ([]aggregator.DayGroup, error) {
	profile, err := s.repo.EnsureProfile(ctx, userID)
	if err != nil {
		return nil, err
	}

	loc := profile.Location()
	now := s.now().In(loc)

	end := calendar.StartOfDay(now)
	if to != "" {
		end, err = time.ParseInLocation(calendar.DayKeyLayout, to, loc)
		if err != nil {
			return nil, fmt.Errorf("%w: to %q", ErrInvalidRange, to)
		}
	}

	start := end.AddDate(0, 0, -(defaultHistoryDays - 1))
	if from != "" {
		start, err = time.ParseInLocation(calendar.DayKeyLayout, from, loc)
		if err != nil {
			return nil, fmt.Errorf("%w: from %q", ErrInvalidRange, from)
		}
	}

	if start.After(end) {
		return nil, fmt.Errorf("%w: from is after to", ErrInvalidRange)
	}
	if calendar.DaysBetween(start, end) >= maxHistoryDays {
		return nil, fmt.Errorf("%w: more than %d days", ErrInvalidRange, maxHistoryDays)
	}

	expenses, err := s.repo.ListExpenses(ctx, userID, calendar.StartOfDay(start), calendar.EndOfDay(end))
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}

	return aggregator.History(aggregator.FilterByRange(expenses, start, end), loc), nil
}
