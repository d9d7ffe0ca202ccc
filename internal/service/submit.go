package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/tulung-app/tulung/internal/aggregator"
	"github.com/tulung-app/tulung/internal/budget"
	"github.com/tulung-app/tulung/internal/calendar"
	"github.com/tulung-app/tulung/internal/model"
	"github.com/tulung-app/tulung/internal/notify"
	"github.com/tulung-app/tulung/internal/quota"
	"github.com/tulung-app/tulung/internal/streak"
	"github.com/tulung-app/tulung/internal/validation"
)

// OutcomeStatus задаёт итог побочного обновления при создании расхода.
type OutcomeStatus string

// Возможные итоги побочного обновления.
const (
	OutcomeApplied   OutcomeStatus = "applied"
	OutcomeUnchanged OutcomeStatus = "unchanged"
	OutcomeSkipped   OutcomeStatus = "skipped"
	OutcomeFailed    OutcomeStatus = "failed"
)

// Outcome описывает результат обновления серии, квоты или уведомления.
// Failed не отменяет создание расхода.
type Outcome struct {
	Status OutcomeStatus `json:"status"`
	Reason string        `json:"reason,omitempty"`
}

func applied() Outcome { return Outcome{Status: OutcomeApplied} }

func unchanged(reason string) Outcome { return Outcome{Status: OutcomeUnchanged, Reason: reason} }

func skipped(reason string) Outcome { return Outcome{Status: OutcomeSkipped, Reason: reason} }

func failed(reason string) Outcome { return Outcome{Status: OutcomeFailed, Reason: reason} }

// Submission описывает результат создания расхода.
type Submission struct {
	Expense     model.Expense
	StreakCount int
	// Milestone заполнен, только если отметка достигнута этим расходом и ещё не подтверждена.
	Milestone  *streak.Milestone
	SpentToday decimal.Decimal
	Alert      *budget.Alert
	Quota      *quota.Decision

	StreakOutcome Outcome
	QuotaOutcome  Outcome
	AlertOutcome  Outcome
}

// SubmitExpense сохраняет расход и выполняет сопутствующие обновления: серию,
// квоту сканирований для расходов из OCR и предупреждение о бюджете.
// Ошибку возвращают только проверка данных и сохранение самого расхода.
func (s *Service) SubmitExpense(ctx context.Context, userID uuid.UUID, in model.ExpenseInput) (*Submission, error) {
	currencyDefaulted := strings.TrimSpace(in.Currency) == ""
	if currencyDefaulted {
		in.Currency = model.DefaultCurrency
	}

	in, err := validation.ValidateExpense(in)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidExpense, err)
	}

	now := s.now()

	profile, err := s.repo.EnsureProfile(ctx, userID)
	if err != nil {
		s.logger.Warn("read profile for submission failed",
			zap.Error(err),
			zap.String("userID", userID.String()),
		)
		profile = nil
	}
	if profile != nil {
		now = now.In(profile.Location())
		if currencyDefaulted {
			in.Currency = profile.Currency
		}
	}

	expense := model.Expense{
		ID:         uuid.New(),
		UserID:     userID,
		Amount:     in.Amount,
		Currency:   in.Currency,
		Category:   in.Category,
		Merchant:   optional(in.Merchant),
		Note:       optional(in.Note),
		ReceiptRef: optional(in.ReceiptRef),
		LoggedAt:   now,
	}

	if err := s.repo.CreateExpense(ctx, expense); err != nil {
		return nil, fmt.Errorf("create expense: %w", err)
	}

	res := &Submission{Expense: expense}

	if profile == nil {
		res.StreakOutcome = failed("profile unavailable")
		res.QuotaOutcome = failed("profile unavailable")
		if !in.FromOCR {
			res.QuotaOutcome = skipped("manual entry")
		}
		res.AlertOutcome = failed("profile unavailable")
		return res, nil
	}

	s.applyStreak(ctx, *profile, now, res)
	s.applyQuota(ctx, *profile, in.FromOCR, now, res)
	s.applyBudget(ctx, *profile, expense, now, res)

	return res, nil
}

// applyStreak продвигает серию по состоянию профиля до этого расхода.
func (s *Service) applyStreak(ctx context.Context, profile model.UserBudgetProfile, now time.Time, res *Submission) {
	adv := streak.AdvanceStreak(profile, now)
	res.StreakCount = adv.NewStreakCount

	if !adv.Changed {
		res.StreakOutcome = unchanged("already counted today")
		return
	}

	if err := s.repo.UpdateStreak(ctx, profile.UserID, adv.ActivityDate, adv.NewStreakCount); err != nil {
		s.logger.Warn("update streak failed",
			zap.Error(err),
			zap.String("userID", profile.UserID.String()),
			zap.Int("streak", adv.NewStreakCount),
		)
		res.StreakCount = profile.StreakCount
		res.StreakOutcome = failed("streak update failed")
		return
	}
	res.StreakOutcome = applied()

	if adv.Milestone == nil {
		return
	}

	shown, err := s.repo.IsMilestoneAcknowledged(ctx, profile.UserID, adv.Milestone.Days)
	if err != nil {
		s.logger.Warn("check milestone failed",
			zap.Error(err),
			zap.String("userID", profile.UserID.String()),
			zap.Int("days", adv.Milestone.Days),
		)
	}
	if !shown {
		res.Milestone = adv.Milestone
	}
}

// applyQuota учитывает сканирование для пользователей без подписки.
// Счётчик увеличивается только после разрешающей проверки.
func (s *Service) applyQuota(ctx context.Context, profile model.UserBudgetProfile, fromOCR bool, now time.Time, res *Submission) {
	if !fromOCR {
		res.QuotaOutcome = skipped("manual entry")
		return
	}

	if profile.EntitledAt(now) {
		d := quota.CheckQuota(profile, nil, now)
		res.Quota = &d
		res.QuotaOutcome = skipped("entitled")
		return
	}

	rec, err := s.repo.GetScanQuota(ctx, profile.UserID, now.Location())
	if err != nil {
		s.logger.Warn("read scan quota failed",
			zap.Error(err),
			zap.String("userID", profile.UserID.String()),
		)
		res.QuotaOutcome = failed("quota read failed")
		return
	}

	d := quota.CheckQuota(profile, rec, now)
	if !d.Allowed {
		res.Quota = &d
		res.QuotaOutcome = skipped("free scan quota exhausted")
		return
	}

	updated := quota.RecordScan(rec, now)
	updated.UserID = profile.UserID

	if err := s.repo.SaveScanQuota(ctx, updated); err != nil {
		s.logger.Warn("save scan quota failed",
			zap.Error(err),
			zap.String("userID", profile.UserID.String()),
		)
		res.Quota = &d
		res.QuotaOutcome = failed("quota update failed")
		return
	}

	after := quota.CheckQuota(profile, &updated, now)
	res.Quota = &after
	res.QuotaOutcome = applied()
}

// applyBudget пересчитывает траты за сегодня и публикует предупреждение,
// когда расход перевёл траты на новый уровень.
func (s *Service) applyBudget(ctx context.Context, profile model.UserBudgetProfile, expense model.Expense, now time.Time, res *Submission) {
	expenses, err := s.repo.ListExpenses(ctx, profile.UserID, calendar.StartOfDay(now), calendar.EndOfDay(now))
	if err != nil {
		s.logger.Warn("list today expenses failed",
			zap.Error(err),
			zap.String("userID", profile.UserID.String()),
		)
		res.AlertOutcome = failed("today total unavailable")
		return
	}

	spent := aggregator.TotalForDay(expenses, now)
	res.SpentToday = spent
	res.Alert = budget.Classify(spent, profile.DailyBudget)

	if res.Alert == nil {
		res.AlertOutcome = unchanged("below warning threshold")
		return
	}

	before := budget.Classify(spent.Sub(expense.Amount), profile.DailyBudget)
	if before != nil && before.Tier == res.Alert.Tier {
		res.AlertOutcome = unchanged("tier already reached today")
		return
	}

	err = s.publisher.Publish(ctx, notify.BudgetAlert{
		UserID:      profile.UserID,
		Day:         calendar.DayKey(now),
		Tier:        res.Alert.Tier,
		Message:     res.Alert.Message,
		Percentage:  res.Alert.Percentage.Round(2),
		SpentToday:  spent,
		DailyBudget: profile.DailyBudget,
		Currency:    profile.Currency,
		CreatedAt:   now,
	})
	if err != nil {
		s.logger.Warn("publish budget alert failed",
			zap.Error(err),
			zap.String("userID", profile.UserID.String()),
			zap.String("tier", string(res.Alert.Tier)),
		)
		res.AlertOutcome = failed("alert publish failed")
		return
	}
	res.AlertOutcome = applied()
}

func isMilestone(days int) bool {
	_, ok := streak.MilestoneFor(days)
	return ok
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
