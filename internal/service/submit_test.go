package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tulung-app/tulung/internal/budget"
	"github.com/tulung-app/tulung/internal/model"
	"github.com/tulung-app/tulung/internal/quota"
)

func manualInput(amount string) model.ExpenseInput {
	return model.ExpenseInput{
		Amount:   decimal.RequireFromString(amount),
		Currency: "USD",
		Category: model.CategoryFood,
		Merchant: "  Kopi Corner  ",
	}
}

func ocrInput(amount string) model.ExpenseInput {
	in := manualInput(amount)
	in.FromOCR = true
	in.ReceiptRef = "receipts/abc.jpg"
	return in
}

func TestSubmitExpense_FirstExpense(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)
	repo := newStubRepo()
	svc, pub := newTestService(repo, now)

	res, err := svc.SubmitExpense(context.Background(), testUser, manualInput("12.50"))
	require.NoError(t, err)

	assert.Equal(t, 1, res.StreakCount)
	assert.Equal(t, OutcomeApplied, res.StreakOutcome.Status)
	assert.Equal(t, OutcomeSkipped, res.QuotaOutcome.Status)
	assert.Equal(t, OutcomeUnchanged, res.AlertOutcome.Status)
	assert.Nil(t, res.Milestone)
	assert.Nil(t, res.Alert)
	assert.True(t, res.SpentToday.Equal(decimal.RequireFromString("12.5")))

	require.NotNil(t, res.Expense.Merchant)
	assert.Equal(t, "Kopi Corner", *res.Expense.Merchant)
	assert.Nil(t, res.Expense.Note)
	assert.Equal(t, now, res.Expense.LoggedAt)

	require.Len(t, repo.expenses, 1)
	assert.Empty(t, pub.alerts)
}

func TestSubmitExpense_InvalidInput(t *testing.T) {
	repo := newStubRepo()
	svc, _ := newTestService(repo, time.Now())

	in := manualInput("0")
	_, err := svc.SubmitExpense(context.Background(), testUser, in)
	assert.ErrorIs(t, err, ErrInvalidExpense)
	assert.Empty(t, repo.expenses)
}

func TestSubmitExpense_RejectsAmountsOutsideStorage(t *testing.T) {
	for _, amount := range []string{"0.001", "0.004", "10000000000"} {
		t.Run(amount, func(t *testing.T) {
			repo := newStubRepo()
			svc, _ := newTestService(repo, time.Now())

			_, err := svc.SubmitExpense(context.Background(), testUser, manualInput(amount))
			assert.ErrorIs(t, err, ErrInvalidExpense)
			assert.Empty(t, repo.expenses)
		})
	}
}

func TestSubmitExpense_StoresAmountInCents(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)
	repo := newStubRepo()
	svc, _ := newTestService(repo, now)

	res, err := svc.SubmitExpense(context.Background(), testUser, manualInput("10.005"))
	require.NoError(t, err)

	want := decimal.RequireFromString("10.01")
	require.Len(t, repo.expenses, 1)
	assert.True(t, repo.expenses[0].Amount.Equal(want), "stored %s", repo.expenses[0].Amount)
	assert.True(t, res.Expense.Amount.Equal(want), "returned %s", res.Expense.Amount)
	assert.True(t, res.SpentToday.Equal(want), "spent today %s", res.SpentToday)
}

func TestSubmitExpense_DefaultsCurrencyFromProfile(t *testing.T) {
	repo := newStubRepo()
	p := model.NewProfile(testUser)
	p.Currency = "MYR"
	repo.profile = &p
	svc, _ := newTestService(repo, time.Now())

	in := manualInput("5")
	in.Currency = ""

	res, err := svc.SubmitExpense(context.Background(), testUser, in)
	require.NoError(t, err)
	assert.Equal(t, "MYR", res.Expense.Currency)
}

func TestSubmitExpense_SameDayIsIdempotentForStreak(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	repo := newStubRepo()
	svc, _ := newTestService(repo, now)

	_, err := svc.SubmitExpense(context.Background(), testUser, manualInput("1"))
	require.NoError(t, err)

	svc.now = fixedClock(now.Add(10 * time.Hour))
	res, err := svc.SubmitExpense(context.Background(), testUser, manualInput("1"))
	require.NoError(t, err)

	assert.Equal(t, 1, res.StreakCount)
	assert.Equal(t, OutcomeUnchanged, res.StreakOutcome.Status)
	assert.Equal(t, 1, repo.streakUpdates)
}

func TestSubmitExpense_MilestoneReportedUntilAcknowledged(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	setup := func() *stubRepo {
		repo := newStubRepo()
		p := model.NewProfile(testUser)
		p.StreakCount = 6
		p.LastActivityDate = ptrTime(time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC))
		repo.profile = &p
		return repo
	}

	repo := setup()
	svc, _ := newTestService(repo, now)
	res, err := svc.SubmitExpense(context.Background(), testUser, manualInput("3"))
	require.NoError(t, err)
	assert.Equal(t, 7, res.StreakCount)
	require.NotNil(t, res.Milestone)
	assert.Equal(t, 7, res.Milestone.Days)
	assert.Equal(t, 2, res.Milestone.Ordinal)

	repo = setup()
	repo.acknowledged[7] = true
	svc, _ = newTestService(repo, now)
	res, err = svc.SubmitExpense(context.Background(), testUser, manualInput("3"))
	require.NoError(t, err)
	assert.Equal(t, 7, res.StreakCount)
	assert.Nil(t, res.Milestone)
}

func TestSubmitExpense_StreakFailureDoesNotFailSubmission(t *testing.T) {
	repo := newStubRepo()
	repo.streakErr = errStub
	svc, _ := newTestService(repo, time.Now())

	res, err := svc.SubmitExpense(context.Background(), testUser, manualInput("3"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, res.StreakOutcome.Status)
	assert.Equal(t, 0, res.StreakCount)
	assert.Len(t, repo.expenses, 1)
}

func TestSubmitExpense_ProfileFailureDoesNotFailSubmission(t *testing.T) {
	repo := newStubRepo()
	repo.profileErr = errStub
	svc, _ := newTestService(repo, time.Now())

	res, err := svc.SubmitExpense(context.Background(), testUser, ocrInput("3"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, res.StreakOutcome.Status)
	assert.Equal(t, OutcomeFailed, res.QuotaOutcome.Status)
	assert.Equal(t, OutcomeFailed, res.AlertOutcome.Status)
	assert.Len(t, repo.expenses, 1)
}

func TestSubmitExpense_CreateFailureIsReturned(t *testing.T) {
	repo := newStubRepo()
	repo.createErr = errStub
	svc, _ := newTestService(repo, time.Now())

	_, err := svc.SubmitExpense(context.Background(), testUser, manualInput("3"))
	assert.True(t, errors.Is(err, errStub))
	assert.Equal(t, 0, repo.streakUpdates)
}

func TestSubmitExpense_QuotaRecordedForOCR(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	repo := newStubRepo()
	svc, _ := newTestService(repo, now)

	res, err := svc.SubmitExpense(context.Background(), testUser, ocrInput("3"))
	require.NoError(t, err)

	assert.Equal(t, OutcomeApplied, res.QuotaOutcome.Status)
	require.Len(t, repo.savedQuota, 1)
	saved := repo.savedQuota[0]
	assert.Equal(t, testUser, saved.UserID)
	assert.Equal(t, 1, saved.ScansUsedThisPeriod)
	assert.Equal(t, time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC), saved.PeriodResetDate)

	require.NotNil(t, res.Quota)
	assert.Equal(t, quota.Decision{Allowed: true, Remaining: 9}, *res.Quota)
}

func TestSubmitExpense_QuotaNotIncrementedPastDeny(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	repo := newStubRepo()
	repo.quota = &model.ScanQuotaRecord{
		UserID:              testUser,
		ScansUsedThisPeriod: quota.FreeTierLimit,
		PeriodResetDate:     time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
	}
	svc, _ := newTestService(repo, now)

	res, err := svc.SubmitExpense(context.Background(), testUser, ocrInput("3"))
	require.NoError(t, err)

	assert.Equal(t, OutcomeSkipped, res.QuotaOutcome.Status)
	assert.Empty(t, repo.savedQuota)
	assert.Equal(t, quota.FreeTierLimit, repo.quota.ScansUsedThisPeriod)
}

func TestSubmitExpense_EntitledUserSkipsQuota(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	repo := newStubRepo()
	p := model.NewProfile(testUser)
	p.IsEntitled = true
	p.EntitlementExpiresAt = ptrTime(now.AddDate(0, 1, 0))
	repo.profile = &p
	svc, _ := newTestService(repo, now)

	res, err := svc.SubmitExpense(context.Background(), testUser, ocrInput("3"))
	require.NoError(t, err)

	assert.Equal(t, OutcomeSkipped, res.QuotaOutcome.Status)
	assert.Equal(t, "entitled", res.QuotaOutcome.Reason)
	assert.Empty(t, repo.savedQuota)
	require.NotNil(t, res.Quota)
	assert.Equal(t, quota.Unlimited, res.Quota.Remaining)
}

func TestSubmitExpense_QuotaReadFailure(t *testing.T) {
	repo := newStubRepo()
	repo.quotaErr = errStub
	svc, _ := newTestService(repo, time.Now())

	res, err := svc.SubmitExpense(context.Background(), testUser, ocrInput("3"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, res.QuotaOutcome.Status)
	assert.Empty(t, repo.savedQuota)
}

func TestSubmitExpense_BudgetAlertPublishedOnTierChange(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	repo := newStubRepo()
	svc, pub := newTestService(repo, now)

	steps := []struct {
		amount  string
		tier    budget.Tier
		outcome OutcomeStatus
	}{
		{amount: "30", outcome: OutcomeUnchanged},
		{amount: "10", tier: budget.TierWarning, outcome: OutcomeApplied},
		{amount: "5", tier: budget.TierWarning, outcome: OutcomeUnchanged},
		{amount: "5", tier: budget.TierDanger, outcome: OutcomeApplied},
		{amount: "11", tier: budget.TierCritical, outcome: OutcomeApplied},
	}

	for i, st := range steps {
		svc.now = fixedClock(now.Add(time.Duration(i) * time.Minute))

		res, err := svc.SubmitExpense(context.Background(), testUser, manualInput(st.amount))
		require.NoError(t, err)
		assert.Equal(t, st.outcome, res.AlertOutcome.Status, "step %d", i)
		if st.tier == "" {
			assert.Nil(t, res.Alert, "step %d", i)
			continue
		}
		require.NotNil(t, res.Alert, "step %d", i)
		assert.Equal(t, st.tier, res.Alert.Tier, "step %d", i)
	}

	require.Len(t, pub.alerts, 3)
	assert.Equal(t, budget.TierCritical, pub.alerts[2].Tier)
	assert.Equal(t, "You're over budget by 22%!", pub.alerts[2].Message)
	assert.Equal(t, "2026-03-10", pub.alerts[2].Day)
}

func TestSubmitExpense_PublishFailureIsBestEffort(t *testing.T) {
	repo := newStubRepo()
	svc, pub := newTestService(repo, time.Now())
	pub.err = errStub

	res, err := svc.SubmitExpense(context.Background(), testUser, manualInput("45"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, res.AlertOutcome.Status)
	require.NotNil(t, res.Alert)
}

func TestSubmitExpense_UsesProfileTimezone(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Kuala_Lumpur")
	require.NoError(t, err)

	// 17:00 UTC 9 марта = 01:00 10 марта в Куала-Лумпуре.
	now := time.Date(2026, 3, 9, 17, 0, 0, 0, time.UTC)
	repo := newStubRepo()
	p := model.NewProfile(testUser)
	p.Timezone = "Asia/Kuala_Lumpur"
	p.StreakCount = 2
	p.LastActivityDate = ptrTime(time.Date(2026, 3, 9, 0, 0, 0, 0, loc))
	repo.profile = &p
	svc, _ := newTestService(repo, now)

	res, err := svc.SubmitExpense(context.Background(), testUser, manualInput("1"))
	require.NoError(t, err)

	assert.Equal(t, 3, res.StreakCount)
	assert.Equal(t, "Asia/Kuala_Lumpur", res.Expense.LoggedAt.Location().String())
	assert.True(t, time.Date(2026, 3, 10, 0, 0, 0, 0, loc).Equal(*repo.profile.LastActivityDate))
}
