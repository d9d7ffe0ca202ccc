// Package streak считает серию дней подряд, в которые пользователь вносил расходы.
package streak

import (
	"time"

	"github.com/tulung-app/tulung/internal/calendar"
	"github.com/tulung-app/tulung/internal/model"
)

// Milestone описывает достигнутую отметку серии.
type Milestone struct {
	Days    int    `json:"days"`
	Ordinal int    `json:"ordinal"`
	Title   string `json:"title"`
	Message string `json:"message"`
	Emoji   string `json:"emoji"`
}

// milestones упорядочены по возрастанию порога; Ordinal совпадает с позицией.
var milestones = []Milestone{
	{Days: 3, Ordinal: 1, Title: "Great Start!", Message: "You've logged expenses for 3 days in a row!", Emoji: "🎉"},
	{Days: 7, Ordinal: 2, Title: "One Week Streak!", Message: "You're building a great habit!", Emoji: "🔥"},
	{Days: 14, Ordinal: 3, Title: "Two Weeks!", Message: "You're on fire!", Emoji: "🚀"},
	{Days: 30, Ordinal: 4, Title: "ONE MONTH!", Message: "Incredible dedication!", Emoji: "🏆"},
	{Days: 60, Ordinal: 5, Title: "TWO MONTHS!", Message: "You're a budgeting master!", Emoji: "💎"},
	{Days: 90, Ordinal: 6, Title: "THREE MONTHS!", Message: "Absolutely outstanding!", Emoji: "👑"},
	{Days: 180, Ordinal: 7, Title: "HALF A YEAR!", Message: "Phenomenal commitment!", Emoji: "⭐"},
	{Days: 365, Ordinal: 8, Title: "ONE FULL YEAR!", Message: "You are a legend!", Emoji: "🎊"},
}

// Milestones возвращает копию таблицы отметок.
func Milestones() []Milestone {
	out := make([]Milestone, len(milestones))
	copy(out, milestones)
	return out
}

// MilestoneFor возвращает отметку для точного значения серии.
func MilestoneFor(count int) (Milestone, bool) {
	for _, m := range milestones {
		if m.Days == count {
			return m, true
		}
	}
	return Milestone{}, false
}

// Advance описывает результат продвижения серии.
type Advance struct {
	NewStreakCount int
	// Changed false означает, что сегодня уже засчитано и сохранять нечего.
	Changed      bool
	ActivityDate time.Time
	Milestone    *Milestone
}

// AdvanceStreak вычисляет новое значение серии для отправки в момент now.
// Профиль должен быть прочитан до изменения. Ввода-вывода нет: новые
// LastActivityDate и StreakCount вызывающий сохраняет одним обновлением.
func AdvanceStreak(profile model.UserBudgetProfile, now time.Time) Advance {
	today := calendar.StartOfDay(now)

	var count int
	switch {
	case profile.LastActivityDate == nil:
		count = 1
	case calendar.IsSameCalendarDay(*profile.LastActivityDate, now):
		return Advance{
			NewStreakCount: profile.StreakCount,
			ActivityDate:   today,
		}
	case calendar.IsPreviousCalendarDay(*profile.LastActivityDate, now):
		count = profile.StreakCount + 1
	default:
		count = 1
	}

	res := Advance{
		NewStreakCount: count,
		Changed:        true,
		ActivityDate:   today,
	}
	if m, ok := MilestoneFor(count); ok {
		res.Milestone = &m
	}
	return res
}

// Status описывает текущее состояние серии для отображения.
type Status struct {
	StreakCount      int        `json:"streak_count"`
	IsActive         bool       `json:"is_active"`
	DaysUntilBreak   int        `json:"days_until_break"`
	LastActivityDate *time.Time `json:"last_activity_date,omitempty"`
}

// CurrentStatus возвращает состояние серии на момент now.
// Серия активна, если последняя активность была сегодня или вчера.
func CurrentStatus(profile model.UserBudgetProfile, now time.Time) Status {
	if profile.LastActivityDate == nil {
		return Status{}
	}

	last := *profile.LastActivityDate
	loggedToday := calendar.IsSameCalendarDay(last, now)
	active := loggedToday || calendar.IsPreviousCalendarDay(last, now)

	st := Status{
		IsActive:         active,
		LastActivityDate: &last,
	}
	if active {
		st.StreakCount = profile.StreakCount
	}
	if loggedToday {
		st.DaysUntilBreak = 1
	}
	return st
}
