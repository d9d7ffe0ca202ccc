// Package calendar содержит операции над календарными днями.
//
// Время суток отбрасывается. Оба аргумента приводятся к часовому поясу
// опорного момента b (обычно now в поясе пользователя).
package calendar

import "time"

// DayKeyLayout задаёт формат ключа дня.
const DayKeyLayout = "2006-01-02"

// StartOfDay возвращает полночь дня t в его часовом поясе.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// EndOfDay возвращает последнюю наносекунду дня t.
func EndOfDay(t time.Time) time.Time {
	return StartOfDay(t).AddDate(0, 0, 1).Add(-time.Nanosecond)
}

// FirstOfNextMonth возвращает первое число месяца, следующего за t.
func FirstOfNextMonth(t time.Time) time.Time {
	y, m, _ := t.Date()
	return time.Date(y, m+1, 1, 0, 0, 0, 0, t.Location())
}

// DayKey возвращает ключ дня в формате 2006-01-02.
func DayKey(t time.Time) string {
	return t.Format(DayKeyLayout)
}

// IsSameCalendarDay сообщает, приходятся ли a и b на один календарный день.
func IsSameCalendarDay(a, b time.Time) bool {
	ay, am, ad := a.In(b.Location()).Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// IsPreviousCalendarDay сообщает, что a приходится ровно на день раньше b.
func IsPreviousCalendarDay(a, b time.Time) bool {
	return IsSameCalendarDay(a, StartOfDay(b).AddDate(0, 0, -1))
}

// DaysBetween возвращает число пересечённых границ суток между a и b, без знака.
func DaysBetween(a, b time.Time) int {
	// Полдень UTC не подвержен переходу на летнее время.
	ay, am, ad := a.In(b.Location()).Date()
	by, bm, bd := b.Date()
	da := time.Date(ay, am, ad, 12, 0, 0, 0, time.UTC)
	db := time.Date(by, bm, bd, 12, 0, 0, 0, time.UTC)

	days := int(db.Sub(da).Hours() / 24)
	if days < 0 {
		return -days
	}
	return days
}
