// Package quota отслеживает бесплатные сканирования чеков в расчётном периоде.
package quota

import (
	"time"

	"github.com/tulung-app/tulung/internal/calendar"
	"github.com/tulung-app/tulung/internal/model"
)

// FreeTierLimit задаёт число бесплатных сканирований в месяц.
const FreeTierLimit = 10

// Unlimited обозначает отсутствие ограничения для пользователей с подпиской.
const Unlimited = -1

// Decision описывает результат проверки квоты.
type Decision struct {
	Allowed   bool `json:"allowed"`
	Remaining int  `json:"remaining"`
	Entitled  bool `json:"entitled"`
}

// FailOpen возвращает решение на случай, когда квоту не удалось прочитать.
func FailOpen() Decision {
	return Decision{Allowed: true, Remaining: FreeTierLimit}
}

// Expired сообщает, что период записи закончился к моменту now.
// Дата сброса трактуется как календарная дата в поясе now.
func Expired(record model.ScanQuotaRecord, now time.Time) bool {
	y, m, d := record.PeriodResetDate.Date()
	reset := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	return !now.Before(reset)
}

// CheckQuota решает, можно ли выполнить ещё одно сканирование.
// record равен nil, если пользователь ещё не сканировал.
func CheckQuota(profile model.UserBudgetProfile, record *model.ScanQuotaRecord, now time.Time) Decision {
	if profile.EntitledAt(now) {
		return Decision{Allowed: true, Remaining: Unlimited, Entitled: true}
	}

	if record == nil || Expired(*record, now) {
		return Decision{Allowed: true, Remaining: FreeTierLimit}
	}

	remaining := max(0, FreeTierLimit-record.ScansUsedThisPeriod)
	return Decision{Allowed: remaining > 0, Remaining: remaining}
}

// RecordScan учитывает одно сканирование и возвращает новую запись.
// Вызывается только после CheckQuota с Allowed и никогда для пользователей с подпиской.
func RecordScan(record *model.ScanQuotaRecord, now time.Time) model.ScanQuotaRecord {
	if record == nil || Expired(*record, now) {
		next := model.ScanQuotaRecord{
			ScansUsedThisPeriod: 1,
			PeriodResetDate:     calendar.FirstOfNextMonth(now),
		}
		if record != nil {
			next.UserID = record.UserID
		}
		return next
	}

	next := *record
	next.ScansUsedThisPeriod++
	return next
}
