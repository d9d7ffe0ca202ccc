// Package aggregator фильтрует, группирует и суммирует расходы по календарным дням.
package aggregator

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tulung-app/tulung/internal/calendar"
	"github.com/tulung-app/tulung/internal/model"
)

// TotalForDay суммирует расходы, попавшие в календарный день day включительно.
// Границы дня берутся в часовом поясе day.
func TotalForDay(expenses []model.Expense, day time.Time) decimal.Decimal {
	return Total(FilterByRange(expenses, day, day))
}

// Total суммирует все переданные расходы.
func Total(expenses []model.Expense) decimal.Decimal {
	total := decimal.Zero
	for _, e := range expenses {
		total = total.Add(e.Amount)
	}
	return total
}

// FilterByRange возвращает расходы с начала дня start до конца дня end включительно.
func FilterByRange(expenses []model.Expense, start, end time.Time) []model.Expense {
	from := calendar.StartOfDay(start)
	to := calendar.EndOfDay(end)

	var result []model.Expense
	for _, e := range expenses {
		if e.LoggedAt.Before(from) || e.LoggedAt.After(to) {
			continue
		}
		result = append(result, e)
	}
	return result
}

// GroupByDay раскладывает расходы по ключу дня (2006-01-02) в поясе loc.
// Внутри дня расходы упорядочены от новых к старым.
func GroupByDay(expenses []model.Expense, loc *time.Location) map[string][]model.Expense {
	grouped := make(map[string][]model.Expense)
	for _, e := range expenses {
		key := calendar.DayKey(e.LoggedAt.In(loc))
		grouped[key] = append(grouped[key], e)
	}

	for _, list := range grouped {
		sort.SliceStable(list, func(i, j int) bool {
			return list[i].LoggedAt.After(list[j].LoggedAt)
		})
	}

	return grouped
}

// DayGroup содержит расходы одного дня для ленты истории.
type DayGroup struct {
	Day      string
	Total    decimal.Decimal
	Expenses []model.Expense
}

// History возвращает группы по дням, от последнего дня к первому.
func History(expenses []model.Expense, loc *time.Location) []DayGroup {
	grouped := GroupByDay(expenses, loc)

	days := make([]DayGroup, 0, len(grouped))
	for key, list := range grouped {
		days = append(days, DayGroup{
			Day:      key,
			Total:    Total(list),
			Expenses: list,
		})
	}
	// Ключ 2006-01-02 упорядочен лексикографически так же, как даты.
	sort.Slice(days, func(i, j int) bool {
		return days[i].Day > days[j].Day
	})

	return days
}

// CategoryTotal содержит траты по одной категории.
type CategoryTotal struct {
	Category   model.Category
	Total      decimal.Decimal
	Count      int
	Percentage decimal.Decimal
}

// ByCategory считает итоги и долю каждой категории, по убыванию суммы.
func ByCategory(expenses []model.Expense) []CategoryTotal {
	byCat := make(map[model.Category]*CategoryTotal)
	total := decimal.Zero

	for _, e := range expenses {
		ct, ok := byCat[e.Category]
		if !ok {
			ct = &CategoryTotal{Category: e.Category, Total: decimal.Zero}
			byCat[e.Category] = ct
		}
		ct.Total = ct.Total.Add(e.Amount)
		ct.Count++
		total = total.Add(e.Amount)
	}

	result := make([]CategoryTotal, 0, len(byCat))
	for _, ct := range byCat {
		if total.IsPositive() {
			ct.Percentage = ct.Total.Div(total).Mul(decimal.NewFromInt(100))
		}
		result = append(result, *ct)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Total.Equal(result[j].Total) {
			return result[i].Category < result[j].Category
		}
		return result[i].Total.GreaterThan(result[j].Total)
	})

	return result
}
