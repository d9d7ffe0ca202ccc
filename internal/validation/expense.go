// Package validation содержит функции валидации входных данных.
package validation

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"

	"github.com/tulung-app/tulung/internal/model"
)

// Ошибки валидации расхода.
var (
	ErrNonPositiveAmount = errors.New("amount must be positive")
	ErrAmountTooLarge    = errors.New("amount is too large")
	ErrInvalidCurrency   = errors.New("currency must be a 3-letter ISO code")
	ErrUnknownCategory   = errors.New("unknown category")
	ErrInvalidTimezone   = errors.New("unknown timezone")
)

// MoneyScale задаёт число знаков после запятой, с которым хранятся суммы.
const MoneyScale = 2

// maxAmount соответствует NUMERIC(12,2): не более десяти цифр в целой части.
var maxAmount = decimal.New(1, 10)

const (
	maxMerchantLen = 120
	maxNoteLen     = 500
)

// supportedCurrencies перечисляет валюты, которые распознаются на чеках.
var supportedCurrencies = []string{"USD", "MYR", "EUR", "GBP", "SGD", "JPY", "AUD", "CAD"}

// currencyAliases сопоставляет символы и названия валют ISO-кодам, ключи в нижнем регистре.
var currencyAliases = map[string]string{
	"$":         "USD",
	"dollar":    "USD",
	"dollars":   "USD",
	"us dollar": "USD",
	"rm":        "MYR",
	"ringgit":   "MYR",
	"€":         "EUR",
	"euro":      "EUR",
	"euros":     "EUR",
	"£":         "GBP",
	"pound":     "GBP",
	"pounds":    "GBP",
	"s$":        "SGD",
	"¥":         "JPY",
	"yen":       "JPY",
	"au$":       "AUD",
	"ca$":       "CAD",
}

// IsCurrencyCode проверяет, что строка похожа на ISO 4217 код.
func IsCurrencyCode(code string) bool {
	if len(code) != 3 {
		return false
	}
	for _, ch := range code {
		if !unicode.IsUpper(ch) || ch > unicode.MaxASCII {
			return false
		}
	}
	return true
}

// NormalizeCurrency приводит распознанную валюту к ISO-коду; неизвестная валюта становится USD.
func NormalizeCurrency(currency string) string {
	upper := strings.ToUpper(strings.TrimSpace(currency))
	for _, c := range supportedCurrencies {
		if upper == c {
			return c
		}
	}

	if code, ok := currencyAliases[strings.ToLower(strings.TrimSpace(currency))]; ok {
		return code
	}

	return model.DefaultCurrency
}

// NormalizeCategory сопоставляет произвольное название категории фиксированному набору:
// точное совпадение без учёта регистра, затем вхождение подстроки, иначе Other.
func NormalizeCategory(category string) model.Category {
	lower := strings.ToLower(strings.TrimSpace(category))
	if lower == "" {
		return model.CategoryOther
	}

	for _, c := range model.Categories() {
		if strings.ToLower(string(c)) == lower {
			return c
		}
	}

	for _, c := range model.Categories() {
		name := strings.ToLower(string(c))
		if strings.Contains(name, lower) || strings.Contains(lower, name) {
			return c
		}
	}

	return model.CategoryOther
}

// ValidateAmount округляет сумму до копеек и проверяет, что результат
// положителен и помещается в хранилище.
func ValidateAmount(amount decimal.Decimal) (decimal.Decimal, error) {
	rounded := amount.Round(MoneyScale)
	if !rounded.IsPositive() {
		return amount, ErrNonPositiveAmount
	}
	if rounded.GreaterThanOrEqual(maxAmount) {
		return amount, fmt.Errorf("%w: %s", ErrAmountTooLarge, amount)
	}
	return rounded, nil
}

// ValidateExpense проверяет данные расхода и возвращает их в нормализованном виде.
// Сумма округляется до копеек.
func ValidateExpense(in model.ExpenseInput) (model.ExpenseInput, error) {
	amount, err := ValidateAmount(in.Amount)
	if err != nil {
		return in, err
	}
	in.Amount = amount

	in.Currency = strings.ToUpper(strings.TrimSpace(in.Currency))
	if !IsCurrencyCode(in.Currency) {
		return in, fmt.Errorf("%w: %q", ErrInvalidCurrency, in.Currency)
	}

	if !in.Category.Valid() {
		return in, fmt.Errorf("%w: %q", ErrUnknownCategory, in.Category)
	}

	in.Merchant = truncate(strings.TrimSpace(in.Merchant), maxMerchantLen)
	in.Note = truncate(strings.TrimSpace(in.Note), maxNoteLen)
	in.ReceiptRef = strings.TrimSpace(in.ReceiptRef)

	return in, nil
}

// ValidateTimezone проверяет имя часового пояса IANA.
func ValidateTimezone(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty", ErrInvalidTimezone)
	}
	if _, err := time.LoadLocation(name); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidTimezone, name)
	}
	return nil
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit])
}
