package validation

import (
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/tulung-app/tulung/internal/model"
)

func TestValidateExpense(t *testing.T) {
	tests := []struct {
		name    string
		input   model.ExpenseInput
		wantErr error
	}{
		{
			name: "valid",
			input: model.ExpenseInput{
				Amount:   decimal.RequireFromString("12.50"),
				Currency: "usd",
				Category: model.CategoryFood,
			},
		},
		{
			name: "zero amount",
			input: model.ExpenseInput{
				Amount:   decimal.Zero,
				Currency: "USD",
				Category: model.CategoryFood,
			},
			wantErr: ErrNonPositiveAmount,
		},
		{
			name: "negative amount",
			input: model.ExpenseInput{
				Amount:   decimal.NewFromInt(-3),
				Currency: "USD",
				Category: model.CategoryFood,
			},
			wantErr: ErrNonPositiveAmount,
		},
		{
			name: "bad currency",
			input: model.ExpenseInput{
				Amount:   decimal.NewFromInt(3),
				Currency: "US",
				Category: model.CategoryFood,
			},
			wantErr: ErrInvalidCurrency,
		},
		{
			name: "unknown category",
			input: model.ExpenseInput{
				Amount:   decimal.NewFromInt(3),
				Currency: "USD",
				Category: "Groceries",
			},
			wantErr: ErrUnknownCategory,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidateExpense(tt.input)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("ValidateExpense() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateAmount(t *testing.T) {
	tests := []struct {
		name    string
		amount  string
		want    string
		wantErr error
	}{
		{name: "cents kept", amount: "12.50", want: "12.5"},
		{name: "half cent rounds up", amount: "10.005", want: "10.01"},
		{name: "below a cent", amount: "0.004", wantErr: ErrNonPositiveAmount},
		{name: "rounds to zero", amount: "0.001", wantErr: ErrNonPositiveAmount},
		{name: "smallest amount", amount: "0.005", want: "0.01"},
		{name: "largest amount", amount: "9999999999.99", want: "9999999999.99"},
		{name: "rounds up to overflow", amount: "9999999999.995", wantErr: ErrAmountTooLarge},
		{name: "eleven integer digits", amount: "10000000000", wantErr: ErrAmountTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidateAmount(decimal.RequireFromString(tt.amount))
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("ValidateAmount(%s) error = %v, want %v", tt.amount, err, tt.wantErr)
			}
			if tt.wantErr == nil && got.String() != tt.want {
				t.Fatalf("ValidateAmount(%s) = %s, want %s", tt.amount, got, tt.want)
			}
		})
	}
}

func TestValidateExpense_RoundsAmount(t *testing.T) {
	out, err := ValidateExpense(model.ExpenseInput{
		Amount:   decimal.RequireFromString("10.005"),
		Currency: "USD",
		Category: model.CategoryFood,
	})
	if err != nil {
		t.Fatalf("ValidateExpense() error = %v", err)
	}
	if !out.Amount.Equal(decimal.RequireFromString("10.01")) {
		t.Fatalf("Amount = %s, want 10.01", out.Amount)
	}
}

func TestValidateExpense_Normalizes(t *testing.T) {
	in := model.ExpenseInput{
		Amount:   decimal.NewFromInt(1),
		Currency: " eur ",
		Category: model.CategoryOther,
		Merchant: "  Corner Shop  ",
		Note:     strings.Repeat("x", 600),
	}

	out, err := ValidateExpense(in)
	if err != nil {
		t.Fatalf("ValidateExpense() error = %v", err)
	}
	if out.Currency != "EUR" {
		t.Fatalf("Currency = %q, want EUR", out.Currency)
	}
	if out.Merchant != "Corner Shop" {
		t.Fatalf("Merchant = %q, want trimmed", out.Merchant)
	}
	if len(out.Note) != maxNoteLen {
		t.Fatalf("len(Note) = %d, want %d", len(out.Note), maxNoteLen)
	}
}

func TestNormalizeCurrency(t *testing.T) {
	tests := map[string]string{
		"usd":      "USD",
		" MYR ":    "MYR",
		"RM":       "MYR",
		"€":        "EUR",
		"Pounds":   "GBP",
		"S$":       "SGD",
		"¥":        "JPY",
		"doubloon": "USD",
		"":         "USD",
	}

	for in, want := range tests {
		if got := NormalizeCurrency(in); got != want {
			t.Fatalf("NormalizeCurrency(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalizeCategory(t *testing.T) {
	tests := map[string]model.Category{
		"food & dining": model.CategoryFood,
		"Food":          model.CategoryFood,
		"healthcare":    model.CategoryHealthcare,
		"Bills":         model.CategoryBills,
		"Utilities":     model.CategoryBills,
		"space tourism": model.CategoryOther,
		"":              model.CategoryOther,
	}

	for in, want := range tests {
		if got := NormalizeCategory(in); got != want {
			t.Fatalf("NormalizeCategory(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestValidateTimezone(t *testing.T) {
	if err := ValidateTimezone("Asia/Kuala_Lumpur"); err != nil {
		t.Fatalf("ValidateTimezone() error = %v", err)
	}
	if err := ValidateTimezone("Mars/Olympus_Mons"); !errors.Is(err, ErrInvalidTimezone) {
		t.Fatalf("ValidateTimezone() error = %v, want ErrInvalidTimezone", err)
	}
	if err := ValidateTimezone(""); !errors.Is(err, ErrInvalidTimezone) {
		t.Fatalf("ValidateTimezone() error = %v, want ErrInvalidTimezone", err)
	}
}
